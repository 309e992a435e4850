package store

import (
	"context"
	"errors"
	"fmt"

	"trade-settlement-go/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AccountStore is the ledger store: account balances plus the journal of every
// movement applied to them.
type AccountStore struct {
	db *gorm.DB
}

func NewAccountStore(db *gorm.DB) *AccountStore {
	return &AccountStore{db: db}
}

// Create registers a new account. Used by the registration collaborator and by tests.
func (s *AccountStore) Create(ctx context.Context, account *models.Account) error {
	if account.Balance.IsNegative() {
		return fmt.Errorf("account %s: opening balance must not be negative", account.ID)
	}
	return s.db.WithContext(ctx).Create(account).Error
}

func (s *AccountStore) Get(ctx context.Context, id string) (*models.Account, error) {
	return s.get(s.db.WithContext(ctx), id)
}

// GetForUpdate reads the account inside tx and takes a row lock where the dialect has one.
func (s *AccountStore) GetForUpdate(ctx context.Context, tx *gorm.DB, id string) (*models.Account, error) {
	return s.get(tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (s *AccountStore) get(db *gorm.DB, id string) (*models.Account, error) {
	var account models.Account
	err := db.Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// Debit removes amount from the account inside tx and journals it against tradeID.
// It fails with ErrInsufficientBalance, leaving the row untouched, when the balance
// does not cover the amount.
func (s *AccountStore) Debit(ctx context.Context, tx *gorm.DB, accountID string, amount decimal.Decimal, tradeID string, nowMs int64) (*models.LedgerEntry, error) {
	account, err := s.GetForUpdate(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	if account.Balance.LessThan(amount) {
		return nil, ErrInsufficientBalance
	}
	return s.apply(ctx, tx, account, amount.Neg(), models.LedgerEntryWagerDebit, tradeID, nowMs)
}

// Credit adds amount to the account inside tx and journals it against tradeID.
func (s *AccountStore) Credit(ctx context.Context, tx *gorm.DB, accountID string, amount decimal.Decimal, tradeID string, nowMs int64) (*models.LedgerEntry, error) {
	account, err := s.GetForUpdate(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, tx, account, amount, models.LedgerEntrySettlementCredit, tradeID, nowMs)
}

func (s *AccountStore) apply(ctx context.Context, tx *gorm.DB, account *models.Account, delta decimal.Decimal, kind models.LedgerEntryKind, tradeID string, nowMs int64) (*models.LedgerEntry, error) {
	before := account.Balance
	after := before.Add(delta)

	result := tx.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ? AND version = ?", account.ID, account.Version).
		Updates(map[string]interface{}{
			"balance":       after,
			"version":       account.Version + 1,
			"updated_at_ms": nowMs,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrConcurrentUpdate
	}

	entry := &models.LedgerEntry{
		ID:            uuid.NewString(),
		AccountID:     account.ID,
		TradeID:       tradeID,
		Kind:          kind,
		Amount:        delta,
		BalanceBefore: before,
		BalanceAfter:  after,
		CreatedAtMs:   nowMs,
	}
	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to journal %s for account %s: %w", kind, account.ID, err)
	}

	account.Balance = after
	account.Version++
	account.UpdatedAtMs = nowMs
	return entry, nil
}

// Entries returns the journal of an account, oldest first.
func (s *AccountStore) Entries(ctx context.Context, accountID string) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at_ms asc").
		Find(&entries).Error
	return entries, err
}
