package store

import (
	"context"
	"errors"

	"trade-settlement-go/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TradeStore persists trades and answers the status/deadline queries the sweep needs.
type TradeStore struct {
	db *gorm.DB
}

func NewTradeStore(db *gorm.DB) *TradeStore {
	return &TradeStore{db: db}
}

// Create inserts a trade inside tx. A trade id that already exists yields ErrDuplicateTrade.
func (s *TradeStore) Create(ctx context.Context, tx *gorm.DB, trade *models.Trade) error {
	var count int64
	if err := tx.WithContext(ctx).Model(&models.Trade{}).Where("id = ?", trade.ID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicateTrade
	}
	return tx.WithContext(ctx).Create(trade).Error
}

func (s *TradeStore) Get(ctx context.Context, id string) (*models.Trade, error) {
	return s.get(s.db.WithContext(ctx), id)
}

// GetForUpdate re-reads the trade inside tx under a row lock where the dialect has one.
func (s *TradeStore) GetForUpdate(ctx context.Context, tx *gorm.DB, id string) (*models.Trade, error) {
	return s.get(tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (s *TradeStore) get(db *gorm.DB, id string) (*models.Trade, error) {
	var trade models.Trade
	if err := db.Where("id = ?", id).First(&trade).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTradeNotFound
		}
		return nil, err
	}
	return &trade, nil
}

// ListDue returns every pending trade whose delivery deadline is at or before nowMs,
// earliest deadline first.
func (s *TradeStore) ListDue(ctx context.Context, nowMs int64) ([]models.Trade, error) {
	var trades []models.Trade
	err := s.db.WithContext(ctx).
		Where("status = ? AND delivery_deadline_ms <= ?", models.TradeStatusPending, nowMs).
		Order("delivery_deadline_ms asc").
		Find(&trades).Error
	return trades, err
}

// ListByAccount returns the account's trades, newest first.
func (s *TradeStore) ListByAccount(ctx context.Context, accountID string) ([]models.Trade, error) {
	var trades []models.Trade
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at_ms desc").
		Order("id desc").
		Find(&trades).Error
	return trades, err
}

// CountByStatus counts trades in the given status.
func (s *TradeStore) CountByStatus(ctx context.Context, status models.TradeStatus) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Trade{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

// Complete writes the settlement fields of trade and moves it to completed inside tx.
// The update only matches a pending row, so a trade claimed by someone else yields
// ErrTradeNotPending instead of being settled twice.
func (s *TradeStore) Complete(ctx context.Context, tx *gorm.DB, trade *models.Trade) error {
	updates := map[string]interface{}{
		"status":                       models.TradeStatusCompleted,
		"gain_percentage":              trade.GainPercentage,
		"final_amount":                 trade.FinalAmount,
		"simulated_final_price":        trade.SimulatedFinalPrice,
		"current_trade_value":          trade.CurrentTradeValue,
		"current_gain_loss_percentage": trade.CurrentGainLossPercentage,
		"resolved_at_ms":               trade.ResolvedAtMs,
		"credit_skipped":               trade.CreditSkipped,
	}
	if trade.Outcome != nil {
		updates["outcome"] = string(*trade.Outcome)
	}

	result := tx.WithContext(ctx).
		Model(&models.Trade{}).
		Where("id = ? AND status = ?", trade.ID, models.TradeStatusPending).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTradeNotPending
	}
	trade.Status = models.TradeStatusCompleted
	return nil
}
