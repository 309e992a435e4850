package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trade-settlement-go/internal/config"
	"trade-settlement-go/internal/models"
	"trade-settlement-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Engine is the trade settlement engine. It is the only writer of account balances
// and trade statuses; both the scheduler and the API go through it.
type Engine struct {
	logger   *zap.Logger
	db       *gorm.DB
	accounts *store.AccountStore
	trades   *store.TradeStore
	model    outcomeModel
	sampler  Sampler
	now      func() time.Time
	newID    func() string
}

// Option customises an Engine.
type Option func(*Engine)

// WithSampler replaces the random source used to draw outcomes.
func WithSampler(s Sampler) Option {
	return func(e *Engine) { e.sampler = s }
}

// WithClock replaces the clock used to stamp new trades.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator replaces the generator for server-assigned trade ids.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// NewEngine creates a settlement engine over db.
func NewEngine(logger *zap.Logger, db *gorm.DB, cfg config.Settlement, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settlement config: %w", err)
	}
	e := &Engine{
		logger:   logger.Named("settlement"),
		db:       db,
		accounts: store.NewAccountStore(db),
		trades:   store.NewTradeStore(db),
		model:    newOutcomeModel(cfg),
		sampler:  randSampler{},
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Asset is the snapshot of the traded asset stored on the trade.
type Asset struct {
	ID     string
	Name   string
	Symbol string
}

// CreateTradeRequest carries the parameters of a new trade.
// TradeID is optional; when empty the engine assigns one.
type CreateTradeRequest struct {
	TradeID            string
	AccountID          string
	Asset              Asset
	Direction          models.Direction
	AmountWagered      decimal.Decimal
	EntryPrice         decimal.Decimal
	DeliveryDeadlineMs int64
}

func (r CreateTradeRequest) validate(nowMs int64) error {
	switch {
	case r.AccountID == "":
		return fmt.Errorf("%w: account id is required", ErrInvalidInput)
	case r.Asset.ID == "":
		return fmt.Errorf("%w: asset id is required", ErrInvalidInput)
	case !r.Direction.Valid():
		return fmt.Errorf("%w: direction must be %q or %q, got %q", ErrInvalidInput, models.DirectionUp, models.DirectionDown, r.Direction)
	case !r.AmountWagered.IsPositive():
		return fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	case !r.EntryPrice.IsPositive():
		return fmt.Errorf("%w: entry price must be positive", ErrInvalidInput)
	case r.DeliveryDeadlineMs <= nowMs:
		return fmt.Errorf("%w: delivery deadline %d is not after now %d", ErrInvalidInput, r.DeliveryDeadlineMs, nowMs)
	}
	return nil
}

// CreateTrade debits the wager from the account and records a pending trade in one
// transaction. Either both writes commit or neither does.
func (e *Engine) CreateTrade(ctx context.Context, req CreateTradeRequest) (*models.Trade, error) {
	nowMs := e.now().UnixMilli()
	if err := req.validate(nowMs); err != nil {
		return nil, err
	}

	id := req.TradeID
	if id == "" {
		id = e.newID()
	}

	trade := &models.Trade{
		ID:                 id,
		AccountID:          req.AccountID,
		AssetID:            req.Asset.ID,
		AssetName:          req.Asset.Name,
		AssetSymbol:        req.Asset.Symbol,
		Direction:          req.Direction,
		AmountWagered:      req.AmountWagered,
		EntryPrice:         req.EntryPrice,
		CreatedAtMs:        nowMs,
		DeliveryDeadlineMs: req.DeliveryDeadlineMs,
		Status:             models.TradeStatusPending,
	}

	l := e.logger.With(
		zap.String("trade_id", id),
		zap.String("account_id", req.AccountID),
		zap.String("amount", req.AmountWagered.String()),
	)

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := e.accounts.Debit(ctx, tx, req.AccountID, req.AmountWagered, id, nowMs); err != nil {
			return err
		}
		return e.trades.Create(ctx, tx, trade)
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrInsufficientBalance), errors.Is(err, store.ErrAccountNotFound):
			l.Info("Trade rejected", zap.Error(err))
			return nil, err
		case errors.Is(err, store.ErrDuplicateTrade):
			l.Info("Trade rejected", zap.Error(err))
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		l.Error("Failed to create trade", zap.Error(err))
		return nil, fmt.Errorf("failed to create trade: %w", err)
	}

	l.Info("Trade created", zap.Int64("delivery_deadline_ms", trade.DeliveryDeadlineMs))
	return trade, nil
}

// SweepResult summarises one ResolveDueTrades run.
type SweepResult struct {
	Examined      int `json:"examined"`
	Resolved      int `json:"resolved"`
	Skipped       int `json:"skipped"`
	Failed        int `json:"failed"`
	CreditSkipped int `json:"credit_skipped"`
}

// ResolveDueTrades settles every pending trade whose deadline is at or before now.
//
// Each trade is settled in its own transaction, so a failure on one trade is logged
// and does not stop the others. The only error returned is ErrStoreUnavailable when
// the due-trade query fails. Calling it concurrently with itself is safe: a trade
// already completed by another caller is skipped.
func (e *Engine) ResolveDueTrades(ctx context.Context, now time.Time) (SweepResult, error) {
	nowMs := now.UnixMilli()

	due, err := e.trades.ListDue(ctx, nowMs)
	if err != nil {
		e.logger.Error("Failed to query due trades", zap.Error(err))
		return SweepResult{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	result := SweepResult{Examined: len(due)}
	if len(due) == 0 {
		return result, nil
	}
	e.logger.Info("Resolving due trades", zap.Int("count", len(due)), zap.Int64("now_ms", nowMs))

	for _, t := range due {
		if ctx.Err() != nil {
			// Every trade is its own transaction, so stopping here leaves nothing half-applied.
			e.logger.Warn("Sweep interrupted", zap.Int("remaining", len(due)-result.Resolved-result.Skipped-result.Failed))
			break
		}

		l := e.logger.With(zap.String("trade_id", t.ID), zap.String("account_id", t.AccountID))

		settled, err := e.resolveTrade(ctx, t.ID, nowMs, l)
		switch {
		case errors.Is(err, errClaimed):
			result.Skipped++
		case err != nil:
			result.Failed++
			l.Error("Failed to resolve trade", zap.Error(err))
		case settled == nil:
			result.Skipped++
		default:
			result.Resolved++
			if settled.CreditSkipped {
				result.CreditSkipped++
			}
		}
	}

	e.logger.Info("Sweep complete",
		zap.Int("examined", result.Examined),
		zap.Int("resolved", result.Resolved),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))
	return result, nil
}

// resolveTrade settles a single trade. It returns nil, nil when the trade was no
// longer pending by the time it was locked.
func (e *Engine) resolveTrade(ctx context.Context, tradeID string, nowMs int64, l *zap.Logger) (*models.Trade, error) {
	var settled *models.Trade

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		trade, err := e.trades.GetForUpdate(ctx, tx, tradeID)
		if err != nil {
			return err
		}
		if !trade.IsPending() {
			l.Debug("Trade already settled, skipping", zap.String("status", string(trade.Status)))
			return nil
		}

		v := e.model.draw(e.sampler, trade.AmountWagered, trade.EntryPrice)

		outcome := v.outcome
		trade.Outcome = &outcome
		trade.GainPercentage = decimal.NewNullDecimal(v.gainPercentage)
		trade.FinalAmount = decimal.NewNullDecimal(v.finalAmount)
		trade.SimulatedFinalPrice = decimal.NewNullDecimal(v.simulatedFinalPrice)
		trade.CurrentTradeValue = trade.FinalAmount
		trade.CurrentGainLossPercentage = trade.GainPercentage
		trade.ResolvedAtMs = &nowMs

		if _, err := e.accounts.Credit(ctx, tx, trade.AccountID, v.finalAmount, trade.ID, nowMs); err != nil {
			if !errors.Is(err, store.ErrAccountNotFound) {
				return fmt.Errorf("failed to credit account: %w", err)
			}
			// The trade still completes; the missing credit is left for manual reconciliation.
			l.Warn("Account missing at settlement, credit skipped",
				zap.String("final_amount", v.finalAmount.String()))
			trade.CreditSkipped = true
		}

		if err := e.trades.Complete(ctx, tx, trade); err != nil {
			if errors.Is(err, store.ErrTradeNotPending) {
				return errClaimed
			}
			return fmt.Errorf("failed to complete trade: %w", err)
		}

		settled = trade
		return nil
	})
	if err != nil {
		return nil, err
	}

	if settled != nil {
		l.Info("Trade resolved",
			zap.String("outcome", string(*settled.Outcome)),
			zap.String("gain_percentage", settled.GainPercentage.Decimal.String()),
			zap.String("final_amount", settled.FinalAmount.Decimal.String()))
	}
	return settled, nil
}

// GetTradesByAccount returns the account's trades, newest first.
func (e *Engine) GetTradesByAccount(ctx context.Context, accountID string) ([]models.Trade, error) {
	trades, err := e.trades.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades for account %s: %w", accountID, err)
	}
	return trades, nil
}

// GetTrade returns a single trade by id.
func (e *Engine) GetTrade(ctx context.Context, id string) (*models.Trade, error) {
	return e.trades.Get(ctx, id)
}

// GetAccount returns the account with its current balance.
func (e *Engine) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	return e.accounts.Get(ctx, id)
}

// LedgerEntries returns the balance journal of an account, oldest first.
func (e *Engine) LedgerEntries(ctx context.Context, accountID string) ([]models.LedgerEntry, error) {
	return e.accounts.Entries(ctx, accountID)
}
