package models

import (
	"github.com/shopspring/decimal"
)

// Direction is the user's bet on the price movement of the traded asset.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	return d == DirectionUp || d == DirectionDown
}

// TradeStatus is the lifecycle state of a trade.
type TradeStatus string

const (
	TradeStatusPending   TradeStatus = "pending"
	TradeStatusCompleted TradeStatus = "completed"
	// TradeStatusCancelled is part of the stored vocabulary but the engine never produces it.
	TradeStatusCancelled TradeStatus = "cancelled"
)

// TradeOutcome is the settled result of a trade.
type TradeOutcome string

const (
	OutcomeWin  TradeOutcome = "win"
	OutcomeLoss TradeOutcome = "loss"
	OutcomeDraw TradeOutcome = "draw"
)

// Trade is a single time-boxed wager on an asset.
//
// The asset fields are a snapshot taken at creation, not a reference to a live asset row.
// Settlement fields stay null until the trade moves to completed.
type Trade struct {
	ID          string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	AccountID   string `gorm:"type:varchar(64);not null;index:idx_trades_account_created,priority:1" json:"account_id"`
	AssetID     string `gorm:"type:varchar(64);not null" json:"asset_id"`
	AssetName   string `gorm:"type:varchar(128)" json:"asset_name"`
	AssetSymbol string `gorm:"type:varchar(32)" json:"asset_symbol"`

	Direction     Direction       `gorm:"type:varchar(8);not null" json:"direction"`
	AmountWagered decimal.Decimal `gorm:"type:varchar(64);not null" json:"amount_wagered"`
	EntryPrice    decimal.Decimal `gorm:"type:varchar(64);not null" json:"entry_price"`

	CreatedAtMs        int64 `gorm:"not null;index:idx_trades_account_created,priority:2" json:"created_at_ms"`
	DeliveryDeadlineMs int64 `gorm:"not null;index:idx_trades_status_deadline,priority:2" json:"delivery_deadline_ms"`

	Status  TradeStatus   `gorm:"type:varchar(16);not null;index:idx_trades_status_deadline,priority:1" json:"status"`
	Outcome *TradeOutcome `gorm:"type:varchar(8)" json:"outcome"`

	GainPercentage      decimal.NullDecimal `gorm:"type:varchar(64)" json:"gain_percentage"`
	FinalAmount         decimal.NullDecimal `gorm:"type:varchar(64)" json:"final_amount"`
	SimulatedFinalPrice decimal.NullDecimal `gorm:"type:varchar(64)" json:"simulated_final_price"`

	CurrentTradeValue         decimal.NullDecimal `gorm:"type:varchar(64)" json:"current_trade_value"`
	CurrentGainLossPercentage decimal.NullDecimal `gorm:"type:varchar(64)" json:"current_gain_loss_percentage"`

	ResolvedAtMs  *int64 `json:"resolved_at_ms"`
	CreditSkipped bool   `gorm:"not null;default:false" json:"credit_skipped"`
}

func (Trade) TableName() string {
	return "trades"
}

// IsPending reports whether the trade is still awaiting settlement.
func (t *Trade) IsPending() bool {
	return t.Status == TradeStatusPending
}
