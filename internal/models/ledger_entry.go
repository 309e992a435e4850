package models

import "github.com/shopspring/decimal"

// LedgerEntryKind classifies a balance movement.
type LedgerEntryKind string

const (
	LedgerEntryWagerDebit       LedgerEntryKind = "wager_debit"
	LedgerEntrySettlementCredit LedgerEntryKind = "settlement_credit"
)

// LedgerEntry is an append-only record of one balance movement.
// It is written in the same transaction as the balance change it describes, so
// BalanceAfter of the latest entry always matches the account balance.
type LedgerEntry struct {
	ID            string          `gorm:"primaryKey;type:varchar(64)" json:"id"`
	AccountID     string          `gorm:"type:varchar(64);not null;index" json:"account_id"`
	TradeID       string          `gorm:"type:varchar(64);not null;index" json:"trade_id"`
	Kind          LedgerEntryKind `gorm:"type:varchar(32);not null" json:"kind"`
	Amount        decimal.Decimal `gorm:"type:varchar(64);not null" json:"amount"` // signed: negative for debits
	BalanceBefore decimal.Decimal `gorm:"type:varchar(64);not null" json:"balance_before"`
	BalanceAfter  decimal.Decimal `gorm:"type:varchar(64);not null" json:"balance_after"`
	CreatedAtMs   int64           `gorm:"not null" json:"created_at_ms"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}
