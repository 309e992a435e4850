package models

import "github.com/shopspring/decimal"

// Account holds a user's cash balance.
// Balance is written only by the settlement engine's debit and credit paths.
type Account struct {
	ID          string          `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Balance     decimal.Decimal `gorm:"type:varchar(64);not null" json:"balance"`
	Version     int64           `gorm:"not null;default:0" json:"-"`
	CreatedAtMs int64           `gorm:"not null" json:"created_at_ms"`
	UpdatedAtMs int64           `gorm:"not null" json:"updated_at_ms"`
}

func (Account) TableName() string {
	return "accounts"
}
