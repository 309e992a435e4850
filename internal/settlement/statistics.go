package settlement

import (
	"context"
	"time"

	"trade-settlement-go/internal/models"

	"github.com/shopspring/decimal"
)

// StatsDetail holds calculated statistics for a given period.
type StatsDetail struct {
	TotalTrades int64           `json:"total_trades"`
	Wins        int64           `json:"wins"`
	Losses      int64           `json:"losses"`
	WinRate     float64         `json:"win_rate"`
	Wagered     decimal.Decimal `json:"wagered"`
	NetProfit   decimal.Decimal `json:"net_profit"`
}

func (d *StatsDetail) add(t *models.Trade) {
	d.TotalTrades++
	switch *t.Outcome {
	case models.OutcomeWin:
		d.Wins++
	case models.OutcomeLoss:
		d.Losses++
	}
	d.Wagered = d.Wagered.Add(t.AmountWagered)
	d.NetProfit = d.NetProfit.Add(t.FinalAmount.Decimal.Sub(t.AmountWagered))
}

func (d *StatsDetail) finish() {
	if d.TotalTrades > 0 {
		d.WinRate = float64(d.Wins) / float64(d.TotalTrades)
	}
}

// Statistics summarises an account's settled trades.
type Statistics struct {
	Since24h StatsDetail `json:"since_24h"`
	AllTime  StatsDetail `json:"all_time"`
	Pending  int64       `json:"pending"`
}

// Statistics calculates trading statistics for an account. Only completed trades count
// towards the totals; the 24h window is keyed on the settlement time.
func (e *Engine) Statistics(ctx context.Context, accountID string, now time.Time) (*Statistics, error) {
	if _, err := e.accounts.Get(ctx, accountID); err != nil {
		return nil, err
	}
	trades, err := e.GetTradesByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	since24hMs := now.Add(-24 * time.Hour).UnixMilli()
	stats := &Statistics{}
	for i := range trades {
		t := &trades[i]
		if t.IsPending() {
			stats.Pending++
			continue
		}
		if t.Status != models.TradeStatusCompleted || t.Outcome == nil {
			continue
		}

		stats.AllTime.add(t)
		if t.ResolvedAtMs != nil && *t.ResolvedAtMs >= since24hMs {
			stats.Since24h.add(t)
		}
	}
	stats.AllTime.finish()
	stats.Since24h.finish()
	return stats, nil
}
