package settlement

import (
	"math/rand"

	"trade-settlement-go/internal/config"
	"trade-settlement-go/internal/models"

	"github.com/shopspring/decimal"
)

// fractionPlaces bounds the precision of a sampled profit or loss fraction.
const fractionPlaces = 8

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Sampler yields uniform values in [0, 1).
type Sampler interface {
	Float64() float64
}

type randSampler struct{}

func (randSampler) Float64() float64 { return rand.Float64() }

// outcomeModel is the configured win/loss distribution.
type outcomeModel struct {
	winProbability float64
	minProfit      decimal.Decimal
	maxProfit      decimal.Decimal
	minLoss        decimal.Decimal
	maxLoss        decimal.Decimal
}

func newOutcomeModel(cfg config.Settlement) outcomeModel {
	return outcomeModel{
		winProbability: cfg.WinProbability,
		minProfit:      decimal.NewFromFloat(cfg.MinProfit),
		maxProfit:      decimal.NewFromFloat(cfg.MaxProfit),
		minLoss:        decimal.NewFromFloat(cfg.MinLoss),
		maxLoss:        decimal.NewFromFloat(cfg.MaxLoss),
	}
}

// settlementValues are the figures written onto a trade when it completes.
type settlementValues struct {
	outcome             models.TradeOutcome
	fraction            decimal.Decimal
	gainPercentage      decimal.Decimal
	finalAmount         decimal.Decimal
	simulatedFinalPrice decimal.Decimal
}

// draw samples one outcome for a wager. The trade direction is deliberately not an
// input: the simulated price move is independent of the user's bet.
func (m outcomeModel) draw(s Sampler, wager, entryPrice decimal.Decimal) settlementValues {
	if s.Float64() < m.winProbability {
		f := uniform(s, m.minProfit, m.maxProfit)
		return settlementValues{
			outcome:             models.OutcomeWin,
			fraction:            f,
			gainPercentage:      f.Mul(hundred),
			finalAmount:         wager.Mul(one.Add(f)),
			simulatedFinalPrice: entryPrice.Mul(one.Add(f)),
		}
	}

	f := uniform(s, m.minLoss, m.maxLoss)
	return settlementValues{
		outcome:             models.OutcomeLoss,
		fraction:            f,
		gainPercentage:      f.Mul(hundred).Neg(),
		finalAmount:         wager.Mul(one.Sub(f)),
		simulatedFinalPrice: entryPrice.Mul(one.Sub(f)),
	}
}

// uniform maps one sample onto [lo, hi].
func uniform(s Sampler, lo, hi decimal.Decimal) decimal.Decimal {
	u := decimal.NewFromFloat(s.Float64())
	v := lo.Add(hi.Sub(lo).Mul(u)).Round(fractionPlaces)
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}
