package settlement

import (
	"testing"

	"trade-settlement-go/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestOutcomeModelDraw(t *testing.T) {
	model := newOutcomeModel(defaultSettlement)

	testCases := []struct {
		name         string
		samples      []float64
		wantOutcome  models.TradeOutcome
		wantFraction string
		wantFinal    string
		wantGain     string
		wantPrice    string
	}{
		{"win at range floor", []float64{0, 0}, models.OutcomeWin, "0.07", "107", "7", "214"},
		{"win mid range", []float64{0.5, 0.25}, models.OutcomeWin, "0.1", "110", "10", "220"},
		{"loss at range floor", []float64{0.85, 0}, models.OutcomeLoss, "0.01", "99", "-1", "198"},
		{"loss near ceiling", []float64{0.9999, 0.75}, models.OutcomeLoss, "0.04", "96", "-4", "192"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v := model.draw(newSeqSampler(tc.samples...), dec("100"), dec("200"))
			assert.Equal(t, tc.wantOutcome, v.outcome)
			assert.True(t, v.fraction.Equal(dec(tc.wantFraction)), "fraction %s", v.fraction)
			assert.True(t, v.finalAmount.Equal(dec(tc.wantFinal)), "final %s", v.finalAmount)
			assert.True(t, v.gainPercentage.Equal(dec(tc.wantGain)), "gain %s", v.gainPercentage)
			assert.True(t, v.simulatedFinalPrice.Equal(dec(tc.wantPrice)), "price %s", v.simulatedFinalPrice)
		})
	}
}

func TestUniformStaysInRange(t *testing.T) {
	lo, hi := dec("0.01"), dec("0.05")
	for _, u := range []float64{0, 0.123456789, 0.5, 0.999999999999} {
		v := uniform(newSeqSampler(u), lo, hi)
		assert.True(t, v.GreaterThanOrEqual(lo), "%s below range", v)
		assert.True(t, v.LessThanOrEqual(hi), "%s above range", v)
		assert.LessOrEqual(t, -v.Exponent(), int32(fractionPlaces))
	}
}

func TestOutcomeModel_AlwaysWinsOrLoses(t *testing.T) {
	always := defaultSettlement
	always.WinProbability = 1
	v := newOutcomeModel(always).draw(newSeqSampler(0.999999, 0.5), dec("10"), dec("1"))
	assert.Equal(t, models.OutcomeWin, v.outcome)

	never := defaultSettlement
	never.WinProbability = 0
	v = newOutcomeModel(never).draw(newSeqSampler(0, 0.5), dec("10"), dec("1"))
	assert.Equal(t, models.OutcomeLoss, v.outcome)
}
