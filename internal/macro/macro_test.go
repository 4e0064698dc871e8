package macro

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warroom-labs/warroom/internal/models"
)

func TestScoreNeutral(t *testing.T) {
	m := &models.MacroIndicators{
		YieldCurveSpread:  0.5,
		FedFundsRate:      4.5,
		UnemploymentRate:  4.2,
		M2GrowthYoY:       3,
		HighYieldOASBps:   400,
		ConsumerSentiment: 75,
	}
	Score(m)
	assert.InDelta(t, 50, m.MacroScore, 1e-9)
	assert.Zero(t, m.DefconModifier)
	assert.Empty(t, m.BearishSignals)
}

func TestScoreStressed(t *testing.T) {
	m := &models.MacroIndicators{
		YieldCurveSpread:  -0.8, // -15
		FedFundsRate:      5.5,  // -5
		UnemploymentRate:  5.6,  // -10
		M2GrowthYoY:       -1.2, // -10
		HighYieldOASBps:   620,  // -15
		ConsumerSentiment: 58,   // -10
	}
	Score(m)
	assert.InDelta(t, 0, m.MacroScore, 1e-9) // 50-65 clamped
	assert.InDelta(t, -1.0, m.DefconModifier, 1e-9)
	assert.Len(t, m.BearishSignals, 6)
	assert.Empty(t, m.BullishSignals)
}

func TestScoreHealthy(t *testing.T) {
	m := &models.MacroIndicators{
		YieldCurveSpread:  1.4, // +5
		FedFundsRate:      3.0,
		UnemploymentRate:  3.6, // +5
		M2GrowthYoY:       7,   // +5
		HighYieldOASBps:   300, // +5
		ConsumerSentiment: 92,  // +5
	}
	Score(m)
	assert.InDelta(t, 75, m.MacroScore, 1e-9)
	assert.InDelta(t, 0.5, m.DefconModifier, 1e-9)
	assert.Len(t, m.BullishSignals, 5)
}

func TestModifierBands(t *testing.T) {
	assert.InDelta(t, -1.0, modifier(29.9), 1e-9)
	assert.InDelta(t, -0.5, modifier(30), 1e-9)
	assert.InDelta(t, -0.5, modifier(39.9), 1e-9)
	assert.InDelta(t, 0, modifier(40), 1e-9)
	assert.InDelta(t, 0, modifier(70), 1e-9)
	assert.InDelta(t, 0.5, modifier(70.1), 1e-9)
}

func TestScoreIgnoresMissingSeries(t *testing.T) {
	// Zero values from failed fetches must not count as bearish.
	m := &models.MacroIndicators{}
	Score(m)
	assert.InDelta(t, 50, m.MacroScore, 1e-9)
	assert.Empty(t, m.BearishSignals)
}
