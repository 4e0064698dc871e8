package defcon

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warroom-labs/warroom/internal/models"
)

func TestScoreBondYield(t *testing.T) {
	assert.Zero(t, ScoreBondYield(3.9))
	assert.Zero(t, ScoreBondYield(4.0))
	assert.InDelta(t, 13, ScoreBondYield(4.8), 1e-9)
	assert.InDelta(t, 100, ScoreBondYield(14.0), 1e-9)
}

func TestScoreVIX(t *testing.T) {
	assert.Zero(t, ScoreVIX(24))
	assert.Zero(t, ScoreVIX(25))
	assert.InDelta(t, 24, ScoreVIX(27), 1e-9)
	assert.InDelta(t, 100, ScoreVIX(70), 1e-9)
}

func TestScoreDrawdown(t *testing.T) {
	assert.Zero(t, ScoreDrawdown(-3.9))
	assert.Zero(t, ScoreDrawdown(1.0))
	assert.InDelta(t, 25, ScoreDrawdown(-5), 1e-9)
	assert.InDelta(t, 100, ScoreDrawdown(-25), 1e-9)
}

func TestBaseLevels(t *testing.T) {
	cases := []struct {
		composite float64
		drop      float64
		want      models.DefconLevel
	}{
		{85, -5, models.DefconExecute},
		{85, -3, models.DefconPreBottom}, // composite >= 60 alone
		{50, -5, models.DefconPreBottom}, // drop alone
		{45, -1.5, models.DefconCrisis},
		{10, -2.5, models.DefconCrisis},
		{25, -0.5, models.DefconElevated},
		{5, -1.2, models.DefconElevated},
		{5, 0.5, models.DefconPeacetime},
	}
	for _, tc := range cases {
		got := baseLevel(tc.composite, tc.drop)
		assert.Equal(t, tc.want, got, "composite=%.0f drop=%.1f", tc.composite, tc.drop)
	}
}

func TestSoftNudgeClamped(t *testing.T) {
	// Base 3, macro -0.6 and flash forecast 1: both nudge down, clamp to -1.
	res := Evaluate(Input{
		Scores:          SignalScores{BondYieldSpike: 45, VIXSpike: 45, MarketDrawdown: 45},
		MarketChangePct: -1.5,
		MacroModifier:   -0.6,
		FlashForecast:   models.DefconExecute,
	})
	assert.Equal(t, models.DefconCrisis, res.Base)
	assert.Equal(t, -1, res.Nudge)
	assert.Equal(t, models.DefconPreBottom, res.Level)
}

func TestSoftNudgeThresholdNotRounding(t *testing.T) {
	// Exactly -0.5 nudges; -0.49 does not.
	assert.Equal(t, -1, softNudge(models.DefconCrisis, -0.5, 0))
	assert.Equal(t, 0, softNudge(models.DefconCrisis, -0.49, 0))
	assert.Equal(t, 1, softNudge(models.DefconCrisis, 0.5, 0))
	assert.Equal(t, 0, softNudge(models.DefconCrisis, 0.49, 0))
}

func TestFlashForecastMatchesBaseNoNudge(t *testing.T) {
	assert.Equal(t, 0, softNudge(models.DefconCrisis, 0, models.DefconCrisis))
}

func TestReasoningForceOverride(t *testing.T) {
	res := Evaluate(Input{
		Scores:    SignalScores{}, // peacetime base
		Reasoning: ReasoningInput{Exists: true, EnhancedConfidence: 85},
	})
	assert.Equal(t, models.DefconPreBottom, res.Level)
	assert.Equal(t, "reasoning_force", res.Override)
}

func TestReasoningCancelsNewsOverride(t *testing.T) {
	res := Evaluate(Input{
		Scores:          SignalScores{BondYieldSpike: 30, VIXSpike: 30, MarketDrawdown: 30},
		MarketChangePct: -1.5,
		MacroModifier:   -0.6, // would nudge down
		Reasoning:       ReasoningInput{Exists: true, ConfidenceAdjustment: -25},
		News:            NewsInput{BreakingOverride: true, RecommendedDefcon: models.DefconExecute},
	})
	// Cancel override returns base, discarding both nudge and news override.
	assert.Equal(t, res.Base, res.Level)
	assert.Equal(t, "reasoning_cancel", res.Override)
}

func TestBreakingNewsOverride(t *testing.T) {
	// Base 4 from composite 25, drop -1.5. News recommends 2.
	res := Evaluate(Input{
		Scores:          SignalScores{BondYieldSpike: 25, VIXSpike: 25, MarketDrawdown: 25},
		MarketChangePct: -1.5,
		News:            NewsInput{BreakingOverride: true, RecommendedDefcon: models.DefconPreBottom},
	})
	assert.Equal(t, models.DefconElevated, res.Base)
	assert.Equal(t, models.DefconPreBottom, res.Level)
	assert.Equal(t, "breaking_news", res.Override)
}

func TestNewsOverrideEqualToBaseIgnored(t *testing.T) {
	res := Evaluate(Input{
		Scores:          SignalScores{BondYieldSpike: 25, VIXSpike: 25, MarketDrawdown: 25},
		MarketChangePct: -1.5,
		News:            NewsInput{BreakingOverride: true, RecommendedDefcon: models.DefconElevated},
	})
	assert.Equal(t, models.DefconElevated, res.Level)
	assert.Empty(t, res.Override)
}

func TestEvaluateIsPure(t *testing.T) {
	in := Input{
		Scores:          SignalScores{BondYieldSpike: 60, VIXSpike: 70, MarketDrawdown: 50},
		MarketChangePct: -6,
		MacroModifier:   -0.5,
		News:            NewsInput{BreakingOverride: true, RecommendedDefcon: models.DefconExecute},
	}
	assert.Equal(t, Evaluate(in), Evaluate(in))
}

func TestRecommendOverride(t *testing.T) {
	assert.Equal(t, models.DefconExecute, RecommendOverride(92, 3, true))
	assert.Equal(t, models.DefconPreBottom, RecommendOverride(85, 1, true))
	assert.Equal(t, models.DefconLevel(0), RecommendOverride(92, 3, false))
	assert.Equal(t, models.DefconLevel(0), RecommendOverride(70, 5, true))
}
