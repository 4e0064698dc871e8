// Package defcon computes the composite alert level. The engine is pure:
// given the same inputs it always produces the same output, and it never
// touches the store or the network.
package defcon

import (
	"math"

	"github.com/warroom-labs/warroom/internal/models"
)

// SignalScores are the three raw 0-100 signal scores.
type SignalScores struct {
	BondYieldSpike float64
	VIXSpike       float64
	MarketDrawdown float64
}

// Composite is the mean of the three scores.
func (s SignalScores) Composite() float64 {
	return (s.BondYieldSpike + s.VIXSpike + s.MarketDrawdown) / 3
}

// ScoreBondYield maps the 10Y yield to a spike score. Quiet below 4%.
func ScoreBondYield(yield float64) float64 {
	if yield <= 4 {
		return 0
	}
	return math.Min(100, (yield-3.5)*10)
}

// ScoreVIX maps the volatility index to a spike score. Quiet below 25.
func ScoreVIX(vix float64) float64 {
	if vix <= 25 {
		return 0
	}
	return math.Min(100, (vix-15)*2)
}

// ScoreDrawdown maps the market day change (percent, negative = down) to a
// drawdown score. Quiet above -4%.
func ScoreDrawdown(changePct float64) float64 {
	if changePct >= -4 {
		return 0
	}
	return math.Min(100, math.Abs(changePct)*5)
}

// NewsInput is the slice of the news signal the engine reads.
type NewsInput struct {
	BreakingOverride  bool
	RecommendedDefcon models.DefconLevel // 0 = none
}

// ReasoningInput is the reasoning-tier analysis attached to the current
// news signal, if one exists.
type ReasoningInput struct {
	Exists               bool
	EnhancedConfidence   float64
	ConfidenceAdjustment float64
}

// Input is everything one evaluation needs.
type Input struct {
	Scores          SignalScores
	MarketChangePct float64
	MacroModifier   float64
	FlashForecast   models.DefconLevel // 0 = no flash briefing today
	News            NewsInput
	Reasoning       ReasoningInput
}

// Result explains how the level was reached.
type Result struct {
	Composite float64
	Base      models.DefconLevel
	Nudge     int
	Level     models.DefconLevel
	Override  string // "", "reasoning_force", "reasoning_cancel", "breaking_news"
}

// Evaluate runs base level, soft nudges, then hard overrides in priority
// order.
func Evaluate(in Input) Result {
	composite := in.Scores.Composite()
	base := baseLevel(composite, in.MarketChangePct)

	nudge := softNudge(base, in.MacroModifier, in.FlashForecast)
	level := (base + models.DefconLevel(nudge)).Clamp()

	res := Result{Composite: composite, Base: base, Nudge: nudge, Level: level}

	// Hard overrides, strictly in this order.
	if in.Reasoning.Exists && in.Reasoning.EnhancedConfidence >= 85 {
		res.Level = models.DefconPreBottom
		res.Override = "reasoning_force"
		return res
	}
	if in.Reasoning.Exists && in.Reasoning.ConfidenceAdjustment < -20 {
		res.Level = base
		res.Override = "reasoning_cancel"
		return res
	}
	if in.News.BreakingOverride && in.News.RecommendedDefcon.Valid() &&
		in.News.RecommendedDefcon < base {
		res.Level = in.News.RecommendedDefcon
		res.Override = "breaking_news"
		return res
	}
	return res
}

func baseLevel(composite, drop float64) models.DefconLevel {
	switch {
	case composite >= 80 && drop < -4:
		return models.DefconExecute
	case composite >= 60 || drop < -4:
		return models.DefconPreBottom
	case composite >= 40 || drop < -2:
		return models.DefconCrisis
	case composite >= 20 || drop < -1:
		return models.DefconElevated
	default:
		return models.DefconPeacetime
	}
}

// softNudge combines the macro and flash nudges, clamped to [-1, +1].
// Threshold comparison throughout; no rounding.
func softNudge(base models.DefconLevel, macroModifier float64, flash models.DefconLevel) int {
	nudge := 0
	if macroModifier <= -0.5 {
		nudge--
	} else if macroModifier >= 0.5 {
		nudge++
	}
	if flash.Valid() {
		if flash < base {
			nudge--
		} else if flash > base {
			nudge++
		}
	}
	if nudge < -1 {
		return -1
	}
	if nudge > 1 {
		return 1
	}
	return nudge
}

// RecommendOverride derives the news-side override recommendation from the
// news score, breaking count, and dominant sentiment. Returns 0 when no
// override is warranted. The override only takes effect downstream when the
// recommendation is below the base level.
func RecommendOverride(newsScore float64, breakingCount int, dominantBearish bool) models.DefconLevel {
	if !dominantBearish {
		return 0
	}
	if newsScore >= 90 && breakingCount >= 3 {
		return models.DefconExecute
	}
	if newsScore >= 80 {
		return models.DefconPreBottom
	}
	return 0
}
