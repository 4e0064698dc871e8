package broker

import (
	"math"

	"github.com/warroom-labs/warroom/internal/config"
	"github.com/warroom-labs/warroom/internal/models"
)

// Crisis-package split across the three defensive sleeves.
const (
	crisisCoreWeight   = 0.50
	crisisHedgeWeight  = 0.30
	crisisOptionWeight = 0.20
)

// CrisisAsset is one sleeve of the escalation trade package.
type CrisisAsset struct {
	Ticker  string
	Weight  float64
	Dollars float64
	Role    string
}

// VIXScaledSize scales the base position size by calm-to-current VIX ratio
// and clamps to the configured band. High VIX shrinks size.
func VIXScaledSize(cfg config.BrokerConfig, vix float64) float64 {
	if vix <= 0 {
		return cfg.BasePositionSize
	}
	size := cfg.BasePositionSize * (20 / vix)
	return math.Min(cfg.MaxPositionSize, math.Max(cfg.MinPositionSize, size))
}

// CrisisPackage builds the defensive trade package for a DEFCON escalation,
// sized by current VIX and themed by the dominant crisis category.
func CrisisPackage(cfg config.BrokerConfig, vix float64, crisis models.CrisisType) []CrisisAsset {
	total := VIXScaledSize(cfg, vix)
	core, hedge := crisisCore(crisis)
	return []CrisisAsset{
		{Ticker: core, Weight: crisisCoreWeight, Dollars: total * crisisCoreWeight, Role: "core defensive"},
		{Ticker: hedge, Weight: crisisHedgeWeight, Dollars: total * crisisHedgeWeight, Role: "crisis hedge"},
		{Ticker: "SH", Weight: crisisOptionWeight, Dollars: total * crisisOptionWeight, Role: "inverse exposure"},
	}
}

// crisisCore picks the core and hedge tickers for the crisis theme.
func crisisCore(crisis models.CrisisType) (core, hedge string) {
	switch crisis {
	case models.CrisisInflationRate:
		return "GLD", "TIP"
	case models.CrisisLiquidityCredit:
		return "GLD", "SHY"
	case models.CrisisGeopolitical:
		return "GLD", "XLE"
	case models.CrisisEnergyCommodity:
		return "XLE", "GLD"
	case models.CrisisTechCrash:
		return "TLT", "GLD"
	case models.CrisisPandemicHealth:
		return "TLT", "XLV"
	default:
		return "GLD", "TLT"
	}
}

// ConditionalSize computes the dollar size for a triggered conditional:
// confidence-scaled plan percent, hard-capped, applied to available cash.
func ConditionalSize(availableCash, confidence, planPct, maxPct float64) float64 {
	pct := confidence * planPct
	if pct < 0 {
		pct = 0
	}
	if pct > maxPct {
		pct = maxPct
	}
	return availableCash * pct
}
