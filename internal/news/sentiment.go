package news

import (
	"strings"
	"time"

	"github.com/warroom-labs/warroom/internal/models"
)

// Token lists for the lexical sentiment pass. The LLM tiers refine this;
// the lexical read must stand alone when quota blocks every model call.
var bearishTokens = []string{
	"crash", "plunge", "collapse", "selloff", "sell-off", "panic", "crisis",
	"recession", "default", "contagion", "meltdown", "tumble", "slump",
	"bankruptcy", "insolvency", "layoffs", "downgrade", "bear market",
	"margin call", "liquidation", "bank run", "credit crunch", "stagflation",
	"capitulation", "rout", "freefall", "halted", "war", "invasion",
	"sanctions", "tariff", "embargo", "shutdown",
}

var bullishTokens = []string{
	"rally", "surge", "rebound", "recovery", "breakout", "record high",
	"beat expectations", "upgrade", "stimulus", "rate cut", "soft landing",
	"bull market", "optimism", "melt-up", "all-time high", "strong earnings",
	"buyback", "dovish",
}

var breakingTokens = []string{
	"breaking", "just in", "urgent", "alert", "developing",
	"emergency", "halted", "circuit breaker",
}

// High-specificity crisis terms are worth 20 keyword points each; medium
// terms are worth 5.
var highSpecificityTerms = []string{
	"bank run", "circuit breaker", "margin call", "credit crunch",
	"flash crash", "contagion", "sovereign default", "currency crisis",
	"liquidity crisis", "emergency meeting", "capital controls",
}

var mediumSpecificityTerms = []string{
	"volatility", "selloff", "correction", "recession", "inflation",
	"rate hike", "downgrade", "layoffs", "bankruptcy", "default",
	"tariff", "sanctions", "yield spike",
}

var crisisPatterns = map[models.CrisisType][]string{
	models.CrisisTechCrash: {
		"tech", "nasdaq", "semiconductor", "software", "ai bubble", "chip",
		"silicon valley", "startup",
	},
	models.CrisisGeopolitical: {
		"war", "invasion", "sanctions", "tariff", "trade war", "embargo",
		"military", "conflict", "geopolitical",
	},
	models.CrisisLiquidityCredit: {
		"bank", "credit", "liquidity", "default", "lending", "deposit",
		"insolvency", "bailout", "contagion",
	},
	models.CrisisInflationRate: {
		"inflation", "fed", "rate hike", "cpi", "hawkish", "yield",
		"treasury", "fomc", "powell",
	},
	models.CrisisPandemicHealth: {
		"pandemic", "virus", "outbreak", "lockdown", "quarantine", "vaccine",
		"who declares",
	},
	models.CrisisEnergyCommodity: {
		"oil", "crude", "opec", "gas", "energy", "pipeline", "commodity",
		"wheat", "supply shock",
	},
	models.CrisisMarketCorrection: {
		"correction", "selloff", "bear market", "drawdown", "capitulation",
		"s&p", "dow", "broad market",
	},
}

// sourceTier weights the sentiment contribution by source credibility.
func sourceTier(source string) float64 {
	s := strings.ToLower(source)
	switch {
	case containsAny(s, "reuters", "bloomberg", "wsj", "wall street journal", "financial times", "ft.com"):
		return 1.0
	case containsAny(s, "cnbc", "marketwatch", "yahoo finance", "barron", "forbes"):
		return 0.8
	case containsAny(s, "seeking alpha", "business insider", "investing.com", "benzinga"):
		return 0.6
	default:
		return 0.4
	}
}

// ScoreArticle runs the lexical pass on one article.
func ScoreArticle(a models.Article, now time.Time) models.ScoredArticle {
	text := strings.ToLower(a.Title + " " + a.Description)

	bearish := countHits(text, bearishTokens)
	bullish := countHits(text, bullishTokens)

	sentiment := models.SentimentNeutral
	if bearish > bullish {
		sentiment = models.SentimentBearish
	} else if bullish > bearish {
		sentiment = models.SentimentBullish
	}

	urgency := models.UrgencyRoutine
	if countHits(text, breakingTokens) > 0 && now.Sub(a.PublishedAt) < 2*time.Hour {
		urgency = models.UrgencyBreaking
	} else if countHits(text, breakingTokens) > 0 || now.Sub(a.PublishedAt) < time.Hour {
		urgency = models.UrgencyHigh
	}

	// Confidence grows with signal density and source credibility.
	density := float64(bearish+bullish) * 12
	if density > 60 {
		density = 60
	}
	confidence := (20 + density) * sourceTier(a.Source)
	if confidence > 100 {
		confidence = 100
	}

	return models.ScoredArticle{
		Article:    a,
		Sentiment:  sentiment,
		Urgency:    urgency,
		Confidence: confidence,
		CrisisType: classifyCrisis(text),
	}
}

// classifyCrisis picks the category with the most pattern hits,
// market_correction on a tie-less zero.
func classifyCrisis(text string) models.CrisisType {
	best := models.CrisisMarketCorrection
	bestHits := 0
	// Deterministic order.
	for _, ct := range []models.CrisisType{
		models.CrisisTechCrash, models.CrisisGeopolitical, models.CrisisLiquidityCredit,
		models.CrisisInflationRate, models.CrisisPandemicHealth,
		models.CrisisEnergyCommodity, models.CrisisMarketCorrection,
	} {
		if hits := countHits(text, crisisPatterns[ct]); hits > bestHits {
			best, bestHits = ct, hits
		}
	}
	return best
}

// KeywordHits counts curated crisis-term occurrences across a batch.
func KeywordHits(articles []models.ScoredArticle) map[string]int {
	hits := map[string]int{}
	for _, a := range articles {
		text := strings.ToLower(a.Title + " " + a.Description)
		for _, term := range highSpecificityTerms {
			if n := strings.Count(text, term); n > 0 {
				hits[term] += n
			}
		}
		for _, term := range mediumSpecificityTerms {
			if n := strings.Count(text, term); n > 0 {
				hits[term] += n
			}
		}
	}
	return hits
}

func countHits(text string, tokens []string) int {
	n := 0
	for _, tok := range tokens {
		if strings.Contains(text, tok) {
			n++
		}
	}
	return n
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func isHighSpecificity(term string) bool {
	for _, t := range highSpecificityTerms {
		if t == term {
			return true
		}
	}
	return false
}
