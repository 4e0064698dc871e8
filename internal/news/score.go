package news

import (
	"fmt"
	"math"

	"github.com/warroom-labs/warroom/internal/models"
)

// Component weights. The persisted components are the unweighted 0-100
// sub-scores; the news score is their weighted sum rounded to 2 decimals.
const (
	weightSentiment     = 0.35
	weightConcentration = 0.25
	weightUrgency       = 0.20
	weightConfidence    = 0.15
	weightKeyword       = 0.05
)

// ComputeScore produces the composite news score and its components for a
// scored batch. An empty batch scores zero across the board.
func ComputeScore(articles []models.ScoredArticle, keywordHits map[string]int) (float64, models.ScoreComponents) {
	if len(articles) == 0 {
		return 0, models.ScoreComponents{}
	}

	comp := models.ScoreComponents{
		SentimentNet:  sentimentNet(articles),
		Concentration: concentration(articles),
		Urgency:       urgencyPremium(articles),
		Confidence:    weightedConfidence(articles),
		Keyword:       keywordScore(keywordHits),
	}
	score := comp.SentimentNet*weightSentiment +
		comp.Concentration*weightConcentration +
		comp.Urgency*weightUrgency +
		comp.Confidence*weightConfidence +
		comp.Keyword*weightKeyword
	return round2(score), comp
}

// sentimentNet is the source-weighted bearish-minus-bullish balance mapped
// to 0-100, 50 = neutral.
func sentimentNet(articles []models.ScoredArticle) float64 {
	var net, total float64
	for _, a := range articles {
		w := sourceTier(a.Source)
		total += w
		switch a.Sentiment {
		case models.SentimentBearish:
			net += w
		case models.SentimentBullish:
			net -= w
		}
	}
	if total == 0 {
		return 0
	}
	return clamp100(50 + net/total*50)
}

// concentration maps the dominant-crisis share from [0.2, 0.8] onto
// [0, 100].
func concentration(articles []models.ScoredArticle) float64 {
	counts := map[models.CrisisType]int{}
	for _, a := range articles {
		counts[a.CrisisType]++
	}
	max := 0
	for _, n := range counts {
		if n > max {
			max = n
		}
	}
	share := float64(max) / float64(len(articles))
	return clamp100((share - 0.2) / 0.6 * 100)
}

// urgencyPremium: breaking count >= 3 maxes out; otherwise 30 per breaking
// plus 5 per high, capped at 80.
func urgencyPremium(articles []models.ScoredArticle) float64 {
	breaking, high := 0, 0
	for _, a := range articles {
		switch a.Urgency {
		case models.UrgencyBreaking:
			breaking++
		case models.UrgencyHigh:
			high++
		}
	}
	if breaking >= 3 {
		return 100
	}
	return math.Min(80, float64(30*breaking+5*high))
}

// weightedConfidence averages per-article confidence, source-weighted,
// counting only articles with confidence > 20.
func weightedConfidence(articles []models.ScoredArticle) float64 {
	var sum, total float64
	for _, a := range articles {
		if a.Confidence <= 20 {
			continue
		}
		w := sourceTier(a.Source)
		sum += a.Confidence * w
		total += w
	}
	if total == 0 {
		return 0
	}
	return clamp100(sum / total)
}

// keywordScore: 20 per high-specificity hit, 5 per medium, capped at 100.
func keywordScore(hits map[string]int) float64 {
	score := 0.0
	for term, n := range hits {
		if isHighSpecificity(term) {
			score += float64(20 * n)
		} else {
			score += float64(5 * n)
		}
	}
	return math.Min(100, score)
}

// DominantCrisis returns the most common crisis category and its share.
func DominantCrisis(articles []models.ScoredArticle) (models.CrisisType, float64) {
	if len(articles) == 0 {
		return models.CrisisMarketCorrection, 0
	}
	counts := map[models.CrisisType]int{}
	for _, a := range articles {
		counts[a.CrisisType]++
	}
	best := models.CrisisMarketCorrection
	bestN := 0
	for _, ct := range []models.CrisisType{
		models.CrisisTechCrash, models.CrisisGeopolitical, models.CrisisLiquidityCredit,
		models.CrisisInflationRate, models.CrisisPandemicHealth,
		models.CrisisEnergyCommodity, models.CrisisMarketCorrection,
	} {
		if counts[ct] > bestN {
			best, bestN = ct, counts[ct]
		}
	}
	return best, float64(bestN) / float64(len(articles))
}

// SentimentSummary renders the "N bearish / N bullish / N neutral" line.
func SentimentSummary(articles []models.ScoredArticle) string {
	var bear, bull, neutral int
	for _, a := range articles {
		switch a.Sentiment {
		case models.SentimentBearish:
			bear++
		case models.SentimentBullish:
			bull++
		default:
			neutral++
		}
	}
	return fmt.Sprintf("%d bearish / %d bullish / %d neutral", bear, bull, neutral)
}

func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
