package news

import (
	"time"

	"github.com/warroom-labs/warroom/internal/dedup"
	"github.com/warroom-labs/warroom/internal/defcon"
	"github.com/warroom-labs/warroom/internal/models"
)

// staleWindow: a prior signal older than this makes every current article
// "potentially new".
const staleWindow = 60 * time.Minute

// BuildSignal runs a raw batch through dedup, lexical scoring, and the
// composite formula, producing the signal row for this cycle. An empty
// batch yields the empty-signal variant so the timeline stays continuous.
func BuildSignal(d *dedup.Deduplicator, raw []models.Article, now time.Time) *models.NewsSignal {
	kept := d.Deduplicate(raw).Kept

	scored := make([]models.ScoredArticle, 0, len(kept))
	for _, a := range kept {
		scored = append(scored, ScoreArticle(a, now))
	}

	hits := KeywordHits(scored)
	score, components := ComputeScore(scored, hits)
	crisis, _ := DominantCrisis(scored)

	breaking := 0
	var confSum float64
	bearishLead := false
	{
		var bear, bull int
		for _, a := range scored {
			if a.Urgency == models.UrgencyBreaking {
				breaking++
			}
			confSum += a.Confidence
			switch a.Sentiment {
			case models.SentimentBearish:
				bear++
			case models.SentimentBullish:
				bull++
			}
		}
		bearishLead = bear > bull
	}
	avgConf := 0.0
	if len(scored) > 0 {
		avgConf = confSum / float64(len(scored))
	}

	sig := &models.NewsSignal{
		Timestamp:          now.UTC(),
		NewsScore:          score,
		DominantCrisisType: crisis,
		CrisisDescription:  crisis.Label(),
		ArticleCount:       len(scored),
		BreakingCount:      breaking,
		AvgConfidence:      avgConf,
		SentimentSummary:   SentimentSummary(scored),
		Components:         components,
		KeywordHits:        hits,
		Articles:           scored,
	}

	if rec := defcon.RecommendOverride(score, breaking, bearishLead); rec != 0 {
		sig.BreakingNewsOverride = true
		sig.RecommendedDefcon = &rec
	}
	return sig
}

// DetectNew computes the articles in current that were not present in the
// prior signal's URL set. With no prior signal, or a prior older than the
// stale window, everything counts as new.
func DetectNew(prior *models.NewsSignal, current []models.ScoredArticle, now time.Time) []models.ScoredArticle {
	if prior == nil || now.Sub(prior.Timestamp) > staleWindow {
		return current
	}
	seen := make(map[string]struct{}, len(prior.Articles))
	for _, a := range prior.Articles {
		seen[a.URL] = struct{}{}
	}
	var fresh []models.ScoredArticle
	for _, a := range current {
		if _, ok := seen[a.URL]; !ok {
			fresh = append(fresh, a)
		}
	}
	return fresh
}

// Gate decides which LLM tiers run this cycle.
type Gate struct {
	Fast      bool
	Reasoning bool
}

// EvaluateGate applies the cost gate: fast tier needs new content, a
// breaking flag, or a level change; reasoning additionally needs an
// elevated score, multiple breaking items, or the level change.
func EvaluateGate(sig *models.NewsSignal, newCount int, defconChanged bool) Gate {
	fast := newCount > 0 || sig.BreakingNewsOverride || defconChanged
	if !fast {
		return Gate{}
	}
	reasoning := sig.NewsScore >= 40 || sig.BreakingCount >= 2 || defconChanged
	return Gate{Fast: true, Reasoning: reasoning}
}
