package news

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warroom-labs/warroom/internal/dedup"
	"github.com/warroom-labs/warroom/internal/models"
)

var testNow = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

func bearishArticle(title, url string) models.Article {
	return models.Article{
		Title:       title,
		Source:      "Reuters",
		URL:         url,
		PublishedAt: testNow.Add(-30 * time.Minute),
	}
}

func TestScoreArticleBearishBreaking(t *testing.T) {
	a := ScoreArticle(models.Article{
		Title:       "BREAKING: markets plunge as bank run spreads, trading halted",
		Source:      "Reuters",
		PublishedAt: testNow.Add(-10 * time.Minute),
	}, testNow)
	assert.Equal(t, models.SentimentBearish, a.Sentiment)
	assert.Equal(t, models.UrgencyBreaking, a.Urgency)
	assert.Equal(t, models.CrisisLiquidityCredit, a.CrisisType)
	assert.Greater(t, a.Confidence, 20.0)
}

func TestScoreArticleBullishRoutine(t *testing.T) {
	a := ScoreArticle(models.Article{
		Title:       "Stocks extend rally on strong earnings and rate cut optimism",
		Source:      "Unknown Blog",
		PublishedAt: testNow.Add(-6 * time.Hour),
	}, testNow)
	assert.Equal(t, models.SentimentBullish, a.Sentiment)
	assert.Equal(t, models.UrgencyRoutine, a.Urgency)
}

func TestSourceTierWeights(t *testing.T) {
	assert.InDelta(t, 1.0, sourceTier("Reuters Business"), 1e-9)
	assert.InDelta(t, 0.8, sourceTier("CNBC Markets"), 1e-9)
	assert.InDelta(t, 0.6, sourceTier("Seeking Alpha"), 1e-9)
	assert.InDelta(t, 0.4, sourceTier("some blog"), 1e-9)
}

func TestComputeScoreEmptyBatch(t *testing.T) {
	score, comp := ComputeScore(nil, nil)
	assert.Zero(t, score)
	assert.Zero(t, comp.SentimentNet)
}

func TestComputeScoreWeightsSum(t *testing.T) {
	articles := []models.ScoredArticle{
		{Article: models.Article{Source: "Reuters"}, Sentiment: models.SentimentBearish, Urgency: models.UrgencyBreaking, Confidence: 80, CrisisType: models.CrisisLiquidityCredit},
		{Article: models.Article{Source: "Bloomberg"}, Sentiment: models.SentimentBearish, Urgency: models.UrgencyHigh, Confidence: 70, CrisisType: models.CrisisLiquidityCredit},
		{Article: models.Article{Source: "blog"}, Sentiment: models.SentimentNeutral, Urgency: models.UrgencyRoutine, Confidence: 10, CrisisType: models.CrisisMarketCorrection},
	}
	hits := map[string]int{"bank run": 1, "selloff": 2}
	score, comp := ComputeScore(articles, hits)

	expected := comp.SentimentNet*0.35 + comp.Concentration*0.25 +
		comp.Urgency*0.20 + comp.Confidence*0.15 + comp.Keyword*0.05
	assert.InDelta(t, expected, score, 0.05)
}

func TestUrgencyPremium(t *testing.T) {
	mk := func(breaking, high, routine int) []models.ScoredArticle {
		var out []models.ScoredArticle
		for i := 0; i < breaking; i++ {
			out = append(out, models.ScoredArticle{Urgency: models.UrgencyBreaking})
		}
		for i := 0; i < high; i++ {
			out = append(out, models.ScoredArticle{Urgency: models.UrgencyHigh})
		}
		for i := 0; i < routine; i++ {
			out = append(out, models.ScoredArticle{Urgency: models.UrgencyRoutine})
		}
		return out
	}
	assert.InDelta(t, 100, urgencyPremium(mk(3, 0, 0)), 1e-9)
	assert.InDelta(t, 65, urgencyPremium(mk(2, 1, 0)), 1e-9)
	assert.InDelta(t, 80, urgencyPremium(mk(2, 5, 0)), 1e-9) // 60+25 capped
	assert.InDelta(t, 0, urgencyPremium(mk(0, 0, 4)), 1e-9)
}

func TestKeywordScoreCaps(t *testing.T) {
	assert.InDelta(t, 25, keywordScore(map[string]int{"bank run": 1, "selloff": 1}), 1e-9)
	assert.InDelta(t, 100, keywordScore(map[string]int{"bank run": 10}), 1e-9)
}

func TestConcentrationMapping(t *testing.T) {
	mk := func(dominant, other int) []models.ScoredArticle {
		var out []models.ScoredArticle
		for i := 0; i < dominant; i++ {
			out = append(out, models.ScoredArticle{CrisisType: models.CrisisTechCrash})
		}
		for i := 0; i < other; i++ {
			out = append(out, models.ScoredArticle{CrisisType: models.CrisisEnergyCommodity})
		}
		return out
	}
	// Share 0.2 maps to 0, share 0.8 maps to 100, share 0.5 maps to 50.
	assert.InDelta(t, 0, concentration(mk(1, 4)), 1e-9)
	assert.InDelta(t, 100, concentration(mk(4, 1)), 1e-9)
	assert.InDelta(t, 50, concentration(mk(1, 1)), 1e-9)
}

func TestBuildSignalOverrideRecommendation(t *testing.T) {
	d := dedup.New(0.6, dedup.KeepFirst)
	raw := []models.Article{}
	// Enough breaking bearish crisis coverage to push the score over 90.
	titles := []string{
		"BREAKING: bank run spreads to regional lenders, trading halted on circuit breaker",
		"BREAKING: emergency meeting called as liquidity crisis deepens and contagion fears mount",
		"BREAKING: margin call wave forces liquidation, panic selloff accelerates across banks",
		"URGENT: credit crunch hits lending markets, default risk surges amid bank crisis",
		"ALERT: deposit flight triggers insolvency fears at major bank, bailout talks begin",
	}
	for i, title := range titles {
		a := bearishArticle(title, "https://example.com/"+string(rune('a'+i)))
		a.PublishedAt = testNow.Add(-15 * time.Minute)
		raw = append(raw, a)
	}
	sig := BuildSignal(d, raw, testNow)

	require.NotNil(t, sig)
	assert.Equal(t, models.CrisisLiquidityCredit, sig.DominantCrisisType)
	assert.GreaterOrEqual(t, sig.BreakingCount, 3)
	if sig.NewsScore >= 90 {
		assert.True(t, sig.BreakingNewsOverride)
		require.NotNil(t, sig.RecommendedDefcon)
		assert.Equal(t, models.DefconExecute, *sig.RecommendedDefcon)
	} else if sig.NewsScore >= 80 {
		assert.True(t, sig.BreakingNewsOverride)
	}
}

func TestBuildSignalEmptyBatch(t *testing.T) {
	d := dedup.New(0.6, dedup.KeepFirst)
	sig := BuildSignal(d, nil, testNow)
	require.NotNil(t, sig)
	assert.Zero(t, sig.NewsScore)
	assert.Zero(t, sig.ArticleCount)
	assert.False(t, sig.BreakingNewsOverride)
}

func TestDetectNew(t *testing.T) {
	prior := &models.NewsSignal{
		Timestamp: testNow.Add(-5 * time.Minute),
		Articles: []models.ScoredArticle{
			{Article: models.Article{URL: "https://example.com/a"}},
			{Article: models.Article{URL: "https://example.com/b"}},
		},
	}
	current := []models.ScoredArticle{
		{Article: models.Article{URL: "https://example.com/b"}},
		{Article: models.Article{URL: "https://example.com/c"}},
	}
	fresh := DetectNew(prior, current, testNow)
	require.Len(t, fresh, 1)
	assert.Equal(t, "https://example.com/c", fresh[0].URL)
}

func TestDetectNewStalePrior(t *testing.T) {
	prior := &models.NewsSignal{
		Timestamp: testNow.Add(-61 * time.Minute),
		Articles:  []models.ScoredArticle{{Article: models.Article{URL: "https://example.com/a"}}},
	}
	current := []models.ScoredArticle{{Article: models.Article{URL: "https://example.com/a"}}}
	assert.Len(t, DetectNew(prior, current, testNow), 1)
}

func TestDetectNewNoPrior(t *testing.T) {
	current := []models.ScoredArticle{{Article: models.Article{URL: "https://example.com/a"}}}
	assert.Len(t, DetectNew(nil, current, testNow), 1)
}

func TestEvaluateGate(t *testing.T) {
	quiet := &models.NewsSignal{NewsScore: 10}
	assert.Equal(t, Gate{}, EvaluateGate(quiet, 0, false))

	// New content alone opens fast only.
	g := EvaluateGate(quiet, 2, false)
	assert.True(t, g.Fast)
	assert.False(t, g.Reasoning)

	// Elevated score opens reasoning.
	hot := &models.NewsSignal{NewsScore: 45}
	g = EvaluateGate(hot, 1, false)
	assert.True(t, g.Fast)
	assert.True(t, g.Reasoning)

	// Level change alone opens both.
	g = EvaluateGate(quiet, 0, true)
	assert.True(t, g.Fast)
	assert.True(t, g.Reasoning)

	// Two breaking items open reasoning.
	breaking := &models.NewsSignal{NewsScore: 10, BreakingCount: 2, BreakingNewsOverride: true}
	g = EvaluateGate(breaking, 0, false)
	assert.True(t, g.Fast)
	assert.True(t, g.Reasoning)
}

func TestMapAVFeed(t *testing.T) {
	feed := avNewsFeed{Feed: []avNewsItem{
		{Title: " Fed signals emergency cut ", URL: "https://example.com/av1",
			TimePublished: "20260310T133000", Summary: "Short summary.", Source: "CNBC"},
		{Title: "No source item", URL: "https://example.com/av2", TimePublished: "garbage"},
		{Title: ""},
	}}
	articles := mapAVFeed(feed)
	require.Len(t, articles, 2)
	assert.Equal(t, "Fed signals emergency cut", articles[0].Title)
	assert.Equal(t, "CNBC", articles[0].Source)
	assert.Equal(t, time.Date(2026, 3, 10, 13, 30, 0, 0, time.UTC), articles[0].PublishedAt)
	assert.Equal(t, "alphavantage", articles[1].Source)
	assert.True(t, articles[1].PublishedAt.IsZero())
}

func TestFetchAllSkipsAlphaVantageWithoutKey(t *testing.T) {
	f := NewFetcher(nil, nil, "")
	assert.Empty(t, f.avKey)
	f = NewFetcher(nil, nil, "demo")
	assert.Equal(t, "demo", f.avKey)
}

func TestParseRSS(t *testing.T) {
	body := []byte(`<?xml version="1.0"?>
<rss version="2.0"><channel><title>Test Wire</title>
<item><title>Markets slide</title><description>&lt;p&gt;Stocks fell sharply.&lt;/p&gt;</description>
<link>https://example.com/1</link><pubDate>Tue, 10 Mar 2026 13:00:00 +0000</pubDate></item>
<item><title></title></item>
</channel></rss>`)
	articles, err := parseRSS(body, "https://feed.example")
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "Markets slide", articles[0].Title)
	assert.Equal(t, "Stocks fell sharply.", articles[0].Description)
	assert.Equal(t, "Test Wire", articles[0].Source)
	assert.Equal(t, 2026, articles[0].PublishedAt.Year())
}
