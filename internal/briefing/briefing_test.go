package briefing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warroom-labs/warroom/internal/llm"
	"github.com/warroom-labs/warroom/internal/models"
	"github.com/warroom-labs/warroom/internal/store"
)

var testNow = time.Date(2026, 3, 2, 16, 45, 0, 0, time.UTC)

type fakeGateway struct {
	text       string
	err        error
	lastTier   string
	lastPrompt string
}

func (f *fakeGateway) Generate(_ context.Context, tier, _, prompt string) (*llm.Response, error) {
	f.lastTier = tier
	f.lastPrompt = prompt
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Text: f.text, Tier: tier, TokensIn: 900, TokensOut: 300}, nil
}

func newTestService(t *testing.T, gw Gateway) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st, gw, func() time.Time { return testNow }), st
}

const dailyText = `{
	"market_regime": "risk-off", "regime_confidence": 0.7,
	"headline": "Credit stress builds into the close",
	"key_themes": ["credit spreads widening"], "risks": ["HY refinancing wall"],
	"opportunities": ["quality at a discount"],
	"watchlist_tomorrow": [
		{"ticker": "GLD", "reason": "haven bid", "confidence": 0.8},
		{"ticker": "xle", "reason": "energy hedge", "confidence": 0.6}
	],
	"defcon_forecast": 3
}`

func TestRunDailyPersistsAndEnqueues(t *testing.T) {
	gw := &fakeGateway{text: dailyText}
	svc, st := newTestService(t, gw)
	ctx := context.Background()

	b, err := svc.RunDaily(ctx)
	require.NoError(t, err)
	assert.Equal(t, llm.TierReasoning, gw.lastTier)
	assert.Equal(t, "risk-off", b.MarketRegime)
	assert.Equal(t, 3, b.DefconForecast)

	stored, err := st.Briefings.ForDate(ctx, "2026-03-02", TierDaily)
	require.NoError(t, err)
	assert.Equal(t, "Credit stress builds into the close", stored.Headline)
	require.Len(t, stored.Watchlist, 2)

	pending, err := st.Watchlist.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	for _, e := range pending {
		assert.Equal(t, models.SourceDailyBriefing, e.Source)
	}
	entry, err := st.Watchlist.LatestForTicker(ctx, "XLE")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, entry.ModelConfidence, 1e-9, "tickers normalize to upper case")
}

func TestRunDailySkipsActiveTickers(t *testing.T) {
	svc, st := newTestService(t, &fakeGateway{text: dailyText})
	ctx := context.Background()

	_, err := st.Watchlist.Add(ctx, &models.WatchlistEntry{
		Ticker: "GLD", DateAdded: "2026-03-01", Source: models.SourceManual,
		Status: models.WatchPending,
	})
	require.NoError(t, err)

	_, err = svc.RunDaily(ctx)
	require.NoError(t, err)

	var n int
	require.NoError(t, st.DB().Get(&n,
		"SELECT COUNT(*) FROM acquisition_watchlist WHERE ticker = 'GLD'"))
	assert.Equal(t, 1, n, "already-active ticker is not re-queued")
}

func TestRunDailyRerunReplacesRow(t *testing.T) {
	svc, st := newTestService(t, &fakeGateway{text: dailyText})
	ctx := context.Background()

	_, err := svc.RunDaily(ctx)
	require.NoError(t, err)
	assert.True(t, svc.RanToday(ctx, TierDaily))
	_, err = svc.RunDaily(ctx)
	require.NoError(t, err)

	var n int
	require.NoError(t, st.DB().Get(&n,
		"SELECT COUNT(*) FROM daily_briefings WHERE tier = 'reasoning'"))
	assert.Equal(t, 1, n)
}

func TestDailyPromptIncludesAnalysesAndClusters(t *testing.T) {
	gw := &fakeGateway{text: dailyText}
	svc, st := newTestService(t, gw)
	ctx := context.Background()

	sigID, err := st.News.InsertSignal(ctx, &models.NewsSignal{
		Timestamp: testNow, NewsScore: 62, SentimentSummary: "bearish tilt",
	})
	require.NoError(t, err)
	_, err = st.News.InsertAnalysis(ctx, &models.LLMAnalysis{
		NewsSignalID: sigID, Tier: "reasoning", ModelID: "gemini-2.5-pro",
		TriggerKind: "elevated", RecommendedAction: "hedge duration",
		EnhancedConfidence: 72, HiddenRisks: "credit contagion", Disagreement: true,
	})
	require.NoError(t, err)
	_, err = st.Congress.InsertCluster(ctx, &models.ClusterSignal{
		Ticker: "LMT", BuyCount: 4, Politicians: []string{"A", "B", "C", "D"},
		TotalAmount: 120000, SignalStrength: 85,
	})
	require.NoError(t, err)

	_, err = svc.RunDaily(ctx)
	require.NoError(t, err)

	assert.Contains(t, gw.lastPrompt, "Model reads on the latest signal")
	assert.Contains(t, gw.lastPrompt, "hedge duration")
	assert.Contains(t, gw.lastPrompt, "DISAGREEMENT flagged")
	assert.Contains(t, gw.lastPrompt, "credit contagion")
	assert.Contains(t, gw.lastPrompt, "Congressional clusters today")
	assert.Contains(t, gw.lastPrompt, "LMT: 4 buyers")
}

func TestRunDailyUnparseable(t *testing.T) {
	svc, _ := newTestService(t, &fakeGateway{text: "markets were mixed today"})
	_, err := svc.RunDaily(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unparseable")
}

func TestRunFlashStoresGaps(t *testing.T) {
	gw := &fakeGateway{text: "DEFCON 3 into the open.\nVIX elevated at 28.\nWatch credit ETFs.\nGAPS: no news signal yet; macro stale"}
	svc, st := newTestService(t, gw)

	b, err := svc.RunFlash(context.Background(), TierMorningFlash)
	require.NoError(t, err)
	assert.Equal(t, llm.TierFast, gw.lastTier)
	assert.NotContains(t, b.Headline, "GAPS:")
	assert.Equal(t, []string{"no news signal yet", "macro stale"}, b.DataGaps)

	stored, err := st.Briefings.ForDate(context.Background(), "2026-03-02", TierMorningFlash)
	require.NoError(t, err)
	assert.Equal(t, b.Headline, stored.Headline)
	assert.Equal(t, b.DataGaps, stored.DataGaps)
}

func TestRunFlashRejectsUnknownTier(t *testing.T) {
	svc, _ := newTestService(t, &fakeGateway{text: "hi"})
	_, err := svc.RunFlash(context.Background(), "evening_flash")
	assert.Error(t, err)
}

func TestRunFlashGatewayError(t *testing.T) {
	svc, _ := newTestService(t, &fakeGateway{err: fmt.Errorf("quota")})
	_, err := svc.RunFlash(context.Background(), TierMiddayFlash)
	assert.Error(t, err)
}

func TestSplitGaps(t *testing.T) {
	text, gaps := SplitGaps("line one\nline two\nGAPS: a; b ;")
	assert.Equal(t, "line one\nline two", text)
	assert.Equal(t, []string{"a", "b"}, gaps)

	text, gaps = SplitGaps("no gaps here")
	assert.Equal(t, "no gaps here", text)
	assert.Empty(t, gaps)
}
