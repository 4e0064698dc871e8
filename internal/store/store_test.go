package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warroom-labs/warroom/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.migrate())
	require.NoError(t, s.migrate())
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Snapshots.Latest(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	id, err := s.Snapshots.Insert(ctx, &models.SignalSnapshot{
		Timestamp:       time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC),
		DefconLevel:     models.DefconCrisis,
		CompositeScore:  61.5,
		BondYield:       4.8,
		VIX:             32.1,
		MarketChangePct: -5.2,
		NewsScore:       74,
		Degraded:        false,
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	got, err := s.Snapshots.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DefconCrisis, got.DefconLevel)
	assert.InDelta(t, 61.5, got.CompositeScore, 1e-9)
	assert.Equal(t, 2026, got.Timestamp.Year())
}

func TestNewsSignalRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := models.DefconPreBottom
	sig := &models.NewsSignal{
		Timestamp:            time.Now().UTC(),
		NewsScore:            83.25,
		DominantCrisisType:   models.CrisisLiquidityCredit,
		CrisisDescription:    "Liquidity/Credit Crisis",
		BreakingNewsOverride: true,
		RecommendedDefcon:    &rec,
		ArticleCount:         12,
		BreakingCount:        3,
		AvgConfidence:        71.2,
		SentimentSummary:     "9 bearish / 1 bullish / 2 neutral",
		Components:           models.ScoreComponents{SentimentNet: 30, Concentration: 20, Urgency: 20, Confidence: 10.5, Keyword: 2.75},
		KeywordHits:          map[string]int{"bank run": 2, "contagion": 1},
		Articles: []models.ScoredArticle{
			{
				Article:    models.Article{Title: "Regional bank halts withdrawals", URL: "https://example.com/a", Source: "wire"},
				Sentiment:  models.SentimentBearish,
				Urgency:    models.UrgencyBreaking,
				Confidence: 88,
				CrisisType: models.CrisisLiquidityCredit,
			},
		},
	}
	_, err := s.News.InsertSignal(ctx, sig)
	require.NoError(t, err)

	got, err := s.News.LatestSignal(ctx)
	require.NoError(t, err)
	require.NotNil(t, got.RecommendedDefcon)
	assert.Equal(t, models.DefconPreBottom, *got.RecommendedDefcon)
	assert.True(t, got.BreakingNewsOverride)
	assert.Equal(t, 2, got.KeywordHits["bank run"])
	require.Len(t, got.Articles, 1)
	assert.Equal(t, "https://example.com/a", got.Articles[0].URL)
	assert.InDelta(t, 30, got.Components.SentimentNet, 1e-9)
}

func TestLLMAnalysisAndCallLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sigID, err := s.News.InsertSignal(ctx, &models.NewsSignal{Timestamp: time.Now().UTC(), DominantCrisisType: models.CrisisMarketCorrection})
	require.NoError(t, err)

	_, err = s.News.InsertAnalysis(ctx, &models.LLMAnalysis{
		NewsSignalID:       sigID,
		Tier:               "reasoning",
		ModelID:            "gemini-2.5-pro",
		TriggerKind:        "breaking",
		EnhancedConfidence: 87,
	})
	require.NoError(t, err)

	analyses, err := s.News.AnalysesForSignal(ctx, sigID)
	require.NoError(t, err)
	require.Len(t, analyses, 1)
	assert.Equal(t, "reasoning", analyses[0].Tier)

	require.NoError(t, s.LLMCalls.Record(ctx, "gemini-2.5-pro", "reasoning", "news", 1200, 400, false))
	require.NoError(t, s.LLMCalls.Record(ctx, "gemini-2.5-pro", "reasoning", "analyst", 900, 300, false))

	n, err := s.LLMCalls.CountSince(ctx, "gemini-2.5-pro", time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.LLMCalls.CountSince(ctx, "gemini-2.5-flash", time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCongressDuplicateIgnored(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	trade := &models.CongressTrade{
		Chamber:         "senate",
		Politician:      "A. Example",
		Party:           "I",
		Ticker:          "LMT",
		Direction:       models.DirectionBuy,
		EstimatedAmount: 32500,
		DisclosureDate:  "2026-03-01",
		TransactionDate: "2026-02-20",
	}
	inserted, err := s.Congress.UpsertTrade(ctx, trade)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.Congress.UpsertTrade(ctx, trade)
	require.NoError(t, err)
	assert.False(t, inserted)

	buys, err := s.Congress.BuysSince(ctx, "2026-01-01")
	require.NoError(t, err)
	assert.Len(t, buys, 1)
}

func TestCongressClustersSince(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, c := range []models.ClusterSignal{
		{Ticker: "LMT", BuyCount: 4, Politicians: []string{"A", "B", "C", "D"}, TotalAmount: 120000, SignalStrength: 85},
		{Ticker: "RTX", BuyCount: 3, Politicians: []string{"A", "B", "C"}, TotalAmount: 60000, SignalStrength: 92},
	} {
		_, err := s.Congress.InsertCluster(ctx, &c)
		require.NoError(t, err)
	}

	clusters, err := s.Congress.ClustersSince(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	assert.Equal(t, "RTX", clusters[0].Ticker, "strongest signal first")
	assert.Equal(t, []string{"A", "B", "C"}, clusters[0].Politicians)

	clusters, err = s.Congress.ClustersSince(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, clusters)
}

func TestWatchlistLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Watchlist.Add(ctx, &models.WatchlistEntry{
		Ticker:          "NVDA",
		DateAdded:       "2026-03-09",
		Source:          models.SourceDailyBriefing,
		ModelConfidence: 0.8,
		Status:          models.WatchPending,
	})
	require.NoError(t, err)

	active, err := s.Watchlist.HasActive(ctx, "NVDA")
	require.NoError(t, err)
	assert.True(t, active)

	pending, err := s.Watchlist.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "NVDA", pending[0].Ticker)

	require.NoError(t, s.Watchlist.SetStatus(ctx, id, models.WatchResearched, ""))
	require.NoError(t, s.Watchlist.SetStatus(ctx, id, models.WatchConditionalSet, "plan #1"))

	got, err := s.Watchlist.ByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.WatchConditionalSet, got.Status)
	assert.Equal(t, "plan #1", got.Notes)

	pending, err = s.Watchlist.Pending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestResearchUpsertReplacesSameDay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	row := &models.ResearchRow{
		Ticker:       "NVDA",
		ResearchDate: "2026-03-10",
		CurrentPrice: 102.5,
		Status:       models.LibraryPartial,
		MarketRegime: "risk_off",
	}
	_, err := s.Research.Upsert(ctx, row)
	require.NoError(t, err)

	row.CurrentPrice = 104.0
	row.Status = models.LibraryReady
	_, err = s.Research.Upsert(ctx, row)
	require.NoError(t, err)

	got, err := s.Research.LatestForTicker(ctx, "NVDA")
	require.NoError(t, err)
	assert.InDelta(t, 104.0, got.CurrentPrice, 1e-9)
	assert.Equal(t, models.LibraryReady, got.Status)

	var n int
	require.NoError(t, s.DB().Get(&n, "SELECT COUNT(*) FROM stock_research_library"))
	assert.Equal(t, 1, n)
}

func TestConditionalRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Conditionals.Insert(ctx, &models.ConditionalEntry{
		Ticker:                 "NVDA",
		DateCreated:            "2026-03-10",
		EntryPriceTarget:       98.5,
		StopLoss:               92,
		TakeProfit1:            108,
		TakeProfit2:            115,
		PositionSizePct:        0.10,
		TimeHorizonDays:        30,
		EntryConditions:        []string{"pullback to 50dma", "volume > 20d avg"},
		InvalidationConditions: []string{"close below 90"},
		ThesisSummary:          "accumulation into product cycle",
		KeyRisks:               []string{"earnings miss"},
		WatchTag:               models.TagMeanReversion,
		ResearchConfidence:     0.78,
		Status:                 models.ConditionalActive,
	})
	require.NoError(t, err)

	got, err := s.Conditionals.ActiveForTicker(ctx, "NVDA")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, models.TagMeanReversion, got.WatchTag)
	assert.Equal(t, []string{"pullback to 50dma", "volume > 20d avg"}, got.EntryConditions)

	require.NoError(t, s.Conditionals.MarkVerified(ctx, id, "2026-03-11"))
	require.NoError(t, s.Conditionals.SetStatus(ctx, id, models.ConditionalInvalidated, "superseded"))

	_, err = s.Conditionals.ActiveForTicker(ctx, "NVDA")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTradeOpenClose(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Trades.Open(ctx, &models.TradeRecord{
		Ticker:           "GLD",
		EntryDate:        "2026-03-10",
		EntryTime:        "14:35:00",
		EntryPrice:       200,
		Shares:           25,
		CostBasis:        5000,
		EntrySignalScore: 72,
		DefconAtEntry:    models.DefconPreBottom,
	})
	require.NoError(t, err)

	n, err := s.Trades.CountOpenedOn(ctx, "2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.Trades.UpdateMark(ctx, id, 210, 250))

	open, err := s.Trades.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.InDelta(t, 210, open[0].CurrentPrice, 1e-9)

	trade := open[0]
	trade.ExitDate = "2026-03-12"
	trade.ExitTime = "10:00:00"
	trade.ExitPrice = 211
	trade.ExitReason = models.ExitProfitTarget
	trade.RealizedPnL = 275
	trade.RealizedPnLPct = 5.5
	trade.HoldingHours = 43.4
	require.NoError(t, s.Trades.Close(ctx, &trade))

	// Double-close must fail.
	assert.ErrorIs(t, s.Trades.Close(ctx, &trade), ErrNotFound)

	closed, err := s.Trades.ClosedSince(ctx, "2026-03-01")
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, models.ExitProfitTarget, closed[0].ExitReason)
}

func TestBriefingUpsertSameDateTier(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := &models.DailyBriefing{
		Date:         "2026-03-10",
		Tier:         "reasoning",
		MarketRegime: "risk_off",
		Headline:     "first pass",
		KeyThemes:    []string{"credit stress"},
		Watchlist:    []models.BriefingPick{{Ticker: "GLD", Reason: "flight to safety", Confidence: 0.8}},
	}
	_, err := s.Briefings.Upsert(ctx, b)
	require.NoError(t, err)

	b.Headline = "second pass"
	_, err = s.Briefings.Upsert(ctx, b)
	require.NoError(t, err)

	got, err := s.Briefings.ForDate(ctx, "2026-03-10", "reasoning")
	require.NoError(t, err)
	assert.Equal(t, "second pass", got.Headline)
	require.Len(t, got.Watchlist, 1)
	assert.Equal(t, "GLD", got.Watchlist[0].Ticker)

	var n int
	require.NoError(t, s.DB().Get(&n, "SELECT COUNT(*) FROM daily_briefings"))
	assert.Equal(t, 1, n)
}
