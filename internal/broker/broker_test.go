package broker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warroom-labs/warroom/internal/config"
	"github.com/warroom-labs/warroom/internal/llm"
	"github.com/warroom-labs/warroom/internal/marketdata"
	"github.com/warroom-labs/warroom/internal/models"
	"github.com/warroom-labs/warroom/internal/store"
)

var testNow = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

func testTrade(entryPrice float64, heldFor time.Duration, entryDefcon models.DefconLevel) *models.TradeRecord {
	entered := testNow.Add(-heldFor)
	return &models.TradeRecord{
		ID:            1,
		Ticker:        "SPY",
		EntryDate:     entered.Format("2006-01-02"),
		EntryTime:     entered.Format("15:04:05"),
		EntryPrice:    entryPrice,
		Shares:        100,
		CostBasis:     entryPrice * 100,
		DefconAtEntry: entryDefcon,
		Status:        models.TradeOpen,
	}
}

func TestStopLossFiresImmediately(t *testing.T) {
	e := NewExitEngine(config.DefaultExitPolicy())

	// Zero holding time: stop loss ignores the minimum hold window.
	d := e.Evaluate(testTrade(100, 0, models.DefconPreBottom), 96.9, models.DefconPreBottom, 0, testNow)
	require.True(t, d.ShouldExit)
	assert.Equal(t, TriggerStopLoss, d.Trigger)
	assert.Equal(t, 5, d.Priority)
	assert.Equal(t, models.ExitStopLoss, d.Trigger.PersistedReason())
}

func TestProfitTargetGatedByMinHold(t *testing.T) {
	e := NewExitEngine(config.DefaultExitPolicy())
	trade := testTrade(100, 30*time.Minute, models.DefconPreBottom)

	d := e.Evaluate(trade, 106, models.DefconPreBottom, 106, testNow)
	assert.False(t, d.ShouldExit, "inside the minimum hold window")

	trade = testTrade(100, 2*time.Hour, models.DefconPreBottom)
	d = e.Evaluate(trade, 106, models.DefconPreBottom, 106, testNow)
	require.True(t, d.ShouldExit)
	assert.Equal(t, TriggerProfitTarget, d.Trigger)
	assert.Equal(t, models.ExitProfitTarget, d.Trigger.PersistedReason())
}

func TestTrailingStopNeedsPeakAboveEntry(t *testing.T) {
	e := NewExitEngine(config.DefaultExitPolicy())
	trade := testTrade(100, 4*time.Hour, models.DefconPreBottom)

	// Peak never ran past entry: drop from peak alone does not trigger.
	d := e.Evaluate(trade, 98, models.DefconPreBottom, 100, testNow)
	assert.False(t, d.ShouldExit)

	// Peak 103, now 100.9 is a 2.04% giveback.
	d = e.Evaluate(trade, 100.9, models.DefconPreBottom, 103, testNow)
	require.True(t, d.ShouldExit)
	assert.Equal(t, TriggerTrailingStop, d.Trigger)
	assert.Equal(t, models.ExitManual, d.Trigger.PersistedReason())
}

func TestTimeAndLossExit(t *testing.T) {
	e := NewExitEngine(config.DefaultExitPolicy())

	// 60h of a 72h max (>80%) and underwater.
	d := e.Evaluate(testTrade(100, 60*time.Hour, models.DefconPreBottom), 99, models.DefconPreBottom, 100, testNow)
	require.True(t, d.ShouldExit)
	assert.Equal(t, TriggerTimeAndLoss, d.Trigger)

	// Same holding but profitable: no exit until the hard limit.
	d = e.Evaluate(testTrade(100, 60*time.Hour, models.DefconPreBottom), 102, models.DefconPreBottom, 102, testNow)
	assert.False(t, d.ShouldExit)
}

func TestRegimeReversionAndTimeLimit(t *testing.T) {
	e := NewExitEngine(config.DefaultExitPolicy())

	// Entered during crisis levels, alert has lifted back to 3+.
	d := e.Evaluate(testTrade(100, 5*time.Hour, models.DefconPreBottom), 101, models.DefconElevated, 101, testNow)
	require.True(t, d.ShouldExit)
	assert.Equal(t, TriggerRegimeReversion, d.Trigger)

	// Entered at 3: reversion does not apply, but the 72h limit does.
	d = e.Evaluate(testTrade(100, 73*time.Hour, models.DefconCrisis), 101, models.DefconElevated, 101, testNow)
	require.True(t, d.ShouldExit)
	assert.Equal(t, TriggerTimeLimit, d.Trigger)
}

func TestStopLossOutranksEverything(t *testing.T) {
	e := NewExitEngine(config.DefaultExitPolicy())

	// Deep loss late in the hold window at a reverted regime: still stop loss.
	d := e.Evaluate(testTrade(100, 73*time.Hour, models.DefconPreBottom), 90, models.DefconPeacetime, 100, testNow)
	require.True(t, d.ShouldExit)
	assert.Equal(t, TriggerStopLoss, d.Trigger)
}

func TestEvaluateIsPure(t *testing.T) {
	e := NewExitEngine(config.DefaultExitPolicy())
	trade := testTrade(100, 2*time.Hour, models.DefconPreBottom)
	before := *trade

	d1 := e.Evaluate(trade, 106, models.DefconPreBottom, 106, testNow)
	d2 := e.Evaluate(trade, 106, models.DefconPreBottom, 106, testNow)
	assert.Equal(t, d1, d2)
	assert.Equal(t, before, *trade, "evaluation must not mutate the trade")
}

func TestVIXScaledSize(t *testing.T) {
	cfg := config.Default().Broker

	assert.InDelta(t, 10000, VIXScaledSize(cfg, 20), 1e-9)
	assert.InDelta(t, 5000, VIXScaledSize(cfg, 40), 1e-9)
	assert.InDelta(t, cfg.MaxPositionSize, VIXScaledSize(cfg, 5), 1e-9, "calm VIX clamps at max")
	assert.InDelta(t, cfg.MinPositionSize, VIXScaledSize(cfg, 90), 1e-9, "panic VIX clamps at min")
	assert.InDelta(t, cfg.BasePositionSize, VIXScaledSize(cfg, 0), 1e-9, "missing VIX uses base")
}

func TestCrisisPackageSplit(t *testing.T) {
	cfg := config.Default().Broker
	pkg := CrisisPackage(cfg, 20, models.CrisisLiquidityCredit)
	require.Len(t, pkg, 3)

	total := 0.0
	for _, a := range pkg {
		total += a.Dollars
	}
	assert.InDelta(t, 10000, total, 1e-6)
	assert.Equal(t, "GLD", pkg[0].Ticker)
	assert.InDelta(t, 5000, pkg[0].Dollars, 1e-6)
	assert.Equal(t, "SH", pkg[2].Ticker)
	assert.InDelta(t, 2000, pkg[2].Dollars, 1e-6)

	energy := CrisisPackage(cfg, 20, models.CrisisEnergyCommodity)
	assert.Equal(t, "XLE", energy[0].Ticker)
}

func TestConditionalSizeClamps(t *testing.T) {
	assert.InDelta(t, 8000, ConditionalSize(100000, 0.8, 0.10, 0.20), 1e-9)
	assert.InDelta(t, 20000, ConditionalSize(100000, 1.0, 0.50, 0.20), 1e-9, "plan above cap clamps")
	assert.Zero(t, ConditionalSize(100000, -0.5, 0.10, 0.20))
}

// --- engine integration against an in-memory store ---

type fakeQuoter struct {
	prices map[string]float64
}

func (f *fakeQuoter) FetchQuote(_ context.Context, ticker string) (*marketdata.Quote, error) {
	p, ok := f.prices[ticker]
	if !ok {
		return nil, fmt.Errorf("no quote for %s", ticker)
	}
	return &marketdata.Quote{Ticker: ticker, Price: p}, nil
}

type fakeGateway struct {
	text  string
	err   error
	calls int
}

func (f *fakeGateway) Generate(context.Context, string, string, string) (*llm.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Text: f.text, Tier: llm.TierReasoning}, nil
}

func newTestEngine(t *testing.T, quoter *fakeQuoter, gw Gateway) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	eng := NewEngine(cfg, st, quoter, gw, func() time.Time { return testNow })
	return eng, st
}

func TestShouldTradeGate(t *testing.T) {
	eng, _ := newTestEngine(t, &fakeQuoter{}, nil)

	assert.True(t, eng.ShouldTrade(models.DefconPreBottom, 60))
	assert.True(t, eng.ShouldTrade(models.DefconExecute, 95))
	assert.False(t, eng.ShouldTrade(models.DefconCrisis, 95), "level 3 never trades")
	assert.False(t, eng.ShouldTrade(models.DefconPreBottom, 59.9))
}

func TestExecuteCrisisPackageOpensSleeves(t *testing.T) {
	quoter := &fakeQuoter{prices: map[string]float64{"GLD": 200, "SHY": 80, "SH": 14}}
	eng, st := newTestEngine(t, quoter, nil)

	opened := eng.ExecuteCrisisPackage(context.Background(), 25, 70, models.DefconPreBottom, models.CrisisLiquidityCredit)
	require.Len(t, opened, 3)

	positions, err := st.Trades.OpenPositions(context.Background())
	require.NoError(t, err)
	assert.Len(t, positions, 3)
	for _, p := range positions {
		assert.Equal(t, models.DefconPreBottom, p.DefconAtEntry)
		assert.Positive(t, p.Shares)
	}
}

func TestConditionalTriggersAtTarget(t *testing.T) {
	quoter := &fakeQuoter{prices: map[string]float64{"AAPL": 99}}
	gw := &fakeGateway{text: `{"proceed": true, "reason": "setup intact"}`}
	eng, st := newTestEngine(t, quoter, gw)
	ctx := context.Background()

	id, err := st.Conditionals.Insert(ctx, &models.ConditionalEntry{
		Ticker: "AAPL", DateCreated: testNow.Format("2006-01-02"),
		EntryPriceTarget: 100, StopLoss: 92, TakeProfit1: 108, TakeProfit2: 115,
		PositionSizePct: 0.10, TimeHorizonDays: 30, ResearchConfidence: 0.8,
		WatchTag: models.TagMeanReversion, Status: models.ConditionalActive,
	})
	require.NoError(t, err)

	results := eng.CheckConditionals(ctx, models.DefconCrisis)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Trade)
	assert.Equal(t, 1, gw.calls)

	// 100000 * min(0.8*0.10, 0.20) = 8000 at $99 -> 80 shares.
	assert.Equal(t, int64(80), results[0].Trade.Shares)

	_, err = st.Conditionals.ActiveForTicker(ctx, "AAPL")
	assert.ErrorIs(t, err, store.ErrNotFound, "conditional %d should be triggered", id)
}

func TestConditionalAboveTargetDoesNothing(t *testing.T) {
	quoter := &fakeQuoter{prices: map[string]float64{"AAPL": 101}}
	eng, st := newTestEngine(t, quoter, &fakeGateway{text: `{"proceed": true}`})
	ctx := context.Background()

	_, err := st.Conditionals.Insert(ctx, &models.ConditionalEntry{
		Ticker: "AAPL", DateCreated: testNow.Format("2006-01-02"),
		EntryPriceTarget: 100, PositionSizePct: 0.10, TimeHorizonDays: 30,
		ResearchConfidence: 0.8, Status: models.ConditionalActive,
	})
	require.NoError(t, err)

	assert.Empty(t, eng.CheckConditionals(ctx, models.DefconCrisis))
}

func TestPreTradeGateFailsOpen(t *testing.T) {
	quoter := &fakeQuoter{prices: map[string]float64{"AAPL": 99}}
	gw := &fakeGateway{err: fmt.Errorf("gateway down")}
	eng, st := newTestEngine(t, quoter, gw)
	ctx := context.Background()

	_, err := st.Conditionals.Insert(ctx, &models.ConditionalEntry{
		Ticker: "AAPL", DateCreated: testNow.Format("2006-01-02"),
		EntryPriceTarget: 100, PositionSizePct: 0.10, TimeHorizonDays: 30,
		ResearchConfidence: 0.8, Status: models.ConditionalActive,
	})
	require.NoError(t, err)

	results := eng.CheckConditionals(ctx, models.DefconCrisis)
	require.Len(t, results, 1)
	assert.NotNil(t, results[0].Trade, "gateway failure must not block the entry")
}

func TestPreTradeGateVeto(t *testing.T) {
	quoter := &fakeQuoter{prices: map[string]float64{"AAPL": 99}}
	eng, st := newTestEngine(t, quoter, &fakeGateway{text: `{"proceed": false, "reason": "earnings tonight"}`})
	ctx := context.Background()

	_, err := st.Conditionals.Insert(ctx, &models.ConditionalEntry{
		Ticker: "AAPL", DateCreated: testNow.Format("2006-01-02"),
		EntryPriceTarget: 100, PositionSizePct: 0.10, TimeHorizonDays: 30,
		ResearchConfidence: 0.8, Status: models.ConditionalActive,
	})
	require.NoError(t, err)

	assert.Empty(t, eng.CheckConditionals(ctx, models.DefconCrisis))
	cond, err := st.Conditionals.ActiveForTicker(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, models.ConditionalActive, cond.Status, "vetoed plan stays active")
}

func TestConditionalExpires(t *testing.T) {
	eng, st := newTestEngine(t, &fakeQuoter{}, nil)
	ctx := context.Background()

	_, err := st.Conditionals.Insert(ctx, &models.ConditionalEntry{
		Ticker: "AAPL", DateCreated: testNow.AddDate(0, 0, -40).Format("2006-01-02"),
		EntryPriceTarget: 100, TimeHorizonDays: 30,
		ResearchConfidence: 0.8, Status: models.ConditionalActive,
	})
	require.NoError(t, err)

	results := eng.CheckConditionals(ctx, models.DefconCrisis)
	require.Len(t, results, 1)
	assert.True(t, results[0].Expired)
	assert.Nil(t, results[0].Trade)
}

func TestDailyTradeLimit(t *testing.T) {
	quoter := &fakeQuoter{prices: map[string]float64{"SPY": 500}}
	eng, _ := newTestEngine(t, quoter, nil)
	eng.cfg.Broker.MaxDailyTrades = 1
	ctx := context.Background()

	_, err := eng.ManualBuy(ctx, "SPY", 10, 0, models.DefconCrisis)
	require.NoError(t, err)

	_, err = eng.ManualBuy(ctx, "SPY", 10, 0, models.DefconCrisis)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daily trade limit")
}

func TestExposureCap(t *testing.T) {
	quoter := &fakeQuoter{prices: map[string]float64{"SPY": 100}}
	eng, _ := newTestEngine(t, quoter, nil)
	ctx := context.Background()

	// 700 * $100 = $70k against a 60% cap on $100k capital.
	_, err := eng.ManualBuy(ctx, "SPY", 700, 0, models.DefconCrisis)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exposure cap")

	_, err = eng.ManualBuy(ctx, "SPY", 500, 0, models.DefconCrisis)
	assert.NoError(t, err)
}

func TestStopExitQueuesRebound(t *testing.T) {
	quoter := &fakeQuoter{prices: map[string]float64{"NVDA": 96}}
	eng, st := newTestEngine(t, quoter, nil)
	ctx := context.Background()

	entered := testNow.Add(-2 * time.Hour)
	_, err := st.Trades.Open(ctx, &models.TradeRecord{
		Ticker: "NVDA", EntryDate: entered.Format("2006-01-02"),
		EntryTime: entered.Format("15:04:05"), EntryPrice: 100, Shares: 50,
		CostBasis: 5000, DefconAtEntry: models.DefconPreBottom, Status: models.TradeOpen,
	})
	require.NoError(t, err)

	results := eng.EvaluateExits(ctx, models.DefconPreBottom)
	require.Len(t, results, 1)
	assert.Equal(t, TriggerStopLoss, results[0].Trigger)
	assert.Equal(t, models.ExitStopLoss, results[0].Trade.ExitReason)
	assert.InDelta(t, -200, results[0].Trade.RealizedPnL, 1e-9)

	require.NotNil(t, results[0].Rebound)
	assert.Equal(t, models.SourceStopRebound, results[0].Rebound.Source)
	assert.Contains(t, results[0].Rebound.EntryConditions, "$96.00")

	positions, err := st.Trades.OpenPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestProfitExitQueuesReaccumulation(t *testing.T) {
	quoter := &fakeQuoter{prices: map[string]float64{"NVDA": 106}}
	eng, _ := newTestEngine(t, quoter, nil)
	ctx := context.Background()

	entered := testNow.Add(-3 * time.Hour)
	_, err := eng.trades.Open(ctx, &models.TradeRecord{
		Ticker: "NVDA", EntryDate: entered.Format("2006-01-02"),
		EntryTime: entered.Format("15:04:05"), EntryPrice: 100, Shares: 50,
		CostBasis: 5000, DefconAtEntry: models.DefconPreBottom, Status: models.TradeOpen,
	})
	require.NoError(t, err)

	results := eng.EvaluateExits(ctx, models.DefconPreBottom)
	require.Len(t, results, 1)
	assert.Equal(t, TriggerProfitTarget, results[0].Trigger)
	require.NotNil(t, results[0].Rebound)
	assert.Equal(t, models.SourceReaccumulation, results[0].Rebound.Source)
}

func TestManualSellByTicker(t *testing.T) {
	quoter := &fakeQuoter{prices: map[string]float64{"SPY": 510}}
	eng, _ := newTestEngine(t, quoter, nil)
	ctx := context.Background()

	_, err := eng.ManualBuy(ctx, "spy", 10, 500, models.DefconCrisis)
	require.NoError(t, err)

	closed, err := eng.ManualSell(ctx, "SPY", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, models.ExitManual, closed.ExitReason)
	assert.InDelta(t, 100, closed.RealizedPnL, 1e-9)

	_, err = eng.ManualSell(ctx, "SPY", 0, 0)
	require.Error(t, err, "nothing left to sell")

	snap, err := eng.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.ClosedCount)
	assert.Equal(t, 1, snap.WinCount)
	assert.InDelta(t, 100100, snap.AvailableCash, 1e-6)
}

func TestSnapshotEmpty(t *testing.T) {
	eng, _ := newTestEngine(t, &fakeQuoter{}, nil)
	snap, err := eng.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.OpenPositions)
	assert.InDelta(t, 100000, snap.AvailableCash, 1e-6)
}
