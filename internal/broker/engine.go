// Package broker is the paper-trading desk: escalation packages, triggered
// conditional entries, exit evaluation, and manual orders. It never places
// real orders; every fill is recorded at the fetched market price.
package broker

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/warroom-labs/warroom/internal/config"
	"github.com/warroom-labs/warroom/internal/llm"
	"github.com/warroom-labs/warroom/internal/marketdata"
	"github.com/warroom-labs/warroom/internal/models"
	"github.com/warroom-labs/warroom/internal/store"
)

const entryScoreFloor = 60

// Quoter is the slice of market data the broker needs.
type Quoter interface {
	FetchQuote(ctx context.Context, ticker string) (*marketdata.Quote, error)
}

// Gateway is the slice of the LLM gateway used by the pre-trade gate.
type Gateway interface {
	Generate(ctx context.Context, tier, caller, prompt string) (*llm.Response, error)
}

// Engine drives all paper trades. Owned by the scheduler goroutine; the
// trailing-peak map is not safe for concurrent use.
type Engine struct {
	cfg     *config.Config
	trades  store.TradeRepo
	conds   store.ConditionalRepo
	watch   store.WatchlistRepo
	market  Quoter
	gateway Gateway
	exits   *ExitEngine
	clock   func() time.Time

	peaks map[int64]float64 // trade id -> highest price seen
}

// NewEngine wires the broker.
func NewEngine(cfg *config.Config, st *store.Store, market Quoter, gateway Gateway, clock func() time.Time) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		cfg:     cfg,
		trades:  st.Trades,
		conds:   st.Conditionals,
		watch:   st.Watchlist,
		market:  market,
		gateway: gateway,
		exits:   NewExitEngine(cfg.Exits),
		clock:   clock,
	}
}

// ShouldTrade is the escalation entry gate: deep alert level plus a strong
// composite signal.
func (e *Engine) ShouldTrade(level models.DefconLevel, compositeScore float64) bool {
	return level <= models.DefconPreBottom && compositeScore >= entryScoreFloor
}

// openExposure sums cost basis across open positions.
func (e *Engine) openExposure(ctx context.Context) (float64, []models.TradeRecord, error) {
	open, err := e.trades.OpenPositions(ctx)
	if err != nil {
		return 0, nil, err
	}
	total := 0.0
	for _, t := range open {
		total += t.CostBasis
	}
	return total, open, nil
}

// availableCash is capital minus open exposure plus realized P&L to date.
func (e *Engine) availableCash(ctx context.Context) (float64, error) {
	exposure, _, err := e.openExposure(ctx)
	if err != nil {
		return 0, err
	}
	realized := 0.0
	closed, err := e.trades.ClosedSince(ctx, "1970-01-01")
	if err != nil {
		return 0, err
	}
	for _, t := range closed {
		realized += t.RealizedPnL
	}
	return e.cfg.Broker.TotalCapital + realized - exposure, nil
}

func (e *Engine) dailyLimitReached(ctx context.Context) (bool, error) {
	n, err := e.trades.CountOpenedOn(ctx, e.clock().Format("2006-01-02"))
	if err != nil {
		return false, err
	}
	return n >= e.cfg.Broker.MaxDailyTrades, nil
}

// openTrade records an entry after the common guardrails pass.
func (e *Engine) openTrade(ctx context.Context, ticker string, dollars, price, score float64, level models.DefconLevel, note string) (*models.TradeRecord, error) {
	if dollars < e.cfg.Broker.MinEntryDollars {
		return nil, fmt.Errorf("size $%.2f below minimum $%.2f", dollars, e.cfg.Broker.MinEntryDollars)
	}
	shares := int64(math.Floor(dollars / price))
	if shares <= 0 {
		return nil, fmt.Errorf("size $%.2f buys zero shares of %s at $%.2f", dollars, ticker, price)
	}

	exposure, _, err := e.openExposure(ctx)
	if err != nil {
		return nil, err
	}
	cost := float64(shares) * price
	if exposure+cost > e.cfg.Broker.MaxPortfolioExposure*e.cfg.Broker.TotalCapital {
		return nil, fmt.Errorf("exposure cap: $%.0f + $%.0f exceeds %.0f%% of capital",
			exposure, cost, e.cfg.Broker.MaxPortfolioExposure*100)
	}
	if limited, err := e.dailyLimitReached(ctx); err != nil {
		return nil, err
	} else if limited {
		return nil, fmt.Errorf("daily trade limit of %d reached", e.cfg.Broker.MaxDailyTrades)
	}

	now := e.clock()
	trade := &models.TradeRecord{
		Ticker:           strings.ToUpper(ticker),
		EntryDate:        now.Format("2006-01-02"),
		EntryTime:        now.Format("15:04:05"),
		EntryPrice:       price,
		Shares:           shares,
		CostBasis:        cost,
		EntrySignalScore: score,
		DefconAtEntry:    level,
		Status:           models.TradeOpen,
		CurrentPrice:     price,
		Notes:            note,
	}
	id, err := e.trades.Open(ctx, trade)
	if err != nil {
		return nil, err
	}
	trade.ID = id
	log.Info().Str("ticker", trade.Ticker).Int64("shares", shares).
		Float64("price", price).Float64("cost", cost).Msg("paper trade opened")
	return trade, nil
}

// ExecuteCrisisPackage opens the escalation package when the entry gate
// passes. Returns the opened trades; sleeve-level failures skip the sleeve.
func (e *Engine) ExecuteCrisisPackage(ctx context.Context, vix, compositeScore float64, level models.DefconLevel, crisis models.CrisisType) []models.TradeRecord {
	var opened []models.TradeRecord
	for _, asset := range CrisisPackage(e.cfg.Broker, vix, crisis) {
		quote, err := e.market.FetchQuote(ctx, asset.Ticker)
		if err != nil {
			log.Warn().Err(err).Str("ticker", asset.Ticker).Msg("crisis package quote failed")
			continue
		}
		trade, err := e.openTrade(ctx, asset.Ticker, asset.Dollars, quote.Price, compositeScore, level,
			fmt.Sprintf("crisis package %s (%s)", asset.Role, crisis))
		if err != nil {
			log.Warn().Err(err).Str("ticker", asset.Ticker).Msg("crisis package entry skipped")
			continue
		}
		opened = append(opened, *trade)
	}
	return opened
}

// TriggerResult is one conditional-entry outcome.
type TriggerResult struct {
	Conditional models.ConditionalEntry
	Trade       *models.TradeRecord
	Expired     bool
}

// CheckConditionals walks active conditionals: expires stale plans,
// triggers entries whose price target is touched, and runs the pre-trade
// gate (fail-open) before filling.
func (e *Engine) CheckConditionals(ctx context.Context, level models.DefconLevel) []TriggerResult {
	active, err := e.conds.Active(ctx)
	if err != nil {
		log.Error().Err(err).Msg("load active conditionals failed")
		return nil
	}

	var results []TriggerResult
	today := e.clock().Format("2006-01-02")
	for _, cond := range active {
		if expired(cond, today) {
			if err := e.conds.SetStatus(ctx, cond.ID, models.ConditionalExpired,
				fmt.Sprintf("expired after %d-day horizon", cond.TimeHorizonDays)); err != nil {
				log.Warn().Err(err).Int64("id", cond.ID).Msg("expire conditional failed")
				continue
			}
			results = append(results, TriggerResult{Conditional: cond, Expired: true})
			continue
		}

		quote, err := e.market.FetchQuote(ctx, cond.Ticker)
		if err != nil {
			log.Warn().Err(err).Str("ticker", cond.Ticker).Msg("conditional quote failed")
			continue
		}
		if quote.Price > cond.EntryPriceTarget {
			continue
		}

		if !e.preTradeGate(ctx, &cond, quote.Price) {
			log.Info().Str("ticker", cond.Ticker).Msg("pre-trade gate rejected entry")
			continue
		}

		cash, err := e.availableCash(ctx)
		if err != nil {
			log.Error().Err(err).Msg("available cash failed")
			continue
		}
		dollars := ConditionalSize(cash, cond.ResearchConfidence, cond.PositionSizePct, e.cfg.MaxPositionPct)
		trade, err := e.openTrade(ctx, cond.Ticker, dollars, quote.Price, cond.ResearchConfidence*100, level,
			fmt.Sprintf("conditional #%d triggered at $%.2f (target $%.2f)", cond.ID, quote.Price, cond.EntryPriceTarget))
		if err != nil {
			log.Warn().Err(err).Str("ticker", cond.Ticker).Msg("conditional entry skipped")
			continue
		}
		if err := e.conds.SetStatus(ctx, cond.ID, models.ConditionalTriggered,
			fmt.Sprintf("filled trade #%d at $%.2f", trade.ID, quote.Price)); err != nil {
			log.Warn().Err(err).Int64("id", cond.ID).Msg("mark conditional triggered failed")
		}
		results = append(results, TriggerResult{Conditional: cond, Trade: trade})
	}
	return results
}

func expired(cond models.ConditionalEntry, today string) bool {
	created, err := time.Parse("2006-01-02", cond.DateCreated)
	if err != nil {
		return false
	}
	horizon := cond.TimeHorizonDays
	if horizon <= 0 {
		horizon = 30
	}
	return today > created.AddDate(0, 0, horizon).Format("2006-01-02")
}

// preTradeGate asks the reasoning tier for a final go/no-go. Fail-open:
// any gateway error or unparseable answer lets the entry proceed.
func (e *Engine) preTradeGate(ctx context.Context, cond *models.ConditionalEntry, price float64) bool {
	if e.gateway == nil {
		return true
	}
	prompt := fmt.Sprintf(
		"%s\n\nA conditional trade plan for %s is about to trigger.\nPlan: entry at $%.2f, stop $%.2f, targets $%.2f/$%.2f, tag %s.\nThesis: %s\nCurrent price: $%.2f.\n\nShould this entry proceed right now? Respond with only JSON: {\"proceed\": true|false, \"reason\": \"...\"}",
		llm.MarketSessionBlock(e.clock()), cond.Ticker, cond.EntryPriceTarget, cond.StopLoss,
		cond.TakeProfit1, cond.TakeProfit2, cond.WatchTag, truncate(cond.ThesisSummary, 600), price)

	resp, err := e.gateway.Generate(ctx, llm.TierReasoning, "pre_trade_gate", prompt)
	if err != nil {
		log.Warn().Err(err).Str("ticker", cond.Ticker).Msg("pre-trade gate unavailable, proceeding")
		return true
	}
	var verdict struct {
		Proceed bool   `json:"proceed"`
		Reason  string `json:"reason"`
	}
	if !llm.ParseInto(resp.Text, &verdict) {
		return true
	}
	if !verdict.Proceed {
		log.Info().Str("ticker", cond.Ticker).Str("reason", verdict.Reason).Msg("pre-trade gate vetoed")
	}
	return verdict.Proceed
}

// ExitResult is one closed position.
type ExitResult struct {
	Trade   models.TradeRecord
	Trigger ExitTrigger
	Rebound *models.WatchlistEntry
}

// EvaluateExits marks every open position to market, applies the exit
// engine, and closes at most one way per position. Stop-loss and
// profit-target exits queue a rebound watchlist entry.
func (e *Engine) EvaluateExits(ctx context.Context, currentDefcon models.DefconLevel) []ExitResult {
	open, err := e.trades.OpenPositions(ctx)
	if err != nil {
		log.Error().Err(err).Msg("load open positions failed")
		return nil
	}
	if e.peaks == nil {
		e.peaks = make(map[int64]float64)
	}

	now := e.clock()
	var results []ExitResult
	for _, trade := range open {
		quote, err := e.market.FetchQuote(ctx, trade.Ticker)
		if err != nil {
			log.Warn().Err(err).Str("ticker", trade.Ticker).Msg("exit quote failed")
			continue
		}
		price := quote.Price
		if price > e.peaks[trade.ID] {
			e.peaks[trade.ID] = price
		}
		unrealized := (price - trade.EntryPrice) * float64(trade.Shares)
		if err := e.trades.UpdateMark(ctx, trade.ID, price, unrealized); err != nil {
			log.Warn().Err(err).Int64("trade", trade.ID).Msg("update mark failed")
		}

		decision := e.exits.Evaluate(&trade, price, currentDefcon, e.peaks[trade.ID], now)
		if !decision.ShouldExit {
			continue
		}
		closed, rebound, err := e.closeTrade(ctx, trade, price, decision, now)
		if err != nil {
			log.Error().Err(err).Int64("trade", trade.ID).Msg("close trade failed")
			continue
		}
		delete(e.peaks, trade.ID)
		results = append(results, ExitResult{Trade: *closed, Trigger: decision.Trigger, Rebound: rebound})
	}
	return results
}

func (e *Engine) closeTrade(ctx context.Context, trade models.TradeRecord, price float64, decision ExitDecision, now time.Time) (*models.TradeRecord, *models.WatchlistEntry, error) {
	holdingHours := 0.0
	if entered, err := trade.EntryTimestamp(); err == nil {
		holdingHours = now.Sub(entered).Hours()
	}

	trade.ExitDate = now.Format("2006-01-02")
	trade.ExitTime = now.Format("15:04:05")
	trade.ExitPrice = price
	trade.ExitReason = decision.Trigger.PersistedReason()
	trade.RealizedPnL = (price - trade.EntryPrice) * float64(trade.Shares)
	trade.RealizedPnLPct = decision.ReturnPct * 100
	trade.HoldingHours = holdingHours
	if trade.ExitReason == models.ExitManual {
		trade.Notes = appendNote(trade.Notes, decision.Note)
	}
	if err := e.trades.Close(ctx, &trade); err != nil {
		return nil, nil, err
	}
	trade.Status = models.TradeClosed

	log.Info().Str("ticker", trade.Ticker).Str("trigger", decision.Trigger.String()).
		Float64("exit_price", price).Float64("pnl", trade.RealizedPnL).Msg("paper trade closed")

	rebound := e.queueRebound(ctx, trade, decision.Trigger, price)
	return &trade, rebound, nil
}

// queueRebound inserts the loss-rebound or reaccumulation watchlist entry
// after qualifying exits.
func (e *Engine) queueRebound(ctx context.Context, trade models.TradeRecord, trigger ExitTrigger, exitPrice float64) *models.WatchlistEntry {
	var source models.WatchSource
	switch trigger {
	case TriggerStopLoss:
		source = models.SourceStopRebound
	case TriggerProfitTarget:
		source = models.SourceReaccumulation
	default:
		return nil
	}

	entry := &models.WatchlistEntry{
		Ticker:          trade.Ticker,
		DateAdded:       e.clock().Format("2006-01-02"),
		Source:          source,
		ModelConfidence: 0.5,
		EntryConditions: fmt.Sprintf("re-entry below $%.2f (exit price)", exitPrice),
		Status:          models.WatchPending,
		Notes:           fmt.Sprintf("queued after %s exit of trade #%d", trigger, trade.ID),
	}
	if _, err := e.watch.Add(ctx, entry); err != nil {
		log.Warn().Err(err).Str("ticker", trade.Ticker).Msg("queue rebound entry failed")
		return nil
	}
	return entry
}

// ManualBuy fills an operator buy order. Price 0 means market.
func (e *Engine) ManualBuy(ctx context.Context, ticker string, shares int64, price float64, level models.DefconLevel) (*models.TradeRecord, error) {
	if shares <= 0 {
		return nil, fmt.Errorf("share count must be positive")
	}
	if price <= 0 {
		quote, err := e.market.FetchQuote(ctx, ticker)
		if err != nil {
			return nil, fmt.Errorf("no price for %s: %w", ticker, err)
		}
		price = quote.Price
	}
	return e.openTrade(ctx, ticker, float64(shares)*price, price, 0, level, "manual buy")
}

// ManualSell closes an open position by trade id, or the oldest open trade
// for the ticker when id is 0. Price 0 means market.
func (e *Engine) ManualSell(ctx context.Context, ticker string, tradeID int64, price float64) (*models.TradeRecord, error) {
	var trade *models.TradeRecord
	if tradeID > 0 {
		t, err := e.trades.ByID(ctx, tradeID)
		if err != nil {
			return nil, err
		}
		if t.Status != models.TradeOpen {
			return nil, fmt.Errorf("trade %d is not open", tradeID)
		}
		trade = t
	} else {
		open, err := e.trades.OpenByTicker(ctx, strings.ToUpper(ticker))
		if err != nil {
			return nil, err
		}
		if len(open) == 0 {
			return nil, fmt.Errorf("no open position in %s", strings.ToUpper(ticker))
		}
		trade = &open[0]
	}

	if price <= 0 {
		quote, err := e.market.FetchQuote(ctx, trade.Ticker)
		if err != nil {
			return nil, fmt.Errorf("no price for %s: %w", trade.Ticker, err)
		}
		price = quote.Price
	}

	now := e.clock()
	returnPct := (price - trade.EntryPrice) / trade.EntryPrice
	decision := ExitDecision{ShouldExit: true, Trigger: TriggerNone, ReturnPct: returnPct, Note: "manual sell"}
	closed, _, err := e.closeTrade(ctx, *trade, price, decision, now)
	return closed, err
}

// Portfolio summarizes current holdings and performance.
type Portfolio struct {
	OpenPositions []models.TradeRecord
	OpenExposure  float64
	AvailableCash float64
	UnrealizedPnL float64
	RealizedPnL   float64
	ClosedCount   int
	WinCount      int
}

// Snapshot builds the portfolio view.
func (e *Engine) Snapshot(ctx context.Context) (*Portfolio, error) {
	exposure, open, err := e.openExposure(ctx)
	if err != nil {
		return nil, err
	}
	closed, err := e.trades.ClosedSince(ctx, "1970-01-01")
	if err != nil {
		return nil, err
	}

	p := &Portfolio{OpenPositions: open, OpenExposure: exposure, ClosedCount: len(closed)}
	for _, t := range open {
		p.UnrealizedPnL += t.UnrealizedPnL
	}
	for _, t := range closed {
		p.RealizedPnL += t.RealizedPnL
		if t.RealizedPnL > 0 {
			p.WinCount++
		}
	}
	p.AvailableCash = e.cfg.Broker.TotalCapital + p.RealizedPnL - exposure
	return p, nil
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "; " + note
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
