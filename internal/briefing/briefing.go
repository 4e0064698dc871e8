// Package briefing produces the end-of-day strategy briefing and the short
// intraday flash briefings.
package briefing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/warroom-labs/warroom/internal/llm"
	"github.com/warroom-labs/warroom/internal/models"
	"github.com/warroom-labs/warroom/internal/store"
)

// Briefing tiers stored in daily_briefings.
const (
	TierDaily        = "reasoning"
	TierMorningFlash = "morning_flash"
	TierMiddayFlash  = "midday_flash"
)

// Gateway is the LLM surface the briefings use.
type Gateway interface {
	Generate(ctx context.Context, tier, caller, prompt string) (*llm.Response, error)
}

// Service builds and persists briefings.
type Service struct {
	snaps    store.SnapshotRepo
	news     store.NewsRepo
	macro    store.MacroRepo
	congress store.CongressRepo
	trades   store.TradeRepo
	watch    store.WatchlistRepo
	briefs   store.BriefingRepo
	gateway  Gateway
	clock    func() time.Time
}

// New wires the service.
func New(st *store.Store, gateway Gateway, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		snaps: st.Snapshots, news: st.News, macro: st.Macro, congress: st.Congress,
		trades: st.Trades, watch: st.Watchlist, briefs: st.Briefings,
		gateway: gateway, clock: clock,
	}
}

// dailyReply is the fixed JSON contract for the end-of-day briefing.
type dailyReply struct {
	MarketRegime      string                `json:"market_regime"`
	RegimeConfidence  float64               `json:"regime_confidence"`
	Headline          string                `json:"headline"`
	KeyThemes         []string              `json:"key_themes"`
	Risks             []string              `json:"risks"`
	Opportunities     []string              `json:"opportunities"`
	WatchlistTomorrow []models.BriefingPick `json:"watchlist_tomorrow"`
	DefconForecast    int                   `json:"defcon_forecast"`
}

// RanToday reports whether the tier already has a row for today.
func (s *Service) RanToday(ctx context.Context, tier string) bool {
	_, err := s.briefs.ForDate(ctx, s.clock().Format("2006-01-02"), tier)
	return err == nil
}

// RunDaily builds the end-of-day briefing on the reasoning tier, persists
// it, and enqueues tomorrow's watchlist picks.
func (s *Service) RunDaily(ctx context.Context) (*models.DailyBriefing, error) {
	resp, err := s.gateway.Generate(ctx, llm.TierReasoning, "daily_briefing", s.buildDailyPrompt(ctx))
	if err != nil {
		return nil, fmt.Errorf("daily briefing: %w", err)
	}
	var reply dailyReply
	if !llm.ParseInto(resp.Text, &reply) {
		return nil, fmt.Errorf("daily briefing: unparseable reply")
	}

	today := s.clock().Format("2006-01-02")
	b := &models.DailyBriefing{
		Date:             today,
		Tier:             TierDaily,
		MarketRegime:     reply.MarketRegime,
		RegimeConfidence: reply.RegimeConfidence,
		Headline:         reply.Headline,
		KeyThemes:        reply.KeyThemes,
		Risks:            reply.Risks,
		Opportunities:    reply.Opportunities,
		Watchlist:        reply.WatchlistTomorrow,
		DefconForecast:   reply.DefconForecast,
		TokensIn:         resp.TokensIn,
		TokensOut:        resp.TokensOut,
	}
	if _, err := s.briefs.Upsert(ctx, b); err != nil {
		return nil, fmt.Errorf("persist daily briefing: %w", err)
	}

	s.enqueuePicks(ctx, reply.WatchlistTomorrow, today)
	log.Info().Str("regime", b.MarketRegime).Int("picks", len(b.Watchlist)).
		Msg("daily briefing complete")
	return b, nil
}

// enqueuePicks adds tomorrow's candidates to the watchlist, skipping tickers
// already in flight.
func (s *Service) enqueuePicks(ctx context.Context, picks []models.BriefingPick, date string) {
	for _, pick := range picks {
		ticker := strings.ToUpper(strings.TrimSpace(pick.Ticker))
		if ticker == "" || len(ticker) > 6 {
			continue
		}
		if active, err := s.watch.HasActive(ctx, ticker); err != nil || active {
			continue
		}
		_, err := s.watch.Add(ctx, &models.WatchlistEntry{
			Ticker:          ticker,
			DateAdded:       date,
			Source:          models.SourceDailyBriefing,
			ModelConfidence: pick.Confidence,
			EntryConditions: pick.Reason,
			Status:          models.WatchPending,
		})
		if err != nil {
			log.Warn().Err(err).Str("ticker", ticker).Msg("enqueue briefing pick failed")
		}
	}
}

// RunFlash builds a short plain-text flash briefing on the fast tier. A
// trailing "GAPS:" line in the reply is split out into data-gap notes.
func (s *Service) RunFlash(ctx context.Context, tier string) (*models.DailyBriefing, error) {
	if tier != TierMorningFlash && tier != TierMiddayFlash {
		return nil, fmt.Errorf("flash briefing: unknown tier %q", tier)
	}
	resp, err := s.gateway.Generate(ctx, llm.TierFast, tier, s.buildFlashPrompt(ctx, tier))
	if err != nil {
		return nil, fmt.Errorf("flash briefing: %w", err)
	}

	text, gaps := SplitGaps(resp.Text)
	b := &models.DailyBriefing{
		Date:      s.clock().Format("2006-01-02"),
		Tier:      tier,
		Headline:  text,
		DataGaps:  gaps,
		TokensIn:  resp.TokensIn,
		TokensOut: resp.TokensOut,
	}
	if _, err := s.briefs.Upsert(ctx, b); err != nil {
		return nil, fmt.Errorf("persist flash briefing: %w", err)
	}
	return b, nil
}

// SplitGaps strips a trailing "GAPS:" line from the flash text and returns
// the listed gaps.
func SplitGaps(text string) (string, []string) {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	var gaps []string
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		rest, found := strings.CutPrefix(trimmed, "GAPS:")
		if !found {
			kept = append(kept, line)
			continue
		}
		for _, g := range strings.Split(rest, ";") {
			if g = strings.TrimSpace(g); g != "" {
				gaps = append(gaps, g)
			}
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n")), gaps
}

func (s *Service) buildDailyPrompt(ctx context.Context) string {
	var sb strings.Builder
	sb.WriteString(llm.MarketSessionBlock(s.clock()))
	sb.WriteString("\n\nYou are writing the end-of-day strategy briefing for a defensive paper-trading desk.\n\nToday's data:\n")

	if snaps, err := s.snaps.Recent(ctx, 32); err == nil && len(snaps) > 0 {
		latest := snaps[0]
		sb.WriteString(fmt.Sprintf("- %d monitoring cycles; closing DEFCON %d, composite %.1f, VIX %.1f, 10Y %.2f%%, S&P %+.2f%%\n",
			len(snaps), latest.DefconLevel, latest.CompositeScore, latest.VIX, latest.BondYield, latest.MarketChangePct))
	}
	if sig, err := s.news.LatestSignal(ctx); err == nil {
		sb.WriteString(fmt.Sprintf("- News: score %.1f, %s, %s\n",
			sig.NewsScore, sig.DominantCrisisType.Label(), sig.SentimentSummary))
		for i, a := range sig.Articles {
			if i >= 10 {
				break
			}
			sb.WriteString(fmt.Sprintf("  - [%s] %s\n", a.Sentiment, a.Title))
		}
	}
	if m, err := s.macro.Latest(ctx); err == nil {
		sb.WriteString(fmt.Sprintf("- Macro: score %.0f, modifier %+.1f, yield curve %+.2f, HY OAS %.0fbps\n",
			m.MacroScore, m.DefconModifier, m.YieldCurveSpread, m.HighYieldOASBps))
	}
	s.writeAnalyses(ctx, &sb)
	s.writeClusters(ctx, &sb)
	if open, err := s.trades.OpenPositions(ctx); err == nil {
		sb.WriteString(fmt.Sprintf("- Open positions: %d\n", len(open)))
		for _, t := range open {
			sb.WriteString(fmt.Sprintf("  - %s %d sh @ $%.2f, unrealized $%.2f\n",
				t.Ticker, t.Shares, t.EntryPrice, t.UnrealizedPnL))
		}
	}
	weekAgo := s.clock().AddDate(0, 0, -7).Format("2006-01-02")
	if closed, err := s.trades.ClosedSince(ctx, weekAgo); err == nil && len(closed) > 0 {
		pnl := 0.0
		for _, t := range closed {
			pnl += t.RealizedPnL
		}
		sb.WriteString(fmt.Sprintf("- Week's closed trades: %d, net $%.2f\n", len(closed), pnl))
	}

	sb.WriteString(`
Respond with only JSON:
{"market_regime": "...", "regime_confidence": 0.0-1.0, "headline": "...",
"key_themes": ["..."], "risks": ["..."], "opportunities": ["..."],
"watchlist_tomorrow": [{"ticker": "...", "reason": "...", "confidence": 0.0-1.0}],
"defcon_forecast": 1-5}`)
	return sb.String()
}

// writeAnalyses adds the model reads attached to the latest news signal.
func (s *Service) writeAnalyses(ctx context.Context, sb *strings.Builder) {
	sig, err := s.news.LatestSignal(ctx)
	if err != nil {
		return
	}
	analyses, err := s.news.AnalysesForSignal(ctx, sig.ID)
	if err != nil || len(analyses) == 0 {
		return
	}
	sb.WriteString("- Model reads on the latest signal:\n")
	for _, a := range analyses {
		line := fmt.Sprintf("  - [%s] %s, confidence %.0f", a.Tier, a.RecommendedAction, a.EnhancedConfidence)
		if a.Disagreement {
			line += ", DISAGREEMENT flagged"
		}
		if a.HiddenRisks != "" {
			line += ", risks: " + a.HiddenRisks
		}
		sb.WriteString(line + "\n")
	}
}

// writeClusters adds the day's congressional buying clusters.
func (s *Service) writeClusters(ctx context.Context, sb *strings.Builder) {
	if s.congress == nil {
		return
	}
	midnight := s.clock().UTC().Truncate(24 * time.Hour)
	clusters, err := s.congress.ClustersSince(ctx, midnight)
	if err != nil || len(clusters) == 0 {
		return
	}
	sb.WriteString("- Congressional clusters today:\n")
	for _, c := range clusters {
		sb.WriteString(fmt.Sprintf("  - %s: %d buyers, $%.0f, strength %.0f\n",
			c.Ticker, c.BuyCount, c.TotalAmount, c.SignalStrength))
	}
}

func (s *Service) buildFlashPrompt(ctx context.Context, tier string) string {
	window := "the market open"
	if tier == TierMiddayFlash {
		window = "midday"
	}
	var sb strings.Builder
	sb.WriteString(llm.MarketSessionBlock(s.clock()))
	sb.WriteString(fmt.Sprintf("\n\nWrite a 4-6 line flash briefing for %s: alert level, tape, and what to watch next. Plain text, no JSON.\n", window))
	sb.WriteString("If any input below is missing or stale, end with one line starting \"GAPS:\" listing the gaps separated by semicolons.\n\nCurrent data:\n")

	if snap, err := s.snaps.Latest(ctx); err == nil {
		sb.WriteString(fmt.Sprintf("- DEFCON %d, composite %.1f, VIX %.1f, S&P %+.2f%%\n",
			snap.DefconLevel, snap.CompositeScore, snap.VIX, snap.MarketChangePct))
		if snap.Degraded {
			sb.WriteString("- Market snapshot DEGRADED this cycle\n")
		}
	} else {
		sb.WriteString("- No market snapshot available\n")
	}
	if sig, err := s.news.LatestSignal(ctx); err == nil {
		sb.WriteString(fmt.Sprintf("- News score %.1f (%s)\n", sig.NewsScore, sig.SentimentSummary))
	}
	return sb.String()
}
