// Package notify posts operator notifications to a Slack-style webhook.
// Delivery is best effort: failures are logged and swallowed, and a sink
// without a URL silently drops everything.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/warroom-labs/warroom/internal/config"
	"github.com/warroom-labs/warroom/internal/httpx"
	"github.com/warroom-labs/warroom/internal/models"
)

// Event kinds gated by the per-event config flags.
const (
	EventCycleSummary  = "cycle_summary"
	EventDefconChange  = "defcon_change"
	EventNewsUpdate    = "news_update"
	EventMacroUpdate   = "macro_update"
	EventTradeEntry    = "trade_entry"
	EventTradeExit     = "trade_exit"
	EventClusterSignal = "cluster_signal"
	EventFlashBriefing = "flash_briefing"
	EventReboundQueue  = "rebound_queue"
	EventHoundSignal   = "hound_signal"
)

const (
	sendTimeout  = 10 * time.Second
	maxTextBytes = 4000
)

type payload struct {
	Text     string `json:"text"`
	Username string `json:"username"`
	Icon     string `json:"icon"`
}

// Sink delivers notifications per the channel config.
type Sink struct {
	http *httpx.Client
	cfg  config.ChannelConfig
}

// New builds the sink.
func New(client *httpx.Client, cfg config.ChannelConfig) *Sink {
	return &Sink{http: client, cfg: cfg}
}

// Enabled reports whether the event kind should be delivered. Unknown kinds
// default to enabled so new events are not silently lost.
func (s *Sink) Enabled(event string) bool {
	if s == nil || s.cfg.WebhookURL == "" {
		return false
	}
	enabled, ok := s.cfg.Events[event]
	if !ok {
		return true
	}
	return enabled
}

// Send posts one message for the event kind. Never returns an error and
// never blocks the cycle beyond the send timeout.
func (s *Sink) Send(ctx context.Context, event, text string) {
	if !s.Enabled(event) {
		return
	}
	if len(text) > maxTextBytes {
		text = text[:maxTextBytes] + "…"
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	body := payload{Text: text, Username: s.cfg.Username, Icon: s.cfg.IconEmoji}
	if err := s.http.PostJSON(ctx, "webhook", s.cfg.WebhookURL, nil, body, nil); err != nil {
		log.Debug().Err(err).Str("event", event).Msg("notification delivery failed")
		return
	}
	log.Debug().Str("event", event).Msg("notification sent")
}

// DefconChange announces a level transition.
func (s *Sink) DefconChange(ctx context.Context, from, to models.DefconLevel, composite float64, crisis models.CrisisType) {
	arrow := "de-escalation"
	if to < from {
		arrow = "ESCALATION"
	}
	s.Send(ctx, EventDefconChange, fmt.Sprintf(
		":rotating_light: DEFCON %d → %d (%s)\nComposite %.1f | %s",
		from, to, arrow, composite, crisis.Label()))
}

// TradeEntry announces an opened paper position.
func (s *Sink) TradeEntry(ctx context.Context, t *models.TradeRecord) {
	s.Send(ctx, EventTradeEntry, fmt.Sprintf(
		":inbox_tray: BUY %s — %d sh @ $%.2f ($%.0f) | defcon %d | %s",
		t.Ticker, t.Shares, t.EntryPrice, t.CostBasis, t.DefconAtEntry, t.Notes))
}

// TradeExit announces a closed paper position.
func (s *Sink) TradeExit(ctx context.Context, t *models.TradeRecord, trigger string) {
	emoji := ":white_check_mark:"
	if t.RealizedPnL < 0 {
		emoji = ":small_red_triangle_down:"
	}
	s.Send(ctx, EventTradeExit, fmt.Sprintf(
		"%s SELL %s — %d sh @ $%.2f | %s | P&L $%.2f (%.2f%%) after %.1fh",
		emoji, t.Ticker, t.Shares, t.ExitPrice, trigger,
		t.RealizedPnL, t.RealizedPnLPct, t.HoldingHours))
}

// NewsAlert announces a high-scoring news signal.
func (s *Sink) NewsAlert(ctx context.Context, sig *models.NewsSignal) {
	text := fmt.Sprintf(":newspaper: News score %.1f — %s\n%s (%d articles, %d breaking)",
		sig.NewsScore, sig.DominantCrisisType.Label(), sig.SentimentSummary,
		sig.ArticleCount, sig.BreakingCount)
	if sig.BreakingNewsOverride && sig.RecommendedDefcon != nil {
		text += fmt.Sprintf("\n:warning: Breaking override: recommend DEFCON %d", *sig.RecommendedDefcon)
	}
	s.Send(ctx, EventNewsUpdate, text)
}

// ClusterSignal announces a congressional buying cluster.
func (s *Sink) ClusterSignal(ctx context.Context, c *models.ClusterSignal) {
	s.Send(ctx, EventClusterSignal, fmt.Sprintf(
		":classical_building: Congressional cluster: %s — %d buyers, $%.0f total, strength %.0f",
		c.Ticker, c.BuyCount, c.TotalAmount, c.SignalStrength))
}

// ReboundQueued announces a re-entry watchlist insertion after an exit.
func (s *Sink) ReboundQueued(ctx context.Context, e *models.WatchlistEntry) {
	s.Send(ctx, EventReboundQueue, fmt.Sprintf(
		":mag: Watchlist: %s queued (%s) — %s", e.Ticker, e.Source, e.EntryConditions))
}
