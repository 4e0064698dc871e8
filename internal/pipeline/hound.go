package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/warroom-labs/warroom/internal/config"
	"github.com/warroom-labs/warroom/internal/llm"
	"github.com/warroom-labs/warroom/internal/models"
	"github.com/warroom-labs/warroom/internal/store"
)

const (
	houndMaxCandidates = 5
	houndMinConfidence = 0.3
	houndSystemPrompt  = "You are a momentum scanner for a US equity paper-trading desk. You surface liquid, listed tickers only. You respond with strict JSON and nothing else."
)

// Hound asks Grok for discovery candidates and queues them for research.
// Runs on demand from the hunt command and on the daily schedule.
type Hound struct {
	cfg   *config.Config
	grok  *llm.GrokClient
	watch store.WatchlistRepo
	macro store.MacroRepo
	clock func() time.Time
}

// NewHound wires the stage. A nil or keyless Grok client disables it.
func NewHound(cfg *config.Config, grok *llm.GrokClient, st *store.Store, clock func() time.Time) *Hound {
	if clock == nil {
		clock = time.Now
	}
	return &Hound{cfg: cfg, grok: grok, watch: st.Watchlist, macro: st.Macro, clock: clock}
}

type houndReply struct {
	Candidates []struct {
		Ticker     string  `json:"ticker"`
		Reason     string  `json:"reason"`
		Confidence float64 `json:"confidence"`
	} `json:"candidates"`
}

// Hunt runs one discovery pass. Returns the tickers queued.
func (h *Hound) Hunt(ctx context.Context, currentDefcon models.DefconLevel) ([]string, error) {
	if !h.grok.Available() {
		return nil, fmt.Errorf("hound: grok not configured")
	}

	macroLine := "macro unavailable"
	if m, err := h.macro.Latest(ctx); err == nil {
		macroLine = fmt.Sprintf("macro score %.0f, regime %s", m.MacroScore, regimeFromScore(m.MacroScore))
	}
	prompt := fmt.Sprintf(`Current alert level: %d (%s). %s.

Name up to %d US-listed tickers with unusual near-term momentum or a
catalyst-driven setup that fits this environment. Skip anything illiquid,
OTC, or already obvious to everyone.

Respond with only JSON:
{"candidates": [{"ticker": "...", "reason": "...", "confidence": 0.0-1.0}]}`,
		currentDefcon, currentDefcon, macroLine, houndMaxCandidates)

	text, _, _, err := h.grok.Complete(ctx, houndSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("hound: %w", err)
	}
	var reply houndReply
	if !llm.ParseInto(text, &reply) {
		return nil, fmt.Errorf("hound: unparseable reply")
	}

	today := h.clock().Format("2006-01-02")
	var queued []string
	for _, c := range reply.Candidates {
		ticker := strings.ToUpper(strings.TrimSpace(c.Ticker))
		if ticker == "" || len(ticker) > 6 || c.Confidence < houndMinConfidence {
			continue
		}
		if active, err := h.watch.HasActive(ctx, ticker); err != nil || active {
			continue
		}
		_, err := h.watch.Add(ctx, &models.WatchlistEntry{
			Ticker:          ticker,
			DateAdded:       today,
			Source:          models.SourceGrokHound,
			ModelConfidence: c.Confidence,
			EntryConditions: c.Reason,
			Status:          models.WatchPending,
		})
		if err != nil {
			log.Warn().Err(err).Str("ticker", ticker).Msg("queue hound candidate failed")
			continue
		}
		queued = append(queued, ticker)
		if len(queued) >= houndMaxCandidates {
			break
		}
	}
	log.Info().Strs("tickers", queued).Msg("hound pass complete")
	return queued, nil
}
