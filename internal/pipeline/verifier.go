package pipeline

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

// Verifier re-checks every active conditional against current conditions
// using the fast tier.
type Verifier struct {
	conds   store.ConditionalRepo
	news    store.NewsRepo
	macro   store.MacroRepo
	market  MarketProvider
	gateway Gateway
	clock   func() time.Time
}

// NewVerifier wires the stage.
func NewVerifier(st *store.Store, market MarketProvider, gateway Gateway, clock func() time.Time) *Verifier {
	if clock == nil {
		clock = time.Now
	}
	return &Verifier{
		conds: st.Conditionals, news: st.News, macro: st.Macro,
		market: market, gateway: gateway, clock: clock,
	}
}

type verdictReply struct {
	Verdict string `json:"verdict"`
	Reason  string `json:"reason"`
}

// Run verifies all active conditionals. Returns counts per verdict keyed
// confirm/flag/invalidate.
func (v *Verifier) Run(ctx context.Context) map[models.Verdict]int {
	active, err := v.conds.Active(ctx)
	if err != nil {
		log.Error().Err(err).Msg("load active conditionals failed")
		return nil
	}

	counts := map[models.Verdict]int{}
	for i := range active {
		verdict, ok := v.verifyOne(ctx, &active[i])
		if ok {
			counts[verdict]++
		}
	}
	return counts
}

func (v *Verifier) verifyOne(ctx context.Context, cond *models.ConditionalEntry) (models.Verdict, bool) {
	resp, err := v.gateway.Generate(ctx, llm.TierFast, "verifier", v.buildPrompt(ctx, cond))
	if err != nil {
		log.Warn().Err(err).Str("ticker", cond.Ticker).Msg("verifier call failed, plan unchanged")
		return "", false
	}
	var reply verdictReply
	if !llm.ParseInto(resp.Text, &reply) {
		log.Warn().Str("ticker", cond.Ticker).Msg("verifier reply unparseable, plan unchanged")
		return "", false
	}

	now := v.clock().Format("2006-01-02 15:04:05")
	verdict := models.Verdict(strings.ToLower(strings.TrimSpace(reply.Verdict)))
	switch verdict {
	case models.VerdictConfirm:
		if err := v.conds.MarkVerified(ctx, cond.ID, now); err != nil {
			log.Warn().Err(err).Int64("id", cond.ID).Msg("mark verified failed")
		}
	case models.VerdictFlag:
		note := fmt.Sprintf("FLAG %s: %s", now, reply.Reason)
		if cond.Notes != "" {
			note += "; " + cond.Notes
		}
		if err := v.conds.SetStatus(ctx, cond.ID, models.ConditionalActive, note); err != nil {
			log.Warn().Err(err).Int64("id", cond.ID).Msg("flag conditional failed")
		}
		if err := v.conds.MarkVerified(ctx, cond.ID, now); err != nil {
			log.Warn().Err(err).Int64("id", cond.ID).Msg("mark verified failed")
		}
	case models.VerdictInvalidate:
		if err := v.conds.SetStatus(ctx, cond.ID, models.ConditionalInvalidated,
			"verifier: "+reply.Reason); err != nil {
			log.Warn().Err(err).Int64("id", cond.ID).Msg("invalidate conditional failed")
		}
		log.Info().Str("ticker", cond.Ticker).Str("reason", reply.Reason).Msg("conditional invalidated")
	default:
		log.Warn().Str("ticker", cond.Ticker).Str("verdict", reply.Verdict).Msg("unknown verdict, plan unchanged")
		return "", false
	}
	return verdict, true
}

// buildPrompt assembles the compact verification snapshot: live price,
// ticker-relevant headlines, macro summary, and the original plan.
func (v *Verifier) buildPrompt(ctx context.Context, cond *models.ConditionalEntry) string {
	priceLine := "current price unavailable"
	if q, err := v.market.FetchQuote(ctx, cond.Ticker); err == nil {
		priceLine = fmt.Sprintf("current price $%.2f (%+.2f%% today)", q.Price, q.ChangePct)
	}

	newsLine := "no recent headlines"
	if sig, err := v.news.LatestSignal(ctx); err == nil {
		if heads := tickerHeadlines(sig.Articles, cond.Ticker, 5); len(heads) > 0 {
			newsLine = strings.Join(heads, "\n")
		}
	}

	macroLine := "macro unavailable"
	if m, err := v.macro.Latest(ctx); err == nil {
		macroLine = fmt.Sprintf("macro score %.0f (modifier %+.1f), regime %s",
			m.MacroScore, m.DefconModifier, regimeFromScore(m.MacroScore))
	}

	return fmt.Sprintf(`%s

Re-verify this conditional trade plan against current conditions.

Ticker: %s
Plan: entry $%.2f, stop $%.2f, targets $%.2f / $%.2f, tag %s, confidence %.2f
Thesis: %s
Invalidation conditions: %s

Now:
%s
%s
%s

Respond with only JSON: {"verdict": "confirm"|"flag"|"invalidate", "reason": "..."}`,
		llm.MarketSessionBlock(v.clock()), cond.Ticker,
		cond.EntryPriceTarget, cond.StopLoss, cond.TakeProfit1, cond.TakeProfit2,
		cond.WatchTag, cond.ResearchConfidence, cond.ThesisSummary,
		strings.Join(cond.InvalidationConditions, "; "),
		priceLine, newsLine, macroLine)
}

func tickerHeadlines(articles []models.ScoredArticle, ticker string, limit int) []string {
	needle := strings.ToUpper(ticker)
	var out []string
	for _, a := range articles {
		if !containsWord(strings.ToUpper(a.Title+" "+a.Description), needle) {
			continue
		}
		out = append(out, fmt.Sprintf("- [%s/%s] %s", a.Sentiment, a.Urgency, a.Title))
		if len(out) >= limit {
			break
		}
	}
	return out
}
