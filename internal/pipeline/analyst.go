package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/warroom-labs/warroom/internal/config"
	"github.com/warroom-labs/warroom/internal/llm"
	"github.com/warroom-labs/warroom/internal/models"
	"github.com/warroom-labs/warroom/internal/store"
)

// Gateway is the LLM surface the pipeline stages share.
type Gateway interface {
	Generate(ctx context.Context, tier, caller, prompt string) (*llm.Response, error)
	CheckQuota(ctx context.Context, tier string) (llm.QuotaState, error)
}

// Analyst turns research dossiers into conditional trade plans.
type Analyst struct {
	cfg     *config.Config
	lib     store.ResearchRepo
	watch   store.WatchlistRepo
	conds   store.ConditionalRepo
	gateway Gateway
	clock   func() time.Time
}

// NewAnalyst wires the stage.
func NewAnalyst(cfg *config.Config, st *store.Store, gateway Gateway, clock func() time.Time) *Analyst {
	if clock == nil {
		clock = time.Now
	}
	return &Analyst{
		cfg: cfg, lib: st.Research, watch: st.Watchlist,
		conds: st.Conditionals, gateway: gateway, clock: clock,
	}
}

// tradePlan is the JSON contract with the model.
type tradePlan struct {
	ShouldEnter            bool     `json:"should_enter"`
	ResearchConfidence     float64  `json:"research_confidence"`
	EntryPriceTarget       float64  `json:"entry_price_target"`
	EntryPriceRationale    string   `json:"entry_price_rationale"`
	StopLoss               float64  `json:"stop_loss"`
	TakeProfit1            float64  `json:"take_profit_1"`
	TakeProfit2            float64  `json:"take_profit_2"`
	PositionSizePct        float64  `json:"position_size_pct"`
	TimeHorizonDays        int      `json:"time_horizon_days"`
	EntryConditions        []string `json:"entry_conditions"`
	InvalidationConditions []string `json:"invalidation_conditions"`
	ThesisSummary          string   `json:"thesis_summary"`
	KeyRisks               []string `json:"key_risks"`
	WatchTag               string   `json:"watch_tag"`
	DataGaps               []string `json:"data_gaps"`
}

// Run analyses up to limit ready dossiers. Returns the number of
// conditionals written.
func (a *Analyst) Run(ctx context.Context, limit int) int {
	rows, err := a.lib.ReadyRows(ctx, limit)
	if err != nil {
		log.Error().Err(err).Msg("load ready dossiers failed")
		return 0
	}

	written := 0
	for i := range rows {
		if a.analyseOne(ctx, &rows[i]) {
			written++
		}
	}
	return written
}

func (a *Analyst) analyseOne(ctx context.Context, row *models.ResearchRow) bool {
	tier := llm.TierReasoning
	downgraded := false
	if state, err := a.gateway.CheckQuota(ctx, llm.TierReasoning); err == nil && state == llm.QuotaBlock {
		tier = llm.TierBalanced
		downgraded = true
		log.Warn().Str("ticker", row.Ticker).Msg("reasoning quota blocked, analyst downgrading to balanced")
	}

	resp, err := a.gateway.Generate(ctx, tier, "analyst", a.buildPrompt(row))
	var blocked *llm.ErrQuotaBlocked
	if errors.As(err, &blocked) && tier == llm.TierReasoning {
		tier = llm.TierBalanced
		downgraded = true
		log.Warn().Str("model", blocked.ModelID).Msg("reasoning blocked mid-run, retrying balanced")
		resp, err = a.gateway.Generate(ctx, tier, "analyst", a.buildPrompt(row))
	}
	if err != nil {
		log.Error().Err(err).Str("ticker", row.Ticker).Msg("analyst call failed, dossier stays queued")
		return false
	}

	var plan tradePlan
	if !llm.ParseInto(resp.Text, &plan) {
		log.Error().Str("ticker", row.Ticker).Msg("analyst plan unparseable, dossier stays queued")
		return false
	}

	if err := a.lib.SetStatus(ctx, row.ID, models.LibraryAnalysed); err != nil {
		log.Warn().Err(err).Int64("id", row.ID).Msg("mark dossier analysed failed")
	}

	approved := plan.ShouldEnter && plan.ResearchConfidence >= a.cfg.ConfidenceThreshold
	if !approved {
		a.setWatchlist(ctx, row.Ticker, models.WatchAnalystPass,
			fmt.Sprintf("analyst pass (confidence %.2f): %s", plan.ResearchConfidence, plan.ThesisSummary))
		log.Info().Str("ticker", row.Ticker).Float64("confidence", plan.ResearchConfidence).
			Bool("downgraded", downgraded).Msg("analyst passed")
		return false
	}

	if err := a.writeConditional(ctx, row.Ticker, &plan); err != nil {
		log.Error().Err(err).Str("ticker", row.Ticker).Msg("write conditional failed")
		return false
	}
	a.setWatchlist(ctx, row.Ticker, models.WatchConditionalSet, "")
	log.Info().Str("ticker", row.Ticker).Float64("confidence", plan.ResearchConfidence).
		Str("tier", tier).Bool("downgraded", downgraded).Msg("conditional entry set")
	return true
}

// writeConditional persists the plan, superseding any prior active plan for
// the ticker.
func (a *Analyst) writeConditional(ctx context.Context, ticker string, plan *tradePlan) error {
	today := a.clock().Format("2006-01-02")
	if prior, err := a.conds.ActiveForTicker(ctx, ticker); err == nil {
		note := "Superseded by fresh analyst run on " + today
		if err := a.conds.SetStatus(ctx, prior.ID, models.ConditionalInvalidated, note); err != nil {
			return fmt.Errorf("supersede conditional %d: %w", prior.ID, err)
		}
	}

	sizePct := plan.PositionSizePct
	if sizePct > a.cfg.MaxPositionPct {
		sizePct = a.cfg.MaxPositionPct
	}
	_, err := a.conds.Insert(ctx, &models.ConditionalEntry{
		Ticker:                 ticker,
		DateCreated:            today,
		EntryPriceTarget:       plan.EntryPriceTarget,
		EntryPriceRationale:    plan.EntryPriceRationale,
		StopLoss:               plan.StopLoss,
		TakeProfit1:            plan.TakeProfit1,
		TakeProfit2:            plan.TakeProfit2,
		PositionSizePct:        sizePct,
		TimeHorizonDays:        plan.TimeHorizonDays,
		EntryConditions:        plan.EntryConditions,
		InvalidationConditions: plan.InvalidationConditions,
		ThesisSummary:          plan.ThesisSummary,
		KeyRisks:               plan.KeyRisks,
		WatchTag:               normalizeTag(plan.WatchTag),
		ResearchConfidence:     plan.ResearchConfidence,
		Status:                 models.ConditionalActive,
	})
	return err
}

func (a *Analyst) setWatchlist(ctx context.Context, ticker string, status models.WatchlistStatus, notes string) {
	entry, err := a.watch.LatestForTicker(ctx, ticker)
	if err != nil || entry.Status != models.WatchResearched {
		return
	}
	if err := a.watch.SetStatus(ctx, entry.ID, status, notes); err != nil {
		log.Warn().Err(err).Str("ticker", ticker).Msg("update watchlist after analyst failed")
	}
}

func normalizeTag(tag string) models.WatchTag {
	for _, t := range models.WatchTags {
		if string(t) == tag {
			return t
		}
	}
	return models.TagMomentum
}

func (a *Analyst) buildPrompt(row *models.ResearchRow) string {
	dossier, _ := json.MarshalIndent(row, "", "  ")
	return fmt.Sprintf(`%s

You are the acquisition analyst for a defensive paper-trading desk.
Evaluate this research dossier and decide whether to set a conditional entry.

Dossier:
%s

Rules:
- Only recommend entry when the setup offers asymmetric reward.
- entry_price_target must be a limit below or at the current price for long setups.
- position_size_pct is the fraction of available cash, at most %.2f.
- watch_tag must be one of: breakout, mean-reversion, momentum, defensive-hedge, macro-hedge, earnings-play, rebound.
- List anything the dossier is missing in data_gaps.

Respond with only JSON:
{"should_enter": bool, "research_confidence": 0.0-1.0, "entry_price_target": number,
"entry_price_rationale": "...", "stop_loss": number, "take_profit_1": number,
"take_profit_2": number, "position_size_pct": 0.0-1.0, "time_horizon_days": int,
"entry_conditions": ["..."], "invalidation_conditions": ["..."],
"thesis_summary": "...", "key_risks": ["..."], "watch_tag": "...", "data_gaps": ["..."]}`,
		llm.MarketSessionBlock(a.clock()), dossier, a.cfg.MaxPositionPct)
}
