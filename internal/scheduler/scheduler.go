// Package scheduler runs the single control loop: drain commands, run the
// monitoring cycle, act on escalations, evaluate exits and conditionals,
// fire the briefing windows, and sleep in short polling ticks so operator
// commands stay responsive.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/warroom-labs/warroom/internal/briefing"
	"github.com/warroom-labs/warroom/internal/broker"
	"github.com/warroom-labs/warroom/internal/command"
	"github.com/warroom-labs/warroom/internal/config"
	"github.com/warroom-labs/warroom/internal/dedup"
	"github.com/warroom-labs/warroom/internal/defcon"
	"github.com/warroom-labs/warroom/internal/llm"
	"github.com/warroom-labs/warroom/internal/marketdata"
	"github.com/warroom-labs/warroom/internal/metrics"
	"github.com/warroom-labs/warroom/internal/models"
	"github.com/warroom-labs/warroom/internal/news"
	"github.com/warroom-labs/warroom/internal/notify"
	"github.com/warroom-labs/warroom/internal/store"
)

const (
	defaultPollTick     = 2 * time.Second
	defaultStageSpacing = 10 * time.Second

	dailyBriefingMinute = 16*60 + 30
	middayFlashMinute   = 12 * 60
	morningFlashMinute  = 9*60 + 30
	marketCloseMinute   = 16 * 60
)

// MarketSource provides the per-cycle composite inputs.
type MarketSource interface {
	FetchSnapshot(ctx context.Context) (*marketdata.Snapshot, error)
}

// NewsSource fetches the raw article batch.
type NewsSource interface {
	FetchAll(ctx context.Context) []models.Article
}

// NewsAnalyzer runs the gated LLM passes over a news signal.
type NewsAnalyzer interface {
	Analyze(ctx context.Context, sig *models.NewsSignal, gate news.Gate, triggerKind string, now time.Time) []models.LLMAnalysis
}

// MacroSource collects the macro indicator snapshot.
type MacroSource interface {
	Collect(ctx context.Context) (*models.MacroIndicators, error)
}

// CongressSource collects disclosures and returns fresh cluster signals.
type CongressSource interface {
	Collect(ctx context.Context) ([]models.ClusterSignal, error)
}

// ResearchStage is the watchlist researcher.
type ResearchStage interface {
	Run(ctx context.Context) int
}

// AnalystStage turns dossiers into conditional entries.
type AnalystStage interface {
	Run(ctx context.Context, limit int) int
}

// VerifyStage re-checks active conditionals.
type VerifyStage interface {
	Run(ctx context.Context) map[models.Verdict]int
}

// HoundStage hunts fresh candidates via the second-opinion model.
type HoundStage interface {
	Hunt(ctx context.Context, currentDefcon models.DefconLevel) ([]string, error)
}

// Briefer produces the daily and flash briefings.
type Briefer interface {
	RanToday(ctx context.Context, tier string) bool
	RunDaily(ctx context.Context) (*models.DailyBriefing, error)
	RunFlash(ctx context.Context, tier string) (*models.DailyBriefing, error)
}

// TradeAlert is an escalation awaiting operator approval (broker mode
// disabled).
type TradeAlert struct {
	Level     models.DefconLevel `json:"level"`
	Composite float64            `json:"composite"`
	VIX       float64            `json:"vix"`
	Crisis    models.CrisisType  `json:"crisis"`
	Created   time.Time          `json:"created"`
}

// Deps wires the orchestrator. Market, Store, Broker, Bus, and Config are
// required; the rest degrade to a skipped stage when nil.
type Deps struct {
	Config     *config.Config
	Store      *store.Store
	Market     MarketSource
	News       NewsSource
	Analyzer   NewsAnalyzer
	Dedup      *dedup.Deduplicator
	Macro      MacroSource
	Congress   CongressSource
	Broker     *broker.Engine
	Researcher ResearchStage
	Analyst    AnalystStage
	Verifier   VerifyStage
	Hound      HoundStage
	Briefings  Briefer
	Bus        *command.Bus
	Notify     *notify.Sink
	Metrics    *metrics.Set
	Clock      func() time.Time
}

// Orchestrator owns all loop state. Everything here is touched only on the
// scheduler goroutine; commands mutate it during drain.
type Orchestrator struct {
	cfg        *config.Config
	st         *store.Store
	market     MarketSource
	news       NewsSource
	analyzer   NewsAnalyzer
	dedup      *dedup.Deduplicator
	macro      MacroSource
	congress   CongressSource
	broker     *broker.Engine
	researcher ResearchStage
	analyst    AnalystStage
	verifier   VerifyStage
	hound      HoundStage
	briefer    Briefer
	proc       *command.Processor
	sink       *notify.Sink
	mets       *metrics.Set
	clock      func() time.Time

	mode            models.BrokerMode
	interval        time.Duration
	pendingInterval time.Duration
	pollTick        time.Duration
	spacing         time.Duration

	held          bool
	stopRequested bool
	estopped      bool
	forceCycle    bool

	cycleCount   int
	prevDefcon   models.DefconLevel
	lastMacro    *models.MacroIndicators
	pendingAlert *TradeAlert
}

// New builds the orchestrator and registers every command handler. The
// previous DEFCON level and macro snapshot are restored from the store so a
// restart does not re-announce the current state.
func New(d Deps) *Orchestrator {
	clock := d.Clock
	if clock == nil {
		clock = time.Now
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Dedup == nil {
		d.Dedup = dedup.New(d.Config.Deduplication.SimilarityThreshold, d.Config.Deduplication.KeepStrategy)
	}

	o := &Orchestrator{
		cfg:        d.Config,
		st:         d.Store,
		market:     d.Market,
		news:       d.News,
		analyzer:   d.Analyzer,
		dedup:      d.Dedup,
		macro:      d.Macro,
		congress:   d.Congress,
		broker:     d.Broker,
		researcher: d.Researcher,
		analyst:    d.Analyst,
		verifier:   d.Verifier,
		hound:      d.Hound,
		briefer:    d.Briefings,
		proc:       command.NewProcessor(d.Bus),
		sink:       d.Notify,
		mets:       d.Metrics,
		clock:      clock,
		mode:       d.Config.Mode(),
		interval:   time.Duration(d.Config.MonitoringIntervalMinutes) * time.Minute,
		pollTick:   defaultPollTick,
		spacing:    defaultStageSpacing,
		prevDefcon: models.DefconPeacetime,
	}

	ctx := context.Background()
	if snap, err := d.Store.Snapshots.Latest(ctx); err == nil {
		o.prevDefcon = snap.DefconLevel
	}
	if m, err := d.Store.Macro.Latest(ctx); err == nil {
		o.lastMacro = m
	}

	o.registerHandlers()
	return o
}

// Run is the control loop. Returns nil on operator stop/estop; the context
// cancelling propagates its error.
func (o *Orchestrator) Run(ctx context.Context) error {
	log.Info().Str("mode", string(o.mode)).Dur("interval", o.interval).
		Int("defcon", int(o.prevDefcon)).Msg("orchestrator loop starting")

	for {
		o.drain(ctx)
		if o.estopped {
			log.Warn().Msg("emergency stop, halting immediately")
			return nil
		}

		if _, err := o.RunCycle(ctx); err != nil {
			return err
		}

		o.drain(ctx)
		if o.stopRequested || o.estopped {
			log.Info().Msg("stop requested, shutting down after cycle")
			return nil
		}
		if err := o.sleep(ctx); err != nil {
			return err
		}
		if o.stopRequested || o.estopped {
			log.Info().Msg("stop requested during sleep")
			return nil
		}
	}
}

// CycleReport summarizes one monitoring cycle.
type CycleReport struct {
	Level          models.DefconLevel
	Previous       models.DefconLevel
	Composite      float64
	NewsScore      float64
	ArticleCount   int
	NewArticles    int
	Degraded       bool
	AlertQueued    bool
	PackagesOpened int
	Exits          int
	Entries        int
	Duration       time.Duration
}

// RunCycle executes one full monitoring cycle: market, news, collectors,
// DEFCON, broker, briefing windows, snapshot persist. Only a failed
// snapshot write is fatal; every upstream failure degrades.
func (o *Orchestrator) RunCycle(ctx context.Context) (*CycleReport, error) {
	start := o.clock()
	rep := &CycleReport{Previous: o.prevDefcon}

	snap := o.marketSnapshot(ctx)
	rep.Degraded = snap.Degraded

	sig, analyses, newCount := o.newsCycle(ctx, snap)
	rep.NewsScore = sig.NewsScore
	rep.ArticleCount = sig.ArticleCount
	rep.NewArticles = newCount

	o.runCollectors(ctx)

	res := defcon.Evaluate(o.defconInput(ctx, snap, sig, analyses))
	rep.Level, rep.Composite = res.Level, res.Composite
	if res.Override != "" {
		log.Info().Str("override", res.Override).Int("level", int(res.Level)).Msg("defcon override applied")
	}

	if rep.Level != o.prevDefcon {
		o.sink.DefconChange(ctx, o.prevDefcon, rep.Level, rep.Composite, sig.DominantCrisisType)
	}
	if rep.Level < o.prevDefcon && o.broker.ShouldTrade(rep.Level, rep.Composite) {
		if o.held {
			log.Warn().Int("defcon", int(rep.Level)).Msg("trading held, escalation suppressed")
		} else {
			o.handleEscalation(ctx, rep, snap, sig)
		}
	}

	// A hold suppresses new entries only. Exits keep protecting whatever is
	// already open.
	rep.Exits = o.runExits(ctx, rep.Level)
	if !o.held {
		rep.Entries = o.runConditionals(ctx, rep.Level)
	}
	o.runHound(ctx, rep.Level)

	o.briefingWindows(ctx)

	if _, err := o.st.Snapshots.Insert(ctx, &models.SignalSnapshot{
		Timestamp:       start,
		DefconLevel:     rep.Level,
		CompositeScore:  rep.Composite,
		BondYield:       snap.BondYield10Y,
		VIX:             snap.VIX,
		MarketChangePct: snap.MarketChangePct,
		NewsScore:       sig.NewsScore,
		Degraded:        snap.Degraded,
	}); err != nil {
		return rep, fmt.Errorf("persist cycle snapshot: %w", err)
	}

	o.publishGauges(ctx, rep)
	o.sink.Send(ctx, notify.EventCycleSummary, fmt.Sprintf(
		"Cycle %d: DEFCON %d, composite %.1f, news %.1f (%d articles, %d new), %d exits, %d entries",
		o.cycleCount+1, rep.Level, rep.Composite, rep.NewsScore,
		rep.ArticleCount, rep.NewArticles, rep.Exits, rep.Entries))

	o.prevDefcon = rep.Level
	o.cycleCount++
	rep.Duration = o.clock().Sub(start)
	o.mets.CyclesTotal.Inc()
	o.mets.CycleDuration.Observe(rep.Duration.Seconds())

	log.Info().Int("defcon", int(rep.Level)).Float64("composite", rep.Composite).
		Float64("news", rep.NewsScore).Int("exits", rep.Exits).Int("entries", rep.Entries).
		Dur("elapsed", rep.Duration).Msg("monitoring cycle complete")
	return rep, nil
}

func (o *Orchestrator) marketSnapshot(ctx context.Context) *marketdata.Snapshot {
	snap, err := o.market.FetchSnapshot(ctx)
	if err != nil {
		log.Error().Err(err).Msg("market snapshot failed")
		if snap == nil {
			snap = &marketdata.Snapshot{Degraded: true}
		}
	}
	for range snap.Missing {
		o.mets.ProviderErrors.WithLabelValues("quotes").Inc()
	}
	return snap
}

// newsCycle fetches, dedups, scores, and persists the news signal, then
// runs whatever LLM tiers the cost gate allows. The gate's "level changed"
// input uses a provisional evaluation without the reasoning read, since
// that read is what the gate is deciding to pay for.
func (o *Orchestrator) newsCycle(ctx context.Context, snap *marketdata.Snapshot) (*models.NewsSignal, []models.LLMAnalysis, int) {
	now := o.clock()
	prior, err := o.st.News.LatestSignal(ctx)
	if err != nil {
		prior = nil
	}

	var raw []models.Article
	if o.news != nil {
		raw = o.news.FetchAll(ctx)
	}
	sig := news.BuildSignal(o.dedup, raw, now)
	fresh := news.DetectNew(prior, sig.Articles, now)

	provisional := defcon.Evaluate(o.defconInput(ctx, snap, sig, nil)).Level
	gate := news.EvaluateGate(sig, len(fresh), provisional != o.prevDefcon)

	if id, err := o.st.News.InsertSignal(ctx, sig); err != nil {
		log.Error().Err(err).Msg("persist news signal failed")
	} else {
		sig.ID = id
	}

	var analyses []models.LLMAnalysis
	if o.analyzer != nil && gate.Fast {
		trigger := "elevated"
		if sig.BreakingNewsOverride {
			trigger = "breaking"
		}
		analyses = o.analyzer.Analyze(ctx, sig, gate, trigger, now)
		for i := range analyses {
			analyses[i].NewsSignalID = sig.ID
			if _, err := o.st.News.InsertAnalysis(ctx, &analyses[i]); err != nil {
				log.Warn().Err(err).Msg("persist llm analysis failed")
			}
			o.mets.LLMCalls.WithLabelValues(analyses[i].ModelID, analyses[i].Tier).Inc()
			o.mets.LLMTokens.WithLabelValues(analyses[i].ModelID, "in").Add(float64(analyses[i].TokensIn))
			o.mets.LLMTokens.WithLabelValues(analyses[i].ModelID, "out").Add(float64(analyses[i].TokensOut))
		}
	}

	if sig.BreakingNewsOverride || sig.NewsScore >= o.cfg.ProTriggerScore {
		o.sink.NewsAlert(ctx, sig)
	}
	return sig, analyses, len(fresh)
}

// runCollectors fires the macro and political collectors on their cadence
// (every Nth cycle, first cycle included).
func (o *Orchestrator) runCollectors(ctx context.Context) {
	cadence := o.cfg.CollectorCadenceCycles
	if cadence < 1 {
		cadence = 1
	}
	if o.cycleCount%cadence != 0 {
		return
	}

	if o.macro != nil {
		m, err := o.macro.Collect(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("macro collection skipped")
			o.mets.ProviderErrors.WithLabelValues("fred").Inc()
		} else {
			if _, err := o.st.Macro.Insert(ctx, m); err != nil {
				log.Error().Err(err).Msg("persist macro snapshot failed")
			}
			o.lastMacro = m
			o.mets.MacroScore.Set(m.MacroScore)
			o.sink.Send(ctx, notify.EventMacroUpdate, fmt.Sprintf(
				"Macro update: score %.0f, DEFCON modifier %+.1f, yield curve %+.2f, HY OAS %.0fbps",
				m.MacroScore, m.DefconModifier, m.YieldCurveSpread, m.HighYieldOASBps))
		}
	}

	if o.congress != nil {
		clusters, err := o.congress.Collect(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("congressional collection skipped")
			o.mets.ProviderErrors.WithLabelValues("congress").Inc()
		}
		for i := range clusters {
			o.sink.ClusterSignal(ctx, &clusters[i])
		}
	}
}

func (o *Orchestrator) defconInput(ctx context.Context, snap *marketdata.Snapshot, sig *models.NewsSignal, analyses []models.LLMAnalysis) defcon.Input {
	in := defcon.Input{
		Scores: defcon.SignalScores{
			BondYieldSpike: defcon.ScoreBondYield(snap.BondYield10Y),
			VIXSpike:       defcon.ScoreVIX(snap.VIX),
			MarketDrawdown: defcon.ScoreDrawdown(snap.MarketChangePct),
		},
		MarketChangePct: snap.MarketChangePct,
		FlashForecast:   o.flashForecast(ctx),
		News: defcon.NewsInput{
			BreakingOverride: sig.BreakingNewsOverride,
		},
	}
	if sig.RecommendedDefcon != nil {
		in.News.RecommendedDefcon = *sig.RecommendedDefcon
	}
	if o.lastMacro != nil {
		in.MacroModifier = o.lastMacro.DefconModifier
	}
	for _, a := range analyses {
		if a.Tier == llm.TierReasoning && a.Coherence != llm.ParseFailed {
			in.Reasoning = defcon.ReasoningInput{
				Exists:               true,
				EnhancedConfidence:   a.EnhancedConfidence,
				ConfidenceAdjustment: a.ConfidenceAdjustment,
			}
		}
	}
	return in
}

// flashForecast is yesterday's daily-briefing DEFCON forecast, feeding the
// soft nudge. Zero when no briefing exists or the forecast is junk.
func (o *Orchestrator) flashForecast(ctx context.Context) models.DefconLevel {
	yesterday := o.clock().AddDate(0, 0, -1).Format("2006-01-02")
	b, err := o.st.Briefings.ForDate(ctx, yesterday, briefing.TierDaily)
	if err != nil {
		return 0
	}
	lvl := models.DefconLevel(b.DefconForecast)
	if !lvl.Valid() {
		return 0
	}
	return lvl
}

// handleEscalation acts on a DEFCON escalation that passes the entry gate:
// disabled mode queues an approval alert, the auto modes execute the crisis
// package (semi_auto notifies each fill, full_auto stays silent).
func (o *Orchestrator) handleEscalation(ctx context.Context, rep *CycleReport, snap *marketdata.Snapshot, sig *models.NewsSignal) {
	if o.mode == models.BrokerDisabled {
		o.pendingAlert = &TradeAlert{
			Level:     rep.Level,
			Composite: rep.Composite,
			VIX:       snap.VIX,
			Crisis:    sig.DominantCrisisType,
			Created:   o.clock(),
		}
		rep.AlertQueued = true
		o.sink.Send(ctx, notify.EventTradeEntry, fmt.Sprintf(
			":rotating_light: Trade alert: DEFCON %d (%s), composite %.1f, VIX %.1f. Reply `yes` to execute the crisis package or `no` to dismiss.",
			rep.Level, sig.DominantCrisisType.Label(), rep.Composite, snap.VIX))
		log.Warn().Int("defcon", int(rep.Level)).Msg("escalation alert queued, awaiting approval")
		return
	}

	opened := o.broker.ExecuteCrisisPackage(ctx, snap.VIX, rep.Composite, rep.Level, sig.DominantCrisisType)
	rep.PackagesOpened = len(opened)
	for i := range opened {
		o.mets.TradesTotal.WithLabelValues("open").Inc()
		if o.mode == models.BrokerSemiAuto {
			o.sink.TradeEntry(ctx, &opened[i])
		}
	}
	log.Warn().Int("defcon", int(rep.Level)).Int("positions", len(opened)).
		Str("mode", string(o.mode)).Msg("escalation executed")
}

func (o *Orchestrator) runExits(ctx context.Context, level models.DefconLevel) int {
	exits := o.broker.EvaluateExits(ctx, level)
	for i := range exits {
		o.mets.TradesTotal.WithLabelValues("close").Inc()
		o.sink.TradeExit(ctx, &exits[i].Trade, exits[i].Trigger.String())
		if exits[i].Rebound != nil {
			o.sink.ReboundQueued(ctx, exits[i].Rebound)
		}
	}
	return len(exits)
}

// runHound asks the second-opinion model for fresh momentum candidates each
// cycle. A misconfigured or unreachable provider only logs at debug; found
// tickers land on the watchlist and get announced.
func (o *Orchestrator) runHound(ctx context.Context, level models.DefconLevel) {
	if o.hound == nil {
		return
	}
	tickers, err := o.hound.Hunt(ctx, level)
	if err != nil {
		log.Debug().Err(err).Msg("hound scan skipped")
		return
	}
	if len(tickers) == 0 {
		return
	}
	o.sink.Send(ctx, notify.EventHoundSignal, fmt.Sprintf(
		":dog: Hound flagged %d candidates: %s", len(tickers), strings.Join(tickers, ", ")))
	log.Info().Strs("tickers", tickers).Msg("hound candidates queued")
}

func (o *Orchestrator) runConditionals(ctx context.Context, level models.DefconLevel) int {
	entries := 0
	for _, res := range o.broker.CheckConditionals(ctx, level) {
		if res.Expired || res.Trade == nil {
			continue
		}
		entries++
		o.mets.TradesTotal.WithLabelValues("open").Inc()
		o.sink.TradeEntry(ctx, res.Trade)
	}
	return entries
}

// briefingWindows fires whichever briefing the current Eastern-time window
// calls for, at most once per tier per day. Weekends are quiet.
func (o *Orchestrator) briefingWindows(ctx context.Context) {
	if o.briefer == nil {
		return
	}
	et := o.clock().In(easternTZ())
	if et.Weekday() == time.Saturday || et.Weekday() == time.Sunday {
		return
	}
	mins := et.Hour()*60 + et.Minute()
	switch {
	case mins >= dailyBriefingMinute:
		if !o.briefer.RanToday(ctx, briefing.TierDaily) {
			o.runDailySequence(ctx)
		}
	case mins >= middayFlashMinute && mins < marketCloseMinute:
		if !o.briefer.RanToday(ctx, briefing.TierMiddayFlash) {
			o.runFlash(ctx, briefing.TierMiddayFlash)
		}
	case mins >= morningFlashMinute:
		if !o.briefer.RanToday(ctx, briefing.TierMorningFlash) {
			o.runFlash(ctx, briefing.TierMorningFlash)
		}
	}
}

// runDailySequence is the after-close chain: daily briefing, then the
// acquisition pipeline stages with spacing between them, then the verifier.
func (o *Orchestrator) runDailySequence(ctx context.Context) {
	if b, err := o.briefer.RunDaily(ctx); err != nil {
		log.Error().Err(err).Msg("daily briefing failed")
	} else {
		log.Info().Str("regime", b.MarketRegime).Str("headline", b.Headline).Msg("daily briefing done")
	}

	if o.researcher != nil {
		o.pause(ctx)
		researched := o.researcher.Run(ctx)
		log.Info().Int("researched", researched).Msg("researcher stage done")
	}
	if o.analyst != nil {
		o.pause(ctx)
		analysed := o.analyst.Run(ctx, o.cfg.MaxWatchlistPerRun)
		log.Info().Int("analysed", analysed).Msg("analyst stage done")
	}
	if o.verifier != nil {
		verdicts := o.verifier.Run(ctx)
		log.Info().Interface("verdicts", verdicts).Msg("verifier stage done")
	}
}

func (o *Orchestrator) runFlash(ctx context.Context, tier string) {
	b, err := o.briefer.RunFlash(ctx, tier)
	if err != nil {
		log.Warn().Err(err).Str("tier", tier).Msg("flash briefing failed")
		return
	}
	o.sink.Send(ctx, notify.EventFlashBriefing, b.Headline)
}

func (o *Orchestrator) publishGauges(ctx context.Context, rep *CycleReport) {
	o.mets.DefconLevel.Set(float64(rep.Level))
	o.mets.CompositeScore.Set(rep.Composite)
	o.mets.NewsScore.Set(rep.NewsScore)
	if open, err := o.st.Trades.OpenPositions(ctx); err == nil {
		o.mets.OpenPositions.Set(float64(len(open)))
	}
}

// drain processes every queued command. Handlers run on this goroutine, so
// they may mutate loop state freely.
func (o *Orchestrator) drain(ctx context.Context) {
	for {
		name := o.proc.Drain(ctx)
		if name == "" {
			return
		}
		o.mets.CommandsTotal.WithLabelValues(name).Inc()
	}
}

// sleep waits out the monitoring interval in poll ticks, draining commands
// at each tick. An `update` command (or stop/estop) breaks out early; a
// pending `interval` change applies here, at the sleep boundary.
func (o *Orchestrator) sleep(ctx context.Context) error {
	if o.pendingInterval > 0 {
		o.interval = o.pendingInterval
		o.pendingInterval = 0
		log.Info().Dur("interval", o.interval).Msg("monitoring interval updated")
	}

	deadline := o.clock().Add(o.interval)
	for o.clock().Before(deadline) {
		timer := time.NewTimer(o.pollTick)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		o.drain(ctx)
		if o.forceCycle {
			o.forceCycle = false
			log.Info().Msg("update command received, breaking sleep")
			return nil
		}
		if o.stopRequested || o.estopped {
			return nil
		}
	}
	return nil
}

// pause sleeps the inter-stage spacing, honoring cancellation.
func (o *Orchestrator) pause(ctx context.Context) {
	if o.spacing <= 0 {
		return
	}
	timer := time.NewTimer(o.spacing)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func easternTZ() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("ET", -5*3600)
	}
	return loc
}
