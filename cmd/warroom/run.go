package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/warroom-labs/warroom/internal/briefing"
	"github.com/warroom-labs/warroom/internal/broker"
	"github.com/warroom-labs/warroom/internal/command"
	"github.com/warroom-labs/warroom/internal/config"
	"github.com/warroom-labs/warroom/internal/congress"
	"github.com/warroom-labs/warroom/internal/httpx"
	"github.com/warroom-labs/warroom/internal/llm"
	"github.com/warroom-labs/warroom/internal/macro"
	"github.com/warroom-labs/warroom/internal/marketdata"
	"github.com/warroom-labs/warroom/internal/metrics"
	"github.com/warroom-labs/warroom/internal/news"
	"github.com/warroom-labs/warroom/internal/notify"
	"github.com/warroom-labs/warroom/internal/pipeline"
	"github.com/warroom-labs/warroom/internal/ratelimit"
	"github.com/warroom-labs/warroom/internal/scheduler"
	"github.com/warroom-labs/warroom/internal/store"
)

const cmdResponseTimeout = 30 * time.Second

// app is the fully wired orchestrator plus the resources it owns.
type app struct {
	st   *store.Store
	orch *scheduler.Orchestrator
	msrv *metrics.Server
}

func (a *app) close() {
	if err := a.st.Close(); err != nil {
		log.Warn().Err(err).Msg("store close failed")
	}
}

// buildApp wires every component from the config.
func buildApp(cfg *config.Config) (*app, error) {
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	client := httpx.New("")
	var endpoints []ratelimit.Endpoint
	for name, rl := range cfg.RateLimits {
		endpoints = append(endpoints, ratelimit.Endpoint{
			Name:     name,
			RPM:      rl.RPM,
			MinDelay: time.Duration(rl.MinDelayS * float64(time.Second)),
		})
	}
	limiter := ratelimit.New(endpoints, nil)

	market := marketdata.New(client, limiter, cfg.AlphaVantageAPIKey)

	tiers := make(map[string]llm.TierSpec, len(cfg.LLM.Tiers))
	for name, tc := range cfg.LLM.Tiers {
		tiers[name] = llm.TierSpec{
			ModelID: tc.ModelID,
			Settings: llm.TierSettings{
				Temperature:     tc.Temperature,
				MaxOutputTokens: tc.MaxOutputTokens,
				ThinkingBudget:  tc.ThinkingBudget,
			},
		}
	}
	gateway := llm.NewGateway(llm.Options{
		Tiers:          tiers,
		CLIBinary:      cfg.LLM.CLIBinary,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
		APIKey:         cfg.LLM.GeminiAPIKey,
		Quota:          llm.NewQuotaTracker(st.LLMCalls, cfg.LLM.QuotaSoftLimits, nil),
		QuotaLimits:    cfg.LLM.QuotaSoftLimits,
	})
	grok := llm.NewGrokClient(client, cfg.LLM.XAIAPIKey, cfg.LLM.GrokModel)

	bus, err := command.NewBus(cfg.CommandDir)
	if err != nil {
		st.Close()
		return nil, err
	}

	mets := metrics.New()
	orch := scheduler.New(scheduler.Deps{
		Config:     cfg,
		Store:      st,
		Market:     market,
		News:       news.NewFetcher(client, limiter, cfg.AlphaVantageAPIKey),
		Analyzer:   news.NewAnalyzer(gateway, grok),
		Macro:      macro.New(client, limiter, cfg.FredAPIKey, nil),
		Congress:   congress.New(client, limiter, st.Congress, nil),
		Broker:     broker.NewEngine(cfg, st, market, gateway, nil),
		Researcher: pipeline.NewResearcher(cfg, st, market, nil),
		Analyst:    pipeline.NewAnalyst(cfg, st, gateway, nil),
		Verifier:   pipeline.NewVerifier(st, market, gateway, nil),
		Hound:      pipeline.NewHound(cfg, grok, st, nil),
		Briefings:  briefing.New(st, gateway, nil),
		Bus:        bus,
		Notify:     notify.New(client, cfg.Channels),
		Metrics:    mets,
	})

	return &app{
		st:   st,
		orch: orch,
		msrv: metrics.NewServer(cfg.MetricsListenAddr, mets),
	}, nil
}

func runContinuous(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		minutes, err := strconv.Atoi(args[0])
		if err != nil || minutes < 1 || minutes > 120 {
			return fmt.Errorf("interval must be 1-120 minutes, got %q", args[0])
		}
		cfg.MonitoringIntervalMinutes = minutes
	}

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.msrv.Start()
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.msrv.Stop(shutCtx)
	}()

	if err := a.orch.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info().Msg("shutdown signal received")
			return nil
		}
		return err
	}
	return nil
}

func runTest(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	rep, err := a.orch.RunCycle(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("DEFCON %d (was %d), composite %.1f, news %.1f over %d articles (%d new)\n",
		rep.Level, rep.Previous, rep.Composite, rep.NewsScore, rep.ArticleCount, rep.NewArticles)
	fmt.Printf("exits %d, entries %d, packages %d, degraded %v, took %s\n",
		rep.Exits, rep.Entries, rep.PackagesOpened, rep.Degraded, rep.Duration.Round(time.Millisecond))
	return nil
}

func runHealth(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	fmt.Println("config: ok")

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	st.Close()
	fmt.Printf("database: ok (%s)\n", cfg.DatabasePath)

	for name, present := range map[string]bool{
		"FRED_API_KEY":         cfg.FredAPIKey != "",
		"ALPHAVANTAGE_API_KEY": cfg.AlphaVantageAPIKey != "",
		"GEMINI_API_KEY":       cfg.LLM.GeminiAPIKey != "",
		"XAI_API_KEY":          cfg.LLM.XAIAPIKey != "",
		"SLACK_WEBHOOK_URL":    cfg.Channels.WebhookURL != "",
	} {
		state := "missing (degraded)"
		if present {
			state = "set"
		}
		fmt.Printf("%s: %s\n", name, state)
	}
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	snap, err := st.Snapshots.Latest(cmd.Context())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fmt.Println("no cycles recorded yet")
			return nil
		}
		return err
	}
	fmt.Printf("DEFCON %d (%s) at %s\n", snap.DefconLevel, snap.DefconLevel, snap.Timestamp.Format(time.RFC3339))
	fmt.Printf("composite %.1f, 10Y %.2f%%, VIX %.1f, S&P %+.2f%%, news %.1f\n",
		snap.CompositeScore, snap.BondYield, snap.VIX, snap.MarketChangePct, snap.NewsScore)
	if snap.Degraded {
		fmt.Println("warning: snapshot recorded with degraded market data")
	}
	return nil
}

func runCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	bus, err := command.NewBus(cfg.CommandDir)
	if err != nil {
		return err
	}

	req, err := bus.Submit(args[0], args[1:])
	if err != nil {
		return err
	}
	resp, err := bus.AwaitResponse(req.ID, cmdResponseTimeout)
	if err != nil {
		return fmt.Errorf("no response (is the orchestrator running?): %w", err)
	}
	fmt.Println(resp.Message)
	if !resp.OK {
		return fmt.Errorf("command rejected")
	}
	return nil
}
