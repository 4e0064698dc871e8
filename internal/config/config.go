// Package config loads the orchestrator configuration from a JSON file with
// environment-variable overrides for credentials.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/warroom-labs/warroom/internal/models"
)

// TierConfig selects the model and reasoning budget for one LLM tier.
type TierConfig struct {
	ModelID         string  `json:"model_id"`
	ThinkingBudget  int     `json:"thinking_budget"` // 0 = none, -1 = dynamic
	MaxOutputTokens int     `json:"max_output_tokens"`
	Temperature     float64 `json:"temperature"`
}

// LLMConfig configures the gateway tiers and quota soft limits.
type LLMConfig struct {
	Tiers           map[string]TierConfig `json:"tiers"`
	QuotaSoftLimits map[string]int        `json:"quota_soft_limits"` // model_id -> rolling-24h call limit
	CLIBinary       string                `json:"cli_binary"`
	TimeoutSeconds  int                   `json:"timeout_seconds"`
	GeminiAPIKey    string                `json:"-"`
	XAIAPIKey       string                `json:"-"`
	GrokModel       string                `json:"grok_model"`
}

// RateLimitConfig is the per-endpoint throttle setting.
type RateLimitConfig struct {
	RPM       int     `json:"rpm"`
	MinDelayS float64 `json:"min_delay_s"`
}

// ChannelConfig holds the notification webhook and per-event flags.
type ChannelConfig struct {
	WebhookURL string          `json:"webhook_url"`
	Username   string          `json:"username"`
	IconEmoji  string          `json:"icon_emoji"`
	Events     map[string]bool `json:"events"` // event kind -> enabled
}

// ExitPolicy carries the broker exit thresholds. Loadable from a YAML policy
// file so operators can tune it without touching the main config.
type ExitPolicy struct {
	ProfitTargetPct float64 `yaml:"profit_target_pct" json:"profit_target_pct"`
	StopLossPct     float64 `yaml:"stop_loss_pct" json:"stop_loss_pct"`
	TrailingStopPct float64 `yaml:"trailing_stop_pct" json:"trailing_stop_pct"`
	MaxHoldHours    float64 `yaml:"max_hold_hours" json:"max_hold_hours"`
	MinHoldHours    float64 `yaml:"min_hold_hours" json:"min_hold_hours"`
}

// DefaultExitPolicy returns the production exit thresholds.
func DefaultExitPolicy() ExitPolicy {
	return ExitPolicy{
		ProfitTargetPct: 0.05,
		StopLossPct:     -0.03,
		TrailingStopPct: 0.02,
		MaxHoldHours:    72,
		MinHoldHours:    1,
	}
}

// BrokerConfig holds paper-broker sizing and guardrails.
type BrokerConfig struct {
	TotalCapital         float64 `json:"total_capital"`
	BasePositionSize     float64 `json:"base_position_size"`
	MinPositionSize      float64 `json:"min_position_size"`
	MaxPositionSize      float64 `json:"max_position_size"`
	MaxPortfolioExposure float64 `json:"max_portfolio_exposure"`
	MaxDailyTrades       int     `json:"max_daily_trades"`
	MinEntryDollars      float64 `json:"min_entry_dollars"`
}

// DedupConfig configures the news deduplicator.
type DedupConfig struct {
	SimilarityThreshold float64 `json:"similarity_threshold"`
	KeepStrategy        string  `json:"keep_strategy"` // highest_relevance | most_recent | first
}

// Config is the complete orchestrator configuration. Immutable after load;
// passed by pointer to every component.
type Config struct {
	DatabasePath              string  `json:"database_path"`
	CommandDir                string  `json:"command_dir"`
	MonitoringIntervalMinutes int     `json:"monitoring_interval_minutes"`
	BrokerMode                string  `json:"broker_mode"`
	ConfidenceThreshold       float64 `json:"confidence_threshold"`
	MaxPositionPct            float64 `json:"max_position_pct"`
	StaleDays                 int     `json:"stale_days"`
	MaxWatchlistPerRun        int     `json:"max_watchlist_per_run"`
	ProTriggerScore           float64 `json:"pro_trigger_score"`
	CollectorCadenceCycles    int     `json:"collector_cadence_cycles"`
	MetricsListenAddr         string  `json:"metrics_listen_addr"`

	Deduplication DedupConfig                `json:"deduplication"`
	RateLimits    map[string]RateLimitConfig `json:"rate_limits"`
	Channels      ChannelConfig              `json:"channels"`
	LLM           LLMConfig                  `json:"llm"`
	Broker        BrokerConfig               `json:"broker"`
	Exits         ExitPolicy                 `json:"exits"`

	FredAPIKey         string `json:"-"`
	AlphaVantageAPIKey string `json:"-"`
}

// Default returns a Config with every knob at its production default.
func Default() *Config {
	return &Config{
		DatabasePath:              "trading_data/warroom.db",
		CommandDir:                "trading_data/commands",
		MonitoringIntervalMinutes: 15,
		BrokerMode:                string(models.BrokerSemiAuto),
		ConfidenceThreshold:       0.70,
		MaxPositionPct:            0.20,
		StaleDays:                 3,
		MaxWatchlistPerRun:        10,
		ProTriggerScore:           40,
		CollectorCadenceCycles:    4,
		Deduplication: DedupConfig{
			SimilarityThreshold: 0.6,
			KeepStrategy:        "highest_relevance",
		},
		RateLimits: map[string]RateLimitConfig{
			"alphavantage": {RPM: 5, MinDelayS: 12},
			"fred":         {RPM: 30, MinDelayS: 1},
			"rss":          {RPM: 30, MinDelayS: 0.5},
			"reddit":       {RPM: 10, MinDelayS: 2},
			"quotes":       {RPM: 60, MinDelayS: 0.5},
			"congress":     {RPM: 10, MinDelayS: 2},
			"edgar":        {RPM: 10, MinDelayS: 0.5},
		},
		Channels: ChannelConfig{
			Username:  "warroom",
			IconEmoji: ":chart_with_downwards_trend:",
			Events: map[string]bool{
				"cycle_summary":  false,
				"defcon_change":  true,
				"news_update":    true,
				"macro_update":   true,
				"trade_entry":    true,
				"trade_exit":     true,
				"cluster_signal": true,
				"flash_briefing": true,
				"rebound_queue":  true,
				"hound_signal":   true,
			},
		},
		LLM: LLMConfig{
			Tiers: map[string]TierConfig{
				"fast":      {ModelID: "gemini-2.5-flash", ThinkingBudget: 0, MaxOutputTokens: 8192, Temperature: 0.4},
				"balanced":  {ModelID: "gemini-2.5-flash", ThinkingBudget: 8000, MaxOutputTokens: 8192, Temperature: 1.0},
				"reasoning": {ModelID: "gemini-2.5-pro", ThinkingBudget: -1, MaxOutputTokens: 16384, Temperature: 1.0},
			},
			QuotaSoftLimits: map[string]int{
				"gemini-2.5-pro":   800,
				"gemini-2.5-flash": 700,
			},
			CLIBinary:      "gemini",
			TimeoutSeconds: 180,
			GrokModel:      "grok-3-mini",
		},
		Broker: BrokerConfig{
			TotalCapital:         100000,
			BasePositionSize:     10000,
			MinPositionSize:      3000,
			MaxPositionSize:      20000,
			MaxPortfolioExposure: 0.60,
			MaxDailyTrades:       5,
			MinEntryDollars:      100,
		},
		Exits: DefaultExitPolicy(),
	}
}

// Load reads the JSON config at path, overlaying defaults, then applies
// environment overrides. A missing file is not an error: defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
			log.Warn().Str("path", path).Msg("config file not found, using defaults")
		} else if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// .env in the working directory, then real environment wins.
	_ = godotenv.Load()
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadExitPolicy overlays a YAML exit-policy file onto the defaults.
func LoadExitPolicy(path string) (ExitPolicy, error) {
	policy := DefaultExitPolicy()
	data, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("read exit policy %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return policy, fmt.Errorf("parse exit policy %s: %w", path, err)
	}
	return policy, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.LLM.GeminiAPIKey = v
	}
	if v := os.Getenv("XAI_API_KEY"); v != "" {
		cfg.LLM.XAIAPIKey = v
	}
	if v := os.Getenv("FRED_API_KEY"); v != "" {
		cfg.FredAPIKey = v
	}
	if v := os.Getenv("ALPHAVANTAGE_API_KEY"); v != "" {
		cfg.AlphaVantageAPIKey = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Channels.WebhookURL = v
	}
	if v := os.Getenv("WARROOM_DB_PATH"); v != "" {
		cfg.DatabasePath = v
	}
}

// Validate checks every invariant a bad config could break at runtime.
func (c *Config) Validate() error {
	if _, ok := models.ParseBrokerMode(c.BrokerMode); !ok {
		return fmt.Errorf("invalid broker_mode %q (disabled|semi_auto|full_auto)", c.BrokerMode)
	}
	if c.MonitoringIntervalMinutes < 1 || c.MonitoringIntervalMinutes > 120 {
		return fmt.Errorf("monitoring_interval_minutes %d out of range 1-120", c.MonitoringIntervalMinutes)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold %.2f out of range 0-1", c.ConfidenceThreshold)
	}
	if c.MaxPositionPct <= 0 || c.MaxPositionPct > 1 {
		return fmt.Errorf("max_position_pct %.2f out of range (0, 1]", c.MaxPositionPct)
	}
	if c.Exits.StopLossPct >= 0 {
		return fmt.Errorf("exits.stop_loss_pct must be negative, got %.3f", c.Exits.StopLossPct)
	}
	if c.Exits.ProfitTargetPct <= 0 {
		return fmt.Errorf("exits.profit_target_pct must be positive, got %.3f", c.Exits.ProfitTargetPct)
	}
	if c.Deduplication.SimilarityThreshold <= 0 || c.Deduplication.SimilarityThreshold > 1 {
		return fmt.Errorf("deduplication.similarity_threshold %.2f out of range (0, 1]", c.Deduplication.SimilarityThreshold)
	}
	switch c.Deduplication.KeepStrategy {
	case "highest_relevance", "most_recent", "first":
	default:
		return fmt.Errorf("deduplication.keep_strategy %q unknown", c.Deduplication.KeepStrategy)
	}
	for _, tier := range []string{"fast", "balanced", "reasoning"} {
		if _, ok := c.LLM.Tiers[tier]; !ok {
			return fmt.Errorf("llm.tiers missing %q", tier)
		}
	}
	if dir := filepath.Dir(c.DatabasePath); dir == "" {
		return fmt.Errorf("database_path %q invalid", c.DatabasePath)
	}
	return nil
}

// Mode returns the validated broker mode.
func (c *Config) Mode() models.BrokerMode {
	m, _ := models.ParseBrokerMode(c.BrokerMode)
	return m
}
