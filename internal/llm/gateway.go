// Package llm is the single gateway for model calls. Three tiers (fast,
// balanced, reasoning) map to concrete models; transport prefers the
// operator's gemini CLI subscription and falls back to the API key. The
// gateway enforces quota soft limits but never downgrades a tier on its
// own: callers own that decision.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Tier names.
const (
	TierFast      = "fast"
	TierBalanced  = "balanced"
	TierReasoning = "reasoning"
)

// TierSpec binds a tier to a model and its generation settings.
type TierSpec struct {
	ModelID  string
	Settings TierSettings
}

// Response is one completed model call.
type Response struct {
	Text      string
	ModelID   string
	Tier      string
	TokensIn  int
	TokensOut int
	ViaCLI    bool
}

// Gateway routes tiered prompts to a transport and accounts for quota.
type Gateway struct {
	tiers  map[string]TierSpec
	cli    *cliTransport
	sdk    *sdkTransport
	quota  *QuotaTracker
	limits map[string]int
	clock  func() time.Time
}

// Options configure the gateway.
type Options struct {
	Tiers          map[string]TierSpec
	CLIBinary      string
	TimeoutSeconds int
	APIKey         string
	Quota          *QuotaTracker
	QuotaLimits    map[string]int
	Clock          func() time.Time
}

// NewGateway wires the transports.
func NewGateway(opts Options) *Gateway {
	sdkTiers := make(map[string]TierSettings, len(opts.Tiers))
	for name, spec := range opts.Tiers {
		sdkTiers[name] = spec.Settings
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Gateway{
		tiers:  opts.Tiers,
		cli:    newCLITransport(opts.CLIBinary, time.Duration(opts.TimeoutSeconds)*time.Second),
		sdk:    newSDKTransport(opts.APIKey, sdkTiers),
		quota:  opts.Quota,
		limits: opts.QuotaLimits,
		clock:  clock,
	}
}

// ModelForTier resolves the tier's model id, for callers that need to check
// quota before deciding on a tier.
func (g *Gateway) ModelForTier(tier string) (string, error) {
	spec, ok := g.tiers[tier]
	if !ok {
		return "", fmt.Errorf("llm: unknown tier %q", tier)
	}
	return spec.ModelID, nil
}

// CheckQuota reports the quota state for the tier's model.
func (g *Gateway) CheckQuota(ctx context.Context, tier string) (QuotaState, error) {
	modelID, err := g.ModelForTier(tier)
	if err != nil {
		return QuotaOK, err
	}
	if g.quota == nil {
		return QuotaOK, nil
	}
	state, _, err := g.quota.Check(ctx, modelID)
	return state, err
}

// Generate runs the prompt on the tier's model. Blocked quota returns
// *ErrQuotaBlocked without calling the model.
func (g *Gateway) Generate(ctx context.Context, tier, caller, prompt string) (*Response, error) {
	spec, ok := g.tiers[tier]
	if !ok {
		return nil, fmt.Errorf("llm: unknown tier %q", tier)
	}

	if g.quota != nil {
		state, used, err := g.quota.Check(ctx, spec.ModelID)
		if err == nil && state == QuotaBlock {
			return nil, &ErrQuotaBlocked{ModelID: spec.ModelID, Used: used, Limit: g.limits[spec.ModelID]}
		}
	}

	start := g.clock()
	var (
		text                string
		tokensIn, tokensOut int
		viaCLI              bool
		err                 error
	)
	switch {
	case g.cli.Available():
		viaCLI = true
		text, tokensIn, tokensOut, err = g.cli.Generate(ctx, spec.ModelID, prompt)
		if err != nil && g.sdk.Available() {
			log.Warn().Err(err).Str("model", spec.ModelID).Msg("cli transport failed, falling back to sdk")
			viaCLI = false
			text, tokensIn, tokensOut, err = g.sdk.Generate(ctx, spec.ModelID, tier, prompt)
		}
	case g.sdk.Available():
		text, tokensIn, tokensOut, err = g.sdk.Generate(ctx, spec.ModelID, tier, prompt)
	default:
		return nil, fmt.Errorf("llm: no transport available (cli not installed, no api key)")
	}
	if err != nil {
		return nil, err
	}

	if g.quota != nil {
		g.quota.RecordCall(ctx, spec.ModelID, tier, caller, tokensIn, tokensOut, false)
	}
	log.Debug().Str("tier", tier).Str("model", spec.ModelID).Str("caller", caller).
		Bool("cli", viaCLI).Int("tokens_in", tokensIn).Int("tokens_out", tokensOut).
		Dur("elapsed", g.clock().Sub(start)).Msg("llm call complete")

	return &Response{
		Text:      text,
		ModelID:   spec.ModelID,
		Tier:      tier,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		ViaCLI:    viaCLI,
	}, nil
}

// MarketSessionBlock renders the standing prompt context describing where
// we are in the US equity session (Eastern time).
func MarketSessionBlock(now time.Time) string {
	et := now.In(easternTZ())
	weekday := et.Weekday()
	minutes := et.Hour()*60 + et.Minute()

	session := "closed (weekend)"
	if weekday >= time.Monday && weekday <= time.Friday {
		switch {
		case minutes < 4*60:
			session = "overnight (futures trading)"
		case minutes < 9*60+30:
			session = "pre-market"
		case minutes < 16*60:
			session = "regular session open"
		case minutes < 20*60:
			session = "after-hours"
		default:
			session = "overnight (futures trading)"
		}
	}
	return fmt.Sprintf("Current time: %s ET (%s). US equity market session: %s.",
		et.Format("Monday 2006-01-02 15:04"), et.Format("MST"), session)
}

func easternTZ() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("ET", -5*3600)
	}
	return loc
}
