// Package macro collects the FRED indicator set and derives the macro
// score and DEFCON modifier.
package macro

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/warroom-labs/warroom/internal/httpx"
	"github.com/warroom-labs/warroom/internal/models"
	"github.com/warroom-labs/warroom/internal/ratelimit"
)

// FRED series ids.
const (
	seriesYieldCurve = "T10Y2Y"
	seriesFedFunds   = "FEDFUNDS"
	seriesUnemploy   = "UNRATE"
	seriesM2         = "M2SL"
	seriesHYOAS      = "BAMLH0A0HYM2"
	seriesSentiment  = "UMCSENT"
)

// Collector pulls the macro series and scores them.
type Collector struct {
	http    *httpx.Client
	limiter *ratelimit.Limiter
	apiKey  string
	clock   func() time.Time
}

// New builds the collector. An empty key disables collection (Collect
// returns an error the scheduler treats as a skip).
func New(client *httpx.Client, limiter *ratelimit.Limiter, apiKey string, clock func() time.Time) *Collector {
	if clock == nil {
		clock = time.Now
	}
	return &Collector{http: client, limiter: limiter, apiKey: apiKey, clock: clock}
}

type fredObservations struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

// latest fetches the most recent non-missing observation for a series.
func (c *Collector) latest(ctx context.Context, series string) (float64, error) {
	values, err := c.recent(ctx, series, 1)
	if err != nil {
		return 0, err
	}
	return values[0], nil
}

// recent fetches the last n non-missing observations, most recent first.
func (c *Collector) recent(ctx context.Context, series string, n int) ([]float64, error) {
	if err := c.limiter.WaitIfNeeded(ctx, "fred"); err != nil {
		return nil, err
	}
	u := fmt.Sprintf(
		"https://api.stlouisfed.org/fred/series/observations?series_id=%s&api_key=%s&file_type=json&sort_order=desc&limit=%d",
		url.QueryEscape(series), url.QueryEscape(c.apiKey), n+4)

	var resp fredObservations
	if err := c.http.GetJSON(ctx, "fred", u, nil, &resp); err != nil {
		c.limiter.TriggerBackoff("fred")
		return nil, fmt.Errorf("fred %s: %w", series, err)
	}
	c.limiter.RecordRequest("fred")

	out := make([]float64, 0, n)
	for _, obs := range resp.Observations {
		if obs.Value == "." {
			continue
		}
		v, err := strconv.ParseFloat(obs.Value, 64)
		if err != nil {
			continue
		}
		out = append(out, v)
		if len(out) == n {
			break
		}
	}
	if len(out) < n {
		return nil, fmt.Errorf("fred %s: only %d of %d observations", series, len(out), n)
	}
	return out, nil
}

// m2YoY computes money-supply growth from the latest observation against
// the one 12 months back.
func (c *Collector) m2YoY(ctx context.Context) (float64, error) {
	values, err := c.recent(ctx, seriesM2, 13)
	if err != nil {
		return 0, err
	}
	current, yearAgo := values[0], values[12]
	if yearAgo == 0 {
		return 0, fmt.Errorf("fred %s: zero base", seriesM2)
	}
	return (current - yearAgo) / yearAgo * 100, nil
}

// Collect fetches every series and scores the snapshot. Individual series
// failures leave the field at zero and are noted in the log; a total
// failure returns an error.
func (c *Collector) Collect(ctx context.Context) (*models.MacroIndicators, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("macro: no FRED api key configured")
	}

	m := &models.MacroIndicators{Timestamp: c.clock().UTC()}
	failures := 0

	fetch := func(name string, dst *float64, get func(context.Context) (float64, error)) {
		v, err := get(ctx)
		if err != nil {
			failures++
			log.Warn().Err(err).Str("series", name).Msg("macro series fetch failed")
			return
		}
		*dst = v
	}
	fetch(seriesYieldCurve, &m.YieldCurveSpread, func(ctx context.Context) (float64, error) { return c.latest(ctx, seriesYieldCurve) })
	fetch(seriesFedFunds, &m.FedFundsRate, func(ctx context.Context) (float64, error) { return c.latest(ctx, seriesFedFunds) })
	fetch(seriesUnemploy, &m.UnemploymentRate, func(ctx context.Context) (float64, error) { return c.latest(ctx, seriesUnemploy) })
	fetch(seriesM2, &m.M2GrowthYoY, c.m2YoY)
	fetch(seriesHYOAS, &m.HighYieldOASBps, func(ctx context.Context) (float64, error) {
		v, err := c.latest(ctx, seriesHYOAS)
		return v * 100, err // FRED reports percent, we persist bps
	})
	fetch(seriesSentiment, &m.ConsumerSentiment, func(ctx context.Context) (float64, error) { return c.latest(ctx, seriesSentiment) })

	if failures >= 6 {
		return nil, fmt.Errorf("macro: all series failed")
	}

	Score(m)
	return m, nil
}

// Score fills in the macro score, DEFCON modifier, and signal descriptors
// from the raw indicator fields. Base 50, adjusted per indicator, clamped
// to [0, 100].
func Score(m *models.MacroIndicators) {
	score := 50.0
	var bearish, bullish []string

	if m.YieldCurveSpread < 0 {
		score -= 15
		bearish = append(bearish, fmt.Sprintf("yield curve inverted (%.2f)", m.YieldCurveSpread))
	} else if m.YieldCurveSpread > 1 {
		score += 5
		bullish = append(bullish, "yield curve comfortably positive")
	}

	if m.UnemploymentRate > 5 {
		score -= 10
		bearish = append(bearish, fmt.Sprintf("unemployment elevated (%.1f%%)", m.UnemploymentRate))
	} else if m.UnemploymentRate > 0 && m.UnemploymentRate < 4 {
		score += 5
		bullish = append(bullish, "labor market tight")
	}

	if m.M2GrowthYoY < 0 {
		score -= 10
		bearish = append(bearish, fmt.Sprintf("money supply contracting (%.1f%% YoY)", m.M2GrowthYoY))
	} else if m.M2GrowthYoY > 6 {
		score += 5
		bullish = append(bullish, "money supply expanding")
	}

	if m.HighYieldOASBps > 500 {
		score -= 15
		bearish = append(bearish, fmt.Sprintf("credit spreads stressed (%.0f bps)", m.HighYieldOASBps))
	} else if m.HighYieldOASBps > 0 && m.HighYieldOASBps < 350 {
		score += 5
		bullish = append(bullish, "credit spreads benign")
	}

	if m.ConsumerSentiment > 0 && m.ConsumerSentiment < 65 {
		score -= 10
		bearish = append(bearish, fmt.Sprintf("consumer sentiment depressed (%.0f)", m.ConsumerSentiment))
	} else if m.ConsumerSentiment > 85 {
		score += 5
		bullish = append(bullish, "consumer sentiment healthy")
	}

	if m.FedFundsRate > 5 {
		score -= 5
		bearish = append(bearish, fmt.Sprintf("policy rate restrictive (%.2f%%)", m.FedFundsRate))
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	m.MacroScore = score
	m.DefconModifier = modifier(score)
	m.BearishSignals = bearish
	m.BullishSignals = bullish
}

// modifier maps the macro score to the DEFCON soft nudge.
func modifier(score float64) float64 {
	switch {
	case score < 30:
		return -1.0
	case score < 40:
		return -0.5
	case score > 70:
		return 0.5
	default:
		return 0
	}
}
