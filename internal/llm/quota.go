package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Quota verdicts. Soft limits only: Block refuses new calls through the
// gateway, it does not cancel in-flight work.
type QuotaState int

const (
	QuotaOK QuotaState = iota
	QuotaWarn
	QuotaBlock
)

func (q QuotaState) String() string {
	switch q {
	case QuotaOK:
		return "ok"
	case QuotaWarn:
		return "warn"
	case QuotaBlock:
		return "block"
	default:
		return "unknown"
	}
}

const (
	warnFraction  = 0.75
	blockFraction = 0.95
	quotaWindow   = 24 * time.Hour
)

// CallCounter is the slice of the store the quota tracker needs.
type CallCounter interface {
	Record(ctx context.Context, modelID, tier, caller string, tokensIn, tokensOut int, downgraded bool) error
	CountSince(ctx context.Context, modelID string, since time.Time) (int, error)
}

// QuotaTracker enforces rolling-24h soft limits per model.
type QuotaTracker struct {
	calls  CallCounter
	limits map[string]int
	clock  func() time.Time
}

// NewQuotaTracker builds a tracker. Models absent from limits are never
// limited.
func NewQuotaTracker(calls CallCounter, limits map[string]int, clock func() time.Time) *QuotaTracker {
	if clock == nil {
		clock = time.Now
	}
	return &QuotaTracker{calls: calls, limits: limits, clock: clock}
}

// Check classifies the model's rolling-24h usage. Accounting errors degrade
// to QuotaOK: a broken call log must not halt the orchestrator.
func (q *QuotaTracker) Check(ctx context.Context, modelID string) (QuotaState, int, error) {
	limit, limited := q.limits[modelID]
	if !limited || limit <= 0 {
		return QuotaOK, 0, nil
	}
	used, err := q.calls.CountSince(ctx, modelID, q.clock().Add(-quotaWindow))
	if err != nil {
		log.Warn().Err(err).Str("model", modelID).Msg("quota count failed, allowing call")
		return QuotaOK, 0, nil
	}
	frac := float64(used) / float64(limit)
	switch {
	case frac >= blockFraction:
		return QuotaBlock, used, nil
	case frac >= warnFraction:
		log.Warn().Str("model", modelID).Int("used", used).Int("limit", limit).
			Msg("model approaching quota soft limit")
		return QuotaWarn, used, nil
	default:
		return QuotaOK, used, nil
	}
}

// RecordCall logs one completed call for quota accounting.
func (q *QuotaTracker) RecordCall(ctx context.Context, modelID, tier, caller string, tokensIn, tokensOut int, downgraded bool) {
	if err := q.calls.Record(ctx, modelID, tier, caller, tokensIn, tokensOut, downgraded); err != nil {
		log.Warn().Err(err).Str("model", modelID).Msg("record llm call failed")
	}
}

// ErrQuotaBlocked is returned when the model is at or past the block
// threshold. Callers decide whether to downgrade the tier; the gateway
// never downgrades on its own.
type ErrQuotaBlocked struct {
	ModelID string
	Used    int
	Limit   int
}

func (e *ErrQuotaBlocked) Error() string {
	return fmt.Sprintf("llm: model %s quota blocked (%d/%d in 24h)", e.ModelID, e.Used, e.Limit)
}
