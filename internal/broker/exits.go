package broker

import (
	"fmt"
	"time"

	"github.com/warroom-labs/warroom/internal/config"
	"github.com/warroom-labs/warroom/internal/models"
)

// ExitTrigger is the internal exit cause. Persistence narrows this to the
// four-reason enum via PersistedReason.
type ExitTrigger int

const (
	TriggerNone ExitTrigger = iota
	TriggerStopLoss
	TriggerProfitTarget
	TriggerTrailingStop
	TriggerTimeAndLoss
	TriggerRegimeReversion
	TriggerTimeLimit
)

func (t ExitTrigger) String() string {
	switch t {
	case TriggerStopLoss:
		return "stop_loss"
	case TriggerProfitTarget:
		return "profit_target"
	case TriggerTrailingStop:
		return "trailing_stop"
	case TriggerTimeAndLoss:
		return "time_and_loss"
	case TriggerRegimeReversion:
		return "regime_reversion"
	case TriggerTimeLimit:
		return "time_limit"
	default:
		return "none"
	}
}

// PersistedReason maps the internal trigger onto the persisted enum.
// Trailing-stop and time-based exits persist as manual with the trigger
// kept in the note.
func (t ExitTrigger) PersistedReason() models.ExitReason {
	switch t {
	case TriggerStopLoss:
		return models.ExitStopLoss
	case TriggerProfitTarget:
		return models.ExitProfitTarget
	default:
		return models.ExitManual
	}
}

// ExitDecision is the outcome of one evaluation.
type ExitDecision struct {
	ShouldExit bool
	Trigger    ExitTrigger
	Priority   int
	ReturnPct  float64
	Note       string
}

// ExitEngine evaluates open positions against the exit policy. Pure given
// its inputs; trailing peaks are supplied by the caller.
type ExitEngine struct {
	policy config.ExitPolicy
}

// NewExitEngine builds the engine.
func NewExitEngine(policy config.ExitPolicy) *ExitEngine {
	return &ExitEngine{policy: policy}
}

// Evaluate returns at most one exit per call: the highest-priority rule
// that fires. peak is the highest price seen since entry (0 = untracked).
func (e *ExitEngine) Evaluate(trade *models.TradeRecord, currentPrice float64, currentDefcon models.DefconLevel, peak float64, now time.Time) ExitDecision {
	if trade.EntryPrice <= 0 || currentPrice <= 0 {
		return ExitDecision{}
	}
	returnPct := (currentPrice - trade.EntryPrice) / trade.EntryPrice

	holdingHours := 0.0
	if entered, err := trade.EntryTimestamp(); err == nil {
		holdingHours = now.Sub(entered).Hours()
	}
	pastMinHold := holdingHours >= e.policy.MinHoldHours

	result := ExitDecision{ReturnPct: returnPct}

	// Priority 5: stop loss ignores the minimum hold window.
	if returnPct <= e.policy.StopLossPct {
		result = ExitDecision{
			ShouldExit: true, Trigger: TriggerStopLoss, Priority: 5, ReturnPct: returnPct,
			Note: fmt.Sprintf("stop loss hit at %.2f%%", returnPct*100),
		}
	}

	// Priority 4: profit target, gated by minimum hold.
	if !result.ShouldExit && pastMinHold && returnPct >= e.policy.ProfitTargetPct {
		result = ExitDecision{
			ShouldExit: true, Trigger: TriggerProfitTarget, Priority: 4, ReturnPct: returnPct,
			Note: fmt.Sprintf("profit target reached at %.2f%%", returnPct*100),
		}
	}

	// Priority 3: trailing stop. Only active once price has run past entry.
	if !result.ShouldExit && pastMinHold && peak > trade.EntryPrice {
		drawdownFromPeak := (currentPrice - peak) / peak
		if drawdownFromPeak <= -e.policy.TrailingStopPct {
			result = ExitDecision{
				ShouldExit: true, Trigger: TriggerTrailingStop, Priority: 3, ReturnPct: returnPct,
				Note: fmt.Sprintf("trailing stop: %.2f%% off peak %.2f", drawdownFromPeak*100, peak),
			}
		}
	}

	// Priority 3: deep into the hold window and still underwater.
	if !result.ShouldExit && pastMinHold &&
		holdingHours >= 0.8*e.policy.MaxHoldHours && returnPct < 0 {
		result = ExitDecision{
			ShouldExit: true, Trigger: TriggerTimeAndLoss, Priority: 3, ReturnPct: returnPct,
			Note: fmt.Sprintf("held %.0fh of %.0fh max with %.2f%% loss", holdingHours, e.policy.MaxHoldHours, returnPct*100),
		}
	}

	// Priority 2: crisis-opportunity trades close when the crisis lifts.
	if !result.ShouldExit && trade.DefconAtEntry <= models.DefconPreBottom &&
		currentDefcon >= models.DefconCrisis {
		result = ExitDecision{
			ShouldExit: true, Trigger: TriggerRegimeReversion, Priority: 2, ReturnPct: returnPct,
			Note: fmt.Sprintf("regime reverted: entered at defcon %d, now %d", trade.DefconAtEntry, currentDefcon),
		}
	}

	// Priority 2: hard time limit, unconditional on P&L.
	if !result.ShouldExit && holdingHours >= e.policy.MaxHoldHours {
		result = ExitDecision{
			ShouldExit: true, Trigger: TriggerTimeLimit, Priority: 2, ReturnPct: returnPct,
			Note: fmt.Sprintf("max hold of %.0fh reached", e.policy.MaxHoldHours),
		}
	}

	return result
}
