package models

// DefconLevel is the graded alert level. Lower means more defensive:
// 1 = execute, 5 = peacetime.
type DefconLevel int

const (
	DefconExecute   DefconLevel = 1
	DefconPreBottom DefconLevel = 2
	DefconCrisis    DefconLevel = 3
	DefconElevated  DefconLevel = 4
	DefconPeacetime DefconLevel = 5
)

func (d DefconLevel) String() string {
	switch d {
	case DefconExecute:
		return "execute"
	case DefconPreBottom:
		return "pre_bottom"
	case DefconCrisis:
		return "crisis"
	case DefconElevated:
		return "elevated"
	case DefconPeacetime:
		return "peacetime"
	default:
		return "unknown"
	}
}

// Valid reports whether the level is in the 1..5 range.
func (d DefconLevel) Valid() bool {
	return d >= DefconExecute && d <= DefconPeacetime
}

// Clamp forces the level into the 1..5 range.
func (d DefconLevel) Clamp() DefconLevel {
	if d < DefconExecute {
		return DefconExecute
	}
	if d > DefconPeacetime {
		return DefconPeacetime
	}
	return d
}

// BrokerMode controls how much autonomy the paper broker has.
type BrokerMode string

const (
	BrokerDisabled BrokerMode = "disabled"  // alert only, operator approves via yes/no
	BrokerSemiAuto BrokerMode = "semi_auto" // execute and notify
	BrokerFullAuto BrokerMode = "full_auto" // execute silently
)

// ParseBrokerMode validates an operator-supplied mode string.
func ParseBrokerMode(s string) (BrokerMode, bool) {
	switch BrokerMode(s) {
	case BrokerDisabled, BrokerSemiAuto, BrokerFullAuto:
		return BrokerMode(s), true
	}
	return "", false
}

// TradeStatus is the lifecycle state of a trade record.
type TradeStatus string

const (
	TradeOpen   TradeStatus = "open"
	TradeClosed TradeStatus = "closed"
)

// ExitReason is the persisted exit reason enum. Trailing-stop and
// time-limit exits are normalized to ExitManual with a descriptive note so
// historical queries stay coherent.
type ExitReason string

const (
	ExitProfitTarget ExitReason = "profit_target"
	ExitStopLoss     ExitReason = "stop_loss"
	ExitManual       ExitReason = "manual"
	ExitInvalidation ExitReason = "invalidation"
)

// WatchSource identifies how a ticker landed on the watchlist.
type WatchSource string

const (
	SourceDailyBriefing  WatchSource = "daily_briefing"
	SourceStopRebound    WatchSource = "stop_loss_rebound"
	SourceReaccumulation WatchSource = "profit_target_reaccumulation"
	SourceManual         WatchSource = "manual"
	SourceGrokHound      WatchSource = "grok_hound"
)

// WatchlistStatus is the watchlist entry state machine.
//
//	pending -> researched -> (analyst_pass | conditional_set)
//	        -> (invalidated | triggered | expired)
//	pending -> research_error
type WatchlistStatus string

const (
	WatchPending        WatchlistStatus = "pending"
	WatchResearched     WatchlistStatus = "researched"
	WatchResearchError  WatchlistStatus = "research_error"
	WatchAnalystPass    WatchlistStatus = "analyst_pass"
	WatchConditionalSet WatchlistStatus = "conditional_set"
	WatchInvalidated    WatchlistStatus = "invalidated"
	WatchTriggered      WatchlistStatus = "triggered"
	WatchExpired        WatchlistStatus = "expired"
)

// CanTransition reports whether moving to next is a legal watchlist
// transition.
func (s WatchlistStatus) CanTransition(next WatchlistStatus) bool {
	allowed := map[WatchlistStatus][]WatchlistStatus{
		WatchPending:        {WatchResearched, WatchResearchError},
		WatchResearched:     {WatchAnalystPass, WatchConditionalSet},
		WatchConditionalSet: {WatchInvalidated, WatchTriggered, WatchExpired},
	}
	for _, n := range allowed[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status has no legal successors.
func (s WatchlistStatus) Terminal() bool {
	switch s {
	case WatchInvalidated, WatchTriggered, WatchExpired, WatchResearchError, WatchAnalystPass:
		return true
	}
	return false
}

// LibraryStatus tracks a research dossier through the analyst stage.
type LibraryStatus string

const (
	LibraryReady    LibraryStatus = "library_ready"
	LibraryPartial  LibraryStatus = "partial"
	LibraryExpired  LibraryStatus = "expired"
	LibraryAnalysed LibraryStatus = "analysed"
)

// ConditionalStatus is the lifecycle of an analyst-approved trade plan.
type ConditionalStatus string

const (
	ConditionalActive      ConditionalStatus = "active"
	ConditionalTriggered   ConditionalStatus = "triggered"
	ConditionalInvalidated ConditionalStatus = "invalidated"
	ConditionalFlagged     ConditionalStatus = "flagged"
	ConditionalExpired     ConditionalStatus = "expired"
)

// WatchTag classifies the setup type of a conditional entry. The tag shapes
// entry, stop, and sizing policy in the analyst prompt.
type WatchTag string

const (
	TagBreakout       WatchTag = "breakout"
	TagMeanReversion  WatchTag = "mean-reversion"
	TagMomentum       WatchTag = "momentum"
	TagDefensiveHedge WatchTag = "defensive-hedge"
	TagMacroHedge     WatchTag = "macro-hedge"
	TagEarningsPlay   WatchTag = "earnings-play"
	TagRebound        WatchTag = "rebound"
)

// WatchTags lists all recognized tags.
var WatchTags = []WatchTag{
	TagBreakout, TagMeanReversion, TagMomentum, TagDefensiveHedge,
	TagMacroHedge, TagEarningsPlay, TagRebound,
}

// CrisisType is the closed set of news crisis categories.
type CrisisType string

const (
	CrisisTechCrash        CrisisType = "tech_crash"
	CrisisGeopolitical     CrisisType = "geopolitical_trade"
	CrisisLiquidityCredit  CrisisType = "liquidity_credit"
	CrisisInflationRate    CrisisType = "inflation_rate"
	CrisisPandemicHealth   CrisisType = "pandemic_health"
	CrisisEnergyCommodity  CrisisType = "energy_commodity"
	CrisisMarketCorrection CrisisType = "market_correction"
)

// Label returns the human-readable crisis label used in notifications.
func (c CrisisType) Label() string {
	switch c {
	case CrisisTechCrash:
		return "Technology Sector Crisis"
	case CrisisGeopolitical:
		return "Geopolitical/Trade Tensions"
	case CrisisLiquidityCredit:
		return "Liquidity/Credit Crisis"
	case CrisisInflationRate:
		return "Inflation/Fed Policy Crisis"
	case CrisisPandemicHealth:
		return "Pandemic/Health Crisis"
	case CrisisEnergyCommodity:
		return "Energy/Commodity Shock"
	case CrisisMarketCorrection:
		return "Broad Market Correction"
	default:
		return "Market Event"
	}
}

// TradeDirection is the disclosed direction of a congressional transaction.
type TradeDirection string

const (
	DirectionBuy     TradeDirection = "buy"
	DirectionSell    TradeDirection = "sell"
	DirectionUnknown TradeDirection = "unknown"
)

// Urgency buckets a news article by how time-critical it is.
type Urgency string

const (
	UrgencyBreaking Urgency = "breaking"
	UrgencyHigh     Urgency = "high"
	UrgencyRoutine  Urgency = "routine"
)

// Sentiment is the per-article directional read.
type Sentiment string

const (
	SentimentBearish Sentiment = "bearish"
	SentimentBullish Sentiment = "bullish"
	SentimentNeutral Sentiment = "neutral"
)

// Verdict is the verifier's judgement on an active conditional.
type Verdict string

const (
	VerdictConfirm    Verdict = "confirm"
	VerdictFlag       Verdict = "flag"
	VerdictInvalidate Verdict = "invalidate"
)
