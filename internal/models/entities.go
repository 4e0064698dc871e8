package models

import "time"

// SignalSnapshot is one row per monitoring cycle. Immutable once written.
type SignalSnapshot struct {
	ID              int64       `db:"id" json:"id"`
	Timestamp       time.Time   `db:"timestamp" json:"timestamp"`
	DefconLevel     DefconLevel `db:"defcon_level" json:"defcon_level"`
	CompositeScore  float64     `db:"composite_score" json:"composite_score"`
	BondYield       float64     `db:"bond_yield" json:"bond_yield"`
	VIX             float64     `db:"vix" json:"vix"`
	MarketChangePct float64     `db:"market_change_pct" json:"market_change_pct"`
	NewsScore       float64     `db:"news_score" json:"news_score"`
	Degraded        bool        `db:"degraded" json:"degraded"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
}

// Article is one normalized news item.
type Article struct {
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Source         string    `json:"source"`
	PublishedAt    time.Time `json:"published_at"`
	URL            string    `json:"url"`
	RelevanceScore float64   `json:"relevance_score"`
}

// ScoredArticle pairs an article with its sentiment read.
type ScoredArticle struct {
	Article
	Sentiment  Sentiment  `json:"sentiment"`
	Urgency    Urgency    `json:"urgency"`
	Confidence float64    `json:"confidence"`
	CrisisType CrisisType `json:"crisis_type"`
}

// ScoreComponents are the weighted sub-scores behind a news score.
type ScoreComponents struct {
	SentimentNet  float64 `json:"sentiment_net"`
	Concentration float64 `json:"concentration"`
	Urgency       float64 `json:"urgency"`
	Confidence    float64 `json:"confidence"`
	Keyword       float64 `json:"keyword"`
}

// NewsSignal is one row per news-ingestion batch. Immutable once written.
type NewsSignal struct {
	ID                   int64           `db:"id" json:"id"`
	Timestamp            time.Time       `db:"timestamp" json:"timestamp"`
	NewsScore            float64         `db:"news_score" json:"news_score"`
	DominantCrisisType   CrisisType      `db:"dominant_crisis_type" json:"dominant_crisis_type"`
	CrisisDescription    string          `db:"crisis_description" json:"crisis_description"`
	BreakingNewsOverride bool            `db:"breaking_news_override" json:"breaking_news_override"`
	RecommendedDefcon    *DefconLevel    `db:"recommended_defcon" json:"recommended_defcon,omitempty"`
	ArticleCount         int             `db:"article_count" json:"article_count"`
	BreakingCount        int             `db:"breaking_count" json:"breaking_count"`
	AvgConfidence        float64         `db:"avg_confidence" json:"avg_confidence"`
	SentimentSummary     string          `db:"sentiment_summary" json:"sentiment_summary"`
	Components           ScoreComponents `db:"-" json:"score_components"`
	KeywordHits          map[string]int  `db:"-" json:"keyword_hits"`
	Articles             []ScoredArticle `db:"-" json:"articles"`
}

// LLMAnalysis is a parsed model read on a news signal. One signal may have
// zero, one, or two records (one per tier).
type LLMAnalysis struct {
	ID                   int64     `db:"id" json:"id"`
	NewsSignalID         int64     `db:"news_signal_id" json:"news_signal_id"`
	Tier                 string    `db:"tier" json:"tier"`
	ModelID              string    `db:"model_id" json:"model_id"`
	TriggerKind          string    `db:"trigger_kind" json:"trigger_kind"` // elevated | breaking | scheduled
	Coherence            string    `db:"coherence" json:"coherence"`
	HiddenRisks          string    `db:"hidden_risks" json:"hidden_risks"`
	RecommendedAction    string    `db:"recommended_action" json:"recommended_action"`
	Reasoning            string    `db:"reasoning" json:"reasoning"`
	EnhancedConfidence   float64   `db:"enhanced_confidence" json:"enhanced_confidence"`
	ConfidenceAdjustment float64   `db:"confidence_adjustment" json:"confidence_adjustment"`
	Disagreement         bool      `db:"disagreement" json:"disagreement"`
	TokensIn             int       `db:"tokens_in" json:"tokens_in"`
	TokensOut            int       `db:"tokens_out" json:"tokens_out"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
}

// MacroIndicators is one periodic macro snapshot.
type MacroIndicators struct {
	ID                int64     `db:"id" json:"id"`
	Timestamp         time.Time `db:"timestamp" json:"timestamp"`
	YieldCurveSpread  float64   `db:"yield_curve_spread" json:"yield_curve_spread"`
	FedFundsRate      float64   `db:"fed_funds_rate" json:"fed_funds_rate"`
	UnemploymentRate  float64   `db:"unemployment_rate" json:"unemployment_rate"`
	M2GrowthYoY       float64   `db:"m2_growth_yoy" json:"m2_growth_yoy"`
	HighYieldOASBps   float64   `db:"hy_oas_bps" json:"hy_oas_bps"`
	ConsumerSentiment float64   `db:"consumer_sentiment" json:"consumer_sentiment"`
	MacroScore        float64   `db:"macro_score" json:"macro_score"`
	DefconModifier    float64   `db:"defcon_modifier" json:"defcon_modifier"`
	BearishSignals    []string  `db:"-" json:"bearish_signals"`
	BullishSignals    []string  `db:"-" json:"bullish_signals"`
}

// CongressTrade is one disclosed transaction. Unique on
// (politician, ticker, transaction_date, direction, amount).
type CongressTrade struct {
	ID              int64          `db:"id" json:"id"`
	Chamber         string         `db:"chamber" json:"chamber"` // house | senate
	Politician      string         `db:"politician" json:"politician"`
	Party           string         `db:"party" json:"party"`
	Ticker          string         `db:"ticker" json:"ticker"`
	Direction       TradeDirection `db:"direction" json:"direction"`
	EstimatedAmount float64        `db:"estimated_amount" json:"estimated_amount"`
	DisclosureDate  string         `db:"disclosure_date" json:"disclosure_date"`
	TransactionDate string         `db:"transaction_date" json:"transaction_date"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// ClusterSignal is derived from >=3 buys of the same ticker by distinct
// politicians inside a 30-day window.
type ClusterSignal struct {
	ID                 int64     `db:"id" json:"id"`
	Ticker             string    `db:"ticker" json:"ticker"`
	BuyCount           int       `db:"buy_count" json:"buy_count"`
	Politicians        []string  `db:"-" json:"politicians"`
	Bipartisan         bool      `db:"bipartisan" json:"bipartisan"`
	CommitteeRelevance bool      `db:"committee_relevance" json:"committee_relevance"`
	TotalAmount        float64   `db:"total_amount" json:"total_amount"`
	SignalStrength     float64   `db:"signal_strength" json:"signal_strength"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

// WatchlistEntry is a ticker queued for research.
type WatchlistEntry struct {
	ID              int64           `db:"id" json:"id"`
	Ticker          string          `db:"ticker" json:"ticker"`
	DateAdded       string          `db:"date_added" json:"date_added"`
	Source          WatchSource     `db:"source" json:"source"`
	ModelConfidence float64         `db:"model_confidence" json:"model_confidence"`
	EntryConditions string          `db:"entry_conditions" json:"entry_conditions"`
	Status          WatchlistStatus `db:"status" json:"status"`
	Notes           string          `db:"notes" json:"notes"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// ResearchRow is the gathered dossier for one (ticker, research_date).
type ResearchRow struct {
	ID           int64  `db:"id" json:"id"`
	Ticker       string `db:"ticker" json:"ticker"`
	ResearchDate string `db:"research_date" json:"research_date"`

	CurrentPrice  float64 `db:"current_price" json:"current_price"`
	Change1WPct   float64 `db:"price_1w_chg_pct" json:"price_1w_chg_pct"`
	Change1MPct   float64 `db:"price_1m_chg_pct" json:"price_1m_chg_pct"`
	High52W       float64 `db:"price_52w_high" json:"price_52w_high"`
	Low52W        float64 `db:"price_52w_low" json:"price_52w_low"`
	AvgVolume20D  int64   `db:"avg_volume_20d" json:"avg_volume_20d"`
	MarketCap     float64 `db:"market_cap" json:"market_cap"`
	PERatio       float64 `db:"pe_ratio" json:"pe_ratio"`
	ForwardPE     float64 `db:"forward_pe" json:"forward_pe"`
	ProfitMargin  float64 `db:"profit_margin" json:"profit_margin"`
	RevenueGrowth float64 `db:"revenue_growth_yoy" json:"revenue_growth_yoy"`
	DebtToEquity  float64 `db:"debt_to_equity" json:"debt_to_equity"`

	AnalystTargetMean float64 `db:"analyst_target_mean" json:"analyst_target_mean"`
	AnalystTargetHigh float64 `db:"analyst_target_high" json:"analyst_target_high"`
	AnalystTargetLow  float64 `db:"analyst_target_low" json:"analyst_target_low"`
	AnalystBuyCount   int     `db:"analyst_buy_count" json:"analyst_buy_count"`
	AnalystHoldCount  int     `db:"analyst_hold_count" json:"analyst_hold_count"`
	AnalystSellCount  int     `db:"analyst_sell_count" json:"analyst_sell_count"`

	NextEarningsDate string `db:"next_earnings_date" json:"next_earnings_date"`
	LatestFilingType string `db:"latest_filing_type" json:"latest_filing_type"`
	LatestFilingDate string `db:"latest_filing_date" json:"latest_filing_date"`
	FilingSummary    string `db:"filing_summary" json:"filing_summary"`

	NewsMentionCount int     `db:"news_mention_count" json:"news_mention_count"`
	NewsSentimentAvg float64 `db:"news_sentiment_avg" json:"news_sentiment_avg"`
	CongressStrength float64 `db:"congressional_signal_strength" json:"congressional_signal_strength"`
	CongressBuyCount int     `db:"congressional_buy_count" json:"congressional_buy_count"`
	MacroScore       float64 `db:"macro_score" json:"macro_score"`
	MarketRegime     string  `db:"market_regime" json:"market_regime"`

	RawProviderJSON string        `db:"raw_provider_json" json:"-"`
	Status          LibraryStatus `db:"status" json:"status"`
	ErrorNotes      string        `db:"error_notes" json:"error_notes"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
}

// ConditionalEntry is an analyst-approved trade plan awaiting market
// conditions. At most one active conditional exists per ticker; a newer
// plan supersedes the prior by invalidating it.
type ConditionalEntry struct {
	ID                     int64             `db:"id" json:"id"`
	Ticker                 string            `db:"ticker" json:"ticker"`
	DateCreated            string            `db:"date_created" json:"date_created"`
	EntryPriceTarget       float64           `db:"entry_price_target" json:"entry_price_target"`
	EntryPriceRationale    string            `db:"entry_price_rationale" json:"entry_price_rationale"`
	StopLoss               float64           `db:"stop_loss" json:"stop_loss"`
	TakeProfit1            float64           `db:"take_profit_1" json:"take_profit_1"`
	TakeProfit2            float64           `db:"take_profit_2" json:"take_profit_2"`
	PositionSizePct        float64           `db:"position_size_pct" json:"position_size_pct"`
	TimeHorizonDays        int               `db:"time_horizon_days" json:"time_horizon_days"`
	EntryConditions        []string          `db:"-" json:"entry_conditions"`
	InvalidationConditions []string          `db:"-" json:"invalidation_conditions"`
	ThesisSummary          string            `db:"thesis_summary" json:"thesis_summary"`
	KeyRisks               []string          `db:"-" json:"key_risks"`
	WatchTag               WatchTag          `db:"watch_tag" json:"watch_tag"`
	ResearchConfidence     float64           `db:"research_confidence" json:"research_confidence"`
	Status                 ConditionalStatus `db:"status" json:"status"`
	VerificationCount      int               `db:"verification_count" json:"verification_count"`
	LastVerified           string            `db:"last_verified" json:"last_verified"`
	AttentionScore         float64           `db:"attention_score" json:"attention_score"`
	Notes                  string            `db:"notes" json:"notes"`
	CreatedAt              time.Time         `db:"created_at" json:"created_at"`
}

// TradeRecord is an opened or closed paper position.
type TradeRecord struct {
	ID               int64       `db:"id" json:"id"`
	Ticker           string      `db:"ticker" json:"ticker"`
	EntryDate        string      `db:"entry_date" json:"entry_date"`
	EntryTime        string      `db:"entry_time" json:"entry_time"`
	EntryPrice       float64     `db:"entry_price" json:"entry_price"`
	Shares           int64       `db:"shares" json:"shares"`
	CostBasis        float64     `db:"cost_basis" json:"cost_basis"`
	EntrySignalScore float64     `db:"entry_signal_score" json:"entry_signal_score"`
	DefconAtEntry    DefconLevel `db:"defcon_at_entry" json:"defcon_at_entry"`
	Status           TradeStatus `db:"status" json:"status"`
	CurrentPrice     float64     `db:"current_price" json:"current_price"`
	UnrealizedPnL    float64     `db:"unrealized_pnl" json:"unrealized_pnl"`
	ExitDate         string      `db:"exit_date" json:"exit_date"`
	ExitTime         string      `db:"exit_time" json:"exit_time"`
	ExitPrice        float64     `db:"exit_price" json:"exit_price"`
	ExitReason       ExitReason  `db:"exit_reason" json:"exit_reason"`
	RealizedPnL      float64     `db:"profit_loss_dollars" json:"profit_loss_dollars"`
	RealizedPnLPct   float64     `db:"profit_loss_percent" json:"profit_loss_percent"`
	HoldingHours     float64     `db:"holding_hours" json:"holding_hours"`
	Notes            string      `db:"notes" json:"notes"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
}

// EntryTimestamp reassembles the entry wall-clock from the split columns.
func (t TradeRecord) EntryTimestamp() (time.Time, error) {
	return time.Parse("2006-01-02 15:04:05", t.EntryDate+" "+t.EntryTime)
}

// DailyBriefing is one row per (date, tier).
type DailyBriefing struct {
	ID               int64          `db:"id" json:"id"`
	Date             string         `db:"date" json:"date"`
	Tier             string         `db:"tier" json:"tier"` // reasoning | morning_flash | midday_flash
	MarketRegime     string         `db:"market_regime" json:"market_regime"`
	RegimeConfidence float64        `db:"regime_confidence" json:"regime_confidence"`
	Headline         string         `db:"headline" json:"headline"`
	KeyThemes        []string       `db:"-" json:"key_themes"`
	Risks            []string       `db:"-" json:"risks"`
	Opportunities    []string       `db:"-" json:"opportunities"`
	Watchlist        []BriefingPick `db:"-" json:"watchlist_tomorrow"`
	DefconForecast   int            `db:"defcon_forecast" json:"defcon_forecast"`
	DataGaps         []string       `db:"-" json:"data_gaps"`
	TokensIn         int            `db:"tokens_in" json:"tokens_in"`
	TokensOut        int            `db:"tokens_out" json:"tokens_out"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
}

// BriefingPick is one watchlist candidate from a briefing.
type BriefingPick struct {
	Ticker     string  `json:"ticker"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}
