// Package pipeline implements the acquisition stages: researcher, analyst,
// verifier, and the discovery hound. Each stage is an independent function
// runnable on demand or from the scheduler.
package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/warroom-labs/warroom/internal/config"
	"github.com/warroom-labs/warroom/internal/marketdata"
	"github.com/warroom-labs/warroom/internal/models"
	"github.com/warroom-labs/warroom/internal/store"
)

// MarketProvider is the slice of market data the researcher consumes.
type MarketProvider interface {
	FetchQuote(ctx context.Context, ticker string) (*marketdata.Quote, error)
	FetchFundamentals(ctx context.Context, ticker string) (*marketdata.Fundamentals, error)
	FetchBarStats(ctx context.Context, ticker string) (*marketdata.BarStats, error)
	FetchFilings(ctx context.Context, ticker string, limit int) ([]marketdata.Filing, error)
}

// Researcher assembles research dossiers for pending watchlist tickers.
type Researcher struct {
	cfg    *config.Config
	watch  store.WatchlistRepo
	lib    store.ResearchRepo
	news   store.NewsRepo
	macro  store.MacroRepo
	cong   store.CongressRepo
	market MarketProvider
	clock  func() time.Time
}

// NewResearcher wires the stage.
func NewResearcher(cfg *config.Config, st *store.Store, market MarketProvider, clock func() time.Time) *Researcher {
	if clock == nil {
		clock = time.Now
	}
	return &Researcher{
		cfg: cfg, watch: st.Watchlist, lib: st.Research, news: st.News,
		macro: st.Macro, cong: st.Congress, market: market, clock: clock,
	}
}

// Run researches up to the configured batch of pending watchlist entries.
// Returns the number of dossiers written.
func (r *Researcher) Run(ctx context.Context) int {
	entries, err := r.watch.Pending(ctx, r.cfg.MaxWatchlistPerRun)
	if err != nil {
		log.Error().Err(err).Msg("load pending watchlist failed")
		return 0
	}

	done := 0
	for _, entry := range entries {
		if r.freshDossierExists(ctx, entry.Ticker) {
			if err := r.watch.SetStatus(ctx, entry.ID, models.WatchResearched, ""); err != nil {
				log.Warn().Err(err).Int64("id", entry.ID).Msg("mark researched failed")
			}
			done++
			continue
		}

		row, failures := r.assemble(ctx, entry.Ticker)
		if failures == totalProviders {
			if err := r.watch.SetStatus(ctx, entry.ID, models.WatchResearchError,
				"all research providers failed"); err != nil {
				log.Warn().Err(err).Int64("id", entry.ID).Msg("mark research error failed")
			}
			continue
		}
		if _, err := r.lib.Upsert(ctx, row); err != nil {
			log.Error().Err(err).Str("ticker", entry.Ticker).Msg("persist dossier failed")
			continue
		}
		if err := r.watch.SetStatus(ctx, entry.ID, models.WatchResearched, ""); err != nil {
			log.Warn().Err(err).Int64("id", entry.ID).Msg("mark researched failed")
		}
		log.Info().Str("ticker", entry.Ticker).Str("status", string(row.Status)).
			Msg("research dossier written")
		done++
	}
	return done
}

// freshDossierExists reports whether a usable dossier newer than the stale
// window already exists for the ticker.
func (r *Researcher) freshDossierExists(ctx context.Context, ticker string) bool {
	row, err := r.lib.LatestForTicker(ctx, ticker)
	if err != nil {
		return false
	}
	if row.Status != models.LibraryReady && row.Status != models.LibraryPartial {
		return false
	}
	date, err := time.Parse("2006-01-02", row.ResearchDate)
	if err != nil {
		return false
	}
	return r.clock().Sub(date) < time.Duration(r.cfg.StaleDays)*24*time.Hour
}

// The external providers a dossier draws on: bars, fundamentals, filings.
// Internal signals never fail the dossier.
const totalProviders = 3

// assemble gathers every dossier block. Provider failures are recorded in
// error_notes; the returned failure count only covers external providers.
func (r *Researcher) assemble(ctx context.Context, ticker string) (*models.ResearchRow, int) {
	today := r.clock().Format("2006-01-02")
	row := &models.ResearchRow{
		Ticker:          ticker,
		ResearchDate:    today,
		Status:          models.LibraryReady,
		RawProviderJSON: "{}",
	}
	var notes []string
	failures := 0

	if bars, err := r.market.FetchBarStats(ctx, ticker); err != nil {
		failures++
		notes = append(notes, "bars: "+err.Error())
	} else {
		row.CurrentPrice = bars.CurrentPrice
		row.Change1WPct = bars.Change1WPct
		row.Change1MPct = bars.Change1MPct
		row.High52W = bars.High52W
		row.Low52W = bars.Low52W
		row.AvgVolume20D = bars.AvgVolume20D
	}

	if fund, err := r.market.FetchFundamentals(ctx, ticker); err != nil {
		failures++
		notes = append(notes, "fundamentals: "+err.Error())
	} else {
		row.MarketCap = fund.MarketCap
		row.PERatio = fund.PERatio
		row.ForwardPE = fund.ForwardPE
		row.ProfitMargin = fund.ProfitMargin
		row.RevenueGrowth = fund.RevenueGrowthYoY
		row.DebtToEquity = fund.DebtToEquity
		row.AnalystTargetMean = fund.AnalystTargetMean
		row.NextEarningsDate = fund.NextEarningsDate
		if raw, err := json.Marshal(fund); err == nil {
			row.RawProviderJSON = string(raw)
		}
	}

	if filings, err := r.market.FetchFilings(ctx, ticker, 3); err != nil {
		failures++
		notes = append(notes, "filings: "+err.Error())
	} else if len(filings) > 0 {
		row.LatestFilingType = filings[0].Form
		row.LatestFilingDate = filings[0].FilingDate
		row.FilingSummary = summarizeFilings(filings)
	}

	// No price at all makes the dossier unusable regardless of the rest.
	if row.CurrentPrice <= 0 {
		if q, err := r.market.FetchQuote(ctx, ticker); err == nil {
			row.CurrentPrice = q.Price
		}
	}

	r.attachInternalSignals(ctx, row)

	if failures > 0 {
		row.Status = models.LibraryPartial
		row.ErrorNotes = strings.Join(notes, "; ")
	}
	return row, failures
}

// attachInternalSignals folds in news mentions, congressional strength, and
// the current macro read. Best effort.
func (r *Researcher) attachInternalSignals(ctx context.Context, row *models.ResearchRow) {
	if sig, err := r.news.LatestSignal(ctx); err == nil {
		mentions, sentiment := countMentions(sig.Articles, row.Ticker)
		row.NewsMentionCount = mentions
		row.NewsSentimentAvg = sentiment
	}
	if strength, buys, err := r.cong.StrengthForTicker(ctx, row.Ticker); err == nil {
		row.CongressStrength = strength
		row.CongressBuyCount = buys
	}
	if m, err := r.macro.Latest(ctx); err == nil {
		row.MacroScore = m.MacroScore
		row.MarketRegime = regimeFromScore(m.MacroScore)
	} else {
		row.MacroScore = 50
		row.MarketRegime = "unknown"
	}
}

// countMentions scans scored articles for the ticker and averages sentiment
// over the mentions (-1 bearish .. +1 bullish).
func countMentions(articles []models.ScoredArticle, ticker string) (int, float64) {
	needle := strings.ToUpper(ticker)
	count := 0
	total := 0.0
	for _, a := range articles {
		text := strings.ToUpper(a.Title + " " + a.Description)
		if !containsWord(text, needle) {
			continue
		}
		count++
		switch a.Sentiment {
		case models.SentimentBearish:
			total -= 1
		case models.SentimentBullish:
			total += 1
		}
	}
	if count == 0 {
		return 0, 0
	}
	return count, total / float64(count)
}

// containsWord matches the ticker as a whole token, so "A" does not match
// inside "APPLE".
func containsWord(text, word string) bool {
	for idx := strings.Index(text, word); idx >= 0; {
		before := idx == 0 || !isAlnum(text[idx-1])
		afterIdx := idx + len(word)
		after := afterIdx >= len(text) || !isAlnum(text[afterIdx])
		if before && after {
			return true
		}
		next := strings.Index(text[idx+1:], word)
		if next < 0 {
			return false
		}
		idx += 1 + next
	}
	return false
}

func isAlnum(b byte) bool {
	return b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

func regimeFromScore(score float64) string {
	switch {
	case score < 30:
		return "stress"
	case score < 45:
		return "caution"
	case score > 65:
		return "expansion"
	default:
		return "neutral"
	}
}

func summarizeFilings(filings []marketdata.Filing) string {
	parts := make([]string, 0, len(filings))
	for _, f := range filings {
		p := f.Form + " " + f.FilingDate
		if f.Description != "" {
			p += " (" + f.Description + ")"
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, "; ")
}
