// Package marketdata fetches quotes and the per-cycle market snapshot.
// Index-level data (10Y yield, VIX, S&P) comes from Stooq's free CSV feed;
// single-stock quotes prefer Alpha Vantage and fall back to Stooq.
package marketdata

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/warroom-labs/warroom/internal/httpx"
	"github.com/warroom-labs/warroom/internal/ratelimit"
)

// Stooq symbols for the composite inputs.
const (
	symbol10Y = "10usy.b"
	symbolVIX = "vi.f"
	symbolSPX = "^spx"
)

// Snapshot is the market state feeding the composite score. Missing lists
// the inputs that could not be fetched; any missing input marks the
// snapshot degraded and the corresponding field holds its zero value.
type Snapshot struct {
	BondYield10Y    float64
	VIX             float64
	MarketChangePct float64
	Degraded        bool
	Missing         []string
}

// Quote is one equity quote.
type Quote struct {
	Ticker    string
	Price     float64
	ChangePct float64
}

// Service fetches market data through the shared throttles.
type Service struct {
	http    *httpx.Client
	limiter *ratelimit.Limiter
	avKey   string

	cikCache map[string]int64 // ticker -> EDGAR CIK, loaded on first use
}

// New builds the service. An empty Alpha Vantage key routes all quotes
// through Stooq.
func New(client *httpx.Client, limiter *ratelimit.Limiter, alphaVantageKey string) *Service {
	return &Service{http: client, limiter: limiter, avKey: alphaVantageKey}
}

// FetchSnapshot gathers the three composite inputs. Partial failure does
// not abort: the snapshot comes back degraded with the failures listed.
func (s *Service) FetchSnapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}

	if row, err := s.stooqRow(ctx, symbol10Y); err != nil {
		snap.Missing = append(snap.Missing, "bond_yield")
		log.Warn().Err(err).Msg("10y yield fetch failed")
	} else {
		snap.BondYield10Y = row.close
	}

	if row, err := s.stooqRow(ctx, symbolVIX); err != nil {
		snap.Missing = append(snap.Missing, "vix")
		log.Warn().Err(err).Msg("vix fetch failed")
	} else {
		snap.VIX = row.close
	}

	if row, err := s.stooqRow(ctx, symbolSPX); err != nil {
		snap.Missing = append(snap.Missing, "market_change")
		log.Warn().Err(err).Msg("s&p fetch failed")
	} else if row.open > 0 {
		snap.MarketChangePct = (row.close - row.open) / row.open * 100
	}

	snap.Degraded = len(snap.Missing) > 0
	if len(snap.Missing) == 3 {
		return snap, fmt.Errorf("marketdata: all snapshot inputs failed")
	}
	return snap, nil
}

// FetchQuote returns the latest quote for a ticker.
func (s *Service) FetchQuote(ctx context.Context, ticker string) (*Quote, error) {
	if s.avKey != "" {
		q, err := s.alphaVantageQuote(ctx, ticker)
		if err == nil {
			return q, nil
		}
		log.Warn().Err(err).Str("ticker", ticker).Msg("alpha vantage quote failed, trying stooq")
	}
	row, err := s.stooqRow(ctx, strings.ToLower(ticker)+".us")
	if err != nil {
		return nil, fmt.Errorf("quote %s: %w", ticker, err)
	}
	q := &Quote{Ticker: ticker, Price: row.close}
	if row.open > 0 {
		q.ChangePct = (row.close - row.open) / row.open * 100
	}
	return q, nil
}

type stooqQuote struct {
	open  float64
	close float64
}

func (s *Service) stooqRow(ctx context.Context, symbol string) (*stooqQuote, error) {
	if err := s.limiter.WaitIfNeeded(ctx, "quotes"); err != nil {
		return nil, err
	}
	u := "https://stooq.com/q/l/?s=" + url.QueryEscape(symbol) + "&f=sd2t2ohlcv&h&e=csv"
	body, err := s.http.Get(ctx, "quotes", u, nil)
	if err != nil {
		s.limiter.TriggerBackoff("quotes")
		return nil, err
	}
	s.limiter.RecordRequest("quotes")

	q, err := parseStooqCSV(string(body))
	if err != nil {
		return nil, fmt.Errorf("stooq %s: %w", symbol, err)
	}
	return q, nil
}

// parseStooqCSV reads the single-row quote CSV:
// Symbol,Date,Time,Open,High,Low,Close,Volume
func parseStooqCSV(body string) (*stooqQuote, error) {
	records, err := csv.NewReader(strings.NewReader(body)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) < 2 || len(records[1]) < 7 {
		return nil, fmt.Errorf("unexpected csv shape")
	}
	row := records[1]
	openPx, err1 := strconv.ParseFloat(row[3], 64)
	closePx, err2 := strconv.ParseFloat(row[6], 64)
	if err2 != nil {
		return nil, fmt.Errorf("no close price (%q)", row[6])
	}
	if err1 != nil {
		openPx = 0
	}
	return &stooqQuote{open: openPx, close: closePx}, nil
}

type avGlobalQuote struct {
	GlobalQuote struct {
		Price         string `json:"05. price"`
		ChangePercent string `json:"10. change percent"`
	} `json:"Global Quote"`
	Note string `json:"Note"`
}

func (s *Service) alphaVantageQuote(ctx context.Context, ticker string) (*Quote, error) {
	if err := s.limiter.WaitIfNeeded(ctx, "alphavantage"); err != nil {
		return nil, err
	}
	u := "https://www.alphavantage.co/query?function=GLOBAL_QUOTE&symbol=" +
		url.QueryEscape(ticker) + "&apikey=" + url.QueryEscape(s.avKey)

	var resp avGlobalQuote
	if err := s.http.GetJSON(ctx, "alphavantage", u, nil, &resp); err != nil {
		s.limiter.TriggerBackoff("alphavantage")
		return nil, err
	}
	s.limiter.RecordRequest("alphavantage")

	if resp.Note != "" {
		s.limiter.TriggerBackoff("alphavantage")
		return nil, fmt.Errorf("alpha vantage throttled: %s", resp.Note)
	}
	price, err := strconv.ParseFloat(resp.GlobalQuote.Price, 64)
	if err != nil || price <= 0 {
		return nil, fmt.Errorf("alpha vantage: no price for %s", ticker)
	}
	q := &Quote{Ticker: ticker, Price: price}
	if pct := strings.TrimSuffix(resp.GlobalQuote.ChangePercent, "%"); pct != "" {
		q.ChangePct, _ = strconv.ParseFloat(pct, 64)
	}
	return q, nil
}
