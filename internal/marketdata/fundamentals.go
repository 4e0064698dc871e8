package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// ErrUnavailable marks a provider that could not serve the request. Callers
// degrade to a partial dossier; no value is ever synthesized.
var ErrUnavailable = errors.New("marketdata: unavailable")

// Fundamentals is the Alpha Vantage company overview, parsed to numbers.
type Fundamentals struct {
	Ticker            string
	MarketCap         float64
	PERatio           float64
	ForwardPE         float64
	ProfitMargin      float64
	RevenueGrowthYoY  float64
	DebtToEquity      float64
	AnalystTargetMean float64
	NextEarningsDate  string
}

// BarStats summarizes the daily price history for the research dossier.
type BarStats struct {
	CurrentPrice float64
	Change1WPct  float64
	Change1MPct  float64
	High52W      float64
	Low52W       float64
	AvgVolume20D int64
}

// Filing is one recent SEC filing.
type Filing struct {
	Form        string
	FilingDate  string
	Description string
}

type avOverview struct {
	Symbol                    string `json:"Symbol"`
	MarketCapitalization      string `json:"MarketCapitalization"`
	PERatio                   string `json:"PERatio"`
	ForwardPE                 string `json:"ForwardPE"`
	ProfitMargin              string `json:"ProfitMargin"`
	QuarterlyRevenueGrowthYOY string `json:"QuarterlyRevenueGrowthYOY"`
	AnalystTargetPrice        string `json:"AnalystTargetPrice"`
	Note                      string `json:"Note"`
}

// FetchFundamentals pulls the company overview. Requires an Alpha Vantage
// key; without one the provider is unavailable.
func (s *Service) FetchFundamentals(ctx context.Context, ticker string) (*Fundamentals, error) {
	if s.avKey == "" {
		return nil, fmt.Errorf("fundamentals %s: no api key: %w", ticker, ErrUnavailable)
	}
	if err := s.limiter.WaitIfNeeded(ctx, "alphavantage"); err != nil {
		return nil, err
	}
	u := "https://www.alphavantage.co/query?function=OVERVIEW&symbol=" +
		url.QueryEscape(ticker) + "&apikey=" + url.QueryEscape(s.avKey)

	var resp avOverview
	if err := s.http.GetJSON(ctx, "alphavantage", u, nil, &resp); err != nil {
		s.limiter.TriggerBackoff("alphavantage")
		return nil, fmt.Errorf("fundamentals %s: %w", ticker, err)
	}
	s.limiter.RecordRequest("alphavantage")

	if resp.Note != "" {
		s.limiter.TriggerBackoff("alphavantage")
		return nil, fmt.Errorf("fundamentals %s: throttled: %w", ticker, ErrUnavailable)
	}
	if resp.Symbol == "" {
		return nil, fmt.Errorf("fundamentals %s: empty overview: %w", ticker, ErrUnavailable)
	}

	return &Fundamentals{
		Ticker:            ticker,
		MarketCap:         avFloat(resp.MarketCapitalization),
		PERatio:           avFloat(resp.PERatio),
		ForwardPE:         avFloat(resp.ForwardPE),
		ProfitMargin:      avFloat(resp.ProfitMargin),
		RevenueGrowthYoY:  avFloat(resp.QuarterlyRevenueGrowthYOY),
		AnalystTargetMean: avFloat(resp.AnalystTargetPrice),
	}, nil
}

// avFloat parses an Alpha Vantage numeric field. "None" and "-" read as 0.
func avFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

type avDailySeries struct {
	Series map[string]struct {
		Close  string `json:"4. close"`
		Volume string `json:"5. volume"`
	} `json:"Time Series (Daily)"`
	Note string `json:"Note"`
}

// FetchBarStats computes trailing price statistics from the daily series.
func (s *Service) FetchBarStats(ctx context.Context, ticker string) (*BarStats, error) {
	if s.avKey == "" {
		return nil, fmt.Errorf("bars %s: no api key: %w", ticker, ErrUnavailable)
	}
	if err := s.limiter.WaitIfNeeded(ctx, "alphavantage"); err != nil {
		return nil, err
	}
	u := "https://www.alphavantage.co/query?function=TIME_SERIES_DAILY&outputsize=full&symbol=" +
		url.QueryEscape(ticker) + "&apikey=" + url.QueryEscape(s.avKey)

	var resp avDailySeries
	if err := s.http.GetJSON(ctx, "alphavantage", u, nil, &resp); err != nil {
		s.limiter.TriggerBackoff("alphavantage")
		return nil, fmt.Errorf("bars %s: %w", ticker, err)
	}
	s.limiter.RecordRequest("alphavantage")

	if resp.Note != "" {
		s.limiter.TriggerBackoff("alphavantage")
		return nil, fmt.Errorf("bars %s: throttled: %w", ticker, ErrUnavailable)
	}
	if len(resp.Series) == 0 {
		return nil, fmt.Errorf("bars %s: empty series: %w", ticker, ErrUnavailable)
	}

	dates := make([]string, 0, len(resp.Series))
	for d := range resp.Series {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	closes := make([]float64, 0, len(dates))
	volumes := make([]int64, 0, len(dates))
	for _, d := range dates {
		bar := resp.Series[d]
		c, err := strconv.ParseFloat(bar.Close, 64)
		if err != nil {
			continue
		}
		v, _ := strconv.ParseInt(bar.Volume, 10, 64)
		closes = append(closes, c)
		volumes = append(volumes, v)
	}
	return barStatsFromCloses(closes, volumes)
}

// barStatsFromCloses derives the dossier statistics from newest-first
// session closes. 5 sessions back is a week, 21 a month, 252 a year.
func barStatsFromCloses(closes []float64, volumes []int64) (*BarStats, error) {
	if len(closes) == 0 {
		return nil, fmt.Errorf("no usable bars: %w", ErrUnavailable)
	}
	stats := &BarStats{CurrentPrice: closes[0]}

	if len(closes) > 5 && closes[5] > 0 {
		stats.Change1WPct = (closes[0] - closes[5]) / closes[5] * 100
	}
	if len(closes) > 21 && closes[21] > 0 {
		stats.Change1MPct = (closes[0] - closes[21]) / closes[21] * 100
	}

	year := closes
	if len(year) > 252 {
		year = year[:252]
	}
	stats.High52W, stats.Low52W = year[0], year[0]
	for _, c := range year {
		if c > stats.High52W {
			stats.High52W = c
		}
		if c < stats.Low52W {
			stats.Low52W = c
		}
	}

	n := len(volumes)
	if n > 20 {
		n = 20
	}
	var sum int64
	for _, v := range volumes[:n] {
		sum += v
	}
	if n > 0 {
		stats.AvgVolume20D = sum / int64(n)
	}
	return stats, nil
}

type edgarTickerEntry struct {
	CIK    int64  `json:"cik_str"`
	Ticker string `json:"ticker"`
}

type edgarSubmissions struct {
	Filings struct {
		Recent struct {
			Form        []string `json:"form"`
			FilingDate  []string `json:"filingDate"`
			Description []string `json:"primaryDocDescription"`
		} `json:"recent"`
	} `json:"filings"`
}

// FetchFilings lists the most recent material SEC filings (10-K, 10-Q, 8-K)
// for a ticker via EDGAR's submissions feed.
func (s *Service) FetchFilings(ctx context.Context, ticker string, limit int) ([]Filing, error) {
	cik, err := s.lookupCIK(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if err := s.limiter.WaitIfNeeded(ctx, "edgar"); err != nil {
		return nil, err
	}

	var subs edgarSubmissions
	u := fmt.Sprintf("https://data.sec.gov/submissions/CIK%010d.json", cik)
	if err := s.http.GetJSON(ctx, "edgar", u, nil, &subs); err != nil {
		s.limiter.TriggerBackoff("edgar")
		return nil, fmt.Errorf("filings %s: %w", ticker, err)
	}
	s.limiter.RecordRequest("edgar")

	recent := subs.Filings.Recent
	var out []Filing
	for i, form := range recent.Form {
		switch form {
		case "10-K", "10-Q", "8-K":
		default:
			continue
		}
		f := Filing{Form: form}
		if i < len(recent.FilingDate) {
			f.FilingDate = recent.FilingDate[i]
		}
		if i < len(recent.Description) {
			f.Description = recent.Description[i]
		}
		out = append(out, f)
		if len(out) >= limit {
			break
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("filings %s: none found: %w", ticker, ErrUnavailable)
	}
	return out, nil
}

// lookupCIK resolves ticker -> CIK through EDGAR's mapping file, cached for
// the process lifetime.
func (s *Service) lookupCIK(ctx context.Context, ticker string) (int64, error) {
	if s.cikCache == nil {
		if err := s.limiter.WaitIfNeeded(ctx, "edgar"); err != nil {
			return 0, err
		}
		var entries map[string]edgarTickerEntry
		if err := s.http.GetJSON(ctx, "edgar", "https://www.sec.gov/files/company_tickers.json", nil, &entries); err != nil {
			s.limiter.TriggerBackoff("edgar")
			return 0, fmt.Errorf("cik map: %w", err)
		}
		s.limiter.RecordRequest("edgar")

		s.cikCache = make(map[string]int64, len(entries))
		for _, e := range entries {
			s.cikCache[strings.ToUpper(e.Ticker)] = e.CIK
		}
	}
	cik, ok := s.cikCache[strings.ToUpper(ticker)]
	if !ok {
		return 0, fmt.Errorf("cik for %s: not listed: %w", ticker, ErrUnavailable)
	}
	return cik, nil
}
