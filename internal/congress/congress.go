// Package congress ingests congressional stock disclosures and detects
// cluster signals: several politicians buying the same ticker inside a
// short window.
package congress

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/warroom-labs/warroom/internal/httpx"
	"github.com/warroom-labs/warroom/internal/models"
	"github.com/warroom-labs/warroom/internal/ratelimit"
	"github.com/warroom-labs/warroom/internal/store"
)

const (
	minTradeAmount = 15000
	clusterWindow  = 30 // days
	clusterMinBuys = 3

	houseFeedURL  = "https://house-stock-watcher-data.s3-us-west-2.amazonaws.com/data/all_transactions.json"
	senateFeedURL = "https://senate-stock-watcher-data.s3-us-west-2.amazonaws.com/aggregate/all_transactions.json"
)

// Tickers whose buys plausibly relate to committee oversight. Coarse by
// design; the strength bonus is only 15 points.
var committeeRelevantTickers = map[string]bool{
	"LMT": true, "RTX": true, "NOC": true, "GD": true, "BA": true,
	"PFE": true, "MRNA": true, "UNH": true,
	"XOM": true, "CVX": true,
	"NVDA": true, "INTC": true, "TSM": true, "MSFT": true, "PLTR": true,
}

// Collector fetches both chambers and persists new trades and clusters.
type Collector struct {
	http    *httpx.Client
	limiter *ratelimit.Limiter
	repo    store.CongressRepo
	clock   func() time.Time
}

// New builds the collector.
func New(client *httpx.Client, limiter *ratelimit.Limiter, repo store.CongressRepo, clock func() time.Time) *Collector {
	if clock == nil {
		clock = time.Now
	}
	return &Collector{http: client, limiter: limiter, repo: repo, clock: clock}
}

type disclosureRow struct {
	TransactionDate string `json:"transaction_date"`
	DisclosureDate  string `json:"disclosure_date"`
	Ticker          string `json:"ticker"`
	Representative  string `json:"representative"`
	Senator         string `json:"senator"`
	Party           string `json:"party"`
	Type            string `json:"type"`
	Amount          string `json:"amount"`
}

// Collect pulls both chambers, stores trades above the amount floor, then
// re-runs cluster detection and returns the fresh clusters.
func (c *Collector) Collect(ctx context.Context) ([]models.ClusterSignal, error) {
	inserted := 0
	for chamber, url := range map[string]string{"house": houseFeedURL, "senate": senateFeedURL} {
		n, err := c.collectChamber(ctx, chamber, url)
		if err != nil {
			log.Warn().Err(err).Str("chamber", chamber).Msg("disclosure fetch failed")
			continue
		}
		inserted += n
	}
	log.Info().Int("new_trades", inserted).Msg("congressional collection complete")
	return c.DetectClusters(ctx)
}

func (c *Collector) collectChamber(ctx context.Context, chamber, url string) (int, error) {
	if err := c.limiter.WaitIfNeeded(ctx, "congress"); err != nil {
		return 0, err
	}
	var rows []disclosureRow
	if err := c.http.GetJSON(ctx, "congress", url, nil, &rows); err != nil {
		c.limiter.TriggerBackoff("congress")
		return 0, err
	}
	c.limiter.RecordRequest("congress")

	cutoff := c.clock().AddDate(0, 0, -90).Format("2006-01-02")
	inserted := 0
	for _, row := range rows {
		trade, ok := normalizeRow(chamber, row)
		if !ok || trade.TransactionDate < cutoff {
			continue
		}
		added, err := c.repo.UpsertTrade(ctx, trade)
		if err != nil {
			return inserted, err
		}
		if added {
			inserted++
		}
	}
	return inserted, nil
}

// normalizeRow validates and converts one feed row. Trades below the
// amount floor or without a usable ticker are dropped.
func normalizeRow(chamber string, row disclosureRow) (*models.CongressTrade, bool) {
	ticker := strings.ToUpper(strings.TrimSpace(row.Ticker))
	if ticker == "" || ticker == "--" || ticker == "N/A" || len(ticker) > 6 {
		return nil, false
	}
	politician := row.Representative
	if chamber == "senate" {
		politician = row.Senator
	}
	politician = strings.TrimSpace(politician)
	if politician == "" {
		return nil, false
	}

	direction := parseDirection(row.Type)
	amount := parseAmount(row.Amount)
	if amount < minTradeAmount {
		return nil, false
	}

	return &models.CongressTrade{
		Chamber:         chamber,
		Politician:      politician,
		Party:           normalizeParty(row.Party),
		Ticker:          ticker,
		Direction:       direction,
		EstimatedAmount: amount,
		DisclosureDate:  normalizeDate(row.DisclosureDate),
		TransactionDate: normalizeDate(row.TransactionDate),
	}, true
}

func parseDirection(s string) models.TradeDirection {
	s = strings.ToLower(s)
	switch {
	case strings.Contains(s, "purchase") || strings.Contains(s, "buy"):
		return models.DirectionBuy
	case strings.Contains(s, "sale") || strings.Contains(s, "sell"):
		return models.DirectionSell
	default:
		return models.DirectionUnknown
	}
}

// parseAmount converts the disclosed range ("$15,001 - $50,000") to its
// midpoint. A scalar amount is used as-is.
func parseAmount(s string) float64 {
	clean := strings.NewReplacer("$", "", ",", "", "+", "").Replace(s)
	parts := strings.Split(clean, "-")
	lo, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0
	}
	if len(parts) == 1 {
		return lo
	}
	hi, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return lo
	}
	return (lo + hi) / 2
}

func normalizeParty(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch {
	case strings.HasPrefix(s, "R"):
		return "R"
	case strings.HasPrefix(s, "D"):
		return "D"
	case s == "":
		return ""
	default:
		return "I"
	}
}

func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", "01/02/2006", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}

// DetectClusters scans the cluster window for tickers with enough distinct
// buyers and persists any cluster not already recorded recently.
func (c *Collector) DetectClusters(ctx context.Context) ([]models.ClusterSignal, error) {
	since := c.clock().AddDate(0, 0, -clusterWindow).Format("2006-01-02")
	buys, err := c.repo.BuysSince(ctx, since)
	if err != nil {
		return nil, err
	}

	clusters := BuildClusters(buys)
	var fresh []models.ClusterSignal
	recentCutoff := c.clock().Add(-time.Duration(clusterWindow) * 24 * time.Hour)
	for i := range clusters {
		cluster := &clusters[i]
		if _, err := c.repo.RecentClusterForTicker(ctx, cluster.Ticker, recentCutoff); err == nil {
			continue // already signaled this window
		}
		if _, err := c.repo.InsertCluster(ctx, cluster); err != nil {
			log.Warn().Err(err).Str("ticker", cluster.Ticker).Msg("persist cluster failed")
			continue
		}
		fresh = append(fresh, *cluster)
		log.Info().Str("ticker", cluster.Ticker).Int("buys", cluster.BuyCount).
			Float64("strength", cluster.SignalStrength).Msg("congressional cluster detected")
	}
	return fresh, nil
}

// BuildClusters groups buys by ticker and scores every ticker with at
// least clusterMinBuys distinct buyers. Pure.
func BuildClusters(buys []models.CongressTrade) []models.ClusterSignal {
	byTicker := map[string][]models.CongressTrade{}
	for _, t := range buys {
		byTicker[t.Ticker] = append(byTicker[t.Ticker], t)
	}

	var out []models.ClusterSignal
	for ticker, trades := range byTicker {
		politicians := map[string]string{} // name -> party
		total := 0.0
		for _, t := range trades {
			politicians[t.Politician] = t.Party
			total += t.EstimatedAmount
		}
		if len(politicians) < clusterMinBuys {
			continue
		}

		parties := map[string]bool{}
		names := make([]string, 0, len(politicians))
		for name, party := range politicians {
			names = append(names, name)
			if party == "R" || party == "D" {
				parties[party] = true
			}
		}
		sort.Strings(names)

		cluster := models.ClusterSignal{
			Ticker:             ticker,
			BuyCount:           len(politicians),
			Politicians:        names,
			Bipartisan:         parties["R"] && parties["D"],
			CommitteeRelevance: committeeRelevantTickers[ticker],
			TotalAmount:        total,
		}
		cluster.SignalStrength = Strength(cluster)
		out = append(out, cluster)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SignalStrength > out[j].SignalStrength })
	return out
}

// Strength scores a cluster:
// min(100, 10*count + 3*log10(amount) + 15*bipartisan + 15*committee).
func Strength(c models.ClusterSignal) float64 {
	s := 10 * float64(c.BuyCount)
	if c.TotalAmount > 0 {
		s += 3 * math.Log10(c.TotalAmount)
	}
	if c.Bipartisan {
		s += 15
	}
	if c.CommitteeRelevance {
		s += 15
	}
	return math.Min(100, s)
}
