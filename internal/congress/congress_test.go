package congress

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warroom-labs/warroom/internal/models"
)

func buy(politician, party, ticker string, amount float64) models.CongressTrade {
	return models.CongressTrade{
		Politician:      politician,
		Party:           party,
		Ticker:          ticker,
		Direction:       models.DirectionBuy,
		EstimatedAmount: amount,
		TransactionDate: "2026-03-01",
	}
}

func TestParseAmountRangeMidpoint(t *testing.T) {
	assert.InDelta(t, 32500.5, parseAmount("$15,001 - $50,000"), 1)
	assert.InDelta(t, 15000, parseAmount("$15,000"), 1e-9)
	assert.Zero(t, parseAmount("Unknown"))
}

func TestNormalizeRowFiltersSmallTrades(t *testing.T) {
	_, ok := normalizeRow("house", disclosureRow{
		Ticker: "AAPL", Representative: "A. Member", Type: "purchase",
		Amount: "$1,001 - $15,000", TransactionDate: "2026-03-01",
	})
	assert.False(t, ok, "midpoint 8000 is below the floor")

	trade, ok := normalizeRow("house", disclosureRow{
		Ticker: "AAPL", Representative: "A. Member", Type: "purchase",
		Amount: "$15,001 - $50,000", TransactionDate: "2026-03-01",
	})
	require.True(t, ok)
	assert.Equal(t, models.DirectionBuy, trade.Direction)
	assert.Equal(t, "house", trade.Chamber)
}

func TestNormalizeRowBadTicker(t *testing.T) {
	for _, ticker := range []string{"", "--", "N/A", "TOOLONGX"} {
		_, ok := normalizeRow("house", disclosureRow{
			Ticker: ticker, Representative: "A. Member", Type: "purchase",
			Amount: "$50,000",
		})
		assert.False(t, ok, "ticker %q", ticker)
	}
}

func TestBuildClustersRequiresDistinctPoliticians(t *testing.T) {
	// Same politician buying three times is not a cluster.
	buys := []models.CongressTrade{
		buy("A. One", "R", "NVDA", 50000),
		buy("A. One", "R", "NVDA", 60000),
		buy("A. One", "R", "NVDA", 70000),
	}
	assert.Empty(t, BuildClusters(buys))

	buys = append(buys, buy("B. Two", "D", "NVDA", 20000), buy("C. Three", "R", "NVDA", 20000))
	clusters := BuildClusters(buys)
	require.Len(t, clusters, 1)
	assert.Equal(t, 3, clusters[0].BuyCount)
	assert.True(t, clusters[0].Bipartisan)
	assert.True(t, clusters[0].CommitteeRelevance)
	assert.Equal(t, []string{"A. One", "B. Two", "C. Three"}, clusters[0].Politicians)
}

func TestStrengthFormula(t *testing.T) {
	c := models.ClusterSignal{
		BuyCount:           3,
		TotalAmount:        220000,
		Bipartisan:         true,
		CommitteeRelevance: true,
	}
	want := 10*3 + 3*math.Log10(220000) + 15 + 15
	assert.InDelta(t, want, Strength(c), 1e-9)

	// Large clusters cap at 100.
	c.BuyCount = 10
	assert.InDelta(t, 100, Strength(c), 1e-9)
}

func TestStrengthUnipartisanNoCommittee(t *testing.T) {
	c := models.ClusterSignal{BuyCount: 3, TotalAmount: 100000}
	assert.InDelta(t, 30+3*5, Strength(c), 1e-9) // log10(1e5) = 5
}

func TestParseDirection(t *testing.T) {
	assert.Equal(t, models.DirectionBuy, parseDirection("Purchase"))
	assert.Equal(t, models.DirectionSell, parseDirection("Sale (Full)"))
	assert.Equal(t, models.DirectionUnknown, parseDirection("Exchange"))
}

func TestNormalizeParty(t *testing.T) {
	assert.Equal(t, "R", normalizeParty("Republican"))
	assert.Equal(t, "D", normalizeParty("democrat"))
	assert.Equal(t, "I", normalizeParty("Libertarian"))
	assert.Equal(t, "", normalizeParty(""))
}
