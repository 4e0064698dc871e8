package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/warroom-labs/warroom/internal/models"
)

// MacroRepo persists macro snapshots.
type MacroRepo interface {
	Insert(ctx context.Context, m *models.MacroIndicators) (int64, error)
	Latest(ctx context.Context) (*models.MacroIndicators, error)
}

type macroRepo struct {
	db *sqlx.DB
}

type macroSignalsBlob struct {
	Bearish []string `json:"bearish"`
	Bullish []string `json:"bullish"`
}

func (r *macroRepo) Insert(ctx context.Context, m *models.MacroIndicators) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	blob, err := json.Marshal(macroSignalsBlob{Bearish: m.BearishSignals, Bullish: m.BullishSignals})
	if err != nil {
		return 0, fmt.Errorf("marshal macro signals: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO macro_indicators
			(timestamp, yield_curve_spread, fed_funds_rate, unemployment_rate,
			 m2_growth_yoy, hy_oas_bps, consumer_sentiment, macro_score,
			 defcon_modifier, signals_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Timestamp.UTC().Format(time.RFC3339), m.YieldCurveSpread, m.FedFundsRate,
		m.UnemploymentRate, m.M2GrowthYoY, m.HighYieldOASBps, m.ConsumerSentiment,
		m.MacroScore, m.DefconModifier, string(blob))
	if err != nil {
		return 0, fmt.Errorf("insert macro snapshot: %w", err)
	}
	return res.LastInsertId()
}

func (r *macroRepo) Latest(ctx context.Context) (*models.MacroIndicators, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var row struct {
		ID                int64   `db:"id"`
		Timestamp         string  `db:"timestamp"`
		YieldCurveSpread  float64 `db:"yield_curve_spread"`
		FedFundsRate      float64 `db:"fed_funds_rate"`
		UnemploymentRate  float64 `db:"unemployment_rate"`
		M2GrowthYoY       float64 `db:"m2_growth_yoy"`
		HighYieldOASBps   float64 `db:"hy_oas_bps"`
		ConsumerSentiment float64 `db:"consumer_sentiment"`
		MacroScore        float64 `db:"macro_score"`
		DefconModifier    float64 `db:"defcon_modifier"`
		SignalsJSON       string  `db:"signals_json"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT id, timestamp, yield_curve_spread, fed_funds_rate, unemployment_rate,
		       m2_growth_yoy, hy_oas_bps, consumer_sentiment, macro_score,
		       defcon_modifier, signals_json
		FROM macro_indicators ORDER BY id DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select latest macro: %w", err)
	}

	m := &models.MacroIndicators{
		ID:                row.ID,
		YieldCurveSpread:  row.YieldCurveSpread,
		FedFundsRate:      row.FedFundsRate,
		UnemploymentRate:  row.UnemploymentRate,
		M2GrowthYoY:       row.M2GrowthYoY,
		HighYieldOASBps:   row.HighYieldOASBps,
		ConsumerSentiment: row.ConsumerSentiment,
		MacroScore:        row.MacroScore,
		DefconModifier:    row.DefconModifier,
	}
	m.Timestamp, _ = time.Parse(time.RFC3339, row.Timestamp)
	var blob macroSignalsBlob
	if err := json.Unmarshal([]byte(row.SignalsJSON), &blob); err == nil {
		m.BearishSignals = blob.Bearish
		m.BullishSignals = blob.Bullish
	}
	return m, nil
}

// CongressRepo persists disclosed congressional trades and derived clusters.
type CongressRepo interface {
	UpsertTrade(ctx context.Context, t *models.CongressTrade) (inserted bool, err error)
	BuysSince(ctx context.Context, since string) ([]models.CongressTrade, error)
	InsertCluster(ctx context.Context, c *models.ClusterSignal) (int64, error)
	RecentClusterForTicker(ctx context.Context, ticker string, since time.Time) (*models.ClusterSignal, error)
	ClustersSince(ctx context.Context, since time.Time) ([]models.ClusterSignal, error)
	StrengthForTicker(ctx context.Context, ticker string) (strength float64, buyCount int, err error)
}

type congressRepo struct {
	db *sqlx.DB
}

func (r *congressRepo) UpsertTrade(ctx context.Context, t *models.CongressTrade) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO congress_trades
			(chamber, politician, party, ticker, direction, estimated_amount,
			 disclosure_date, transaction_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Chamber, t.Politician, t.Party, t.Ticker, string(t.Direction),
		t.EstimatedAmount, t.DisclosureDate, t.TransactionDate)
	if err != nil {
		return false, fmt.Errorf("upsert congress trade: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *congressRepo) BuysSince(ctx context.Context, since string) ([]models.CongressTrade, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var out []models.CongressTrade
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, chamber, politician, party, ticker, direction, estimated_amount,
		       disclosure_date, transaction_date, created_at
		FROM congress_trades
		WHERE direction = 'buy' AND transaction_date >= ?
		ORDER BY transaction_date DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("select congress buys: %w", err)
	}
	return out, nil
}

func (r *congressRepo) InsertCluster(ctx context.Context, c *models.ClusterSignal) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	pols, err := json.Marshal(c.Politicians)
	if err != nil {
		return 0, fmt.Errorf("marshal politicians: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO congressional_cluster_signals
			(ticker, buy_count, politicians_json, bipartisan, committee_relevance,
			 total_amount, signal_strength)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.Ticker, c.BuyCount, string(pols), c.Bipartisan, c.CommitteeRelevance,
		c.TotalAmount, c.SignalStrength)
	if err != nil {
		return 0, fmt.Errorf("insert cluster signal: %w", err)
	}
	return res.LastInsertId()
}

func (r *congressRepo) RecentClusterForTicker(ctx context.Context, ticker string, since time.Time) (*models.ClusterSignal, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var row struct {
		models.ClusterSignal
		PoliticiansJSON string `db:"politicians_json"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT id, ticker, buy_count, politicians_json, bipartisan,
		       committee_relevance, total_amount, signal_strength, created_at
		FROM congressional_cluster_signals
		WHERE ticker = ? AND created_at >= ?
		ORDER BY id DESC LIMIT 1`,
		ticker, since.UTC().Format("2006-01-02 15:04:05"))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select recent cluster: %w", err)
	}
	c := row.ClusterSignal
	_ = json.Unmarshal([]byte(row.PoliticiansJSON), &c.Politicians)
	return &c, nil
}

func (r *congressRepo) ClustersSince(ctx context.Context, since time.Time) ([]models.ClusterSignal, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var rows []struct {
		models.ClusterSignal
		PoliticiansJSON string `db:"politicians_json"`
	}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, ticker, buy_count, politicians_json, bipartisan,
		       committee_relevance, total_amount, signal_strength, created_at
		FROM congressional_cluster_signals
		WHERE created_at >= ?
		ORDER BY signal_strength DESC`,
		since.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return nil, fmt.Errorf("select clusters since: %w", err)
	}
	out := make([]models.ClusterSignal, 0, len(rows))
	for _, row := range rows {
		c := row.ClusterSignal
		_ = json.Unmarshal([]byte(row.PoliticiansJSON), &c.Politicians)
		out = append(out, c)
	}
	return out, nil
}

func (r *congressRepo) StrengthForTicker(ctx context.Context, ticker string) (float64, int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var row struct {
		Strength sql.NullFloat64 `db:"strength"`
		Buys     int             `db:"buys"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT
			(SELECT MAX(signal_strength) FROM congressional_cluster_signals WHERE ticker = ?) AS strength,
			(SELECT COUNT(*) FROM congress_trades WHERE ticker = ? AND direction = 'buy') AS buys`,
		ticker, ticker)
	if err != nil {
		return 0, 0, fmt.Errorf("select congress strength: %w", err)
	}
	return row.Strength.Float64, row.Buys, nil
}
