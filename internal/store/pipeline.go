package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/warroom-labs/warroom/internal/models"
)

// WatchlistRepo manages the acquisition watchlist queue.
type WatchlistRepo interface {
	Add(ctx context.Context, e *models.WatchlistEntry) (int64, error)
	Pending(ctx context.Context, limit int) ([]models.WatchlistEntry, error)
	HasActive(ctx context.Context, ticker string) (bool, error)
	SetStatus(ctx context.Context, id int64, status models.WatchlistStatus, notes string) error
	ByID(ctx context.Context, id int64) (*models.WatchlistEntry, error)
	LatestForTicker(ctx context.Context, ticker string) (*models.WatchlistEntry, error)
	Recent(ctx context.Context, limit int) ([]models.WatchlistEntry, error)
}

type watchlistRepo struct {
	db *sqlx.DB
}

func (r *watchlistRepo) Add(ctx context.Context, e *models.WatchlistEntry) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO acquisition_watchlist
			(ticker, date_added, source, model_confidence, entry_conditions, status, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Ticker, e.DateAdded, string(e.Source), e.ModelConfidence,
		e.EntryConditions, string(e.Status), e.Notes)
	if err != nil {
		return 0, fmt.Errorf("insert watchlist entry: %w", err)
	}
	return res.LastInsertId()
}

func (r *watchlistRepo) Pending(ctx context.Context, limit int) ([]models.WatchlistEntry, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var out []models.WatchlistEntry
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, ticker, date_added, source, model_confidence, entry_conditions,
		       status, notes, created_at
		FROM acquisition_watchlist
		WHERE status = 'pending'
		ORDER BY date_added DESC, model_confidence DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending watchlist: %w", err)
	}
	return out, nil
}

// HasActive reports whether the ticker already has a non-terminal watchlist
// entry, to keep re-adds from piling up.
func (r *watchlistRepo) HasActive(ctx context.Context, ticker string) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM acquisition_watchlist
		WHERE ticker = ? AND status IN ('pending', 'researched', 'conditional_set')`, ticker)
	if err != nil {
		return false, fmt.Errorf("count active watchlist: %w", err)
	}
	return n > 0, nil
}

func (r *watchlistRepo) SetStatus(ctx context.Context, id int64, status models.WatchlistStatus, notes string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var query string
	var args []any
	if notes != "" {
		query = "UPDATE acquisition_watchlist SET status = ?, notes = ? WHERE id = ?"
		args = []any{string(status), notes, id}
	} else {
		query = "UPDATE acquisition_watchlist SET status = ? WHERE id = ?"
		args = []any{string(status), id}
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update watchlist status: %w", err)
	}
	return nil
}

func (r *watchlistRepo) ByID(ctx context.Context, id int64) (*models.WatchlistEntry, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var e models.WatchlistEntry
	err := r.db.GetContext(ctx, &e, `
		SELECT id, ticker, date_added, source, model_confidence, entry_conditions,
		       status, notes, created_at
		FROM acquisition_watchlist WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select watchlist entry: %w", err)
	}
	return &e, nil
}

func (r *watchlistRepo) LatestForTicker(ctx context.Context, ticker string) (*models.WatchlistEntry, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var e models.WatchlistEntry
	err := r.db.GetContext(ctx, &e, `
		SELECT id, ticker, date_added, source, model_confidence, entry_conditions,
		       status, notes, created_at
		FROM acquisition_watchlist
		WHERE ticker = ? ORDER BY id DESC LIMIT 1`, ticker)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select watchlist for ticker: %w", err)
	}
	return &e, nil
}

func (r *watchlistRepo) Recent(ctx context.Context, limit int) ([]models.WatchlistEntry, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var out []models.WatchlistEntry
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, ticker, date_added, source, model_confidence, entry_conditions,
		       status, notes, created_at
		FROM acquisition_watchlist ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select recent watchlist: %w", err)
	}
	return out, nil
}

// ResearchRepo manages the stock research library.
type ResearchRepo interface {
	Upsert(ctx context.Context, row *models.ResearchRow) (int64, error)
	LatestForTicker(ctx context.Context, ticker string) (*models.ResearchRow, error)
	ReadyRows(ctx context.Context, limit int) ([]models.ResearchRow, error)
	SetStatus(ctx context.Context, id int64, status models.LibraryStatus) error
}

type researchRepo struct {
	db *sqlx.DB
}

func (r *researchRepo) Upsert(ctx context.Context, row *models.ResearchRow) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.db.NamedExecContext(ctx, `
		INSERT INTO stock_research_library
			(ticker, research_date, current_price, price_1w_chg_pct, price_1m_chg_pct,
			 price_52w_high, price_52w_low, avg_volume_20d, market_cap, pe_ratio,
			 forward_pe, profit_margin, revenue_growth_yoy, debt_to_equity,
			 analyst_target_mean, analyst_target_high, analyst_target_low,
			 analyst_buy_count, analyst_hold_count, analyst_sell_count,
			 next_earnings_date, latest_filing_type, latest_filing_date, filing_summary,
			 news_mention_count, news_sentiment_avg, congressional_signal_strength,
			 congressional_buy_count, macro_score, market_regime, raw_provider_json,
			 status, error_notes)
		VALUES
			(:ticker, :research_date, :current_price, :price_1w_chg_pct, :price_1m_chg_pct,
			 :price_52w_high, :price_52w_low, :avg_volume_20d, :market_cap, :pe_ratio,
			 :forward_pe, :profit_margin, :revenue_growth_yoy, :debt_to_equity,
			 :analyst_target_mean, :analyst_target_high, :analyst_target_low,
			 :analyst_buy_count, :analyst_hold_count, :analyst_sell_count,
			 :next_earnings_date, :latest_filing_type, :latest_filing_date, :filing_summary,
			 :news_mention_count, :news_sentiment_avg, :congressional_signal_strength,
			 :congressional_buy_count, :macro_score, :market_regime, :raw_provider_json,
			 :status, :error_notes)
		ON CONFLICT(ticker, research_date) DO UPDATE SET
			current_price = excluded.current_price,
			price_1w_chg_pct = excluded.price_1w_chg_pct,
			price_1m_chg_pct = excluded.price_1m_chg_pct,
			price_52w_high = excluded.price_52w_high,
			price_52w_low = excluded.price_52w_low,
			avg_volume_20d = excluded.avg_volume_20d,
			market_cap = excluded.market_cap,
			pe_ratio = excluded.pe_ratio,
			forward_pe = excluded.forward_pe,
			profit_margin = excluded.profit_margin,
			revenue_growth_yoy = excluded.revenue_growth_yoy,
			debt_to_equity = excluded.debt_to_equity,
			analyst_target_mean = excluded.analyst_target_mean,
			analyst_target_high = excluded.analyst_target_high,
			analyst_target_low = excluded.analyst_target_low,
			analyst_buy_count = excluded.analyst_buy_count,
			analyst_hold_count = excluded.analyst_hold_count,
			analyst_sell_count = excluded.analyst_sell_count,
			next_earnings_date = excluded.next_earnings_date,
			latest_filing_type = excluded.latest_filing_type,
			latest_filing_date = excluded.latest_filing_date,
			filing_summary = excluded.filing_summary,
			news_mention_count = excluded.news_mention_count,
			news_sentiment_avg = excluded.news_sentiment_avg,
			congressional_signal_strength = excluded.congressional_signal_strength,
			congressional_buy_count = excluded.congressional_buy_count,
			macro_score = excluded.macro_score,
			market_regime = excluded.market_regime,
			raw_provider_json = excluded.raw_provider_json,
			status = excluded.status,
			error_notes = excluded.error_notes`, row)
	if err != nil {
		return 0, fmt.Errorf("upsert research row: %w", err)
	}
	return res.LastInsertId()
}

func (r *researchRepo) LatestForTicker(ctx context.Context, ticker string) (*models.ResearchRow, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var row models.ResearchRow
	err := r.db.GetContext(ctx, &row, `
		SELECT * FROM stock_research_library
		WHERE ticker = ? ORDER BY research_date DESC LIMIT 1`, ticker)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select research row: %w", err)
	}
	return &row, nil
}

// ReadyRows returns dossiers awaiting the analyst, oldest first.
func (r *researchRepo) ReadyRows(ctx context.Context, limit int) ([]models.ResearchRow, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var out []models.ResearchRow
	err := r.db.SelectContext(ctx, &out, `
		SELECT * FROM stock_research_library
		WHERE status IN ('library_ready', 'partial')
		ORDER BY created_at ASC, id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select ready research rows: %w", err)
	}
	return out, nil
}

func (r *researchRepo) SetStatus(ctx context.Context, id int64, status models.LibraryStatus) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := r.db.ExecContext(ctx,
		"UPDATE stock_research_library SET status = ? WHERE id = ?", string(status), id); err != nil {
		return fmt.Errorf("update research status: %w", err)
	}
	return nil
}

// ConditionalRepo manages analyst-approved conditional trade plans.
type ConditionalRepo interface {
	Insert(ctx context.Context, c *models.ConditionalEntry) (int64, error)
	Active(ctx context.Context) ([]models.ConditionalEntry, error)
	ActiveForTicker(ctx context.Context, ticker string) (*models.ConditionalEntry, error)
	SetStatus(ctx context.Context, id int64, status models.ConditionalStatus, notes string) error
	MarkVerified(ctx context.Context, id int64, when string) error
}

type conditionalRepo struct {
	db *sqlx.DB
}

type conditionalRow struct {
	models.ConditionalEntry
	EntryConditionsJSON        string `db:"entry_conditions_json"`
	InvalidationConditionsJSON string `db:"invalidation_conditions_json"`
	KeyRisksJSON               string `db:"key_risks_json"`
}

func (row conditionalRow) entry() models.ConditionalEntry {
	c := row.ConditionalEntry
	_ = json.Unmarshal([]byte(row.EntryConditionsJSON), &c.EntryConditions)
	_ = json.Unmarshal([]byte(row.InvalidationConditionsJSON), &c.InvalidationConditions)
	_ = json.Unmarshal([]byte(row.KeyRisksJSON), &c.KeyRisks)
	return c
}

const conditionalColumns = `
	id, ticker, date_created, entry_price_target, entry_price_rationale,
	stop_loss, take_profit_1, take_profit_2, position_size_pct, time_horizon_days,
	entry_conditions_json, invalidation_conditions_json, thesis_summary,
	key_risks_json, watch_tag, research_confidence, status, verification_count,
	last_verified, attention_score, notes, created_at`

func (r *conditionalRepo) Insert(ctx context.Context, c *models.ConditionalEntry) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	entry, err := json.Marshal(orEmptyStrings(c.EntryConditions))
	if err != nil {
		return 0, fmt.Errorf("marshal entry conditions: %w", err)
	}
	invalidation, err := json.Marshal(orEmptyStrings(c.InvalidationConditions))
	if err != nil {
		return 0, fmt.Errorf("marshal invalidation conditions: %w", err)
	}
	risks, err := json.Marshal(orEmptyStrings(c.KeyRisks))
	if err != nil {
		return 0, fmt.Errorf("marshal key risks: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO conditional_tracking
			(ticker, date_created, entry_price_target, entry_price_rationale,
			 stop_loss, take_profit_1, take_profit_2, position_size_pct,
			 time_horizon_days, entry_conditions_json, invalidation_conditions_json,
			 thesis_summary, key_risks_json, watch_tag, research_confidence,
			 status, attention_score, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Ticker, c.DateCreated, c.EntryPriceTarget, c.EntryPriceRationale,
		c.StopLoss, c.TakeProfit1, c.TakeProfit2, c.PositionSizePct,
		c.TimeHorizonDays, string(entry), string(invalidation),
		c.ThesisSummary, string(risks), string(c.WatchTag), c.ResearchConfidence,
		string(c.Status), c.AttentionScore, c.Notes)
	if err != nil {
		return 0, fmt.Errorf("insert conditional: %w", err)
	}
	return res.LastInsertId()
}

func (r *conditionalRepo) Active(ctx context.Context) ([]models.ConditionalEntry, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var rows []conditionalRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+conditionalColumns+`
		FROM conditional_tracking WHERE status = 'active' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select active conditionals: %w", err)
	}
	out := make([]models.ConditionalEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.entry())
	}
	return out, nil
}

func (r *conditionalRepo) ActiveForTicker(ctx context.Context, ticker string) (*models.ConditionalEntry, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var row conditionalRow
	err := r.db.GetContext(ctx, &row, `
		SELECT `+conditionalColumns+`
		FROM conditional_tracking
		WHERE ticker = ? AND status = 'active'
		ORDER BY id DESC LIMIT 1`, ticker)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select active conditional: %w", err)
	}
	c := row.entry()
	return &c, nil
}

func (r *conditionalRepo) SetStatus(ctx context.Context, id int64, status models.ConditionalStatus, notes string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var err error
	if notes != "" {
		_, err = r.db.ExecContext(ctx,
			"UPDATE conditional_tracking SET status = ?, notes = ? WHERE id = ?",
			string(status), notes, id)
	} else {
		_, err = r.db.ExecContext(ctx,
			"UPDATE conditional_tracking SET status = ? WHERE id = ?", string(status), id)
	}
	if err != nil {
		return fmt.Errorf("update conditional status: %w", err)
	}
	return nil
}

func (r *conditionalRepo) MarkVerified(ctx context.Context, id int64, when string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		UPDATE conditional_tracking
		SET verification_count = verification_count + 1, last_verified = ?
		WHERE id = ?`, when, id)
	if err != nil {
		return fmt.Errorf("mark conditional verified: %w", err)
	}
	return nil
}

func orEmptyStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
