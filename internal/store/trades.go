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

// TradeRepo persists paper trades.
type TradeRepo interface {
	Open(ctx context.Context, t *models.TradeRecord) (int64, error)
	OpenPositions(ctx context.Context) ([]models.TradeRecord, error)
	ByID(ctx context.Context, id int64) (*models.TradeRecord, error)
	OpenByTicker(ctx context.Context, ticker string) ([]models.TradeRecord, error)
	UpdateMark(ctx context.Context, id int64, price, unrealized float64) error
	Close(ctx context.Context, t *models.TradeRecord) error
	ClosedSince(ctx context.Context, since string) ([]models.TradeRecord, error)
	Recent(ctx context.Context, limit int) ([]models.TradeRecord, error)
	CountOpenedOn(ctx context.Context, date string) (int, error)
}

type tradeRepo struct {
	db *sqlx.DB
}

const tradeColumns = `
	id, ticker, entry_date, entry_time, entry_price, shares, cost_basis,
	entry_signal_score, defcon_at_entry, status, current_price, unrealized_pnl,
	exit_date, exit_time, exit_price, exit_reason, profit_loss_dollars,
	profit_loss_percent, holding_hours, notes, created_at`

func (r *tradeRepo) Open(ctx context.Context, t *models.TradeRecord) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO trade_records
			(ticker, entry_date, entry_time, entry_price, shares, cost_basis,
			 entry_signal_score, defcon_at_entry, status, current_price, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'open', ?, ?)`,
		t.Ticker, t.EntryDate, t.EntryTime, t.EntryPrice, t.Shares, t.CostBasis,
		t.EntrySignalScore, int(t.DefconAtEntry), t.EntryPrice, t.Notes)
	if err != nil {
		return 0, fmt.Errorf("open trade: %w", err)
	}
	return res.LastInsertId()
}

func (r *tradeRepo) OpenPositions(ctx context.Context) ([]models.TradeRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var out []models.TradeRecord
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+tradeColumns+` FROM trade_records WHERE status = 'open' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select open trades: %w", err)
	}
	return out, nil
}

func (r *tradeRepo) ByID(ctx context.Context, id int64) (*models.TradeRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var t models.TradeRecord
	err := r.db.GetContext(ctx, &t, `
		SELECT `+tradeColumns+` FROM trade_records WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select trade: %w", err)
	}
	return &t, nil
}

func (r *tradeRepo) OpenByTicker(ctx context.Context, ticker string) ([]models.TradeRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var out []models.TradeRecord
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+tradeColumns+` FROM trade_records
		WHERE status = 'open' AND ticker = ? ORDER BY id`, ticker)
	if err != nil {
		return nil, fmt.Errorf("select open trades by ticker: %w", err)
	}
	return out, nil
}

func (r *tradeRepo) UpdateMark(ctx context.Context, id int64, price, unrealized float64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		UPDATE trade_records SET current_price = ?, unrealized_pnl = ?
		WHERE id = ? AND status = 'open'`, price, unrealized, id)
	if err != nil {
		return fmt.Errorf("update trade mark: %w", err)
	}
	return nil
}

// Close finalizes an open trade with the exit fields already populated on t.
func (r *tradeRepo) Close(ctx context.Context, t *models.TradeRecord) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE trade_records SET
			status = 'closed', exit_date = ?, exit_time = ?, exit_price = ?,
			exit_reason = ?, profit_loss_dollars = ?, profit_loss_percent = ?,
			holding_hours = ?, current_price = ?, unrealized_pnl = 0, notes = ?
		WHERE id = ? AND status = 'open'`,
		t.ExitDate, t.ExitTime, t.ExitPrice, string(t.ExitReason),
		t.RealizedPnL, t.RealizedPnLPct, t.HoldingHours, t.ExitPrice, t.Notes, t.ID)
	if err != nil {
		return fmt.Errorf("close trade: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("close trade %d: %w", t.ID, ErrNotFound)
	}
	return nil
}

func (r *tradeRepo) ClosedSince(ctx context.Context, since string) ([]models.TradeRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var out []models.TradeRecord
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+tradeColumns+` FROM trade_records
		WHERE status = 'closed' AND exit_date >= ? ORDER BY id DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("select closed trades: %w", err)
	}
	return out, nil
}

func (r *tradeRepo) Recent(ctx context.Context, limit int) ([]models.TradeRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var out []models.TradeRecord
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+tradeColumns+` FROM trade_records ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select recent trades: %w", err)
	}
	return out, nil
}

// CountOpenedOn counts trades opened on the given date. The daily trade
// limit resets at the date boundary.
func (r *tradeRepo) CountOpenedOn(ctx context.Context, date string) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var n int
	err := r.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM trade_records WHERE entry_date = ?", date)
	if err != nil {
		return 0, fmt.Errorf("count daily trades: %w", err)
	}
	return n, nil
}

// BriefingRepo persists daily and flash briefings.
type BriefingRepo interface {
	Upsert(ctx context.Context, b *models.DailyBriefing) (int64, error)
	ForDate(ctx context.Context, date, tier string) (*models.DailyBriefing, error)
	Latest(ctx context.Context, tier string) (*models.DailyBriefing, error)
}

type briefingRepo struct {
	db *sqlx.DB
}

type briefingRow struct {
	models.DailyBriefing
	KeyThemesJSON     string `db:"key_themes_json"`
	RisksJSON         string `db:"risks_json"`
	OpportunitiesJSON string `db:"opportunities_json"`
	WatchlistJSON     string `db:"watchlist_json"`
	DataGapsJSON      string `db:"data_gaps_json"`
}

func (row briefingRow) briefing() models.DailyBriefing {
	b := row.DailyBriefing
	_ = json.Unmarshal([]byte(row.KeyThemesJSON), &b.KeyThemes)
	_ = json.Unmarshal([]byte(row.RisksJSON), &b.Risks)
	_ = json.Unmarshal([]byte(row.OpportunitiesJSON), &b.Opportunities)
	_ = json.Unmarshal([]byte(row.WatchlistJSON), &b.Watchlist)
	_ = json.Unmarshal([]byte(row.DataGapsJSON), &b.DataGaps)
	return b
}

const briefingColumns = `
	id, date, tier, market_regime, regime_confidence, headline,
	key_themes_json, risks_json, opportunities_json, watchlist_json,
	defcon_forecast, data_gaps_json, tokens_in, tokens_out, created_at`

// Upsert inserts the briefing; a rerun for the same (date, tier) replaces
// the earlier row.
func (r *briefingRepo) Upsert(ctx context.Context, b *models.DailyBriefing) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	themes, _ := json.Marshal(orEmptyStrings(b.KeyThemes))
	risks, _ := json.Marshal(orEmptyStrings(b.Risks))
	opps, _ := json.Marshal(orEmptyStrings(b.Opportunities))
	gaps, _ := json.Marshal(orEmptyStrings(b.DataGaps))
	watchlist, err := json.Marshal(orEmptyPicks(b.Watchlist))
	if err != nil {
		return 0, fmt.Errorf("marshal briefing watchlist: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO daily_briefings
			(date, tier, market_regime, regime_confidence, headline,
			 key_themes_json, risks_json, opportunities_json, watchlist_json,
			 defcon_forecast, data_gaps_json, tokens_in, tokens_out)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date, tier) DO UPDATE SET
			market_regime = excluded.market_regime,
			regime_confidence = excluded.regime_confidence,
			headline = excluded.headline,
			key_themes_json = excluded.key_themes_json,
			risks_json = excluded.risks_json,
			opportunities_json = excluded.opportunities_json,
			watchlist_json = excluded.watchlist_json,
			defcon_forecast = excluded.defcon_forecast,
			data_gaps_json = excluded.data_gaps_json,
			tokens_in = excluded.tokens_in,
			tokens_out = excluded.tokens_out`,
		b.Date, b.Tier, b.MarketRegime, b.RegimeConfidence, b.Headline,
		string(themes), string(risks), string(opps), string(watchlist),
		b.DefconForecast, string(gaps), b.TokensIn, b.TokensOut)
	if err != nil {
		return 0, fmt.Errorf("upsert briefing: %w", err)
	}
	return res.LastInsertId()
}

func (r *briefingRepo) ForDate(ctx context.Context, date, tier string) (*models.DailyBriefing, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var row briefingRow
	err := r.db.GetContext(ctx, &row, `
		SELECT `+briefingColumns+` FROM daily_briefings
		WHERE date = ? AND tier = ?`, date, tier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select briefing: %w", err)
	}
	b := row.briefing()
	return &b, nil
}

func (r *briefingRepo) Latest(ctx context.Context, tier string) (*models.DailyBriefing, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var row briefingRow
	err := r.db.GetContext(ctx, &row, `
		SELECT `+briefingColumns+` FROM daily_briefings
		WHERE tier = ? ORDER BY date DESC LIMIT 1`, tier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select latest briefing: %w", err)
	}
	b := row.briefing()
	return &b, nil
}

func orEmptyPicks(p []models.BriefingPick) []models.BriefingPick {
	if p == nil {
		return []models.BriefingPick{}
	}
	return p
}
