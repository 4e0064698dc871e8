// Package store owns the embedded SQLite database. All entities live here;
// other components read and write through the typed repositories.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const queryTimeout = 10 * time.Second

// Store wraps the SQLite handle and exposes the repositories.
type Store struct {
	db *sqlx.DB

	Snapshots    SnapshotRepo
	News         NewsRepo
	Macro        MacroRepo
	Congress     CongressRepo
	Watchlist    WatchlistRepo
	Research     ResearchRepo
	Conditionals ConditionalRepo
	Trades       TradeRepo
	Briefings    BriefingRepo
	LLMCalls     LLMCallRepo
}

// Open opens (or creates) the database at path with WAL mode and runs the
// additive migrations. SQLite's single-writer model plus busy_timeout gives
// us the serialized-writer property without extra locking.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// The pure-Go driver serializes writes; one connection avoids
	// SQLITE_BUSY churn from the connection pool.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	s.wireRepos()
	log.Info().Str("path", path).Msg("store opened")
	return s, nil
}

func (s *Store) wireRepos() {
	s.Snapshots = &snapshotRepo{db: s.db}
	s.News = &newsRepo{db: s.db}
	s.Macro = &macroRepo{db: s.db}
	s.Congress = &congressRepo{db: s.db}
	s.Watchlist = &watchlistRepo{db: s.db}
	s.Research = &researchRepo{db: s.db}
	s.Conditionals = &conditionalRepo{db: s.db}
	s.Trades = &tradeRepo{db: s.db}
	s.Briefings = &briefingRepo{db: s.db}
	s.LLMCalls = &llmCallRepo{db: s.db}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for tests.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) migrate() error {
	version := 0
	_ = s.db.Get(&version, "SELECT version FROM schema_version ORDER BY version DESC LIMIT 1")

	if version < 1 {
		if _, err := s.db.Exec(schemaV1); err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
		log.Info().Msg("applied migration v1")
	}

	// Additive column migrations. Components that grow a column declare it
	// here; ALTER failures from a column that already exists are ignored.
	additive := []string{
		"ALTER TABLE trade_records ADD COLUMN notes TEXT DEFAULT ''",
		"ALTER TABLE conditional_tracking ADD COLUMN attention_score REAL DEFAULT 0",
		"ALTER TABLE daily_briefings ADD COLUMN data_gaps_json TEXT DEFAULT '[]'",
	}
	for _, stmt := range additive {
		if _, err := s.db.Exec(stmt); err != nil && !isDuplicateColumn(err) {
			return fmt.Errorf("additive migration %q: %w", stmt, err)
		}
	}
	return nil
}

func isDuplicateColumn(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate column name")
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, queryTimeout)
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

CREATE TABLE IF NOT EXISTS signal_snapshots (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp         TEXT NOT NULL,
	defcon_level      INTEGER NOT NULL,
	composite_score   REAL NOT NULL,
	bond_yield        REAL NOT NULL DEFAULT 0,
	vix               REAL NOT NULL DEFAULT 0,
	market_change_pct REAL NOT NULL DEFAULT 0,
	news_score        REAL NOT NULL DEFAULT 0,
	degraded          INTEGER NOT NULL DEFAULT 0,
	created_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_snapshots_created ON signal_snapshots(created_at);

CREATE TABLE IF NOT EXISTS news_signals (
	id                     INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp              TEXT NOT NULL,
	news_score             REAL NOT NULL,
	dominant_crisis_type   TEXT NOT NULL,
	crisis_description     TEXT NOT NULL DEFAULT '',
	breaking_news_override INTEGER NOT NULL DEFAULT 0,
	recommended_defcon     INTEGER,
	article_count          INTEGER NOT NULL DEFAULT 0,
	breaking_count         INTEGER NOT NULL DEFAULT 0,
	avg_confidence         REAL NOT NULL DEFAULT 0,
	sentiment_summary      TEXT NOT NULL DEFAULT '',
	score_components_json  TEXT NOT NULL DEFAULT '{}',
	keyword_hits_json      TEXT NOT NULL DEFAULT '{}',
	articles_json          TEXT NOT NULL DEFAULT '[]',
	created_at             TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_news_created ON news_signals(created_at);

CREATE TABLE IF NOT EXISTS llm_analyses (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	news_signal_id        INTEGER NOT NULL REFERENCES news_signals(id),
	tier                  TEXT NOT NULL,
	model_id              TEXT NOT NULL DEFAULT '',
	trigger_kind          TEXT NOT NULL DEFAULT 'elevated',
	coherence             TEXT NOT NULL DEFAULT '',
	hidden_risks          TEXT NOT NULL DEFAULT '',
	recommended_action    TEXT NOT NULL DEFAULT '',
	reasoning             TEXT NOT NULL DEFAULT '',
	enhanced_confidence   REAL NOT NULL DEFAULT 0,
	confidence_adjustment REAL NOT NULL DEFAULT 0,
	disagreement          INTEGER NOT NULL DEFAULT 0,
	tokens_in             INTEGER NOT NULL DEFAULT 0,
	tokens_out            INTEGER NOT NULL DEFAULT 0,
	created_at            TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_analyses_signal ON llm_analyses(news_signal_id);

CREATE TABLE IF NOT EXISTS llm_call_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	model_id   TEXT NOT NULL,
	tier       TEXT NOT NULL,
	caller     TEXT NOT NULL DEFAULT 'unknown',
	tokens_in  INTEGER NOT NULL DEFAULT 0,
	tokens_out INTEGER NOT NULL DEFAULT 0,
	downgraded INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_call_log_model_time ON llm_call_log(model_id, created_at);

CREATE TABLE IF NOT EXISTS macro_indicators (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp          TEXT NOT NULL,
	yield_curve_spread REAL NOT NULL DEFAULT 0,
	fed_funds_rate     REAL NOT NULL DEFAULT 0,
	unemployment_rate  REAL NOT NULL DEFAULT 0,
	m2_growth_yoy      REAL NOT NULL DEFAULT 0,
	hy_oas_bps         REAL NOT NULL DEFAULT 0,
	consumer_sentiment REAL NOT NULL DEFAULT 0,
	macro_score        REAL NOT NULL DEFAULT 50,
	defcon_modifier    REAL NOT NULL DEFAULT 0,
	signals_json       TEXT NOT NULL DEFAULT '{}',
	created_at         TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_macro_created ON macro_indicators(created_at);

CREATE TABLE IF NOT EXISTS congress_trades (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	chamber          TEXT NOT NULL,
	politician       TEXT NOT NULL,
	party            TEXT NOT NULL DEFAULT '',
	ticker           TEXT NOT NULL,
	direction        TEXT NOT NULL,
	estimated_amount REAL NOT NULL DEFAULT 0,
	disclosure_date  TEXT NOT NULL,
	transaction_date TEXT NOT NULL,
	created_at       TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(politician, ticker, transaction_date, direction, estimated_amount)
);
CREATE INDEX IF NOT EXISTS idx_congress_ticker ON congress_trades(ticker);
CREATE INDEX IF NOT EXISTS idx_congress_txdate ON congress_trades(transaction_date);

CREATE TABLE IF NOT EXISTS congressional_cluster_signals (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	ticker              TEXT NOT NULL,
	buy_count           INTEGER NOT NULL,
	politicians_json    TEXT NOT NULL DEFAULT '[]',
	bipartisan          INTEGER NOT NULL DEFAULT 0,
	committee_relevance INTEGER NOT NULL DEFAULT 0,
	total_amount        REAL NOT NULL DEFAULT 0,
	signal_strength     REAL NOT NULL DEFAULT 0,
	created_at          TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_clusters_ticker ON congressional_cluster_signals(ticker);

CREATE TABLE IF NOT EXISTS acquisition_watchlist (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	ticker           TEXT NOT NULL,
	date_added       TEXT NOT NULL,
	source           TEXT NOT NULL,
	model_confidence REAL NOT NULL DEFAULT 0,
	entry_conditions TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'pending',
	notes            TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_watchlist_status ON acquisition_watchlist(status);
CREATE INDEX IF NOT EXISTS idx_watchlist_ticker ON acquisition_watchlist(ticker);
CREATE INDEX IF NOT EXISTS idx_watchlist_date   ON acquisition_watchlist(date_added);

CREATE TABLE IF NOT EXISTS stock_research_library (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	ticker              TEXT NOT NULL,
	research_date       TEXT NOT NULL,
	current_price       REAL NOT NULL DEFAULT 0,
	price_1w_chg_pct    REAL NOT NULL DEFAULT 0,
	price_1m_chg_pct    REAL NOT NULL DEFAULT 0,
	price_52w_high      REAL NOT NULL DEFAULT 0,
	price_52w_low       REAL NOT NULL DEFAULT 0,
	avg_volume_20d      INTEGER NOT NULL DEFAULT 0,
	market_cap          REAL NOT NULL DEFAULT 0,
	pe_ratio            REAL NOT NULL DEFAULT 0,
	forward_pe          REAL NOT NULL DEFAULT 0,
	profit_margin       REAL NOT NULL DEFAULT 0,
	revenue_growth_yoy  REAL NOT NULL DEFAULT 0,
	debt_to_equity      REAL NOT NULL DEFAULT 0,
	analyst_target_mean REAL NOT NULL DEFAULT 0,
	analyst_target_high REAL NOT NULL DEFAULT 0,
	analyst_target_low  REAL NOT NULL DEFAULT 0,
	analyst_buy_count   INTEGER NOT NULL DEFAULT 0,
	analyst_hold_count  INTEGER NOT NULL DEFAULT 0,
	analyst_sell_count  INTEGER NOT NULL DEFAULT 0,
	next_earnings_date  TEXT NOT NULL DEFAULT '',
	latest_filing_type  TEXT NOT NULL DEFAULT '',
	latest_filing_date  TEXT NOT NULL DEFAULT '',
	filing_summary      TEXT NOT NULL DEFAULT '',
	news_mention_count  INTEGER NOT NULL DEFAULT 0,
	news_sentiment_avg  REAL NOT NULL DEFAULT 0,
	congressional_signal_strength REAL NOT NULL DEFAULT 0,
	congressional_buy_count INTEGER NOT NULL DEFAULT 0,
	macro_score         REAL NOT NULL DEFAULT 50,
	market_regime       TEXT NOT NULL DEFAULT 'unknown',
	raw_provider_json   TEXT NOT NULL DEFAULT '{}',
	status              TEXT NOT NULL DEFAULT 'library_ready',
	error_notes         TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(ticker, research_date)
);
CREATE INDEX IF NOT EXISTS idx_library_status ON stock_research_library(status);
CREATE INDEX IF NOT EXISTS idx_library_ticker ON stock_research_library(ticker);
CREATE INDEX IF NOT EXISTS idx_library_date   ON stock_research_library(research_date);

CREATE TABLE IF NOT EXISTS conditional_tracking (
	id                           INTEGER PRIMARY KEY AUTOINCREMENT,
	ticker                       TEXT NOT NULL,
	date_created                 TEXT NOT NULL,
	entry_price_target           REAL NOT NULL DEFAULT 0,
	entry_price_rationale        TEXT NOT NULL DEFAULT '',
	stop_loss                    REAL NOT NULL DEFAULT 0,
	take_profit_1                REAL NOT NULL DEFAULT 0,
	take_profit_2                REAL NOT NULL DEFAULT 0,
	position_size_pct            REAL NOT NULL DEFAULT 0,
	time_horizon_days            INTEGER NOT NULL DEFAULT 30,
	entry_conditions_json        TEXT NOT NULL DEFAULT '[]',
	invalidation_conditions_json TEXT NOT NULL DEFAULT '[]',
	thesis_summary               TEXT NOT NULL DEFAULT '',
	key_risks_json               TEXT NOT NULL DEFAULT '[]',
	watch_tag                    TEXT NOT NULL DEFAULT 'momentum',
	research_confidence          REAL NOT NULL DEFAULT 0,
	status                       TEXT NOT NULL DEFAULT 'active',
	verification_count           INTEGER NOT NULL DEFAULT 0,
	last_verified                TEXT NOT NULL DEFAULT '',
	notes                        TEXT NOT NULL DEFAULT '',
	created_at                   TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_conditionals_status ON conditional_tracking(status);
CREATE INDEX IF NOT EXISTS idx_conditionals_ticker ON conditional_tracking(ticker);

CREATE TABLE IF NOT EXISTS trade_records (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	ticker              TEXT NOT NULL,
	entry_date          TEXT NOT NULL,
	entry_time          TEXT NOT NULL,
	entry_price         REAL NOT NULL,
	shares              INTEGER NOT NULL,
	cost_basis          REAL NOT NULL DEFAULT 0,
	entry_signal_score  REAL NOT NULL DEFAULT 0,
	defcon_at_entry     INTEGER NOT NULL DEFAULT 5,
	status              TEXT NOT NULL DEFAULT 'open',
	current_price       REAL NOT NULL DEFAULT 0,
	unrealized_pnl      REAL NOT NULL DEFAULT 0,
	exit_date           TEXT NOT NULL DEFAULT '',
	exit_time           TEXT NOT NULL DEFAULT '',
	exit_price          REAL NOT NULL DEFAULT 0,
	exit_reason         TEXT NOT NULL DEFAULT '',
	profit_loss_dollars REAL NOT NULL DEFAULT 0,
	profit_loss_percent REAL NOT NULL DEFAULT 0,
	holding_hours       REAL NOT NULL DEFAULT 0,
	created_at          TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_trades_status ON trade_records(status);
CREATE INDEX IF NOT EXISTS idx_trades_ticker ON trade_records(ticker);
CREATE INDEX IF NOT EXISTS idx_trades_date   ON trade_records(entry_date);

CREATE TABLE IF NOT EXISTS daily_briefings (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	date               TEXT NOT NULL,
	tier               TEXT NOT NULL,
	market_regime      TEXT NOT NULL DEFAULT 'unknown',
	regime_confidence  REAL NOT NULL DEFAULT 0,
	headline           TEXT NOT NULL DEFAULT '',
	key_themes_json    TEXT NOT NULL DEFAULT '[]',
	risks_json         TEXT NOT NULL DEFAULT '[]',
	opportunities_json TEXT NOT NULL DEFAULT '[]',
	watchlist_json     TEXT NOT NULL DEFAULT '[]',
	defcon_forecast    INTEGER NOT NULL DEFAULT 0,
	tokens_in          INTEGER NOT NULL DEFAULT 0,
	tokens_out         INTEGER NOT NULL DEFAULT 0,
	created_at         TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(date, tier)
);
CREATE INDEX IF NOT EXISTS idx_briefings_date ON daily_briefings(date);

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`
