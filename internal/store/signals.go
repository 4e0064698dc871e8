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

// ErrNotFound is returned when a lookup matches no rows.
var ErrNotFound = errors.New("store: not found")

// SnapshotRepo persists per-cycle signal snapshots.
type SnapshotRepo interface {
	Insert(ctx context.Context, s *models.SignalSnapshot) (int64, error)
	Latest(ctx context.Context) (*models.SignalSnapshot, error)
	Recent(ctx context.Context, limit int) ([]models.SignalSnapshot, error)
}

type snapshotRepo struct {
	db *sqlx.DB
}

func (r *snapshotRepo) Insert(ctx context.Context, s *models.SignalSnapshot) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO signal_snapshots
			(timestamp, defcon_level, composite_score, bond_yield, vix, market_change_pct, news_score, degraded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Timestamp.UTC().Format(time.RFC3339), int(s.DefconLevel), s.CompositeScore,
		s.BondYield, s.VIX, s.MarketChangePct, s.NewsScore, s.Degraded)
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	return res.LastInsertId()
}

func (r *snapshotRepo) Latest(ctx context.Context) (*models.SignalSnapshot, error) {
	rows, err := r.Recent(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

func (r *snapshotRepo) Recent(ctx context.Context, limit int) ([]models.SignalSnapshot, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var raw []struct {
		ID              int64     `db:"id"`
		TS              string    `db:"timestamp"`
		DefconLevel     int       `db:"defcon_level"`
		CompositeScore  float64   `db:"composite_score"`
		BondYield       float64   `db:"bond_yield"`
		VIX             float64   `db:"vix"`
		MarketChangePct float64   `db:"market_change_pct"`
		NewsScore       float64   `db:"news_score"`
		Degraded        bool      `db:"degraded"`
		CreatedAt       time.Time `db:"created_at"`
	}
	err := r.db.SelectContext(ctx, &raw, `
		SELECT id, timestamp, defcon_level, composite_score, bond_yield, vix,
		       market_change_pct, news_score, degraded, created_at
		FROM signal_snapshots ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select snapshots: %w", err)
	}
	out := make([]models.SignalSnapshot, 0, len(raw))
	for _, row := range raw {
		s := models.SignalSnapshot{
			ID:              row.ID,
			DefconLevel:     models.DefconLevel(row.DefconLevel),
			CompositeScore:  row.CompositeScore,
			BondYield:       row.BondYield,
			VIX:             row.VIX,
			MarketChangePct: row.MarketChangePct,
			NewsScore:       row.NewsScore,
			Degraded:        row.Degraded,
			CreatedAt:       row.CreatedAt,
		}
		s.Timestamp, _ = time.Parse(time.RFC3339, row.TS)
		out = append(out, s)
	}
	return out, nil
}

// NewsRepo persists news signals and their LLM analyses.
type NewsRepo interface {
	InsertSignal(ctx context.Context, sig *models.NewsSignal) (int64, error)
	LatestSignal(ctx context.Context) (*models.NewsSignal, error)
	InsertAnalysis(ctx context.Context, a *models.LLMAnalysis) (int64, error)
	AnalysesForSignal(ctx context.Context, signalID int64) ([]models.LLMAnalysis, error)
}

type newsRepo struct {
	db *sqlx.DB
}

func (r *newsRepo) InsertSignal(ctx context.Context, sig *models.NewsSignal) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	components, err := json.Marshal(sig.Components)
	if err != nil {
		return 0, fmt.Errorf("marshal components: %w", err)
	}
	keywords, err := json.Marshal(orEmptyMap(sig.KeywordHits))
	if err != nil {
		return 0, fmt.Errorf("marshal keyword hits: %w", err)
	}
	articles, err := json.Marshal(orEmptyArticles(sig.Articles))
	if err != nil {
		return 0, fmt.Errorf("marshal articles: %w", err)
	}

	var recommended any
	if sig.RecommendedDefcon != nil {
		recommended = int(*sig.RecommendedDefcon)
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO news_signals
			(timestamp, news_score, dominant_crisis_type, crisis_description,
			 breaking_news_override, recommended_defcon, article_count, breaking_count,
			 avg_confidence, sentiment_summary, score_components_json, keyword_hits_json, articles_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.Timestamp.UTC().Format(time.RFC3339), sig.NewsScore, string(sig.DominantCrisisType),
		sig.CrisisDescription, sig.BreakingNewsOverride, recommended, sig.ArticleCount,
		sig.BreakingCount, sig.AvgConfidence, sig.SentimentSummary,
		string(components), string(keywords), string(articles))
	if err != nil {
		return 0, fmt.Errorf("insert news signal: %w", err)
	}
	return res.LastInsertId()
}

func (r *newsRepo) LatestSignal(ctx context.Context) (*models.NewsSignal, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var row struct {
		ID                   int64         `db:"id"`
		Timestamp            string        `db:"timestamp"`
		NewsScore            float64       `db:"news_score"`
		DominantCrisisType   string        `db:"dominant_crisis_type"`
		CrisisDescription    string        `db:"crisis_description"`
		BreakingNewsOverride bool          `db:"breaking_news_override"`
		RecommendedDefcon    sql.NullInt64 `db:"recommended_defcon"`
		ArticleCount         int           `db:"article_count"`
		BreakingCount        int           `db:"breaking_count"`
		AvgConfidence        float64       `db:"avg_confidence"`
		SentimentSummary     string        `db:"sentiment_summary"`
		ComponentsJSON       string        `db:"score_components_json"`
		KeywordHitsJSON      string        `db:"keyword_hits_json"`
		ArticlesJSON         string        `db:"articles_json"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT id, timestamp, news_score, dominant_crisis_type, crisis_description,
		       breaking_news_override, recommended_defcon, article_count, breaking_count,
		       avg_confidence, sentiment_summary, score_components_json,
		       keyword_hits_json, articles_json
		FROM news_signals ORDER BY id DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select latest news signal: %w", err)
	}

	sig := &models.NewsSignal{
		ID:                   row.ID,
		NewsScore:            row.NewsScore,
		DominantCrisisType:   models.CrisisType(row.DominantCrisisType),
		CrisisDescription:    row.CrisisDescription,
		BreakingNewsOverride: row.BreakingNewsOverride,
		ArticleCount:         row.ArticleCount,
		BreakingCount:        row.BreakingCount,
		AvgConfidence:        row.AvgConfidence,
		SentimentSummary:     row.SentimentSummary,
	}
	sig.Timestamp, _ = time.Parse(time.RFC3339, row.Timestamp)
	if row.RecommendedDefcon.Valid {
		lvl := models.DefconLevel(row.RecommendedDefcon.Int64)
		sig.RecommendedDefcon = &lvl
	}
	if err := json.Unmarshal([]byte(row.ComponentsJSON), &sig.Components); err != nil {
		return nil, fmt.Errorf("unmarshal components: %w", err)
	}
	if err := json.Unmarshal([]byte(row.KeywordHitsJSON), &sig.KeywordHits); err != nil {
		return nil, fmt.Errorf("unmarshal keyword hits: %w", err)
	}
	if err := json.Unmarshal([]byte(row.ArticlesJSON), &sig.Articles); err != nil {
		return nil, fmt.Errorf("unmarshal articles: %w", err)
	}
	return sig, nil
}

func (r *newsRepo) InsertAnalysis(ctx context.Context, a *models.LLMAnalysis) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO llm_analyses
			(news_signal_id, tier, model_id, trigger_kind, coherence, hidden_risks,
			 recommended_action, reasoning, enhanced_confidence, confidence_adjustment,
			 disagreement, tokens_in, tokens_out)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.NewsSignalID, a.Tier, a.ModelID, a.TriggerKind, a.Coherence, a.HiddenRisks,
		a.RecommendedAction, a.Reasoning, a.EnhancedConfidence, a.ConfidenceAdjustment,
		a.Disagreement, a.TokensIn, a.TokensOut)
	if err != nil {
		return 0, fmt.Errorf("insert llm analysis: %w", err)
	}
	return res.LastInsertId()
}

func (r *newsRepo) AnalysesForSignal(ctx context.Context, signalID int64) ([]models.LLMAnalysis, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var out []models.LLMAnalysis
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, news_signal_id, tier, model_id, trigger_kind, coherence, hidden_risks,
		       recommended_action, reasoning, enhanced_confidence, confidence_adjustment,
		       disagreement, tokens_in, tokens_out, created_at
		FROM llm_analyses WHERE news_signal_id = ? ORDER BY id`, signalID)
	if err != nil {
		return nil, fmt.Errorf("select analyses: %w", err)
	}
	return out, nil
}

// LLMCallRepo tracks model calls for quota accounting.
type LLMCallRepo interface {
	Record(ctx context.Context, modelID, tier, caller string, tokensIn, tokensOut int, downgraded bool) error
	CountSince(ctx context.Context, modelID string, since time.Time) (int, error)
}

type llmCallRepo struct {
	db *sqlx.DB
}

func (r *llmCallRepo) Record(ctx context.Context, modelID, tier, caller string, tokensIn, tokensOut int, downgraded bool) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO llm_call_log (model_id, tier, caller, tokens_in, tokens_out, downgraded)
		VALUES (?, ?, ?, ?, ?, ?)`,
		modelID, tier, caller, tokensIn, tokensOut, downgraded)
	if err != nil {
		return fmt.Errorf("record llm call: %w", err)
	}
	return nil
}

func (r *llmCallRepo) CountSince(ctx context.Context, modelID string, since time.Time) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM llm_call_log
		WHERE model_id = ? AND created_at >= ?`,
		modelID, since.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return 0, fmt.Errorf("count llm calls: %w", err)
	}
	return n, nil
}

func orEmptyMap(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}

func orEmptyArticles(a []models.ScoredArticle) []models.ScoredArticle {
	if a == nil {
		return []models.ScoredArticle{}
	}
	return a
}
