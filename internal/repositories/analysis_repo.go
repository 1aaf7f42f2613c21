package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rotisserie/eris"

	"github.com/AI-Template-SDK/senso-analysis/internal/models"
)

const analysisColumns = `response_id, query_id, prompt_id, company_id, answer_engine, response_text,
	citations_parsed, sentiment_score, ranking_position, company_mentioned, recommended, cited,
	competitors_list, mentioned_companies, rank_list, solution_analysis, share_of_voice,
	geographic_region, industry_vertical, buyer_persona, buying_journey_stage,
	analysis_batch_id, created_by_batch, created_at, updated_at`

// The WHERE clause keeps analysis_batch_id immutable: a row owned by another batch is left
// untouched and the statement reports zero affected rows.
const upsertAnalysisQuery = `INSERT INTO response_analysis (` + analysisColumns + `)
VALUES (:response_id, :query_id, :prompt_id, :company_id, :answer_engine, :response_text,
	:citations_parsed, :sentiment_score, :ranking_position, :company_mentioned, :recommended, :cited,
	:competitors_list, :mentioned_companies, :rank_list, :solution_analysis, :share_of_voice,
	:geographic_region, :industry_vertical, :buyer_persona, :buying_journey_stage,
	:analysis_batch_id, :created_by_batch, :created_at, :updated_at)
ON CONFLICT (response_id) DO UPDATE SET
	query_id = excluded.query_id,
	prompt_id = excluded.prompt_id,
	company_id = excluded.company_id,
	answer_engine = excluded.answer_engine,
	response_text = excluded.response_text,
	citations_parsed = excluded.citations_parsed,
	sentiment_score = excluded.sentiment_score,
	ranking_position = excluded.ranking_position,
	company_mentioned = excluded.company_mentioned,
	recommended = excluded.recommended,
	cited = excluded.cited,
	competitors_list = excluded.competitors_list,
	mentioned_companies = excluded.mentioned_companies,
	rank_list = excluded.rank_list,
	solution_analysis = excluded.solution_analysis,
	share_of_voice = excluded.share_of_voice,
	geographic_region = excluded.geographic_region,
	industry_vertical = excluded.industry_vertical,
	buyer_persona = excluded.buyer_persona,
	buying_journey_stage = excluded.buying_journey_stage,
	created_by_batch = excluded.created_by_batch,
	updated_at = excluded.updated_at
WHERE response_analysis.analysis_batch_id = excluded.analysis_batch_id`

// AnalysisRepo reads and stages response_analysis rows
type AnalysisRepo struct {
	db *sqlx.DB
}

func NewAnalysisRepo(db *sqlx.DB) *AnalysisRepo {
	return &AnalysisRepo{db: db}
}

// UpsertWrite stages the insert-or-replace of rec's row.
func (r *AnalysisRepo) UpsertWrite(rec *models.ResponseAnalysis) Write {
	return Write{
		Name:     "upsert_response_analysis",
		RecordID: rec.ResponseID,
		Apply: func(ctx context.Context, tx sqlx.ExtContext) error {
			res, err := sqlx.NamedExecContext(ctx, tx, upsertAnalysisQuery, rec)
			if err != nil {
				return eris.Wrap(err, "repositories: upsert response analysis")
			}
			n, err := res.RowsAffected()
			if err != nil {
				return eris.Wrap(err, "repositories: upsert response analysis rows affected")
			}
			if n == 0 {
				return ErrBatchConflict
			}
			return nil
		},
	}
}

func (r *AnalysisRepo) GetByResponseID(ctx context.Context, responseID uuid.UUID) (*models.ResponseAnalysis, error) {
	var rec models.ResponseAnalysis
	query := r.db.Rebind(`SELECT ` + analysisColumns + ` FROM response_analysis WHERE response_id = ?`)
	if err := r.db.GetContext(ctx, &rec, query, responseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "repositories: get response analysis %s", responseID)
	}
	return &rec, nil
}

// ListByBatch returns the analyses of a batch in creation order.
func (r *AnalysisRepo) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]models.ResponseAnalysis, error) {
	var recs []models.ResponseAnalysis
	query := r.db.Rebind(`SELECT ` + analysisColumns + ` FROM response_analysis
		WHERE analysis_batch_id = ? ORDER BY created_at, response_id`)
	if err := r.db.SelectContext(ctx, &recs, query, batchID); err != nil {
		return nil, eris.Wrapf(err, "repositories: list analyses for batch %s", batchID)
	}
	return recs, nil
}

func (r *AnalysisRepo) CountByBatch(ctx context.Context, batchID uuid.UUID) (int, error) {
	var n int
	query := r.db.Rebind(`SELECT COUNT(*) FROM response_analysis WHERE analysis_batch_id = ?`)
	if err := r.db.GetContext(ctx, &n, query, batchID); err != nil {
		return 0, eris.Wrapf(err, "repositories: count analyses for batch %s", batchID)
	}
	return n, nil
}
