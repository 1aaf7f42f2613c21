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

// record_count is computed inside the same transaction, after the batch's rows are staged.
const upsertBatchQuery = `INSERT INTO analysis_batches (analysis_batch_id, state, record_count, created_at, committed_at)
VALUES (?, ?, (SELECT COUNT(*) FROM response_analysis WHERE analysis_batch_id = ?), ?, ?)
ON CONFLICT (analysis_batch_id) DO UPDATE SET
	state = excluded.state,
	record_count = excluded.record_count,
	committed_at = excluded.committed_at`

// BatchRepo reads and stages analysis_batches rows
type BatchRepo struct {
	db *sqlx.DB
}

func NewBatchRepo(db *sqlx.DB) *BatchRepo {
	return &BatchRepo{db: db}
}

// UpsertWrite stages the batch row as committed. The row only becomes visible if the
// surrounding transaction commits.
func (r *BatchRepo) UpsertWrite(batch *models.AnalysisBatch) Write {
	return Write{
		Name: "upsert_analysis_batch",
		Apply: func(ctx context.Context, tx sqlx.ExtContext) error {
			committedAt := batch.CreatedAt
			if batch.CommittedAt != nil {
				committedAt = *batch.CommittedAt
			}
			query := tx.Rebind(upsertBatchQuery)
			_, err := tx.ExecContext(ctx, query,
				batch.ID, models.BatchStateCommitted, batch.ID, batch.CreatedAt, committedAt)
			if err != nil {
				return eris.Wrapf(err, "repositories: upsert analysis batch %s", batch.ID)
			}
			return nil
		},
	}
}

func (r *BatchRepo) Get(ctx context.Context, batchID uuid.UUID) (*models.AnalysisBatch, error) {
	var batch models.AnalysisBatch
	query := r.db.Rebind(`SELECT analysis_batch_id, state, record_count, created_at, committed_at
		FROM analysis_batches WHERE analysis_batch_id = ?`)
	if err := r.db.GetContext(ctx, &batch, query, batchID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "repositories: get analysis batch %s", batchID)
	}
	return &batch, nil
}
