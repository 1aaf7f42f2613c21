package repositories

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rotisserie/eris"

	"github.com/AI-Template-SDK/senso-analysis/internal/models"
)

const insertCitationQuery = `INSERT INTO response_citations
	(citation_id, response_id, citation_rank, url, title, snippet, domain, source, citation_type, created_at)
VALUES
	(:citation_id, :response_id, :citation_rank, :url, :title, :snippet, :domain, :source, :citation_type, :created_at)`

// CitationRepo reads and stages response_citations rows
type CitationRepo struct {
	db *sqlx.DB
}

func NewCitationRepo(db *sqlx.DB) *CitationRepo {
	return &CitationRepo{db: db}
}

// CitationID is stable per (response, rank) so reprocessing rewrites the same keys.
func CitationID(responseID uuid.UUID, rank int) uuid.UUID {
	return uuid.NewSHA1(responseID, []byte("citation:"+strconv.Itoa(rank)))
}

// ReplaceWrites stages the removal of a response's citation rows followed by the insert of rows.
func (r *CitationRepo) ReplaceWrites(responseID uuid.UUID, rows []models.CitationRow) []Write {
	writes := []Write{{
		Name:     "delete_response_citations",
		RecordID: responseID,
		Apply: func(ctx context.Context, tx sqlx.ExtContext) error {
			query := tx.Rebind(`DELETE FROM response_citations WHERE response_id = ?`)
			if _, err := tx.ExecContext(ctx, query, responseID); err != nil {
				return eris.Wrap(err, "repositories: delete citations")
			}
			return nil
		},
	}}
	if len(rows) == 0 {
		return writes
	}
	return append(writes, Write{
		Name:     "insert_response_citations",
		RecordID: responseID,
		Apply: func(ctx context.Context, tx sqlx.ExtContext) error {
			for i := range rows {
				if _, err := sqlx.NamedExecContext(ctx, tx, insertCitationQuery, &rows[i]); err != nil {
					return eris.Wrapf(err, "repositories: insert citation rank %d", rows[i].Rank)
				}
			}
			return nil
		},
	})
}

// ListByResponse returns citation rows in rank order.
func (r *CitationRepo) ListByResponse(ctx context.Context, responseID uuid.UUID) ([]models.CitationRow, error) {
	var rows []models.CitationRow
	query := r.db.Rebind(`SELECT citation_id, response_id, citation_rank, url, title, snippet, domain, source, citation_type, created_at
		FROM response_citations WHERE response_id = ? ORDER BY citation_rank`)
	if err := r.db.SelectContext(ctx, &rows, query, responseID); err != nil {
		return nil, eris.Wrapf(err, "repositories: list citations for %s", responseID)
	}
	return rows, nil
}
