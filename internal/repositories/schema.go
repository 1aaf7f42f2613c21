package repositories

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rotisserie/eris"
)

// schema is portable between Postgres and SQLite. Identifiers are stored as text so both
// drivers round-trip uuid.UUID through its Scanner/Valuer.
//
// response_citations deliberately has no foreign key: citation rows are staged before the
// parent row inside the same transaction.
const schema = `
CREATE TABLE IF NOT EXISTS response_analysis (
	response_id          TEXT PRIMARY KEY,
	query_id             TEXT NOT NULL,
	prompt_id            TEXT,
	company_id           TEXT NOT NULL,
	answer_engine        TEXT NOT NULL,
	response_text        TEXT NOT NULL,
	citations_parsed     TEXT NOT NULL,
	sentiment_score      DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	ranking_position     INTEGER,
	company_mentioned    BOOLEAN NOT NULL DEFAULT FALSE,
	recommended          BOOLEAN NOT NULL DEFAULT FALSE,
	cited                BOOLEAN NOT NULL DEFAULT FALSE,
	competitors_list     TEXT NOT NULL DEFAULT '[]',
	mentioned_companies  TEXT NOT NULL DEFAULT '[]',
	rank_list            TEXT NOT NULL DEFAULT '',
	solution_analysis    TEXT NOT NULL,
	share_of_voice       DOUBLE PRECISION,
	geographic_region    TEXT NOT NULL DEFAULT '',
	industry_vertical    TEXT NOT NULL DEFAULT '',
	buyer_persona        TEXT NOT NULL DEFAULT '',
	buying_journey_stage TEXT NOT NULL DEFAULT '',
	analysis_batch_id    TEXT NOT NULL,
	created_by_batch     BOOLEAN NOT NULL DEFAULT FALSE,
	created_at           TIMESTAMP NOT NULL,
	updated_at           TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_response_analysis_batch ON response_analysis(analysis_batch_id);
CREATE INDEX IF NOT EXISTS idx_response_analysis_company ON response_analysis(company_id, created_at);

CREATE TABLE IF NOT EXISTS response_citations (
	citation_id   TEXT PRIMARY KEY,
	response_id   TEXT NOT NULL,
	citation_rank INTEGER NOT NULL,
	url           TEXT NOT NULL,
	title         TEXT NOT NULL DEFAULT '',
	snippet       TEXT NOT NULL DEFAULT '',
	domain        TEXT NOT NULL DEFAULT '',
	source        TEXT NOT NULL DEFAULT '',
	citation_type TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_response_citations_response ON response_citations(response_id, citation_rank);

CREATE TABLE IF NOT EXISTS analysis_batches (
	analysis_batch_id TEXT PRIMARY KEY,
	state             TEXT NOT NULL,
	record_count      INTEGER NOT NULL DEFAULT 0,
	created_at        TIMESTAMP NOT NULL,
	committed_at      TIMESTAMP
);

CREATE TABLE IF NOT EXISTS companies (
	company_id TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	aliases    TEXT NOT NULL DEFAULT '[]',
	domains    TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS company_competitors (
	company_id TEXT NOT NULL,
	position   INTEGER NOT NULL,
	name       TEXT NOT NULL,
	aliases    TEXT NOT NULL DEFAULT '[]',
	domains    TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (company_id, position)
);

CREATE TABLE IF NOT EXISTS company_products (
	company_id TEXT NOT NULL,
	position   INTEGER NOT NULL,
	name       TEXT NOT NULL,
	PRIMARY KEY (company_id, position)
);

CREATE TABLE IF NOT EXISTS icps (
	icp_id            TEXT PRIMARY KEY,
	region            TEXT NOT NULL DEFAULT '',
	industry_vertical TEXT NOT NULL DEFAULT '',
	company_size      TEXT NOT NULL DEFAULT '',
	company_id        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS personas (
	persona_id TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	seniority  TEXT NOT NULL DEFAULT '',
	department TEXT NOT NULL DEFAULT '',
	icp_id     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS queries (
	query_id         TEXT PRIMARY KEY,
	query_text       TEXT NOT NULL,
	journey_phases   TEXT NOT NULL DEFAULT '[]',
	persona_id       TEXT NOT NULL,
	company_id       TEXT NOT NULL,
	batch_id         TEXT,
	created_by_batch BOOLEAN NOT NULL DEFAULT FALSE,
	created_at       TIMESTAMP NOT NULL
);
`

// Migrate applies the schema. Statements are idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return eris.Wrapf(err, "repositories: migrate %q", firstLine(stmt))
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
