package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI-Template-SDK/senso-analysis/internal/models"
)

func newSQLiteDB(t *testing.T) *sqlx.DB {
	t.Helper()
	ctx := context.Background()
	db, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(ctx, db))
	return db
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "sqlmock"), mock
}

func sampleRecord(batchID uuid.UUID) *models.ResponseAnalysis {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pos := 1
	return &models.ResponseAnalysis{
		ResponseID:       uuid.New(),
		QueryID:          uuid.New(),
		CompanyID:        uuid.New(),
		AnswerEngine:     "chatgpt",
		ResponseText:     "Acme leads the market.",
		CitationsParsed:  models.NewCitationsParsed(nil, models.RankList{"Acme"}),
		SentimentScore:   0.75,
		RankingPosition:  &pos,
		CompanyMentioned: true,
		RankList:         models.RankList{"Acme"},
		SolutionAnalysis: models.SolutionAnalysis{Version: models.SolutionAnalysisVersion},
		AnalysisBatchID:  batchID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func commitWrites(t *testing.T, db *sqlx.DB, writes ...Write) error {
	t.Helper()
	ctx := context.Background()
	uow := NewUnitOfWork(db)
	require.NoError(t, uow.Begin(ctx))
	defer uow.Rollback()
	for _, w := range writes {
		if err := uow.Stage(ctx, w); err != nil {
			return err
		}
	}
	return uow.Commit()
}

func TestUnitOfWork_CommitPersistsRecordAndCitations(t *testing.T) {
	db := newSQLiteDB(t)
	rm := NewRepositoryManager(db)
	ctx := context.Background()

	rec := sampleRecord(uuid.New())
	rows := []models.CitationRow{
		{CitationID: CitationID(rec.ResponseID, 1), ResponseID: rec.ResponseID, Rank: 1, URL: "https://acme.com", Domain: "acme.com", CreatedAt: rec.CreatedAt},
		{CitationID: CitationID(rec.ResponseID, 2), ResponseID: rec.ResponseID, Rank: 2, URL: "https://globex.com", Domain: "globex.com", CreatedAt: rec.CreatedAt},
	}
	batch := &models.AnalysisBatch{ID: rec.AnalysisBatchID, CreatedAt: rec.CreatedAt}

	writes := append(rm.CitationRepo.ReplaceWrites(rec.ResponseID, rows), rm.AnalysisRepo.UpsertWrite(rec), rm.BatchRepo.UpsertWrite(batch))
	require.NoError(t, commitWrites(t, db, writes...))

	got, err := rm.AnalysisRepo.GetByResponseID(ctx, rec.ResponseID)
	require.NoError(t, err)
	assert.Equal(t, rec.AnalysisBatchID, got.AnalysisBatchID)
	assert.Equal(t, models.RankList{"Acme"}, got.RankList)
	require.NotNil(t, got.RankingPosition)
	assert.Equal(t, 1, *got.RankingPosition)
	assert.Nil(t, got.PromptID)
	assert.True(t, got.CompanyMentioned)

	cites, err := rm.CitationRepo.ListByResponse(ctx, rec.ResponseID)
	require.NoError(t, err)
	require.Len(t, cites, 2)
	assert.Equal(t, "https://acme.com", cites[0].URL)

	stored, err := rm.BatchRepo.Get(ctx, rec.AnalysisBatchID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStateCommitted, stored.State)
	assert.Equal(t, 1, stored.RecordCount)
}

func TestUnitOfWork_RollbackLeavesNothing(t *testing.T) {
	db := newSQLiteDB(t)
	rm := NewRepositoryManager(db)
	ctx := context.Background()

	rec := sampleRecord(uuid.New())
	rows := []models.CitationRow{{CitationID: CitationID(rec.ResponseID, 1), ResponseID: rec.ResponseID, Rank: 1, URL: "https://acme.com", CreatedAt: rec.CreatedAt}}

	uow := rm.NewUnitOfWork()
	require.NoError(t, uow.Begin(ctx))
	for _, w := range rm.CitationRepo.ReplaceWrites(rec.ResponseID, rows) {
		require.NoError(t, uow.Stage(ctx, w))
	}
	require.NoError(t, uow.Rollback())
	assert.Equal(t, models.BatchStateRolledBack, uow.State())
	require.NoError(t, uow.Rollback())

	cites, err := rm.CitationRepo.ListByResponse(ctx, rec.ResponseID)
	require.NoError(t, err)
	assert.Empty(t, cites)

	_, err = rm.AnalysisRepo.GetByResponseID(ctx, rec.ResponseID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnitOfWork_StateTransitions(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()

	uow := NewUnitOfWork(db)
	assert.Equal(t, models.BatchStatePending, uow.State())
	assert.Error(t, uow.Commit())
	assert.Error(t, uow.Stage(ctx, Write{Name: "noop", Apply: func(context.Context, sqlx.ExtContext) error { return nil }}))

	require.NoError(t, uow.Begin(ctx))
	assert.Equal(t, models.BatchStateWriting, uow.State())
	assert.Error(t, uow.Begin(ctx))

	require.NoError(t, uow.Commit())
	assert.Equal(t, models.BatchStateCommitted, uow.State())
	require.NoError(t, uow.Rollback())
	assert.Equal(t, models.BatchStateCommitted, uow.State())
}

func TestAnalysisRepo_UpsertIsIdempotentWithinBatch(t *testing.T) {
	db := newSQLiteDB(t)
	rm := NewRepositoryManager(db)
	ctx := context.Background()

	rec := sampleRecord(uuid.New())
	require.NoError(t, commitWrites(t, db, rm.AnalysisRepo.UpsertWrite(rec)))

	rec.SentimentScore = 0.25
	rec.UpdatedAt = rec.UpdatedAt.Add(time.Hour)
	require.NoError(t, commitWrites(t, db, rm.AnalysisRepo.UpsertWrite(rec)))

	got, err := rm.AnalysisRepo.GetByResponseID(ctx, rec.ResponseID)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, got.SentimentScore, 1e-9)

	n, err := rm.AnalysisRepo.CountByBatch(ctx, rec.AnalysisBatchID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAnalysisRepo_UpsertRejectsForeignBatch(t *testing.T) {
	db := newSQLiteDB(t)
	rm := NewRepositoryManager(db)
	ctx := context.Background()

	rec := sampleRecord(uuid.New())
	originalBatch := rec.AnalysisBatchID
	require.NoError(t, commitWrites(t, db, rm.AnalysisRepo.UpsertWrite(rec)))

	rec.AnalysisBatchID = uuid.New()
	err := commitWrites(t, db, rm.AnalysisRepo.UpsertWrite(rec))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBatchConflict)
	assert.True(t, IsConstraintViolation(err))

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, rec.ResponseID, stageErr.RecordID)

	got, err := rm.AnalysisRepo.GetByResponseID(ctx, rec.ResponseID)
	require.NoError(t, err)
	assert.Equal(t, originalBatch, got.AnalysisBatchID)
}

func TestAnalysisRepo_UpsertZeroRowsIsConflict(t *testing.T) {
	db, mock := newMockDB(t)
	rec := sampleRecord(uuid.New())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO response_analysis").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := commitWrites(t, db, NewAnalysisRepo(db).UpsertWrite(rec))
	assert.ErrorIs(t, err, ErrBatchConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCitationRepo_ReplaceWritesWithoutRows(t *testing.T) {
	db, mock := newMockDB(t)
	responseID := uuid.New()

	writes := NewCitationRepo(db).ReplaceWrites(responseID, nil)
	require.Len(t, writes, 1)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM response_citations WHERE response_id = \\?").
		WithArgs(responseID).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	require.NoError(t, commitWrites(t, db, writes...))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCitationID_Stable(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, CitationID(id, 3), CitationID(id, 3))
	assert.NotEqual(t, CitationID(id, 3), CitationID(id, 4))
}

func TestBatchRepo_GetNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT analysis_batch_id").WillReturnRows(sqlmock.NewRows([]string{"analysis_batch_id"}))

	_, err := NewBatchRepo(db).Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCompanyRepo_ProfileAndTaxonomy(t *testing.T) {
	db := newSQLiteDB(t)
	repo := NewCompanyRepo(db)
	ctx := context.Background()

	profile := &models.CompanyProfile{
		ID:           uuid.New(),
		Organization: models.Organization{Name: "Acme", Aliases: []string{"Acme Corp"}, Domains: []string{"acme.com"}},
		Products:     []string{"Rocket Skates", "Giant Magnet"},
		Competitors:  []models.Organization{{Name: "Globex"}, {Name: "Initech", Domains: []string{"initech.com"}}},
	}
	require.NoError(t, repo.SaveProfile(ctx, profile))
	require.NoError(t, repo.SaveProfile(ctx, profile))

	got, err := repo.GetProfile(ctx, profile.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Name)
	assert.Equal(t, []string{"Acme Corp"}, got.Aliases)
	assert.Equal(t, []string{"Rocket Skates", "Giant Magnet"}, got.Products)
	require.Len(t, got.Competitors, 2)
	assert.Equal(t, "Initech", got.Competitors[1].Name)
	assert.Equal(t, []string{"initech.com"}, got.Competitors[1].Domains)

	_, err = repo.GetProfile(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	queryID := uuid.New()
	icp := &models.ICP{
		ID:               uuid.New(),
		Region:           "North America",
		IndustryVertical: "Logistics",
		CompanyID:        profile.ID,
		Personas: []models.Persona{{
			ID:    uuid.New(),
			Title: "VP Operations",
			Queries: []models.Query{{
				ID:            queryID,
				Text:          "best freight platform",
				JourneyPhases: models.StringList{"awareness", "consideration"},
				CompanyID:     profile.ID,
				CreatedAt:     time.Now().UTC(),
			}},
		}},
	}
	require.NoError(t, repo.SaveTaxonomy(ctx, icp))

	snap, err := repo.GetTaxonomy(ctx, queryID)
	require.NoError(t, err)
	assert.Equal(t, models.TaxonomySnapshot{
		GeographicRegion:   "North America",
		IndustryVertical:   "Logistics",
		BuyerPersona:       "VP Operations",
		BuyingJourneyStage: "awareness, consideration",
	}, snap)

	_, err = repo.GetTaxonomy(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		transient  bool
		constraint bool
	}{
		{"serialization failure", &pq.Error{Code: "40001"}, true, false},
		{"deadlock", &pq.Error{Code: "40P01"}, true, false},
		{"admin shutdown", &pq.Error{Code: "57P01"}, true, false},
		{"connection failure", &pq.Error{Code: "08006"}, true, false},
		{"unique violation", &pq.Error{Code: "23505"}, false, true},
		{"syntax error", &pq.Error{Code: "42601"}, false, false},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), true, false},
		{"sqlite constraint", errors.New("constraint failed: UNIQUE constraint failed: response_citations.citation_id (1555)"), false, true},
		{"batch conflict", &StageError{Write: "upsert", Err: ErrBatchConflict}, false, true},
		{"nil", nil, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, IsTransientStoreError(tt.err))
			assert.Equal(t, tt.constraint, IsConstraintViolation(tt.err))
		})
	}
}
