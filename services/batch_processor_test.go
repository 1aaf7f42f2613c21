package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI-Template-SDK/senso-analysis/internal/models"
	"github.com/AI-Template-SDK/senso-analysis/internal/providers/testutil"
	"github.com/AI-Template-SDK/senso-analysis/internal/repositories"
)

func seedTaxonomy(t *testing.T, env *testEnv) {
	t.Helper()
	icp := &models.ICP{
		ID:               uuid.New(),
		Region:           "North America",
		IndustryVertical: "Logistics",
		CompanyID:        testutil.SampleCompanyID,
		Personas: []models.Persona{{
			ID:    uuid.New(),
			Title: "VP Operations",
			Queries: []models.Query{{
				ID:            testutil.SampleQueryID,
				Text:          "Which freight platform should I use?",
				JourneyPhases: models.StringList{"consideration"},
				CompanyID:     testutil.SampleCompanyID,
				CreatedAt:     time.Now().UTC(),
			}},
		}},
	}
	require.NoError(t, env.repos.CompanyRepo.SaveTaxonomy(context.Background(), icp))
}

func sampleResponses(n int) []models.AnswerEngineResponse {
	out := make([]models.AnswerEngineResponse, n)
	for i := range out {
		resp := testutil.SampleResponse()
		resp.ResponseID = uuid.New()
		out[i] = *resp
	}
	return out
}

func TestAnalyzeResponse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec, err := env.processor.AnalyzeResponse(ctx, testutil.SampleResponseText())
	require.NoError(t, err)

	assert.Equal(t, "diagnostic", rec.AnswerEngine)
	assert.Equal(t, models.RankList{"Acme", "Globex", "Initech"}, rec.RankList)
	require.NotNil(t, rec.RankingPosition)
	assert.Equal(t, 1, *rec.RankingPosition)
	assert.True(t, rec.Recommended)
	assert.Equal(t, uuid.Nil, rec.AnalysisBatchID)
	assert.Len(t, rec.CitationsParsed.Citations, 1)

	again, err := env.processor.AnalyzeResponse(ctx, testutil.SampleResponseText())
	require.NoError(t, err)
	assert.Equal(t, rec, again)

	_, err = env.repos.AnalysisRepo.GetByResponseID(ctx, rec.ResponseID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestAnalyzeResponse_Empty(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.processor.AnalyzeResponse(context.Background(), "  ")
	require.Error(t, err)
	assert.True(t, IsInvalidInput(err))
}

func TestProcessBatch(t *testing.T) {
	env := newTestEnv(t)
	seedTaxonomy(t, env)
	ctx := context.Background()

	responses := sampleResponses(3)
	responses[1].ResponseText = ""

	result, err := env.processor.ProcessBatch(ctx, &BatchRequest{
		CompanyID: testutil.SampleCompanyID,
		Responses: responses,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Batch)

	assert.Equal(t, models.BatchStateCommitted, result.Batch.State)
	assert.Equal(t, 2, result.Batch.RecordCount)
	assert.Equal(t, []uuid.UUID{responses[0].ResponseID, responses[2].ResponseID}, result.Batch.AnalysisIDs)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, 1, result.Failures[0].Index)
	assert.Equal(t, responses[1].ResponseID, result.Failures[0].ResponseID)
	assert.Equal(t, KindInvalidInput, result.Failures[0].Kind)

	stored, err := env.repos.AnalysisRepo.GetByResponseID(ctx, responses[0].ResponseID)
	require.NoError(t, err)
	assert.True(t, stored.CreatedByBatch)
	assert.Equal(t, result.Batch.ID, stored.AnalysisBatchID)
	assert.Equal(t, models.TaxonomySnapshot{
		GeographicRegion:   "North America",
		IndustryVertical:   "Logistics",
		BuyerPersona:       "VP Operations",
		BuyingJourneyStage: "consideration",
	}, stored.TaxonomySnapshot)
}

func TestProcessBatch_SuppliedProfileAndBatchID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	batchID := uuid.New()
	companyID := uuid.New()

	result, err := env.processor.ProcessBatch(ctx, &BatchRequest{
		BatchID:   batchID,
		CompanyID: companyID,
		Profile:   profileFor("Initech", "Acme", "Globex"),
		Responses: sampleResponses(1),
	})
	require.NoError(t, err)
	assert.Equal(t, batchID, result.Batch.ID)

	rec := result.Records[0]
	assert.Equal(t, companyID, rec.CompanyID)
	require.NotNil(t, rec.RankingPosition)
	assert.Equal(t, 3, *rec.RankingPosition)
	assert.Equal(t, models.TaxonomySnapshot{}, rec.TaxonomySnapshot)
}

func TestProcessBatch_RawEngineResults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.processor.ProcessBatch(ctx, &BatchRequest{
		CompanyID: testutil.SampleCompanyID,
		Responses: []models.AnswerEngineResponse{
			{ResponseID: uuid.New(), QueryID: testutil.SampleQueryID, EngineName: "chatgpt", RawResult: json.RawMessage(testutil.SampleEngineResult())},
			{ResponseID: uuid.New(), QueryID: testutil.SampleQueryID, EngineName: "chatgpt", RawResult: json.RawMessage(testutil.SampleErrorResult())},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, 1, result.Failures[0].Index)
	assert.Equal(t, KindInvalidInput, result.Failures[0].Kind)
	assert.Contains(t, result.Failures[0].Error, "Request timeout")

	rec := result.Records[0]
	assert.Contains(t, rec.ResponseText, "[1](https://acme.com/)")
	assert.Equal(t, models.RankList{"Acme", "Globex"}, rec.RankList)
	assert.True(t, rec.Cited)
	require.GreaterOrEqual(t, len(rec.CitationsParsed.Citations), 3)
	first := rec.CitationsParsed.Citations[0]
	assert.Equal(t, models.CitationSourceEngine, first.Source)
	assert.Equal(t, models.CitationTypePrimary, first.Type)
	assert.Equal(t, "acme.com", first.Domain)
}

// brokenTaxonomy serves profiles from the real directory but fails every taxonomy read.
type brokenTaxonomy struct {
	CompanyDirectory
	err error
}

func (d brokenTaxonomy) GetTaxonomy(context.Context, uuid.UUID) (models.TaxonomySnapshot, error) {
	return models.TaxonomySnapshot{}, d.err
}

func TestProcessBatch_TaxonomyLookupFailureAbortsBatch(t *testing.T) {
	env := newTestEnv(t)
	seedTaxonomy(t, env)
	ctx := context.Background()

	proc := env.processor.(*batchProcessor)
	proc.directory = brokenTaxonomy{CompanyDirectory: env.repos.CompanyRepo, err: errors.New("connection reset by peer")}

	batchID := uuid.New()
	responses := sampleResponses(2)
	result, err := env.processor.ProcessBatch(ctx, &BatchRequest{
		BatchID:   batchID,
		CompanyID: testutil.SampleCompanyID,
		Responses: responses,
	})
	require.Error(t, err)
	assert.Nil(t, result)

	ae := requireAnalysisError(t, err)
	assert.Equal(t, KindPersistenceFailed, ae.Kind)
	assert.True(t, ae.Transient)
	assert.Equal(t, batchID, ae.BatchID)
	assert.Contains(t, err.Error(), "connection reset by peer")
	assert.Equal(t, 0, env.plan.Begins())

	for _, r := range responses {
		_, err := env.repos.AnalysisRepo.GetByResponseID(ctx, r.ResponseID)
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	}
}

func TestProcessBatch_UnregisteredQueryGetsEmptyTaxonomy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	responses := sampleResponses(1)
	responses[0].QueryID = uuid.New()
	result, err := env.processor.ProcessBatch(ctx, &BatchRequest{CompanyID: testutil.SampleCompanyID, Responses: responses})
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, models.TaxonomySnapshot{}, result.Records[0].TaxonomySnapshot)
}

func TestProcessBatch_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.processor.ProcessBatch(ctx, nil)
	assert.True(t, IsInvalidInput(err))

	_, err = env.processor.ProcessBatch(ctx, &BatchRequest{CompanyID: testutil.SampleCompanyID})
	assert.True(t, IsInvalidInput(err))

	_, err = env.processor.ProcessBatch(ctx, &BatchRequest{CompanyID: uuid.New(), Responses: sampleResponses(1)})
	require.True(t, IsInvalidInput(err))
	assert.Contains(t, err.Error(), "unknown company")
}

func TestProcessBatch_NothingToWrite(t *testing.T) {
	env := newTestEnv(t)

	responses := sampleResponses(2)
	responses[0].ResponseText = ""
	responses[1].QueryID = uuid.Nil

	result, err := env.processor.ProcessBatch(context.Background(), &BatchRequest{
		CompanyID: testutil.SampleCompanyID,
		Responses: responses,
	})
	require.NoError(t, err)
	assert.Nil(t, result.Batch)
	assert.Empty(t, result.Records)
	require.Len(t, result.Failures, 2)
	assert.Equal(t, KindInvalidInput, result.Failures[0].Kind)
	assert.Equal(t, KindIncompleteRecord, result.Failures[1].Kind)
	assert.Equal(t, 0, env.plan.Begins())
}

func TestProcessBatch_WriteFailureKeepsAnalyses(t *testing.T) {
	env := newTestEnv(t)
	env.plan.FailWrite = "upsert_analysis_batch"

	result, err := env.processor.ProcessBatch(context.Background(), &BatchRequest{
		CompanyID: testutil.SampleCompanyID,
		Responses: sampleResponses(2),
	})
	require.Error(t, err)
	assert.True(t, IsPersistenceFailed(err))
	assert.Nil(t, result.Batch)
	assert.Len(t, result.Records, 2)
}

func TestProcessCitationTransaction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec := sampleRecord(t)
	rec.AnswerEngine = "Perplexity Sonar"
	citations := models.NewCitationsParsed([]models.Citation{
		{URL: "https://acme.com/a", Rank: 1, Source: models.CitationSourceEngine},
		{URL: "https://globex.com/b", Rank: 2, Source: models.CitationSourceEngine},
		{URL: "https://initech.com/c", Rank: 3, Source: models.CitationSourceText},
	}, nil)

	batch, err := env.processor.ProcessCitationTransaction(ctx, rec, citations)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, batch.ID)
	assert.Equal(t, 1, batch.RecordCount)

	stored, err := env.repos.AnalysisRepo.GetByResponseID(ctx, rec.ResponseID)
	require.NoError(t, err)
	assert.False(t, stored.CreatedByBatch)
	assert.Equal(t, "perplexity", stored.AnswerEngine)
	assert.Len(t, stored.CitationsParsed.Citations, 3)

	rows, err := env.repos.CitationRepo.ListByResponse(ctx, rec.ResponseID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "https://initech.com/c", rows[2].URL)
}

func TestProcessCitationTransaction_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.processor.ProcessCitationTransaction(ctx, nil, models.CitationsParsed{})
	assert.True(t, IsInvalidInput(err))

	rec := sampleRecord(t)
	_, err = env.processor.ProcessCitationTransaction(ctx, rec, models.CitationsParsed{Version: 9})
	assert.True(t, IsInvalidInput(err))

	rec.CompanyID = uuid.Nil
	_, err = env.processor.ProcessCitationTransaction(ctx, rec, models.CitationsParsed{})
	assert.True(t, IsIncompleteRecord(err))
}

func TestReprocessBatch(t *testing.T) {
	env := newTestEnv(t)
	seedTaxonomy(t, env)
	ctx := context.Background()

	first, err := env.processor.ProcessBatch(ctx, &BatchRequest{
		CompanyID: testutil.SampleCompanyID,
		Responses: sampleResponses(2),
	})
	require.NoError(t, err)
	batchID := first.Batch.ID

	before, err := env.repos.AnalysisRepo.ListByBatch(ctx, batchID)
	require.NoError(t, err)

	again, err := env.processor.ReprocessBatch(ctx, batchID)
	require.NoError(t, err)
	assert.Empty(t, again.Failures)
	assert.Equal(t, batchID, again.Batch.ID)
	assert.Equal(t, 2, again.Batch.RecordCount)

	after, err := env.repos.AnalysisRepo.ListByBatch(ctx, batchID)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ResponseID, after[i].ResponseID)
		assert.Equal(t, before[i].RankList, after[i].RankList)
		assert.Equal(t, before[i].CitationsParsed, after[i].CitationsParsed)
		assert.Equal(t, before[i].TaxonomySnapshot, after[i].TaxonomySnapshot)
		assert.True(t, after[i].CreatedByBatch)
		assert.WithinDuration(t, before[i].CreatedAt, after[i].CreatedAt, time.Millisecond)
	}

	_, err = env.processor.ReprocessBatch(ctx, uuid.New())
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestGetBatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.processor.ProcessBatch(ctx, &BatchRequest{
		CompanyID: testutil.SampleCompanyID,
		Responses: sampleResponses(2),
	})
	require.NoError(t, err)

	details, err := env.processor.GetBatch(ctx, result.Batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStateCommitted, details.Batch.State)
	assert.Equal(t, 2, details.Batch.RecordCount)
	assert.Len(t, details.Analyses, 2)
	assert.ElementsMatch(t, result.Batch.AnalysisIDs, details.Batch.AnalysisIDs)

	_, err = env.processor.GetBatch(ctx, uuid.New())
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}
