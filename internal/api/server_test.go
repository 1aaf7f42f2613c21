package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AI-Template-SDK/senso-analysis/internal/config"
	"github.com/AI-Template-SDK/senso-analysis/internal/models"
	"github.com/AI-Template-SDK/senso-analysis/internal/providers/testutil"
	"github.com/AI-Template-SDK/senso-analysis/internal/repositories"
	"github.com/AI-Template-SDK/senso-analysis/internal/resilience"
	"github.com/AI-Template-SDK/senso-analysis/services"
)

type stubEnqueuer struct {
	requests []*services.BatchRequest
	err      error
}

func (s *stubEnqueuer) EnqueueBatch(_ context.Context, req *services.BatchRequest) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.requests = append(s.requests, req)
	return "evt-1", nil
}

type testServer struct {
	handler  http.Handler
	repos    *repositories.RepositoryManager
	plan     *testutil.FaultPlan
	enqueuer *stubEnqueuer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	db, err := repositories.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, repositories.Migrate(ctx, db))

	repos := repositories.NewRepositoryManager(db)
	require.NoError(t, repos.CompanyRepo.SaveProfile(ctx, testutil.SampleProfile()))

	cfg := &config.Config{Analysis: testutil.SampleAnalysisConfig()}
	plan := &testutil.FaultPlan{}
	logger := zap.NewNop()
	writer := services.NewBatchTransactionWriter(
		repos,
		testutil.NewFaultyFactory(repos.NewUnitOfWork, plan),
		services.NewLocalBatchLocker(),
		services.NewNoopSearchIndexer(),
		resilience.FromMillis(1, 1, 1),
		logger,
	)
	processor := services.NewBatchProcessor(cfg, repos,
		services.NewCitationExtractor(logger),
		services.NewMetricDeriver(cfg.Analysis.RecommendTopN),
		services.NewAnalysisRecordBuilder(),
		writer,
		logger,
	)

	enqueuer := &stubEnqueuer{}
	srv := NewServer(processor, services.NewSchemaService(), WithLogger(logger), WithEnqueuer(enqueuer))
	return &testServer{handler: srv.Handler(), repos: repos, plan: plan, enqueuer: enqueuer}
}

func (ts *testServer) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	w, body := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
}

func TestTestAnalysis_Validation(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/test/analysis", "/test/response-analysis"} {
		for name, body := range map[string]string{
			"missing":    `{}`,
			"non-string": `{"responseText":123}`,
			"empty":      `{"responseText":""}`,
			"null":       `{"responseText":null}`,
			"bad json":   `{"responseText":`,
		} {
			t.Run(path+" "+name, func(t *testing.T) {
				w, out := ts.do(t, http.MethodPost, path, body)
				assert.Equal(t, http.StatusBadRequest, w.Code)
				assert.NotEmpty(t, out["error"])
			})
		}
	}
}

func TestTestAnalysis_Success(t *testing.T) {
	ts := newTestServer(t)
	payload, err := json.Marshal(map[string]string{"responseText": testutil.SampleResponseText()})
	require.NoError(t, err)

	w, out := ts.do(t, http.MethodPost, "/test/analysis", string(payload))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["success"])
	result := out["result"].(map[string]interface{})
	assert.Equal(t, []interface{}{"Acme", "Globex", "Initech"}, result["rank_list"])
	assert.Equal(t, float64(1), result["ranking_position"])

	w, out = ts.do(t, http.MethodPost, "/test/response-analysis", string(payload))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["success"])
	assert.Contains(t, out, "data")
}

func citationsTestBody(t *testing.T, responseID uuid.UUID, citations string) string {
	t.Helper()
	rec := map[string]interface{}{
		"response_id":   responseID,
		"query_id":      testutil.SampleQueryID,
		"company_id":    testutil.SampleCompanyID,
		"answer_engine": "perplexity",
		"response_text": testutil.SampleResponseText(),
	}
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	return `{"responseAnalysis":` + string(raw) + `,"citationsParsed":` + citations + `}`
}

func TestCitationsTest(t *testing.T) {
	ts := newTestServer(t)
	responseID := uuid.New()

	w, out := ts.do(t, http.MethodPost, "/citations/test",
		citationsTestBody(t, responseID, `[{"url":"https://acme.com/a"},{"url":"https://globex.com/b"}]`))
	require.Equal(t, http.StatusOK, w.Code, out)
	assert.Equal(t, "Test completed successfully", out["message"])

	stored, err := ts.repos.AnalysisRepo.GetByResponseID(context.Background(), responseID)
	require.NoError(t, err)
	assert.False(t, stored.CreatedByBatch)
	assert.Len(t, stored.CitationsParsed.Citations, 2)
}

func TestCitationsTest_Errors(t *testing.T) {
	ts := newTestServer(t)

	w, out := ts.do(t, http.MethodPost, "/citations/test", `{"responseAnalysis":{}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing required fields", out["error"])

	w, out = ts.do(t, http.MethodPost, "/citations/test", `{"citationsParsed":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing required fields", out["error"])

	w, _ = ts.do(t, http.MethodPost, "/citations/test", citationsTestBody(t, uuid.New(), `[{"title":"no url"}]`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = ts.do(t, http.MethodPost, "/citations/test", `{"responseAnalysis":{"response_text":"x"},"citationsParsed":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	ts.plan.FailWrite = "upsert_response_analysis"
	w, out = ts.do(t, http.MethodPost, "/citations/test", citationsTestBody(t, uuid.New(), `[]`))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, out["error"], "PersistenceFailed")
}

func batchBody(t *testing.T, n int) string {
	t.Helper()
	responses := make([]models.AnswerEngineResponse, n)
	for i := range responses {
		resp := testutil.SampleResponse()
		resp.ResponseID = uuid.New()
		responses[i] = *resp
	}
	raw, err := json.Marshal(services.BatchRequest{CompanyID: testutil.SampleCompanyID, Responses: responses})
	require.NoError(t, err)
	return string(raw)
}

func TestBatches(t *testing.T) {
	ts := newTestServer(t)

	w, out := ts.do(t, http.MethodPost, "/batches", batchBody(t, 2))
	require.Equal(t, http.StatusOK, w.Code, out)
	batch := out["batch"].(map[string]interface{})
	assert.Equal(t, "committed", batch["state"])
	batchID := batch["id"].(string)

	w, out = ts.do(t, http.MethodGet, "/batches/"+batchID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, out["analyses"], 2)

	w, out = ts.do(t, http.MethodPost, "/batches/"+batchID+"/reprocess", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, batchID, out["batch"].(map[string]interface{})["id"])

	w, _ = ts.do(t, http.MethodGet, "/batches/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = ts.do(t, http.MethodGet, "/batches/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = ts.do(t, http.MethodPost, "/batches", `{"responses":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBatches_PersistenceFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.plan.FailWrite = "upsert_analysis_batch"

	w, out := ts.do(t, http.MethodPost, "/batches", batchBody(t, 1))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, string(services.KindPersistenceFailed), out["kind"])
	assert.Equal(t, false, out["transient"])
	assert.NotContains(t, out["error"], "injected")
}

func TestBatchesAsync(t *testing.T) {
	ts := newTestServer(t)

	w, out := ts.do(t, http.MethodPost, "/batches/async", batchBody(t, 1))
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "evt-1", out["event_id"])
	require.Len(t, ts.enqueuer.requests, 1)
	assert.Equal(t, out["batch_id"], ts.enqueuer.requests[0].BatchID.String())

	ts.enqueuer.err = errors.New("inngest unavailable")
	w, _ = ts.do(t, http.MethodPost, "/batches/async", batchBody(t, 1))
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestSchemas(t *testing.T) {
	ts := newTestServer(t)

	w, out := ts.do(t, http.MethodGet, "/schemas/"+services.SchemaSolutionAnalysis, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "object", out["type"])

	w, _ = ts.do(t, http.MethodGet, "/schemas/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
