package services

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/AI-Template-SDK/senso-analysis/internal/config"
	"github.com/AI-Template-SDK/senso-analysis/internal/providers/testutil"
	"github.com/AI-Template-SDK/senso-analysis/internal/repositories"
	"github.com/AI-Template-SDK/senso-analysis/internal/resilience"
)

type testEnv struct {
	db        *sqlx.DB
	repos     *repositories.RepositoryManager
	plan      *testutil.FaultPlan
	writer    BatchTransactionWriter
	processor BatchProcessor
}

// newTestEnv wires the full pipeline over an in-memory SQLite store. Writes go through a
// fault-injecting unit of work that injects nothing unless the plan is changed.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := repositories.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, repositories.Migrate(ctx, db))

	logger := zaptest.NewLogger(t)
	repos := repositories.NewRepositoryManager(db)
	plan := &testutil.FaultPlan{}
	cfg := &config.Config{Analysis: testutil.SampleAnalysisConfig()}

	writer := NewBatchTransactionWriter(
		repos,
		testutil.NewFaultyFactory(repos.NewUnitOfWork, plan),
		NewLocalBatchLocker(),
		NewNoopSearchIndexer(),
		resilience.FromMillis(cfg.Analysis.RetryMaxAttempts, cfg.Analysis.RetryInitialBackoffMs, cfg.Analysis.RetryMaxBackoffMs),
		logger,
	)
	processor := NewBatchProcessor(
		cfg,
		repos,
		NewCitationExtractor(logger),
		NewMetricDeriver(cfg.Analysis.RecommendTopN),
		NewAnalysisRecordBuilder(),
		writer,
		logger,
	)

	require.NoError(t, repos.CompanyRepo.SaveProfile(ctx, testutil.SampleProfile()))

	return &testEnv{db: db, repos: repos, plan: plan, writer: writer, processor: processor}
}
