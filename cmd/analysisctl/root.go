package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/jmoiron/sqlx"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AI-Template-SDK/senso-analysis/internal/config"
	"github.com/AI-Template-SDK/senso-analysis/internal/logger"
	"github.com/AI-Template-SDK/senso-analysis/internal/repositories"
	"github.com/AI-Template-SDK/senso-analysis/internal/resilience"
	"github.com/AI-Template-SDK/senso-analysis/services"
)

type rootOptions struct {
	store      string
	sqlitePath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "analysisctl",
		Short:         "Operate the response analysis store",
		Long:          "Analyze answer-engine responses, submit and reprocess batches, and manage the analysis store.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.store, "store", "", "Store driver override (postgres or sqlite)")
	cmd.PersistentFlags().StringVar(&opts.sqlitePath, "sqlite-path", "", "SQLite database path when --store=sqlite")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newMigrateCmd(opts),
		newAnalyzeCmd(opts),
		newCompanyCmd(opts),
		newBatchCmd(opts),
		newSchemaCmd(),
	)
	return cmd
}

// app is the pipeline a command runs against
type app struct {
	cfg       *config.Config
	db        *sqlx.DB
	repos     *repositories.RepositoryManager
	processor services.BatchProcessor
	logger    *zap.Logger
}

func (o *rootOptions) config() *config.Config {
	cfg := config.Load()
	if o.store != "" {
		cfg.StoreDriver = o.store
	}
	if o.sqlitePath != "" {
		cfg.SQLitePath = o.sqlitePath
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return cfg
}

// open connects to the configured store, migrates it and wires the pipeline.
func (o *rootOptions) open(ctx context.Context, cfg *config.Config) (*app, error) {
	zlog, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, eris.Wrap(err, "build logger")
	}

	db, err := repositories.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := repositories.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	repos := repositories.NewRepositoryManager(db)
	writer := services.NewBatchTransactionWriter(
		repos,
		repos.NewUnitOfWork,
		services.NewLocalBatchLocker(),
		services.NewNoopSearchIndexer(),
		resilience.FromMillis(cfg.Analysis.RetryMaxAttempts, cfg.Analysis.RetryInitialBackoffMs, cfg.Analysis.RetryMaxBackoffMs),
		zlog,
	)
	processor := services.NewBatchProcessor(
		cfg,
		repos,
		services.NewCitationExtractor(zlog),
		services.NewMetricDeriver(cfg.Analysis.RecommendTopN),
		services.NewAnalysisRecordBuilder(),
		writer,
		zlog,
	)
	return &app{cfg: cfg, db: db, repos: repos, processor: processor, logger: zlog}, nil
}

func (a *app) Close() {
	a.logger.Sync()
	a.db.Close()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
