// main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inngest/inngestgo"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/typesense/typesense-go/v2/typesense"
	"go.uber.org/zap"

	"github.com/AI-Template-SDK/senso-analysis/internal/api"
	"github.com/AI-Template-SDK/senso-analysis/internal/config"
	"github.com/AI-Template-SDK/senso-analysis/internal/logger"
	"github.com/AI-Template-SDK/senso-analysis/internal/repositories"
	"github.com/AI-Template-SDK/senso-analysis/internal/resilience"
	"github.com/AI-Template-SDK/senso-analysis/services"
	"github.com/AI-Template-SDK/senso-analysis/workflows"
)

func main() {
	envNote := "Loaded .env file"
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("dev.env"); err != nil {
			envNote = fmt.Sprintf("No .env or dev.env file loaded: %v", err)
		} else {
			envNote = "Loaded dev.env file for local development"
		}
	}

	cfg := config.Load()

	zlog, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()
	zap.ReplaceGlobals(zlog)

	zlog.Info(envNote)
	zlog.Info("starting senso-analysis",
		zap.String("environment", cfg.Environment),
		zap.String("port", cfg.Port),
		zap.String("store_driver", cfg.StoreDriver),
		zap.String("database_host", cfg.Database.Host),
		zap.String("database_name", cfg.Database.Name))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repositories.Open(ctx, cfg)
	if err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	if err := repositories.Migrate(ctx, db); err != nil {
		zlog.Fatal("failed to migrate database", zap.Error(err))
	}
	zlog.Info("database ready")

	repoManager := repositories.NewRepositoryManager(db)

	if cfg.Environment == "development" || cfg.Environment == "" {
		os.Unsetenv("INNGEST_SIGNING_KEY")
		cfg.InngestSigningKey = ""
		zlog.Info("running in development mode, signing key verification disabled")
	}

	locker := services.NewLocalBatchLocker()
	if cfg.Redis.Enabled() {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			zlog.Fatal("failed to reach redis", zap.String("addr", cfg.Redis.Address), zap.Error(err))
		}
		locker = services.NewRedisBatchLocker(redisClient, time.Duration(cfg.Analysis.LockTTLSeconds)*time.Second)
		zlog.Info("using redis batch lock", zap.String("addr", cfg.Redis.Address))
	}

	indexer := services.NewNoopSearchIndexer()
	if cfg.Typesense.Enabled() {
		typesenseClient := typesense.NewClient(
			typesense.WithServer(fmt.Sprintf("http://%s:%d", cfg.Typesense.Host, cfg.Typesense.Port)),
			typesense.WithAPIKey(cfg.Typesense.APIKey),
		)
		indexer = services.NewTypesenseSearchIndexer(typesenseClient, cfg.Typesense.Collection, zlog)
		if err := indexer.EnsureCollection(ctx); err != nil {
			zlog.Fatal("failed to create typesense collection", zap.Error(err))
		}
		zlog.Info("typesense collection is ready", zap.String("collection", cfg.Typesense.Collection))
	}

	writer := services.NewBatchTransactionWriter(
		repoManager,
		repoManager.NewUnitOfWork,
		locker,
		indexer,
		resilience.FromMillis(cfg.Analysis.RetryMaxAttempts, cfg.Analysis.RetryInitialBackoffMs, cfg.Analysis.RetryMaxBackoffMs),
		zlog,
	)
	processor := services.NewBatchProcessor(
		cfg,
		repoManager,
		services.NewCitationExtractor(zlog),
		services.NewMetricDeriver(cfg.Analysis.RecommendTopN),
		services.NewAnalysisRecordBuilder(),
		writer,
		zlog,
	)
	zlog.Info("analysis services initialized")

	client, err := inngestgo.NewClient(
		inngestgo.ClientOpts{
			AppID:    "senso-analysis",
			EventKey: inngestgo.StrPtr(cfg.InngestEventKey),
			Env:      inngestgo.StrPtr(cfg.Environment),
		},
	)
	if err != nil {
		zlog.Fatal("failed to create inngest client", zap.Error(err))
	}

	batchWorkflow := workflows.NewResponseBatchProcessor(
		processor,
		repoManager.CompanyRepo,
		workflows.NewFailureReporter(cfg.SlackWebhookURL),
		zlog,
	)
	batchWorkflow.SetClient(client)
	batchWorkflow.ProcessResponseBatch()
	zlog.Info("workflows registered")

	server := api.NewServer(processor, services.NewSchemaService(),
		api.WithLogger(zlog),
		api.WithEnqueuer(batchWorkflow),
		api.WithMount("/api/inngest", client.Serve()),
		api.WithMount("/metrics", promhttp.Handler()),
	)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			zlog.Warn("graceful shutdown failed", zap.Error(err))
		}
	}()

	zlog.Info("starting senso-analysis service", zap.String("port", cfg.Port))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		zlog.Fatal("server failed", zap.Error(err))
	}
	zlog.Info("server stopped")
}
