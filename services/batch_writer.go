package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AI-Template-SDK/senso-analysis/internal/metrics"
	"github.com/AI-Template-SDK/senso-analysis/internal/models"
	"github.com/AI-Template-SDK/senso-analysis/internal/repositories"
	"github.com/AI-Template-SDK/senso-analysis/internal/resilience"
)

const indexTimeout = 10 * time.Second

type batchTransactionWriter struct {
	repos   *repositories.RepositoryManager
	newUnit repositories.UnitOfWorkFactory
	locker  BatchLocker
	indexer SearchIndexer
	retry   resilience.RetryConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewBatchTransactionWriter wires the writer. newUnit may wrap repos.NewUnitOfWork; locker
// and indexer default to in-process locking and no indexing.
func NewBatchTransactionWriter(
	repos *repositories.RepositoryManager,
	newUnit repositories.UnitOfWorkFactory,
	locker BatchLocker,
	indexer SearchIndexer,
	retry resilience.RetryConfig,
	logger *zap.Logger,
) BatchTransactionWriter {
	if newUnit == nil {
		newUnit = repos.NewUnitOfWork
	}
	if locker == nil {
		locker = NewLocalBatchLocker()
	}
	if indexer == nil {
		indexer = NewNoopSearchIndexer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	retry.ShouldRetry = repositories.IsTransientStoreError
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("batch_writer", "write_batch")
	}
	return &batchTransactionWriter{
		repos:   repos,
		newUnit: newUnit,
		locker:  locker,
		indexer: indexer,
		retry:   retry,
		logger:  logger.Named("batch_writer"),
		now:     time.Now,
	}
}

func (w *batchTransactionWriter) Write(ctx context.Context, batchID uuid.UUID, records []*models.ResponseAnalysis, createdByBatch bool) (*models.AnalysisBatch, error) {
	if batchID == uuid.Nil {
		return nil, invalidInput("analysis batch id is required")
	}
	if len(records) == 0 {
		return nil, invalidInput("no records to write for batch %s", batchID)
	}

	now := w.now().UTC()
	seen := make(map[uuid.UUID]bool, len(records))
	for _, rec := range records {
		if rec == nil {
			return nil, invalidInput("nil record in batch %s", batchID)
		}
		if missing := missingRecordFields(rec); len(missing) > 0 {
			return nil, incompleteRecord(rec.ResponseID, missing)
		}
		if seen[rec.ResponseID] {
			return nil, persistenceFailed(batchID, rec.ResponseID, false, 0, errors.New("duplicate response id in batch"))
		}
		seen[rec.ResponseID] = true
		if rec.AnalysisBatchID != uuid.Nil && rec.AnalysisBatchID != batchID {
			return nil, persistenceFailed(batchID, rec.ResponseID, false, 0, repositories.ErrBatchConflict)
		}
	}

	unlock, err := w.locker.Lock(ctx, batchID)
	if err != nil {
		return nil, persistenceFailed(batchID, uuid.Nil, true, 0, err)
	}
	defer unlock()

	// Provenance is stamped on copies and only handed back once the batch commits.
	staged := make([]*models.ResponseAnalysis, len(records))
	for i, rec := range records {
		cp := *rec
		cp.AnalysisBatchID = batchID
		cp.CreatedByBatch = createdByBatch
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = now
		}
		cp.UpdatedAt = now
		staged[i] = &cp
	}

	batch := &models.AnalysisBatch{ID: batchID, CreatedAt: now}
	w.transition(batch, models.BatchStatePending)

	metrics.BatchesActive.Inc()
	defer metrics.BatchesActive.Dec()
	start := time.Now()

	// Once a transaction is open it runs to commit or rollback; ctx only stops further retries.
	writeCtx := context.WithoutCancel(ctx)
	attempts, err := resilience.Do(ctx, w.retry, func(context.Context) error {
		return w.writeOnce(writeCtx, batch, staged)
	})
	metrics.BatchWriteAttempts.Observe(float64(attempts))

	if err != nil {
		metrics.BatchWriteDuration.WithLabelValues("failed").Observe(time.Since(start).Seconds())
		recordID := failedRecord(err, staged)
		transient := repositories.IsTransientStoreError(err)
		w.logger.Error("batch write failed",
			zap.String("batch_id", batchID.String()),
			zap.String("record_id", recordID.String()),
			zap.Bool("transient", transient),
			zap.Int("attempts", attempts),
			zap.Error(err))
		return nil, persistenceFailed(batchID, recordID, transient, attempts, err)
	}

	metrics.BatchWriteDuration.WithLabelValues("committed").Observe(time.Since(start).Seconds())
	metrics.BatchRecords.Observe(float64(len(records)))

	committedAt := w.now().UTC()
	batch.CommittedAt = &committedAt
	batch.RecordCount = len(records)
	batch.AnalysisIDs = make([]uuid.UUID, len(records))
	for i, rec := range staged {
		batch.AnalysisIDs[i] = rec.ResponseID
		*records[i] = *rec
	}

	w.logger.Info("batch committed",
		zap.String("batch_id", batchID.String()),
		zap.Int("records", len(records)),
		zap.Int("attempts", attempts))

	w.index(writeCtx, batchID, staged)
	return batch, nil
}

// writeOnce stages every record (citation rows first, then the parent row) and the batch
// row in one unit of work.
func (w *batchTransactionWriter) writeOnce(ctx context.Context, batch *models.AnalysisBatch, records []*models.ResponseAnalysis) error {
	uow := w.newUnit()
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	w.transition(batch, models.BatchStateWriting)

	err := func() error {
		for _, rec := range records {
			for _, wr := range w.repos.CitationRepo.ReplaceWrites(rec.ResponseID, citationRows(rec)) {
				if err := uow.Stage(ctx, wr); err != nil {
					return err
				}
			}
			if err := uow.Stage(ctx, w.repos.AnalysisRepo.UpsertWrite(rec)); err != nil {
				return err
			}
		}
		if err := uow.Stage(ctx, w.repos.BatchRepo.UpsertWrite(batch)); err != nil {
			return err
		}
		return uow.Commit()
	}()
	if err != nil {
		if rbErr := uow.Rollback(); rbErr != nil {
			w.logger.Warn("rollback failed", zap.String("batch_id", batch.ID.String()), zap.Error(rbErr))
		}
		w.transition(batch, models.BatchStateRolledBack)
		return err
	}
	w.transition(batch, models.BatchStateCommitted)
	return nil
}

func (w *batchTransactionWriter) transition(batch *models.AnalysisBatch, state models.BatchState) {
	batch.State = state
	metrics.BatchTransitions.WithLabelValues(string(state)).Inc()
	w.logger.Debug("batch state", zap.String("batch_id", batch.ID.String()), zap.String("state", string(state)))
}

// index is best effort: the commit already happened.
func (w *batchTransactionWriter) index(ctx context.Context, batchID uuid.UUID, records []*models.ResponseAnalysis) {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()
	if err := w.indexer.IndexAnalyses(ctx, records); err != nil {
		metrics.IndexingFailures.Add(float64(len(records)))
		w.logger.Warn("indexing committed batch failed",
			zap.String("batch_id", batchID.String()),
			zap.Error(err))
	}
}

// failedRecord narrows a failure to one record when possible.
func failedRecord(err error, records []*models.ResponseAnalysis) uuid.UUID {
	var stageErr *repositories.StageError
	if errors.As(err, &stageErr) && stageErr.RecordID != uuid.Nil {
		return stageErr.RecordID
	}
	if len(records) == 1 {
		return records[0].ResponseID
	}
	return uuid.Nil
}

func missingRecordFields(rec *models.ResponseAnalysis) []string {
	var missing []string
	if rec.ResponseID == uuid.Nil {
		missing = append(missing, "response_id")
	}
	if rec.QueryID == uuid.Nil {
		missing = append(missing, "query_id")
	}
	if rec.CompanyID == uuid.Nil {
		missing = append(missing, "company_id")
	}
	if rec.AnswerEngine == "" {
		missing = append(missing, "answer_engine")
	}
	return missing
}

// citationRows numbers rows by position so ranks are unique per response.
func citationRows(rec *models.ResponseAnalysis) []models.CitationRow {
	rows := make([]models.CitationRow, 0, len(rec.CitationsParsed.Citations))
	for i, c := range rec.CitationsParsed.Citations {
		rank := i + 1
		rows = append(rows, models.CitationRow{
			CitationID: repositories.CitationID(rec.ResponseID, rank),
			ResponseID: rec.ResponseID,
			Rank:       rank,
			URL:        c.URL,
			Title:      c.Title,
			Snippet:    c.Snippet,
			Domain:     c.Domain,
			Source:     c.Source,
			Type:       c.Type,
			CreatedAt:  rec.UpdatedAt,
		})
	}
	return rows
}
