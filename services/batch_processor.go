package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/AI-Template-SDK/senso-analysis/internal/config"
	"github.com/AI-Template-SDK/senso-analysis/internal/metrics"
	"github.com/AI-Template-SDK/senso-analysis/internal/models"
	"github.com/AI-Template-SDK/senso-analysis/internal/providers"
	"github.com/AI-Template-SDK/senso-analysis/internal/repositories"
)

// syntheticEngine labels records produced by the single-response diagnostic path
const syntheticEngine = "diagnostic"

type batchProcessor struct {
	cfg       config.AnalysisConfig
	directory CompanyDirectory
	analyses  AnalysisReader
	batches   BatchReader
	extractor CitationExtractor
	deriver   MetricDeriver
	builder   AnalysisRecordBuilder
	writer    BatchTransactionWriter
	logger    *zap.Logger
}

func NewBatchProcessor(
	cfg *config.Config,
	repos *repositories.RepositoryManager,
	extractor CitationExtractor,
	deriver MetricDeriver,
	builder AnalysisRecordBuilder,
	writer BatchTransactionWriter,
	logger *zap.Logger,
) BatchProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &batchProcessor{
		cfg:       cfg.Analysis,
		directory: repos.CompanyRepo,
		analyses:  repos.AnalysisRepo,
		batches:   repos.BatchRepo,
		extractor: extractor,
		deriver:   deriver,
		builder:   builder,
		writer:    writer,
		logger:    logger.Named("batch_processor"),
	}
}

// AnalyzeResponse runs extraction, derivation and assembly for a lone response text against
// the configured test company. Ids are derived from the text so reruns are identical.
// Nothing is persisted.
func (p *batchProcessor) AnalyzeResponse(ctx context.Context, responseText string) (*models.ResponseAnalysis, error) {
	if strings.TrimSpace(responseText) == "" {
		return nil, invalidInput("responseText must be a non-empty string")
	}

	profile := p.syntheticProfile()
	resp := &models.AnswerEngineResponse{
		ResponseID:   uuid.NewSHA1(uuid.NameSpaceOID, []byte("response:"+responseText)),
		QueryID:      uuid.NewSHA1(uuid.NameSpaceOID, []byte("query:"+responseText)),
		EngineName:   syntheticEngine,
		ResponseText: responseText,
	}
	return p.analyze(resp, profile, models.TaxonomySnapshot{})
}

func (p *batchProcessor) syntheticProfile() *models.CompanyProfile {
	name := p.cfg.TestCompanyName
	if strings.TrimSpace(name) == "" {
		name = "Test Company"
	}
	profile := &models.CompanyProfile{
		ID:           uuid.NewSHA1(uuid.NameSpaceOID, []byte("company:"+name)),
		Organization: models.Organization{Name: name},
		Products:     p.cfg.TestProducts,
	}
	for _, c := range p.cfg.TestCompetitors {
		profile.Competitors = append(profile.Competitors, models.Organization{Name: c})
	}
	return profile
}

// analyze is the shared pure path: extract, derive, build.
func (p *batchProcessor) analyze(resp *models.AnswerEngineResponse, profile *models.CompanyProfile, taxonomy models.TaxonomySnapshot) (*models.ResponseAnalysis, error) {
	engine := providers.NormalizeEngineName(resp.EngineName)
	start := time.Now()

	extraction, err := p.extractor.Extract(resp.ResponseText, resp.Citations, profile)
	if err != nil {
		metrics.ResponsesAnalyzed.WithLabelValues(engine, "invalid").Inc()
		return nil, err
	}
	derived := p.deriver.Derive(resp.ResponseText, extraction, profile)

	rec, err := p.builder.Build(RecordInput{
		Response:   resp,
		CompanyID:  profile.ID,
		Taxonomy:   taxonomy,
		Extraction: extraction,
		Metrics:    derived,
	})
	if err != nil {
		metrics.ResponsesAnalyzed.WithLabelValues(engine, "incomplete").Inc()
		return nil, err
	}

	metrics.ExtractionDuration.WithLabelValues(engine).Observe(time.Since(start).Seconds())
	metrics.ResponsesAnalyzed.WithLabelValues(engine, "ok").Inc()
	return rec, nil
}

// ProcessCitationTransaction persists a pre-assembled record with the given citations as its
// own single-record batch. It bypasses extraction.
func (p *batchProcessor) ProcessCitationTransaction(ctx context.Context, record *models.ResponseAnalysis, citations models.CitationsParsed) (*models.AnalysisBatch, error) {
	if record == nil {
		return nil, invalidInput("responseAnalysis is required")
	}
	record.AnswerEngine = providers.NormalizeEngineName(record.AnswerEngine)
	if missing := missingRecordFields(record); len(missing) > 0 {
		return nil, incompleteRecord(record.ResponseID, missing)
	}
	if citations.Version == 0 {
		citations.Version = models.CitationsParsedVersion
	}
	if citations.Version != models.CitationsParsedVersion {
		return nil, invalidInput("unsupported citationsParsed version %d", citations.Version)
	}
	if citations.Citations == nil {
		citations.Citations = []models.Citation{}
	}
	record.CitationsParsed = citations
	if len(record.RankList) == 0 && len(citations.RankList) > 0 {
		record.RankList = models.RankList(citations.RankList)
	}
	if record.SolutionAnalysis.Version == 0 {
		record.SolutionAnalysis.Version = models.SolutionAnalysisVersion
	}

	batchID := record.AnalysisBatchID
	if batchID == uuid.Nil {
		batchID = uuid.New()
	}

	p.logger.Info("processing citation transaction",
		zap.String("response_id", record.ResponseID.String()),
		zap.String("batch_id", batchID.String()),
		zap.Int("citations", len(citations.Citations)))

	return p.writer.Write(ctx, batchID, []*models.ResponseAnalysis{record}, false)
}

// ProcessBatch analyzes every response with bounded parallelism and commits the successful
// records in one writer call. Per-item analysis failures are reported without failing the
// batch; a failed taxonomy lookup aborts it before anything is written.
func (p *batchProcessor) ProcessBatch(ctx context.Context, req *BatchRequest) (*BatchResult, error) {
	if req == nil || req.CompanyID == uuid.Nil {
		return nil, invalidInput("company_id is required")
	}
	if len(req.Responses) == 0 {
		return nil, invalidInput("responses must not be empty")
	}

	profile, err := p.resolveProfile(ctx, req.CompanyID, req.Profile)
	if err != nil {
		return nil, err
	}

	batchID := req.BatchID
	if batchID == uuid.Nil {
		batchID = uuid.New()
	}

	p.logger.Info("processing batch",
		zap.String("batch_id", batchID.String()),
		zap.String("company_id", req.CompanyID.String()),
		zap.Int("responses", len(req.Responses)))

	records := make([]*models.ResponseAnalysis, len(req.Responses))
	failures := make([]*ItemFailure, len(req.Responses))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism())
	for i := range req.Responses {
		resp := req.Responses[i]
		g.Go(func() error {
			if gctx.Err() != nil {
				failures[i] = itemFailure(i, resp.ResponseID, gctx.Err())
				return nil
			}
			if err := expandRawResult(&resp); err != nil {
				failures[i] = itemFailure(i, resp.ResponseID, err)
				return nil
			}
			taxonomy, err := p.taxonomyFor(gctx, resp.QueryID)
			if err != nil {
				return lookupFailed(batchID, resp.ResponseID, "taxonomy", err)
			}
			rec, err := p.analyze(&resp, profile, taxonomy)
			if err != nil {
				failures[i] = itemFailure(i, resp.ResponseID, err)
				return nil
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.logger.Error("batch aborted before write", zap.String("batch_id", batchID.String()), zap.Error(err))
		return nil, err
	}

	result := &BatchResult{Records: []*models.ResponseAnalysis{}, Failures: []ItemFailure{}}
	for i := range req.Responses {
		if failures[i] != nil {
			result.Failures = append(result.Failures, *failures[i])
			continue
		}
		result.Records = append(result.Records, records[i])
	}

	if err := ctx.Err(); err != nil {
		return result, eris.Wrap(err, "services: batch cancelled before write")
	}
	if len(result.Records) == 0 {
		p.logger.Warn("no responses analyzed, nothing to write", zap.String("batch_id", batchID.String()))
		return result, nil
	}

	batch, err := p.writer.Write(ctx, batchID, result.Records, true)
	if err != nil {
		return result, err
	}
	result.Batch = batch
	return result, nil
}

// ReprocessBatch reruns the pipeline over the stored responses of a batch under the same
// batch id. The stored taxonomy snapshot is kept.
func (p *batchProcessor) ReprocessBatch(ctx context.Context, batchID uuid.UUID) (*BatchResult, error) {
	stored, err := p.analyses.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, repositories.ErrNotFound
	}

	profiles := make(map[uuid.UUID]*models.CompanyProfile)
	result := &BatchResult{Records: []*models.ResponseAnalysis{}, Failures: []ItemFailure{}}
	for i := range stored {
		prev := &stored[i]
		profile, ok := profiles[prev.CompanyID]
		if !ok {
			profile, err = p.resolveProfile(ctx, prev.CompanyID, nil)
			if err != nil {
				return nil, err
			}
			profiles[prev.CompanyID] = profile
		}

		rec, err := p.analyze(responseFromRecord(prev), profile, prev.TaxonomySnapshot)
		if err != nil {
			result.Failures = append(result.Failures, *itemFailure(i, prev.ResponseID, err))
			continue
		}
		rec.CreatedAt = prev.CreatedAt
		result.Records = append(result.Records, rec)
	}
	if len(result.Records) == 0 {
		return result, nil
	}

	batch, err := p.writer.Write(ctx, batchID, result.Records, stored[0].CreatedByBatch)
	if err != nil {
		return result, err
	}
	result.Batch = batch
	return result, nil
}

func (p *batchProcessor) GetBatch(ctx context.Context, batchID uuid.UUID) (*BatchDetails, error) {
	batch, err := p.batches.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	analyses, err := p.analyses.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	batch.AnalysisIDs = make([]uuid.UUID, len(analyses))
	for i, a := range analyses {
		batch.AnalysisIDs[i] = a.ResponseID
	}
	if analyses == nil {
		analyses = []models.ResponseAnalysis{}
	}
	return &BatchDetails{Batch: batch, Analyses: analyses}, nil
}

func (p *batchProcessor) resolveProfile(ctx context.Context, companyID uuid.UUID, supplied *models.CompanyProfile) (*models.CompanyProfile, error) {
	if supplied != nil {
		profile := *supplied
		profile.ID = companyID
		return &profile, nil
	}
	profile, err := p.directory.GetProfile(ctx, companyID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, invalidInput("unknown company %s", companyID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "services: load company profile %s", companyID)
	}
	return profile, nil
}

// taxonomyFor snapshots the query taxonomy; an unregistered query yields an empty snapshot.
// Any other lookup failure is returned so the record is never stored with a blank snapshot.
func (p *batchProcessor) taxonomyFor(ctx context.Context, queryID uuid.UUID) (models.TaxonomySnapshot, error) {
	if queryID == uuid.Nil {
		return models.TaxonomySnapshot{}, nil
	}
	snap, err := p.directory.GetTaxonomy(ctx, queryID)
	if errors.Is(err, repositories.ErrNotFound) {
		return models.TaxonomySnapshot{}, nil
	}
	if err != nil {
		return models.TaxonomySnapshot{}, err
	}
	return snap, nil
}

func (p *batchProcessor) parallelism() int {
	if p.cfg.MaxParallelism > 0 {
		return p.cfg.MaxParallelism
	}
	return 4
}

// responseFromRecord rebuilds the pipeline input of a stored analysis. Only engine-supplied
// citations are fed back; text citations are mined again.
func responseFromRecord(rec *models.ResponseAnalysis) *models.AnswerEngineResponse {
	resp := &models.AnswerEngineResponse{
		ResponseID:   rec.ResponseID,
		QueryID:      rec.QueryID,
		PromptID:     rec.PromptID,
		EngineName:   rec.AnswerEngine,
		ResponseText: rec.ResponseText,
	}
	for _, c := range rec.CitationsParsed.Citations {
		if c.Source == models.CitationSourceEngine {
			resp.Citations = append(resp.Citations, models.EngineCitation{URL: c.URL, Title: c.Title, Snippet: c.Snippet})
		}
	}
	return resp
}

// expandRawResult fills text and citations from a scraped engine payload. Explicit
// citations come first.
func expandRawResult(resp *models.AnswerEngineResponse) error {
	if strings.TrimSpace(resp.ResponseText) != "" || len(resp.RawResult) == 0 {
		return nil
	}
	var result providers.EngineResult
	if err := json.Unmarshal(resp.RawResult, &result); err != nil {
		return invalidInput("raw_result is not a valid engine result: %v", err)
	}
	text, err := result.ResponseText()
	if err != nil {
		return invalidInput("%v", err)
	}
	resp.ResponseText = text
	resp.Citations = append(resp.Citations, result.EngineCitations()...)
	resp.RawResult = nil
	return nil
}

func itemFailure(index int, responseID uuid.UUID, err error) *ItemFailure {
	f := &ItemFailure{Index: index, ResponseID: responseID, Error: err.Error()}
	var ae *AnalysisError
	if errors.As(err, &ae) {
		f.Kind = ae.Kind
	}
	return f
}
