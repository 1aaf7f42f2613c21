// services/interfaces.go
package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/AI-Template-SDK/senso-analysis/internal/models"
)

// CitationExtractor turns response text plus engine-supplied citations into ordered
// citations and a rank list of known organizations.
type CitationExtractor interface {
	Extract(responseText string, engineCitations []models.EngineCitation, profile *models.CompanyProfile) (*ExtractionResult, error)
}

// MetricDeriver computes the analytic signals of a response. It never fails.
type MetricDeriver interface {
	Derive(responseText string, extraction *ExtractionResult, profile *models.CompanyProfile) *DerivedMetrics
}

type AnalysisRecordBuilder interface {
	Build(in RecordInput) (*models.ResponseAnalysis, error)
}

// BatchTransactionWriter persists records and their citation rows under one batch id,
// all or nothing.
type BatchTransactionWriter interface {
	Write(ctx context.Context, batchID uuid.UUID, records []*models.ResponseAnalysis, createdByBatch bool) (*models.AnalysisBatch, error)
}

type BatchProcessor interface {
	AnalyzeResponse(ctx context.Context, responseText string) (*models.ResponseAnalysis, error)
	ProcessCitationTransaction(ctx context.Context, record *models.ResponseAnalysis, citations models.CitationsParsed) (*models.AnalysisBatch, error)
	ProcessBatch(ctx context.Context, req *BatchRequest) (*BatchResult, error)
	ReprocessBatch(ctx context.Context, batchID uuid.UUID) (*BatchResult, error)
	GetBatch(ctx context.Context, batchID uuid.UUID) (*BatchDetails, error)
}

// BatchLocker serializes writer calls that share a batch id. The returned func releases
// the lock and is safe to call more than once.
type BatchLocker interface {
	Lock(ctx context.Context, batchID uuid.UUID) (func(), error)
}

// SearchIndexer mirrors committed analyses into a search backend
type SearchIndexer interface {
	EnsureCollection(ctx context.Context) error
	IndexAnalyses(ctx context.Context, recs []*models.ResponseAnalysis) error
}

type SchemaService interface {
	Names() []string
	Schema(name string) (map[string]interface{}, error)
	ParseCitationsParsed(raw []byte) (models.CitationsParsed, error)
}

// CompanyDirectory resolves the company context a response is analyzed against
type CompanyDirectory interface {
	GetProfile(ctx context.Context, companyID uuid.UUID) (*models.CompanyProfile, error)
	GetTaxonomy(ctx context.Context, queryID uuid.UUID) (models.TaxonomySnapshot, error)
}

type AnalysisReader interface {
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]models.ResponseAnalysis, error)
}

type BatchReader interface {
	Get(ctx context.Context, batchID uuid.UUID) (*models.AnalysisBatch, error)
}

// RankedOrganization is one rank-list entry. Entity 0 is the company itself.
type RankedOrganization struct {
	Name         string `json:"name"`
	Entity       int    `json:"entity"`
	FirstOffset  int    `json:"first_offset"`
	Mentions     int    `json:"mentions"`
	CitationOnly bool   `json:"citation_only,omitempty"`
}

type ExtractionResult struct {
	RankList  models.RankList
	Ranked    []RankedOrganization
	Citations []models.Citation
	Mentions  []Mention

	sentences []span
}

type DerivedMetrics struct {
	SentimentScore     float64
	RankingPosition    *int
	CompanyMentioned   bool
	Recommended        bool
	Cited              bool
	CompetitorsList    models.StringList
	MentionedCompanies models.StringList
	SolutionAnalysis   models.SolutionAnalysis
	ShareOfVoice       *float64
}

type RecordInput struct {
	Response   *models.AnswerEngineResponse
	CompanyID  uuid.UUID
	Taxonomy   models.TaxonomySnapshot
	Extraction *ExtractionResult
	Metrics    *DerivedMetrics
}

// BatchRequest is one multi-response run. BatchID is generated when nil; Profile is loaded
// from the company directory when nil.
type BatchRequest struct {
	BatchID   uuid.UUID                     `json:"batch_id,omitempty"`
	CompanyID uuid.UUID                     `json:"company_id"`
	Profile   *models.CompanyProfile        `json:"profile,omitempty"`
	Responses []models.AnswerEngineResponse `json:"responses"`
}

// ItemFailure reports a response that could not be analyzed; siblings are unaffected.
type ItemFailure struct {
	Index      int       `json:"index"`
	ResponseID uuid.UUID `json:"response_id"`
	Kind       ErrorKind `json:"kind"`
	Error      string    `json:"error"`
}

type BatchResult struct {
	Batch    *models.AnalysisBatch      `json:"batch"`
	Records  []*models.ResponseAnalysis `json:"records"`
	Failures []ItemFailure              `json:"failures"`
}

type BatchDetails struct {
	Batch    *models.AnalysisBatch     `json:"batch"`
	Analyses []models.ResponseAnalysis `json:"analyses"`
}
