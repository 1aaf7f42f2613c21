package services

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/typesense/typesense-go/v2/typesense"
	"github.com/typesense/typesense-go/v2/typesense/api"
	"go.uber.org/zap"

	"github.com/AI-Template-SDK/senso-analysis/internal/models"
)

type noopSearchIndexer struct{}

// NewNoopSearchIndexer is used when no search backend is configured.
func NewNoopSearchIndexer() SearchIndexer {
	return noopSearchIndexer{}
}

func (noopSearchIndexer) EnsureCollection(context.Context) error { return nil }

func (noopSearchIndexer) IndexAnalyses(context.Context, []*models.ResponseAnalysis) error {
	return nil
}

type typesenseSearchIndexer struct {
	client     *typesense.Client
	collection string
	logger     *zap.Logger
}

func NewTypesenseSearchIndexer(client *typesense.Client, collection string, logger *zap.Logger) SearchIndexer {
	return &typesenseSearchIndexer{
		client:     client,
		collection: collection,
		logger:     logger.Named("search_indexer"),
	}
}

// EnsureCollection creates the analyses collection; an existing collection is fine.
func (s *typesenseSearchIndexer) EnsureCollection(ctx context.Context) error {
	facet := true
	sortable := true
	optional := true
	defaultSortField := "created_at"
	schema := &api.CollectionSchema{
		Name: s.collection,
		Fields: []api.Field{
			{Name: "response_id", Type: "string"},
			{Name: "company_id", Type: "string", Facet: &facet},
			{Name: "analysis_batch_id", Type: "string", Facet: &facet},
			{Name: "answer_engine", Type: "string", Facet: &facet},
			{Name: "response_text", Type: "string"},
			{Name: "mentioned_companies", Type: "string[]", Facet: &facet},
			{Name: "citation_domains", Type: "string[]", Facet: &facet},
			{Name: "sentiment_score", Type: "float"},
			{Name: "ranking_position", Type: "int32", Optional: &optional},
			{Name: "company_mentioned", Type: "bool", Facet: &facet},
			{Name: "recommended", Type: "bool", Facet: &facet},
			{Name: "cited", Type: "bool", Facet: &facet},
			{Name: "geographic_region", Type: "string", Facet: &facet},
			{Name: "industry_vertical", Type: "string", Facet: &facet},
			{Name: "buyer_persona", Type: "string", Facet: &facet},
			{Name: "buying_journey_stage", Type: "string", Facet: &facet},
			{Name: "created_at", Type: "int64", Sort: &sortable},
		},
		DefaultSortingField: &defaultSortField,
	}
	_, err := s.client.Collections().Create(ctx, schema)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return eris.Wrapf(err, "services: create typesense collection %s", s.collection)
	}
	return nil
}

func (s *typesenseSearchIndexer) IndexAnalyses(ctx context.Context, recs []*models.ResponseAnalysis) error {
	if len(recs) == 0 {
		return nil
	}
	docs := make([]interface{}, len(recs))
	for i, rec := range recs {
		docs[i] = analysisDocument(rec)
	}
	action := "upsert"
	if _, err := s.client.Collection(s.collection).Documents().Import(ctx, docs, &api.ImportDocumentsParams{Action: &action}); err != nil {
		return eris.Wrapf(err, "services: import %d analyses into %s", len(recs), s.collection)
	}
	s.logger.Debug("indexed analyses", zap.Int("count", len(recs)), zap.String("collection", s.collection))
	return nil
}

// analysisDocument flattens a record into a search document keyed by response id.
func analysisDocument(rec *models.ResponseAnalysis) map[string]interface{} {
	domains := make([]string, 0, len(rec.CitationsParsed.Citations))
	for _, c := range rec.CitationsParsed.Citations {
		domains = append(domains, c.Domain)
	}
	mentioned := []string(rec.MentionedCompanies)
	if mentioned == nil {
		mentioned = []string{}
	}

	doc := map[string]interface{}{
		"id":                   rec.ResponseID.String(),
		"response_id":          rec.ResponseID.String(),
		"company_id":           rec.CompanyID.String(),
		"analysis_batch_id":    rec.AnalysisBatchID.String(),
		"answer_engine":        rec.AnswerEngine,
		"response_text":        rec.ResponseText,
		"mentioned_companies":  mentioned,
		"citation_domains":     sortedUnique(domains),
		"sentiment_score":      rec.SentimentScore,
		"company_mentioned":    rec.CompanyMentioned,
		"recommended":          rec.Recommended,
		"cited":                rec.Cited,
		"geographic_region":    rec.GeographicRegion,
		"industry_vertical":    rec.IndustryVertical,
		"buyer_persona":        rec.BuyerPersona,
		"buying_journey_stage": rec.BuyingJourneyStage,
		"created_at":           rec.CreatedAt.Unix(),
	}
	if rec.RankingPosition != nil {
		doc["ranking_position"] = *rec.RankingPosition
	}
	return doc
}
