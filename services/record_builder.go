package services

import (
	"strings"

	"github.com/google/uuid"

	"github.com/AI-Template-SDK/senso-analysis/internal/models"
	"github.com/AI-Template-SDK/senso-analysis/internal/providers"
)

type analysisRecordBuilder struct{}

func NewAnalysisRecordBuilder() AnalysisRecordBuilder {
	return &analysisRecordBuilder{}
}

// Build assembles a record without batch id or timestamps. It performs no I/O.
func (b *analysisRecordBuilder) Build(in RecordInput) (*models.ResponseAnalysis, error) {
	resp := in.Response
	if resp == nil {
		return nil, incompleteRecord(uuid.Nil, []string{"response_id", "query_id", "company_id", "answer_engine"})
	}

	engine := providers.NormalizeEngineName(resp.EngineName)
	var missing []string
	if resp.ResponseID == uuid.Nil {
		missing = append(missing, "response_id")
	}
	if resp.QueryID == uuid.Nil {
		missing = append(missing, "query_id")
	}
	if in.CompanyID == uuid.Nil {
		missing = append(missing, "company_id")
	}
	if engine == "" {
		missing = append(missing, "answer_engine")
	}
	if len(missing) > 0 {
		return nil, incompleteRecord(resp.ResponseID, missing)
	}
	if in.Extraction == nil || in.Metrics == nil {
		return nil, invalidInput("extraction and metrics are required to build record %s", resp.ResponseID)
	}

	m := in.Metrics
	return &models.ResponseAnalysis{
		ResponseID:         resp.ResponseID,
		QueryID:            resp.QueryID,
		PromptID:           resp.PromptID,
		CompanyID:          in.CompanyID,
		AnswerEngine:       engine,
		ResponseText:       resp.ResponseText,
		CitationsParsed:    models.NewCitationsParsed(in.Extraction.Citations, in.Extraction.RankList),
		SentimentScore:     m.SentimentScore,
		RankingPosition:    m.RankingPosition,
		CompanyMentioned:   m.CompanyMentioned,
		Recommended:        m.Recommended,
		Cited:              m.Cited,
		CompetitorsList:    m.CompetitorsList,
		MentionedCompanies: m.MentionedCompanies,
		RankList:           in.Extraction.RankList,
		SolutionAnalysis:   m.SolutionAnalysis,
		ShareOfVoice:       m.ShareOfVoice,
		TaxonomySnapshot:   trimTaxonomy(in.Taxonomy),
	}, nil
}

func trimTaxonomy(t models.TaxonomySnapshot) models.TaxonomySnapshot {
	return models.TaxonomySnapshot{
		GeographicRegion:   strings.TrimSpace(t.GeographicRegion),
		IndustryVertical:   strings.TrimSpace(t.IndustryVertical),
		BuyerPersona:       strings.TrimSpace(t.BuyerPersona),
		BuyingJourneyStage: strings.TrimSpace(t.BuyingJourneyStage),
	}
}
