// internal/models/models.go
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Query is a market-research question owned by a persona
type Query struct {
	ID             uuid.UUID  `json:"id" db:"query_id"`
	Text           string     `json:"text" db:"query_text"`
	JourneyPhases  StringList `json:"journey_phases" db:"journey_phases"`
	PersonaID      uuid.UUID  `json:"persona_id" db:"persona_id"`
	CompanyID      uuid.UUID  `json:"company_id" db:"company_id"`
	BatchID        *uuid.UUID `json:"batch_id,omitempty" db:"batch_id"`
	CreatedByBatch bool       `json:"created_by_batch" db:"created_by_batch"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// ICP is an ideal customer profile: the targeting segment personas belong to
type ICP struct {
	ID               uuid.UUID `json:"id" db:"icp_id"`
	Region           string    `json:"region" db:"region"`
	IndustryVertical string    `json:"industry_vertical" db:"industry_vertical"`
	CompanySize      string    `json:"company_size" db:"company_size"`
	CompanyID        uuid.UUID `json:"company_id" db:"company_id"`
	Personas         []Persona `json:"personas,omitempty" db:"-"`
}

type Persona struct {
	ID         uuid.UUID `json:"id" db:"persona_id"`
	Title      string    `json:"title" db:"title"`
	Seniority  string    `json:"seniority" db:"seniority"`
	Department string    `json:"department" db:"department"`
	ICPID      uuid.UUID `json:"icp_id" db:"icp_id"`
	Queries    []Query   `json:"queries,omitempty" db:"-"`
}

// Organization is a company known to the analysis, matched by name, alias or domain
type Organization struct {
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`
	Domains []string `json:"domains,omitempty"`
}

// Names returns the display name followed by its aliases.
func (o Organization) Names() []string {
	names := make([]string, 0, len(o.Aliases)+1)
	names = append(names, o.Name)
	return append(names, o.Aliases...)
}

// CompanyProfile is the company a response is analyzed for, plus its registered competitors
type CompanyProfile struct {
	ID uuid.UUID `json:"id"`
	Organization
	Products    []string       `json:"products,omitempty"`
	Competitors []Organization `json:"competitors,omitempty"`
}

// KnownOrganizations returns the company followed by its competitors.
func (p *CompanyProfile) KnownOrganizations() []Organization {
	orgs := make([]Organization, 0, len(p.Competitors)+1)
	orgs = append(orgs, p.Organization)
	return append(orgs, p.Competitors...)
}

// EngineCitation is a citation as supplied by the answer engine alongside its text
type EngineCitation struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// AnswerEngineResponse is the raw pipeline input. It is never persisted as-is.
type AnswerEngineResponse struct {
	ResponseID   uuid.UUID        `json:"response_id"`
	QueryID      uuid.UUID        `json:"query_id"`
	PromptID     *uuid.UUID       `json:"prompt_id,omitempty"`
	EngineName   string           `json:"engine_name"`
	ResponseText string           `json:"response_text"`
	Citations    []EngineCitation `json:"citations,omitempty"`
	// RawResult is the scraped engine payload; it supplies the text and citations when
	// ResponseText is empty.
	RawResult json.RawMessage `json:"raw_result,omitempty"`
}

// TaxonomySnapshot is copied from Query/ICP/Persona at analysis time
type TaxonomySnapshot struct {
	GeographicRegion   string `json:"geographic_region" db:"geographic_region"`
	IndustryVertical   string `json:"industry_vertical" db:"industry_vertical"`
	BuyerPersona       string `json:"buyer_persona" db:"buyer_persona"`
	BuyingJourneyStage string `json:"buying_journey_stage" db:"buying_journey_stage"`
}

// ResponseAnalysis is the persisted analytic record of one answer-engine response
type ResponseAnalysis struct {
	ResponseID         uuid.UUID        `json:"response_id" db:"response_id"`
	QueryID            uuid.UUID        `json:"query_id" db:"query_id"`
	PromptID           *uuid.UUID       `json:"prompt_id,omitempty" db:"prompt_id"`
	CompanyID          uuid.UUID        `json:"company_id" db:"company_id"`
	AnswerEngine       string           `json:"answer_engine" db:"answer_engine"`
	ResponseText       string           `json:"response_text" db:"response_text"`
	CitationsParsed    CitationsParsed  `json:"citations_parsed" db:"citations_parsed"`
	SentimentScore     float64          `json:"sentiment_score" db:"sentiment_score"`
	RankingPosition    *int             `json:"ranking_position" db:"ranking_position"`
	CompanyMentioned   bool             `json:"company_mentioned" db:"company_mentioned"`
	Recommended        bool             `json:"recommended" db:"recommended"`
	Cited              bool             `json:"cited" db:"cited"`
	CompetitorsList    StringList       `json:"competitors_list" db:"competitors_list"`
	MentionedCompanies StringList       `json:"mentioned_companies" db:"mentioned_companies"`
	RankList           RankList         `json:"rank_list" db:"rank_list"`
	SolutionAnalysis   SolutionAnalysis `json:"solution_analysis" db:"solution_analysis"`
	ShareOfVoice       *float64         `json:"share_of_voice,omitempty" db:"share_of_voice"`
	TaxonomySnapshot
	AnalysisBatchID uuid.UUID `json:"analysis_batch_id" db:"analysis_batch_id"`
	CreatedByBatch  bool      `json:"created_by_batch" db:"created_by_batch"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// CitationRow is one normalized citation row of a response analysis
type CitationRow struct {
	CitationID uuid.UUID `json:"citation_id" db:"citation_id"`
	ResponseID uuid.UUID `json:"response_id" db:"response_id"`
	Rank       int       `json:"rank" db:"citation_rank"`
	URL        string    `json:"url" db:"url"`
	Title      string    `json:"title" db:"title"`
	Snippet    string    `json:"snippet" db:"snippet"`
	Domain     string    `json:"domain" db:"domain"`
	Source     string    `json:"source" db:"source"`
	Type       string    `json:"type" db:"citation_type"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// BatchState is the lifecycle of a transactional write
type BatchState string

const (
	BatchStatePending    BatchState = "pending"
	BatchStateWriting    BatchState = "writing"
	BatchStateCommitted  BatchState = "committed"
	BatchStateRolledBack BatchState = "rolled_back"
)

// AnalysisBatch groups the analyses committed under one analysis_batch_id
type AnalysisBatch struct {
	ID          uuid.UUID   `json:"id" db:"analysis_batch_id"`
	State       BatchState  `json:"state" db:"state"`
	RecordCount int         `json:"record_count" db:"record_count"`
	AnalysisIDs []uuid.UUID `json:"analysis_ids" db:"-"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	CommittedAt *time.Time  `json:"committed_at,omitempty" db:"committed_at"`
}
