package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Document versions understood by this build. Readers reject anything else.
const (
	CitationsParsedVersion  = 1
	SolutionAnalysisVersion = 1
)

// Citation source values
const (
	CitationSourceEngine = "engine"
	CitationSourceText   = "text"
)

// Citation type values
const (
	CitationTypePrimary   = "primary"
	CitationTypeSecondary = "secondary"
)

// Citation is a reference extracted from, or supplied alongside, a response
type Citation struct {
	URL     string `json:"url" jsonschema:"required,minLength=1"`
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
	Domain  string `json:"domain,omitempty"`
	Rank    int    `json:"rank" jsonschema:"required,minimum=1"`
	Source  string `json:"source,omitempty" jsonschema:"enum=engine,enum=text"`
	Type    string `json:"type,omitempty" jsonschema:"enum=primary,enum=secondary"`
}

// CitationsParsed is the versioned citations_parsed document
type CitationsParsed struct {
	Version   int        `json:"version" jsonschema:"required,minimum=1"`
	Citations []Citation `json:"citations" jsonschema:"required"`
	RankList  []string   `json:"rank_list,omitempty"`
}

// NewCitationsParsed wraps citations in a current-version document.
func NewCitationsParsed(citations []Citation, rankList RankList) CitationsParsed {
	if citations == nil {
		citations = []Citation{}
	}
	return CitationsParsed{
		Version:   CitationsParsedVersion,
		Citations: citations,
		RankList:  []string(rankList),
	}
}

func (c CitationsParsed) Value() (driver.Value, error) {
	if c.Version == 0 {
		c.Version = CitationsParsedVersion
	}
	if c.Citations == nil {
		c.Citations = []Citation{}
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (c *CitationsParsed) Scan(src interface{}) error {
	raw, err := scanBytes(src)
	if err != nil || raw == nil {
		return err
	}
	var doc CitationsParsed
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode citations_parsed: %w", err)
	}
	if doc.Version != CitationsParsedVersion {
		return fmt.Errorf("unsupported citations_parsed version %d", doc.Version)
	}
	*c = doc
	return nil
}

// ProductReference records how often a registered product is referenced in a response
type ProductReference struct {
	Name        string `json:"name"`
	Mentions    int    `json:"mentions"`
	FirstOffset int    `json:"first_offset"`
}

// SolutionAnalysis is the versioned solution_analysis document
type SolutionAnalysis struct {
	Version             int                `json:"version" jsonschema:"required,minimum=1"`
	ReferencedProducts  []ProductReference `json:"referenced_products"`
	MissingProducts     []string           `json:"missing_products"`
	RegisteredProducts  int                `json:"registered_products"`
	Coverage            float64            `json:"coverage" jsonschema:"minimum=0,maximum=1"`
	EndorsementPhrases  []string           `json:"endorsement_phrases"`
	CompanyContextCount int                `json:"company_context_count"`
}

func (s SolutionAnalysis) Value() (driver.Value, error) {
	if s.Version == 0 {
		s.Version = SolutionAnalysisVersion
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *SolutionAnalysis) Scan(src interface{}) error {
	raw, err := scanBytes(src)
	if err != nil || raw == nil {
		return err
	}
	var doc SolutionAnalysis
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode solution_analysis: %w", err)
	}
	if doc.Version != SolutionAnalysisVersion {
		return fmt.Errorf("unsupported solution_analysis version %d", doc.Version)
	}
	*s = doc
	return nil
}

// StringList is a list column stored as a JSON array
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src interface{}) error {
	raw, err := scanBytes(src)
	if err != nil {
		return err
	}
	if raw == nil {
		*l = StringList{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode string list: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	*l = out
	return nil
}

func scanBytes(src interface{}) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported column type %T", src)
	}
}
