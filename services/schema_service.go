package services

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/rotisserie/eris"
	"github.com/xeipuuv/gojsonschema"

	"github.com/AI-Template-SDK/senso-analysis/internal/models"
)

// Published schema names
const (
	SchemaCitationsParsed  = "citations-parsed"
	SchemaSolutionAnalysis = "solution-analysis"
)

type schemaService struct {
	schemas map[string]map[string]interface{}
	loaders map[string]gojsonschema.JSONLoader
	err     error
}

// NewSchemaService reflects the versioned document types into JSON schemas.
func NewSchemaService() SchemaService {
	s := &schemaService{
		schemas: make(map[string]map[string]interface{}),
		loaders: make(map[string]gojsonschema.JSONLoader),
	}
	for name, v := range map[string]interface{}{
		SchemaCitationsParsed:  &models.CitationsParsed{},
		SchemaSolutionAnalysis: &models.SolutionAnalysis{},
	} {
		schema, err := generateSchema(v)
		if err != nil {
			s.err = eris.Wrapf(err, "services: generate schema %s", name)
			return s
		}
		s.schemas[name] = schema
		s.loaders[name] = gojsonschema.NewGoLoader(schema)
	}
	return s
}

// generateSchema returns the inlined schema as a plain map. The draft markers are dropped
// because the validator only understands older drafts.
func generateSchema(v interface{}) (map[string]interface{}, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}
	raw, err := json.Marshal(reflector.Reflect(v))
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out, nil
}

func (s *schemaService) Names() []string {
	names := make([]string, 0, len(s.schemas))
	for name := range s.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *schemaService) Schema(name string) (map[string]interface{}, error) {
	if s.err != nil {
		return nil, s.err
	}
	schema, ok := s.schemas[name]
	if !ok {
		return nil, invalidInput("unknown schema %q", name)
	}
	return schema, nil
}

// ParseCitationsParsed validates an incoming citations payload. A bare array of citations is
// accepted as a version 1 document, with missing ranks filled in by position.
func (s *schemaService) ParseCitationsParsed(raw []byte) (models.CitationsParsed, error) {
	var doc models.CitationsParsed
	if s.err != nil {
		return doc, s.err
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return doc, invalidInput("citationsParsed is empty")
	}

	var payload interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return doc, invalidInput("citationsParsed is not valid JSON: %v", err)
	}

	switch v := payload.(type) {
	case []interface{}:
		for i, item := range v {
			if c, ok := item.(map[string]interface{}); ok {
				if _, has := c["rank"]; !has {
					c["rank"] = i + 1
				}
			}
		}
		payload = map[string]interface{}{
			"version":   models.CitationsParsedVersion,
			"citations": v,
		}
	case map[string]interface{}:
	default:
		return doc, invalidInput("citationsParsed must be an object or an array of citations")
	}

	result, err := gojsonschema.Validate(s.loaders[SchemaCitationsParsed], gojsonschema.NewGoLoader(payload))
	if err != nil {
		return doc, eris.Wrap(err, "services: validate citationsParsed")
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return doc, invalidInput("citationsParsed failed validation: %s", strings.Join(errs, "; "))
	}

	normalized, err := json.Marshal(payload)
	if err != nil {
		return doc, eris.Wrap(err, "services: re-encode citationsParsed")
	}
	if err := json.Unmarshal(normalized, &doc); err != nil {
		return doc, invalidInput("citationsParsed has unexpected shape: %v", err)
	}
	if doc.Version != models.CitationsParsedVersion {
		return doc, invalidInput("unsupported citationsParsed version %d", doc.Version)
	}
	return doc, nil
}
