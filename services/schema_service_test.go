package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI-Template-SDK/senso-analysis/internal/models"
)

func TestSchemaService_Names(t *testing.T) {
	svc := NewSchemaService()
	assert.Equal(t, []string{SchemaCitationsParsed, SchemaSolutionAnalysis}, svc.Names())

	schema, err := svc.Schema(SchemaCitationsParsed)
	require.NoError(t, err)
	assert.Equal(t, "object", schema["type"])
	assert.NotContains(t, schema, "$schema")

	props, ok := schema["properties"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, props, "citations")
	assert.Contains(t, props, "version")

	_, err = svc.Schema("nope")
	assert.True(t, IsInvalidInput(err))
}

func TestParseCitationsParsed(t *testing.T) {
	svc := NewSchemaService()

	t.Run("versioned document", func(t *testing.T) {
		doc, err := svc.ParseCitationsParsed([]byte(`{"version":1,"citations":[{"url":"https://acme.com","rank":1}],"rank_list":["Acme"]}`))
		require.NoError(t, err)
		assert.Equal(t, models.CitationsParsedVersion, doc.Version)
		require.Len(t, doc.Citations, 1)
		assert.Equal(t, []string{"Acme"}, doc.RankList)
	})

	t.Run("bare array gets ranks", func(t *testing.T) {
		doc, err := svc.ParseCitationsParsed([]byte(`[{"url":"https://acme.com"},{"url":"https://globex.com","title":"Globex"}]`))
		require.NoError(t, err)
		assert.Equal(t, models.CitationsParsedVersion, doc.Version)
		require.Len(t, doc.Citations, 2)
		assert.Equal(t, 1, doc.Citations[0].Rank)
		assert.Equal(t, 2, doc.Citations[1].Rank)
		assert.Equal(t, "Globex", doc.Citations[1].Title)
	})

	invalid := map[string]string{
		"empty":           ``,
		"null":            `null`,
		"not json":        `{citations`,
		"scalar":          `42`,
		"missing url":     `[{"title":"no link"}]`,
		"empty url":       `[{"url":""}]`,
		"zero rank":       `{"version":1,"citations":[{"url":"https://acme.com","rank":0}]}`,
		"unknown source":  `{"version":1,"citations":[{"url":"https://acme.com","rank":1,"source":"rumor"}]}`,
		"future version":  `{"version":2,"citations":[]}`,
		"missing version": `{"citations":[]}`,
	}
	for name, raw := range invalid {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ParseCitationsParsed([]byte(raw))
			require.Error(t, err)
			assert.True(t, IsInvalidInput(err), err.Error())
		})
	}
}
