package providers

import (
	"strings"

	"github.com/AI-Template-SDK/senso-analysis/internal/models"
)

// ParseCitations normalizes the engine-native citations payload. Engines deliver either a
// list of URL strings or a list of objects using one of several key spellings; anything
// unrecognized is skipped.
func ParseCitations(raw interface{}) []models.EngineCitation {
	var out []models.EngineCitation

	switch v := raw.(type) {
	case nil:
		return nil
	case []string:
		for _, u := range v {
			if u = strings.TrimSpace(u); u != "" {
				out = append(out, models.EngineCitation{URL: u})
			}
		}
	case []models.EngineCitation:
		for _, c := range v {
			if strings.TrimSpace(c.URL) != "" {
				out = append(out, c)
			}
		}
	case []interface{}:
		for _, item := range v {
			if c, ok := parseCitationItem(item); ok {
				out = append(out, c)
			}
		}
	case map[string]interface{}:
		// Some payloads wrap the list: {"citations": [...]} or {"sources": [...]}
		for _, key := range []string{"citations", "sources", "references", "links"} {
			if inner, ok := v[key]; ok {
				return ParseCitations(inner)
			}
		}
		if c, ok := parseCitationItem(v); ok {
			out = append(out, c)
		}
	case string:
		if u := strings.TrimSpace(v); u != "" {
			out = append(out, models.EngineCitation{URL: u})
		}
	}

	return out
}

func parseCitationItem(item interface{}) (models.EngineCitation, bool) {
	switch v := item.(type) {
	case string:
		u := strings.TrimSpace(v)
		return models.EngineCitation{URL: u}, u != ""
	case map[string]interface{}:
		c := models.EngineCitation{
			URL:     firstString(v, "url", "link", "href", "source_url"),
			Title:   firstString(v, "title", "name", "text"),
			Snippet: firstString(v, "snippet", "description", "content"),
		}
		return c, c.URL != ""
	}
	return models.EngineCitation{}, false
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
