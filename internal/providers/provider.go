package providers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AI-Template-SDK/senso-analysis/internal/models"
)

// EngineResult is a scraped answer-engine result as delivered by the collection pipeline
type EngineResult struct {
	URL                string         `json:"url,omitempty"`
	Prompt             string         `json:"prompt,omitempty"`
	Citations          interface{}    `json:"citations,omitempty"`
	LinksAttached      []LinkAttached `json:"links_attached,omitempty"`
	Country            string         `json:"country,omitempty"`
	AnswerTextMarkdown string         `json:"answer_text_markdown"`
	WebSearchTriggered bool           `json:"web_search_triggered,omitempty"`
	Index              int            `json:"index,omitempty"`
	Error              string         `json:"error,omitempty"`
}

// LinkAttached is a numbered reference the engine attached to its answer
type LinkAttached struct {
	Position int    `json:"position"`
	URL      string `json:"url"`
	Text     string `json:"text,omitempty"`
}

// ResponseText returns the answer with escaped citation markers turned into links.
func (r *EngineResult) ResponseText() (string, error) {
	if r.Error != "" {
		return "", fmt.Errorf("engine result %d failed: %s", r.Index, r.Error)
	}
	if strings.TrimSpace(r.AnswerTextMarkdown) == "" {
		return "", fmt.Errorf("engine result %d has empty answer_text_markdown", r.Index)
	}
	return fixCitations(r.AnswerTextMarkdown, r.LinksAttached), nil
}

// EngineCitations returns attached links in position order followed by the citations payload,
// deduplicated by URL.
func (r *EngineResult) EngineCitations() []models.EngineCitation {
	links := make([]LinkAttached, len(r.LinksAttached))
	copy(links, r.LinksAttached)
	sort.SliceStable(links, func(i, j int) bool { return links[i].Position < links[j].Position })

	var out []models.EngineCitation
	seen := make(map[string]bool)
	add := func(c models.EngineCitation) {
		if c.URL == "" || seen[c.URL] {
			return
		}
		seen[c.URL] = true
		out = append(out, c)
	}
	for _, l := range links {
		add(models.EngineCitation{URL: strings.TrimSpace(l.URL), Title: l.Text})
	}
	for _, c := range ParseCitations(r.Citations) {
		add(c)
	}
	return out
}

// fixCitations replaces escaped citation markers like \[1\] with markdown links [1](url)
func fixCitations(text string, links []LinkAttached) string {
	for _, link := range links {
		if link.URL == "" {
			continue
		}
		marker := fmt.Sprintf("\\[%d\\]", link.Position)
		replacement := fmt.Sprintf("[%d](%s)", link.Position, link.URL)
		text = strings.ReplaceAll(text, marker, replacement)
	}
	return text
}
