package testutil

import (
	"github.com/google/uuid"

	"github.com/AI-Template-SDK/senso-analysis/internal/config"
	"github.com/AI-Template-SDK/senso-analysis/internal/models"
)

// Fixed ids keep fixtures deterministic across runs
var (
	SampleCompanyID  = uuid.MustParse("6f1c1b6e-8b0a-4c43-9d5e-1a2b3c4d5e6f")
	SampleQueryID    = uuid.MustParse("0b7e2f4a-31d2-4a8e-bc55-7d1e9f0a2b3c")
	SampleResponseID = uuid.MustParse("c3d4e5f6-a7b8-4c9d-8e0f-112233445566")
)

// SampleAnalysisConfig returns analysis tunables with fast retries for tests
func SampleAnalysisConfig() config.AnalysisConfig {
	return config.AnalysisConfig{
		RecommendTopN:         2,
		MaxParallelism:        2,
		RetryMaxAttempts:      3,
		RetryInitialBackoffMs: 1,
		RetryMaxBackoffMs:     2,
		LockTTLSeconds:        5,
		TestCompanyName:       "Acme",
		TestCompetitors:       []string{"Globex", "Initech"},
		TestProducts:          []string{"Rocket Skates"},
	}
}

// SampleProfile returns a company with two competitors and two products
func SampleProfile() *models.CompanyProfile {
	return &models.CompanyProfile{
		ID: SampleCompanyID,
		Organization: models.Organization{
			Name:    "Acme",
			Aliases: []string{"Acme Corp"},
			Domains: []string{"acme.com"},
		},
		Products: []string{"Rocket Skates", "Giant Magnet"},
		Competitors: []models.Organization{
			{Name: "Globex", Domains: []string{"globex.com"}},
			{Name: "Initech", Domains: []string{"initech.com"}},
		},
	}
}

// SampleResponseText mentions Acme, Globex and Initech in that order
func SampleResponseText() string {
	return "For freight logistics, Acme is the leading choice thanks to its Rocket Skates platform. " +
		"Globex is a reliable alternative with strong support. " +
		"Initech has struggled with outages. See https://www.acme.com/pricing?utm_source=chat for details."
}

// SampleResponse wraps SampleResponseText with engine metadata
func SampleResponse() *models.AnswerEngineResponse {
	return &models.AnswerEngineResponse{
		ResponseID:   SampleResponseID,
		QueryID:      SampleQueryID,
		EngineName:   "ChatGPT-4o",
		ResponseText: SampleResponseText(),
		Citations: []models.EngineCitation{
			{URL: "https://globex.com/reviews", Title: "Globex reviews"},
		},
	}
}

// SampleEngineResult returns a scraped engine result with attached links
func SampleEngineResult() string {
	return `{
		"url": "https://chatgpt.com/",
		"prompt": "Which freight platform should I use?",
		"answer_text_markdown": "Acme is the top pick \\[1\\]. Globex also works \\[2\\].",
		"links_attached": [
			{"position": 2, "url": "https://globex.com/", "text": "Globex"},
			{"position": 1, "url": "https://acme.com/", "text": "Acme"}
		],
		"citations": [
			"https://acme.com/",
			{"link": "https://news.example.com/freight", "title": "Freight roundup", "description": "A roundup."}
		],
		"country": "US",
		"web_search_triggered": true,
		"index": 1
	}`
}

// SampleErrorResult returns an engine result that failed upstream
func SampleErrorResult() string {
	return `{"error": "Request timeout", "index": 4, "answer_text_markdown": ""}`
}
