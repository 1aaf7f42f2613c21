package services

import (
	"github.com/AI-Template-SDK/senso-analysis/internal/models"
)

const defaultRecommendTopN = 2

type metricDeriver struct {
	recommendTopN int
}

// NewMetricDeriver returns a deriver that counts the company as recommended when it ranks
// within the first recommendTopN organizations.
func NewMetricDeriver(recommendTopN int) MetricDeriver {
	if recommendTopN <= 0 {
		recommendTopN = defaultRecommendTopN
	}
	return &metricDeriver{recommendTopN: recommendTopN}
}

func (d *metricDeriver) Derive(responseText string, extraction *ExtractionResult, profile *models.CompanyProfile) *DerivedMetrics {
	out := &DerivedMetrics{
		SentimentScore:     0.5,
		CompetitorsList:    models.StringList{},
		MentionedCompanies: models.StringList{},
	}
	if extraction == nil || profile == nil {
		out.SolutionAnalysis = deriveSolutionAnalysis(responseText, nil)
		return out
	}

	// Entity 0 is always the company itself
	companySentences := make([]string, 0)
	var companySpans []span
	for _, s := range extraction.sentences {
		for _, m := range extraction.Mentions {
			if m.Entity == 0 && m.Start >= s.Start && m.Start < s.End {
				companySpans = append(companySpans, s)
				companySentences = append(companySentences, responseText[s.Start:s.End])
				break
			}
		}
	}

	if len(companySentences) > 0 {
		out.SentimentScore = scoreSentiment(companySentences)
	} else {
		out.SentimentScore = scoreSentiment([]string{responseText})
	}

	for i, r := range extraction.Ranked {
		out.MentionedCompanies = append(out.MentionedCompanies, r.Name)
		if r.Entity == 0 {
			pos := i + 1
			out.RankingPosition = &pos
			out.CompanyMentioned = true
		} else {
			out.CompetitorsList = append(out.CompetitorsList, r.Name)
		}
	}

	var endorsements []string
	for _, s := range companySentences {
		endorsements = append(endorsements, matchEndorsements(s)...)
	}
	endorsements = sortedUnique(endorsements)

	if out.CompanyMentioned {
		out.Recommended = *out.RankingPosition <= d.recommendTopN || len(endorsements) > 0
	}

	out.Cited = isCited(extraction.Citations, profile.Organization)
	out.ShareOfVoice = shareOfVoice(extraction.Mentions)

	out.SolutionAnalysis = deriveSolutionAnalysis(responseText, profile.Products)
	out.SolutionAnalysis.EndorsementPhrases = endorsements
	out.SolutionAnalysis.CompanyContextCount = len(companySpans)
	return out
}

// isCited reports whether a citation is on the company's domain, or names the company.
func isCited(citations []models.Citation, company models.Organization) bool {
	for _, c := range citations {
		if c.Type == models.CitationTypePrimary || citationNames(c, company) {
			return true
		}
	}
	return false
}

func shareOfVoice(mentions []Mention) *float64 {
	if len(mentions) == 0 {
		return nil
	}
	company := 0
	for _, m := range mentions {
		if m.Entity == 0 {
			company++
		}
	}
	share := round4(float64(company) / float64(len(mentions)))
	return &share
}

// deriveSolutionAnalysis counts references to each registered product.
func deriveSolutionAnalysis(responseText string, products []string) models.SolutionAnalysis {
	sa := models.SolutionAnalysis{
		Version:            models.SolutionAnalysisVersion,
		ReferencedProducts: []models.ProductReference{},
		MissingProducts:    []string{},
		EndorsementPhrases: []string{},
		RegisteredProducts: len(products),
	}
	if len(products) == 0 {
		return sa
	}

	spellings := make([][]string, len(products))
	for i, p := range products {
		spellings[i] = []string{p}
	}
	refs := make([]models.ProductReference, len(products))
	for i, p := range products {
		refs[i] = models.ProductReference{Name: p, FirstOffset: -1}
	}
	for _, m := range newMentionMatcher(products, spellings).Find(responseText) {
		ref := &refs[m.Entity]
		if ref.Mentions == 0 {
			ref.FirstOffset = m.Start
		}
		ref.Mentions++
	}

	for _, ref := range refs {
		if ref.Mentions > 0 {
			sa.ReferencedProducts = append(sa.ReferencedProducts, ref)
		} else {
			sa.MissingProducts = append(sa.MissingProducts, ref.Name)
		}
	}
	sa.Coverage = round4(float64(len(sa.ReferencedProducts)) / float64(len(products)))
	return sa
}
