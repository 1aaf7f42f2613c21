package services

import (
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
	"mvdan.cc/xurls/v2"

	"github.com/AI-Template-SDK/senso-analysis/internal/models"
)

var imageExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".bmp", ".svg", ".webp", ".ico",
}

// Query parameters that only carry tracking state
var trackingParams = map[string]bool{
	"fbclid":  true,
	"gclid":   true,
	"msclkid": true,
	"ref_src": true,
}

type citationExtractor struct {
	logger *zap.Logger
}

func NewCitationExtractor(logger *zap.Logger) CitationExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &citationExtractor{logger: logger.Named("citation_extractor")}
}

func (e *citationExtractor) Extract(responseText string, engineCitations []models.EngineCitation, profile *models.CompanyProfile) (*ExtractionResult, error) {
	if strings.TrimSpace(responseText) == "" {
		return nil, invalidInput("response text is empty")
	}
	if profile == nil || strings.TrimSpace(profile.Name) == "" {
		return nil, invalidInput("company name is required for extraction")
	}

	orgs := profile.KnownOrganizations()
	names := make([]string, len(orgs))
	spellings := make([][]string, len(orgs))
	for i, org := range orgs {
		names[i] = org.Name
		// an unnamed competitor can never appear in the rank list
		if strings.TrimSpace(org.Name) != "" {
			spellings[i] = org.Names()
		}
	}

	mentions := withoutURLs(responseText, newMentionMatcher(names, spellings).Find(responseText))
	sentences := splitSentences(responseText)
	citations := e.collectCitations(responseText, sentences, engineCitations, profile.Domains)
	ranked := rankOrganizations(orgs, mentions, citations)

	rankList := make(models.RankList, 0, len(ranked))
	for _, r := range ranked {
		rankList = append(rankList, r.Name)
	}

	e.logger.Debug("extracted response",
		zap.Int("mentions", len(mentions)),
		zap.Int("citations", len(citations)),
		zap.String("rank_list", rankList.String()))

	return &ExtractionResult{
		RankList:  rankList,
		Ranked:    ranked,
		Citations: citations,
		Mentions:  mentions,
		sentences: sentences,
	}, nil
}

// withoutURLs drops mentions that fall inside a URL, such as a company name in a domain.
func withoutURLs(text string, mentions []Mention) []Mention {
	locs := xurls.Strict().FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return mentions
	}
	kept := mentions[:0]
	for _, m := range mentions {
		inside := false
		for _, loc := range locs {
			if m.Start < loc[1] && m.End > loc[0] {
				inside = true
				break
			}
		}
		if !inside {
			kept = append(kept, m)
		}
	}
	return kept
}

// rankOrganizations orders organizations by first kept mention. Competitors the text never
// names but an engine citation points at are appended in citation order. The company itself
// is only ranked when the text names it; a citation of it counts towards cited instead.
func rankOrganizations(orgs []models.Organization, mentions []Mention, citations []models.Citation) []RankedOrganization {
	byEntity := make(map[int]*RankedOrganization)
	var ranked []*RankedOrganization
	for _, m := range mentions {
		if r, ok := byEntity[m.Entity]; ok {
			r.Mentions++
			continue
		}
		r := &RankedOrganization{Name: m.Name, Entity: m.Entity, FirstOffset: m.Start, Mentions: 1}
		byEntity[m.Entity] = r
		ranked = append(ranked, r)
	}
	// mentions arrive in text order, so ranked is already sorted by FirstOffset

	for _, c := range citations {
		if c.Source != models.CitationSourceEngine {
			continue
		}
		for entity, org := range orgs {
			if _, ok := byEntity[entity]; ok || entity == 0 || strings.TrimSpace(org.Name) == "" {
				continue
			}
			if citationReferences(c, org) {
				r := &RankedOrganization{Name: org.Name, Entity: entity, FirstOffset: -1, CitationOnly: true}
				byEntity[entity] = r
				ranked = append(ranked, r)
			}
		}
	}

	out := make([]RankedOrganization, len(ranked))
	for i, r := range ranked {
		out[i] = *r
	}
	return out
}

// citationReferences reports whether a citation points at org by domain, or names it.
func citationReferences(c models.Citation, org models.Organization) bool {
	for _, d := range org.Domains {
		if sameBaseDomain(c.URL, d) {
			return true
		}
	}
	return citationNames(c, org)
}

// citationNames reports whether a citation's title names org on word boundaries, or the
// registrable label of its host is one of org's names with spaces and punctuation removed.
func citationNames(c models.Citation, org models.Organization) bool {
	if strings.TrimSpace(c.Title) != "" && newMentionMatcher([]string{org.Name}, [][]string{org.Names()}).Contains(c.Title) {
		return true
	}
	label := hostLabel(c.URL)
	if label == "" {
		return false
	}
	for _, name := range org.Names() {
		if compactName(name) == label {
			return true
		}
	}
	return false
}

// hostLabel returns the first label of a URL's eTLD+1, "dropbox" for https://www.dropbox.com/x.
func hostLabel(raw string) string {
	base := baseDomain(raw)
	if i := strings.IndexByte(base, '.'); i > 0 {
		return base[:i]
	}
	return base
}

func compactName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if isWordRune(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (e *citationExtractor) collectCitations(text string, sentences []span, engineCitations []models.EngineCitation, companyDomains []string) []models.Citation {
	var citations []models.Citation
	seen := make(map[string]bool)

	add := func(raw, title, snippet, source string) {
		cleaned, u, ok := normalizeURL(raw)
		if !ok {
			e.logger.Debug("skipping unparseable url", zap.String("url", raw))
			return
		}
		if seen[cleaned] {
			return
		}
		if isImagePath(u.Path) {
			e.logger.Debug("skipping image url", zap.String("url", cleaned))
			return
		}
		seen[cleaned] = true

		citationType := models.CitationTypeSecondary
		if isPrimaryDomain(cleaned, companyDomains) {
			citationType = models.CitationTypePrimary
		}
		citations = append(citations, models.Citation{
			URL:     cleaned,
			Title:   strings.TrimSpace(title),
			Snippet: truncateRunes(strings.TrimSpace(snippet), maxSnippetRunes),
			Domain:  u.Hostname(),
			Rank:    len(citations) + 1,
			Source:  source,
			Type:    citationType,
		})
	}

	for _, c := range engineCitations {
		snippet := c.Snippet
		if snippet == "" {
			if idx := strings.Index(text, strings.TrimSpace(c.URL)); idx >= 0 && c.URL != "" {
				if s, ok := sentenceAt(sentences, idx); ok {
					snippet = text[s.Start:s.End]
				}
			}
		}
		add(c.URL, c.Title, snippet, models.CitationSourceEngine)
	}

	// Strict only matches URLs with a scheme
	for _, loc := range xurls.Strict().FindAllStringIndex(text, -1) {
		snippet := ""
		if s, ok := sentenceAt(sentences, loc[0]); ok {
			snippet = text[s.Start:s.End]
		}
		add(text[loc[0]:loc[1]], markdownTitle(text, loc[0]), snippet, models.CitationSourceText)
	}

	return citations
}

// markdownTitle returns the link text of a "[title](url)" link whose url starts at offset.
// Bare numeric markers like "[1]" carry no title.
func markdownTitle(text string, offset int) string {
	if offset < 2 || text[offset-2:offset] != "](" {
		return ""
	}
	closing := offset - 2
	opening := strings.LastIndexByte(text[:closing], '[')
	if opening < 0 || strings.ContainsAny(text[opening+1:closing], "[]\n") {
		return ""
	}
	title := strings.TrimSpace(text[opening+1 : closing])
	if strings.Trim(title, "0123456789") == "" {
		return ""
	}
	return title
}

// normalizeURL lowercases the host, strips "www.", tracking parameters, the fragment and a
// trailing slash. Only http and https URLs are accepted.
func normalizeURL(raw string) (string, *url.URL, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil, false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", nil, false
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", nil, false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == "" {
		return "", nil, false
	}
	if port := u.Port(); port != "" {
		u.Host = host + ":" + port
	} else {
		u.Host = host
	}

	q := u.Query()
	for param := range q {
		lower := strings.ToLower(param)
		if strings.HasPrefix(lower, "utm_") || trackingParams[lower] {
			q.Del(param)
		}
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = strings.TrimRight(u.RawPath, "/")

	return u.String(), u, true
}

func isImagePath(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// baseDomain extracts the eTLD+1 of a URL or bare host.
func baseDomain(raw string) string {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == "" {
		return ""
	}
	base, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return base
}

func sameBaseDomain(a, b string) bool {
	ba, bb := baseDomain(a), baseDomain(b)
	return ba != "" && ba == bb
}

// isPrimaryDomain checks if a citation URL belongs to any of the company's domains
func isPrimaryDomain(citationURL string, domains []string) bool {
	for _, d := range domains {
		if sameBaseDomain(citationURL, d) {
			return true
		}
	}
	return false
}

// sortedUnique returns the distinct values of in, sorted.
func sortedUnique(in []string) []string {
	set := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !set[s] {
			set[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
