package services

import (
	"math"
	"strings"
	"unicode/utf8"
)

var positiveTerms = map[string]bool{
	"best": true, "leading": true, "top": true, "reliable": true, "excellent": true,
	"great": true, "strong": true, "trusted": true, "innovative": true, "recommended": true,
	"popular": true, "robust": true, "affordable": true, "efficient": true, "outstanding": true,
	"good": true, "secure": true, "easy": true, "fast": true, "powerful": true,
	"praised": true, "favorite": true, "preferred": true, "superior": true, "impressive": true,
	"seamless": true, "intuitive": true, "scalable": true, "proven": true, "excels": true,
}

var negativeTerms = map[string]bool{
	"poor": true, "bad": true, "worst": true, "expensive": true, "unreliable": true,
	"slow": true, "weak": true, "outdated": true, "struggled": true, "struggles": true,
	"complaints": true, "issues": true, "problems": true, "outages": true, "lacking": true,
	"limited": true, "difficult": true, "buggy": true, "overpriced": true, "criticized": true,
	"concerns": true, "risky": true, "insecure": true, "declining": true, "inferior": true,
	"clunky": true, "confusing": true, "lags": true, "fails": true, "drawbacks": true,
}

var negators = map[string]bool{
	"not": true, "no": true, "never": true, "isn't": true, "aren't": true, "wasn't": true,
	"doesn't": true, "don't": true, "hardly": true, "isn’t": true, "doesn’t": true, "don’t": true,
}

// negationWindow is how many tokens a negator reaches forward
const negationWindow = 3

// sentimentCounts tallies lexicon hits, flipping a term that closely follows a negator.
func sentimentCounts(text string) (pos, neg int) {
	pending := 0
	for _, tok := range tokenize(text) {
		if negators[tok] {
			pending = negationWindow
			continue
		}
		isPos, isNeg := positiveTerms[tok], negativeTerms[tok]
		if pending > 0 && (isPos || isNeg) {
			isPos, isNeg = isNeg, isPos
			pending = 0
		} else if pending > 0 {
			pending--
		}
		if isPos {
			pos++
		}
		if isNeg {
			neg++
		}
	}
	return pos, neg
}

// scoreSentiment maps lexicon counts onto 0..1 with 0.5 as neutral.
func scoreSentiment(segments []string) float64 {
	pos, neg := 0, 0
	for _, s := range segments {
		p, n := sentimentCounts(s)
		pos += p
		neg += n
	}
	if pos+neg == 0 {
		return 0.5
	}
	return round4(0.5 + 0.5*float64(pos-neg)/float64(pos+neg))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// endorsementPhrases mark explicit recommendations
var endorsementPhrases = []string{
	"recommend", "top pick", "best choice", "best option", "stands out", "go with", "leading choice",
}

// endorsementInflections are the endings a phrase may run into and still count
var endorsementInflections = map[string][]string{
	"recommend": {"ed", "s"},
}

// matchEndorsements returns the endorsement phrases found in text, in list order. A phrase
// must stand as whole words and must not closely follow a negator.
func matchEndorsements(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, phrase := range endorsementPhrases {
		for from := 0; from < len(lower); {
			idx := strings.Index(lower[from:], phrase)
			if idx < 0 {
				break
			}
			start := from + idx
			from = start + 1
			if !boundaryBefore(lower, start) || !phraseEnds(lower, start+len(phrase), phrase) {
				continue
			}
			if negatedBefore(lower[:start]) {
				continue
			}
			found = append(found, phrase)
			break
		}
	}
	return found
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}

func phraseEnds(s string, end int, phrase string) bool {
	if boundaryAfter(s, end) {
		return true
	}
	for _, suffix := range endorsementInflections[phrase] {
		if strings.HasPrefix(s[end:], suffix) && boundaryAfter(s, end+len(suffix)) {
			return true
		}
	}
	return false
}

// negatedBefore reports whether one of the last negationWindow words of prefix is a negator.
func negatedBefore(prefix string) bool {
	toks := tokenize(prefix)
	if len(toks) > negationWindow {
		toks = toks[len(toks)-negationWindow:]
	}
	for _, tok := range toks {
		if negators[tok] {
			return true
		}
	}
	return false
}
