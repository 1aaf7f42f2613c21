package services

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxSnippetRunes = 280

// span is a half-open byte range of the response text
type span struct {
	Start int
	End   int
}

func (s span) contains(offset int) bool {
	return offset >= s.Start && offset < s.End
}

// splitSentences cuts text at '.', '!' or '?' followed by whitespace, and at line breaks.
// Spans exclude surrounding whitespace; empty sentences are dropped.
func splitSentences(text string) []span {
	var out []span
	start := 0
	emit := func(end int) {
		s := span{Start: start, End: end}
		for s.Start < s.End {
			r, size := utf8.DecodeRuneInString(text[s.Start:])
			if !unicode.IsSpace(r) {
				break
			}
			s.Start += size
		}
		for s.End > s.Start {
			r, size := utf8.DecodeLastRuneInString(text[:s.End])
			if !unicode.IsSpace(r) {
				break
			}
			s.End -= size
		}
		if s.End > s.Start {
			out = append(out, s)
		}
	}

	for i, r := range text {
		switch r {
		case '\n':
			emit(i)
			start = i + 1
		case '.', '!', '?':
			next := i + 1
			if next >= len(text) {
				continue
			}
			nr, _ := utf8.DecodeRuneInString(text[next:])
			if unicode.IsSpace(nr) {
				emit(next)
				start = next
			}
		}
	}
	emit(len(text))
	return out
}

// sentenceAt returns the sentence containing offset, or false.
func sentenceAt(sentences []span, offset int) (span, bool) {
	for _, s := range sentences {
		if s.contains(offset) {
			return s, true
		}
	}
	return span{}, false
}

// tokenize lowercases text and splits it into words, keeping inner apostrophes.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isWordRune(r) && r != '\'' && r != '’'
	})
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max-1])) + "…"
}
