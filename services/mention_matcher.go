package services

import (
	"sort"
	"strings"
	"unicode"
)

// Mention is one kept occurrence of a known name in the response text.
// Start and End are byte offsets into the original text.
type Mention struct {
	Entity int
	Name   string
	Start  int
	End    int
}

// foldedText is a rune-wise lowercase view of a string with a map back to byte offsets.
type foldedText struct {
	runes   []rune
	offsets []int // offsets[i] is the byte offset of runes[i]; offsets[len(runes)] == len(src)
}

func foldText(s string) foldedText {
	f := foldedText{
		runes:   make([]rune, 0, len(s)),
		offsets: make([]int, 0, len(s)+1),
	}
	for i, r := range s {
		f.runes = append(f.runes, unicode.ToLower(r))
		f.offsets = append(f.offsets, i)
	}
	f.offsets = append(f.offsets, len(s))
	return f
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

type trieNode struct {
	next map[rune]*trieNode
	// terminal entries ending at this node, in registration order
	entities []int
}

// mentionMatcher finds non-overlapping occurrences of a fixed set of names.
// Each entity may have several spellings; all are folded into one trie, so a scan
// costs O(len(text) x longest name) regardless of how many names are registered.
type mentionMatcher struct {
	root  *trieNode
	names []string
}

// newMentionMatcher indexes spellings[i] as names of entity i, whose display name is names[i].
func newMentionMatcher(names []string, spellings [][]string) *mentionMatcher {
	m := &mentionMatcher{root: &trieNode{}, names: names}
	for entity, forms := range spellings {
		seen := make(map[string]bool)
		for _, form := range forms {
			form = strings.TrimSpace(form)
			if form == "" {
				continue
			}
			key := strings.ToLower(form)
			if seen[key] {
				continue
			}
			seen[key] = true

			node := m.root
			for _, r := range key {
				r = unicode.ToLower(r)
				if node.next == nil {
					node.next = make(map[rune]*trieNode)
				}
				child, ok := node.next[r]
				if !ok {
					child = &trieNode{}
					node.next[r] = child
				}
				node = child
			}
			node.entities = append(node.entities, entity)
		}
	}
	return m
}

type interval struct {
	start, end int // rune indexes, end exclusive
	entity     int
}

// Find returns the kept mentions in text order. Candidate intervals are sorted by start
// and then by length (longest first) and swept greedily, so a longer name wins over a
// name it contains and overlapping candidates never both count.
func (m *mentionMatcher) Find(text string) []Mention {
	f := foldText(text)
	candidates := m.candidates(f)

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.start != b.start {
			return a.start < b.start
		}
		if la, lb := a.end-a.start, b.end-b.start; la != lb {
			return la > lb
		}
		return a.entity < b.entity
	})

	var kept []Mention
	lastEnd := 0
	for _, c := range candidates {
		if c.start < lastEnd {
			continue
		}
		kept = append(kept, Mention{
			Entity: c.entity,
			Name:   m.names[c.entity],
			Start:  f.offsets[c.start],
			End:    f.offsets[c.end],
		})
		lastEnd = c.end
	}
	return kept
}

func (m *mentionMatcher) candidates(f foldedText) []interval {
	var out []interval
	n := len(f.runes)
	for start := 0; start < n; start++ {
		// A name starting with a word rune must not continue a preceding word
		leftBlocked := start > 0 && isWordRune(f.runes[start-1])

		node := m.root
		for i := start; i < n && node != nil; i++ {
			node = node.next[f.runes[i]]
			if node == nil || len(node.entities) == 0 {
				continue
			}
			end := i + 1
			if leftBlocked && isWordRune(f.runes[start]) {
				continue
			}
			if end < n && isWordRune(f.runes[end]) && isWordRune(f.runes[i]) {
				continue
			}
			for _, entity := range node.entities {
				out = append(out, interval{start: start, end: end, entity: entity})
			}
		}
	}
	return out
}

// Contains reports whether any spelling of any entity occurs in text on word boundaries.
func (m *mentionMatcher) Contains(text string) bool {
	return len(m.candidates(foldText(text))) > 0
}
