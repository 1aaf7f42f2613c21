package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// RankList is the ordered sequence of organizations by first mention in a response.
// Its text form joins names with "," and escapes "," and "\" with a backslash. Names must be
// non-empty: RankList{""} and RankList{} share the text form "", so Value rejects blank names.
type RankList []string

func (r RankList) String() string {
	var b strings.Builder
	for i, name := range r {
		if i > 0 {
			b.WriteByte(',')
		}
		for _, ch := range name {
			if ch == ',' || ch == '\\' {
				b.WriteByte('\\')
			}
			b.WriteRune(ch)
		}
	}
	return b.String()
}

// Position returns the 1-based position of name (case-insensitive), or 0 when absent.
func (r RankList) Position(name string) int {
	for i, entry := range r {
		if strings.EqualFold(entry, name) {
			return i + 1
		}
	}
	return 0
}

// ParseRankList is the inverse of RankList.String.
func ParseRankList(s string) RankList {
	if s == "" {
		return RankList{}
	}
	out := RankList{}
	var cur strings.Builder
	escaped := false
	for _, ch := range s {
		switch {
		case escaped:
			cur.WriteRune(ch)
			escaped = false
		case ch == '\\':
			escaped = true
		case ch == ',':
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(ch)
		}
	}
	return append(out, cur.String())
}

// Validate reports the first blank name.
func (r RankList) Validate() error {
	for i, name := range r {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("rank list entry %d is blank", i)
		}
	}
	return nil
}

func (r RankList) Value() (driver.Value, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r.String(), nil
}

func (r *RankList) Scan(src interface{}) error {
	raw, err := scanBytes(src)
	if err != nil {
		return err
	}
	*r = ParseRankList(string(raw))
	return nil
}

// MarshalJSON renders the rank list as an array so API consumers need not parse the text form.
func (r RankList) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(r))
}
