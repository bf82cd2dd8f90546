// Package search parses keyword queries and scores candidate records against
// them. It knows nothing about the knowledge base; callers hand it a name and
// a description per candidate.
package search

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Logic controls how multiple terms combine.
type Logic string

const (
	AND Logic = "AND"
	OR  Logic = "OR"
)

// ErrInvalidLogic is returned by ParseLogic for anything but AND or OR.
var ErrInvalidLogic = errors.New("invalid search logic")

// ParseLogic accepts "and"/"or" in any case. An empty string means AND.
func ParseLogic(s string) (Logic, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "AND":
		return AND, nil
	case "OR":
		return OR, nil
	}
	return "", fmt.Errorf("%w %q: must be AND or OR", ErrInvalidLogic, s)
}

// StopWords are dropped from the unquoted part of a query.
var StopWords = map[string]struct{}{
	"and": {}, "or": {}, "not": {}, "the": {}, "a": {},
	"an": {}, "is": {}, "are": {}, "was": {}, "were": {},
}

// MinTermLength is the shortest unquoted token (in runes) kept as a term.
const MinTermLength = 3

var (
	phrasePattern = regexp.MustCompile(`"([^"]+)"`)
	wordPattern   = regexp.MustCompile(`[\p{L}\p{N}_]+`)
)

// Query is a parsed search query. Terms and Phrases are lower-cased and
// free of duplicates.
type Query struct {
	Terms   []string `json:"terms"`
	Phrases []string `json:"phrases"`
}

// Len is the number of terms plus phrases.
func (q Query) Len() int { return len(q.Terms) + len(q.Phrases) }

// Empty reports whether the query has nothing to match.
func (q Query) Empty() bool { return q.Len() == 0 }

// Parse splits raw into quoted phrases and unquoted terms.
//
// Quoted substrings become phrases (lower-cased, trimmed) and are cut out of
// the text. What remains is lower-cased and split into runs of letters,
// digits and underscores; runs shorter than MinTermLength and stop words are
// dropped.
func Parse(raw string) Query {
	q := Query{Terms: []string{}, Phrases: []string{}}

	seen := make(map[string]bool)
	for _, m := range phrasePattern.FindAllStringSubmatch(raw, -1) {
		p := strings.TrimSpace(strings.ToLower(m[1]))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		q.Phrases = append(q.Phrases, p)
	}

	rest := strings.ToLower(phrasePattern.ReplaceAllString(raw, ""))
	seen = make(map[string]bool)
	for _, w := range wordPattern.FindAllString(rest, -1) {
		if utf8.RuneCountInString(w) < MinTermLength {
			continue
		}
		if _, stop := StopWords[w]; stop || seen[w] {
			continue
		}
		seen[w] = true
		q.Terms = append(q.Terms, w)
	}
	return q
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

// boundaryAt reports whether byte offset i of s sits between a word rune
// and a non-word rune (string edges count as non-word).
func boundaryAt(s string, i int) bool {
	before, after := false, false
	if i > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:i])
		before = isWordRune(r)
	}
	if i < len(s) {
		r, _ := utf8.DecodeRuneInString(s[i:])
		after = isWordRune(r)
	}
	return before != after
}

// containsWord reports whether needle occurs in text with a word boundary
// on both sides.
func containsWord(text, needle string) bool {
	if needle == "" {
		return false
	}
	for off := 0; off <= len(text); {
		i := strings.Index(text[off:], needle)
		if i < 0 {
			return false
		}
		start := off + i
		if boundaryAt(text, start) && boundaryAt(text, start+len(needle)) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		off = start + size
	}
	return false
}

// Contains tests needle against text, by word boundary or as a raw substring.
// Both arguments are expected to be lower-cased already.
func Contains(text, needle string, substring bool) bool {
	if substring {
		return needle != "" && strings.Contains(text, needle)
	}
	return containsWord(text, needle)
}
