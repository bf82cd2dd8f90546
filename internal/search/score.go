package search

import (
	"math"
	"strings"
)

// Weights are the scoring constants. DefaultWeights reproduces the ranking
// existing consumers expect; change them only deliberately.
type Weights struct {
	Both            int     // base when name and description both match
	NameOnly        int     // base when only the name matches
	DescriptionOnly int     // base when only the description matches
	Phrase          int     // counter increment for a phrase hit
	ORFloor         float64 // minimum OR coverage multiplier
}

var DefaultWeights = Weights{
	Both:            100,
	NameOnly:        50,
	DescriptionOnly: 10,
	Phrase:          2,
	ORFloor:         0.3,
}

// Scorer scores candidates against one parsed query.
type Scorer struct {
	Query     Query
	Logic     Logic
	Substring bool
	Weights   Weights
}

// NewScorer returns a Scorer using DefaultWeights.
func NewScorer(q Query, logic Logic, substring bool) Scorer {
	return Scorer{Query: q, Logic: logic, Substring: substring, Weights: DefaultWeights}
}

// Match is the breakdown behind a score.
type Match struct {
	NameHits        int `json:"name_hits"`
	DescriptionHits int `json:"description_hits"`
	Found           int `json:"found"`
	Requested       int `json:"requested"`
	Score           int `json:"score"`
}

// Score returns the relevance of a candidate, or 0 if it is rejected.
func (s Scorer) Score(name, description string) int {
	return s.Evaluate(name, description).Score
}

// Evaluate scores a candidate and reports how the score was reached.
func (s Scorer) Evaluate(name, description string) Match {
	name = strings.ToLower(name)
	description = strings.ToLower(description)

	m := Match{Requested: s.Query.Len()}
	if m.Requested == 0 {
		return m
	}

	for _, term := range s.Query.Terms {
		inName := Contains(name, term, s.Substring)
		inDesc := Contains(description, term, s.Substring)
		if inName {
			m.NameHits++
		}
		if inDesc {
			m.DescriptionHits++
		}
		if inName || inDesc {
			m.Found++
		}
	}
	for _, phrase := range s.Query.Phrases {
		inName := Contains(name, phrase, s.Substring)
		inDesc := Contains(description, phrase, s.Substring)
		if inName {
			m.NameHits += s.Weights.Phrase
		}
		if inDesc {
			m.DescriptionHits += s.Weights.Phrase
		}
		if inName || inDesc {
			m.Found++
		}
	}

	switch s.Logic {
	case OR:
		if m.Found == 0 {
			return m
		}
	default:
		if m.Found < m.Requested {
			return m
		}
	}

	var base int
	switch {
	case m.NameHits > 0 && m.DescriptionHits > 0:
		base = s.Weights.Both + m.NameHits + m.DescriptionHits
	case m.NameHits > 0:
		base = s.Weights.NameOnly + m.NameHits
	case m.DescriptionHits > 0:
		base = s.Weights.DescriptionOnly + m.DescriptionHits
	}

	if s.Logic == OR && m.Requested > 1 {
		coverage := math.Max(s.Weights.ORFloor, float64(m.Found)/float64(m.Requested))
		base = int(float64(base) * coverage)
	}
	m.Score = base
	return m
}
