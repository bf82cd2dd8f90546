package kb

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/solve-it-project/solveit/internal/search"
	"github.com/solve-it-project/solveit/internal/store"
)

// Hit is one ranked search result.
type Hit[T any] struct {
	Item  T   `json:"item"`
	Score int `json:"score"`
}

// Results holds ranked hits per kind. Every slice is non-nil.
type Results struct {
	Techniques  []Hit[Technique]  `json:"techniques"`
	Weaknesses  []Hit[Weakness]   `json:"weaknesses"`
	Mitigations []Hit[Mitigation] `json:"mitigations"`
}

// Total counts hits across all kinds.
func (r Results) Total() int {
	return len(r.Techniques) + len(r.Weaknesses) + len(r.Mitigations)
}

func emptyResults() Results {
	return Results{
		Techniques:  []Hit[Technique]{},
		Weaknesses:  []Hit[Weakness]{},
		Mitigations: []Hit[Mitigation]{},
	}
}

// SearchOptions narrows and tunes a search.
type SearchOptions struct {
	// Kinds restricts the kinds searched; nil searches all three.
	Kinds []store.Kind
	// Substring matches terms as raw substrings instead of whole words.
	Substring bool
	// Logic is "AND" (default) or "OR", case-insensitive.
	Logic string
	// Weights overrides search.DefaultWeights when set.
	Weights *search.Weights
}

func (o SearchOptions) wants(k store.Kind) bool {
	if o.Kinds == nil {
		return true
	}
	for _, want := range o.Kinds {
		if want == k {
			return true
		}
	}
	return false
}

// Search ranks techniques, weaknesses and mitigations against query by their
// name and description. Hits are ordered by descending score; ties keep id
// order. An unknown Logic returns ErrInvalidSearchParameters; an empty
// query returns empty results.
func (kb *KnowledgeBase) Search(ctx context.Context, query string, opts SearchOptions) (Results, error) {
	_, span := kb.tracer.Start(ctx, "kb.Search", trace.WithAttributes(
		attribute.String("search.query", query),
		attribute.String("search.logic", opts.Logic),
		attribute.Bool("search.substring", opts.Substring),
	))
	defer span.End()

	logic, err := search.ParseLogic(opts.Logic)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrInvalidSearchParameters, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid search parameters")
		return Results{}, err
	}

	res := emptyResults()
	q := search.Parse(query)
	if q.Empty() {
		span.SetAttributes(attribute.Int("search.hits", 0))
		return res, nil
	}

	scorer := search.NewScorer(q, logic, opts.Substring)
	if opts.Weights != nil {
		scorer.Weights = *opts.Weights
	}

	if opts.wants(store.Techniques) {
		res.Techniques = rank(kb.techniqueIDs, kb.techniques, scorer, func(t Technique) (string, string) {
			return t.Name, t.Description
		})
	}
	if opts.wants(store.Weaknesses) {
		res.Weaknesses = rank(kb.weaknessIDs, kb.weaknesses, scorer, func(w Weakness) (string, string) {
			return w.Name, w.Description
		})
	}
	if opts.wants(store.Mitigations) {
		res.Mitigations = rank(kb.mitigationIDs, kb.mitigations, scorer, func(m Mitigation) (string, string) {
			return m.Name, m.Description
		})
	}

	span.SetAttributes(
		attribute.Int("search.terms", len(q.Terms)),
		attribute.Int("search.phrases", len(q.Phrases)),
		attribute.Int("search.hits", res.Total()),
	)
	kb.logger.Debug().
		Str("query", query).
		Str("logic", string(logic)).
		Int("hits", res.Total()).
		Msg("search")
	return res, nil
}

func rank[T any](ids []string, table map[string]T, s search.Scorer, text func(T) (string, string)) []Hit[T] {
	hits := make([]Hit[T], 0)
	for _, id := range ids {
		item := table[id]
		name, desc := text(item)
		if score := s.Score(name, desc); score > 0 {
			hits = append(hits, Hit[T]{Item: item, Score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	return hits
}
