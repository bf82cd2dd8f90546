package kb

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/solve-it-project/solveit/internal/search"
	"github.com/solve-it-project/solveit/internal/store"
)

type scored struct {
	ID    string
	Score int
}

func techniqueHits(hits []Hit[Technique]) []scored {
	out := make([]scored, len(hits))
	for i, h := range hits {
		out[i] = scored{h.Item.ID, h.Score}
	}
	return out
}

func weaknessHits(hits []Hit[Weakness]) []scored {
	out := make([]scored, len(hits))
	for i, h := range hits {
		out[i] = scored{h.Item.ID, h.Score}
	}
	return out
}

func mitigationHits(hits []Hit[Mitigation]) []scored {
	out := make([]scored, len(hits))
	for i, h := range hits {
		out[i] = scored{h.Item.ID, h.Score}
	}
	return out
}

func mustSearch(t *testing.T, kb *KnowledgeBase, q string, opts SearchOptions) Results {
	t.Helper()
	res, err := kb.Search(context.Background(), q, opts)
	if err != nil {
		t.Fatalf("Search(%q) error: %v", q, err)
	}
	return res
}

// ─── Ranking ─────────────────────────────────────────────────────────────────

func TestSearch_Tiers(t *testing.T) {
	kb := testKB(t)
	res := mustSearch(t, kb, "disk", SearchOptions{})

	want := []scored{{"T1001", 51}, {"T1002", 11}}
	if diff := cmp.Diff(want, techniqueHits(res.Techniques)); diff != "" {
		t.Errorf("techniques (-want +got):\n%s", diff)
	}
	if len(res.Weaknesses) != 0 || len(res.Mitigations) != 0 {
		t.Errorf("unexpected hits: %+v", res)
	}
}

func TestSearch_AllKinds(t *testing.T) {
	kb := testKB(t)
	res := mustSearch(t, kb, "memory", SearchOptions{})

	if diff := cmp.Diff([]scored{{"T1002", 102}}, techniqueHits(res.Techniques)); diff != "" {
		t.Errorf("techniques (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]scored{{"W1003", 102}}, weaknessHits(res.Weaknesses)); diff != "" {
		t.Errorf("weaknesses (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]scored{{"M1002", 11}}, mitigationHits(res.Mitigations)); diff != "" {
		t.Errorf("mitigations (-want +got):\n%s", diff)
	}
	if res.Total() != 3 {
		t.Errorf("Total = %d, want 3", res.Total())
	}
}

func TestSearch_TiesKeepIDOrder(t *testing.T) {
	kb := testKB(t)
	res := mustSearch(t, kb, "imaging", SearchOptions{})

	want := []scored{{"T1001", 51}, {"T1003", 51}}
	if diff := cmp.Diff(want, techniqueHits(res.Techniques)); diff != "" {
		t.Errorf("techniques (-want +got):\n%s", diff)
	}
}

func TestSearch_Logic(t *testing.T) {
	kb := testKB(t)

	and := mustSearch(t, kb, "disk copy", SearchOptions{})
	if diff := cmp.Diff([]scored{{"T1001", 102}}, techniqueHits(and.Techniques)); diff != "" {
		t.Errorf("AND (-want +got):\n%s", diff)
	}

	or := mustSearch(t, kb, "disk copy", SearchOptions{Logic: "or"})
	want := []scored{{"T1001", 102}, {"T1002", 5}, {"T1003", 5}}
	if diff := cmp.Diff(want, techniqueHits(or.Techniques)); diff != "" {
		t.Errorf("OR (-want +got):\n%s", diff)
	}
}

func TestSearch_Phrase(t *testing.T) {
	kb := testKB(t)
	res := mustSearch(t, kb, `"bit-for-bit copy"`, SearchOptions{})
	if diff := cmp.Diff([]scored{{"T1001", 12}}, techniqueHits(res.Techniques)); diff != "" {
		t.Errorf("techniques (-want +got):\n%s", diff)
	}
}

func TestSearch_Substring(t *testing.T) {
	kb := testKB(t)
	opts := SearchOptions{Kinds: []store.Kind{store.Techniques}}

	if res := mustSearch(t, kb, "acqui", opts); len(res.Techniques) != 0 {
		t.Errorf("whole-word search matched %v", techniqueHits(res.Techniques))
	}
	opts.Substring = true
	res := mustSearch(t, kb, "acqui", opts)
	if diff := cmp.Diff([]scored{{"T1002", 51}}, techniqueHits(res.Techniques)); diff != "" {
		t.Errorf("substring (-want +got):\n%s", diff)
	}
}

func TestSearch_Kinds(t *testing.T) {
	kb := testKB(t)
	res := mustSearch(t, kb, "memory", SearchOptions{Kinds: []store.Kind{store.Weaknesses}})

	if res.Techniques == nil || res.Mitigations == nil {
		t.Fatal("unsearched kinds should be empty, not nil")
	}
	if len(res.Techniques) != 0 || len(res.Mitigations) != 0 || len(res.Weaknesses) != 1 {
		t.Errorf("res = %+v", res)
	}

	res = mustSearch(t, kb, "memory", SearchOptions{Kinds: []store.Kind{}})
	if res.Total() != 0 {
		t.Errorf("empty kind list should search nothing, got %d hits", res.Total())
	}
}

func TestSearch_Weights(t *testing.T) {
	kb := testKB(t)
	w := search.DefaultWeights
	w.NameOnly = 500
	res := mustSearch(t, kb, "disk", SearchOptions{Weights: &w})
	if diff := cmp.Diff([]scored{{"T1001", 501}, {"T1002", 11}}, techniqueHits(res.Techniques)); diff != "" {
		t.Errorf("techniques (-want +got):\n%s", diff)
	}
}

// ─── Edge cases ──────────────────────────────────────────────────────────────

func TestSearch_EmptyQuery(t *testing.T) {
	kb := testKB(t)
	for _, q := range []string{"", "   ", "a of", `""`} {
		res := mustSearch(t, kb, q, SearchOptions{})
		want := Results{Techniques: []Hit[Technique]{}, Weaknesses: []Hit[Weakness]{}, Mitigations: []Hit[Mitigation]{}}
		if diff := cmp.Diff(want, res); diff != "" {
			t.Errorf("Search(%q) (-want +got):\n%s", q, diff)
		}
	}
}

func TestSearch_InvalidLogic(t *testing.T) {
	kb := testKB(t)
	for _, q := range []string{"disk", ""} {
		_, err := kb.Search(context.Background(), q, SearchOptions{Logic: "XOR"})
		if !errors.Is(err, ErrInvalidSearchParameters) {
			t.Errorf("Search(%q) err = %v, want ErrInvalidSearchParameters", q, err)
		}
		if !errors.Is(err, search.ErrInvalidLogic) {
			t.Errorf("Search(%q) err = %v, want to wrap ErrInvalidLogic", q, err)
		}
	}
}
