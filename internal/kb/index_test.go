package kb

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestBuildIndices_Fixture(t *testing.T) {
	kb := testKB(t)
	want := Indices{
		WeaknessToTechniques: map[string][]string{
			"W1001": {"T1001"},
			"W1002": {"T1001"},
			"W1003": {"T1001", "T1002"},
		},
		MitigationToWeaknesses: map[string][]string{
			"M1001": {"W1003"},
		},
		MitigationToTechniques: map[string][]string{
			"M1001": {"T1001", "T1002"},
		},
	}
	if diff := cmp.Diff(want, kb.Indices()); diff != "" {
		t.Errorf("indices (-want +got):\n%s", diff)
	}
}

// checkBidirectional asserts the reverse tables agree with the forward edges
// in both directions, including the derived mitigation to technique relation.
func checkBidirectional(t *testing.T, techniques map[string]Technique, weaknesses map[string]Weakness) {
	t.Helper()
	ix := BuildIndices(techniques, weaknesses)

	for _, tech := range techniques {
		for _, wid := range tech.Weaknesses {
			if !contains(ix.WeaknessToTechniques[wid], tech.ID) {
				t.Errorf("%s -> %s missing from weakness_to_techniques", tech.ID, wid)
			}
		}
	}
	for wid, tids := range ix.WeaknessToTechniques {
		for _, tid := range tids {
			if !contains(techniques[tid].Weaknesses, wid) {
				t.Errorf("weakness_to_techniques[%s] has %s without a forward edge", wid, tid)
			}
		}
	}

	for _, w := range weaknesses {
		for _, mid := range w.Mitigations {
			if !contains(ix.MitigationToWeaknesses[mid], w.ID) {
				t.Errorf("%s -> %s missing from mitigation_to_weaknesses", w.ID, mid)
			}
		}
	}
	for mid, wids := range ix.MitigationToWeaknesses {
		for _, wid := range wids {
			if !contains(weaknesses[wid].Mitigations, mid) {
				t.Errorf("mitigation_to_weaknesses[%s] has %s without a forward edge", mid, wid)
			}
		}
	}

	// mitigation_to_techniques is the composition of the two forward edges.
	want := make(map[string][]string)
	for mid := range ix.MitigationToWeaknesses {
		want[mid] = []string{}
	}
	for _, tid := range sortedKeys(techniques) {
		for _, wid := range techniques[tid].Weaknesses {
			for _, mid := range weaknesses[wid].Mitigations {
				if !contains(want[mid], tid) {
					want[mid] = append(want[mid], tid)
				}
			}
		}
	}
	if diff := cmp.Diff(want, ix.MitigationToTechniques, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("mitigation_to_techniques (-composed +indexed):\n%s", diff)
	}
}

func TestBuildIndices_Bidirectional(t *testing.T) {
	t.Run("fixture", func(t *testing.T) {
		kb := testKB(t)
		techniques := make(map[string]Technique)
		for _, tech := range kb.Techniques() {
			techniques[tech.ID] = tech
		}
		weaknesses := make(map[string]Weakness)
		for _, w := range kb.Weaknesses() {
			weaknesses[w.ID] = w
		}
		checkBidirectional(t, techniques, weaknesses)
	})

	t.Run("shared and dangling edges", func(t *testing.T) {
		techniques := map[string]Technique{
			"T1001": {ID: "T1001", Weaknesses: []string{"W1001", "W1002", "W1999"}},
			"T1002": {ID: "T1002", Weaknesses: []string{"W1002", "W1003"}},
			"T1003": {ID: "T1003", Weaknesses: []string{"W1003"}},
			"T1004": {ID: "T1004"},
		}
		weaknesses := map[string]Weakness{
			"W1001": {ID: "W1001", Mitigations: []string{"M1001", "M1002"}},
			"W1002": {ID: "W1002", Mitigations: []string{"M1002"}},
			"W1003": {ID: "W1003", Mitigations: []string{"M1003", "M1999"}},
			"W1004": {ID: "W1004", Mitigations: []string{"M1004"}},
		}
		checkBidirectional(t, techniques, weaknesses)
	})
}

func TestBuildIndices_CountConservation(t *testing.T) {
	techniques := map[string]Technique{
		"T1": {ID: "T1", Weaknesses: []string{"W1", "W1", "W2"}},
		"T2": {ID: "T2", Weaknesses: []string{"W2"}},
	}
	weaknesses := map[string]Weakness{
		"W1": {ID: "W1", Mitigations: []string{"M1", "M1"}},
		"W2": {ID: "W2", Mitigations: []string{"M1", "M2"}},
	}
	ix := BuildIndices(techniques, weaknesses)

	if got := EdgeCount(ix.WeaknessToTechniques); got != 4 {
		t.Errorf("weakness_to_techniques edges = %d, want 4", got)
	}
	if got := EdgeCount(ix.MitigationToWeaknesses); got != 4 {
		t.Errorf("mitigation_to_weaknesses edges = %d, want 4", got)
	}
	if diff := cmp.Diff([]string{"T1", "T1"}, ix.WeaknessToTechniques["W1"]); diff != "" {
		t.Errorf("W1 (-want +got):\n%s", diff)
	}
	// set union: no duplicates
	if diff := cmp.Diff([]string{"T1", "T2"}, ix.MitigationToTechniques["M1"]); diff != "" {
		t.Errorf("M1 (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"T1", "T2"}, ix.MitigationToTechniques["M2"]); diff != "" {
		t.Errorf("M2 (-want +got):\n%s", diff)
	}
}

func TestBuildIndices_Idempotent(t *testing.T) {
	kb := testKB(t)
	a := BuildIndices(kb.techniques, kb.weaknesses)
	b := BuildIndices(kb.techniques, kb.weaknesses)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("rebuild differs (-first +second):\n%s", diff)
	}
}

func TestBuildIndices_Empty(t *testing.T) {
	ix := BuildIndices(nil, nil)
	if ix.WeaknessToTechniques == nil || ix.MitigationToWeaknesses == nil || ix.MitigationToTechniques == nil {
		t.Errorf("tables should be non-nil: %+v", ix)
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
