package search

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func score(raw string, logic Logic, substring bool, name, desc string) int {
	return NewScorer(Parse(raw), logic, substring).Score(name, desc)
}

// ─── Tiers ───────────────────────────────────────────────────────────────────

func TestScore_Tiers(t *testing.T) {
	a := score("disk", AND, false, "Disk imaging", "Create a disk image")
	b := score("disk", AND, false, "Disk imaging", "Copy everything")
	c := score("disk", AND, false, "Imaging", "Uses a disk")

	if a != 102 || b != 51 || c != 11 {
		t.Fatalf("scores = %d/%d/%d, want 102/51/11", a, b, c)
	}
	if !(a > b && b > c && c > 0) {
		t.Errorf("expected a > b > c > 0, got %d %d %d", a, b, c)
	}
}

func TestScore_NoMatch(t *testing.T) {
	if got := score("memory", AND, false, "Disk imaging", "Create a disk image"); got != 0 {
		t.Errorf("score = %d, want 0", got)
	}
}

func TestScore_EmptyQuery(t *testing.T) {
	m := NewScorer(Parse(""), AND, false).Evaluate("anything", "at all")
	if diff := cmp.Diff(Match{}, m); diff != "" {
		t.Errorf("empty query should not match (-want +got):\n%s", diff)
	}
}

// ─── Logic ───────────────────────────────────────────────────────────────────

func TestScore_ANDvsOR(t *testing.T) {
	q := "alpha beta nonexistent"
	if got := score(q, AND, false, "alpha beta", ""); got != 0 {
		t.Errorf("AND score = %d, want 0", got)
	}
	// base 50+2 scaled by 2/3
	if got := score(q, OR, false, "alpha beta", ""); got != 34 {
		t.Errorf("OR score = %d, want 34", got)
	}
}

func TestScore_ORFloor(t *testing.T) {
	// one of five found: coverage 0.2 is lifted to 0.3
	if got := score("alpha bravo charlie delta echo", OR, false, "alpha", ""); got != 15 {
		t.Errorf("score = %d, want 15", got)
	}
}

func TestScore_ORSingleTermUnscaled(t *testing.T) {
	if got := score("alpha", OR, false, "alpha", ""); got != 51 {
		t.Errorf("score = %d, want 51", got)
	}
}

func TestScore_ORFullCoverage(t *testing.T) {
	if got := score("alpha bravo", OR, false, "alpha bravo", "bravo"); got != 103 {
		t.Errorf("score = %d, want 103", got)
	}
}

// ─── Phrases ─────────────────────────────────────────────────────────────────

func TestScore_PhraseWeighting(t *testing.T) {
	phrase := score(`"disk imaging"`, AND, false, "Disk imaging tool", "")
	single := score("disk imaging", OR, false, "Disk wipe", "")
	if phrase != 52 {
		t.Errorf("phrase score = %d, want 52", phrase)
	}
	if single != 25 {
		t.Errorf("single-word score = %d, want 25", single)
	}
	if phrase <= single {
		t.Errorf("phrase match (%d) should outrank single-word match (%d)", phrase, single)
	}
}

func TestScore_PhraseBothFields(t *testing.T) {
	m := NewScorer(Parse(`"disk image"`), AND, false).Evaluate("Disk image", "The disk image is verified")
	want := Match{NameHits: 2, DescriptionHits: 2, Found: 1, Requested: 1, Score: 104}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("Evaluate mismatch (-want +got):\n%s", diff)
	}
}

func TestScore_PhraseMustBeContiguous(t *testing.T) {
	if got := score(`"disk imaging"`, AND, false, "Imaging a disk", ""); got != 0 {
		t.Errorf("score = %d, want 0", got)
	}
}

// ─── Matching mode ───────────────────────────────────────────────────────────

func TestScore_SubstringMode(t *testing.T) {
	if got := score("disk", AND, false, "Diskette", ""); got != 0 {
		t.Errorf("word mode score = %d, want 0", got)
	}
	if got := score("disk", AND, true, "Diskette", ""); got != 51 {
		t.Errorf("substring mode score = %d, want 51", got)
	}
}

func TestScore_CaseInsensitive(t *testing.T) {
	if got := score("MEMORY", AND, false, "Live MEMORY capture", ""); got != 51 {
		t.Errorf("score = %d, want 51", got)
	}
}

func TestScore_CustomWeights(t *testing.T) {
	s := NewScorer(Parse("disk"), AND, false)
	s.Weights = Weights{Both: 1000, NameOnly: 500, DescriptionOnly: 100, Phrase: 3, ORFloor: 0.5}
	if got := s.Score("disk", "disk"); got != 1002 {
		t.Errorf("score = %d, want 1002", got)
	}
}
