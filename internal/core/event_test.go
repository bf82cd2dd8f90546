package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

// ─── KBEvent ────────────────────────────────────────────────────────────────

func TestNewKBEvent_Fields(t *testing.T) {
	base := loadFixtureKB(t)
	before := time.Now().UTC()
	ev := NewKBEvent(EventLoaded, base)

	if _, err := uuid.Parse(ev.ID); err != nil {
		t.Errorf("ID %q is not a uuid: %v", ev.ID, err)
	}
	if ev.Timestamp.Before(before.Add(-time.Second)) {
		t.Errorf("Timestamp %v too old", ev.Timestamp)
	}
	if ev.Type != EventLoaded {
		t.Errorf("Type = %q", ev.Type)
	}
	if ev.Mapping != "solve-it.json" {
		t.Errorf("Mapping = %q, want solve-it.json", ev.Mapping)
	}
	if ev.Stats.Techniques != 2 || ev.Stats.Weaknesses != 1 || ev.Stats.Mitigations != 1 {
		t.Errorf("Stats = %+v", ev.Stats)
	}
	if ev.Source == "" {
		t.Error("Source should name the record store")
	}
	if ev.Details == nil {
		t.Error("Details should be initialised")
	}
}

func TestNewKBEvent_NilBase(t *testing.T) {
	ev := NewKBEvent(EventReloaded, nil)
	if ev.Source != "" || ev.Mapping != "" || ev.Stats.Techniques != 0 {
		t.Errorf("expected empty description, got %+v", ev)
	}
}

func TestNewKBEvent_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewKBEvent(EventLoaded, nil).ID
		if seen[id] {
			t.Fatalf("duplicate event id %s", id)
		}
		seen[id] = true
	}
}

func TestKBEvent_Subject(t *testing.T) {
	cases := []struct {
		typ  EventType
		want string
	}{
		{EventLoaded, "kb.events.loaded"},
		{EventReloaded, "kb.events.reloaded"},
		{EventMappingSwitched, "kb.events.mapping_switched"},
	}
	for _, tc := range cases {
		if got := NewKBEvent(tc.typ, nil).Subject(); got != tc.want {
			t.Errorf("Subject(%s) = %q, want %q", tc.typ, got, tc.want)
		}
	}
}

func TestKBEvent_MarshalUnmarshal(t *testing.T) {
	ev := NewKBEvent(EventMappingSwitched, loadFixtureKB(t))
	ev.Details["previous"] = "carrier.json"

	data, err := ev.Marshal()
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	got, err := UnmarshalKBEvent(data)
	if err != nil {
		t.Fatalf("UnmarshalKBEvent error: %v", err)
	}
	if got.ID != ev.ID || got.Type != ev.Type || got.Mapping != ev.Mapping {
		t.Errorf("got %+v, want %+v", got, ev)
	}
	if got.Stats.Techniques != ev.Stats.Techniques {
		t.Errorf("Stats.Techniques = %d, want %d", got.Stats.Techniques, ev.Stats.Techniques)
	}
	if got.Details["previous"] != "carrier.json" {
		t.Errorf("Details = %v", got.Details)
	}
}

func TestUnmarshalKBEvent_Invalid(t *testing.T) {
	if _, err := UnmarshalKBEvent([]byte("{not json")); err == nil {
		t.Error("expected error for malformed event")
	}
}

// ─── Query payloads ─────────────────────────────────────────────────────────

func TestSearchQuery_SubstringOmittedWhenUnset(t *testing.T) {
	data, err := json.Marshal(SearchQuery{Query: "disk"})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"query":"disk"}` {
		t.Errorf("got %s", data)
	}
}
