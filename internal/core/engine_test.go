package core

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/solve-it-project/solveit/internal/kb"
	"github.com/solve-it-project/solveit/internal/store"
)

// ─── Fixture ────────────────────────────────────────────────────────────────

var fixtureFiles = map[string]string{
	"techniques/T1001.json": `{"id":"T1001","name":"Disk imaging","description":"Create a bit-for-bit copy of a disk","weaknesses":["W1001"],"subtechniques":["T1002"]}`,
	"techniques/T1002.json": `{"id":"T1002","name":"Memory acquisition","description":"Capture volatile memory"}`,
	"weaknesses/W1001.json": `{"id":"W1001","name":"Disk imaging misses host protected area","mitigations":["M1001"],"INCOMP":"x"}`,
	"mitigations/M1001.json": `{"id":"M1001","name":"Detect HPA before imaging","technique":"T1002"}`,
	"solve-it.json":          `[{"name":"Acquire","description":"Acquire data","techniques":["T1001","T1002"]}]`,
	"carrier.json":           `[{"name":"Carrier","description":"Carrier objectives","techniques":["T1001"]}]`,
}

// writeFixtureDir lays out a small knowledge base under a temp root.
func writeFixtureDir(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, k := range store.Kinds {
		if err := os.MkdirAll(filepath.Join(root, store.DataDir, string(k)), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	for name, body := range fixtureFiles {
		if err := os.WriteFile(filepath.Join(root, store.DataDir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func loadFixtureKB(t *testing.T) *kb.KnowledgeBase {
	t.Helper()
	base, err := kb.New(context.Background(), store.NewDir(writeFixtureDir(t)), kb.WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatalf("kb.New() error: %v", err)
	}
	return base
}

// lockedBuffer collects log output written from several goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testEngine(t *testing.T) (*Engine, *lockedBuffer) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Data.Root = writeFixtureDir(t)
	cfg.Logging.Format = "json"
	out := &lockedBuffer{}
	e, err := NewEngine(cfg, out)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = e.Shutdown() })
	return e, out
}

func loadedEngine(t *testing.T) *Engine {
	t.Helper()
	e, _ := testEngine(t)
	if err := e.Load(context.Background()); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	return e
}

// ─── NewEngine / Uptime ─────────────────────────────────────────────────────

func TestNewEngine_NilConfig(t *testing.T) {
	if _, err := NewEngine(nil, nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestEngine_Uptime_ZeroBeforeStart(t *testing.T) {
	engine, _ := testEngine(t)
	// Before Start(), startTime is zero
	if engine.Uptime() != 0 {
		t.Errorf("expected 0 uptime before start, got %v", engine.Uptime())
	}
}

func TestEngine_Uptime_PositiveAfterSet(t *testing.T) {
	engine, _ := testEngine(t)
	// Simulate what Start() does
	engine.SetStartTimeForTest(time.Now().Add(-5 * time.Second))

	uptime := engine.Uptime()
	if uptime < 4*time.Second || uptime > 10*time.Second {
		t.Errorf("expected ~5s uptime, got %v", uptime)
	}
}

func TestEngine_Start_LoadsKnowledgeBase(t *testing.T) {
	e, _ := testEngine(t)
	if e.KB() != nil {
		t.Fatal("KB() should be nil before Start")
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if e.KB() == nil {
		t.Fatal("KB() nil after Start")
	}
	if e.Bus != nil {
		t.Error("bus should stay off when disabled")
	}
	if e.Uptime() <= 0 {
		t.Error("Uptime should be positive after Start")
	}
}

func TestEngine_Start_BadRoot(t *testing.T) {
	e, _ := testEngine(t)
	e.Config.Data.Root = filepath.Join(t.TempDir(), "missing")
	err := e.Start()
	if !errors.Is(err, kb.ErrStoreUnavailable) {
		t.Errorf("Start() error = %v, want ErrStoreUnavailable", err)
	}
}

// ─── Logging ────────────────────────────────────────────────────────────────

func TestNewLogger_Levels(t *testing.T) {
	cases := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"info", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		l := NewLogger(LoggingConfig{Level: tc.level, Format: "json"}, &bytes.Buffer{}, nil)
		if l.GetLevel() != tc.want {
			t.Errorf("level %q = %v, want %v", tc.level, l.GetLevel(), tc.want)
		}
	}
}

func TestEngine_LogsToWriterAndRing(t *testing.T) {
	e, out := testEngine(t)
	if err := e.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), `"message":"knowledge base ready"`) {
		t.Errorf("writer missing load line:\n%s", out.String())
	}

	var found bool
	for _, entry := range e.Logs.Entries(100, LogFilter{Component: "engine"}) {
		if entry.Message == "knowledge base ready" {
			found = true
			if entry.Component != "engine" || entry.Level != "info" {
				t.Errorf("entry = %+v", entry)
			}
		}
	}
	if !found {
		t.Error("ring buffer missing load line")
	}
}

// ─── Search ─────────────────────────────────────────────────────────────────

func TestEngine_Search_NotLoaded(t *testing.T) {
	e, _ := testEngine(t)
	if _, err := e.Search(context.Background(), SearchQuery{Query: "disk"}); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("error = %v, want ErrNotLoaded", err)
	}
}

func TestEngine_Search_Defaults(t *testing.T) {
	e := loadedEngine(t)

	// AND by default: both terms must match.
	res, err := e.Search(context.Background(), SearchQuery{Query: "disk memory"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total() != 0 {
		t.Errorf("AND search total = %d, want 0", res.Total())
	}

	e.Config.Search.DefaultLogic = "OR"
	res, err = e.Search(context.Background(), SearchQuery{Query: "disk memory", Types: []string{"technique"}})
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, h := range res.Techniques {
		ids = append(ids, h.Item.ID)
	}
	if diff := cmp.Diff([]string{"T1001", "T1002"}, ids); diff != "" {
		t.Errorf("technique hits (-want +got):\n%s", diff)
	}
	if len(res.Weaknesses) != 0 {
		t.Errorf("types filter ignored: %d weakness hits", len(res.Weaknesses))
	}
}

func TestEngine_Search_SubstringOverride(t *testing.T) {
	e := loadedEngine(t)
	on := true
	res, err := e.Search(context.Background(), SearchQuery{Query: "imag", Substring: &on})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Techniques) != 1 || res.Techniques[0].Item.ID != "T1001" {
		t.Errorf("substring hits = %+v", res.Techniques)
	}

	res, err = e.Search(context.Background(), SearchQuery{Query: "imag"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total() != 0 {
		t.Errorf("whole-word search total = %d, want 0", res.Total())
	}
}

func TestEngine_Search_InvalidParameters(t *testing.T) {
	e := loadedEngine(t)
	for _, q := range []SearchQuery{
		{Query: "disk", Logic: "XOR"},
		{Query: "disk", Types: []string{"tactics"}},
	} {
		if _, err := e.Search(context.Background(), q); !errors.Is(err, kb.ErrInvalidSearchParameters) {
			t.Errorf("Search(%+v) error = %v, want ErrInvalidSearchParameters", q, err)
		}
	}
}

// ─── Entity ─────────────────────────────────────────────────────────────────

func TestEngine_Entity(t *testing.T) {
	e := loadedEngine(t)
	ctx := context.Background()

	cases := []struct {
		q       EntityQuery
		kind    string
		related map[string][]string
	}{
		{
			EntityQuery{Kind: "technique", ID: "T1001"}, "technique",
			map[string][]string{
				"weaknesses":    {"W1001"},
				"mitigations":   {"M1001"},
				"subtechniques": {"T1002"},
				"objectives":    {"Acquire"},
			},
		},
		{
			EntityQuery{Kind: "weaknesses", ID: "W1001"}, "weakness",
			map[string][]string{
				"techniques":  {"T1001"},
				"mitigations": {"M1001"},
			},
		},
		{
			EntityQuery{Kind: "m", ID: "M1001"}, "mitigation",
			map[string][]string{
				"weaknesses": {"W1001"},
				"techniques": {"T1001"},
			},
		},
	}
	for _, tc := range cases {
		got, err := e.Entity(ctx, tc.q)
		if err != nil {
			t.Fatalf("Entity(%+v) error: %v", tc.q, err)
		}
		if got.Kind != tc.kind {
			t.Errorf("Entity(%+v).Kind = %q, want %q", tc.q, got.Kind, tc.kind)
		}
		if diff := cmp.Diff(tc.related, got.Related); diff != "" {
			t.Errorf("Entity(%+v).Related (-want +got):\n%s", tc.q, diff)
		}
	}
}

func TestEngine_Entity_NotFound(t *testing.T) {
	e := loadedEngine(t)
	for _, q := range []EntityQuery{
		{Kind: "technique", ID: "T9999"},
		{Kind: "weakness", ID: "T1001"},
		{Kind: "tactic", ID: "T1001"},
	} {
		if _, err := e.Entity(context.Background(), q); !errors.Is(err, ErrEntityNotFound) {
			t.Errorf("Entity(%+v) error = %v, want ErrEntityNotFound", q, err)
		}
	}
}

// ─── Mappings / Reload ──────────────────────────────────────────────────────

func TestEngine_SwitchMapping(t *testing.T) {
	e := loadedEngine(t)
	ctx := context.Background()

	if err := e.SwitchMapping(ctx, "carrier.json"); err != nil {
		t.Fatalf("SwitchMapping error: %v", err)
	}
	if got := e.KB().CurrentMapping(); got != "carrier.json" {
		t.Errorf("CurrentMapping = %q, want carrier.json", got)
	}
	// Already loaded: switching back does not re-read the store.
	if err := e.SwitchMapping(ctx, "solve-it.json"); err != nil {
		t.Fatalf("SwitchMapping back error: %v", err)
	}
	if got := e.KB().CurrentMapping(); got != "solve-it.json" {
		t.Errorf("CurrentMapping = %q, want solve-it.json", got)
	}

	if err := e.SwitchMapping(ctx, "nope.json"); !errors.Is(err, kb.ErrMappingNotLoaded) {
		t.Errorf("unknown mapping error = %v, want ErrMappingNotLoaded", err)
	}
	if got := e.KB().CurrentMapping(); got != "solve-it.json" {
		t.Errorf("failed switch changed mapping to %q", got)
	}
}

func TestEngine_Reload_KeepsCurrentMapping(t *testing.T) {
	e := loadedEngine(t)
	ctx := context.Background()
	if err := e.SwitchMapping(ctx, "carrier.json"); err != nil {
		t.Fatal(err)
	}
	old := e.KB()

	// A new record appears on disk.
	path := filepath.Join(e.Config.Data.Root, store.DataDir, "techniques", "T1003.json")
	if err := os.WriteFile(path, []byte(`{"id":"T1003","name":"Logical copy","description":""}`), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := e.Reload(ctx); err != nil {
		t.Fatalf("Reload error: %v", err)
	}
	if e.KB() == old {
		t.Fatal("Reload did not replace the knowledge base")
	}
	if got := e.KB().CurrentMapping(); got != "carrier.json" {
		t.Errorf("CurrentMapping after reload = %q, want carrier.json", got)
	}
	if got := e.KB().Stats().Techniques; got != 3 {
		t.Errorf("techniques after reload = %d, want 3", got)
	}
}

func TestEngine_SwitchMapping_SurvivesConcurrentReload(t *testing.T) {
	e := loadedEngine(t)
	ctx := context.Background()
	names := []string{"solve-it.json", "carrier.json"}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			if err := e.SwitchMapping(ctx, names[i%2]); err != nil {
				t.Errorf("SwitchMapping error: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			if err := e.Reload(ctx); err != nil {
				t.Errorf("Reload error: %v", err)
				return
			}
		}
	}()
	wg.Wait()

	// The last switch was to carrier.json; no reload may undo it.
	if got := e.KB().CurrentMapping(); got != "carrier.json" {
		t.Errorf("CurrentMapping = %q, want carrier.json", got)
	}
}

func TestEngine_Reload_FailureKeepsPrevious(t *testing.T) {
	e := loadedEngine(t)
	old := e.KB()

	e.Config.Data.Root = filepath.Join(t.TempDir(), "gone")
	if err := e.Reload(context.Background()); err == nil {
		t.Fatal("expected reload error")
	}
	if e.KB() != old {
		t.Error("failed reload replaced the knowledge base")
	}
}

func TestOpenSource(t *testing.T) {
	src, err := OpenSource(context.Background(), DataConfig{Source: SourceFS, Root: "/srv/kb"})
	if err != nil {
		t.Fatal(err)
	}
	if src.String() != "/srv/kb" {
		t.Errorf("source = %s", src)
	}
	if _, err := OpenSource(context.Background(), DataConfig{Source: "ftp"}); err == nil {
		t.Error("expected error for unknown source")
	}
}
