package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/solve-it-project/solveit/internal/core"
	"github.com/solve-it-project/solveit/internal/store"
)

// ─── Helpers ─────────────────────────────────────────────────────────────────

var fixtureFiles = map[string]string{
	"techniques/T1001.json":  `{"id":"T1001","name":"Disk imaging","description":"Create a bit-for-bit copy of a disk","weaknesses":["W1001","W1002"],"subtechniques":["T1002"]}`,
	"techniques/T1002.json":  `{"id":"T1002","name":"Memory acquisition","description":"Capture volatile memory","weaknesses":["W1002"]}`,
	"weaknesses/W1001.json":  `{"id":"W1001","name":"Disk imaging misses host protected area","mitigations":["M1001"],"INCOMP":"x"}`,
	"weaknesses/W1002.json":  `{"id":"W1002","name":"Acquisition tool modifies evidence","mitigations":["M1001","M1002"]}`,
	"weaknesses/bad.json":    `{"id":"W1003"}`,
	"mitigations/M1001.json": `{"id":"M1001","name":"Use a write blocker","technique":"T1002"}`,
	"mitigations/M1002.json": `{"id":"M1002","name":"Hash before and after"}`,
	"solve-it.json":          `[{"name":"Acquire","description":"Acquire data","techniques":["T1001","T1002"]},{"name":"Preserve","description":"Preserve data","techniques":["T9999"]}]`,
	"carrier.json":           `[{"name":"Carrier","description":"Carrier objectives","techniques":["T1001"]}]`,
}

// testEngine builds an Engine over a temp copy of the fixture and loads it.
// It does NOT start NATS.
func testEngine(t *testing.T) *core.Engine {
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

	cfg := core.DefaultConfig()
	cfg.Data.Root = root
	cfg.Logging.Format = "json"
	e, err := core.NewEngine(cfg, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Load(t.Context()); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	t.Cleanup(func() { _ = e.Shutdown() })
	return e
}

// testEngineWithAuth returns an engine whose config has API keys set.
func testEngineWithAuth(t *testing.T, keys ...string) *core.Engine {
	e := testEngine(t)
	e.Config.Server.APIKeys = keys
	return e
}

func newTestServer(engine *core.Engine) *Server {
	return NewServer(engine)
}

// do runs a request through the full middleware chain.
func do(s *Server, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	return body
}

// ─── writeJSON ────────────────────────────────────────────────────────────────

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, map[string]string{"hello": "world"})

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["hello"] != "world" {
		t.Errorf("body = %v", body)
	}
}

// ─── Health endpoint ──────────────────────────────────────────────────────────

func TestHandleHealth_GET(t *testing.T) {
	s := newTestServer(testEngine(t))
	w := do(s, http.MethodGet, "/health", "")

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if body := decode(t, w); body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
}

func TestHandleHealth_NotLoaded(t *testing.T) {
	e, err := core.NewEngine(core.DefaultConfig(), io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	s := newTestServer(e)
	if w := do(s, http.MethodGet, "/health", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 before load", w.Code)
	}
	if w := do(s, http.MethodGet, "/api/v1/techniques", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("techniques status = %d, want 503 before load", w.Code)
	}
}

func TestHandleHealth_MethodNotAllowed(t *testing.T) {
	s := newTestServer(testEngine(t))
	if w := do(s, http.MethodPost, "/health", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

// ─── Health bypasses auth ─────────────────────────────────────────────────────

func TestHandleHealth_BypassesAuth(t *testing.T) {
	s := newTestServer(testEngineWithAuth(t, "secret-key"))
	if w := do(s, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Errorf("health should bypass auth, got status %d", w.Code)
	}
}

// ─── Auth middleware ──────────────────────────────────────────────────────────

func TestAuthMiddleware_NoKeysConfigured(t *testing.T) {
	s := newTestServer(testEngine(t)) // no API keys = open mode
	if w := do(s, http.MethodGet, "/api/v1/status", ""); w.Code != http.StatusOK {
		t.Errorf("open mode should allow all, got status %d", w.Code)
	}
}

func TestAuthMiddleware_MissingKey(t *testing.T) {
	s := newTestServer(testEngineWithAuth(t, "my-secret"))
	if w := do(s, http.MethodGet, "/api/v1/status", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("missing key should return 401, got %d", w.Code)
	}
}

func TestAuthMiddleware_InvalidKey(t *testing.T) {
	s := newTestServer(testEngineWithAuth(t, "my-secret"))
	w := do(s, http.MethodGet, "/api/v1/status", "", "Authorization", "Bearer wrong-key")
	if w.Code != http.StatusForbidden {
		t.Errorf("invalid key should return 403, got %d", w.Code)
	}
}

func TestAuthMiddleware_ValidBearerKey(t *testing.T) {
	s := newTestServer(testEngineWithAuth(t, "my-secret"))
	w := do(s, http.MethodGet, "/api/v1/status", "", "Authorization", "Bearer my-secret")
	if w.Code != http.StatusOK {
		t.Errorf("valid bearer key should return 200, got %d", w.Code)
	}
}

func TestAuthMiddleware_XAPIKeyHeader(t *testing.T) {
	s := newTestServer(testEngineWithAuth(t, "my-secret"))
	w := do(s, http.MethodGet, "/api/v1/status", "", "X-API-Key", "my-secret")
	if w.Code != http.StatusOK {
		t.Errorf("valid X-API-Key should return 200, got %d", w.Code)
	}
}

func TestAuthMiddleware_InvalidXAPIKey(t *testing.T) {
	s := newTestServer(testEngineWithAuth(t, "my-secret"))
	w := do(s, http.MethodGet, "/api/v1/status", "", "X-API-Key", "wrong")
	if w.Code != http.StatusForbidden {
		t.Errorf("invalid X-API-Key should return 403, got %d", w.Code)
	}
}

func TestAuthMiddleware_ReadOnlyKey(t *testing.T) {
	e := testEngine(t)
	e.Config.Server.ReadOnlyKeys = []string{"viewer"}
	s := newTestServer(e)

	if w := do(s, http.MethodGet, "/api/v1/techniques", "", "X-API-Key", "viewer"); w.Code != http.StatusOK {
		t.Errorf("read-only GET status = %d, want 200", w.Code)
	}
	if w := do(s, http.MethodPost, "/api/v1/reload", "", "X-API-Key", "viewer"); w.Code != http.StatusForbidden {
		t.Errorf("read-only POST status = %d, want 403", w.Code)
	}
}

func TestAuthMiddleware_KeysReloadedLive(t *testing.T) {
	e := testEngine(t)
	s := newTestServer(e)
	// Keys added after the server was built apply to the next request.
	e.Config.Server.APIKeys = []string{"late-key"}
	if w := do(s, http.MethodGet, "/api/v1/status", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 after keys were added", w.Code)
	}
}

// ─── Status / logs ───────────────────────────────────────────────────────────

func TestHandleStatus(t *testing.T) {
	e := testEngine(t)
	s := newTestServer(e)
	w := do(s, http.MethodGet, "/api/v1/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decode(t, w)
	if body["status"] != "running" || body["bus_connected"] != false {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["uptime_seconds"]; !ok {
		t.Error("missing uptime_seconds")
	}
	stats, ok := body["knowledge_base"].(map[string]interface{})
	if !ok {
		t.Fatalf("knowledge_base = %v", body["knowledge_base"])
	}
	if stats["techniques"] != float64(2) || stats["weaknesses"] != float64(2) || stats["mitigations"] != float64(2) {
		t.Errorf("stats = %v", stats)
	}
	if stats["mapping"] != "solve-it.json" {
		t.Errorf("mapping = %v", stats["mapping"])
	}
}

func TestHandleLogs_GET(t *testing.T) {
	s := newTestServer(testEngine(t))
	w := do(s, http.MethodGet, "/api/v1/logs?limit=500", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := decode(t, w)
	if total, _ := body["total"].(float64); total < 1 {
		t.Errorf("expected captured load logs, total = %v", body["total"])
	}
}

func TestHandleLogs_Filter(t *testing.T) {
	s := newTestServer(testEngine(t))

	w := do(s, http.MethodGet, "/api/v1/logs?component=engine&level=info", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Logs     []core.LogEntry `json:"logs"`
		Total    int             `json:"total"`
		Buffered int             `json:"buffered"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Total == 0 || body.Total != len(body.Logs) || body.Buffered < body.Total {
		t.Fatalf("body = %+v", body)
	}
	for _, e := range body.Logs {
		if e.Component != "engine" {
			t.Errorf("entry from component %q", e.Component)
		}
	}

	if w := do(s, http.MethodGet, "/api/v1/logs?level=loud", ""); w.Code != http.StatusBadRequest {
		t.Errorf("unknown level status = %d, want 400", w.Code)
	}
}

func TestHandleIssues(t *testing.T) {
	s := newTestServer(testEngine(t))
	w := do(s, http.MethodGet, "/api/v1/issues", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	// bad.json has no name.
	if body := decode(t, w); body["total"] != float64(1) {
		t.Errorf("issues = %v", body)
	}
}

// ─── CORS middleware ──────────────────────────────────────────────────────────

func corsHandler(origins ...string) http.Handler {
	cfg := core.DefaultConfig()
	cfg.Server.CORSOrigins = origins
	return corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), cfg)
}

func TestCORSMiddleware_NoOrigins(t *testing.T) {
	handler := corsHandler() // no origins configured = deny cross-origin (secure default)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Errorf("ACAO = %q, want empty (no CORS when no origins configured)", w.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestCORSMiddleware_AllowedOrigin(t *testing.T) {
	handler := corsHandler("http://example.com")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") != "http://example.com" {
		t.Errorf("ACAO = %q, want http://example.com", w.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestCORSMiddleware_BlockedOrigin(t *testing.T) {
	handler := corsHandler("http://allowed.com")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Origin", "http://evil.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Errorf("blocked origin should not get ACAO header, got %q", w.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	handler := corsHandler("*")

	req := httptest.NewRequest(http.MethodOptions, "/test", nil)
	req.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

// ─── Rate limiting ────────────────────────────────────────────────────────────

func TestTokenBucket_Allow(t *testing.T) {
	tb := &tokenBucket{
		tokens:    10,
		maxTokens: 10,
	}
	// Should allow first request
	if !tb.allow(10) {
		t.Error("expected first request to be allowed")
	}
}

func TestTokenBucket_Exhausted(t *testing.T) {
	tb := &tokenBucket{
		tokens:    1,
		maxTokens: 10,
	}
	tb.allow(0) // consume the 1 token
	if tb.allow(0) {
		t.Error("expected exhausted bucket to deny")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	e := testEngine(t)
	e.Config.Server.RateLimit = 1
	s := newTestServer(e)

	var limited bool
	for i := 0; i < 10; i++ {
		if w := do(s, http.MethodGet, "/api/v1/status", ""); w.Code == http.StatusTooManyRequests {
			limited = true
			if w.Header().Get("Retry-After") != "1" {
				t.Error("missing Retry-After")
			}
			break
		}
	}
	if !limited {
		t.Error("expected a 429 within 10 requests at 1 rps")
	}
	if w := do(s, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Errorf("health should not be rate limited, got %d", w.Code)
	}
}

// ─── Metrics ──────────────────────────────────────────────────────────────────

func TestHandleMetrics(t *testing.T) {
	s := newTestServer(testEngineWithAuth(t, "k"))
	do(s, http.MethodGet, "/api/v1/techniques/T1001", "", "X-API-Key", "k")

	w := do(s, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	out := w.Body.String()
	for _, want := range []string{
		`solveit_kb_entities{kind="techniques"} 2`,
		`solveit_kb_entities{kind="issues"} 1`,
		`solveit_http_requests_total{code="200",method="GET",route="/api/v1/techniques/{id}"} 1`,
		`solveit_http_request_duration_seconds_count{route="/api/v1/techniques/{id}"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestRouteLabel(t *testing.T) {
	cases := map[string]string{
		"/health":                               "/health",
		"/metrics":                              "/metrics",
		"/api/v1/techniques":                    "/api/v1/techniques",
		"/api/v1/techniques/T1001":              "/api/v1/techniques/{id}",
		"/api/v1/weaknesses/W1001/mitigations":  "/api/v1/weaknesses/{id}/mitigations",
		"/api/v1/objectives/Acquire":            "/api/v1/objectives/{id}",
		"/api/v1/search":                        "/api/v1/search",
		"/api/v1/search/extra":                  "other",
		"/api/v1/unknown":                       "other",
		"/favicon.ico":                          "other",
		"/api/v1/techniques/T1/weaknesses/deep": "other",
	}
	for in, want := range cases {
		if got := routeLabel(in); got != want {
			t.Errorf("routeLabel(%q) = %q, want %q", in, got, want)
		}
	}
}
