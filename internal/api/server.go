package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/solve-it-project/solveit/internal/core"
	"github.com/solve-it-project/solveit/internal/kb"
	"github.com/solve-it-project/solveit/internal/store"
)

// Version is reported by /api/v1/status. The CLI overrides it at startup.
var Version = "dev"

// Server is the solveit REST API server.
type Server struct {
	engine  *core.Engine
	server  *http.Server
	logger  zerolog.Logger
	metrics *metrics
}

// NewServer creates a new API server.
func NewServer(engine *core.Engine) *Server {
	s := &Server{
		engine:  engine,
		logger:  engine.Logger.With().Str("component", "api_server").Logger(),
		metrics: newMetrics(engine),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", s.metrics.handler())
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/logs", s.handleLogs)
	mux.HandleFunc("/api/v1/issues", s.handleIssues)
	mux.HandleFunc("/api/v1/techniques", s.handleTechniques)
	mux.HandleFunc("/api/v1/techniques/", s.handleTechnique)
	mux.HandleFunc("/api/v1/weaknesses", s.handleWeaknesses)
	mux.HandleFunc("/api/v1/weaknesses/", s.handleWeakness)
	mux.HandleFunc("/api/v1/mitigations", s.handleMitigations)
	mux.HandleFunc("/api/v1/mitigations/", s.handleMitigation)
	mux.HandleFunc("/api/v1/objectives", s.handleObjectives)
	mux.HandleFunc("/api/v1/objectives/", s.handleObjective)
	mux.HandleFunc("/api/v1/mappings", s.handleMappings)
	mux.HandleFunc("/api/v1/search", s.handleSearch)
	mux.HandleFunc("/api/v1/reload", s.handleReload)

	// Build middleware chain: CORS -> logging -> metrics -> rate limit -> auth -> handler
	handler := corsMiddleware(
		loggingMiddleware(
			s.metrics.middleware(
				rateLimitMiddleware(
					authMiddleware(mux, engine.Config, s.logger),
					engine.Config,
				),
			),
			s.logger,
		),
		engine.Config,
	)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", engine.Config.Server.Host, engine.Config.Server.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Addr is the configured listen address.
func (s *Server) Addr() string { return s.server.Addr }

// Start begins serving the API.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("API server starting")
	if s.engine.Config.AuthEnabled() {
		s.logger.Info().
			Int("keys", len(s.engine.Config.Server.APIKeys)).
			Int("read_only_keys", len(s.engine.Config.Server.ReadOnlyKeys)).
			Msg("API authentication enabled")
	} else {
		s.logger.Warn().Msg("API authentication disabled, set server.api_keys in config or SOLVEIT_API_KEY env var")
	}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()
	return nil
}

// Stop gracefully shuts down the API server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	status := "healthy"
	code := http.StatusOK
	if s.engine.KB() == nil {
		status = "loading"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	base, ok := s.kb(w)
	if !ok {
		return
	}

	resp := map[string]interface{}{
		"version":        Version,
		"status":         "running",
		"source":         base.Source().String(),
		"knowledge_base": base.Stats(),
		"uptime_seconds": int64(s.engine.Uptime().Seconds()),
		"bus_connected":  s.engine.Bus != nil && s.engine.Bus.IsConnected(),
		"timestamp":      time.Now().UTC(),
	}
	if s.engine.Bus != nil {
		resp["bus"] = s.engine.Bus.GetMetrics()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleLogs returns recent log entries. The engine logs are captured in a ring buffer.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	limit := 100
	if limitStr := q.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	filter, err := core.ParseLogFilter(q.Get("level"), q.Get("component"), q.Get("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	entries := s.engine.Logs.Entries(limit, filter)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":     entries,
		"total":    len(entries),
		"buffered": s.engine.Logs.Len(),
	})
}

func (s *Server) handleIssues(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	base, ok := s.kb(w)
	if !ok {
		return
	}
	issues := base.Issues()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"issues": issues,
		"total":  len(issues),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	params := r.URL.Query()
	q := core.SearchQuery{
		Query: params.Get("q"),
		Logic: params.Get("logic"),
	}
	if types := params.Get("types"); types != "" {
		q.Types = strings.Split(types, ",")
	}
	if sub := params.Get("substring"); sub != "" {
		v, err := strconv.ParseBool(sub)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "substring must be true or false"})
			return
		}
		q.Substring = &v
	}

	res, err := s.engine.Search(r.Context(), q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"query":       q.Query,
		"total":       res.Total(),
		"techniques":  res.Techniques,
		"weaknesses":  res.Weaknesses,
		"mitigations": res.Mitigations,
	})
}

func (s *Server) handleMappings(w http.ResponseWriter, r *http.Request) {
	base, ok := s.kb(w)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		available, err := base.AvailableMappings(r.Context())
		if err != nil {
			s.logger.Warn().Err(err).Msg("listing available mappings failed")
			available = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"current":   base.CurrentMapping(),
			"loaded":    base.LoadedMappings(),
			"available": available,
		})
	case http.MethodPost:
		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&body); err != nil || body.Name == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": `body must be {"name": "<mapping>.json"}`})
			return
		}
		if err := s.engine.SwitchMapping(r.Context(), body.Name); err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"current":    body.Name,
			"objectives": len(s.engine.KB().Objectives("")),
		})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var changes []string
	var err error
	if path := s.engine.ConfigPath(); path != "" {
		changes, err = core.ReloadConfig(r.Context(), s.engine, path, s.logger)
		if err == nil && !containsReload(changes) {
			err = s.engine.Reload(r.Context())
		}
	} else {
		err = s.engine.Reload(r.Context())
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("reload via API failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "reloaded",
		"changes":        changes,
		"knowledge_base": s.engine.KB().Stats(),
	})
}

func containsReload(changes []string) bool {
	for _, c := range changes {
		if strings.HasSuffix(c, "knowledge base reloaded") {
			return true
		}
	}
	return false
}

// kb returns the served knowledge base, answering 503 while none is loaded.
func (s *Server) kb(w http.ResponseWriter) (*kb.KnowledgeBase, bool) {
	base := s.engine.KB()
	if base == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": core.ErrNotLoaded.Error()})
		return nil, false
	}
	return base, true
}

// writeError maps engine errors onto status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, kb.ErrInvalidSearchParameters):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrEntityNotFound), errors.Is(err, kb.ErrMappingNotLoaded), errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrNotLoaded):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
