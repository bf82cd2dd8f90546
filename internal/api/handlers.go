package api

import (
	"net/http"
	"strings"

	"github.com/solve-it-project/solveit/internal/core"
	"github.com/solve-it-project/solveit/internal/kb"
)

// splitPath turns "/api/v1/techniques/T1001/weaknesses" into ("T1001",
// "weaknesses") for prefix "/api/v1/techniques/". Anything deeper than one
// sub-resource is rejected.
func splitPath(path, prefix string) (id, sub string, ok bool) {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	switch len(parts) {
	case 1:
		return parts[0], "", true
	case 2:
		return parts[0], parts[1], true
	}
	return "", "", false
}

func list[T any](w http.ResponseWriter, key string, items []T) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		key:     items,
		"total": len(items),
	})
}

// entity answers GET /api/v1/<kind>/{id}.
func (s *Server) entity(w http.ResponseWriter, r *http.Request, kind, id string) {
	reply, err := s.engine.Entity(r.Context(), core.EntityQuery{Kind: kind, ID: id})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func notFound(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": what + " not found"})
}

func (s *Server) handleTechniques(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if base, ok := s.kb(w); ok {
		list(w, "techniques", base.Techniques())
	}
}

// handleTechnique handles /api/v1/techniques/{id}[/weaknesses|/mitigations|/subtechniques|/objectives]
func (s *Server) handleTechnique(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	base, ok := s.kb(w)
	if !ok {
		return
	}
	id, sub, ok := splitPath(r.URL.Path, "/api/v1/techniques/")
	if !ok {
		notFound(w, "resource")
		return
	}
	if sub == "" {
		s.entity(w, r, "technique", id)
		return
	}
	if _, exists := base.GetTechnique(id); !exists {
		notFound(w, "technique "+id)
		return
	}
	switch sub {
	case "weaknesses":
		list(w, "weaknesses", base.WeaknessesForTechnique(id))
	case "mitigations":
		mitigations := make([]kb.Mitigation, 0)
		for _, mid := range base.MitigationIDsForTechnique(id) {
			if m, ok := base.GetMitigation(mid); ok {
				mitigations = append(mitigations, m)
			}
		}
		list(w, "mitigations", mitigations)
	case "subtechniques":
		list(w, "subtechniques", base.SubtechniquesOf(id))
	case "objectives":
		list(w, "objectives", base.ObjectivesForTechnique(id))
	default:
		notFound(w, "resource")
	}
}

func (s *Server) handleWeaknesses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if base, ok := s.kb(w); ok {
		list(w, "weaknesses", base.Weaknesses())
	}
}

// handleWeakness handles /api/v1/weaknesses/{id}[/techniques|/mitigations]
func (s *Server) handleWeakness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	base, ok := s.kb(w)
	if !ok {
		return
	}
	id, sub, ok := splitPath(r.URL.Path, "/api/v1/weaknesses/")
	if !ok {
		notFound(w, "resource")
		return
	}
	if sub == "" {
		s.entity(w, r, "weakness", id)
		return
	}
	if _, exists := base.GetWeakness(id); !exists {
		notFound(w, "weakness "+id)
		return
	}
	switch sub {
	case "techniques":
		list(w, "techniques", base.TechniquesForWeakness(id))
	case "mitigations":
		list(w, "mitigations", base.MitigationsForWeakness(id))
	default:
		notFound(w, "resource")
	}
}

func (s *Server) handleMitigations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if base, ok := s.kb(w); ok {
		list(w, "mitigations", base.Mitigations())
	}
}

// handleMitigation handles /api/v1/mitigations/{id}[/weaknesses|/techniques]
func (s *Server) handleMitigation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	base, ok := s.kb(w)
	if !ok {
		return
	}
	id, sub, ok := splitPath(r.URL.Path, "/api/v1/mitigations/")
	if !ok {
		notFound(w, "resource")
		return
	}
	if sub == "" {
		s.entity(w, r, "mitigation", id)
		return
	}
	if _, exists := base.GetMitigation(id); !exists {
		notFound(w, "mitigation "+id)
		return
	}
	switch sub {
	case "weaknesses":
		list(w, "weaknesses", base.WeaknessesForMitigation(id))
	case "techniques":
		list(w, "techniques", base.TechniquesForMitigation(id))
	default:
		notFound(w, "resource")
	}
}

// handleObjectives lists the objectives of ?mapping= (default current).
func (s *Server) handleObjectives(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	base, ok := s.kb(w)
	if !ok {
		return
	}
	mapping := r.URL.Query().Get("mapping")
	if mapping == "" {
		mapping = base.CurrentMapping()
	}
	objs := base.Objectives(mapping)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"mapping":    mapping,
		"objectives": objs,
		"total":      len(objs),
	})
}

// handleObjective returns one objective with its resolved techniques.
func (s *Server) handleObjective(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	base, ok := s.kb(w)
	if !ok {
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/v1/objectives/")
	mapping := r.URL.Query().Get("mapping")
	obj, found := base.GetObjective(name, mapping)
	if !found {
		notFound(w, "objective "+name)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"objective":  obj,
		"techniques": base.TechniquesForObjective(name, mapping),
	})
}
