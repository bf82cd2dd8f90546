package kb

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/solve-it-project/solveit/internal/store"
)

// LoadObjectiveMapping reads the named mapping from the store and makes it
// current. It returns false, with the cause logged, if the document is
// missing, malformed or not a list. A list whose every entry is invalid
// still loads, as an empty mapping.
func (kb *KnowledgeBase) LoadObjectiveMapping(ctx context.Context, name string) bool {
	ctx, span := kb.tracer.Start(ctx, "kb.LoadObjectiveMapping", trace.WithAttributes(
		attribute.String("kb.mapping", name),
	))
	defer span.End()

	log := kb.logger.With().Str("mapping", name).Logger()
	data, err := kb.src.Mapping(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn().Msg("objective mapping not found")
		} else {
			log.Error().Err(err).Msg("reading objective mapping failed")
		}
		span.SetAttributes(attribute.Bool("kb.mapping.loaded", false))
		return false
	}

	objectives, issues, err := ParseObjectiveMapping(name, data, kb.logger)
	if err != nil {
		log.Error().Err(err).Msg("invalid objective mapping")
		kb.mu.Lock()
		kb.issues = append(kb.issues, newIssue("mapping", name, "", err))
		kb.mu.Unlock()
		span.SetAttributes(attribute.Bool("kb.mapping.loaded", false))
		return false
	}

	kb.mu.Lock()
	kb.mappings[name] = objectives
	kb.current = name
	kb.issues = append(kb.issues, issues...)
	kb.mu.Unlock()

	span.SetAttributes(
		attribute.Bool("kb.mapping.loaded", true),
		attribute.Int("kb.objectives", len(objectives)),
	)
	log.Info().Int("objectives", len(objectives)).Int("skipped", len(issues)).Msg("objective mapping loaded")
	return true
}

// UseMapping makes an already loaded mapping current.
func (kb *KnowledgeBase) UseMapping(name string) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	if _, ok := kb.mappings[name]; !ok {
		return fmt.Errorf("%w: %s", ErrMappingNotLoaded, name)
	}
	kb.current = name
	return nil
}

// CurrentMapping names the active mapping, or "" when none is active.
func (kb *KnowledgeBase) CurrentMapping() string {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.current
}

// LoadedMappings lists the mappings held in memory, sorted.
func (kb *KnowledgeBase) LoadedMappings() []string {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	names := make([]string, 0, len(kb.mappings))
	for name := range kb.mappings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AvailableMappings lists the mapping documents present in the store.
func (kb *KnowledgeBase) AvailableMappings(ctx context.Context) ([]string, error) {
	names, err := kb.src.Mappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing mappings: %w", err)
	}
	return names, nil
}

// objectives returns the objectives of mapping ("" for current).
func (kb *KnowledgeBase) objectives(mapping string) ([]Objective, string, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	if mapping == "" {
		mapping = kb.current
	}
	objs, ok := kb.mappings[mapping]
	return objs, mapping, ok
}

// Objectives returns the objectives of a loaded mapping in document order.
// An empty name means the current mapping. Unknown mappings, or no active
// mapping, yield an empty list.
func (kb *KnowledgeBase) Objectives(mapping string) []Objective {
	objs, name, ok := kb.objectives(mapping)
	if !ok {
		if name == "" {
			kb.logger.Warn().Msg("no objective mapping active")
		} else {
			kb.logger.Warn().Str("mapping", name).Msg("objective mapping not loaded")
		}
		return []Objective{}
	}
	return append([]Objective(nil), objs...)
}

// ObjectiveNames lists the objective names of the current mapping in order.
func (kb *KnowledgeBase) ObjectiveNames() []string {
	objs := kb.Objectives("")
	names := make([]string, len(objs))
	for i, o := range objs {
		names[i] = o.Name
	}
	return names
}

// GetObjective finds an objective by name in a mapping ("" for current).
func (kb *KnowledgeBase) GetObjective(name, mapping string) (Objective, bool) {
	objs, _, _ := kb.objectives(mapping)
	for _, o := range objs {
		if o.Name == name {
			return o, true
		}
	}
	return Objective{}, false
}

// TechniquesForObjective resolves an objective's techniques in mapping
// order. Techniques that are not loaded are logged and omitted.
func (kb *KnowledgeBase) TechniquesForObjective(name, mapping string) []Technique {
	o, ok := kb.GetObjective(name, mapping)
	if !ok {
		kb.logger.Warn().Str("objective", name).Str("mapping", mapping).Msg("objective not found")
		return []Technique{}
	}
	return resolve(o.Techniques, kb.techniques, func(tid string) {
		kb.logger.Warn().Str("objective", name).Str("technique", tid).Msg("objective references unknown technique")
	})
}

// ObjectivesForTechnique names the objectives of the current mapping that
// list the technique.
func (kb *KnowledgeBase) ObjectivesForTechnique(id string) []string {
	objs, _, _ := kb.objectives("")
	out := make([]string, 0)
	for _, o := range objs {
		for _, tid := range o.Techniques {
			if tid == id {
				out = append(out, o.Name)
				break
			}
		}
	}
	return out
}
