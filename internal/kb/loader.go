package kb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/solve-it-project/solveit/internal/store"
)

// loadRecords reads every document of kind, validates it with build, and
// keys the result by id. Nothing here fails the load: unreadable, malformed,
// invalid and duplicate documents are logged, recorded as issues and skipped.
func loadRecords[T any](
	ctx context.Context,
	src store.Source,
	kind store.Kind,
	build func(map[string]any) (T, error),
	idOf func(T) string,
	logger zerolog.Logger,
) (map[string]T, []LoadIssue) {
	out := make(map[string]T)
	issues := make([]LoadIssue, 0)
	log := logger.With().Str("kind", string(kind)).Logger()

	docs, err := src.Documents(ctx, kind)
	if err != nil {
		log.Error().Err(err).Msg("listing records failed")
		return out, append(issues, newIssue(kind.Singular(), "", "", err))
	}

	for _, doc := range docs {
		if doc.Err != nil {
			log.Error().Err(doc.Err).Str("key", doc.Key).Msg("reading record failed")
			issues = append(issues, newIssue(kind.Singular(), doc.Key, "", doc.Err))
			continue
		}

		var raw map[string]any
		if err := json.Unmarshal(doc.Data, &raw); err != nil {
			err = fmt.Errorf("malformed JSON: %w", err)
			log.Error().Err(err).Str("key", doc.Key).Msg("parsing record failed")
			issues = append(issues, newIssue(kind.Singular(), doc.Key, "", err))
			continue
		}
		if raw == nil {
			err := errors.New("record is not a JSON object")
			log.Error().Err(err).Str("key", doc.Key).Msg("parsing record failed")
			issues = append(issues, newIssue(kind.Singular(), doc.Key, "", err))
			continue
		}

		item, err := build(raw)
		if err != nil {
			log.Error().Err(err).Str("key", doc.Key).Msg("record failed validation")
			issues = append(issues, newIssue(kind.Singular(), doc.Key, "", err))
			continue
		}

		id := idOf(item)
		if _, dup := out[id]; dup {
			err := fmt.Errorf("duplicate id %s, keeping first", id)
			log.Warn().Str("key", doc.Key).Str("id", id).Msg("duplicate record id")
			issues = append(issues, newIssue(kind.Singular(), doc.Key, id, err))
			continue
		}
		out[id] = item
	}

	log.Info().
		Int("loaded", len(out)).
		Int("skipped", len(issues)).
		Msg("records loaded")
	return out, issues
}

// LoadTechniques reads and validates all technique records.
func LoadTechniques(ctx context.Context, src store.Source, logger zerolog.Logger) (map[string]Technique, []LoadIssue) {
	return loadRecords(ctx, src, store.Techniques, NewTechnique, func(t Technique) string { return t.ID }, logger)
}

// LoadWeaknesses reads and validates all weakness records.
func LoadWeaknesses(ctx context.Context, src store.Source, logger zerolog.Logger) (map[string]Weakness, []LoadIssue) {
	return loadRecords(ctx, src, store.Weaknesses, NewWeakness, func(w Weakness) string { return w.ID }, logger)
}

// LoadMitigations reads and validates all mitigation records.
func LoadMitigations(ctx context.Context, src store.Source, logger zerolog.Logger) (map[string]Mitigation, []LoadIssue) {
	return loadRecords(ctx, src, store.Mitigations, NewMitigation, func(m Mitigation) string { return m.ID }, logger)
}

// ParseObjectiveMapping decodes a mapping document. The document must be a
// JSON list; an error is returned otherwise. Individual objectives that fail
// validation, are not objects, or repeat an earlier name are skipped and
// reported as issues.
func ParseObjectiveMapping(name string, data []byte, logger zerolog.Logger) ([]Objective, []LoadIssue, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("malformed JSON: %w", err)
	}
	items, ok := doc.([]any)
	if !ok {
		return nil, nil, fmt.Errorf("expected a list of objectives, got %s", jsonType(doc))
	}

	log := logger.With().Str("mapping", name).Logger()
	objectives := make([]Objective, 0, len(items))
	issues := make([]LoadIssue, 0)
	seen := make(map[string]bool)
	for i, it := range items {
		key := fmt.Sprintf("%s[%d]", name, i)
		raw, isObj := it.(map[string]any)
		if !isObj {
			err := fmt.Errorf("expected an object, got %s", jsonType(it))
			log.Error().Err(err).Int("index", i).Msg("skipping objective")
			issues = append(issues, newIssue("objective", key, "", err))
			continue
		}
		obj, err := NewObjective(raw)
		if err != nil {
			log.Error().Err(err).Int("index", i).Msg("skipping objective")
			issues = append(issues, newIssue("objective", key, "", err))
			continue
		}
		if seen[obj.Name] {
			err := fmt.Errorf("duplicate objective name %q", obj.Name)
			log.Warn().Int("index", i).Str("objective", obj.Name).Msg("duplicate objective name")
			issues = append(issues, newIssue("objective", key, "", err))
			continue
		}
		seen[obj.Name] = true
		objectives = append(objectives, obj)
	}
	return objectives, issues, nil
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "list"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	}
	return fmt.Sprintf("%T", v)
}
