// Package kb is the in-memory knowledge base: techniques, weaknesses and
// mitigations loaded from a record store, the reverse indices between them,
// and the objective mappings that group techniques.
//
// A KnowledgeBase is built once by New and is read-only afterwards, except
// for the objective mapping table, which may be extended and switched under
// a lock. Reloading entities means building a new KnowledgeBase.
package kb

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/solve-it-project/solveit/internal/store"
)

// DefaultMapping is tried when the requested objective mapping cannot be loaded.
const DefaultMapping = "solve-it.json"

const tracerName = "github.com/solve-it-project/solveit/internal/kb"

type options struct {
	logger   zerolog.Logger
	tracer   trace.Tracer
	mapping  string
	fallback string
}

// Option configures New.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTracer sets the tracer used for load and search spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithMapping selects the objective mapping to activate after load.
func WithMapping(name string) Option {
	return func(o *options) {
		if name != "" {
			o.mapping = name
		}
	}
}

// WithFallbackMapping overrides DefaultMapping as the fallback.
func WithFallbackMapping(name string) Option {
	return func(o *options) {
		if name != "" {
			o.fallback = name
		}
	}
}

// KnowledgeBase holds the loaded graph.
type KnowledgeBase struct {
	src    store.Source
	logger zerolog.Logger
	tracer trace.Tracer

	techniques  map[string]Technique
	weaknesses  map[string]Weakness
	mitigations map[string]Mitigation
	idx         Indices

	techniqueIDs  []string
	weaknessIDs   []string
	mitigationIDs []string

	loadedAt time.Time

	mu       sync.RWMutex
	mappings map[string][]Objective
	current  string
	issues   []LoadIssue
}

// New loads every record from src, builds the reverse indices and activates
// an objective mapping. Bad records never fail construction; only a store
// whose root structure is missing does, with ErrStoreUnavailable.
//
// The requested mapping (WithMapping, default DefaultMapping) is tried
// first, then the fallback; if both fail the knowledge base runs with no
// active mapping.
func New(ctx context.Context, src store.Source, opts ...Option) (*KnowledgeBase, error) {
	o := options{
		logger:   zerolog.Nop(),
		tracer:   noop.NewTracerProvider().Tracer(tracerName),
		mapping:  DefaultMapping,
		fallback: DefaultMapping,
	}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, span := o.tracer.Start(ctx, "kb.Load", trace.WithAttributes(
		attribute.String("kb.source", src.String()),
		attribute.String("kb.mapping.requested", o.mapping),
	))
	defer span.End()

	kb := &KnowledgeBase{
		src:      src,
		logger:   o.logger.With().Str("component", "knowledge_base").Logger(),
		tracer:   o.tracer,
		mappings: make(map[string][]Objective),
		issues:   make([]LoadIssue, 0),
	}

	if err := src.Check(ctx); err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, src, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "store unavailable")
		return nil, err
	}

	loaderLog := o.logger.With().Str("component", "loader").Logger()
	var issues []LoadIssue
	kb.techniques, issues = LoadTechniques(ctx, src, loaderLog)
	kb.issues = append(kb.issues, issues...)
	kb.weaknesses, issues = LoadWeaknesses(ctx, src, loaderLog)
	kb.issues = append(kb.issues, issues...)
	kb.mitigations, issues = LoadMitigations(ctx, src, loaderLog)
	kb.issues = append(kb.issues, issues...)

	kb.idx = BuildIndices(kb.techniques, kb.weaknesses)
	kb.techniqueIDs = sortedKeys(kb.techniques)
	kb.weaknessIDs = sortedKeys(kb.weaknesses)
	kb.mitigationIDs = sortedKeys(kb.mitigations)

	if !kb.LoadObjectiveMapping(ctx, o.mapping) {
		switch {
		case o.fallback != o.mapping && kb.LoadObjectiveMapping(ctx, o.fallback):
			kb.logger.Warn().
				Str("requested", o.mapping).
				Str("mapping", o.fallback).
				Msg("requested objective mapping unavailable, using fallback")
		default:
			kb.logger.Warn().Str("requested", o.mapping).Msg("no objective mapping active")
		}
	}

	kb.loadedAt = time.Now().UTC()
	span.SetAttributes(
		attribute.Int("kb.techniques", len(kb.techniques)),
		attribute.Int("kb.weaknesses", len(kb.weaknesses)),
		attribute.Int("kb.mitigations", len(kb.mitigations)),
		attribute.Int("kb.issues", len(kb.Issues())),
		attribute.String("kb.mapping", kb.CurrentMapping()),
	)
	kb.logger.Info().
		Str("source", src.String()).
		Int("techniques", len(kb.techniques)).
		Int("weaknesses", len(kb.weaknesses)).
		Int("mitigations", len(kb.mitigations)).
		Str("mapping", kb.CurrentMapping()).
		Msg("knowledge base loaded")
	return kb, nil
}

// Source returns the store the knowledge base was loaded from.
func (kb *KnowledgeBase) Source() store.Source { return kb.src }

// Issues returns a copy of every load diagnostic recorded so far, including
// those from objective mappings loaded after construction.
func (kb *KnowledgeBase) Issues() []LoadIssue {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return append([]LoadIssue(nil), kb.issues...)
}

// Indices returns a deep copy of the reverse indices.
func (kb *KnowledgeBase) Indices() Indices { return kb.idx.Clone() }

// Stats summarises what is loaded.
type Stats struct {
	Techniques  int       `json:"techniques"`
	Weaknesses  int       `json:"weaknesses"`
	Mitigations int       `json:"mitigations"`
	Issues      int       `json:"issues"`
	Mapping     string    `json:"mapping"`
	Objectives  int       `json:"objectives"`
	Mappings    []string  `json:"mappings_loaded"`
	LoadedAt    time.Time `json:"loaded_at"`
}

// Stats reports entity counts and the active mapping.
func (kb *KnowledgeBase) Stats() Stats {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	loaded := make([]string, 0, len(kb.mappings))
	for name := range kb.mappings {
		loaded = append(loaded, name)
	}
	sort.Strings(loaded)
	return Stats{
		Techniques:  len(kb.techniques),
		Weaknesses:  len(kb.weaknesses),
		Mitigations: len(kb.mitigations),
		Issues:      len(kb.issues),
		Mapping:     kb.current,
		Objectives:  len(kb.mappings[kb.current]),
		Mappings:    loaded,
		LoadedAt:    kb.loadedAt,
	}
}
