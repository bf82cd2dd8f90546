package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/solve-it-project/solveit/internal/kb"
	"github.com/solve-it-project/solveit/internal/store"
)

// ErrEntityNotFound is returned by Entity for an unknown kind or id.
var ErrEntityNotFound = errors.New("entity not found")

// ErrNotLoaded is returned by operations that need a knowledge base before
// Load has succeeded.
var ErrNotLoaded = errors.New("knowledge base not loaded")

// NewLogger builds the process logger. Output goes to out and, when ring is
// non-nil, to the ring buffer as JSON.
func NewLogger(cfg LoggingConfig, out io.Writer, ring *LogRingBuffer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}
	var w io.Writer = out
	if cfg.Format != "json" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	if ring != nil {
		w = ring.MultiWriter(w)
	}
	logger := zerolog.New(w).With().Timestamp().Logger()
	return logger.Level(parseLevel(cfg.Level))
}

func parseLevel(level string) zerolog.Level {
	switch (&Config{Logging: LoggingConfig{Level: level}}).LogLevel() {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Engine owns the served knowledge base and the optional event bus.
type Engine struct {
	Config *Config
	Bus    *EventBus
	Logs   *LogRingBuffer
	Logger zerolog.Logger

	root       zerolog.Logger
	configPath string
	tracer     trace.Tracer
	base       atomic.Pointer[kb.KnowledgeBase]
	reloadMu   sync.Mutex
	configured string // data.mapping at the last successful build

	startMu   sync.RWMutex
	startTime time.Time
	wg        sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewEngine creates an engine logging to out (stderr when nil). The
// knowledge base is not read until Load or Start.
func NewEngine(cfg *Config, out io.Writer) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logs := NewLogRingBuffer(cfg.Logging.BufferSize)
	root := NewLogger(cfg.Logging, out, logs)

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		Config: cfg,
		Logs:   logs,
		Logger: root.With().Str("component", "engine").Logger(),
		root:   root,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// SetConfigPath records where the config was loaded from, for reloads.
func (e *Engine) SetConfigPath(path string) { e.configPath = path }

// ConfigPath returns the path set by SetConfigPath.
func (e *Engine) ConfigPath() string { return e.configPath }

// SetTracer sets the tracer handed to every knowledge base the engine builds.
func (e *Engine) SetTracer(t trace.Tracer) { e.tracer = t }

// OpenSource builds the record store named by cfg.
func OpenSource(ctx context.Context, cfg DataConfig) (store.Source, error) {
	switch cfg.Source {
	case SourceFS, "":
		return store.NewDir(cfg.Root), nil
	case SourceS3:
		return store.NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown data source %q", cfg.Source)
	}
}

func (e *Engine) build(ctx context.Context, mapping string) (*kb.KnowledgeBase, error) {
	src, err := OpenSource(ctx, e.Config.Data)
	if err != nil {
		return nil, err
	}
	opts := []kb.Option{
		kb.WithLogger(e.root),
		kb.WithMapping(mapping),
	}
	if e.tracer != nil {
		opts = append(opts, kb.WithTracer(e.tracer))
	}
	return kb.New(ctx, src, opts...)
}

// Load builds the knowledge base from the configured source and makes it
// current.
func (e *Engine) Load(ctx context.Context) error {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()

	base, err := e.build(ctx, e.Config.Data.Mapping)
	if err != nil {
		return fmt.Errorf("loading knowledge base: %w", err)
	}
	e.base.Store(base)
	e.configured = e.Config.Data.Mapping
	e.logLoaded(base, "knowledge base ready")
	e.publish(EventLoaded, base, nil)
	return nil
}

// Reload rebuilds the knowledge base. Unless data.mapping changed since the
// last build, the mapping current before the reload stays current when the
// new base can load it. On failure the previous base keeps serving.
func (e *Engine) Reload(ctx context.Context) error {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()

	mapping := e.Config.Data.Mapping
	prev := e.base.Load()
	if prev != nil && prev.CurrentMapping() != "" && mapping == e.configured {
		mapping = prev.CurrentMapping()
	}

	base, err := e.build(ctx, mapping)
	if err != nil {
		e.Logger.Error().Err(err).Msg("reload failed, keeping previous knowledge base")
		return fmt.Errorf("reloading knowledge base: %w", err)
	}
	e.base.Store(base)
	e.configured = e.Config.Data.Mapping
	e.logLoaded(base, "knowledge base reloaded")
	e.publish(EventReloaded, base, nil)
	return nil
}

func (e *Engine) logLoaded(base *kb.KnowledgeBase, msg string) {
	st := base.Stats()
	e.Logger.Info().
		Str("source", base.Source().String()).
		Int("techniques", st.Techniques).
		Int("weaknesses", st.Weaknesses).
		Int("mitigations", st.Mitigations).
		Int("issues", st.Issues).
		Str("mapping", st.Mapping).
		Msg(msg)
}

// KB returns the current knowledge base, or nil before Load.
func (e *Engine) KB() *kb.KnowledgeBase { return e.base.Load() }

func (e *Engine) current() (*kb.KnowledgeBase, error) {
	base := e.base.Load()
	if base == nil {
		return nil, ErrNotLoaded
	}
	return base, nil
}

// SwitchMapping makes name the current objective mapping, loading it first
// if needed. It holds reloadMu so a concurrent Reload carries the switch over
// to the base it builds.
func (e *Engine) SwitchMapping(ctx context.Context, name string) error {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()

	base, err := e.current()
	if err != nil {
		return err
	}
	prev := base.CurrentMapping()
	if err := base.UseMapping(name); err != nil {
		if !base.LoadObjectiveMapping(ctx, name) {
			return fmt.Errorf("%w: %s", kb.ErrMappingNotLoaded, name)
		}
	}
	if prev != name {
		e.Logger.Info().Str("from", prev).Str("to", name).Msg("objective mapping switched")
		e.publish(EventMappingSwitched, base, map[string]any{"previous": prev})
	}
	return nil
}

// Search runs q against the current knowledge base. Unset options take the
// configured search defaults.
func (e *Engine) Search(ctx context.Context, q SearchQuery) (kb.Results, error) {
	base, err := e.current()
	if err != nil {
		return kb.Results{}, err
	}
	opts := kb.SearchOptions{
		Logic:     q.Logic,
		Substring: e.Config.Search.Substring,
	}
	if opts.Logic == "" {
		opts.Logic = e.Config.Search.DefaultLogic
	}
	if q.Substring != nil {
		opts.Substring = *q.Substring
	}
	if len(q.Types) > 0 {
		opts.Kinds = make([]store.Kind, 0, len(q.Types))
		for _, t := range q.Types {
			kind, ok := store.ParseKind(t)
			if !ok {
				return kb.Results{}, fmt.Errorf("%w: unknown type %q", kb.ErrInvalidSearchParameters, t)
			}
			opts.Kinds = append(opts.Kinds, kind)
		}
	}
	return base.Search(ctx, q.Query, opts)
}

// Entity returns one entity with the ids of its neighbours.
func (e *Engine) Entity(_ context.Context, q EntityQuery) (EntityReply, error) {
	base, err := e.current()
	if err != nil {
		return EntityReply{}, err
	}
	kind, ok := store.ParseKind(q.Kind)
	if !ok {
		return EntityReply{}, fmt.Errorf("%w: unknown kind %q", ErrEntityNotFound, q.Kind)
	}
	reply := EntityReply{Kind: kind.Singular(), Related: make(map[string][]string)}
	switch kind {
	case store.Techniques:
		t, ok := base.GetTechnique(q.ID)
		if !ok {
			break
		}
		reply.Item = t
		reply.Related["weaknesses"] = weaknessIDs(base.WeaknessesForTechnique(t.ID))
		reply.Related["mitigations"] = base.MitigationIDsForTechnique(t.ID)
		reply.Related["subtechniques"] = techniqueIDs(base.SubtechniquesOf(t.ID))
		reply.Related["objectives"] = base.ObjectivesForTechnique(t.ID)
		return reply, nil
	case store.Weaknesses:
		w, ok := base.GetWeakness(q.ID)
		if !ok {
			break
		}
		reply.Item = w
		reply.Related["techniques"] = techniqueIDs(base.TechniquesForWeakness(w.ID))
		reply.Related["mitigations"] = mitigationIDs(base.MitigationsForWeakness(w.ID))
		return reply, nil
	case store.Mitigations:
		m, ok := base.GetMitigation(q.ID)
		if !ok {
			break
		}
		reply.Item = m
		reply.Related["weaknesses"] = weaknessIDs(base.WeaknessesForMitigation(m.ID))
		reply.Related["techniques"] = techniqueIDs(base.TechniquesForMitigation(m.ID))
		return reply, nil
	}
	return EntityReply{}, fmt.Errorf("%w: %s %s", ErrEntityNotFound, kind.Singular(), q.ID)
}

func techniqueIDs(items []kb.Technique) []string {
	ids := make([]string, len(items))
	for i, t := range items {
		ids[i] = t.ID
	}
	return ids
}

func weaknessIDs(items []kb.Weakness) []string {
	ids := make([]string, len(items))
	for i, w := range items {
		ids[i] = w.ID
	}
	return ids
}

func mitigationIDs(items []kb.Mitigation) []string {
	ids := make([]string, len(items))
	for i, m := range items {
		ids[i] = m.ID
	}
	return ids
}

func (e *Engine) publish(typ EventType, base *kb.KnowledgeBase, details map[string]any) {
	if e.Bus == nil {
		return
	}
	ev := NewKBEvent(typ, base)
	for k, v := range details {
		ev.Details[k] = v
	}
	if err := e.Bus.Publish(ev); err != nil {
		e.Logger.Error().Err(err).Str("event_id", ev.ID).Msg("failed to publish event")
	}
}

// Start starts the event bus when enabled and loads the knowledge base.
func (e *Engine) Start() error {
	e.Logger.Info().Msg("starting solveit engine")

	if e.Config.Bus.Enabled {
		bus, err := NewEventBus(&e.Config.Bus, e.root)
		if err != nil {
			return fmt.Errorf("starting event bus: %w", err)
		}
		e.Bus = bus
		if err := bus.ServeQueries(e.ctx, e); err != nil {
			e.closeBus()
			e.Bus = nil
			return fmt.Errorf("serving bus queries: %w", err)
		}
	}

	var watcher *DataWatcher
	if e.Config.Data.Watch > 0 && (e.Config.Data.Source == SourceFS || e.Config.Data.Source == "") {
		watcher = NewDataWatcher(e.Config.Data.Root, e.Config.Data.Watch, e.Reload,
			e.root.With().Str("component", "watcher").Logger())
	}

	if e.base.Load() == nil {
		if err := e.Load(e.ctx); err != nil {
			e.closeBus()
			e.Bus = nil
			return err
		}
	}

	if watcher != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			watcher.Run(e.ctx)
		}()
	}

	e.startMu.Lock()
	e.startTime = time.Now()
	e.startMu.Unlock()

	e.Logger.Info().Bool("bus", e.Bus != nil).Bool("watch", watcher != nil).Msg("solveit engine started")
	return nil
}

// Run starts the engine and blocks until shutdown signal is received.
func (e *Engine) Run() error {
	if err := e.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		e.Logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case <-e.ctx.Done():
		e.Logger.Info().Msg("context cancelled")
	}

	return e.Shutdown()
}

// Shutdown gracefully stops the engine.
func (e *Engine) Shutdown() error {
	e.Logger.Info().Msg("shutting down solveit engine")
	e.cancel()
	e.wg.Wait()
	e.closeBus()

	e.Logger.Info().Msg("solveit engine stopped")
	return nil
}

func (e *Engine) closeBus() {
	if e.Bus == nil {
		return
	}
	if err := e.Bus.Close(); err != nil {
		e.Logger.Error().Err(err).Msg("error closing event bus")
	}
}

// Context returns the engine's context.
func (e *Engine) Context() context.Context {
	return e.ctx
}

// Uptime returns how long the engine has been running, zero before Start.
func (e *Engine) Uptime() time.Duration {
	e.startMu.RLock()
	defer e.startMu.RUnlock()
	if e.startTime.IsZero() {
		return 0
	}
	return time.Since(e.startTime)
}

// SetStartTimeForTest overrides the start time.
func (e *Engine) SetStartTimeForTest(t time.Time) {
	e.startMu.Lock()
	e.startTime = t
	e.startMu.Unlock()
}
