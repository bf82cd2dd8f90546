package main

// ---------------------------------------------------------------------------
// kb.go: shared flags for commands that load the knowledge base locally
// ---------------------------------------------------------------------------

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/solve-it-project/solveit/internal/core"
	"github.com/solve-it-project/solveit/internal/kb"
)

type kbFlags struct {
	configPath *string
	dataRoot   *string
	mapping    *string
	logLevel   *string
}

// addKBFlags registers the flags every offline command shares. Offline
// commands log at warn by default so that reports stay readable.
func addKBFlags(fs *flag.FlagSet, defaultLevel string) *kbFlags {
	return &kbFlags{
		configPath: fs.String("config", defaultConfigPath, "Config file path"),
		dataRoot:   fs.String("data", "", "Knowledge base root directory (overrides data.root)"),
		mapping:    fs.String("mapping", "", "Objective mapping to make current (overrides data.mapping)"),
		logLevel:   fs.String("log-level", defaultLevel, "Log level: debug, info, warn, error"),
	}
}

// config loads the config file and applies the flag overrides.
func (f *kbFlags) config() *core.Config {
	path := envConfig(*f.configPath)
	cfg, err := core.LoadConfig(path)
	if err != nil {
		errorf("loading config: %v", err)
	}
	if *f.dataRoot != "" {
		cfg.Data.Source = core.SourceFS
		cfg.Data.Root = *f.dataRoot
	}
	if *f.mapping != "" {
		cfg.Data.Mapping = *f.mapping
	}
	if *f.logLevel != "" {
		cfg.Logging.Level = *f.logLevel
	}
	return cfg
}

// open builds an engine for cfg and loads the knowledge base, exiting on
// failure.
func (f *kbFlags) open(ctx context.Context) (*core.Engine, *kb.KnowledgeBase) {
	return openEngine(ctx, f.config())
}

func openEngine(ctx context.Context, cfg *core.Config) (*core.Engine, *kb.KnowledgeBase) {
	_, errs := cfg.Validate()
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "%s %s\n", red("✗"), e)
		}
		errorf("config validation failed with %d error(s)", len(errs))
	}

	engine, err := core.NewEngine(cfg, os.Stderr)
	if err != nil {
		errorf("creating engine: %v", err)
	}
	if err := engine.Load(ctx); err != nil {
		errorf("%v", err)
	}
	return engine, engine.KB()
}

// objectiveTechniqueIDs resolves the technique ids of an objective in the
// current mapping, exiting when it does not exist.
func objectiveTechniqueIDs(base *kb.KnowledgeBase, name string) []string {
	obj, ok := base.GetObjective(name, "")
	if !ok {
		errorf("objective %q not found in mapping %q", name, base.CurrentMapping())
	}
	return obj.Techniques
}
