package main

// ---------------------------------------------------------------------------
// cmd_export.go: relational snapshot export
// ---------------------------------------------------------------------------

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/solve-it-project/solveit/internal/snapshot"
)

func cmdExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	kf := addKBFlags(fs, "warn")
	driver := fs.String("driver", "", "Snapshot driver: sqlite or postgres (default from config)")
	dsn := fs.String("dsn", "", "SQLite file or Postgres connection string (default from config)")
	timeoutStr := fs.String("timeout", "2m", "Export timeout")
	jsonOut := fs.Bool("json", false, "Print row counts as JSON")
	parseArgs(fs, args)

	timeout, err := time.ParseDuration(*timeoutStr)
	if err != nil {
		errorf("invalid timeout %q: %v", *timeoutStr, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cfg := kf.config()
	if *driver != "" {
		cfg.Snapshot.Driver = *driver
	}
	if *dsn != "" {
		cfg.Snapshot.DSN = *dsn
	}

	engine, base := openEngine(ctx, cfg)
	defer engine.Shutdown()

	exp, err := snapshot.Open(ctx, cfg.Snapshot.Driver, cfg.Snapshot.DSN, engine.Logger)
	if err != nil {
		errorf("opening snapshot database: %v", err)
	}
	defer exp.Close()

	counts, err := exp.Export(ctx, base)
	if err != nil {
		errorf("export failed: %v", err)
	}

	if *jsonOut {
		printJSON(os.Stdout, counts)
		return
	}
	fmt.Fprintf(os.Stdout, "%s Exported %d techniques, %d weaknesses, %d mitigations, %d objectives\n",
		green("✓"), counts.Techniques, counts.Weaknesses, counts.Mitigations, counts.Objectives)
	fmt.Fprintf(os.Stdout, "  %d technique→weakness and %d weakness→mitigation edges\n",
		counts.TechniqueWeaknesses, counts.WeaknessMitigations)
}
