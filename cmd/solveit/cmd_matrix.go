package main

// ---------------------------------------------------------------------------
// cmd_matrix.go: mitigation evaluation matrix
// ---------------------------------------------------------------------------

import (
	"context"
	"flag"

	"github.com/solve-it-project/solveit/internal/report"
)

func cmdMatrix(args []string) {
	fs := flag.NewFlagSet("matrix", flag.ExitOnError)
	kf := addKBFlags(fs, "warn")
	objective := fs.String("objective", "", "Only the techniques of this objective")
	output := fs.String("output", "", "Write output to file")
	ids := parseArgs(fs, args)

	ctx := context.Background()
	engine, base := kf.open(ctx)
	defer engine.Shutdown()

	if *objective != "" {
		ids = append(ids, objectiveTechniqueIDs(base, *objective)...)
	}

	w, cleanup := outputWriter(*output)
	defer cleanup()
	if err := report.WriteMatrix(w, base, ids, engine.Logger); err != nil {
		errorf("writing matrix: %v", err)
	}
}
