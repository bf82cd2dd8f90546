package main

// ---------------------------------------------------------------------------
// cmd_diagram.go: Graphviz dependency diagrams
// ---------------------------------------------------------------------------

import (
	"context"
	"flag"

	"github.com/solve-it-project/solveit/internal/report"
)

func cmdDiagram(args []string) {
	fs := flag.NewFlagSet("diagram", flag.ExitOnError)
	kf := addKBFlags(fs, "warn")
	objective := fs.String("objective", "", "Draw the techniques of this objective")
	mitigations := fs.Bool("mitigations", false, "Also draw mitigations")
	title := fs.String("title", "", "Graph title (default: the objective name, or SOLVE-IT)")
	output := fs.String("output", "", "Write output to file")
	ids := parseArgs(fs, args)

	ctx := context.Background()
	engine, base := kf.open(ctx)
	defer engine.Shutdown()

	opts := report.DiagramOptions{Title: *title, Mitigations: *mitigations}
	if *objective != "" {
		ids = append(ids, objectiveTechniqueIDs(base, *objective)...)
		if opts.Title == "" {
			opts.Title = *objective
		}
	}
	if len(ids) == 0 {
		errorf("usage: solveit diagram <technique ids...> | --objective <name> [flags]")
	}

	w, cleanup := outputWriter(*output)
	defer cleanup()
	if err := report.WriteDiagram(w, base, ids, opts, engine.Logger); err != nil {
		errorf("writing diagram: %v", err)
	}
}
