package main

// ---------------------------------------------------------------------------
// cmd_stats.go: knowledge base statistics
// ---------------------------------------------------------------------------

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/solve-it-project/solveit/internal/report"
)

func cmdStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	kf := addKBFlags(fs, "warn")
	format := fs.String("format", "table", "Output format: table, markdown, json, csv")
	verbose := fs.Bool("verbose", false, "Also list weaknesses without mitigations and unreferenced mitigations")
	output := fs.String("output", "", "Write output to file")
	parseArgs(fs, args)

	ctx := context.Background()
	engine, base := kf.open(ctx)
	defer engine.Shutdown()

	summary := report.Summarize(base)

	w, cleanup := outputWriter(*output)
	defer cleanup()

	outFmt := parseFormat(*format)
	if outFmt == FormatJSON {
		printJSON(w, summary)
		return
	}
	renderTable(w, summary.Table(tableMode(outFmt)))

	if *verbose && outFmt != FormatCSV {
		if len(summary.WeaknessesWithoutMitigations) > 0 {
			fmt.Fprintf(w, "\n%s %s\n", bold("Weaknesses without mitigations:"), strings.Join(summary.WeaknessesWithoutMitigations, ", "))
		}
		if len(summary.UnreferencedMitigations) > 0 {
			fmt.Fprintf(w, "\n%s %s\n", bold("Unreferenced mitigations:"), strings.Join(summary.UnreferencedMitigations, ", "))
		}
	}
}
