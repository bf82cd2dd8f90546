package main

// ---------------------------------------------------------------------------
// cmd_tsv.go: TSV listings of the knowledge base
// ---------------------------------------------------------------------------

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/solve-it-project/solveit/internal/report"
)

func cmdTSV(args []string) {
	fs := flag.NewFlagSet("tsv", flag.ExitOnError)
	kf := addKBFlags(fs, "warn")
	long := fs.Bool("long", false, "Include the extended columns")
	skip := fs.String("skip", report.PlaceholderTechnique, "Comma-separated technique ids to leave out of the technique listing")
	all := fs.Bool("all", false, "Write every section as <section>.tsv into --dir")
	dir := fs.String("dir", ".", "Output directory for --all")
	output := fs.String("output", "", "Write output to file")
	rest := parseArgs(fs, args)

	if !*all && len(rest) != 1 {
		errorf("usage: solveit tsv <objectives|techniques|weaknesses|mitigations|case> [flags]\n       solveit tsv --all [--dir out]")
	}

	ctx := context.Background()
	engine, base := kf.open(ctx)
	defer engine.Shutdown()

	opts := report.TSVOptions{Long: *long, Skip: splitList(*skip)}

	if *all {
		if err := os.MkdirAll(*dir, 0o755); err != nil {
			errorf("creating %s: %v", *dir, err)
		}
		for _, sec := range report.Sections {
			path := filepath.Join(*dir, string(sec)+".tsv")
			w, cleanup := outputWriter(path)
			err := report.WriteTSV(w, base, sec, opts)
			cleanup()
			if err != nil {
				errorf("writing %s: %v", path, err)
			}
			fmt.Fprintf(os.Stderr, "%s wrote %s\n", green("✓"), path)
		}
		return
	}

	sec, err := report.ParseSection(rest[0])
	if err != nil {
		errorf("%v", err)
	}
	w, cleanup := outputWriter(*output)
	defer cleanup()
	if err := report.WriteTSV(w, base, sec, opts); err != nil {
		errorf("writing TSV: %v", err)
	}
}
