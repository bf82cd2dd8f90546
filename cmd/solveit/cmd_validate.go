package main

// ---------------------------------------------------------------------------
// cmd_validate.go: load the knowledge base and report skipped records
// ---------------------------------------------------------------------------

import (
	"context"
	"flag"
	"fmt"
	"os"
)

func cmdValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	kf := addKBFlags(fs, "error")
	format := fs.String("format", "table", "Output format: table, markdown, json, csv")
	allowIssues := fs.Bool("allow-issues", false, "Exit 0 even when records were skipped")
	parseArgs(fs, args)

	ctx := context.Background()
	engine, base := kf.open(ctx)
	defer engine.Shutdown()

	st := base.Stats()
	issues := base.Issues()
	outFmt := parseFormat(*format)

	if outFmt == FormatJSON {
		printJSON(os.Stdout, map[string]interface{}{
			"valid":          len(issues) == 0,
			"knowledge_base": st,
			"issues":         issues,
		})
	} else {
		if len(issues) > 0 {
			renderTable(os.Stdout, issueTable(issues, outFmt))
		}
		mark := green("✓")
		if len(issues) > 0 {
			mark = yellow("⚠")
		}
		fmt.Fprintf(os.Stdout, "%s %d techniques, %d weaknesses, %d mitigations, %d objectives in %s; %d record(s) skipped\n",
			mark, st.Techniques, st.Weaknesses, st.Mitigations, st.Objectives, st.Mapping, len(issues))
	}

	if len(issues) > 0 && !*allowIssues {
		os.Exit(1)
	}
}
