package main

// ---------------------------------------------------------------------------
// cmd_list.go: list entities, objectives, mappings or load issues
// ---------------------------------------------------------------------------

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/solve-it-project/solveit/internal/kb"
	"github.com/solve-it-project/solveit/internal/report"
	"github.com/solve-it-project/solveit/internal/store"
)

func cmdList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	kf := addKBFlags(fs, "warn")
	objective := fs.String("objective", "", "Only techniques of this objective (list techniques)")
	format := fs.String("format", "table", "Output format: table, markdown, json, csv")
	output := fs.String("output", "", "Write output to file")
	rest := parseArgs(fs, args)

	if len(rest) != 1 {
		errorf("usage: solveit list <techniques|weaknesses|mitigations|objectives|mappings|issues> [flags]")
	}
	what := strings.ToLower(rest[0])

	ctx := context.Background()
	engine, base := kf.open(ctx)
	defer engine.Shutdown()

	w, cleanup := outputWriter(*output)
	defer cleanup()
	outFmt := parseFormat(*format)

	switch what {
	case "objectives", "objective", "o":
		objs := base.Objectives("")
		if outFmt == FormatJSON {
			printJSON(w, objs)
			return
		}
		tb := newTable(outFmt)
		tb.Header("#", "Objective", "Techniques", "Description")
		for i, o := range objs {
			tb.Row(i+1, o.Name, len(o.Techniques), truncate(o.Description, 60))
		}
		tb.Footer("", base.CurrentMapping(), "", "")
		renderTable(w, tb)
		return
	case "mappings":
		available, err := base.AvailableMappings(ctx)
		if err != nil {
			errorf("%v", err)
		}
		if outFmt == FormatJSON {
			printJSON(w, map[string]interface{}{
				"current":   base.CurrentMapping(),
				"loaded":    base.LoadedMappings(),
				"available": available,
			})
			return
		}
		tb := newTable(outFmt)
		tb.Header("Mapping", "Current")
		for _, name := range available {
			mark := ""
			if name == base.CurrentMapping() {
				mark = "*"
			}
			tb.Row(name, mark)
		}
		renderTable(w, tb)
		return
	case "issues":
		issues := base.Issues()
		if outFmt == FormatJSON {
			printJSON(w, issues)
			return
		}
		if len(issues) == 0 {
			fmt.Fprintf(w, "%s No load issues.\n", green("✓"))
			return
		}
		renderTable(w, issueTable(issues, outFmt))
		return
	}

	kind, ok := store.ParseKind(what)
	if !ok {
		errorf("unknown list target %q", rest[0])
	}

	var rows [][]string
	switch kind {
	case store.Techniques:
		techniques := base.Techniques()
		if *objective != "" {
			if _, found := base.GetObjective(*objective, ""); !found {
				errorf("objective %q not found in mapping %q", *objective, base.CurrentMapping())
			}
			techniques = base.TechniquesForObjective(*objective, "")
		}
		if outFmt == FormatJSON {
			printJSON(w, techniques)
			return
		}
		for _, t := range techniques {
			rows = append(rows, []string{t.ID, t.Name, fmt.Sprint(len(t.Weaknesses))})
		}
	case store.Weaknesses:
		weaknesses := base.Weaknesses()
		if outFmt == FormatJSON {
			printJSON(w, weaknesses)
			return
		}
		for _, wk := range weaknesses {
			rows = append(rows, []string{wk.ID, wk.Name, fmt.Sprint(len(wk.Mitigations))})
		}
	case store.Mitigations:
		mitigations := base.Mitigations()
		if outFmt == FormatJSON {
			printJSON(w, mitigations)
			return
		}
		for _, m := range mitigations {
			rows = append(rows, []string{m.ID, m.Name, m.Technique})
		}
	}

	counted := map[store.Kind]string{
		store.Techniques:  "Weaknesses",
		store.Weaknesses:  "Mitigations",
		store.Mitigations: "Technique",
	}
	tb := newTable(outFmt)
	tb.Header("ID", "Name", counted[kind])
	for _, r := range rows {
		tb.Row(r[0], truncate(r[1], 80), r[2])
	}
	tb.Footer("", fmt.Sprintf("%d %s", len(rows), kind), "")
	renderTable(w, tb)
}

func issueTable(issues []kb.LoadIssue, outFmt OutputFormat) report.TableBuilder {
	tb := newTable(outFmt)
	tb.Header("Kind", "Key", "ID", "Problem")
	for _, is := range issues {
		tb.Row(is.Kind, is.Key, is.ID, is.Message)
	}
	tb.Columns(reportColumn(4, 80))
	return tb
}
