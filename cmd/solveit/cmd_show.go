package main

// ---------------------------------------------------------------------------
// cmd_show.go: one entity with its neighbours
// ---------------------------------------------------------------------------

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/solve-it-project/solveit/internal/core"
	"github.com/solve-it-project/solveit/internal/kb"
)

func cmdShow(args []string) {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	kf := addKBFlags(fs, "warn")
	format := fs.String("format", "table", "Output format: table, markdown, json")
	output := fs.String("output", "", "Write output to file")
	ids := parseArgs(fs, args)

	if len(ids) == 0 {
		errorf("usage: solveit show <id> [<id>...] [flags]")
	}

	ctx := context.Background()
	engine, base := kf.open(ctx)
	defer engine.Shutdown()

	w, cleanup := outputWriter(*output)
	defer cleanup()

	outFmt := parseFormat(*format)
	replies := make([]core.EntityReply, 0, len(ids))
	for _, id := range ids {
		id = strings.ToUpper(strings.TrimSpace(id))
		if id == "" {
			continue
		}
		reply, err := engine.Entity(ctx, core.EntityQuery{Kind: id[:1], ID: id})
		if err != nil {
			errorf("%v", err)
		}
		replies = append(replies, reply)
	}

	if outFmt == FormatJSON {
		if len(replies) == 1 {
			printJSON(w, replies[0])
		} else {
			printJSON(w, replies)
		}
		return
	}
	for i, reply := range replies {
		if i > 0 {
			fmt.Fprintln(w)
		}
		writeEntity(w, base, reply, outFmt)
	}
}

// writeEntity renders one entity as a field/value table followed by its
// related ids.
func writeEntity(w io.Writer, base *kb.KnowledgeBase, reply core.EntityReply, outFmt OutputFormat) {
	tb := newTable(outFmt)
	tb.Header("Field", "Value")
	var related []string

	switch item := reply.Item.(type) {
	case kb.Technique:
		fmt.Fprintf(w, "%s %s  %s\n\n", bold("Technique"), item.ID, item.Name)
		tb.Row("Description", item.Description)
		if len(item.Synonyms) > 0 {
			tb.Row("Synonyms", strings.Join(item.Synonyms, "; "))
		}
		if item.Details != "" {
			tb.Row("Details", item.Details)
		}
		if len(item.Examples) > 0 {
			tb.Row("Examples", strings.Join(item.Examples, "\n"))
		}
		if len(item.CASEOutputClasses) > 0 {
			tb.Row("CASE output", strings.Join(item.CASEOutputClasses, "\n"))
		}
		related = []string{"objectives", "subtechniques", "weaknesses", "mitigations"}
	case kb.Weakness:
		fmt.Fprintf(w, "%s %s  %s\n\n", bold("Weakness"), item.ID, item.Name)
		if item.Description != "" {
			tb.Row("Description", item.Description)
		}
		classes := make([]string, 0, len(kb.WeaknessClasses))
		for _, c := range kb.WeaknessClasses {
			if item.HasClass(c) {
				classes = append(classes, c)
			}
		}
		tb.Row("Classes", strings.Join(classes, ", "))
		related = []string{"techniques", "mitigations"}
	case kb.Mitigation:
		fmt.Fprintf(w, "%s %s  %s\n\n", bold("Mitigation"), item.ID, item.Name)
		if item.Description != "" {
			tb.Row("Description", item.Description)
		}
		if t, ok := base.ImplementingTechnique(item.ID); ok {
			tb.Row("Implemented by", t.ID+" "+t.Name)
		}
		related = []string{"weaknesses", "techniques"}
	}

	for _, key := range related {
		ids := reply.Related[key]
		if len(ids) == 0 {
			continue
		}
		tb.Row(strings.ToUpper(key[:1])+key[1:], strings.Join(labelled(base, ids), "\n"))
	}
	tb.Columns(reportColumn(2, 90))
	renderTable(w, tb)
}

// labelled turns entity ids into "ID Name" labels. Non-entity values, such
// as objective names, pass through unchanged.
func labelled(base *kb.KnowledgeBase, ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id
		if t, ok := base.GetTechnique(id); ok {
			out[i] = id + " " + t.Name
		} else if wk, ok := base.GetWeakness(id); ok {
			out[i] = id + " " + wk.Name
		} else if m, ok := base.GetMitigation(id); ok {
			out[i] = id + " " + m.Name
		}
	}
	return out
}
