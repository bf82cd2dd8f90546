package main

// ---------------------------------------------------------------------------
// cmd_search.go: ranked search over the knowledge base
// ---------------------------------------------------------------------------

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/solve-it-project/solveit/internal/core"
	"github.com/solve-it-project/solveit/internal/kb"
)

type searchRow struct {
	Kind  string `json:"kind"`
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

func cmdSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	kf := addKBFlags(fs, "warn")
	types := fs.String("types", "", "Comma-separated kinds to search: techniques, weaknesses, mitigations (default all)")
	logic := fs.String("logic", "", "Term logic: AND or OR (default from config)")
	substring := fs.Bool("substring", false, "Match terms inside words")
	limit := fs.Int("limit", 0, "Maximum hits per kind (0 = all)")
	format := fs.String("format", "table", "Output format: table, markdown, json, csv")
	output := fs.String("output", "", "Write output to file")
	query := strings.Join(parseArgs(fs, args), " ")

	if strings.TrimSpace(query) == "" {
		errorf("usage: solveit search <query> [flags]")
	}

	ctx := context.Background()
	engine, _ := kf.open(ctx)
	defer engine.Shutdown()

	q := core.SearchQuery{Query: query, Types: splitList(*types), Logic: *logic}
	if *substring {
		q.Substring = substring
	}
	res, err := engine.Search(ctx, q)
	if err != nil {
		errorf("search failed: %v", err)
	}

	rows := searchRows(res, *limit)

	w, cleanup := outputWriter(*output)
	defer cleanup()

	outFmt := parseFormat(*format)
	if outFmt == FormatJSON {
		printJSON(w, rows)
		return
	}
	if len(rows) == 0 && outFmt == FormatTable {
		fmt.Fprintf(w, "No matches for %q.\n", query)
		return
	}
	tb := newTable(outFmt)
	tb.Header("Kind", "ID", "Name", "Score")
	for _, r := range rows {
		tb.Row(r.Kind, r.ID, truncate(r.Name, 70), r.Score)
	}
	renderTable(w, tb)
}

// searchRows flattens results into display rows, techniques first, keeping
// each kind's ranking and at most limit hits per kind.
func searchRows(res kb.Results, limit int) []searchRow {
	rows := make([]searchRow, 0, res.Total())
	take := func(n int) int {
		if limit > 0 && n > limit {
			return limit
		}
		return n
	}
	for _, h := range res.Techniques[:take(len(res.Techniques))] {
		rows = append(rows, searchRow{"technique", h.Item.ID, h.Item.Name, h.Score})
	}
	for _, h := range res.Weaknesses[:take(len(res.Weaknesses))] {
		rows = append(rows, searchRow{"weakness", h.Item.ID, h.Item.Name, h.Score})
	}
	for _, h := range res.Mitigations[:take(len(res.Mitigations))] {
		rows = append(rows, searchRow{"mitigation", h.Item.ID, h.Item.Name, h.Score})
	}
	return rows
}
