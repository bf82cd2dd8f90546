package main

// ---------------------------------------------------------------------------
// output.go: format flag, table rendering, output helpers
// ---------------------------------------------------------------------------

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/solve-it-project/solveit/internal/report"
)

// OutputFormat enumerates supported output formats.
type OutputFormat int

const (
	FormatTable OutputFormat = iota
	FormatMarkdown
	FormatJSON
	FormatCSV
)

// parseFormat converts a --format string to an OutputFormat.
func parseFormat(s string) OutputFormat {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON
	case "csv":
		return FormatCSV
	case "markdown", "md":
		return FormatMarkdown
	default:
		return FormatTable
	}
}

// tableMode maps an output format onto a report table mode. JSON has no
// table rendering and falls back to ASCII.
func tableMode(f OutputFormat) report.Mode {
	switch f {
	case FormatMarkdown:
		return report.Markdown
	case FormatCSV:
		return report.CSV
	default:
		return report.ASCII
	}
}

func newTable(f OutputFormat) report.TableBuilder {
	return report.NewTable(tableMode(f))
}

// reportColumn caps the width of a 1-based column, wrapping longer cells.
func reportColumn(number, maxWidth int) report.ColumnConfig {
	return report.ColumnConfig{Number: number, MaxWidth: maxWidth}
}

func renderTable(w io.Writer, tb report.TableBuilder) {
	fmt.Fprintln(w, tb.String())
}

func printJSON(w io.Writer, v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		errorf("marshaling output: %v", err)
	}
	fmt.Fprintln(w, string(data))
}

// truncate shortens s to max runes, marking the cut with an ellipsis.
func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}

// ---------------------------------------------------------------------------
// outputWriter writes to file if --output is set, otherwise stdout
// ---------------------------------------------------------------------------

func outputWriter(path string) (*os.File, func()) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}
	}
	f, err := os.Create(path)
	if err != nil {
		errorf("opening output file %q: %v", path, err)
	}
	return f, func() {
		if err := f.Close(); err != nil {
			warnf("closing %s: %v", path, err)
		}
	}
}
