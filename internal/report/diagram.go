package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/solve-it-project/solveit/internal/kb"
)

// DiagramOptions tunes a dependency diagram.
type DiagramOptions struct {
	Title       string
	Mitigations bool // also draw mitigations and weakness -> mitigation edges
}

// WriteDiagram writes a Graphviz digraph of the given techniques, their
// loaded weaknesses and, optionally, those weaknesses' mitigations. Shared
// nodes and edges are drawn once.
func WriteDiagram(w io.Writer, base *kb.KnowledgeBase, ids []string, opts DiagramOptions, logger zerolog.Logger) error {
	title := opts.Title
	if title == "" {
		title = "SOLVE-IT"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "digraph %s {\n", dotQuote(title))
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [fontname=\"Helvetica\"];\n")

	drawn := make(map[string]bool)
	node := func(id, name, attrs string) {
		if drawn[id] {
			return
		}
		drawn[id] = true
		fmt.Fprintf(&b, "  %s [label=%s%s];\n", dotQuote(id), dotQuote(id+"\n"+name), attrs)
	}
	edges := make(map[[2]string]bool)
	edge := func(from, to, color string) {
		if edges[[2]string{from, to}] {
			return
		}
		edges[[2]string{from, to}] = true
		fmt.Fprintf(&b, "  %s -> %s [color=%s];\n", dotQuote(from), dotQuote(to), color)
	}

	for _, id := range ids {
		t, ok := base.GetTechnique(id)
		if !ok {
			logger.Warn().Str("technique", id).Msg("technique not found, skipping")
			continue
		}
		node(t.ID, t.Name, ", shape=ellipse")
		for _, wk := range base.WeaknessesForTechnique(id) {
			node(wk.ID, wk.Name, ", shape=box, color=red")
			edge(t.ID, wk.ID, "red")
			if !opts.Mitigations {
				continue
			}
			for _, m := range base.MitigationsForWeakness(wk.ID) {
				node(m.ID, m.Name, ", shape=note, color=darkgreen")
				edge(wk.ID, m.ID, "darkgreen")
			}
		}
	}
	b.WriteString("}\n")

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("writing diagram: %w", err)
	}
	return nil
}

var dotEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func dotQuote(s string) string {
	return `"` + dotEscaper.Replace(s) + `"`
}
