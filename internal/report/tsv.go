// Package report renders the knowledge base as TSV listings, summary
// statistics, the mitigation evaluation matrix, Graphviz diagrams and
// terminal tables.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/solve-it-project/solveit/internal/kb"
)

// Section selects what a TSV listing covers.
type Section string

const (
	SectionObjectives  Section = "objectives"
	SectionTechniques  Section = "techniques"
	SectionWeaknesses  Section = "weaknesses"
	SectionMitigations Section = "mitigations"
	SectionCASE        Section = "case"
)

// Sections lists every TSV section.
var Sections = []Section{SectionObjectives, SectionTechniques, SectionWeaknesses, SectionMitigations, SectionCASE}

// ParseSection accepts a section name or its first letter.
func ParseSection(s string) (Section, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, sec := range Sections {
		if s == string(sec) || (len(s) == 1 && s[0] == sec[0]) {
			return sec, nil
		}
	}
	return "", fmt.Errorf("unknown TSV section %q", s)
}

// PlaceholderTechnique is the root placeholder technique, left out of
// technique listings by default.
const PlaceholderTechnique = "T1000"

// TSVOptions tunes a TSV listing.
type TSVOptions struct {
	// Long adds the extended columns.
	Long bool
	// Skip lists technique ids to leave out of the technique listing.
	Skip []string
}

// WriteTSV writes one section of the knowledge base as tab separated values
// with a header row. Tabs and line breaks inside values become spaces.
func WriteTSV(w io.Writer, base *kb.KnowledgeBase, sec Section, opts TSVOptions) error {
	tw := &tsvWriter{w: w}
	switch sec {
	case SectionObjectives:
		tw.row("Objective", "Description")
		for _, o := range base.Objectives("") {
			tw.row(o.Name, o.Description)
		}

	case SectionTechniques:
		if opts.Long {
			tw.row("ID", "Name", "Description", "Synonyms")
		} else {
			tw.row("ID", "Name")
		}
		skip := make(map[string]bool, len(opts.Skip))
		for _, id := range opts.Skip {
			skip[id] = true
		}
		for _, t := range base.Techniques() {
			if skip[t.ID] {
				continue
			}
			if opts.Long {
				tw.row(t.ID, t.Name, t.Description, strings.Join(t.Synonyms, "; "))
			} else {
				tw.row(t.ID, t.Name)
			}
		}

	case SectionWeaknesses:
		if opts.Long {
			tw.row(append([]string{"ID", "Name"}, kb.WeaknessClasses...)...)
		} else {
			tw.row("ID", "Name")
		}
		for _, wk := range base.Weaknesses() {
			if !opts.Long {
				tw.row(wk.ID, wk.Name)
				continue
			}
			cols := []string{wk.ID, wk.Name}
			for _, c := range kb.WeaknessClasses {
				cols = append(cols, wk.Class(c))
			}
			tw.row(cols...)
		}

	case SectionMitigations:
		if opts.Long {
			tw.row("ID", "Name", "Technique")
		} else {
			tw.row("ID", "Name")
		}
		for _, m := range base.Mitigations() {
			switch {
			case opts.Long:
				tw.row(m.ID, m.Name, m.Technique)
			case m.Technique != "":
				tw.row(m.ID, fmt.Sprintf("%s (%s)", m.Name, m.Technique))
			default:
				tw.row(m.ID, m.Name)
			}
		}

	case SectionCASE:
		tw.row("ID", "Name", "CASE output classes")
		for _, t := range base.Techniques() {
			tw.row(t.ID, t.Name, strings.Join(t.CASEOutputClasses, "; "))
		}

	default:
		return fmt.Errorf("unknown TSV section %q", sec)
	}
	return tw.err
}

var tsvEscaper = strings.NewReplacer("\t", " ", "\r\n", " ", "\n", " ", "\r", " ")

type tsvWriter struct {
	w   io.Writer
	err error
}

func (t *tsvWriter) row(cols ...string) {
	if t.err != nil {
		return
	}
	clean := make([]string, len(cols))
	for i, c := range cols {
		clean[i] = tsvEscaper.Replace(c)
	}
	_, t.err = io.WriteString(t.w, strings.Join(clean, "\t")+"\n")
}
