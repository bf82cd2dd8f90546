package report

import (
	"github.com/solve-it-project/solveit/internal/kb"
)

// Summary is the knowledge base statistics sheet.
type Summary struct {
	Mapping                      string         `json:"mapping"`
	Objectives                   int            `json:"num_objectives"`
	Techniques                   int            `json:"num_techniques"`
	Weaknesses                   int            `json:"num_weaknesses"`
	Mitigations                  int            `json:"num_mitigations"`
	TechniquesWithWeaknesses     int            `json:"techniques_with_weaknesses"`
	WeaknessesWithMitigations    int            `json:"weaknesses_with_mitigations"`
	WeaknessesWithoutMitigations []string       `json:"weaknesses_without_mitigations"`
	UnreferencedMitigations      []string       `json:"unreferenced_mitigations"`
	WeaknessClasses              map[string]int `json:"weakness_classes"`
	MaxMitigationsPerTechnique   int            `json:"max_mitigations_per_technique"`
	LoadIssues                   int            `json:"load_issues"`
}

// Summarize computes the statistics sheet for the current mapping.
func Summarize(base *kb.KnowledgeBase) Summary {
	s := Summary{
		Mapping:                      base.CurrentMapping(),
		Objectives:                   len(base.Objectives("")),
		WeaknessesWithoutMitigations: []string{},
		UnreferencedMitigations:      []string{},
		WeaknessClasses:              make(map[string]int, len(kb.WeaknessClasses)),
		MaxMitigationsPerTechnique:   base.MaxMitigationsPerTechnique(),
		LoadIssues:                   len(base.Issues()),
	}

	for _, t := range base.Techniques() {
		s.Techniques++
		if len(t.Weaknesses) > 0 {
			s.TechniquesWithWeaknesses++
		}
	}

	for _, c := range kb.WeaknessClasses {
		s.WeaknessClasses[c] = 0
	}
	for _, w := range base.Weaknesses() {
		s.Weaknesses++
		if len(w.Mitigations) > 0 {
			s.WeaknessesWithMitigations++
		} else {
			s.WeaknessesWithoutMitigations = append(s.WeaknessesWithoutMitigations, w.ID)
		}
		for _, c := range kb.WeaknessClasses {
			if w.HasClass(c) {
				s.WeaknessClasses[c]++
			}
		}
	}

	for _, m := range base.Mitigations() {
		s.Mitigations++
		if len(base.WeaknessesForMitigation(m.ID)) == 0 {
			s.UnreferencedMitigations = append(s.UnreferencedMitigations, m.ID)
		}
	}
	return s
}

// Table renders the summary as a two column table.
func (s Summary) Table(m Mode) TableBuilder {
	tb := NewTable(m)
	tb.Header("Metric", "Value")
	mapping := s.Mapping
	if mapping == "" {
		mapping = "(none)"
	}
	tb.Row("Objective mapping", mapping)
	tb.Row("Objectives", s.Objectives)
	tb.Row("Techniques", s.Techniques)
	tb.Row("Weaknesses", s.Weaknesses)
	tb.Row("Mitigations", s.Mitigations)
	tb.Row("Techniques with weaknesses", s.TechniquesWithWeaknesses)
	tb.Row("Weaknesses with mitigations", s.WeaknessesWithMitigations)
	tb.Row("Weaknesses without mitigations", len(s.WeaknessesWithoutMitigations))
	tb.Row("Unreferenced mitigations", len(s.UnreferencedMitigations))
	for _, c := range kb.WeaknessClasses {
		tb.Row("Weaknesses flagged "+c, s.WeaknessClasses[c])
	}
	tb.Row("Max mitigations per technique", s.MaxMitigationsPerTechnique)
	tb.Row("Load issues", s.LoadIssues)
	tb.Columns(ColumnConfig{Number: 2, Align: AlignRight})
	return tb
}
