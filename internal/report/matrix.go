package report

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/solve-it-project/solveit/internal/kb"
)

// MatrixPending marks a weakness/mitigation cell awaiting evaluation.
const MatrixPending = "-"

// WriteMatrix writes the mitigation evaluation matrix as CSV.
//
// The header row holds ID, Name, the six weakness classes and M0..Mn-1,
// where n is the knowledge base's MaxMitigationsPerTechnique. Each technique
// then gets a heading row naming its mitigations in column order, followed
// by one row per loaded weakness with its class flags and MatrixPending in
// every column whose mitigation addresses that weakness.
//
// An empty ids list writes every technique. Unknown ids are logged and skipped.
func WriteMatrix(w io.Writer, base *kb.KnowledgeBase, ids []string, logger zerolog.Logger) error {
	if len(ids) == 0 {
		ids = base.TechniqueIDs()
	}
	width := base.MaxMitigationsPerTechnique()
	fixed := 2 + len(kb.WeaknessClasses)

	cw := csv.NewWriter(w)
	header := append([]string{"ID", "Name"}, kb.WeaknessClasses...)
	for i := 0; i < width; i++ {
		header = append(header, fmt.Sprintf("M%d", i))
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing matrix header: %w", err)
	}

	for _, id := range ids {
		t, ok := base.GetTechnique(id)
		if !ok {
			logger.Warn().Str("technique", id).Msg("technique not found, skipping")
			continue
		}

		mits := base.MitigationIDsForTechnique(id)
		column := make(map[string]int, len(mits))
		heading := make([]string, fixed+width)
		heading[0], heading[1] = t.ID, t.Name
		for i, c := range kb.WeaknessClasses {
			heading[2+i] = c
		}
		for i, mid := range mits {
			column[mid] = fixed + i
			label := mid
			if m, ok := base.GetMitigation(mid); ok {
				label = mid + ": " + m.Name
			}
			heading[fixed+i] = label
		}
		if err := cw.Write(heading); err != nil {
			return fmt.Errorf("writing matrix row %s: %w", id, err)
		}

		for _, wk := range base.WeaknessesForTechnique(id) {
			row := make([]string, fixed+width)
			row[0], row[1] = wk.ID, wk.Name
			for i, c := range kb.WeaknessClasses {
				row[2+i] = wk.Class(c)
			}
			for _, mid := range wk.Mitigations {
				if col, ok := column[mid]; ok {
					row[col] = MatrixPending
				}
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("writing matrix row %s/%s: %w", id, wk.ID, err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}
