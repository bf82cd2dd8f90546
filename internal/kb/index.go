package kb

import "sort"

// Indices are the reverse relationship tables derived from the forward
// edges on techniques and weaknesses. They are rebuilt in full on every load.
type Indices struct {
	WeaknessToTechniques   map[string][]string `json:"weakness_to_techniques"`
	MitigationToWeaknesses map[string][]string `json:"mitigation_to_weaknesses"`
	MitigationToTechniques map[string][]string `json:"mitigation_to_techniques"`
}

// BuildIndices derives the reverse indices. It is a pure function of its
// inputs.
//
// Repeated forward edges are kept in the weakness and mitigation tables so
// that each table holds exactly as many entries as there are forward edges.
// The mitigation to technique table is a set union and carries no duplicates.
// Every list is sorted. Ids that do not resolve to a loaded entity are
// indexed all the same; traversals filter them.
func BuildIndices(techniques map[string]Technique, weaknesses map[string]Weakness) Indices {
	ix := Indices{
		WeaknessToTechniques:   make(map[string][]string),
		MitigationToWeaknesses: make(map[string][]string),
		MitigationToTechniques: make(map[string][]string),
	}

	for _, tid := range sortedKeys(techniques) {
		for _, wid := range techniques[tid].Weaknesses {
			ix.WeaknessToTechniques[wid] = append(ix.WeaknessToTechniques[wid], tid)
		}
	}

	for _, wid := range sortedKeys(weaknesses) {
		for _, mid := range weaknesses[wid].Mitigations {
			ix.MitigationToWeaknesses[mid] = append(ix.MitigationToWeaknesses[mid], wid)
		}
	}

	for mid, wids := range ix.MitigationToWeaknesses {
		set := make(map[string]struct{})
		for _, wid := range wids {
			for _, tid := range ix.WeaknessToTechniques[wid] {
				set[tid] = struct{}{}
			}
		}
		tids := make([]string, 0, len(set))
		for tid := range set {
			tids = append(tids, tid)
		}
		ix.MitigationToTechniques[mid] = tids
	}

	for _, table := range []map[string][]string{
		ix.WeaknessToTechniques,
		ix.MitigationToWeaknesses,
		ix.MitigationToTechniques,
	} {
		for _, ids := range table {
			sort.Strings(ids)
		}
	}
	return ix
}

// Clone returns a deep copy.
func (ix Indices) Clone() Indices {
	return Indices{
		WeaknessToTechniques:   cloneTable(ix.WeaknessToTechniques),
		MitigationToWeaknesses: cloneTable(ix.MitigationToWeaknesses),
		MitigationToTechniques: cloneTable(ix.MitigationToTechniques),
	}
}

// EdgeCount returns the total number of entries across a table.
func EdgeCount(table map[string][]string) int {
	n := 0
	for _, ids := range table {
		n += len(ids)
	}
	return n
}

func cloneTable(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
