package kb

// GetTechnique looks a technique up by id.
func (kb *KnowledgeBase) GetTechnique(id string) (Technique, bool) {
	t, ok := kb.techniques[id]
	return t, ok
}

// GetWeakness looks a weakness up by id.
func (kb *KnowledgeBase) GetWeakness(id string) (Weakness, bool) {
	w, ok := kb.weaknesses[id]
	return w, ok
}

// GetMitigation looks a mitigation up by id.
func (kb *KnowledgeBase) GetMitigation(id string) (Mitigation, bool) {
	m, ok := kb.mitigations[id]
	return m, ok
}

// TechniqueIDs returns all technique ids, sorted.
func (kb *KnowledgeBase) TechniqueIDs() []string { return append([]string(nil), kb.techniqueIDs...) }

// WeaknessIDs returns all weakness ids, sorted.
func (kb *KnowledgeBase) WeaknessIDs() []string { return append([]string(nil), kb.weaknessIDs...) }

// MitigationIDs returns all mitigation ids, sorted.
func (kb *KnowledgeBase) MitigationIDs() []string {
	return append([]string(nil), kb.mitigationIDs...)
}

// Techniques returns every technique ordered by id.
func (kb *KnowledgeBase) Techniques() []Technique {
	out := make([]Technique, 0, len(kb.techniqueIDs))
	for _, id := range kb.techniqueIDs {
		out = append(out, kb.techniques[id])
	}
	return out
}

// Weaknesses returns every weakness ordered by id.
func (kb *KnowledgeBase) Weaknesses() []Weakness {
	out := make([]Weakness, 0, len(kb.weaknessIDs))
	for _, id := range kb.weaknessIDs {
		out = append(out, kb.weaknesses[id])
	}
	return out
}

// Mitigations returns every mitigation ordered by id.
func (kb *KnowledgeBase) Mitigations() []Mitigation {
	out := make([]Mitigation, 0, len(kb.mitigationIDs))
	for _, id := range kb.mitigationIDs {
		out = append(out, kb.mitigations[id])
	}
	return out
}

// resolve maps ids to entities in order, dropping ids that do not resolve.
func resolve[T any](ids []string, table map[string]T, onMissing func(id string)) []T {
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		v, ok := table[id]
		if !ok {
			onMissing(id)
			continue
		}
		out = append(out, v)
	}
	return out
}

// WeaknessesForTechnique resolves a technique's weaknesses in declared order.
// Dangling ids are logged and omitted; an unknown technique yields an empty list.
func (kb *KnowledgeBase) WeaknessesForTechnique(id string) []Weakness {
	t, ok := kb.techniques[id]
	if !ok {
		kb.logger.Debug().Str("technique", id).Msg("technique not found")
		return []Weakness{}
	}
	return resolve(t.Weaknesses, kb.weaknesses, func(wid string) {
		kb.logger.Warn().Str("technique", id).Str("weakness", wid).Msg("technique references unknown weakness")
	})
}

// MitigationsForWeakness resolves a weakness's mitigations in declared order.
func (kb *KnowledgeBase) MitigationsForWeakness(id string) []Mitigation {
	w, ok := kb.weaknesses[id]
	if !ok {
		kb.logger.Debug().Str("weakness", id).Msg("weakness not found")
		return []Mitigation{}
	}
	return resolve(w.Mitigations, kb.mitigations, func(mid string) {
		kb.logger.Warn().Str("weakness", id).Str("mitigation", mid).Msg("weakness references unknown mitigation")
	})
}

func (kb *KnowledgeBase) inconsistent(table, key, id string) {
	kb.logger.Warn().Str("index", table).Str("key", key).Str("id", id).Msg("index inconsistency: id does not resolve")
}

// TechniquesForWeakness returns the techniques that declare the weakness.
func (kb *KnowledgeBase) TechniquesForWeakness(id string) []Technique {
	if _, ok := kb.weaknesses[id]; !ok {
		kb.logger.Warn().Str("weakness", id).Msg("weakness not found")
		return []Technique{}
	}
	return resolve(kb.idx.WeaknessToTechniques[id], kb.techniques, func(tid string) {
		kb.inconsistent("weakness_to_techniques", id, tid)
	})
}

// WeaknessesForMitigation returns the weaknesses that declare the mitigation.
func (kb *KnowledgeBase) WeaknessesForMitigation(id string) []Weakness {
	if _, ok := kb.mitigations[id]; !ok {
		kb.logger.Warn().Str("mitigation", id).Msg("mitigation not found")
		return []Weakness{}
	}
	return resolve(kb.idx.MitigationToWeaknesses[id], kb.weaknesses, func(wid string) {
		kb.inconsistent("mitigation_to_weaknesses", id, wid)
	})
}

// TechniquesForMitigation returns the techniques that reach the mitigation
// through any of their weaknesses, each once.
func (kb *KnowledgeBase) TechniquesForMitigation(id string) []Technique {
	if _, ok := kb.mitigations[id]; !ok {
		kb.logger.Warn().Str("mitigation", id).Msg("mitigation not found")
		return []Technique{}
	}
	return resolve(kb.idx.MitigationToTechniques[id], kb.techniques, func(tid string) {
		kb.inconsistent("mitigation_to_techniques", id, tid)
	})
}

// MitigationIDsForTechnique collects the mitigation ids of a technique's
// weaknesses, in the weaknesses' declared order, keeping the first
// occurrence of each id. Report column layout depends on this order.
func (kb *KnowledgeBase) MitigationIDsForTechnique(id string) []string {
	out := make([]string, 0)
	t, ok := kb.techniques[id]
	if !ok {
		return out
	}
	seen := make(map[string]bool)
	for _, wid := range t.Weaknesses {
		w, ok := kb.weaknesses[wid]
		if !ok {
			continue
		}
		for _, mid := range w.Mitigations {
			if seen[mid] {
				continue
			}
			seen[mid] = true
			out = append(out, mid)
		}
	}
	return out
}

// MaxMitigationsPerTechnique is the longest MitigationIDsForTechnique list
// across all techniques.
func (kb *KnowledgeBase) MaxMitigationsPerTechnique() int {
	longest := 0
	for _, id := range kb.techniqueIDs {
		if n := len(kb.MitigationIDsForTechnique(id)); n > longest {
			longest = n
		}
	}
	return longest
}

// SubtechniquesOf resolves a technique's subtechnique ids, omitting any that
// are not loaded.
func (kb *KnowledgeBase) SubtechniquesOf(id string) []Technique {
	t, ok := kb.techniques[id]
	if !ok {
		return []Technique{}
	}
	return resolve(t.Subtechniques, kb.techniques, func(sid string) {
		kb.logger.Warn().Str("technique", id).Str("subtechnique", sid).Msg("technique references unknown subtechnique")
	})
}

// ImplementingTechnique resolves the technique a mitigation is implemented as.
func (kb *KnowledgeBase) ImplementingTechnique(mitigationID string) (Technique, bool) {
	m, ok := kb.mitigations[mitigationID]
	if !ok || m.Technique == "" {
		return Technique{}, false
	}
	t, ok := kb.techniques[m.Technique]
	if !ok {
		kb.logger.Warn().Str("mitigation", mitigationID).Str("technique", m.Technique).Msg("mitigation references unknown technique")
	}
	return t, ok
}
