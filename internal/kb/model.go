package kb

import (
	"strings"

	"github.com/solve-it-project/solveit/internal/store"
)

// Technique is a forensic method. Weaknesses holds the forward edges the
// reverse indices are built from.
type Technique struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	Synonyms          []string `json:"synonyms"`
	Details           string   `json:"details"`
	Subtechniques     []string `json:"subtechniques"`
	Examples          []string `json:"examples"`
	Weaknesses        []string `json:"weaknesses"`
	CASEOutputClasses []string `json:"CASE_output_classes"`
	References        []string `json:"references"`
}

// Weakness is a way a technique can fail or mislead. Name carries the
// primary description; the six class flags are free text, conventionally
// "x" or empty.
type Weakness struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Mitigations []string `json:"mitigations"`
	Incomp      string   `json:"INCOMP"`
	InacEx      string   `json:"INAC-EX"`
	InacAs      string   `json:"INAC-AS"`
	InacAlt     string   `json:"INAC-ALT"`
	InacCor     string   `json:"INAC-COR"`
	Misint      string   `json:"MISINT"`
	References  []string `json:"references"`
}

// WeaknessClasses lists the weakness class flags in report order.
var WeaknessClasses = []string{"INCOMP", "INAC-EX", "INAC-AS", "INAC-ALT", "INAC-COR", "MISINT"}

// Class returns the raw value of a class flag by its storage name
// ("INAC-EX"); the underscore spelling is accepted too.
func (w Weakness) Class(name string) string {
	switch strings.ReplaceAll(strings.ToUpper(name), "_", "-") {
	case "INCOMP":
		return w.Incomp
	case "INAC-EX":
		return w.InacEx
	case "INAC-AS":
		return w.InacAs
	case "INAC-ALT":
		return w.InacAlt
	case "INAC-COR":
		return w.InacCor
	case "MISINT":
		return w.Misint
	}
	return ""
}

// HasClass reports whether a class flag is set to anything but whitespace.
func (w Weakness) HasClass(name string) bool {
	return strings.TrimSpace(w.Class(name)) != ""
}

// Mitigation addresses one or more weaknesses. Technique optionally names
// the technique that implements it.
type Mitigation struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Technique   string   `json:"technique"`
	References  []string `json:"references"`
}

// Objective groups techniques within one objective mapping.
type Objective struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Techniques  []string `json:"techniques"`
}

var idPrefix = map[store.Kind]byte{
	store.Techniques:  'T',
	store.Weaknesses:  'W',
	store.Mitigations: 'M',
}

// ValidID reports whether id is the kind's prefix letter followed by one or
// more ASCII digits.
func ValidID(kind store.Kind, id string) bool {
	p, ok := idPrefix[kind]
	if !ok || len(id) < 2 || id[0] != p {
		return false
	}
	for i := 1; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return false
		}
	}
	return true
}

// fields reads typed values out of a decoded JSON object. Absent and null
// values take the zero default; wrong types are validation errors.
type fields struct {
	kind string
	raw  map[string]any
}

func (f fields) invalid(field, reason string) error {
	return &ValidationError{Kind: f.kind, Field: field, Reason: reason}
}

func (f fields) lookup(keys ...string) (string, any, bool) {
	for _, k := range keys {
		if v, ok := f.raw[k]; ok && v != nil {
			return k, v, true
		}
	}
	return keys[0], nil, false
}

func (f fields) optString(keys ...string) (string, error) {
	k, v, ok := f.lookup(keys...)
	if !ok {
		return "", nil
	}
	s, isStr := v.(string)
	if !isStr {
		return "", f.invalid(k, "must be a string")
	}
	return s, nil
}

func (f fields) reqString(key string) (string, error) {
	if _, ok := f.raw[key]; !ok {
		return "", f.invalid(key, "is required")
	}
	if f.raw[key] == nil {
		return "", f.invalid(key, "must not be null")
	}
	return f.optString(key)
}

func (f fields) nonEmpty(key string) (string, error) {
	s, err := f.reqString(key)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(s) == "" {
		return "", f.invalid(key, "must not be empty")
	}
	return s, nil
}

func (f fields) list(key string) ([]string, error) {
	_, v, ok := f.lookup(key)
	if !ok {
		return []string{}, nil
	}
	items, isList := v.([]any)
	if !isList {
		return nil, f.invalid(key, "must be a list of strings")
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, isStr := it.(string)
		if !isStr {
			return nil, f.invalid(key, "must contain only strings")
		}
		out = append(out, s)
	}
	return out, nil
}

func (f fields) id(kind store.Kind) (string, error) {
	id, err := f.reqString("id")
	if err != nil {
		return "", err
	}
	if !ValidID(kind, id) {
		return "", f.invalid("id", "must be '"+string(idPrefix[kind])+"' followed by digits, got '"+id+"'")
	}
	return id, nil
}

// firstErr returns the first non-nil error.
func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// NewTechnique validates a decoded technique record.
func NewTechnique(raw map[string]any) (Technique, error) {
	f := fields{kind: "technique", raw: raw}
	var t Technique
	var errs [10]error
	t.ID, errs[0] = f.id(store.Techniques)
	t.Name, errs[1] = f.nonEmpty("name")
	t.Description, errs[2] = f.reqString("description")
	t.Synonyms, errs[3] = f.list("synonyms")
	t.Details, errs[4] = f.optString("details")
	t.Subtechniques, errs[5] = f.list("subtechniques")
	t.Examples, errs[6] = f.list("examples")
	t.Weaknesses, errs[7] = f.list("weaknesses")
	t.CASEOutputClasses, errs[8] = f.list("CASE_output_classes")
	t.References, errs[9] = f.list("references")
	if err := firstErr(errs[:]...); err != nil {
		return Technique{}, err
	}
	return t, nil
}

// NewWeakness validates a decoded weakness record. Class flags are read from
// the hyphenated storage keys ("INAC-EX") or their underscore spelling.
func NewWeakness(raw map[string]any) (Weakness, error) {
	f := fields{kind: "weakness", raw: raw}
	var w Weakness
	var errs [11]error
	w.ID, errs[0] = f.id(store.Weaknesses)
	w.Name, errs[1] = f.nonEmpty("name")
	w.Description, errs[2] = f.optString("description")
	w.Mitigations, errs[3] = f.list("mitigations")
	w.Incomp, errs[4] = f.optString("INCOMP")
	w.InacEx, errs[5] = f.optString("INAC-EX", "INAC_EX")
	w.InacAs, errs[6] = f.optString("INAC-AS", "INAC_AS")
	w.InacAlt, errs[7] = f.optString("INAC-ALT", "INAC_ALT")
	w.InacCor, errs[8] = f.optString("INAC-COR", "INAC_COR")
	w.Misint, errs[9] = f.optString("MISINT")
	w.References, errs[10] = f.list("references")
	if err := firstErr(errs[:]...); err != nil {
		return Weakness{}, err
	}
	return w, nil
}

// NewMitigation validates a decoded mitigation record.
func NewMitigation(raw map[string]any) (Mitigation, error) {
	f := fields{kind: "mitigation", raw: raw}
	var m Mitigation
	var errs [5]error
	m.ID, errs[0] = f.id(store.Mitigations)
	m.Name, errs[1] = f.nonEmpty("name")
	m.Description, errs[2] = f.optString("description")
	m.Technique, errs[3] = f.optString("technique")
	m.References, errs[4] = f.list("references")
	if err := firstErr(errs[:]...); err != nil {
		return Mitigation{}, err
	}
	return m, nil
}

// NewObjective validates one objective from a mapping. Technique ids must be
// well formed but need not exist.
func NewObjective(raw map[string]any) (Objective, error) {
	f := fields{kind: "objective", raw: raw}
	var o Objective
	var errs [3]error
	o.Name, errs[0] = f.nonEmpty("name")
	o.Description, errs[1] = f.nonEmpty("description")
	o.Techniques, errs[2] = f.list("techniques")
	if err := firstErr(errs[:]...); err != nil {
		return Objective{}, err
	}
	for _, id := range o.Techniques {
		if !ValidID(store.Techniques, id) {
			return Objective{}, f.invalid("techniques", "contains malformed technique id '"+id+"'")
		}
	}
	return o, nil
}
