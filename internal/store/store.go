// Package store reads raw knowledge-base records from a backing store.
//
// A store holds three record collections (techniques, weaknesses,
// mitigations), one JSON document per record, plus any number of top-level
// objective mapping documents. Stores are read-only: nothing in this package
// writes back.
package store

import (
	"context"
	"errors"
	"path"
	"strings"
)

// Kind names one of the three record collections.
type Kind string

const (
	Techniques  Kind = "techniques"
	Weaknesses  Kind = "weaknesses"
	Mitigations Kind = "mitigations"
)

// Kinds lists every record collection in load order.
var Kinds = []Kind{Techniques, Weaknesses, Mitigations}

// DataDir is the directory (or key prefix) under the store root that holds
// the record collections and mapping documents.
const DataDir = "data"

// ErrNotFound is returned when a named document does not exist.
var ErrNotFound = errors.New("document not found")

// ParseKind accepts the plural collection name or its singular form,
// case-insensitively.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "techniques", "technique", "t":
		return Techniques, true
	case "weaknesses", "weakness", "w":
		return Weaknesses, true
	case "mitigations", "mitigation", "m":
		return Mitigations, true
	}
	return "", false
}

// Singular returns the singular noun for the kind ("technique").
func (k Kind) Singular() string {
	switch k {
	case Techniques:
		return "technique"
	case Weaknesses:
		return "weakness"
	case Mitigations:
		return "mitigation"
	}
	return string(k)
}

// Document is one raw record. Err is set when the record could not be read;
// Data is nil in that case.
type Document struct {
	Key  string
	Data []byte
	Err  error
}

// Source is a read-only record store.
type Source interface {
	// Check reports whether the store's root structure is present and
	// readable. A failing Check is the only fatal condition for a load.
	Check(ctx context.Context) error
	// Documents returns every record of a kind, ordered by key.
	Documents(ctx context.Context, kind Kind) ([]Document, error)
	// Mapping returns the raw objective mapping document with the given
	// name (e.g. "solve-it.json"). Missing documents yield ErrNotFound.
	Mapping(ctx context.Context, name string) ([]byte, error)
	// Mappings lists the available mapping document names, sorted.
	Mappings(ctx context.Context) ([]string, error)
	String() string
}

func isJSON(name string) bool {
	return strings.EqualFold(path.Ext(name), ".json")
}

// validMappingName rejects names that would escape the data directory.
func validMappingName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}
