package kb

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSearchParameters is returned by Search for an unknown logic mode.
	ErrInvalidSearchParameters = errors.New("invalid search parameters")
	// ErrStoreUnavailable wraps the store's cause when its root structure is missing.
	ErrStoreUnavailable = errors.New("record store unavailable")
	// ErrMappingNotLoaded is returned when switching to a mapping that was never loaded.
	ErrMappingNotLoaded = errors.New("objective mapping not loaded")
)

// ValidationError describes why a raw record was rejected.
type ValidationError struct {
	Kind   string // technique, weakness, mitigation, objective
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: field %q %s", e.Kind, e.Field, e.Reason)
}

// LoadIssue records one document that was skipped (or partially skipped)
// while loading.
type LoadIssue struct {
	Kind    string `json:"kind"`
	Key     string `json:"key"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func newIssue(kind, key, id string, err error) LoadIssue {
	return LoadIssue{Kind: kind, Key: key, ID: id, Message: err.Error(), Err: err}
}
