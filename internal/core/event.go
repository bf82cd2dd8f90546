package core

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/solve-it-project/solveit/internal/kb"
)

// EventType names a knowledge base lifecycle event.
type EventType string

const (
	EventLoaded          EventType = "loaded"
	EventReloaded        EventType = "reloaded"
	EventMappingSwitched EventType = "mapping_switched"
)

// KBEvent is published to the event bus whenever the served knowledge base
// changes.
type KBEvent struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	Source    string         `json:"source"`
	Mapping   string         `json:"mapping"`
	Stats     kb.Stats       `json:"stats"`
	Details   map[string]any `json:"details,omitempty"`
}

// NewKBEvent stamps an event describing base.
func NewKBEvent(typ EventType, base *kb.KnowledgeBase) *KBEvent {
	ev := &KBEvent{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      typ,
		Details:   make(map[string]any),
	}
	if base != nil {
		ev.Source = base.Source().String()
		ev.Mapping = base.CurrentMapping()
		ev.Stats = base.Stats()
	}
	return ev
}

// Subject is the bus subject the event is published on.
func (e *KBEvent) Subject() string {
	return subjectEventsPrefix + string(e.Type)
}

// Marshal serializes the event to JSON.
func (e *KBEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalKBEvent deserializes a KBEvent from JSON.
func UnmarshalKBEvent(data []byte) (*KBEvent, error) {
	var event KBEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// SearchQuery is the request payload on the search query subject and the
// decoded form of the HTTP search parameters.
type SearchQuery struct {
	Query     string   `json:"query"`
	Types     []string `json:"types,omitempty"`
	Substring *bool    `json:"substring,omitempty"`
	Logic     string   `json:"logic,omitempty"`
}

// EntityQuery asks for one entity and its relations.
type EntityQuery struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// EntityReply is an entity with the ids it is related to.
type EntityReply struct {
	Kind    string              `json:"kind"`
	Item    any                 `json:"item"`
	Related map[string][]string `json:"related"`
}

// QueryReply wraps every request/reply answer.
type QueryReply struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}
