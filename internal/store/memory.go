package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Memory is a map-backed Source for tests and embedding.
type Memory struct {
	mu       sync.RWMutex
	docs     map[Kind]map[string][]byte
	mappings map[string][]byte
	checkErr error
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		docs: map[Kind]map[string][]byte{
			Techniques:  {},
			Weaknesses:  {},
			Mitigations: {},
		},
		mappings: map[string][]byte{},
	}
}

// Put stores a raw record document under key.
func (m *Memory) Put(kind Kind, key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs[kind] == nil {
		m.docs[kind] = map[string][]byte{}
	}
	m.docs[kind][key] = data
}

// PutJSON marshals v and stores it under key.
func (m *Memory) PutJSON(kind Kind, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s/%s: %w", kind, key, err)
	}
	m.Put(kind, key, data)
	return nil
}

// PutMapping stores a raw objective mapping document.
func (m *Memory) PutMapping(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mappings[name] = data
}

// SetCheckError makes Check fail with err, simulating a missing root.
func (m *Memory) SetCheckError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkErr = err
}

func (m *Memory) String() string { return "memory" }

func (m *Memory) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkErr
}

func (m *Memory) Documents(ctx context.Context, kind Kind) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := make([]Document, 0, len(m.docs[kind]))
	for key, data := range m.docs[kind] {
		docs = append(docs, Document{Key: key, Data: data})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Key < docs[j].Key })
	return docs, nil
}

func (m *Memory) Mapping(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.mappings[name]
	if !ok {
		return nil, fmt.Errorf("mapping %q: %w", name, ErrNotFound)
	}
	return data, nil
}

func (m *Memory) Mappings(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.mappings))
	for name := range m.mappings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
