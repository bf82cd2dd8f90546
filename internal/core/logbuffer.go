package core

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// LogEntry is one captured log line. Loader lines carry the record id and
// store key of the document they are about.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Component string    `json:"component,omitempty"`
	Message   string    `json:"message"`
	ID        string    `json:"id,omitempty"`
	Key       string    `json:"key,omitempty"`
	Raw       string    `json:"raw"`
}

var levelRank = map[string]int{
	"trace": 0,
	"debug": 1,
	"info":  2,
	"warn":  3,
	"error": 4,
	"fatal": 5,
	"panic": 6,
}

// LogFilter selects entries. Level is a minimum; empty fields match all.
type LogFilter struct {
	Level     string
	Component string
	ID        string
}

// ParseLogFilter validates the level name.
func ParseLogFilter(level, component, id string) (LogFilter, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	if level != "" {
		if _, ok := levelRank[level]; !ok {
			return LogFilter{}, fmt.Errorf("unknown log level %q", level)
		}
	}
	return LogFilter{Level: level, Component: component, ID: id}, nil
}

func (f LogFilter) match(e LogEntry) bool {
	if f.Level != "" {
		rank, ok := levelRank[e.Level]
		if !ok || rank < levelRank[f.Level] {
			return false
		}
	}
	if f.Component != "" && e.Component != f.Component {
		return false
	}
	return f.ID == "" || e.ID == f.ID
}

// LogRingBuffer keeps the last maxSize log lines in memory.
type LogRingBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	maxSize int
	pos     int
	count   int
}

// NewLogRingBuffer creates a ring buffer that holds up to maxSize entries.
func NewLogRingBuffer(maxSize int) *LogRingBuffer {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &LogRingBuffer{
		entries: make([]LogEntry, maxSize),
		maxSize: maxSize,
	}
}

// Write implements io.Writer so the buffer can sit behind zerolog. JSON lines
// are split into fields; anything else is kept verbatim as the message.
func (b *LogRingBuffer) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\n")
	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		Message:   line,
		Raw:       line,
	}

	var fields struct {
		Level     string `json:"level"`
		Component string `json:"component"`
		Message   string `json:"message"`
		ID        string `json:"id"`
		Key       string `json:"key"`
	}
	if strings.HasPrefix(line, "{") && json.Unmarshal([]byte(line), &fields) == nil {
		entry.Level = fields.Level
		entry.Component = fields.Component
		entry.Message = fields.Message
		entry.ID = fields.ID
		entry.Key = fields.Key
	}

	b.mu.Lock()
	b.entries[b.pos] = entry
	b.pos = (b.pos + 1) % b.maxSize
	if b.count < b.maxSize {
		b.count++
	}
	b.mu.Unlock()

	return len(p), nil
}

// Len returns the number of entries held.
func (b *LogRingBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Entries returns up to n of the most recent entries matching f, oldest
// first.
func (b *LogRingBuffer) Entries(n int, f LogFilter) []LogEntry {
	if n <= 0 {
		return []LogEntry{}
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	var newest []LogEntry
	for i := 1; i <= b.count && len(newest) < n; i++ {
		e := b.entries[(b.pos-i+b.maxSize)%b.maxSize]
		if f.match(e) {
			newest = append(newest, e)
		}
	}

	out := make([]LogEntry, len(newest))
	for i, e := range newest {
		out[len(newest)-1-i] = e
	}
	return out
}

// MultiWriter returns a writer feeding both w and the buffer.
func (b *LogRingBuffer) MultiWriter(w io.Writer) io.Writer {
	return io.MultiWriter(w, b)
}
