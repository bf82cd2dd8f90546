package core

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/solve-it-project/solveit/internal/store"
)

// DataWatcher polls a directory knowledge base and calls onChange when a
// JSON file under its data directory is added, removed or rewritten.
type DataWatcher struct {
	root     string
	interval time.Duration
	onChange func(context.Context) error
	logger   zerolog.Logger
	last     uint64
}

// NewDataWatcher records the current state of root as the baseline.
func NewDataWatcher(root string, interval time.Duration, onChange func(context.Context) error, logger zerolog.Logger) *DataWatcher {
	w := &DataWatcher{
		root:     root,
		interval: interval,
		onChange: onChange,
		logger:   logger,
	}
	if fp, err := Fingerprint(root); err == nil {
		w.last = fp
	}
	return w
}

// Run polls until ctx is cancelled.
func (w *DataWatcher) Run(ctx context.Context) {
	w.logger.Info().Str("root", w.root).Dur("interval", w.interval).Msg("watching data directory")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll reports whether a change was seen and handled. The baseline only
// advances when onChange succeeds, so a half-written file is retried on the
// next tick.
func (w *DataWatcher) poll(ctx context.Context) bool {
	fp, err := Fingerprint(w.root)
	if err != nil {
		w.logger.Warn().Err(err).Str("root", w.root).Msg("scanning data directory")
		return false
	}
	if fp == w.last {
		return false
	}
	w.logger.Info().Str("root", w.root).Msg("data change detected, reloading")
	if err := w.onChange(ctx); err != nil {
		return false
	}
	w.last = fp
	return true
}

// Fingerprint hashes the relative path, size and modification time of every
// JSON file under root's data directory. WalkDir visits in lexical order, so
// the result is stable for an unchanged tree.
func Fingerprint(root string) (uint64, error) {
	dir := filepath.Join(root, store.DataDir)
	h := fnv.New64a()
	var buf [16]byte
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".json") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		h.Write([]byte(filepath.ToSlash(rel)))
		binary.LittleEndian.PutUint64(buf[:8], uint64(info.Size()))
		binary.LittleEndian.PutUint64(buf[8:], uint64(info.ModTime().UnixNano()))
		h.Write(buf[:])
		return nil
	})
	if err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}
