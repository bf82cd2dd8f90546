package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Dir reads records from a local directory tree:
//
//	<root>/data/techniques/*.json
//	<root>/data/weaknesses/*.json
//	<root>/data/mitigations/*.json
//	<root>/data/<mapping>.json
type Dir struct {
	root string
}

// NewDir returns a Dir rooted at root. It does not touch the filesystem;
// call Check to verify the layout.
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

// Root returns the configured root directory.
func (d *Dir) Root() string { return d.root }

func (d *Dir) String() string { return d.root }

func (d *Dir) dataDir() string { return filepath.Join(d.root, DataDir) }

// Check verifies that the data directory and all three record directories exist.
func (d *Dir) Check(ctx context.Context) error {
	dirs := []string{d.dataDir()}
	for _, k := range Kinds {
		dirs = append(dirs, filepath.Join(d.dataDir(), string(k)))
	}
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return err
		}
		fi, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("stat %s: %w", dir, err)
		}
		if !fi.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
	}
	return nil
}

// Documents reads every *.json file in the kind's directory. A file that
// cannot be read is returned with Err set rather than failing the listing.
func (d *Dir) Documents(ctx context.Context, kind Kind) ([]Document, error) {
	dir := filepath.Join(d.dataDir(), string(kind))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	docs := make([]Document, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !isJSON(e.Name()) {
			continue
		}
		p := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(p)
		if err != nil {
			docs = append(docs, Document{Key: e.Name(), Err: fmt.Errorf("reading %s: %w", p, err)})
			continue
		}
		docs = append(docs, Document{Key: e.Name(), Data: data})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Key < docs[j].Key })
	return docs, nil
}

// Mapping reads <root>/data/<name>.
func (d *Dir) Mapping(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validMappingName(name) {
		return nil, fmt.Errorf("mapping %q: %w", name, ErrNotFound)
	}
	p := filepath.Join(d.dataDir(), name)
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("mapping %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}
	return data, nil
}

// Mappings lists the top-level *.json files in the data directory.
func (d *Dir) Mappings(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(d.dataDir())
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", d.dataDir(), err)
	}
	names := make([]string, 0)
	for _, e := range entries {
		if e.IsDir() || !isJSON(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
