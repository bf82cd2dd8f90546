// Package snapshot exports a loaded knowledge base into relational tables,
// either a SQLite file or a Postgres database, so that it can be queried
// with SQL or joined against case data.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/solve-it-project/solveit/internal/kb"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultSQLitePath = "solveit.db"
)

// Counts reports the rows written per table.
type Counts struct {
	Techniques          int `json:"techniques"`
	Weaknesses          int `json:"weaknesses"`
	Mitigations         int `json:"mitigations"`
	TechniqueWeaknesses int `json:"technique_weaknesses"`
	WeaknessMitigations int `json:"weakness_mitigations"`
	Objectives          int `json:"objectives"`
	ObjectiveTechniques int `json:"objective_techniques"`
}

// Exporter writes snapshots to one database.
type Exporter struct {
	db       *sql.DB
	driver   string
	postgres bool
	logger   zerolog.Logger
}

// Open connects to the snapshot database. driver is "sqlite" (dsn is a file
// path, default solveit.db) or "postgres" (dsn is a pgx connection string).
func Open(ctx context.Context, driver, dsn string, logger zerolog.Logger) (*Exporter, error) {
	e := &Exporter{
		driver: driver,
		logger: logger.With().Str("component", "snapshot").Str("driver", driver).Logger(),
	}
	var sqlDriver string
	switch driver {
	case DriverSQLite, "":
		e.driver = DriverSQLite
		sqlDriver = "sqlite"
		if dsn == "" {
			dsn = defaultSQLitePath
		}
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
				return nil, fmt.Errorf("create dirs: %w", err)
			}
		}
	case DriverPostgres, "pgx":
		e.driver = DriverPostgres
		e.postgres = true
		sqlDriver = "pgx"
		if dsn == "" {
			return nil, errors.New("postgres snapshot requires a dsn")
		}
	default:
		return nil, fmt.Errorf("unknown snapshot driver %q (want sqlite or postgres)", driver)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", e.driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", e.driver, err)
	}
	e.db = db
	return e, nil
}

// DB exposes the underlying connection pool.
func (e *Exporter) DB() *sql.DB { return e.db }

func (e *Exporter) Close() error { return e.db.Close() }

var schema = []string{
	`CREATE TABLE IF NOT EXISTS techniques (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		details TEXT NOT NULL,
		synonyms TEXT NOT NULL,
		subtechniques TEXT NOT NULL,
		examples TEXT NOT NULL,
		case_output_classes TEXT NOT NULL,
		refs TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS weaknesses (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		incomp TEXT NOT NULL,
		inac_ex TEXT NOT NULL,
		inac_as TEXT NOT NULL,
		inac_alt TEXT NOT NULL,
		inac_cor TEXT NOT NULL,
		misint TEXT NOT NULL,
		refs TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS mitigations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		technique TEXT NOT NULL,
		refs TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS technique_weaknesses (
		technique_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		weakness_id TEXT NOT NULL,
		PRIMARY KEY (technique_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS weakness_mitigations (
		weakness_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		mitigation_id TEXT NOT NULL,
		PRIMARY KEY (weakness_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS objectives (
		mapping TEXT NOT NULL,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		PRIMARY KEY (mapping, position)
	)`,
	`CREATE TABLE IF NOT EXISTS objective_techniques (
		mapping TEXT NOT NULL,
		objective TEXT NOT NULL,
		position INTEGER NOT NULL,
		technique_id TEXT NOT NULL,
		PRIMARY KEY (mapping, objective, position)
	)`,
	`CREATE TABLE IF NOT EXISTS snapshot_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// Tables lists the tables Export replaces, in creation order.
var Tables = []string{
	"techniques", "weaknesses", "mitigations",
	"technique_weaknesses", "weakness_mitigations",
	"objectives", "objective_techniques", "snapshot_meta",
}

// Export replaces the snapshot tables with the contents of base in one
// transaction. Every loaded objective mapping is written, not only the
// current one.
func (e *Exporter) Export(ctx context.Context, base *kb.KnowledgeBase) (c Counts, retErr error) {
	start := time.Now()
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return c, fmt.Errorf("begin snapshot: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return c, fmt.Errorf("ensure schema: %w", err)
		}
	}
	for _, table := range Tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return c, fmt.Errorf("clear %s: %w", table, err)
		}
	}

	w := writer{ctx: ctx, tx: tx, postgres: e.postgres}

	for _, t := range base.Techniques() {
		w.exec("techniques", []string{"id", "name", "description", "details", "synonyms", "subtechniques", "examples", "case_output_classes", "refs"},
			t.ID, t.Name, t.Description, t.Details, jsonList(t.Synonyms), jsonList(t.Subtechniques), jsonList(t.Examples), jsonList(t.CASEOutputClasses), jsonList(t.References))
		c.Techniques++
		for i, wid := range t.Weaknesses {
			w.exec("technique_weaknesses", []string{"technique_id", "position", "weakness_id"}, t.ID, i, wid)
			c.TechniqueWeaknesses++
		}
	}
	for _, wk := range base.Weaknesses() {
		w.exec("weaknesses", []string{"id", "name", "description", "incomp", "inac_ex", "inac_as", "inac_alt", "inac_cor", "misint", "refs"},
			wk.ID, wk.Name, wk.Description, wk.Incomp, wk.InacEx, wk.InacAs, wk.InacAlt, wk.InacCor, wk.Misint, jsonList(wk.References))
		c.Weaknesses++
		for i, mid := range wk.Mitigations {
			w.exec("weakness_mitigations", []string{"weakness_id", "position", "mitigation_id"}, wk.ID, i, mid)
			c.WeaknessMitigations++
		}
	}
	for _, m := range base.Mitigations() {
		w.exec("mitigations", []string{"id", "name", "description", "technique", "refs"},
			m.ID, m.Name, m.Description, m.Technique, jsonList(m.References))
		c.Mitigations++
	}
	for _, mapping := range base.LoadedMappings() {
		for i, o := range base.Objectives(mapping) {
			w.exec("objectives", []string{"mapping", "position", "name", "description"}, mapping, i, o.Name, o.Description)
			c.Objectives++
			for j, tid := range o.Techniques {
				w.exec("objective_techniques", []string{"mapping", "objective", "position", "technique_id"}, mapping, o.Name, j, tid)
				c.ObjectiveTechniques++
			}
		}
	}

	meta := [][2]string{
		{"source", base.Source().String()},
		{"current_mapping", base.CurrentMapping()},
		{"exported_at", time.Now().UTC().Format(time.RFC3339)},
	}
	for _, kv := range meta {
		w.exec("snapshot_meta", []string{"key", "value"}, kv[0], kv[1])
	}
	if w.err != nil {
		return c, w.err
	}

	if err := tx.Commit(); err != nil {
		return c, fmt.Errorf("commit snapshot: %w", err)
	}
	e.logger.Info().
		Int("techniques", c.Techniques).
		Int("weaknesses", c.Weaknesses).
		Int("mitigations", c.Mitigations).
		Int("objectives", c.Objectives).
		Dur("took", time.Since(start)).
		Msg("snapshot exported")
	return c, nil
}

// writer runs inserts until the first error.
type writer struct {
	ctx      context.Context
	tx       *sql.Tx
	postgres bool
	err      error
}

func (w *writer) exec(table string, cols []string, args ...any) {
	if w.err != nil {
		return
	}
	marks := make([]string, len(cols))
	for i := range cols {
		if w.postgres {
			marks[i] = "$" + strconv.Itoa(i+1)
		} else {
			marks[i] = "?"
		}
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(marks, ", "))
	if _, err := w.tx.ExecContext(w.ctx, q, args...); err != nil {
		w.err = fmt.Errorf("insert into %s: %w", table, err)
	}
}

func jsonList(items []string) string {
	if items == nil {
		items = []string{}
	}
	b, _ := json.Marshal(items)
	return string(b)
}
