// Package store owns the Beadloom SQLite database: connection lifecycle,
// schema, migrations and every persisted table shape.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/beadloom/beadloom/internal/config"
	"github.com/beadloom/beadloom/internal/logging"
)

// CurrentSchemaVersion is bumped only when a breaking change requires a full
// reindex; additive tables/columns use CREATE TABLE/COLUMN IF NOT EXISTS and
// never bump it.
const CurrentSchemaVersion = "2"

// persistentTables survive drop_volatile_tables.
var persistentTables = map[string]bool{
	"file_index":       true,
	"bundle_cache":     true,
	"health_snapshots": true,
	"graph_snapshots":  true,
	"rules":            true,
	"meta":             true,
}

// volatileTables are truncated by a full reindex.
var volatileTables = []string{
	"search_fts",
	"sync_state",
	"code_imports",
	"code_symbols",
	"chunks",
	"docs",
	"edges",
	"nodes",
}

// Conn is an open handle to a project's SQLite database. Every operation in
// the core takes a project-root argument and an open Conn; callers hold
// short-lived borrows and never retain entities beyond an operation.
type Conn struct {
	db          *sql.DB
	mu          sync.Mutex // serializes writers; WAL allows concurrent readers
	projectRoot string
}

// Open creates the database file if missing, enables foreign keys and WAL,
// and applies pending migrations. Any I/O error is fatal to the operation.
func Open(projectRoot string) (*Conn, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	dbPath := config.DBPath(projectRoot)
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create config dir %s: %w", dir, err)
	}

	// WAL, foreign keys, busy_timeout and synchronous are carried in the DSN
	// (sqlDSN per driver): foreign_keys and busy_timeout are per-connection
	// pragmas, so they must apply to every pooled connection, not just the
	// one a bare Exec would land on.
	db, err := sql.Open(sqlDriverName, sqlDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dbPath, err)
	}
	// Single-writer discipline: writers serialize on Conn.mu; WAL lets the
	// remaining pooled connections serve reads concurrently, including reads
	// issued while a write transaction is open.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: open %s: %w", dbPath, err)
	}

	c := &Conn{db: db, projectRoot: projectRoot}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	logging.Store("opened store at %s (schema v%s)", dbPath, CurrentSchemaVersion)
	return c, nil
}

// Close releases the underlying database handle.
func (c *Conn) Close() error {
	return c.db.Close()
}

// DB exposes the raw *sql.DB for packages that need ad hoc queries (e.g.
// FTS search). Writers must still go through WithTx for multi-row mutations.
func (c *Conn) DB() *sql.DB { return c.db }

// ProjectRoot returns the project root this connection was opened against.
func (c *Conn) ProjectRoot() string { return c.projectRoot }

// WithTx runs fn inside a scoped transaction: commits on success, rolls
// back on any error or panic. It serializes against other writers via
// Conn.mu.
func (c *Conn) WithTx(fn func(tx *sql.Tx) error) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("store: rollback after %w: %v", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit tx: %w", err)
	}
	return nil
}

// DropVolatileTables truncates every table except the persistent set
// (file_index, bundle_cache, health_snapshots, graph_snapshots, rules,
// meta), used by a full reindex.
func (c *Conn) DropVolatileTables() error {
	return c.WithTx(func(tx *sql.Tx) error {
		for _, t := range volatileTables {
			if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s", t)); err != nil {
				return fmt.Errorf("truncate %s: %w", t, err)
			}
		}
		return nil
	})
}

// IsPersistentTable reports whether t survives DropVolatileTables.
func IsPersistentTable(t string) bool { return persistentTables[t] }
