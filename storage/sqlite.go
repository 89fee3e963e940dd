// Package storage is the SQL-backed diagram store (C4): diagram records,
// version history, full-text search, pagination, optimistic updates, and
// the circuit-breaker-wrapped Protected variant (C5) that sits in front of
// it.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/evalgo-org/diagramhub/quota"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// SQLite is the concrete C4 Storage Engine, backed by an embedded,
// pure-Go SQLite database file.
type SQLite struct {
	db     *sql.DB
	guard  *quota.Guard
	logger *logrus.Entry
}

// Open opens or creates the SQLite database at dbPath, enabling WAL mode
// and foreign keys, and initializes the schema.
func Open(dbPath string, guard *quota.Guard, logger *logrus.Entry) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	escapedPath := strings.ReplaceAll(dbPath, " ", "%20")
	connStr := "file:" + escapedPath + "?_time_format=sqlite"
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// The pure-Go sqlite driver serializes writers internally; a single
	// connection avoids "database is locked" errors under WAL without
	// needing an external pool.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA cache_size=-65536",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &SQLite{db: db, guard: guard, logger: logger.WithField("component", "storage")}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for components (e.g. Stats) that
// need to issue ad hoc read queries.
func (s *SQLite) DB() *sql.DB {
	return s.db
}

// withTx runs fn inside a transaction, rolling back on any error and
// committing otherwise.
func (s *SQLite) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
