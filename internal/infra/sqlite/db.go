// Package sqlite provides SQLite-based persistent storage for turnover.
// Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/propdesk/turnover/internal/infra/sqlstore"
)

// FileName is the database file created inside the data directory.
const FileName = "turnover.db"

// DB wraps a SQLite connection with WAL mode and migrations. The task and
// workflow repositories are promoted from the embedded store.
type DB struct {
	*sqlstore.Store
	path string
}

// Open creates or opens the SQLite database at dir/turnover.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, FileName)
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{Store: sqlstore.New(db, sqlstore.QuestionMarks), path: dbPath}
	if err := d.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Path returns the database file location.
func (d *DB) Path() string { return d.path }
