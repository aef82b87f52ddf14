package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/pressly/goose/v3"

	"github.com/dmitrijs2005/fleetzen/internal/client/migrations"
	"github.com/dmitrijs2005/fleetzen/internal/filex"

	_ "modernc.org/sqlite"
)

// File names of the local databases inside the data directory.
const (
	DraftsDBFile = "drafts.db"
	OutboxDBFile = "outbox.db"
)

// RunMigrations applies the migration set in fsys to db. Each database gets
// its own goose provider, so the two sets never share version state.
func RunMigrations(ctx context.Context, db *sql.DB, fsys fs.FS) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// InitDatabase opens the SQLite database at dsn and brings its schema up to
// date with fsys. The pool is limited to one connection: SQLite has a single
// writer, and ":memory:" databases live in their connection.
func InitDatabase(ctx context.Context, dsn string, fsys fs.FS) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}

	if err := RunMigrations(ctx, db, fsys); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Databases are the agent's two local stores. Drafts holds drafts, photo
// blobs and metadata; Outbox holds the submission queue.
type Databases struct {
	Drafts *sql.DB
	Outbox *sql.DB
}

// OpenDatabases creates dataDir when missing and opens both databases in it.
func OpenDatabases(ctx context.Context, dataDir string) (*Databases, error) {
	dir, err := filex.EnsureDir(dataDir, "")
	if err != nil {
		return nil, err
	}

	drafts, err := InitDatabase(ctx, filepath.Join(dir, DraftsDBFile), migrations.Drafts)
	if err != nil {
		return nil, fmt.Errorf("drafts database: %w", err)
	}
	outbox, err := InitDatabase(ctx, filepath.Join(dir, OutboxDBFile), migrations.Outbox)
	if err != nil {
		_ = drafts.Close()
		return nil, fmt.Errorf("outbox database: %w", err)
	}
	return &Databases{Drafts: drafts, Outbox: outbox}, nil
}

func (d *Databases) Close() error {
	return errors.Join(d.Drafts.Close(), d.Outbox.Close())
}
