// Package database manages the relational store behind an emulated directory:
// connections, migrations, transactions and the repositories over the
// objects / attributes / attribute_values tables.
package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/choplin/dirsim/db/migrations"
	sqldb "github.com/choplin/dirsim/internal/database/sqlc"

	// Import SQLite driver for database/sql
	_ "modernc.org/sqlite"
)

// StorageMode selects where a directory's tables live.
type StorageMode string

const (
	StorageMemory StorageMode = "memory"
	StorageFile   StorageMode = "file"
)

// ParseStorageMode accepts "memory" and "file", case-insensitively.
func ParseStorageMode(value string) (StorageMode, error) {
	switch StorageMode(strings.ToLower(strings.TrimSpace(value))) {
	case StorageMemory:
		return StorageMemory, nil
	case StorageFile:
		return StorageFile, nil
	}
	return "", fmt.Errorf("unknown storage mode: %q", value)
}

// Options describes the store to open.
type Options struct {
	Mode StorageMode
	// Path is the database file for StorageFile.
	Path string
}

// Context holds the database connection and query interface. A Context
// returned by WithTx is bound to the transaction.
type Context struct {
	DB      *sqlx.DB
	Queries *sqldb.Queries
	Mode    StorageMode
	Path    string

	tx *sqlx.Tx
}

// CreateDatabase opens the store described by opts and applies migrations.
// Every in-memory store is private to the returned Context.
func CreateDatabase(opts Options) (*Context, error) {
	mode := opts.Mode
	if mode == "" {
		mode = StorageMemory
	}

	var dsn string
	switch mode {
	case StorageMemory:
		dsn = fmt.Sprintf("file:dirsim-%s?mode=memory&cache=shared&_pragma=foreign_keys(ON)&_time_format=sqlite", uuid.NewString())
	case StorageFile:
		if opts.Path == "" {
			return nil, fmt.Errorf("%w: file storage requires a path", ErrStorageUnavailable)
		}
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o750); err != nil {
			return nil, fmt.Errorf("%w: failed to create database directory: %w", ErrStorageUnavailable, err)
		}
		absPath, err := filepath.Abs(opts.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to resolve database path: %w", ErrStorageUnavailable, err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_time_format=sqlite", filepath.ToSlash(absPath))
	default:
		return nil, fmt.Errorf("%w: unknown storage mode %q", ErrStorageUnavailable, mode)
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", ErrStorageUnavailable, err)
	}
	// A single connection serialises writers and keeps the in-memory
	// database alive for the lifetime of the handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to enable foreign keys: %w", ErrStorageUnavailable, err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %w", ErrStorageUnavailable, err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	return &Context{
		DB:      db,
		Queries: sqldb.New(db),
		Mode:    mode,
		Path:    opts.Path,
	}, nil
}

// CloseDatabase closes the database connection.
func CloseDatabase(ctx *Context) error {
	if ctx == nil || ctx.DB == nil {
		return nil
	}
	return ctx.DB.Close()
}

// RemoveDatabase deletes the file behind a file store together with its
// journal files. Missing files are ignored.
func RemoveDatabase(path string) error {
	if path == "" {
		return nil
	}
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	return nil
}

// ClearDatabase removes all data from the database.
func ClearDatabase(ctx *Context) error {
	if ctx == nil || ctx.DB == nil {
		return nil
	}

	bg := context.Background()
	return ctx.WithTx(bg, func(txCtx *Context) error {
		queries := txCtx.Queries
		if err := queries.DeleteAllValues(bg); err != nil {
			return fmt.Errorf("failed to delete attribute values: %w", err)
		}
		if err := queries.DeleteAllAttributes(bg); err != nil {
			return fmt.Errorf("failed to delete attributes: %w", err)
		}
		if err := queries.DeleteAllObjects(bg); err != nil {
			return fmt.Errorf("failed to delete objects: %w", err)
		}
		return nil
	})
}

// WithTx runs fn inside a transaction. fn receives a Context bound to the
// transaction; repositories built from it share that transaction. Calling
// WithTx on a transaction-bound Context joins the existing transaction.
func (c *Context) WithTx(ctx context.Context, fn func(txCtx *Context) error) error {
	if c == nil || c.DB == nil {
		return fmt.Errorf("database: missing database context")
	}
	if c.tx != nil {
		return fn(c)
	}

	tx, err := c.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", ErrStorageUnavailable, err)
	}

	txCtx := &Context{
		DB:      c.DB,
		Queries: sqldb.New(tx),
		Mode:    c.Mode,
		Path:    c.Path,
		tx:      tx,
	}

	if err := fn(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: failed to commit transaction: %w", ErrStorageUnavailable, err)
	}

	return nil
}

// ext returns the handle sqlx queries should run on.
func (c *Context) ext() sqlx.ExtContext {
	if c.tx != nil {
		return c.tx
	}
	return c.DB
}

func runMigrations(db *sqlx.DB) error {
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to initialise migrate driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrations.Files, ".")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	defer func() {
		_ = sourceDriver.Close()
	}()

	migrator, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}
