package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS list_entries (
	list     TEXT    NOT NULL,
	value    TEXT    NOT NULL,
	position INTEGER NOT NULL,
	PRIMARY KEY (list, value)
)`

// DB is a SQLite database holding every list in one table.
type DB struct {
	sqlDB *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection keeps rewrites and reads strictly ordered.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &DB{sqlDB: sqlDB}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	if d == nil || d.sqlDB == nil {
		return nil
	}
	return d.sqlDB.Close()
}

// List returns a Persister for the named list.
func (d *DB) List(name string) Persister {
	return sqliteList{db: d.sqlDB, name: name}
}

type sqliteList struct {
	db   *sql.DB
	name string
}

func (l sqliteList) Load(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT value FROM list_entries WHERE list = ? ORDER BY position`, l.name)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", l.name, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", l.name, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Save rewrites the list inside one transaction.
func (l sqliteList) Save(ctx context.Context, entries []string) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM list_entries WHERE list = ?`, l.name); err != nil {
		return fmt.Errorf("clear %s: %w", l.name, err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO list_entries (list, value, position) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i, v := range entries {
		if _, err := stmt.ExecContext(ctx, l.name, v, i); err != nil {
			return fmt.Errorf("insert %s: %w", l.name, err)
		}
	}
	return tx.Commit()
}
