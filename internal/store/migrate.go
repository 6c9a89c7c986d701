package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

const migrationTable = "schema_migrations"

const (
	upMarker   = "-- +migrate Up"
	downMarker = "-- +migrate Down"
)

// schemaMigration is one embedded *.sql file split into its sections.
type schemaMigration struct {
	name     string
	up       string
	down     string
	checksum string
}

// applyMigrations runs every pending migration in name order, each in its own
// transaction together with its schema_migrations row. The down section is
// stored alongside so an operator can reverse a file by hand. A file that was
// edited after it was applied is an error.
func applyMigrations(ctx context.Context, db *sql.DB, migrationFS fs.FS) error {
	pending, err := readMigrations(migrationFS)
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+migrationTable+` (
		name TEXT PRIMARY KEY,
		checksum TEXT NOT NULL,
		down_sql TEXT NOT NULL DEFAULT '',
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("creating %s: %w", migrationTable, err)
	}

	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range pending {
		if sum, ok := applied[m.name]; ok {
			if sum != m.checksum {
				return fmt.Errorf("migration %s changed after it was applied", m.name)
			}
			continue
		}
		if err := runMigration(ctx, db, m); err != nil {
			return err
		}
	}
	return nil
}

func runMigration(ctx context.Context, db *sql.DB, m schemaMigration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning migration %s: %w", m.name, err)
	}
	defer tx.Rollback()

	if strings.TrimSpace(m.up) != "" {
		if _, err := tx.ExecContext(ctx, m.up); err != nil {
			return fmt.Errorf("executing migration %s: %w", m.name, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO "+migrationTable+" (name, checksum, down_sql, applied_at) VALUES (?, ?, ?, ?)",
		m.name, m.checksum, strings.TrimSpace(m.down), time.Now().UTC().UnixMilli()); err != nil {
		return fmt.Errorf("recording migration %s: %w", m.name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration %s: %w", m.name, err)
	}
	return nil
}

// readMigrations loads the *.sql files of fsys sorted by name.
func readMigrations(fsys fs.FS) ([]schemaMigration, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}
	sort.Strings(names)

	out := make([]schemaMigration, 0, len(names))
	for _, name := range names {
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("reading migration %s: %w", name, err)
		}
		up, down := splitSections(string(content))
		sum := sha256.Sum256(content)
		out = append(out, schemaMigration{name: name, up: up, down: down, checksum: hex.EncodeToString(sum[:])})
	}
	return out, nil
}

// splitSections separates the Up and Down halves of a migration file. A file
// without markers is all Up.
func splitSections(content string) (up, down string) {
	body := content
	if i := strings.Index(body, upMarker); i >= 0 {
		body = body[i+len(upMarker):]
	}
	if i := strings.Index(body, downMarker); i >= 0 {
		return body[:i], body[i+len(downMarker):]
	}
	return body, ""
}

func appliedMigrations(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT name, checksum FROM "+migrationTable)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", migrationTable, err)
	}
	defer rows.Close()

	applied := make(map[string]string)
	for rows.Next() {
		var name, sum string
		if err := rows.Scan(&name, &sum); err != nil {
			return nil, err
		}
		applied[name] = sum
	}
	return applied, rows.Err()
}
