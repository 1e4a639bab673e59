package infra

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

const migrationTable = "schema_migrations"

// MigrationFiles lists the .sql files under dir in lexical order.
func MigrationFiles(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, path.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// UpSection returns the SQL between "-- +migrate Up" and "-- +migrate Down".
func UpSection(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	start := strings.Index(content, up)
	if start == -1 {
		return content
	}
	content = content[start+len(up):]
	if end := strings.Index(content, down); end != -1 {
		content = content[:end]
	}
	return content
}

// ApplyMigrations runs each embedded migration under dir once, recording it in
// schema_migrations inside the same transaction.
func ApplyMigrations(ctx context.Context, db *sql.DB, fsys fs.FS, dir string) error {
	if db == nil {
		return fmt.Errorf("sql db is required")
	}
	files, err := MigrationFiles(fsys, dir)
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+migrationTable+` (
        name TEXT PRIMARY KEY,
        applied_at INTEGER NOT NULL
    )`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range files {
		var found int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM `+migrationTable+` WHERE name = ?`, file).Scan(&found)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("check migration %s: %w", file, err)
		}

		content, err := fs.ReadFile(fsys, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, UpSection(string(content))); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO `+migrationTable+` (name, applied_at) VALUES (?, ?)`,
			file, time.Now().UTC().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}
