package infra

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func TestApplyMigrationsRunsOnce(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	fsys := fstest.MapFS{
		"sqlite/001_init.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE things (id INTEGER PRIMARY KEY);\n-- +migrate Down\nDROP TABLE things;\n")},
		"sqlite/002_seed.sql": {Data: []byte("-- +migrate Up\nINSERT INTO things (id) VALUES (1);\n")},
		"sqlite/README.md":    {Data: []byte("ignored")},
	}
	ctx := context.Background()

	for range 2 {
		if err := ApplyMigrations(ctx, db, fsys, "sqlite"); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM things`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected seed to run once, got %d rows", count)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM ` + migrationTable).Scan(&count); err != nil || count != 2 {
		t.Fatalf("expected 2 recorded migrations, got %d %v", count, err)
	}
}

func TestUpSection(t *testing.T) {
	got := UpSection("-- +migrate Up\nCREATE TABLE a ();\n-- +migrate Down\nDROP TABLE a;")
	if got != "\nCREATE TABLE a ();\n" {
		t.Fatalf("unexpected up section %q", got)
	}
}
