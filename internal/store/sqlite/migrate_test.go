package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
)

func openRaw(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "raw.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenAppliesEmbeddedMigrationsOnce(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "org.db")

	s, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	var n int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("applied migrations = %d, want 3", n)
	}
	s.Close()

	s, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("applied migrations after reopen = %d, want 3", n)
	}
}

func TestMigrateRollsBackWholeSetOnFailure(t *testing.T) {
	ctx := context.Background()
	db := openRaw(t)
	fsys := fstest.MapFS{
		"m/0001_first.sql":  {Data: []byte(`CREATE TABLE a (id INTEGER);`)},
		"m/0002_broken.sql": {Data: []byte(`CREATE TABLE b (id INTEGER); THIS IS NOT SQL;`)},
	}
	ms, err := loadMigrations(fsys, "m")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := migrate(ctx, db, ms); err == nil {
		t.Fatal("expected migration failure")
	}

	var name string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'a'`).Scan(&name)
	if err != sql.ErrNoRows {
		t.Fatalf("table a should have been rolled back, got name=%q err=%v", name, err)
	}
}

func TestMigrateDetectsChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	db := openRaw(t)
	v1 := fstest.MapFS{"m/0001_init.sql": {Data: []byte(`CREATE TABLE a (id INTEGER);`)}}
	ms, _ := loadMigrations(v1, "m")
	if _, err := migrate(ctx, db, ms); err != nil {
		t.Fatalf("first migrate: %v", err)
	}

	v2 := fstest.MapFS{"m/0001_init.sql": {Data: []byte(`CREATE TABLE a (id INTEGER, extra TEXT);`)}}
	ms, _ = loadMigrations(v2, "m")
	_, err := migrate(ctx, db, ms)
	if err == nil || !strings.Contains(err.Error(), "checksum") {
		t.Fatalf("expected checksum error, got %v", err)
	}
}

func TestLoadMigrationsOrdersAndValidates(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0010_late.sql":  {Data: []byte(`SELECT 1;`)},
		"m/0002_early.sql": {Data: []byte(`SELECT 1;`)},
		"m/README.md":      {Data: []byte(`ignored`)},
	}
	ms, err := loadMigrations(fsys, "m")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(ms) != 2 || ms[0].version != 2 || ms[1].version != 10 {
		t.Fatalf("unexpected order: %+v", ms)
	}

	bad := fstest.MapFS{"m/abc_x.sql": {Data: []byte(`SELECT 1;`)}}
	if _, err := loadMigrations(bad, "m"); err == nil {
		t.Fatal("expected error for bad version prefix")
	}
}
