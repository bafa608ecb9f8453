package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

type migration struct {
	version  int
	name     string
	sql      string
	checksum string
}

// loadMigrations reads NNNN_name.sql files from fsys ordered by version.
func loadMigrations(fsys fs.FS, dir string) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var out []migration
	seen := make(map[int]string)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		prefix, name, ok := strings.Cut(strings.TrimSuffix(e.Name(), ".sql"), "_")
		if !ok {
			return nil, fmt.Errorf("migration %q: expected NNNN_name.sql", e.Name())
		}
		version, err := strconv.Atoi(prefix)
		if err != nil || version <= 0 {
			return nil, fmt.Errorf("migration %q: bad version prefix", e.Name())
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migrations %q and %q share version %d", prev, e.Name(), version)
		}
		seen[version] = e.Name()

		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", e.Name(), err)
		}
		sum := sha256.Sum256(data)
		out = append(out, migration{
			version:  version,
			name:     name,
			sql:      string(data),
			checksum: hex.EncodeToString(sum[:]),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// migrate applies every pending migration in a single transaction. Already
// applied migrations must match their recorded checksum. Any failure rolls
// the whole set back.
func migrate(ctx context.Context, db *sql.DB, migrations []migration) (applied int, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		checksum   TEXT NOT NULL,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	recorded := make(map[int]string)
	rows, err := tx.QueryContext(ctx, `SELECT version, checksum FROM schema_migrations`)
	if err != nil {
		return 0, fmt.Errorf("read schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int
		var sum string
		if err = rows.Scan(&v, &sum); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan schema_migrations: %w", err)
		}
		recorded[v] = sum
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return 0, fmt.Errorf("read schema_migrations: %w", err)
	}

	known := make(map[int]bool, len(migrations))
	for _, m := range migrations {
		known[m.version] = true
		if sum, ok := recorded[m.version]; ok {
			if sum != m.checksum {
				return 0, fmt.Errorf("migration %04d_%s was modified after being applied (checksum mismatch)", m.version, m.name)
			}
			continue
		}
		if _, err = tx.ExecContext(ctx, m.sql); err != nil {
			return 0, fmt.Errorf("apply migration %04d_%s: %w", m.version, m.name, err)
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name, checksum, applied_at) VALUES (?, ?, ?, ?)`,
			m.version, m.name, m.checksum, time.Now().UnixMilli()); err != nil {
			return 0, fmt.Errorf("record migration %04d_%s: %w", m.version, m.name, err)
		}
		applied++
	}
	for v := range recorded {
		if !known[v] {
			return 0, fmt.Errorf("database has migration %d which this build does not know", v)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit migrations: %w", err)
	}
	if applied > 0 {
		slog.Debug("store.sqlite.migrated", "applied", applied)
	}
	return applied, nil
}
