package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// OpenDB opens the shared Postgres database through the pgx stdlib driver
// and verifies the connection.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewPGDirectoryStore opens dsn and returns a directory store over it.
func NewPGDirectoryStore(ctx context.Context, dsn string) (*PGDirectoryStore, error) {
	db, err := OpenDB(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &PGDirectoryStore{db: db}, nil
}
