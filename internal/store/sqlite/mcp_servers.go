package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/roomclaw/internal/apperr"
	"github.com/nextlevelbuilder/roomclaw/internal/store"
)

const mcpServerColumns = `id, name, description, url, transport, created_at, updated_at`

var mcpServerUpdatable = map[string]bool{"name": true, "description": true, "url": true, "transport": true}

func scanServer(row rowScanner) (*store.MCPServerData, error) {
	var srv store.MCPServerData
	var description *string
	if err := row.Scan(&srv.ID, &srv.Name, &description, &srv.URL, &srv.Transport, &srv.CreatedAt, &srv.UpdatedAt); err != nil {
		return nil, err
	}
	srv.Description = derefStr(description)
	return &srv, nil
}

func (s *Store) CreateServer(ctx context.Context, srv *store.MCPServerData) error {
	if srv.ID == "" {
		srv.ID = store.GenNewID()
	}
	now := store.NowMillis()
	srv.CreatedAt, srv.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mcp_server (`+mcpServerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		srv.ID, srv.Name, nilStr(srv.Description), srv.URL, srv.Transport, now, now)
	if err != nil {
		return fmt.Errorf("insert mcp server: %w", err)
	}
	return nil
}

func (s *Store) GetServer(ctx context.Context, id string) (*store.MCPServerData, error) {
	srv, err := scanServer(s.db.QueryRowContext(ctx, `SELECT `+mcpServerColumns+` FROM mcp_server WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("mcp server %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get mcp server: %w", err)
	}
	return srv, nil
}

func (s *Store) ListServers(ctx context.Context) ([]store.MCPServerData, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+mcpServerColumns+` FROM mcp_server ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list mcp servers: %w", err)
	}
	defer rows.Close()

	out := []store.MCPServerData{}
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mcp server: %w", err)
		}
		out = append(out, *srv)
	}
	return out, rows.Err()
}

func (s *Store) UpdateServer(ctx context.Context, id string, updates map[string]any) (*store.MCPServerData, error) {
	if len(updates) > 0 {
		clause, args, err := columnUpdate(updates, mcpServerUpdatable)
		if err != nil {
			return nil, apperr.Invalid("%v", err)
		}
		args = append(args, store.NowMillis(), id)
		res, err := s.db.ExecContext(ctx, `UPDATE mcp_server SET `+clause+`, updated_at = ? WHERE id = ?`, args...)
		if err != nil {
			return nil, fmt.Errorf("update mcp server: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, apperr.NotFound("mcp server %s not found", id)
		}
	}
	return s.GetServer(ctx, id)
}

func (s *Store) DeleteServer(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM mcp_server WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete mcp server: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("mcp server %s not found", id)
	}
	return nil
}
