// Package pg implements the shared room directory on Postgres.
package pg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/nextlevelbuilder/roomclaw/internal/store"
)

// PGDirectoryStore implements store.DirectoryStore backed by Postgres.
// Every write is idempotent so callers can retry after partial failures.
type PGDirectoryStore struct {
	db *sql.DB
}

var _ store.DirectoryStore = (*PGDirectoryStore)(nil)

func NewPGDirectoryStoreFromDB(db *sql.DB) *PGDirectoryStore {
	return &PGDirectoryStore{db: db}
}

func (s *PGDirectoryStore) Close() error { return s.db.Close() }

func (s *PGDirectoryStore) IsOrganizationMember(ctx context.Context, orgID, userID string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM organization_members WHERE organization_id = $1 AND user_id = $2)`,
		orgID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check organization member: %w", err)
	}
	return ok, nil
}

func (s *PGDirectoryStore) AddOrganizationMember(ctx context.Context, orgID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO organization_members (organization_id, user_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`, orgID, userID)
	if err != nil {
		return fmt.Errorf("add organization member: %w", err)
	}
	return nil
}

func (s *PGDirectoryStore) UpsertRoom(ctx context.Context, orgID, roomID, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO room_index (room_id, organization_id, name) VALUES ($1, $2, $3)
		 ON CONFLICT (room_id) DO UPDATE SET name = EXCLUDED.name, updated_at = NOW()`,
		roomID, orgID, name)
	if err != nil {
		return fmt.Errorf("upsert room: %w", err)
	}
	return nil
}

// AddRoomMembers indexes userIDs as members of roomID in one statement.
func (s *PGDirectoryStore) AddRoomMembers(ctx context.Context, roomID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO room_member_index (room_id, user_id)
		 SELECT $1, u FROM unnest($2::text[]) AS u
		 ON CONFLICT DO NOTHING`,
		roomID, pq.Array(userIDs))
	if err != nil {
		return fmt.Errorf("add room members: %w", err)
	}
	return nil
}

func (s *PGDirectoryStore) RemoveRoomMember(ctx context.Context, roomID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM room_member_index WHERE room_id = $1 AND user_id = $2`, roomID, userID)
	if err != nil {
		return fmt.Errorf("remove room member: %w", err)
	}
	return nil
}

func (s *PGDirectoryStore) ListRoomIDsForUser(ctx context.Context, orgID, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.room_id FROM room_index r
		 JOIN room_member_index m ON m.room_id = r.room_id
		 WHERE r.organization_id = $1 AND m.user_id = $2
		 ORDER BY r.created_at DESC`, orgID, userID)
	if err != nil {
		return nil, fmt.Errorf("list rooms for user: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan room id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
