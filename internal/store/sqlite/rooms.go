package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/roomclaw/internal/apperr"
	"github.com/nextlevelbuilder/roomclaw/internal/store"
)

func (s *Store) CreateRoom(ctx context.Context, r *store.Room, members []store.Member) error {
	if r.ID == "" {
		r.ID = store.GenNewID()
	}
	if r.Type == "" {
		r.Type = store.RoomTypePublic
	}
	r.CreatedAt = store.NowMillis()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_room (id, name, type, organization_id, created_at) VALUES (?, ?, ?, ?, ?)`,
			r.ID, r.Name, string(r.Type), r.OrganizationID, r.CreatedAt); err != nil {
			if isConstraint(err) {
				return apperr.Store("room already exists", err)
			}
			return fmt.Errorf("insert room: %w", err)
		}
		for i := range members {
			members[i].RoomID = r.ID
			if err := insertMember(ctx, tx, &members[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetRoom(ctx context.Context, id string) (*store.Room, error) {
	var r store.Room
	var typ string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, type, organization_id, created_at FROM chat_room WHERE id = ?`, id).
		Scan(&r.ID, &r.Name, &typ, &r.OrganizationID, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("room %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	r.Type = store.RoomType(typ)
	return &r, nil
}

// ListRoomsForMember returns the rooms memberID belongs to, newest first.
func (s *Store) ListRoomsForMember(ctx context.Context, memberID string) ([]store.Room, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.name, r.type, r.organization_id, r.created_at
		 FROM chat_room r JOIN chat_room_member m ON m.room_id = r.id
		 WHERE m.id = ? ORDER BY r.created_at DESC, r.id`, memberID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	rooms := []store.Room{}
	for rows.Next() {
		var r store.Room
		var typ string
		if err := rows.Scan(&r.ID, &r.Name, &typ, &r.OrganizationID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		r.Type = store.RoomType(typ)
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

const memberColumns = `id, room_id, type, role, name, email, image, created_at`

func scanMember(row rowScanner) (*store.Member, error) {
	var m store.Member
	var typ, role string
	var image *string
	if err := row.Scan(&m.ID, &m.RoomID, &typ, &role, &m.Name, &m.Email, &image, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Type = store.MemberType(typ)
	m.Role = store.MemberRole(role)
	m.Image = derefStr(image)
	return &m, nil
}

func (s *Store) ListMembers(ctx context.Context, roomID string) ([]store.Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memberColumns+` FROM chat_room_member WHERE room_id = ? ORDER BY created_at, id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members := []store.Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func (s *Store) GetMember(ctx context.Context, roomID, memberID string) (*store.Member, error) {
	m, err := scanMember(s.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM chat_room_member WHERE room_id = ? AND id = ?`, roomID, memberID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("member %s not found in room %s", memberID, roomID)
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func (s *Store) AddMember(ctx context.Context, m *store.Member) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM chat_room WHERE id = ?`, m.RoomID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("room %s not found", m.RoomID)
	}
	if err != nil {
		return fmt.Errorf("get room: %w", err)
	}
	return insertMember(ctx, s.db, m)
}

func insertMember(ctx context.Context, q querier, m *store.Member) error {
	if m.Role == "" {
		m.Role = store.MemberRoleMember
	}
	m.CreatedAt = store.NowMillis()
	_, err := q.ExecContext(ctx,
		`INSERT INTO chat_room_member (`+memberColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.RoomID, string(m.Type), string(m.Role), m.Name, m.Email, nilStr(m.Image), m.CreatedAt)
	if err != nil {
		if isConstraint(err) {
			return apperr.Store(fmt.Sprintf("member %s is already in room %s", m.ID, m.RoomID), err)
		}
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

func (s *Store) RemoveMember(ctx context.Context, roomID, memberID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_room_member WHERE room_id = ? AND id = ?`, roomID, memberID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("member %s not found in room %s", memberID, roomID)
	}
	return nil
}
