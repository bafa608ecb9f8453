package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/roomclaw/internal/apperr"
	"github.com/nextlevelbuilder/roomclaw/internal/store"
)

const documentColumns = `id, room_id, title, content, created_at, created_by_member_id, created_by_member_type`

func scanDocument(row rowScanner) (*store.Document, error) {
	var d store.Document
	var typ string
	if err := row.Scan(&d.ID, &d.RoomID, &d.Title, &d.Content, &d.CreatedAt, &d.CreatedByMemberID, &typ); err != nil {
		return nil, err
	}
	d.CreatedByMemberType = store.MemberType(typ)
	return &d, nil
}

func (s *Store) CreateDocument(ctx context.Context, d *store.Document) error {
	if d.ID == "" {
		d.ID = store.GenNewID()
	}
	d.CreatedAt = store.NowMillis()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO document (`+documentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.RoomID, d.Title, d.Content, d.CreatedAt, d.CreatedByMemberID, string(d.CreatedByMemberType))
	if err != nil {
		if isConstraint(err) {
			return apperr.Store("document violates a store constraint", err)
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *Store) ListDocumentsForRoom(ctx context.Context, roomID string) ([]store.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM document WHERE room_id = ? ORDER BY created_at, id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := []store.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document and returns it so callers know its room.
func (s *Store) DeleteDocument(ctx context.Context, id string) (*store.Document, error) {
	var out *store.Document
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		d, err := scanDocument(tx.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM document WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("document %s not found", id)
		}
		if err != nil {
			return fmt.Errorf("get document: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM document WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete document: %w", err)
		}
		out = d
		return nil
	})
	return out, err
}
