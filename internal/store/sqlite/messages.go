package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/roomclaw/internal/apperr"
	"github.com/nextlevelbuilder/roomclaw/internal/store"
)

const messageColumns = `m.id, m.room_id, m.member_id, m.status, m.parts, m.mentions, m.metadata,
	m.thread_id, m.thread_metadata, m.created_at,
	mem.id, mem.type, mem.role, mem.name, mem.email, mem.image, mem.created_at`

const messageFrom = ` FROM chat_message m
	LEFT JOIN chat_room_member mem ON mem.room_id = m.room_id AND mem.id = m.member_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*store.Message, error) {
	var (
		m                           store.Message
		status, parts, mentions, md string
		threadID                    sql.NullInt64
		threadMeta                  sql.NullString
		memID, memType, memRole     sql.NullString
		memName, memEmail, memImage sql.NullString
		memCreated                  sql.NullInt64
	)
	if err := row.Scan(&m.ID, &m.RoomID, &m.MemberID, &status, &parts, &mentions, &md,
		&threadID, &threadMeta, &m.CreatedAt,
		&memID, &memType, &memRole, &memName, &memEmail, &memImage, &memCreated); err != nil {
		return nil, err
	}
	m.Status = store.MessageStatus(status)
	m.ThreadID = intPtr(threadID)
	if err := json.Unmarshal([]byte(parts), &m.Parts); err != nil {
		return nil, fmt.Errorf("decode parts of message %d: %w", m.ID, err)
	}
	if err := json.Unmarshal([]byte(mentions), &m.Mentions); err != nil {
		return nil, fmt.Errorf("decode mentions of message %d: %w", m.ID, err)
	}
	if err := json.Unmarshal([]byte(md), &m.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata of message %d: %w", m.ID, err)
	}
	if threadMeta.Valid && threadMeta.String != "" {
		var tm store.ThreadMetadata
		if err := json.Unmarshal([]byte(threadMeta.String), &tm); err != nil {
			return nil, fmt.Errorf("decode thread metadata of message %d: %w", m.ID, err)
		}
		m.ThreadMetadata = &tm
	}
	if memID.Valid {
		m.Member = &store.Member{
			ID:        memID.String,
			RoomID:    m.RoomID,
			Type:      store.MemberType(memType.String),
			Role:      store.MemberRole(memRole.String),
			Name:      memName.String,
			Email:     memEmail.String,
			Image:     memImage.String,
			CreatedAt: memCreated.Int64,
		}
	}
	if m.Parts == nil {
		m.Parts = []store.Part{}
	}
	if m.Mentions == nil {
		m.Mentions = []store.Mention{}
	}
	return &m, nil
}

func getMessage(ctx context.Context, q querier, id int64) (*store.Message, error) {
	m, err := scanMessage(q.QueryRowContext(ctx, `SELECT `+messageColumns+messageFrom+` WHERE m.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("message %d not found", id)
	}
	return m, err
}

func (s *Store) GetMessage(ctx context.Context, id int64) (*store.Message, error) {
	return getMessage(ctx, s.db, id)
}

func (s *Store) GetMessageByOptimisticID(ctx context.Context, roomID, memberID, optimisticID string) (*store.Message, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+messageFrom+`
		 WHERE m.room_id = ? AND m.member_id = ? AND m.optimistic_id = ?`,
		roomID, memberID, optimisticID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("message with optimistic id %q not found", optimisticID)
	}
	return m, err
}

// Append inserts a message and, for thread replies, refreshes the root's
// thread metadata in the same transaction.
func (s *Store) Append(ctx context.Context, nm store.NewMessage) (*store.Message, error) {
	if nm.Status == "" {
		nm.Status = store.StatusCompleted
	}
	parts, err := jsonText(nm.Parts, "[]")
	if err != nil {
		return nil, fmt.Errorf("encode parts: %w", err)
	}
	mentions, err := jsonText(nm.Mentions, "[]")
	if err != nil {
		return nil, fmt.Errorf("encode mentions: %w", err)
	}
	md, err := jsonText(nm.Metadata, "{}")
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	var optimisticID *string
	if nm.Metadata.OptimisticData != nil {
		optimisticID = nilStr(nm.Metadata.OptimisticData.ID)
	}

	var out *store.Message
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var one int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM chat_room WHERE id = ?`, nm.RoomID).Scan(&one); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.Store(fmt.Sprintf("room %s does not exist", nm.RoomID), nil)
			}
			return err
		}
		if nm.ThreadID != nil {
			if err := checkThreadRoot(ctx, tx, nm.RoomID, *nm.ThreadID); err != nil {
				return err
			}
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO chat_message (room_id, member_id, status, parts, mentions, metadata, optimistic_id, thread_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			nm.RoomID, nm.MemberID, string(nm.Status), parts, mentions, md, optimisticID,
			nullInt(nm.ThreadID), store.NowMillis())
		if err != nil {
			if isConstraint(err) {
				return apperr.Store("message violates a store constraint", err)
			}
			return fmt.Errorf("insert message: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		if out, err = getMessage(ctx, tx, id); err != nil {
			return err
		}
		if nm.ThreadID != nil {
			return touchThreadRoot(ctx, tx, *nm.ThreadID, out, true)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func checkThreadRoot(ctx context.Context, q querier, roomID string, rootID int64) error {
	var rootRoom string
	var rootThread sql.NullInt64
	err := q.QueryRowContext(ctx, `SELECT room_id, thread_id FROM chat_message WHERE id = ?`, rootID).
		Scan(&rootRoom, &rootThread)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Store(fmt.Sprintf("thread root %d does not exist", rootID), nil)
	}
	if err != nil {
		return fmt.Errorf("load thread root: %w", err)
	}
	if rootRoom != roomID {
		return apperr.Store(fmt.Sprintf("thread root %d belongs to another room", rootID), nil)
	}
	if rootThread.Valid {
		return apperr.Store(fmt.Sprintf("message %d is a reply and cannot root a thread", rootID), nil)
	}
	return nil
}

// touchThreadRoot updates the root's denormalized metadata. On append the
// count is recomputed and lastMessage replaced; on update lastMessage is only
// refreshed if it is the updated child.
func touchThreadRoot(ctx context.Context, q querier, rootID int64, child *store.Message, appended bool) error {
	var raw sql.NullString
	if err := q.QueryRowContext(ctx, `SELECT thread_metadata FROM chat_message WHERE id = ?`, rootID).Scan(&raw); err != nil {
		return fmt.Errorf("load thread metadata: %w", err)
	}
	var tm store.ThreadMetadata
	if raw.Valid && raw.String != "" {
		if err := json.Unmarshal([]byte(raw.String), &tm); err != nil {
			return fmt.Errorf("decode thread metadata: %w", err)
		}
	}

	snapshot := *child
	snapshot.ThreadMetadata = nil
	if appended {
		if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_message WHERE thread_id = ?`, rootID).
			Scan(&tm.MessageCount); err != nil {
			return fmt.Errorf("count thread messages: %w", err)
		}
		tm.LastMessage = &snapshot
	} else {
		if tm.LastMessage == nil || tm.LastMessage.ID != child.ID {
			return nil
		}
		tm.LastMessage = &snapshot
	}

	data, err := json.Marshal(tm)
	if err != nil {
		return fmt.Errorf("encode thread metadata: %w", err)
	}
	if _, err := q.ExecContext(ctx, `UPDATE chat_message SET thread_metadata = ? WHERE id = ?`, string(data), rootID); err != nil {
		return fmt.Errorf("update thread metadata: %w", err)
	}
	return nil
}

// Update mutates parts, mentions or status in place. Identity columns never change.
func (s *Store) Update(ctx context.Context, id int64, u store.MessageUpdate) (*store.Message, error) {
	var sets []string
	var args []any
	if u.Parts != nil {
		parts, err := jsonText(u.Parts, "[]")
		if err != nil {
			return nil, fmt.Errorf("encode parts: %w", err)
		}
		sets = append(sets, "parts = ?")
		args = append(args, parts)
	}
	if u.Mentions != nil {
		mentions, err := jsonText(u.Mentions, "[]")
		if err != nil {
			return nil, fmt.Errorf("encode mentions: %w", err)
		}
		sets = append(sets, "mentions = ?")
		args = append(args, mentions)
	}
	if u.Status != "" {
		sets = append(sets, "status = ?")
		args = append(args, string(u.Status))
	}

	var out *store.Message
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if len(sets) > 0 {
			res, err := tx.ExecContext(ctx,
				`UPDATE chat_message SET `+strings.Join(sets, ", ")+` WHERE id = ?`, append(args, id)...)
			if err != nil {
				return fmt.Errorf("update message %d: %w", id, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return apperr.NotFound("message %d not found", id)
			}
		}
		var err error
		if out, err = getMessage(ctx, tx, id); err != nil {
			return err
		}
		if out.ThreadID != nil {
			return touchThreadRoot(ctx, tx, *out.ThreadID, out, false)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Query(ctx context.Context, q store.MessageQuery) ([]store.Message, error) {
	where := []string{"m.room_id = ?"}
	args := []any{q.RoomID}
	if q.ThreadID == nil {
		where = append(where, "m.thread_id IS NULL")
	} else {
		where = append(where, "m.thread_id = ?")
		args = append(args, *q.ThreadID)
	}
	if q.AfterID > 0 {
		where = append(where, "m.id > ?")
		args = append(args, q.AfterID)
	}
	if q.BeforeID > 0 {
		where = append(where, "m.id < ?")
		args = append(args, q.BeforeID)
	}

	// Without afterId a limited window means "the latest N", so read
	// newest-first and reverse below.
	newestFirst := q.Limit > 0 && q.AfterID == 0
	query := `SELECT ` + messageColumns + messageFrom + ` WHERE ` + strings.Join(where, " AND ")
	if newestFirst {
		query += ` ORDER BY m.id DESC`
	} else {
		query += ` ORDER BY m.id ASC`
	}
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []store.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	if newestFirst {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

func (s *Store) ListPending(ctx context.Context) ([]store.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+messageFrom+` WHERE m.status = ? ORDER BY m.id ASC`, string(store.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("list pending messages: %w", err)
	}
	defer rows.Close()

	var out []store.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending messages: %w", err)
	}
	return out, nil
}

func isConstraint(err error) bool {
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
