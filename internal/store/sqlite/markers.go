package sqlite

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/roomclaw/internal/store"
)

func (s *Store) ListMarkers(ctx context.Context) ([]store.ActivityMarker, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT room_id, thread_id, next_wake_at, watermark FROM agent_activity_marker ORDER BY room_id, thread_id`)
	if err != nil {
		return nil, fmt.Errorf("list markers: %w", err)
	}
	defer rows.Close()

	var out []store.ActivityMarker
	for rows.Next() {
		var m store.ActivityMarker
		if err := rows.Scan(&m.RoomID, &m.ThreadID, &m.NextWakeAt, &m.Watermark); err != nil {
			return nil, fmt.Errorf("scan marker: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) SaveMarker(ctx context.Context, m store.ActivityMarker) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_activity_marker (room_id, thread_id, next_wake_at, watermark) VALUES (?, ?, ?, ?)
		 ON CONFLICT (room_id, thread_id) DO UPDATE SET next_wake_at = excluded.next_wake_at, watermark = excluded.watermark`,
		m.RoomID, m.ThreadID, m.NextWakeAt, m.Watermark)
	if err != nil {
		return fmt.Errorf("save marker: %w", err)
	}
	return nil
}
