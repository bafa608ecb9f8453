package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/roomclaw/internal/apperr"
	"github.com/nextlevelbuilder/roomclaw/internal/store"
)

const workflowColumns = `id, agent_id, chat_room_id, goal, steps, schedule_expression, next_execution_time,
	last_execution_time, is_active, is_recurring, created_at, updated_at`

func scanWorkflow(row rowScanner) (*store.Workflow, error) {
	var w store.Workflow
	var steps string
	var last sql.NullInt64
	var active, recurring int
	if err := row.Scan(&w.ID, &w.AgentID, &w.ChatRoomID, &w.Goal, &steps, &w.ScheduleExpression,
		&w.NextExecutionTime, &last, &active, &recurring, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(steps), &w.Steps); err != nil {
		return nil, fmt.Errorf("decode steps of workflow %s: %w", w.ID, err)
	}
	w.LastExecutionTime = intPtr(last)
	w.IsActive = active != 0
	w.IsRecurring = recurring != 0
	return &w, nil
}

func (s *Store) CreateWorkflow(ctx context.Context, w *store.Workflow) error {
	if w.ID == "" {
		w.ID = store.GenNewID()
	}
	now := store.NowMillis()
	w.CreatedAt, w.UpdatedAt = now, now
	steps, err := json.Marshal(w.Steps)
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (`+workflowColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.AgentID, w.ChatRoomID, w.Goal, string(steps), w.ScheduleExpression, w.NextExecutionTime,
		nullInt(w.LastExecutionTime), boolInt(w.IsActive), boolInt(w.IsRecurring), w.CreatedAt, w.UpdatedAt)
	if err != nil {
		if isConstraint(err) {
			return apperr.Store("workflow violates a store constraint", err)
		}
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

func (s *Store) GetWorkflow(ctx context.Context, id string) (*store.Workflow, error) {
	w, err := scanWorkflow(s.db.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("workflow %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	return w, nil
}

func (s *Store) ListWorkflowsForRoom(ctx context.Context, roomID string) ([]store.Workflow, error) {
	return s.listWorkflows(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE chat_room_id = ? ORDER BY created_at`, roomID)
}

func (s *Store) ListActiveWorkflows(ctx context.Context) ([]store.Workflow, error) {
	return s.listWorkflows(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE is_active = 1 ORDER BY next_execution_time`)
}

func (s *Store) listWorkflows(ctx context.Context, query string, args ...any) ([]store.Workflow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	out := []store.Workflow{}
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

func (s *Store) RecordWorkflowRun(ctx context.Context, id string, ranAt, next int64, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET last_execution_time = ?, next_execution_time = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		ranAt, next, boolInt(active), store.NowMillis(), id)
	if err != nil {
		return fmt.Errorf("record workflow run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("workflow %s not found", id)
	}
	return nil
}

func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("workflow %s not found", id)
	}
	return nil
}
