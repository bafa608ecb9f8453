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

const agentColumns = `id, email, name, image, description, tone, verbosity, emoji_usage, language_style, mcp_selection, created_at`

func scanAgent(row rowScanner) (*store.Agent, error) {
	var a store.Agent
	var selection string
	if err := row.Scan(&a.ID, &a.Email, &a.Name, &a.Image, &a.Description, &a.Tone, &a.Verbosity,
		&a.EmojiUsage, &a.LanguageStyle, &selection, &a.CreatedAt); err != nil {
		return nil, err
	}
	if selection != "" && selection != "{}" {
		if err := json.Unmarshal([]byte(selection), &a.MCPSelection); err != nil {
			return nil, fmt.Errorf("decode mcp selection of agent %s: %w", a.ID, err)
		}
	}
	return &a, nil
}

func (s *Store) CreateAgent(ctx context.Context, a *store.Agent) error {
	if a.ID == "" {
		a.ID = store.GenNewID()
	}
	a.Email = normalizeEmail(a.Email)
	a.CreatedAt = store.NowMillis()
	selection, err := jsonText(a.MCPSelection, "{}")
	if err != nil {
		return fmt.Errorf("encode mcp selection: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agent (`+agentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Email, a.Name, a.Image, a.Description, a.Tone, a.Verbosity, a.EmojiUsage,
		a.LanguageStyle, selection, a.CreatedAt)
	if err != nil {
		if isConstraint(err) {
			return apperr.Store(fmt.Sprintf("agent email %q is already taken", a.Email), err)
		}
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

func (s *Store) UpdateAgent(ctx context.Context, id string, u store.AgentUpdate) (*store.Agent, error) {
	updates := map[string]any{}
	set := func(col string, v *string) {
		if v != nil {
			updates[col] = *v
		}
	}
	set("name", u.Name)
	set("image", u.Image)
	set("description", u.Description)
	set("tone", u.Tone)
	set("verbosity", u.Verbosity)
	set("emoji_usage", u.EmojiUsage)
	set("language_style", u.LanguageStyle)
	if u.MCPSelection != nil {
		selection, err := jsonText(u.MCPSelection, "{}")
		if err != nil {
			return nil, fmt.Errorf("encode mcp selection: %w", err)
		}
		updates["mcp_selection"] = selection
	}

	if len(updates) > 0 {
		clause, args, err := columnUpdate(updates, map[string]bool{
			"name": true, "image": true, "description": true, "tone": true, "verbosity": true,
			"emoji_usage": true, "language_style": true, "mcp_selection": true,
		})
		if err != nil {
			return nil, err
		}
		res, err := s.db.ExecContext(ctx, `UPDATE agent SET `+clause+` WHERE id = ?`, append(args, id)...)
		if err != nil {
			return nil, fmt.Errorf("update agent: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, apperr.NotFound("agent %s not found", id)
		}
	}
	return s.GetAgent(ctx, id)
}

func (s *Store) GetAgent(ctx context.Context, id string) (*store.Agent, error) {
	a, err := scanAgent(s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agent WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("agent %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return a, nil
}

func (s *Store) GetAgentsByIDs(ctx context.Context, ids []string) ([]store.Agent, error) {
	if len(ids) == 0 {
		return []store.Agent{}, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return s.listAgents(ctx, `SELECT `+agentColumns+` FROM agent WHERE id IN (`+placeholders(len(ids))+`) ORDER BY created_at`, args...)
}

func (s *Store) ListAgents(ctx context.Context) ([]store.Agent, error) {
	return s.listAgents(ctx, `SELECT `+agentColumns+` FROM agent ORDER BY created_at`)
}

func (s *Store) listAgents(ctx context.Context, query string, args ...any) ([]store.Agent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	agents := []store.Agent{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, *a)
	}
	return agents, rows.Err()
}

// normalizeEmail is used for uniqueness comparisons.
func normalizeEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }
