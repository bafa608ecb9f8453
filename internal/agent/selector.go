package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/roomclaw/internal/apperr"
	"github.com/nextlevelbuilder/roomclaw/internal/providers"
	"github.com/nextlevelbuilder/roomclaw/internal/store"
	"github.com/nextlevelbuilder/roomclaw/internal/tracing"
)

// Selector asks the model which agent, if any, should answer a batch.
type Selector struct {
	provider providers.Provider
	model    string
}

func NewSelector(provider providers.Provider, model string) *Selector {
	if model == "" {
		model = provider.DefaultModel()
	}
	return &Selector{provider: provider, model: model}
}

// RouteInput is the routing context for one batch.
type RouteInput struct {
	Room     *store.Room
	Roster   []store.Agent
	Context  []store.Message
	NewBatch []store.Message
}

// Select returns the chosen agent id, or "" when no agent should answer.
func (s *Selector) Select(ctx context.Context, in RouteInput) (agentID string, err error) {
	if len(in.Roster) == 0 {
		return "", nil
	}
	roomID := ""
	if in.Room != nil {
		roomID = in.Room.ID
	}
	ctx, span := tracing.Start(ctx, "agent.route",
		attribute.String("room.id", roomID),
		attribute.Int("roster.size", len(in.Roster)),
	)
	defer func() {
		span.SetAttributes(attribute.String("agent.selected", agentID))
		tracing.End(span, err)
	}()

	resp, err := s.provider.Chat(ctx, providers.ChatRequest{
		Model: s.model,
		Messages: append([]providers.Message{
			{Role: "system", Content: RoutingSystemPrompt(in.Room, in.Roster)},
		}, ToModelMessages(in.Context, in.NewBatch, "")...),
		Options: map[string]any{
			providers.OptResponseFormat: "json_object",
			providers.OptTemperature:    0.0,
		},
	})
	if err != nil {
		return "", apperr.Generation("route batch", err)
	}

	agentID = ParseRouteReply(resp.Content, in.Roster)
	slog.Debug("agent.route.decided", "room", roomID, "agent", agentID, "raw", resp.Content)
	return agentID, nil
}

// ParseRouteReply extracts {"agentId": ...} from a model reply. Ids outside
// the roster and malformed replies mean no agent.
func ParseRouteReply(content string, roster []store.Agent) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	if i, j := strings.Index(content, "{"), strings.LastIndex(content, "}"); i >= 0 && j > i {
		content = content[i : j+1]
	}

	var reply struct {
		AgentID *string `json:"agentId"`
	}
	if err := json.Unmarshal([]byte(content), &reply); err != nil || reply.AgentID == nil {
		return ""
	}
	for _, a := range roster {
		if a.ID == *reply.AgentID {
			return a.ID
		}
	}
	return ""
}
