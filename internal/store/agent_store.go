package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// ToolSelection is an agent's choice of tools from one MCP server.
// On the wire it is true (all tools), false (none) or a list of tool names.
type ToolSelection struct {
	All   bool
	Tools []string
}

// Enabled reports whether any tool of the server is selected.
func (s ToolSelection) Enabled() bool { return s.All || len(s.Tools) > 0 }

// Allows reports whether the named tool is selected.
func (s ToolSelection) Allows(name string) bool {
	if s.All {
		return true
	}
	for _, t := range s.Tools {
		if t == name {
			return true
		}
	}
	return false
}

func (s ToolSelection) MarshalJSON() ([]byte, error) {
	if s.All {
		return []byte("true"), nil
	}
	if len(s.Tools) > 0 {
		return json.Marshal(s.Tools)
	}
	return []byte("false"), nil
}

func (s *ToolSelection) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*s = ToolSelection{All: b}
		return nil
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return fmt.Errorf("tool selection must be a boolean or a list of tool names")
	}
	*s = ToolSelection{Tools: names}
	return nil
}

// Agent is an autonomous room member profile.
type Agent struct {
	ID            string                   `json:"id"`
	Email         string                   `json:"email"`
	Name          string                   `json:"name"`
	Image         string                   `json:"image"`
	Description   string                   `json:"description"`
	Tone          string                   `json:"tone"`
	Verbosity     string                   `json:"verbosity"`
	EmojiUsage    string                   `json:"emojiUsage"`
	LanguageStyle string                   `json:"languageStyle"`
	MCPSelection  map[string]ToolSelection `json:"mcpSelection,omitempty"`
	CreatedAt     int64                    `json:"createdAt"`
}

// AgentUpdate carries the fields of an updateAgent call. Nil fields are unchanged.
type AgentUpdate struct {
	Name          *string                  `json:"name,omitempty"`
	Image         *string                  `json:"image,omitempty"`
	Description   *string                  `json:"description,omitempty"`
	Tone          *string                  `json:"tone,omitempty"`
	Verbosity     *string                  `json:"verbosity,omitempty"`
	EmojiUsage    *string                  `json:"emojiUsage,omitempty"`
	LanguageStyle *string                  `json:"languageStyle,omitempty"`
	MCPSelection  map[string]ToolSelection `json:"mcpSelection,omitempty"`
}

// AgentStore manages agent profiles.
type AgentStore interface {
	CreateAgent(ctx context.Context, a *Agent) error
	UpdateAgent(ctx context.Context, id string, u AgentUpdate) (*Agent, error)
	GetAgent(ctx context.Context, id string) (*Agent, error)
	GetAgentsByIDs(ctx context.Context, ids []string) ([]Agent, error)
	ListAgents(ctx context.Context) ([]Agent, error)
}
