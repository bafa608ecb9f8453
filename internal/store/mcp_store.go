package store

import "context"

const (
	MCPTransportSSE            = "sse"
	MCPTransportStreamableHTTP = "streamable-http"
)

// MCPServerData is a remote MCP server registered for an organization.
type MCPServerData struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url"`
	Transport   string `json:"transport"` // "sse", "streamable-http"
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt"`
}

// MCPServerStore manages the organization's MCP server registry.
type MCPServerStore interface {
	CreateServer(ctx context.Context, s *MCPServerData) error
	GetServer(ctx context.Context, id string) (*MCPServerData, error)
	ListServers(ctx context.Context) ([]MCPServerData, error)
	// UpdateServer applies column updates (name, description, url, transport).
	UpdateServer(ctx context.Context, id string, updates map[string]any) (*MCPServerData, error)
	DeleteServer(ctx context.Context, id string) error
}
