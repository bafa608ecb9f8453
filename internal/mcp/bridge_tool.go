package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/roomclaw/internal/store"
	"github.com/nextlevelbuilder/roomclaw/internal/tools"
)

// BridgeTool exposes one remote MCP tool as a tools.Tool.
type BridgeTool struct {
	serverName string
	tool       mcpgo.Tool
	client     *mcpclient.Client
	timeout    time.Duration
	params     map[string]any
}

func NewBridgeTool(srv store.MCPServerData, t mcpgo.Tool, client *mcpclient.Client, timeout time.Duration) *BridgeTool {
	return &BridgeTool{
		serverName: srv.Name,
		tool:       t,
		client:     client,
		timeout:    timeout,
		params:     inputSchema(t),
	}
}

func (b *BridgeTool) Name() string { return b.tool.Name }

func (b *BridgeTool) Description() string {
	if b.tool.Description == "" {
		return fmt.Sprintf("Tool %s from MCP server %s.", b.tool.Name, b.serverName)
	}
	return b.tool.Description
}

func (b *BridgeTool) Parameters() map[string]any { return b.params }

// Server returns the name of the MCP server the tool belongs to.
func (b *BridgeTool) Server() string { return b.serverName }

func (b *BridgeTool) Execute(ctx context.Context, args map[string]any) *tools.Result {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	req := mcpgo.CallToolRequest{}
	req.Params.Name = b.tool.Name
	req.Params.Arguments = args

	res, err := b.client.CallTool(ctx, req)
	if err != nil {
		return tools.ErrorResult(fmt.Sprintf("MCP tool %s failed: %v", b.tool.Name, err)).WithError(err)
	}

	text := contentText(res.Content)
	if res.IsError {
		return tools.ErrorResult(text)
	}
	return tools.NewResult(text)
}

func contentText(content []mcpgo.Content) string {
	var parts []string
	for _, c := range content {
		switch v := c.(type) {
		case mcpgo.TextContent:
			parts = append(parts, v.Text)
		case *mcpgo.TextContent:
			parts = append(parts, v.Text)
		default:
			data, err := json.Marshal(c)
			if err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}

// inputSchema converts the tool's declared input schema to the generic map
// handed to providers.
func inputSchema(t mcpgo.Tool) map[string]any {
	var raw []byte
	if len(t.RawInputSchema) > 0 {
		raw = t.RawInputSchema
	} else {
		raw, _ = json.Marshal(t.InputSchema)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil || len(out) == 0 {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	if _, ok := out["type"]; !ok {
		out["type"] = "object"
	}
	if props, ok := out["properties"]; !ok || props == nil {
		out["properties"] = map[string]any{}
	}
	return out
}
