package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/roomclaw/internal/store"
)

// DocumentCreator persists an agent-authored document and notifies the room.
type DocumentCreator interface {
	CreateAgentDocument(ctx context.Context, roomID, agentID, title, content string) (*store.Document, error)
}

type CreateDocumentTool struct {
	docs DocumentCreator
}

func NewCreateDocumentTool(docs DocumentCreator) *CreateDocumentTool {
	return &CreateDocumentTool{docs: docs}
}

func (t *CreateDocumentTool) Name() string { return NameCreateDocument }

func (t *CreateDocumentTool) Description() string {
	return "Create a persistent markdown document in this room. Use it to save summaries, reports or research results. " +
		"Write it as a finished professional document without follow-up questions for the user."
}

func (t *CreateDocumentTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{
				"type":        "string",
				"description": "A concise, descriptive title.",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "The full markdown content.",
			},
		},
		"required": []string{"title", "content"},
	}
}

func (t *CreateDocumentTool) Execute(ctx context.Context, args map[string]any) *Result {
	title := strings.TrimSpace(stringArg(args, "title"))
	content := stringArg(args, "content")
	if title == "" || strings.TrimSpace(content) == "" {
		return JSONResult(map[string]any{"success": false, "error": "title and content are required"})
	}

	roomID, agentID := ToolRoomIDFromCtx(ctx), ToolAgentIDFromCtx(ctx)
	doc, err := t.docs.CreateAgentDocument(ctx, roomID, agentID, title, content)
	if err != nil {
		slog.Warn("tool.create_document.failed", "room", roomID, "agent", agentID, "error", err)
		r := JSONResult(map[string]any{"success": false, "error": fmt.Sprintf("failed to create document: %v", err)})
		r.IsError = true
		return r.WithError(err)
	}
	return JSONResult(map[string]any{"success": true, "documentId": doc.ID, "title": doc.Title})
}
