package tools

import "context"

// Tool execution context keys. The turn runner injects the scope of the
// current turn; tools read it during Execute.

type toolContextKey string

const (
	ctxRoomID   toolContextKey = "tool_room_id"
	ctxAgentID  toolContextKey = "tool_agent_id"
	ctxThreadID toolContextKey = "tool_thread_id"
)

func WithToolRoomID(ctx context.Context, roomID string) context.Context {
	return context.WithValue(ctx, ctxRoomID, roomID)
}

func ToolRoomIDFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxRoomID).(string)
	return v
}

func WithToolAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, ctxAgentID, agentID)
}

func ToolAgentIDFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxAgentID).(string)
	return v
}

// WithToolThreadID records the thread the turn replies in; nil means top level.
func WithToolThreadID(ctx context.Context, threadID *int64) context.Context {
	return context.WithValue(ctx, ctxThreadID, threadID)
}

func ToolThreadIDFromCtx(ctx context.Context) *int64 {
	v, _ := ctx.Value(ctxThreadID).(*int64)
	return v
}
