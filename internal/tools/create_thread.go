package tools

import "context"

// CreateThreadTool lets the model move the rest of its reply into a new
// thread rooted at the message written so far. The fork itself happens when
// the stream reconciler sees this tool's result.
type CreateThreadTool struct{}

func NewCreateThreadTool() *CreateThreadTool { return &CreateThreadTool{} }

func (t *CreateThreadTool) Name() string { return NameCreateMessageThread }

func (t *CreateThreadTool) Description() string {
	return "Create a new message thread for the rest of your reply. Only available when you are not already replying inside a thread."
}

func (t *CreateThreadTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Short note on what the thread is about.",
			},
		},
	}
}

func (t *CreateThreadTool) Execute(context.Context, map[string]any) *Result {
	return JSONResult(map[string]any{"success": true})
}
