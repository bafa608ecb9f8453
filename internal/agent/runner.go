// Package agent runs agent turns: prompt assembly, routing and the streaming
// tool loop that produces cumulative message parts.
package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/roomclaw/internal/apperr"
	"github.com/nextlevelbuilder/roomclaw/internal/providers"
	"github.com/nextlevelbuilder/roomclaw/internal/store"
	"github.com/nextlevelbuilder/roomclaw/internal/tools"
	"github.com/nextlevelbuilder/roomclaw/internal/tracing"
)

const defaultMaxIterations = 10

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Provider      providers.Provider
	Model         string
	MaxIterations int
	MaxTokens     int
	Temperature   float64
}

// Runner executes agent turns against one provider.
type Runner struct {
	provider      providers.Provider
	model         string
	maxIterations int
	maxTokens     int
	temperature   float64
}

func NewRunner(cfg RunnerConfig) *Runner {
	r := &Runner{
		provider:      cfg.Provider,
		model:         cfg.Model,
		maxIterations: cfg.MaxIterations,
		maxTokens:     cfg.MaxTokens,
		temperature:   cfg.Temperature,
	}
	if r.model == "" {
		r.model = cfg.Provider.DefaultModel()
	}
	if r.maxIterations <= 0 {
		r.maxIterations = defaultMaxIterations
	}
	return r
}

func (r *Runner) Model() string { return r.model }

// Turn is the input of one agent turn.
type Turn struct {
	Agent    *store.Agent
	RoomID   string
	ThreadID *int64
	System   string
	Messages []providers.Message
	Tools    *tools.Registry
}

// Run streams one turn. onSnapshot receives the cumulative parts after every
// text delta and every tool step; each call gets its own slice. The returned
// parts are the final snapshot, also on error.
func (r *Runner) Run(ctx context.Context, t Turn, onSnapshot func([]store.Part)) (parts []store.Part, err error) {
	ctx = tools.WithToolRoomID(ctx, t.RoomID)
	ctx = tools.WithToolAgentID(ctx, t.Agent.ID)
	ctx = tools.WithToolThreadID(ctx, t.ThreadID)

	ctx, span := tracing.Start(ctx, "agent.turn",
		attribute.String("agent.id", t.Agent.ID),
		attribute.String("room.id", t.RoomID),
		attribute.Bool("thread", t.ThreadID != nil),
	)
	defer func() {
		span.SetAttributes(attribute.Int("parts", len(parts)))
		tracing.End(span, err)
	}()

	emit := func() {
		if onSnapshot != nil {
			onSnapshot(slices.Clone(parts))
		}
	}

	registry := t.Tools
	if registry == nil {
		registry = tools.NewRegistry()
	}
	messages := make([]providers.Message, 0, len(t.Messages)+1)
	messages = append(messages, providers.Message{Role: "system", Content: t.System})
	messages = append(messages, t.Messages...)

	for iteration := 1; iteration <= r.maxIterations; iteration++ {
		slog.Debug("agent.iteration", "agent", t.Agent.ID, "iteration", iteration, "messages", len(messages))

		textIdx := -1
		var text strings.Builder
		resp, err := r.chatStream(ctx, iteration, providers.ChatRequest{
			Messages: messages,
			Tools:    registry.Definitions(),
			Model:    r.model,
			Options:  r.options(),
		}, func(chunk providers.StreamChunk) {
			if chunk.Content == "" {
				return
			}
			text.WriteString(chunk.Content)
			if textIdx < 0 {
				parts = append(parts, store.TextPart(""))
				textIdx = len(parts) - 1
			}
			parts[textIdx].Text = SanitizeAssistantText(text.String(), t.Agent.Name)
			emit()
		})
		if err != nil {
			return parts, apperr.Generation("llm call failed", err)
		}
		if textIdx < 0 && resp.Content != "" {
			parts = append(parts, store.TextPart(SanitizeAssistantText(resp.Content, t.Agent.Name)))
			emit()
		}
		if textIdx >= 0 {
			parts[textIdx].Text = strings.TrimSpace(parts[textIdx].Text)
		}

		if len(resp.ToolCalls) == 0 {
			return parts, nil
		}

		messages = append(messages, providers.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, tc := range resp.ToolCalls {
			input, _ := json.Marshal(tc.Arguments)
			parts = append(parts, store.Part{
				Type:       store.PartToolCall,
				ToolCallID: tc.ID,
				ToolName:   tc.Name,
				Input:      input,
			})
			emit()

			res := r.executeTool(ctx, registry, tc)
			parts = append(parts, store.Part{
				Type:       store.PartToolResult,
				ToolCallID: tc.ID,
				ToolName:   tc.Name,
				Output:     res.Output(),
				IsError:    res.IsError,
			})
			emit()

			messages = append(messages, providers.Message{
				Role:       "tool",
				Content:    res.ForLLM,
				ToolCallID: tc.ID,
			})
		}
	}

	slog.Warn("agent.iterations.exhausted", "agent", t.Agent.ID, "room", t.RoomID, "max", r.maxIterations)
	return parts, nil
}

func (r *Runner) chatStream(ctx context.Context, iteration int, req providers.ChatRequest, onChunk func(providers.StreamChunk)) (resp *providers.ChatResponse, err error) {
	ctx, span := tracing.Start(ctx, "llm.chat_stream",
		attribute.String("llm.provider", r.provider.Name()),
		attribute.String("llm.model", r.model),
		attribute.Int("llm.iteration", iteration),
	)
	defer func() {
		if resp != nil {
			span.SetAttributes(attribute.String("llm.finish_reason", resp.FinishReason))
			if resp.Usage != nil {
				span.SetAttributes(
					attribute.Int("llm.prompt_tokens", resp.Usage.PromptTokens),
					attribute.Int("llm.completion_tokens", resp.Usage.CompletionTokens),
				)
			}
		}
		tracing.End(span, err)
	}()
	return r.provider.ChatStream(ctx, req, onChunk)
}

func (r *Runner) executeTool(ctx context.Context, registry *tools.Registry, tc providers.ToolCall) *tools.Result {
	ctx, span := tracing.Start(ctx, "tool.call", attribute.String("tool.name", tc.Name))
	res := registry.Execute(ctx, tc.Name, tc.Arguments)
	if res.IsError {
		slog.Warn("agent.tool.error", "tool", tc.Name, "error", truncate(res.ForLLM, 200))
	}
	tracing.End(span, res.Err)
	return res
}

func (r *Runner) options() map[string]any {
	opts := map[string]any{}
	if r.maxTokens > 0 {
		opts[providers.OptMaxTokens] = r.maxTokens
	}
	if r.temperature > 0 {
		opts[providers.OptTemperature] = r.temperature
	}
	return opts
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
