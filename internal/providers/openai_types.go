package providers

import (
	"encoding/json"
	"strings"
)

// Wire types for the OpenAI chat completions API.

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	Stream         bool                  `json:"stream"`
	StreamOptions  *openAIStreamOptions  `json:"stream_options,omitempty"`
	Tools          []ToolDefinition      `json:"tools,omitempty"`
	ToolChoice     string                `json:"tool_choice,omitempty"`
	MaxTokens      any                   `json:"max_tokens,omitempty"`
	Temperature    any                   `json:"temperature,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    *string          `json:"content,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content   string           `json:"content"`
			ToolCalls []openAIToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *openAIUsage `json:"usage"`
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string                `json:"content"`
			ToolCalls []openAIToolCallDelta `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *openAIUsage `json:"usage"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIToolCallDelta struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIUsage struct {
	PromptTokens        int `json:"prompt_tokens"`
	CompletionTokens    int `json:"completion_tokens"`
	TotalTokens         int `json:"total_tokens"`
	PromptTokensDetails *struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"prompt_tokens_details"`
}

func (u *openAIUsage) toUsage() *Usage {
	if u == nil {
		return nil
	}
	out := &Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
	if u.PromptTokensDetails != nil {
		out.CacheReadTokens = u.PromptTokensDetails.CachedTokens
	}
	return out
}

func decodeArguments(raw string) map[string]any {
	args := make(map[string]any)
	_ = json.Unmarshal([]byte(raw), &args)
	return args
}

func (r *openAIResponse) toChatResponse() *ChatResponse {
	out := &ChatResponse{FinishReason: "stop", Usage: r.Usage.toUsage()}
	if len(r.Choices) == 0 {
		return out
	}
	choice := r.Choices[0]
	out.Content = choice.Message.Content
	out.FinishReason = choice.FinishReason
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      strings.TrimSpace(tc.Function.Name),
			Arguments: decodeArguments(tc.Function.Arguments),
		})
	}
	if len(out.ToolCalls) > 0 {
		out.FinishReason = "tool_calls"
	}
	return out
}

// streamAccumulator folds stream chunks into the final response. Tool calls
// arrive as fragments keyed by index.
type streamAccumulator struct {
	content string
	finish  string
	usage   *Usage
	calls   []*pendingCall
}

const maxStreamedToolCalls = 64

type pendingCall struct {
	id, name string
	args     strings.Builder
}

// add folds chunk in and returns the new content delta, if any.
func (s *streamAccumulator) add(chunk *openAIStreamChunk) string {
	if chunk.Usage != nil {
		s.usage = chunk.Usage.toUsage()
	}
	if len(chunk.Choices) == 0 {
		return ""
	}
	choice := chunk.Choices[0]
	s.content += choice.Delta.Content
	for _, tc := range choice.Delta.ToolCalls {
		if tc.Index < 0 || tc.Index >= maxStreamedToolCalls {
			continue
		}
		for len(s.calls) <= tc.Index {
			s.calls = append(s.calls, nil)
		}
		pc := s.calls[tc.Index]
		if pc == nil {
			pc = &pendingCall{id: tc.ID}
			s.calls[tc.Index] = pc
		}
		if name := strings.TrimSpace(tc.Function.Name); name != "" {
			pc.name = name
		}
		pc.args.WriteString(tc.Function.Arguments)
	}
	if choice.FinishReason != "" {
		s.finish = choice.FinishReason
	}
	return choice.Delta.Content
}

func (s *streamAccumulator) result() *ChatResponse {
	out := &ChatResponse{Content: s.content, FinishReason: s.finish, Usage: s.usage}
	if out.FinishReason == "" {
		out.FinishReason = "stop"
	}
	for _, pc := range s.calls {
		if pc == nil {
			continue
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: pc.id, Name: pc.name, Arguments: decodeArguments(pc.args.String())})
	}
	if len(out.ToolCalls) > 0 {
		out.FinishReason = "tool_calls"
	}
	return out
}
