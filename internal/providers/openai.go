package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const chatCompletionsPath = "/chat/completions"

// OpenAIProvider implements Provider for OpenAI-compatible chat completion
// APIs (OpenAI, Groq, OpenRouter, vLLM, Ollama, etc.)
type OpenAIProvider struct {
	name         string
	apiKey       string
	apiBase      string
	defaultModel string
	client       *http.Client
	retryConfig  RetryConfig
}

func NewOpenAIProvider(name, apiKey, apiBase, defaultModel string) *OpenAIProvider {
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{
		name:         name,
		apiKey:       apiKey,
		apiBase:      strings.TrimRight(apiBase, "/"),
		defaultModel: defaultModel,
		client:       &http.Client{Timeout: 120 * time.Second},
		retryConfig:  DefaultRetryConfig(),
	}
}

// WithHTTPClient swaps the HTTP client (tests point it at httptest servers).
func (p *OpenAIProvider) WithHTTPClient(c *http.Client) *OpenAIProvider {
	p.client = c
	return p
}

// WithRetryConfig overrides the connection retry policy.
func (p *OpenAIProvider) WithRetryConfig(cfg RetryConfig) *OpenAIProvider {
	p.retryConfig = cfg
	return p
}

func (p *OpenAIProvider) Name() string         { return p.name }
func (p *OpenAIProvider) DefaultModel() string { return p.defaultModel }

func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body := p.newRequest(req, false)
	return RetryDo(ctx, p.retryConfig, func() (*ChatResponse, error) {
		rc, err := p.post(ctx, body)
		if err != nil {
			return nil, err
		}
		defer rc.Close()

		var resp openAIResponse
		if err := json.NewDecoder(rc).Decode(&resp); err != nil {
			return nil, fmt.Errorf("%s: decode response: %w", p.name, err)
		}
		return resp.toChatResponse(), nil
	})
}

// ChatStream retries only the connection phase; once events flow, a read
// failure ends the call.
func (p *OpenAIProvider) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	body := p.newRequest(req, true)
	rc, err := RetryDo(ctx, p.retryConfig, func() (io.ReadCloser, error) {
		return p.post(ctx, body)
	})
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var acc streamAccumulator
	err = readEvents(rc, func(data []byte) {
		var chunk openAIStreamChunk
		if json.Unmarshal(data, &chunk) != nil {
			return
		}
		if delta := acc.add(&chunk); delta != "" && onChunk != nil {
			onChunk(StreamChunk{Content: delta})
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%s: read stream: %w", p.name, err)
	}
	if onChunk != nil {
		onChunk(StreamChunk{Done: true})
	}
	return acc.result(), nil
}

// readEvents calls fn with the payload of every "data:" line until the
// [DONE] sentinel or EOF.
func readEvents(r io.Reader, fn func(data []byte)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		data, ok := bytes.CutPrefix(scanner.Bytes(), []byte("data: "))
		if !ok {
			continue
		}
		if string(data) == "[DONE]" {
			return nil
		}
		fn(data)
	}
	return scanner.Err()
}

func (p *OpenAIProvider) newRequest(req ChatRequest, stream bool) *openAIRequest {
	out := &openAIRequest{
		Model:       req.Model,
		Messages:    make([]openAIMessage, 0, len(req.Messages)),
		Stream:      stream,
		Tools:       req.Tools,
		MaxTokens:   req.Options[OptMaxTokens],
		Temperature: req.Options[OptTemperature],
	}
	if out.Model == "" {
		out.Model = p.defaultModel
	}
	if len(req.Tools) > 0 {
		out.ToolChoice = "auto"
	}
	if stream {
		out.StreamOptions = &openAIStreamOptions{IncludeUsage: true}
	}
	if format, _ := req.Options[OptResponseFormat].(string); format != "" {
		out.ResponseFormat = &openAIResponseFormat{Type: format}
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, toOpenAIMessage(m))
	}
	return out
}

// toOpenAIMessage wraps tool calls in the function envelope with arguments
// as a JSON string. Assistant messages that only carry tool calls omit content.
func toOpenAIMessage(m Message) openAIMessage {
	msg := openAIMessage{Role: m.Role, ToolCallID: m.ToolCallID}
	if m.Content != "" || len(m.ToolCalls) == 0 {
		content := m.Content
		msg.Content = &content
	}
	for _, tc := range m.ToolCalls {
		args, _ := json.Marshal(tc.Arguments)
		call := openAIToolCall{ID: tc.ID, Type: "function"}
		call.Function.Name = tc.Name
		call.Function.Arguments = string(args)
		msg.ToolCalls = append(msg.ToolCalls, call)
	}
	return msg
}

func (p *OpenAIProvider) post(ctx context.Context, body *openAIRequest) (io.ReadCloser, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", p.name, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+chatCompletionsPath, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", p.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", p.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, &HTTPError{
			Status:     resp.StatusCode,
			Body:       fmt.Sprintf("%s: %s", p.name, msg),
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return resp.Body, nil
}
