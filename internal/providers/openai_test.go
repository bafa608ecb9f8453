package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func sse(w http.ResponseWriter, events ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, e := range events {
		fmt.Fprintf(w, "data: %s\n\n", e)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func TestChatStreamAccumulatesContentAndToolCalls(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" || r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("unexpected request %s auth=%q", r.URL.Path, r.Header.Get("Authorization"))
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		sse(w,
			`{"choices":[{"delta":{"content":"Hel"}}]}`,
			`{"choices":[{"delta":{"content":"lo"}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"create-document","arguments":"{\"title\":"}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"Notes\"}"}}]},"finish_reason":"tool_calls"}]}`,
			`{"choices":[],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`,
		)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("openai", "sk-test", srv.URL, "gpt-test")
	var chunks []string
	resp, err := p.ChatStream(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
		Tools: []ToolDefinition{{Type: "function", Function: ToolFunctionSchema{
			Name: "create-document", Parameters: map[string]any{"type": "object"},
		}}},
		Options: map[string]any{OptTemperature: 0.2},
	}, func(c StreamChunk) {
		if c.Content != "" {
			chunks = append(chunks, c.Content)
		}
	})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if resp.Content != "Hello" || strings.Join(chunks, "|") != "Hel|lo" {
		t.Errorf("content = %q chunks = %v", resp.Content, chunks)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "create-document" || resp.ToolCalls[0].Arguments["title"] != "Notes" {
		t.Errorf("tool calls = %+v", resp.ToolCalls)
	}
	if resp.FinishReason != "tool_calls" || resp.Usage == nil || resp.Usage.TotalTokens != 15 {
		t.Errorf("finish=%q usage=%+v", resp.FinishReason, resp.Usage)
	}
	if gotBody["model"] != "gpt-test" || gotBody["stream"] != true || gotBody["tool_choice"] != "auto" || gotBody["temperature"] != 0.2 {
		t.Errorf("request body = %v", gotBody)
	}
}

func TestChatRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":{"message":"slow down"}}`)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"{\"agentId\":\"a1\"}"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("openai", "", srv.URL, "m").
		WithRetryConfig(RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond})
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "route"}},
		Options:  map[string]any{OptResponseFormat: "json_object"},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != `{"agentId":"a1"}` || calls.Load() != 2 {
		t.Errorf("content=%q calls=%d", resp.Content, calls.Load())
	}
}

func TestChatDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("openai", "", srv.URL, "m").
		WithRetryConfig(RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond})
	_, err := p.Chat(context.Background(), ChatRequest{})
	var httpErr *HTTPError
	if err == nil || !asHTTPError(err, &httpErr) || httpErr.Status != http.StatusBadRequest {
		t.Fatalf("err = %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func asHTTPError(err error, target **HTTPError) bool {
	e, ok := err.(*HTTPError)
	if ok {
		*target = e
	}
	return ok
}

func TestParseRetryAfter(t *testing.T) {
	if got := ParseRetryAfter("3"); got != 3*time.Second {
		t.Errorf("3 -> %v", got)
	}
	if got := ParseRetryAfter("Wed, 21 Oct 2015 07:28:00 GMT"); got != 0 {
		t.Errorf("date -> %v", got)
	}
}
