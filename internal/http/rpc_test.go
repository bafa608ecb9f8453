package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nextlevelbuilder/roomclaw/internal/room"
	"github.com/nextlevelbuilder/roomclaw/internal/store"
)

func newTestServer(t *testing.T, token string) *httptest.Server {
	t.Helper()
	hub := room.NewHub(room.HubConfig{DataDir: t.TempDir()})
	t.Cleanup(func() { hub.Close() })

	mux := http.NewServeMux()
	NewRPCHandler(hub, token).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestRPCRequiresToken(t *testing.T) {
	srv := newTestServer(t, "secret")

	status, body := do(t, srv, http.MethodGet, "/v1/orgs/acme/agents", "", nil)
	if status != http.StatusUnauthorized || body["code"] != "unauthorized" {
		t.Errorf("no token: %d %v", status, body)
	}
	status, _ = do(t, srv, http.MethodGet, "/v1/orgs/acme/agents", "secret", nil)
	if status != http.StatusOK {
		t.Errorf("with token: %d", status)
	}
}

func TestRPCAgentLifecycle(t *testing.T) {
	srv := newTestServer(t, "")

	status, body := do(t, srv, http.MethodPost, "/v1/orgs/acme/agents", "", store.Agent{Name: "Ada", Email: "ada@agents.local"})
	if status != http.StatusCreated {
		t.Fatalf("create: %d %v", status, body)
	}
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatalf("created agent has no id: %v", body)
	}

	status, body = do(t, srv, http.MethodPatch, "/v1/orgs/acme/agents/"+id, "", map[string]string{"tone": "warm"})
	if status != http.StatusOK || body["tone"] != "warm" {
		t.Errorf("update: %d %v", status, body)
	}

	status, body = do(t, srv, http.MethodGet, "/v1/orgs/acme/agents?ids="+id+",missing", "", nil)
	if agents, _ := body["agents"].([]any); status != http.StatusOK || len(agents) != 1 {
		t.Errorf("by ids: %d %v", status, body)
	}

	status, body = do(t, srv, http.MethodGet, "/v1/orgs/acme/agents/missing", "", nil)
	if status != http.StatusNotFound || body["code"] != "not_found" {
		t.Errorf("missing: %d %v", status, body)
	}
}

func TestRPCErrors(t *testing.T) {
	srv := newTestServer(t, "")
	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"invalid org", http.MethodGet, "/v1/orgs/bad.org/agents", nil, http.StatusBadRequest, "invalid_request"},
		{"bad mcp transport", http.MethodPost, "/v1/orgs/acme/mcp/servers", store.MCPServerData{Name: "x", URL: "https://x.example.com", Transport: "stdio"}, http.StatusBadRequest, "invalid_request"},
		{"room without name", http.MethodPost, "/v1/orgs/acme/rooms", map[string]any{"name": ""}, http.StatusBadRequest, "invalid_request"},
		{"member of missing room", http.MethodPost, "/v1/orgs/acme/rooms/nope/members", store.Member{ID: "u1", Type: store.MemberTypeUser}, http.StatusNotFound, "not_found"},
		{"missing workflow", http.MethodDelete, "/v1/orgs/acme/workflows/nope", nil, http.StatusNotFound, "not_found"},
		{"missing document", http.MethodDelete, "/v1/orgs/acme/documents/nope", nil, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, srv, tt.method, tt.path, "", tt.body)
			if status != tt.status || body["code"] != tt.code {
				t.Errorf("got %d %v, want %d %s", status, body, tt.status, tt.code)
			}
		})
	}
}

func TestRPCRoomAndMCPServer(t *testing.T) {
	srv := newTestServer(t, "")

	status, body := do(t, srv, http.MethodPost, "/v1/orgs/acme/rooms", "", map[string]any{
		"name":    "general",
		"members": []store.Member{{ID: "u1", Type: store.MemberTypeUser, Name: "Uma"}},
	})
	if status != http.StatusCreated || body["type"] != "public" {
		t.Fatalf("create room: %d %v", status, body)
	}
	roomID, _ := body["id"].(string)

	status, _ = do(t, srv, http.MethodPost, "/v1/orgs/acme/rooms/"+roomID+"/members", "", store.Member{ID: "u2", Type: store.MemberTypeUser})
	if status != http.StatusCreated {
		t.Errorf("add member: %d", status)
	}
	status, _ = do(t, srv, http.MethodDelete, "/v1/orgs/acme/rooms/"+roomID+"/members/u2", "", nil)
	if status != http.StatusOK {
		t.Errorf("delete member: %d", status)
	}

	status, body = do(t, srv, http.MethodPost, "/v1/orgs/acme/mcp/servers", "", store.MCPServerData{
		Name: "search", URL: "https://mcp.example.com/mcp", Transport: store.MCPTransportStreamableHTTP,
	})
	if status != http.StatusCreated {
		t.Fatalf("create server: %d %v", status, body)
	}
	status, body = do(t, srv, http.MethodGet, "/v1/orgs/acme/mcp/servers", "", nil)
	if servers, _ := body["servers"].([]any); status != http.StatusOK || len(servers) != 1 {
		t.Errorf("list servers: %d %v", status, body)
	}
}
