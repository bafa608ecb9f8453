package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/roomclaw/internal/config"
	httpapi "github.com/nextlevelbuilder/roomclaw/internal/http"
	"github.com/nextlevelbuilder/roomclaw/internal/room"
	"github.com/nextlevelbuilder/roomclaw/internal/store"
	"github.com/nextlevelbuilder/roomclaw/pkg/client"
	"github.com/nextlevelbuilder/roomclaw/pkg/protocol"
)

type allowList map[string]bool // "org/user"

func (d allowList) IsOrganizationMember(_ context.Context, orgID, userID string) (bool, error) {
	return d[orgID+"/"+userID], nil
}
func (allowList) AddOrganizationMember(context.Context, string, string) error { return nil }
func (allowList) UpsertRoom(context.Context, string, string, string) error    { return nil }
func (allowList) AddRoomMembers(context.Context, string, []string) error      { return nil }
func (allowList) RemoveRoomMember(context.Context, string, string) error      { return nil }
func (allowList) ListRoomIDsForUser(context.Context, string, string) ([]string, error) {
	return nil, nil
}

type testGateway struct {
	srv *httptest.Server
	hub *room.Hub
	cfg *config.Config
}

func newTestGateway(t *testing.T, mutate func(*config.Config)) *testGateway {
	t.Helper()
	cfg := config.Default()
	cfg.Gateway.Token = "secret"
	if mutate != nil {
		mutate(cfg)
	}
	hub := room.NewHub(room.HubConfig{
		DataDir:   t.TempDir(),
		Directory: allowList{"acme/u1": true},
	})
	t.Cleanup(func() { hub.Close() })

	s := NewServer(cfg, hub)
	s.SetRPCHandler(httpapi.NewRPCHandler(hub, cfg.Gateway.Token))
	srv := httptest.NewServer(s.BuildMux())
	t.Cleanup(srv.Close)
	return &testGateway{srv: srv, hub: hub, cfg: cfg}
}

func (g *testGateway) dial(t *testing.T, user string) *client.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := client.Dial(ctx, client.Options{
		URL:            "ws" + strings.TrimPrefix(g.srv.URL, "http"),
		Token:          g.cfg.Gateway.Token,
		UserID:         user,
		OrganizationID: "acme",
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func read(t *testing.T, c *client.Conn) (protocol.Outbound, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.Read(ctx)
}

func send(t *testing.T, c *client.Conn, in protocol.Inbound) {
	t.Helper()
	if err := c.Send(context.Background(), in); err != nil {
		t.Fatalf("send %s: %v", in.InboundType(), err)
	}
}

func TestHealth(t *testing.T) {
	g := newTestGateway(t, nil)
	resp, err := http.Get(g.srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body struct {
		Status   string `json:"status"`
		Protocol int    `json:"protocol"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Protocol != protocol.ProtocolVersion {
		t.Errorf("health = %+v", body)
	}
}

func TestWebSocketHandshakeRejections(t *testing.T) {
	g := newTestGateway(t, nil)
	tests := []struct {
		name   string
		query  string
		header string
		status int
	}{
		{"no token", "?userId=u1&organizationId=acme", "", http.StatusUnauthorized},
		{"wrong token", "?userId=u1&organizationId=acme", "Bearer nope", http.StatusUnauthorized},
		{"missing user", "?organizationId=acme&token=secret", "", http.StatusBadRequest},
		{"bad org", "?userId=u1&organizationId=a/b", "Bearer secret", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, g.srv.URL+"/ws"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

func TestWebSocketOutsiderIsClosed(t *testing.T) {
	g := newTestGateway(t, nil)
	c := g.dial(t, "stranger")

	_, err := read(t, c)
	var ce *client.CloseError
	if !errors.As(err, &ce) || ce.Code != 1008 {
		t.Fatalf("read err = %v, want policy violation close", err)
	}
}

func TestWebSocketRoomRoundTrip(t *testing.T) {
	g := newTestGateway(t, nil)
	a, err := g.hub.Actor(context.Background(), "acme")
	if err != nil {
		t.Fatal(err)
	}
	rm, err := a.CreateChatRoom(context.Background(), "general", []store.Member{{ID: "u1", Type: store.MemberTypeUser, Name: "Uma"}})
	if err != nil {
		t.Fatal(err)
	}

	c := g.dial(t, "u1")
	send(t, c, protocol.OrganizationInitRequest{})
	ev, err := read(t, c)
	if err != nil {
		t.Fatal(err)
	}
	org, ok := ev.(protocol.OrganizationInitResponse)
	if !ok || len(org.ChatRooms) != 1 || org.ChatRooms[0].ID != rm.ID {
		t.Fatalf("organization init = %#v", ev)
	}

	send(t, c, protocol.ChatRoomInitRequest{RoomID: "elsewhere"})
	ev, err = read(t, c)
	if err != nil {
		t.Fatal(err)
	}
	if e, ok := ev.(protocol.ErrorFrame); !ok || e.Code != "unauthorized" || e.RequestType != protocol.TypeChatRoomInitRequest {
		t.Fatalf("foreign room init = %#v", ev)
	}

	send(t, c, protocol.ChatRoomInitRequest{RoomID: rm.ID})
	ev, err = read(t, c)
	if err != nil {
		t.Fatal(err)
	}
	if init, ok := ev.(protocol.ChatRoomInitResponse); !ok || init.RoomID != rm.ID || len(init.Members) != 1 {
		t.Fatalf("room init = %#v", ev)
	}

	if n := g.srvClients(t); n != 1 {
		t.Errorf("health clients = %d, want 1", n)
	}
}

func (g *testGateway) srvClients(t *testing.T) int {
	t.Helper()
	resp, err := http.Get(g.srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body struct {
		Clients int `json:"clients"`
	}
	json.NewDecoder(resp.Body).Decode(&body)
	return body.Clients
}

func TestWebSocketRateLimit(t *testing.T) {
	g := newTestGateway(t, func(cfg *config.Config) {
		cfg.Gateway.RateLimitPerSecond = 0.01
		cfg.Gateway.RateLimitBurst = 1
	})
	c := g.dial(t, "u1")

	send(t, c, protocol.OrganizationInitRequest{})
	send(t, c, protocol.OrganizationInitRequest{})

	var gotInit, gotLimited bool
	for range 2 {
		ev, err := read(t, c)
		if err != nil {
			t.Fatal(err)
		}
		switch e := ev.(type) {
		case protocol.OrganizationInitResponse:
			gotInit = true
		case protocol.ErrorFrame:
			gotLimited = e.Code == "rate_limited"
		}
	}
	if !gotInit || !gotLimited {
		t.Errorf("init=%v limited=%v", gotInit, gotLimited)
	}
}

func TestRPCMountedOnGateway(t *testing.T) {
	g := newTestGateway(t, nil)
	req, _ := http.NewRequest(http.MethodGet, g.srv.URL+"/v1/orgs/acme/agents", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
