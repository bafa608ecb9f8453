// Package gateway serves the room WebSocket endpoint and the RPC API.
package gateway

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/roomclaw/internal/apperr"
	"github.com/nextlevelbuilder/roomclaw/internal/config"
	httpapi "github.com/nextlevelbuilder/roomclaw/internal/http"
	"github.com/nextlevelbuilder/roomclaw/internal/room"
	"github.com/nextlevelbuilder/roomclaw/internal/sessions"
	"github.com/nextlevelbuilder/roomclaw/pkg/protocol"
)

// Server is the gateway server handling WebSocket and HTTP connections.
type Server struct {
	cfg *config.Config
	hub *room.Hub
	rpc *httpapi.RPCHandler

	upgrader websocket.Upgrader
	clients  map[string]*Client
	mu       sync.RWMutex

	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates a gateway server in front of hub.
func NewServer(cfg *config.Config, hub *room.Hub) *Server {
	s := &Server{
		cfg:     cfg,
		hub:     hub,
		clients: make(map[string]*Client),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// SetRPCHandler mounts the RPC API.
func (s *Server) SetRPCHandler(h *httpapi.RPCHandler) { s.rpc = h }

// checkOrigin validates WebSocket connection origin against the allowed origins whitelist.
// If no origins are configured, all origins are allowed (dev mode).
// Empty Origin header (non-browser clients like CLI/SDK) is always allowed.
func (s *Server) checkOrigin(r *http.Request) bool {
	allowed := s.cfg.Gateway.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if origin == a || a == "*" {
			return true
		}
	}
	slog.Warn("security.cors_rejected", "origin", origin)
	return false
}

// BuildMux creates and caches the HTTP mux with all routes registered.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	if s.rpc != nil {
		s.rpc.RegisterRoutes(mux)
	}

	s.mux = mux
	return mux
}

// Start begins listening for WebSocket and HTTP connections.
func (s *Server) Start(ctx context.Context) error {
	mux := s.BuildMux()

	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("gateway.starting", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

// authorized checks the gateway token from the Authorization header or the
// token query parameter. An empty configured token disables the check.
func authorized(r *http.Request, token string) bool {
	if token == "" {
		return true
	}
	got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if got == "" {
		got = r.URL.Query().Get("token")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}

// handleWebSocket authenticates, upgrades and runs one connection. The
// session identity comes from the userId and organizationId parameters.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !authorized(r, s.cfg.Gateway.Token) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	q := r.URL.Query()
	sess := sessions.Session{UserID: q.Get("userId"), OrganizationID: q.Get("organizationId")}
	if sess.UserID == "" || !room.ValidOrgID(sess.OrganizationID) {
		http.Error(w, "userId and organizationId are required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("gateway.upgrade_failed", "error", err)
		return
	}

	client := NewClient(conn, s, sess)
	if err := s.hub.Attach(r.Context(), client); err != nil {
		slog.Info("gateway.client.rejected", "user", sess.UserID, "org", sess.OrganizationID, "error", err)
		client.reject(err)
		return
	}
	s.registerClient(client)

	defer func() {
		s.unregisterClient(client)
		s.hub.Detach(client)
		client.Close()
	}()

	client.Run(r.Context())
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","protocol":%d,"clients":%d}`, protocol.ProtocolVersion, s.ClientCount())
}

// ClientCount returns the number of open WebSocket connections.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) registerClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.id] = c
	slog.Info("gateway.client.connected", "id", c.id, "user", c.att.UserID, "org", c.att.OrganizationID)
}

func (s *Server) unregisterClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c.id)
	slog.Info("gateway.client.disconnected", "id", c.id)
}

func closeCode(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindAuthorization:
		return websocket.ClosePolicyViolation
	case apperr.KindInvalid:
		return websocket.CloseUnsupportedData
	}
	return websocket.CloseInternalServerErr
}
