// Package http exposes the organization RPC surface (rooms, members, agents,
// workflows, documents, MCP servers) as JSON endpoints.
package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nextlevelbuilder/roomclaw/internal/apperr"
	"github.com/nextlevelbuilder/roomclaw/internal/room"
)

const maxBodyBytes = 1 << 20

// ActorSource resolves the actor that owns an organization.
type ActorSource interface {
	Actor(ctx context.Context, orgID string) (*room.Actor, error)
}

// RPCHandler serves every RPC operation under /v1/orgs/{org}/.
type RPCHandler struct {
	actors ActorSource
	token  string
}

// NewRPCHandler creates the RPC handler. An empty token disables auth.
func NewRPCHandler(actors ActorSource, token string) *RPCHandler {
	return &RPCHandler{actors: actors, token: token}
}

// RegisterRoutes registers all RPC routes on the given mux.
func (h *RPCHandler) RegisterRoutes(mux *http.ServeMux) {
	h.registerRoomRoutes(mux)
	h.registerAgentRoutes(mux)
	h.registerContentRoutes(mux)
	h.registerMCPRoutes(mux)
}

// orgHandler is an RPC handler bound to the organization's actor.
type orgHandler func(w http.ResponseWriter, r *http.Request, a *room.Actor)

// serve wraps next with token auth and actor resolution. method names the
// RPC operation in logs.
func (h *RPCHandler) serve(method string, next orgHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.token != "" && subtle.ConstantTimeCompare([]byte(extractBearerToken(r)), []byte(h.token)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized", "code": string(apperr.KindAuthorization)})
			return
		}
		a, err := h.actors.Actor(r.Context(), r.PathValue("org"))
		if err != nil {
			writeError(w, method, err)
			return
		}
		next(w, r, a)
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return after
	}
	return ""
}

// decodeBody reads a JSON request body into v, replying 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error(), "code": string(apperr.KindInvalid)})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps err to its status and wire code. Internal failures are
// logged and reported without detail.
func writeError(w http.ResponseWriter, method string, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("rpc.failed", "method", method, "error", err)
	} else {
		slog.Debug("rpc.rejected", "method", method, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": apperr.MessageOf(err), "code": string(apperr.KindOf(err))})
}
