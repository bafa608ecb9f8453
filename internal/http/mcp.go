package http

import (
	"net/http"

	"github.com/nextlevelbuilder/roomclaw/internal/room"
	"github.com/nextlevelbuilder/roomclaw/internal/store"
	"github.com/nextlevelbuilder/roomclaw/pkg/protocol"
)

func (h *RPCHandler) registerMCPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/orgs/{org}/mcp/servers", h.serve(protocol.MethodGetMcpServers, h.handleListServers))
	mux.HandleFunc("POST /v1/orgs/{org}/mcp/servers", h.serve(protocol.MethodCreateMcpServer, h.handleCreateServer))
	mux.HandleFunc("PUT /v1/orgs/{org}/mcp/servers/{id}", h.serve(protocol.MethodUpdateMcpServer, h.handleUpdateServer))
	mux.HandleFunc("DELETE /v1/orgs/{org}/mcp/servers/{id}", h.serve(protocol.MethodDeleteMcpServer, h.handleDeleteServer))
}

func (h *RPCHandler) handleListServers(w http.ResponseWriter, r *http.Request, a *room.Actor) {
	servers, err := a.GetMcpServers(r.Context())
	if err != nil {
		writeError(w, protocol.MethodGetMcpServers, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"servers": servers})
}

func (h *RPCHandler) handleCreateServer(w http.ResponseWriter, r *http.Request, a *room.Actor) {
	var srv store.MCPServerData
	if !decodeBody(w, r, &srv) {
		return
	}
	created, err := a.CreateMcpServer(r.Context(), srv)
	if err != nil {
		writeError(w, protocol.MethodCreateMcpServer, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *RPCHandler) handleUpdateServer(w http.ResponseWriter, r *http.Request, a *room.Actor) {
	var updates map[string]any
	if !decodeBody(w, r, &updates) {
		return
	}
	srv, err := a.UpdateMcpServer(r.Context(), r.PathValue("id"), updates)
	if err != nil {
		writeError(w, protocol.MethodUpdateMcpServer, err)
		return
	}
	writeJSON(w, http.StatusOK, srv)
}

func (h *RPCHandler) handleDeleteServer(w http.ResponseWriter, r *http.Request, a *room.Actor) {
	if err := a.DeleteMcpServer(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, protocol.MethodDeleteMcpServer, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
