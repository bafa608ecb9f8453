package http

import (
	"net/http"
	"strings"

	"github.com/nextlevelbuilder/roomclaw/internal/room"
	"github.com/nextlevelbuilder/roomclaw/internal/store"
	"github.com/nextlevelbuilder/roomclaw/pkg/protocol"
)

func (h *RPCHandler) registerAgentRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/orgs/{org}/agents", h.serve(protocol.MethodGetAgents, h.handleListAgents))
	mux.HandleFunc("POST /v1/orgs/{org}/agents", h.serve(protocol.MethodCreateAgent, h.handleCreateAgent))
	mux.HandleFunc("GET /v1/orgs/{org}/agents/{id}", h.serve(protocol.MethodGetAgentByID, h.handleGetAgent))
	mux.HandleFunc("PATCH /v1/orgs/{org}/agents/{id}", h.serve(protocol.MethodUpdateAgent, h.handleUpdateAgent))
}

// handleListAgents lists every agent, or with ?ids=a,b only those agents.
func (h *RPCHandler) handleListAgents(w http.ResponseWriter, r *http.Request, a *room.Actor) {
	if raw := r.URL.Query().Get("ids"); raw != "" {
		var ids []string
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		agents, err := a.GetAgentsByIDs(r.Context(), ids)
		if err != nil {
			writeError(w, protocol.MethodGetAgentsByIDs, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
		return
	}

	agents, err := a.GetAgents(r.Context())
	if err != nil {
		writeError(w, protocol.MethodGetAgents, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

func (h *RPCHandler) handleCreateAgent(w http.ResponseWriter, r *http.Request, a *room.Actor) {
	var req store.Agent
	if !decodeBody(w, r, &req) {
		return
	}
	ag, err := a.CreateAgent(r.Context(), req)
	if err != nil {
		writeError(w, protocol.MethodCreateAgent, err)
		return
	}
	writeJSON(w, http.StatusCreated, ag)
}

func (h *RPCHandler) handleGetAgent(w http.ResponseWriter, r *http.Request, a *room.Actor) {
	ag, err := a.GetAgentByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, protocol.MethodGetAgentByID, err)
		return
	}
	writeJSON(w, http.StatusOK, ag)
}

func (h *RPCHandler) handleUpdateAgent(w http.ResponseWriter, r *http.Request, a *room.Actor) {
	var u store.AgentUpdate
	if !decodeBody(w, r, &u) {
		return
	}
	ag, err := a.UpdateAgent(r.Context(), r.PathValue("id"), u)
	if err != nil {
		writeError(w, protocol.MethodUpdateAgent, err)
		return
	}
	writeJSON(w, http.StatusOK, ag)
}
