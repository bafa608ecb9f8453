package http

import (
	"net/http"

	"github.com/nextlevelbuilder/roomclaw/internal/room"
	"github.com/nextlevelbuilder/roomclaw/internal/store"
	"github.com/nextlevelbuilder/roomclaw/pkg/protocol"
)

func (h *RPCHandler) registerRoomRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/orgs/{org}/rooms", h.serve(protocol.MethodCreateChatRoom, h.handleCreateRoom))
	mux.HandleFunc("POST /v1/orgs/{org}/rooms/{room}/members", h.serve(protocol.MethodAddChatRoomMember, h.handleAddMember))
	mux.HandleFunc("DELETE /v1/orgs/{org}/rooms/{room}/members/{member}", h.serve(protocol.MethodDeleteChatRoomMember, h.handleDeleteMember))
}

type createRoomRequest struct {
	Name    string         `json:"name"`
	Members []store.Member `json:"members"`
}

func (h *RPCHandler) handleCreateRoom(w http.ResponseWriter, r *http.Request, a *room.Actor) {
	var req createRoomRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rm, err := a.CreateChatRoom(r.Context(), req.Name, req.Members)
	if err != nil {
		writeError(w, protocol.MethodCreateChatRoom, err)
		return
	}
	writeJSON(w, http.StatusCreated, rm)
}

func (h *RPCHandler) handleAddMember(w http.ResponseWriter, r *http.Request, a *room.Actor) {
	var m store.Member
	if !decodeBody(w, r, &m) {
		return
	}
	added, err := a.AddChatRoomMember(r.Context(), r.PathValue("room"), m)
	if err != nil {
		writeError(w, protocol.MethodAddChatRoomMember, err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

func (h *RPCHandler) handleDeleteMember(w http.ResponseWriter, r *http.Request, a *room.Actor) {
	if err := a.DeleteChatRoomMember(r.Context(), r.PathValue("room"), r.PathValue("member")); err != nil {
		writeError(w, protocol.MethodDeleteChatRoomMember, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
