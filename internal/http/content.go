package http

import (
	"net/http"

	"github.com/nextlevelbuilder/roomclaw/internal/room"
	"github.com/nextlevelbuilder/roomclaw/pkg/protocol"
)

func (h *RPCHandler) registerContentRoutes(mux *http.ServeMux) {
	mux.HandleFunc("DELETE /v1/orgs/{org}/workflows/{id}", h.serve(protocol.MethodDeleteWorkflow, h.handleDeleteWorkflow))
	mux.HandleFunc("DELETE /v1/orgs/{org}/documents/{id}", h.serve(protocol.MethodDeleteDocument, h.handleDeleteDocument))
}

func (h *RPCHandler) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request, a *room.Actor) {
	wf, err := a.DeleteWorkflow(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, protocol.MethodDeleteWorkflow, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (h *RPCHandler) handleDeleteDocument(w http.ResponseWriter, r *http.Request, a *room.Actor) {
	d, err := a.DeleteDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, protocol.MethodDeleteDocument, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
