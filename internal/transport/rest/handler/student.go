package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"coursecontrol/internal/actor"
	"coursecontrol/internal/apperr"
	"coursecontrol/internal/chat"
	"coursecontrol/internal/model"
	"coursecontrol/internal/transport/rest/middleware"
)

// StudentHandler is the REST twin of the websocket action surface: clients
// that cannot hold a socket open can still enqueue, cancel and poll.
type StudentHandler struct {
	system  *actor.System
	chatSvc *chat.Service
}

func NewStudentHandler(system *actor.System, chatSvc *chat.Service) *StudentHandler {
	return &StudentHandler{system: system, chatSvc: chatSvc}
}

// Enqueue handles POST /v1/actions
func (h *StudentHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	var req struct {
		ID      string           `json:"id"`
		Action  model.ActionName `json:"action"`
		Payload json.RawMessage  `json:"payload"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	item, err := h.system.Student(identity.UserID).Enqueue(r.Context(), req.ID, req.Action, req.Payload)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, item)
}

// Status handles GET /v1/me/status
func (h *StudentHandler) Status(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	st, err := h.system.Student(identity.UserID).Status(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// Cancel handles POST /v1/actions/{id}/cancel
func (h *StudentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	itemID := mux.Vars(r)["id"]
	ok, err := h.system.Student(identity.UserID).Cancel(r.Context(), itemID)
	if err != nil {
		respondError(w, err)
		return
	}
	if !ok {
		respondError(w, apperr.New("NOT_CANCELLABLE", "item is not queued", 409))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"cancelled": true})
}

// CancelAll handles POST /v1/actions/cancel_all
func (h *StudentHandler) CancelAll(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	n, err := h.system.Student(identity.UserID).CancelAll(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"cancelled": n})
}

// ChatHistory handles GET /v1/me/chat/{peer}
func (h *StudentHandler) ChatHistory(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	peer := mux.Vars(r)["peer"]
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"messages": h.chatSvc.History(*identity, peer),
	})
}
