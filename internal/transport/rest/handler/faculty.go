package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"coursecontrol/internal/actor"
	"coursecontrol/internal/apperr"
	"coursecontrol/internal/transport/rest/middleware"
)

type FacultyHandler struct {
	system *actor.System
}

func NewFacultyHandler(system *actor.System) *FacultyHandler {
	return &FacultyHandler{system: system}
}

// Sections handles GET /v1/faculty/sections
func (h *FacultyHandler) Sections(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	out, err := h.system.Faculty(identity.UserID).Sections(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"sections": out})
}

// Section handles GET /v1/faculty/sections/{id}
func (h *FacultyHandler) Section(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, apperr.New("BAD_REQUEST", "invalid section id", 400))
		return
	}
	st, err := h.system.Faculty(identity.UserID).SectionStatus(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// Notify handles POST /v1/faculty/sections/{id}/notify
func (h *FacultyHandler) Notify(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, apperr.New("BAD_REQUEST", "invalid section id", 400))
		return
	}
	var req struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.Title == "" {
		respondError(w, apperr.New("BAD_REQUEST", "title required", 400))
		return
	}
	n, err := h.system.Faculty(identity.UserID).NotifySection(r.Context(), id, req.Title, req.Body)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"notified": n})
}
