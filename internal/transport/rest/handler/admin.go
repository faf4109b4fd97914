package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"coursecontrol/internal/actor"
	"coursecontrol/internal/apperr"
	"coursecontrol/internal/model"
	"coursecontrol/internal/transport/rest/middleware"
)

type AdminHandler struct {
	system *actor.System
}

func NewAdminHandler(system *actor.System) *AdminHandler {
	return &AdminHandler{system: system}
}

// SetPhaseSchedule handles PUT /v1/admin/phase-schedule
func (h *AdminHandler) SetPhaseSchedule(w http.ResponseWriter, r *http.Request) {
	var sched model.PhaseSchedule
	if err := decodeBody(r, &sched); err != nil {
		respondError(w, err)
		return
	}
	if err := h.system.Admin().SetPhaseSchedule(r.Context(), &sched); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sched)
}

func sectionOrSubjectID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		return 0, apperr.New("BAD_REQUEST", "invalid id", 400)
	}
	return id, nil
}

// PublishSubject handles POST /v1/admin/subjects/{id}/publish
func (h *AdminHandler) PublishSubject(w http.ResponseWriter, r *http.Request) {
	id, err := sectionOrSubjectID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	var req struct {
		Published bool `json:"published"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if err := h.system.Admin().PublishSubject(r.Context(), id, req.Published); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"subjectId": id, "published": req.Published})
}

// PublishSection handles POST /v1/admin/sections/{id}/publish
func (h *AdminHandler) PublishSection(w http.ResponseWriter, r *http.Request) {
	id, err := sectionOrSubjectID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	var req struct {
		Published bool `json:"published"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if err := h.system.Admin().PublishSection(r.Context(), id, req.Published); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"sectionId": id, "published": req.Published})
}

// Announce handles POST /v1/admin/notifications
func (h *AdminHandler) Announce(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	var n model.Notification
	if err := decodeBody(r, &n); err != nil {
		respondError(w, err)
		return
	}
	if err := h.system.Admin().Announce(r.Context(), identity.UserID, &n); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, n)
}

// Reconcile handles POST /v1/admin/reconcile
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.system.Admin().ReconcileAll(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// Aggregate handles POST /v1/admin/aggregate
func (h *AdminHandler) Aggregate(w http.ResponseWriter, r *http.Request) {
	if err := h.system.Aggregator().BuildNow(r.Context()); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// AggregateLog handles GET /v1/admin/aggregate/log
func (h *AdminHandler) AggregateLog(w http.ResponseWriter, r *http.Request) {
	records, err := h.system.Aggregator().Log(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"builds": records})
}
