package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"coursecontrol/internal/actor"
	"coursecontrol/internal/apperr"
)

// InternalHandler exposes direct actor calls for in-cluster tooling. These
// routes live under /internal and are guarded by the shared call key, never
// by user tokens.
type InternalHandler struct {
	system *actor.System
}

func NewInternalHandler(system *actor.System) *InternalHandler {
	return &InternalHandler{system: system}
}

func pathID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		return 0, apperr.New("BAD_REQUEST", "invalid id", 400)
	}
	return id, nil
}

// SectionStatus handles GET /internal/actors/sections/{id}/status
func (h *InternalHandler) SectionStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	st, err := h.system.Section(id).Status(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// SectionTake handles POST /internal/actors/sections/{id}/take
func (h *InternalHandler) SectionTake(w http.ResponseWriter, r *http.Request) {
	h.sectionMembership(w, r, func(id int, studentUserID string) error {
		return h.system.Section(id).Take(r.Context(), studentUserID)
	})
}

// SectionDrop handles POST /internal/actors/sections/{id}/drop
func (h *InternalHandler) SectionDrop(w http.ResponseWriter, r *http.Request) {
	h.sectionMembership(w, r, func(id int, studentUserID string) error {
		return h.system.Section(id).Drop(r.Context(), studentUserID)
	})
}

// SectionChangeFrom handles POST /internal/actors/sections/{id}/changeFrom
func (h *InternalHandler) SectionChangeFrom(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	var body struct {
		StudentUserID string `json:"studentUserId"`
		FromSectionID int    `json:"fromSectionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.StudentUserID == "" {
		respondError(w, apperr.New("BAD_REQUEST", "studentUserId required", 400))
		return
	}
	if err := h.system.Section(id).ChangeFrom(r.Context(), body.StudentUserID, body.FromSectionID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"sectionId": id, "ok": true})
}

func (h *InternalHandler) sectionMembership(w http.ResponseWriter, r *http.Request, op func(int, string) error) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	var body struct {
		StudentUserID string `json:"studentUserId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.StudentUserID == "" {
		respondError(w, apperr.New("BAD_REQUEST", "studentUserId required", 400))
		return
	}
	if err := op(id, body.StudentUserID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"sectionId": id, "ok": true})
}

// SectionReconcile handles POST /internal/actors/sections/{id}/reconcile
func (h *InternalHandler) SectionReconcile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	changed, err := h.system.Section(id).Reconcile(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"sectionId": id, "changed": changed})
}

// SubjectStatus handles GET /internal/actors/subjects/{id}/status
func (h *InternalHandler) SubjectStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	st, err := h.system.Subject(id).Status(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// SubjectMaterialize handles POST /internal/actors/subjects/{id}/materialize
func (h *InternalHandler) SubjectMaterialize(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := h.system.Subject(id).Materialize(r.Context()); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"subjectId": id, "ok": true})
}

// AggregatorBuild handles POST /internal/actors/aggregator/build
func (h *InternalHandler) AggregatorBuild(w http.ResponseWriter, r *http.Request) {
	if err := h.system.Aggregator().BuildNow(r.Context()); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// AggregatorLog handles GET /internal/actors/aggregator/log
func (h *InternalHandler) AggregatorLog(w http.ResponseWriter, r *http.Request) {
	log, err := h.system.Aggregator().Log(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"builds": log})
}
