package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"coursecontrol/internal/actor"
	"coursecontrol/internal/apperr"
	"coursecontrol/internal/cache"
	"coursecontrol/internal/model"
	"coursecontrol/internal/repository"
)

// StateHandler serves the anonymous read surface. During the selection
// window it hands out the aggregator's blob verbatim, so these endpoints
// stay cheap under the rush no matter how many clients poll them.
type StateHandler struct {
	system     *actor.System
	subjects   repository.SubjectRepo
	sections   repository.SectionRepo
	selections repository.SelectionRepo
	seats      cache.SubjectCache
}

func NewStateHandler(system *actor.System, subjects repository.SubjectRepo, sections repository.SectionRepo, selections repository.SelectionRepo, seats cache.SubjectCache) *StateHandler {
	return &StateHandler{system: system, subjects: subjects, sections: sections, selections: selections, seats: seats}
}

// Phase handles GET /v1/phase
func (h *StateHandler) Phase(w http.ResponseWriter, r *http.Request) {
	ph, err := h.system.Phase(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"phase": ph})
}

// State handles GET /v1/state. During the selection rush it serves the
// aggregator's prebuilt blob; outside it, write pressure is low enough to
// answer straight from the store, which is authoritative.
func (h *StateHandler) State(w http.ResponseWriter, r *http.Request) {
	ph, err := h.system.Phase(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}

	if ph == model.PhaseSelection {
		data, fingerprint, err := h.system.Aggregator().State(r.Context())
		if err != nil {
			respondError(w, err)
			return
		}
		if data != nil {
			w.Header().Set("ETag", `"`+fingerprint+`"`)
			respondJSON(w, http.StatusOK, map[string]interface{}{
				"phase": ph,
				"state": json.RawMessage(data),
			})
			return
		}
		// first build hasn't landed yet; fall through to the direct path
	}

	state, err := h.directState(r)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"phase": ph,
		"state": state,
	})
}

type directSubjectState struct {
	model.Subject
	Sections []directSectionState `json:"sections"`
}

type directSectionState struct {
	SectionID int `json:"sectionId"`
	SeatsLeft int `json:"seatsLeft"`
	MaxSeats  int `json:"maxSeats"`
}

// directState recomputes seat counts from the selection rows.
func (h *StateHandler) directState(r *http.Request) ([]directSubjectState, error) {
	ctx := r.Context()
	subjects, err := h.subjects.ListPublished(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]directSubjectState, 0, len(subjects))
	for _, subj := range subjects {
		entry := directSubjectState{Subject: subj, Sections: []directSectionState{}}
		secs, err := h.sections.ListBySubject(ctx, subj.ID)
		if err != nil {
			return nil, err
		}
		for _, sec := range secs {
			if !sec.Published {
				continue
			}
			occupied, err := h.selections.CountBySection(ctx, sec.ID)
			if err != nil {
				return nil, err
			}
			entry.Sections = append(entry.Sections, directSectionState{
				SectionID: sec.ID,
				SeatsLeft: sec.MaxSeats - occupied,
				MaxSeats:  sec.MaxSeats,
			})
		}
		out = append(out, entry)
	}
	return out, nil
}

// SubjectSeats handles GET /v1/subjects/{id}/seats
func (h *StateHandler) SubjectSeats(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, apperr.New("BAD_REQUEST", "invalid subject id", 400))
		return
	}
	payload, err := h.seats.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	if payload == nil {
		respondError(w, apperr.Newf("SUBJECT_NOT_FOUND", 404, "no seat data for subject %d", id))
		return
	}
	respondJSON(w, http.StatusOK, payload)
}
