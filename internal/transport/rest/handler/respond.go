package handler

import (
	"encoding/json"
	"net/http"

	"coursecontrol/internal/apperr"
)

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func respondError(w http.ResponseWriter, err error) {
	ae := apperr.From(err)
	respondJSON(w, ae.Status, map[string]interface{}{
		"error": map[string]string{
			"code":    ae.Code,
			"message": ae.Message,
		},
	})
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.New("BAD_REQUEST", "invalid request body", 400)
	}
	return nil
}
