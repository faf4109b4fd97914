package handler

import (
	"net/http"
	"strconv"

	"coursecontrol/internal/model"
	"coursecontrol/internal/repository"
	"coursecontrol/internal/transport/rest/middleware"
)

type NotificationHandler struct {
	notifications repository.NotificationRepo
}

func NewNotificationHandler(notifications repository.NotificationRepo) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// List handles GET /v1/notifications
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := h.notifications.ListForAudience(r.Context(), identity.Role, identity.UserID, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	if out == nil {
		out = []model.Notification{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"notifications": out})
}
