package rest

import (
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"coursecontrol/internal/actor"
	"coursecontrol/internal/cache"
	"coursecontrol/internal/chat"
	"coursecontrol/internal/model"
	"coursecontrol/internal/repository"
	"coursecontrol/internal/service"
	"coursecontrol/internal/transport/rest/handler"
	"coursecontrol/internal/transport/rest/middleware"
	"coursecontrol/internal/transport/ws"
)

// Container holds all dependencies for the router.
type Container struct {
	AuthService   *service.AuthService
	System        *actor.System
	ChatService   *chat.Service
	Subjects      repository.SubjectRepo
	Sections      repository.SectionRepo
	Selections    repository.SelectionRepo
	Enrollments   repository.EnrollmentRepo
	Notifications repository.NotificationRepo
	Seats         cache.SubjectCache
	WSHub         *ws.Hub
	InternalKey   string
}

// NewRouter creates the API router with all endpoints.
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	authHandler := handler.NewAuthHandler(c.AuthService)
	stateHandler := handler.NewStateHandler(c.System, c.Subjects, c.Sections, c.Selections, c.Seats)
	studentHandler := handler.NewStudentHandler(c.System, c.ChatService)
	facultyHandler := handler.NewFacultyHandler(c.System)
	adminHandler := handler.NewAdminHandler(c.System)
	notificationHandler := handler.NewNotificationHandler(c.Notifications)
	internalHandler := handler.NewInternalHandler(c.System)
	wsHandler := ws.NewHandler(c.WSHub, c.AuthService, c.System, c.ChatService, c.Enrollments, c.Seats)

	authMW := middleware.NewAuthMiddleware(c.AuthService)

	r.Use(corsMiddleware)

	v1 := r.PathPrefix("/v1").Subrouter()

	// Public routes
	v1.HandleFunc("/auth/login", authHandler.Login).Methods("POST", "OPTIONS")
	v1.HandleFunc("/phase", stateHandler.Phase).Methods("GET", "OPTIONS")
	v1.HandleFunc("/state", stateHandler.State).Methods("GET", "OPTIONS")
	v1.HandleFunc("/subjects/{id}/seats", stateHandler.SubjectSeats).Methods("GET", "OPTIONS")

	// WebSocket route (token in query param)
	v1.HandleFunc("/ws", wsHandler.Connect).Methods("GET")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Authenticated routes (any role)
	authRoutes := v1.NewRoute().Subrouter()
	authRoutes.Use(authMW.RequireAuth)
	authRoutes.HandleFunc("/notifications", notificationHandler.List).Methods("GET", "OPTIONS")

	// Student routes
	studentRoutes := v1.NewRoute().Subrouter()
	studentRoutes.Use(authMW.RequireRole(model.RoleStudent))
	studentRoutes.HandleFunc("/actions", studentHandler.Enqueue).Methods("POST", "OPTIONS")
	studentRoutes.HandleFunc("/actions/cancel_all", studentHandler.CancelAll).Methods("POST", "OPTIONS")
	studentRoutes.HandleFunc("/actions/{id}/cancel", studentHandler.Cancel).Methods("POST", "OPTIONS")
	studentRoutes.HandleFunc("/me/status", studentHandler.Status).Methods("GET", "OPTIONS")
	studentRoutes.HandleFunc("/me/chat/{peer}", studentHandler.ChatHistory).Methods("GET", "OPTIONS")

	// Faculty routes
	facultyRoutes := v1.NewRoute().Subrouter()
	facultyRoutes.Use(authMW.RequireRole(model.RoleFaculty))
	facultyRoutes.HandleFunc("/faculty/sections", facultyHandler.Sections).Methods("GET", "OPTIONS")
	facultyRoutes.HandleFunc("/faculty/sections/{id}", facultyHandler.Section).Methods("GET", "OPTIONS")
	facultyRoutes.HandleFunc("/faculty/sections/{id}/notify", facultyHandler.Notify).Methods("POST", "OPTIONS")

	// Admin routes
	adminRoutes := v1.NewRoute().Subrouter()
	adminRoutes.Use(authMW.RequireRole(model.RoleAdmin))
	adminRoutes.HandleFunc("/admin/phase-schedule", adminHandler.SetPhaseSchedule).Methods("PUT", "OPTIONS")
	adminRoutes.HandleFunc("/admin/subjects/{id}/publish", adminHandler.PublishSubject).Methods("POST", "OPTIONS")
	adminRoutes.HandleFunc("/admin/sections/{id}/publish", adminHandler.PublishSection).Methods("POST", "OPTIONS")
	adminRoutes.HandleFunc("/admin/notifications", adminHandler.Announce).Methods("POST", "OPTIONS")
	adminRoutes.HandleFunc("/admin/reconcile", adminHandler.Reconcile).Methods("POST", "OPTIONS")
	adminRoutes.HandleFunc("/admin/aggregate", adminHandler.Aggregate).Methods("POST", "OPTIONS")
	adminRoutes.HandleFunc("/admin/aggregate/log", adminHandler.AggregateLog).Methods("GET", "OPTIONS")

	// Internal actor endpoints (shared-key guarded, no user auth)
	internal := r.PathPrefix("/internal").Subrouter()
	internal.Use(middleware.RequireInternalKey(c.InternalKey))
	internal.HandleFunc("/actors/sections/{id}/status", internalHandler.SectionStatus).Methods("GET")
	internal.HandleFunc("/actors/sections/{id}/take", internalHandler.SectionTake).Methods("POST")
	internal.HandleFunc("/actors/sections/{id}/drop", internalHandler.SectionDrop).Methods("POST")
	internal.HandleFunc("/actors/sections/{id}/changeFrom", internalHandler.SectionChangeFrom).Methods("POST")
	internal.HandleFunc("/actors/sections/{id}/reconcile", internalHandler.SectionReconcile).Methods("POST")
	internal.HandleFunc("/actors/subjects/{id}/status", internalHandler.SubjectStatus).Methods("GET")
	internal.HandleFunc("/actors/subjects/{id}/materialize", internalHandler.SubjectMaterialize).Methods("POST")
	internal.HandleFunc("/actors/aggregator/build", internalHandler.AggregatorBuild).Methods("POST")
	internal.HandleFunc("/actors/aggregator/log", internalHandler.AggregatorLog).Methods("GET")

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
		if allowedOrigins == "" {
			allowedOrigins = "*"
		}

		allowedMethods := os.Getenv("CORS_ALLOWED_METHODS")
		if allowedMethods == "" {
			allowedMethods = "GET, POST, PUT, DELETE, OPTIONS"
		}

		allowedHeaders := os.Getenv("CORS_ALLOWED_HEADERS")
		if allowedHeaders == "" {
			allowedHeaders = "Content-Type, Authorization, x-internal-call"
		}

		w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
		w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
		w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
