// Package httpapi is the public HTTP surface: session/CSRF-guarded JSON
// endpoints over the task and user services, plus the websocket entry point
// and a few observability routes.
package httpapi

import (
	"net/http"

	"github.com/bashaMendi/ToDo-back/internal/logging"
	"github.com/bashaMendi/ToDo-back/internal/server/config"
	"github.com/bashaMendi/ToDo-back/internal/server/csrf"
	"github.com/bashaMendi/ToDo-back/internal/server/events"
	"github.com/bashaMendi/ToDo-back/internal/server/ratelimit"
	"github.com/bashaMendi/ToDo-back/internal/server/services"
	"github.com/bashaMendi/ToDo-back/internal/server/sessions"
)

// Server holds the handler dependencies and builds the route table.
type Server struct {
	cfg      *config.Config
	logger   logging.Logger
	users    *services.UserService
	tasks    *services.TaskService
	sessions *sessions.Manager
	guard    *csrf.Guard
	limiter  *ratelimit.Limiter
	hub      *events.Hub
}

// NewServer wires the HTTP surface.
func NewServer(cfg *config.Config, logger logging.Logger, users *services.UserService, tasks *services.TaskService, sm *sessions.Manager, guard *csrf.Guard, limiter *ratelimit.Limiter, hub *events.Hub) *Server {
	return &Server{
		cfg:      cfg,
		logger:   logger.With("module", "httpapi"),
		users:    users,
		tasks:    tasks,
		sessions: sm,
		guard:    guard,
		limiter:  limiter,
		hub:      hub,
	}
}

// Handler builds the route table. Mutating task routes require a session
// and a CSRF token; authentication routes carry their own stricter rate
// limit.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// authentication
	mux.HandleFunc("POST /auth/signup", s.authLimited(s.handleSignup))
	mux.HandleFunc("POST /auth/login", s.authLimited(s.handleLogin))
	mux.HandleFunc("POST /auth/logout", s.apiLimited(s.handleLogout))
	mux.HandleFunc("POST /auth/refresh", s.apiLimited(s.handleRefresh))
	mux.HandleFunc("POST /auth/forgot-password", s.authLimited(s.handleForgotPassword))
	mux.HandleFunc("POST /auth/reset-password", s.authLimited(s.handleResetPassword))

	// tasks
	mux.HandleFunc("GET /tasks", s.apiLimited(s.withAuth(s.handleListTasks)))
	mux.HandleFunc("POST /tasks", s.apiLimited(s.withAuth(s.withCSRF(s.handleCreateTask))))
	mux.HandleFunc("GET /tasks/{id}", s.apiLimited(s.withAuth(s.handleGetTask)))
	mux.HandleFunc("PATCH /tasks/{id}", s.apiLimited(s.withAuth(s.withCSRF(s.handleUpdateTask))))
	mux.HandleFunc("DELETE /tasks/{id}", s.apiLimited(s.withAuth(s.withCSRF(s.handleDeleteTask))))
	mux.HandleFunc("POST /tasks/restore", s.apiLimited(s.withAuth(s.withCSRF(s.handleRestoreTask))))
	mux.HandleFunc("POST /tasks/{id}/duplicate", s.apiLimited(s.withAuth(s.withCSRF(s.handleDuplicateTask))))
	mux.HandleFunc("PUT /tasks/{id}/assign/me", s.apiLimited(s.withAuth(s.withCSRF(s.handleAssignSelf))))
	mux.HandleFunc("PUT /tasks/{id}/star", s.apiLimited(s.withAuth(s.withCSRF(s.handleStar))))
	mux.HandleFunc("DELETE /tasks/{id}/star", s.apiLimited(s.withAuth(s.withCSRF(s.handleUnstar))))

	// viewer-scoped reads
	mux.HandleFunc("GET /me/tasks", s.apiLimited(s.withAuth(s.handleMyTasks)))
	mux.HandleFunc("GET /me/starred", s.apiLimited(s.withAuth(s.handleStarred)))
	mux.HandleFunc("GET /me/tasks/export", s.apiLimited(s.withAuth(s.handleExport)))

	// sync and observability
	mux.HandleFunc("GET /sync", s.apiLimited(s.withAuth(s.handleSync)))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /stats/rate-limit", s.apiLimited(s.handleRateLimitStats))
	mux.HandleFunc("GET /stats/realtime", s.apiLimited(s.handleRealtimeStats))

	// real-time channel; auth happens in-band after the upgrade
	mux.Handle("GET /ws", s.hub)

	return s.withRequestID(mux)
}
