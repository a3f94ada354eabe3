package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/joescharf/digest/internal/chat"
	"github.com/joescharf/digest/internal/digest"
	"github.com/joescharf/digest/internal/llm"
	"github.com/joescharf/digest/internal/models"
	"github.com/joescharf/digest/internal/projects"
	"github.com/joescharf/digest/internal/settings"
	"github.com/joescharf/digest/internal/store"
	"github.com/joescharf/digest/internal/tracker"
)

// Server provides the REST API handlers.
type Server struct {
	store    store.Store
	tracker  *tracker.Tracker
	projects *projects.Manager
	settings *settings.Manager
	digests  *digest.Service
	validate *validator.Validate
}

// NewServer creates a new API server.
// The digest service may be nil when no chat client is configured; digest
// routes then answer 503.
func NewServer(s store.Store, t *tracker.Tracker, pm *projects.Manager, sm *settings.Manager, d *digest.Service) *Server {
	return &Server{
		store:    s,
		tracker:  t,
		projects: pm,
		settings: sm,
		digests:  d,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", s.health)
	mux.HandleFunc("GET /api/v1/users", s.listUsers)

	mux.HandleFunc("GET /api/v1/users/{user}/issues", s.listIssues)
	mux.HandleFunc("POST /api/v1/users/{user}/issues", s.createIssue)
	mux.HandleFunc("POST /api/v1/users/{user}/issues/scan", s.scanMessages)
	mux.HandleFunc("GET /api/v1/users/{user}/issues/stats", s.issueStats)
	mux.HandleFunc("GET /api/v1/users/{user}/issues/search", s.searchIssues)
	mux.HandleFunc("GET /api/v1/users/{user}/issues/{id}", s.getIssue)
	mux.HandleFunc("DELETE /api/v1/users/{user}/issues/{id}", s.deleteIssue)
	mux.HandleFunc("PUT /api/v1/users/{user}/issues/{id}/status", s.transitionIssue)
	mux.HandleFunc("POST /api/v1/users/{user}/issues/{id}/messages", s.linkMessage)

	mux.HandleFunc("GET /api/v1/users/{user}/projects", s.listProjects)
	mux.HandleFunc("POST /api/v1/users/{user}/projects", s.createProject)
	mux.HandleFunc("GET /api/v1/users/{user}/projects/{name}", s.getProject)
	mux.HandleFunc("PUT /api/v1/users/{user}/projects/{name}", s.updateProject)
	mux.HandleFunc("DELETE /api/v1/users/{user}/projects/{name}", s.deleteProject)

	mux.HandleFunc("GET /api/v1/users/{user}/settings", s.getSettings)
	mux.HandleFunc("PUT /api/v1/users/{user}/settings", s.updateSettings)
	mux.HandleFunc("DELETE /api/v1/users/{user}/settings", s.resetSettings)

	mux.HandleFunc("POST /api/v1/users/{user}/aggregate", s.aggregate)
	mux.HandleFunc("POST /api/v1/users/{user}/digests", s.createDigest)
	mux.HandleFunc("POST /api/v1/users/{user}/digests/issues", s.createIssueDigest)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound), errors.Is(err, chat.ErrChannelNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, chat.ErrTransient):
		return http.StatusServiceUnavailable
	case errors.Is(err, llm.ErrMalformedResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeErr(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

// decode reads a JSON body into v and validates it.
func (s *Server) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON", models.ErrValidation)
	}
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"digests": s.digests != nil,
	})
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.Users(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	if users == nil {
		users = []string{}
	}
	writeJSON(w, http.StatusOK, users)
}
