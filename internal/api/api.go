// ABOUTME: Management API server for projects, servers, keys and audit logs
// ABOUTME: Owner-scoped JSON CRUD; all project routes verify ownership first

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/toolgate/toolgate/internal/auth"
	"github.com/toolgate/toolgate/internal/keys"
	"github.com/toolgate/toolgate/internal/registry"
	"github.com/toolgate/toolgate/internal/store"
)

// Rejection codes for the management surface.
const (
	codeUnauthorized = "UNAUTHORIZED"
	codeNotFound     = "NOT_FOUND"
	codeValidation   = "VALIDATION_ERROR"
	codeConflict     = "CONFLICT"
	codeInternal     = "INTERNAL_ERROR"
)

// Server is the management API. It owns no business logic: requests are
// validated, scoped to the authenticated owner, and delegated to the
// registry, issuer and store.
type Server struct {
	store    store.Store
	registry *registry.Registry
	issuer   *keys.Issuer
	verifier *auth.JWTVerifier
	logger   *slog.Logger
}

// New creates a management API server.
func New(s store.Store, reg *registry.Registry, issuer *keys.Issuer, verifier *auth.JWTVerifier) *Server {
	return &Server{
		store:    s,
		registry: reg,
		issuer:   issuer,
		verifier: verifier,
		logger:   slog.Default().With("component", "api"),
	}
}

// Handler returns the management API handler. Login is the only
// unauthenticated route; everything else sits behind the JWT middleware.
func (s *Server) Handler() http.Handler {
	protected := http.NewServeMux()

	protected.HandleFunc("POST /api/projects", s.handleCreateProject)
	protected.HandleFunc("GET /api/projects", s.handleListProjects)
	protected.HandleFunc("GET /api/projects/{projectID}", s.handleGetProject)
	protected.HandleFunc("PUT /api/projects/{projectID}", s.handleUpdateProject)
	protected.HandleFunc("DELETE /api/projects/{projectID}", s.handleDeleteProject)

	protected.HandleFunc("POST /api/projects/{projectID}/servers", s.handleCreateServer)
	protected.HandleFunc("GET /api/projects/{projectID}/servers", s.handleListServers)
	protected.HandleFunc("GET /api/projects/{projectID}/servers/{serverID}", s.handleGetServer)
	protected.HandleFunc("PUT /api/projects/{projectID}/servers/{serverID}", s.handleUpdateServer)
	protected.HandleFunc("DELETE /api/projects/{projectID}/servers/{serverID}", s.handleDeleteServer)
	protected.HandleFunc("POST /api/projects/{projectID}/servers/{serverID}/refresh", s.handleRefreshServer)

	protected.HandleFunc("POST /api/projects/{projectID}/keys", s.handleCreateKey)
	protected.HandleFunc("GET /api/projects/{projectID}/keys", s.handleListKeys)
	protected.HandleFunc("PUT /api/projects/{projectID}/keys/{keyID}", s.handleUpdateKey)
	protected.HandleFunc("DELETE /api/projects/{projectID}/keys/{keyID}", s.handleDeleteKey)

	protected.HandleFunc("GET /api/projects/{projectID}/audit-logs", s.handleListAuditLogs)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.Handle("/api/", auth.HTTPAuthMiddleware(s.store, s.verifier)(protected))
	return mux
}

// ownedProject loads the project from the path and verifies the
// authenticated owner holds it. Missing and foreign projects are both
// reported as not found so project IDs cannot be probed.
func (s *Server) ownedProject(w http.ResponseWriter, r *http.Request) *store.Project {
	identity := auth.MustUserFromContext(r.Context())

	project, err := s.store.GetProject(r.Context(), r.PathValue("projectID"))
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "Project not found", codeNotFound)
		return nil
	}
	if err != nil {
		s.internalError(w, "loading project", err)
		return nil
	}
	if project.UserID != identity.UserID {
		s.writeError(w, http.StatusNotFound, "Project not found", codeNotFound)
		return nil
	}
	return project
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encoding response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message, code string) {
	s.writeJSON(w, status, map[string]string{"error": message, "code": code})
}

func (s *Server) internalError(w http.ResponseWriter, action string, err error) {
	s.logger.Error(action+" failed", "error", err)
	s.writeError(w, http.StatusInternalServerError, "Internal error", codeInternal)
}

// decodeBody decodes a JSON request body, rejecting unknown garbage early.
func decodeBody(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

// pagination reads limit/offset query parameters, tolerating absence.
func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
