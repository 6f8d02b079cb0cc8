// ABOUTME: Project CRUD handlers for the management API
// ABOUTME: Projects are the tenant boundary; deleting one cascades its records

package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/toolgate/toolgate/internal/auth"
	"github.com/toolgate/toolgate/internal/store"
)

type projectPayload struct {
	Name string `json:"name"`
}

type projectResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt"`
}

func toProjectResponse(p *store.Project) projectResponse {
	return projectResponse{
		ID:        p.ID,
		Name:      p.Name,
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustUserFromContext(r.Context())

	var req projectPayload
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", codeValidation)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		s.writeError(w, http.StatusBadRequest, "Project name is required", codeValidation)
		return
	}

	project := &store.Project{
		ID:        uuid.New().String(),
		UserID:    identity.UserID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateProject(r.Context(), project); err != nil {
		s.internalError(w, "creating project", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toProjectResponse(project))
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustUserFromContext(r.Context())

	projects, err := s.store.ListProjectsByUser(r.Context(), identity.UserID)
	if err != nil {
		s.internalError(w, "listing projects", err)
		return
	}
	out := make([]projectResponse, len(projects))
	for i, p := range projects {
		out[i] = toProjectResponse(p)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project := s.ownedProject(w, r)
	if project == nil {
		return
	}
	s.writeJSON(w, http.StatusOK, toProjectResponse(project))
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	project := s.ownedProject(w, r)
	if project == nil {
		return
	}

	var req projectPayload
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", codeValidation)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		s.writeError(w, http.StatusBadRequest, "Project name is required", codeValidation)
		return
	}

	project.Name = name
	if err := s.store.UpdateProject(r.Context(), project); err != nil {
		s.internalError(w, "updating project", err)
		return
	}
	s.writeJSON(w, http.StatusOK, toProjectResponse(project))
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	project := s.ownedProject(w, r)
	if project == nil {
		return
	}

	if err := s.store.DeleteProject(r.Context(), project.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "Project not found", codeNotFound)
			return
		}
		s.internalError(w, "deleting project", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
