// ABOUTME: Server registration handlers delegating to the registry
// ABOUTME: Handshake failures surface with their classified reason

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/toolgate/toolgate/internal/handshake"
	"github.com/toolgate/toolgate/internal/registry"
	"github.com/toolgate/toolgate/internal/store"
)

const codeHandshakeFailed = "HANDSHAKE_FAILED"

type createServerRequest struct {
	Name      string `json:"name"`
	BaseURL   string `json:"baseUrl"`
	AuthToken string `json:"authToken"`
}

type updateServerRequest struct {
	Name      *string `json:"name"`
	BaseURL   *string `json:"baseUrl"`
	AuthToken *string `json:"authToken"`
	IsActive  *bool   `json:"isActive"`
}

type serverResponse struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	BaseURL      string   `json:"baseUrl"`
	HasAuthToken bool     `json:"hasAuthToken"`
	CachedTools  []string `json:"cachedTools"`
	IsActive     bool     `json:"isActive"`
	CreatedAt    string   `json:"createdAt"`
	UpdatedAt    string   `json:"updatedAt"`
}

func toServerResponse(srv *store.Server) serverResponse {
	tools := srv.CachedTools.Names()
	if tools == nil {
		tools = []string{}
	}
	return serverResponse{
		ID:           srv.ID,
		Name:         srv.Name,
		BaseURL:      srv.BaseURL,
		HasAuthToken: srv.AuthToken != "",
		CachedTools:  tools,
		IsActive:     srv.Active,
		CreatedAt:    srv.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    srv.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// writeRegistryError maps registry failures onto API rejections. Handshake
// errors carry their classified reason so callers can tell a bad credential
// from an unreachable host.
func (s *Server) writeRegistryError(w http.ResponseWriter, action string, err error) {
	var hsErr *handshake.Error
	switch {
	case errors.As(err, &hsErr):
		s.writeError(w, http.StatusBadGateway, "Handshake with MCP server failed: "+hsErr.Error(), codeHandshakeFailed)
	case errors.Is(err, store.ErrDuplicateServerName):
		s.writeError(w, http.StatusConflict, "A server with this name already exists in the project", codeConflict)
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "Server not found", codeNotFound)
	default:
		s.internalError(w, action, err)
	}
}

func (s *Server) handleCreateServer(w http.ResponseWriter, r *http.Request) {
	project := s.ownedProject(w, r)
	if project == nil {
		return
	}

	var req createServerRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", codeValidation)
		return
	}
	if req.Name == "" || req.BaseURL == "" {
		s.writeError(w, http.StatusBadRequest, "Server name and baseUrl are required", codeValidation)
		return
	}

	server, err := s.registry.Create(r.Context(), project.ID, registry.CreateParams{
		Name:      req.Name,
		BaseURL:   req.BaseURL,
		AuthToken: req.AuthToken,
	})
	if err != nil {
		s.writeRegistryError(w, "creating server", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toServerResponse(server))
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	project := s.ownedProject(w, r)
	if project == nil {
		return
	}

	limit, offset := pagination(r)
	servers, err := s.registry.List(r.Context(), project.ID, limit, offset)
	if err != nil {
		s.internalError(w, "listing servers", err)
		return
	}
	out := make([]serverResponse, len(servers))
	for i, srv := range servers {
		out[i] = toServerResponse(srv)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	project := s.ownedProject(w, r)
	if project == nil {
		return
	}

	server, err := s.registry.Get(r.Context(), project.ID, r.PathValue("serverID"))
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "Server not found", codeNotFound)
		return
	}
	if err != nil {
		s.internalError(w, "loading server", err)
		return
	}
	s.writeJSON(w, http.StatusOK, toServerResponse(server))
}

func (s *Server) handleUpdateServer(w http.ResponseWriter, r *http.Request) {
	project := s.ownedProject(w, r)
	if project == nil {
		return
	}

	var req updateServerRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", codeValidation)
		return
	}

	server, err := s.registry.Update(r.Context(), project.ID, r.PathValue("serverID"), registry.UpdateParams{
		Name:      req.Name,
		BaseURL:   req.BaseURL,
		AuthToken: req.AuthToken,
		Active:    req.IsActive,
	})
	if err != nil {
		s.writeRegistryError(w, "updating server", err)
		return
	}
	s.writeJSON(w, http.StatusOK, toServerResponse(server))
}

func (s *Server) handleDeleteServer(w http.ResponseWriter, r *http.Request) {
	project := s.ownedProject(w, r)
	if project == nil {
		return
	}

	err := s.registry.Delete(r.Context(), project.ID, r.PathValue("serverID"))
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "Server not found", codeNotFound)
		return
	}
	if err != nil {
		s.internalError(w, "deleting server", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefreshServer(w http.ResponseWriter, r *http.Request) {
	project := s.ownedProject(w, r)
	if project == nil {
		return
	}

	server, err := s.registry.Refresh(r.Context(), project.ID, r.PathValue("serverID"))
	if err != nil {
		s.writeRegistryError(w, "refreshing server", err)
		return
	}
	s.writeJSON(w, http.StatusOK, toServerResponse(server))
}
