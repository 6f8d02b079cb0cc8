// ABOUTME: Proxy key handlers delegating to the issuer
// ABOUTME: The full secret appears only in the creation response, masked elsewhere

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/toolgate/toolgate/internal/keys"
	"github.com/toolgate/toolgate/internal/store"
)

type createKeyRequest struct {
	Label          string   `json:"label"`
	AllowedTools   []string `json:"allowedTools"`
	BlacklistWords []string `json:"blacklistWords"`
}

type updateKeyRequest struct {
	Label          *string   `json:"label"`
	AllowedTools   *[]string `json:"allowedTools"`
	BlacklistWords *[]string `json:"blacklistWords"`
	IsActive       *bool     `json:"isActive"`
}

type keyResponse struct {
	ID             string   `json:"id"`
	Key            string   `json:"key"`
	Label          string   `json:"label"`
	AllowedTools   []string `json:"allowedTools"`
	BlacklistWords []string `json:"blacklistWords"`
	IsActive       bool     `json:"isActive"`
	CreatedAt      string   `json:"createdAt"`
}

// toKeyResponse renders a key record. revealSecret is true exactly once, in
// the creation response; every other path gets the masked form.
func toKeyResponse(key *store.APIKey, revealSecret bool) keyResponse {
	secret := keys.MaskSecret(key.Secret)
	if revealSecret {
		secret = key.Secret
	}
	allowed := key.AllowedTools
	if allowed == nil {
		allowed = []string{}
	}
	blacklist := key.BlacklistWords
	if blacklist == nil {
		blacklist = []string{}
	}
	return keyResponse{
		ID:             key.ID,
		Key:            secret,
		Label:          key.Label,
		AllowedTools:   allowed,
		BlacklistWords: blacklist,
		IsActive:       key.Active,
		CreatedAt:      key.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	project := s.ownedProject(w, r)
	if project == nil {
		return
	}

	var req createKeyRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", codeValidation)
		return
	}

	key, err := s.issuer.Create(r.Context(), project.ID, keys.CreateParams{
		Label:          req.Label,
		AllowedTools:   req.AllowedTools,
		BlacklistWords: req.BlacklistWords,
	})
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error(), codeValidation)
		return
	}
	s.writeJSON(w, http.StatusCreated, toKeyResponse(key, true))
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	project := s.ownedProject(w, r)
	if project == nil {
		return
	}

	limit, offset := pagination(r)
	list, err := s.issuer.List(r.Context(), project.ID, limit, offset)
	if err != nil {
		s.internalError(w, "listing keys", err)
		return
	}
	out := make([]keyResponse, len(list))
	for i, key := range list {
		out[i] = toKeyResponse(key, false)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpdateKey(w http.ResponseWriter, r *http.Request) {
	project := s.ownedProject(w, r)
	if project == nil {
		return
	}

	var req updateKeyRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", codeValidation)
		return
	}

	key, err := s.issuer.Update(r.Context(), project.ID, r.PathValue("keyID"), keys.UpdateParams{
		Label:          req.Label,
		AllowedTools:   req.AllowedTools,
		BlacklistWords: req.BlacklistWords,
		Active:         req.IsActive,
	})
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "API key not found", codeNotFound)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error(), codeValidation)
		return
	}
	s.writeJSON(w, http.StatusOK, toKeyResponse(key, false))
}

func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	project := s.ownedProject(w, r)
	if project == nil {
		return
	}

	err := s.issuer.Delete(r.Context(), project.ID, r.PathValue("keyID"))
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "API key not found", codeNotFound)
		return
	}
	if err != nil {
		s.internalError(w, "deleting key", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
