// ABOUTME: Login handler exchanging email+password for a management JWT
// ABOUTME: Uses a dummy bcrypt comparison so unknown emails cost the same time

package api

import (
	"errors"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/toolgate/toolgate/internal/auth"
	"github.com/toolgate/toolgate/internal/store"
)

// dummyHash keeps login timing constant when the email does not resolve.
// This prevents timing attacks that could enumerate registered emails.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
	User  struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", codeValidation)
		return
	}
	if req.Email == "" || req.Password == "" {
		s.writeError(w, http.StatusBadRequest, "Email and password are required", codeValidation)
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if errors.Is(err, store.ErrNotFound) {
		// Do a dummy bcrypt comparison to maintain constant timing
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(req.Password))
		s.writeError(w, http.StatusUnauthorized, "Invalid email or password", codeUnauthorized)
		return
	}
	if err != nil {
		s.internalError(w, "loading user", err)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.writeError(w, http.StatusUnauthorized, "Invalid email or password", codeUnauthorized)
		return
	}

	token, err := s.verifier.Generate(user.ID, auth.DefaultTokenTTL)
	if err != nil {
		s.internalError(w, "generating token", err)
		return
	}

	s.logger.Info("owner logged in", "user_id", user.ID)

	var resp loginResponse
	resp.Token = token
	resp.User.ID = user.ID
	resp.User.Email = user.Email
	s.writeJSON(w, http.StatusOK, resp)
}
