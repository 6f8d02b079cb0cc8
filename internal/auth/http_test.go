// ABOUTME: Tests for the HTTP auth middleware
// ABOUTME: Covers bearer extraction, token validation and identity propagation

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolgate/toolgate/internal/store"
)

type fakeUserStore struct {
	users map[string]*store.User
}

func (f *fakeUserStore) GetUser(_ context.Context, id string) (*store.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return user, nil
}

func setupMiddleware(t *testing.T, captured **Identity) (http.Handler, *JWTVerifier) {
	t.Helper()
	verifier := NewJWTVerifier([]byte("test-secret"))
	users := &fakeUserStore{users: map[string]*store.User{
		"user-1": {ID: "user-1", Email: "owner@example.com"},
	}}

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			*captured = UserFromContext(r.Context())
		}
		w.WriteHeader(http.StatusOK)
	})
	return HTTPAuthMiddleware(users, verifier)(inner), verifier
}

func TestHTTPAuthMiddleware_ValidToken(t *testing.T) {
	var identity *Identity
	handler, verifier := setupMiddleware(t, &identity)

	token, err := verifier.Generate("user-1", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, identity)
	assert.Equal(t, "user-1", identity.UserID)
	assert.Equal(t, "owner@example.com", identity.Email)
}

func TestHTTPAuthMiddleware_MissingHeader(t *testing.T) {
	handler, _ := setupMiddleware(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHTTPAuthMiddleware_BadToken(t *testing.T) {
	handler, _ := setupMiddleware(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHTTPAuthMiddleware_UnknownUser(t *testing.T) {
	handler, verifier := setupMiddleware(t, nil)

	token, err := verifier.Generate("ghost", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExtractBearerToken(t *testing.T) {
	token, errMsg := extractBearerToken("Bearer abc123")
	assert.Empty(t, errMsg)
	assert.Equal(t, "abc123", token)

	for _, header := range []string{"", "Bearer ", "Basic abc", "abc123"} {
		_, errMsg := extractBearerToken(header)
		assert.NotEmpty(t, errMsg, "header %q", header)
	}
}
