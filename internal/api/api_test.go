// ABOUTME: Tests for the management API
// ABOUTME: Covers login, ownership scoping, CRUD delegation and secret masking

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/toolgate/toolgate/internal/auth"
	"github.com/toolgate/toolgate/internal/catalog"
	"github.com/toolgate/toolgate/internal/keys"
	"github.com/toolgate/toolgate/internal/registry"
	"github.com/toolgate/toolgate/internal/store"
)

// stubDiscoverer answers every handshake with a fixed catalog.
type stubDiscoverer struct {
	tools catalog.Catalog
	err   error
}

func (d *stubDiscoverer) Discover(_ context.Context, _, _ string) (catalog.Catalog, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.tools, nil
}

type apiFixture struct {
	store   *store.SQLiteStore
	handler http.Handler
	token   string
	userID  string
}

func setupAPI(t *testing.T) *apiFixture {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	user := &store.User{ID: uuid.New().String(), Email: "owner@example.com", PasswordHash: string(hash), CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateUser(context.Background(), user))

	tools, err := catalog.Normalize([]byte(`{"tools":[{"name":"search"},{"name":"fetch"}]}`))
	require.NoError(t, err)

	verifier := auth.NewJWTVerifier([]byte("test-secret"))
	srv := New(s, registry.New(s, &stubDiscoverer{tools: tools}), keys.New(s), verifier)

	token, err := verifier.Generate(user.ID, time.Hour)
	require.NoError(t, err)

	return &apiFixture{store: s, handler: srv.Handler(), token: token, userID: user.ID}
}

func (f *apiFixture) request(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return f.requestAs(t, f.token, method, path, body)
}

func (f *apiFixture) requestAs(t *testing.T, token, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) createProject(t *testing.T, name string) string {
	t.Helper()
	rec := f.request(t, http.MethodPost, "/api/projects", `{"name":"`+name+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp projectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.ID
}

func TestAPI_Login(t *testing.T) {
	f := setupAPI(t)

	rec := f.requestAs(t, "", http.MethodPost, "/api/login",
		`{"email":"owner@example.com","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "owner@example.com", resp.User.Email)

	// The returned token must authenticate further requests.
	listed := f.requestAs(t, resp.Token, http.MethodGet, "/api/projects", "")
	assert.Equal(t, http.StatusOK, listed.Code)
}

func TestAPI_Login_Failures(t *testing.T) {
	f := setupAPI(t)

	wrongPassword := f.requestAs(t, "", http.MethodPost, "/api/login",
		`{"email":"owner@example.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)

	unknownEmail := f.requestAs(t, "", http.MethodPost, "/api/login",
		`{"email":"nobody@example.com","password":"whatever"}`)
	assert.Equal(t, http.StatusUnauthorized, unknownEmail.Code)

	// Identical responses for both failure modes.
	assert.Equal(t, wrongPassword.Body.String(), unknownEmail.Body.String())

	missing := f.requestAs(t, "", http.MethodPost, "/api/login", `{"email":"owner@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, missing.Code)
}

func TestAPI_RequiresAuth(t *testing.T) {
	f := setupAPI(t)

	rec := f.requestAs(t, "", http.MethodGet, "/api/projects", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_ProjectCRUD(t *testing.T) {
	f := setupAPI(t)

	projectID := f.createProject(t, "production")

	got := f.request(t, http.MethodGet, "/api/projects/"+projectID, "")
	require.Equal(t, http.StatusOK, got.Code)

	updated := f.request(t, http.MethodPut, "/api/projects/"+projectID, `{"name":"renamed"}`)
	require.Equal(t, http.StatusOK, updated.Code)
	var resp projectResponse
	require.NoError(t, json.Unmarshal(updated.Body.Bytes(), &resp))
	assert.Equal(t, "renamed", resp.Name)

	deleted := f.request(t, http.MethodDelete, "/api/projects/"+projectID, "")
	assert.Equal(t, http.StatusNoContent, deleted.Code)

	gone := f.request(t, http.MethodGet, "/api/projects/"+projectID, "")
	assert.Equal(t, http.StatusNotFound, gone.Code)
}

func TestAPI_CrossOwnerProjectIsNotFound(t *testing.T) {
	f := setupAPI(t)
	projectID := f.createProject(t, "mine")

	// A second owner with a valid token.
	other := &store.User{ID: uuid.New().String(), Email: "other@example.com", PasswordHash: "h", CreatedAt: time.Now().UTC()}
	require.NoError(t, f.store.CreateUser(context.Background(), other))
	verifier := auth.NewJWTVerifier([]byte("test-secret"))
	otherToken, err := verifier.Generate(other.ID, time.Hour)
	require.NoError(t, err)

	rec := f.requestAs(t, otherToken, http.MethodGet, "/api/projects/"+projectID, "")
	// Not found, not forbidden: foreign project IDs must be unprobeable.
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, codeNotFound, resp["code"])
}

func TestAPI_ServerLifecycle(t *testing.T) {
	f := setupAPI(t)
	projectID := f.createProject(t, "p")

	created := f.request(t, http.MethodPost, "/api/projects/"+projectID+"/servers",
		`{"name":"github","baseUrl":"http://localhost:9000/mcp","authToken":"tok"}`)
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())

	var srv serverResponse
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &srv))
	assert.Equal(t, []string{"search", "fetch"}, srv.CachedTools)
	assert.True(t, srv.HasAuthToken)
	assert.NotContains(t, created.Body.String(), "tok", "upstream credential must not be echoed")

	listed := f.request(t, http.MethodGet, "/api/projects/"+projectID+"/servers", "")
	require.Equal(t, http.StatusOK, listed.Code)
	var servers []serverResponse
	require.NoError(t, json.Unmarshal(listed.Body.Bytes(), &servers))
	require.Len(t, servers, 1)

	updated := f.request(t, http.MethodPut, "/api/projects/"+projectID+"/servers/"+srv.ID,
		`{"isActive":false}`)
	require.Equal(t, http.StatusOK, updated.Code)
	var updatedSrv serverResponse
	require.NoError(t, json.Unmarshal(updated.Body.Bytes(), &updatedSrv))
	assert.False(t, updatedSrv.IsActive)

	refreshed := f.request(t, http.MethodPost, "/api/projects/"+projectID+"/servers/"+srv.ID+"/refresh", "")
	assert.Equal(t, http.StatusOK, refreshed.Code)

	deleted := f.request(t, http.MethodDelete, "/api/projects/"+projectID+"/servers/"+srv.ID, "")
	assert.Equal(t, http.StatusNoContent, deleted.Code)
}

func TestAPI_ServerDuplicateName(t *testing.T) {
	f := setupAPI(t)
	projectID := f.createProject(t, "p")

	body := `{"name":"github","baseUrl":"http://localhost:9000"}`
	first := f.request(t, http.MethodPost, "/api/projects/"+projectID+"/servers", body)
	require.Equal(t, http.StatusCreated, first.Code)

	second := f.request(t, http.MethodPost, "/api/projects/"+projectID+"/servers", body)
	assert.Equal(t, http.StatusConflict, second.Code)
}

func TestAPI_KeyLifecycle(t *testing.T) {
	f := setupAPI(t)
	projectID := f.createProject(t, "p")

	created := f.request(t, http.MethodPost, "/api/projects/"+projectID+"/keys",
		`{"label":"ci","allowedTools":["search"]}`)
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())

	var key keyResponse
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &key))
	assert.Regexp(t, `^sk_live_[0-9a-f]{32}$`, key.Key, "create reveals the full secret")

	listed := f.request(t, http.MethodGet, "/api/projects/"+projectID+"/keys", "")
	require.Equal(t, http.StatusOK, listed.Code)
	var list []keyResponse
	require.NoError(t, json.Unmarshal(listed.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.NotEqual(t, key.Key, list[0].Key, "listing must mask the secret")
	assert.NotContains(t, listed.Body.String(), key.Key[len("sk_live_"):len(key.Key)-4])

	updated := f.request(t, http.MethodPut, "/api/projects/"+projectID+"/keys/"+key.ID,
		`{"isActive":false}`)
	require.Equal(t, http.StatusOK, updated.Code)
	var updatedKey keyResponse
	require.NoError(t, json.Unmarshal(updated.Body.Bytes(), &updatedKey))
	assert.False(t, updatedKey.IsActive)

	deleted := f.request(t, http.MethodDelete, "/api/projects/"+projectID+"/keys/"+key.ID, "")
	assert.Equal(t, http.StatusNoContent, deleted.Code)
}

func TestAPI_AuditLogListing(t *testing.T) {
	f := setupAPI(t)
	projectID := f.createProject(t, "p")

	ctx := context.Background()
	serverName := "github"
	for i, status := range []string{store.AuditStatusSuccess, store.AuditStatusError} {
		require.NoError(t, f.store.AppendAuditLog(ctx, &store.AuditEntry{
			ProjectID:   projectID,
			UserID:      f.userID,
			ServerName:  &serverName,
			Status:      status,
			RequestBody: json.RawMessage(`{"tool":"search"}`),
			CreatedAt:   time.Now().UTC().Add(time.Duration(i) * time.Second),
		}))
	}

	all := f.request(t, http.MethodGet, "/api/projects/"+projectID+"/audit-logs", "")
	require.Equal(t, http.StatusOK, all.Code)
	var entries []auditEntryResponse
	require.NoError(t, json.Unmarshal(all.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, store.AuditStatusError, entries[0].Status, "newest first")

	filtered := f.request(t, http.MethodGet, "/api/projects/"+projectID+"/audit-logs?status=success", "")
	require.Equal(t, http.StatusOK, filtered.Code)
	require.NoError(t, json.Unmarshal(filtered.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, store.AuditStatusSuccess, entries[0].Status)

	bad := f.request(t, http.MethodGet, "/api/projects/"+projectID+"/audit-logs?status=weird", "")
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestSafeRaw(t *testing.T) {
	assert.Equal(t, json.RawMessage(`{"a":1}`), safeRaw(json.RawMessage(`{"a":1}`)))
	assert.Nil(t, safeRaw(nil))

	quoted := safeRaw(json.RawMessage(`{not json`))
	assert.True(t, json.Valid(quoted))
	var s string
	require.NoError(t, json.Unmarshal(quoted, &s))
	assert.Equal(t, `{not json`, s)
}
