// ABOUTME: Tests for API key store operations
// ABOUTME: Covers secret uniqueness, policy list round trips, and scoping

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKey(projectID, secret string) *APIKey {
	return &APIKey{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Secret:    secret,
		Label:     "test key",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
}

func TestStore_CreateAPIKey(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	project := createTestProject(t, store)

	key := newTestKey(project.ID, "sk_live_abc123")
	key.AllowedTools = []string{"search", "fetch"}
	key.BlacklistWords = []string{"password"}
	require.NoError(t, store.CreateAPIKey(ctx, key))

	retrieved, err := store.GetAPIKeyBySecret(ctx, "sk_live_abc123")
	require.NoError(t, err)
	assert.Equal(t, key.ID, retrieved.ID)
	assert.Equal(t, project.ID, retrieved.ProjectID)
	assert.Equal(t, []string{"search", "fetch"}, retrieved.AllowedTools)
	assert.Equal(t, []string{"password"}, retrieved.BlacklistWords)
}

func TestStore_CreateAPIKey_DuplicateSecret(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	projectA := createTestProject(t, store)
	projectB := createTestProject(t, store)

	require.NoError(t, store.CreateAPIKey(ctx, newTestKey(projectA.ID, "sk_live_same")))

	// Secrets are unique system-wide, not just per project.
	err := store.CreateAPIKey(ctx, newTestKey(projectB.ID, "sk_live_same"))
	assert.ErrorIs(t, err, ErrDuplicateKeySecret)
}

func TestStore_GetAPIKeyBySecret_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetAPIKeyBySecret(context.Background(), "sk_live_nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GetAPIKey_ProjectScoped(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	projectA := createTestProject(t, store)
	projectB := createTestProject(t, store)

	key := newTestKey(projectA.ID, "sk_live_scoped")
	require.NoError(t, store.CreateAPIKey(ctx, key))

	_, err := store.GetAPIKey(ctx, projectB.ID, key.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_UpdateAPIKey_ClearsPolicy(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	project := createTestProject(t, store)

	key := newTestKey(project.ID, "sk_live_policy")
	key.AllowedTools = []string{"search"}
	key.BlacklistWords = []string{"secret"}
	require.NoError(t, store.CreateAPIKey(ctx, key))

	key.AllowedTools = nil
	key.BlacklistWords = nil
	key.Active = false
	require.NoError(t, store.UpdateAPIKey(ctx, key))

	retrieved, err := store.GetAPIKey(ctx, project.ID, key.ID)
	require.NoError(t, err)
	assert.Empty(t, retrieved.AllowedTools)
	assert.Empty(t, retrieved.BlacklistWords)
	assert.False(t, retrieved.Active)
}

func TestStore_ListAPIKeys(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	project := createTestProject(t, store)

	base := time.Now().UTC().Add(-time.Minute)
	for i, secret := range []string{"sk_live_1", "sk_live_2", "sk_live_3"} {
		key := newTestKey(project.ID, secret)
		key.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.CreateAPIKey(ctx, key))
	}

	keys, err := store.ListAPIKeys(ctx, project.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "sk_live_1", keys[0].Secret)

	rest, err := store.ListAPIKeys(ctx, project.ID, 10, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "sk_live_3", rest[0].Secret)
}

func TestStore_DeleteAPIKey_NullsAuditReference(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	project := createTestProject(t, store)

	key := newTestKey(project.ID, "sk_live_audited")
	require.NoError(t, store.CreateAPIKey(ctx, key))

	entry := &AuditEntry{
		ProjectID: project.ID,
		APIKeyID:  &key.ID,
		Status:    AuditStatusError,
	}
	require.NoError(t, store.AppendAuditLog(ctx, entry))

	require.NoError(t, store.DeleteAPIKey(ctx, project.ID, key.ID))

	entries, err := store.ListAuditLog(ctx, project.ID, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].APIKeyID)
}
