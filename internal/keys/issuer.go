// ABOUTME: Key issuer service for proxy API keys
// ABOUTME: Generates high-entropy secrets and manages per-key policy fields

package keys

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/toolgate/toolgate/internal/store"
)

// SecretPrefix tags every issued secret so proxy keys are visually
// distinguishable from other credentials in logs and config files.
const SecretPrefix = "sk_live_"

// secretBytes is the entropy drawn per secret; hex-encoded to 32 characters.
const secretBytes = 16

// Issuer creates and manages proxy keys for a project.
type Issuer struct {
	store  store.Store
	logger *slog.Logger
}

// New creates an Issuer backed by the given store.
func New(s store.Store) *Issuer {
	return &Issuer{
		store:  s,
		logger: slog.Default().With("component", "keys"),
	}
}

// GenerateSecret returns a fresh proxy key secret. Collision probability is
// negligible at this entropy; the store's unique constraint is the
// authoritative guard and a collision surfaces as an error on insert.
func GenerateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading randomness: %w", err)
	}
	return SecretPrefix + hex.EncodeToString(buf), nil
}

// MaskSecret renders a secret safe for listings: the prefix, an ellipsis and
// the last four characters. The full secret is shown exactly once, at
// creation time.
func MaskSecret(secret string) string {
	if len(secret) <= len(SecretPrefix)+4 {
		return SecretPrefix + "…"
	}
	return SecretPrefix + "…" + secret[len(secret)-4:]
}

// CreateParams are the inputs for issuing a new key.
type CreateParams struct {
	Label          string
	AllowedTools   []string
	BlacklistWords []string
}

// Create issues a new proxy key for the project. The returned record carries
// the full secret; callers must not persist or display it after the creation
// response.
func (i *Issuer) Create(ctx context.Context, projectID string, params CreateParams) (*store.APIKey, error) {
	label := strings.TrimSpace(params.Label)
	if label == "" {
		return nil, fmt.Errorf("label is required")
	}

	secret, err := GenerateSecret()
	if err != nil {
		return nil, err
	}

	key := &store.APIKey{
		ID:             uuid.New().String(),
		ProjectID:      projectID,
		Secret:         secret,
		Label:          label,
		AllowedTools:   params.AllowedTools,
		BlacklistWords: params.BlacklistWords,
		Active:         true,
		CreatedAt:      time.Now().UTC(),
	}
	if err := i.store.CreateAPIKey(ctx, key); err != nil {
		return nil, err
	}

	i.logger.Info("issued api key", "project_id", projectID, "key_id", key.ID, "label", label)
	return key, nil
}

// UpdateParams are the optional inputs for updating a key. Nil fields are left
// unchanged; an explicit empty list clears the corresponding restriction.
type UpdateParams struct {
	Label          *string
	AllowedTools   *[]string
	BlacklistWords *[]string
	Active         *bool
}

// Update applies a partial update to a key's label, policy lists or active
// flag. The secret is immutable.
func (i *Issuer) Update(ctx context.Context, projectID, keyID string, params UpdateParams) (*store.APIKey, error) {
	key, err := i.store.GetAPIKey(ctx, projectID, keyID)
	if err != nil {
		return nil, err
	}

	if params.Label != nil {
		label := strings.TrimSpace(*params.Label)
		if label == "" {
			return nil, fmt.Errorf("label must be non-empty")
		}
		key.Label = label
	}
	if params.AllowedTools != nil {
		key.AllowedTools = *params.AllowedTools
	}
	if params.BlacklistWords != nil {
		key.BlacklistWords = *params.BlacklistWords
	}
	if params.Active != nil {
		key.Active = *params.Active
	}

	if err := i.store.UpdateAPIKey(ctx, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Get returns a key within a project.
func (i *Issuer) Get(ctx context.Context, projectID, keyID string) (*store.APIKey, error) {
	return i.store.GetAPIKey(ctx, projectID, keyID)
}

// List returns keys in a project.
func (i *Issuer) List(ctx context.Context, projectID string, limit, offset int) ([]*store.APIKey, error) {
	return i.store.ListAPIKeys(ctx, projectID, limit, offset)
}

// Delete removes a key. Audit entries that reference it keep their rows with
// the key reference nulled.
func (i *Issuer) Delete(ctx context.Context, projectID, keyID string) error {
	return i.store.DeleteAPIKey(ctx, projectID, keyID)
}
