// ABOUTME: Server registry service for upstream MCP endpoint records
// ABOUTME: Runs the discovery handshake whenever connection parameters change

package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/toolgate/toolgate/internal/catalog"
	"github.com/toolgate/toolgate/internal/store"
)

// Discoverer is the handshake dependency: one discovery round trip against a
// candidate upstream, returning its normalized tool catalog.
type Discoverer interface {
	Discover(ctx context.Context, baseURL, authToken string) (catalog.Catalog, error)
}

// Registry manages upstream server records for a project. Create, credential
// changes and refresh all run the handshake before anything is persisted, so
// a server row never carries connection parameters that were not verified at
// write time.
type Registry struct {
	store      store.Store
	discoverer Discoverer
	logger     *slog.Logger
}

// New creates a Registry backed by the given store and handshake client.
func New(s store.Store, d Discoverer) *Registry {
	return &Registry{
		store:      s,
		discoverer: d,
		logger:     slog.Default().With("component", "registry"),
	}
}

// CreateParams are the inputs for registering a new server.
type CreateParams struct {
	Name      string
	BaseURL   string
	AuthToken string // empty for unauthenticated upstreams
}

// Create validates the parameters, performs the discovery handshake and
// persists the server with its catalog. On handshake failure nothing is
// persisted and the classified error is returned as-is.
func (r *Registry) Create(ctx context.Context, projectID string, params CreateParams) (*store.Server, error) {
	name := strings.TrimSpace(params.Name)
	baseURL := strings.TrimSpace(params.BaseURL)
	authToken := strings.TrimSpace(params.AuthToken)

	if name == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	tools, err := r.discoverer.Discover(ctx, baseURL, authToken)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	server := &store.Server{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		Name:        name,
		BaseURL:     baseURL,
		AuthToken:   authToken,
		CachedTools: tools,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.store.CreateServer(ctx, server); err != nil {
		return nil, err
	}

	r.logger.Info("registered server",
		"project_id", projectID,
		"name", name,
		"tools", len(tools),
	)
	return server, nil
}

// UpdateParams are the optional inputs for updating a server. Nil fields are
// left unchanged. Setting AuthToken to an empty string clears the credential.
type UpdateParams struct {
	Name      *string
	BaseURL   *string
	AuthToken *string
	Active    *bool
}

// Update applies a partial update. If the base URL or credential changes, the
// handshake is re-run against the merged values before anything is written;
// a failed handshake aborts the whole update. Name and active-flag changes
// never trigger a handshake.
func (r *Registry) Update(ctx context.Context, projectID, serverID string, params UpdateParams) (*store.Server, error) {
	server, err := r.store.GetServer(ctx, projectID, serverID)
	if err != nil {
		return nil, err
	}

	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name == "" {
			return nil, fmt.Errorf("server name must be non-empty")
		}
		server.Name = name
	}
	if params.Active != nil {
		server.Active = *params.Active
	}

	needsHandshake := false
	if params.BaseURL != nil {
		baseURL := strings.TrimSpace(*params.BaseURL)
		if baseURL == "" {
			return nil, fmt.Errorf("base URL must be non-empty")
		}
		server.BaseURL = baseURL
		needsHandshake = true
	}
	if params.AuthToken != nil {
		server.AuthToken = strings.TrimSpace(*params.AuthToken)
		needsHandshake = true
	}

	if needsHandshake {
		tools, err := r.discoverer.Discover(ctx, server.BaseURL, server.AuthToken)
		if err != nil {
			return nil, err
		}
		server.CachedTools = tools
	}

	if err := r.store.UpdateServer(ctx, server); err != nil {
		return nil, err
	}
	return server, nil
}

// Refresh re-runs the handshake against the stored URL and credential and
// overwrites the cached catalog. On failure the prior catalog is left
// untouched and the classified error is returned.
func (r *Registry) Refresh(ctx context.Context, projectID, serverID string) (*store.Server, error) {
	server, err := r.store.GetServer(ctx, projectID, serverID)
	if err != nil {
		return nil, err
	}

	tools, err := r.discoverer.Discover(ctx, server.BaseURL, server.AuthToken)
	if err != nil {
		return nil, err
	}

	server.CachedTools = tools
	if err := r.store.UpdateServer(ctx, server); err != nil {
		return nil, err
	}

	r.logger.Info("refreshed server catalog",
		"project_id", projectID,
		"server_id", serverID,
		"tools", len(tools),
	)
	return server, nil
}

// Get returns a server within a project.
func (r *Registry) Get(ctx context.Context, projectID, serverID string) (*store.Server, error) {
	return r.store.GetServer(ctx, projectID, serverID)
}

// List returns servers in a project.
func (r *Registry) List(ctx context.Context, projectID string, limit, offset int) ([]*store.Server, error) {
	return r.store.ListServers(ctx, projectID, limit, offset)
}

// Delete removes a server. Keys whose allow-lists reference its tools keep
// their stale entries; tool resolution for those entries simply stops matching.
func (r *Registry) Delete(ctx context.Context, projectID, serverID string) error {
	return r.store.DeleteServer(ctx, projectID, serverID)
}
