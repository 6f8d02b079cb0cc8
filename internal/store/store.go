// ABOUTME: Store interface and data types for toolgate persistence
// ABOUTME: Defines Project, Server, APIKey, AuditEntry and the Store interface

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/toolgate/toolgate/internal/catalog"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateServerName is returned when a project already has a server with the same name
var ErrDuplicateServerName = errors.New("server name already exists in project")

// ErrDuplicateKeySecret is returned when a generated key secret collides with an existing one
var ErrDuplicateKeySecret = errors.New("key secret already exists")

// ErrDuplicateEmail is returned when a user with the same email already exists
var ErrDuplicateEmail = errors.New("email already registered")

// User represents an owner identity for the management API
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Project is the top-level tenant unit. Servers, keys and audit entries all
// belong to exactly one project.
type Project struct {
	ID        string
	UserID    string
	Name      string
	CreatedAt time.Time
}

// Server is a registered upstream MCP endpoint. AuthToken is empty for
// unauthenticated upstreams. CachedTools is the catalog from the last
// successful handshake; it is refreshed explicitly, never on the request path.
type Server struct {
	ID          string
	ProjectID   string
	Name        string
	BaseURL     string
	AuthToken   string
	CachedTools catalog.Catalog
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// APIKey is an issued proxy key. Secret is unique across the whole system and
// is the lookup key for inbound gateway requests. A nil or empty AllowedTools
// means every tool is allowed; a nil or empty BlacklistWords means no content
// filtering.
type APIKey struct {
	ID             string
	ProjectID      string
	Secret         string
	Label          string
	AllowedTools   []string
	BlacklistWords []string
	Active         bool
	CreatedAt      time.Time
}

// Audit entry status tags
const (
	AuditStatusSuccess = "success"
	AuditStatusError   = "error"
)

// AuditEntry records one gateway decision. Entries are immutable once written.
// APIKeyID is nulled if the key is later deleted; ServerName and ToolName are
// nil when the failure happened before they were resolved.
type AuditEntry struct {
	ID           string
	ProjectID    string
	APIKeyID     *string
	UserID       string
	ServerName   *string
	ToolName     *string
	Status       string
	RequestBody  json.RawMessage
	ResponseBody json.RawMessage
	CreatedAt    time.Time
}

// AuditFilter specifies filtering options for listing audit entries.
type AuditFilter struct {
	Status     *string // "success" or "error"
	ServerName *string
	Limit      int // max results (default 50, max 500)
	Offset     int
}

// Store defines the persistence contract for all toolgate components.
// A single implementation backs every surface; records are always accessed
// through project-scoped queries to prevent cross-tenant leakage.
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// Projects
	CreateProject(ctx context.Context, project *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjectsByUser(ctx context.Context, userID string) ([]*Project, error)
	UpdateProject(ctx context.Context, project *Project) error
	DeleteProject(ctx context.Context, id string) error

	// Servers
	CreateServer(ctx context.Context, server *Server) error
	GetServer(ctx context.Context, projectID, serverID string) (*Server, error)
	GetActiveServerByName(ctx context.Context, projectID, name string) (*Server, error)
	ListServers(ctx context.Context, projectID string, limit, offset int) ([]*Server, error)
	ListActiveServers(ctx context.Context, projectID string) ([]*Server, error)
	UpdateServer(ctx context.Context, server *Server) error
	DeleteServer(ctx context.Context, projectID, serverID string) error

	// API keys
	CreateAPIKey(ctx context.Context, key *APIKey) error
	GetAPIKey(ctx context.Context, projectID, keyID string) (*APIKey, error)
	GetAPIKeyBySecret(ctx context.Context, secret string) (*APIKey, error)
	ListAPIKeys(ctx context.Context, projectID string, limit, offset int) ([]*APIKey, error)
	UpdateAPIKey(ctx context.Context, key *APIKey) error
	DeleteAPIKey(ctx context.Context, projectID, keyID string) error

	// Audit log
	AppendAuditLog(ctx context.Context, entry *AuditEntry) error
	ListAuditLog(ctx context.Context, projectID string, filter AuditFilter) ([]*AuditEntry, error)

	// Close releases any resources held by the store
	Close() error
}
