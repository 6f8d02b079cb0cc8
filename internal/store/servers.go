// ABOUTME: Server store methods for registered upstream MCP endpoints
// ABOUTME: Handles the cached tool catalog column and project-scoped lookups

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/toolgate/toolgate/internal/catalog"
)

const serverColumns = "id, project_id, name, base_url, auth_token, cached_tools, is_active, created_at, updated_at"

// CreateServer persists a new server record.
// Returns ErrDuplicateServerName if the project already has a server with the same name.
func (s *SQLiteStore) CreateServer(ctx context.Context, server *Server) error {
	toolsJSON, err := marshalCatalog(server.CachedTools)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO mcp_servers (id, project_id, name, base_url, auth_token, cached_tools, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		server.ID,
		server.ProjectID,
		server.Name,
		server.BaseURL,
		nullString(server.AuthToken),
		toolsJSON,
		server.Active,
		server.CreatedAt.UTC().Format(time.RFC3339),
		server.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateServerName
		}
		return fmt.Errorf("inserting server: %w", err)
	}

	s.logger.Debug("created server", "id", server.ID, "project_id", server.ProjectID, "name", server.Name)
	return nil
}

// GetServer retrieves a server by ID within a project.
// Returns ErrNotFound if it doesn't exist or belongs to another project.
func (s *SQLiteStore) GetServer(ctx context.Context, projectID, serverID string) (*Server, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+serverColumns+" FROM mcp_servers WHERE id = ? AND project_id = ?",
		serverID, projectID)
	return scanServer(row)
}

// GetActiveServerByName retrieves an active server by its exact name within a project.
// Returns ErrNotFound if no active server has that name.
func (s *SQLiteStore) GetActiveServerByName(ctx context.Context, projectID, name string) (*Server, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+serverColumns+" FROM mcp_servers WHERE project_id = ? AND name = ? AND is_active = 1",
		projectID, name)
	return scanServer(row)
}

// ListServers returns servers in a project, oldest first.
func (s *SQLiteStore) ListServers(ctx context.Context, projectID string, limit, offset int) ([]*Server, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+serverColumns+" FROM mcp_servers WHERE project_id = ? ORDER BY created_at ASC LIMIT ? OFFSET ?",
		projectID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying servers: %w", err)
	}
	return collectServers(rows)
}

// ListActiveServers returns all active servers in a project in registration
// order. The gateway iterates this for tool-based resolution; first catalog
// match wins.
func (s *SQLiteStore) ListActiveServers(ctx context.Context, projectID string) ([]*Server, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+serverColumns+" FROM mcp_servers WHERE project_id = ? AND is_active = 1 ORDER BY created_at ASC",
		projectID)
	if err != nil {
		return nil, fmt.Errorf("querying active servers: %w", err)
	}
	return collectServers(rows)
}

// UpdateServer writes all mutable fields of a server record.
// Returns ErrNotFound if the server doesn't exist in the project and
// ErrDuplicateServerName on a name collision.
func (s *SQLiteStore) UpdateServer(ctx context.Context, server *Server) error {
	toolsJSON, err := marshalCatalog(server.CachedTools)
	if err != nil {
		return err
	}

	query := `
		UPDATE mcp_servers
		SET name = ?, base_url = ?, auth_token = ?, cached_tools = ?, is_active = ?, updated_at = ?
		WHERE id = ? AND project_id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		server.Name,
		server.BaseURL,
		nullString(server.AuthToken),
		toolsJSON,
		server.Active,
		time.Now().UTC().Format(time.RFC3339),
		server.ID,
		server.ProjectID,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateServerName
		}
		return fmt.Errorf("updating server: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated server", "id", server.ID, "name", server.Name)
	return nil
}

// DeleteServer removes a server from a project.
// Returns ErrNotFound if it doesn't exist.
func (s *SQLiteStore) DeleteServer(ctx context.Context, projectID, serverID string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM mcp_servers WHERE id = ? AND project_id = ?", serverID, projectID)
	if err != nil {
		return fmt.Errorf("deleting server: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted server", "id", serverID, "project_id", projectID)
	return nil
}

// marshalCatalog serializes a catalog for storage. A nil catalog is stored as
// NULL so servers with no successful handshake are distinguishable.
func marshalCatalog(c catalog.Catalog) (any, error) {
	if c == nil {
		return nil, nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshaling cached tools: %w", err)
	}
	return string(data), nil
}

func scanServer(scanner interface{ Scan(dest ...any) error }) (*Server, error) {
	var server Server
	var authToken, toolsJSON *string
	var createdAtStr, updatedAtStr string

	err := scanner.Scan(
		&server.ID,
		&server.ProjectID,
		&server.Name,
		&server.BaseURL,
		&authToken,
		&toolsJSON,
		&server.Active,
		&createdAtStr,
		&updatedAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning server: %w", err)
	}

	if authToken != nil {
		server.AuthToken = *authToken
	}

	server.CachedTools = catalog.Catalog{}
	if toolsJSON != nil {
		if err := json.Unmarshal([]byte(*toolsJSON), &server.CachedTools); err != nil {
			return nil, fmt.Errorf("unmarshaling cached tools: %w", err)
		}
	}

	server.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	server.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &server, nil
}

func collectServers(rows *sql.Rows) ([]*Server, error) {
	defer func() { _ = rows.Close() }()

	servers := []*Server{}
	for rows.Next() {
		server, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, server)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating servers: %w", err)
	}
	return servers, nil
}
