// ABOUTME: API key store methods for issued proxy keys
// ABOUTME: Secret lookup is global; everything else is project-scoped

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const keyColumns = "id, project_id, key_string, label, allowed_tools, blacklist_words, is_active, created_at"

// CreateAPIKey persists a new proxy key.
// Returns ErrDuplicateKeySecret if the secret collides with an existing key;
// the unique constraint is the authoritative collision guard.
func (s *SQLiteStore) CreateAPIKey(ctx context.Context, key *APIKey) error {
	allowedJSON, err := marshalStringList(key.AllowedTools)
	if err != nil {
		return err
	}
	blacklistJSON, err := marshalStringList(key.BlacklistWords)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO api_keys (id, project_id, key_string, label, allowed_tools, blacklist_words, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		key.ID,
		key.ProjectID,
		key.Secret,
		key.Label,
		allowedJSON,
		blacklistJSON,
		key.Active,
		key.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateKeySecret
		}
		return fmt.Errorf("inserting api key: %w", err)
	}

	s.logger.Debug("created api key", "id", key.ID, "project_id", key.ProjectID, "label", key.Label)
	return nil
}

// GetAPIKey retrieves a key by ID within a project.
// Returns ErrNotFound if it doesn't exist or belongs to another project.
func (s *SQLiteStore) GetAPIKey(ctx context.Context, projectID, keyID string) (*APIKey, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+keyColumns+" FROM api_keys WHERE id = ? AND project_id = ?",
		keyID, projectID)
	return scanAPIKey(row)
}

// GetAPIKeyBySecret retrieves a key by its secret string. This is the one
// deliberately global lookup in the store: the secret is unique system-wide
// and is all an inbound gateway request carries.
func (s *SQLiteStore) GetAPIKeyBySecret(ctx context.Context, secret string) (*APIKey, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+keyColumns+" FROM api_keys WHERE key_string = ?", secret)
	return scanAPIKey(row)
}

// ListAPIKeys returns keys in a project, oldest first.
func (s *SQLiteStore) ListAPIKeys(ctx context.Context, projectID string, limit, offset int) ([]*APIKey, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+keyColumns+" FROM api_keys WHERE project_id = ? ORDER BY created_at ASC LIMIT ? OFFSET ?",
		projectID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying api keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	keys := []*APIKey{}
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating api keys: %w", err)
	}
	return keys, nil
}

// UpdateAPIKey writes the mutable fields of a key (label, policy lists,
// active flag). The secret is immutable.
// Returns ErrNotFound if the key doesn't exist in the project.
func (s *SQLiteStore) UpdateAPIKey(ctx context.Context, key *APIKey) error {
	allowedJSON, err := marshalStringList(key.AllowedTools)
	if err != nil {
		return err
	}
	blacklistJSON, err := marshalStringList(key.BlacklistWords)
	if err != nil {
		return err
	}

	query := `
		UPDATE api_keys
		SET label = ?, allowed_tools = ?, blacklist_words = ?, is_active = ?
		WHERE id = ? AND project_id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		key.Label,
		allowedJSON,
		blacklistJSON,
		key.Active,
		key.ID,
		key.ProjectID,
	)
	if err != nil {
		return fmt.Errorf("updating api key: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAPIKey removes a key from a project.
// Returns ErrNotFound if it doesn't exist.
func (s *SQLiteStore) DeleteAPIKey(ctx context.Context, projectID, keyID string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM api_keys WHERE id = ? AND project_id = ?", keyID, projectID)
	if err != nil {
		return fmt.Errorf("deleting api key: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted api key", "id", keyID, "project_id", projectID)
	return nil
}

// marshalStringList serializes a policy list for storage. nil and empty both
// store as NULL: an empty list means "no restriction", same as absent.
func marshalStringList(list []string) (any, error) {
	if len(list) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("marshaling string list: %w", err)
	}
	return string(data), nil
}

func scanAPIKey(scanner interface{ Scan(dest ...any) error }) (*APIKey, error) {
	var key APIKey
	var allowedJSON, blacklistJSON *string
	var createdAtStr string

	err := scanner.Scan(
		&key.ID,
		&key.ProjectID,
		&key.Secret,
		&key.Label,
		&allowedJSON,
		&blacklistJSON,
		&key.Active,
		&createdAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning api key: %w", err)
	}

	if allowedJSON != nil {
		if err := json.Unmarshal([]byte(*allowedJSON), &key.AllowedTools); err != nil {
			return nil, fmt.Errorf("unmarshaling allowed tools: %w", err)
		}
	}
	if blacklistJSON != nil {
		if err := json.Unmarshal([]byte(*blacklistJSON), &key.BlacklistWords); err != nil {
			return nil, fmt.Errorf("unmarshaling blacklist words: %w", err)
		}
	}

	key.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &key, nil
}
