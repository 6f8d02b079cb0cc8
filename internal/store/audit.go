// ABOUTME: Audit log store methods for recording gateway decisions
// ABOUTME: Entries are append-only; one row per terminal gateway outcome

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AppendAuditLog appends a new entry to the audit log.
// Generates ID and CreatedAt if not set.
func (s *SQLiteStore) AppendAuditLog(ctx context.Context, entry *AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_logs (id, project_id, api_key_id, user_id, server_name, tool_name, status, request_body, response_body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.ProjectID,
		entry.APIKeyID,
		nullString(entry.UserID),
		entry.ServerName,
		entry.ToolName,
		entry.Status,
		rawJSONArg(entry.RequestBody),
		rawJSONArg(entry.ResponseBody),
		entry.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	s.logger.Debug("appended audit entry",
		"id", entry.ID,
		"project_id", entry.ProjectID,
		"status", entry.Status,
	)
	return nil
}

// normalizeAuditLimit applies default (50) and cap (500) to audit limit.
func normalizeAuditLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 500:
		return 500
	default:
		return limit
	}
}

const auditLogQuery = `
	SELECT id, project_id, api_key_id, user_id, server_name, tool_name, status, request_body, response_body, created_at
	FROM audit_logs
	WHERE project_id = ?
	  AND (? IS NULL OR status = ?)
	  AND (? IS NULL OR server_name = ?)
	ORDER BY created_at DESC
	LIMIT ? OFFSET ?
`

// ListAuditLog returns audit entries for a project matching the filter,
// newest first.
func (s *SQLiteStore) ListAuditLog(ctx context.Context, projectID string, filter AuditFilter) ([]*AuditEntry, error) {
	limit := normalizeAuditLimit(filter.Limit)

	rows, err := s.db.QueryContext(ctx, auditLogQuery,
		projectID,
		filter.Status, filter.Status,
		filter.ServerName, filter.ServerName,
		limit, filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []*AuditEntry{}
	for rows.Next() {
		entry, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}
	return entries, nil
}

// rawJSONArg converts a raw JSON blob to a storage argument, NULL when empty.
func rawJSONArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func scanAuditEntry(scanner interface{ Scan(dest ...any) error }) (*AuditEntry, error) {
	var entry AuditEntry
	var userID, requestBody, responseBody *string
	var createdAtStr string

	err := scanner.Scan(
		&entry.ID,
		&entry.ProjectID,
		&entry.APIKeyID,
		&userID,
		&entry.ServerName,
		&entry.ToolName,
		&entry.Status,
		&requestBody,
		&responseBody,
		&createdAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning audit entry: %w", err)
	}

	if userID != nil {
		entry.UserID = *userID
	}
	if requestBody != nil {
		entry.RequestBody = json.RawMessage(*requestBody)
	}
	if responseBody != nil {
		entry.ResponseBody = json.RawMessage(*responseBody)
	}

	entry.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &entry, nil
}
