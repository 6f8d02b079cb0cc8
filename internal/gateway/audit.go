// ABOUTME: Best-effort audit writer for gateway decisions
// ABOUTME: Records every post-authentication outcome without blocking the caller path

package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/toolgate/toolgate/internal/store"
)

// auditWriteTimeout bounds each audit insert. The write runs on a background
// context so a caller disconnect cannot drop the record.
const auditWriteTimeout = 5 * time.Second

// detail is the structured payload stored as the response body of error
// entries. Success entries store the upstream response instead.
type detail map[string]string

// auditor records gateway outcomes. Failures are logged and swallowed: an
// audit miss must never turn a forwarded request into an error.
type auditor struct {
	store  store.Store
	logger *slog.Logger
}

func newAuditor(s store.Store) *auditor {
	return &auditor{
		store:  s,
		logger: slog.Default().With("component", "gateway-audit"),
	}
}

// success records a forwarded request with the verbatim upstream response.
func (a *auditor) success(key *store.APIKey, serverName, toolName *string, requestBody, responseBody []byte) {
	a.write(key, serverName, toolName, store.AuditStatusSuccess, requestBody, responseBody)
}

// error records a rejected request with the rejection detail as the response.
func (a *auditor) error(key *store.APIKey, serverName, toolName *string, requestBody []byte, d detail) {
	payload, err := json.Marshal(d)
	if err != nil {
		payload = nil
	}
	a.write(key, serverName, toolName, store.AuditStatusError, requestBody, payload)
}

func (a *auditor) write(key *store.APIKey, serverName, toolName *string, status string, requestBody, responseBody []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
	defer cancel()

	entry := &store.AuditEntry{
		ProjectID:    key.ProjectID,
		APIKeyID:     &key.ID,
		ServerName:   serverName,
		ToolName:     toolName,
		Status:       status,
		RequestBody:  json.RawMessage(requestBody),
		ResponseBody: json.RawMessage(responseBody),
	}

	if project, err := a.store.GetProject(ctx, key.ProjectID); err == nil {
		entry.UserID = project.UserID
	} else {
		a.logger.Warn("resolving project owner for audit failed", "project_id", key.ProjectID, "error", err)
	}

	if err := a.store.AppendAuditLog(ctx, entry); err != nil {
		a.logger.Error("writing audit entry failed",
			"project_id", key.ProjectID,
			"status", status,
			"error", err,
		)
	}
}
