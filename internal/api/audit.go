// ABOUTME: Audit log listing handler for the management API
// ABOUTME: Read-only view over gateway decisions, newest first

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/toolgate/toolgate/internal/store"
)

type auditEntryResponse struct {
	ID           string          `json:"id"`
	APIKeyID     *string         `json:"apiKeyId"`
	ServerName   *string         `json:"serverName"`
	ToolName     *string         `json:"toolName"`
	Status       string          `json:"status"`
	RequestBody  json.RawMessage `json:"requestBody,omitempty"`
	ResponseBody json.RawMessage `json:"responseBody,omitempty"`
	CreatedAt    string          `json:"createdAt"`
}

func toAuditEntryResponse(e *store.AuditEntry) auditEntryResponse {
	return auditEntryResponse{
		ID:           e.ID,
		APIKeyID:     e.APIKeyID,
		ServerName:   e.ServerName,
		ToolName:     e.ToolName,
		Status:       e.Status,
		RequestBody:  safeRaw(e.RequestBody),
		ResponseBody: safeRaw(e.ResponseBody),
		CreatedAt:    e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// safeRaw re-encodes audited bytes that are not valid JSON as a JSON string.
// Rejected requests may have carried unparseable bodies, and those are
// recorded verbatim.
func safeRaw(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || json.Valid(raw) {
		return raw
	}
	quoted, err := json.Marshal(string(raw))
	if err != nil {
		return nil
	}
	return quoted
}

func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	project := s.ownedProject(w, r)
	if project == nil {
		return
	}

	limit, offset := pagination(r)
	filter := store.AuditFilter{Limit: limit, Offset: offset}

	if status := r.URL.Query().Get("status"); status != "" {
		if status != store.AuditStatusSuccess && status != store.AuditStatusError {
			s.writeError(w, http.StatusBadRequest, "status must be 'success' or 'error'", codeValidation)
			return
		}
		filter.Status = &status
	}
	if serverName := r.URL.Query().Get("server"); serverName != "" {
		filter.ServerName = &serverName
	}

	entries, err := s.store.ListAuditLog(r.Context(), project.ID, filter)
	if err != nil {
		s.internalError(w, "listing audit log", err)
		return
	}
	out := make([]auditEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = toAuditEntryResponse(e)
	}
	s.writeJSON(w, http.StatusOK, out)
}
