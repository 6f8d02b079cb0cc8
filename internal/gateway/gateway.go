// ABOUTME: The request-authorization-and-forwarding core of toolgate
// ABOUTME: Resolves key, target and policy, swaps credentials, forwards, audits

package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/toolgate/toolgate/internal/store"
)

// DefaultForwardTimeout bounds the upstream forward call.
const DefaultForwardTimeout = 30 * time.Second

// maxRequestBody caps inbound request bodies at 4 MiB.
const maxRequestBody = 4 << 20

// Stable machine-readable rejection codes.
const (
	CodeUnauthorized            = "UNAUTHORIZED"
	CodeInvalidAPIKey           = "INVALID_API_KEY"
	CodeInactiveAPIKey          = "INACTIVE_API_KEY"
	CodeServerNotFound          = "SERVER_NOT_FOUND"
	CodeToolNotFound            = "TOOL_NOT_FOUND"
	CodeMissingServerIdentifier = "MISSING_SERVER_IDENTIFIER"
	CodeToolNotAllowed          = "TOOL_NOT_ALLOWED"
	CodeBlacklistViolation      = "BLACKLIST_VIOLATION"
	CodeForwardFailed           = "FORWARD_FAILED"
	CodeInternalError           = "INTERNAL_ERROR"
)

// Gateway is the proxy core. Each inbound call is handled independently:
// the durable store is the only shared state, and the cached catalogs it
// serves are read-only on this path.
type Gateway struct {
	store   store.Store
	client  *http.Client
	auditor *auditor
	logger  *slog.Logger
}

// New creates a Gateway. A zero or negative forwardTimeout falls back to
// DefaultForwardTimeout.
func New(s store.Store, forwardTimeout time.Duration) *Gateway {
	if forwardTimeout <= 0 {
		forwardTimeout = DefaultForwardTimeout
	}
	return &Gateway{
		store:   s,
		client:  &http.Client{Timeout: forwardTimeout},
		auditor: newAuditor(s),
		logger:  slog.Default().With("component", "gateway"),
	}
}

// Handler returns the HTTP handler for the proxy ingress.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/mcp", g.handleProxy)
	return mux
}

// proxyRequest is the subset of the inbound body the gateway consults for
// target resolution. Everything else is opaque payload forwarded as-is.
type proxyRequest struct {
	ServerName string `json:"server_name"`
	Tool       string `json:"tool"`
	Method     string `json:"method"`
}

// handleProxy runs the resolution pipeline for one inbound call. The steps
// are strictly sequential; the first failing step produces a terminal
// response and, once a project is known, exactly one audit entry.
func (g *Gateway) handleProxy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Step 1: key authentication. No audit entry is possible before a key
	// resolves: there is no project context to attach one to.
	secret, errMsg := extractBearerToken(r.Header.Get("Authorization"))
	if errMsg != "" {
		writeError(w, http.StatusUnauthorized, "Missing or invalid Authorization header", CodeUnauthorized, "")
		return
	}

	key, err := g.store.GetAPIKeyBySecret(ctx, secret)
	if err == store.ErrNotFound {
		writeError(w, http.StatusUnauthorized, "Invalid API key", CodeInvalidAPIKey, "")
		return
	}
	if err != nil {
		g.logger.Error("key lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal proxy error", CodeInternalError, "")
		return
	}
	if !key.Active {
		writeError(w, http.StatusForbidden, "API key is inactive", CodeInactiveAPIKey, "")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		g.logger.Error("reading request body failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal proxy error", CodeInternalError, "")
		return
	}

	// Step 2: target resolution. server_name wins over tool, which wins over
	// the protocol method field.
	var req proxyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		g.auditor.error(key, nil, nil, body, detail{"error": "Unparseable request body"})
		writeError(w, http.StatusBadRequest, "Missing server_name or tool identifier in request", CodeMissingServerIdentifier,
			"Include server_name, tool, or method in your request body")
		return
	}

	toolName := req.Tool
	if toolName == "" {
		toolName = req.Method
	}

	var server *store.Server
	switch {
	case req.ServerName != "":
		server, err = g.store.GetActiveServerByName(ctx, key.ProjectID, req.ServerName)
		if err == store.ErrNotFound {
			g.auditor.error(key, &req.ServerName, optional(toolName), body, detail{"error": "Server not found"})
			writeError(w, http.StatusNotFound,
				fmt.Sprintf("MCP server '%s' not found in this project", req.ServerName), CodeServerNotFound, "")
			return
		}
		if err != nil {
			g.logger.Error("server lookup failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Internal proxy error", CodeInternalError, "")
			return
		}

	case toolName != "":
		server, err = g.resolveByTool(r, key.ProjectID, toolName)
		if err != nil {
			g.logger.Error("tool resolution failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Internal proxy error", CodeInternalError, "")
			return
		}
		if server == nil {
			g.auditor.error(key, nil, &toolName, body, detail{"error": "No server found with requested tool"})
			writeError(w, http.StatusNotFound,
				fmt.Sprintf("No MCP server found with tool '%s'", toolName), CodeToolNotFound, "")
			return
		}

	default:
		g.auditor.error(key, nil, nil, body, detail{"error": "Missing server_name or tool identifier"})
		writeError(w, http.StatusBadRequest, "Missing server_name or tool identifier in request", CodeMissingServerIdentifier,
			"Include server_name, tool, or method in your request body")
		return
	}

	// Step 3: allow-list. Only evaluated when a tool identity is known; a
	// server-name-only request carries no tool to check.
	if len(key.AllowedTools) > 0 && toolName != "" && !contains(key.AllowedTools, toolName) {
		g.auditor.error(key, &server.Name, &toolName, body, detail{"error": "Tool not allowed"})
		writeError(w, http.StatusForbidden,
			fmt.Sprintf("Tool '%s' is not allowed for this API key", toolName), CodeToolNotAllowed, "")
		return
	}

	// Step 4: blacklist. Case-folded substring match over the whole body.
	if word := findBlacklistedWord(key.BlacklistWords, body); word != "" {
		g.auditor.error(key, &server.Name, optional(toolName), body,
			detail{"error": "Blacklisted word detected", "word": word})
		writeError(w, http.StatusForbidden, "Request contains blacklisted content", CodeBlacklistViolation, "")
		return
	}

	// Step 5: forward with the credential swapped. The caller's proxy key is
	// never sent upstream.
	g.forward(w, r, key, server, optional(toolName), body)
}

// resolveByTool scans the project's active servers in registration order and
// returns the first whose cached catalog contains the tool. Returns nil with
// no error when nothing matches.
func (g *Gateway) resolveByTool(r *http.Request, projectID, toolName string) (*store.Server, error) {
	servers, err := g.store.ListActiveServers(r.Context(), projectID)
	if err != nil {
		return nil, err
	}
	for _, s := range servers {
		if s.CachedTools.Contains(toolName) {
			return s, nil
		}
	}
	return nil, nil
}

// forward relays the verbatim body to the resolved server and mirrors the
// upstream status and body back to the caller.
func (g *Gateway) forward(w http.ResponseWriter, r *http.Request, key *store.APIKey, server *store.Server, toolName *string, body []byte) {
	upReq, err := http.NewRequestWithContext(r.Context(), http.MethodPost, server.BaseURL, bytes.NewReader(body))
	if err != nil {
		g.auditor.error(key, &server.Name, toolName, body, detail{"error": "Failed to forward request", "details": err.Error()})
		writeError(w, http.StatusInternalServerError, "Failed to forward request to MCP server", CodeForwardFailed, "")
		return
	}
	upReq.Header.Set("Content-Type", "application/json")
	if server.AuthToken != "" {
		upReq.Header.Set("Authorization", "Bearer "+server.AuthToken)
	}

	resp, err := g.client.Do(upReq)
	if err != nil {
		g.logger.Warn("forward failed", "server", server.Name, "error", err)
		g.auditor.error(key, &server.Name, toolName, body, detail{"error": "Failed to forward request", "details": err.Error()})
		writeError(w, http.StatusInternalServerError, "Failed to forward request to MCP server", CodeForwardFailed, "")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		g.auditor.error(key, &server.Name, toolName, body, detail{"error": "Failed to read upstream response", "details": err.Error()})
		writeError(w, http.StatusInternalServerError, "Failed to forward request to MCP server", CodeForwardFailed, "")
		return
	}

	g.auditor.success(key, &server.Name, toolName, body, respBody)

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(respBody)
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// findBlacklistedWord returns the first blacklist word that appears in the
// body, case-insensitively, or "" if none match.
func findBlacklistedWord(words []string, body []byte) string {
	if len(words) == 0 {
		return ""
	}
	folded := strings.ToLower(string(body))
	for _, word := range words {
		if word == "" {
			continue
		}
		if strings.Contains(folded, strings.ToLower(word)) {
			return word
		}
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// optional returns nil for an empty string, otherwise a pointer to it.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// errorResponse is the JSON rejection shape shared by all gateway errors.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Hint  string `json:"hint,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message, code, hint string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message, Code: code, Hint: hint})
}
