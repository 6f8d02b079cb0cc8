// ABOUTME: Handshake client performing the tools/list discovery call against upstreams
// ABOUTME: Classifies transport failures so callers can surface a precise reason

package handshake

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/toolgate/toolgate/internal/catalog"
)

// DefaultTimeout bounds a single discovery round trip.
const DefaultTimeout = 10 * time.Second

// Reason classifies why a handshake failed.
type Reason string

const (
	ReasonAuth              Reason = "auth"               // upstream returned 401
	ReasonForbidden         Reason = "forbidden"          // upstream returned 403
	ReasonStatus            Reason = "status"             // other non-2xx status
	ReasonTimeout           Reason = "timeout"            // request deadline exceeded
	ReasonConnectionRefused Reason = "connection_refused" // nothing listening at the address
	ReasonDNS               Reason = "dns"                // host could not be resolved
	ReasonNetwork           Reason = "network"            // any other transport failure
	ReasonBadURL            Reason = "bad_url"            // base URL failed validation
)

// Error is a classified handshake failure. Status is set only for
// ReasonAuth, ReasonForbidden and ReasonStatus.
type Error struct {
	Reason Reason
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("handshake failed (%s): upstream returned status %d", e.Reason, e.Status)
	}
	return fmt.Sprintf("handshake failed (%s): %s", e.Reason, e.Detail)
}

// listToolsRequest is the JSON-RPC discovery call body.
type listToolsRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
	ID      string         `json:"id"`
}

// Client performs tool-discovery handshakes against candidate upstream servers.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a handshake client with the given round-trip timeout.
// A zero or negative timeout falls back to DefaultTimeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default().With("component", "handshake"),
	}
}

// Discover performs a single tools/list round trip against baseURL and returns
// the normalized tool catalog. If authToken is non-empty it is sent as a
// bearer credential; otherwise the Authorization header is omitted entirely.
// There are no retries: one failed attempt is terminal for this call.
func (c *Client) Discover(ctx context.Context, baseURL, authToken string) (catalog.Catalog, error) {
	if err := validateURL(baseURL); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(listToolsRequest{
		JSONRPC: "2.0",
		Method:  "tools/list",
		Params:  map[string]any{},
		ID:      "handshake-" + uuid.New().String(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling handshake request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Reason: ReasonBadURL, Detail: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &Error{Reason: ReasonNetwork, Detail: "reading handshake response: " + err.Error()}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &Error{Reason: ReasonAuth, Status: resp.StatusCode, Detail: string(body)}
	case resp.StatusCode == http.StatusForbidden:
		return nil, &Error{Reason: ReasonForbidden, Status: resp.StatusCode, Detail: string(body)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &Error{Reason: ReasonStatus, Status: resp.StatusCode, Detail: string(body)}
	}

	tools, err := catalog.Normalize(body)
	if err != nil {
		return nil, &Error{Reason: ReasonNetwork, Detail: "undecodable handshake response: " + err.Error()}
	}

	c.logger.Debug("handshake complete", "url", baseURL, "tools", len(tools))
	return tools, nil
}

// validateURL rejects malformed or non-HTTP base URLs before any network call.
func validateURL(baseURL string) error {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return &Error{Reason: ReasonBadURL, Detail: err.Error()}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return &Error{Reason: ReasonBadURL, Detail: fmt.Sprintf("unsupported scheme %q", parsed.Scheme)}
	}
	if parsed.Host == "" {
		return &Error{Reason: ReasonBadURL, Detail: "missing host"}
	}
	return nil
}

// classifyTransportError maps a transport failure to a handshake reason.
func classifyTransportError(err error) *Error {
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Reason: ReasonTimeout, Detail: err.Error()}
	case errors.As(err, &dnsErr):
		return &Error{Reason: ReasonDNS, Detail: err.Error()}
	case errors.Is(err, syscall.ECONNREFUSED):
		return &Error{Reason: ReasonConnectionRefused, Detail: err.Error()}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Reason: ReasonTimeout, Detail: err.Error()}
	}
	return &Error{Reason: ReasonNetwork, Detail: err.Error()}
}
