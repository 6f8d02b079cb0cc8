// ABOUTME: Tests for the handshake client against httptest upstreams
// ABOUTME: Covers normalization success paths and every failure classification

package handshake

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscover_ResultEnvelope(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","result":{"tools":[{"name":"foo"}]}}`))
	}))
	defer upstream.Close()

	client := NewClient(0)
	tools, err := client.Discover(context.Background(), upstream.URL, "upstream-token")
	require.NoError(t, err)
	assert.Equal(t, []string{"foo"}, tools.Names())

	assert.Equal(t, "Bearer upstream-token", gotAuth)
	assert.Equal(t, "tools/list", gotBody["method"])
	assert.Equal(t, "2.0", gotBody["jsonrpc"])
	assert.Contains(t, gotBody["id"], "handshake-")
}

func TestDiscover_NoCredentialOmitsHeader(t *testing.T) {
	var sawHeader bool
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawHeader = r.Header["Authorization"]
		w.Write([]byte(`{"tools":[]}`))
	}))
	defer upstream.Close()

	client := NewClient(0)
	_, err := client.Discover(context.Background(), upstream.URL, "")
	require.NoError(t, err)
	assert.False(t, sawHeader, "Authorization header must be omitted, never sent empty")
}

func TestDiscover_NoRecognizableTools(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"fine","version":"1.2"}`))
	}))
	defer upstream.Close()

	client := NewClient(0)
	tools, err := client.Discover(context.Background(), upstream.URL, "")
	require.NoError(t, err)
	assert.Empty(t, tools)
}

func TestDiscover_StatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		reason Reason
	}{
		{"unauthorized", http.StatusUnauthorized, ReasonAuth},
		{"forbidden", http.StatusForbidden, ReasonForbidden},
		{"server error", http.StatusInternalServerError, ReasonStatus},
		{"not found", http.StatusNotFound, ReasonStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte("upstream said no"))
			}))
			defer upstream.Close()

			client := NewClient(0)
			_, err := client.Discover(context.Background(), upstream.URL, "")

			var hsErr *Error
			require.ErrorAs(t, err, &hsErr)
			assert.Equal(t, tt.reason, hsErr.Reason)
			assert.Equal(t, tt.status, hsErr.Status)
			assert.Contains(t, hsErr.Detail, "upstream said no")
		})
	}
}

func TestDiscover_ConnectionRefused(t *testing.T) {
	// Grab a port that nothing is listening on.
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := upstream.URL
	upstream.Close()

	client := NewClient(0)
	_, err := client.Discover(context.Background(), url, "")

	var hsErr *Error
	require.ErrorAs(t, err, &hsErr)
	assert.Equal(t, ReasonConnectionRefused, hsErr.Reason)
}

func TestDiscover_Timeout(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer upstream.Close()

	client := NewClient(50 * time.Millisecond)
	_, err := client.Discover(context.Background(), upstream.URL, "")

	var hsErr *Error
	require.ErrorAs(t, err, &hsErr)
	assert.Equal(t, ReasonTimeout, hsErr.Reason)
}

func TestDiscover_DNSFailure(t *testing.T) {
	client := NewClient(0)
	_, err := client.Discover(context.Background(), "http://definitely-not-a-real-host.invalid", "")

	var hsErr *Error
	require.ErrorAs(t, err, &hsErr)
	assert.Equal(t, ReasonDNS, hsErr.Reason)
}

func TestDiscover_BadURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"empty", ""},
		{"no scheme", "localhost:9000"},
		{"bad scheme", "ftp://example.com"},
		{"garbage", "://nope"},
	}

	client := NewClient(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Discover(context.Background(), tt.url, "")

			var hsErr *Error
			require.ErrorAs(t, err, &hsErr)
			assert.Equal(t, ReasonBadURL, hsErr.Reason)
		})
	}
}

func TestDiscover_UndecodableBody(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{{{not json`))
	}))
	defer upstream.Close()

	client := NewClient(0)
	_, err := client.Discover(context.Background(), upstream.URL, "")
	assert.Error(t, err)
}

func TestError_Message(t *testing.T) {
	withStatus := &Error{Reason: ReasonStatus, Status: 502, Detail: "bad gateway"}
	assert.Contains(t, withStatus.Error(), "502")

	withoutStatus := &Error{Reason: ReasonTimeout, Detail: "deadline exceeded"}
	assert.Contains(t, withoutStatus.Error(), "timeout")
	assert.False(t, errors.Is(withoutStatus, withStatus))
}
