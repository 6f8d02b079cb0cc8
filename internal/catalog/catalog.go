// ABOUTME: Tool catalog types and normalization of upstream tools/list responses
// ABOUTME: Preserves whichever JSON shape the upstream returned for each tool entry

package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Tool is a single tool descriptor as received from an upstream server.
// Upstreams return either a bare name string ("search") or an object with at
// least a name field ({"name":"search","description":...}). The raw JSON is
// kept verbatim so round-tripping the catalog through storage is byte-stable.
type Tool struct {
	raw json.RawMessage
}

// NewTool creates a Tool from raw JSON. The input is not validated beyond
// being kept as-is; Name returns "" for shapes with no recognizable name.
func NewTool(raw json.RawMessage) Tool {
	return Tool{raw: append(json.RawMessage(nil), raw...)}
}

// NamedTool creates a Tool from a bare name string.
func NamedTool(name string) Tool {
	raw, _ := json.Marshal(name)
	return Tool{raw: raw}
}

// Name returns the tool's name. For a bare string entry the string itself is
// the name; for an object entry the "name" field is used. Returns "" when
// neither shape matches.
func (t Tool) Name() string {
	trimmed := bytes.TrimSpace(t.raw)
	if len(trimmed) == 0 {
		return ""
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return ""
		}
		return s
	case '{':
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return ""
		}
		return obj.Name
	default:
		return ""
	}
}

// MarshalJSON writes the tool exactly as it was received.
func (t Tool) MarshalJSON() ([]byte, error) {
	if len(t.raw) == 0 {
		return []byte("null"), nil
	}
	return t.raw, nil
}

// UnmarshalJSON stores the raw JSON without reshaping it.
func (t *Tool) UnmarshalJSON(data []byte) error {
	t.raw = append(json.RawMessage(nil), data...)
	return nil
}

// Catalog is the cached sequence of tool descriptors obtained from the last
// successful handshake against a server. A server that has never completed a
// handshake has an empty catalog, never a nil-crashing one.
type Catalog []Tool

// Contains reports whether any entry in the catalog has the given name,
// matching bare-string and object entries alike.
func (c Catalog) Contains(name string) bool {
	for _, t := range c {
		if t.Name() == name {
			return true
		}
	}
	return false
}

// Names projects the catalog down to the tool names, skipping entries with no
// recognizable name.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for _, t := range c {
		if n := t.Name(); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// extractRule is one way a tools list can be packaged in a handshake response.
// Rules are pure: they either extract a catalog from the decoded body or pass.
type extractRule func(body []byte) (Catalog, bool)

// extractRules are tried in order; the first rule that matches wins.
// Upstreams package the list as {"result":{"tools":[...]}} (JSON-RPC
// envelope), {"tools":[...]}, {"result":[...]}, or a bare top-level array.
var extractRules = []extractRule{
	extractResultTools,
	extractTools,
	extractResultArray,
	extractBareArray,
}

// Normalize extracts a tool catalog from a raw tools/list response body.
// A decodable body with no recognizable tools field yields an empty catalog,
// not an error; only undecodable JSON is reported as such.
func Normalize(body []byte) (Catalog, error) {
	var probe any
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("decoding tools response: %w", err)
	}
	for _, rule := range extractRules {
		if tools, ok := rule(body); ok {
			return tools, nil
		}
	}
	return Catalog{}, nil
}

func extractResultTools(body []byte) (Catalog, bool) {
	var envelope struct {
		Result struct {
			Tools []Tool `json:"tools"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, false
	}
	if envelope.Result.Tools == nil {
		return nil, false
	}
	return Catalog(envelope.Result.Tools), true
}

func extractTools(body []byte) (Catalog, bool) {
	var envelope struct {
		Tools []Tool `json:"tools"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, false
	}
	if envelope.Tools == nil {
		return nil, false
	}
	return Catalog(envelope.Tools), true
}

func extractResultArray(body []byte) (Catalog, bool) {
	var envelope struct {
		Result []Tool `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, false
	}
	if envelope.Result == nil {
		return nil, false
	}
	return Catalog(envelope.Result), true
}

func extractBareArray(body []byte) (Catalog, bool) {
	var tools []Tool
	if err := json.Unmarshal(body, &tools); err != nil {
		return nil, false
	}
	return Catalog(tools), true
}
