// Package mcp implements the ToolClient/ToolRegistry contract of §4.2/§4.3:
// one subprocess per configured tool server, speaking the MCP stdio protocol
// via github.com/mark3labs/mcp-go, normalized to a uniform success/result
// shape regardless of which content form a given server returns.
package mcp

import "encoding/json"

// ServerConfig is the ToolServerConfig of §3: one entry in the manifest's
// mcp_servers map. Name is populated from the map key, not a JSON field,
// matching the teacher's mcp.json convention.
type ServerConfig struct {
	Name           string            `json:"-"`
	Command        string            `json:"command"`
	Args           []string          `json:"args,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
	SuppressOutput bool              `json:"suppress_output,omitempty"`
}

// ToolSpec is the schema a tool server advertises for one tool (§3).
type ToolSpec struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON Schema
}

// NormalizedResult is the result of callTool normalization (§4.2). Exactly
// one of (Result, Content) is populated when Success is true; Error is
// populated when Success is false.
type NormalizedResult struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Content string          `json:"content,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// MarshalResult JSON-encodes a NormalizedResult the way Host appends it to
// the transcript as a tool-response message payload.
func MarshalResult(r NormalizedResult) string {
	data, err := json.Marshal(r)
	if err != nil {
		// json.Marshal on this struct cannot fail (no channels/funcs/cyclic
		// references); this branch exists only to satisfy err-check linting.
		return `{"success":false,"error":"internal: failed to encode tool result"}`
	}
	return string(data)
}
