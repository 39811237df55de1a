package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	sdk_client "github.com/mark3labs/mcp-go/client"
	sdk_mcp "github.com/mark3labs/mcp-go/mcp"
)

// state is the ToolClient lifecycle state machine of §4.2.
type state int

const (
	stateUnconnected state = iota
	stateConnecting
	stateReady
	stateClosing
	stateClosed
)

// ConnectError wraps a failure encountered during Connect, chaining the
// original cause.
type ConnectError struct {
	Server string
	Cause  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("mcp: connect %q: %v", e.Server, e.Cause)
}

func (e *ConnectError) Unwrap() error { return e.Cause }

// Client wraps one MCP server subprocess: the child process, the stdio
// transport, and the MCP session. Safe for concurrent use.
type Client struct {
	mu    sync.RWMutex
	cfg   ServerConfig
	inner sdk_client.MCPClient
	st    state

	// FindErrorsInContent gates the source-level heuristic of §4.2 rule 5
	// (re-classifying a text response beginning with "error" as a failure).
	// Defaults to true; see DESIGN.md's Open Question decision.
	FindErrorsInContent bool
}

// NewClient creates an unconnected Client for the given server config.
func NewClient(cfg ServerConfig) *Client {
	return &Client{cfg: cfg, st: stateUnconnected, FindErrorsInContent: true}
}

// ServerName returns the configured server name.
func (c *Client) ServerName() string { return c.cfg.Name }

// IsConnected reports whether the client is in the Ready state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.st == stateReady
}

// Connect spawns the configured child process and performs the MCP
// initialize handshake. On any failure it transitions to Closed after
// best-effort cleanup and returns a *ConnectError chaining the cause.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.st = stateConnecting
	c.mu.Unlock()

	env := make([]string, 0, len(c.cfg.Env)+1)
	for k, v := range c.cfg.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	if c.cfg.SuppressOutput {
		env = append(env, "SUPPRESS_OUTPUT=1")
	}

	cli, err := sdk_client.NewStdioMCPClient(c.cfg.Command, env, c.cfg.Args...)
	if err != nil {
		c.transitionClosed()
		return &ConnectError{Server: c.cfg.Name, Cause: err}
	}

	_, err = cli.Initialize(ctx, sdk_mcp.InitializeRequest{
		Params: sdk_mcp.InitializeParams{
			ProtocolVersion: sdk_mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: sdk_mcp.Implementation{
				Name:    "mcp-eval-harness",
				Version: "0.1.0",
			},
		},
	})
	if err != nil {
		_ = cli.Close()
		c.transitionClosed()
		return &ConnectError{Server: c.cfg.Name, Cause: err}
	}

	c.mu.Lock()
	c.inner = cli
	c.st = stateReady
	c.mu.Unlock()
	return nil
}

func (c *Client) transitionClosed() {
	c.mu.Lock()
	c.st = stateClosed
	c.mu.Unlock()
}

// Disconnect tears down the session in reverse order, swallowing teardown
// errors (they are terminal — there is nothing left to recover).
func (c *Client) Disconnect() error {
	c.mu.Lock()
	c.st = stateClosing
	inner := c.inner
	c.inner = nil
	c.mu.Unlock()

	if inner != nil {
		_ = inner.Close()
	}
	c.transitionClosed()
	return nil
}

// ListTools returns the tool names advertised by this server.
func (c *Client) ListTools(ctx context.Context) ([]string, error) {
	specs, err := c.GetToolSpecs(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return names, nil
}

// GetToolSpecs returns the full tool schema list advertised by this server.
func (c *Client) GetToolSpecs(ctx context.Context) ([]ToolSpec, error) {
	c.mu.RLock()
	inner := c.inner
	c.mu.RUnlock()
	if inner == nil {
		return nil, fmt.Errorf("mcp: client %q not connected", c.cfg.Name)
	}

	result, err := inner.ListTools(ctx, sdk_mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcp: list tools %q: %w", c.cfg.Name, err)
	}

	specs := make([]ToolSpec, 0, len(result.Tools))
	for _, t := range result.Tools {
		schema, err := json.Marshal(t.InputSchema)
		if err != nil {
			schema = json.RawMessage("{}")
		}
		specs = append(specs, ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schema,
		})
	}
	return specs, nil
}

// CallTool invokes the named tool and returns the §4.2-normalized result.
// A tool-level failure reported by the server (IsError or rule 5's heuristic)
// is returned as NormalizedResult{Success:false}, not a Go error; a Go error
// is reserved for infrastructure failures (not connected, transport error).
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (NormalizedResult, error) {
	c.mu.RLock()
	inner := c.inner
	c.mu.RUnlock()
	if inner == nil {
		return NormalizedResult{}, fmt.Errorf("mcp: client %q not connected", c.cfg.Name)
	}

	req := sdk_mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := inner.CallTool(ctx, req)
	if err != nil {
		return NormalizedResult{}, fmt.Errorf("mcp: call tool %q on %q: %w", name, c.cfg.Name, err)
	}

	norm := normalize(result)
	if result.IsError && norm.Success {
		// Belt-and-suspenders: the server flagged an error but our content
		// parsing didn't catch it (e.g. structuredContent present alongside
		// IsError). Trust the server's flag.
		prev := norm
		norm = NormalizedResult{Success: false, Error: prev.Content}
		if norm.Error == "" {
			norm.Error = string(prev.Result)
		}
	}
	if c.FindErrorsInContent && norm.Success && norm.Content != "" &&
		strings.HasPrefix(strings.ToLower(strings.TrimSpace(norm.Content)), "error") {
		norm = NormalizedResult{Success: false, Error: norm.Content}
	}
	return norm, nil
}

// normalize implements the decision tree of §4.2.
func normalize(result *sdk_mcp.CallToolResult) NormalizedResult {
	if sc := result.StructuredContent; sc != nil {
		if data, err := json.Marshal(sc); err == nil && string(data) != "null" && string(data) != "{}" {
			var obj map[string]json.RawMessage
			if json.Unmarshal(data, &obj) == nil {
				if r, ok := obj["result"]; ok {
					return NormalizedResult{Success: true, Result: r}
				}
			}
			return NormalizedResult{Success: true, Result: data}
		}
	}

	texts := textBlocks(result.Content)
	switch len(texts) {
	case 0:
		return NormalizedResult{Success: false, Error: "No response from server"}
	case 1:
		return normalizeSingleText(texts[0])
	default:
		items := make([]json.RawMessage, 0, len(texts))
		for _, txt := range texts {
			if json.Valid([]byte(txt)) {
				items = append(items, json.RawMessage(txt))
			} else {
				encoded, _ := json.Marshal(txt)
				items = append(items, json.RawMessage(encoded))
			}
		}
		arr, _ := json.Marshal(items)
		return NormalizedResult{Success: true, Result: arr}
	}
}

func normalizeSingleText(text string) NormalizedResult {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return NormalizedResult{Success: true, Content: text}
	}

	if strings.HasPrefix(trimmed, "{") {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
			if _, has := obj["success"]; !has {
				obj["success"] = json.RawMessage("true")
				data, _ := json.Marshal(obj)
				return decodeNormalized(data)
			}
			return decodeNormalized([]byte(trimmed))
		}
	}
	if strings.HasPrefix(trimmed, "[") {
		var arr []json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &arr); err == nil {
			data, _ := json.Marshal(arr)
			return NormalizedResult{Success: true, Result: data}
		}
	}
	return NormalizedResult{Success: true, Content: text}
}

func decodeNormalized(data json.RawMessage) NormalizedResult {
	var n NormalizedResult
	if err := json.Unmarshal(data, &n); err != nil {
		return NormalizedResult{Success: true, Result: data}
	}
	if n.Result == nil && n.Content == "" && n.Error == "" {
		// The object had a "success" key but none of our other recognized
		// keys; surface the whole object as the result.
		n.Result = data
	}
	return n
}

func textBlocks(content []sdk_mcp.Content) []string {
	var out []string
	for _, c := range content {
		if tc, ok := c.(sdk_mcp.TextContent); ok {
			out = append(out, tc.Text)
		}
	}
	return out
}
