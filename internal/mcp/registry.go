package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ToolRegistry is the interface Host and ToolAgent depend on, satisfied by
// *Registry. Defined as an interface at the consumer boundary so tests can
// substitute a fake without spawning real subprocesses.
type ToolRegistry interface {
	GatherSpecs() []ToolSpec
	FindServerOfTool(name string) (string, bool)
	Dispatch(ctx context.Context, toolName string, args map[string]any) (NormalizedResult, error)
	AllClients() []*Client
	CloseAll() error
}

// toolEntry binds a tool's advertised spec to the server that owns it and
// the compiled JSON Schema used to validate call arguments before dispatch.
type toolEntry struct {
	server string
	spec   ToolSpec
	schema *jsonschema.Schema
}

// Registry is the ToolRegistry of §4.3: the set of connected Clients for one
// eval run, indexed so a tool call can be dispatched by name alone.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	tools   map[string]toolEntry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*Client),
		tools:   make(map[string]toolEntry),
	}
}

// Register connects to the named server and indexes the tools it advertises.
// A tool name already claimed by a previously registered server is rejected:
// the first registration wins and an error is returned for the duplicate.
func (r *Registry) Register(ctx context.Context, cfg ServerConfig) error {
	client := NewClient(cfg)
	if err := client.Connect(ctx); err != nil {
		return err
	}

	specs, err := client.GetToolSpecs(ctx)
	if err != nil {
		_ = client.Disconnect()
		return fmt.Errorf("mcp: registering %q: %w", cfg.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range specs {
		if existing, ok := r.tools[s.Name]; ok {
			_ = client.Disconnect()
			return fmt.Errorf("mcp: tool %q already registered by server %q, refusing duplicate from %q", s.Name, existing.server, cfg.Name)
		}
	}

	for _, s := range specs {
		schema, err := compileSchema(s.Name, s.Parameters)
		if err != nil {
			// A server with a malformed schema is unusable: invalidate the
			// whole registration rather than let some tools validate and
			// others silently skip validation.
			_ = client.Disconnect()
			return fmt.Errorf("mcp: compiling schema for tool %q on %q: %w", s.Name, cfg.Name, err)
		}
		r.tools[s.Name] = toolEntry{server: cfg.Name, spec: s, schema: schema}
	}
	r.clients[cfg.Name] = client
	return nil
}

func compileSchema(toolName string, params json.RawMessage) (*jsonschema.Schema, error) {
	if len(params) == 0 {
		return nil, nil
	}
	c := jsonschema.NewCompiler()
	url := "mem://" + toolName + ".json"
	if err := c.AddResource(url, bytes.NewReader(params)); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// GetClient returns the connected Client for a server name.
func (r *Registry) GetClient(name string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[name]
	return c, ok
}

// ListServers returns registered server names in sorted order.
func (r *Registry) ListServers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for n := range r.clients {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// GatherSpecs returns every registered tool's spec, sorted by name, for
// presentation to a model as the available tool list.
func (r *Registry) GatherSpecs() []ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]ToolSpec, 0, len(r.tools))
	for _, e := range r.tools {
		specs = append(specs, e.spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// FindServerOfTool returns the server name that owns a tool.
func (r *Registry) FindServerOfTool(toolName string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[toolName]
	if !ok {
		return "", false
	}
	return e.server, true
}

// Dispatch validates args against the tool's advertised JSON Schema (if any)
// and, on success, routes the call to the owning server's Client. Schema
// validation failures short-circuit to a normalized failure without ever
// reaching the server, per §4.2's argument-validation rule.
func (r *Registry) Dispatch(ctx context.Context, toolName string, args map[string]any) (NormalizedResult, error) {
	r.mu.RLock()
	entry, ok := r.tools[toolName]
	var client *Client
	if ok {
		client = r.clients[entry.server]
	}
	r.mu.RUnlock()

	if !ok {
		return NormalizedResult{Success: false, Error: fmt.Sprintf("unknown tool %q", toolName)}, nil
	}

	if entry.schema != nil {
		if err := entry.schema.Validate(args); err != nil {
			log.Printf("[MCP] argument validation failed for tool %q: %v", toolName, err)
			return NormalizedResult{Success: false, Error: fmt.Sprintf("argument validation: %v", err)}, nil
		}
	}

	return client.CallTool(ctx, toolName, args)
}

// AllClients returns every registered client.
func (r *Registry) AllClients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// CloseAll disconnects every registered client, collecting but not aborting
// on individual teardown errors.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.Unlock()

	var firstErr error
	for _, c := range clients {
		if err := c.Disconnect(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
