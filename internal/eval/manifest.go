package eval

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mcpeval/harness/internal/mcp"
)

const manifestType = "mcp_eval"

// ToolServerConfig is the manifest's per-server shape, mirrored onto
// mcp.ServerConfig once the key-derived Name is populated.
type ToolServerConfig struct {
	Command        string            `json:"command"`
	Args           []string          `json:"args,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
	SuppressOutput bool              `json:"suppress_output,omitempty"`
}

func (c ToolServerConfig) toServerConfig(name string) mcp.ServerConfig {
	return mcp.ServerConfig{
		Name:           name,
		Command:        c.Command,
		Args:           c.Args,
		Env:            c.Env,
		SuppressOutput: c.SuppressOutput,
	}
}

// SolverLimits bounds the inner Host loop for one eval.
type SolverLimits struct {
	MaxReasoningSteps    int `json:"max_reasoning_steps,omitempty"`
	MaxRetrospectiveTurns int `json:"max_retrospective_turns,omitempty"`
}

// AskerLimits bounds the outer Workflow loop for one eval.
type AskerLimits struct {
	MaxTurns int `json:"max_turns,omitempty"`
}

// ExecutionSpec names the tool servers an eval may use and its step budgets.
type ExecutionSpec struct {
	MCPs   []string      `json:"mcps"`
	Solver *SolverLimits `json:"solver,omitempty"`
	Asker  *AskerLimits  `json:"asker,omitempty"`
}

// ScorerConfig is the manifest shape for one weighted scorer.
type ScorerConfig struct {
	Type       string         `json:"type"`
	Weight     float64        `json:"weight,omitempty"`
	Mode       string         `json:"mode,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`

	// callOrder is the source key order of parameters.calls, captured at
	// decode time since json.Unmarshal into Parameters (a map) loses it.
	// tool_call_count's order_matters check needs this exact order (§4.8).
	callOrder []string
}

// UnmarshalJSON decodes a ScorerConfig normally, then separately walks the
// raw bytes to capture parameters.calls' key order before it is lost to
// map[string]any's unordered representation.
func (s *ScorerConfig) UnmarshalJSON(data []byte) error {
	type alias ScorerConfig
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = ScorerConfig(a)
	s.callOrder = callsKeyOrder(data)
	return nil
}

// CallOrder returns the order in which tool names appeared in the
// manifest's parameters.calls object, for order_matters evaluation.
func (s ScorerConfig) CallOrder() []string { return s.callOrder }

func callsKeyOrder(raw json.RawMessage) []string {
	var outer struct {
		Parameters json.RawMessage `json:"parameters"`
	}
	if err := json.Unmarshal(raw, &outer); err != nil || len(outer.Parameters) == 0 {
		return nil
	}
	var inner struct {
		Calls json.RawMessage `json:"calls"`
	}
	if err := json.Unmarshal(outer.Parameters, &inner); err != nil || len(inner.Calls) == 0 {
		return nil
	}
	return objectKeyOrder(inner.Calls)
}

// objectKeyOrder walks a JSON object token-by-token and returns its
// top-level keys in source order.
func objectKeyOrder(raw json.RawMessage) []string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil
	}
	var keys []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil
		}
		keys = append(keys, key)
		var discard json.RawMessage
		if err := dec.Decode(&discard); err != nil {
			return nil
		}
	}
	return keys
}

// Eval is one test case.
type Eval struct {
	ID           string         `json:"id"`
	Question     string         `json:"question"`
	Execution    ExecutionSpec  `json:"execution"`
	Scoring      []ScorerConfig `json:"scoring"`
	Expectations map[string]any `json:"expectations,omitempty"`
}

// RoleOverride is one entry of llm_config.overrides, keyed by a (possibly
// dotted) role name.
type RoleOverride struct {
	ModelVariant    string         `json:"model_variant,omitempty"`
	ModelParameters map[string]any `json:"model_parameters,omitempty"`
	Persona         string         `json:"persona,omitempty"`
}

// LLMConfig selects the active provider profile and any role overrides.
type LLMConfig struct {
	ActiveProfile string                  `json:"active_profile"`
	Defaults      *RoleOverride           `json:"defaults,omitempty"`
	Overrides     map[string]RoleOverride `json:"overrides,omitempty"`
}

// LoggingConfig toggles the optional MCP-call telemetry sink.
type LoggingConfig struct {
	MCPCalls bool `json:"mcp_calls,omitempty"`
}

// Manifest is the top-level run configuration document, per §6.
type Manifest struct {
	SchemaVersion string                      `json:"schema_version"`
	Type          string                      `json:"type"`
	Description   string                      `json:"description,omitempty"`
	LLMConfig     LLMConfig                   `json:"llm_config"`
	MCPServers    map[string]ToolServerConfig `json:"mcp_servers"`
	Evals         []Eval                      `json:"evals"`
	Logging       *LoggingConfig              `json:"logging,omitempty"`

	// legacyFieldsPresent records which legacy top-level blocks were found
	// during decode, so Validate can reject them with a precise message.
	legacyFieldsPresent []string
}

// legacyProbe captures the legacy top-level fields this format once carried
// in parallel with llm_config, so LoadManifest can detect and reject them.
type legacyProbe struct {
	Solver      json.RawMessage `json:"solver,omitempty"`
	Asker       json.RawMessage `json:"asker,omitempty"`
	Judge       json.RawMessage `json:"judge,omitempty"`
	ModelConfig json.RawMessage `json:"model_config,omitempty"`
}

// LoadManifest reads, decodes, and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("eval: read manifest %q: %w", path, err)
	}

	var probe legacyProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("eval: parse manifest %q: %w", path, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("eval: parse manifest %q: %w", path, err)
	}

	if probe.Solver != nil {
		m.legacyFieldsPresent = append(m.legacyFieldsPresent, "solver")
	}
	if probe.Asker != nil {
		m.legacyFieldsPresent = append(m.legacyFieldsPresent, "asker")
	}
	if probe.Judge != nil {
		m.legacyFieldsPresent = append(m.legacyFieldsPresent, "judge")
	}
	if probe.ModelConfig != nil {
		m.legacyFieldsPresent = append(m.legacyFieldsPresent, "model_config")
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest invariants named in §6: type discriminator,
// rejection of legacy top-level fields, and every eval's mcps subset of
// mcp_servers' keys.
func (m *Manifest) Validate() error {
	if len(m.legacyFieldsPresent) > 0 {
		return fmt.Errorf("eval: schema_version %q: legacy top-level field(s) %v are not supported under llm_config-based manifests", m.SchemaVersion, m.legacyFieldsPresent)
	}
	if m.Type != manifestType {
		return fmt.Errorf("eval: manifest type %q must be %q", m.Type, manifestType)
	}
	if m.LLMConfig.ActiveProfile == "" {
		return fmt.Errorf("eval: llm_config.active_profile is required")
	}
	for i, e := range m.Evals {
		if e.ID == "" {
			return fmt.Errorf("eval: evals[%d]: id is required", i)
		}
		for _, name := range e.Execution.MCPs {
			if _, ok := m.MCPServers[name]; !ok {
				return fmt.Errorf("eval: evals[%d] (%s): execution.mcps references unknown server %q", i, e.ID, name)
			}
		}
		for j, sc := range e.Scoring {
			if sc.Type == "" {
				return fmt.Errorf("eval: evals[%d] (%s): scoring[%d].type is required", i, e.ID, j)
			}
		}
	}
	return nil
}

// ServerConfigsFor resolves the mcp.ServerConfig set an eval is allowed to
// use, in the order named by execution.mcps.
func (m *Manifest) ServerConfigsFor(e Eval) []mcp.ServerConfig {
	out := make([]mcp.ServerConfig, 0, len(e.Execution.MCPs))
	for _, name := range e.Execution.MCPs {
		out = append(out, m.MCPServers[name].toServerConfig(name))
	}
	return out
}

// AllowedServers returns the set of server names an eval may dispatch tool
// calls to, for the Runner's validateMcpUsage supplement (§4.9).
func (e Eval) AllowedServers() map[string]bool {
	allowed := make(map[string]bool, len(e.Execution.MCPs))
	for _, name := range e.Execution.MCPs {
		allowed[name] = true
	}
	return allowed
}
