package eval

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

const validManifest = `{
  "schema_version": "1",
  "type": "mcp_eval",
  "llm_config": {"active_profile": "default"},
  "mcp_servers": {
    "search": {"command": "search-server", "args": ["--stdio"]}
  },
  "evals": [
    {
      "id": "e1",
      "question": "what is the weather",
      "execution": {"mcps": ["search"]},
      "scoring": [{"type": "contains_string", "parameters": {"target": "sunny"}}]
    }
  ]
}`

func TestLoadManifest_Valid(t *testing.T) {
	path := writeManifest(t, validManifest)
	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if len(m.Evals) != 1 || m.Evals[0].ID != "e1" {
		t.Fatalf("unexpected evals: %+v", m.Evals)
	}
	cfgs := m.ServerConfigsFor(m.Evals[0])
	if len(cfgs) != 1 || cfgs[0].Name != "search" || cfgs[0].Command != "search-server" {
		t.Fatalf("unexpected server configs: %+v", cfgs)
	}
}

func TestLoadManifest_RejectsUnknownServer(t *testing.T) {
	bad := `{
  "schema_version": "1", "type": "mcp_eval",
  "llm_config": {"active_profile": "default"},
  "mcp_servers": {},
  "evals": [{"id": "e1", "question": "q", "execution": {"mcps": ["missing"]}, "scoring": [{"type": "contains_string"}]}]
}`
	path := writeManifest(t, bad)
	if _, err := LoadManifest(path); err == nil {
		t.Fatal("expected error for unknown mcp server reference")
	}
}

func TestLoadManifest_RejectsWrongType(t *testing.T) {
	bad := `{"schema_version": "1", "type": "something_else", "llm_config": {"active_profile": "default"}, "mcp_servers": {}, "evals": []}`
	path := writeManifest(t, bad)
	if _, err := LoadManifest(path); err == nil {
		t.Fatal("expected error for wrong type discriminator")
	}
}

func TestLoadManifest_RejectsLegacyFields(t *testing.T) {
	bad := `{
  "schema_version": "1", "type": "mcp_eval",
  "llm_config": {"active_profile": "default"},
  "mcp_servers": {}, "evals": [],
  "solver": {"max_reasoning_steps": 5}
}`
	path := writeManifest(t, bad)
	_, err := LoadManifest(path)
	if err == nil {
		t.Fatal("expected error for legacy top-level solver field")
	}
}

func TestScorerConfig_CallOrderPreservesSourceKeyOrder(t *testing.T) {
	manifest := `{
  "schema_version": "1", "type": "mcp_eval",
  "llm_config": {"active_profile": "default"},
  "mcp_servers": {"search": {"command": "search-server"}},
  "evals": [{
    "id": "e1", "question": "q", "execution": {"mcps": ["search"]},
    "scoring": [{
      "type": "tool_call_count",
      "parameters": {"order_matters": true, "calls": {"zeta": {"min": 1}, "alpha": {"min": 1}, "mu": {"min": 1}}}
    }]
  }]
}`
	path := writeManifest(t, manifest)
	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	got := m.Evals[0].Scoring[0].CallOrder()
	want := []string{"zeta", "alpha", "mu"}
	if len(got) != len(want) {
		t.Fatalf("CallOrder() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("CallOrder() = %v, want %v", got, want)
		}
	}
}

func TestAllowedServers(t *testing.T) {
	e := Eval{Execution: ExecutionSpec{MCPs: []string{"search", "calc"}}}
	allowed := e.AllowedServers()
	if !allowed["search"] || !allowed["calc"] || allowed["other"] {
		t.Fatalf("unexpected allowed set: %+v", allowed)
	}
}
