package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mcpeval/harness/internal/eval"
)

func writeProfile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	return path
}

const jsonProfile = `{
  "profiles": {
    "default": {
      "provider": "openai",
      "models": {"default": "gpt-4o-mini", "reasoning": "o1-mini"},
      "api_key_env": "TEST_PROFILE_API_KEY"
    }
  }
}`

func TestResolve_DefaultVariant(t *testing.T) {
	t.Setenv("TEST_PROFILE_API_KEY", "secret")
	path := writeProfile(t, "profiles.json", jsonProfile)
	f, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	cfg := eval.LLMConfig{ActiveProfile: "default"}
	r, err := Resolve(f, cfg, "solver")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.Model != "gpt-4o-mini" || r.APIKey != "secret" {
		t.Fatalf("unexpected resolution: %+v", r)
	}
}

func TestResolve_DottedOverride(t *testing.T) {
	t.Setenv("TEST_PROFILE_API_KEY", "secret")
	path := writeProfile(t, "profiles.json", jsonProfile)
	f, _ := LoadFile(path)
	cfg := eval.LLMConfig{
		ActiveProfile: "default",
		Overrides: map[string]eval.RoleOverride{
			"solver.reasoning": {ModelVariant: "reasoning"},
		},
	}
	r, err := Resolve(f, cfg, "solver")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.Model != "o1-mini" {
		t.Fatalf("expected dotted override to select reasoning model, got %q", r.Model)
	}
}

func TestResolve_MissingAPIKeyEnv(t *testing.T) {
	path := writeProfile(t, "profiles.json", jsonProfile)
	f, _ := LoadFile(path)
	cfg := eval.LLMConfig{ActiveProfile: "default"}
	if _, err := Resolve(f, cfg, "solver"); err == nil {
		t.Fatal("expected error when api key env var is unset")
	}
}

func TestResolve_UnknownActiveProfile(t *testing.T) {
	path := writeProfile(t, "profiles.json", jsonProfile)
	f, _ := LoadFile(path)
	cfg := eval.LLMConfig{ActiveProfile: "nonexistent"}
	if _, err := Resolve(f, cfg, "solver"); err == nil {
		t.Fatal("expected error for unknown active_profile")
	}
}

const yamlProfile = `
profiles:
  default:
    provider: openai
    models:
      default: gpt-4o-mini
    api_key_env: TEST_PROFILE_API_KEY
`

func TestLoadFile_YAML(t *testing.T) {
	t.Setenv("TEST_PROFILE_API_KEY", "secret")
	path := writeProfile(t, "profiles.yaml", yamlProfile)
	f, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	cfg := eval.LLMConfig{ActiveProfile: "default"}
	r, err := Resolve(f, cfg, "solver")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.Model != "gpt-4o-mini" {
		t.Fatalf("unexpected model: %q", r.Model)
	}
}
