// Package profile resolves the provider profile file and the role-override
// merge algorithm of §6: which model, API key, and endpoint a given role
// (e.g. "solver", "solver.reasoning", "judge") should use for one run.
package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mcpeval/harness/internal/eval"
)

// ModelSet names the model variants a provider profile offers.
type ModelSet struct {
	Default   string `json:"default" yaml:"default"`
	Reasoning string `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
	Fast      string `json:"fast,omitempty" yaml:"fast,omitempty"`
}

// Provider is one named entry of the profile file's "profiles" map.
type Provider struct {
	Provider   string   `json:"provider" yaml:"provider"`
	Models     ModelSet `json:"models" yaml:"models"`
	APIKeyEnv  string   `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	EndpointEnv string  `json:"endpoint_env,omitempty" yaml:"endpoint_env,omitempty"`
	APIVersion string   `json:"api_version,omitempty" yaml:"api_version,omitempty"`
	BaseURL    string   `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Region     string   `json:"region,omitempty" yaml:"region,omitempty"`
}

// File is the top-level provider profile document.
type File struct {
	Profiles map[string]Provider `json:"profiles" yaml:"profiles"`
}

// LoadFile reads a profile file, trying JSON first and falling back to YAML
// based on the file extension, per §2.2/§6 ("Provider profile file (JSON,
// external; YAML also accepted)").
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile: read %q: %w", path, err)
	}

	var f File
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("profile: parse YAML %q: %w", path, err)
		}
	} else {
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("profile: parse JSON %q: %w", path, err)
		}
	}
	return &f, nil
}

// Resolved is the effective configuration for one role after merging
// defaults, overrides, and profile lookup.
type Resolved struct {
	Provider   string
	Model      string
	APIKey     string
	Endpoint   string
	APIVersion string
	BaseURL    string
	Region     string
	Persona    string
	Parameters map[string]any
}

// azureIntegratedAuthProvider is the one provider kind that may omit
// api_key_env: it authenticates via ambient Azure credentials instead.
const azureIntegratedAuthProvider = "azure-integrated"

// Resolve implements §6's resolution algorithm for a requested role:
//
//	start with defaults; if overrides[role] exists, merge field-by-field
//	(override wins); else search for a dotted key prefixed with "role." and
//	merge the first match; look up the model name in profiles[active_profile]
//	.models by the resolved model_variant (fallback to "default"); resolve
//	API key/endpoint from the named environment variables.
func Resolve(f *File, cfg eval.LLMConfig, role string) (Resolved, error) {
	p, ok := f.Profiles[cfg.ActiveProfile]
	if !ok {
		return Resolved{}, fmt.Errorf("profile: active_profile %q not found", cfg.ActiveProfile)
	}

	merged := mergeOverride(cfg.Defaults, nil)
	if o, ok := cfg.Overrides[role]; ok {
		merged = mergeOverride(&o, merged)
	} else if dotted, ok := findDottedOverride(cfg.Overrides, role); ok {
		merged = mergeOverride(&dotted, merged)
	}

	variant := "default"
	if merged != nil && merged.ModelVariant != "" {
		variant = merged.ModelVariant
	}
	model, err := resolveModel(p.Models, variant)
	if err != nil {
		return Resolved{}, fmt.Errorf("profile: role %q: %w", role, err)
	}

	r := Resolved{
		Provider:   p.Provider,
		Model:      model,
		APIVersion: p.APIVersion,
		BaseURL:    p.BaseURL,
		Region:     p.Region,
	}
	if merged != nil {
		r.Persona = merged.Persona
		r.Parameters = merged.ModelParameters
	}

	if p.APIKeyEnv == "" {
		if p.Provider != azureIntegratedAuthProvider {
			return Resolved{}, fmt.Errorf("profile: provider %q: api_key_env is required (only %q may omit it)", p.Provider, azureIntegratedAuthProvider)
		}
	} else {
		apiKey := os.Getenv(p.APIKeyEnv)
		if apiKey == "" {
			return Resolved{}, fmt.Errorf("profile: environment variable %q (api_key_env for profile %q) is not set", p.APIKeyEnv, cfg.ActiveProfile)
		}
		r.APIKey = apiKey
	}
	if p.EndpointEnv != "" {
		r.Endpoint = os.Getenv(p.EndpointEnv)
	}

	return r, nil
}

func resolveModel(set ModelSet, variant string) (string, error) {
	switch variant {
	case "default", "":
		if set.Default == "" {
			return "", fmt.Errorf("profile: model variant %q has no entry", variant)
		}
		return set.Default, nil
	case "reasoning":
		if set.Reasoning != "" {
			return set.Reasoning, nil
		}
	case "fast":
		if set.Fast != "" {
			return set.Fast, nil
		}
	}
	if set.Default == "" {
		return "", fmt.Errorf("profile: model variant %q has no entry and no default to fall back to", variant)
	}
	return set.Default, nil
}

func findDottedOverride(overrides map[string]eval.RoleOverride, role string) (eval.RoleOverride, bool) {
	prefix := role + "."
	for key, o := range overrides {
		if strings.HasPrefix(key, prefix) {
			return o, true
		}
	}
	return eval.RoleOverride{}, false
}

// mergedOverride is the accumulated result of layering defaults and role
// overrides, carried through Resolve independently of eval's JSON tags.
type mergedOverride struct {
	ModelVariant    string
	ModelParameters map[string]any
	Persona         string
}

func mergeOverride(o *eval.RoleOverride, base *mergedOverride) *mergedOverride {
	result := &mergedOverride{}
	if base != nil {
		*result = *base
	}
	if o == nil {
		return result
	}
	if o.ModelVariant != "" {
		result.ModelVariant = o.ModelVariant
	}
	if o.Persona != "" {
		result.Persona = o.Persona
	}
	if o.ModelParameters != nil {
		result.ModelParameters = o.ModelParameters
	}
	return result
}
