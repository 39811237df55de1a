package openai

import "testing"

func TestConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_MODEL", "")
	t.Setenv("LLM_HTTP_TIMEOUT_SECONDS", "")
	t.Setenv("LLM_MAX_RETRIES", "")

	cfg := ConfigFromEnv()
	if cfg.Model != defaultModel {
		t.Errorf("Model = %q, want %q", cfg.Model, defaultModel)
	}
	if cfg.Timeout != defaultTimeout {
		t.Errorf("Timeout = %s, want %s", cfg.Timeout, defaultTimeout)
	}
	if cfg.MaxRetries != defaultMaxRetries {
		t.Errorf("MaxRetries = %d, want %d", cfg.MaxRetries, defaultMaxRetries)
	}
}

func TestConfigFromEnv_InvalidIntFallsBack(t *testing.T) {
	t.Setenv("LLM_MAX_RETRIES", "not-a-number")
	cfg := ConfigFromEnv()
	if cfg.MaxRetries != defaultMaxRetries {
		t.Errorf("MaxRetries = %d, want fallback %d", cfg.MaxRetries, defaultMaxRetries)
	}
}
