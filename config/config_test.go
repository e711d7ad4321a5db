package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Executor.MaxRetries != 3 {
		t.Fatalf("expected default max_retries 3, got %d", cfg.Executor.MaxRetries)
	}
	if cfg.Executor.RetryDelay != time.Second {
		t.Fatalf("expected default retry_delay 1s, got %v", cfg.Executor.RetryDelay)
	}
	if cfg.General.MaxQueryLength != 2000 {
		t.Fatalf("expected default max_query_length 2000, got %d", cfg.General.MaxQueryLength)
	}
	if cfg.Tools.News.Endpoint != "https://newsapi.org/v2" {
		t.Fatalf("unexpected news endpoint: %s", cfg.Tools.News.Endpoint)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	data := `{
  "llm": {
    "providers": {
      "openai": {
        "type": "openai",
        "api_key": "test-key",
        "models": {"fast": {"name": "fast", "api_name": "gpt-4o-mini", "max_tokens": 2000}}
      }
    },
    "routing": {"planning": "fast", "verification": "fast", "fallback": "fast"}
  },
  "executor": {"max_retries": 5}
}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Executor.MaxRetries != 5 {
		t.Fatalf("file override ignored: %d", cfg.Executor.MaxRetries)
	}
	p := cfg.LLM.Providers["openai"]
	if p.APIKey != "test-key" || p.Models["fast"].APIName != "gpt-4o-mini" {
		t.Fatalf("unexpected provider config: %+v", p)
	}
}

func TestValidateRejectsMissingLLM(t *testing.T) {
	cfg := &Config{Executor: ExecutorConfig{MaxRetries: 3}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error without LLM providers")
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/config.json"); err == nil {
		t.Fatal("explicitly requested missing file must fail")
	}
}
