package config

import (
	"testing"
	"time"
)

// clearEnv blanks every variable Load reads so the host environment cannot
// leak into a test.
func clearEnv(t *testing.T) {
	for _, key := range []string{
		"PARTSCOUT_ADDR", "PARTSCOUT_DB", "TZ",
		"SESSION_BACKEND", "SESSION_TTL", "SESSION_SWEEP", "SESSION_MAX_RECENT", "SESSION_MAX_HISTORY",
		"AGENT_MAX_ITERATIONS", "AGENT_TURN_TIMEOUT", "RESOLVER_WINDOW_TURNS",
		"LLM_PROVIDER", "LLM_API_KEY", "LLM_MODEL", "LLM_BASE_URL", "CLASSIFIER_MODEL",
		"ANTHROPIC_API_KEY", "OPENAI_API_KEY",
		"EMBEDDER_PROVIDER", "EMBEDDER_BASE_URL", "EMBEDDER_MODEL", "EMBEDDING_DIM",
		"LIVEFETCH_ENABLED", "LIVEFETCH_TIMEOUT", "LIVEFETCH_BASE_URL", "LIVEFETCH_PERSIST",
		"MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "MINIO_USE_SSL", "MINIO_BUCKET",
		"BUDGET_DAILY_TOKENS", "BUDGET_WARN_AT", "ALERT_WEBHOOK_URL", "ALERT_COOLDOWN",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Addr != ":8000" || cfg.DBPath != "partscout.db" {
		t.Errorf("expected :8000 and partscout.db, got %s and %s", cfg.Addr, cfg.DBPath)
	}
	if cfg.Session.Backend != "memory" || cfg.Session.TTL != 2*time.Hour || cfg.Session.SweepSpec != "@every 10m" {
		t.Errorf("unexpected session defaults: %+v", cfg.Session)
	}
	if cfg.Session.MaxRecent != 5 || cfg.Session.MaxHistory != 10 {
		t.Errorf("expected recency 5 and history 10, got %d and %d", cfg.Session.MaxRecent, cfg.Session.MaxHistory)
	}
	if cfg.Agent.MaxIterations != 10 || cfg.Agent.TurnTimeout != 60*time.Second || cfg.Agent.ResolverWindow != 3 {
		t.Errorf("unexpected agent defaults: %+v", cfg.Agent)
	}
	if cfg.LLM.Enabled() {
		t.Errorf("expected no LLM without keys, got %+v", cfg.LLM)
	}
	if cfg.Embedder.Provider != "ollama" || cfg.Embedder.Model != "nomic-embed-text" || cfg.Embedder.Dimensions != 768 {
		t.Errorf("unexpected embedder defaults: %+v", cfg.Embedder)
	}
	if !cfg.LiveFetch.Enabled || cfg.LiveFetch.Persist || cfg.LiveFetch.Timeout != 45*time.Second {
		t.Errorf("unexpected live fetch defaults: %+v", cfg.LiveFetch)
	}
	if cfg.Storage.Enabled {
		t.Errorf("expected storage disabled without credentials")
	}
	if cfg.Budget.DailyLimit != 0 || cfg.Budget.WarnAt != 0.8 {
		t.Errorf("expected unlimited budget warning at 0.8, got %+v", cfg.Budget)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SESSION_BACKEND", "sqlite")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("AGENT_MAX_ITERATIONS", "4")
	t.Setenv("AGENT_TURN_TIMEOUT", "15s")
	t.Setenv("LIVEFETCH_ENABLED", "false")
	t.Setenv("MINIO_ACCESS_KEY", "access")
	t.Setenv("MINIO_SECRET_KEY", "secret")
	t.Setenv("BUDGET_DAILY_TOKENS", "50000")
	t.Setenv("BUDGET_WARN_AT", "0.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Session.Backend != "sqlite" || cfg.Session.TTL != 30*time.Minute {
		t.Errorf("expected sqlite with 30m ttl, got %+v", cfg.Session)
	}
	if cfg.Agent.MaxIterations != 4 || cfg.Agent.TurnTimeout != 15*time.Second {
		t.Errorf("expected 4 iterations in 15s, got %+v", cfg.Agent)
	}
	if cfg.LiveFetch.Enabled {
		t.Errorf("expected live fetch disabled")
	}
	if !cfg.Storage.Enabled || cfg.Storage.Bucket != "partscout" {
		t.Errorf("expected storage enabled with default bucket, got %+v", cfg.Storage)
	}
	if cfg.Budget.DailyLimit != 50000 || cfg.Budget.WarnAt != 0.5 {
		t.Errorf("expected 50000 tokens warning at 0.5, got %+v", cfg.Budget)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"SESSION_BACKEND", "redis"},
		{"SESSION_TTL", "soon"},
		{"AGENT_TURN_TIMEOUT", "-5s"},
		{"LLM_PROVIDER", "kimi"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		name      string
		anthropic string
		openai    string
		expected  string
	}{
		{"claude", "test-key", "", "claude"},
		{"claude wins", "test-key", "test-key", "claude"},
		{"openai", "", "test-key", "openai"},
		{"none", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("ANTHROPIC_API_KEY", tt.anthropic)
			t.Setenv("OPENAI_API_KEY", tt.openai)

			if got := DetectProvider(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestLLMFromAnthropicKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("CLASSIFIER_MODEL", "claude-3-haiku-20240307")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.LLM.Enabled() || cfg.LLM.Provider != "claude" || cfg.LLM.Model != "claude-3-5-haiku-20241022" {
		t.Errorf("expected claude haiku, got %+v", cfg.LLM)
	}
	if cfg.Classifier.Model != "claude-3-haiku-20240307" || cfg.Classifier.APIKey != "sk-test" {
		t.Errorf("expected classifier on its own model with the same key, got %+v", cfg.Classifier)
	}
}
