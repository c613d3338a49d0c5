package llm

import (
	"fmt"
	"strings"
)

const defaultMaxTokens = 1024

type provider struct {
	baseURL string
	model   string
	keyless bool
}

// providers lists what New can build. Everything except claude speaks the
// OpenAI chat completions API.
var providers = map[string]provider{
	"claude":    {model: "claude-3-5-haiku-20241022"},
	"openai":    {baseURL: "https://api.openai.com/v1", model: "gpt-4o-mini"},
	"ollama":    {baseURL: "http://localhost:11434", model: "qwen2.5:7b", keyless: true},
	"mistral":   {baseURL: "https://api.mistral.ai/v1", model: "mistral-small-latest"},
	"groq":      {baseURL: "https://api.groq.com/openai/v1", model: "llama-3.1-8b-instant"},
	"together":  {baseURL: "https://api.together.xyz/v1", model: "meta-llama/Llama-3.3-70B-Instruct-Turbo"},
	"deepseek":  {baseURL: "https://api.deepseek.com/v1", model: "deepseek-chat"},
	"fireworks": {baseURL: "https://api.fireworks.ai/inference/v1", model: "accounts/fireworks/models/llama-v3p1-8b-instruct"},
}

// New builds the client for cfg.Provider. An empty provider means no model
// is configured and returns nil, nil.
func New(cfg Config) (LLM, error) {
	if cfg.Provider == "" {
		return nil, nil
	}

	p, ok := providers[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
	if cfg.APIKey == "" && !p.keyless {
		return nil, fmt.Errorf("%s: api key required", cfg.Provider)
	}

	if cfg.Model == "" {
		cfg.Model = p.model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}

	if cfg.Provider == "claude" {
		return newClaude(cfg), nil
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = p.baseURL
	}
	if cfg.Provider == "ollama" && !strings.HasSuffix(baseURL, "/v1") {
		// Ollama's OpenAI-compatible endpoint
		baseURL += "/v1"
	}

	return newOpenAICompatible(cfg.APIKey, baseURL, cfg.Model, cfg.MaxTokens), nil
}

func IsKnownProvider(name string) bool {
	_, ok := providers[name]
	return ok
}
