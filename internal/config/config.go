package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/bowerhall/partscout/internal/llm"
)

func Load() (*Config, error) {
	addr := os.Getenv("PARTSCOUT_ADDR")
	if addr == "" {
		addr = ":8000"
	}

	dbPath := os.Getenv("PARTSCOUT_DB")
	if dbPath == "" {
		dbPath = "partscout.db"
	}

	timezone := os.Getenv("TZ")
	if timezone == "" {
		timezone = "UTC"
	}

	sessionConfig, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	agentConfig, err := loadAgentConfig()
	if err != nil {
		return nil, err
	}

	llmConfig, err := loadLLMConfig()
	if err != nil {
		return nil, err
	}

	liveFetchConfig, err := loadLiveFetchConfig()
	if err != nil {
		return nil, err
	}

	alertsConfig, err := loadAlertsConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Addr:       addr,
		DBPath:     dbPath,
		Timezone:   timezone,
		Session:    sessionConfig,
		Agent:      agentConfig,
		LLM:        llmConfig,
		Classifier: loadClassifierConfig(llmConfig),
		Embedder:   loadEmbedderConfig(),
		LiveFetch:  liveFetchConfig,
		Storage:    loadStorageConfig(),
		Budget:     loadBudgetConfig(),
		Alerts:     alertsConfig,
	}, nil
}

func loadSessionConfig() (SessionConfig, error) {
	backend := os.Getenv("SESSION_BACKEND")
	if backend == "" {
		backend = "memory"
	}
	if backend != "memory" && backend != "sqlite" {
		return SessionConfig{}, fmt.Errorf("unknown SESSION_BACKEND: %s", backend)
	}

	ttl, err := durationEnv("SESSION_TTL", 2*time.Hour)
	if err != nil {
		return SessionConfig{}, err
	}

	sweep := os.Getenv("SESSION_SWEEP")
	if sweep == "" {
		sweep = "@every 10m"
	}

	return SessionConfig{
		Backend:    backend,
		TTL:        ttl,
		SweepSpec:  sweep,
		MaxRecent:  intEnv("SESSION_MAX_RECENT", 5),
		MaxHistory: intEnv("SESSION_MAX_HISTORY", 10),
	}, nil
}

func loadAgentConfig() (AgentConfig, error) {
	timeout, err := durationEnv("AGENT_TURN_TIMEOUT", 60*time.Second)
	if err != nil {
		return AgentConfig{}, err
	}

	return AgentConfig{
		MaxIterations:  intEnv("AGENT_MAX_ITERATIONS", 10),
		TurnTimeout:    timeout,
		ResolverWindow: intEnv("RESOLVER_WINDOW_TURNS", 3),
	}, nil
}

func loadLLMConfig() (LLMConfig, error) {
	provider := os.Getenv("LLM_PROVIDER")
	if provider == "" {
		provider = DetectProvider()
	}
	if provider == "" || provider == "none" {
		// no model: the rule-based planner drives the loop
		return LLMConfig{}, nil
	}
	if !llm.IsKnownProvider(provider) {
		return LLMConfig{}, fmt.Errorf("unknown LLM_PROVIDER: %s", provider)
	}

	model := os.Getenv("LLM_MODEL")
	if model == "" && provider == "claude" {
		model = "claude-3-5-haiku-20241022"
	}

	return LLMConfig{
		Provider: provider,
		APIKey:   getAPIKey(provider, "LLM"),
		Model:    model,
		BaseURL:  os.Getenv("LLM_BASE_URL"),
	}, nil
}

// loadClassifierConfig reuses the main provider; only the model differs.
func loadClassifierConfig(main LLMConfig) LLMConfig {
	c := main
	if model := os.Getenv("CLASSIFIER_MODEL"); model != "" {
		c.Model = model
	}
	return c
}

// DetectProvider picks a provider from whichever API key is present.
func DetectProvider() string {
	switch {
	case os.Getenv("ANTHROPIC_API_KEY") != "":
		return "claude"
	case os.Getenv("OPENAI_API_KEY") != "":
		return "openai"
	case os.Getenv("LLM_API_KEY") != "":
		return "claude"
	default:
		return ""
	}
}

func getAPIKey(provider, prefix string) string {
	if key := os.Getenv(prefix + "_API_KEY"); key != "" {
		return key
	}

	switch provider {
	case "claude":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "ollama":
		// Ollama doesn't need an API key
		return "ollama"
	default:
		return ""
	}
}

func loadEmbedderConfig() EmbedderConfig {
	provider := os.Getenv("EMBEDDER_PROVIDER")
	if provider == "" {
		provider = "ollama"
	}

	model := os.Getenv("EMBEDDER_MODEL")
	if model == "" && provider == "ollama" {
		model = "nomic-embed-text"
	}

	return EmbedderConfig{
		Provider:   provider,
		BaseURL:    os.Getenv("EMBEDDER_BASE_URL"),
		Model:      model,
		Dimensions: intEnv("EMBEDDING_DIM", 768),
	}
}

func loadLiveFetchConfig() (LiveFetchConfig, error) {
	timeout, err := durationEnv("LIVEFETCH_TIMEOUT", 45*time.Second)
	if err != nil {
		return LiveFetchConfig{}, err
	}

	baseURL := os.Getenv("LIVEFETCH_BASE_URL")
	if baseURL == "" {
		baseURL = "https://www.partselect.com"
	}

	return LiveFetchConfig{
		Enabled:    os.Getenv("LIVEFETCH_ENABLED") != "false",
		Timeout:    timeout,
		BaseURL:    baseURL,
		Persist:    os.Getenv("LIVEFETCH_PERSIST") == "true",
		BrowserBin: os.Getenv("BROWSER_BIN"),
		Headful:    os.Getenv("BROWSER_HEADFUL") == "true",
	}, nil
}

func loadStorageConfig() StorageConfig {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = "minio:9000"
	}

	bucket := os.Getenv("MINIO_BUCKET")
	if bucket == "" {
		bucket = "partscout"
	}

	accessKey := os.Getenv("MINIO_ACCESS_KEY")
	secretKey := os.Getenv("MINIO_SECRET_KEY")

	return StorageConfig{
		Enabled:   accessKey != "" && secretKey != "",
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		UseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
		Bucket:    bucket,
	}
}

func loadBudgetConfig() BudgetConfig {
	dailyLimit := 0
	if limit, err := strconv.Atoi(os.Getenv("BUDGET_DAILY_TOKENS")); err == nil && limit > 0 {
		dailyLimit = limit
	}

	warnAt := 0.8 // default 80%
	if warn, err := strconv.ParseFloat(os.Getenv("BUDGET_WARN_AT"), 64); err == nil && warn > 0 && warn < 1 {
		warnAt = warn
	}

	return BudgetConfig{
		DailyLimit: dailyLimit,
		WarnAt:     warnAt,
	}
}

func loadAlertsConfig() (AlertsConfig, error) {
	cooldown, err := durationEnv("ALERT_COOLDOWN", 5*time.Minute)
	if err != nil {
		return AlertsConfig{}, err
	}

	return AlertsConfig{
		WebhookURL: os.Getenv("ALERT_WEBHOOK_URL"),
		Cooldown:   cooldown,
	}, nil
}

func intEnv(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return d, nil
}
