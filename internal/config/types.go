package config

import "time"

type Config struct {
	Addr       string
	DBPath     string
	Timezone   string
	Session    SessionConfig
	Agent      AgentConfig
	LLM        LLMConfig
	Classifier LLMConfig
	Embedder   EmbedderConfig
	LiveFetch  LiveFetchConfig
	Storage    StorageConfig
	Budget     BudgetConfig
	Alerts     AlertsConfig
}

type SessionConfig struct {
	Backend    string // memory or sqlite
	TTL        time.Duration
	SweepSpec  string
	MaxRecent  int
	MaxHistory int
}

type AgentConfig struct {
	MaxIterations  int
	TurnTimeout    time.Duration
	ResolverWindow int
}

type LLMConfig struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
}

// Enabled reports whether a model is configured and reachable with the
// given credentials.
func (c LLMConfig) Enabled() bool {
	return c.Provider != "" && c.APIKey != ""
}

type EmbedderConfig struct {
	Provider   string
	BaseURL    string
	Model      string
	Dimensions int
}

type LiveFetchConfig struct {
	Enabled    bool
	Timeout    time.Duration
	BaseURL    string
	Persist    bool
	BrowserBin string
	Headful    bool
}

type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

type BudgetConfig struct {
	// DailyLimit of 0 means no cap; usage is still recorded.
	DailyLimit int
	WarnAt     float64
}

type AlertsConfig struct {
	WebhookURL string
	Cooldown   time.Duration
}
