package embedder

import (
	"fmt"

	"github.com/bowerhall/partscout/pkg/partsdb"
)

type Config struct {
	Provider   string
	BaseURL    string
	Model      string
	Dimensions int
}

// New returns the configured embedder, or nil when embedding is disabled.
func New(cfg Config) (partsdb.Embedder, error) {
	switch cfg.Provider {
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		model := cfg.Model
		if model == "" {
			model = "nomic-embed-text"
		}
		return newOllama(baseURL, model, cfg.Dimensions), nil
	case "hash":
		dims := cfg.Dimensions
		if dims <= 0 {
			dims = partsdb.VectorDimensions
		}
		return NewHashing(dims), nil
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown embedder provider: %s", cfg.Provider)
	}
}
