package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ollama talks to the /api/embed endpoint. Long part texts are truncated
// server-side to the model's context instead of failing the upsert.
type ollama struct {
	endpoint string
	model    string
	dims     int
	http     *http.Client
}

type embedRequest struct {
	Model    string   `json:"model"`
	Input    []string `json:"input"`
	Truncate bool     `json:"truncate"`
}

type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

func newOllama(baseURL, model string, dims int) *ollama {
	return &ollama{
		endpoint: baseURL + "/api/embed",
		model:    model,
		dims:     dims,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (o *ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (o *ollama) embed(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(embedRequest{Model: o.model, Input: texts, Truncate: true})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed with %s: %w", o.model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embed with %s: status %d: %s", o.model, resp.StatusCode, bytes.TrimSpace(body))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embeddings: %w", err)
	}

	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("model %s returned %d embeddings for %d inputs", o.model, len(out.Embeddings), len(texts))
	}
	for _, v := range out.Embeddings {
		if o.dims > 0 && len(v) != o.dims {
			return nil, fmt.Errorf("model %s returned %d dimensions, expected %d", o.model, len(v), o.dims)
		}
	}

	return out.Embeddings, nil
}
