package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// EmbedderConfig configures the HTTP embedder client.
type EmbedderConfig struct {
	BaseURL string
	Model   string
	Dim     int
	Retries int           // attempts beyond the first, default 2
	Backoff time.Duration // base delay, doubled per attempt, default 100ms
	Timeout time.Duration // per-request timeout, default 30s
}

type httpEmbedder struct {
	cfg    EmbedderConfig
	client *http.Client
}

// NewEmbedder returns an Embedder backed by the embedding service at
// cfg.BaseURL. Every returned vector is validated against cfg.Dim.
func NewEmbedder(cfg EmbedderConfig) Embedder {
	if cfg.Retries == 0 {
		cfg.Retries = 2
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = 100 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &httpEmbedder{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (e *httpEmbedder) Dim() int { return e.cfg.Dim }

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

func (e *httpEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= e.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.cfg.Backoff << (attempt - 1)):
			}
		}
		vec, err := e.embedOnce(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("embed after %d attempts: %w", e.cfg.Retries+1, lastErr)
}

func (e *httpEmbedder) embedOnce(ctx context.Context, text string) ([]float32, error) {
	data, err := json.Marshal(embedRequest{Model: e.cfg.Model, Input: []string{text}})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", e.cfg.BaseURL+"/api/embed", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embed request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed error %d: %s", resp.StatusCode, string(respBody))
	}

	var out embedResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decoding embed response: %w", err)
	}
	if len(out.Embeddings) == 0 || len(out.Embeddings[0]) == 0 {
		return nil, ErrEmptyEmbedding
	}
	vec := float64sToFloat32s(out.Embeddings[0])
	if len(vec) != e.cfg.Dim {
		return nil, fmt.Errorf("%w: got %d want %d", ErrDimMismatch, len(vec), e.cfg.Dim)
	}
	return vec, nil
}

func float64sToFloat32s(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
