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

// GeneratorConfig configures the HTTP generator client.
type GeneratorConfig struct {
	BaseURL string
	Model   string
	Retries int           // attempts beyond the first, default 1
	Backoff time.Duration // base delay, doubled per attempt, default 250ms
	Timeout time.Duration // per-request timeout, default 60s
}

type httpGenerator struct {
	cfg    GeneratorConfig
	client *http.Client
}

// NewGenerator returns a Generator backed by the generation service at
// cfg.BaseURL.
func NewGenerator(cfg GeneratorConfig) Generator {
	if cfg.Retries == 0 {
		cfg.Retries = 1
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = 250 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &httpGenerator{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type generateRequest struct {
	Model string `json:"model"`
	GenerateRequest
}

func (g *httpGenerator) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	var lastErr error
	for attempt := 0; attempt <= g.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(g.cfg.Backoff << (attempt - 1)):
			}
		}
		res, err := g.generateOnce(ctx, req)
		if err == nil {
			return res, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("generate after %d attempts: %w", g.cfg.Retries+1, lastErr)
}

func (g *httpGenerator) generateOnce(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	data, err := json.Marshal(generateRequest{Model: g.cfg.Model, GenerateRequest: req})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", g.cfg.BaseURL+"/api/generate", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("generate request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading generate response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generate error %d: %s", resp.StatusCode, string(respBody))
	}

	var out GenerateResult
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decoding generate response: %w", err)
	}
	return &out, nil
}
