package crossencoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// Client scores (query, passage) pairs against a cross-encoder model
// served over HTTP (text-embeddings-inference style /rerank API). The
// availability probe runs once per process: a model that fails to load
// stays unavailable and reranking falls back to the LLM strategy.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	log        *slog.Logger

	probeOnce sync.Once
	healthy   bool
}

func New(baseURL, model string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}
}

func (c *Client) ModelName() string {
	return c.model
}

func (c *Client) Available(ctx context.Context) bool {
	if c.baseURL == "" {
		return false
	}
	c.probeOnce.Do(func() {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
		if err != nil {
			return
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.log.Warn("cross-encoder unavailable, reranking will use llm fallback", "error", err)
			return
		}
		defer resp.Body.Close()
		c.healthy = resp.StatusCode < 300
		if !c.healthy {
			c.log.Warn("cross-encoder health probe failed", "status", resp.Status)
		}
	})
	return c.healthy
}

func (c *Client) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	payload := map[string]any{
		"query": query,
		"texts": passages,
	}
	if c.model != "" {
		payload["model"] = c.model
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("rerank status: %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}

	var parsed []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	if len(parsed) != len(passages) {
		return nil, fmt.Errorf("rerank returned %d scores for %d passages", len(parsed), len(passages))
	}

	sort.Slice(parsed, func(i, j int) bool { return parsed[i].Index < parsed[j].Index })
	out := make([]float64, len(passages))
	for i, item := range parsed {
		if item.Index != i {
			return nil, fmt.Errorf("rerank response missing index %d", i)
		}
		out[i] = item.Score
	}
	return out, nil
}
