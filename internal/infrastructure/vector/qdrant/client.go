package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kvoronov/transcript-qa/internal/core/domain"
)

// Client wraps one Qdrant collection over the REST API. The collection
// dimension is process-wide state tied to the active embedding provider;
// EnsureCollection recreates the collection (destructively) when the
// recorded dimension differs from the requested one.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	log        *slog.Logger

	ensureMu   sync.Mutex
	ensuredDim int
}

func New(baseURL, collection string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        log,
	}
}

func (c *Client) EnsureCollection(ctx context.Context, dim int) error {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()

	if c.ensuredDim == dim {
		return nil
	}

	existingDim, exists, err := c.collectionDimension(ctx)
	if err != nil {
		return err
	}

	if exists && existingDim == dim {
		c.ensuredDim = dim
		return nil
	}

	if exists {
		c.log.Warn("collection dimension mismatch, recreating",
			"collection", c.collection, "existing", existingDim, "requested", dim)
		if err := c.dropCollection(ctx); err != nil {
			return err
		}
	}

	if err := c.createCollection(ctx, dim); err != nil {
		return err
	}
	c.ensuredDim = dim
	return nil
}

func (c *Client) Upsert(ctx context.Context, points []domain.EmbeddedChunk) error {
	if len(points) == 0 {
		return nil
	}
	dim := len(points[0].Vector)
	if err := c.EnsureCollection(ctx, dim); err != nil {
		return err
	}

	err := c.upsertOnce(ctx, points)
	if err == nil {
		return nil
	}
	if !isDimensionMismatch(err) {
		return err
	}

	// One automatic recreate+retry cycle before propagating.
	c.log.Warn("dimension mismatch on upsert, recreating collection",
		"collection", c.collection, "dim", dim, "error", err)
	if recreateErr := c.recreateCollection(ctx, dim); recreateErr != nil {
		return domain.WrapError(domain.ErrDimensionMismatch, "recreate collection", recreateErr)
	}
	if retryErr := c.upsertOnce(ctx, points); retryErr != nil {
		return domain.WrapError(domain.ErrDimensionMismatch, "upsert after recreate", retryErr)
	}
	return nil
}

func (c *Client) upsertOnce(ctx context.Context, points []domain.EmbeddedChunk) error {
	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	body := struct {
		Points []point `json:"points"`
	}{Points: make([]point, 0, len(points))}

	for _, p := range points {
		body.Points = append(body.Points, point{
			ID:     uuid.NewString(),
			Vector: p.Vector,
			Payload: map[string]any{
				"transcript_id": p.TranscriptID,
				"chunk_index":   p.ChunkIndex,
				"chunk_text":    p.Text,
				"metadata":      p.Metadata,
			},
		})
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
	return c.do(ctx, http.MethodPut, path, body, nil, "upsert")
}

func (c *Client) Search(ctx context.Context, vector []float32, transcriptIDs []string, limit int) ([]domain.ScoredResult, error) {
	results, err := c.searchOnce(ctx, vector, transcriptIDs, limit)
	if err == nil {
		return results, nil
	}

	// A recreate elsewhere can briefly leave the collection missing;
	// one retry covers that window.
	var statusErr *statusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return c.searchOnce(ctx, vector, transcriptIDs, limit)
	}
	return nil, err
}

func (c *Client) searchOnce(ctx context.Context, vector []float32, transcriptIDs []string, limit int) ([]domain.ScoredResult, error) {
	body := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if len(transcriptIDs) > 0 {
		body["filter"] = transcriptFilter(transcriptIDs)
	}

	var parsed struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	if err := c.do(ctx, http.MethodPost, path, body, &parsed, "search"); err != nil {
		return nil, err
	}

	out := make([]domain.ScoredResult, 0, len(parsed.Result))
	for _, r := range parsed.Result {
		out = append(out, domain.ScoredResult{
			TranscriptID: payloadString(r.Payload, "transcript_id"),
			ChunkIndex:   payloadInt(r.Payload, "chunk_index"),
			Text:         payloadString(r.Payload, "chunk_text"),
			Score:        r.Score,
			Origin:       domain.OriginVector,
			Metadata:     payloadMap(r.Payload, "metadata"),
		})
	}
	return out, nil
}

func (c *Client) DeleteByTranscript(ctx context.Context, transcriptID string) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{
					"key":   "transcript_id",
					"match": map[string]any{"value": transcriptID},
				},
			},
		},
	}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", c.collection)
	return c.do(ctx, http.MethodPost, path, body, nil, "delete")
}

func (c *Client) ScrollAll(ctx context.Context) ([]domain.Chunk, error) {
	var out []domain.Chunk
	var offset any

	for {
		body := map[string]any{
			"limit":        256,
			"with_payload": true,
			"with_vector":  false,
		}
		if offset != nil {
			body["offset"] = offset
		}

		var parsed struct {
			Result struct {
				Points []struct {
					Payload map[string]any `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		path := fmt.Sprintf("/collections/%s/points/scroll", c.collection)
		if err := c.do(ctx, http.MethodPost, path, body, &parsed, "scroll"); err != nil {
			return nil, err
		}

		for _, p := range parsed.Result.Points {
			out = append(out, domain.Chunk{
				TranscriptID: payloadString(p.Payload, "transcript_id"),
				ChunkIndex:   payloadInt(p.Payload, "chunk_index"),
				Text:         payloadString(p.Payload, "chunk_text"),
				Metadata:     payloadMap(p.Payload, "metadata"),
			})
		}

		if len(parsed.Result.Points) == 0 || parsed.Result.NextPageOffset == nil {
			return out, nil
		}
		offset = parsed.Result.NextPageOffset
	}
}

// transcriptFilter builds the AND-of-OR match: transcript_id IN {...}.
func transcriptFilter(ids []string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{
				"key":   "transcript_id",
				"match": map[string]any{"any": ids},
			},
		},
	}
}

func (c *Client) collectionDimension(ctx context.Context) (dim int, exists bool, err error) {
	var parsed struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}

	err = c.do(ctx, http.MethodGet, "/collections/"+c.collection, nil, &parsed, "collection info")
	if err != nil {
		var statusErr *statusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return 0, false, nil
		}
		return 0, false, err
	}
	return parsed.Result.Config.Params.Vectors.Size, true, nil
}

func (c *Client) createCollection(ctx context.Context, dim int) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": "Cosine",
		},
	}
	if err := c.do(ctx, http.MethodPut, "/collections/"+c.collection, body, nil, "create collection"); err != nil {
		var statusErr *statusError
		// 409 when another process created it first.
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
			return nil
		}
		return err
	}
	c.log.Info("created collection", "collection", c.collection, "dimension", dim)
	return nil
}

func (c *Client) dropCollection(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/collections/"+c.collection, nil, nil, "drop collection")
}

func (c *Client) recreateCollection(ctx context.Context, dim int) error {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()

	if err := c.dropCollection(ctx); err != nil {
		var statusErr *statusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
			c.log.Warn("drop collection before recreate failed", "error", err)
		}
	}
	if err := c.createCollection(ctx, dim); err != nil {
		return err
	}
	c.ensuredDim = dim
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any, out any, operation string) error {
	var reader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", operation, err)
		}
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isConnectivityError(err) {
			return domain.WrapError(domain.ErrVectorStoreUnavailable, "qdrant "+operation, err)
		}
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &statusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(raw)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

type statusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("qdrant %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("qdrant %s status: %s: %s", e.Operation, e.Status, e.Body)
}

func isDimensionMismatch(err error) bool {
	var statusErr *statusError
	if !errors.As(err, &statusErr) {
		return false
	}
	body := strings.ToLower(statusErr.Body)
	return strings.Contains(body, "dimension") || strings.Contains(body, "expected dim")
}

func isConnectivityError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, io.EOF)
}

func payloadString(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func payloadInt(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}

func payloadMap(payload map[string]any, key string) map[string]any {
	if m, ok := payload[key].(map[string]any); ok {
		return m
	}
	return nil
}
