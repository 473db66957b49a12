package evolution

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kvoronov/transcript-qa/internal/core/ports"
	"github.com/kvoronov/transcript-qa/internal/infrastructure/resilience"
)

// Client talks to an OpenAI-compatible chat completions endpoint.
// Completions can run long, hence the generous client timeout; callers
// bound individual turns with their own context deadlines.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Timeout  time.Duration
	Executor *resilience.Executor
}

func New(baseURL, apiKey, model string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.Executor,
	}
}

// DefaultModel is used when a request does not name a model.
func (c *Client) DefaultModel() string {
	return c.model
}

func (c *Client) Complete(ctx context.Context, req ports.ChatRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	payload := map[string]any{
		"model":       model,
		"messages":    req.Messages,
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}

	var content string
	call := func(callCtx context.Context) error {
		var parsed struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		}
		if err := c.postJSON(callCtx, "/chat/completions", payload, &parsed, "completion"); err != nil {
			return err
		}
		if len(parsed.Choices) == 0 {
			return fmt.Errorf("completion returned no choices")
		}
		content = strings.TrimSpace(parsed.Choices[0].Message.Content)
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "llm.complete", call, classifyCompletionError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", wrapTemporaryIfNeeded("completion", err)
	}
	return content, nil
}
