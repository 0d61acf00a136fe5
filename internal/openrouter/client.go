package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/shoptaongon/taobot/internal/config"
	"github.com/shoptaongon/taobot/internal/core"
	"github.com/shoptaongon/taobot/internal/health"
	"github.com/shoptaongon/taobot/internal/registry"
)

func init() {
	registry.RegisterClient("openrouter", func(ctx context.Context, cfg config.LLMConfig, logger zerolog.Logger) (core.LLMClient, error) {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openrouter: API key not set: %w", core.ErrNotConfigured)
		}
		c := NewClient(cfg.APIKey, cfg.Model)
		if cfg.BaseURL != "" {
			c.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
		}
		if cfg.Timeout > 0 {
			c.Timeout = cfg.Timeout
			c.HTTP = newHTTPClient(cfg.Timeout)
		}
		c.Logger = logger
		return c, nil
	})
}

const (
	BaseURL = "https://openrouter.ai/api/v1"

	defaultMaxRetries = 3
	defaultBackoff    = time.Second
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openrouter: HTTP %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the request may succeed if sent again.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client calls the OpenRouter (OpenAI-compatible) chat completions API.
type Client struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTP       *http.Client
	MaxRetries int
	Backoff    time.Duration
	// Timeout bounds a whole Complete call. Streams are only bounded while
	// waiting for response headers (see newHTTPClient) so long replies are not cut.
	Timeout time.Duration
	Logger  zerolog.Logger

	health health.Tracker
}

// newHTTPClient returns a client whose transport gives up on a server that
// sends no response headers within timeout. It sets no overall deadline, so
// reading a streamed body may take as long as the reply lasts.
func newHTTPClient(timeout time.Duration) *http.Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.ResponseHeaderTimeout = timeout
	return &http.Client{Transport: t}
}

// NewClient creates a client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	return &Client{
		APIKey:     apiKey,
		Model:      model,
		BaseURL:    BaseURL,
		HTTP:       http.DefaultClient,
		MaxRetries: defaultMaxRetries,
		Backoff:    defaultBackoff,
		Logger:     zerolog.Nop(),
	}
}

// Complete sends the conversation with tools and returns text or tool calls.
// Transient failures (network, 429, 5xx) are retried with exponential backoff.
func (c *Client) Complete(ctx context.Context, req core.Request) (*core.Response, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	resp, err := c.post(ctx, buildRequest(c.Model, req, false))
	if err != nil {
		c.health.RecordError(err)
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		c.health.RecordError(err)
		return nil, fmt.Errorf("openrouter: read body: %w", err)
	}
	out, err := decodeResponse(bodyBytes)
	if err != nil {
		c.health.RecordError(err)
		return nil, err
	}
	c.health.RecordSuccess()
	return out, nil
}

// Stream sends the conversation with stream enabled. Only establishing the
// stream is retried; a broken stream surfaces as an error from Next.
func (c *Client) Stream(ctx context.Context, req core.Request) (core.Stream, error) {
	resp, err := c.post(ctx, buildRequest(c.Model, req, true))
	if err != nil {
		c.health.RecordError(err)
		return nil, err
	}
	c.health.RecordSuccess()
	return newChatStream(resp.Body), nil
}

func decodeResponse(body []byte) (*core.Response, error) {
	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("openrouter: decode: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("openrouter: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("openrouter: no choices in response (body: %s)", truncate(string(body), 200))
	}
	msg := out.Choices[0].Message
	return &core.Response{
		Text:      parseContent(msg.Content),
		ToolCalls: decodeToolCalls(msg.ToolCalls),
	}, nil
}

// post sends body and returns a 2xx response whose body the caller must close.
func (c *Client) post(ctx context.Context, body chatRequest) (*http.Response, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("openrouter: API key not set: %w", core.ErrNotConfigured)
	}
	if c.Model == "" {
		return nil, fmt.Errorf("openrouter: model not set")
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	backoff := c.Backoff
	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			c.Logger.Warn().Err(lastErr).Int("attempt", attempt).Dur("backoff", backoff).Msg("retrying model request")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
		if body.Stream {
			req.Header.Set("Accept", "text/event-stream")
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(errBody))}
		if !apiErr.Retryable() {
			return nil, apiErr
		}
		lastErr = apiErr
	}

	var apiErr *APIError
	if errors.As(lastErr, &apiErr) {
		return nil, apiErr
	}
	return nil, fmt.Errorf("openrouter: request failed after %d retries: %w", c.MaxRetries, lastErr)
}

// HealthCheck returns the health status of the LLM client.
func (c *Client) HealthCheck() health.ComponentHealth {
	return c.health.Check("openrouter")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
