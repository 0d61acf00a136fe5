// Package gemini implements core.LLMClient on the Google GenAI SDK.
package gemini

import (
	"context"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/shoptaongon/taobot/internal/config"
	"github.com/shoptaongon/taobot/internal/core"
	"github.com/shoptaongon/taobot/internal/health"
	"github.com/shoptaongon/taobot/internal/registry"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

func init() {
	registry.RegisterClient("gemini", func(ctx context.Context, cfg config.LLMConfig, logger zerolog.Logger) (core.LLMClient, error) {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini: API key not set: %w", core.ErrNotConfigured)
		}
		cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
		if cfg.BaseURL != "" {
			cc.HTTPOptions.BaseURL = cfg.BaseURL
		}
		gc, err := genai.NewClient(ctx, cc)
		if err != nil {
			return nil, fmt.Errorf("gemini: new client: %w", err)
		}
		c := NewClient(gc.Models, cfg.Model, logger)
		c.Timeout = cfg.Timeout
		return c, nil
	})
}

// Models is the part of *genai.Models the client uses.
type Models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// Client talks to Gemini through the GenAI SDK.
type Client struct {
	Models Models
	Model  string
	// Timeout bounds a whole Complete call. Streams are not bounded so long
	// replies are not cut; they end with the caller's context.
	Timeout time.Duration
	Logger  zerolog.Logger

	health health.Tracker
}

func NewClient(models Models, model string, logger zerolog.Logger) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{Models: models, Model: model, Logger: logger}
}

func (c *Client) generateConfig(req core.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{Tools: toTools(req.Tools)}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	return cfg
}

// Complete implements core.LLMClient.
func (c *Client) Complete(ctx context.Context, req core.Request) (*core.Response, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	resp, err := c.Models.GenerateContent(ctx, c.Model, toContents(req.Turns), c.generateConfig(req))
	if err != nil {
		c.health.RecordError(err)
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}
	c.health.RecordSuccess()
	text, calls := fromResponse(resp)
	return &core.Response{Text: text, ToolCalls: calls}, nil
}

// Stream implements core.LLMClient. The request is issued lazily on the
// first call to Next.
func (c *Client) Stream(ctx context.Context, req core.Request) (core.Stream, error) {
	seq := c.Models.GenerateContentStream(ctx, c.Model, toContents(req.Turns), c.generateConfig(req))
	next, stop := iter.Pull2(seq)
	return &stream{next: next, stop: stop, health: &c.health}, nil
}

// HealthCheck returns the health status of the Gemini client.
func (c *Client) HealthCheck() health.ComponentHealth {
	return c.health.Check("gemini")
}

type stream struct {
	next    func() (*genai.GenerateContentResponse, error, bool)
	stop    func()
	pending []core.StreamEvent
	started bool
	health  *health.Tracker
}

func (s *stream) Next() (core.StreamEvent, error) {
	for len(s.pending) == 0 {
		resp, err, ok := s.next()
		if !ok {
			return core.StreamEvent{}, io.EOF
		}
		if err != nil {
			s.health.RecordError(err)
			return core.StreamEvent{}, fmt.Errorf("gemini: stream: %w", err)
		}
		if !s.started {
			s.started = true
			s.health.RecordSuccess()
		}
		text, calls := fromResponse(resp)
		if text != "" {
			s.pending = append(s.pending, core.StreamEvent{Text: text})
		}
		if len(calls) > 0 {
			s.pending = append(s.pending, core.StreamEvent{ToolCalls: calls})
		}
	}
	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, nil
}

func (s *stream) Close() error {
	s.stop()
	return nil
}

var _ core.LLMClient = (*Client)(nil)
