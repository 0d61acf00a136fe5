package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/shoptaongon/taobot/internal/config"
	"github.com/shoptaongon/taobot/internal/core"
	"github.com/shoptaongon/taobot/internal/registry"
)

func init() {
	registry.RegisterExecutor("http", func(cfg config.ToolsConfig, logger zerolog.Logger) (core.ToolExecutor, error) {
		return NewExecutor(DefaultRegistry(), cfg.BaseURL, cfg.Timeout, logger)
	})
}

const (
	// DefaultTimeout bounds a single tool call.
	DefaultTimeout = 10 * time.Second

	maxResponseBytes  = 1 << 20
	maxErrorBodyRunes = 200
)

// Executor runs tool calls against the store backend over HTTP.
// Execute never returns an error; failures become {"error": "..."} results.
type Executor struct {
	Registry *Registry
	BaseURL  string
	HTTP     *http.Client
	Timeout  time.Duration
	Logger   zerolog.Logger

	schemas map[string]*gojsonschema.Schema
}

// NewExecutor compiles argument schemas for every tool in reg.
func NewExecutor(reg *Registry, baseURL string, timeout time.Duration, logger zerolog.Logger) (*Executor, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	e := &Executor{
		Registry: reg,
		BaseURL:  baseURL,
		HTTP:     &http.Client{},
		Timeout:  timeout,
		Logger:   logger,
		schemas:  make(map[string]*gojsonschema.Schema),
	}
	for _, name := range reg.Names() {
		def, _ := reg.Lookup(name)
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def.validationSchema()))
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", name, err)
		}
		e.schemas[name] = schema
	}
	return e, nil
}

// Execute implements core.ToolExecutor.
func (e *Executor) Execute(ctx context.Context, call core.ToolCall) core.ToolResult {
	log := e.Logger.With().Str("tool", call.Name).Str("call_id", call.ID).Logger()

	def, ok := e.Registry.Lookup(call.Name)
	if !ok {
		log.Warn().Msg("unknown tool requested")
		return core.ErrorResult("unknown tool")
	}
	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}
	if err := e.validate(call.Name, args); err != nil {
		log.Warn().Err(err).Msg("tool arguments rejected")
		return core.ErrorResult("invalid arguments: %s", err)
	}

	target, err := def.Resolver.URL(e.BaseURL, args)
	if err != nil {
		return core.ErrorResult("%s", err)
	}

	start := time.Now()
	result := e.get(ctx, target)
	ev := log.Debug()
	if msg, failed := result.Error(); failed {
		ev = log.Warn().Str("error", msg)
	}
	ev.Dur("elapsed", time.Since(start)).Msg("tool call finished")
	return result
}

func (e *Executor) validate(name string, args map[string]any) error {
	schema, ok := e.schemas[name]
	if !ok {
		return nil
	}
	res, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, re := range res.Errors() {
		msgs = append(msgs, re.String())
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

func (e *Executor) get(ctx context.Context, target string) core.ToolResult {
	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return core.ErrorResult("network error: %s", err)
	}
	req.Header.Set("Accept", "application/json")

	client := e.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return core.ErrorResult("network error: %s", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return core.ErrorResult("network error: %s", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return core.ErrorResult("HTTP %d %s: %s", resp.StatusCode, http.StatusText(resp.StatusCode), shortBody(body))
	}
	return decodePayload(body)
}

// decodePayload turns a 2xx body into a result. Empty bodies are {} and
// non-object JSON is wrapped under "result".
func decodePayload(body []byte) core.ToolResult {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return core.ToolResult{}
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return core.ErrorResult("invalid JSON response: %s", err)
	}
	switch x := v.(type) {
	case map[string]any:
		return core.ToolResult(x)
	case nil:
		return core.ToolResult{}
	default:
		return core.ToolResult{"result": x}
	}
}

func shortBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	r := []rune(s)
	if len(r) > maxErrorBodyRunes {
		return string(r[:maxErrorBodyRunes]) + "..."
	}
	return s
}
