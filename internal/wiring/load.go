// Package wiring builds the configured components from the registry.
package wiring

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/shoptaongon/taobot/internal/config"
	"github.com/shoptaongon/taobot/internal/core"
	"github.com/shoptaongon/taobot/internal/middleware"
	"github.com/shoptaongon/taobot/internal/registry"
)

// DefaultExecutor is the registered tool executor used by LoadExecutor.
const DefaultExecutor = "http"

// LoadClient builds the LLM client for cfg.Backend. A missing credential or
// an unknown backend yields an error wrapping core.ErrNotConfigured.
func LoadClient(ctx context.Context, cfg config.LLMConfig, logger zerolog.Logger) (core.LLMClient, error) {
	factory, ok := registry.GetClientFactory(cfg.Backend)
	if !ok {
		return nil, fmt.Errorf("unknown llm backend %q (have %v): %w", cfg.Backend, registry.ClientNames(), core.ErrNotConfigured)
	}
	c, err := safeInitClient(ctx, factory, cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("backend", cfg.Backend).Str("model", cfg.Model).Msg("llm client ready")
	return c, nil
}

func safeInitClient(ctx context.Context, f registry.ClientFactory, cfg config.LLMConfig, logger zerolog.Logger) (c core.LLMClient, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = logPanic(r)
		}
	}()
	return f(ctx, cfg, logger)
}

// LoadExecutor builds the tool executor and wraps it with result caching
// and output truncation per cfg.
func LoadExecutor(cfg config.ToolsConfig, logger zerolog.Logger) (core.ToolExecutor, error) {
	factory, ok := registry.GetExecutorFactory(DefaultExecutor)
	if !ok {
		return nil, fmt.Errorf("tool executor %q not registered", DefaultExecutor)
	}
	exec, err := safeInitExecutor(factory, cfg, logger)
	if err != nil {
		return nil, err
	}
	exec = middleware.NewCachingExecutor(exec, cfg.CacheSize, cfg.CacheTTL)
	if cfg.OutputMaxRunes > 0 {
		exec = middleware.NewTruncatingExecutor(exec, cfg.OutputMaxRunes)
	}
	return exec, nil
}

func safeInitExecutor(f registry.ExecutorFactory, cfg config.ToolsConfig, logger zerolog.Logger) (e core.ToolExecutor, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = logPanic(r)
		}
	}()
	return f(cfg, logger)
}

func logPanic(r interface{}) error {
	return logPanicError{r}
}

type logPanicError struct {
	Reason interface{}
}

func (e logPanicError) Error() string {
	return fmt.Sprintf("panic during initialization: %v", e.Reason)
}
