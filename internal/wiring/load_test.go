package wiring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoptaongon/taobot/internal/config"
	"github.com/shoptaongon/taobot/internal/core"
	"github.com/shoptaongon/taobot/internal/middleware"
	"github.com/shoptaongon/taobot/internal/registry"
)

func TestLoadClient_UnknownBackend(t *testing.T) {
	_, err := LoadClient(context.Background(), config.LLMConfig{Backend: "nope", APIKey: "k"}, zerolog.Nop())
	assert.ErrorIs(t, err, core.ErrNotConfigured)
}

func TestLoadClient_RecoversPanic(t *testing.T) {
	registry.RegisterClient("panicky", func(ctx context.Context, cfg config.LLMConfig, logger zerolog.Logger) (core.LLMClient, error) {
		panic("boom")
	})
	_, err := LoadClient(context.Background(), config.LLMConfig{Backend: "panicky"}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestLoadExecutor_WrapsMiddleware(t *testing.T) {
	exec, err := LoadExecutor(config.ToolsConfig{
		BaseURL:        "http://localhost:1",
		Timeout:        time.Second,
		OutputMaxRunes: 100,
		CacheSize:      8,
		CacheTTL:       time.Minute,
	}, zerolog.Nop())
	require.NoError(t, err)
	_, ok := exec.(*middleware.TruncatingExecutor)
	assert.True(t, ok)

	res := exec.Execute(context.Background(), core.ToolCall{Name: "unknown"})
	msg, failed := res.Error()
	require.True(t, failed)
	assert.Equal(t, "unknown tool", msg)
}

func TestLoadExecutor_NoTruncationByDefault(t *testing.T) {
	description := strings.Repeat("Liquid Retina display. ", 2000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"iPad Air","description":"` + description + `"}`))
	}))
	defer srv.Close()

	exec, err := LoadExecutor(config.ToolsConfig{BaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	require.NoError(t, err)
	_, truncating := exec.(*middleware.TruncatingExecutor)
	assert.False(t, truncating)

	res := exec.Execute(context.Background(), core.ToolCall{Name: "get_product_details", Arguments: map[string]any{"product_id": "ipad-air"}})
	assert.Equal(t, core.ToolResult{"name": "iPad Air", "description": description}, res)
}
