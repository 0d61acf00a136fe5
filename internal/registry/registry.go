// Package registry maps component names to factories. Backends register
// themselves from init so the binary selects them by configuration.
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/shoptaongon/taobot/internal/config"
	"github.com/shoptaongon/taobot/internal/core"
)

// Factory types for components
type ClientFactory func(ctx context.Context, cfg config.LLMConfig, logger zerolog.Logger) (core.LLMClient, error)
type ExecutorFactory func(cfg config.ToolsConfig, logger zerolog.Logger) (core.ToolExecutor, error)

var (
	mu            sync.RWMutex
	LLMClients    = make(map[string]ClientFactory)
	ToolExecutors = make(map[string]ExecutorFactory)
)

func RegisterClient(name string, f ClientFactory) {
	mu.Lock()
	defer mu.Unlock()
	LLMClients[name] = f
}

func RegisterExecutor(name string, f ExecutorFactory) {
	mu.Lock()
	defer mu.Unlock()
	ToolExecutors[name] = f
}

func GetClientFactory(name string) (ClientFactory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := LLMClients[name]
	return f, ok
}

func GetExecutorFactory(name string) (ExecutorFactory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := ToolExecutors[name]
	return f, ok
}

// ClientNames lists registered backends in sorted order.
func ClientNames() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(LLMClients))
	for name := range LLMClients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
