package middleware

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/shoptaongon/taobot/internal/core"
)

// CachingExecutor memoizes successful tool results per tool name and
// arguments for ttl. Error results are never cached.
type CachingExecutor struct {
	next  core.ToolExecutor
	cache *expirable.LRU[string, core.ToolResult]
}

// NewCachingExecutor wraps next with an LRU of size entries. A size <= 0
// returns next unchanged.
func NewCachingExecutor(next core.ToolExecutor, size int, ttl time.Duration) core.ToolExecutor {
	if size <= 0 {
		return next
	}
	return &CachingExecutor{
		next:  next,
		cache: expirable.NewLRU[string, core.ToolResult](size, nil, ttl),
	}
}

func (c *CachingExecutor) Execute(ctx context.Context, call core.ToolCall) core.ToolResult {
	key := cacheKey(call)
	if cached, ok := c.cache.Get(key); ok {
		return cloneResult(cached)
	}
	result := c.next.Execute(ctx, call)
	if _, failed := result.Error(); !failed {
		c.cache.Add(key, cloneResult(result))
	}
	return result
}

// Len reports the number of cached entries.
func (c *CachingExecutor) Len() int {
	return c.cache.Len()
}

// cacheKey relies on encoding/json sorting map keys, so equal argument maps
// produce equal keys.
func cacheKey(call core.ToolCall) string {
	return call.Name + "\x00" + call.ArgumentsJSON()
}

func cloneResult(r core.ToolResult) core.ToolResult {
	out := make(core.ToolResult, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
