package middleware

import (
	"context"
	"unicode/utf8"

	"github.com/shoptaongon/taobot/internal/core"
	"github.com/shoptaongon/taobot/internal/tools"
)

// TruncatingExecutor wraps a ToolExecutor and caps serialized results at
// maxRunes (0 = no truncation). Oversized payloads are replaced by
// {"truncated": true, "content": "<prefix>..."}; error results pass through.
type TruncatingExecutor struct {
	next     core.ToolExecutor
	maxRunes int
}

// NewTruncatingExecutor returns an executor that truncates results from next.
func NewTruncatingExecutor(next core.ToolExecutor, maxRunes int) *TruncatingExecutor {
	return &TruncatingExecutor{next: next, maxRunes: maxRunes}
}

// Execute runs the inner executor and truncates the result before returning.
func (t *TruncatingExecutor) Execute(ctx context.Context, call core.ToolCall) core.ToolResult {
	result := t.next.Execute(ctx, call)
	if t.maxRunes <= 0 {
		return result
	}
	if _, failed := result.Error(); failed {
		return result
	}
	s := result.String()
	if utf8.RuneCountInString(s) <= t.maxRunes {
		return result
	}
	return core.ToolResult{
		"truncated": true,
		"content":   tools.TruncateToolOutput(s, t.maxRunes),
	}
}
