package core

import (
	"context"
	"errors"
)

// ErrNotConfigured marks an LLM capability that cannot be used for the
// lifetime of the process (e.g. missing credential).
var ErrNotConfigured = errors.New("llm capability not configured")

// LLMClient abstracts the remote model (OpenRouter, Gemini, ...).
type LLMClient interface {
	// Complete sends the request and blocks until the full reply is available.
	Complete(ctx context.Context, req Request) (*Response, error)
	// Stream sends the request and returns a Stream yielding events in
	// generation order.
	Stream(ctx context.Context, req Request) (Stream, error)
}

// Stream yields events of a streamed reply. Next returns io.EOF once the
// underlying turn is complete. Close must always be called.
type Stream interface {
	Next() (StreamEvent, error)
	Close() error
}

// ToolExecutor runs a tool invocation. It never fails: every failure is
// reported as a ToolResult carrying an "error" key.
type ToolExecutor interface {
	Execute(ctx context.Context, call ToolCall) ToolResult
}
