package openrouter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/shoptaongon/taobot/internal/core"
)

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string            `json:"content"`
			ToolCalls []streamToolDelta `json:"tool_calls,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiErrorBody `json:"error,omitempty"`
}

type streamToolDelta struct {
	Index    int    `json:"index"`
	ID       string `json:"id,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

// partialCall accumulates one tool call across deltas: the first delta
// carries id and name, later ones append argument fragments.
type partialCall struct {
	id   string
	name string
	args strings.Builder
}

// chatStream adapts an SSE body to core.Stream. Text deltas are yielded as
// they arrive; tool calls are yielded once, when the choice finishes or the
// stream ends.
type chatStream struct {
	body     io.ReadCloser
	scanner  *sseScanner
	partials []*partialCall
	flush    bool
	done     bool
}

func newChatStream(body io.ReadCloser) *chatStream {
	return &chatStream{body: body, scanner: newSSEScanner(body)}
}

func (s *chatStream) Next() (core.StreamEvent, error) {
	for {
		if s.flush {
			return s.finish()
		}
		if s.done {
			return core.StreamEvent{}, io.EOF
		}
		if !s.scanner.Next() {
			if err := s.scanner.Err(); err != nil {
				return core.StreamEvent{}, fmt.Errorf("openrouter: reading stream: %w", err)
			}
			return s.finish()
		}
		data := strings.TrimSpace(s.scanner.Event().Data)
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return s.finish()
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return core.StreamEvent{}, fmt.Errorf("openrouter: parsing stream chunk: %w", err)
		}
		if chunk.Error != nil {
			return core.StreamEvent{}, fmt.Errorf("openrouter: stream error: %s", chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		for _, d := range choice.Delta.ToolCalls {
			s.accumulate(d)
		}
		if choice.FinishReason != nil && *choice.FinishReason != "" && len(s.partials) > 0 {
			s.flush = true
		}
		if choice.Delta.Content != "" {
			return core.StreamEvent{Text: choice.Delta.Content}, nil
		}
	}
}

func (s *chatStream) accumulate(d streamToolDelta) {
	for len(s.partials) <= d.Index {
		s.partials = append(s.partials, &partialCall{})
	}
	p := s.partials[d.Index]
	if d.ID != "" {
		p.id = d.ID
	}
	if d.Function.Name != "" {
		p.name = d.Function.Name
	}
	p.args.WriteString(d.Function.Arguments)
}

// finish flushes accumulated tool calls, if any, and ends the stream.
func (s *chatStream) finish() (core.StreamEvent, error) {
	s.flush = false
	s.done = true
	if len(s.partials) == 0 {
		return core.StreamEvent{}, io.EOF
	}
	calls := make([]core.ToolCall, 0, len(s.partials))
	for _, p := range s.partials {
		if p.name == "" {
			continue
		}
		calls = append(calls, core.ToolCall{ID: p.id, Name: p.name, Arguments: parseArguments(p.args.String())})
	}
	s.partials = nil
	if len(calls) == 0 {
		return core.StreamEvent{}, io.EOF
	}
	return core.StreamEvent{ToolCalls: calls}, nil
}

func (s *chatStream) Close() error {
	return s.body.Close()
}
