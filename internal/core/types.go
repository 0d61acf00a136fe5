package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role tags the origin of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Turn is one message unit in a conversation.
// Tool turns carry both the invocation the model asked for and its result,
// so backends can render the call/response pair in their own wire format.
type Turn struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCall   *ToolCall  `json:"tool_call,omitempty"`
	ToolResult ToolResult `json:"tool_result,omitempty"`
}

// UserTurn returns a user turn with the given text.
func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Content: text}
}

// AssistantTurn returns an assistant turn with the given text.
func AssistantTurn(text string) Turn {
	return Turn{Role: RoleAssistant, Content: text}
}

// ToolTurn returns a tool-result turn answering call.
func ToolTurn(call ToolCall, result ToolResult) Turn {
	c := call
	return Turn{Role: RoleTool, ToolCall: &c, ToolResult: result, Content: result.String()}
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ArgumentsJSON returns the arguments encoded as a JSON object. A nil map encodes as {}.
func (c ToolCall) ArgumentsJSON() string {
	if len(c.Arguments) == 0 {
		return "{}"
	}
	b, err := json.Marshal(c.Arguments)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ToolResult is the JSON-like payload returned to the model after a tool call.
// Failures use the {"error": "..."} shape; absence of data is an empty map.
type ToolResult map[string]any

// ErrorResult builds a ToolResult carrying only an error message.
func ErrorResult(format string, args ...any) ToolResult {
	return ToolResult{"error": fmt.Sprintf(format, args...)}
}

// Error returns the error message if the result is a failure.
func (r ToolResult) Error() (string, bool) {
	if r == nil {
		return "", false
	}
	v, ok := r["error"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Sprint(v), true
	}
	return s, true
}

// String encodes the result as JSON.
func (r ToolResult) String() string {
	if r == nil {
		return "{}"
	}
	b, err := json.Marshal(map[string]any(r))
	if err != nil {
		return `{"error":"unencodable tool result"}`
	}
	return string(b)
}

// ToolSpec is the model-facing description of a tool.
// Parameters is a JSON Schema object.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Request is the full conversation state sent to an LLM backend.
type Request struct {
	System string
	Turns  []Turn
	Tools  []ToolSpec
}

// Response is a buffered model reply: either final text or proposed tool calls.
type Response struct {
	Text      string
	ToolCalls []ToolCall
}

// StreamEvent is one incremental unit of a streamed reply. Exactly one of
// Text or ToolCalls is set.
type StreamEvent struct {
	Text      string
	ToolCalls []ToolCall
}

// Transcript renders turns as a flat role-tagged transcript.
func Transcript(turns []Turn) string {
	var b strings.Builder
	for _, t := range turns {
		switch t.Role {
		case RoleTool:
			name := ""
			if t.ToolCall != nil {
				name = t.ToolCall.Name
			}
			fmt.Fprintf(&b, "tool(%s): %s\n", name, t.ToolResult.String())
		default:
			fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
		}
	}
	return b.String()
}
