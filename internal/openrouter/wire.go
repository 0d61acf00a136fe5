package openrouter

import (
	"encoding/json"
	"strings"

	"github.com/shoptaongon/taobot/internal/core"
)

// message is a chat message in the OpenAI-compatible wire format.
type message struct {
	Role       string     `json:"role"`
	Content    *string    `json:"content"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

type toolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function functionCall `json:"function"`
}

type functionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type toolDefinition struct {
	Type     string       `json:"type"`
	Function functionSpec `json:"function"`
}

type functionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// chatRequest is the request body for chat completions.
type chatRequest struct {
	Model      string           `json:"model"`
	Messages   []message        `json:"messages"`
	Tools      []toolDefinition `json:"tools,omitempty"`
	ToolChoice any              `json:"tool_choice,omitempty"`
	Stream     bool             `json:"stream,omitempty"`
}

// chatResponse is the buffered response from chat completions.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   json.RawMessage `json:"content"`
			Role      string          `json:"role"`
			ToolCalls []toolCall      `json:"tool_calls,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiErrorBody `json:"error,omitempty"`
}

type apiErrorBody struct {
	Message string `json:"message"`
	Code    any    `json:"code,omitempty"`
}

func text(s string) *string { return &s }

// buildRequest renders a core.Request. A tool turn becomes the assistant
// message carrying the call followed by the tool message with the result.
func buildRequest(model string, req core.Request, stream bool) chatRequest {
	msgs := make([]message, 0, len(req.Turns)+1)
	if req.System != "" {
		msgs = append(msgs, message{Role: "system", Content: text(req.System)})
	}
	for _, t := range req.Turns {
		switch t.Role {
		case core.RoleTool:
			if t.ToolCall == nil {
				continue
			}
			msgs = append(msgs,
				message{
					Role: "assistant",
					ToolCalls: []toolCall{{
						ID:       t.ToolCall.ID,
						Type:     "function",
						Function: functionCall{Name: t.ToolCall.Name, Arguments: t.ToolCall.ArgumentsJSON()},
					}},
				},
				message{Role: "tool", ToolCallID: t.ToolCall.ID, Name: t.ToolCall.Name, Content: text(t.ToolResult.String())},
			)
		default:
			msgs = append(msgs, message{Role: string(t.Role), Content: text(t.Content)})
		}
	}
	out := chatRequest{Model: model, Messages: msgs, Stream: stream}
	for _, spec := range req.Tools {
		out.Tools = append(out.Tools, toolDefinition{
			Type:     "function",
			Function: functionSpec{Name: spec.Name, Description: spec.Description, Parameters: spec.Parameters},
		})
	}
	if len(out.Tools) > 0 {
		out.ToolChoice = "auto"
	}
	return out
}

// decodeToolCalls converts wire tool calls. Unparseable arguments become an
// empty map so the executor reports them instead of the client failing.
func decodeToolCalls(calls []toolCall) []core.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]core.ToolCall, 0, len(calls))
	for _, c := range calls {
		out = append(out, core.ToolCall{ID: c.ID, Name: c.Function.Name, Arguments: parseArguments(c.Function.Arguments)})
	}
	return out
}

func parseArguments(raw string) map[string]any {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{}
	}
	return args
}

// parseContent parses API content that may be string, null, or array of parts (e.g. [{"type":"text","text":"..."}]).
func parseContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err == nil {
		var b strings.Builder
		for _, p := range parts {
			if p.Type == "text" || p.Type == "" {
				b.WriteString(p.Text)
			}
		}
		return b.String()
	}
	return ""
}
