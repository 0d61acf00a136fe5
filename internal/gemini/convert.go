package gemini

import (
	"strings"

	"google.golang.org/genai"

	"github.com/shoptaongon/taobot/internal/core"
)

// toContents renders turns as Gemini contents. A tool turn becomes a model
// function-call content followed by a user function-response content.
func toContents(turns []core.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case core.RoleUser:
			contents = append(contents, genai.NewContentFromText(t.Content, genai.RoleUser))
		case core.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(t.Content, genai.RoleModel))
		case core.RoleTool:
			if t.ToolCall == nil {
				continue
			}
			response := map[string]any(t.ToolResult)
			if response == nil {
				response = map[string]any{}
			}
			contents = append(contents,
				&genai.Content{
					Role: genai.RoleModel,
					Parts: []*genai.Part{{
						FunctionCall: &genai.FunctionCall{ID: t.ToolCall.ID, Name: t.ToolCall.Name, Args: t.ToolCall.Arguments},
					}},
				},
				&genai.Content{
					Role: genai.RoleUser,
					Parts: []*genai.Part{{
						FunctionResponse: &genai.FunctionResponse{ID: t.ToolCall.ID, Name: t.ToolCall.Name, Response: response},
					}},
				},
			)
		}
	}
	return contents
}

// toTools declares every tool spec as a Gemini function.
func toTools(specs []core.ToolSpec) []*genai.Tool {
	if len(specs) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, s := range specs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  toSchema(s.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// toSchema converts the JSON Schema subset used by tool parameters.
func toSchema(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}
	s := &genai.Schema{}
	if t, ok := m["type"].(string); ok {
		s.Type = genai.Type(strings.ToUpper(t))
	}
	if d, ok := m["description"].(string); ok {
		s.Description = d
	}
	s.Enum = stringList(m["enum"])
	s.Required = stringList(m["required"])
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if p, ok := raw.(map[string]any); ok {
				s.Properties[name] = toSchema(p)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		s.Items = toSchema(items)
	}
	return s
}

func stringList(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// fromResponse extracts the text and function calls of the first candidate.
// Thought parts are skipped.
func fromResponse(resp *genai.GenerateContentResponse) (string, []core.ToolCall) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}
	var b strings.Builder
	var calls []core.ToolCall
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil {
			continue
		}
		if p.FunctionCall != nil {
			args := p.FunctionCall.Args
			if args == nil {
				args = map[string]any{}
			}
			calls = append(calls, core.ToolCall{ID: p.FunctionCall.ID, Name: p.FunctionCall.Name, Arguments: args})
			continue
		}
		if p.Text != "" && !p.Thought {
			b.WriteString(p.Text)
		}
	}
	return b.String(), calls
}
