package tools

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shoptaongon/taobot/internal/core"
)

var (
	ErrEmptyName     = errors.New("tool name is empty")
	ErrDuplicateTool = errors.New("tool already registered")
)

// ParamType is the JSON Schema type of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
)

// Param describes one named tool argument.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	Enum        []string
}

// Definition is one callable tool: its schema and the remote endpoint that
// satisfies it.
type Definition struct {
	Name        string
	Description string
	Params      []Param
	Resolver    Resolver
}

// Schema returns the JSON Schema advertised to the model.
func (d Definition) Schema() map[string]any {
	return d.schema(true)
}

// validationSchema is Schema without "required": missing arguments are
// passed through to the remote service, which owns validation.
func (d Definition) validationSchema() map[string]any {
	return d.schema(false)
}

func (d Definition) schema(withRequired bool) map[string]any {
	props := make(map[string]any, len(d.Params))
	var required []string
	for _, p := range d.Params {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if withRequired && len(required) > 0 {
		s["required"] = required
	}
	return s
}

// Spec returns the model-facing tool description.
func (d Definition) Spec() core.ToolSpec {
	return core.ToolSpec{Name: d.Name, Description: d.Description, Parameters: d.Schema()}
}

// Registry is the immutable table of callable tools, keyed by name.
type Registry struct {
	defs map[string]Definition
}

// NewRegistry builds a registry from defs. Names must be unique and non-empty.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if d.Name == "" {
			return nil, ErrEmptyName
		}
		if _, exists := r.defs[d.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, d.Name)
		}
		r.defs[d.Name] = d
	}
	return r, nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Names returns all tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns the model-facing tool list, sorted by name so requests are deterministic.
func (r *Registry) Specs() []core.ToolSpec {
	names := r.Names()
	specs := make([]core.ToolSpec, 0, len(names))
	for _, name := range names {
		specs = append(specs, r.defs[name].Spec())
	}
	return specs
}
