package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ggoodman/toolwire/auth"
	"github.com/ggoodman/toolwire/protocol"
)

// Name identifies a tool.
type Name string

// Definition describes a tool to clients.
type Definition struct {
	Name        Name
	Description string
	Schema      Schema
}

// Outcome is a handler's result. A non-nil Err is an internal failure: it is
// logged in full and clients only see a generic message. Error is a
// client-facing failure message used when Success is false.
type Outcome struct {
	Success bool
	Data    any
	Error   string
	Err     error
}

// OK is a successful outcome carrying data.
func OK(data any) Outcome { return Outcome{Success: true, Data: data} }

// Fail is an unsuccessful outcome with a message safe to show clients.
func Fail(format string, a ...any) Outcome {
	return Outcome{Error: fmt.Sprintf(format, a...)}
}

// Internal wraps an unexpected error.
func Internal(err error) Outcome { return Outcome{Err: err} }

// Handler executes one tool on behalf of the principal. Args have already
// been validated against the tool's schema.
type Handler func(ctx context.Context, p auth.Principal, args Args) Outcome

// Tool is a definition bound to its handler.
type Tool struct {
	Definition
	Handler Handler
}

var ErrUnboundTool = errors.New("tools: definition without handler")

// Registry is an immutable set of tools.
type Registry struct {
	byName map[Name]Tool
	sorted []Definition
}

// NewRegistry binds every definition to a handler. It fails when a definition
// lacks a handler, a handler lacks a definition, or names collide.
func NewRegistry(defs []Definition, handlers map[Name]Handler) (*Registry, error) {
	r := &Registry{byName: make(map[Name]Tool, len(defs))}
	var errs []error
	for _, d := range defs {
		if d.Name == "" {
			errs = append(errs, fmt.Errorf("tools: definition with empty name"))
			continue
		}
		if _, dup := r.byName[d.Name]; dup {
			errs = append(errs, fmt.Errorf("tools: duplicate definition %q", d.Name))
			continue
		}
		h, ok := handlers[d.Name]
		if !ok || h == nil {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnboundTool, d.Name))
			continue
		}
		if d.Schema.Type == "" {
			d.Schema.Type = "object"
		}
		if d.Schema.Properties == nil {
			d.Schema.Properties = map[string]Property{}
		}
		for _, req := range d.Schema.Required {
			if _, ok := d.Schema.Properties[req]; !ok {
				errs = append(errs, fmt.Errorf("tools: %q requires undeclared property %q", d.Name, req))
			}
		}
		r.byName[d.Name] = Tool{Definition: d, Handler: h}
		r.sorted = append(r.sorted, d)
	}
	for name := range handlers {
		found := false
		for _, d := range defs {
			if d.Name == name {
				found = true
				break
			}
		}
		if !found {
			errs = append(errs, fmt.Errorf("tools: handler %q has no definition", name))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	sort.Slice(r.sorted, func(i, j int) bool { return r.sorted[i].Name < r.sorted[j].Name })
	return r, nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name Name) (Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Definitions returns all definitions sorted by name.
func (r *Registry) Definitions() []Definition {
	return append([]Definition(nil), r.sorted...)
}

// Summaries returns the catalog as advertised in welcome and capability frames.
func (r *Registry) Summaries() []protocol.ToolSummary {
	out := make([]protocol.ToolSummary, 0, len(r.sorted))
	for _, d := range r.sorted {
		out = append(out, protocol.ToolSummary{
			Name:        string(d.Name),
			Description: d.Description,
			Parameters:  d.Schema,
		})
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.byName) }
