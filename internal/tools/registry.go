// Package tools defines agent tools and the per-turn registry that exposes
// them to the model.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/nextlevelbuilder/roomclaw/internal/providers"
)

// Tool is a capability the model can invoke during a turn.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) *Result
}

// Built-in tool names.
const (
	NameCreateMessageThread = "create-message-thread"
	NameCreateDocument      = "create-document"
	NameScheduleWorkflow    = "schedule-workflow"
)

// Registry holds the tools offered in one turn, in registration order.
type Registry struct {
	tools map[string]Tool
	order []string
}

func NewRegistry(ts ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range ts {
		r.Register(t)
	}
	return r
}

// Register adds t, replacing any tool with the same name.
func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

func (r *Registry) Names() []string { return slices.Clone(r.order) }

func (r *Registry) Len() int { return len(r.order) }

// Without returns a copy of r minus the named tools.
func (r *Registry) Without(names ...string) *Registry {
	out := NewRegistry()
	for _, n := range r.order {
		if !slices.Contains(names, n) {
			out.Register(r.tools[n])
		}
	}
	return out
}

// Definitions returns the provider tool schemas.
func (r *Registry) Definitions() []providers.ToolDefinition {
	defs := make([]providers.ToolDefinition, 0, len(r.order))
	for _, n := range r.order {
		t := r.tools[n]
		defs = append(defs, providers.ToolDefinition{
			Type: "function",
			Function: providers.ToolFunctionSchema{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// Execute runs the named tool. Unknown tools and panics become error results
// so one bad tool cannot abort the turn.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (res *Result) {
	t, ok := r.tools[name]
	if !ok {
		return ErrorResult(fmt.Sprintf("unknown tool %q", name))
	}
	defer func() {
		if p := recover(); p != nil {
			slog.Error("tool.panic", "tool", name, "panic", p)
			res = ErrorResult(fmt.Sprintf("tool %s failed", name)).WithError(fmt.Errorf("panic: %v", p))
		}
	}()
	res = t.Execute(ctx, args)
	if res == nil {
		res = NewResult("")
	}
	return res
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}
