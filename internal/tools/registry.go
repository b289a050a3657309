package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/perchbot/perch/internal/providers"
)

// Registry holds the tools available to one agent. The main loop and
// each subagent own separate registries.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any existing tool with the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions emits function-calling tool definitions for the provider.
func (r *Registry) Definitions() []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]providers.ToolDefinition, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
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

// SetContext rebinds the routing context on every context-aware tool.
// Called by the agent loop before each turn so tools invoked during the
// turn know where their side effects belong.
func (r *Registry) SetContext(channel, chatID string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tools {
		if ca, ok := t.(ContextAware); ok {
			ca.SetContext(channel, chatID)
		}
	}
}

// Execute validates args and runs the named tool. It never panics and
// never returns a Go error: all failures come back as error strings so
// the model can observe them and self-correct.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) string {
	t, ok := r.Get(name)
	if !ok {
		return fmt.Sprintf("Error: Tool '%s' not found", name)
	}

	if errs := ValidateParams(args, t.Parameters()); len(errs) > 0 {
		return fmt.Sprintf("Error: Invalid parameters for tool '%s': %s", name, strings.Join(errs, "; "))
	}

	result := func() (res *Result) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("tool panicked", "tool", name, "panic", rec)
				res = ErrorResult(fmt.Sprintf("Error executing %s: %v", name, rec))
			}
		}()
		return t.Execute(ctx, args)
	}()

	if result == nil {
		return ""
	}
	if result.IsError && !strings.HasPrefix(result.ForLLM, "Error") {
		return fmt.Sprintf("Error executing %s: %s", name, result.ForLLM)
	}
	return result.ForLLM
}
