package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Handler executes a decoded tool input. A returned error is reported to the
// caller as a failed tool response, not as a transport error.
type Handler func(ctx context.Context, input any) (any, error)

// Decoder turns raw tool_input JSON into a validated input value.
type Decoder func(raw json.RawMessage) (any, error)

// Example is a complete sample request body for a tool.
type Example struct {
	Tool      Name           `json:"tool"`
	ToolInput map[string]any `json:"tool_input"`
}

// Definition describes a registered tool.
type Definition struct {
	Name        Name
	Description string

	// Inputs and Outputs are zero values of the model types, one per variant.
	Inputs  []any
	Outputs []any

	Examples []Example
	Decode   Decoder
	Handler  Handler
}

// DecoderFor returns a Decoder for a single-variant input model.
func DecoderFor[T any, P interface {
	*T
	Input
}]() Decoder {
	return func(raw json.RawMessage) (any, error) {
		return Decode[T, P](raw)
	}
}

// Registry holds the tools this process can execute.
type Registry struct {
	mu    sync.RWMutex
	tools map[Name]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[Name]Definition)}
}

// Register adds a tool. Registering the same name twice is an error.
func (r *Registry) Register(def Definition) error {
	if !def.Name.Valid() {
		return fmt.Errorf("unknown tool name %q", def.Name)
	}
	if def.Decode == nil || def.Handler == nil {
		return fmt.Errorf("tool %s: decoder and handler are required", def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %s already registered", def.Name)
	}
	r.tools[def.Name] = def
	return nil
}

// Get returns the definition for name.
func (r *Registry) Get(name Name) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// Names returns registered tool names in sorted order.
func (r *Registry) Names() []Name {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]Name, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Definitions returns all definitions sorted by name.
func (r *Registry) Definitions() []Definition {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(names))
	for _, n := range names {
		defs = append(defs, r.tools[n])
	}
	return defs
}

// AllExamples returns every tool's examples, ordered by tool name.
func (r *Registry) AllExamples() []Example {
	var out []Example
	for _, def := range r.Definitions() {
		out = append(out, def.Examples...)
	}
	return out
}
