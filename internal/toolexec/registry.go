package toolexec

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Registry manages available tools with thread-safe registration and
// lookup, compiling each tool's JSON-Schema once at registration time
// (spec §4.4: "Argument validation against the JSON-Schema is the tool's
// responsibility" — the registry offers this as a convenience layer on the
// tool's behalf, per SPEC_FULL.md's domain-stack wiring of
// jsonschema/v5). Grounded on the teacher's internal/agent/tool_registry.go.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool, compiling its Parameters schema if non-empty. A
// tool whose schema fails to compile is still registered — schema
// validation degrades to a no-op for that tool rather than refusing
// registration, since a malformed schema is a tool-author bug, not a
// dispatch-time condition.
func (r *Registry) Register(t Tool) error {
	if t == nil || t.Name() == "" {
		return fmt.Errorf("toolexec: tool must have a non-empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t

	if params := t.Parameters(); len(params) > 0 {
		compiled, err := compileSchema(t.Name(), params)
		if err == nil {
			r.schemas[t.Name()] = compiled
		} else {
			delete(r.schemas, t.Name())
		}
	} else {
		delete(r.schemas, t.Name())
	}
	return nil
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	delete(r.schemas, name)
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// All returns every registered tool, for building LLM tool-schema lists.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// Validate checks arguments against the tool's compiled schema, if one is
// present. A tool with no schema (or an uncompilable one) always validates.
func (r *Registry) Validate(name string, arguments map[string]any) error {
	r.mu.RLock()
	schema, ok := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	// jsonschema/v5 validates decoded JSON values (map[string]any is
	// already in that shape), round-tripping through json to normalize
	// numeric types the way a real wire-decoded payload would be.
	raw, err := json.Marshal(arguments)
	if err != nil {
		return fmt.Errorf("toolexec: marshal arguments for %s: %w", name, err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("toolexec: unmarshal arguments for %s: %w", name, err)
	}
	return schema.Validate(v)
}

func compileSchema(name string, params map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return jsonschema.CompileString(name+".schema.json", string(raw))
}
