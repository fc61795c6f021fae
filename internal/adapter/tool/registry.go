package tool

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Majhi12/atomic-crm/internal/domain"
)

type compiledTool struct {
	def    domain.ToolDefinition
	schema *jsonschema.Schema
}

// Registry holds the enabled tool definitions with their compiled schemas.
// It is built once at start-up and read concurrently afterwards.
type Registry struct {
	order  []domain.ToolName
	byName map[domain.ToolName]compiledTool
}

// NewRegistry compiles the schema of every enabled definition. Disabled
// definitions are skipped so nothing outside the model's catalogue can be
// dispatched.
func NewRegistry(defs []domain.ToolDefinition) (*Registry, error) {
	r := &Registry{byName: make(map[domain.ToolName]compiledTool, len(defs))}
	for _, d := range defs {
		if !d.Enabled {
			continue
		}
		if _, dup := r.byName[d.Name]; dup {
			return nil, fmt.Errorf("tool %q already registered", d.Name)
		}
		compiled, err := compileSchema(string(d.Name), d.Schema)
		if err != nil {
			return nil, err
		}
		r.order = append(r.order, d.Name)
		r.byName[d.Name] = compiledTool{def: d, schema: compiled}
	}
	return r, nil
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	url := name + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource for %q: %w", name, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", name, err)
	}
	return compiled, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name domain.ToolName) bool {
	_, ok := r.byName[name]
	return ok
}

// Names returns the registered tool names in catalogue order.
func (r *Registry) Names() []domain.ToolName {
	return append([]domain.ToolName(nil), r.order...)
}

// Schemas returns the tool schemas presented to the model, in catalogue order.
func (r *Registry) Schemas() []domain.ToolSchema {
	out := make([]domain.ToolSchema, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.byName[n].def.ToolSchema())
	}
	return out
}

// checkSchema validates a normalized argument value against the tool's schema.
func (r *Registry) checkSchema(name domain.ToolName, v any) error {
	ct, ok := r.byName[name]
	if !ok {
		return domain.NewDomainError("Registry.Validate", domain.ErrToolNotFound, string(name))
	}
	if ct.schema == nil {
		return nil
	}
	// Round-trip through JSON so the validator sees plain maps; json.Number
	// keeps large ids exact.
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return ct.schema.Validate(doc)
}
