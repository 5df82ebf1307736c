// Package tools implements the tool registry and dispatch fabric: a
// name -> Tool map, size/name guards, and catch-and-wrap
// execution so a panicking or erroring tool never crashes a turn.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/nexuscore/agentrt/pkg/models"
)

func jsonToReader(payload []byte) io.Reader {
	return bytes.NewReader(payload)
}

// Tool limits guard against pathological tool names and oversized params.
const (
	MaxToolNameLength = 256
	MaxToolParamsSize = 10 << 20 // 10MB
)

// Spec describes a tool's name, description, and JSON-schema parameters as
// presented to the model.
type Spec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Tool is anything the turn driver can dispatch a model-issued ToolCall to.
type Tool interface {
	Spec() Spec
	Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error)
}

// Registry is a name -> Tool map with dispatch guards. It holds no lock:
// Get, AsLLMTools and Execute only read the map and may run concurrently
// with each other, while Register and Unregister write it unguarded.
type Registry struct {
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
	order   []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool), schemas: make(map[string]*jsonschema.Schema)}
}

// Register adds a tool, rejecting duplicate names so two families can never
// silently shadow each other. The tool's Parameters schema is compiled once
// at registration time so dispatch-time validation never pays that cost.
func (r *Registry) Register(t Tool) error {
	spec := t.Spec()
	name := spec.Name
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tools: tool %q already registered", name)
	}
	schema, err := compileParamSchema(name, spec.Parameters)
	if err != nil {
		return fmt.Errorf("tools: compile schema for %q: %w", name, err)
	}
	r.tools[name] = t
	r.schemas[name] = schema
	r.order = append(r.order, name)
	return nil
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	if _, ok := r.tools[name]; !ok {
		return
	}
	delete(r.tools, name)
	delete(r.schemas, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// compileParamSchema compiles a tool's declared JSON-schema parameters. A
// nil/empty schema means "accept anything" and compiles to nil.
func compileParamSchema(name string, params map[string]any) (*jsonschema.Schema, error) {
	if len(params) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	resourceName := name + ".schema.json"
	if err := compiler.AddResource(resourceName, jsonToReader(payload)); err != nil {
		return nil, err
	}
	return compiler.Compile(resourceName)
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// AsLLMTools returns every registered tool's Spec in registration order, the
// shape a model provider needs to advertise available tools.
func (r *Registry) AsLLMTools() []Spec {
	specs := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.tools[name].Spec())
	}
	return specs
}

// Execute runs a named tool with guards on name length, parameter size, and
// unknown-tool lookups. It never returns a non-nil error for well-formed
// calls against a registered tool: failures are surfaced as an IsError
// result so the turn loop can feed them back to the model.
func (r *Registry) Execute(ctx context.Context, name string, params json.RawMessage) (result *models.ToolResult, err error) {
	if len(name) > MaxToolNameLength {
		return &models.ToolResult{
			Content: fmt.Sprintf("tool name exceeds maximum length of %d characters", MaxToolNameLength),
			IsError: true,
		}, nil
	}
	if len(params) > MaxToolParamsSize {
		return &models.ToolResult{
			Content: fmt.Sprintf("tool parameters exceed maximum size of %d bytes", MaxToolParamsSize),
			IsError: true,
		}, nil
	}

	t, ok := r.tools[name]
	if !ok {
		return &models.ToolResult{Content: "tool not found: " + name, IsError: true}, nil
	}

	if schema := r.schemas[name]; schema != nil {
		var decoded any
		if len(params) == 0 {
			decoded = map[string]any{}
		} else if err := json.Unmarshal(params, &decoded); err != nil {
			return &models.ToolResult{Content: fmt.Sprintf("tool %s: invalid parameter JSON: %v", name, err), IsError: true}, nil
		}
		if err := schema.Validate(decoded); err != nil {
			return &models.ToolResult{Content: fmt.Sprintf("tool %s: parameters failed schema validation: %v", name, err), IsError: true}, nil
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = &models.ToolResult{Content: fmt.Sprintf("tool %s panicked: %v", name, rec), IsError: true}
			err = nil
		}
	}()

	res, execErr := t.Execute(ctx, params)
	if execErr != nil {
		return &models.ToolResult{Content: execErr.Error(), IsError: true}, nil
	}
	return res, nil
}
