// ABOUTME: Tool contract exposed over MCP: descriptor, call, and text result.
// ABOUTME: Instance wraps a tool so panics become error results instead of crashing a transport.

package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/uaxd/mcp-gateway/internal/jsonwire"
)

// DefaultInputSchema is used by descriptors that do not declare a schema.
const DefaultInputSchema = `{"type":"object","properties":{"input":{"type":"string"}},"required":["input"]}`

// Descriptor is the immutable, listable description of a tool.
type Descriptor struct {
	Name        string
	Description string
	InputSchema *jsonwire.Object
}

// NewDescriptor parses schema once. An empty or malformed schema falls back to
// DefaultInputSchema; an empty description becomes "No description".
func NewDescriptor(name, description, schema string) Descriptor {
	if description == "" {
		description = "No description"
	}
	parsed := jsonwire.ParseString(schema)
	if parsed.IsEmpty() {
		parsed = jsonwire.ParseString(DefaultInputSchema)
	}
	return Descriptor{Name: name, Description: description, InputSchema: parsed}
}

// Object renders the descriptor as a tools/list entry.
func (d Descriptor) Object() *jsonwire.Object {
	return jsonwire.NewObject().
		Set("name", d.Name).
		Set("description", d.Description).
		Set("inputSchema", d.InputSchema)
}

// Result is the text outcome of a tool call. IsError marks tool-level failures,
// which are still successful protocol responses.
type Result struct {
	Content string
	IsError bool
}

// Text returns a successful result.
func Text(content string) Result {
	return Result{Content: content}
}

// Errorf returns an error result.
func Errorf(format string, args ...any) Result {
	return Result{Content: fmt.Sprintf(format, args...), IsError: true}
}

// Object renders the result in the tools/call shape.
func (r Result) Object() *jsonwire.Object {
	content := []any{jsonwire.NewObject().Set("type", "text").Set("text", r.Content)}
	obj := jsonwire.NewObject().Set("content", content)
	if r.IsError {
		obj.Set("isError", true)
	}
	return obj
}

// Tool is a callable capability backed by an external service.
type Tool interface {
	Descriptor() Descriptor
	Call(ctx context.Context, args *jsonwire.Object) Result
}

// Instance pairs a tool with its descriptor, read once.
type Instance struct {
	tool       Tool
	descriptor Descriptor
	logger     *slog.Logger
}

// NewInstance wraps t.
func NewInstance(t Tool, logger *slog.Logger) *Instance {
	if logger == nil {
		logger = slog.Default()
	}
	d := t.Descriptor()
	return &Instance{
		tool:       t,
		descriptor: d,
		logger:     logger.With("tool", d.Name),
	}
}

// Name returns the tool name.
func (i *Instance) Name() string { return i.descriptor.Name }

// Descriptor returns the tool descriptor.
func (i *Instance) Descriptor() Descriptor { return i.descriptor }

// Execute calls the tool. Nil args are passed as an empty object.
func (i *Instance) Execute(ctx context.Context, args *jsonwire.Object) (res Result) {
	if args == nil {
		args = jsonwire.NewObject()
	}
	start := time.Now()
	i.logger.Info("executing tool")

	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("tool panicked", "panic", r)
			res = Errorf("Error executing tool: %v", r)
		}
		i.logger.Debug("tool finished", "is_error", res.IsError, "duration", time.Since(start))
	}()
	return i.tool.Call(ctx, args)
}
