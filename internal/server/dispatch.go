package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/HendryAvila/recall/internal/toolerr"
)

// Resolver maps a tool name to its handler.
type Resolver interface {
	Resolve(name string) (server.ToolHandlerFunc, bool)
}

// UnknownToolError is returned for names no handler is registered under.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string { return fmt.Sprintf("unknown tool: %s", e.Name) }

func (e *UnknownToolError) Unwrap() error { return toolerr.ErrUnknownTool }

// Dispatcher routes a call to the handler registered for its name.
type Dispatcher struct {
	resolver Resolver
	schemas  map[string]*jsonschema.Schema
}

// NewDispatcher creates a Dispatcher over resolver.
func NewDispatcher(resolver Resolver) *Dispatcher {
	return &Dispatcher{resolver: resolver}
}

// WithStrictSchemas compiles the input schema of every tool and validates
// each call's arguments against it before dispatch.
func (d *Dispatcher) WithStrictSchemas(tools []mcp.Tool) (*Dispatcher, error) {
	schemas := make(map[string]*jsonschema.Schema, len(tools))
	c := jsonschema.NewCompiler()
	for _, t := range tools {
		raw, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("server: marshal schema of %s: %w", t.Name, err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("server: unmarshal schema of %s: %w", t.Name, err)
		}
		url := t.Name + ".json"
		if err := c.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("server: add schema of %s: %w", t.Name, err)
		}
		sch, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("server: compile schema of %s: %w", t.Name, err)
		}
		schemas[t.Name] = sch
	}
	d.schemas = schemas
	return d, nil
}

// Dispatch runs the handler of name with the raw argument map. A handler
// panic or a handler returning neither result nor error becomes an error.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any) (res *mcp.CallToolResult, err error) {
	h, ok := d.resolver.Resolve(name)
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}
	if err := d.checkSchema(name, args); err != nil {
		return nil, err
	}

	defer func() {
		if p := recover(); p != nil {
			res = nil
			err = fmt.Errorf("tool %s panicked: %v: %w", name, p, toolerr.ErrInternal)
		}
	}()

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err = h(ctx, req)
	if err == nil && res == nil {
		return nil, fmt.Errorf("tool %s returned no result: %w", name, toolerr.ErrInternal)
	}
	return res, err
}

func (d *Dispatcher) checkSchema(name string, args map[string]any) error {
	sch, ok := d.schemas[name]
	if !ok {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	// Round-trip so numbers reach the validator as json.Number.
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", toolerr.ErrInvalidInput)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", toolerr.ErrInvalidInput)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("arguments do not match the %s schema: %v: %w", name, err, toolerr.ErrInvalidInput)
	}
	return nil
}
