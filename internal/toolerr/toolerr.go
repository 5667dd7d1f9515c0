// Package toolerr turns Go errors raised while serving a tool call into
// structured MCP error results with a stable code and a recovery hint.
package toolerr

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/mark3labs/mcp-go/mcp"
)

// Code classifies a failure for callers.
type Code string

// Error codes.
const (
	CodeInvalidInput Code = "E_INVALID_INPUT"
	CodeUnknownTool  Code = "E_UNKNOWN_TOOL"
	CodeNotFound     Code = "E_NOT_FOUND"
	CodeStorage      Code = "E_STORAGE"
	CodeEmbedding    Code = "E_EMBEDDING"
	CodeTimeout      Code = "E_TIMEOUT"
	CodeInternal     Code = "E_INTERNAL"
)

// Sentinel errors. Wrap them with %w so CodeFor can classify the chain.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnknownTool  = errors.New("unknown tool")
	ErrNotFound     = errors.New("not found")
	ErrStorage      = errors.New("storage unavailable")
	ErrEmbedding    = errors.New("embedding provider failed")
	ErrInternal     = errors.New("internal error")
)

// ErrorCodes lists every code in a stable order.
func ErrorCodes() []Code {
	return []Code{
		CodeInvalidInput,
		CodeUnknownTool,
		CodeNotFound,
		CodeStorage,
		CodeEmbedding,
		CodeTimeout,
		CodeInternal,
	}
}

var hints = map[Code]string{
	CodeInvalidInput: "Check argument names and lengths against the tool's input schema and retry.",
	CodeUnknownTool:  "Call tools/list to see the available tool names.",
	CodeNotFound:     "Use memory_list or memory_search to find a valid id, then retry.",
	CodeStorage:      "The memory database could not be reached. Run memory_health and retry.",
	CodeEmbedding:    "The embedding provider failed. Lexical search still works; retry later or check credentials.",
	CodeTimeout:      "The operation timed out. Retry with a smaller limit or a narrower spec folder.",
	CodeInternal:     "Unexpected failure. Retry once; if it persists, check the server log.",
}

// RecoveryHintFor returns the user-facing recovery hint for a code.
func RecoveryHintFor(code Code) string {
	if h, ok := hints[code]; ok {
		return h
	}
	return hints[CodeInternal]
}

// CodeFor classifies err by walking its wrap chain.
func CodeFor(err error) Code {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrUnknownTool):
		return CodeUnknownTool
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrStorage):
		return CodeStorage
	case errors.Is(err, ErrEmbedding):
		return CodeEmbedding
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	default:
		return CodeInternal
	}
}

// Payload is the structured body attached to every error result.
type Payload struct {
	Error string         `json:"error"`
	Code  Code           `json:"code"`
	Tool  string         `json:"tool"`
	Hint  string         `json:"hint"`
	Args  []string       `json:"arguments,omitempty"`
	Extra map[string]any `json:"details,omitempty"`
}

// BuildErrorResponse converts err into an IsError tool result. Argument
// values are never echoed back, only their key names.
func BuildErrorResponse(toolName string, err error, args map[string]any) *mcp.CallToolResult {
	if err == nil {
		err = ErrInternal
	}
	code := CodeFor(err)
	p := Payload{
		Error: err.Error(),
		Code:  code,
		Tool:  toolName,
		Hint:  RecoveryHintFor(code),
	}
	for k := range args {
		p.Args = append(p.Args, k)
	}
	slices.Sort(p.Args)

	var d Detailer
	if errors.As(err, &d) {
		p.Extra = d.Details()
	}

	text := fmt.Sprintf("Error: %s\nHint: %s", p.Error, p.Hint)
	return &mcp.CallToolResult{
		Content:           []mcp.Content{mcp.NewTextContent(text)},
		StructuredContent: p,
		IsError:           true,
	}
}

// Detailer is implemented by errors that carry structured details.
type Detailer interface {
	Details() map[string]any
}

// IsErrorResult reports whether r is an error result or nil.
func IsErrorResult(r *mcp.CallToolResult) bool {
	return r == nil || r.IsError
}
