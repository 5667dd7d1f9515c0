package server

import (
	"fmt"
	"unicode/utf8"

	"github.com/HendryAvila/recall/internal/toolerr"
)

// fieldLimit caps the rune length of one string argument.
type fieldLimit struct {
	field string
	max   int
}

// inputLimits are checked in this order; the first violation wins.
var inputLimits = []fieldLimit{
	{"query", 10000},
	{"prompt", 10000},
	{"title", 500},
	{"filePath", 500},
	{"specFolder", 500},
}

// ValidationError reports an argument that exceeds its length limit.
type ValidationError struct {
	Field string
	Max   int
	Got   int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s exceeds %d characters (got %d)", e.Field, e.Max, e.Got)
}

func (e *ValidationError) Unwrap() error { return toolerr.ErrInvalidInput }

// Details implements toolerr.Detailer.
func (e *ValidationError) Details() map[string]any {
	return map[string]any{"field": e.Field, "max": e.Max, "got": e.Got}
}

// ValidateInput enforces the length limits on well-known string arguments.
// Non-string values are left to the tool handlers.
func ValidateInput(args map[string]any) error {
	for _, l := range inputLimits {
		s, ok := args[l.field].(string)
		if !ok {
			continue
		}
		if n := utf8.RuneCountInString(s); n > l.max {
			return &ValidationError{Field: l.field, Max: l.max, Got: n}
		}
	}
	return nil
}
