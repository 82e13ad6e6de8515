package mapping

import (
	"errors"
	"strings"
)

// ErrSchema is returned when a mapped type violates a structural invariant
var ErrSchema = errors.New("invalid mapping schema")

// SchemaError describes why a type cannot be mapped. It is fatal for the type:
// resolution keeps failing until the type declaration is fixed.
type SchemaError struct {
	Type    string
	Field   string
	Message string
	Hint    string
}

// Error implements the error interface
func (e *SchemaError) Error() string {
	var b strings.Builder

	if e.Type != "" {
		b.WriteString(e.Type)
		if e.Field != "" {
			b.WriteString(".")
			b.WriteString(e.Field)
		}
		b.WriteString(": ")
	}

	b.WriteString(e.Message)

	if e.Hint != "" {
		b.WriteString("\n  hint: ")
		b.WriteString(e.Hint)
	}

	return b.String()
}

// Is reports whether target is ErrSchema
func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}

// IsSchemaError returns true if err is or wraps a SchemaError
func IsSchemaError(err error) bool {
	return errors.Is(err, ErrSchema)
}
