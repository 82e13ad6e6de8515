package document

import (
	"errors"
	"fmt"
)

var (
	// ErrTypeMismatch is returned when a typed read does not match the positional value
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrInvalidState is returned when a reader or writer operation is not valid in the current context
	ErrInvalidState = errors.New("invalid reader/writer state")

	// ErrIncomplete is returned when the writer root is requested before the outermost context was closed
	ErrIncomplete = errors.New("document is incomplete")

	// ErrForeignBookmark is returned when a bookmark is reset on a reader that did not create it
	ErrForeignBookmark = errors.New("bookmark belongs to a different reader")

	// ErrUnsupportedValue is returned when a Go value has no document representation
	ErrUnsupportedValue = errors.New("unsupported value")
)

// TypeMismatchError describes a typed read of the wrong tag
type TypeMismatchError struct {
	Expected Tag
	Actual   Tag
	Name     string
}

// Error implements the error interface
func (e *TypeMismatchError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("type mismatch at %q: expected %s, found %s", e.Name, e.Expected, e.Actual)
	}
	return fmt.Sprintf("type mismatch: expected %s, found %s", e.Expected, e.Actual)
}

// Is lets errors.Is match ErrTypeMismatch
func (e *TypeMismatchError) Is(target error) bool {
	return target == ErrTypeMismatch
}

// StateError describes a reader or writer misuse
type StateError struct {
	Op      string
	Message string
}

// Error implements the error interface
func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Is lets errors.Is match ErrInvalidState
func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}

// IsTypeMismatch returns true if the error is a type mismatch
func IsTypeMismatch(err error) bool {
	return errors.Is(err, ErrTypeMismatch)
}
