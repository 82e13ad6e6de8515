package criteria

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownField is returned when a path segment does not resolve against the model
	ErrUnknownField = errors.New("unknown field")

	// ErrIncompatibleValue is returned under strict type validation when an operator
	// cannot take the supplied value
	ErrIncompatibleValue = errors.New("incompatible value")

	// ErrEmptyPath is returned for an empty field path
	ErrEmptyPath = errors.New("empty field path")

	// ErrMatchesNothing is returned for an OR without alternatives, or a NOR excluding an
	// alternative that matches every document. Neither has a query document form.
	ErrMatchesNothing = errors.New("criteria match no document")
)

// UnknownFieldError names the segment that failed to resolve
type UnknownFieldError struct {
	Type    string
	Path    string
	Segment string
}

// Error implements the error interface
func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("%s: field %q of path %q does not exist", e.Type, e.Segment, e.Path)
}

// Is reports whether target is ErrUnknownField
func (e *UnknownFieldError) Is(target error) bool {
	return target == ErrUnknownField
}

// ValueError describes an operator and value that do not fit together
type ValueError struct {
	Path     string
	Operator Operator
	Message  string
}

// Error implements the error interface
func (e *ValueError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Path, e.Operator, e.Message)
}

// Is reports whether target is ErrIncompatibleValue
func (e *ValueError) Is(target error) bool {
	return target == ErrIncompatibleValue
}

// IsUnknownField returns true if err is or wraps an UnknownFieldError
func IsUnknownField(err error) bool {
	return errors.Is(err, ErrUnknownField)
}

// IsIncompatibleValue returns true if err is or wraps a ValueError
func IsIncompatibleValue(err error) bool {
	return errors.Is(err, ErrIncompatibleValue)
}
