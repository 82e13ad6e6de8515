package codec

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCodecResolution is returned when no codec can be built for a shape
	ErrCodecResolution = errors.New("codec resolution failed")

	// ErrMaxDepth is returned when an encode or decode nests deeper than the configured limit
	ErrMaxDepth = errors.New("maximum nesting depth exceeded")

	// ErrUnknownDiscriminator is returned when a stored discriminator names no registered type
	ErrUnknownDiscriminator = errors.New("unknown discriminator")

	// ErrInvalidTarget is returned when a decode destination is not a non-nil pointer
	ErrInvalidTarget = errors.New("decode target must be a non-nil pointer")

	// ErrNoResolver is returned when a reference needs resolving and none is available
	ErrNoResolver = errors.New("no reference resolver available")
)

// ResolutionError reports a shape for which no codec could be built. Like a schema error it
// means the mapping configuration is invalid.
type ResolutionError struct {
	Type   string
	Path   string
	Reason string
	Err    error
}

// Error implements the error interface
func (e *ResolutionError) Error() string {
	var b strings.Builder
	b.WriteString("no codec for ")
	b.WriteString(e.Type)
	if e.Path != "" {
		b.WriteString(" at ")
		b.WriteString(e.Path)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is reports whether target is ErrCodecResolution
func (e *ResolutionError) Is(target error) bool {
	return target == ErrCodecResolution
}

// Unwrap returns the underlying cause
func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// EncodeError wraps a failure while encoding the field at Path of Type
type EncodeError struct {
	Type string
	Path string
	Err  error
}

// Error implements the error interface
func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s.%s: %v", e.Type, e.Path, e.Err)
}

// Unwrap returns the underlying cause
func (e *EncodeError) Unwrap() error {
	return e.Err
}

// DecodeError wraps a failure while decoding the field at Path of Type
type DecodeError struct {
	Type string
	Path string
	Err  error
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("decode %s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("decode %s.%s: %v", e.Type, e.Path, e.Err)
}

// Unwrap returns the underlying cause
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsResolutionError returns true if err is or wraps a ResolutionError
func IsResolutionError(err error) bool {
	return errors.Is(err, ErrCodecResolution)
}
