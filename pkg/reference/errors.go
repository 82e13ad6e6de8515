package reference

import (
	"errors"
	"fmt"

	"github.com/conduit-lang/docmap/pkg/document"
)

// ErrReferenceNotFound is returned when a referenced document does not exist and the
// reference does not ignore missing targets
var ErrReferenceNotFound = errors.New("referenced document not found")

// NotFoundError describes a reference whose target is missing
type NotFoundError struct {
	Type       string
	Collection string
	ID         document.Value
	Path       string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("reference %s at %s: %s %s not found", e.Type, e.Path, e.Collection, e.ID)
	}
	return fmt.Sprintf("reference %s: %s %s not found", e.Type, e.Collection, e.ID)
}

// Is lets errors.Is match ErrReferenceNotFound
func (e *NotFoundError) Is(target error) bool {
	return target == ErrReferenceNotFound
}

// IsNotFound returns true if the error is a missing reference
func IsNotFound(err error) bool {
	return errors.Is(err, ErrReferenceNotFound)
}
