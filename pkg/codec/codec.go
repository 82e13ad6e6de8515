// Package codec resolves, caches and runs the encode/decode strategy for every Go shape
// that maps to a document value.
package codec

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"strings"

	"github.com/conduit-lang/docmap/pkg/document"
)

// Kind identifies a codec variant. The set is closed: every codec the registry builds is
// one of these.
type Kind int

const (
	KindScalar Kind = iota
	KindEnum
	KindPointer
	KindCollection
	KindArray
	KindMap
	KindEmbedded
	KindReference
	KindDiscriminated
	KindAny
	KindPlaceholder
	KindCustom
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindEnum:
		return "enum"
	case KindPointer:
		return "pointer"
	case KindCollection:
		return "collection"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	case KindEmbedded:
		return "embedded"
	case KindReference:
		return "reference"
	case KindDiscriminated:
		return "discriminated"
	case KindAny:
		return "any"
	case KindPlaceholder:
		return "placeholder"
	case KindCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Codec encodes and decodes values of exactly one Go type.
//
// EncodeValue writes v into the writer's current value slot. DecodeValue is called after
// ReadNextType has positioned the reader on a value and must consume exactly that value;
// v is settable.
type Codec interface {
	Kind() Kind
	EncodeValue(ec *EncodeContext, w *document.Writer, v reflect.Value) error
	DecodeValue(dc *DecodeContext, r *document.Reader, v reflect.Value) error
}

// EncodeContext carries per-call encode state
type EncodeContext struct {
	registry     *Registry
	depth        int
	path         []string
	owners       []string
	discriminate bool
}

func newEncodeContext(reg *Registry) *EncodeContext {
	return &EncodeContext{registry: reg}
}

// Registry returns the registry driving the encode
func (ec *EncodeContext) Registry() *Registry {
	return ec.registry
}

// Path returns the dotted path of the value being encoded
func (ec *EncodeContext) Path() string {
	return strings.Join(ec.path, ".")
}

// RequestDiscriminator asks the next struct encoded in this context to write its
// discriminator
func (ec *EncodeContext) RequestDiscriminator() {
	ec.discriminate = true
}

func (ec *EncodeContext) takeDiscriminator() bool {
	d := ec.discriminate
	ec.discriminate = false
	return d
}

func (ec *EncodeContext) enter() error {
	if ec.depth >= ec.registry.maxDepth {
		return ErrMaxDepth
	}
	ec.depth++
	return nil
}

func (ec *EncodeContext) leave() {
	ec.depth--
}

// fail attributes err to the innermost struct and the current path, once
func (ec *EncodeContext) fail(err error) error {
	var encErr *EncodeError
	if err == nil || errors.As(err, &encErr) {
		return err
	}
	return &EncodeError{Type: top(ec.owners), Path: ec.Path(), Err: err}
}

func (ec *EncodeContext) push(name string) { ec.path = append(ec.path, name) }
func (ec *EncodeContext) pushIndex(i int) { ec.path = append(ec.path, strconv.Itoa(i)) }
func (ec *EncodeContext) pop()            { ec.path = ec.path[:len(ec.path)-1] }

// DecodeContext carries per-operation decode state: the entity cache shared by every
// reference resolved during the operation, the resolver itself and the field path.
type DecodeContext struct {
	Context  context.Context
	Cache    *EntityCache
	Resolver ReferenceResolver

	registry *Registry
	depth    int
	path     []string
	owners   []string
}

// NewDecodeContext starts a decode operation with a fresh entity cache
func (r *Registry) NewDecodeContext(ctx context.Context, resolver ReferenceResolver) *DecodeContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &DecodeContext{
		Context:  ctx,
		Cache:    NewEntityCache(),
		Resolver: resolver,
		registry: r,
	}
}

// Registry returns the registry driving the decode
func (dc *DecodeContext) Registry() *Registry {
	return dc.registry
}

// Path returns the dotted path of the value being decoded
func (dc *DecodeContext) Path() string {
	return strings.Join(dc.path, ".")
}

func (dc *DecodeContext) enter() error {
	if dc.depth >= dc.registry.maxDepth {
		return ErrMaxDepth
	}
	dc.depth++
	return nil
}

func (dc *DecodeContext) leave() {
	dc.depth--
}

// fail attributes err to the innermost struct and the current path, once
func (dc *DecodeContext) fail(err error) error {
	var decErr *DecodeError
	if err == nil || errors.As(err, &decErr) {
		return err
	}
	return &DecodeError{Type: top(dc.owners), Path: dc.Path(), Err: err}
}

func (dc *DecodeContext) push(name string) { dc.path = append(dc.path, name) }
func (dc *DecodeContext) pushIndex(i int) { dc.path = append(dc.path, strconv.Itoa(i)) }
func (dc *DecodeContext) pop()            { dc.path = dc.path[:len(dc.path)-1] }

// withFreshPath runs fn with an empty path and restores the current one afterwards.
// Entities decoded for references report paths relative to themselves.
func (dc *DecodeContext) withFreshPath(fn func() error) error {
	saved, savedDepth := dc.path, dc.depth
	dc.path = nil
	err := fn()
	dc.path, dc.depth = saved, savedDepth
	return err
}

func top(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[len(s)-1]
}
