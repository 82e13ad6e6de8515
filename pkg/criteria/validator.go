// Package criteria validates query paths against the type model and builds query
// documents from predicate trees.
package criteria

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/conduit-lang/docmap/pkg/codec"
	"github.com/conduit-lang/docmap/pkg/document"
	"github.com/conduit-lang/docmap/pkg/mapping"
)

// ResolvedPath is a field path translated to storage names
type ResolvedPath struct {
	// Path is the storage form of the path
	Path string
	// Declared is the path as given
	Declared string
	// Field is the last field resolved by name, nil when none was
	Field *mapping.MappedField
	// Owner is the type that declares Field
	Owner *mapping.MappedType
	// Elem is the mapped type the path addresses, when it addresses documents
	Elem *mapping.MappedType
	// ReferenceID reports whether the path ends at the identifier of a reference
	ReferenceID bool
	// Resolved reports whether every named segment was checked against the model
	Resolved bool
	// Warnings holds the incompatibilities accepted by permissive type validation
	Warnings []string
}

// Validator resolves query paths and checks operator values
type Validator struct {
	reg           *codec.Registry
	mapper        *mapping.Mapper
	validateNames bool
	strictTypes   bool
	logger        *zap.Logger
}

// Option configures a Validator
type Option func(*Validator)

// WithValidateNames controls whether unresolvable segments fail. When disabled they are
// passed through unchanged.
func WithValidateNames(validate bool) Option {
	return func(v *Validator) {
		v.validateNames = validate
	}
}

// WithStrictTypes controls whether an incompatible operator value fails. When disabled the
// incompatibility is logged and recorded on the ResolvedPath.
func WithStrictTypes(strict bool) Option {
	return func(v *Validator) {
		v.strictTypes = strict
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// NewValidator creates a validator over the registry's model. Names and types are
// validated strictly unless configured otherwise.
func NewValidator(reg *codec.Registry, opts ...Option) *Validator {
	v := &Validator{
		reg:           reg,
		mapper:        reg.Mapper(),
		validateNames: true,
		strictTypes:   true,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate resolves path against target and checks that op accepts value
func (v *Validator) Validate(target reflect.Type, path string, op Operator, value interface{}) (*ResolvedPath, error) {
	rp, err := v.Resolve(target, path)
	if err != nil {
		return nil, err
	}
	if msg := checkValue(rp, op, value); msg != "" {
		if v.strictTypes {
			return nil, &ValueError{Path: rp.Declared, Operator: op, Message: msg}
		}
		v.logger.Warn("incompatible query value",
			zap.String("path", rp.Declared),
			zap.Stringer("operator", op),
			zap.String("reason", msg),
		)
		rp.Warnings = append(rp.Warnings, msg)
	}
	return rp, nil
}

// walk is what the next path segment may name
type walk struct {
	mt       *mapping.MappedType
	mapValue reflect.Type
	ref      *mapping.MappedField
	opaque   bool
}

// Resolve translates path to storage names without checking a value. A nil target
// resolves nothing and passes every segment through.
func (v *Validator) Resolve(target reflect.Type, path string) (*ResolvedPath, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	segments := strings.Split(path, ".")
	rp := &ResolvedPath{Declared: path, Resolved: target != nil}

	cur := walk{opaque: true}
	if target != nil {
		for target.Kind() == reflect.Ptr {
			target = target.Elem()
		}
		mt, err := v.mapper.Resolve(target)
		if err != nil {
			return nil, err
		}
		cur = walk{mt: mt}
	}

	stored := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == "" {
			return nil, fmt.Errorf("%w: %q", ErrEmptyPath, path)
		}

		switch {
		case isPositional(seg):
			stored = append(stored, seg)
			continue
		case cur.mapValue != nil:
			stored = append(stored, seg)
			next, err := v.walkType(cur.mapValue)
			if err != nil {
				return nil, err
			}
			cur = next
			continue
		case cur.opaque:
			stored = append(stored, seg)
			rp.Resolved = false
			continue
		case cur.ref != nil:
			name, err := v.referenceSegment(rp, cur.ref, seg)
			if err != nil {
				return nil, err
			}
			if name == "" {
				rp.Resolved = false
				stored = append(stored, seg)
				cur = walk{opaque: true}
				continue
			}
			if name != "." {
				stored = append(stored, name)
			}
			rp.ReferenceID = true
			cur = walk{}
			continue
		case cur.mt == nil:
			if err := v.unknown(rp, typeName(rp.Field), seg); err != nil {
				return nil, err
			}
			stored = append(stored, seg)
			cur = walk{opaque: true}
			continue
		}

		f, ok := cur.mt.FieldByDeclaredName(seg)
		if !ok {
			f, ok = cur.mt.FieldByStorageName(seg)
		}
		if !ok {
			if err := v.unknown(rp, cur.mt.Name, seg); err != nil {
				return nil, err
			}
			stored = append(stored, seg)
			cur = walk{opaque: true}
			continue
		}

		stored = append(stored, f.StorageName)
		rp.Field = f
		rp.Owner = cur.mt
		rp.ReferenceID = false

		if f.Shape == mapping.ShapeReference {
			cur = walk{ref: f}
			continue
		}
		next, err := v.walkType(f.Type)
		if err != nil {
			return nil, err
		}
		cur = next
	}

	rp.Path = strings.Join(stored, ".")
	rp.Elem = cur.mt
	return rp, nil
}

func (v *Validator) unknown(rp *ResolvedPath, owner, seg string) error {
	if v.validateNames {
		return &UnknownFieldError{Type: owner, Path: rp.Declared, Segment: seg}
	}
	v.logger.Debug("passing unresolved path segment through",
		zap.String("path", rp.Declared),
		zap.String("segment", seg),
	)
	rp.Resolved = false
	return nil
}

// referenceSegment maps the segment following a reference field. Only the identifier may
// follow: a bare reference stores the id under the field itself, returned as ".", and a
// DBRef stores it under $id.
func (v *Validator) referenceSegment(rp *ResolvedPath, f *mapping.MappedField, seg string) (string, error) {
	dbref := f.DBRef || f.IsPolymorphic()
	idNames := []string{mapping.IDStorageName}
	if !f.IsPolymorphic() {
		if mt, err := v.mapper.Resolve(f.Elem); err == nil && mt.ID != nil {
			idNames = append(idNames, mt.ID.Name)
		}
	}

	switch {
	case dbref && (seg == codec.DBRefIDKey || seg == codec.DBRefCollectionKey):
		return seg, nil
	case containsString(idNames, seg):
		if dbref {
			return codec.DBRefIDKey, nil
		}
		return ".", nil
	}
	if err := v.unknown(rp, mapping.TypeName(f.Elem), seg); err != nil {
		return "", err
	}
	return "", nil
}

// walkType returns what may follow a field of type t
func (v *Validator) walkType(t reflect.Type) (walk, error) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t {
	case documentType, valueType, arrayType:
		return walk{opaque: true}, nil
	}
	if mapping.IsWellKnownScalar(t) {
		return walk{}, nil
	}

	switch t.Kind() {
	case reflect.Struct:
		mt, err := v.mapper.Resolve(t)
		if err != nil {
			return walk{}, err
		}
		return walk{mt: mt}, nil
	case reflect.Map:
		return walk{mapValue: t.Elem()}, nil
	case reflect.Slice, reflect.Array:
		return v.walkType(t.Elem())
	case reflect.Interface:
		return walk{opaque: true}, nil
	}
	return walk{}, nil
}

var (
	documentType = reflect.TypeOf(document.Document{})
	valueType    = reflect.TypeOf(document.Value{})
	arrayType    = reflect.TypeOf(document.Array{})
	regexpType   = reflect.TypeOf(regexp.Regexp{})
	bsonRegex    = reflect.TypeOf(primitive.Regex{})
)

// isPositional reports whether seg is an array position or filter token
func isPositional(seg string) bool {
	if seg == "$" || seg == "$[]" {
		return true
	}
	if strings.HasPrefix(seg, "$[") && strings.HasSuffix(seg, "]") {
		return true
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func typeName(f *mapping.MappedField) string {
	if f == nil {
		return ""
	}
	return mapping.TypeName(f.Type)
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
