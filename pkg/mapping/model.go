package mapping

import (
	"encoding"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/conduit-lang/docmap/pkg/document"
)

// Shape is the structural classification of a field
type Shape int

const (
	ShapeScalar Shape = iota
	ShapeIdentifier
	ShapeCollection
	ShapeMap
	ShapeArray
	ShapeEmbedded
	ShapeReference
)

// String returns the string representation of the shape
func (s Shape) String() string {
	switch s {
	case ShapeScalar:
		return "scalar"
	case ShapeIdentifier:
		return "identifier"
	case ShapeCollection:
		return "collection"
	case ShapeMap:
		return "map"
	case ShapeArray:
		return "array"
	case ShapeEmbedded:
		return "embedded"
	case ShapeReference:
		return "reference"
	default:
		return "unknown"
	}
}

// MappedField describes one persisted field of a MappedType. Everything except the codec
// handles is fixed when the owning type is built.
type MappedField struct {
	Name        string
	StorageName string
	Type        reflect.Type
	Index       []int
	Shape       Shape

	// Container is the shape of the declared type around a reference target:
	// ShapeScalar for a single reference, otherwise ShapeCollection, ShapeArray or ShapeMap.
	Container Shape
	// Elem is the element type of collections and arrays, the value type of maps and the
	// target type of references and embedded fields, with pointers removed.
	Elem reflect.Type
	// Key is the key type of maps
	Key reflect.Type

	OmitEmpty     bool
	IgnoreMissing bool
	DBRef         bool
	Nullable      bool

	codecs sync.Map // owner -> codec
}

// IsPolymorphic reports whether the field holds values of varying concrete types
func (f *MappedField) IsPolymorphic() bool {
	return f.Elem != nil && f.Elem.Kind() == reflect.Interface
}

// Codec returns the codec cached for owner, if one has been stored
func (f *MappedField) Codec(owner interface{}) (interface{}, bool) {
	return f.codecs.Load(owner)
}

// StoreCodec caches a codec for owner. The first stored codec wins and is returned.
func (f *MappedField) StoreCodec(owner, c interface{}) interface{} {
	actual, _ := f.codecs.LoadOrStore(owner, c)
	return actual
}

// MappedType is the structural model of one mapped struct type. It is never mutated after
// it has been published by a Mapper.
type MappedType struct {
	Type               reflect.Type
	Name               string
	Collection         string
	DiscriminatorKey   string
	Discriminator      string
	AlwaysDiscriminate bool
	Embedded           bool
	Fields             []*MappedField
	ID                 *MappedField

	explicitDiscriminator bool
	byStorage             map[string]*MappedField
	byDeclared            map[string]*MappedField
}

// IsEntity reports whether the type carries an identifier
func (mt *MappedType) IsEntity() bool {
	return mt.ID != nil
}

// FieldByStorageName returns the field persisted under name
func (mt *MappedType) FieldByStorageName(name string) (*MappedField, bool) {
	f, ok := mt.byStorage[name]
	return f, ok
}

// FieldByDeclaredName returns the field declared as name in Go source
func (mt *MappedType) FieldByDeclaredName(name string) (*MappedField, bool) {
	f, ok := mt.byDeclared[name]
	return f, ok
}

// FieldsByStorageName returns a copy of the storage name index
func (mt *MappedType) FieldsByStorageName() map[string]*MappedField {
	result := make(map[string]*MappedField, len(mt.byStorage))
	for k, v := range mt.byStorage {
		result[k] = v
	}
	return result
}

// New allocates a new zero instance and returns a pointer to it
func (mt *MappedType) New() reflect.Value {
	return reflect.New(mt.Type)
}

// FieldValue returns the field f of the struct v, following pointers
func (mt *MappedType) FieldValue(v reflect.Value, f *MappedField) (reflect.Value, error) {
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}, fmt.Errorf("%s: nil value", mt.Name)
		}
		v = v.Elem()
	}
	if v.Type() != mt.Type {
		return reflect.Value{}, fmt.Errorf("%s: got value of type %s", mt.Name, v.Type())
	}
	return v.FieldByIndex(f.Index), nil
}

// IDValue returns the identifier field of v
func (mt *MappedType) IDValue(v reflect.Value) (reflect.Value, error) {
	if mt.ID == nil {
		return reflect.Value{}, &SchemaError{Type: mt.Name, Message: "type has no identifier field"}
	}
	return mt.FieldValue(v, mt.ID)
}

// withAlwaysDiscriminate returns a copy of mt sharing its fields
func (mt *MappedType) withAlwaysDiscriminate(always bool) *MappedType {
	clone := *mt
	clone.AlwaysDiscriminate = always
	return &clone
}

var (
	timeType        = reflect.TypeOf(time.Time{})
	uuidType        = reflect.TypeOf(uuid.UUID{})
	objectIDType    = reflect.TypeOf(primitive.ObjectID{})
	decimalType     = reflect.TypeOf(primitive.Decimal128{})
	binaryType      = reflect.TypeOf(primitive.Binary{})
	regexType       = reflect.TypeOf(primitive.Regex{})
	timestampType   = reflect.TypeOf(primitive.Timestamp{})
	dateTimeType    = reflect.TypeOf(primitive.DateTime(0))
	minKeyType      = reflect.TypeOf(primitive.MinKey{})
	maxKeyType      = reflect.TypeOf(primitive.MaxKey{})
	valueType       = reflect.TypeOf(document.Value{})
	documentType    = reflect.TypeOf(document.Document{})
	arrayType       = reflect.TypeOf(document.Array{})
	bytesType       = reflect.TypeOf([]byte(nil))
	textMarshaler   = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	textUnmarshaler = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// IsWellKnownScalar reports whether t is persisted as a single tagged value even though its
// Go kind is a struct, array or slice
func IsWellKnownScalar(t reflect.Type) bool {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t {
	case timeType, uuidType, objectIDType, decimalType, binaryType, regexType, timestampType,
		dateTimeType, minKeyType, maxKeyType, valueType, documentType, arrayType, bytesType:
		return true
	}
	return IsEnum(t)
}

// IsEnum reports whether t round trips through its text form
func IsEnum(t reflect.Type) bool {
	pt := reflect.PtrTo(t)
	return t.Implements(textMarshaler) && pt.Implements(textUnmarshaler)
}

func deref(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

func isNullable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.Map, reflect.Interface:
		return true
	}
	return false
}

// classify derives the shape of a declared field. First match wins: identifier, reference,
// embedded, collection/map/array, scalar.
func classify(fi FieldInfo) (shape, container Shape, elem, key reflect.Type) {
	t := fi.Type
	switch {
	case fi.Markers.ID:
		return ShapeIdentifier, ShapeScalar, deref(t), nil
	case fi.Markers.Reference:
		dt := deref(t)
		switch dt.Kind() {
		case reflect.Slice:
			return ShapeReference, ShapeCollection, deref(dt.Elem()), nil
		case reflect.Array:
			return ShapeReference, ShapeArray, deref(dt.Elem()), nil
		case reflect.Map:
			return ShapeReference, ShapeMap, deref(dt.Elem()), dt.Key()
		}
		return ShapeReference, ShapeScalar, dt, nil
	case fi.Markers.Embedded:
		return ShapeEmbedded, ShapeScalar, deref(t), nil
	}

	if IsWellKnownScalar(t) {
		return ShapeScalar, ShapeScalar, nil, nil
	}

	dt := deref(t)
	switch dt.Kind() {
	case reflect.Slice:
		return ShapeCollection, ShapeScalar, deref(dt.Elem()), nil
	case reflect.Array:
		return ShapeArray, ShapeScalar, deref(dt.Elem()), nil
	case reflect.Map:
		return ShapeMap, ShapeScalar, deref(dt.Elem()), dt.Key()
	case reflect.Struct:
		return ShapeEmbedded, ShapeScalar, dt, nil
	case reflect.Interface:
		if dt.NumMethod() > 0 {
			return ShapeEmbedded, ShapeScalar, dt, nil
		}
	}
	return ShapeScalar, ShapeScalar, nil, nil
}
