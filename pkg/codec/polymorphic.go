package codec

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/conduit-lang/docmap/pkg/document"
	"github.com/conduit-lang/docmap/pkg/mapping"
)

// isMappedStruct reports whether values of t are encoded by a struct codec
func isMappedStruct(t reflect.Type) bool {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct && !mapping.IsWellKnownScalar(t)
}

// specialize encodes the dynamic value held by an interface with the codec of its runtime
// type. Struct values are asked to write their discriminator since the declared type is
// not their own.
func specialize(ec *EncodeContext, w *document.Writer, v reflect.Value) error {
	if v.IsNil() {
		return w.WriteNull()
	}
	concrete := v.Elem()
	c, err := ec.registry.Lookup(concrete.Type())
	if err != nil {
		return err
	}
	if isMappedStruct(concrete.Type()) {
		if concrete.Kind() == reflect.Ptr && concrete.IsNil() {
			return w.WriteNull()
		}
		ec.RequestDiscriminator()
	}
	return c.EncodeValue(ec, w, concrete)
}

// peekDiscriminator looks ahead into the pending document for a discriminator and rewinds
// the reader to the document before returning. A string under the default key wins. Under
// another type's key the first value naming a type that uses that key is taken, and only
// when none does is the first such value returned.
func peekDiscriminator(r *document.Reader, mapper *mapping.Mapper) (string, bool, error) {
	mark := r.Mark()
	found, value, err := scanDiscriminator(r, mapper)
	if resetErr := r.Reset(mark); resetErr != nil {
		return "", false, resetErr
	}
	return value, found, err
}

func scanDiscriminator(r *document.Reader, mapper *mapping.Mapper) (bool, string, error) {
	if err := r.ReadStartDocument(); err != nil {
		return false, "", err
	}
	var (
		keys              = mapper.DiscriminatorKeys()
		primary           = mapper.DiscriminatorKey()
		first, registered string
		haveFirst, known  bool
	)
	for {
		tag, err := r.ReadNextType()
		if err != nil {
			return false, "", err
		}
		if tag == document.TagEnd {
			break
		}
		name := r.CurrentName()
		if tag != document.TagString || !containsKey(keys, name) {
			if err := r.SkipValue(); err != nil {
				return false, "", err
			}
			continue
		}
		s, err := r.ReadString()
		if err != nil {
			return false, "", err
		}
		if name == primary {
			return true, s, nil
		}
		if !known && usesKey(mapper, s, name) {
			registered, known = s, true
		}
		if !haveFirst {
			first, haveFirst = s, true
		}
	}
	if known {
		return true, registered, nil
	}
	return haveFirst, first, nil
}

// usesKey reports whether value names a registered type whose discriminator lives under key
func usesKey(mapper *mapping.Mapper, value, key string) bool {
	t, ok := mapper.TypeForDiscriminator(value)
	if !ok {
		return false
	}
	mt, ok := mapper.Cached(t)
	return ok && mt.DiscriminatorKey == key
}

func containsKey(keys []string, name string) bool {
	for _, k := range keys {
		if k == name {
			return true
		}
	}
	return false
}

// concreteFor returns a settable value of a registered type assignable to iface
func concreteFor(t, iface reflect.Type) (inst reflect.Value, assign reflect.Value, err error) {
	switch {
	case t.AssignableTo(iface):
		inst = reflect.New(t).Elem()
		return inst, inst, nil
	case reflect.PtrTo(t).AssignableTo(iface):
		ptr := reflect.New(t)
		return ptr.Elem(), ptr, nil
	}
	return reflect.Value{}, reflect.Value{}, fmt.Errorf("%s does not implement %s", t, iface)
}

// discriminatedCodec handles interface types with methods. The concrete type is chosen by
// the stored discriminator on decode and by the runtime value on encode.
type discriminatedCodec struct {
	t reflect.Type
}

func (c *discriminatedCodec) Kind() Kind { return KindDiscriminated }

func (c *discriminatedCodec) EncodeValue(ec *EncodeContext, w *document.Writer, v reflect.Value) error {
	if !v.IsNil() && !isMappedStruct(v.Elem().Type()) {
		return fmt.Errorf("polymorphic value of type %s must be a struct", v.Elem().Type())
	}
	return specialize(ec, w, v)
}

func (c *discriminatedCodec) DecodeValue(dc *DecodeContext, r *document.Reader, v reflect.Value) error {
	switch r.CurrentType() {
	case document.TagNull:
		v.Set(reflect.Zero(c.t))
		return r.ReadNull()
	case document.TagDocument:
	default:
		return &document.TypeMismatchError{Expected: document.TagDocument, Actual: r.CurrentType(), Name: r.CurrentName()}
	}

	mapper := dc.registry.mapper
	disc, found, err := peekDiscriminator(r, mapper)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: document for %s has no discriminator", ErrUnknownDiscriminator, c.t)
	}
	t, ok := mapper.TypeForDiscriminator(disc)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDiscriminator, disc)
	}
	return decodeConcrete(dc, r, v, t)
}

func decodeConcrete(dc *DecodeContext, r *document.Reader, v reflect.Value, t reflect.Type) error {
	inst, assign, err := concreteFor(t, v.Type())
	if err != nil {
		return err
	}
	codec, err := dc.registry.Lookup(t)
	if err != nil {
		return err
	}
	if err := codec.DecodeValue(dc, r, inst); err != nil {
		return err
	}
	v.Set(assign)
	return nil
}

// anyCodec handles the empty interface. Registered structs keep their type through the
// discriminator; everything else decodes to its natural Go form.
type anyCodec struct {
	t reflect.Type
}

var (
	mapAnyType   = reflect.TypeOf(map[string]interface{}(nil))
	sliceAnyType = reflect.TypeOf([]interface{}(nil))
)

func (c *anyCodec) Kind() Kind { return KindAny }

func (c *anyCodec) EncodeValue(ec *EncodeContext, w *document.Writer, v reflect.Value) error {
	return specialize(ec, w, v)
}

func (c *anyCodec) DecodeValue(dc *DecodeContext, r *document.Reader, v reflect.Value) error {
	var natural reflect.Type
	switch r.CurrentType() {
	case document.TagNull:
		v.Set(reflect.Zero(c.t))
		return r.ReadNull()
	case document.TagDocument:
		mapper := dc.registry.mapper
		disc, found, err := peekDiscriminator(r, mapper)
		if err != nil {
			return err
		}
		if found {
			if t, ok := mapper.TypeForDiscriminator(disc); ok {
				return decodeConcrete(dc, r, v, t)
			}
		}
		natural = mapAnyType
	case document.TagArray:
		natural = sliceAnyType
	}

	if natural != nil {
		codec, err := dc.registry.Lookup(natural)
		if err != nil {
			return err
		}
		out := reflect.New(natural).Elem()
		if err := codec.DecodeValue(dc, r, out); err != nil {
			return err
		}
		v.Set(out)
		return nil
	}

	val, err := r.ReadValue()
	if err != nil {
		return err
	}
	native := nativeScalar(val)
	if native == nil {
		v.Set(reflect.Zero(c.t))
		return nil
	}
	v.Set(reflect.ValueOf(native))
	return nil
}

// nativeScalar converts a scalar to the Go value an any field holds after decode
func nativeScalar(val document.Value) interface{} {
	if b, ok := val.BinaryOK(); ok {
		switch {
		case b.Subtype == bson.TypeBinaryGeneric:
			return append([]byte(nil), b.Data...)
		case b.Subtype == bson.TypeBinaryUUID && len(b.Data) == 16:
			id, _ := uuid.FromBytes(b.Data)
			return id
		}
		return primitive.Binary{Subtype: b.Subtype, Data: append([]byte(nil), b.Data...)}
	}
	if dt, ok := val.DateTimeOK(); ok {
		return dt.Time().UTC()
	}
	return val.Interface()
}
