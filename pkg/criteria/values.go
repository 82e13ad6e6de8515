package criteria

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"

	"github.com/conduit-lang/docmap/pkg/codec"
	"github.com/conduit-lang/docmap/pkg/document"
	"github.com/conduit-lang/docmap/pkg/mapping"
)

// checkValue returns why op cannot take value, or "" when it can
func checkValue(rp *ResolvedPath, op Operator, value interface{}) string {
	if _, ok := value.(Criteria); ok {
		if op != ElemMatch {
			return fmt.Sprintf("%s does not take criteria", op)
		}
		return ""
	}

	rv := reflect.ValueOf(value)
	switch op {
	case Exists:
		if !rv.IsValid() || rv.Kind() != reflect.Bool {
			return fmt.Sprintf("exists requires a boolean, got %s", describe(rv))
		}
	case In, NotIn, All:
		if !isIterable(rv) {
			return fmt.Sprintf("%s requires a list, array or map, got %s", op, describe(rv))
		}
	case Size:
		if !isInteger(rv) {
			return fmt.Sprintf("size requires an integer, got %s", describe(rv))
		}
	case Mod:
		pair := indirect(rv)
		if !isPair(pair) {
			return fmt.Sprintf("mod requires a divisor and a remainder, got %s", describe(rv))
		}
		for i := 0; i < 2; i++ {
			if !isInteger(indirect(pair.Index(i))) {
				return "mod operands must be integers"
			}
		}
	case Regex:
		p := indirect(rv)
		if !p.IsValid() {
			return "regex requires a pattern"
		}
		t := p.Type()
		if t.Kind() != reflect.String && t != regexpType && t != bsonRegex {
			return fmt.Sprintf("regex requires a pattern, got %s", describe(rv))
		}
	case Type:
		if !rv.IsValid() || (rv.Kind() != reflect.String && !isInteger(rv)) {
			return fmt.Sprintf("type requires a type name or number, got %s", describe(rv))
		}
	case ElemMatch:
		if !rv.IsValid() {
			return "elemMatch requires criteria"
		}
		switch k := indirect(rv).Kind(); {
		case k == reflect.Map, k == reflect.Struct:
		default:
			return fmt.Sprintf("elemMatch requires criteria or a document, got %s", describe(rv))
		}
	default:
		if rv.IsValid() && rp.Field != nil && !rp.ReferenceID && !comparableWith(rp.Field, rv.Type()) {
			return fmt.Sprintf("%s is not comparable with field %s of type %s", rv.Type(), rp.Field.Name, rp.Field.Type)
		}
	}
	return ""
}

// comparableWith reports whether a value of type vt may be compared against field f, either
// whole or against one of its elements
func comparableWith(f *mapping.MappedField, vt reflect.Type) bool {
	vt = derefType(vt)
	switch vt {
	case documentType, valueType, arrayType:
		return true
	}
	if f.Shape == mapping.ShapeReference {
		if f.IsPolymorphic() {
			return true
		}
		if vt.Kind() == reflect.Struct && !mapping.IsWellKnownScalar(vt) {
			return vt == f.Elem
		}
		return true
	}
	return accepts(derefType(f.Type), vt)
}

func accepts(ft, vt reflect.Type) bool {
	switch {
	case ft.Kind() == reflect.Interface:
		return true
	case vt == ft, vt.AssignableTo(ft):
		return true
	case isNumericKind(ft.Kind()) && isNumericKind(vt.Kind()):
		return true
	case ft.Kind() == reflect.String && vt.Kind() == reflect.String:
		return true
	}
	switch ft.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		if mapping.IsWellKnownScalar(ft) {
			return false
		}
		return accepts(derefType(ft.Elem()), vt)
	}
	return false
}

// mapValue converts value to its stored form for op on rp
func (v *Validator) mapValue(rp *ResolvedPath, op Operator, value interface{}) (document.Value, error) {
	if c, ok := value.(Criteria); ok {
		doc, err := c.Document()
		if err != nil {
			return document.Value{}, err
		}
		return document.Doc(doc), nil
	}

	rv := reflect.ValueOf(value)
	switch op {
	case Size:
		if isInteger(rv) {
			return integer(asInt64(rv)), nil
		}
	case Regex:
		switch p := value.(type) {
		case string:
			return document.Regex(p, ""), nil
		case *regexp.Regexp:
			return document.Regex(p.String(), ""), nil
		}
	case Type:
		if isInteger(rv) {
			return integer(asInt64(rv)), nil
		}
	case Mod:
		if pair := indirect(rv); isPair(pair) {
			arr := document.NewArray()
			for i := 0; i < pair.Len(); i++ {
				if el := indirect(pair.Index(i)); isInteger(el) {
					arr.Append(document.Int64(asInt64(el)))
				}
			}
			return document.Arr(arr), nil
		}
	case In, NotIn, All:
		if isIterable(rv) {
			return v.mapList(rp, rv)
		}
	}
	return v.mapOne(rp, value)
}

func (v *Validator) mapList(rp *ResolvedPath, rv reflect.Value) (document.Value, error) {
	rv = indirect(rv)
	switch rv.Type() {
	case arrayType:
		arr := rv.Interface().(document.Array)
		return document.Arr(&arr), nil
	case valueType:
		return rv.Interface().(document.Value), nil
	}

	var items []reflect.Value
	if rv.Kind() == reflect.Map {
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		for _, k := range keys {
			items = append(items, rv.MapIndex(k))
		}
	} else {
		for i := 0; i < rv.Len(); i++ {
			items = append(items, rv.Index(i))
		}
	}

	arr := document.NewArray()
	for _, item := range items {
		val, err := v.mapOne(rp, item.Interface())
		if err != nil {
			return document.Value{}, err
		}
		arr.Append(val)
	}
	return document.Arr(arr), nil
}

// mapOne encodes a single value. Entities compared against a reference field become
// their identifier, or a DBRef when the field stores DBRefs.
func (v *Validator) mapOne(rp *ResolvedPath, value interface{}) (document.Value, error) {
	if value == nil {
		return document.Null(), nil
	}
	if f := rp.Field; f != nil && f.Shape == mapping.ShapeReference && !rp.ReferenceID {
		if mt, ok := v.entityType(reflect.TypeOf(value)); ok {
			id, err := v.reg.EntityID(value)
			if err != nil {
				return document.Value{}, err
			}
			if !f.DBRef && !f.IsPolymorphic() {
				return id, nil
			}
			return document.Doc(document.NewDocument(
				document.E(codec.DBRefCollectionKey, document.String(mt.Collection)),
				document.E(codec.DBRefIDKey, id),
			)), nil
		}
	}
	return v.reg.EncodeValue(value)
}

func (v *Validator) entityType(t reflect.Type) (*mapping.MappedType, bool) {
	t = derefType(t)
	if t.Kind() != reflect.Struct || mapping.IsWellKnownScalar(t) {
		return nil, false
	}
	mt, err := v.mapper.Resolve(t)
	if err != nil || !mt.IsEntity() {
		return nil, false
	}
	return mt, true
}

func integer(n int64) document.Value {
	if n >= math.MinInt32 && n <= math.MaxInt32 {
		return document.Int32(int32(n))
	}
	return document.Int64(n)
}

func describe(rv reflect.Value) string {
	if !rv.IsValid() {
		return "nil"
	}
	return rv.Type().String()
}

func derefType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

func indirect(rv reflect.Value) reflect.Value {
	for rv.IsValid() && (rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface) {
		if rv.IsNil() {
			return reflect.Value{}
		}
		rv = rv.Elem()
	}
	return rv
}

func isIterable(rv reflect.Value) bool {
	rv = indirect(rv)
	if !rv.IsValid() {
		return false
	}
	switch rv.Type() {
	case arrayType:
		return true
	case valueType:
		_, ok := rv.Interface().(document.Value).ArrayOK()
		return ok
	}
	switch rv.Kind() {
	case reflect.Slice:
		return rv.Type().Elem().Kind() != reflect.Uint8
	case reflect.Array, reflect.Map:
		return true
	}
	return false
}

func isPair(rv reflect.Value) bool {
	if !rv.IsValid() {
		return false
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv.Len() == 2
	}
	return false
}

func isInteger(rv reflect.Value) bool {
	if !rv.IsValid() {
		return false
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return true
	}
	return false
}

func asInt64(rv reflect.Value) int64 {
	switch rv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return int64(rv.Uint())
	}
	return rv.Int()
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
