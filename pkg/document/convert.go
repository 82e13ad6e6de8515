package document

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// From converts a native Go value into a Value. It understands Go scalars, time.Time,
// uuid.UUID, *regexp.Regexp, the mongo-driver primitive types, bson.D/bson.M/bson.A,
// map[string]interface{}, []interface{}, *Document, *Array and Value itself.
// Maps are converted with sorted keys.
func From(x interface{}) (Value, error) {
	switch v := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return v, nil
	case *Document:
		return Doc(v), nil
	case *Array:
		return Arr(v), nil
	case bool:
		return Boolean(v), nil
	case int8:
		return Int32(int32(v)), nil
	case int16:
		return Int32(int32(v)), nil
	case int32:
		return Int32(v), nil
	case int:
		if v >= math.MinInt32 && v <= math.MaxInt32 {
			return Int32(int32(v)), nil
		}
		return Int64(int64(v)), nil
	case int64:
		return Int64(v), nil
	case uint8:
		return Int32(int32(v)), nil
	case uint16:
		return Int32(int32(v)), nil
	case uint32:
		return Int64(int64(v)), nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return Value{}, fmt.Errorf("%w: %d overflows int64", ErrUnsupportedValue, v)
		}
		return Int64(int64(v)), nil
	case uint64:
		if v > math.MaxInt64 {
			return Value{}, fmt.Errorf("%w: %d overflows int64", ErrUnsupportedValue, v)
		}
		return Int64(int64(v)), nil
	case float32:
		return Double(float64(v)), nil
	case float64:
		return Double(v), nil
	case string:
		return String(v), nil
	case []byte:
		return Binary(bson.TypeBinaryGeneric, v), nil
	case time.Time:
		return DateTime(v), nil
	case uuid.UUID:
		return Binary(bson.TypeBinaryUUID, v[:]), nil
	case *regexp.Regexp:
		return Regex(v.String(), ""), nil
	case primitive.ObjectID:
		return ObjectID(v), nil
	case primitive.DateTime:
		return DateTimeMillis(int64(v)), nil
	case primitive.Binary:
		return Binary(v.Subtype, v.Data), nil
	case primitive.Regex:
		return Regex(v.Pattern, v.Options), nil
	case primitive.Timestamp:
		return Timestamp(v.T, v.I), nil
	case primitive.Decimal128:
		return Decimal(v), nil
	case primitive.MinKey:
		return MinKey(), nil
	case primitive.MaxKey:
		return MaxKey(), nil
	case primitive.Null, primitive.Undefined:
		return Null(), nil
	case bson.D:
		d := NewDocument()
		for _, el := range v {
			ev, err := From(el.Value)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", el.Key, err)
			}
			d.Append(el.Key, ev)
		}
		return Doc(d), nil
	case bson.M:
		return fromMap(v)
	case map[string]interface{}:
		return fromMap(v)
	case bson.A:
		return fromSlice(v)
	case []interface{}:
		return fromSlice(v)
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedValue, x)
	}
}

func fromMap(m map[string]interface{}) (Value, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	d := NewDocument()
	for _, k := range keys {
		ev, err := From(m[k])
		if err != nil {
			return Value{}, fmt.Errorf("%s: %w", k, err)
		}
		d.Append(k, ev)
	}
	return Doc(d), nil
}

func fromSlice(s []interface{}) (Value, error) {
	a := NewArray()
	for i, x := range s {
		ev, err := From(x)
		if err != nil {
			return Value{}, fmt.Errorf("[%d]: %w", i, err)
		}
		a.Append(ev)
	}
	return Arr(a), nil
}

// MustFrom is like From but panics on unsupported values. Intended for tests and literals.
func MustFrom(x interface{}) Value {
	v, err := From(x)
	if err != nil {
		panic(err)
	}
	return v
}

// toNative converts a Value into the mongo-driver representation used for marshaling
func toNative(v Value) interface{} {
	switch v.tag {
	case TagDocument:
		d, _ := v.DocumentOK()
		return toD(d)
	case TagArray:
		a, _ := v.ArrayOK()
		out := make(bson.A, len(a.vals))
		for i, el := range a.vals {
			out[i] = toNative(el)
		}
		return out
	case TagNull:
		return nil
	case TagMinKey:
		return primitive.MinKey{}
	case TagMaxKey:
		return primitive.MaxKey{}
	default:
		return v.v
	}
}

func toD(d *Document) bson.D {
	out := make(bson.D, 0, d.Len())
	for _, el := range d.elems {
		out = append(out, bson.E{Key: el.Key, Value: toNative(el.Value)})
	}
	return out
}
