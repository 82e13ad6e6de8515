package codec

import (
	"encoding"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/conduit-lang/docmap/pkg/document"
)

// scalarCodec maps one Go type to one tagged scalar. A stored null decodes to the zero value.
type scalarCodec struct {
	t      reflect.Type
	kind   Kind
	encode func(w *document.Writer, v reflect.Value) error
	decode func(r *document.Reader, v reflect.Value) error
}

func (c *scalarCodec) Kind() Kind { return c.kind }

func (c *scalarCodec) EncodeValue(_ *EncodeContext, w *document.Writer, v reflect.Value) error {
	return c.encode(w, v)
}

func (c *scalarCodec) DecodeValue(_ *DecodeContext, r *document.Reader, v reflect.Value) error {
	if r.CurrentType() == document.TagNull {
		v.Set(reflect.Zero(v.Type()))
		return r.ReadNull()
	}
	return c.decode(r, v)
}

var (
	timeType      = reflect.TypeOf(time.Time{})
	uuidType      = reflect.TypeOf(uuid.UUID{})
	objectIDType  = reflect.TypeOf(primitive.ObjectID{})
	decimalType   = reflect.TypeOf(primitive.Decimal128{})
	binaryType    = reflect.TypeOf(primitive.Binary{})
	regexType     = reflect.TypeOf(primitive.Regex{})
	timestampType = reflect.TypeOf(primitive.Timestamp{})
	dateTimeType  = reflect.TypeOf(primitive.DateTime(0))
	minKeyType    = reflect.TypeOf(primitive.MinKey{})
	maxKeyType    = reflect.TypeOf(primitive.MaxKey{})
	valueType     = reflect.TypeOf(document.Value{})
	documentType  = reflect.TypeOf(document.Document{})
	arrayType     = reflect.TypeOf(document.Array{})
)

func wellKnownCodec(t reflect.Type) (Codec, bool) {
	c := &scalarCodec{t: t, kind: KindScalar}
	switch t {
	case timeType:
		c.encode = func(w *document.Writer, v reflect.Value) error {
			return w.WriteDateTime(v.Interface().(time.Time))
		}
		c.decode = func(r *document.Reader, v reflect.Value) error {
			tm, err := r.ReadDateTime()
			if err != nil {
				return err
			}
			v.Set(reflect.ValueOf(tm))
			return nil
		}
	case uuidType:
		c.encode = func(w *document.Writer, v reflect.Value) error {
			id := v.Interface().(uuid.UUID)
			return w.WriteBinary(bson.TypeBinaryUUID, id[:])
		}
		c.decode = func(r *document.Reader, v reflect.Value) error {
			subtype, data, err := r.ReadBinary()
			if err != nil {
				return err
			}
			if (subtype != bson.TypeBinaryUUID && subtype != bson.TypeBinaryUUIDOld) || len(data) != 16 {
				return fmt.Errorf("binary subtype %d of %d bytes is not a UUID", subtype, len(data))
			}
			id, err := uuid.FromBytes(data)
			if err != nil {
				return err
			}
			v.Set(reflect.ValueOf(id))
			return nil
		}
	case objectIDType:
		c.encode = func(w *document.Writer, v reflect.Value) error {
			return w.WriteObjectID(v.Interface().(primitive.ObjectID))
		}
		c.decode = func(r *document.Reader, v reflect.Value) error {
			oid, err := r.ReadObjectID()
			if err != nil {
				return err
			}
			v.Set(reflect.ValueOf(oid))
			return nil
		}
	case decimalType:
		c.encode = func(w *document.Writer, v reflect.Value) error {
			return w.WriteDecimal128(v.Interface().(primitive.Decimal128))
		}
		c.decode = func(r *document.Reader, v reflect.Value) error {
			d, err := r.ReadDecimal128()
			if err != nil {
				return err
			}
			v.Set(reflect.ValueOf(d))
			return nil
		}
	case binaryType:
		c.encode = func(w *document.Writer, v reflect.Value) error {
			b := v.Interface().(primitive.Binary)
			return w.WriteBinary(b.Subtype, b.Data)
		}
		c.decode = func(r *document.Reader, v reflect.Value) error {
			subtype, data, err := r.ReadBinary()
			if err != nil {
				return err
			}
			v.Set(reflect.ValueOf(primitive.Binary{Subtype: subtype, Data: append([]byte(nil), data...)}))
			return nil
		}
	case regexType:
		c.encode = func(w *document.Writer, v reflect.Value) error {
			re := v.Interface().(primitive.Regex)
			return w.WriteRegex(re.Pattern, re.Options)
		}
		c.decode = func(r *document.Reader, v reflect.Value) error {
			pattern, options, err := r.ReadRegex()
			if err != nil {
				return err
			}
			v.Set(reflect.ValueOf(primitive.Regex{Pattern: pattern, Options: options}))
			return nil
		}
	case timestampType:
		c.encode = func(w *document.Writer, v reflect.Value) error {
			ts := v.Interface().(primitive.Timestamp)
			return w.WriteTimestamp(ts.T, ts.I)
		}
		c.decode = func(r *document.Reader, v reflect.Value) error {
			t, i, err := r.ReadTimestamp()
			if err != nil {
				return err
			}
			v.Set(reflect.ValueOf(primitive.Timestamp{T: t, I: i}))
			return nil
		}
	case dateTimeType:
		c.encode = func(w *document.Writer, v reflect.Value) error {
			return w.WriteValue(document.DateTimeMillis(v.Int()))
		}
		c.decode = func(r *document.Reader, v reflect.Value) error {
			tm, err := r.ReadDateTime()
			if err != nil {
				return err
			}
			v.SetInt(int64(primitive.NewDateTimeFromTime(tm)))
			return nil
		}
	case minKeyType:
		c.encode = func(w *document.Writer, _ reflect.Value) error { return w.WriteMinKey() }
		c.decode = func(r *document.Reader, _ reflect.Value) error { return r.ReadMinKey() }
	case maxKeyType:
		c.encode = func(w *document.Writer, _ reflect.Value) error { return w.WriteMaxKey() }
		c.decode = func(r *document.Reader, _ reflect.Value) error { return r.ReadMaxKey() }
	case valueType:
		return &rawValueCodec{}, true
	case documentType:
		c.encode = func(w *document.Writer, v reflect.Value) error {
			d := v.Interface().(document.Document)
			return w.WriteValue(document.Doc(d.Clone()))
		}
		c.decode = func(r *document.Reader, v reflect.Value) error {
			if r.CurrentType() != document.TagDocument {
				return &document.TypeMismatchError{Expected: document.TagDocument, Actual: r.CurrentType(), Name: r.CurrentName()}
			}
			val, err := r.ReadValue()
			if err != nil {
				return err
			}
			d, _ := val.DocumentOK()
			v.Set(reflect.ValueOf(*d.Clone()))
			return nil
		}
	case arrayType:
		c.encode = func(w *document.Writer, v reflect.Value) error {
			a := v.Interface().(document.Array)
			return w.WriteValue(document.Arr(document.NewArray(a.Values()...)))
		}
		c.decode = func(r *document.Reader, v reflect.Value) error {
			if r.CurrentType() != document.TagArray {
				return &document.TypeMismatchError{Expected: document.TagArray, Actual: r.CurrentType(), Name: r.CurrentName()}
			}
			val, err := r.ReadValue()
			if err != nil {
				return err
			}
			a, _ := val.ArrayOK()
			v.Set(reflect.ValueOf(*document.NewArray(a.Values()...)))
			return nil
		}
	default:
		return nil, false
	}
	return c, true
}

// rawValueCodec passes document.Value through unchanged
type rawValueCodec struct{}

func (c *rawValueCodec) Kind() Kind { return KindScalar }

func (c *rawValueCodec) EncodeValue(_ *EncodeContext, w *document.Writer, v reflect.Value) error {
	val := v.Interface().(document.Value)
	if val.IsZero() {
		return w.WriteNull()
	}
	return w.WriteValue(val)
}

func (c *rawValueCodec) DecodeValue(_ *DecodeContext, r *document.Reader, v reflect.Value) error {
	val, err := r.ReadValue()
	if err != nil {
		return err
	}
	v.Set(reflect.ValueOf(val))
	return nil
}

func newBytesCodec(t reflect.Type) Codec {
	return &scalarCodec{
		t:    t,
		kind: KindScalar,
		encode: func(w *document.Writer, v reflect.Value) error {
			if v.IsNil() {
				return w.WriteNull()
			}
			return w.WriteBinary(bson.TypeBinaryGeneric, append([]byte(nil), v.Bytes()...))
		},
		decode: func(r *document.Reader, v reflect.Value) error {
			_, data, err := r.ReadBinary()
			if err != nil {
				return err
			}
			b := reflect.New(v.Type()).Elem()
			b.SetBytes(append([]byte{}, data...))
			v.Set(b)
			return nil
		},
	}
}

// newEnumCodec stores a type through its text form
func newEnumCodec(t reflect.Type) Codec {
	return &scalarCodec{
		t:    t,
		kind: KindEnum,
		encode: func(w *document.Writer, v reflect.Value) error {
			text, err := v.Interface().(encoding.TextMarshaler).MarshalText()
			if err != nil {
				return err
			}
			return w.WriteString(string(text))
		},
		decode: func(r *document.Reader, v reflect.Value) error {
			s, err := r.ReadString()
			if err != nil {
				return err
			}
			ptr := reflect.New(v.Type())
			if err := ptr.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s)); err != nil {
				return err
			}
			v.Set(ptr.Elem())
			return nil
		},
	}
}

// newKindCodec handles the basic kinds, including named types over them. Integers are
// widened on decode: a stored int32 fills any integer field and any stored integer fills
// a float field.
func newKindCodec(t reflect.Type) (Codec, bool) {
	c := &scalarCodec{t: t, kind: KindScalar}
	switch t.Kind() {
	case reflect.Bool:
		c.encode = func(w *document.Writer, v reflect.Value) error { return w.WriteBoolean(v.Bool()) }
		c.decode = func(r *document.Reader, v reflect.Value) error {
			b, err := r.ReadBoolean()
			if err != nil {
				return err
			}
			v.SetBool(b)
			return nil
		}
	case reflect.String:
		c.encode = func(w *document.Writer, v reflect.Value) error { return w.WriteString(v.String()) }
		c.decode = func(r *document.Reader, v reflect.Value) error {
			s, err := r.ReadString()
			if err != nil {
				return err
			}
			v.SetString(s)
			return nil
		}
	case reflect.Int8, reflect.Int16, reflect.Int32:
		c.encode = func(w *document.Writer, v reflect.Value) error { return w.WriteInt32(int32(v.Int())) }
		c.decode = decodeInt(document.TagInt32)
	case reflect.Int, reflect.Int64:
		c.encode = func(w *document.Writer, v reflect.Value) error { return w.WriteInt64(v.Int()) }
		c.decode = decodeInt(document.TagInt64)
	case reflect.Uint8, reflect.Uint16:
		c.encode = func(w *document.Writer, v reflect.Value) error { return w.WriteInt32(int32(v.Uint())) }
		c.decode = decodeUint(document.TagInt32)
	case reflect.Uint32, reflect.Uint, reflect.Uint64:
		c.encode = func(w *document.Writer, v reflect.Value) error {
			u := v.Uint()
			if u > math.MaxInt64 {
				return fmt.Errorf("%w: %d overflows int64", document.ErrUnsupportedValue, u)
			}
			return w.WriteInt64(int64(u))
		}
		c.decode = decodeUint(document.TagInt64)
	case reflect.Float32, reflect.Float64:
		c.encode = func(w *document.Writer, v reflect.Value) error { return w.WriteDouble(v.Float()) }
		c.decode = func(r *document.Reader, v reflect.Value) error {
			var f float64
			switch r.CurrentType() {
			case document.TagInt32:
				i, err := r.ReadInt32()
				if err != nil {
					return err
				}
				f = float64(i)
			case document.TagInt64:
				i, err := r.ReadInt64()
				if err != nil {
					return err
				}
				f = float64(i)
			default:
				d, err := r.ReadDouble()
				if err != nil {
					return err
				}
				f = d
			}
			if v.OverflowFloat(f) {
				return fmt.Errorf("%g overflows %s", f, v.Type())
			}
			v.SetFloat(f)
			return nil
		}
	default:
		return nil, false
	}
	return c, true
}

// readInteger reads an Int32 or Int64, reporting a mismatch against the preferred tag
func readInteger(r *document.Reader, preferred document.Tag) (int64, error) {
	switch r.CurrentType() {
	case document.TagInt32:
		i, err := r.ReadInt32()
		return int64(i), err
	case document.TagInt64:
		return r.ReadInt64()
	default:
		return 0, &document.TypeMismatchError{Expected: preferred, Actual: r.CurrentType(), Name: r.CurrentName()}
	}
}

func decodeInt(preferred document.Tag) func(r *document.Reader, v reflect.Value) error {
	return func(r *document.Reader, v reflect.Value) error {
		i, err := readInteger(r, preferred)
		if err != nil {
			return err
		}
		if v.OverflowInt(i) {
			return fmt.Errorf("%d overflows %s", i, v.Type())
		}
		v.SetInt(i)
		return nil
	}
}

func decodeUint(preferred document.Tag) func(r *document.Reader, v reflect.Value) error {
	return func(r *document.Reader, v reflect.Value) error {
		i, err := readInteger(r, preferred)
		if err != nil {
			return err
		}
		if i < 0 || v.OverflowUint(uint64(i)) {
			return fmt.Errorf("%d overflows %s", i, v.Type())
		}
		v.SetUint(uint64(i))
		return nil
	}
}
