package document

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Value is an immutable tagged value. The zero Value is invalid and reports TagEnd.
type Value struct {
	tag Tag
	v   interface{}
}

// Double returns a double value
func Double(f float64) Value { return Value{tag: TagDouble, v: f} }

// String returns a UTF-8 string value
func String(s string) Value { return Value{tag: TagString, v: s} }

// Doc wraps a document. A nil document is written as null.
func Doc(d *Document) Value {
	if d == nil {
		return Null()
	}
	return Value{tag: TagDocument, v: d}
}

// Arr wraps an array. A nil array is written as null.
func Arr(a *Array) Value {
	if a == nil {
		return Null()
	}
	return Value{tag: TagArray, v: a}
}

// Binary returns a binary value with the given subtype
func Binary(subtype byte, data []byte) Value {
	return Value{tag: TagBinary, v: primitive.Binary{Subtype: subtype, Data: data}}
}

// ObjectID returns an object-id value
func ObjectID(oid primitive.ObjectID) Value { return Value{tag: TagObjectID, v: oid} }

// Boolean returns a boolean value
func Boolean(b bool) Value { return Value{tag: TagBoolean, v: b} }

// DateTime returns a UTC datetime value with millisecond precision
func DateTime(t time.Time) Value {
	return Value{tag: TagDateTime, v: primitive.NewDateTimeFromTime(t)}
}

// DateTimeMillis returns a datetime value from milliseconds since the Unix epoch
func DateTimeMillis(ms int64) Value { return Value{tag: TagDateTime, v: primitive.DateTime(ms)} }

// Null returns the null value
func Null() Value { return Value{tag: TagNull} }

// Regex returns a regular expression value
func Regex(pattern, options string) Value {
	return Value{tag: TagRegex, v: primitive.Regex{Pattern: pattern, Options: options}}
}

// Int32 returns a 32-bit integer value
func Int32(i int32) Value { return Value{tag: TagInt32, v: i} }

// Timestamp returns an internal timestamp value
func Timestamp(t, i uint32) Value {
	return Value{tag: TagTimestamp, v: primitive.Timestamp{T: t, I: i}}
}

// Int64 returns a 64-bit integer value
func Int64(i int64) Value { return Value{tag: TagInt64, v: i} }

// Decimal returns a high-precision decimal value
func Decimal(d primitive.Decimal128) Value { return Value{tag: TagDecimal128, v: d} }

// MinKey returns the min-key sentinel
func MinKey() Value { return Value{tag: TagMinKey} }

// MaxKey returns the max-key sentinel
func MaxKey() Value { return Value{tag: TagMaxKey} }

// Tag returns the value's tag
func (v Value) Tag() Tag { return v.tag }

// IsZero returns true for the invalid zero Value
func (v Value) IsZero() bool { return v.tag == TagEnd }

// IsNull returns true for null values
func (v Value) IsNull() bool { return v.tag == TagNull }

// DoubleOK returns the double payload
func (v Value) DoubleOK() (float64, bool) {
	f, ok := v.v.(float64)
	return f, ok && v.tag == TagDouble
}

// StringOK returns the string payload
func (v Value) StringOK() (string, bool) {
	s, ok := v.v.(string)
	return s, ok && v.tag == TagString
}

// DocumentOK returns the document payload
func (v Value) DocumentOK() (*Document, bool) {
	d, ok := v.v.(*Document)
	return d, ok && v.tag == TagDocument
}

// ArrayOK returns the array payload
func (v Value) ArrayOK() (*Array, bool) {
	a, ok := v.v.(*Array)
	return a, ok && v.tag == TagArray
}

// BinaryOK returns the binary payload
func (v Value) BinaryOK() (primitive.Binary, bool) {
	b, ok := v.v.(primitive.Binary)
	return b, ok && v.tag == TagBinary
}

// ObjectIDOK returns the object-id payload
func (v Value) ObjectIDOK() (primitive.ObjectID, bool) {
	oid, ok := v.v.(primitive.ObjectID)
	return oid, ok && v.tag == TagObjectID
}

// BooleanOK returns the boolean payload
func (v Value) BooleanOK() (bool, bool) {
	b, ok := v.v.(bool)
	return b, ok && v.tag == TagBoolean
}

// DateTimeOK returns the datetime payload
func (v Value) DateTimeOK() (primitive.DateTime, bool) {
	dt, ok := v.v.(primitive.DateTime)
	return dt, ok && v.tag == TagDateTime
}

// RegexOK returns the regex payload
func (v Value) RegexOK() (primitive.Regex, bool) {
	re, ok := v.v.(primitive.Regex)
	return re, ok && v.tag == TagRegex
}

// Int32OK returns the int32 payload
func (v Value) Int32OK() (int32, bool) {
	i, ok := v.v.(int32)
	return i, ok && v.tag == TagInt32
}

// TimestampOK returns the timestamp payload
func (v Value) TimestampOK() (primitive.Timestamp, bool) {
	ts, ok := v.v.(primitive.Timestamp)
	return ts, ok && v.tag == TagTimestamp
}

// Int64OK returns the int64 payload
func (v Value) Int64OK() (int64, bool) {
	i, ok := v.v.(int64)
	return i, ok && v.tag == TagInt64
}

// DecimalOK returns the decimal payload
func (v Value) DecimalOK() (primitive.Decimal128, bool) {
	d, ok := v.v.(primitive.Decimal128)
	return d, ok && v.tag == TagDecimal128
}

// Interface returns the payload as a Go value: documents as *Document, arrays as *Array,
// datetimes as primitive.DateTime, sentinels as primitive.MinKey / primitive.MaxKey and
// null as nil.
func (v Value) Interface() interface{} {
	switch v.tag {
	case TagNull, TagEnd:
		return nil
	case TagMinKey:
		return primitive.MinKey{}
	case TagMaxKey:
		return primitive.MaxKey{}
	default:
		return v.v
	}
}

// Key returns a canonical string for the value, suitable as a map key for identifiers.
// Two values have the same key exactly when Equal reports them equal.
func (v Value) Key() string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(int(v.tag)))
	b.WriteByte(':')
	writeKey(&b, v)
	return b.String()
}

func writeKey(b *strings.Builder, v Value) {
	switch v.tag {
	case TagDouble:
		f, _ := v.DoubleOK()
		b.WriteString(strconv.FormatUint(math.Float64bits(f), 16))
	case TagString:
		s, _ := v.StringOK()
		b.WriteString(strconv.Quote(s))
	case TagDocument:
		d, _ := v.DocumentOK()
		b.WriteByte('{')
		for i, el := range d.elems {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(el.Key))
			b.WriteByte('=')
			b.WriteString(el.Value.Key())
		}
		b.WriteByte('}')
	case TagArray:
		a, _ := v.ArrayOK()
		b.WriteByte('[')
		for i, el := range a.vals {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(el.Key())
		}
		b.WriteByte(']')
	case TagBinary:
		bin, _ := v.BinaryOK()
		b.WriteString(strconv.Itoa(int(bin.Subtype)))
		b.WriteByte('/')
		b.WriteString(hex.EncodeToString(bin.Data))
	case TagObjectID:
		oid, _ := v.ObjectIDOK()
		b.WriteString(oid.Hex())
	case TagRegex:
		re, _ := v.RegexOK()
		b.WriteString(strconv.Quote(re.Pattern))
		b.WriteByte('/')
		b.WriteString(re.Options)
	case TagTimestamp:
		ts, _ := v.TimestampOK()
		fmt.Fprintf(b, "%d.%d", ts.T, ts.I)
	case TagDecimal128:
		d, _ := v.DecimalOK()
		b.WriteString(d.String())
	case TagBoolean, TagDateTime, TagInt32, TagInt64:
		fmt.Fprint(b, v.v)
	}
}

// String implements fmt.Stringer using relaxed Extended JSON
func (v Value) String() string {
	if v.tag == TagEnd {
		return "<invalid>"
	}
	data, err := marshalValueExtJSON(v, false)
	if err != nil {
		return fmt.Sprintf("<%s>", v.tag)
	}
	return string(data)
}
