package codec

import (
	"encoding"
	"fmt"
	"reflect"
	"sort"
	"strconv"

	"github.com/conduit-lang/docmap/pkg/document"
	"github.com/conduit-lang/docmap/pkg/mapping"
)

// pointerCodec stores nil as null and otherwise delegates to the element codec
type pointerCodec struct {
	t    reflect.Type
	elem Codec
}

func (c *pointerCodec) Kind() Kind { return KindPointer }

func (c *pointerCodec) EncodeValue(ec *EncodeContext, w *document.Writer, v reflect.Value) error {
	if v.IsNil() {
		return w.WriteNull()
	}
	return c.elem.EncodeValue(ec, w, v.Elem())
}

func (c *pointerCodec) DecodeValue(dc *DecodeContext, r *document.Reader, v reflect.Value) error {
	if r.CurrentType() == document.TagNull {
		v.Set(reflect.Zero(c.t))
		return r.ReadNull()
	}
	if v.IsNil() {
		v.Set(reflect.New(c.t.Elem()))
	}
	return c.elem.DecodeValue(dc, r, v.Elem())
}

// collectionCodec stores a slice as an array, preserving element order. A nil slice is
// stored as null and an empty slice as an empty array.
type collectionCodec struct {
	t    reflect.Type
	elem Codec
}

func (c *collectionCodec) Kind() Kind { return KindCollection }

func (c *collectionCodec) EncodeValue(ec *EncodeContext, w *document.Writer, v reflect.Value) error {
	if v.IsNil() {
		return w.WriteNull()
	}
	return encodeSequence(ec, w, v, c.elem)
}

func (c *collectionCodec) DecodeValue(dc *DecodeContext, r *document.Reader, v reflect.Value) error {
	if r.CurrentType() == document.TagNull {
		v.Set(reflect.Zero(c.t))
		return r.ReadNull()
	}
	if err := dc.enter(); err != nil {
		return err
	}
	defer dc.leave()

	if err := r.ReadStartArray(); err != nil {
		return err
	}
	out := reflect.MakeSlice(c.t, 0, 0)
	for i := 0; ; i++ {
		tag, err := r.ReadNextType()
		if err != nil {
			return err
		}
		if tag == document.TagEnd {
			break
		}
		out = reflect.Append(out, reflect.Zero(c.t.Elem()))
		dc.pushIndex(i)
		err = dc.fail(c.elem.DecodeValue(dc, r, out.Index(i)))
		dc.pop()
		if err != nil {
			return err
		}
	}
	if err := r.ReadEndArray(); err != nil {
		return err
	}
	v.Set(out)
	return nil
}

// arrayCodec stores a fixed-size array as an array. Decoding fills positions in order;
// a stored array longer than the Go array is an error.
type arrayCodec struct {
	t    reflect.Type
	elem Codec
}

func (c *arrayCodec) Kind() Kind { return KindArray }

func (c *arrayCodec) EncodeValue(ec *EncodeContext, w *document.Writer, v reflect.Value) error {
	return encodeSequence(ec, w, v, c.elem)
}

func (c *arrayCodec) DecodeValue(dc *DecodeContext, r *document.Reader, v reflect.Value) error {
	if r.CurrentType() == document.TagNull {
		v.Set(reflect.Zero(c.t))
		return r.ReadNull()
	}
	if err := dc.enter(); err != nil {
		return err
	}
	defer dc.leave()

	if err := r.ReadStartArray(); err != nil {
		return err
	}
	out := reflect.New(c.t).Elem()
	for i := 0; ; i++ {
		tag, err := r.ReadNextType()
		if err != nil {
			return err
		}
		if tag == document.TagEnd {
			break
		}
		if i >= c.t.Len() {
			return fmt.Errorf("stored array is longer than %s", c.t)
		}
		dc.pushIndex(i)
		err = dc.fail(c.elem.DecodeValue(dc, r, out.Index(i)))
		dc.pop()
		if err != nil {
			return err
		}
	}
	if err := r.ReadEndArray(); err != nil {
		return err
	}
	v.Set(out)
	return nil
}

func encodeSequence(ec *EncodeContext, w *document.Writer, v reflect.Value, elem Codec) error {
	if err := ec.enter(); err != nil {
		return err
	}
	defer ec.leave()

	if err := w.WriteStartArray(); err != nil {
		return err
	}
	for i := 0; i < v.Len(); i++ {
		ec.pushIndex(i)
		err := ec.fail(elem.EncodeValue(ec, w, v.Index(i)))
		ec.pop()
		if err != nil {
			return err
		}
	}
	return w.WriteEndArray()
}

// mapCodec stores a map as a document with keys in sorted order
type mapCodec struct {
	t    reflect.Type
	keys *keyCodec
	elem Codec
}

func (c *mapCodec) Kind() Kind { return KindMap }

func (c *mapCodec) EncodeValue(ec *EncodeContext, w *document.Writer, v reflect.Value) error {
	if v.IsNil() {
		return w.WriteNull()
	}
	if err := ec.enter(); err != nil {
		return err
	}
	defer ec.leave()

	keys, err := c.keys.sorted(v)
	if err != nil {
		return err
	}
	if err := w.WriteStartDocument(); err != nil {
		return err
	}
	for _, k := range keys {
		if err := w.WriteName(k.name); err != nil {
			return err
		}
		ec.push(k.name)
		err := ec.fail(c.elem.EncodeValue(ec, w, v.MapIndex(k.value)))
		ec.pop()
		if err != nil {
			return err
		}
	}
	return w.WriteEndDocument()
}

func (c *mapCodec) DecodeValue(dc *DecodeContext, r *document.Reader, v reflect.Value) error {
	if r.CurrentType() == document.TagNull {
		v.Set(reflect.Zero(c.t))
		return r.ReadNull()
	}
	if err := dc.enter(); err != nil {
		return err
	}
	defer dc.leave()

	if err := r.ReadStartDocument(); err != nil {
		return err
	}
	out := reflect.MakeMap(c.t)
	for {
		tag, err := r.ReadNextType()
		if err != nil {
			return err
		}
		if tag == document.TagEnd {
			break
		}
		name := r.CurrentName()
		key, err := c.keys.parse(name)
		if err != nil {
			return err
		}
		elem := reflect.New(c.t.Elem()).Elem()
		dc.push(name)
		err = dc.fail(c.elem.DecodeValue(dc, r, elem))
		dc.pop()
		if err != nil {
			return err
		}
		out.SetMapIndex(key, elem)
	}
	if err := r.ReadEndDocument(); err != nil {
		return err
	}
	v.Set(out)
	return nil
}

// keyCodec converts map keys to and from document names
type keyCodec struct {
	t      reflect.Type
	format func(reflect.Value) (string, error)
	parse  func(string) (reflect.Value, error)
}

type mapKey struct {
	name  string
	value reflect.Value
}

func (k *keyCodec) sorted(m reflect.Value) ([]mapKey, error) {
	keys := make([]mapKey, 0, m.Len())
	iter := m.MapRange()
	for iter.Next() {
		name, err := k.format(iter.Key())
		if err != nil {
			return nil, err
		}
		keys = append(keys, mapKey{name: name, value: iter.Key()})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].name < keys[j].name })
	return keys, nil
}

func newKeyCodec(t reflect.Type) (*keyCodec, error) {
	if mapping.IsEnum(t) {
		return &keyCodec{
			t: t,
			format: func(v reflect.Value) (string, error) {
				text, err := v.Interface().(encoding.TextMarshaler).MarshalText()
				return string(text), err
			},
			parse: func(s string) (reflect.Value, error) {
				ptr := reflect.New(t)
				if err := ptr.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s)); err != nil {
					return reflect.Value{}, err
				}
				return ptr.Elem(), nil
			},
		}, nil
	}

	switch t.Kind() {
	case reflect.String:
		return &keyCodec{
			t:      t,
			format: func(v reflect.Value) (string, error) { return v.String(), nil },
			parse: func(s string) (reflect.Value, error) {
				return reflect.ValueOf(s).Convert(t), nil
			},
		}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return &keyCodec{
			t:      t,
			format: func(v reflect.Value) (string, error) { return strconv.FormatInt(v.Int(), 10), nil },
			parse: func(s string) (reflect.Value, error) {
				i, err := strconv.ParseInt(s, 10, t.Bits())
				if err != nil {
					return reflect.Value{}, fmt.Errorf("map key %q: %w", s, err)
				}
				return reflect.ValueOf(i).Convert(t), nil
			},
		}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &keyCodec{
			t:      t,
			format: func(v reflect.Value) (string, error) { return strconv.FormatUint(v.Uint(), 10), nil },
			parse: func(s string) (reflect.Value, error) {
				u, err := strconv.ParseUint(s, 10, t.Bits())
				if err != nil {
					return reflect.Value{}, fmt.Errorf("map key %q: %w", s, err)
				}
				return reflect.ValueOf(u).Convert(t), nil
			},
		}, nil
	}
	return nil, fmt.Errorf("map keys of type %s are not supported", t)
}
