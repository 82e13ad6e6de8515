package codec

import (
	"reflect"

	"go.uber.org/zap"

	"github.com/conduit-lang/docmap/pkg/document"
	"github.com/conduit-lang/docmap/pkg/mapping"
)

type structField struct {
	field *mapping.MappedField
	codec Codec
}

// structCodec stores a mapped struct as a document. The identifier is written first,
// followed by the discriminator when requested, then the remaining fields in declaration
// order. Unknown names are skipped on decode.
type structCodec struct {
	reg       *Registry
	t         reflect.Type
	name      string
	fields    []structField
	byStorage map[string]int
	hasID     bool
}

func (r *Registry) buildStruct(a *arena, t reflect.Type) (Codec, error) {
	mt, err := r.mapper.Resolve(t)
	if err != nil {
		return nil, &ResolutionError{Type: mapping.TypeName(t), Path: a.pathString(), Err: err}
	}

	c := &structCodec{
		reg:       r,
		t:         t,
		name:      mt.Name,
		byStorage: make(map[string]int, len(mt.Fields)),
		hasID:     mt.ID != nil,
	}

	ordered := make([]*mapping.MappedField, 0, len(mt.Fields))
	if mt.ID != nil {
		ordered = append(ordered, mt.ID)
	}
	for _, f := range mt.Fields {
		if f != mt.ID {
			ordered = append(ordered, f)
		}
	}

	for _, f := range ordered {
		a.path = append(a.path, mt.Name+"."+f.Name)
		fc, err := r.fieldCodec(a, mt, f)
		a.path = a.path[:len(a.path)-1]
		if err != nil {
			return nil, err
		}
		c.byStorage[f.StorageName] = len(c.fields)
		c.fields = append(c.fields, structField{field: f, codec: fc})
	}
	return c, nil
}

// fieldCodec returns the cached handle of f or builds one. Handles are stored on the
// field when the pass publishes.
func (r *Registry) fieldCodec(a *arena, mt *mapping.MappedType, f *mapping.MappedField) (Codec, error) {
	if cached, ok := f.Codec(r); ok {
		return cached.(Codec), nil
	}

	var (
		c   Codec
		err error
	)
	if f.Shape == mapping.ShapeReference {
		c, err = r.buildReference(a, mt, f)
	} else {
		c, err = r.resolve(a, f.Type)
	}
	if err != nil {
		return nil, err
	}
	a.fields = append(a.fields, fieldHandle{field: f, codec: c})
	return c, nil
}

func (c *structCodec) Kind() Kind { return KindEmbedded }

// current returns the published model, which may have been respecialized since build
func (c *structCodec) current() *mapping.MappedType {
	mt, ok := c.reg.mapper.Cached(c.t)
	if !ok {
		mt, _ = c.reg.mapper.Resolve(c.t)
	}
	return mt
}

func (c *structCodec) EncodeValue(ec *EncodeContext, w *document.Writer, v reflect.Value) error {
	discriminate := ec.takeDiscriminator()
	if err := ec.enter(); err != nil {
		return ec.fail(err)
	}
	defer ec.leave()
	ec.owners = append(ec.owners, c.name)
	defer func() { ec.owners = ec.owners[:len(ec.owners)-1] }()

	mt := c.current()
	discriminate = discriminate || mt.AlwaysDiscriminate

	if err := w.WriteStartDocument(); err != nil {
		return err
	}
	if discriminate && !c.hasID {
		if err := writeDiscriminator(w, mt); err != nil {
			return err
		}
	}
	for i, sf := range c.fields {
		if err := c.encodeField(ec, w, v, sf); err != nil {
			return err
		}
		if i == 0 && c.hasID && discriminate {
			if err := writeDiscriminator(w, mt); err != nil {
				return err
			}
		}
	}
	return w.WriteEndDocument()
}

func (c *structCodec) encodeField(ec *EncodeContext, w *document.Writer, v reflect.Value, sf structField) error {
	fv := v.FieldByIndex(sf.field.Index)
	if sf.field.OmitEmpty && fv.IsZero() {
		return nil
	}
	if err := w.WriteName(sf.field.StorageName); err != nil {
		return err
	}
	ec.push(sf.field.Name)
	defer ec.pop()
	return ec.fail(sf.codec.EncodeValue(ec, w, fv))
}

func writeDiscriminator(w *document.Writer, mt *mapping.MappedType) error {
	if err := w.WriteName(mt.DiscriminatorKey); err != nil {
		return err
	}
	return w.WriteString(mt.Discriminator)
}

func (c *structCodec) DecodeValue(dc *DecodeContext, r *document.Reader, v reflect.Value) error {
	if r.CurrentType() == document.TagNull {
		v.Set(reflect.Zero(c.t))
		return r.ReadNull()
	}
	if err := dc.enter(); err != nil {
		return dc.fail(err)
	}
	defer dc.leave()
	dc.owners = append(dc.owners, c.name)
	defer func() { dc.owners = dc.owners[:len(dc.owners)-1] }()

	if err := r.ReadStartDocument(); err != nil {
		return dc.fail(err)
	}
	for {
		tag, err := r.ReadNextType()
		if err != nil {
			return dc.fail(err)
		}
		if tag == document.TagEnd {
			break
		}

		idx, ok := c.byStorage[r.CurrentName()]
		if !ok {
			if err := r.SkipValue(); err != nil {
				return dc.fail(err)
			}
			continue
		}
		sf := c.fields[idx]

		dc.push(sf.field.Name)
		err = c.decodeField(dc, r, v.FieldByIndex(sf.field.Index), sf)
		dc.pop()
		if err != nil {
			return err
		}
	}
	return dc.fail(r.ReadEndDocument())
}

// decodeField decodes one field. With lenient decoding a type mismatch rewinds to the
// field's value, skips it and leaves the zero value.
func (c *structCodec) decodeField(dc *DecodeContext, r *document.Reader, fv reflect.Value, sf structField) error {
	if !c.reg.lenient {
		return dc.fail(sf.codec.DecodeValue(dc, r, fv))
	}

	mark := r.Mark()
	depth := dc.depth
	err := sf.codec.DecodeValue(dc, r, fv)
	if err == nil || !document.IsTypeMismatch(err) {
		return dc.fail(err)
	}

	c.reg.logger.Warn("type mismatch downgraded to zero value",
		zap.String("type", c.name),
		zap.String("path", dc.Path()),
		zap.Error(err),
	)
	dc.depth = depth
	if err := r.Reset(mark); err != nil {
		return dc.fail(err)
	}
	if err := r.SkipValue(); err != nil {
		return dc.fail(err)
	}
	fv.Set(reflect.Zero(fv.Type()))
	return nil
}
