package codec

import (
	"fmt"
	"reflect"

	"github.com/conduit-lang/docmap/pkg/document"
	"github.com/conduit-lang/docmap/pkg/mapping"
)

const (
	// DBRefCollectionKey names the collection of a stored DBRef
	DBRefCollectionKey = "$ref"
	// DBRefIDKey names the identifier of a stored DBRef
	DBRefIDKey = "$id"
)

// Ref is one stored reference awaiting resolution
type Ref struct {
	// Type is the declared target: a struct type or an interface
	Type reflect.Type
	// Collection is the collection the referenced document lives in
	Collection    string
	ID            document.Value
	IgnoreMissing bool
	// Path is the field path of the reference within the decoded document
	Path string
}

// ReferenceResolver materializes referenced entities. Resolved values are pointers to
// structs; an invalid reflect.Value marks a missing target that the reference ignores.
// ResolveMany returns one value per ref, in order.
type ReferenceResolver interface {
	ResolveOne(dc *DecodeContext, ref Ref) (reflect.Value, error)
	ResolveMany(dc *DecodeContext, refs []Ref) ([]reflect.Value, error)
}

// referenceCodec stores only the identifier of the referenced entity, or a DBRef document
// when the field asks for one or the target is polymorphic
type referenceCodec struct {
	reg      *Registry
	field    *mapping.MappedField
	target   reflect.Type
	targetMT *mapping.MappedType
}

func (r *Registry) buildReference(a *arena, mt *mapping.MappedType, f *mapping.MappedField) (Codec, error) {
	c := &referenceCodec{reg: r, field: f, target: f.Elem}
	if f.Elem.Kind() == reflect.Struct {
		target, err := r.mapper.Resolve(f.Elem)
		if err != nil {
			return nil, &ResolutionError{Type: mt.Name, Path: a.pathString(), Err: err}
		}
		c.targetMT = target
	}
	if f.Container == mapping.ShapeMap {
		if _, err := newKeyCodec(f.Key); err != nil {
			return nil, &ResolutionError{Type: mt.Name, Path: a.pathString(), Reason: err.Error()}
		}
	}
	return c, nil
}

func (c *referenceCodec) Kind() Kind { return KindReference }

func (c *referenceCodec) dbref() bool {
	return c.field.DBRef || c.target.Kind() == reflect.Interface
}

func (c *referenceCodec) EncodeValue(ec *EncodeContext, w *document.Writer, v reflect.Value) error {
	for v.Kind() == reflect.Ptr && v.Type().Elem().Kind() != reflect.Struct {
		if v.IsNil() {
			return w.WriteNull()
		}
		v = v.Elem()
	}

	switch c.field.Container {
	case mapping.ShapeScalar:
		return c.encodeOne(ec, w, v)
	case mapping.ShapeCollection, mapping.ShapeArray:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return w.WriteNull()
		}
		if err := w.WriteStartArray(); err != nil {
			return err
		}
		for i := 0; i < v.Len(); i++ {
			ec.pushIndex(i)
			err := ec.fail(c.encodeOne(ec, w, v.Index(i)))
			ec.pop()
			if err != nil {
				return err
			}
		}
		return w.WriteEndArray()
	case mapping.ShapeMap:
		if v.IsNil() {
			return w.WriteNull()
		}
		keys, _ := newKeyCodec(v.Type().Key())
		sorted, err := keys.sorted(v)
		if err != nil {
			return err
		}
		if err := w.WriteStartDocument(); err != nil {
			return err
		}
		for _, k := range sorted {
			if err := w.WriteName(k.name); err != nil {
				return err
			}
			ec.push(k.name)
			err := ec.fail(c.encodeOne(ec, w, v.MapIndex(k.value)))
			ec.pop()
			if err != nil {
				return err
			}
		}
		return w.WriteEndDocument()
	}
	return fmt.Errorf("unsupported reference container %s", c.field.Container)
}

func (c *referenceCodec) encodeOne(ec *EncodeContext, w *document.Writer, v reflect.Value) error {
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return w.WriteNull()
		}
		v = v.Elem()
	}
	id, mt, err := ec.registry.entityID(ec, v)
	if err != nil {
		return err
	}
	if !c.dbref() {
		return w.WriteValue(id)
	}
	ref := document.NewDocument(
		document.E(DBRefCollectionKey, document.String(mt.Collection)),
		document.E(DBRefIDKey, id),
	)
	return w.WriteValue(document.Doc(ref))
}

// EntityID returns the stored identifier of the entity v, which may be a struct or a
// pointer to one
func (r *Registry) EntityID(v interface{}) (document.Value, error) {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && (rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface) {
		if rv.IsNil() {
			return document.Value{}, fmt.Errorf("%w: nil entity", ErrInvalidTarget)
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return document.Value{}, fmt.Errorf("%w: nil entity", ErrInvalidTarget)
	}
	id, _, err := r.entityID(newEncodeContext(r), rv)
	return id, err
}

func (r *Registry) entityID(ec *EncodeContext, v reflect.Value) (document.Value, *mapping.MappedType, error) {
	if v.Kind() != reflect.Struct {
		return document.Value{}, nil, fmt.Errorf("%w: reference to %s is not an entity", ErrInvalidTarget, v.Type())
	}
	mt, err := r.mapper.Resolve(v.Type())
	if err != nil {
		return document.Value{}, nil, err
	}
	idv, err := mt.IDValue(v)
	if err != nil {
		return document.Value{}, nil, err
	}
	// An identifier that is itself an entity is stored as that entity's identifier.
	for depth := 0; ; depth++ {
		inner, ok := indirectValue(idv)
		if !ok || !isMappedStruct(inner.Type()) {
			break
		}
		innerMT, err := r.mapper.Resolve(inner.Type())
		if err != nil {
			return document.Value{}, nil, err
		}
		if !innerMT.IsEntity() {
			break
		}
		if depth >= r.maxDepth {
			return document.Value{}, nil, fmt.Errorf("%w: identifier of %s", ErrMaxDepth, mt.Name)
		}
		if idv, err = innerMT.IDValue(inner); err != nil {
			return document.Value{}, nil, err
		}
	}
	id, err := r.encodeReflect(ec, idv)
	if err != nil {
		return document.Value{}, nil, err
	}
	return id, mt, nil
}

// indirectValue follows pointers and interfaces, reporting false at a nil
func indirectValue(v reflect.Value) (reflect.Value, bool) {
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	return v, v.IsValid()
}

// readRef reads the pending reference. A stored null yields ok == false.
func (c *referenceCodec) readRef(dc *DecodeContext, r *document.Reader) (Ref, bool, error) {
	val, err := r.ReadValue()
	if err != nil {
		return Ref{}, false, err
	}
	if val.IsNull() {
		return Ref{}, false, nil
	}

	ref := Ref{Type: c.target, ID: val, IgnoreMissing: c.field.IgnoreMissing, Path: dc.Path()}
	if c.targetMT != nil {
		ref.Collection = c.targetMT.Collection
	}
	if d, ok := val.DocumentOK(); ok {
		coll, hasColl := d.Lookup(DBRefCollectionKey)
		id, hasID := d.Lookup(DBRefIDKey)
		if hasColl && hasID {
			name, ok := coll.StringOK()
			if !ok {
				return Ref{}, false, &document.TypeMismatchError{Expected: document.TagString, Actual: coll.Tag(), Name: DBRefCollectionKey}
			}
			ref.Collection = name
			ref.ID = id
		}
	}
	if ref.Collection == "" {
		return Ref{}, false, fmt.Errorf("reference to %s carries no collection", c.target)
	}
	return ref, true, nil
}

func (c *referenceCodec) DecodeValue(dc *DecodeContext, r *document.Reader, v reflect.Value) error {
	if r.CurrentType() == document.TagNull {
		v.Set(reflect.Zero(v.Type()))
		return r.ReadNull()
	}

	switch c.field.Container {
	case mapping.ShapeScalar:
		return c.decodeOne(dc, r, v)
	case mapping.ShapeCollection, mapping.ShapeArray:
		return c.decodeSequence(dc, r, v)
	case mapping.ShapeMap:
		return c.decodeMap(dc, r, v)
	}
	return fmt.Errorf("unsupported reference container %s", c.field.Container)
}

func (c *referenceCodec) decodeOne(dc *DecodeContext, r *document.Reader, v reflect.Value) error {
	ref, ok, err := c.readRef(dc, r)
	if err != nil || !ok {
		return err
	}
	var inst reflect.Value
	if dc.Resolver != nil {
		inst, err = dc.Resolver.ResolveOne(dc, ref)
	} else {
		inst, err = c.reg.stub(dc, ref)
	}
	if err != nil {
		return err
	}
	return assignInstance(derefTarget(v), inst)
}

// derefTarget allocates through pointers to pointers so a resolved *T can be assigned
func derefTarget(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Ptr && v.Type().Elem().Kind() == reflect.Ptr {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}
	return v
}

// resolveAll resolves refs in one batch
func (c *referenceCodec) resolveAll(dc *DecodeContext, refs []Ref) ([]reflect.Value, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	if dc.Resolver != nil {
		out, err := dc.Resolver.ResolveMany(dc, refs)
		if err != nil {
			return nil, err
		}
		if len(out) != len(refs) {
			return nil, fmt.Errorf("resolver returned %d values for %d references", len(out), len(refs))
		}
		return out, nil
	}
	out := make([]reflect.Value, len(refs))
	for i, ref := range refs {
		inst, err := c.reg.stub(dc, ref)
		if err != nil {
			return nil, err
		}
		out[i] = inst
	}
	return out, nil
}

func (c *referenceCodec) decodeSequence(dc *DecodeContext, r *document.Reader, v reflect.Value) error {
	v = derefTarget(v)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}
	if err := r.ReadStartArray(); err != nil {
		return err
	}

	var (
		refs      []Ref
		positions []int
	)
	count := 0
	for ; ; count++ {
		tag, err := r.ReadNextType()
		if err != nil {
			return err
		}
		if tag == document.TagEnd {
			break
		}
		dc.pushIndex(count)
		ref, ok, err := c.readRef(dc, r)
		dc.pop()
		if err != nil {
			return err
		}
		if ok {
			refs = append(refs, ref)
			positions = append(positions, count)
		}
	}
	if err := r.ReadEndArray(); err != nil {
		return err
	}

	resolved, err := c.resolveAll(dc, refs)
	if err != nil {
		return err
	}

	if v.Kind() == reflect.Array {
		if count > v.Len() {
			return fmt.Errorf("stored array is longer than %s", v.Type())
		}
		out := reflect.New(v.Type()).Elem()
		for i, inst := range resolved {
			if !inst.IsValid() {
				continue
			}
			if err := assignInstance(out.Index(positions[i]), inst); err != nil {
				return err
			}
		}
		v.Set(out)
		return nil
	}

	// Stored nulls keep their position; ignored missing targets are dropped.
	out := reflect.MakeSlice(v.Type(), 0, count)
	next := 0
	for pos := 0; pos < count; pos++ {
		if next < len(positions) && positions[next] == pos {
			inst := resolved[next]
			next++
			if !inst.IsValid() {
				continue
			}
			elem := reflect.New(v.Type().Elem()).Elem()
			if err := assignInstance(elem, inst); err != nil {
				return err
			}
			out = reflect.Append(out, elem)
			continue
		}
		out = reflect.Append(out, reflect.Zero(v.Type().Elem()))
	}
	v.Set(out)
	return nil
}

func (c *referenceCodec) decodeMap(dc *DecodeContext, r *document.Reader, v reflect.Value) error {
	v = derefTarget(v)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}
	keys, err := newKeyCodec(v.Type().Key())
	if err != nil {
		return err
	}
	if err := r.ReadStartDocument(); err != nil {
		return err
	}

	var (
		refs  []Ref
		names []string
		nulls []string
	)
	for {
		tag, err := r.ReadNextType()
		if err != nil {
			return err
		}
		if tag == document.TagEnd {
			break
		}
		name := r.CurrentName()
		dc.push(name)
		ref, ok, err := c.readRef(dc, r)
		dc.pop()
		if err != nil {
			return err
		}
		if ok {
			refs = append(refs, ref)
			names = append(names, name)
		} else {
			nulls = append(nulls, name)
		}
	}
	if err := r.ReadEndDocument(); err != nil {
		return err
	}

	resolved, err := c.resolveAll(dc, refs)
	if err != nil {
		return err
	}
	out := reflect.MakeMap(v.Type())
	for _, name := range nulls {
		key, err := keys.parse(name)
		if err != nil {
			return err
		}
		out.SetMapIndex(key, reflect.Zero(v.Type().Elem()))
	}
	for i, inst := range resolved {
		if !inst.IsValid() {
			continue
		}
		key, err := keys.parse(names[i])
		if err != nil {
			return err
		}
		elem := reflect.New(v.Type().Elem()).Elem()
		if err := assignInstance(elem, inst); err != nil {
			return err
		}
		out.SetMapIndex(key, elem)
	}
	v.Set(out)
	return nil
}

// assignInstance stores the resolved pointer inst into v, which may be a pointer, a struct
// or an interface. An invalid inst leaves v at its zero value.
func assignInstance(v, inst reflect.Value) error {
	if !inst.IsValid() {
		v.Set(reflect.Zero(v.Type()))
		return nil
	}
	switch {
	case inst.Type().AssignableTo(v.Type()):
		v.Set(inst)
	case inst.Kind() == reflect.Ptr && inst.Type().Elem().AssignableTo(v.Type()):
		v.Set(inst.Elem())
	default:
		return fmt.Errorf("%w: cannot assign %s to %s", ErrInvalidTarget, inst.Type(), v.Type())
	}
	return nil
}

// ConcreteType picks the struct type a referenced document decodes into. Struct targets
// decode as themselves; interface targets use the stored discriminator, or the single
// entity type mapped to the collection.
func (r *Registry) ConcreteType(target reflect.Type, collection string, doc *document.Document) (reflect.Type, error) {
	if target.Kind() != reflect.Interface {
		return target, nil
	}
	if doc != nil {
		var (
			unknown string
			seen    bool
		)
		for _, key := range r.mapper.DiscriminatorKeys() {
			val, ok := doc.Lookup(key)
			if !ok {
				continue
			}
			name, _ := val.StringOK()
			if key == r.mapper.DiscriminatorKey() || usesKey(r.mapper, name, key) {
				t, ok := r.mapper.TypeForDiscriminator(name)
				if !ok {
					return nil, fmt.Errorf("%w: %q", ErrUnknownDiscriminator, name)
				}
				return t, nil
			}
			if !seen {
				unknown, seen = name, true
			}
		}
		if seen {
			return nil, fmt.Errorf("%w: %q", ErrUnknownDiscriminator, unknown)
		}
	}
	candidates := r.implementing(target, r.mapper.TypesForCollection(collection))
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	return nil, fmt.Errorf("%w: %d types in collection %q implement %s", ErrUnknownDiscriminator, len(candidates), collection, target)
}

// CandidateTypes returns the struct types a reference to target in collection may decode
// into
func (r *Registry) CandidateTypes(target reflect.Type, collection string) []reflect.Type {
	if target.Kind() != reflect.Interface {
		return []reflect.Type{target}
	}
	return r.implementing(target, r.mapper.TypesForCollection(collection))
}

func (r *Registry) implementing(iface reflect.Type, types []reflect.Type) []reflect.Type {
	out := types[:0:0]
	for _, t := range types {
		if t.Implements(iface) || reflect.PtrTo(t).Implements(iface) {
			out = append(out, t)
		}
	}
	return out
}

// Materialize returns the instance of t cached for the document's identifier, or creates
// one, caches it and decodes doc into it. Caching comes first so references back to the
// entity resolve to the same instance while it is decoded.
func (r *Registry) Materialize(dc *DecodeContext, t reflect.Type, doc *document.Document) (reflect.Value, error) {
	id, ok := doc.Lookup(mapping.IDStorageName)
	if !ok {
		return reflect.Value{}, &DecodeError{Type: mapping.TypeName(t), Err: fmt.Errorf("document has no %s", mapping.IDStorageName)}
	}
	if inst, ok := dc.Cache.Get(t, id); ok {
		return inst, nil
	}
	inst := reflect.New(t)
	dc.Cache.Put(t, id, inst)
	err := dc.withFreshPath(func() error {
		return r.DecodeDocument(dc, doc, inst.Elem())
	})
	if err != nil {
		return reflect.Value{}, err
	}
	return inst, nil
}

// stub returns an instance carrying only the identifier, for decodes without a resolver
func (r *Registry) stub(dc *DecodeContext, ref Ref) (reflect.Value, error) {
	t, err := r.ConcreteType(ref.Type, ref.Collection, nil)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("%w: %v", ErrNoResolver, err)
	}
	if inst, ok := dc.Cache.Get(t, ref.ID); ok {
		return inst, nil
	}
	mt, err := r.mapper.Resolve(t)
	if err != nil {
		return reflect.Value{}, err
	}
	if !mt.IsEntity() {
		return reflect.Value{}, fmt.Errorf("%w: %s has no identifier", ErrInvalidTarget, mt.Name)
	}
	inst := mt.New()
	if err := r.DecodeInto(dc, ref.ID, inst.Elem().FieldByIndex(mt.ID.Index)); err != nil {
		return reflect.Value{}, err
	}
	dc.Cache.Put(t, ref.ID, inst)
	return inst, nil
}
