package codec

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/conduit-lang/docmap/pkg/document"
	"github.com/conduit-lang/docmap/pkg/mapping"
)

// DefaultMaxDepth bounds nesting during encode and decode
const DefaultMaxDepth = 64

// Registry resolves a codec for each Go type and caches it for the registry's lifetime.
//
// Published codecs live in a concurrent map and are read without locking. Construction
// runs under a single build lock: each build pass records the types it is constructing in
// an arena, hands out placeholders for types that are requested again while still under
// construction, and publishes every codec it built only once the whole pass succeeded.
type Registry struct {
	mapper    *mapping.Mapper
	logger    *zap.Logger
	lenient   bool
	maxDepth  int
	overrides map[reflect.Type]Codec

	codecs  sync.Map // reflect.Type -> Codec
	buildMu sync.Mutex
}

// Option configures a Registry
type Option func(*Registry)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithLenientDecoding downgrades a type mismatch on a single struct field to a logged
// warning; the field is left at its zero value
func WithLenientDecoding() Option {
	return func(r *Registry) {
		r.lenient = true
	}
}

// WithMaxDepth bounds nesting during encode and decode
func WithMaxDepth(depth int) Option {
	return func(r *Registry) {
		if depth > 0 {
			r.maxDepth = depth
		}
	}
}

// WithCodec installs a codec for t ahead of the built-in variants
func WithCodec(t reflect.Type, c Codec) Option {
	return func(r *Registry) {
		r.overrides[t] = c
	}
}

// NewRegistry creates a registry over mapper. A nil mapper gets a default one.
func NewRegistry(mapper *mapping.Mapper, opts ...Option) *Registry {
	if mapper == nil {
		mapper = mapping.NewMapper()
	}
	r := &Registry{
		mapper:    mapper,
		logger:    zap.NewNop(),
		maxDepth:  DefaultMaxDepth,
		overrides: make(map[reflect.Type]Codec),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Mapper returns the type metadata model used by the registry
func (r *Registry) Mapper() *mapping.Mapper {
	return r.mapper
}

// Lenient reports whether lenient decoding is enabled
func (r *Registry) Lenient() bool {
	return r.lenient
}

// MaxDepth returns the nesting limit of encode and decode
func (r *Registry) MaxDepth() int {
	return r.maxDepth
}

// Lookup returns the codec for t, building and publishing it on first use
func (r *Registry) Lookup(t reflect.Type) (Codec, error) {
	if t == nil {
		return nil, &ResolutionError{Type: "<nil>", Reason: "nil type"}
	}
	if c, ok := r.codecs.Load(t); ok {
		return c.(Codec), nil
	}

	r.buildMu.Lock()
	defer r.buildMu.Unlock()

	if c, ok := r.codecs.Load(t); ok {
		return c.(Codec), nil
	}

	a := newArena()
	c, err := r.resolve(a, t)
	if err != nil {
		r.logger.Debug("codec resolution failed", zap.String("type", t.String()), zap.Error(err))
		return nil, err
	}
	a.publish(r)
	r.logger.Debug("published codecs", zap.String("type", t.String()), zap.Int("count", len(a.slots)))
	return c, nil
}

// Respecialize switches whether t always writes its discriminator. Struct codecs read
// discriminator settings from the mapper on every encode, so no codec is rebuilt.
func (r *Registry) Respecialize(t reflect.Type, always bool) error {
	_, err := r.mapper.Respecialize(t, always)
	return err
}

// slot is one arena entry; codec is nil while the type is under construction
type slot struct {
	t     reflect.Type
	codec Codec
}

type fieldHandle struct {
	field *mapping.MappedField
	codec Codec
}

// arena holds the state of one build pass
type arena struct {
	slots  []*slot
	byType map[reflect.Type]int
	fields []fieldHandle
	path   []string
}

func newArena() *arena {
	return &arena{byType: make(map[reflect.Type]int)}
}

func (a *arena) pathString() string {
	return strings.Join(a.path, ".")
}

func (a *arena) publish(r *Registry) {
	for _, s := range a.slots {
		r.codecs.LoadOrStore(s.t, s.codec)
	}
	for _, h := range a.fields {
		h.field.StoreCodec(r, h.codec)
	}
}

// resolve returns a published codec, the finished codec of this pass, a placeholder for a
// type still under construction, or builds a new one
func (r *Registry) resolve(a *arena, t reflect.Type) (Codec, error) {
	if c, ok := r.codecs.Load(t); ok {
		return c.(Codec), nil
	}
	if idx, ok := a.byType[t]; ok {
		if c := a.slots[idx].codec; c != nil {
			return c, nil
		}
		return &placeholder{arena: a, index: idx, t: t}, nil
	}

	idx := len(a.slots)
	a.slots = append(a.slots, &slot{t: t})
	a.byType[t] = idx

	c, err := r.build(a, t)
	if err != nil {
		return nil, err
	}
	a.slots[idx].codec = c
	return c, nil
}

func (r *Registry) build(a *arena, t reflect.Type) (Codec, error) {
	if c, ok := r.overrides[t]; ok {
		return c, nil
	}
	if c, ok := wellKnownCodec(t); ok {
		return c, nil
	}
	if t.Kind() != reflect.Ptr && t.Kind() != reflect.Interface && mapping.IsEnum(t) {
		return newEnumCodec(t), nil
	}

	switch t.Kind() {
	case reflect.Ptr:
		elem, err := r.resolve(a, t.Elem())
		if err != nil {
			return nil, err
		}
		return &pointerCodec{t: t, elem: elem}, nil
	case reflect.Interface:
		if t.NumMethod() == 0 {
			return &anyCodec{t: t}, nil
		}
		return &discriminatedCodec{t: t}, nil
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return newBytesCodec(t), nil
		}
		elem, err := r.resolve(a, t.Elem())
		if err != nil {
			return nil, err
		}
		return &collectionCodec{t: t, elem: elem}, nil
	case reflect.Array:
		elem, err := r.resolve(a, t.Elem())
		if err != nil {
			return nil, err
		}
		return &arrayCodec{t: t, elem: elem}, nil
	case reflect.Map:
		keys, err := newKeyCodec(t.Key())
		if err != nil {
			return nil, &ResolutionError{Type: t.String(), Path: a.pathString(), Reason: err.Error()}
		}
		elem, err := r.resolve(a, t.Elem())
		if err != nil {
			return nil, err
		}
		return &mapCodec{t: t, keys: keys, elem: elem}, nil
	case reflect.Struct:
		return r.buildStruct(a, t)
	case reflect.Chan, reflect.Func, reflect.Complex64, reflect.Complex128, reflect.UnsafePointer, reflect.Uintptr:
		return nil, &ResolutionError{
			Type:   t.String(),
			Path:   a.pathString(),
			Reason: fmt.Sprintf("%s values cannot be stored in a document", t.Kind()),
		}
	}

	if c, ok := newKindCodec(t); ok {
		return c, nil
	}
	return nil, &ResolutionError{Type: t.String(), Path: a.pathString(), Reason: "unsupported kind " + t.Kind().String()}
}

// placeholder is a forward reference to a codec still under construction in the same
// pass. It is only reachable through codecs of that pass, which are published after the
// pass completes, so the slot is filled by the time the placeholder is first used.
type placeholder struct {
	arena  *arena
	index  int
	t      reflect.Type
	target atomic.Pointer[codecBox]
}

type codecBox struct {
	codec Codec
}

func (p *placeholder) resolved() (Codec, error) {
	if box := p.target.Load(); box != nil {
		return box.codec, nil
	}
	c := p.arena.slots[p.index].codec
	if c == nil {
		return nil, &ResolutionError{Type: p.t.String(), Reason: "codec used before its construction completed"}
	}
	p.target.Store(&codecBox{codec: c})
	return c, nil
}

func (p *placeholder) Kind() Kind { return KindPlaceholder }

func (p *placeholder) EncodeValue(ec *EncodeContext, w *document.Writer, v reflect.Value) error {
	c, err := p.resolved()
	if err != nil {
		return err
	}
	return c.EncodeValue(ec, w, v)
}

func (p *placeholder) DecodeValue(dc *DecodeContext, r *document.Reader, v reflect.Value) error {
	c, err := p.resolved()
	if err != nil {
		return err
	}
	return c.DecodeValue(dc, r, v)
}

// Encode encodes v, which must map to a document
func (r *Registry) Encode(v interface{}) (*document.Document, error) {
	root, err := r.EncodeValue(v)
	if err != nil {
		return nil, err
	}
	d, ok := root.DocumentOK()
	if !ok {
		return nil, &EncodeError{
			Type: fmt.Sprintf("%T", v),
			Err:  &document.TypeMismatchError{Expected: document.TagDocument, Actual: root.Tag()},
		}
	}
	return d, nil
}

// EncodeValue encodes any codec-resolvable value
func (r *Registry) EncodeValue(v interface{}) (document.Value, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return document.Null(), nil
	}
	return r.encodeReflect(newEncodeContext(r), rv)
}

func (r *Registry) encodeReflect(ec *EncodeContext, rv reflect.Value) (document.Value, error) {
	c, err := r.Lookup(rv.Type())
	if err != nil {
		return document.Value{}, err
	}
	w := document.NewWriter()
	if err := c.EncodeValue(ec, w, rv); err != nil {
		return document.Value{}, err
	}
	return w.Root()
}

// Decode decodes doc into dst, which must be a non-nil pointer. Each call is one decode
// operation with its own entity cache.
func (r *Registry) Decode(ctx context.Context, doc *document.Document, dst interface{}, resolver ReferenceResolver) error {
	rv := reflect.ValueOf(dst)
	if !rv.IsValid() || rv.Kind() != reflect.Ptr || rv.IsNil() {
		return ErrInvalidTarget
	}
	if doc == nil {
		return &DecodeError{Type: mapping.TypeName(rv.Type()), Err: document.ErrIncomplete}
	}

	dc := r.NewDecodeContext(ctx, resolver)
	r.cacheRoot(dc, doc, rv)
	return r.DecodeDocument(dc, doc, rv.Elem())
}

// cacheRoot makes the root entity visible to references that point back at it
func (r *Registry) cacheRoot(dc *DecodeContext, doc *document.Document, rv reflect.Value) {
	t := rv.Type().Elem()
	if t.Kind() != reflect.Struct {
		return
	}
	mt, err := r.mapper.Resolve(t)
	if err != nil || !mt.IsEntity() {
		return
	}
	if id, ok := doc.Lookup(mapping.IDStorageName); ok {
		dc.Cache.Put(t, id, rv)
	}
}

// DecodeDocument decodes doc into the settable value v within an existing operation
func (r *Registry) DecodeDocument(dc *DecodeContext, doc *document.Document, v reflect.Value) error {
	return r.DecodeInto(dc, document.Doc(doc), v)
}

// DecodeInto decodes a single value into the settable value v within an existing operation
func (r *Registry) DecodeInto(dc *DecodeContext, val document.Value, v reflect.Value) error {
	c, err := r.Lookup(v.Type())
	if err != nil {
		return err
	}
	rd := document.NewReader(val)
	if _, err := rd.ReadNextType(); err != nil {
		return err
	}
	return c.DecodeValue(dc, rd, v)
}
