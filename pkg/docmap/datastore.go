// Package docmap ties the type model, codecs, reference resolution and query building to
// a storage backend.
package docmap

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/conduit-lang/docmap/pkg/codec"
	"github.com/conduit-lang/docmap/pkg/criteria"
	"github.com/conduit-lang/docmap/pkg/document"
	"github.com/conduit-lang/docmap/pkg/mapping"
	"github.com/conduit-lang/docmap/pkg/reference"
	"github.com/conduit-lang/docmap/pkg/store"
)

// ErrNotEntity is returned when a value's type has no identifier field
var ErrNotEntity = errors.New("not an entity")

// Datastore maps entities to and from a store
type Datastore struct {
	store     store.Store
	mapper    *mapping.Mapper
	registry  *codec.Registry
	resolver  *reference.Resolver
	validator *criteria.Validator
	logger    *zap.Logger

	mapperOpts   []mapping.Option
	codecOpts    []codec.Option
	criteriaOpts []criteria.Option
	generateIDs  bool
}

// Option configures a Datastore
type Option func(*Datastore)

// WithLogger sets the logger shared by every component
func WithLogger(logger *zap.Logger) Option {
	return func(d *Datastore) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMapperOptions passes options to the type mapper
func WithMapperOptions(opts ...mapping.Option) Option {
	return func(d *Datastore) {
		d.mapperOpts = append(d.mapperOpts, opts...)
	}
}

// WithCodecOptions passes options to the codec registry
func WithCodecOptions(opts ...codec.Option) Option {
	return func(d *Datastore) {
		d.codecOpts = append(d.codecOpts, opts...)
	}
}

// WithCriteriaOptions passes options to the query validator
func WithCriteriaOptions(opts ...criteria.Option) Option {
	return func(d *Datastore) {
		d.criteriaOpts = append(d.criteriaOpts, opts...)
	}
}

// WithGeneratedIDs controls whether Save fills in empty identifiers. Enabled by default.
func WithGeneratedIDs(generate bool) Option {
	return func(d *Datastore) {
		d.generateIDs = generate
	}
}

// New creates a datastore over s
func New(s store.Store, opts ...Option) *Datastore {
	d := &Datastore{
		store:       s,
		logger:      zap.NewNop(),
		generateIDs: true,
	}
	for _, opt := range opts {
		opt(d)
	}

	d.mapper = mapping.NewMapper(append([]mapping.Option{mapping.WithLogger(d.logger)}, d.mapperOpts...)...)
	d.registry = codec.NewRegistry(d.mapper, append([]codec.Option{codec.WithLogger(d.logger)}, d.codecOpts...)...)
	d.resolver = reference.New(s, reference.WithLogger(d.logger))
	d.validator = criteria.NewValidator(d.registry, append([]criteria.Option{criteria.WithLogger(d.logger)}, d.criteriaOpts...)...)
	return d
}

// Mapper returns the type mapper
func (d *Datastore) Mapper() *mapping.Mapper { return d.mapper }

// Registry returns the codec registry
func (d *Datastore) Registry() *codec.Registry { return d.registry }

// Validator returns the query validator
func (d *Datastore) Validator() *criteria.Validator { return d.validator }

// Store returns the underlying store
func (d *Datastore) Store() store.Store { return d.store }

// Register maps the types of samples ahead of first use
func (d *Datastore) Register(samples ...interface{}) error {
	return d.mapper.Register(samples...)
}

// Encode encodes v into a document
func (d *Datastore) Encode(v interface{}) (*document.Document, error) {
	return d.registry.Encode(v)
}

// Decode decodes doc into dst, resolving references through the store
func (d *Datastore) Decode(ctx context.Context, doc *document.Document, dst interface{}) error {
	return d.registry.Decode(ctx, doc, dst, d.resolver)
}

// Query starts a query against the type of sample
func (d *Datastore) Query(sample interface{}) *criteria.Query {
	return d.validator.Query(sample)
}

// Save stores entity in its collection and returns its identifier. When entity is a
// pointer with an empty ObjectID, UUID or string identifier, one is generated first.
func (d *Datastore) Save(ctx context.Context, entity interface{}) (document.Value, error) {
	mt, rv, err := d.entity(entity)
	if err != nil {
		return document.Value{}, err
	}
	if d.generateIDs {
		if err := generateID(mt, rv); err != nil {
			return document.Value{}, err
		}
	}

	doc, err := d.registry.Encode(entity)
	if err != nil {
		return document.Value{}, err
	}
	id, ok := doc.Lookup(mapping.IDStorageName)
	if !ok || id.IsNull() {
		return document.Value{}, fmt.Errorf("%w: %s", store.ErrMissingID, mt.Name)
	}
	if err := d.store.Put(ctx, mt.Collection, doc); err != nil {
		return document.Value{}, err
	}

	d.logger.Debug("saved entity",
		zap.String("collection", mt.Collection),
		zap.Stringer("id", id),
	)
	return id, nil
}

// FindByID loads the entity stored under id into dst, a pointer to a mapped struct
func (d *Datastore) FindByID(ctx context.Context, id interface{}, dst interface{}) error {
	mt, err := d.target(reflect.TypeOf(dst))
	if err != nil {
		return err
	}
	idv, err := d.idValue(id)
	if err != nil {
		return err
	}

	doc, err := d.store.FetchByID(ctx, mt.Collection, idv)
	if err != nil {
		return err
	}
	return d.registry.Decode(ctx, doc, dst, d.resolver)
}

// FindByIDs loads the entities stored under ids into dst, a pointer to a slice of the
// entity type or of pointers to it. Missing ids are skipped; the rest keep their order.
// All entities share one entity cache.
func (d *Datastore) FindByIDs(ctx context.Context, ids interface{}, dst interface{}) error {
	dv := reflect.ValueOf(dst)
	if dv.Kind() != reflect.Ptr || dv.IsNil() || dv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("%w: FindByIDs needs a pointer to a slice, got %T", codec.ErrInvalidTarget, dst)
	}
	slice := dv.Elem()
	elem := slice.Type().Elem()
	mt, err := d.target(elem)
	if err != nil {
		return err
	}

	idvs, err := d.idValues(ids)
	if err != nil {
		return err
	}
	docs, err := d.store.FetchByIDs(ctx, mt.Collection, idvs)
	if err != nil {
		return err
	}

	dc := d.registry.NewDecodeContext(ctx, d.resolver)
	out := reflect.MakeSlice(slice.Type(), 0, len(docs))
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		inst, err := d.registry.Materialize(dc, mt.Type, doc)
		if err != nil {
			return err
		}
		if elem.Kind() != reflect.Ptr {
			inst = inst.Elem()
		}
		out = reflect.Append(out, inst)
	}
	slice.Set(out)
	return nil
}

// Delete removes entity from its collection
func (d *Datastore) Delete(ctx context.Context, entity interface{}) error {
	mt, _, err := d.entity(entity)
	if err != nil {
		return err
	}
	id, err := d.registry.EntityID(entity)
	if err != nil {
		return err
	}
	return d.store.Delete(ctx, mt.Collection, id)
}

// Close closes the underlying store
func (d *Datastore) Close() error {
	return d.store.Close()
}

func (d *Datastore) entity(v interface{}) (*mapping.MappedType, reflect.Value, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() == reflect.Ptr && rv.IsNil()) {
		return nil, reflect.Value{}, codec.ErrInvalidTarget
	}
	mt, err := d.target(rv.Type())
	if err != nil {
		return nil, reflect.Value{}, err
	}
	return mt, rv, nil
}

// target returns the entity model of t, following pointers
func (d *Datastore) target(t reflect.Type) (*mapping.MappedType, error) {
	if t == nil {
		return nil, codec.ErrInvalidTarget
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct", codec.ErrInvalidTarget, t)
	}
	mt, err := d.mapper.Resolve(t)
	if err != nil {
		return nil, err
	}
	if !mt.IsEntity() {
		return nil, fmt.Errorf("%w: %s", ErrNotEntity, mt.Name)
	}
	return mt, nil
}

func (d *Datastore) idValue(id interface{}) (document.Value, error) {
	if v, ok := id.(document.Value); ok {
		return v, nil
	}
	return d.registry.EncodeValue(id)
}

func (d *Datastore) idValues(ids interface{}) ([]document.Value, error) {
	if vals, ok := ids.([]document.Value); ok {
		return vals, nil
	}
	rv := reflect.ValueOf(ids)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("ids must be a slice, got %T", ids)
	}
	out := make([]document.Value, rv.Len())
	for i := range out {
		v, err := d.idValue(rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

var (
	objectIDType = reflect.TypeOf(primitive.ObjectID{})
	uuidType     = reflect.TypeOf(uuid.UUID{})
)

// generateID fills an empty identifier of a settable entity
func generateID(mt *mapping.MappedType, rv reflect.Value) error {
	if rv.Kind() != reflect.Ptr {
		return nil
	}
	idv, err := mt.IDValue(rv)
	if err != nil {
		return err
	}
	if !idv.IsZero() || !idv.CanSet() {
		return nil
	}

	switch idv.Type() {
	case objectIDType:
		idv.Set(reflect.ValueOf(primitive.NewObjectID()))
	case uuidType:
		idv.Set(reflect.ValueOf(uuid.New()))
	default:
		if idv.Kind() == reflect.String {
			idv.SetString(uuid.NewString())
		}
	}
	return nil
}
