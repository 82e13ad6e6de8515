// Package mapping derives and caches the structural model of mapped Go types.
package mapping

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// DefaultDiscriminatorKey is the document key holding a concrete type's discriminator
const DefaultDiscriminatorKey = "_t"

// IDStorageName is the storage name of every identifier field
const IDStorageName = "_id"

// Mapper builds MappedTypes on demand and memoizes them for its lifetime. Construction is
// serialized per type so exactly one MappedType is published for each type; published
// entries are read without locking.
type Mapper struct {
	introspector       Introspector
	logger             *zap.Logger
	discriminatorKey   string
	alwaysDiscriminate bool

	types sync.Map // reflect.Type -> *MappedType
	locks sync.Map // reflect.Type -> *sync.Mutex

	mu                sync.RWMutex
	byDiscriminator   map[string]reflect.Type
	byCollection      map[string][]reflect.Type
	discriminatorKeys map[string]struct{}
}

// Option configures a Mapper
type Option func(*Mapper)

// WithIntrospector replaces the struct tag introspector
func WithIntrospector(i Introspector) Option {
	return func(m *Mapper) {
		m.introspector = i
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(m *Mapper) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithDiscriminatorKey sets the default discriminator key
func WithDiscriminatorKey(key string) Option {
	return func(m *Mapper) {
		if key != "" {
			m.discriminatorKey = key
		}
	}
}

// WithAlwaysDiscriminate makes every type write its discriminator
func WithAlwaysDiscriminate(always bool) Option {
	return func(m *Mapper) {
		m.alwaysDiscriminate = always
	}
}

// NewMapper creates a new mapper
func NewMapper(opts ...Option) *Mapper {
	m := &Mapper{
		introspector:      NewTagIntrospector(),
		logger:            zap.NewNop(),
		discriminatorKey:  DefaultDiscriminatorKey,
		byDiscriminator:   make(map[string]reflect.Type),
		byCollection:      make(map[string][]reflect.Type),
		discriminatorKeys: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.discriminatorKeys[m.discriminatorKey] = struct{}{}
	return m
}

// DiscriminatorKey returns the default discriminator key
func (m *Mapper) DiscriminatorKey() string {
	return m.discriminatorKey
}

// Resolve returns the MappedType for t, building it on first use. Pointer types resolve to
// their element type.
func (m *Mapper) Resolve(t reflect.Type) (*MappedType, error) {
	if t == nil {
		return nil, &SchemaError{Message: "cannot map a nil type"}
	}
	t = deref(t)

	if cached, ok := m.types.Load(t); ok {
		return cached.(*MappedType), nil
	}

	lock := m.lockFor(t)
	lock.Lock()
	defer lock.Unlock()

	if cached, ok := m.types.Load(t); ok {
		return cached.(*MappedType), nil
	}

	mt, err := m.build(t)
	if err != nil {
		m.logger.Debug("mapping failed", zap.String("type", TypeName(t)), zap.Error(err))
		return nil, err
	}
	if err := m.index(mt); err != nil {
		return nil, err
	}

	m.types.Store(t, mt)
	m.logger.Debug("mapped type",
		zap.String("type", mt.Name),
		zap.String("collection", mt.Collection),
		zap.Int("fields", len(mt.Fields)),
	)
	return mt, nil
}

// Cached returns the published MappedType for t without building it
func (m *Mapper) Cached(t reflect.Type) (*MappedType, bool) {
	if t == nil {
		return nil, false
	}
	cached, ok := m.types.Load(deref(t))
	if !ok {
		return nil, false
	}
	return cached.(*MappedType), true
}

// Register resolves each sample so its discriminator and collection are indexed before
// any polymorphic decode. Samples may be values, pointers or reflect.Types.
func (m *Mapper) Register(samples ...interface{}) error {
	for _, s := range samples {
		t, ok := s.(reflect.Type)
		if !ok {
			t = reflect.TypeOf(s)
		}
		if _, err := m.Resolve(t); err != nil {
			return err
		}
	}
	return nil
}

// TypeForDiscriminator returns the type registered under a discriminator value
func (m *Mapper) TypeForDiscriminator(value string) (reflect.Type, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.byDiscriminator[value]
	return t, ok
}

// TypesForCollection returns the entity types stored in a collection, in registration order
func (m *Mapper) TypesForCollection(collection string) []reflect.Type {
	m.mu.RLock()
	defer m.mu.RUnlock()

	types := m.byCollection[collection]
	result := make([]reflect.Type, len(types))
	copy(result, types)
	return result
}

// DiscriminatorKeys returns every discriminator key in use, sorted, default key first
func (m *Mapper) DiscriminatorKeys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.discriminatorKeys))
	for k := range m.discriminatorKeys {
		if k != m.discriminatorKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return append([]string{m.discriminatorKey}, keys...)
}

// Respecialize replaces the cached entry for t with one whose discriminator visibility is
// always. The previous entry is not modified.
func (m *Mapper) Respecialize(t reflect.Type, always bool) (*MappedType, error) {
	mt, err := m.Resolve(t)
	if err != nil {
		return nil, err
	}
	if mt.AlwaysDiscriminate == always {
		return mt, nil
	}

	lock := m.lockFor(mt.Type)
	lock.Lock()
	defer lock.Unlock()

	current, _ := m.types.Load(mt.Type)
	next := current.(*MappedType).withAlwaysDiscriminate(always)
	m.types.Store(mt.Type, next)
	m.logger.Debug("respecialized type", zap.String("type", next.Name), zap.Bool("always_discriminate", always))
	return next, nil
}

func (m *Mapper) lockFor(t reflect.Type) *sync.Mutex {
	lock, _ := m.locks.LoadOrStore(t, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func (m *Mapper) index(mt *MappedType) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, taken := m.byDiscriminator[mt.Discriminator]
	switch {
	case !taken:
		m.byDiscriminator[mt.Discriminator] = mt.Type
	case existing == mt.Type:
	case mt.explicitDiscriminator:
		return &SchemaError{
			Type:    mt.Name,
			Message: fmt.Sprintf("discriminator %q is already used by %s", mt.Discriminator, TypeName(existing)),
			Hint:    "set a distinct value with `docmap:\"discriminator=...\"` on a blank field",
		}
	default:
		m.logger.Warn("discriminator already registered, type will not decode polymorphically",
			zap.String("type", mt.Name),
			zap.String("discriminator", mt.Discriminator),
			zap.String("registered", TypeName(existing)),
		)
	}
	m.discriminatorKeys[mt.DiscriminatorKey] = struct{}{}
	if mt.IsEntity() {
		m.byCollection[mt.Collection] = append(m.byCollection[mt.Collection], mt.Type)
	}
	return nil
}

func (m *Mapper) build(t reflect.Type) (*MappedType, error) {
	info, err := m.introspector.Inspect(t)
	if err != nil {
		return nil, err
	}

	mt := &MappedType{
		Type:               t,
		Name:               info.Name,
		Collection:         info.Collection,
		DiscriminatorKey:   info.DiscriminatorKey,
		Discriminator:      info.Discriminator,
		AlwaysDiscriminate: info.AlwaysDiscriminate || m.alwaysDiscriminate,
		byStorage:          make(map[string]*MappedField),
		byDeclared:         make(map[string]*MappedField),
	}
	mt.explicitDiscriminator = info.Discriminator != ""
	if mt.Name == "" {
		mt.Name = TypeName(t)
	}
	if mt.Collection == "" {
		mt.Collection = toSnakeCase(mt.Name)
	}
	if mt.DiscriminatorKey == "" {
		mt.DiscriminatorKey = m.discriminatorKey
	}
	if mt.Discriminator == "" {
		mt.Discriminator = mt.Name
	}

	if info.Entity && info.Embedded {
		return nil, &SchemaError{
			Type:    mt.Name,
			Message: "type cannot be marked both entity and embedded",
		}
	}

	for _, fi := range info.Fields {
		if fi.Markers.Transient {
			continue
		}
		f, err := m.buildField(mt, fi)
		if err != nil {
			return nil, err
		}

		if f.Shape == ShapeIdentifier {
			if mt.ID != nil {
				return nil, &SchemaError{
					Type:    mt.Name,
					Field:   f.Name,
					Message: fmt.Sprintf("multiple identifier fields (%s and %s)", mt.ID.Name, f.Name),
					Hint:    "a mapped type has at most one field tagged `docmap:\",id\"`",
				}
			}
			mt.ID = f
		}

		if other, dup := mt.byStorage[f.StorageName]; dup {
			return nil, &SchemaError{
				Type:    mt.Name,
				Field:   f.Name,
				Message: fmt.Sprintf("storage name %q is also used by %s", f.StorageName, other.Name),
			}
		}
		if f.StorageName == mt.DiscriminatorKey {
			return nil, &SchemaError{
				Type:    mt.Name,
				Field:   f.Name,
				Message: fmt.Sprintf("storage name %q collides with the discriminator key", f.StorageName),
			}
		}
		mt.byStorage[f.StorageName] = f
		mt.byDeclared[f.Name] = f
		mt.Fields = append(mt.Fields, f)
	}

	switch {
	case info.Embedded && mt.ID != nil:
		return nil, &SchemaError{
			Type:    mt.Name,
			Field:   mt.ID.Name,
			Message: "embedded type cannot declare an identifier field",
		}
	case info.Entity && mt.ID == nil:
		return nil, &SchemaError{
			Type:    mt.Name,
			Message: "entity type has no identifier field",
			Hint:    "tag exactly one field with `docmap:\",id\"`",
		}
	}
	mt.Embedded = mt.ID == nil
	return mt, nil
}

func (m *Mapper) buildField(mt *MappedType, fi FieldInfo) (*MappedField, error) {
	if fi.Markers.Reference && fi.Markers.Embedded {
		return nil, &SchemaError{
			Type:    mt.Name,
			Field:   fi.Name,
			Message: "field cannot be marked both reference and embedded",
		}
	}
	if fi.Markers.ID && (fi.Markers.Reference || fi.Markers.Embedded) {
		return nil, &SchemaError{
			Type:    mt.Name,
			Field:   fi.Name,
			Message: "identifier field cannot be a reference or embedded",
		}
	}

	shape, container, elem, key := classify(fi)
	f := &MappedField{
		Name:          fi.Name,
		StorageName:   fi.StorageName,
		Type:          fi.Type,
		Index:         fi.Index,
		Shape:         shape,
		Container:     container,
		Elem:          elem,
		Key:           key,
		OmitEmpty:     fi.Markers.OmitEmpty,
		IgnoreMissing: fi.Markers.IgnoreMissing,
		DBRef:         fi.Markers.DBRef,
		Nullable:      isNullable(fi.Type),
	}
	switch {
	case shape == ShapeIdentifier:
		f.StorageName = IDStorageName
	case f.StorageName == "":
		f.StorageName = toLowerCamel(fi.Name)
	}

	switch shape {
	case ShapeIdentifier:
		switch elem.Kind() {
		case reflect.Interface, reflect.Func, reflect.Chan, reflect.Slice, reflect.Map:
			if !IsWellKnownScalar(elem) {
				return nil, &SchemaError{
					Type:    mt.Name,
					Field:   fi.Name,
					Message: fmt.Sprintf("identifier of kind %s is not supported", elem.Kind()),
				}
			}
		}
	case ShapeReference:
		if err := m.checkReferenceTarget(mt, f); err != nil {
			return nil, err
		}
	case ShapeEmbedded:
		if fi.Markers.Embedded {
			if err := m.checkEmbeddedTarget(mt, f); err != nil {
				return nil, err
			}
		}
	}
	if fi.Markers.IgnoreMissing && shape != ShapeReference {
		return nil, &SchemaError{
			Type:    mt.Name,
			Field:   fi.Name,
			Message: "ignoremissing only applies to reference fields",
		}
	}
	return f, nil
}

func (m *Mapper) checkReferenceTarget(mt *MappedType, f *MappedField) error {
	if f.Elem.Kind() == reflect.Interface {
		return nil
	}
	if f.Elem.Kind() != reflect.Struct {
		return &SchemaError{
			Type:    mt.Name,
			Field:   f.Name,
			Message: fmt.Sprintf("reference target %s is not a struct", f.Elem),
		}
	}
	info, err := m.introspector.Inspect(f.Elem)
	if err != nil {
		return err
	}
	if info.Embedded || !hasIdentifier(info) {
		return &SchemaError{
			Type:    mt.Name,
			Field:   f.Name,
			Message: fmt.Sprintf("reference target %s has no identifier field", info.Name),
			Hint:    "references point at entities; use an embedded field for value types",
		}
	}
	return nil
}

func (m *Mapper) checkEmbeddedTarget(mt *MappedType, f *MappedField) error {
	switch f.Elem.Kind() {
	case reflect.Interface:
		return nil
	case reflect.Struct:
	default:
		return &SchemaError{
			Type:    mt.Name,
			Field:   f.Name,
			Message: fmt.Sprintf("embedded marker requires a struct field, got %s", f.Elem.Kind()),
			Hint:    "collections and maps of structs are embedded without a marker",
		}
	}
	info, err := m.introspector.Inspect(f.Elem)
	if err != nil {
		return err
	}
	if info.Entity {
		return &SchemaError{
			Type:    mt.Name,
			Field:   f.Name,
			Message: fmt.Sprintf("embedded field targets entity type %s", info.Name),
			Hint:    "mark the field `docmap:\",ref\"` to store a reference instead",
		}
	}
	return nil
}

func hasIdentifier(info *TypeInfo) bool {
	for _, fi := range info.Fields {
		if fi.Markers.ID && !fi.Markers.Transient {
			return true
		}
	}
	return false
}
