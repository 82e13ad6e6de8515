package mapping

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Address struct {
	Street string
	City   string `docmap:"town"`
}

type Audit struct {
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Author struct {
	_    struct{} `docmap:"entity,collection=people,discriminator=author"`
	ID   primitive.ObjectID `docmap:",id"`
	Name string
}

type BlogPost struct {
	Audit
	ID       int64              `docmap:",id"`
	Title    string             `docmap:"title,omitempty"`
	Tags     []string           `docmap:"tags"`
	Scores   [3]int             `docmap:"scores"`
	Meta     map[string]string  `docmap:"meta"`
	Address  Address            `docmap:"address"`
	Author   *Author            `docmap:"author,ref"`
	Editors  []*Author          `docmap:"editors,ref,ignoremissing"`
	Related  map[string]*Author `docmap:"related,dbref"`
	Draft    bool               `docmap:"-"`
	internal int
}

func TestResolveShapes(t *testing.T) {
	m := NewMapper()

	mt, err := m.Resolve(reflect.TypeOf(&BlogPost{}))
	require.NoError(t, err)

	assert.Equal(t, "BlogPost", mt.Name)
	assert.Equal(t, "blog_post", mt.Collection)
	assert.Equal(t, DefaultDiscriminatorKey, mt.DiscriminatorKey)
	assert.Equal(t, "BlogPost", mt.Discriminator)
	assert.True(t, mt.IsEntity())
	assert.False(t, mt.Embedded)
	require.NotNil(t, mt.ID)
	assert.Equal(t, "_id", mt.ID.StorageName)

	tests := []struct {
		declared  string
		storage   string
		shape     Shape
		container Shape
	}{
		{"CreatedAt", "createdAt", ShapeScalar, ShapeScalar},
		{"UpdatedAt", "updatedAt", ShapeScalar, ShapeScalar},
		{"ID", "_id", ShapeIdentifier, ShapeScalar},
		{"Title", "title", ShapeScalar, ShapeScalar},
		{"Tags", "tags", ShapeCollection, ShapeScalar},
		{"Scores", "scores", ShapeArray, ShapeScalar},
		{"Meta", "meta", ShapeMap, ShapeScalar},
		{"Address", "address", ShapeEmbedded, ShapeScalar},
		{"Author", "author", ShapeReference, ShapeScalar},
		{"Editors", "editors", ShapeReference, ShapeCollection},
		{"Related", "related", ShapeReference, ShapeMap},
	}
	require.Len(t, mt.Fields, len(tests))
	for i, tt := range tests {
		t.Run(tt.declared, func(t *testing.T) {
			f := mt.Fields[i]
			assert.Equal(t, tt.declared, f.Name)
			assert.Equal(t, tt.storage, f.StorageName)
			assert.Equal(t, tt.shape, f.Shape, f.Shape.String())
			assert.Equal(t, tt.container, f.Container)
		})
	}

	title, _ := mt.FieldByDeclaredName("Title")
	assert.True(t, title.OmitEmpty)
	editors, _ := mt.FieldByStorageName("editors")
	assert.True(t, editors.IgnoreMissing)
	assert.Equal(t, reflect.TypeOf(Author{}), editors.Elem)
	related, _ := mt.FieldByStorageName("related")
	assert.True(t, related.DBRef)
	assert.Equal(t, reflect.TypeOf(""), related.Key)

	_, ok := mt.FieldByDeclaredName("Draft")
	assert.False(t, ok, "transient fields are not mapped")
	_, ok = mt.FieldByDeclaredName("internal")
	assert.False(t, ok, "unexported fields are not mapped")
}

func TestResolveCachesAndIndexes(t *testing.T) {
	m := NewMapper()

	first, err := m.Resolve(reflect.TypeOf(Author{}))
	require.NoError(t, err)
	second, err := m.Resolve(reflect.TypeOf(&Author{}))
	require.NoError(t, err)
	assert.Same(t, first, second)

	assert.Equal(t, "people", first.Collection)
	dt, ok := m.TypeForDiscriminator("author")
	require.True(t, ok)
	assert.Equal(t, reflect.TypeOf(Author{}), dt)
	assert.Equal(t, []reflect.Type{reflect.TypeOf(Author{})}, m.TypesForCollection("people"))
}

func TestResolveStorageNameIndexes(t *testing.T) {
	m := NewMapper()
	mt, err := m.Resolve(reflect.TypeOf(Address{}))
	require.NoError(t, err)

	assert.True(t, mt.Embedded)
	assert.Nil(t, mt.ID)

	f, ok := mt.FieldByStorageName("town")
	require.True(t, ok)
	assert.Equal(t, "City", f.Name)
	_, ok = mt.FieldByStorageName("City")
	assert.False(t, ok)
	_, ok = mt.FieldByDeclaredName("City")
	assert.True(t, ok)

	byStorage := mt.FieldsByStorageName()
	delete(byStorage, "town")
	_, ok = mt.FieldByStorageName("town")
	assert.True(t, ok, "FieldsByStorageName returns a copy")
}

func TestResolveConcurrentPublishesOnce(t *testing.T) {
	m := NewMapper()

	const workers = 16
	results := make([]*MappedType, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			mt, err := m.Resolve(reflect.TypeOf(BlogPost{}))
			if err == nil {
				results[i] = mt
			}
		}(i)
	}
	wg.Wait()

	for _, mt := range results {
		require.NotNil(t, mt)
		assert.Same(t, results[0], mt)
	}
}

type twoIDs struct {
	A string `docmap:",id"`
	B string `docmap:",id"`
}

type entityWithoutID struct {
	_    struct{} `docmap:"entity"`
	Name string
}

type embeddedWithID struct {
	_  struct{} `docmap:"embedded"`
	ID string   `docmap:",id"`
}

type refAndEmbedded struct {
	ID     string  `docmap:",id"`
	Author *Author `docmap:",ref,embedded"`
}

type embedsEntity struct {
	ID     string `docmap:",id"`
	Author Author `docmap:",embedded"`
}

type refToValue struct {
	ID      string   `docmap:",id"`
	Address *Address `docmap:",ref"`
}

type duplicateStorage struct {
	First  string `docmap:"name"`
	Second string `docmap:"name"`
}

type badOption struct {
	Name string `docmap:",sparse"`
}

type shadowsDiscriminator struct {
	Kind string `docmap:"_t"`
}

func TestResolveSchemaErrors(t *testing.T) {
	tests := []struct {
		name    string
		sample  interface{}
		message string
	}{
		{"multiple identifiers", twoIDs{}, "multiple identifier fields"},
		{"entity without identifier", entityWithoutID{}, "no identifier field"},
		{"embedded with identifier", embeddedWithID{}, "embedded type cannot declare an identifier"},
		{"reference and embedded", refAndEmbedded{}, "both reference and embedded"},
		{"embedded entity", embedsEntity{}, "targets entity type Author"},
		{"reference to value type", refToValue{}, "has no identifier field"},
		{"duplicate storage name", duplicateStorage{}, `storage name "name"`},
		{"unknown option", badOption{}, `unknown tag option "sparse"`},
		{"discriminator collision", shadowsDiscriminator{}, "collides with the discriminator key"},
		{"not a struct", 42, "only struct types are mappable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMapper()
			_, err := m.Resolve(reflect.TypeOf(tt.sample))
			require.Error(t, err)
			assert.True(t, IsSchemaError(err))
			assert.Contains(t, err.Error(), tt.message)

			// failures are not cached as successes
			_, err = m.Resolve(reflect.TypeOf(tt.sample))
			assert.Error(t, err)
		})
	}
}

func TestSchemaErrorFormat(t *testing.T) {
	err := &SchemaError{Type: "User", Field: "ID", Message: "bad", Hint: "fix it"}
	assert.Equal(t, "User.ID: bad\n  hint: fix it", err.Error())
}

type Shape2D interface {
	Area() float64
}

type Circle struct {
	_      struct{} `docmap:"discriminator=circle,alwaysDiscriminate"`
	Radius float64
}

func (c Circle) Area() float64 { return 3.14159 * c.Radius * c.Radius }

type Square struct {
	_    struct{} `docmap:"discriminatorKey=kind"`
	Side float64
}

func (s Square) Area() float64 { return s.Side * s.Side }

type Drawing struct {
	ID     string    `docmap:",id"`
	Shapes []Shape2D `docmap:"shapes"`
	Main   Shape2D   `docmap:"main"`
	Extra  any       `docmap:"extra"`
}

func TestResolvePolymorphicFields(t *testing.T) {
	m := NewMapper()
	require.NoError(t, m.Register(Circle{}, &Square{}, reflect.TypeOf(Drawing{})))

	mt, _ := m.Cached(reflect.TypeOf(Drawing{}))
	require.NotNil(t, mt)

	shapes, _ := mt.FieldByDeclaredName("Shapes")
	assert.Equal(t, ShapeCollection, shapes.Shape)
	assert.True(t, shapes.IsPolymorphic())

	main, _ := mt.FieldByDeclaredName("Main")
	assert.Equal(t, ShapeEmbedded, main.Shape)

	extra, _ := mt.FieldByDeclaredName("Extra")
	assert.Equal(t, ShapeScalar, extra.Shape)

	circle, _ := m.Cached(reflect.TypeOf(Circle{}))
	assert.True(t, circle.AlwaysDiscriminate)
	assert.Equal(t, "circle", circle.Discriminator)

	assert.Equal(t, []string{"_t", "kind"}, m.DiscriminatorKeys())
}

func TestRespecializeReplacesEntry(t *testing.T) {
	m := NewMapper()
	before, err := m.Resolve(reflect.TypeOf(Square{}))
	require.NoError(t, err)
	assert.False(t, before.AlwaysDiscriminate)

	after, err := m.Respecialize(reflect.TypeOf(Square{}), true)
	require.NoError(t, err)
	assert.True(t, after.AlwaysDiscriminate)
	assert.False(t, before.AlwaysDiscriminate, "published entries are never mutated")
	assert.NotSame(t, before, after)

	cached, _ := m.Cached(reflect.TypeOf(Square{}))
	assert.Same(t, after, cached)
}

func TestMappedTypeIDValue(t *testing.T) {
	m := NewMapper()
	mt, err := m.Resolve(reflect.TypeOf(BlogPost{}))
	require.NoError(t, err)

	post := &BlogPost{ID: 9}
	id, err := mt.IDValue(reflect.ValueOf(post))
	require.NoError(t, err)
	assert.Equal(t, int64(9), id.Int())

	inst := mt.New()
	assert.Equal(t, reflect.Ptr, inst.Kind())
	assert.Equal(t, mt.Type, inst.Elem().Type())

	_, err = mt.IDValue(reflect.ValueOf((*BlogPost)(nil)))
	assert.Error(t, err)
}

func TestNaming(t *testing.T) {
	snake := map[string]string{
		"User":        "user",
		"BlogPost":    "blog_post",
		"HTTPServer":  "http_server",
		"OrderItemV2": "order_item_v2",
	}
	for in, want := range snake {
		assert.Equal(t, want, toSnakeCase(in), in)
	}

	camel := map[string]string{
		"Name":    "name",
		"ID":      "id",
		"URLPath": "urlPath",
		"userID":  "userID",
		"X":       "x",
	}
	for in, want := range camel {
		assert.Equal(t, want, toLowerCamel(in), in)
	}
}
