package docmap

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/conduit-lang/docmap/pkg/codec"
	"github.com/conduit-lang/docmap/pkg/document"
	"github.com/conduit-lang/docmap/pkg/reference"
	"github.com/conduit-lang/docmap/pkg/store"
)

type Publisher struct {
	ID   uuid.UUID `docmap:",id"`
	Name string
}

type Book struct {
	ID        primitive.ObjectID `docmap:",id"`
	Title     string
	Pages     int
	Publisher *Publisher `docmap:",ref,ignoremissing"`
	Sequel    *Book      `docmap:",ref"`
}

type Tag struct {
	ID    string `docmap:",id"`
	Label string
}

type Note struct {
	Text string
}

func newDatastore(t *testing.T) (*Datastore, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	ds := New(mem)
	require.NoError(t, ds.Register(Book{}, Publisher{}, Tag{}))
	return ds, mem
}

func TestSaveGeneratesIdentifiers(t *testing.T) {
	ds, mem := newDatastore(t)
	ctx := context.Background()

	pub := &Publisher{Name: "Penguin"}
	id, err := ds.Save(ctx, pub)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, pub.ID)
	assert.False(t, id.IsNull())

	book := &Book{Title: "Dune", Publisher: pub}
	_, err = ds.Save(ctx, book)
	require.NoError(t, err)
	assert.False(t, book.ID.IsZero())

	tag := &Tag{}
	_, err = ds.Save(ctx, tag)
	require.NoError(t, err)
	assert.NotEmpty(t, tag.ID)

	assert.Equal(t, []string{"book", "publisher", "tag"}, mem.Collections())
}

func TestSaveWithoutGeneratedIDs(t *testing.T) {
	ds := New(store.NewMemory(), WithGeneratedIDs(false))
	tag := &Tag{Label: "x"}
	_, err := ds.Save(context.Background(), tag)
	require.NoError(t, err, "an empty string is still an identifier")
	assert.Empty(t, tag.ID)
}

func TestFindByIDResolvesReferences(t *testing.T) {
	ds, _ := newDatastore(t)
	ctx := context.Background()

	pub := &Publisher{Name: "Ace"}
	_, err := ds.Save(ctx, pub)
	require.NoError(t, err)

	first := &Book{ID: primitive.NewObjectID(), Title: "One", Publisher: pub}
	second := &Book{ID: primitive.NewObjectID(), Title: "Two", Publisher: pub}
	first.Sequel = second
	second.Sequel = first
	_, err = ds.Save(ctx, first)
	require.NoError(t, err)
	_, err = ds.Save(ctx, second)
	require.NoError(t, err)

	var got Book
	require.NoError(t, ds.FindByID(ctx, first.ID, &got))
	assert.Equal(t, "One", got.Title)
	require.NotNil(t, got.Publisher)
	assert.Equal(t, "Ace", got.Publisher.Name)
	require.NotNil(t, got.Sequel)
	assert.Equal(t, "Two", got.Sequel.Title)
	assert.Same(t, &got, got.Sequel.Sequel)
	assert.Same(t, got.Publisher, got.Sequel.Publisher)
}

func TestFindByIDErrors(t *testing.T) {
	ds, _ := newDatastore(t)
	ctx := context.Background()

	var b Book
	err := ds.FindByID(ctx, primitive.NewObjectID(), &b)
	assert.True(t, store.IsNotFound(err) || store.IsCollectionMissing(err))

	var n Note
	assert.ErrorIs(t, ds.FindByID(ctx, "x", &n), ErrNotEntity)
	assert.ErrorIs(t, ds.FindByID(ctx, "x", 5), codec.ErrInvalidTarget)
}

func TestMissingReferenceFailsDecode(t *testing.T) {
	ds, mem := newDatastore(t)
	ctx := context.Background()

	id := primitive.NewObjectID()
	require.NoError(t, mem.Put(ctx, "book", document.NewDocument(
		document.E("_id", document.ObjectID(id)),
		document.E("title", document.String("Orphan")),
		document.E("sequel", document.ObjectID(primitive.NewObjectID())),
	)))

	var b Book
	err := ds.FindByID(ctx, id, &b)
	assert.ErrorIs(t, err, reference.ErrReferenceNotFound)
}

func TestFindByIDsKeepsOrderAndSharesCache(t *testing.T) {
	ds, _ := newDatastore(t)
	ctx := context.Background()

	pub := &Publisher{Name: "Ace"}
	_, err := ds.Save(ctx, pub)
	require.NoError(t, err)

	var ids []primitive.ObjectID
	for _, title := range []string{"A", "B", "C"} {
		b := &Book{Title: title, Publisher: pub}
		_, err := ds.Save(ctx, b)
		require.NoError(t, err)
		ids = append(ids, b.ID)
	}

	var books []*Book
	require.NoError(t, ds.FindByIDs(ctx, []primitive.ObjectID{ids[2], primitive.NewObjectID(), ids[0]}, &books))
	require.Len(t, books, 2)
	assert.Equal(t, "C", books[0].Title)
	assert.Equal(t, "A", books[1].Title)
	assert.Same(t, books[0].Publisher, books[1].Publisher)

	var values []Book
	require.NoError(t, ds.FindByIDs(ctx, ids, &values))
	require.Len(t, values, 3)
	assert.Equal(t, "B", values[1].Title)

	assert.Error(t, ds.FindByIDs(ctx, ids, values))
}

func TestDelete(t *testing.T) {
	ds, mem := newDatastore(t)
	ctx := context.Background()

	tag := &Tag{ID: "go", Label: "Go"}
	_, err := ds.Save(ctx, tag)
	require.NoError(t, err)
	require.Equal(t, 1, mem.Len("tag"))

	require.NoError(t, ds.Delete(ctx, tag))
	assert.Equal(t, 0, mem.Len("tag"))
	assert.True(t, store.IsNotFound(ds.Delete(ctx, tag)))
	assert.ErrorIs(t, ds.Delete(ctx, (*Tag)(nil)), codec.ErrInvalidTarget)
}

func TestQueryUsesModel(t *testing.T) {
	ds, _ := newDatastore(t)

	q := ds.Query(Book{})
	q.Filter(q.Field("Title").Equal("Dune"), q.Field("Pages").GreaterThan(100))
	doc, err := q.Document()
	require.NoError(t, err)
	assert.Equal(t, []string{"title", "pages"}, doc.Keys())
}

func TestEncodeDecode(t *testing.T) {
	ds, _ := newDatastore(t)

	tag := Tag{ID: "t1", Label: "one"}
	doc, err := ds.Encode(tag)
	require.NoError(t, err)
	assert.Equal(t, []string{"_id", "label"}, doc.Keys())

	var got Tag
	require.NoError(t, ds.Decode(context.Background(), doc, &got))
	assert.Equal(t, tag, got)
	assert.NotNil(t, ds.Mapper())
	assert.NotNil(t, ds.Registry())
	assert.NoError(t, ds.Close())
}
