package reference

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/docmap/pkg/codec"
	"github.com/conduit-lang/docmap/pkg/document"
	"github.com/conduit-lang/docmap/pkg/mapping"
	"github.com/conduit-lang/docmap/pkg/store"
)

type Author struct {
	ID     string  `docmap:",id"`
	Name   string
	Mentor *Author `docmap:",ref"`
}

type Post struct {
	ID        string    `docmap:",id"`
	Editors   []*Author `docmap:",ref,ignoremissing"`
	Reviewers []*Author `docmap:",ref"`
	Lead      *Author   `docmap:",ref,ignoremissing"`
	Pets      []Pet     `docmap:",ref"`
}

type Pet interface {
	Sound() string
}

type Dog struct {
	_    struct{} `docmap:"collection=dogs"`
	ID   string   `docmap:",id"`
	Name string
}

func (d *Dog) Sound() string { return "woof" }

type Cat struct {
	_    struct{} `docmap:"collection=cats"`
	ID   string   `docmap:",id"`
	Name string
}

func (c *Cat) Sound() string { return "meow" }

// countingFetcher records every call made to the wrapped fetcher
type countingFetcher struct {
	store.Fetcher

	mu      sync.Mutex
	single  int
	batches map[string][]int
	fail    error
}

func newCountingFetcher(f store.Fetcher) *countingFetcher {
	return &countingFetcher{Fetcher: f, batches: make(map[string][]int)}
}

func (c *countingFetcher) FetchByID(ctx context.Context, collection string, id document.Value) (*document.Document, error) {
	c.mu.Lock()
	c.single++
	c.mu.Unlock()
	return c.Fetcher.FetchByID(ctx, collection, id)
}

func (c *countingFetcher) FetchByIDs(ctx context.Context, collection string, ids []document.Value) ([]*document.Document, error) {
	c.mu.Lock()
	c.batches[collection] = append(c.batches[collection], len(ids))
	fail := c.fail
	c.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	return c.Fetcher.FetchByIDs(ctx, collection, ids)
}

type fixture struct {
	reg     *codec.Registry
	mem     *store.Memory
	fetcher *countingFetcher
	res     *Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m := mapping.NewMapper()
	require.NoError(t, m.Register(Author{}, Post{}, Dog{}, Cat{}))
	mem := store.NewMemory()
	fetcher := newCountingFetcher(mem)
	return &fixture{
		reg:     codec.NewRegistry(m),
		mem:     mem,
		fetcher: fetcher,
		res:     New(fetcher),
	}
}

func (f *fixture) put(t *testing.T, collection string, v interface{}) {
	t.Helper()
	doc, err := f.reg.Encode(v)
	require.NoError(t, err)
	require.NoError(t, f.mem.Put(context.Background(), collection, doc))
}

func idArray(ids ...string) document.Value {
	arr := document.NewArray()
	for _, id := range ids {
		arr.Append(document.String(id))
	}
	return document.Arr(arr)
}

func TestResolveManyIgnoreMissingKeepsOrder(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"a2", "a4", "a5"} {
		f.put(t, "author", Author{ID: id, Name: "name-" + id})
	}

	doc := document.NewDocument(
		document.E("_id", document.String("p")),
		document.E("editors", idArray("a5", "a1", "a2", "a3", "a4")),
	)

	var post Post
	require.NoError(t, f.reg.Decode(context.Background(), doc, &post, f.res))

	require.Len(t, post.Editors, 3)
	assert.Equal(t, "a5", post.Editors[0].ID)
	assert.Equal(t, "a2", post.Editors[1].ID)
	assert.Equal(t, "a4", post.Editors[2].ID)
	assert.Equal(t, "name-a2", post.Editors[1].Name)

	assert.Equal(t, map[string][]int{"author": {5}}, f.fetcher.batches, "one batched fetch for the collection")
	assert.Zero(t, f.fetcher.single)
}

func TestResolveManyMissingFails(t *testing.T) {
	f := newFixture(t)
	f.put(t, "author", Author{ID: "a1"})

	doc := document.NewDocument(
		document.E("_id", document.String("p")),
		document.E("reviewers", idArray("a1", "ghost")),
	)

	var post Post
	err := f.reg.Decode(context.Background(), doc, &post, f.res)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "Author", nf.Type)
	assert.Equal(t, "author", nf.Collection)
	assert.Equal(t, document.String("ghost"), nf.ID)
	assert.Equal(t, "Reviewers.1", nf.Path)

	var decErr *codec.DecodeError
	require.True(t, errors.As(err, &decErr))
	assert.Equal(t, "Post", decErr.Type)
}

func TestResolveOneMissingPolicy(t *testing.T) {
	f := newFixture(t)

	ignored := document.NewDocument(
		document.E("_id", document.String("p")),
		document.E("lead", document.String("ghost")),
	)
	var post Post
	require.NoError(t, f.reg.Decode(context.Background(), ignored, &post, f.res))
	assert.Nil(t, post.Lead)
	assert.Equal(t, 1, f.fetcher.single)

	strict := document.NewDocument(
		document.E("_id", document.String("a")),
		document.E("mentor", document.String("ghost")),
	)
	var author Author
	err := f.reg.Decode(context.Background(), strict, &author, f.res)
	assert.True(t, IsNotFound(err))
}

func TestResolveCyclesThroughCache(t *testing.T) {
	f := newFixture(t)
	f.put(t, "author", Author{ID: "a", Name: "A", Mentor: &Author{ID: "b"}})
	f.put(t, "author", Author{ID: "b", Name: "B", Mentor: &Author{ID: "a"}})

	root, err := f.mem.FetchByID(context.Background(), "author", document.String("a"))
	require.NoError(t, err)

	var a Author
	require.NoError(t, f.reg.Decode(context.Background(), root, &a, f.res))
	require.NotNil(t, a.Mentor)
	assert.Equal(t, "B", a.Mentor.Name)
	assert.Same(t, &a, a.Mentor.Mentor)
	assert.Equal(t, 1, f.fetcher.single, "the root is never fetched again")
}

func TestResolveSharedTargetsOnce(t *testing.T) {
	f := newFixture(t)
	f.put(t, "author", Author{ID: "a1", Name: "shared"})

	doc := document.NewDocument(
		document.E("_id", document.String("p")),
		document.E("lead", document.String("a1")),
		document.E("editors", idArray("a1", "a1")),
		document.E("reviewers", idArray("a1")),
	)

	var post Post
	require.NoError(t, f.reg.Decode(context.Background(), doc, &post, f.res))
	assert.Same(t, post.Lead, post.Editors[0])
	assert.Same(t, post.Lead, post.Editors[1])
	assert.Same(t, post.Lead, post.Reviewers[0])
	assert.Equal(t, 1, f.fetcher.single)
	assert.Empty(t, f.fetcher.batches, "cached targets are not fetched")
}

func TestResolvePolymorphicAcrossCollections(t *testing.T) {
	f := newFixture(t)
	f.put(t, "dogs", Dog{ID: "d1", Name: "rex"})
	f.put(t, "cats", Cat{ID: "c1", Name: "tom"})

	post := Post{ID: "p", Pets: []Pet{&Cat{ID: "c1"}, &Dog{ID: "d1"}}}
	doc, err := f.reg.Encode(post)
	require.NoError(t, err)

	var got Post
	require.NoError(t, f.reg.Decode(context.Background(), doc, &got, f.res))
	require.Len(t, got.Pets, 2)
	assert.Equal(t, &Cat{ID: "c1", Name: "tom"}, got.Pets[0])
	assert.Equal(t, &Dog{ID: "d1", Name: "rex"}, got.Pets[1])
	assert.Equal(t, map[string][]int{"cats": {1}, "dogs": {1}}, f.fetcher.batches)
}

func TestResolveFetchErrors(t *testing.T) {
	f := newFixture(t)
	doc := document.NewDocument(
		document.E("_id", document.String("p")),
		document.E("editors", idArray("a1")),
	)

	f.fetcher.fail = fmt.Errorf("%w: author", store.ErrCollectionMissing)
	var post Post
	require.NoError(t, f.reg.Decode(context.Background(), doc, &post, f.res), "a missing collection holds no targets")
	assert.Empty(t, post.Editors)

	boom := errors.New("connection reset")
	f.fetcher.fail = boom
	assert.ErrorIs(t, f.reg.Decode(context.Background(), doc, &post, f.res), boom)
}
