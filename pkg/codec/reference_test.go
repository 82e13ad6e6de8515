package codec

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/docmap/pkg/document"
)

type Person struct {
	ID     string  `docmap:",id"`
	Name   string
	Friend *Person `docmap:",ref"`
}

type Club struct {
	ID       string             `docmap:",id"`
	Members  []*Person          `docmap:",ref,ignoremissing"`
	Founders [3]*Person         `docmap:",ref,ignoremissing"`
	Roles    map[string]*Person `docmap:",ref,ignoremissing"`
	Owner    Person             `docmap:",ref"`
	Pets     []Pet              `docmap:",ref"`
}

// Membership is keyed by the person it belongs to
type Membership struct {
	ID    *Person `docmap:",id"`
	Level int
}

type Badge struct {
	ID     string      `docmap:",id"`
	Holder *Membership `docmap:",ref"`
}

type Pet interface {
	Sound() string
}

type Dog struct {
	_    struct{} `docmap:"collection=pets,discriminator=dog"`
	ID   string   `docmap:",id"`
	Name string
}

func (d *Dog) Sound() string { return "woof" }

type Cat struct {
	_    struct{} `docmap:"collection=pets,discriminator=cat"`
	ID   string   `docmap:",id"`
	Name string
}

func (c *Cat) Sound() string { return "meow" }

// mapResolver serves documents from memory and records every batch it is asked for
type mapResolver struct {
	docs    map[string]map[string]*document.Document
	batches [][]Ref
}

func newMapResolver() *mapResolver {
	return &mapResolver{docs: make(map[string]map[string]*document.Document)}
}

func (m *mapResolver) add(collection string, doc *document.Document) {
	if m.docs[collection] == nil {
		m.docs[collection] = make(map[string]*document.Document)
	}
	id, _ := doc.Lookup("_id")
	m.docs[collection][id.Key()] = doc
}

func (m *mapResolver) ResolveOne(dc *DecodeContext, ref Ref) (reflect.Value, error) {
	out, err := m.ResolveMany(dc, []Ref{ref})
	if err != nil {
		return reflect.Value{}, err
	}
	return out[0], nil
}

func (m *mapResolver) ResolveMany(dc *DecodeContext, refs []Ref) ([]reflect.Value, error) {
	out := make([]reflect.Value, len(refs))
	var pending []int
	for i, ref := range refs {
		if inst, ok := cached(dc, ref); ok {
			out[i] = inst
			continue
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return out, nil
	}

	batch := make([]Ref, 0, len(pending))
	for _, i := range pending {
		batch = append(batch, refs[i])
	}
	m.batches = append(m.batches, batch)

	for _, i := range pending {
		ref := refs[i]
		doc, ok := m.docs[ref.Collection][ref.ID.Key()]
		if !ok {
			if ref.IgnoreMissing {
				continue
			}
			return nil, fmt.Errorf("%s %s not found at %s", ref.Collection, ref.ID, ref.Path)
		}
		t, err := dc.Registry().ConcreteType(ref.Type, ref.Collection, doc)
		if err != nil {
			return nil, err
		}
		inst, err := dc.Registry().Materialize(dc, t, doc)
		if err != nil {
			return nil, err
		}
		out[i] = inst
	}
	return out, nil
}

func cached(dc *DecodeContext, ref Ref) (reflect.Value, bool) {
	for _, t := range dc.Registry().CandidateTypes(ref.Type, ref.Collection) {
		if inst, ok := dc.Cache.Get(t, ref.ID); ok {
			return inst, true
		}
	}
	return reflect.Value{}, false
}

func personDoc(id, name, friend string) *document.Document {
	d := document.NewDocument(
		document.E("_id", document.String(id)),
		document.E("name", document.String(name)),
	)
	if friend != "" {
		d.Append("friend", document.String(friend))
	}
	return d
}

func TestReferenceCycleResolvesToSameInstance(t *testing.T) {
	reg := newTestRegistry(t)
	res := newMapResolver()
	res.add("person", personDoc("p2", "bob", "p1"))

	var alice Person
	require.NoError(t, reg.Decode(context.Background(), personDoc("p1", "alice", "p2"), &alice, res))

	require.NotNil(t, alice.Friend)
	assert.Equal(t, "bob", alice.Friend.Name)
	assert.Same(t, &alice, alice.Friend.Friend, "the root entity is cached before its references resolve")
	assert.Len(t, res.batches, 1)
}

func TestReferenceCollectionsBatchAndIgnoreMissing(t *testing.T) {
	reg := newTestRegistry(t)
	res := newMapResolver()
	for _, id := range []string{"a", "c", "e"} {
		res.add("person", personDoc(id, "name-"+id, ""))
	}
	res.add("person", personDoc("owner", "olive", ""))

	ids := func(names ...string) *document.Array {
		arr := document.NewArray()
		for _, n := range names {
			arr.Append(document.String(n))
		}
		return arr
	}
	doc := document.NewDocument(
		document.E("_id", document.String("club")),
		document.E("members", document.Arr(ids("a", "b", "c", "d", "e"))),
		document.E("founders", document.Arr(ids("x", "c", "a"))),
		document.E("roles", document.Doc(document.NewDocument(
			document.E("chair", document.String("e")),
			document.E("treasurer", document.String("missing")),
		))),
		document.E("owner", document.String("owner")),
	)

	var club Club
	require.NoError(t, reg.Decode(context.Background(), doc, &club, res))

	require.Len(t, club.Members, 3, "missing members are dropped")
	assert.Equal(t, "a", club.Members[0].ID)
	assert.Equal(t, "c", club.Members[1].ID)
	assert.Equal(t, "e", club.Members[2].ID)

	assert.Nil(t, club.Founders[0], "array positions of missing targets stay empty")
	assert.Same(t, club.Members[1], club.Founders[1])
	assert.Same(t, club.Members[0], club.Founders[2])

	assert.Equal(t, map[string]*Person{"chair": club.Members[2]}, club.Roles)
	assert.Equal(t, "olive", club.Owner.Name)

	require.Len(t, res.batches, 4, "one batch per reference field")
	assert.Len(t, res.batches[0], 5)
	assert.Len(t, res.batches[1], 1, "cached targets are not fetched again")
	assert.Equal(t, "Members.1", res.batches[0][1].Path)
}

func TestReferenceMissingWithoutIgnore(t *testing.T) {
	reg := newTestRegistry(t)
	res := newMapResolver()

	var p Person
	err := reg.Decode(context.Background(), personDoc("p1", "alice", "ghost"), &p, res)
	require.Error(t, err)

	var decErr *DecodeError
	require.True(t, errors.As(err, &decErr))
	assert.Equal(t, "Person", decErr.Type)
	assert.Equal(t, "Friend", decErr.Path)
}

func TestPolymorphicReferences(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Mapper().Register(Dog{}, Cat{}))

	club := Club{
		ID:    "club",
		Owner: Person{ID: "owner"},
		Pets:  []Pet{&Dog{ID: "d1", Name: "rex"}, &Cat{ID: "c1", Name: "tom"}},
	}
	doc, err := reg.Encode(club)
	require.NoError(t, err)

	pet, _ := doc.LookupPath("pets", "1")
	ref, ok := pet.DocumentOK()
	require.True(t, ok, "polymorphic references are stored as DBRefs")
	coll, _ := ref.Lookup(DBRefCollectionKey)
	assert.Equal(t, document.String("pets"), coll)
	id, _ := ref.Lookup(DBRefIDKey)
	assert.Equal(t, document.String("c1"), id)

	res := newMapResolver()
	res.add("person", personDoc("owner", "olive", ""))
	res.add("pets", document.NewDocument(
		document.E("_id", document.String("d1")),
		document.E("_t", document.String("dog")),
		document.E("name", document.String("rex")),
	))
	res.add("pets", document.NewDocument(
		document.E("_id", document.String("c1")),
		document.E("_t", document.String("cat")),
		document.E("name", document.String("tom")),
	))

	var got Club
	require.NoError(t, reg.Decode(context.Background(), doc, &got, res))
	require.Len(t, got.Pets, 2)
	assert.Equal(t, &Dog{ID: "d1", Name: "rex"}, got.Pets[0])
	assert.Equal(t, "meow", got.Pets[1].Sound())

	err = reg.Decode(context.Background(), doc, &got, nil)
	assert.ErrorIs(t, err, ErrNoResolver, "two types share the collection so a stub cannot pick one")
}

func TestEntityID(t *testing.T) {
	reg := newTestRegistry(t)

	id, err := reg.EntityID(&Person{ID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, document.String("p1"), id)

	_, err = reg.EntityID((*Person)(nil))
	assert.ErrorIs(t, err, ErrInvalidTarget)
	_, err = reg.EntityID(Address{})
	assert.Error(t, err)
}

func TestEntityIDFollowsEntityIdentifiers(t *testing.T) {
	reg := newTestRegistry(t)
	member := &Membership{ID: &Person{ID: "p1", Name: "ada"}, Level: 2}

	id, err := reg.EntityID(member)
	require.NoError(t, err)
	assert.Equal(t, document.String("p1"), id)

	doc, err := reg.Encode(Badge{ID: "b1", Holder: member})
	require.NoError(t, err)
	holder, ok := doc.Lookup("holder")
	require.True(t, ok)
	assert.Equal(t, document.String("p1"), holder, "the reference stores the innermost identifier")

	id, err = reg.EntityID(&Membership{})
	require.NoError(t, err)
	assert.True(t, id.IsNull())
}
