package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conduit-lang/docmap/pkg/codec"
	"github.com/conduit-lang/docmap/pkg/criteria"
	"github.com/conduit-lang/docmap/pkg/docmap"
	"github.com/conduit-lang/docmap/pkg/document"
	"github.com/conduit-lang/docmap/pkg/store"
)

type widget struct {
	ID   string `docmap:",id"`
	Name string
}

func TestDatastoreOptions(t *testing.T) {
	cfg := &Config{
		Mapping:  MappingConfig{DiscriminatorKey: "kind"},
		Criteria: CriteriaConfig{ValidateNames: false, StrictTypes: true},
		Decode:   DecodeConfig{MaxDepth: 16, LenientTypeMismatch: true},
	}

	ds := docmap.New(store.NewMemory(), cfg.DatastoreOptions(zap.NewNop())...)
	require.NoError(t, ds.Register(widget{}))

	assert.Equal(t, "kind", ds.Mapper().DiscriminatorKey())
	assert.True(t, ds.Registry().Lenient())
	assert.Equal(t, 16, ds.Registry().MaxDepth())

	q := ds.Query(widget{})
	doc, err := q.Filter(q.Field("undeclared").Equal(1)).Document()
	require.NoError(t, err, "names are not validated")
	assert.Equal(t, []string{"undeclared"}, doc.Keys())

	q = ds.Query(widget{})
	_, err = q.Filter(q.Field("Name").Exists("yes")).Document()
	assert.True(t, criteria.IsIncompatibleValue(err))
}

func TestDatastoreOptionsAlwaysDiscriminate(t *testing.T) {
	cfg := &Config{
		Mapping: MappingConfig{DiscriminatorKey: "kind", AlwaysDiscriminate: true},
		Decode:  DecodeConfig{MaxDepth: 8},
	}
	ds := docmap.New(store.NewMemory(), cfg.DatastoreOptions(zap.NewNop())...)

	doc, err := ds.Encode(widget{ID: "w1", Name: "gear"})
	require.NoError(t, err)
	assert.Equal(t, []string{"_id", "kind", "name"}, doc.Keys())
}

func TestDatastoreOptionsBoundStoredDocuments(t *testing.T) {
	cfg := &Config{Decode: DecodeConfig{MaxDepth: 2}}
	ds := docmap.New(store.NewMemory(), cfg.DatastoreOptions(zap.NewNop())...)

	deep := document.NewDocument(
		document.E("_id", document.String("a")),
		document.E("outer", document.Doc(document.NewDocument(
			document.E("inner", document.Doc(document.NewDocument(
				document.E("x", document.Int32(1)),
			))),
		))),
	)
	err := ds.PutDocument(context.Background(), "things", deep)
	assert.True(t, docmap.IsInvalidDocument(err))
	assert.ErrorIs(t, err, codec.ErrMaxDepth)
}

func TestSettingsMirrorSections(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, docmap.DefaultSettings(), cfg.Settings())
}
