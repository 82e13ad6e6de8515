package document

import (
	"testing"
	"time"

	"github.com/kylelemons/godebug/pretty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestWriterBuildsNestedDocument(t *testing.T) {
	w := NewWriter()
	require.NoError(t, w.WriteStartDocument())
	require.NoError(t, w.WriteName("name"))
	require.NoError(t, w.WriteString("Ada"))
	require.NoError(t, w.WriteName("tags"))
	require.NoError(t, w.WriteStartArray())
	require.NoError(t, w.WriteString("a"))
	require.NoError(t, w.WriteInt32(2))
	require.NoError(t, w.WriteEndArray())
	require.NoError(t, w.WriteName("address"))
	require.NoError(t, w.WriteStartDocument())
	require.NoError(t, w.WriteName("city"))
	require.NoError(t, w.WriteString("London"))
	require.NoError(t, w.WriteEndDocument())
	assert.Equal(t, 1, w.Depth())
	require.NoError(t, w.WriteEndDocument())

	got, err := w.Document()
	require.NoError(t, err)

	want := NewDocument(
		E("name", String("Ada")),
		E("tags", Arr(NewArray(String("a"), Int32(2)))),
		E("address", Doc(NewDocument(E("city", String("London"))))),
	)
	if !EqualDocuments(want, got) {
		t.Errorf("document mismatch (-want +got):\n%s", pretty.Compare(want.Keys(), got.Keys()))
	}
	assert.Equal(t, []string{"name", "tags", "address"}, got.Keys())
}

func TestWriterPreservesScalarTags(t *testing.T) {
	oid := primitive.NewObjectID()
	dec, err := primitive.ParseDecimal128("12.50")
	require.NoError(t, err)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	w := NewWriter()
	require.NoError(t, w.WriteStartDocument())
	writes := []struct {
		name  string
		write func() error
		tag   Tag
	}{
		{"i32", func() error { return w.WriteInt32(1) }, TagInt32},
		{"i64", func() error { return w.WriteInt64(1) }, TagInt64},
		{"f", func() error { return w.WriteDouble(1) }, TagDouble},
		{"dec", func() error { return w.WriteDecimal128(dec) }, TagDecimal128},
		{"oid", func() error { return w.WriteObjectID(oid) }, TagObjectID},
		{"bin", func() error { return w.WriteBinary(4, []byte{1, 2}) }, TagBinary},
		{"dt", func() error { return w.WriteDateTime(now) }, TagDateTime},
		{"ts", func() error { return w.WriteTimestamp(5, 1) }, TagTimestamp},
		{"re", func() error { return w.WriteRegex("^a", "i") }, TagRegex},
		{"null", func() error { return w.WriteNull() }, TagNull},
		{"min", func() error { return w.WriteMinKey() }, TagMinKey},
		{"max", func() error { return w.WriteMaxKey() }, TagMaxKey},
	}
	for _, wr := range writes {
		require.NoError(t, w.WriteName(wr.name))
		require.NoError(t, wr.write())
	}
	require.NoError(t, w.WriteEndDocument())

	d, err := w.Document()
	require.NoError(t, err)
	for _, wr := range writes {
		v, ok := d.Lookup(wr.name)
		require.True(t, ok, wr.name)
		assert.Equal(t, wr.tag, v.Tag(), wr.name)
	}
}

func TestWriterRootScalar(t *testing.T) {
	w := NewWriter()
	require.NoError(t, w.WriteInt64(42))

	root, err := w.Root()
	require.NoError(t, err)
	i, ok := root.Int64OK()
	assert.True(t, ok)
	assert.Equal(t, int64(42), i)

	err = w.WriteInt64(43)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestWriterMisuse(t *testing.T) {
	t.Run("value without name", func(t *testing.T) {
		w := NewWriter()
		require.NoError(t, w.WriteStartDocument())
		assert.ErrorIs(t, w.WriteString("x"), ErrInvalidState)
	})

	t.Run("name outside document", func(t *testing.T) {
		w := NewWriter()
		require.NoError(t, w.WriteStartArray())
		assert.ErrorIs(t, w.WriteName("x"), ErrInvalidState)
	})

	t.Run("mismatched end", func(t *testing.T) {
		w := NewWriter()
		require.NoError(t, w.WriteStartDocument())
		assert.ErrorIs(t, w.WriteEndArray(), ErrInvalidState)
	})

	t.Run("incomplete root", func(t *testing.T) {
		w := NewWriter()
		require.NoError(t, w.WriteStartDocument())
		_, err := w.Root()
		assert.ErrorIs(t, err, ErrIncomplete)
	})

	t.Run("root is not a document", func(t *testing.T) {
		w := NewWriter()
		require.NoError(t, w.WriteBoolean(true))
		_, err := w.Document()
		assert.ErrorIs(t, err, ErrTypeMismatch)
	})
}
