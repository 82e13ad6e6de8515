package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocument() *Document {
	return NewDocument(
		E("_id", Int64(7)),
		E("name", String("widget")),
		E("sizes", Arr(NewArray(Int32(1), Int32(2), Int32(3)))),
		E("dims", Doc(NewDocument(E("w", Double(1.5)), E("h", Double(2.5))))),
	)
}

func TestReaderWalksDocument(t *testing.T) {
	r := NewDocumentReader(sampleDocument())

	tag, err := r.ReadNextType()
	require.NoError(t, err)
	assert.Equal(t, TagDocument, tag)
	require.NoError(t, r.ReadStartDocument())

	tag, err = r.ReadNextType()
	require.NoError(t, err)
	assert.Equal(t, TagInt64, tag)
	name, err := r.ReadName()
	require.NoError(t, err)
	assert.Equal(t, "_id", name)
	id, err := r.ReadInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	_, err = r.ReadNextType()
	require.NoError(t, err)
	s, err := r.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "widget", s)

	_, err = r.ReadNextType()
	require.NoError(t, err)
	require.NoError(t, r.ReadStartArray())
	var sizes []int32
	for {
		tag, err := r.ReadNextType()
		require.NoError(t, err)
		if tag == TagEnd {
			break
		}
		i, err := r.ReadInt32()
		require.NoError(t, err)
		sizes = append(sizes, i)
	}
	require.NoError(t, r.ReadEndArray())
	assert.Equal(t, []int32{1, 2, 3}, sizes)

	_, err = r.ReadNextType()
	require.NoError(t, err)
	assert.Equal(t, "dims", r.CurrentName())
	require.NoError(t, r.SkipValue())

	tag, err = r.ReadNextType()
	require.NoError(t, err)
	assert.Equal(t, TagEnd, tag)
	require.NoError(t, r.ReadEndDocument())
	assert.Equal(t, 0, r.Depth())

	tag, err = r.ReadNextType()
	require.NoError(t, err)
	assert.Equal(t, TagEnd, tag)
}

func TestReaderTypeMismatch(t *testing.T) {
	r := NewDocumentReader(sampleDocument())
	_, err := r.ReadNextType()
	require.NoError(t, err)
	require.NoError(t, r.ReadStartDocument())
	_, err = r.ReadNextType()
	require.NoError(t, err)

	_, err = r.ReadInt32()
	require.Error(t, err)
	assert.True(t, IsTypeMismatch(err))

	var mismatch *TypeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, TagInt32, mismatch.Expected)
	assert.Equal(t, TagInt64, mismatch.Actual)
	assert.Equal(t, "_id", mismatch.Name)

	// the value is still pending after a failed read
	id, err := r.ReadInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
}

func TestReaderRequiresReadNextType(t *testing.T) {
	r := NewDocumentReader(sampleDocument())
	_, err := r.ReadString()
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestReaderMarkResetIsIdempotent(t *testing.T) {
	r := NewDocumentReader(sampleDocument())
	_, err := r.ReadNextType()
	require.NoError(t, err)
	require.NoError(t, r.ReadStartDocument())

	b := r.Mark()
	require.NoError(t, r.Reset(b))

	tag, err := r.ReadNextType()
	require.NoError(t, err)
	assert.Equal(t, TagInt64, tag)
	assert.Equal(t, "_id", r.CurrentName())
}

func TestReaderMarkResetLookahead(t *testing.T) {
	r := NewDocumentReader(sampleDocument())
	_, err := r.ReadNextType()
	require.NoError(t, err)

	// peek into the document, then retry from the bookmark
	b := r.Mark()
	require.NoError(t, r.ReadStartDocument())
	for {
		tag, err := r.ReadNextType()
		require.NoError(t, err)
		if tag == TagEnd {
			break
		}
		require.NoError(t, r.SkipValue())
	}
	require.NoError(t, r.ReadEndDocument())

	require.NoError(t, r.Reset(b))
	assert.Equal(t, TagDocument, r.CurrentType())
	require.NoError(t, r.ReadStartDocument())
	_, err = r.ReadNextType()
	require.NoError(t, err)
	id, err := r.ReadInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	// a bookmark can be reused
	require.NoError(t, r.Reset(b))
	assert.Equal(t, 0, r.Depth())
}

func TestReaderMarkInsideArray(t *testing.T) {
	r := NewDocumentReader(sampleDocument())
	_, _ = r.ReadNextType()
	require.NoError(t, r.ReadStartDocument())
	_, _ = r.ReadNextType()
	_ = r.SkipValue()
	_, _ = r.ReadNextType()
	_ = r.SkipValue()
	_, _ = r.ReadNextType()
	require.NoError(t, r.ReadStartArray())
	_, _ = r.ReadNextType()
	_, err := r.ReadInt32()
	require.NoError(t, err)

	b := r.Mark()
	_, _ = r.ReadNextType()
	second, err := r.ReadInt32()
	require.NoError(t, err)
	require.NoError(t, r.Reset(b))

	_, _ = r.ReadNextType()
	again, err := r.ReadInt32()
	require.NoError(t, err)
	assert.Equal(t, second, again)
	assert.Equal(t, "1", r.CurrentName())
}

func TestReaderForeignBookmark(t *testing.T) {
	a := NewDocumentReader(sampleDocument())
	b := NewDocumentReader(sampleDocument())
	assert.ErrorIs(t, b.Reset(a.Mark()), ErrForeignBookmark)
	assert.ErrorIs(t, b.Reset(nil), ErrForeignBookmark)
}

func TestReaderEndWithPendingValue(t *testing.T) {
	r := NewDocumentReader(sampleDocument())
	_, _ = r.ReadNextType()
	require.NoError(t, r.ReadStartDocument())
	_, _ = r.ReadNextType()
	assert.ErrorIs(t, r.ReadEndDocument(), ErrInvalidState)

	require.NoError(t, r.SkipValue())
	// remaining elements are skipped on close
	require.NoError(t, r.ReadEndDocument())
}
