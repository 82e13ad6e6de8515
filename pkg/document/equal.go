package document

import (
	"bytes"
	"math"
)

// Equal reports whether two values carry the same tag and payload.
// Documents compare element by element in order.
func Equal(a, b Value) bool {
	if a.tag != b.tag {
		return false
	}
	switch a.tag {
	case TagEnd, TagNull, TagMinKey, TagMaxKey:
		return true
	case TagDouble:
		x, _ := a.DoubleOK()
		y, _ := b.DoubleOK()
		if math.IsNaN(x) && math.IsNaN(y) {
			return true
		}
		return x == y
	case TagDocument:
		x, _ := a.DocumentOK()
		y, _ := b.DocumentOK()
		return EqualDocuments(x, y)
	case TagArray:
		x, _ := a.ArrayOK()
		y, _ := b.ArrayOK()
		if x.Len() != y.Len() {
			return false
		}
		for i := range x.vals {
			if !Equal(x.vals[i], y.vals[i]) {
				return false
			}
		}
		return true
	case TagBinary:
		x, _ := a.BinaryOK()
		y, _ := b.BinaryOK()
		return x.Subtype == y.Subtype && bytes.Equal(x.Data, y.Data)
	default:
		return a.v == b.v
	}
}

// EqualDocuments reports whether two documents have equal elements in the same order
func EqualDocuments(a, b *Document) bool {
	if a.Len() != b.Len() {
		return false
	}
	for i := 0; i < a.Len(); i++ {
		if a.elems[i].Key != b.elems[i].Key || !Equal(a.elems[i].Value, b.elems[i].Value) {
			return false
		}
	}
	return true
}
