// Package document provides the hierarchical, self-describing document tree that the
// mapper encodes into and decodes from. The tree is isomorphic to BSON: ordered documents,
// arrays, and a fixed set of tagged scalars. A stack-machine Writer builds trees and a
// cursor Reader walks them with bookmark support for lookahead decoding.
package document

import "go.mongodb.org/mongo-driver/bson/bsontype"

// Tag identifies the kind of a Value. The numeric values match the BSON type bytes.
type Tag byte

const (
	// TagEnd is returned by Reader.ReadNextType when the current container is exhausted.
	TagEnd        Tag = 0x00
	TagDouble     Tag = 0x01
	TagString     Tag = 0x02
	TagDocument   Tag = 0x03
	TagArray      Tag = 0x04
	TagBinary     Tag = 0x05
	TagObjectID   Tag = 0x07
	TagBoolean    Tag = 0x08
	TagDateTime   Tag = 0x09
	TagNull       Tag = 0x0A
	TagRegex      Tag = 0x0B
	TagInt32      Tag = 0x10
	TagTimestamp  Tag = 0x11
	TagInt64      Tag = 0x12
	TagDecimal128 Tag = 0x13
	TagMaxKey     Tag = 0x7F
	TagMinKey     Tag = 0xFF
)

// String returns the query-language alias of the tag (the names accepted by $type)
func (t Tag) String() string {
	switch t {
	case TagEnd:
		return "end"
	case TagDouble:
		return "double"
	case TagString:
		return "string"
	case TagDocument:
		return "object"
	case TagArray:
		return "array"
	case TagBinary:
		return "binData"
	case TagObjectID:
		return "objectId"
	case TagBoolean:
		return "bool"
	case TagDateTime:
		return "date"
	case TagNull:
		return "null"
	case TagRegex:
		return "regex"
	case TagInt32:
		return "int"
	case TagTimestamp:
		return "timestamp"
	case TagInt64:
		return "long"
	case TagDecimal128:
		return "decimal"
	case TagMaxKey:
		return "maxKey"
	case TagMinKey:
		return "minKey"
	default:
		return "unknown"
	}
}

// ParseTag converts a $type alias into a Tag
func ParseTag(s string) (Tag, bool) {
	for _, t := range allTags {
		if t.String() == s {
			return t, true
		}
	}
	return TagEnd, false
}

var allTags = []Tag{
	TagDouble, TagString, TagDocument, TagArray, TagBinary, TagObjectID, TagBoolean,
	TagDateTime, TagNull, TagRegex, TagInt32, TagTimestamp, TagInt64, TagDecimal128,
	TagMaxKey, TagMinKey,
}

// IsContainer returns true for documents and arrays
func (t Tag) IsContainer() bool {
	return t == TagDocument || t == TagArray
}

// IsNumeric returns true for int32, int64, double and decimal values
func (t Tag) IsNumeric() bool {
	return t == TagInt32 || t == TagInt64 || t == TagDouble || t == TagDecimal128
}

// BSONType returns the matching mongo-driver type byte
func (t Tag) BSONType() bsontype.Type {
	return bsontype.Type(t)
}
