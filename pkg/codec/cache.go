package codec

import (
	"reflect"

	"github.com/conduit-lang/docmap/pkg/document"
)

type entityKey struct {
	t  reflect.Type
	id string
}

// EntityCache maps (type, identifier) to an instance materialized during one decode
// operation. It breaks reference cycles and deduplicates fetches of shared references.
// An EntityCache belongs to exactly one operation and is not safe for concurrent use.
type EntityCache struct {
	entries map[entityKey]reflect.Value
}

// NewEntityCache creates an empty cache
func NewEntityCache() *EntityCache {
	return &EntityCache{entries: make(map[entityKey]reflect.Value)}
}

// Get returns the instance cached for t and id. Instances are pointers to structs.
func (c *EntityCache) Get(t reflect.Type, id document.Value) (reflect.Value, bool) {
	v, ok := c.entries[entityKey{t: t, id: id.Key()}]
	return v, ok
}

// Put records the instance for t and id
func (c *EntityCache) Put(t reflect.Type, id document.Value, v reflect.Value) {
	c.entries[entityKey{t: t, id: id.Key()}] = v
}

// Len returns the number of cached instances
func (c *EntityCache) Len() int {
	return len(c.entries)
}
