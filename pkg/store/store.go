// Package store provides the storage collaborators documents are fetched from and saved to.
package store

import (
	"context"

	"github.com/conduit-lang/docmap/pkg/document"
)

// IDField is the document key holding a document's identifier
const IDField = "_id"

// Fetcher retrieves stored documents by identifier. It is the only storage capability the
// reference resolver needs.
type Fetcher interface {
	// FetchByID returns the document stored under id, or ErrNotFound
	FetchByID(ctx context.Context, collection string, id document.Value) (*document.Document, error)

	// FetchByIDs returns one entry per id, in order. Missing documents are nil entries.
	FetchByIDs(ctx context.Context, collection string, ids []document.Value) ([]*document.Document, error)
}

// Store is a Fetcher that can also save and delete documents
type Store interface {
	Fetcher

	// Put inserts or replaces doc, which must carry an identifier
	Put(ctx context.Context, collection string, doc *document.Document) error

	// Delete removes the document stored under id, or returns ErrNotFound
	Delete(ctx context.Context, collection string, id document.Value) error

	// Close releases the backend's resources
	Close() error
}

// Key returns the storage key of an identifier. Identifiers of different tags never share
// a key.
func Key(id document.Value) string {
	return id.Key()
}

// documentID returns the identifier of doc
func documentID(doc *document.Document) (document.Value, error) {
	if doc == nil {
		return document.Value{}, ErrMissingID
	}
	id, ok := doc.Lookup(IDField)
	if !ok || id.IsNull() {
		return document.Value{}, ErrMissingID
	}
	return id, nil
}

// align orders fetched documents by the requested ids
func align(ids []document.Value, found map[string]*document.Document) []*document.Document {
	out := make([]*document.Document, len(ids))
	for i, id := range ids {
		out[i] = found[Key(id)]
	}
	return out
}

// uniqueKeys returns the distinct keys of ids in first-seen order
func uniqueKeys(ids []document.Value) []string {
	seen := make(map[string]bool, len(ids))
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		k := Key(id)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}
