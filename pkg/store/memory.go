package store

import (
	"context"
	"sort"
	"sync"

	"github.com/conduit-lang/docmap/pkg/document"
)

// Memory is an in-process store. Documents are cloned on the way in and out, so callers
// never share a tree with the store.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]*document.Document
}

// NewMemory creates an empty memory store
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[string]*document.Document)}
}

// FetchByID returns the document stored under id
func (m *Memory) FetchByID(ctx context.Context, collection string, id document.Value) (*document.Document, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.collections[collection][Key(id)]
	if !ok {
		return nil, ErrNotFound
	}
	return doc.Clone(), nil
}

// FetchByIDs returns the documents stored under ids, in order
func (m *Memory) FetchByIDs(ctx context.Context, collection string, ids []document.Value) ([]*document.Document, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := m.collections[collection]
	out := make([]*document.Document, len(ids))
	for i, id := range ids {
		if doc, ok := docs[Key(id)]; ok {
			out[i] = doc.Clone()
		}
	}
	return out, nil
}

// Put stores a copy of doc, creating the collection on first use
func (m *Memory) Put(ctx context.Context, collection string, doc *document.Document) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if collection == "" {
		return ErrInvalidCollection
	}
	id, err := documentID(doc)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	docs, ok := m.collections[collection]
	if !ok {
		docs = make(map[string]*document.Document)
		m.collections[collection] = docs
	}
	docs[Key(id)] = doc.Clone()
	return nil
}

// Delete removes the document stored under id
func (m *Memory) Delete(ctx context.Context, collection string, id document.Value) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := Key(id)
	if _, ok := m.collections[collection][key]; !ok {
		return ErrNotFound
	}
	delete(m.collections[collection], key)
	return nil
}

// Collections returns the names of all collections holding documents, sorted
func (m *Memory) Collections() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.collections))
	for name, docs := range m.collections {
		if len(docs) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Len returns the number of documents in collection
func (m *Memory) Len(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[collection])
}

// Close is a no-op
func (m *Memory) Close() error {
	return nil
}
