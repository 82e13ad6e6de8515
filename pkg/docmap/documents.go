package docmap

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/conduit-lang/docmap/pkg/codec"
	"github.com/conduit-lang/docmap/pkg/document"
	"github.com/conduit-lang/docmap/pkg/store"
)

// ErrInvalidDocument is returned when an untyped document cannot be stored as the datastore
// is configured
var ErrInvalidDocument = errors.New("invalid document")

// IsInvalidDocument returns true if the error is ErrInvalidDocument
func IsInvalidDocument(err error) bool {
	return errors.Is(err, ErrInvalidDocument)
}

// FetchDocument returns the raw document stored under id in collection. An integer id that
// is not found is retried in the other integer width, since Extended JSON gives small
// integers 32 bits.
func (d *Datastore) FetchDocument(ctx context.Context, collection string, id document.Value) (*document.Document, error) {
	doc, err := d.store.FetchByID(ctx, collection, id)
	if alt, ok := otherWidth(id); ok && store.IsNotFound(err) {
		doc, err = d.store.FetchByID(ctx, collection, alt)
	}
	return doc, err
}

// FetchDocuments returns the raw documents stored under ids, aligned with ids and nil
// where nothing is stored. Integer ids are retried like FetchDocument does.
func (d *Datastore) FetchDocuments(ctx context.Context, collection string, ids []document.Value) ([]*document.Document, error) {
	docs, err := d.store.FetchByIDs(ctx, collection, ids)
	if err != nil {
		return nil, err
	}

	var (
		retry []document.Value
		slots []int
	)
	for i, doc := range docs {
		if doc != nil {
			continue
		}
		if alt, ok := otherWidth(ids[i]); ok {
			retry = append(retry, alt)
			slots = append(slots, i)
		}
	}
	if len(retry) == 0 {
		return docs, nil
	}

	found, err := d.store.FetchByIDs(ctx, collection, retry)
	if err != nil {
		return nil, err
	}
	for j, doc := range found {
		docs[slots[j]] = doc
	}
	return docs, nil
}

// PutDocument stores a raw document after CheckDocument accepts it
func (d *Datastore) PutDocument(ctx context.Context, collection string, doc *document.Document) error {
	if err := d.CheckDocument(collection, doc); err != nil {
		return err
	}
	if err := d.store.Put(ctx, collection, doc); err != nil {
		return err
	}
	id, _ := doc.Lookup(store.IDField)
	d.logger.Debug("stored document", zap.String("collection", collection), zap.Stringer("id", id))
	return nil
}

// DeleteDocument removes the raw document stored under id in collection
func (d *Datastore) DeleteDocument(ctx context.Context, collection string, id document.Value) error {
	err := d.store.Delete(ctx, collection, id)
	if alt, ok := otherWidth(id); ok && store.IsNotFound(err) {
		err = d.store.Delete(ctx, collection, alt)
	}
	return err
}

// CheckDocument reports why doc, stored in collection, could not be decoded with the
// datastore settings. It may nest no deeper than the decode depth limit, and a
// discriminator under the configured key must be a string. When types are registered for
// the collection it must name one of them.
func (d *Datastore) CheckDocument(collection string, doc *document.Document) error {
	if doc == nil {
		return fmt.Errorf("%w: nil document", ErrInvalidDocument)
	}
	if depth, limit := doc.Depth(), d.registry.MaxDepth(); depth > limit {
		return fmt.Errorf("%w: %w: depth %d, limit %d", ErrInvalidDocument, codec.ErrMaxDepth, depth, limit)
	}

	key := d.mapper.DiscriminatorKey()
	disc, ok := doc.Lookup(key)
	if !ok {
		return nil
	}
	value, ok := disc.StringOK()
	if !ok {
		return fmt.Errorf("%w: discriminator %s must be a string, got %s", ErrInvalidDocument, key, disc.Tag())
	}
	types := d.mapper.TypesForCollection(collection)
	if len(types) == 0 {
		return nil
	}
	if t, known := d.mapper.TypeForDiscriminator(value); known {
		for _, candidate := range types {
			if candidate == t {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: %w: %q in %s", ErrInvalidDocument, codec.ErrUnknownDiscriminator, value, collection)
}

// Discriminate writes value under the configured discriminator key of doc
func (d *Datastore) Discriminate(doc *document.Document, value string) {
	doc.Set(d.mapper.DiscriminatorKey(), document.String(value))
}

// otherWidth returns id in the other integer width when the number fits
func otherWidth(id document.Value) (document.Value, bool) {
	if n, ok := id.Int64OK(); ok && n >= math.MinInt32 && n <= math.MaxInt32 {
		return document.Int32(int32(n)), true
	}
	if n, ok := id.Int32OK(); ok {
		return document.Int64(int64(n)), true
	}
	return document.Value{}, false
}
