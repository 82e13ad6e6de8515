// Package reference resolves stored references into entity instances through a storage
// fetcher.
package reference

import (
	"reflect"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/conduit-lang/docmap/pkg/codec"
	"github.com/conduit-lang/docmap/pkg/document"
	"github.com/conduit-lang/docmap/pkg/mapping"
	"github.com/conduit-lang/docmap/pkg/store"
)

// Resolver implements codec.ReferenceResolver over a store.Fetcher.
//
// Every lookup consults the operation's entity cache first. Fetched documents are decoded
// through the operation's registry; the new instance is cached before its own fields are
// decoded so cycles resolve to the same instance.
type Resolver struct {
	fetcher store.Fetcher
	logger  *zap.Logger
}

// Option configures a Resolver
type Option func(*Resolver)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a resolver fetching from fetcher
func New(fetcher store.Fetcher, opts ...Option) *Resolver {
	r := &Resolver{fetcher: fetcher, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ codec.ReferenceResolver = (*Resolver)(nil)

// ResolveOne resolves a single reference
func (r *Resolver) ResolveOne(dc *codec.DecodeContext, ref codec.Ref) (reflect.Value, error) {
	if inst, ok := cached(dc, ref); ok {
		return inst, nil
	}

	doc, err := r.fetcher.FetchByID(dc.Context, ref.Collection, ref.ID)
	switch {
	case store.IsNotFound(err), store.IsCollectionMissing(err):
		return r.missing(ref)
	case err != nil:
		return reflect.Value{}, err
	}
	return r.materialize(dc, ref, doc)
}

// batch is the uncached references of one collection
type batch struct {
	collection string
	refs       []int
	ids        []document.Value
	docs       []*document.Document
}

// ResolveMany resolves refs with one fetch per collection. Collections are fetched
// concurrently; decoding happens afterwards, in the order of refs.
func (r *Resolver) ResolveMany(dc *codec.DecodeContext, refs []codec.Ref) ([]reflect.Value, error) {
	out := make([]reflect.Value, len(refs))

	var batches []*batch
	byCollection := make(map[string]*batch)
	for i, ref := range refs {
		if inst, ok := cached(dc, ref); ok {
			out[i] = inst
			continue
		}
		b, ok := byCollection[ref.Collection]
		if !ok {
			b = &batch{collection: ref.Collection}
			byCollection[ref.Collection] = b
			batches = append(batches, b)
		}
		b.refs = append(b.refs, i)
		b.ids = append(b.ids, ref.ID)
	}

	g, ctx := errgroup.WithContext(dc.Context)
	for _, b := range batches {
		g.Go(func() error {
			docs, err := r.fetcher.FetchByIDs(ctx, b.collection, b.ids)
			if store.IsCollectionMissing(err) {
				b.docs = make([]*document.Document, len(b.ids))
				return nil
			}
			if err != nil {
				return err
			}
			b.docs = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.logger.Debug("fetched references",
		zap.Int("refs", len(refs)),
		zap.Int("collections", len(batches)),
	)

	fetched := make([]*document.Document, len(refs))
	pending := make([]bool, len(refs))
	for _, b := range batches {
		for j, i := range b.refs {
			if j < len(b.docs) {
				fetched[i] = b.docs[j]
			}
			pending[i] = true
		}
	}

	for i, ref := range refs {
		if !pending[i] {
			continue
		}
		var (
			inst reflect.Value
			err  error
		)
		if fetched[i] == nil {
			inst, err = r.missing(ref)
		} else {
			inst, err = r.materialize(dc, ref, fetched[i])
		}
		if err != nil {
			return nil, err
		}
		out[i] = inst
	}
	return out, nil
}

func (r *Resolver) materialize(dc *codec.DecodeContext, ref codec.Ref, doc *document.Document) (reflect.Value, error) {
	reg := dc.Registry()
	t, err := reg.ConcreteType(ref.Type, ref.Collection, doc)
	if err != nil {
		return reflect.Value{}, err
	}
	return reg.Materialize(dc, t, doc)
}

// missing applies the reference's missing-target policy
func (r *Resolver) missing(ref codec.Ref) (reflect.Value, error) {
	if ref.IgnoreMissing {
		r.logger.Debug("ignoring missing reference",
			zap.String("collection", ref.Collection),
			zap.Stringer("id", ref.ID),
			zap.String("path", ref.Path),
		)
		return reflect.Value{}, nil
	}
	return reflect.Value{}, &NotFoundError{
		Type:       mapping.TypeName(ref.Type),
		Collection: ref.Collection,
		ID:         ref.ID,
		Path:       ref.Path,
	}
}

// cached returns the instance already materialized for ref in this operation
func cached(dc *codec.DecodeContext, ref codec.Ref) (reflect.Value, bool) {
	for _, t := range dc.Registry().CandidateTypes(ref.Type, ref.Collection) {
		if inst, ok := dc.Cache.Get(t, ref.ID); ok {
			return inst, true
		}
	}
	return reflect.Value{}, false
}
