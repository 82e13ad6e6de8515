package criteria

import (
	"fmt"

	"github.com/conduit-lang/docmap/pkg/document"
)

// Criteria is a node of a query predicate tree
type Criteria interface {
	// Document renders the node as a query document
	Document() (*document.Document, error)
}

// Leaf is a predicate on one field path. Construction errors are kept on the leaf and
// returned when it is rendered.
type Leaf struct {
	path  *ResolvedPath
	op    Operator
	value document.Value
	not   bool
	err   error
}

// Path returns the resolved path, nil when construction failed
func (l *Leaf) Path() *ResolvedPath { return l.path }

// Operator returns the comparison operator
func (l *Leaf) Operator() Operator { return l.op }

// Value returns the stored form of the compared value
func (l *Leaf) Value() document.Value { return l.value }

// Negated reports whether the predicate is wrapped in $not
func (l *Leaf) Negated() bool { return l.not }

// Err returns the construction error
func (l *Leaf) Err() error { return l.err }

// Document renders {path: value} for plain equality and {path: {op: value}} otherwise
func (l *Leaf) Document() (*document.Document, error) {
	if l.err != nil {
		return nil, l.err
	}
	if l.op == Equal && !l.not {
		return document.NewDocument(document.E(l.path.Path, l.value)), nil
	}
	expr := document.NewDocument(document.E(l.op.Key(), l.value))
	if l.not {
		expr = document.NewDocument(document.E("$not", document.Doc(expr)))
	}
	return document.NewDocument(document.E(l.path.Path, document.Doc(expr))), nil
}

// Join is the logical operator of a Container
type Join int

const (
	JoinAnd Join = iota
	JoinOr
	JoinNor
)

// Key returns the join's key in a rendered query document
func (j Join) Key() string {
	switch j {
	case JoinOr:
		return "$or"
	case JoinNor:
		return "$nor"
	default:
		return "$and"
	}
}

// Container joins child criteria
type Container struct {
	join     Join
	children []Criteria
}

// And joins children with AND
func And(children ...Criteria) *Container {
	return &Container{join: JoinAnd, children: children}
}

// Or joins children with OR
func Or(children ...Criteria) *Container {
	return &Container{join: JoinOr, children: children}
}

// Nor joins children with NOR
func Nor(children ...Criteria) *Container {
	return &Container{join: JoinNor, children: children}
}

// Add appends children to the container
func (c *Container) Add(children ...Criteria) *Container {
	c.children = append(c.children, children...)
	return c
}

// Join returns the container's logical operator
func (c *Container) Join() Join { return c.join }

// Children returns the child criteria
func (c *Container) Children() []Criteria { return c.children }

// Document renders the container. AND children are merged into one document unless two
// of them share a key, in which case they are listed under $and so no predicate is lost.
//
// A child rendering as the empty document matches everything, so it drops out of an AND
// and decides an OR or NOR on its own. OR without children matches nothing and NOR
// without children everything.
func (c *Container) Document() (*document.Document, error) {
	docs := make([]*document.Document, 0, len(c.children))
	matchAll := false
	for _, child := range c.children {
		doc, err := child.Document()
		if err != nil {
			return nil, err
		}
		if doc.Len() == 0 {
			matchAll = true
			continue
		}
		docs = append(docs, doc)
	}

	switch c.join {
	case JoinOr:
		if matchAll {
			return document.NewDocument(), nil
		}
		if len(docs) == 0 {
			return nil, fmt.Errorf("%w: $or has no alternatives", ErrMatchesNothing)
		}
	case JoinNor:
		if matchAll {
			return nil, fmt.Errorf("%w: $nor excludes an alternative matching every document", ErrMatchesNothing)
		}
		if len(docs) == 0 {
			return document.NewDocument(), nil
		}
	default:
		if len(docs) == 0 {
			return document.NewDocument(), nil
		}
		if !sharesKey(docs) {
			merged := document.NewDocument()
			for _, doc := range docs {
				for _, e := range doc.Elements() {
					merged.Append(e.Key, e.Value)
				}
			}
			return merged, nil
		}
	}

	arr := document.NewArray()
	for _, doc := range docs {
		arr.Append(document.Doc(doc))
	}
	return document.NewDocument(document.E(c.join.Key(), document.Arr(arr))), nil
}

func sharesKey(docs []*document.Document) bool {
	seen := make(map[string]bool)
	for _, doc := range docs {
		for _, key := range doc.Keys() {
			if seen[key] {
				return true
			}
			seen[key] = true
		}
	}
	return false
}
