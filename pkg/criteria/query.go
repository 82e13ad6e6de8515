package criteria

import (
	"fmt"
	"reflect"

	"github.com/conduit-lang/docmap/pkg/document"
)

// Query builds criteria against one mapped type. Errors are deferred: a failed predicate
// is kept in the tree and reported by Document.
type Query struct {
	v      *Validator
	target reflect.Type
	root   *Container
	err    error
}

// Query starts a query against the type of sample, which may also be a reflect.Type
func (v *Validator) Query(sample interface{}) *Query {
	q := &Query{v: v, root: And()}
	switch s := sample.(type) {
	case reflect.Type:
		q.target = s
	case nil:
		q.err = fmt.Errorf("query target is nil")
	default:
		q.target = reflect.TypeOf(s)
	}
	if q.target != nil {
		if _, err := v.mapper.Resolve(derefType(q.target)); err != nil {
			q.err = err
		}
	}
	return q
}

// Documents starts a query on untyped documents. Paths are used as written; values are
// still checked against their operators.
func (v *Validator) Documents() *Query {
	return &Query{v: v, root: And()}
}

// Type returns the query's target type
func (q *Query) Type() reflect.Type { return q.target }

// Field starts a predicate on path. Segments are declared field names separated by dots.
func (q *Query) Field(path string) *FieldEnd {
	return &FieldEnd{q: q, path: path}
}

// Filter adds criteria that must all hold
func (q *Query) Filter(criteria ...Criteria) *Query {
	q.root.Add(criteria...)
	return q
}

// And joins criteria with AND
func (q *Query) And(criteria ...Criteria) *Container { return And(criteria...) }

// Or joins criteria with OR
func (q *Query) Or(criteria ...Criteria) *Container { return Or(criteria...) }

// Nor joins criteria with NOR
func (q *Query) Nor(criteria ...Criteria) *Container { return Nor(criteria...) }

// Criteria returns the root of the query tree
func (q *Query) Criteria() *Container { return q.root }

// Document renders the query, returning the first error recorded while building it
func (q *Query) Document() (*document.Document, error) {
	if q.err != nil {
		return nil, q.err
	}
	return q.root.Document()
}

// FieldEnd completes a predicate on one path
type FieldEnd struct {
	q    *Query
	path string
	not  bool
}

// Not negates the predicate that follows
func (f *FieldEnd) Not() *FieldEnd {
	return &FieldEnd{q: f.q, path: f.path, not: !f.not}
}

func (f *FieldEnd) Equal(v interface{}) Criteria              { return f.leaf(Equal, v) }
func (f *FieldEnd) NotEqual(v interface{}) Criteria           { return f.leaf(NotEqual, v) }
func (f *FieldEnd) GreaterThan(v interface{}) Criteria        { return f.leaf(GreaterThan, v) }
func (f *FieldEnd) GreaterThanOrEqual(v interface{}) Criteria { return f.leaf(GreaterThanOrEqual, v) }
func (f *FieldEnd) LessThan(v interface{}) Criteria           { return f.leaf(LessThan, v) }
func (f *FieldEnd) LessThanOrEqual(v interface{}) Criteria    { return f.leaf(LessThanOrEqual, v) }
func (f *FieldEnd) In(values interface{}) Criteria            { return f.leaf(In, values) }
func (f *FieldEnd) NotIn(values interface{}) Criteria         { return f.leaf(NotIn, values) }
func (f *FieldEnd) HasAll(values interface{}) Criteria        { return f.leaf(All, values) }
func (f *FieldEnd) Exists(exists interface{}) Criteria        { return f.leaf(Exists, exists) }
func (f *FieldEnd) Size(n interface{}) Criteria               { return f.leaf(Size, n) }
func (f *FieldEnd) Type(alias interface{}) Criteria           { return f.leaf(Type, alias) }

// Matches compares against a pattern: a string, *regexp.Regexp or primitive.Regex
func (f *FieldEnd) Matches(pattern interface{}) Criteria { return f.leaf(Regex, pattern) }

// Mod matches values whose remainder by divisor is remainder
func (f *FieldEnd) Mod(divisor, remainder int64) Criteria {
	return f.leaf(Mod, []int64{divisor, remainder})
}

// ElemMatch matches arrays with an element satisfying the criteria built by build. The
// nested query targets the element type of the path.
func (f *FieldEnd) ElemMatch(build func(elem *Query) Criteria) Criteria {
	if f.q.err != nil {
		return &Leaf{err: f.q.err}
	}
	rp, err := f.q.v.Resolve(f.q.target, f.path)
	if err != nil {
		return &Leaf{err: err}
	}

	elem := &Query{v: f.q.v, root: And()}
	if rp.Elem != nil {
		elem.target = rp.Elem.Type
	} else if rp.Resolved && f.q.v.strictTypes {
		return &Leaf{err: &ValueError{Path: f.path, Operator: ElemMatch, Message: "elements are not documents"}}
	}

	nested := build(elem)
	if nested == nil {
		nested = elem.root
	}
	return f.leaf(ElemMatch, nested)
}

// Operator builds a predicate with an explicit operator
func (f *FieldEnd) Operator(op Operator, v interface{}) Criteria {
	return f.leaf(op, v)
}

func (f *FieldEnd) leaf(op Operator, value interface{}) Criteria {
	if f.q.err != nil {
		return &Leaf{op: op, err: f.q.err}
	}
	rp, err := f.q.v.Validate(f.q.target, f.path, op, value)
	if err != nil {
		return &Leaf{op: op, err: err}
	}
	val, err := f.q.v.mapValue(rp, op, value)
	return &Leaf{path: rp, op: op, value: val, not: f.not, err: err}
}
