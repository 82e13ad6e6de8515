package document

import (
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type readerState int

const (
	// stateType means ReadNextType must be called next
	stateType readerState = iota
	// stateValue means a positional value is pending
	stateValue
	// stateEnd means the current container is exhausted and must be closed
	stateEnd
	// stateDone means the root value has been consumed
	stateDone
)

// readerContext mirrors one level of document/array nesting
type readerContext struct {
	kind contextKind
	doc  *Document
	arr  *Array
	pos  int
}

// Reader is a cursor over a materialized document tree. ReadNextType positions the cursor
// on the next value of the current context and must precede every typed read; a typed read
// of the wrong tag fails with a TypeMismatchError. Mark and Reset snapshot and restore the
// cursor so callers can look ahead and retry with a different strategy.
//
// A Reader is owned by a single goroutine; independent readers may share a tree.
type Reader struct {
	stack   []readerContext
	state   readerState
	cur     Value
	curName string
	started bool
}

// NewReader creates a reader positioned before the given root value
func NewReader(root Value) *Reader {
	return &Reader{
		stack: []readerContext{{kind: contextTop}},
		state: stateType,
		cur:   root,
	}
}

// NewDocumentReader creates a reader positioned before a root document
func NewDocumentReader(d *Document) *Reader {
	return NewReader(Doc(d))
}

func (r *Reader) top() *readerContext {
	return &r.stack[len(r.stack)-1]
}

// ReadNextType advances to the next value in the current context and returns its tag.
// At the end of a document or array it returns TagEnd. If a value is already pending its
// tag is returned again without advancing.
func (r *Reader) ReadNextType() (Tag, error) {
	switch r.state {
	case stateValue:
		return r.cur.Tag(), nil
	case stateEnd, stateDone:
		return TagEnd, nil
	}

	top := r.top()
	switch top.kind {
	case contextTop:
		if r.started {
			r.state = stateDone
			return TagEnd, nil
		}
		r.started = true
		r.curName = ""
	case contextDocument:
		if top.pos >= top.doc.Len() {
			r.state = stateEnd
			return TagEnd, nil
		}
		el := top.doc.elems[top.pos]
		top.pos++
		r.cur, r.curName = el.Value, el.Key
	case contextArray:
		if top.pos >= top.arr.Len() {
			r.state = stateEnd
			return TagEnd, nil
		}
		r.cur, r.curName = top.arr.vals[top.pos], strconv.Itoa(top.pos)
		top.pos++
	}
	r.state = stateValue
	return r.cur.Tag(), nil
}

// CurrentType returns the tag of the pending value, or TagEnd
func (r *Reader) CurrentType() Tag {
	if r.state != stateValue {
		return TagEnd
	}
	return r.cur.Tag()
}

// CurrentName returns the key of the pending value. Array elements report their index.
func (r *Reader) CurrentName() string {
	return r.curName
}

// ReadName returns the key of the pending value inside a document
func (r *Reader) ReadName() (string, error) {
	if r.state != stateValue || r.top().kind != contextDocument {
		return "", &StateError{Op: "ReadName", Message: "no named value is pending"}
	}
	return r.curName, nil
}

// Depth returns the number of open containers
func (r *Reader) Depth() int {
	return len(r.stack) - 1
}

// consumed moves the cursor past the pending value
func (r *Reader) consumed() {
	if r.top().kind == contextTop {
		r.state = stateDone
		return
	}
	r.state = stateType
}

func (r *Reader) expect(op string, tag Tag) (Value, error) {
	if r.state != stateValue {
		return Value{}, &StateError{Op: op, Message: "ReadNextType must be called before reading a value"}
	}
	if r.cur.Tag() != tag {
		return Value{}, &TypeMismatchError{Expected: tag, Actual: r.cur.Tag(), Name: r.curName}
	}
	v := r.cur
	r.consumed()
	return v, nil
}

// ReadStartDocument enters the pending document
func (r *Reader) ReadStartDocument() error {
	if r.state != stateValue {
		return &StateError{Op: "ReadStartDocument", Message: "ReadNextType must be called before reading a value"}
	}
	if r.cur.Tag() != TagDocument {
		return &TypeMismatchError{Expected: TagDocument, Actual: r.cur.Tag(), Name: r.curName}
	}
	d, _ := r.cur.DocumentOK()
	r.stack = append(r.stack, readerContext{kind: contextDocument, doc: d})
	r.state = stateType
	return nil
}

// ReadEndDocument leaves the current document. Unread elements are skipped.
func (r *Reader) ReadEndDocument() error {
	return r.leave("ReadEndDocument", contextDocument)
}

// ReadStartArray enters the pending array
func (r *Reader) ReadStartArray() error {
	if r.state != stateValue {
		return &StateError{Op: "ReadStartArray", Message: "ReadNextType must be called before reading a value"}
	}
	if r.cur.Tag() != TagArray {
		return &TypeMismatchError{Expected: TagArray, Actual: r.cur.Tag(), Name: r.curName}
	}
	a, _ := r.cur.ArrayOK()
	r.stack = append(r.stack, readerContext{kind: contextArray, arr: a})
	r.state = stateType
	return nil
}

// ReadEndArray leaves the current array. Unread values are skipped.
func (r *Reader) ReadEndArray() error {
	return r.leave("ReadEndArray", contextArray)
}

func (r *Reader) leave(op string, kind contextKind) error {
	if r.top().kind != kind {
		return &StateError{Op: op, Message: "current context is " + r.top().kind.String()}
	}
	if r.state == stateValue {
		return &StateError{Op: op, Message: "a value is pending; read or skip it first"}
	}
	r.stack = r.stack[:len(r.stack)-1]
	r.consumed()
	return nil
}

// ReadValue consumes the pending value whatever its tag, including whole containers
func (r *Reader) ReadValue() (Value, error) {
	if r.state != stateValue {
		return Value{}, &StateError{Op: "ReadValue", Message: "ReadNextType must be called before reading a value"}
	}
	v := r.cur
	r.consumed()
	return v, nil
}

// SkipValue discards the pending value
func (r *Reader) SkipValue() error {
	_, err := r.ReadValue()
	return err
}

// ReadDouble reads a double
func (r *Reader) ReadDouble() (float64, error) {
	v, err := r.expect("ReadDouble", TagDouble)
	if err != nil {
		return 0, err
	}
	f, _ := v.DoubleOK()
	return f, nil
}

// ReadString reads a string
func (r *Reader) ReadString() (string, error) {
	v, err := r.expect("ReadString", TagString)
	if err != nil {
		return "", err
	}
	s, _ := v.StringOK()
	return s, nil
}

// ReadBinary reads a binary value
func (r *Reader) ReadBinary() (subtype byte, data []byte, err error) {
	v, err := r.expect("ReadBinary", TagBinary)
	if err != nil {
		return 0, nil, err
	}
	b, _ := v.BinaryOK()
	return b.Subtype, b.Data, nil
}

// ReadObjectID reads an object-id
func (r *Reader) ReadObjectID() (primitive.ObjectID, error) {
	v, err := r.expect("ReadObjectID", TagObjectID)
	if err != nil {
		return primitive.NilObjectID, err
	}
	oid, _ := v.ObjectIDOK()
	return oid, nil
}

// ReadBoolean reads a boolean
func (r *Reader) ReadBoolean() (bool, error) {
	v, err := r.expect("ReadBoolean", TagBoolean)
	if err != nil {
		return false, err
	}
	b, _ := v.BooleanOK()
	return b, nil
}

// ReadDateTime reads a datetime as a UTC time
func (r *Reader) ReadDateTime() (time.Time, error) {
	v, err := r.expect("ReadDateTime", TagDateTime)
	if err != nil {
		return time.Time{}, err
	}
	dt, _ := v.DateTimeOK()
	return dt.Time().UTC(), nil
}

// ReadNull reads null
func (r *Reader) ReadNull() error {
	_, err := r.expect("ReadNull", TagNull)
	return err
}

// ReadRegex reads a regular expression
func (r *Reader) ReadRegex() (pattern, options string, err error) {
	v, err := r.expect("ReadRegex", TagRegex)
	if err != nil {
		return "", "", err
	}
	re, _ := v.RegexOK()
	return re.Pattern, re.Options, nil
}

// ReadInt32 reads a 32-bit integer
func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.expect("ReadInt32", TagInt32)
	if err != nil {
		return 0, err
	}
	i, _ := v.Int32OK()
	return i, nil
}

// ReadTimestamp reads an internal timestamp
func (r *Reader) ReadTimestamp() (t, i uint32, err error) {
	v, err := r.expect("ReadTimestamp", TagTimestamp)
	if err != nil {
		return 0, 0, err
	}
	ts, _ := v.TimestampOK()
	return ts.T, ts.I, nil
}

// ReadInt64 reads a 64-bit integer
func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.expect("ReadInt64", TagInt64)
	if err != nil {
		return 0, err
	}
	i, _ := v.Int64OK()
	return i, nil
}

// ReadDecimal128 reads a high-precision decimal
func (r *Reader) ReadDecimal128() (primitive.Decimal128, error) {
	v, err := r.expect("ReadDecimal128", TagDecimal128)
	if err != nil {
		return primitive.Decimal128{}, err
	}
	d, _ := v.DecimalOK()
	return d, nil
}

// ReadMinKey reads the min-key sentinel
func (r *Reader) ReadMinKey() error {
	_, err := r.expect("ReadMinKey", TagMinKey)
	return err
}

// ReadMaxKey reads the max-key sentinel
func (r *Reader) ReadMaxKey() error {
	_, err := r.expect("ReadMaxKey", TagMaxKey)
	return err
}

// Bookmark is a snapshot of a reader's cursor
type Bookmark struct {
	owner   *Reader
	stack   []readerContext
	state   readerState
	cur     Value
	curName string
	started bool
}

// Mark snapshots the iteration position of every open context and the pending value
func (r *Reader) Mark() *Bookmark {
	stack := make([]readerContext, len(r.stack))
	copy(stack, r.stack)
	return &Bookmark{
		owner:   r,
		stack:   stack,
		state:   r.state,
		cur:     r.cur,
		curName: r.curName,
		started: r.started,
	}
}

// Reset restores a snapshot taken by Mark on this reader. A bookmark may be reset more than once.
func (r *Reader) Reset(b *Bookmark) error {
	if b == nil || b.owner != r {
		return ErrForeignBookmark
	}
	r.stack = make([]readerContext, len(b.stack))
	copy(r.stack, b.stack)
	r.state = b.state
	r.cur = b.cur
	r.curName = b.curName
	r.started = b.started
	return nil
}
