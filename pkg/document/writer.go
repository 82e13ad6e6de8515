package document

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type contextKind int

const (
	contextTop contextKind = iota
	contextDocument
	contextArray
	contextName
)

func (k contextKind) String() string {
	switch k {
	case contextTop:
		return "top-level"
	case contextDocument:
		return "document"
	case contextArray:
		return "array"
	case contextName:
		return "named value"
	default:
		return "unknown"
	}
}

// writerContext is one accumulator on the writer stack
type writerContext struct {
	kind contextKind
	doc  *Document
	arr  *Array
	name string
}

// Writer is a stack machine that accumulates structure until a root value is produced.
// Starting a document, an array or a named value pushes a new accumulator; writing a
// scalar applies it to the accumulator on top; ending a document or array pops it and
// applies the finished container to its parent. The root is available once the outermost
// context has been popped.
//
// A Writer is owned by a single goroutine.
type Writer struct {
	stack []writerContext
	root  Value
	done  bool
}

// NewWriter creates an empty writer
func NewWriter() *Writer {
	return &Writer{stack: []writerContext{{kind: contextTop}}}
}

// Depth returns the number of open contexts above the top level
func (w *Writer) Depth() int {
	return len(w.stack) - 1
}

func (w *Writer) top() *writerContext {
	return &w.stack[len(w.stack)-1]
}

// checkValueSlot returns an error unless the current context accepts a value
func (w *Writer) checkValueSlot(op string) error {
	switch top := w.top(); top.kind {
	case contextName, contextArray:
		return nil
	case contextTop:
		if w.done {
			return &StateError{Op: op, Message: "root value already written"}
		}
		return nil
	default:
		return &StateError{Op: op, Message: "value written inside a document without a name"}
	}
}

// apply hands a finished value to the context on top of the stack
func (w *Writer) apply(op string, v Value) error {
	if err := w.checkValueSlot(op); err != nil {
		return err
	}

	top := w.top()
	switch top.kind {
	case contextName:
		name := top.name
		w.stack = w.stack[:len(w.stack)-1]
		w.top().doc.Append(name, v)
	case contextArray:
		top.arr.Append(v)
	case contextTop:
		w.root = v
		w.done = true
	}
	return nil
}

// WriteStartDocument opens a document in the current value slot
func (w *Writer) WriteStartDocument() error {
	if err := w.checkValueSlot("WriteStartDocument"); err != nil {
		return err
	}
	w.stack = append(w.stack, writerContext{kind: contextDocument, doc: NewDocument()})
	return nil
}

// WriteEndDocument closes the document on top of the stack
func (w *Writer) WriteEndDocument() error {
	top := w.top()
	if top.kind != contextDocument {
		return &StateError{Op: "WriteEndDocument", Message: "current context is " + top.kind.String()}
	}
	d := top.doc
	w.stack = w.stack[:len(w.stack)-1]
	return w.apply("WriteEndDocument", Doc(d))
}

// WriteStartArray opens an array in the current value slot
func (w *Writer) WriteStartArray() error {
	if err := w.checkValueSlot("WriteStartArray"); err != nil {
		return err
	}
	w.stack = append(w.stack, writerContext{kind: contextArray, arr: NewArray()})
	return nil
}

// WriteEndArray closes the array on top of the stack
func (w *Writer) WriteEndArray() error {
	top := w.top()
	if top.kind != contextArray {
		return &StateError{Op: "WriteEndArray", Message: "current context is " + top.kind.String()}
	}
	a := top.arr
	w.stack = w.stack[:len(w.stack)-1]
	return w.apply("WriteEndArray", Arr(a))
}

// WriteName opens a named value slot inside the current document
func (w *Writer) WriteName(name string) error {
	top := w.top()
	if top.kind != contextDocument {
		return &StateError{Op: "WriteName", Message: "names are only valid inside a document, current context is " + top.kind.String()}
	}
	w.stack = append(w.stack, writerContext{kind: contextName, name: name})
	return nil
}

// WriteValue applies a pre-built value, including whole documents and arrays
func (w *Writer) WriteValue(v Value) error {
	if v.IsZero() {
		return &StateError{Op: "WriteValue", Message: "invalid zero value"}
	}
	return w.apply("WriteValue", v)
}

// WriteDouble writes a double
func (w *Writer) WriteDouble(f float64) error { return w.apply("WriteDouble", Double(f)) }

// WriteString writes a UTF-8 string
func (w *Writer) WriteString(s string) error { return w.apply("WriteString", String(s)) }

// WriteBinary writes a binary value with the given subtype
func (w *Writer) WriteBinary(subtype byte, data []byte) error {
	return w.apply("WriteBinary", Binary(subtype, data))
}

// WriteObjectID writes an object-id
func (w *Writer) WriteObjectID(oid primitive.ObjectID) error {
	return w.apply("WriteObjectID", ObjectID(oid))
}

// WriteBoolean writes a boolean
func (w *Writer) WriteBoolean(b bool) error { return w.apply("WriteBoolean", Boolean(b)) }

// WriteDateTime writes a datetime with millisecond precision
func (w *Writer) WriteDateTime(t time.Time) error { return w.apply("WriteDateTime", DateTime(t)) }

// WriteNull writes null
func (w *Writer) WriteNull() error { return w.apply("WriteNull", Null()) }

// WriteRegex writes a regular expression
func (w *Writer) WriteRegex(pattern, options string) error {
	return w.apply("WriteRegex", Regex(pattern, options))
}

// WriteInt32 writes a 32-bit integer
func (w *Writer) WriteInt32(i int32) error { return w.apply("WriteInt32", Int32(i)) }

// WriteTimestamp writes an internal timestamp
func (w *Writer) WriteTimestamp(t, i uint32) error { return w.apply("WriteTimestamp", Timestamp(t, i)) }

// WriteInt64 writes a 64-bit integer
func (w *Writer) WriteInt64(i int64) error { return w.apply("WriteInt64", Int64(i)) }

// WriteDecimal128 writes a high-precision decimal
func (w *Writer) WriteDecimal128(d primitive.Decimal128) error {
	return w.apply("WriteDecimal128", Decimal(d))
}

// WriteMinKey writes the min-key sentinel
func (w *Writer) WriteMinKey() error { return w.apply("WriteMinKey", MinKey()) }

// WriteMaxKey writes the max-key sentinel
func (w *Writer) WriteMaxKey() error { return w.apply("WriteMaxKey", MaxKey()) }

// Root returns the root value once the outermost context has been closed
func (w *Writer) Root() (Value, error) {
	if !w.done || len(w.stack) != 1 {
		return Value{}, ErrIncomplete
	}
	return w.root, nil
}

// Document returns the root as a document
func (w *Writer) Document() (*Document, error) {
	root, err := w.Root()
	if err != nil {
		return nil, err
	}
	d, ok := root.DocumentOK()
	if !ok {
		return nil, &TypeMismatchError{Expected: TagDocument, Actual: root.Tag()}
	}
	return d, nil
}
