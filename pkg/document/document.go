package document

// Element is a named value inside a Document
type Element struct {
	Key   string
	Value Value
}

// E builds an Element
func E(key string, v Value) Element {
	return Element{Key: key, Value: v}
}

// Document is an ordered, string-keyed list of elements.
// Documents are not safe for concurrent mutation.
type Document struct {
	elems []Element
}

// NewDocument creates a document from the given elements, in order
func NewDocument(elems ...Element) *Document {
	d := &Document{elems: make([]Element, 0, len(elems))}
	d.elems = append(d.elems, elems...)
	return d
}

// Append adds an element at the end of the document without checking for duplicates
func (d *Document) Append(key string, v Value) *Document {
	d.elems = append(d.elems, Element{Key: key, Value: v})
	return d
}

// Set replaces the first element with the given key, or appends a new one
func (d *Document) Set(key string, v Value) *Document {
	for i := range d.elems {
		if d.elems[i].Key == key {
			d.elems[i].Value = v
			return d
		}
	}
	return d.Append(key, v)
}

// Lookup returns the first value stored under key
func (d *Document) Lookup(key string) (Value, bool) {
	if d == nil {
		return Value{}, false
	}
	for _, el := range d.elems {
		if el.Key == key {
			return el.Value, true
		}
	}
	return Value{}, false
}

// LookupPath follows a dotted path through nested documents and arrays
func (d *Document) LookupPath(keys ...string) (Value, bool) {
	if len(keys) == 0 {
		return Value{}, false
	}
	v, ok := d.Lookup(keys[0])
	for _, key := range keys[1:] {
		if !ok {
			return Value{}, false
		}
		switch v.Tag() {
		case TagDocument:
			sub, _ := v.DocumentOK()
			v, ok = sub.Lookup(key)
		case TagArray:
			arr, _ := v.ArrayOK()
			v, ok = arr.lookupIndex(key)
		default:
			return Value{}, false
		}
	}
	return v, ok
}

// Delete removes every element stored under key and reports whether any was removed
func (d *Document) Delete(key string) bool {
	kept := d.elems[:0]
	removed := false
	for _, el := range d.elems {
		if el.Key == key {
			removed = true
			continue
		}
		kept = append(kept, el)
	}
	d.elems = kept
	return removed
}

// Len returns the number of elements
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.elems)
}

// Index returns the i-th element
func (d *Document) Index(i int) Element {
	return d.elems[i]
}

// Elements returns a copy of the element list
func (d *Document) Elements() []Element {
	if d == nil {
		return nil
	}
	out := make([]Element, len(d.elems))
	copy(out, d.elems)
	return out
}

// Keys returns the element keys in order
func (d *Document) Keys() []string {
	if d == nil {
		return nil
	}
	keys := make([]string, len(d.elems))
	for i, el := range d.elems {
		keys[i] = el.Key
	}
	return keys
}

// Clone returns a deep copy of the document
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{elems: make([]Element, len(d.elems))}
	for i, el := range d.elems {
		out.elems[i] = Element{Key: el.Key, Value: cloneValue(el.Value)}
	}
	return out
}

// Depth returns the nesting depth of the document: 1 for a document holding only scalars,
// plus one for each level of nested documents or arrays
func (d *Document) Depth() int {
	if d == nil {
		return 0
	}
	deepest := 0
	for _, el := range d.elems {
		if n := valueDepth(el.Value); n > deepest {
			deepest = n
		}
	}
	return deepest + 1
}

func valueDepth(v Value) int {
	switch v.tag {
	case TagDocument:
		d, _ := v.DocumentOK()
		return d.Depth()
	case TagArray:
		a, _ := v.ArrayOK()
		deepest := 0
		for _, el := range a.vals {
			if n := valueDepth(el); n > deepest {
				deepest = n
			}
		}
		return deepest + 1
	}
	return 0
}

// String renders the document as relaxed Extended JSON
func (d *Document) String() string {
	return Doc(d).String()
}

// Array is an ordered list of values
type Array struct {
	vals []Value
}

// NewArray creates an array of the given values
func NewArray(vals ...Value) *Array {
	a := &Array{vals: make([]Value, 0, len(vals))}
	a.vals = append(a.vals, vals...)
	return a
}

// Append adds a value to the array
func (a *Array) Append(v Value) *Array {
	a.vals = append(a.vals, v)
	return a
}

// Len returns the number of values
func (a *Array) Len() int {
	if a == nil {
		return 0
	}
	return len(a.vals)
}

// Index returns the i-th value
func (a *Array) Index(i int) Value {
	return a.vals[i]
}

// Values returns a copy of the values
func (a *Array) Values() []Value {
	if a == nil {
		return nil
	}
	out := make([]Value, len(a.vals))
	copy(out, a.vals)
	return out
}

func (a *Array) lookupIndex(key string) (Value, bool) {
	i := 0
	if key == "" {
		return Value{}, false
	}
	for _, c := range key {
		if c < '0' || c > '9' {
			return Value{}, false
		}
		i = i*10 + int(c-'0')
	}
	if i >= len(a.vals) {
		return Value{}, false
	}
	return a.vals[i], true
}

func cloneValue(v Value) Value {
	switch v.tag {
	case TagDocument:
		d, _ := v.DocumentOK()
		return Doc(d.Clone())
	case TagArray:
		a, _ := v.ArrayOK()
		out := &Array{vals: make([]Value, len(a.vals))}
		for i, el := range a.vals {
			out.vals[i] = cloneValue(el)
		}
		return Arr(out)
	case TagBinary:
		b, _ := v.BinaryOK()
		data := make([]byte, len(b.Data))
		copy(data, b.Data)
		return Binary(b.Subtype, data)
	default:
		return v
	}
}
