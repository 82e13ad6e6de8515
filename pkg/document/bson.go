package document

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// Marshal encodes a document into BSON bytes
func Marshal(d *Document) ([]byte, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil document", ErrUnsupportedValue)
	}
	data, err := bson.Marshal(toD(d))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	return data, nil
}

// Unmarshal decodes BSON bytes into a document
func Unmarshal(data []byte) (*Document, error) {
	if err := bson.Raw(data).Validate(); err != nil {
		return nil, fmt.Errorf("invalid BSON: %w", err)
	}

	var raw bson.D
	if err := bson.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return fromD(raw)
}

// MarshalExtJSON renders a document as canonical or relaxed Extended JSON
func MarshalExtJSON(d *Document, canonical bool) ([]byte, error) {
	data, err := bson.MarshalExtJSON(toD(d), canonical, false)
	if err != nil {
		return nil, fmt.Errorf("failed to render extended JSON: %w", err)
	}
	return data, nil
}

// UnmarshalExtJSON parses canonical or relaxed Extended JSON into a document
func UnmarshalExtJSON(data []byte) (*Document, error) {
	var raw bson.D
	if err := bson.UnmarshalExtJSON(data, false, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse extended JSON: %w", err)
	}
	return fromD(raw)
}

func fromD(raw bson.D) (*Document, error) {
	v, err := From(raw)
	if err != nil {
		return nil, err
	}
	d, _ := v.DocumentOK()
	return d, nil
}

// marshalValueExtJSON renders any value by wrapping it in a single-element document
func marshalValueExtJSON(v Value, canonical bool) ([]byte, error) {
	if d, ok := v.DocumentOK(); ok {
		return MarshalExtJSON(d, canonical)
	}
	data, err := bson.MarshalExtJSON(bson.D{{Key: "v", Value: toNative(v)}}, canonical, false)
	if err != nil {
		return nil, err
	}
	// strip the {"v": ... } wrapper
	const prefix = `{"v":`
	if len(data) > len(prefix)+1 {
		return data[len(prefix) : len(data)-1], nil
	}
	return data, nil
}
