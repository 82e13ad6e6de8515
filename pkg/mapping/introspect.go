package mapping

import (
	"fmt"
	"reflect"
	"strings"
)

// DefaultTagName is the struct tag read by TagIntrospector
const DefaultTagName = "docmap"

// Markers are the structural markers a field may carry
type Markers struct {
	ID            bool
	Reference     bool
	DBRef         bool
	Embedded      bool
	OmitEmpty     bool
	IgnoreMissing bool
	Inline        bool
	Transient     bool
}

// FieldInfo is one declared field as reported by an Introspector
type FieldInfo struct {
	Name        string
	StorageName string
	Type        reflect.Type
	Index       []int
	Markers     Markers
}

// TypeInfo is the introspection result for one struct type
type TypeInfo struct {
	Type               reflect.Type
	Name               string
	Entity             bool
	Embedded           bool
	Collection         string
	Discriminator      string
	DiscriminatorKey   string
	AlwaysDiscriminate bool
	Fields             []FieldInfo
}

// Introspector enumerates the declared fields and markers of a type. It is the only
// place where language-level metadata such as struct tags is consulted.
type Introspector interface {
	Inspect(t reflect.Type) (*TypeInfo, error)
}

// TagIntrospector reads markers from struct tags.
//
// Field tags have the form `docmap:"name,opt,opt"` where the options are id, ref, dbref,
// embedded, omitempty, ignoremissing and inline. A tag of "-" marks the field transient.
// Type-level markers go on a blank field:
//
//	_ struct{} `docmap:"entity,collection=users,discriminator=user,discriminatorKey=kind,alwaysDiscriminate"`
//
// Anonymous struct fields without an explicit name are inlined.
type TagIntrospector struct {
	TagName string
}

// NewTagIntrospector creates an introspector reading the default tag
func NewTagIntrospector() *TagIntrospector {
	return &TagIntrospector{TagName: DefaultTagName}
}

func (ti *TagIntrospector) tagName() string {
	if ti == nil || ti.TagName == "" {
		return DefaultTagName
	}
	return ti.TagName
}

// Inspect implements Introspector
func (ti *TagIntrospector) Inspect(t reflect.Type) (*TypeInfo, error) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, &SchemaError{
			Type:    TypeName(t),
			Message: fmt.Sprintf("cannot map %s: only struct types are mappable", t.Kind()),
		}
	}

	info := &TypeInfo{Type: t, Name: TypeName(t)}
	if err := ti.collect(info, t, nil, map[reflect.Type]bool{t: true}); err != nil {
		return nil, err
	}
	return info, nil
}

func (ti *TagIntrospector) collect(info *TypeInfo, t reflect.Type, index []int, seen map[reflect.Type]bool) error {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag, hasTag := sf.Tag.Lookup(ti.tagName())

		if sf.Name == "_" {
			if hasTag && len(index) == 0 {
				if err := parseTypeTag(info, tag); err != nil {
					return err
				}
			}
			continue
		}

		name, opts := parseFieldTag(tag)
		if tag == "-" {
			info.Fields = append(info.Fields, FieldInfo{
				Name:    sf.Name,
				Type:    sf.Type,
				Index:   appendIndex(index, i),
				Markers: Markers{Transient: true},
			})
			continue
		}

		markers, err := parseMarkers(info.Name, sf.Name, opts)
		if err != nil {
			return err
		}

		if sf.Anonymous && sf.Type.Kind() == reflect.Struct && name == "" {
			markers.Inline = true
		}
		if markers.Inline {
			if sf.Type.Kind() != reflect.Struct {
				return &SchemaError{
					Type:    info.Name,
					Field:   sf.Name,
					Message: "inline requires a struct (non-pointer) field",
				}
			}
			if seen[sf.Type] {
				return &SchemaError{
					Type:    info.Name,
					Field:   sf.Name,
					Message: "inlined struct contains itself",
				}
			}
			seen[sf.Type] = true
			if err := ti.collect(info, sf.Type, appendIndex(index, i), seen); err != nil {
				return err
			}
			delete(seen, sf.Type)
			continue
		}

		if !sf.IsExported() {
			continue
		}

		info.Fields = append(info.Fields, FieldInfo{
			Name:        sf.Name,
			StorageName: name,
			Type:        sf.Type,
			Index:       appendIndex(index, i),
			Markers:     markers,
		})
	}
	return nil
}

func appendIndex(index []int, i int) []int {
	out := make([]int, len(index)+1)
	copy(out, index)
	out[len(index)] = i
	return out
}

func parseFieldTag(tag string) (string, []string) {
	if tag == "" {
		return "", nil
	}
	parts := strings.Split(tag, ",")
	return strings.TrimSpace(parts[0]), parts[1:]
}

func parseMarkers(typeName, fieldName string, opts []string) (Markers, error) {
	var m Markers
	for _, opt := range opts {
		switch strings.TrimSpace(opt) {
		case "":
		case "id":
			m.ID = true
		case "ref":
			m.Reference = true
		case "dbref":
			m.Reference = true
			m.DBRef = true
		case "embedded":
			m.Embedded = true
		case "omitempty":
			m.OmitEmpty = true
		case "ignoremissing":
			m.IgnoreMissing = true
		case "inline":
			m.Inline = true
		default:
			return m, &SchemaError{
				Type:    typeName,
				Field:   fieldName,
				Message: fmt.Sprintf("unknown tag option %q", opt),
				Hint:    "valid options are id, ref, dbref, embedded, omitempty, ignoremissing, inline",
			}
		}
	}
	return m, nil
}

func parseTypeTag(info *TypeInfo, tag string) error {
	for _, opt := range strings.Split(tag, ",") {
		opt = strings.TrimSpace(opt)
		key, value, hasValue := strings.Cut(opt, "=")
		switch key {
		case "":
		case "entity":
			info.Entity = true
		case "embedded":
			info.Embedded = true
		case "alwaysDiscriminate":
			info.AlwaysDiscriminate = true
		case "collection", "discriminator", "discriminatorKey":
			if !hasValue || value == "" {
				return &SchemaError{
					Type:    info.Name,
					Message: fmt.Sprintf("type option %q requires a value", key),
				}
			}
			switch key {
			case "collection":
				info.Collection = value
			case "discriminator":
				info.Discriminator = value
			default:
				info.DiscriminatorKey = value
			}
		default:
			return &SchemaError{
				Type:    info.Name,
				Message: fmt.Sprintf("unknown type option %q", opt),
				Hint:    "valid options are entity, embedded, collection=, discriminator=, discriminatorKey=, alwaysDiscriminate",
			}
		}
	}
	return nil
}
