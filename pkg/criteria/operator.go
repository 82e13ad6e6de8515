package criteria

import "fmt"

// Operator is a query comparison operator
type Operator int

const (
	Equal Operator = iota
	NotEqual
	GreaterThan
	GreaterThanOrEqual
	LessThan
	LessThanOrEqual
	In
	NotIn
	All
	Exists
	Size
	Regex
	Mod
	ElemMatch
	Type
)

var operatorKeys = [...]string{
	Equal:              "$eq",
	NotEqual:           "$ne",
	GreaterThan:        "$gt",
	GreaterThanOrEqual: "$gte",
	LessThan:           "$lt",
	LessThanOrEqual:    "$lte",
	In:                 "$in",
	NotIn:              "$nin",
	All:                "$all",
	Exists:             "$exists",
	Size:               "$size",
	Regex:              "$regex",
	Mod:                "$mod",
	ElemMatch:          "$elemMatch",
	Type:               "$type",
}

// Key returns the operator's key in a rendered query document
func (o Operator) Key() string {
	if o < 0 || int(o) >= len(operatorKeys) {
		return fmt.Sprintf("$unknown(%d)", int(o))
	}
	return operatorKeys[o]
}

// String returns the string representation of the operator
func (o Operator) String() string {
	return o.Key()[1:]
}

// ParseOperator returns the operator named s, with or without the leading '$'
func ParseOperator(s string) (Operator, error) {
	if len(s) > 0 && s[0] != '$' {
		s = "$" + s
	}
	for i, k := range operatorKeys {
		if k == s {
			return Operator(i), nil
		}
	}
	return 0, fmt.Errorf("unknown operator %q", s)
}

// takesList reports whether the operator compares against a sequence of values
func (o Operator) takesList() bool {
	return o == In || o == NotIn || o == All
}
