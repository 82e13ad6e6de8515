package mapping

import (
	"reflect"
	"unicode"
)

// toSnakeCase converts CamelCase to snake_case. Acronyms stay together:
// "HTTPServer" becomes "http_server".
func toSnakeCase(s string) string {
	var result []rune
	runes := []rune(s)

	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			// Add underscore if:
			// 1. Previous char was lowercase or a digit (camelCase boundary)
			// 2. Next char is lowercase (acronym end: "HTTPServer" -> "http_server")
			if unicode.IsLower(prev) || unicode.IsDigit(prev) {
				result = append(result, '_')
			} else if i+1 < len(runes) && unicode.IsLower(runes[i+1]) {
				result = append(result, '_')
			}
		}
		result = append(result, unicode.ToLower(r))
	}

	return string(result)
}

// toLowerCamel lowercases the leading word of a Go identifier:
// "Name" -> "name", "ID" -> "id", "URLPath" -> "urlPath".
func toLowerCamel(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}

	upper := 0
	for upper < len(runes) && unicode.IsUpper(runes[upper]) {
		upper++
	}
	switch {
	case upper == 0:
		return s
	case upper == len(runes):
		// all caps
	case upper > 1:
		// keep the last capital, it starts the next word
		upper--
	}
	for i := 0; i < upper; i++ {
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}

// TypeName returns a readable name for t, dereferencing pointers
func TypeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}
