// Package fields implements the field-oriented text codec shared by
// performance configs and perf database payloads. Values are encoded as
// comma-separated base-10 integers; field order is the wire contract,
// field names are carried for diagnostics only.
package fields

import (
	"strconv"
	"strings"
)

// Visitable is implemented by any struct whose fields participate in the
// codec. Visit must call f once per field, in a fixed order that never
// changes between encode and decode.
type Visitable interface {
	Visit(f func(val *int, name string))
}

const sep = ","

// EncodeInt formats a single field value.
func EncodeInt(v int) string { return strconv.Itoa(v) }

// DecodeInt parses a single field value.
func DecodeInt(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	return n, err == nil
}

// Encode serializes v as comma-joined fields. The output contains none of
// the record delimiters ',' ';' '=' ':' inside a field.
func Encode(v Visitable) string {
	var parts []string
	v.Visit(func(val *int, _ string) {
		parts = append(parts, EncodeInt(*val))
	})
	return strings.Join(parts, sep)
}

// Decode parses s into v. It is all-or-nothing: if any field fails to
// parse, or s has too few or too many fields, v is left untouched and
// Decode reports false.
func Decode(s string, v Visitable) bool {
	parts := strings.Split(s, sep)

	var vals []*int
	v.Visit(func(val *int, _ string) {
		vals = append(vals, val)
	})

	if len(parts) != len(vals) {
		return false
	}

	parsed := make([]int, len(parts))
	for i, part := range parts {
		n, ok := DecodeInt(part)
		if !ok {
			return false
		}
		parsed[i] = n
	}

	for i, val := range vals {
		*val = parsed[i]
	}
	return true
}

// Names returns the field names in visit order.
func Names(v Visitable) []string {
	var names []string
	v.Visit(func(_ *int, name string) {
		names = append(names, name)
	})
	return names
}
