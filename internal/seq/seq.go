// Package seq converts dynamically typed values into sequences.
package seq

import "reflect"

// ToSlice returns v as a []interface{} when v is a slice or array of any
// element type. The second result is false for every other kind, including nil.
func ToSlice(v interface{}) ([]interface{}, bool) {
	if v == nil {
		return nil, false
	}
	if s, ok := v.([]interface{}); ok {
		return s, true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
	default:
		return nil, false
	}

	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
