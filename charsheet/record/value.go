package record

import (
	"math"
	"reflect"
	"strings"

	"github.com/spf13/cast"
)

// Same reports whether a and b are the same value: equal scalars, or the very
// same map or slice. Values that cannot be compared are never the same, and
// Same never panics.
func Same(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	}
	if va.Comparable() && vb.Comparable() {
		return a == b
	}
	return false
}

// Clone returns a deep copy of the maps and slices in v. Scalars are returned
// as they are.
func Clone(v any) any {
	switch node := v.(type) {
	case Map:
		return CloneMap(node)
	case []any:
		out := make([]any, len(node))
		for i, item := range node {
			out[i] = Clone(item)
		}
		return out
	case []Map:
		out := make([]any, len(node))
		for i, item := range node {
			out[i] = CloneMap(item)
		}
		return out
	default:
		return v
	}
}

// CloneMap deep-copies m. A nil map clones to an empty one.
func CloneMap(m Map) Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = Clone(v)
	}
	return out
}

// Number coerces v to a float64. Absent, blank and unparsable values are 0.
func Number(v any) float64 {
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Text coerces v to a string. Absent values are "".
func Text(v any) string {
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return s
}

// List returns v as a slice of maps, skipping elements that are not maps.
// Absent or non-list values yield an empty slice.
func List(v any) []Map {
	switch node := v.(type) {
	case []any:
		out := make([]Map, 0, len(node))
		for _, item := range node {
			if m, ok := item.(Map); ok {
				out = append(out, m)
			}
		}
		return out
	case []Map:
		return node
	default:
		return []Map{}
	}
}

// Normalize converts decoded or hand-built values to the record's JSON shape:
// every Go number becomes float64, maps with string keys become Map and
// slices become []any. Other values pass through unchanged.
func Normalize(v any) any {
	switch node := v.(type) {
	case Map:
		out := make(Map, len(node))
		for k, item := range node {
			out[k] = Normalize(item)
		}
		return out
	case map[any]any:
		out := make(Map, len(node))
		for k, item := range node {
			out[Text(k)] = Normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, item := range node {
			out[i] = Normalize(item)
		}
		return out
	case []Map:
		out := make([]any, len(node))
		for i, item := range node {
			out[i] = Normalize(item)
		}
		return out
	default:
		return Scalar(v)
	}
}

// Scalar converts any Go number to float64 and returns other values
// unchanged. Maps and slices keep their identity.
func Scalar(v any) any {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32:
		return cast.ToFloat64(v)
	default:
		return v
	}
}
