package value

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// IsEmpty reports whether v is nil, an empty or blank string, or an empty
// collection.
func IsEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// ToList converts slices of any element type to []any. The second result is
// false when v is not a slice or array.
func ToList(v any) ([]any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case []any:
		return t, true
	case []map[string]any:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = m
		}
		return out, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// ToString renders v for string comparison and message formatting.
func ToString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format(DateLayout)
		}
		return t.Format(DateTimeLayout)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	}
	return fmt.Sprintf("%v", v)
}

// ToBool coerces booleans, numbers and the usual truthy strings.
func ToBool(v any) (bool, error) {
	switch t := v.(type) {
	case nil:
		return false, nil
	case bool:
		return t, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "t", "yes", "y", "1":
			return true, nil
		case "false", "f", "no", "n", "0", "":
			return false, nil
		}
		return false, fmt.Errorf("value: cannot cast %q to boolean", t)
	}
	if n, ok := ToNumber(v); ok {
		return !n.IsZero(), nil
	}
	return false, fmt.Errorf("value: cannot cast %T to boolean", v)
}

// Lookup resolves a dotted path against nested maps and slices. Numeric
// segments index into slices. The second result is false when any segment
// is missing.
func Lookup(root any, path string) (any, bool) {
	if path == "" {
		return root, true
	}
	current := root
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = next
		default:
			list, ok := ToList(node)
			if !ok {
				return nil, false
			}
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(list) {
				return nil, false
			}
			current = list[index]
		}
	}
	return current, true
}

// DeepCopy copies nested maps and slices so the copy can be mutated without
// touching the source. Scalars are returned as is.
func DeepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = DeepCopy(item)
		}
		return out
	}
	return v
}

// CopyMap deep copies a row map; nil stays nil.
func CopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, item := range m {
		out[k] = DeepCopy(item)
	}
	return out
}
