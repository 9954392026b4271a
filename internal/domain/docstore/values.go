// internal/domain/docstore/values.go

package docstore

import (
	"time"
)

// Transform is a field value computed by the store at write time
type Transform interface {
	apply(current interface{}, now time.Time) interface{}
}

type arrayUnion []interface{}

type arrayRemove []interface{}

type serverTimestamp struct{}

// ArrayUnion adds each value to an array field unless already present
func ArrayUnion(values ...interface{}) Transform {
	return arrayUnion(normalizeSlice(values))
}

// ArrayRemove removes every occurrence of each value from an array field
func ArrayRemove(values ...interface{}) Transform {
	return arrayRemove(normalizeSlice(values))
}

// ServerTimestamp is replaced with the store's commit time
var ServerTimestamp Transform = serverTimestamp{}

func (u arrayUnion) apply(current interface{}, _ time.Time) interface{} {
	out := copySlice(current)
	for _, v := range u {
		if !containsValue(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func (r arrayRemove) apply(current interface{}, _ time.Time) interface{} {
	in := copySlice(current)
	out := in[:0]
	for _, v := range in {
		if !containsValue([]interface{}(r), v) {
			out = append(out, v)
		}
	}
	return out
}

func (serverTimestamp) apply(_ interface{}, now time.Time) interface{} {
	return now.UTC()
}

// ApplyUpdates merges fields into a copy of data, resolving transforms
// against now. data may be nil, which is how Set and Add materialize input.
func ApplyUpdates(data, fields map[string]interface{}, now time.Time) map[string]interface{} {
	out := make(map[string]interface{}, len(data)+len(fields))
	for k, v := range data {
		out[k] = v
	}
	for k, v := range fields {
		if t, ok := v.(Transform); ok {
			out[k] = t.apply(out[k], now)
			continue
		}
		out[k] = Normalize(v)
	}
	return out
}

// Normalize converts Go values into the store's canonical value space:
// numbers become float64, typed slices become []interface{}, times are UTC.
func Normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	case time.Time:
		return t.UTC()
	case []string:
		out := make([]interface{}, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []interface{}:
		return normalizeSlice(t)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = Normalize(e)
		}
		return out
	default:
		return v
	}
}

func normalizeSlice(values []interface{}) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = Normalize(v)
	}
	return out
}

func copySlice(v interface{}) []interface{} {
	switch t := v.(type) {
	case []interface{}:
		out := make([]interface{}, len(t))
		copy(out, t)
		return out
	case []string:
		return Normalize(t).([]interface{})
	default:
		return []interface{}{}
	}
}

func containsValue(values []interface{}, v interface{}) bool {
	for _, e := range values {
		if Equal(e, v) {
			return true
		}
	}
	return false
}

// Equal reports whether two normalized values are equal
func Equal(a, b interface{}) bool {
	a, b = Normalize(a), Normalize(b)
	switch x := a.(type) {
	case nil:
		return b == nil
	case float64:
		y, ok := b.(float64)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	case []interface{}:
		y, ok := b.([]interface{})
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case map[string]interface{}:
		y, ok := b.(map[string]interface{})
		if !ok || len(x) != len(y) {
			return false
		}
		for k, v := range x {
			if !Equal(v, y[k]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Compare orders two values of the same kind. ok is false when the values
// are not mutually comparable.
func Compare(a, b interface{}) (cmp int, ok bool) {
	a, b = Normalize(a), Normalize(b)
	switch x := a.(type) {
	case float64:
		y, isNum := b.(float64)
		if !isNum {
			return 0, false
		}
		return compareOrdered(x, y), true
	case string:
		y, isStr := b.(string)
		if !isStr {
			return 0, false
		}
		return compareOrdered(x, y), true
	case time.Time:
		y, isTime := b.(time.Time)
		if !isTime {
			return 0, false
		}
		return x.Compare(y), true
	case bool:
		y, isBool := b.(bool)
		if !isBool {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		default:
			return 1, true
		}
	default:
		return 0, false
	}
}

func compareOrdered[T float64 | string](x, y T) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}
