// internal/domain/docstore/fields.go

package docstore

import (
	"time"
)

// String reads a string field, "" when absent or of another type
func String(data map[string]interface{}, key string) string {
	s, _ := data[key].(string)
	return s
}

// Float reads a numeric field, 0 when absent
func Float(data map[string]interface{}, key string) float64 {
	f, _ := Normalize(data[key]).(float64)
	return f
}

// Bool reads a boolean field
func Bool(data map[string]interface{}, key string) bool {
	b, _ := data[key].(bool)
	return b
}

// Time reads a timestamp field, the zero time when absent
func Time(data map[string]interface{}, key string) time.Time {
	t, _ := data[key].(time.Time)
	return t
}

// Strings reads an array-of-strings field; non-string elements are skipped
func Strings(data map[string]interface{}, key string) []string {
	arr, ok := Normalize(data[key]).([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Map reads a nested object field
func Map(data map[string]interface{}, key string) map[string]interface{} {
	m, _ := data[key].(map[string]interface{})
	return m
}
