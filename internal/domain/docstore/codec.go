// internal/domain/docstore/codec.go

package docstore

import (
	"encoding/json"
	"fmt"
	"time"
)

// timeKey tags timestamps inside encoded JSON so they survive a round trip
const timeKey = "$time"

// Encode serializes document data to JSON, tagging timestamps
func Encode(data map[string]interface{}) ([]byte, error) {
	b, err := json.Marshal(EncodeValue(data))
	if err != nil {
		return nil, fmt.Errorf("error encoding document: %w", err)
	}
	return b, nil
}

// EncodeValue converts a normalized value into its JSON-ready form
func EncodeValue(v interface{}) interface{} {
	switch t := Normalize(v).(type) {
	case time.Time:
		return map[string]interface{}{timeKey: t.Format(time.RFC3339Nano)}
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = EncodeValue(e)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = EncodeValue(e)
		}
		return out
	default:
		return t
	}
}

// Decode parses JSON produced by Encode back into document data
func Decode(b []byte) (map[string]interface{}, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("error decoding document: %w", err)
	}
	if raw == nil {
		return map[string]interface{}{}, nil
	}
	return decodeValue(raw).(map[string]interface{}), nil
}

func decodeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = decodeValue(e)
		}
		return out
	case map[string]interface{}:
		if s, ok := t[timeKey].(string); ok && len(t) == 1 {
			if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
				return ts.UTC()
			}
		}
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = decodeValue(e)
		}
		return out
	default:
		return t
	}
}
