package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// Row accessors fold the handful of representations the driver may
// hand back into the type the caller wants. Missing columns and NULLs
// read as zero values.

// String reads a column as a string.
func String(r Row, col string) string {
	v, ok := r[col]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Int64 reads a column as an int64.
func Int64(r Row, col string) int64 {
	v, ok := r[col]
	if !ok || v == nil {
		return 0
	}
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case json.Number:
		n, _ := t.Int64()
		return n
	default:
		return 0
	}
}

// Float64 reads a column as a float64.
func Float64(r Row, col string) float64 {
	v, ok := r[col]
	if !ok || v == nil {
		return 0
	}
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	default:
		return 0
	}
}

// Bool reads a column as a bool.
func Bool(r Row, col string) bool {
	v, ok := r[col]
	if !ok || v == nil {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Time reads a bigint epoch-seconds column as a time.Time.
func Time(r Row, col string) time.Time {
	secs := Int64(r, col)
	if secs == 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

// Strings reads a JSON or array column as a string slice.
func Strings(r Row, col string) []string {
	v, ok := r[col]
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
