package store

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// jsonColumns enumerates the columns whose values are serialized as
// JSON on write. Reads come back already parsed by the driver.
var jsonColumns = map[string]bool{
	"given_material": true,
	"mc_choices":     true,
	"mc_answers":     true,
	"pairs":          true,
	"question_ids":   true,
	"answer":         true,
	"content":        true,
	"settings":       true,
}

// encodeParam prepares one value for binding. Values headed for an
// enumerated JSON column are always marshaled; elsewhere, maps and
// structs (and slices of them) fall back to JSON so structured
// payloads such as pairing_display survive the trip. Byte slices and
// scalar slices pass through as native arrays.
func encodeParam(column string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if jsonColumns[column] {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal column %q: %w", column, err)
		}
		return b, nil
	}
	if needsJSON(v) {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal value for column %q: %w", column, err)
		}
		return b, nil
	}
	return v, nil
}

func needsJSON(v any) bool {
	switch v.(type) {
	case []byte, json.RawMessage, uuid.UUID, time.Time:
		return false
	}
	t := reflect.TypeOf(v)
	switch t.Kind() {
	case reflect.Map, reflect.Struct:
		return true
	case reflect.Pointer:
		return t.Elem().Kind() == reflect.Struct || t.Elem().Kind() == reflect.Map
	case reflect.Slice, reflect.Array:
		ek := t.Elem().Kind()
		return ek == reflect.Map || ek == reflect.Struct || ek == reflect.Interface
	}
	return false
}

// normalizeValue folds driver-native representations into plain Go
// values so callers never see pgx internals. UUIDs come back from the
// driver as 16-byte arrays.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case [16]byte:
		return uuid.UUID(t).String()
	default:
		return v
	}
}
