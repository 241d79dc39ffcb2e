package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Args holds the arguments of a command as decoded from JSON.
type Args map[string]any

// String returns the value of key if it is a string.
func (a Args) String(key string) (string, bool) {
	v, ok := a[key].(string)
	return v, ok
}

// StringOr returns the string value of key or def.
func (a Args) StringOr(key, def string) string {
	if v, ok := a.String(key); ok {
		return v
	}
	return def
}

// Int64 returns the value of key as an integer. Numbers and numeric strings
// are accepted.
func (a Args) Int64(key string) (int64, bool) {
	switch v := a[key].(type) {
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// Bool returns the value of key if it is a boolean.
func (a Args) Bool(key string) (bool, bool) {
	v, ok := a[key].(bool)
	return v, ok
}

// Has reports whether key is present.
func (a Args) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// Decode converts the arguments into out through a JSON round trip.
func (a Args) Decode(out any) error {
	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode args: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode args: %w", err)
	}
	return nil
}
