package botapi

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Request parameters arrive as map[string]any from three transports (JSON
// body, form fields, query string), so values may be strings, json.Number,
// float64, or bool depending on the path. The helpers below coerce
// tolerantly; each returns ok=false when the key is absent or the value
// cannot be interpreted.

// String extracts a textual value. Numbers are rendered in decimal form.
func String(m map[string]any, k string) (string, bool) {
	v, ok := m[k]
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	}
	return "", false
}

// Int64 extracts an integer value. Fractional floats are truncated, which
// matches how permissive clients send "42.0".
func Int64(m map[string]any, k string) (int64, bool) {
	v, ok := m[k]
	if !ok {
		return 0, false
	}
	return coerceInt64(v)
}

// Int64Or returns def when the key is absent or unparseable.
func Int64Or(m map[string]any, k string, def int64) int64 {
	if v, ok := Int64(m, k); ok {
		return v
	}
	return def
}

// Bool extracts a boolean; form transports deliver it as a string.
// Absent or unparseable values are false.
func Bool(m map[string]any, k string) bool {
	v, ok := m[k]
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(b)
		return err == nil && parsed
	case json.Number:
		n, err := b.Int64()
		return err == nil && n != 0
	case float64:
		return b != 0
	}
	return false
}

// Stringify renders any scalar the way the wire expects identifiers:
// numbers in plain decimal, everything else via its string form.
func Stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(s, 10)
	case int:
		return strconv.Itoa(s)
	}
	return fmt.Sprint(v)
}

// ParseReplyMarkup accepts the reply_markup parameter in any transport form:
// a decoded JSON object, or the raw JSON string the form/query paths carry.
func ParseReplyMarkup(v any) (*InlineKeyboardMarkup, error) {
	switch m := v.(type) {
	case *InlineKeyboardMarkup:
		return m, nil
	case string:
		var mk InlineKeyboardMarkup
		if err := json.Unmarshal([]byte(m), &mk); err != nil {
			return nil, fmt.Errorf("reply_markup: %w", err)
		}
		return &mk, nil
	case map[string]any:
		raw, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("reply_markup: %w", err)
		}
		var mk InlineKeyboardMarkup
		if err := json.Unmarshal(raw, &mk); err != nil {
			return nil, fmt.Errorf("reply_markup: %w", err)
		}
		return &mk, nil
	}
	return nil, fmt.Errorf("reply_markup: unsupported type %T", v)
}

func coerceInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return int64(f), true
		}
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}
