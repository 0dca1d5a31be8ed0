// Package builtin holds small value helpers and reusable transformers shared
// by entity steps.
package builtin

import (
	"fmt"
	"strconv"
	"strings"
)

// Truthy reports whether a scanned column value counts as set. nil, false,
// numeric zero, "" and "0" are false; drivers that return text for numeric
// columns are handled through the string cases.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		s := strings.TrimSpace(t)
		return s != "" && s != "0"
	case []byte:
		return Truthy(string(t))
	case int:
		return t != 0
	case int8:
		return t != 0
	case int16:
		return t != 0
	case int32:
		return t != 0
	case int64:
		return t != 0
	case uint:
		return t != 0
	case uint8:
		return t != 0
	case uint16:
		return t != 0
	case uint32:
		return t != 0
	case uint64:
		return t != 0
	case float32:
		return t != 0
	case float64:
		return t != 0
	default:
		return true
	}
}

// Int64 converts integer-like values. Strings are parsed in base 10; floats
// are truncated.
func Int64(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint:
		return int64(t), true
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint64:
		return int64(t), true
	case float32:
		return int64(t), true
	case float64:
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, err == nil
	case []byte:
		return Int64(string(t))
	default:
		return 0, false
	}
}

// Key renders v as a lookup key. nil becomes "".
func Key(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

// EnumMap maps source codes to destination values. Unknown codes map to the
// Default entry.
type EnumMap struct {
	Values  map[string]any
	Default string
}

// Lookup returns the mapped value for v.
func (m EnumMap) Lookup(v any) any {
	if out, ok := m.Values[Key(v)]; ok {
		return out
	}
	return m.Values[m.Default]
}
