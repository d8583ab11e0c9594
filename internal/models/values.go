package models

import (
	"strconv"
	"strings"
)

// IDString renders a decoded JSON identifier canonically so 5, 5.0 and "5"
// compare equal. Anything that is not a string or a number yields "".
func IDString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	}
	return ""
}

// Text returns v when it is a string, the decimal form of a number, or "".
func Text(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return IDString(v)
}

// Truthy mirrors loose truthiness of decoded JSON: false, 0, "", nil,
// empty collections count as false.
func Truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	case []interface{}:
		return true
	case map[string]interface{}:
		return true
	}
	return true
}
