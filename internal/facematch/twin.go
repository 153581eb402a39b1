package facematch

import (
	"strconv"
	"strings"
)

// ParseTwinFlag normalizes a loosely typed has_twin value. Legacy records and
// form posts carry it as a bool, a string such as "true" or "1", or a number.
func ParseTwinFlag(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case *bool:
		return t != nil && *t
	case string:
		return parseTwinString(t)
	case *string:
		return t != nil && parseTwinString(*t)
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	default:
		return false
	}
}

func parseTwinString(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "true", "yes", "y", "on":
		return true
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n != 0
	}
	return false
}

// NormalizeTwinGroupID trims a twin group id and maps legacy null markers to "".
func NormalizeTwinGroupID(id string) string {
	id = strings.TrimSpace(id)
	switch strings.ToLower(id) {
	case "null", "none", "undefined":
		return ""
	}
	return id
}
