package domain

import (
	"fmt"
	"strings"
)

// NormalizeKey canonicalizes a raw project/client identifier so records from
// the three sources can be joined. Two records refer to the same project iff
// their normalized keys are equal; no fuzzy matching. Returns "" for inputs
// that carry no identifier, and such records never join anything.
func NormalizeKey(raw any) string {
	if raw == nil {
		return ""
	}
	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case fmt.Stringer:
		s = v.String()
	case float64:
		// Warehouse numeric columns arrive as float64; render integral
		// values without a decimal point so "1001" == 1001.0.
		if v == float64(int64(v)) {
			s = fmt.Sprintf("%d", int64(v))
		} else {
			s = fmt.Sprintf("%v", v)
		}
	case int, int32, int64:
		s = fmt.Sprintf("%d", v)
	default:
		s = fmt.Sprintf("%v", v)
	}
	return strings.TrimSpace(s)
}
