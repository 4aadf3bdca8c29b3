// Package jsonutil has small helpers for decoding loosely typed JSON.
// Manifests in the wild carry numbers or booleans where the format says
// string; translators coerce those values instead of rejecting the file.
package jsonutil

import (
	"encoding/json"
	"fmt"
)

// CoerceString converts a decoded JSON scalar to its string form. Returns
// false for null, objects, and arrays.
func CoerceString(v any) (string, bool) {
	switch d := v.(type) {
	case string:
		return d, true
	case float64:
		if d == float64(int64(d)) {
			return fmt.Sprintf("%d", int64(d)), true
		}
		return fmt.Sprintf("%g", d), true
	case json.Number:
		return d.String(), true
	case bool:
		return fmt.Sprintf("%t", d), true
	default:
		return "", false
	}
}
