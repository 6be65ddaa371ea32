package storage

import (
	"encoding/json"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

// EnsureDir ensures a directory exists with default permissions.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// ParseCounter parses a stored non-negative counter. Missing, malformed or
// negative values read as 0.
func ParseCounter(s string) int64 {
	v, ok := parseNumber(s)
	if !ok || v < 0 {
		return 0
	}
	return v
}

// ParseNullableMillis parses a stored nullable timestamp. Missing, malformed or
// non-positive values read as nil.
func ParseNullableMillis(s string) *int64 {
	v, ok := parseNumber(s)
	if !ok || v <= 0 {
		return nil
	}
	return &v
}

// ParseOrdinal parses a stored pool position; malformed values sort last.
func ParseOrdinal(s string) int {
	v, ok := parseNumber(s)
	if !ok || v < 0 || v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}

// RawCounter decodes a JSON field that should hold a counter, tolerating
// strings, floats and garbage.
func RawCounter(raw json.RawMessage) int64 {
	return ParseCounter(rawString(raw))
}

// RawNullableMillis decodes a JSON field that should hold a nullable timestamp.
func RawNullableMillis(raw json.RawMessage) *int64 {
	return ParseNullableMillis(rawString(raw))
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func parseNumber(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return 0, false
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// SortRotationItems orders items least-shown first, then oldest-shown, then by
// pool position, then by key so the order is total.
func SortRotationItems(items []RotationItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.DisplayCount != b.DisplayCount {
			return a.DisplayCount < b.DisplayCount
		}
		if a.LastShownMs != b.LastShownMs {
			return a.LastShownMs < b.LastShownMs
		}
		if a.Ordinal != b.Ordinal {
			return a.Ordinal < b.Ordinal
		}
		return a.Key < b.Key
	})
}

// ItemTypeOf returns the type prefix of a "type:index" rotation key.
func ItemTypeOf(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}
