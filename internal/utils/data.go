package utils

import (
	"cmp"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/maruel/treedb/internal/tree"
)

// ParseTime parses an ISO 8601 date or date-time, with or without a zone.
// Values without a zone are in UTC.
func ParseTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		time.DateOnly,
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ISO 8601 time %q", s)
}

// GetOrDefault returns m[key], or def when key is absent.
func GetOrDefault(m map[string]any, key string, def any) any {
	if v, ok := m[key]; ok {
		return v
	}
	return def
}

// KeyExistsOrAdd reports whether key is in m. When it is not, it is added
// with def.
func KeyExistsOrAdd(m map[string]any, key string, def any) bool {
	if _, ok := m[key]; ok {
		return true
	}
	m[key] = def
	return false
}

// NormalizeKeys returns a shallow copy of m with lower case keys. When two
// keys collide, the one sorting last wins.
func NormalizeKeys(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		out[strings.ToLower(k)] = m[k]
	}
	return out
}

// Flatten turns nested maps into a single level map whose keys are joined
// with sep. Sequences are leaves.
func Flatten(m map[string]any, sep string) map[string]any {
	out := map[string]any{}
	flatten(out, m, "", sep)
	return out
}

func flatten(out, m map[string]any, prefix, sep string) {
	for k, v := range m {
		if prefix != "" {
			k = prefix + sep + k
		}
		if c, ok := v.(map[string]any); ok && len(c) != 0 {
			flatten(out, c, k, sep)
			continue
		}
		out[k] = v
	}
}

// Filter returns the records for which keep returns true.
func Filter(records []map[string]any, keep func(map[string]any) bool) []map[string]any {
	var out []map[string]any
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// Sort sorts records in place by field. Numbers sort before strings, and
// records lacking the field sort first. The sort is stable.
func Sort(records []map[string]any, field string, reverse bool) {
	slices.SortStableFunc(records, func(a, b map[string]any) int {
		c := compare(a[field], b[field])
		if reverse {
			return -c
		}
		return c
	})
}

func compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	if ra == 2 {
		return tree.CompareNumbers(a, b)
	}
	switch x := a.(type) {
	case bool:
		y := b.(bool)
		if x == y {
			return 0
		}
		if !x {
			return -1
		}
		return 1
	case string:
		return strings.Compare(x, b.(string))
	}
	return 0
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int64, uint64, float64, json.Number:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

// SanitizeOutput returns a copy of m where top level string values have
// their HTML special characters escaped.
func SanitizeOutput(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			v = html.EscapeString(s)
		}
		out[k] = v
	}
	return out
}

// PrettyPrint writes v as JSON indented with 4 spaces, without escaping
// HTML characters.
func PrettyPrint(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
