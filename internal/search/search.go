// Package search scans a document tree for a value.
package search

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"

	"github.com/maruel/treedb/internal/tree"
)

// Find returns every leaf of root equal to value, keyed by its path.
//
// A leaf matches when it equals value, or when value is a string equal to
// the leaf's text form, so "30" finds the number 30. Maps and sequences are
// descended, never compared; sequence elements are reported as path/index.
//
// When key is not empty, only root[key] is scanned and it must exist. The
// returned paths always start at the root, so they can be handed back to
// [tree.Tree.Get].
func Find(root map[string]any, value any, key string) (map[string]any, error) {
	want, err := tree.Normalize(value)
	if err != nil {
		return nil, err
	}
	switch want.(type) {
	case map[string]any, []any:
		return nil, fmt.Errorf("%w: search value must be a scalar, got %s", tree.ErrInvalidData, tree.KindOf(want))
	}
	out := map[string]any{}
	if key == "" {
		walk(root, "", want, out)
		return out, nil
	}
	v, ok := root[key]
	if !ok {
		return nil, fmt.Errorf("%w: key %q", tree.ErrNotFound, key)
	}
	walk(v, key, want, out)
	return out, nil
}

func walk(v any, path string, want any, out map[string]any) {
	switch t := v.(type) {
	case map[string]any:
		for k, c := range t {
			walk(c, join(path, k), want, out)
		}
	case []any:
		for i, c := range t {
			walk(c, join(path, strconv.Itoa(i)), want, out)
		}
	default:
		if matches(t, want) {
			out[path] = t
		}
	}
}

func matches(leaf, want any) bool {
	if tree.IsNumber(leaf) && tree.IsNumber(want) {
		return tree.CompareNumbers(leaf, want) == 0
	}
	if reflect.DeepEqual(leaf, want) {
		return true
	}
	s, ok := want.(string)
	return ok && Text(leaf) == s
}

// Text returns the text form of a scalar leaf: numbers without trailing
// zeros, booleans as true or false, null as null.
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int64, uint64, float64, json.Number:
		return tree.FormatNumber(t)
	default:
		return fmt.Sprint(t)
	}
}

func join(path, seg string) string {
	if path == "" {
		return seg
	}
	return path + tree.Separator + seg
}
