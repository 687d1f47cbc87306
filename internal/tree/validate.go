// Normalizes and validates values before they enter the tree.

package tree

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// Kind names the JSON kind of a normalized value.
type Kind string

const (
	KindNull     Kind = "null"
	KindBool     Kind = "bool"
	KindNumber   Kind = "number"
	KindString   Kind = "string"
	KindSequence Kind = "sequence"
	KindMap      Kind = "map"
)

// KindOf returns the kind of a normalized value.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case int64, uint64, float64, json.Number:
		return KindNumber
	case string:
		return KindString
	case []any:
		return KindSequence
	case map[string]any:
		return KindMap
	default:
		return Kind(fmt.Sprintf("%T", v))
	}
}

// Validate checks that v can be stored and returns its normalized copy.
//
// v must be an associative structure with non-empty string keys whose leaves
// are strings, numbers, booleans, null, sequences or nested maps. Inside a
// single sequence, sibling maps sharing a key must hold the same kind of
// value at that key; null is compatible with every kind.
//
// The returned map shares nothing with v.
func Validate(v any) (map[string]any, error) {
	n, err := Normalize(v)
	if err != nil {
		return nil, err
	}
	m, ok := n.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: value must be a map, got %s", ErrInvalidData, KindOf(n))
	}
	if err := checkConsistency(m, ""); err != nil {
		return nil, err
	}
	return m, nil
}

// Normalize converts v into the tree's value model: map[string]any, []any,
// string, bool, nil or a number (see [ParseNumber]). Integer kinds become
// int64, or uint64 above math.MaxInt64. It always returns a deep copy.
func Normalize(v any) (any, error) {
	return normalize(v, "")
}

func normalize(v any, at string) (any, error) {
	// Fast path for values already in the tree's model.
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return t, nil
	case bool:
		return t, nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, fmt.Errorf("%w: non-finite number at %s", ErrInvalidData, where(at))
		}
		return t, nil
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case uint64:
		return fromUint(t), nil
	case json.Number:
		n, err := ParseNumber(string(t))
		if err != nil {
			return nil, fmt.Errorf("%w at %s", err, where(at))
		}
		return n, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			if k == "" {
				return nil, fmt.Errorf("%w: empty key at %s", ErrInvalidData, where(at))
			}
			n, err := normalize(e, child(at, k))
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			n, err := normalize(e, child(at, strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	}
	return normalizeValue(reflect.ValueOf(v), at)
}

func normalizeValue(v reflect.Value, at string) (any, error) {
	if !v.IsValid() {
		return nil, nil
	}
	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return nil, nil
		}
		return normalize(v.Elem().Interface(), at)
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.String:
		return v.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return fromUint(v.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return normalize(v.Float(), at)
	case reflect.Slice:
		if v.IsNil() {
			return nil, nil
		}
		fallthrough
	case reflect.Array:
		out := make([]any, v.Len())
		for i := range v.Len() {
			n, err := normalize(v.Index(i).Interface(), child(at, strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: keys must be strings, got %s at %s", ErrInvalidData, v.Type().Key(), where(at))
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			if k == "" {
				return nil, fmt.Errorf("%w: empty key at %s", ErrInvalidData, where(at))
			}
			n, err := normalize(iter.Value().Interface(), child(at, k))
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported type %s at %s", ErrInvalidData, v.Type(), where(at))
	}
}

// fromUint keeps unsigned values that fit as int64 so equal integers share
// one representation.
func fromUint(u uint64) any {
	if u <= math.MaxInt64 {
		return int64(u)
	}
	return u
}

// checkConsistency walks a normalized value and rejects sequences whose map
// elements disagree on the kind stored at a shared key.
func checkConsistency(v any, at string) error {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			if err := checkConsistency(e, child(at, k)); err != nil {
				return err
			}
		}
	case []any:
		kinds := map[string]Kind{}
		for i, e := range t {
			if m, ok := e.(map[string]any); ok {
				for k, f := range m {
					kind := KindOf(f)
					if kind == KindNull {
						continue
					}
					if prev, ok := kinds[k]; ok && prev != kind {
						return fmt.Errorf("%w: conflicting types for key %q at %s: %s and %s", ErrInvalidData, k, where(child(at, strconv.Itoa(i))), prev, kind)
					}
					kinds[k] = kind
				}
			}
			if err := checkConsistency(e, child(at, strconv.Itoa(i))); err != nil {
				return err
			}
		}
	}
	return nil
}

// Clone deep copies a normalized value.
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Clone(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Clone(e)
		}
		return out
	default:
		return v
	}
}

func child(at, key string) string {
	if at == "" {
		return key
	}
	return at + Separator + key
}

func where(at string) string {
	if at == "" {
		return "root"
	}
	return strconv.Quote(at)
}
