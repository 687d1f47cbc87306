package tree

import (
	"fmt"
	"regexp"
	"slices"
)

// merge copies src into dst. Maps present on both sides are merged
// recursively; anything else in src replaces the entry in dst.
func merge(dst, src map[string]any) {
	for k, v := range src {
		if sm, ok := v.(map[string]any); ok {
			if dm, ok := dst[k].(map[string]any); ok {
				merge(dm, sm)
				continue
			}
		}
		dst[k] = v
	}
}

// magnitude is the operand of an increment: an unsigned decimal number.
var magnitude = regexp.MustCompile(`^(\d+(\.\d*)?|\.\d+)$`)

// isIncrement reports whether an edit value uses the increment form.
func isIncrement(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for _, v := range m {
		s, ok := v.(string)
		if !ok || s == "" || (s[0] != '+' && s[0] != '-') {
			return false
		}
	}
	return true
}

// increments computes the new value of every field named in ops without
// modifying cur, so a single bad field leaves everything untouched.
func increments(cur, ops map[string]any) (map[string]any, error) {
	keys := make([]string, 0, len(ops))
	for k := range ops {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make(map[string]any, len(ops))
	for _, k := range keys {
		op := ops[k].(string)
		v, ok := cur[k]
		if !ok {
			return nil, fmt.Errorf("%w: field %q does not exist", ErrInvalidIncrement, k)
		}
		if !IsNumber(v) {
			return nil, fmt.Errorf("%w: field %q is a %s, not a number", ErrInvalidIncrement, k, KindOf(v))
		}
		operand := op[1:]
		if !magnitude.MatchString(operand) {
			return nil, fmt.Errorf("%w: %q for field %q is not a signed number", ErrInvalidIncrement, op, k)
		}
		n, err := addNumber(v, op[0], operand)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}
