// Parses slash delimited paths into segments.

package tree

import (
	"fmt"
	"strings"
)

// Separator delimits path segments. There is no escaping: a key can never
// contain a slash.
const Separator = "/"

// ParsePath splits p into its segments.
//
// An empty path or an empty segment (leading, trailing or doubled slash) is
// rejected with [ErrInvalidPath].
func ParsePath(p string) ([]string, error) {
	if p == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	segs := strings.Split(p, Separator)
	for i, s := range segs {
		if s == "" {
			return nil, fmt.Errorf("%w: empty segment %d in %q", ErrInvalidPath, i, p)
		}
	}
	return segs, nil
}

// JoinPath joins segments into a path. Each segment must be non-empty and
// must not contain the separator.
func JoinPath(segs ...string) (string, error) {
	for _, s := range segs {
		if s == "" {
			return "", fmt.Errorf("%w: empty segment", ErrInvalidPath)
		}
		if strings.Contains(s, Separator) {
			return "", fmt.Errorf("%w: segment %q contains %q", ErrInvalidPath, s, Separator)
		}
	}
	return strings.Join(segs, Separator), nil
}

// isIndex reports whether s is a canonical decimal sequence index: digits
// only, without leading zeros.
func isIndex(s string) bool {
	if s == "" || len(s) > 9 || (len(s) > 1 && s[0] == '0') {
		return false
	}
	for i := range len(s) {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
