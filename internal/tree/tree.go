// Package tree implements the path addressed document tree.
//
// A [Tree] is a single JSON-like document rooted at a map. Values are
// addressed by slash delimited paths such as "users/1/name". The tree offers
// strict inserts with auto-vivification of intermediate maps, recursive merge
// edits with a signed increment extension, and removal.
//
// A Tree is not safe for concurrent use.
package tree

import (
	"fmt"
	"strconv"
)

// Tree is an in-memory document rooted at a map.
type Tree struct {
	root map[string]any
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{root: map[string]any{}}
}

// FromMap returns a tree that takes ownership of root. root must already be
// normalized, as produced by encoding/json or [Normalize].
func FromMap(root map[string]any) *Tree {
	if root == nil {
		root = map[string]any{}
	}
	return &Tree{root: root}
}

// Root returns the live root map. Callers must not modify it.
func (t *Tree) Root() map[string]any {
	return t.root
}

// Snapshot returns a deep copy of the whole tree.
func (t *Tree) Snapshot() map[string]any {
	return Clone(t.root).(map[string]any)
}

// Replace swaps the whole content of the tree.
func (t *Tree) Replace(root map[string]any) {
	if root == nil {
		root = map[string]any{}
	}
	t.root = root
}

// Exists reports whether every segment of path resolves.
func (t *Tree) Exists(path string) bool {
	segs, err := ParsePath(path)
	if err != nil {
		return false
	}
	_, ok := t.lookup(segs)
	return ok
}

// Get returns a copy of the value at path.
//
// Reads descend into maps by key and into sequences by decimal index.
func (t *Tree) Get(path string) (any, error) {
	segs, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	v, ok := t.lookup(segs)
	if !ok {
		return nil, fmt.Errorf("%w: no data at %q", ErrNotFound, path)
	}
	return Clone(v), nil
}

// Set inserts value at path and returns a copy of what was stored.
//
// A nil value stores an empty map. Missing intermediate maps are created.
// Set never overwrites: an existing path is [ErrAlreadyExists].
func (t *Tree) Set(path string, value any) (any, error) {
	segs, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	if value == nil {
		value = map[string]any{}
	}
	m, err := Validate(value)
	if err != nil {
		return nil, err
	}
	if _, ok := t.lookup(segs); ok {
		return nil, fmt.Errorf("%w: %q", ErrAlreadyExists, path)
	}
	// Check the whole walk before creating anything so a failure leaves the
	// tree untouched.
	cur := t.root
	depth := 0
	for _, s := range segs[:len(segs)-1] {
		v, ok := cur[s]
		if !ok {
			break
		}
		next, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %q is a %s, not a map", ErrInvalidData, segs[depth], KindOf(v))
		}
		cur = next
		depth++
	}
	for _, s := range segs[depth : len(segs)-1] {
		next := map[string]any{}
		cur[s] = next
		cur = next
	}
	cur[segs[len(segs)-1]] = m
	return Clone(m), nil
}

// Edit updates the existing value at path and returns a copy of the result.
//
// When every entry of value is a string starting with '+' or '-', the edit
// is an increment: each named field of the current map is a number that is
// increased or decreased by the operand. Otherwise value is merged
// recursively into the current map, or replaces the current value when it
// is not a map.
func (t *Tree) Edit(path string, value any) (any, error) {
	segs, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	if _, ok := t.lookup(segs); !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, path)
	}
	m, err := Validate(value)
	if err != nil {
		return nil, err
	}
	parent, err := t.parentMap(segs)
	if err != nil {
		return nil, err
	}
	key := segs[len(segs)-1]
	cur := parent[key]
	if isIncrement(m) {
		curMap, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %q is a %s, not a map", ErrInvalidIncrement, path, KindOf(cur))
		}
		updates, err := increments(curMap, m)
		if err != nil {
			return nil, err
		}
		for k, n := range updates {
			curMap[k] = n
		}
		return Clone(curMap), nil
	}
	if curMap, ok := cur.(map[string]any); ok {
		merge(curMap, m)
		return Clone(curMap), nil
	}
	parent[key] = m
	return Clone(m), nil
}

// Remove deletes the value at path and returns it.
func (t *Tree) Remove(path string) (any, error) {
	segs, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	if _, ok := t.lookup(segs); !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, path)
	}
	parent, err := t.parentMap(segs)
	if err != nil {
		return nil, err
	}
	key := segs[len(segs)-1]
	v := parent[key]
	delete(parent, key)
	return v, nil
}

func (t *Tree) lookup(segs []string) (any, bool) {
	var cur any = t.root
	for _, s := range segs {
		switch c := cur.(type) {
		case map[string]any:
			v, ok := c[s]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			if !isIndex(s) {
				return nil, false
			}
			i, err := strconv.Atoi(s)
			if err != nil || i >= len(c) {
				return nil, false
			}
			cur = c[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// parentMap returns the map holding the last segment of an existing path.
// Mutations never reach inside sequences.
func (t *Tree) parentMap(segs []string) (map[string]any, error) {
	cur := t.root
	for i, s := range segs[:len(segs)-1] {
		next, ok := cur[s].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: cannot modify inside %s at %q", ErrInvalidData, KindOf(cur[s]), segs[i])
		}
		cur = next
	}
	return cur, nil
}
