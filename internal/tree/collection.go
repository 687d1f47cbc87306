// Subcollections: top-level maps of identifier to record.

package tree

import (
	"fmt"

	"github.com/maruel/ksid"
)

// SetItem inserts value as item id of collection coll, creating the
// collection when it does not exist yet.
func (t *Tree) SetItem(coll, id string, value any) (any, error) {
	if _, err := JoinPath(coll, id); err != nil {
		return nil, err
	}
	if value == nil {
		value = map[string]any{}
	}
	m, err := Validate(value)
	if err != nil {
		return nil, err
	}
	c, err := t.collection(coll)
	if err != nil {
		return nil, err
	}
	if c == nil {
		c = map[string]any{}
		t.root[coll] = c
	} else if _, ok := c[id]; ok {
		return nil, fmt.Errorf("%w: id %q in collection %q", ErrAlreadyExists, id, coll)
	}
	c[id] = m
	return Clone(m), nil
}

// AddItem inserts value in collection coll under a freshly generated,
// time sortable identifier and returns that identifier.
func (t *Tree) AddItem(coll string, value any) (string, any, error) {
	id := ksid.NewID().String()
	v, err := t.SetItem(coll, id, value)
	if err != nil {
		return "", nil, err
	}
	return id, v, nil
}

// EditItem edits item id of collection coll like [Tree.Edit].
func (t *Tree) EditItem(coll, id string, value any) (any, error) {
	p, err := JoinPath(coll, id)
	if err != nil {
		return nil, err
	}
	return t.Edit(p, value)
}

// RemoveItem deletes item id of collection coll.
func (t *Tree) RemoveItem(coll, id string) (any, error) {
	p, err := JoinPath(coll, id)
	if err != nil {
		return nil, err
	}
	return t.Remove(p)
}

// RemoveCollection deletes the whole collection coll.
func (t *Tree) RemoveCollection(coll string) (any, error) {
	p, err := JoinPath(coll)
	if err != nil {
		return nil, err
	}
	return t.Remove(p)
}

// GetItem returns a copy of item id of collection coll.
func (t *Tree) GetItem(coll, id string) (any, error) {
	p, err := JoinPath(coll, id)
	if err != nil {
		return nil, err
	}
	return t.Get(p)
}

// GetCollection returns a copy of collection coll, or an empty map when it
// does not exist.
func (t *Tree) GetCollection(coll string) (map[string]any, error) {
	if _, err := JoinPath(coll); err != nil {
		return nil, err
	}
	c, err := t.collection(coll)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return map[string]any{}, nil
	}
	return Clone(c).(map[string]any), nil
}

// collection returns the live collection map, nil when absent.
func (t *Tree) collection(coll string) (map[string]any, error) {
	v, ok := t.root[coll]
	if !ok {
		return nil, nil
	}
	c, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: collection %q is a %s, not a map", ErrInvalidData, coll, KindOf(v))
	}
	return c, nil
}
