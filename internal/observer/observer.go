// Package observer dispatches tree mutations to callbacks registered on path
// prefixes.
package observer

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Actions reported in [Event.Action].
const (
	ActionSet              = "set_data"
	ActionEdit             = "edit_data"
	ActionRemove           = "remove_data"
	ActionSetCollection    = "set_subcollection"
	ActionEditCollection   = "edit_subcollection"
	ActionRemoveCollection = "remove_subcollection"
)

// ErrObserver wraps the error returned by a callback.
var ErrObserver = errors.New("observer failed")

// Event describes a mutation.
type Event struct {
	Action string
	Path   string
	// Value is the stored value for set and edit, the removed value for
	// remove. Callbacks receive a copy.
	Value any
}

// Func is called synchronously for each matching event. A non-nil error
// stops the dispatch.
type Func func(Event) error

// Handle identifies a subscription.
type Handle uint64

type subscription struct {
	h  Handle
	fn Func
}

// Bus maps path prefixes to ordered callbacks.
//
// The zero value is ready to use. A Bus is not safe for concurrent use.
type Bus struct {
	last Handle
	subs map[string][]subscription
}

// Subscribe registers fn for every path starting with prefix.
//
// The match is a plain string prefix, not segment aware: "user" also
// matches "users/1".
func (b *Bus) Subscribe(prefix string, fn Func) Handle {
	if b.subs == nil {
		b.subs = map[string][]subscription{}
	}
	b.last++
	b.subs[prefix] = append(b.subs[prefix], subscription{h: b.last, fn: fn})
	return b.last
}

// Unsubscribe removes a subscription. It reports whether h was registered
// on prefix. The prefix is forgotten once its last callback is gone.
func (b *Bus) Unsubscribe(prefix string, h Handle) bool {
	list := b.subs[prefix]
	i := slices.IndexFunc(list, func(s subscription) bool { return s.h == h })
	if i < 0 {
		return false
	}
	list = slices.Delete(list, i, i+1)
	if len(list) == 0 {
		delete(b.subs, prefix)
	} else {
		b.subs[prefix] = list
	}
	return true
}

// Len returns the number of prefixes with at least one callback.
func (b *Bus) Len() int {
	return len(b.subs)
}

// Notify calls, in registration order, every callback whose prefix starts
// ev.Path. Prefixes are visited in lexical order.
func (b *Bus) Notify(ev Event) error {
	prefixes := make([]string, 0, len(b.subs))
	for p := range b.subs {
		if strings.HasPrefix(ev.Path, p) {
			prefixes = append(prefixes, p)
		}
	}
	slices.Sort(prefixes)
	for _, p := range prefixes {
		// Copy so callbacks may unsubscribe while being dispatched.
		for _, s := range slices.Clone(b.subs[p]) {
			if err := s.fn(ev); err != nil {
				return fmt.Errorf("%w: %s on %q (prefix %q): %w", ErrObserver, ev.Action, ev.Path, p, err)
			}
		}
	}
	return nil
}
