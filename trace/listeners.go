package trace

import (
	"sync"

	"github.com/google/uuid"

	"github.com/antmicro/libbtrace/errors"
)

// ListenerHandle identifies one registered destruction listener. The
// same handle must be presented to remove the listener; removing twice
// is an error.
type ListenerHandle struct {
	id    uuid.UUID
	owner *destructionListeners
}

// destructionListeners is the ordered one-shot callback list shared by
// every class object. Listeners fire exactly once, at destruction, in
// registration order, unless removed first.
type destructionListeners struct {
	mu      sync.Mutex
	entries []listenerEntry
	fired   bool
}

type listenerEntry struct {
	id uuid.UUID
	fn func()
}

func (dl *destructionListeners) add(fn func()) (ListenerHandle, error) {
	if fn == nil {
		return ListenerHandle{}, errors.Invalidf("destruction listener is nil")
	}

	dl.mu.Lock()
	defer dl.mu.Unlock()

	if dl.fired {
		return ListenerHandle{}, errors.Invalidf("object already destroyed")
	}

	id := uuid.New()
	dl.entries = append(dl.entries, listenerEntry{id: id, fn: fn})
	return ListenerHandle{id: id, owner: dl}, nil
}

func (dl *destructionListeners) remove(h ListenerHandle) error {
	if h.owner != dl {
		return errors.Invalidf("listener handle does not match this object")
	}

	dl.mu.Lock()
	defer dl.mu.Unlock()

	for i, e := range dl.entries {
		if e.id == h.id {
			dl.entries = append(dl.entries[:i], dl.entries[i+1:]...)
			return nil
		}
	}
	return errors.Invalidf("listener already removed")
}

// fire invokes every remaining listener in registration order. It is
// the engine destroy hook of the owning class object.
func (dl *destructionListeners) fire() {
	dl.mu.Lock()
	entries := dl.entries
	dl.entries = nil
	dl.fired = true
	dl.mu.Unlock()

	for _, e := range entries {
		e.fn()
	}
}
