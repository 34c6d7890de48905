// Package native is the boundary to the native trace-processing
// engine. It defines the opaque handle type, the status codes returned
// by engine primitives, and an in-memory reference engine that tracks
// object lifetimes with manual reference counting.
//
// The engine is an explicit lifecycle object: Open it once, Close it
// deterministically when done. Close reports leaked objects.
package native

import (
	"fmt"
	"sort"
	"sync"

	"github.com/antmicro/libbtrace/errors"
)

// Handle is an opaque reference to a native object. The zero Handle is
// never valid.
type Handle uint64

// Status is a native engine status code.
type Status int

// Status codes returned by nearly every engine primitive.
const (
	StatusOK Status = iota
	StatusError
	StatusMemoryError
	StatusEnd
	StatusAgain
	StatusOverflowError
	StatusUnknownObject
)

// String returns a string representation of the status code
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	case StatusMemoryError:
		return "memory-error"
	case StatusEnd:
		return "end"
	case StatusAgain:
		return "again"
	case StatusOverflowError:
		return "overflow-error"
	case StatusUnknownObject:
		return "unknown-object"
	default:
		return "unknown"
	}
}

// Err maps a status code to the error taxonomy. StatusOK maps to nil.
// The msg argument gives context for failure statuses; it is required
// for StatusError and StatusMemoryError.
func (s Status) Err(msg string) error {
	switch s {
	case StatusOK:
		return nil
	case StatusError:
		return fmt.Errorf("%s", msg)
	case StatusMemoryError:
		return errors.WrapFatal(errors.ErrMemory, "native", "call", msg)
	case StatusEnd:
		return errors.ErrEnd
	case StatusAgain:
		return errors.WrapTransient(errors.ErrTryAgain, "native", "call", msg)
	case StatusOverflowError:
		return errors.WrapInvalid(errors.ErrOverflow, "native", "call", msg)
	case StatusUnknownObject:
		return errors.ErrUnknownObject
	default:
		return fmt.Errorf("unknown status %d: %s", int(s), msg)
	}
}

// DestroyFunc runs exactly once when an object's reference count drops
// to zero, before the object is removed from the engine.
type DestroyFunc func()

type object struct {
	kind    string
	refs    int64
	destroy DestroyFunc
}

// Engine is the in-memory reference engine. It owns the allocation
// table and the reference counts of every live native object.
//
// All methods are safe for concurrent use, although graph execution
// itself is single-threaded.
type Engine struct {
	mu     sync.Mutex
	next   Handle
	live   map[Handle]*object
	gets   uint64
	puts   uint64
	closed bool
}

// Open creates a new engine. The caller must Close it when all objects
// have been released.
func Open() *Engine {
	return &Engine{
		next: 1,
		live: make(map[Handle]*object),
	}
}

// Allocate creates a native object of the given kind and returns a
// handle owning one reference. The destroy hook may be nil.
func (e *Engine) Allocate(kind string, destroy DestroyFunc) Handle {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		panic("native: Allocate on closed engine")
	}

	h := e.next
	e.next++
	e.live[h] = &object{kind: kind, refs: 1, destroy: destroy}
	return h
}

// SetDestroy replaces the destroy hook of a live object. Used by
// owners that need to observe destruction after allocation.
func (e *Engine) SetDestroy(h Handle, destroy DestroyFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	obj := e.mustObject(h)
	obj.destroy = destroy
}

// GetRef acquires one reference on the object behind h.
// Acquiring a reference on the zero or an unknown handle is a
// programming error and panics.
func (e *Engine) GetRef(h Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	obj := e.mustObject(h)
	obj.refs++
	e.gets++
}

// PutRef releases one reference on the object behind h. When the count
// reaches zero the destroy hook runs and the object is removed.
// Releasing the zero or an unknown handle panics.
func (e *Engine) PutRef(h Handle) {
	e.mu.Lock()
	obj := e.mustObject(h)
	obj.refs--
	e.puts++

	if obj.refs > 0 {
		e.mu.Unlock()
		return
	}

	delete(e.live, h)
	e.mu.Unlock()

	// The hook runs outside the lock: destroying an object typically
	// cascades into PutRef calls on the objects it exclusively owns.
	if obj.destroy != nil {
		obj.destroy()
	}
}

// RefCount returns the current reference count of a live object, or 0
// if the handle is not live.
func (e *Engine) RefCount(h Handle) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if obj, ok := e.live[h]; ok {
		return obj.refs
	}
	return 0
}

// IsLive reports whether h refers to a live object.
func (e *Engine) IsLive(h Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.live[h]
	return ok
}

// Gets returns the total number of GetRef calls observed.
func (e *Engine) Gets() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gets
}

// Puts returns the total number of PutRef calls observed.
func (e *Engine) Puts() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.puts
}

// Live returns a description of every live object, sorted by handle.
// Used by Close and by leak-checking tests.
func (e *Engine) Live() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	handles := make([]Handle, 0, len(e.live))
	for h := range e.live {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })

	descs := make([]string, 0, len(handles))
	for _, h := range handles {
		obj := e.live[h]
		descs = append(descs, fmt.Sprintf("%s@%d (refs=%d)", obj.kind, h, obj.refs))
	}
	return descs
}

// Close tears down the engine. It fails if any object is still live,
// naming the leaked objects.
func (e *Engine) Close() error {
	leaked := e.Live()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return errors.Invalidf("engine already closed")
	}

	if len(leaked) > 0 {
		return errors.WrapFatal(
			fmt.Errorf("%d leaked objects: %v", len(leaked), leaked),
			"Engine", "Close", "leak check")
	}

	e.closed = true
	return nil
}

func (e *Engine) mustObject(h Handle) *object {
	if h == 0 {
		panic("native: reference operation on zero handle")
	}
	obj, ok := e.live[h]
	if !ok {
		panic(fmt.Sprintf("native: reference operation on dead handle %d", h))
	}
	return obj
}
