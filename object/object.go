// Package object implements the ownership disciplines for wrappers
// around native handles.
//
// A SharedRef owns exactly one reference count increment on a
// refcounted native object. A UniqueRef aliases a native object that
// has no reference count of its own and is valid exactly as long as a
// designated owner is alive; to avoid lifetime issues, constructing a
// UniqueRef acquires a reference on the owner, never on the unique
// object itself.
package object

import (
	"fmt"

	"github.com/antmicro/libbtrace/native"
)

// SharedRef owns one reference to a refcounted native object.
// Release must be called exactly once; afterwards the wrapper is dead
// and any access panics.
type SharedRef struct {
	eng      *native.Engine
	h        native.Handle
	released bool
}

// Move creates a SharedRef from an existing owned reference. The
// caller's ownership of that reference transfers to the new wrapper;
// no reference is acquired.
func Move(eng *native.Engine, h native.Handle) *SharedRef {
	if h == 0 {
		panic("object: Move from zero handle")
	}
	return &SharedRef{eng: eng, h: h}
}

// Borrow creates a SharedRef from a borrowed handle, acquiring a new
// reference for the wrapper.
func Borrow(eng *native.Engine, h native.Handle) *SharedRef {
	if h == 0 {
		panic("object: Borrow from zero handle")
	}
	eng.GetRef(h)
	return &SharedRef{eng: eng, h: h}
}

// Handle returns the wrapped native handle.
func (r *SharedRef) Handle() native.Handle {
	r.mustBeLive()
	return r.h
}

// Engine returns the engine the handle belongs to.
func (r *SharedRef) Engine() *native.Engine {
	r.mustBeLive()
	return r.eng
}

// Clone acquires a new reference on the same native object and returns
// an independent wrapper for it.
func (r *SharedRef) Clone() *SharedRef {
	r.mustBeLive()
	return Borrow(r.eng, r.h)
}

// Release puts the wrapper's reference. Calling it twice panics: the
// second call would decrement a count the wrapper no longer owns.
func (r *SharedRef) Release() {
	if r.released {
		panic(fmt.Sprintf("object: double release of handle %d", r.h))
	}
	r.released = true
	r.eng.PutRef(r.h)
}

// Released reports whether Release was called.
func (r *SharedRef) Released() bool {
	return r.released
}

func (r *SharedRef) mustBeLive() {
	if r.released {
		panic(fmt.Sprintf("object: use of released handle %d", r.h))
	}
}

// UniqueRef aliases a native object owned by another, refcounted
// object. It holds a reference on the owner, not on the aliased object:
// dropping the wrapper releases the owner reference and never touches
// the aliased object directly.
type UniqueRef struct {
	owner    *SharedRef
	released bool
}

// Adopt creates a UniqueRef whose validity is tied to owner. One
// reference is acquired on the owner.
func Adopt(eng *native.Engine, owner native.Handle) *UniqueRef {
	if owner == 0 {
		panic("object: Adopt with zero owner handle")
	}
	return &UniqueRef{owner: Borrow(eng, owner)}
}

// Owner returns the handle of the owning object.
func (u *UniqueRef) Owner() native.Handle {
	u.mustBeLive()
	return u.owner.Handle()
}

// Guard returns an error if the wrapper was released. Accessors on
// unique-discipline objects call it before touching aliased state.
func (u *UniqueRef) Guard() error {
	if u.released {
		return fmt.Errorf("unique wrapper released (owner %d)", u.owner.h)
	}
	return nil
}

// Release drops the owner reference. Idempotent calls panic, matching
// SharedRef.
func (u *UniqueRef) Release() {
	if u.released {
		panic("object: double release of unique wrapper")
	}
	u.released = true
	u.owner.Release()
}

// Released reports whether Release was called.
func (u *UniqueRef) Released() bool {
	return u.released
}

func (u *UniqueRef) mustBeLive() {
	if u.released {
		panic("object: use of released unique wrapper")
	}
}
