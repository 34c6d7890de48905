package graph

import "sync/atomic"

// Interrupter is a set-once flag shared between a graph, its
// components and any query executor. Long operations poll it and bail
// out with a transient error when it is set.
type Interrupter struct {
	set atomic.Bool
}

// NewInterrupter returns an unset interrupter.
func NewInterrupter() *Interrupter { return &Interrupter{} }

// Set raises the flag. There is no way to lower it again.
func (i *Interrupter) Set() { i.set.Store(true) }

// IsSet reports whether the flag was raised.
func (i *Interrupter) IsSet() bool { return i.set.Load() }
