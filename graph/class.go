package graph

import (
	"log/slog"

	"github.com/antmicro/libbtrace/errors"
)

// ComponentKind tells which side of the flow a component class sits on.
type ComponentKind int

const (
	KindSource ComponentKind = iota
	KindFilter
	KindSink
)

// String returns the kind name used in logs.
func (k ComponentKind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindFilter:
		return "filter"
	case KindSink:
		return "sink"
	default:
		return "unknown"
	}
}

// Factory instantiates the user body of a component. It receives the
// self handle first so it can surface ports before returning.
type Factory func(self *SelfComponent, cfg ComponentConfig) (UserComponent, error)

// QueryContext carries everything a class query handler may consult.
type QueryContext struct {
	Params      map[string]any
	LogLevel    slog.Level
	Interrupter *Interrupter
}

// QueryFunc answers a query on a component class for a named object.
// Unrecognized objects return errors.ErrUnknownObject.
type QueryFunc func(ctx QueryContext, object string) (any, error)

// Class describes a component class: its identity, the protocol
// versions it speaks, and the hooks that bring it to life.
type Class struct {
	Name        string
	Description string
	Kind        ComponentKind

	// MIPVersions lists the protocol versions the class supports.
	// Empty means version 0 only.
	MIPVersions []uint64

	Factory Factory
	Query   QueryFunc

	// Builtin classes reject the user object component option.
	Builtin bool
}

// SupportsMIP reports whether the class supports protocol version v.
func (c *Class) SupportsMIP(v uint64) bool {
	if len(c.MIPVersions) == 0 {
		return v == 0
	}
	for _, sv := range c.MIPVersions {
		if sv == v {
			return true
		}
	}
	return false
}

// GreatestOperativeMIPVersion returns the greatest protocol version
// every class in the set supports.
func GreatestOperativeMIPVersion(classes []*Class) (uint64, error) {
	if len(classes) == 0 {
		return 0, errors.Invalidf("no component classes given")
	}
	for v := int64(MaxMIPVersion); v >= 0; v-- {
		ok := true
		for _, c := range classes {
			if !c.SupportsMIP(uint64(v)) {
				ok = false
				break
			}
		}
		if ok {
			return uint64(v), nil
		}
	}
	return 0, errors.WrapFatal(errors.ErrNoCommonVersion, "Class", "GreatestOperativeMIPVersion",
		"intersect supported protocol versions")
}
