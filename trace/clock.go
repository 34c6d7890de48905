// Package trace implements the trace data model: schema objects
// (TraceClass, StreamClass, EventClass, ClockClass) and their runtime
// instances (Trace, Stream, Packet, Event, ClockSnapshot), built on the
// shared/unique ownership model of the object package.
package trace

import (
	"math/big"

	"github.com/antmicro/libbtrace/errors"
	"github.com/antmicro/libbtrace/native"
	"github.com/antmicro/libbtrace/object"
)

// ClockClass describes a clock: frequency in Hz, offset from origin,
// precision in cycles. The origin is the Unix epoch unless unset.
type ClockClass struct {
	ref *object.SharedRef

	name              string
	frequency         uint64
	offsetSeconds     int64
	offsetCycles      uint64
	precision         uint64
	originIsUnixEpoch bool
	userAttr          map[string]any
}

// ClockClassOptions configures NewClockClass. The zero value gives a
// 1 GHz clock with a Unix epoch origin.
type ClockClassOptions struct {
	Name              string
	Frequency         uint64 // defaults to 1_000_000_000
	OffsetSeconds     int64
	OffsetCycles      uint64
	Precision         uint64
	OriginIsUnixEpoch *bool // defaults to true
	UserAttributes    map[string]any
}

// NewClockClass creates a clock class.
func NewClockClass(eng *native.Engine, opts ClockClassOptions) (*ClockClass, error) {
	freq := opts.Frequency
	if freq == 0 {
		freq = 1_000_000_000
	}
	if opts.OffsetCycles >= freq {
		return nil, errors.Invalidf("offset cycles %d not below frequency %d", opts.OffsetCycles, freq)
	}

	origin := true
	if opts.OriginIsUnixEpoch != nil {
		origin = *opts.OriginIsUnixEpoch
	}

	cc := &ClockClass{
		name:              opts.Name,
		frequency:         freq,
		offsetSeconds:     opts.OffsetSeconds,
		offsetCycles:      opts.OffsetCycles,
		precision:         opts.Precision,
		originIsUnixEpoch: origin,
		userAttr:          opts.UserAttributes,
	}
	cc.ref = object.Move(eng, eng.Allocate("clock-class", nil))
	return cc, nil
}

// Name returns the clock class name.
func (cc *ClockClass) Name() string { return cc.name }

// Frequency returns the clock frequency in Hz.
func (cc *ClockClass) Frequency() uint64 { return cc.frequency }

// Precision returns the clock precision in cycles.
func (cc *ClockClass) Precision() uint64 { return cc.precision }

// OriginIsUnixEpoch reports whether the clock origin is the Unix epoch.
func (cc *ClockClass) OriginIsUnixEpoch() bool { return cc.originIsUnixEpoch }

// UserAttributes returns the clock class's user attributes.
func (cc *ClockClass) UserAttributes() map[string]any { return cc.userAttr }

// Handle exposes the native handle for ownership wiring.
func (cc *ClockClass) Handle() native.Handle { return cc.ref.Handle() }

// Release drops the clock class's reference.
func (cc *ClockClass) Release() { cc.ref.Release() }

// CyclesToNSFromOrigin converts a cycle count to nanoseconds from the
// clock's origin. A result outside the signed 64-bit range is an
// overflow error.
func (cc *ClockClass) CyclesToNSFromOrigin(cycles uint64) (int64, error) {
	// ns = (offsetSeconds * 1e9) + (offsetCycles + cycles) * 1e9 / freq
	// computed in big arithmetic so the overflow check is exact.
	ns := new(big.Int).SetUint64(cycles)
	ns.Add(ns, new(big.Int).SetUint64(cc.offsetCycles))
	ns.Mul(ns, big.NewInt(1_000_000_000))
	ns.Div(ns, new(big.Int).SetUint64(cc.frequency))
	ns.Add(ns, new(big.Int).Mul(big.NewInt(cc.offsetSeconds), big.NewInt(1_000_000_000)))

	if !ns.IsInt64() {
		return 0, errors.WrapInvalid(errors.ErrOverflow, "ClockClass",
			"CyclesToNSFromOrigin", "ns conversion")
	}
	return ns.Int64(), nil
}

// ClockSnapshot is a clock-class-relative cycle count attached to a
// message. It is unique-owned: valid only while the owning message is
// alive.
type ClockSnapshot struct {
	owner      *object.UniqueRef
	clockClass *ClockClass
	value      uint64
}

// NewClockSnapshot attaches a snapshot of cc at value to the object
// identified by owner, typically a message.
func NewClockSnapshot(eng *native.Engine, owner native.Handle, cc *ClockClass, value uint64) *ClockSnapshot {
	return &ClockSnapshot{
		owner:      object.Adopt(eng, owner),
		clockClass: cc,
		value:      value,
	}
}

// ClockClass returns the snapshot's clock class.
func (cs *ClockSnapshot) ClockClass() (*ClockClass, error) {
	if err := cs.owner.Guard(); err != nil {
		return nil, errors.WrapInvalid(err, "ClockSnapshot", "ClockClass", "lifetime check")
	}
	return cs.clockClass, nil
}

// Value returns the snapshot's value in clock cycles.
func (cs *ClockSnapshot) Value() (uint64, error) {
	if err := cs.owner.Guard(); err != nil {
		return 0, errors.WrapInvalid(err, "ClockSnapshot", "Value", "lifetime check")
	}
	return cs.value, nil
}

// NSFromOrigin converts the snapshot to nanoseconds from the clock's
// origin.
func (cs *ClockSnapshot) NSFromOrigin() (int64, error) {
	if err := cs.owner.Guard(); err != nil {
		return 0, errors.WrapInvalid(err, "ClockSnapshot", "NSFromOrigin", "lifetime check")
	}
	return cs.clockClass.CyclesToNSFromOrigin(cs.value)
}

// Release drops the snapshot's owner reference.
func (cs *ClockSnapshot) Release() { cs.owner.Release() }
