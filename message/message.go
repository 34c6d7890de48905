// Package message defines the tagged union of messages that flow
// between components, and the clock-snapshot availability rules each
// message kind enforces against its stream class.
package message

import (
	"fmt"

	"github.com/antmicro/libbtrace/errors"
	"github.com/antmicro/libbtrace/native"
	"github.com/antmicro/libbtrace/object"
	"github.com/antmicro/libbtrace/trace"
)

// Kind discriminates the message union.
type Kind int

const (
	KindEvent Kind = iota
	KindStreamBeginning
	KindStreamEnd
	KindPacketBeginning
	KindPacketEnd
	KindDiscardedEvents
	KindDiscardedPackets
	KindMessageIteratorInactivity
)

// String returns the kind name used in logs and metrics labels.
func (k Kind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindStreamBeginning:
		return "stream-beginning"
	case KindStreamEnd:
		return "stream-end"
	case KindPacketBeginning:
		return "packet-beginning"
	case KindPacketEnd:
		return "packet-end"
	case KindDiscardedEvents:
		return "discarded-events"
	case KindDiscardedPackets:
		return "discarded-packets"
	case KindMessageIteratorInactivity:
		return "message-iterator-inactivity"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ErrNoDefaultClockClass reports an access to a default clock snapshot
// on a message whose stream class carries no default clock class.
var ErrNoDefaultClockClass = errors.Invalidf("stream class has no default clock class")

// Message is one element of a component-to-component flow. Exactly the
// fields relevant to its Kind are set; the rest are nil.
type Message struct {
	ref  *object.SharedRef
	kind Kind

	event  *trace.Event
	stream *trace.Stream
	packet *trace.Packet

	// defaultCS is nil when the snapshot is absent or unknown.
	defaultCS       *trace.ClockSnapshot
	unknownSnapshot bool
	beginCS, endCS  *trace.ClockSnapshot
	count           *uint64
	inactivityCC    *trace.ClockClass

	// life is shared between a message and its clones so the
	// unique-discipline children stay valid until the last wrapper
	// releases.
	life *lifetime
}

// lifetime counts the wrappers (owner plus clones) sharing a message
// and holds the children torn down when the last one releases.
type lifetime struct {
	wrappers int
	owned    []releaser
}

// Kind returns the message kind.
func (m *Message) Kind() Kind { return m.kind }

// Handle returns the message's native handle.
func (m *Message) Handle() native.Handle { return m.ref.Handle() }

// Clone acquires a new reference to the same message. The clone shares
// the attached event and clock snapshots with the original.
func (m *Message) Clone() *Message {
	c := *m
	c.ref = m.ref.Clone()
	m.life.wrappers++
	return &c
}

// Release drops this wrapper's reference. When the last wrapper goes,
// the attached event and clock snapshots are released too, and their
// lifetime guards fail afterwards.
func (m *Message) Release() {
	m.life.wrappers--
	if m.life.wrappers == 0 {
		for _, child := range m.life.owned {
			child.Release()
		}
		m.life.owned = nil
	}
	m.ref.Release()
}

// Event returns the event of an event message.
func (m *Message) Event() (*trace.Event, error) {
	if m.kind != KindEvent {
		return nil, errors.Invalidf("%s message has no event", m.kind)
	}
	return m.event, nil
}

// Stream returns the stream of a stream or discarded message.
func (m *Message) Stream() (*trace.Stream, error) {
	if m.stream == nil {
		return nil, errors.Invalidf("%s message has no stream", m.kind)
	}
	return m.stream, nil
}

// Packet returns the packet of a packet boundary message.
func (m *Message) Packet() (*trace.Packet, error) {
	if m.kind != KindPacketBeginning && m.kind != KindPacketEnd {
		return nil, errors.Invalidf("%s message has no packet", m.kind)
	}
	return m.packet, nil
}

// DefaultClockSnapshot returns the message's default clock snapshot.
// The second result is false when the snapshot state is unknown, which
// only stream boundary messages allow.
func (m *Message) DefaultClockSnapshot() (*trace.ClockSnapshot, bool, error) {
	switch m.kind {
	case KindEvent, KindStreamBeginning, KindStreamEnd,
		KindPacketBeginning, KindPacketEnd, KindMessageIteratorInactivity:
	default:
		return nil, false, errors.Invalidf("%s message has no default clock snapshot", m.kind)
	}
	if m.kind != KindMessageIteratorInactivity && m.streamClockClass() == nil {
		return nil, false, ErrNoDefaultClockClass
	}
	if m.unknownSnapshot {
		return nil, false, nil
	}
	return m.defaultCS, true, nil
}

// BeginningDefaultClockSnapshot returns the beginning snapshot of a
// discarded message.
func (m *Message) BeginningDefaultClockSnapshot() (*trace.ClockSnapshot, error) {
	if m.kind != KindDiscardedEvents && m.kind != KindDiscardedPackets {
		return nil, errors.Invalidf("%s message has no beginning clock snapshot", m.kind)
	}
	if m.streamClockClass() == nil {
		return nil, ErrNoDefaultClockClass
	}
	return m.beginCS, nil
}

// EndDefaultClockSnapshot returns the end snapshot of a discarded
// message.
func (m *Message) EndDefaultClockSnapshot() (*trace.ClockSnapshot, error) {
	if m.kind != KindDiscardedEvents && m.kind != KindDiscardedPackets {
		return nil, errors.Invalidf("%s message has no end clock snapshot", m.kind)
	}
	if m.streamClockClass() == nil {
		return nil, ErrNoDefaultClockClass
	}
	return m.endCS, nil
}

// Count returns the discarded item count, or nil when unknown.
func (m *Message) Count() (*uint64, error) {
	if m.kind != KindDiscardedEvents && m.kind != KindDiscardedPackets {
		return nil, errors.Invalidf("%s message has no count", m.kind)
	}
	return m.count, nil
}

func (m *Message) streamClockClass() *trace.ClockClass {
	if m.stream == nil {
		return m.inactivityCC
	}
	return m.stream.Class().DefaultClockClass()
}

// NSFromOrigin returns the default clock snapshot converted to
// nanoseconds from origin, and false when the message carries no
// usable snapshot. Used by the muxer and trimmer ordering logic.
func (m *Message) NSFromOrigin() (int64, bool) {
	var cs *trace.ClockSnapshot
	switch m.kind {
	case KindDiscardedEvents, KindDiscardedPackets:
		cs = m.beginCS
	default:
		cs = m.defaultCS
	}
	if cs == nil {
		return 0, false
	}
	ns, err := cs.NSFromOrigin()
	if err != nil {
		return 0, false
	}
	return ns, true
}
