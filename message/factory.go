package message

import (
	"github.com/antmicro/libbtrace/errors"
	"github.com/antmicro/libbtrace/native"
	"github.com/antmicro/libbtrace/object"
	"github.com/antmicro/libbtrace/trace"
)

// SnapshotSpec says whether a message carries a default clock snapshot
// and, when it does, whether its value is known. The zero value means
// no snapshot.
type SnapshotSpec struct {
	set   bool
	known bool
	value uint64
}

// NoSnapshot carries no default clock snapshot.
func NoSnapshot() SnapshotSpec { return SnapshotSpec{} }

// UnknownSnapshot marks the snapshot state as unknown. Only stream
// boundary messages accept it.
func UnknownSnapshot() SnapshotSpec { return SnapshotSpec{set: true} }

// SnapshotAt carries a known snapshot value in clock cycles.
func SnapshotAt(value uint64) SnapshotSpec {
	return SnapshotSpec{set: true, known: true, value: value}
}

type releaser interface{ Release() }

// newMessage gives the message its native identity and acquires a
// reference on parent so it outlives the message.
func newMessage(eng *native.Engine, kind Kind, parent native.Handle) *Message {
	held := object.Borrow(eng, parent)
	h := eng.Allocate(kind.String()+"-message", held.Release)
	return &Message{ref: object.Move(eng, h), kind: kind, life: &lifetime{wrappers: 1}}
}

// NewEvent creates an event message. Called by self message iterators;
// components never construct messages directly.
func NewEvent(eng *native.Engine, ec *trace.EventClass, stream *trace.Stream, packet *trace.Packet, snap SnapshotSpec) (*Message, error) {
	if ec == nil || stream == nil {
		return nil, errors.Invalidf("event message needs an event class and a stream")
	}
	sc := stream.Class()
	if ec.StreamClass() != sc {
		return nil, errors.Invalidf("event class %d does not belong to stream class %d", ec.ID(), sc.ID())
	}
	if sc.SupportsPackets() {
		if packet == nil {
			return nil, errors.Invalidf("stream class %d supports packets, event message needs one", sc.ID())
		}
		if packet.Stream() != stream {
			return nil, errors.Invalidf("packet does not belong to stream %d", stream.ID())
		}
	} else if packet != nil {
		return nil, errors.Invalidf("stream class %d does not support packets", sc.ID())
	}
	if err := requireValue("event", sc.DefaultClockClass() != nil, snap); err != nil {
		return nil, err
	}

	m := newMessage(eng, KindEvent, stream.Handle())
	m.stream = stream
	m.packet = packet
	ev, err := trace.NewEvent(eng, m.Handle(), ec, stream, packet)
	if err != nil {
		m.Release()
		return nil, err
	}
	m.event = ev
	m.life.owned = append(m.life.owned, ev)
	m.attachSnapshot(eng, sc.DefaultClockClass(), snap)
	return m, nil
}

// NewStreamBeginning creates a stream beginning message. Its default
// clock snapshot starts in the unknown state unless a value is given.
func NewStreamBeginning(eng *native.Engine, stream *trace.Stream, snap SnapshotSpec) (*Message, error) {
	return newStreamBoundary(eng, KindStreamBeginning, stream, snap)
}

// NewStreamEnd creates a stream end message.
func NewStreamEnd(eng *native.Engine, stream *trace.Stream, snap SnapshotSpec) (*Message, error) {
	return newStreamBoundary(eng, KindStreamEnd, stream, snap)
}

func newStreamBoundary(eng *native.Engine, kind Kind, stream *trace.Stream, snap SnapshotSpec) (*Message, error) {
	if stream == nil {
		return nil, errors.Invalidf("%s message needs a stream", kind)
	}
	cc := stream.Class().DefaultClockClass()
	if cc == nil && snap.set {
		return nil, errors.Invalidf("stream class %d has no default clock class", stream.Class().ID())
	}

	m := newMessage(eng, kind, stream.Handle())
	m.stream = stream
	if cc != nil && !snap.known {
		// Boundary snapshots without an explicit value stay unknown.
		m.unknownSnapshot = true
	} else {
		m.attachSnapshot(eng, cc, snap)
	}
	return m, nil
}

// NewPacketBeginning creates a packet beginning message.
func NewPacketBeginning(eng *native.Engine, packet *trace.Packet, snap SnapshotSpec) (*Message, error) {
	return newPacketBoundary(eng, KindPacketBeginning, packet, snap,
		packet != nil && packet.Stream().Class().PacketsHaveBeginningDefaultClockSnapshot())
}

// NewPacketEnd creates a packet end message.
func NewPacketEnd(eng *native.Engine, packet *trace.Packet, snap SnapshotSpec) (*Message, error) {
	return newPacketBoundary(eng, KindPacketEnd, packet, snap,
		packet != nil && packet.Stream().Class().PacketsHaveEndDefaultClockSnapshot())
}

func newPacketBoundary(eng *native.Engine, kind Kind, packet *trace.Packet, snap SnapshotSpec, needsValue bool) (*Message, error) {
	if packet == nil {
		return nil, errors.Invalidf("%s message needs a packet", kind)
	}
	if err := requireValue(kind.String(), needsValue, snap); err != nil {
		return nil, err
	}

	m := newMessage(eng, kind, packet.Handle())
	m.stream = packet.Stream()
	m.packet = packet
	m.attachSnapshot(eng, m.stream.Class().DefaultClockClass(), snap)
	return m, nil
}

// NewDiscardedEvents creates a discarded events message. count is nil
// when the number of discarded events is unknown.
func NewDiscardedEvents(eng *native.Engine, stream *trace.Stream, count *uint64, begin, end SnapshotSpec) (*Message, error) {
	if stream == nil {
		return nil, errors.Invalidf("discarded-events message needs a stream")
	}
	sc := stream.Class()
	if !sc.SupportsDiscardedEvents() {
		return nil, errors.Invalidf("stream class %d does not support discarded events", sc.ID())
	}
	return newDiscarded(eng, KindDiscardedEvents, stream, count, begin, end,
		sc.DiscardedEventsHaveDefaultClockSnapshots())
}

// NewDiscardedPackets creates a discarded packets message.
func NewDiscardedPackets(eng *native.Engine, stream *trace.Stream, count *uint64, begin, end SnapshotSpec) (*Message, error) {
	if stream == nil {
		return nil, errors.Invalidf("discarded-packets message needs a stream")
	}
	sc := stream.Class()
	if !sc.SupportsDiscardedPackets() {
		return nil, errors.Invalidf("stream class %d does not support discarded packets", sc.ID())
	}
	return newDiscarded(eng, KindDiscardedPackets, stream, count, begin, end,
		sc.DiscardedPacketsHaveDefaultClockSnapshots())
}

func newDiscarded(eng *native.Engine, kind Kind, stream *trace.Stream, count *uint64, begin, end SnapshotSpec, needSnapshots bool) (*Message, error) {
	if count != nil && *count == 0 {
		return nil, errors.Invalidf("%s count must be positive when set", kind)
	}
	if needSnapshots {
		if !begin.known || !end.known {
			return nil, errors.Invalidf("%s messages of this stream class need beginning and end clock snapshots", kind)
		}
		if begin.value > end.value {
			return nil, errors.Invalidf("%s beginning snapshot %d is after end snapshot %d", kind, begin.value, end.value)
		}
	} else if begin.set || end.set {
		return nil, errors.Invalidf("%s messages of this stream class cannot have clock snapshots", kind)
	}

	m := newMessage(eng, kind, stream.Handle())
	m.stream = stream
	m.count = count
	if needSnapshots {
		cc := stream.Class().DefaultClockClass()
		m.beginCS = trace.NewClockSnapshot(eng, m.Handle(), cc, begin.value)
		m.endCS = trace.NewClockSnapshot(eng, m.Handle(), cc, end.value)
		m.life.owned = append(m.life.owned, m.beginCS, m.endCS)
	}
	return m, nil
}

// NewInactivity creates a message-iterator-inactivity message, telling
// downstream that no message before the snapshot will arrive.
func NewInactivity(eng *native.Engine, cc *trace.ClockClass, value uint64) (*Message, error) {
	if cc == nil {
		return nil, errors.Invalidf("inactivity message needs a clock class")
	}

	held := object.Borrow(eng, cc.Handle())
	h := eng.Allocate(KindMessageIteratorInactivity.String()+"-message", held.Release)
	m := &Message{ref: object.Move(eng, h), kind: KindMessageIteratorInactivity, inactivityCC: cc}
	m.defaultCS = trace.NewClockSnapshot(eng, h, cc, value)
	m.life.owned = append(m.life.owned, m.defaultCS)
	return m, nil
}

func requireValue(what string, needsValue bool, snap SnapshotSpec) error {
	if needsValue && !snap.known {
		return errors.Invalidf("%s messages of this stream class need a default clock snapshot value", what)
	}
	if !needsValue && snap.set {
		return errors.Invalidf("%s messages of this stream class cannot have a default clock snapshot", what)
	}
	return nil
}

func (m *Message) attachSnapshot(eng *native.Engine, cc *trace.ClockClass, snap SnapshotSpec) {
	if !snap.known {
		return
	}
	m.defaultCS = trace.NewClockSnapshot(eng, m.Handle(), cc, snap.value)
	m.life.owned = append(m.life.owned, m.defaultCS)
}
