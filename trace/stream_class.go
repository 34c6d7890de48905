package trace

import (
	"log/slog"
	"sort"

	"github.com/antmicro/libbtrace/errors"
	"github.com/antmicro/libbtrace/field"
	"github.com/antmicro/libbtrace/native"
	"github.com/antmicro/libbtrace/object"
)

// StreamClass is the static schema of one stream kind within a trace
// class: its clock, packet support flags, context schemas and the
// event classes it owns.
type StreamClass struct {
	tc        *TraceClass
	parentRef *object.SharedRef
	ref       *object.SharedRef

	id   uint64
	name string

	assignsAutomaticEventClassID bool
	assignsAutomaticStreamID     bool

	supportsPackets                          bool
	packetsHaveBeginningDefaultClockSnapshot bool
	packetsHaveEndDefaultClockSnapshot       bool

	supportsDiscardedEvents                  bool
	discardedEventsHaveDefaultClockSnapshots bool
	supportsDiscardedPackets                 bool
	discardedPacketsHaveDefaultClockSnapshot bool

	defaultClockClass            *ClockClass
	packetContextFieldClass      *field.Class
	eventCommonContextFieldClass *field.Class

	eventClasses     map[uint64]*EventClass
	nextEventClassID uint64
	userAttr         map[string]any
	listeners        destructionListeners
}

// StreamClassOptions configures TraceClass.CreateStreamClass.
type StreamClassOptions struct {
	// ID must be set iff the trace class does not assign automatic
	// stream class ids.
	ID             *uint64
	Name           string
	UserAttributes map[string]any

	PacketContextFieldClass      *field.Class
	EventCommonContextFieldClass *field.Class
	DefaultClockClass            *ClockClass

	// AssignsAutomaticEventClassID and AssignsAutomaticStreamID
	// default to true.
	AssignsAutomaticEventClassID *bool
	AssignsAutomaticStreamID     *bool

	SupportsPackets                          bool
	PacketsHaveBeginningDefaultClockSnapshot bool
	PacketsHaveEndDefaultClockSnapshot       bool

	SupportsDiscardedEvents                  bool
	DiscardedEventsHaveDefaultClockSnapshots bool
	SupportsDiscardedPackets                 bool
	DiscardedPacketsHaveDefaultClockSnapshot bool
}

// validate checks the flag dependencies before any object is created.
func (o StreamClassOptions) validate() error {
	if (o.PacketsHaveBeginningDefaultClockSnapshot || o.PacketsHaveEndDefaultClockSnapshot) &&
		!o.SupportsPackets {
		return errors.Invalidf("packet clock snapshot flags set, but stream class does not support packets")
	}
	if (o.PacketsHaveBeginningDefaultClockSnapshot || o.PacketsHaveEndDefaultClockSnapshot) &&
		o.DefaultClockClass == nil {
		return errors.Invalidf("packet clock snapshot flags set, but stream class has no default clock class")
	}
	if o.PacketContextFieldClass != nil && !o.SupportsPackets {
		return errors.Invalidf("packet context field class set, but stream class does not support packets")
	}
	if o.DiscardedEventsHaveDefaultClockSnapshots && !o.SupportsDiscardedEvents {
		return errors.Invalidf("discarded events clock snapshot flag set, but stream class does not support discarded events")
	}
	if o.DiscardedEventsHaveDefaultClockSnapshots && o.DefaultClockClass == nil {
		return errors.Invalidf("discarded events clock snapshot flag set, but stream class has no default clock class")
	}
	if o.DiscardedPacketsHaveDefaultClockSnapshot && !o.SupportsDiscardedPackets {
		return errors.Invalidf("discarded packets clock snapshot flag set, but stream class does not support discarded packets")
	}
	if o.DiscardedPacketsHaveDefaultClockSnapshot && o.DefaultClockClass == nil {
		return errors.Invalidf("discarded packets clock snapshot flag set, but stream class has no default clock class")
	}
	if o.SupportsDiscardedPackets && !o.SupportsPackets {
		return errors.Invalidf("discarded packets support requires packet support")
	}
	return nil
}

func newStreamClass(tc *TraceClass, id uint64, opts StreamClassOptions) *StreamClass {
	autoEC := true
	if opts.AssignsAutomaticEventClassID != nil {
		autoEC = *opts.AssignsAutomaticEventClassID
	}
	autoStream := true
	if opts.AssignsAutomaticStreamID != nil {
		autoStream = *opts.AssignsAutomaticStreamID
	}

	sc := &StreamClass{
		tc:                           tc,
		parentRef:                    tc.ref.Clone(),
		id:                           id,
		name:                         opts.Name,
		assignsAutomaticEventClassID: autoEC,
		assignsAutomaticStreamID:     autoStream,

		supportsPackets:                          opts.SupportsPackets,
		packetsHaveBeginningDefaultClockSnapshot: opts.PacketsHaveBeginningDefaultClockSnapshot,
		packetsHaveEndDefaultClockSnapshot:       opts.PacketsHaveEndDefaultClockSnapshot,

		supportsDiscardedEvents:                  opts.SupportsDiscardedEvents,
		discardedEventsHaveDefaultClockSnapshots: opts.DiscardedEventsHaveDefaultClockSnapshots,
		supportsDiscardedPackets:                 opts.SupportsDiscardedPackets,
		discardedPacketsHaveDefaultClockSnapshot: opts.DiscardedPacketsHaveDefaultClockSnapshot,

		defaultClockClass:            opts.DefaultClockClass,
		packetContextFieldClass:      opts.PacketContextFieldClass,
		eventCommonContextFieldClass: opts.EventCommonContextFieldClass,

		eventClasses: make(map[uint64]*EventClass),
		userAttr:     opts.UserAttributes,
	}

	// The stream class keeps its trace class alive; the back
	// reference is dropped when the stream class itself dies.
	h := tc.eng.Allocate("stream-class", func() {
		sc.listeners.fire()
		sc.parentRef.Release()
	})
	sc.ref = object.Move(tc.eng, h)
	return sc
}

// TraceClass returns the owning trace class.
func (sc *StreamClass) TraceClass() *TraceClass { return sc.tc }

// ID returns the stream class id.
func (sc *StreamClass) ID() uint64 { return sc.id }

// Name returns the stream class name.
func (sc *StreamClass) Name() string { return sc.name }

// AssignsAutomaticEventClassID reports the event class id assignment mode.
func (sc *StreamClass) AssignsAutomaticEventClassID() bool { return sc.assignsAutomaticEventClassID }

// AssignsAutomaticStreamID reports the stream id assignment mode.
func (sc *StreamClass) AssignsAutomaticStreamID() bool { return sc.assignsAutomaticStreamID }

// SupportsPackets reports whether streams of this class carry packets.
func (sc *StreamClass) SupportsPackets() bool { return sc.supportsPackets }

// PacketsHaveBeginningDefaultClockSnapshot reports the packet beginning
// snapshot flag.
func (sc *StreamClass) PacketsHaveBeginningDefaultClockSnapshot() bool {
	return sc.packetsHaveBeginningDefaultClockSnapshot
}

// PacketsHaveEndDefaultClockSnapshot reports the packet end snapshot flag.
func (sc *StreamClass) PacketsHaveEndDefaultClockSnapshot() bool {
	return sc.packetsHaveEndDefaultClockSnapshot
}

// SupportsDiscardedEvents reports the discarded events support flag.
func (sc *StreamClass) SupportsDiscardedEvents() bool { return sc.supportsDiscardedEvents }

// DiscardedEventsHaveDefaultClockSnapshots reports the discarded events
// snapshot flag.
func (sc *StreamClass) DiscardedEventsHaveDefaultClockSnapshots() bool {
	return sc.discardedEventsHaveDefaultClockSnapshots
}

// SupportsDiscardedPackets reports the discarded packets support flag.
func (sc *StreamClass) SupportsDiscardedPackets() bool { return sc.supportsDiscardedPackets }

// DiscardedPacketsHaveDefaultClockSnapshots reports the discarded
// packets snapshot flag.
func (sc *StreamClass) DiscardedPacketsHaveDefaultClockSnapshots() bool {
	return sc.discardedPacketsHaveDefaultClockSnapshot
}

// DefaultClockClass returns the default clock class, possibly nil.
func (sc *StreamClass) DefaultClockClass() *ClockClass { return sc.defaultClockClass }

// PacketContextFieldClass returns the packet context schema, possibly nil.
func (sc *StreamClass) PacketContextFieldClass() *field.Class { return sc.packetContextFieldClass }

// EventCommonContextFieldClass returns the common context schema,
// possibly nil.
func (sc *StreamClass) EventCommonContextFieldClass() *field.Class {
	return sc.eventCommonContextFieldClass
}

// UserAttributes returns the stream class's user attributes.
func (sc *StreamClass) UserAttributes() map[string]any { return sc.userAttr }

// EventClassCount returns the number of event classes.
func (sc *StreamClass) EventClassCount() int { return len(sc.eventClasses) }

// EventClassByID returns the event class with the given id.
func (sc *StreamClass) EventClassByID(id uint64) (*EventClass, error) {
	ec, ok := sc.eventClasses[id]
	if !ok {
		return nil, errors.Invalidf("no event class with id %d", id)
	}
	return ec, nil
}

// EventClassIDs returns the event class ids in increasing order.
func (sc *StreamClass) EventClassIDs() []uint64 {
	ids := make([]uint64, 0, len(sc.eventClasses))
	for id := range sc.eventClasses {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// EventClassOptions configures StreamClass.CreateEventClass.
type EventClassOptions struct {
	// ID must be set iff the stream class does not assign automatic
	// event class ids.
	ID             *uint64
	Name           string
	LogLevel       *slog.Level
	EMFURI         string
	UserAttributes map[string]any

	PayloadFieldClass         *field.Class
	SpecificContextFieldClass *field.Class
}

// CreateEventClass creates an event class owned by this stream class.
func (sc *StreamClass) CreateEventClass(opts EventClassOptions) (*EventClass, error) {
	var id uint64
	if sc.assignsAutomaticEventClassID {
		if opts.ID != nil {
			return nil, errors.Invalidf("id provided, but stream class assigns automatic event class ids")
		}
		id = sc.nextEventClassID
		sc.nextEventClassID++
	} else {
		if opts.ID == nil {
			return nil, errors.Invalidf("id not provided, but stream class does not assign automatic event class ids")
		}
		id = *opts.ID
		if _, exists := sc.eventClasses[id]; exists {
			return nil, errors.Invalidf("duplicate event class id %d", id)
		}
	}

	ec := newEventClass(sc, id, opts)
	sc.eventClasses[id] = ec
	return ec, nil
}

// AddDestructionListener registers a one-shot callback invoked when
// the stream class is destroyed.
func (sc *StreamClass) AddDestructionListener(fn func()) (ListenerHandle, error) {
	return sc.listeners.add(fn)
}

// RemoveDestructionListener removes a previously registered listener.
func (sc *StreamClass) RemoveDestructionListener(h ListenerHandle) error {
	return sc.listeners.remove(h)
}

// Handle exposes the native handle for ownership wiring.
func (sc *StreamClass) Handle() native.Handle { return sc.ref.Handle() }

// Release drops the stream class's own reference.
func (sc *StreamClass) Release() { sc.ref.Release() }
