package trace

import (
	"github.com/google/uuid"

	"github.com/antmicro/libbtrace/errors"
	"github.com/antmicro/libbtrace/field"
	"github.com/antmicro/libbtrace/native"
	"github.com/antmicro/libbtrace/object"
)

// Trace is a runtime instance of a TraceClass. It owns streams keyed
// by id and carries an environment: an ordered mapping from string
// keys to signed-integer or string values, settable but not deletable.
type Trace struct {
	tc        *TraceClass
	parentRef *object.SharedRef
	ref       *object.SharedRef

	name string
	uid  *uuid.UUID

	envKeys   []string
	envValues map[string]any

	streams      map[uint64]*Stream
	nextStreamID map[uint64]uint64 // per stream class
	userAttr     map[string]any
	listeners    destructionListeners
}

// TraceOptions configures TraceClass.NewTrace.
type TraceOptions struct {
	Name           string
	UUID           *uuid.UUID
	Environment    map[string]any // validated: int64/int or string values
	UserAttributes map[string]any
}

// NewTrace instantiates a trace of this class.
func (tc *TraceClass) NewTrace(opts TraceOptions) (*Trace, error) {
	t := &Trace{
		tc:           tc,
		parentRef:    tc.ref.Clone(),
		name:         opts.Name,
		uid:          opts.UUID,
		envValues:    make(map[string]any),
		streams:      make(map[uint64]*Stream),
		nextStreamID: make(map[uint64]uint64),
		userAttr:     opts.UserAttributes,
	}

	h := tc.eng.Allocate("trace", func() {
		t.listeners.fire()
		t.parentRef.Release()
	})
	t.ref = object.Move(tc.eng, h)

	for key, value := range opts.Environment {
		if err := t.SetEnvironmentEntry(key, value); err != nil {
			t.ref.Release()
			return nil, err
		}
	}
	return t, nil
}

// Class returns the trace's class.
func (t *Trace) Class() *TraceClass { return t.tc }

// Name returns the trace name.
func (t *Trace) Name() string { return t.name }

// UUID returns the trace UUID, possibly nil.
func (t *Trace) UUID() *uuid.UUID { return t.uid }

// UserAttributes returns the trace's user attributes.
func (t *Trace) UserAttributes() map[string]any { return t.userAttr }

// SetEnvironmentEntry sets one environment entry. Values must be
// signed integers or strings. Entries cannot be deleted, only
// overwritten.
func (t *Trace) SetEnvironmentEntry(key string, value any) error {
	if key == "" {
		return errors.Invalidf("environment key is empty")
	}

	switch v := value.(type) {
	case int:
		value = int64(v)
	case int64:
	case string:
	default:
		return errors.Invalidf("environment value for %q is neither a signed integer nor a string", key)
	}

	if _, exists := t.envValues[key]; !exists {
		t.envKeys = append(t.envKeys, key)
	}
	t.envValues[key] = value
	return nil
}

// EnvironmentEntry returns the value for a key.
func (t *Trace) EnvironmentEntry(key string) (any, bool) {
	v, ok := t.envValues[key]
	return v, ok
}

// EnvironmentKeys returns the environment keys in insertion order.
func (t *Trace) EnvironmentKeys() []string {
	out := make([]string, len(t.envKeys))
	copy(out, t.envKeys)
	return out
}

// StreamCount returns the number of streams.
func (t *Trace) StreamCount() int { return len(t.streams) }

// StreamByID returns the stream with the given id.
func (t *Trace) StreamByID(id uint64) (*Stream, error) {
	s, ok := t.streams[id]
	if !ok {
		return nil, errors.Invalidf("no stream with id %d", id)
	}
	return s, nil
}

// StreamOptions configures Trace.CreateStream.
type StreamOptions struct {
	// ID must be set iff the stream class does not assign automatic
	// stream ids.
	ID             *uint64
	Name           string
	UserAttributes map[string]any
}

// CreateStream creates a stream of the given class within this trace.
func (t *Trace) CreateStream(sc *StreamClass, opts StreamOptions) (*Stream, error) {
	if sc == nil {
		return nil, errors.Invalidf("stream class is nil")
	}
	if sc.tc != t.tc {
		return nil, errors.Invalidf("stream class belongs to a different trace class")
	}

	var id uint64
	if sc.assignsAutomaticStreamID {
		if opts.ID != nil {
			return nil, errors.Invalidf("id provided, but stream class assigns automatic stream ids")
		}
		id = t.nextStreamID[sc.id]
		for {
			if _, exists := t.streams[id]; !exists {
				break
			}
			id++
		}
		t.nextStreamID[sc.id] = id + 1
	} else {
		if opts.ID == nil {
			return nil, errors.Invalidf("id not provided, but stream class does not assign automatic stream ids")
		}
		id = *opts.ID
		if _, exists := t.streams[id]; exists {
			return nil, errors.Invalidf("duplicate stream id %d", id)
		}
	}

	s := &Stream{
		trace:    t,
		sc:       sc,
		id:       id,
		name:     opts.Name,
		userAttr: opts.UserAttributes,
	}
	s.parentRef = t.ref.Clone()
	s.classRef = sc.ref.Clone()

	h := t.tc.eng.Allocate("stream", func() {
		s.parentRef.Release()
		s.classRef.Release()
	})
	s.ref = object.Move(t.tc.eng, h)
	t.streams[id] = s
	return s, nil
}

// AddDestructionListener registers a one-shot callback invoked when
// the trace is destroyed.
func (t *Trace) AddDestructionListener(fn func()) (ListenerHandle, error) {
	return t.listeners.add(fn)
}

// RemoveDestructionListener removes a previously registered listener.
func (t *Trace) RemoveDestructionListener(h ListenerHandle) error {
	return t.listeners.remove(h)
}

// Handle exposes the native handle for ownership wiring.
func (t *Trace) Handle() native.Handle { return t.ref.Handle() }

// Release drops the trace's own reference.
func (t *Trace) Release() { t.ref.Release() }

// Stream is one ordered sub-sequence of events within a trace.
type Stream struct {
	trace     *Trace
	sc        *StreamClass
	parentRef *object.SharedRef
	classRef  *object.SharedRef
	ref       *object.SharedRef

	id       uint64
	name     string
	userAttr map[string]any
}

// Class returns the stream's class.
func (s *Stream) Class() *StreamClass { return s.sc }

// Trace returns the owning trace.
func (s *Stream) Trace() *Trace { return s.trace }

// ID returns the stream id.
func (s *Stream) ID() uint64 { return s.id }

// Name returns the stream name.
func (s *Stream) Name() string { return s.name }

// UserAttributes returns the stream's user attributes.
func (s *Stream) UserAttributes() map[string]any { return s.userAttr }

// CreatePacket creates a packet within this stream. The stream's class
// must support packets.
func (s *Stream) CreatePacket() (*Packet, error) {
	if !s.sc.supportsPackets {
		return nil, errors.Invalidf("stream class %d does not support packets", s.sc.id)
	}

	p := &Packet{stream: s, parentRef: s.ref.Clone()}

	if fc := s.sc.packetContextFieldClass; fc != nil {
		ctx, err := field.NewField(fc)
		if err != nil {
			p.parentRef.Release()
			return nil, err
		}
		p.contextField = ctx
	}

	h := s.trace.tc.eng.Allocate("packet", p.parentRef.Release)
	p.ref = object.Move(s.trace.tc.eng, h)
	return p, nil
}

// Handle exposes the native handle for ownership wiring.
func (s *Stream) Handle() native.Handle { return s.ref.Handle() }

// Release drops the stream's own reference.
func (s *Stream) Release() { s.ref.Release() }

// Packet is an optional grouping of events within a stream, carrying
// its own context fields.
type Packet struct {
	stream    *Stream
	parentRef *object.SharedRef
	ref       *object.SharedRef

	contextField *field.Field
}

// Stream returns the owning stream.
func (p *Packet) Stream() *Stream { return p.stream }

// ContextField returns the packet context field, possibly nil.
func (p *Packet) ContextField() *field.Field { return p.contextField }

// Handle exposes the native handle for ownership wiring.
func (p *Packet) Handle() native.Handle { return p.ref.Handle() }

// Release drops the packet's own reference.
func (p *Packet) Release() { p.ref.Release() }

// Event is one recorded occurrence. Events are unique-discipline
// objects: they are created by message-creation methods and are valid
// only while the owning message is alive.
type Event struct {
	owner *object.UniqueRef

	ec     *EventClass
	stream *Stream
	packet *Packet

	payloadField         *field.Field
	specificContextField *field.Field
	commonContextField   *field.Field
}

// NewEvent creates an event owned by the object behind owner. It is
// called by message-creation methods, not by user code.
func NewEvent(eng *native.Engine, owner native.Handle, ec *EventClass, stream *Stream, packet *Packet) (*Event, error) {
	if ec == nil {
		return nil, errors.Invalidf("event class is nil")
	}
	if stream == nil {
		return nil, errors.Invalidf("stream is nil")
	}

	ev := &Event{
		owner:  object.Adopt(eng, owner),
		ec:     ec,
		stream: stream,
		packet: packet,
	}

	alloc := func(fc *field.Class, dst **field.Field) error {
		if fc == nil {
			return nil
		}
		f, err := field.NewField(fc)
		if err != nil {
			return err
		}
		*dst = f
		return nil
	}
	if err := alloc(ec.payloadFieldClass, &ev.payloadField); err != nil {
		ev.owner.Release()
		return nil, err
	}
	if err := alloc(ec.specificContextFieldClass, &ev.specificContextField); err != nil {
		ev.owner.Release()
		return nil, err
	}
	if err := alloc(ec.sc.eventCommonContextFieldClass, &ev.commonContextField); err != nil {
		ev.owner.Release()
		return nil, err
	}
	return ev, nil
}

// Class returns the event's class.
func (e *Event) Class() (*EventClass, error) {
	if err := e.owner.Guard(); err != nil {
		return nil, errors.WrapInvalid(err, "Event", "Class", "lifetime check")
	}
	return e.ec, nil
}

// Stream returns the stream the event belongs to.
func (e *Event) Stream() (*Stream, error) {
	if err := e.owner.Guard(); err != nil {
		return nil, errors.WrapInvalid(err, "Event", "Stream", "lifetime check")
	}
	return e.stream, nil
}

// Packet returns the packet the event belongs to, nil when the stream
// class has no packet support.
func (e *Event) Packet() (*Packet, error) {
	if err := e.owner.Guard(); err != nil {
		return nil, errors.WrapInvalid(err, "Event", "Packet", "lifetime check")
	}
	return e.packet, nil
}

// PayloadField returns the event payload field, possibly nil.
func (e *Event) PayloadField() (*field.Field, error) {
	if err := e.owner.Guard(); err != nil {
		return nil, errors.WrapInvalid(err, "Event", "PayloadField", "lifetime check")
	}
	return e.payloadField, nil
}

// SpecificContextField returns the specific context field, possibly nil.
func (e *Event) SpecificContextField() (*field.Field, error) {
	if err := e.owner.Guard(); err != nil {
		return nil, errors.WrapInvalid(err, "Event", "SpecificContextField", "lifetime check")
	}
	return e.specificContextField, nil
}

// CommonContextField returns the common context field, possibly nil.
func (e *Event) CommonContextField() (*field.Field, error) {
	if err := e.owner.Guard(); err != nil {
		return nil, errors.WrapInvalid(err, "Event", "CommonContextField", "lifetime check")
	}
	return e.commonContextField, nil
}

// Release drops the event's owner reference.
func (e *Event) Release() { e.owner.Release() }
