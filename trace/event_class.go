package trace

import (
	"log/slog"

	"github.com/antmicro/libbtrace/field"
	"github.com/antmicro/libbtrace/native"
	"github.com/antmicro/libbtrace/object"
)

// EventClass is the static schema of one recorded occurrence kind:
// name, payload and specific-context schemas, log level, EMF URI.
type EventClass struct {
	sc        *StreamClass
	parentRef *object.SharedRef
	ref       *object.SharedRef

	id       uint64
	name     string
	logLevel *slog.Level
	emfURI   string

	payloadFieldClass         *field.Class
	specificContextFieldClass *field.Class
	userAttr                  map[string]any
	listeners                 destructionListeners
}

func newEventClass(sc *StreamClass, id uint64, opts EventClassOptions) *EventClass {
	ec := &EventClass{
		sc:                        sc,
		parentRef:                 sc.ref.Clone(),
		id:                        id,
		name:                      opts.Name,
		logLevel:                  opts.LogLevel,
		emfURI:                    opts.EMFURI,
		payloadFieldClass:         opts.PayloadFieldClass,
		specificContextFieldClass: opts.SpecificContextFieldClass,
		userAttr:                  opts.UserAttributes,
	}

	h := sc.tc.eng.Allocate("event-class", func() {
		ec.listeners.fire()
		ec.parentRef.Release()
	})
	ec.ref = object.Move(sc.tc.eng, h)
	return ec
}

// StreamClass returns the owning stream class.
func (ec *EventClass) StreamClass() *StreamClass { return ec.sc }

// ID returns the event class id.
func (ec *EventClass) ID() uint64 { return ec.id }

// Name returns the event class name.
func (ec *EventClass) Name() string { return ec.name }

// LogLevel returns the event class log level, possibly nil.
func (ec *EventClass) LogLevel() *slog.Level { return ec.logLevel }

// EMFURI returns the Eclipse Modeling Framework URI, possibly empty.
func (ec *EventClass) EMFURI() string { return ec.emfURI }

// PayloadFieldClass returns the payload schema, possibly nil.
func (ec *EventClass) PayloadFieldClass() *field.Class { return ec.payloadFieldClass }

// SpecificContextFieldClass returns the specific context schema,
// possibly nil.
func (ec *EventClass) SpecificContextFieldClass() *field.Class { return ec.specificContextFieldClass }

// UserAttributes returns the event class's user attributes.
func (ec *EventClass) UserAttributes() map[string]any { return ec.userAttr }

// AddDestructionListener registers a one-shot callback invoked when
// the event class is destroyed.
func (ec *EventClass) AddDestructionListener(fn func()) (ListenerHandle, error) {
	return ec.listeners.add(fn)
}

// RemoveDestructionListener removes a previously registered listener.
func (ec *EventClass) RemoveDestructionListener(h ListenerHandle) error {
	return ec.listeners.remove(h)
}

// Handle exposes the native handle for ownership wiring.
func (ec *EventClass) Handle() native.Handle { return ec.ref.Handle() }

// Release drops the event class's own reference.
func (ec *EventClass) Release() { ec.ref.Release() }
