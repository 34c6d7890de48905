package graph

import (
	"log/slog"

	"github.com/antmicro/libbtrace/errors"
	"github.com/antmicro/libbtrace/message"
	"github.com/antmicro/libbtrace/native"
	"github.com/antmicro/libbtrace/trace"
)

// batchCapacity is how many messages one upstream Next call may
// return.
const batchCapacity = 15

// UserMessageIterator is the user body of a message iterator. Next
// fills the array with up to its capacity of messages. Returning
// errors.ErrEnd with an empty array ends the iterator permanently;
// errors.ErrTryAgain asks the consumer to retry later.
type UserMessageIterator interface {
	Next(msgs *MessageArray) error
}

// SeekerBeginning is an optional iterator behavior. Implementing it
// advertises the seek-beginning capability.
type SeekerBeginning interface {
	SeekBeginning() error
}

// SeekerNSFromOrigin is an optional iterator behavior. Implementing it
// advertises the seek-ns-from-origin capability.
type SeekerNSFromOrigin interface {
	SeekNSFromOrigin(ns int64) error
}

// BeginningSeekProber overrides the capability inferred from
// SeekerBeginning. It is probed on every CanSeekBeginning call.
type BeginningSeekProber interface {
	CanSeekBeginning() (bool, error)
}

// NSFromOriginSeekProber overrides the capability inferred from
// SeekerNSFromOrigin, per target timestamp.
type NSFromOriginSeekProber interface {
	CanSeekNSFromOrigin(ns int64) (bool, error)
}

// IteratorFinalizer is an optional iterator behavior invoked when the
// downstream drops the iterator.
type IteratorFinalizer interface {
	Finalize()
}

// MessageArray is the fixed-capacity batch a user iterator fills.
type MessageArray struct {
	msgs []*message.Message
	cap  int
}

func newMessageArray(capacity int) *MessageArray {
	return &MessageArray{msgs: make([]*message.Message, 0, capacity), cap: capacity}
}

// Append adds one message. It fails when the array is full; the user
// body keeps the message for the next call instead.
func (a *MessageArray) Append(m *message.Message) error {
	if len(a.msgs) >= a.cap {
		return errors.Invalidf("message array is full (%d messages)", a.cap)
	}
	a.msgs = append(a.msgs, m)
	return nil
}

// Len returns the number of appended messages.
func (a *MessageArray) Len() int { return len(a.msgs) }

// Full reports whether another Append would fail.
func (a *MessageArray) Full() bool { return len(a.msgs) >= a.cap }

type iteratorState int

const (
	stateActive iteratorState = iota
	stateEnded
	stateErrored
)

// MessageIterator is the downstream handle on a user iterator. It
// buffers upstream batches and hands out one message per Next call.
type MessageIterator struct {
	component *Component
	conn      *Connection
	user      UserMessageIterator
	log       *slog.Logger

	buf   []*message.Message
	state iteratorState
	err   error
}

func newMessageIterator(upstream *Component, conn *Connection, factory MessageIteratorFactory) (*MessageIterator, error) {
	it := &MessageIterator{
		component: upstream,
		conn:      conn,
		log:       upstream.log.With("port", conn.Upstream().Name()),
	}
	self := &SelfMessageIterator{it: it}
	user, err := factory.NewMessageIterator(self)
	if err != nil {
		return nil, errors.Wrap(err, upstream.class.Name, "NewMessageIterator", "create user iterator")
	}
	it.user = user
	return it, nil
}

// Component returns the upstream component the iterator consumes.
func (it *MessageIterator) Component() *Component { return it.component }

// Next returns the next message. It returns errors.ErrEnd once the
// upstream is exhausted and any later call repeats it.
func (it *MessageIterator) Next() (*message.Message, error) {
	switch it.state {
	case stateEnded:
		if len(it.buf) == 0 {
			return nil, errors.ErrEnd
		}
	case stateErrored:
		return nil, it.err
	}

	if len(it.buf) == 0 {
		if err := it.fetch(); err != nil {
			return nil, err
		}
		if len(it.buf) == 0 {
			return nil, errors.ErrEnd
		}
	}

	m := it.buf[0]
	it.buf = it.buf[1:]
	if met := it.component.graph.metrics; met != nil {
		met.RecordMessage(it.component.name, m.Kind().String())
	}
	return m, nil
}

func (it *MessageIterator) fetch() error {
	arr := newMessageArray(batchCapacity)
	err := it.user.Next(arr)
	if met := it.component.graph.metrics; met != nil {
		met.RecordBatch(it.component.name, arr.Len())
	}

	switch {
	case err == nil:
		if arr.Len() == 0 {
			it.state = stateErrored
			it.err = errors.WrapInvalid(
				errors.Invalidf("user iterator returned no messages and no end"),
				it.component.class.Name, "Next", "fill message batch")
			return it.err
		}
		it.buf = append(it.buf, arr.msgs...)
		return nil
	case errors.IsEnd(err):
		it.state = stateEnded
		it.buf = append(it.buf, arr.msgs...)
		return nil
	case errors.IsTransient(err):
		return err
	default:
		it.state = stateErrored
		it.err = errors.Wrap(err, it.component.class.Name, "Next", "fill message batch")
		if met := it.component.graph.metrics; met != nil {
			met.RecordComponentError(it.component.name, it.component.class.Name)
		}
		return it.err
	}
}

// CanSeekBeginning reports the seek-beginning capability. An explicit
// prober on the user body wins over interface inference, and is asked
// again on every call.
func (it *MessageIterator) CanSeekBeginning() (bool, error) {
	if p, ok := it.user.(BeginningSeekProber); ok {
		can, err := p.CanSeekBeginning()
		if err != nil {
			return false, errors.Wrap(err, it.component.class.Name, "CanSeekBeginning", "probe capability")
		}
		return can, nil
	}
	_, ok := it.user.(SeekerBeginning)
	return ok, nil
}

// SeekBeginning rewinds the iterator. Buffered messages are dropped
// before the user body seeks, so a failed seek never replays stale
// messages.
func (it *MessageIterator) SeekBeginning() error {
	can, err := it.CanSeekBeginning()
	if err != nil {
		return err
	}
	if !can {
		return errors.Invalidf("iterator on %q cannot seek beginning", it.component.name)
	}

	it.discardBuffer()
	if err := it.user.(SeekerBeginning).SeekBeginning(); err != nil {
		if errors.IsTransient(err) {
			return err
		}
		it.state = stateErrored
		it.err = errors.Wrap(err, it.component.class.Name, "SeekBeginning", "seek user iterator")
		return it.err
	}
	it.state = stateActive
	it.err = nil
	if met := it.component.graph.metrics; met != nil {
		met.RecordSeek("beginning")
	}
	return nil
}

// CanSeekNSFromOrigin reports whether the iterator can seek to ns.
func (it *MessageIterator) CanSeekNSFromOrigin(ns int64) (bool, error) {
	if p, ok := it.user.(NSFromOriginSeekProber); ok {
		can, err := p.CanSeekNSFromOrigin(ns)
		if err != nil {
			return false, errors.Wrap(err, it.component.class.Name, "CanSeekNSFromOrigin", "probe capability")
		}
		return can, nil
	}
	_, ok := it.user.(SeekerNSFromOrigin)
	return ok, nil
}

// SeekNSFromOrigin positions the iterator at the first message at or
// after ns. The local buffer is dropped before the user body seeks.
func (it *MessageIterator) SeekNSFromOrigin(ns int64) error {
	can, err := it.CanSeekNSFromOrigin(ns)
	if err != nil {
		return err
	}
	if !can {
		return errors.Invalidf("iterator on %q cannot seek ns from origin", it.component.name)
	}

	it.discardBuffer()
	if err := it.user.(SeekerNSFromOrigin).SeekNSFromOrigin(ns); err != nil {
		if errors.IsTransient(err) {
			return err
		}
		it.state = stateErrored
		it.err = errors.Wrap(err, it.component.class.Name, "SeekNSFromOrigin", "seek user iterator")
		return it.err
	}
	it.state = stateActive
	it.err = nil
	if met := it.component.graph.metrics; met != nil {
		met.RecordSeek("ns-from-origin")
	}
	return nil
}

func (it *MessageIterator) discardBuffer() {
	for _, m := range it.buf {
		m.Release()
	}
	it.buf = nil
}

// Close finalizes the user body and drops any buffered messages.
func (it *MessageIterator) Close() {
	it.discardBuffer()
	if f, ok := it.user.(IteratorFinalizer); ok {
		f.Finalize()
	}
}

// SelfMessageIterator is the handle a user iterator body uses: it is
// the only place messages can be created, which pins every message to
// a live iterator and its engine.
type SelfMessageIterator struct {
	it *MessageIterator
}

// Port returns the upstream output port the iterator was created on.
func (s *SelfMessageIterator) Port() *Port { return s.it.conn.Upstream() }

// Component returns the component the iterator belongs to.
func (s *SelfMessageIterator) Component() *Component { return s.it.component }

// Logger returns the iterator's logger.
func (s *SelfMessageIterator) Logger() *slog.Logger { return s.it.log }

// Interrupted reports whether the graph's default interrupter is set.
func (s *SelfMessageIterator) Interrupted() bool {
	return s.it.component.graph.interrupter.IsSet()
}

// NewInputPortMessageIterator creates an upstream iterator from a
// filter's iterator body.
func (s *SelfMessageIterator) NewInputPortMessageIterator(inPort *Port) (*MessageIterator, error) {
	return s.it.component.createUpstreamIterator(inPort)
}

// NewEventMessage creates an event message for the iterator.
func (s *SelfMessageIterator) NewEventMessage(ec *trace.EventClass, stream *trace.Stream, packet *trace.Packet, snap message.SnapshotSpec) (*message.Message, error) {
	return message.NewEvent(s.engine(), ec, stream, packet, snap)
}

// NewStreamBeginningMessage creates a stream beginning message.
func (s *SelfMessageIterator) NewStreamBeginningMessage(stream *trace.Stream, snap message.SnapshotSpec) (*message.Message, error) {
	return message.NewStreamBeginning(s.engine(), stream, snap)
}

// NewStreamEndMessage creates a stream end message.
func (s *SelfMessageIterator) NewStreamEndMessage(stream *trace.Stream, snap message.SnapshotSpec) (*message.Message, error) {
	return message.NewStreamEnd(s.engine(), stream, snap)
}

// NewPacketBeginningMessage creates a packet beginning message.
func (s *SelfMessageIterator) NewPacketBeginningMessage(packet *trace.Packet, snap message.SnapshotSpec) (*message.Message, error) {
	return message.NewPacketBeginning(s.engine(), packet, snap)
}

// NewPacketEndMessage creates a packet end message.
func (s *SelfMessageIterator) NewPacketEndMessage(packet *trace.Packet, snap message.SnapshotSpec) (*message.Message, error) {
	return message.NewPacketEnd(s.engine(), packet, snap)
}

// NewDiscardedEventsMessage creates a discarded events message.
func (s *SelfMessageIterator) NewDiscardedEventsMessage(stream *trace.Stream, count *uint64, begin, end message.SnapshotSpec) (*message.Message, error) {
	return message.NewDiscardedEvents(s.engine(), stream, count, begin, end)
}

// NewDiscardedPacketsMessage creates a discarded packets message.
func (s *SelfMessageIterator) NewDiscardedPacketsMessage(stream *trace.Stream, count *uint64, begin, end message.SnapshotSpec) (*message.Message, error) {
	return message.NewDiscardedPackets(s.engine(), stream, count, begin, end)
}

// NewInactivityMessage creates a message-iterator-inactivity message.
func (s *SelfMessageIterator) NewInactivityMessage(cc *trace.ClockClass, value uint64) (*message.Message, error) {
	return message.NewInactivity(s.engine(), cc, value)
}

func (s *SelfMessageIterator) engine() *native.Engine {
	return s.it.component.graph.eng
}
