package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antmicro/libbtrace/native"
	"github.com/antmicro/libbtrace/trace"
)

type fixture struct {
	eng *native.Engine
	tc  *trace.TraceClass
	cc  *trace.ClockClass

	scClocked *trace.StreamClass
	scPlain   *trace.StreamClass
	ecClocked *trace.EventClass
	ecPlain   *trace.EventClass

	tr            *trace.Trace
	streamClocked *trace.Stream
	streamPlain   *trace.Stream
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{eng: native.Open()}
	f.tc = trace.NewTraceClass(f.eng, trace.TraceClassOptions{})

	var err error
	f.cc, err = trace.NewClockClass(f.eng, trace.ClockClassOptions{})
	require.NoError(t, err)

	f.scClocked, err = f.tc.CreateStreamClass(trace.StreamClassOptions{
		DefaultClockClass:                        f.cc,
		SupportsDiscardedEvents:                  true,
		DiscardedEventsHaveDefaultClockSnapshots: true,
	})
	require.NoError(t, err)
	f.scPlain, err = f.tc.CreateStreamClass(trace.StreamClassOptions{
		SupportsDiscardedEvents: true,
	})
	require.NoError(t, err)

	f.ecClocked, err = f.scClocked.CreateEventClass(trace.EventClassOptions{Name: "clocked"})
	require.NoError(t, err)
	f.ecPlain, err = f.scPlain.CreateEventClass(trace.EventClassOptions{Name: "plain"})
	require.NoError(t, err)

	f.tr, err = f.tc.NewTrace(trace.TraceOptions{})
	require.NoError(t, err)
	f.streamClocked, err = f.tr.CreateStream(f.scClocked, trace.StreamOptions{})
	require.NoError(t, err)
	f.streamPlain, err = f.tr.CreateStream(f.scPlain, trace.StreamOptions{})
	require.NoError(t, err)
	return f
}

func (f *fixture) close(t *testing.T) {
	t.Helper()
	f.streamPlain.Release()
	f.streamClocked.Release()
	f.tr.Release()
	f.ecPlain.Release()
	f.ecClocked.Release()
	f.scPlain.Release()
	f.scClocked.Release()
	f.cc.Release()
	f.tc.Release()
	require.NoError(t, f.eng.Close())
}

func TestEventMessageSnapshotRules(t *testing.T) {
	f := newFixture(t)
	defer f.close(t)

	_, err := NewEvent(f.eng, f.ecClocked, f.streamClocked, nil, NoSnapshot())
	assert.Error(t, err, "clocked stream class needs a snapshot value")

	_, err = NewEvent(f.eng, f.ecPlain, f.streamPlain, nil, SnapshotAt(10))
	assert.Error(t, err, "clockless stream class forbids snapshots")

	_, err = NewEvent(f.eng, f.ecPlain, f.streamClocked, nil, SnapshotAt(10))
	assert.Error(t, err, "event class from another stream class")

	m, err := NewEvent(f.eng, f.ecClocked, f.streamClocked, nil, SnapshotAt(42))
	require.NoError(t, err)
	assert.Equal(t, KindEvent, m.Kind())

	cs, known, err := m.DefaultClockSnapshot()
	require.NoError(t, err)
	require.True(t, known)
	v, err := cs.Value()
	require.NoError(t, err)
	assert.EqualValues(t, 42, v)

	ev, err := m.Event()
	require.NoError(t, err)
	_, err = ev.Class()
	require.NoError(t, err)

	m.Release()
	_, err = ev.Class()
	assert.Error(t, err, "event must die with its message")
	_, err = cs.Value()
	assert.Error(t, err, "snapshot must die with its message")
}

func TestStreamBoundaryUnknownSnapshot(t *testing.T) {
	f := newFixture(t)
	defer f.close(t)

	m, err := NewStreamBeginning(f.eng, f.streamClocked, NoSnapshot())
	require.NoError(t, err)
	cs, known, err := m.DefaultClockSnapshot()
	require.NoError(t, err)
	assert.False(t, known, "boundary snapshot defaults to the unknown state")
	assert.Nil(t, cs)
	m.Release()

	m, err = NewStreamEnd(f.eng, f.streamClocked, SnapshotAt(99))
	require.NoError(t, err)
	_, known, err = m.DefaultClockSnapshot()
	require.NoError(t, err)
	assert.True(t, known)
	m.Release()

	// Snapshots on clockless streams are invalid, and reading the
	// snapshot of a clockless boundary message is too.
	_, err = NewStreamBeginning(f.eng, f.streamPlain, UnknownSnapshot())
	assert.Error(t, err)

	m, err = NewStreamBeginning(f.eng, f.streamPlain, NoSnapshot())
	require.NoError(t, err)
	_, _, err = m.DefaultClockSnapshot()
	assert.ErrorIs(t, err, ErrNoDefaultClockClass)
	m.Release()
}

func TestDiscardedEventsRules(t *testing.T) {
	f := newFixture(t)
	defer f.close(t)

	_, err := NewDiscardedEvents(f.eng, f.streamClocked, nil, NoSnapshot(), NoSnapshot())
	assert.Error(t, err, "snapshot flag set, both snapshots required")

	_, err = NewDiscardedEvents(f.eng, f.streamClocked, nil, SnapshotAt(10), SnapshotAt(5))
	assert.Error(t, err, "beginning after end")

	zero := uint64(0)
	_, err = NewDiscardedEvents(f.eng, f.streamClocked, &zero, SnapshotAt(1), SnapshotAt(2))
	assert.Error(t, err, "count must be positive when set")

	n := uint64(7)
	m, err := NewDiscardedEvents(f.eng, f.streamClocked, &n, SnapshotAt(1), SnapshotAt(2))
	require.NoError(t, err)
	count, err := m.Count()
	require.NoError(t, err)
	require.NotNil(t, count)
	assert.EqualValues(t, 7, *count)

	begin, err := m.BeginningDefaultClockSnapshot()
	require.NoError(t, err)
	end, err := m.EndDefaultClockSnapshot()
	require.NoError(t, err)
	bv, err := begin.Value()
	require.NoError(t, err)
	ev, err := end.Value()
	require.NoError(t, err)
	assert.LessOrEqual(t, bv, ev)
	m.Release()

	// Clockless stream class: snapshots forbidden, count-only fine.
	_, err = NewDiscardedEvents(f.eng, f.streamPlain, nil, SnapshotAt(1), SnapshotAt(2))
	assert.Error(t, err)
	m, err = NewDiscardedEvents(f.eng, f.streamPlain, nil, NoSnapshot(), NoSnapshot())
	require.NoError(t, err)
	m.Release()
}

func TestDiscardedPacketsNeedSupport(t *testing.T) {
	f := newFixture(t)
	defer f.close(t)

	_, err := NewDiscardedPackets(f.eng, f.streamClocked, nil, NoSnapshot(), NoSnapshot())
	assert.Error(t, err, "stream class does not support discarded packets")
}

func TestInactivityMessage(t *testing.T) {
	f := newFixture(t)
	defer f.close(t)

	_, err := NewInactivity(f.eng, nil, 0)
	assert.Error(t, err)

	m, err := NewInactivity(f.eng, f.cc, 123)
	require.NoError(t, err)
	cs, known, err := m.DefaultClockSnapshot()
	require.NoError(t, err)
	require.True(t, known)
	v, err := cs.Value()
	require.NoError(t, err)
	assert.EqualValues(t, 123, v)
	m.Release()
}

func TestCloneSharesMessage(t *testing.T) {
	f := newFixture(t)
	defer f.close(t)

	m, err := NewStreamBeginning(f.eng, f.streamPlain, NoSnapshot())
	require.NoError(t, err)
	c := m.Clone()
	assert.Equal(t, m.Handle(), c.Handle())

	m.Release()
	// The clone's reference keeps the message alive.
	assert.True(t, f.eng.IsLive(c.Handle()))
	c.Release()
}

func TestCloneKeepsChildrenAlive(t *testing.T) {
	f := newFixture(t)
	defer f.close(t)

	m, err := NewEvent(f.eng, f.ecClocked, f.streamClocked, nil, SnapshotAt(42))
	require.NoError(t, err)
	c := m.Clone()
	m.Release()

	// The event and snapshot survive the owner as long as a clone holds on.
	ev, err := c.Event()
	require.NoError(t, err)
	_, err = ev.Class()
	assert.NoError(t, err)

	cs, known, err := c.DefaultClockSnapshot()
	require.NoError(t, err)
	require.True(t, known)
	v, err := cs.Value()
	require.NoError(t, err)
	assert.EqualValues(t, 42, v)

	c.Release()
	_, err = ev.Class()
	assert.Error(t, err, "event must die with the last wrapper")
	_, err = cs.Value()
	assert.Error(t, err, "snapshot must die with the last wrapper")
}

func TestNSFromOriginOrderingKey(t *testing.T) {
	f := newFixture(t)
	defer f.close(t)

	m, err := NewEvent(f.eng, f.ecClocked, f.streamClocked, nil, SnapshotAt(5))
	require.NoError(t, err)
	ns, ok := m.NSFromOrigin()
	require.True(t, ok)
	assert.EqualValues(t, 5, ns) // 1 GHz default clock: 1 cycle = 1 ns
	m.Release()

	m, err = NewEvent(f.eng, f.ecPlain, f.streamPlain, nil, NoSnapshot())
	require.NoError(t, err)
	_, ok = m.NSFromOrigin()
	assert.False(t, ok)
	m.Release()
}
