package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antmicro/libbtrace/field"
	"github.com/antmicro/libbtrace/native"
)

func u64(v uint64) *uint64 { return &v }

func boolp(v bool) *bool { return &v }

func TestAutomaticStreamClassIDs(t *testing.T) {
	eng := native.Open()
	tc := NewTraceClass(eng, TraceClassOptions{})

	sc0, err := tc.CreateStreamClass(StreamClassOptions{})
	require.NoError(t, err)
	sc1, err := tc.CreateStreamClass(StreamClassOptions{})
	require.NoError(t, err)

	assert.EqualValues(t, 0, sc0.ID())
	assert.EqualValues(t, 1, sc1.ID())

	_, err = tc.CreateStreamClass(StreamClassOptions{ID: u64(5)})
	assert.Error(t, err, "explicit id must be rejected in automatic mode")

	sc0.Release()
	sc1.Release()
	tc.Release()
	require.NoError(t, eng.Close())
}

func TestExplicitStreamClassIDs(t *testing.T) {
	eng := native.Open()
	tc := NewTraceClass(eng, TraceClassOptions{AssignsAutomaticStreamClassID: boolp(false)})

	sc, err := tc.CreateStreamClass(StreamClassOptions{ID: u64(7)})
	require.NoError(t, err)
	assert.EqualValues(t, 7, sc.ID())

	_, err = tc.CreateStreamClass(StreamClassOptions{})
	assert.Error(t, err, "missing id must be rejected in explicit mode")

	_, err = tc.CreateStreamClass(StreamClassOptions{ID: u64(7)})
	assert.Error(t, err, "duplicate id must be rejected")

	got, err := tc.StreamClassByID(7)
	require.NoError(t, err)
	assert.Same(t, sc, got)

	sc.Release()
	tc.Release()
	require.NoError(t, eng.Close())
}

func TestStreamClassFlagValidation(t *testing.T) {
	eng := native.Open()
	defer func() { require.NoError(t, eng.Close()) }()

	tc := NewTraceClass(eng, TraceClassOptions{})
	defer tc.Release()

	cc, err := NewClockClass(eng, ClockClassOptions{})
	require.NoError(t, err)
	defer cc.Release()

	tests := []struct {
		name string
		opts StreamClassOptions
	}{
		{"packet snapshots without packets", StreamClassOptions{
			PacketsHaveBeginningDefaultClockSnapshot: true,
			DefaultClockClass:                        cc,
		}},
		{"packet snapshots without clock", StreamClassOptions{
			SupportsPackets:                    true,
			PacketsHaveEndDefaultClockSnapshot: true,
		}},
		{"discarded events snapshots without support", StreamClassOptions{
			DiscardedEventsHaveDefaultClockSnapshots: true,
			DefaultClockClass:                        cc,
		}},
		{"discarded packets without packets", StreamClassOptions{
			SupportsDiscardedPackets: true,
		}},
		{"packet context without packets", StreamClassOptions{
			PacketContextFieldClass: field.NewStructure(),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tc.CreateStreamClass(tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestChildrenKeepClassAlive(t *testing.T) {
	eng := native.Open()
	tc := NewTraceClass(eng, TraceClassOptions{})

	destroyed := false
	_, err := tc.AddDestructionListener(func() { destroyed = true })
	require.NoError(t, err)

	sc, err := tc.CreateStreamClass(StreamClassOptions{})
	require.NoError(t, err)

	tc.Release()
	assert.False(t, destroyed, "stream class must keep the trace class alive")

	sc.Release()
	assert.True(t, destroyed)
	require.NoError(t, eng.Close())
}

func TestDestructionListenerOrderAndRemoval(t *testing.T) {
	eng := native.Open()
	tc := NewTraceClass(eng, TraceClassOptions{})

	var order []int
	_, err := tc.AddDestructionListener(func() { order = append(order, 1) })
	require.NoError(t, err)
	h2, err := tc.AddDestructionListener(func() { order = append(order, 2) })
	require.NoError(t, err)
	_, err = tc.AddDestructionListener(func() { order = append(order, 3) })
	require.NoError(t, err)

	require.NoError(t, tc.RemoveDestructionListener(h2))
	assert.Error(t, tc.RemoveDestructionListener(h2), "second removal must fail")

	tc.Release()
	assert.Equal(t, []int{1, 3}, order)
	require.NoError(t, eng.Close())
}

func TestTraceEnvironment(t *testing.T) {
	eng := native.Open()
	tc := NewTraceClass(eng, TraceClassOptions{})

	tr, err := tc.NewTrace(TraceOptions{Name: "session"})
	require.NoError(t, err)

	require.NoError(t, tr.SetEnvironmentEntry("hostname", "box"))
	require.NoError(t, tr.SetEnvironmentEntry("pid", 1234))
	assert.Error(t, tr.SetEnvironmentEntry("bad", 1.5))
	assert.Error(t, tr.SetEnvironmentEntry("", "x"))

	// Overwrite keeps insertion order.
	require.NoError(t, tr.SetEnvironmentEntry("hostname", "other"))
	assert.Equal(t, []string{"hostname", "pid"}, tr.EnvironmentKeys())

	v, ok := tr.EnvironmentEntry("pid")
	require.True(t, ok)
	assert.EqualValues(t, int64(1234), v)

	tr.Release()
	tc.Release()
	require.NoError(t, eng.Close())
}

func TestStreamAndPacketCreation(t *testing.T) {
	eng := native.Open()
	tc := NewTraceClass(eng, TraceClassOptions{})

	pktCtx := field.NewStructure()
	require.NoError(t, pktCtx.AppendMember("seq", mustU32(t)))

	scPackets, err := tc.CreateStreamClass(StreamClassOptions{
		SupportsPackets:         true,
		PacketContextFieldClass: pktCtx,
	})
	require.NoError(t, err)
	scPlain, err := tc.CreateStreamClass(StreamClassOptions{})
	require.NoError(t, err)

	tr, err := tc.NewTrace(TraceOptions{})
	require.NoError(t, err)

	s0, err := tr.CreateStream(scPackets, StreamOptions{})
	require.NoError(t, err)
	s1, err := tr.CreateStream(scPlain, StreamOptions{})
	require.NoError(t, err)

	pkt, err := s0.CreatePacket()
	require.NoError(t, err)
	require.NotNil(t, pkt.ContextField())

	_, err = s1.CreatePacket()
	assert.Error(t, err, "packet creation must fail without packet support")

	pkt.Release()
	s0.Release()
	s1.Release()
	tr.Release()
	scPackets.Release()
	scPlain.Release()
	tc.Release()
	require.NoError(t, eng.Close(), "all objects released, no leak")
}

func TestClockConversion(t *testing.T) {
	eng := native.Open()
	defer func() { require.NoError(t, eng.Close()) }()

	cc, err := NewClockClass(eng, ClockClassOptions{Frequency: 1000}) // 1 kHz: 1 cycle = 1 ms
	require.NoError(t, err)
	defer cc.Release()

	ns, err := cc.CyclesToNSFromOrigin(5)
	require.NoError(t, err)
	assert.EqualValues(t, 5_000_000, ns)

	ccOff, err := NewClockClass(eng, ClockClassOptions{Frequency: 1000, OffsetSeconds: 2})
	require.NoError(t, err)
	defer ccOff.Release()

	ns, err = ccOff.CyclesToNSFromOrigin(1)
	require.NoError(t, err)
	assert.EqualValues(t, 2_001_000_000, ns)

	// 1 Hz clock: huge cycle counts overflow the signed ns range.
	ccSlow, err := NewClockClass(eng, ClockClassOptions{Frequency: 1})
	require.NoError(t, err)
	defer ccSlow.Release()

	_, err = ccSlow.CyclesToNSFromOrigin(1 << 63)
	assert.Error(t, err)
}

func mustU32(t *testing.T) *field.Class {
	t.Helper()
	fc, err := field.NewUnsignedInteger(32)
	require.NoError(t, err)
	return fc
}
