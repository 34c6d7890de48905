package trimmer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antmicro/libbtrace/errors"
	"github.com/antmicro/libbtrace/graph"
	"github.com/antmicro/libbtrace/message"
	"github.com/antmicro/libbtrace/native"
	"github.com/antmicro/libbtrace/trace"
)

func TestParseSecNS(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "0", want: 0},
		{in: "12", want: 12_000_000_000},
		{in: "12.000000500", want: 12_000_000_500},
		{in: "1.5", want: 1_500_000_000},
		{in: "-2.25", want: -2_250_000_000},
		{in: "3.1234567890", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "1.x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseSecNS(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRejectsInvertedWindow(t *testing.T) {
	eng := native.Open()
	defer eng.Close()
	g, err := graph.New(eng, 0, graph.Options{})
	require.NoError(t, err)
	defer g.Release()

	_, err = g.AddComponent(Class(), "trim",
		graph.WithParams(map[string]any{"begin": "10", "end": "5"}))
	assert.Error(t, err)
}

// windowHarness pushes timestamped events through a trimmer.
type windowHarness struct {
	eng    *native.Engine
	tc     *trace.TraceClass
	cc     *trace.ClockClass
	sc     *trace.StreamClass
	ec     *trace.EventClass
	tr     *trace.Trace
	stream *trace.Stream

	g    *graph.Graph
	sink *collectSink
}

func newWindowHarness(t *testing.T, values []uint64, params map[string]any) *windowHarness {
	t.Helper()
	h := &windowHarness{eng: native.Open()}
	h.tc = trace.NewTraceClass(h.eng, trace.TraceClassOptions{})

	var err error
	// 1 Hz keeps cycle values equal to whole seconds.
	h.cc, err = trace.NewClockClass(h.eng, trace.ClockClassOptions{Frequency: 1})
	require.NoError(t, err)
	h.sc, err = h.tc.CreateStreamClass(trace.StreamClassOptions{DefaultClockClass: h.cc})
	require.NoError(t, err)
	h.ec, err = h.sc.CreateEventClass(trace.EventClassOptions{Name: "tick"})
	require.NoError(t, err)
	h.tr, err = h.tc.NewTrace(trace.TraceOptions{})
	require.NoError(t, err)
	h.stream, err = h.tr.CreateStream(h.sc, trace.StreamOptions{})
	require.NoError(t, err)

	h.g, err = graph.New(h.eng, 0, graph.Options{})
	require.NoError(t, err)

	src := &eventSource{h: h, values: values}
	srcComp, err := h.g.AddComponent(src.class(), "src")
	require.NoError(t, err)
	trimComp, err := h.g.AddComponent(Class(), "trim", graph.WithParams(params))
	require.NoError(t, err)

	h.sink = &collectSink{}
	sinkComp, err := h.g.AddComponent(h.sink.class(), "sink")
	require.NoError(t, err)

	srcOut, _ := srcComp.OutputPort("out")
	trimIn, _ := trimComp.InputPort("in")
	trimOut, _ := trimComp.OutputPort("out")
	sinkIn, _ := sinkComp.InputPort("in")
	_, err = h.g.ConnectPorts(srcOut, trimIn)
	require.NoError(t, err)
	_, err = h.g.ConnectPorts(trimOut, sinkIn)
	require.NoError(t, err)
	return h
}

type eventSource struct {
	h      *windowHarness
	values []uint64
}

func (s *eventSource) class() *graph.Class {
	return &graph.Class{
		Name: "event-source",
		Kind: graph.KindSource,
		Factory: func(self *graph.SelfComponent, _ graph.ComponentConfig) (graph.UserComponent, error) {
			if _, err := self.AddOutputPort("out", nil); err != nil {
				return nil, err
			}
			return s, nil
		},
	}
}

func (s *eventSource) NewMessageIterator(self *graph.SelfMessageIterator) (graph.UserMessageIterator, error) {
	return &eventIterator{src: s, self: self}, nil
}

type eventIterator struct {
	src     *eventSource
	self    *graph.SelfMessageIterator
	pos     int
	started bool
	done    bool
}

func (it *eventIterator) Next(msgs *graph.MessageArray) error {
	h := it.src.h
	if !it.started {
		it.started = true
		m, err := it.self.NewStreamBeginningMessage(h.stream, message.NoSnapshot())
		if err != nil {
			return err
		}
		if err := msgs.Append(m); err != nil {
			return err
		}
	}
	for it.pos < len(it.src.values) && !msgs.Full() {
		m, err := it.self.NewEventMessage(h.ec, h.stream, nil, message.SnapshotAt(it.src.values[it.pos]))
		if err != nil {
			return err
		}
		if err := msgs.Append(m); err != nil {
			return err
		}
		it.pos++
	}
	if it.pos < len(it.src.values) || msgs.Full() {
		return nil
	}
	if !it.done {
		it.done = true
		m, err := it.self.NewStreamEndMessage(h.stream, message.NoSnapshot())
		if err != nil {
			return err
		}
		if err := msgs.Append(m); err != nil {
			return err
		}
	}
	return errors.ErrEnd
}

type collectSink struct {
	self       *graph.SelfComponent
	in         *graph.Port
	it         *graph.MessageIterator
	eventNS    []int64
	boundaries int
}

func (s *collectSink) class() *graph.Class {
	return &graph.Class{
		Name: "collect-sink",
		Kind: graph.KindSink,
		Factory: func(self *graph.SelfComponent, _ graph.ComponentConfig) (graph.UserComponent, error) {
			p, err := self.AddInputPort("in", nil)
			if err != nil {
				return nil, err
			}
			s.in = p
			s.self = self
			return s, nil
		},
	}
}

func (s *collectSink) GraphIsConfigured() error {
	it, err := s.self.NewInputPortMessageIterator(s.in)
	if err != nil {
		return err
	}
	s.it = it
	return nil
}

func (s *collectSink) Consume() error {
	m, err := s.it.Next()
	if err != nil {
		return err
	}
	defer m.Release()
	switch m.Kind() {
	case message.KindEvent:
		if ns, ok := m.NSFromOrigin(); ok {
			s.eventNS = append(s.eventNS, ns)
		}
	case message.KindStreamBeginning, message.KindStreamEnd:
		s.boundaries++
	}
	return nil
}

func secs(vals ...int64) []int64 {
	out := make([]int64, len(vals))
	for i, v := range vals {
		out[i] = v * 1_000_000_000
	}
	return out
}

func TestTrimsOutsideWindow(t *testing.T) {
	h := newWindowHarness(t, []uint64{1, 5, 10, 15, 20},
		map[string]any{"begin": "5", "end": "15"})
	require.NoError(t, h.g.Run(context.Background()))
	assert.Equal(t, secs(5, 10, 15), h.sink.eventNS)
	assert.Equal(t, 2, h.sink.boundaries, "boundary messages pass through")
}

func TestBeginOnlyWindow(t *testing.T) {
	h := newWindowHarness(t, []uint64{1, 5, 10},
		map[string]any{"begin": "5"})
	require.NoError(t, h.g.Run(context.Background()))
	assert.Equal(t, secs(5, 10), h.sink.eventNS)
}

func TestEndOnlyWindowWithFraction(t *testing.T) {
	h := newWindowHarness(t, []uint64{1, 5, 10},
		map[string]any{"end": "5.000000001"})
	require.NoError(t, h.g.Run(context.Background()))
	assert.Equal(t, secs(1, 5), h.sink.eventNS)
}
