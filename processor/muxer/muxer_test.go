package muxer

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

// harness wires N value sources through a muxer into a collecting
// sink.
type harness struct {
	eng    *native.Engine
	tc     *trace.TraceClass
	cc     *trace.ClockClass
	sc     *trace.StreamClass
	ec     *trace.EventClass
	tr     *trace.Trace
	stream *trace.Stream

	g    *graph.Graph
	mux  *graph.Component
	sink *collectSink
}

func newHarness(t *testing.T, sourceValues ...[]uint64) *harness {
	t.Helper()
	h := &harness{eng: native.Open()}
	h.tc = trace.NewTraceClass(h.eng, trace.TraceClassOptions{})

	var err error
	h.cc, err = trace.NewClockClass(h.eng, trace.ClockClassOptions{})
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

	h.mux, err = h.g.AddComponent(Class(), "mux")
	require.NoError(t, err)

	for i, values := range sourceValues {
		src := &valueSource{h: h, values: values}
		comp, err := h.g.AddComponent(src.class(), "src")
		require.NoError(t, err)
		out, err := comp.OutputPort("out")
		require.NoError(t, err)

		free := freeInputPort(t, h.mux)
		_, err = h.g.ConnectPorts(out, free)
		require.NoError(t, err, "source %d", i)
	}

	h.sink = &collectSink{}
	sinkComp, err := h.g.AddComponent(h.sink.class(), "sink")
	require.NoError(t, err)
	muxOut, err := h.mux.OutputPort("out")
	require.NoError(t, err)
	sinkIn, err := sinkComp.InputPort("in")
	require.NoError(t, err)
	_, err = h.g.ConnectPorts(muxOut, sinkIn)
	require.NoError(t, err)
	return h
}

func freeInputPort(t *testing.T, c *graph.Component) *graph.Port {
	t.Helper()
	for _, p := range c.InputPorts() {
		if !p.IsConnected() {
			return p
		}
	}
	t.Fatal("no free input port")
	return nil
}

type valueSource struct {
	h      *harness
	values []uint64
}

func (s *valueSource) class() *graph.Class {
	return &graph.Class{
		Name: "value-source",
		Kind: graph.KindSource,
		Factory: func(self *graph.SelfComponent, _ graph.ComponentConfig) (graph.UserComponent, error) {
			if _, err := self.AddOutputPort("out", nil); err != nil {
				return nil, err
			}
			return s, nil
		},
	}
}

func (s *valueSource) NewMessageIterator(self *graph.SelfMessageIterator) (graph.UserMessageIterator, error) {
	return &valueIterator{src: s, self: self}, nil
}

type valueIterator struct {
	src  *valueSource
	self *graph.SelfMessageIterator
	pos  int
}

func (it *valueIterator) Next(msgs *graph.MessageArray) error {
	h := it.src.h
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
	if msgs.Len() == 0 {
		return errors.ErrEnd
	}
	return nil
}

type collectSink struct {
	self      *graph.SelfComponent
	in        *graph.Port
	it        *graph.MessageIterator
	collected []int64
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
	if ns, ok := m.NSFromOrigin(); ok {
		s.collected = append(s.collected, ns)
	}
	return nil
}

func TestMergesSortedInputs(t *testing.T) {
	h := newHarness(t, []uint64{1, 3, 5}, []uint64{2, 4, 6})
	require.NoError(t, h.g.Run(context.Background()))
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, h.sink.collected)
}

func TestStableTieBreakByInputOrder(t *testing.T) {
	// Identical timestamps: the earlier-connected input wins every
	// tie, so the merge is stable.
	h := newHarness(t, []uint64{5, 10}, []uint64{5, 10})
	require.NoError(t, h.g.Run(context.Background()))
	assert.Equal(t, []int64{5, 5, 10, 10}, h.sink.collected)
}

func TestSingleInput(t *testing.T) {
	h := newHarness(t, []uint64{7, 8, 9})
	require.NoError(t, h.g.Run(context.Background()))
	assert.Equal(t, []int64{7, 8, 9}, h.sink.collected)
}

func TestElasticInputPorts(t *testing.T) {
	h := newHarness(t, []uint64{1}, []uint64{2}, []uint64{3})

	// Three connected inputs plus one still free.
	ports := h.mux.InputPorts()
	require.Len(t, ports, 4)
	for _, p := range ports[:3] {
		assert.True(t, p.IsConnected())
	}
	assert.False(t, ports[3].IsConnected())
	assert.Equal(t, "in3", ports[3].Name())
}

func TestNoConnectedInputFailsConfigure(t *testing.T) {
	h := newHarness(t)
	err := h.g.Run(context.Background())
	require.Error(t, err)
}
