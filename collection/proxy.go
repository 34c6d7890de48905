package collection

import (
	"github.com/antmicro/libbtrace/errors"
	"github.com/antmicro/libbtrace/graph"
	"github.com/antmicro/libbtrace/message"
)

// proxySlot hands a single message from the sink's consume step to the
// collection iterator. The iterator is not safe for concurrent use, so
// no locking.
type proxySlot struct {
	msg *message.Message
}

func (s *proxySlot) put(m *message.Message) error {
	if s.msg != nil {
		return errors.Invalidf("proxy slot already holds a message")
	}
	s.msg = m
	return nil
}

func (s *proxySlot) take() (*message.Message, bool) {
	if s.msg == nil {
		return nil, false
	}
	m := s.msg
	s.msg = nil
	return m, true
}

func (s *proxySlot) clear() {
	if s.msg != nil {
		s.msg.Release()
		s.msg = nil
	}
}

// proxySink is the terminal component of a collection graph. Each
// consume step pulls exactly one upstream message into the slot.
type proxySink struct {
	self *graph.SelfComponent
	in   *graph.Port
	it   *graph.MessageIterator
	slot *proxySlot
}

func proxySinkClass(slot *proxySlot) *graph.Class {
	return &graph.Class{
		Name:        "collection-proxy",
		Description: "terminal sink feeding the collection iterator",
		Kind:        graph.KindSink,
		MIPVersions: []uint64{0, 1},
		Builtin:     true,
		Factory: func(self *graph.SelfComponent, cfg graph.ComponentConfig) (graph.UserComponent, error) {
			in, err := self.AddInputPort("in", nil)
			if err != nil {
				return nil, err
			}
			return &proxySink{self: self, in: in, slot: slot}, nil
		},
	}
}

func (p *proxySink) GraphIsConfigured() error {
	it, err := p.self.NewInputPortMessageIterator(p.in)
	if err != nil {
		return err
	}
	p.it = it
	return nil
}

func (p *proxySink) Consume() error {
	m, err := p.it.Next()
	if err != nil {
		return err
	}
	return p.slot.put(m)
}

func (p *proxySink) Finalize() {
	if p.it != nil {
		p.it.Close()
	}
}
