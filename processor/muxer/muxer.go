// Package muxer implements the utils.muxer filter: it merge-sorts the
// messages of any number of upstream connections by default clock
// snapshot into a single output flow.
package muxer

import (
	"fmt"

	"github.com/antmicro/libbtrace/errors"
	"github.com/antmicro/libbtrace/graph"
	"github.com/antmicro/libbtrace/message"
)

// ClassName is the muxer's class name inside the utils plugin.
const ClassName = "muxer"

// Class returns the muxer component class.
func Class() *graph.Class {
	return &graph.Class{
		Name:        ClassName,
		Description: "Sort messages from multiple inputs by time",
		Kind:        graph.KindFilter,
		MIPVersions: []uint64{0, 1},
		Builtin:     true,
		Factory:     newMuxer,
	}
}

// muxer keeps one free input port available at all times: connecting
// the last free port surfaces the next one.
type muxer struct {
	self      *graph.SelfComponent
	nextInput int
}

func newMuxer(self *graph.SelfComponent, _ graph.ComponentConfig) (graph.UserComponent, error) {
	m := &muxer{self: self}
	if _, err := self.AddOutputPort("out", nil); err != nil {
		return nil, err
	}
	if err := m.surfaceInput(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *muxer) surfaceInput() error {
	_, err := m.self.AddInputPort(fmt.Sprintf("in%d", m.nextInput), nil)
	m.nextInput++
	return err
}

// PortConnected surfaces a fresh input port when the previously free
// one gets taken.
func (m *muxer) PortConnected(own, _ *graph.Port) error {
	if own.Direction() != graph.PortInput {
		return nil
	}
	for _, p := range m.self.Component().InputPorts() {
		if !p.IsConnected() {
			return nil
		}
	}
	return m.surfaceInput()
}

// NewMessageIterator builds the merging iterator over every input
// connected by then.
func (m *muxer) NewMessageIterator(self *graph.SelfMessageIterator) (graph.UserMessageIterator, error) {
	it := &muxIterator{m: m, self: self}
	for _, p := range m.self.Component().InputPorts() {
		if !p.IsConnected() {
			continue
		}
		upstream, err := self.NewInputPortMessageIterator(p)
		if err != nil {
			return nil, err
		}
		it.inputs = append(it.inputs, &muxInput{it: upstream, index: p.Index()})
	}
	if len(it.inputs) == 0 {
		return nil, errors.Invalidf("muxer has no connected input")
	}
	return it, nil
}

// muxInput is one upstream flow with its lookahead message.
type muxInput struct {
	it    *graph.MessageIterator
	index int

	head   *message.Message
	headNS int64
	ended  bool
}

// fill ensures head is set unless the input ended. Messages without a
// clock snapshot inherit the previous timestamp of the same input so
// their relative order is preserved.
func (in *muxInput) fill() error {
	if in.ended || in.head != nil {
		return nil
	}
	m, err := in.it.Next()
	if err != nil {
		if errors.IsEnd(err) {
			in.ended = true
			return nil
		}
		return err
	}
	in.head = m
	if ns, ok := m.NSFromOrigin(); ok {
		in.headNS = ns
	}
	return nil
}

type muxIterator struct {
	m      *muxer
	self   *graph.SelfMessageIterator
	inputs []*muxInput
}

// Next emits the oldest lookahead message. Ties go to the smallest
// input index, keeping the merge stable.
func (it *muxIterator) Next(msgs *graph.MessageArray) error {
	for !msgs.Full() {
		var pick *muxInput
		for _, in := range it.inputs {
			if err := in.fill(); err != nil {
				if msgs.Len() > 0 && errors.IsTransient(err) {
					// Deliver what we have; retry on the next call.
					return nil
				}
				return err
			}
			if in.ended {
				continue
			}
			if pick == nil || in.headNS < pick.headNS {
				pick = in
			}
		}
		if pick == nil {
			if msgs.Len() > 0 {
				return nil
			}
			return errors.ErrEnd
		}

		m := pick.head
		pick.head = nil
		if err := msgs.Append(m); err != nil {
			pick.head = m
			return nil
		}
	}
	return nil
}

// Finalize releases the lookahead heads and closes every upstream
// iterator, so dropping the muxer mid-flow frees buffered messages.
func (it *muxIterator) Finalize() {
	for _, in := range it.inputs {
		if in.head != nil {
			in.head.Release()
			in.head = nil
		}
		in.it.Close()
	}
}
