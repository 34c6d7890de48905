package graph

import (
	"fmt"
	"log/slog"

	"github.com/antmicro/libbtrace/errors"
	"github.com/antmicro/libbtrace/object"
)

// UserComponent is the user-supplied body of a component. The concrete
// value additionally implements the interfaces matching its class
// kind: MessageIteratorFactory for sources and filters, Consumer for
// sinks. Optional behaviors (ConfiguredHandler, Finalizer) are
// discovered by type assertion.
type UserComponent any

// MessageIteratorFactory is implemented by source and filter bodies.
// It is called once per downstream iterator created on one of the
// component's output ports.
type MessageIteratorFactory interface {
	NewMessageIterator(self *SelfMessageIterator) (UserMessageIterator, error)
}

// Consumer is implemented by sink bodies. One Consume call is one
// graph consume step.
type Consumer interface {
	Consume() error
}

// ConfiguredHandler is an optional sink behavior, invoked once when
// the graph becomes configured, before the first consume step.
type ConfiguredHandler interface {
	GraphIsConfigured() error
}

// PortConnectedHandler is an optional behavior invoked when one of the
// component's ports gets its connection. The muxer uses it to keep a
// free input port available.
type PortConnectedHandler interface {
	PortConnected(own, other *Port) error
}

// Finalizer is an optional behavior invoked when the component's graph
// is released.
type Finalizer interface {
	Finalize()
}

// ComponentConfig is what a factory receives alongside the self
// handle.
type ComponentConfig struct {
	Params map[string]any
	Obj    any
}

// Component is one node of a graph.
type Component struct {
	graph *Graph
	class *Class
	name  string
	log   *slog.Logger

	user    UserComponent
	inputs  []*Port
	outputs []*Port

	ref       *object.SharedRef
	finalized bool
}

// Name returns the component's display name, not necessarily unique
// graph-wide.
func (c *Component) Name() string { return c.name }

// Class returns the component's class.
func (c *Component) Class() *Class { return c.class }

// Kind returns the class kind.
func (c *Component) Kind() ComponentKind { return c.class.Kind }

// Graph returns the graph the component lives in.
func (c *Component) Graph() *Graph { return c.graph }

// Logger returns the component's logger, tagged with its name and
// class.
func (c *Component) Logger() *slog.Logger { return c.log }

// InputPorts returns the component's input ports in creation order.
func (c *Component) InputPorts() []*Port { return c.inputs }

// OutputPorts returns the component's output ports in creation order.
func (c *Component) OutputPorts() []*Port { return c.outputs }

// InputPort returns the input port with the given name.
func (c *Component) InputPort(name string) (*Port, error) {
	return c.portByName(c.inputs, name)
}

// OutputPort returns the output port with the given name.
func (c *Component) OutputPort(name string) (*Port, error) {
	return c.portByName(c.outputs, name)
}

func (c *Component) portByName(ports []*Port, name string) (*Port, error) {
	for _, p := range ports {
		if p.name == name {
			return p, nil
		}
	}
	return nil, errors.Invalidf("component %q has no port %q", c.name, name)
}

func (c *Component) addPort(direction PortDirection, name string, userData any) (*Port, error) {
	if name == "" {
		return nil, errors.Invalidf("port name is empty")
	}
	ports := &c.inputs
	if direction == PortOutput {
		ports = &c.outputs
	}
	for _, p := range *ports {
		if p.name == name {
			return nil, errors.Invalidf("component %q already has %s port %q", c.name, direction, name)
		}
	}

	p := &Port{
		component: c,
		name:      name,
		direction: direction,
		index:     len(*ports),
		userData:  userData,
	}
	*ports = append(*ports, p)
	c.log.Debug("port added", "direction", direction.String(), "port", name)
	c.graph.notifyPortAdded(c, p)
	return p, nil
}

// createUpstreamIterator builds a user iterator on the upstream side of
// the connection reaching inPort.
func (c *Component) createUpstreamIterator(inPort *Port) (*MessageIterator, error) {
	if inPort == nil || inPort.component != c {
		return nil, errors.Invalidf("port does not belong to component %q", c.name)
	}
	if inPort.direction != PortInput {
		return nil, errors.Invalidf("port %q of component %q is not an input port", inPort.name, c.name)
	}
	conn := inPort.Connection()
	if conn == nil {
		return nil, errors.Invalidf("port %q of component %q is not connected", inPort.name, c.name)
	}

	upstream := conn.Upstream().Component()
	factory, ok := upstream.user.(MessageIteratorFactory)
	if !ok {
		return nil, errors.Invalidf("component %q of class %q cannot create message iterators",
			upstream.name, upstream.class.Name)
	}

	return newMessageIterator(upstream, conn, factory)
}

func (c *Component) finalize() {
	if c.finalized {
		return
	}
	c.finalized = true
	if f, ok := c.user.(Finalizer); ok {
		f.Finalize()
	}
	c.ref.Release()
}

// SelfComponent is the handle a component body uses to talk to its own
// component and graph.
type SelfComponent struct {
	c *Component

	cfgParams map[string]any
}

// Component returns the component behind the handle.
func (s *SelfComponent) Component() *Component { return s.c }

// Logger returns the component's logger.
func (s *SelfComponent) Logger() *slog.Logger { return s.c.log }

// MIPVersion returns the protocol version the graph was created for.
func (s *SelfComponent) MIPVersion() uint64 { return s.c.graph.mip }

// Interrupted reports whether the graph's default interrupter is set.
func (s *SelfComponent) Interrupted() bool { return s.c.graph.interrupter.IsSet() }

// AddInputPort surfaces a new input port. Port-added listeners fire
// before it returns.
func (s *SelfComponent) AddInputPort(name string, userData any) (*Port, error) {
	if s.c.class.Kind == KindSource {
		return nil, errors.Invalidf("source component %q cannot have input ports", s.c.name)
	}
	return s.c.addPort(PortInput, name, userData)
}

// AddOutputPort surfaces a new output port. Port-added listeners fire
// before it returns.
func (s *SelfComponent) AddOutputPort(name string, userData any) (*Port, error) {
	if s.c.class.Kind == KindSink {
		return nil, errors.Invalidf("sink component %q cannot have output ports", s.c.name)
	}
	return s.c.addPort(PortOutput, name, userData)
}

// NewInputPortMessageIterator creates an iterator consuming the
// upstream side of inPort's connection. Sinks call it from their
// configured hook or first consume, filters from their own iterator
// bodies.
func (s *SelfComponent) NewInputPortMessageIterator(inPort *Port) (*MessageIterator, error) {
	return s.c.createUpstreamIterator(inPort)
}

func componentLogger(base *slog.Logger, class *Class, name string) *slog.Logger {
	return base.With(
		"component", name,
		"class", fmt.Sprintf("%s.%s", class.Kind, class.Name),
	)
}
