// Package graph assembles components into a trace processing graph
// and drives it: component and port lifecycle, connections, the
// message iterator state machine, and the consume loop.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/antmicro/libbtrace/errors"
	"github.com/antmicro/libbtrace/metric"
	"github.com/antmicro/libbtrace/native"
	"github.com/antmicro/libbtrace/object"
)

// MaxMIPVersion is the greatest protocol version this implementation
// speaks.
const MaxMIPVersion uint64 = 1

// PortAddedFunc observes a port surfacing on a component. Listeners
// run synchronously on the goroutine that adds the port, in
// registration order.
type PortAddedFunc func(c *Component, p *Port)

// Options configures a graph beyond its protocol version.
type Options struct {
	Logger      *slog.Logger
	Metrics     *metric.Metrics
	Interrupter *Interrupter
}

// Graph owns a set of components and their connections and runs the
// sinks. Not safe for concurrent use: one goroutine drives a graph.
type Graph struct {
	eng         *native.Engine
	mip         uint64
	log         *slog.Logger
	metrics     *metric.Metrics
	interrupter *Interrupter

	components []*Component
	sinkQueue  []*Component

	portAdded []PortAddedFunc

	configured bool
	faultErr   error

	ref      *object.SharedRef
	released bool
}

// New creates an empty graph speaking the given protocol version.
func New(eng *native.Engine, mipVersion uint64, opts Options) (*Graph, error) {
	if mipVersion > MaxMIPVersion {
		return nil, errors.Invalidf("unknown protocol version %d (max %d)", mipVersion, MaxMIPVersion)
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	interrupter := opts.Interrupter
	if interrupter == nil {
		interrupter = NewInterrupter()
	}

	g := &Graph{
		eng:         eng,
		mip:         mipVersion,
		log:         log.With("subsystem", "graph"),
		metrics:     opts.Metrics,
		interrupter: interrupter,
	}
	g.ref = object.Move(eng, eng.Allocate("graph", nil))
	return g, nil
}

// MIPVersion returns the protocol version the graph was created for.
func (g *Graph) MIPVersion() uint64 { return g.mip }

// DefaultInterrupter returns the interrupter every component of the
// graph polls.
func (g *Graph) DefaultInterrupter() *Interrupter { return g.interrupter }

// Interrupt sets the graph's default interrupter.
func (g *Graph) Interrupt() { g.interrupter.Set() }

// Components returns the graph's components in addition order.
func (g *Graph) Components() []*Component { return g.components }

// AddPortAddedListener registers a port-added listener. Listeners
// already registered fire for every port surfaced afterwards.
func (g *Graph) AddPortAddedListener(fn PortAddedFunc) {
	g.portAdded = append(g.portAdded, fn)
}

func (g *Graph) notifyPortAdded(c *Component, p *Port) {
	for _, fn := range g.portAdded {
		fn(c, p)
	}
}

// AddComponentOption tunes one AddComponent call.
type AddComponentOption func(*addComponentConfig)

type addComponentConfig struct {
	params   map[string]any
	obj      any
	objSet   bool
	logLevel *slog.Level
}

// WithParams passes initialization parameters to the factory.
func WithParams(params map[string]any) AddComponentOption {
	return func(c *addComponentConfig) { c.params = params }
}

// WithObj passes an opaque user object to the factory. Builtin
// component classes reject it.
func WithObj(obj any) AddComponentOption {
	return func(c *addComponentConfig) { c.obj = obj; c.objSet = true }
}

// WithLogLevel overrides the component's log level.
func WithLogLevel(level slog.Level) AddComponentOption {
	return func(c *addComponentConfig) { c.logLevel = &level }
}

// AddComponent instantiates class under the given display name. The
// factory runs before AddComponent returns, so ports it surfaces fire
// the port-added listeners synchronously.
func (g *Graph) AddComponent(class *Class, name string, opts ...AddComponentOption) (*Component, error) {
	if err := g.operable(); err != nil {
		return nil, err
	}
	if g.configured {
		return nil, errors.Invalidf("graph is already configured, cannot add component %q", name)
	}
	if class == nil || class.Factory == nil {
		return nil, errors.Invalidf("component class has no factory")
	}
	if name == "" {
		return nil, errors.Invalidf("component name is empty")
	}
	if !class.SupportsMIP(g.mip) {
		return nil, errors.Invalidf("class %q does not support protocol version %d", class.Name, g.mip)
	}

	var cfg addComponentConfig
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.objSet && class.Builtin {
		return nil, errors.Invalidf("class %q is builtin and takes no user object", class.Name)
	}

	log := componentLogger(g.log, class, name)
	if cfg.logLevel != nil {
		log = log.With("level", cfg.logLevel.String())
	}

	c := &Component{
		graph: g,
		class: class,
		name:  name,
		log:   log,
	}
	c.ref = object.Move(g.eng, g.eng.Allocate("component", nil))

	self := &SelfComponent{c: c, cfgParams: cfg.params}
	user, err := class.Factory(self, ComponentConfig{Params: cfg.params, Obj: cfg.obj})
	if err != nil {
		c.ref.Release()
		if g.metrics != nil {
			g.metrics.RecordComponentError(name, class.Name)
		}
		cause := fmt.Errorf("%w: component %q of class %q: %v",
			errors.ErrComponentCreation, name, class.Name, err)
		return nil, errors.WrapInvalid(cause, class.Name, "AddComponent", "run component factory")
	}
	c.user = user

	switch class.Kind {
	case KindSink:
		if _, ok := user.(Consumer); !ok {
			c.ref.Release()
			return nil, errors.Invalidf("sink class %q does not consume", class.Name)
		}
		g.sinkQueue = append(g.sinkQueue, c)
	case KindSource, KindFilter:
		if _, ok := user.(MessageIteratorFactory); !ok {
			c.ref.Release()
			return nil, errors.Invalidf("%s class %q cannot create message iterators", class.Kind, class.Name)
		}
	}

	g.components = append(g.components, c)
	g.log.Debug("component added", "component", name, "class", class.Name, "kind", class.Kind.String())
	return c, nil
}

// ConnectPorts joins an output port to an input port. Both ports must
// be free, belong to this graph, and the connection must not close a
// cycle.
func (g *Graph) ConnectPorts(out, in *Port) (*Connection, error) {
	if err := g.operable(); err != nil {
		return nil, err
	}
	if g.configured {
		return nil, g.connectErr(errors.Invalidf("graph is already configured"))
	}
	if out == nil || in == nil {
		return nil, g.connectErr(errors.Invalidf("nil port"))
	}
	if out.direction != PortOutput || in.direction != PortInput {
		return nil, g.connectErr(errors.Invalidf("connect needs an output and an input port, got %s and %s",
			out.direction, in.direction))
	}
	if out.component.graph != g || in.component.graph != g {
		return nil, g.connectErr(errors.Invalidf("ports belong to another graph"))
	}
	if out.conn != nil {
		return nil, g.connectErr(errors.Invalidf("output port %q of %q is already connected",
			out.name, out.component.name))
	}
	if in.conn != nil {
		return nil, g.connectErr(errors.Invalidf("input port %q of %q is already connected",
			in.name, in.component.name))
	}
	if g.reaches(in.component, out.component) {
		return nil, g.connectErr(errors.Invalidf("connecting %q to %q would close a cycle",
			out.component.name, in.component.name))
	}

	conn := &Connection{upstream: out, downstream: in}
	out.conn = conn
	in.conn = conn
	if h, ok := out.component.user.(PortConnectedHandler); ok {
		if err := h.PortConnected(out, in); err != nil {
			return nil, g.fault(errors.Wrap(err, out.component.class.Name, "PortConnected", "notify upstream component"))
		}
	}
	if h, ok := in.component.user.(PortConnectedHandler); ok {
		if err := h.PortConnected(in, out); err != nil {
			return nil, g.fault(errors.Wrap(err, in.component.class.Name, "PortConnected", "notify downstream component"))
		}
	}
	g.log.Debug("ports connected",
		"upstream", out.component.name, "out", out.name,
		"downstream", in.component.name, "in", in.name)
	return conn, nil
}

func (g *Graph) connectErr(err error) error {
	return errors.WrapInvalid(errors.ErrGraphConnection, "Graph", "ConnectPorts", err.Error())
}

// reaches reports whether target is reachable downstream from c.
func (g *Graph) reaches(c, target *Component) bool {
	if c == target {
		return true
	}
	for _, out := range c.outputs {
		if out.conn == nil {
			continue
		}
		if g.reaches(out.conn.downstream.component, target) {
			return true
		}
	}
	return false
}

func (g *Graph) operable() error {
	if g.released {
		return errors.Invalidf("graph is released")
	}
	if g.faultErr != nil {
		return errors.WrapFatal(g.faultErr, "Graph", "operable", "graph is in the faulty state")
	}
	return nil
}

func (g *Graph) configure() error {
	if g.configured {
		return nil
	}
	g.configured = true
	for _, c := range g.components {
		h, ok := c.user.(ConfiguredHandler)
		if !ok {
			continue
		}
		if err := h.GraphIsConfigured(); err != nil {
			return g.fault(errors.Wrap(err, c.class.Name, "GraphIsConfigured", "configure sink"))
		}
	}
	g.log.Debug("graph configured", "components", len(g.components))
	return nil
}

func (g *Graph) fault(err error) error {
	g.faultErr = err
	if g.metrics != nil {
		g.metrics.RecordFault()
	}
	g.log.Error("graph faulted", "error", err)
	return err
}

// RunOnce performs exactly one sink consume step. With several sinks
// the steps rotate between the sinks still running. It returns
// errors.ErrEnd once every sink ended.
func (g *Graph) RunOnce() error {
	if err := g.operable(); err != nil {
		return err
	}
	if len(g.sinkQueue) == 0 && !g.configured {
		return errors.Invalidf("graph has no sink component")
	}
	if err := g.configure(); err != nil {
		return err
	}
	if len(g.sinkQueue) == 0 {
		return errors.ErrEnd
	}

	sink := g.sinkQueue[0]
	start := time.Now()
	err := sink.user.(Consumer).Consume()
	if g.metrics != nil {
		g.metrics.RecordConsumeDuration(sink.name, time.Since(start))
	}

	switch {
	case err == nil:
		// Rotate so every sink makes progress.
		g.sinkQueue = append(g.sinkQueue[1:], sink)
		if g.metrics != nil {
			g.metrics.RecordRun("ok")
		}
		return nil
	case errors.IsEnd(err):
		g.sinkQueue = g.sinkQueue[1:]
		if g.metrics != nil {
			g.metrics.RecordRun("end")
		}
		if len(g.sinkQueue) == 0 {
			return errors.ErrEnd
		}
		return nil
	case errors.IsTransient(err):
		if g.metrics != nil {
			g.metrics.RecordRun("again")
		}
		return err
	default:
		if g.metrics != nil {
			g.metrics.RecordRun("error")
			g.metrics.RecordComponentError(sink.name, sink.class.Name)
		}
		return g.fault(errors.Wrap(err, sink.class.Name, "Consume", "run sink consume step"))
	}
}

// Run drives the graph until every sink ends. An interrupter or
// context cancellation stops it with a transient error so the caller
// may resume; transient sink errors propagate the same way.
func (g *Graph) Run(ctx context.Context) error {
	start := time.Now()
	status := "ok"
	defer func() {
		if g.metrics != nil {
			g.metrics.RecordRunDuration(status, time.Since(start))
		}
	}()

	for {
		if g.interrupter.IsSet() {
			if g.metrics != nil {
				g.metrics.RecordInterrupt()
			}
			status = "interrupted"
			return errors.WrapTransient(errors.ErrTryAgain, "Graph", "Run", "interrupted")
		}
		if err := ctx.Err(); err != nil {
			status = "canceled"
			return errors.WrapTransient(err, "Graph", "Run", "context done")
		}

		err := g.RunOnce()
		switch {
		case err == nil:
			continue
		case errors.IsEnd(err):
			return nil
		case errors.IsTransient(err):
			status = "again"
			return err
		default:
			status = "error"
			return err
		}
	}
}

// Release finalizes every component and drops the graph's native
// identity. The graph is unusable afterwards.
func (g *Graph) Release() {
	if g.released {
		return
	}
	g.released = true
	for i := len(g.components) - 1; i >= 0; i-- {
		g.components[i].finalize()
	}
	g.ref.Release()
}
