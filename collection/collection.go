// Package collection implements the trace collection iterator: it
// discovers source components for a set of inputs, assembles the full
// processing graph (sources, muxer, trimmers, declared filters, proxy
// sink) and hands out the merged message flow one message at a time.
package collection

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/antmicro/libbtrace/errors"
	"github.com/antmicro/libbtrace/graph"
	"github.com/antmicro/libbtrace/message"
	"github.com/antmicro/libbtrace/metric"
	"github.com/antmicro/libbtrace/native"
	"github.com/antmicro/libbtrace/plugin"
	"github.com/antmicro/libbtrace/processor/muxer"
	"github.com/antmicro/libbtrace/processor/trimmer"
	"github.com/antmicro/libbtrace/query"
)

// ComponentSpec names a component class to instantiate, with its
// initialization parameters. A nil Obj means no user object.
type ComponentSpec struct {
	Plugin   string
	Class    string
	Params   map[string]any
	LogLevel *slog.Level
	Obj      any
}

// SourceSpec is either a concrete component spec or an auto-discovery
// input string. Exactly one of the two fields is set.
type SourceSpec struct {
	Component *ComponentSpec
	Auto      *AutoSourceSpec
}

// AutoSourceSpec carries one input string whose source class is found
// by support-info discovery. When several inputs land in the same
// component, later specs overwrite earlier ones key by key; the last
// explicit LogLevel and the last non-nil Obj win.
type AutoSourceSpec struct {
	Input    string
	Params   map[string]any
	LogLevel *slog.Level
	Obj      any
}

// Source wraps a concrete component spec.
func Source(spec ComponentSpec) SourceSpec {
	return SourceSpec{Component: &spec}
}

// AutoSource wraps an auto-discovery input string.
func AutoSource(spec AutoSourceSpec) SourceSpec {
	return SourceSpec{Auto: &spec}
}

// Options configures an Iterator beyond its source and filter specs.
type Options struct {
	// StreamIntersection restricts every trace to the time window all
	// of its streams share.
	StreamIntersection bool

	// BeginNS/EndNS, when set, bound the whole flow with one trimmer
	// placed right after the muxer.
	BeginNS *int64
	EndNS   *int64

	// Registry overrides the plugin set. Defaults to a fresh registry
	// holding the builtins.
	Registry *plugin.Registry

	// Interrupter is shared by the graph and every query executor the
	// assembly runs. Defaults to a fresh one.
	Interrupter *graph.Interrupter

	Logger  *slog.Logger
	Metrics *metric.Metrics
}

// Iterator is the single entry point over a fully assembled trace
// processing graph. Not safe for concurrent use.
type Iterator struct {
	eng  *native.Engine
	g    *graph.Graph
	log  *slog.Logger
	slot *proxySlot

	ended bool
}

// New assembles the graph for the given sources and declared filter
// chain and returns the iterator over its merged flow.
func New(eng *native.Engine, sources []SourceSpec, filters []ComponentSpec, opts Options) (*Iterator, error) {
	if len(sources) == 0 {
		return nil, errors.Invalidf("no source specs")
	}

	reg := opts.Registry
	if reg == nil {
		reg = plugin.NewRegistry()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("subsystem", "collection")

	intr := opts.Interrupter
	if intr == nil {
		intr = graph.NewInterrupter()
	}

	b := &builder{
		eng:  eng,
		reg:  reg,
		log:  log,
		intr: intr,
		opts: opts,
	}
	if err := b.resolveSources(sources); err != nil {
		return nil, err
	}
	if err := b.resolveFilters(filters); err != nil {
		return nil, err
	}
	mip, err := b.selectMIP()
	if err != nil {
		return nil, err
	}
	log.Debug("protocol version selected", "mip", mip)

	if err := b.build(mip); err != nil {
		if b.g != nil {
			b.g.Release()
		}
		return nil, err
	}
	return &Iterator{eng: eng, g: b.g, log: log, slot: b.slot}, nil
}

// Next returns the next message of the merged flow. It runs exactly
// one graph consume step per call and returns errors.ErrEnd once the
// flow is exhausted.
func (it *Iterator) Next() (*message.Message, error) {
	if it.ended {
		return nil, errors.ErrEnd
	}

	if err := it.g.RunOnce(); err != nil {
		if errors.IsEnd(err) {
			it.ended = true
			return nil, errors.ErrEnd
		}
		return nil, err
	}

	m, ok := it.slot.take()
	if !ok {
		// One consume step deposits exactly one message by
		// construction; an empty slot means the graph is broken.
		return nil, errors.WrapFatal(
			errors.Invalidf("consume step deposited no message"),
			"Iterator", "Next", "drain proxy sink slot")
	}
	return m, nil
}

// Graph exposes the assembled graph, mainly for inspection in tests
// and tooling.
func (it *Iterator) Graph() *graph.Graph { return it.g }

// Interrupt sets the graph's default interrupter.
func (it *Iterator) Interrupt() { it.g.Interrupt() }

// Release tears the graph down.
func (it *Iterator) Release() {
	it.slot.clear()
	it.g.Release()
}

// resolvedSource is one source component to instantiate, with the
// trace-infos derived trimming windows when stream intersection is on.
type resolvedSource struct {
	spec ComponentSpec
	cls  *graph.Class

	// portWindows maps output port names to their intersection
	// windows, filled only in stream-intersection mode.
	portWindows map[string]query.Range
}

type builder struct {
	eng  *native.Engine
	reg  *plugin.Registry
	log  *slog.Logger
	intr *graph.Interrupter
	opts Options

	sources []*resolvedSource
	filters []struct {
		spec ComponentSpec
		cls  *graph.Class
	}

	g     *graph.Graph
	slot  *proxySlot
	names map[string]int

	// currentSource is the source whose component is being created, so
	// the port-added listener can find its intersection windows.
	currentSource *resolvedSource
	connectErr    error
}

// resolveSources turns every spec into a concrete class: concrete
// specs by registry lookup, auto specs through support-info discovery.
func (b *builder) resolveSources(specs []SourceSpec) error {
	var autos []*AutoSourceSpec
	for _, s := range specs {
		switch {
		case s.Component != nil && s.Auto != nil:
			return errors.Invalidf("source spec is both concrete and auto")
		case s.Component != nil:
			cls, err := b.reg.FindClass(s.Component.Plugin, graph.KindSource, s.Component.Class)
			if err != nil {
				return err
			}
			b.sources = append(b.sources, &resolvedSource{spec: *s.Component, cls: cls})
		case s.Auto != nil:
			autos = append(autos, s.Auto)
		default:
			return errors.Invalidf("empty source spec")
		}
	}
	if len(autos) == 0 {
		return nil
	}

	var classes []query.SourceClassRef
	for _, p := range b.reg.Plugins() {
		for _, c := range p.SourceClasses() {
			classes = append(classes, query.SourceClassRef{PluginName: p.Name(), Class: c})
		}
	}
	inputs := make([]string, len(autos))
	for i, a := range autos {
		inputs[i] = a.Input
	}

	discovered, unused, err := query.DiscoverComponents(classes, inputs,
		query.WithInterrupter(b.intr))
	if err != nil {
		return err
	}
	if len(unused) > 0 {
		parts := make([]string, len(unused))
		for i, idx := range unused {
			parts[i] = fmt.Sprintf("%q", inputs[idx])
		}
		return errors.WrapFatal(
			fmt.Errorf("%w: %s", errors.ErrUnusedInputs, strings.Join(parts, ", ")),
			"Iterator", "resolveSources", "check discovery coverage")
	}

	for _, d := range discovered {
		spec := ComponentSpec{
			Plugin: d.PluginName,
			Class:  d.ClassName,
			Params: map[string]any{"inputs": anyStrings(d.Inputs)},
		}
		// Merge rules: later contributing specs overwrite params key
		// by key; the last explicit log level and the last set user
		// object win.
		for _, idx := range d.OriginalIndices {
			a := autos[idx]
			for k, v := range a.Params {
				spec.Params[k] = v
			}
			if a.LogLevel != nil {
				spec.LogLevel = a.LogLevel
			}
			if a.Obj != nil {
				spec.Obj = a.Obj
			}
		}
		b.sources = append(b.sources, &resolvedSource{spec: spec, cls: d.Class})
		b.log.Debug("source discovered",
			"plugin", d.PluginName, "class", d.ClassName, "inputs", d.Inputs)
	}
	return nil
}

func (b *builder) resolveFilters(specs []ComponentSpec) error {
	for _, s := range specs {
		cls, err := b.reg.FindClass(s.Plugin, graph.KindFilter, s.Class)
		if err != nil {
			return err
		}
		b.filters = append(b.filters, struct {
			spec ComponentSpec
			cls  *graph.Class
		}{s, cls})
	}
	return nil
}

// selectMIP computes the greatest protocol version every participant
// supports.
func (b *builder) selectMIP() (uint64, error) {
	classes := []*graph.Class{muxer.Class()}
	for _, s := range b.sources {
		classes = append(classes, s.cls)
	}
	for _, f := range b.filters {
		classes = append(classes, f.cls)
	}
	if b.opts.BeginNS != nil || b.opts.EndNS != nil || b.opts.StreamIntersection {
		classes = append(classes, trimmer.Class())
	}
	return graph.GreatestOperativeMIPVersion(classes)
}

func (b *builder) build(mip uint64) error {
	g, err := graph.New(b.eng, mip, graph.Options{
		Logger:      b.log,
		Metrics:     b.opts.Metrics,
		Interrupter: b.intr,
	})
	if err != nil {
		return err
	}
	b.g = g
	b.names = make(map[string]int)

	// The muxer comes first; everything upstream funnels into it.
	mux, err := g.AddComponent(muxer.Class(), b.uniqueName("muxer"))
	if err != nil {
		return err
	}
	tail, err := mux.OutputPort("out")
	if err != nil {
		return err
	}

	if b.opts.BeginNS != nil || b.opts.EndNS != nil {
		params := map[string]any{}
		if b.opts.BeginNS != nil {
			params["begin"] = formatNS(*b.opts.BeginNS)
		}
		if b.opts.EndNS != nil {
			params["end"] = formatNS(*b.opts.EndNS)
		}
		if tail, err = b.chainFilter(trimmer.Class(), b.uniqueName("trimmer"), tail,
			graph.WithParams(params)); err != nil {
			return err
		}
	}

	for _, f := range b.filters {
		var fopts []graph.AddComponentOption
		if f.spec.Params != nil {
			fopts = append(fopts, graph.WithParams(f.spec.Params))
		}
		if f.spec.LogLevel != nil {
			fopts = append(fopts, graph.WithLogLevel(*f.spec.LogLevel))
		}
		if f.spec.Obj != nil {
			fopts = append(fopts, graph.WithObj(f.spec.Obj))
		}
		if tail, err = b.chainFilter(f.cls, b.uniqueName(f.spec.Class), tail, fopts...); err != nil {
			return err
		}
	}

	if b.opts.StreamIntersection {
		for _, s := range b.sources {
			if err := b.queryPortWindows(s); err != nil {
				return err
			}
		}
	}

	// Source output ports surface during AddComponent or later; wire
	// each one into the muxer as it appears.
	g.AddPortAddedListener(func(c *graph.Component, p *graph.Port) {
		if b.connectErr != nil || c.Kind() != graph.KindSource || p.Direction() != graph.PortOutput {
			return
		}
		if err := b.connectSourcePort(mux, c, p); err != nil {
			b.connectErr = err
		}
	})

	for _, s := range b.sources {
		var copts []graph.AddComponentOption
		if s.spec.Params != nil {
			copts = append(copts, graph.WithParams(s.spec.Params))
		}
		if s.spec.LogLevel != nil {
			copts = append(copts, graph.WithLogLevel(*s.spec.LogLevel))
		}
		if s.spec.Obj != nil {
			copts = append(copts, graph.WithObj(s.spec.Obj))
		}
		b.currentSource = s
		if _, err := g.AddComponent(s.cls, b.uniqueName(s.spec.Class), copts...); err != nil {
			return err
		}
		b.currentSource = nil
		if b.connectErr != nil {
			return b.connectErr
		}
	}

	// Terminal proxy sink behind the last filter in the chain.
	b.slot = &proxySlot{}
	sinkComp, err := g.AddComponent(proxySinkClass(b.slot), b.uniqueName("proxy-sink"))
	if err != nil {
		return err
	}
	sinkIn, err := sinkComp.InputPort("in")
	if err != nil {
		return err
	}
	_, err = g.ConnectPorts(tail, sinkIn)
	return err
}

// chainFilter adds a single-input single-output filter and hangs it
// off tail, returning the filter's output port as the new tail.
func (b *builder) chainFilter(cls *graph.Class, name string, tail *graph.Port, opts ...graph.AddComponentOption) (*graph.Port, error) {
	comp, err := b.g.AddComponent(cls, name, opts...)
	if err != nil {
		return nil, err
	}
	ins := comp.InputPorts()
	outs := comp.OutputPorts()
	if len(ins) != 1 || len(outs) != 1 {
		return nil, errors.Invalidf("filter %q must have exactly one input and one output port, has %d and %d",
			name, len(ins), len(outs))
	}
	if _, err := b.g.ConnectPorts(tail, ins[0]); err != nil {
		return nil, err
	}
	return outs[0], nil
}

// connectSourcePort wires one freshly surfaced source output port into
// the muxer, with a per-port trimmer in stream-intersection mode.
func (b *builder) connectSourcePort(mux *graph.Component, c *graph.Component, p *graph.Port) error {
	upstream := p

	if b.opts.StreamIntersection {
		src := b.currentSource
		if src == nil {
			return errors.Invalidf("port %q surfaced outside source creation", p.Name())
		}
		window, ok := src.portWindows[p.Name()]
		if !ok {
			return errors.Invalidf("no intersection window for port %q of %q", p.Name(), c.Name())
		}
		tr, err := b.g.AddComponent(trimmer.Class(), b.uniqueName("trimmer"),
			graph.WithParams(map[string]any{
				"begin": formatNS(window.BeginNS),
				"end":   formatNS(window.EndNS),
			}))
		if err != nil {
			return err
		}
		in, err := tr.InputPort("in")
		if err != nil {
			return err
		}
		if _, err := b.g.ConnectPorts(p, in); err != nil {
			return err
		}
		if upstream, err = tr.OutputPort("out"); err != nil {
			return err
		}
	}

	free := freeMuxerInput(mux)
	if free == nil {
		return errors.Invalidf("muxer has no free input port")
	}
	_, err := b.g.ConnectPorts(upstream, free)
	return err
}

// queryPortWindows runs the trace-infos query for one source spec and
// reduces each trace to the window its streams share: the greatest
// begin and the smallest end.
func (b *builder) queryPortWindows(s *resolvedSource) error {
	ex, err := query.NewExecutor(s.cls, query.ObjectTraceInfos, s.spec.Params,
		query.WithInterrupter(b.intr))
	if err != nil {
		return err
	}
	res, err := ex.Query()
	if err != nil {
		return errors.Wrap(err, s.cls.Name, "queryPortWindows", "trace-infos query")
	}
	infos, err := query.ParseTraceInfos(res)
	if err != nil {
		return err
	}

	s.portWindows = make(map[string]query.Range)
	for _, ti := range infos {
		if len(ti.StreamInfos) == 0 {
			continue
		}
		window := ti.StreamInfos[0].RangeNS
		for _, si := range ti.StreamInfos[1:] {
			if si.RangeNS.BeginNS > window.BeginNS {
				window.BeginNS = si.RangeNS.BeginNS
			}
			if si.RangeNS.EndNS < window.EndNS {
				window.EndNS = si.RangeNS.EndNS
			}
		}
		for _, si := range ti.StreamInfos {
			s.portWindows[si.PortName] = window
		}
	}
	return nil
}

// uniqueName disambiguates display names with an integer suffix
// starting at 1.
func (b *builder) uniqueName(base string) string {
	n, seen := b.names[base]
	if !seen {
		b.names[base] = 0
		return base
	}
	for {
		n++
		candidate := fmt.Sprintf("%s-%d", base, n)
		if _, taken := b.names[candidate]; !taken {
			b.names[base] = n
			b.names[candidate] = 0
			return candidate
		}
	}
}

func freeMuxerInput(mux *graph.Component) *graph.Port {
	for _, p := range mux.InputPorts() {
		if !p.IsConnected() {
			return p
		}
	}
	return nil
}

// formatNS renders nanoseconds from origin as the "s.ns" string form
// the trimmer parses, fraction padded to nine digits.
func formatNS(ns int64) string {
	neg := ns < 0
	if neg {
		ns = -ns
	}
	s := fmt.Sprintf("%d.%09d", ns/1_000_000_000, ns%1_000_000_000)
	if neg {
		return "-" + s
	}
	return s
}

func anyStrings(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
