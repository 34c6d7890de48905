// Package plugin groups component classes into named plugins and
// keeps a thread-safe registry of them.
package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/antmicro/libbtrace/errors"
	"github.com/antmicro/libbtrace/graph"
)

// Plugin is a named bundle of component classes.
type Plugin struct {
	name        string
	description string

	sources map[string]*graph.Class
	filters map[string]*graph.Class
	sinks   map[string]*graph.Class
}

// New creates an empty plugin.
func New(name, description string) *Plugin {
	return &Plugin{
		name:        name,
		description: description,
		sources:     make(map[string]*graph.Class),
		filters:     make(map[string]*graph.Class),
		sinks:       make(map[string]*graph.Class),
	}
}

// Name returns the plugin name.
func (p *Plugin) Name() string { return p.name }

// Description returns the plugin description.
func (p *Plugin) Description() string { return p.description }

// AddClass adds a component class. Class names are unique per kind
// within a plugin.
func (p *Plugin) AddClass(c *graph.Class) error {
	if c == nil || c.Name == "" {
		return errors.Invalidf("component class has no name")
	}
	byKind := p.classes(c.Kind)
	if _, exists := byKind[c.Name]; exists {
		return errors.Invalidf("plugin %q already has %s class %q", p.name, c.Kind, c.Name)
	}
	byKind[c.Name] = c
	return nil
}

// Class returns the class with the given kind and name.
func (p *Plugin) Class(kind graph.ComponentKind, name string) (*graph.Class, error) {
	c, ok := p.classes(kind)[name]
	if !ok {
		return nil, errors.Invalidf("plugin %q has no %s class %q", p.name, kind, name)
	}
	return c, nil
}

// SourceClasses returns the plugin's source classes sorted by name.
func (p *Plugin) SourceClasses() []*graph.Class { return sortedClasses(p.sources) }

// FilterClasses returns the plugin's filter classes sorted by name.
func (p *Plugin) FilterClasses() []*graph.Class { return sortedClasses(p.filters) }

// SinkClasses returns the plugin's sink classes sorted by name.
func (p *Plugin) SinkClasses() []*graph.Class { return sortedClasses(p.sinks) }

func (p *Plugin) classes(kind graph.ComponentKind) map[string]*graph.Class {
	switch kind {
	case graph.KindSource:
		return p.sources
	case graph.KindFilter:
		return p.filters
	default:
		return p.sinks
	}
}

func sortedClasses(m map[string]*graph.Class) []*graph.Class {
	out := make([]*graph.Class, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Registry manages plugins. It provides thread-safe registration and
// lookup.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]*Plugin
}

// NewRegistry creates a registry already holding the builtin plugins.
func NewRegistry() *Registry {
	r := &Registry{plugins: make(map[string]*Plugin)}
	// The utils plugin is always available.
	if err := r.Register(utilsPlugin()); err != nil {
		panic(fmt.Sprintf("plugin: registering builtin utils: %v", err))
	}
	return r
}

// Register adds a plugin under its name.
func (r *Registry) Register(p *Plugin) error {
	if p == nil || p.name == "" {
		return errors.Invalidf("plugin has no name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.plugins[p.name]; exists {
		return errors.Invalidf("plugin %q is already registered", p.name)
	}
	r.plugins[p.name] = p
	return nil
}

// Find returns the plugin with the given name.
func (r *Registry) Find(name string) (*Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	if !ok {
		return nil, errors.Invalidf("no plugin named %q", name)
	}
	return p, nil
}

// FindClass resolves plugin-name/class-kind/class-name in one lookup.
func (r *Registry) FindClass(pluginName string, kind graph.ComponentKind, className string) (*graph.Class, error) {
	p, err := r.Find(pluginName)
	if err != nil {
		return nil, err
	}
	return p.Class(kind, className)
}

// Plugins returns all registered plugins sorted by name.
func (r *Registry) Plugins() []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}
