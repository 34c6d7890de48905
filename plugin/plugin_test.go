package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antmicro/libbtrace/graph"
	"github.com/antmicro/libbtrace/processor/muxer"
	"github.com/antmicro/libbtrace/processor/trimmer"
)

func class(kind graph.ComponentKind, name string) *graph.Class {
	return &graph.Class{Name: name, Kind: kind}
}

func TestPluginClassLookup(t *testing.T) {
	p := New("text", "text format classes")
	require.NoError(t, p.AddClass(class(graph.KindSource, "dmesg")))
	require.NoError(t, p.AddClass(class(graph.KindSink, "pretty")))

	// The same name is free in another kind.
	require.NoError(t, p.AddClass(class(graph.KindFilter, "dmesg")))
	require.Error(t, p.AddClass(class(graph.KindSource, "dmesg")))

	c, err := p.Class(graph.KindSource, "dmesg")
	require.NoError(t, err)
	assert.Equal(t, "dmesg", c.Name)

	_, err = p.Class(graph.KindSink, "dmesg")
	assert.Error(t, err)
}

func TestPluginClassesSorted(t *testing.T) {
	p := New("x", "")
	require.NoError(t, p.AddClass(class(graph.KindSource, "zeta")))
	require.NoError(t, p.AddClass(class(graph.KindSource, "alpha")))
	require.NoError(t, p.AddClass(class(graph.KindSource, "mid")))

	var names []string
	for _, c := range p.SourceClasses() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}

func TestRegistryHoldsUtilsPlugin(t *testing.T) {
	r := NewRegistry()

	p, err := r.Find(UtilsPluginName)
	require.NoError(t, err)
	assert.Equal(t, UtilsPluginName, p.Name())

	mux, err := r.FindClass(UtilsPluginName, graph.KindFilter, muxer.ClassName)
	require.NoError(t, err)
	assert.True(t, mux.Builtin)

	trim, err := r.FindClass(UtilsPluginName, graph.KindFilter, trimmer.ClassName)
	require.NoError(t, err)
	assert.True(t, trim.Builtin)
}

func TestRegistryRegistration(t *testing.T) {
	r := NewRegistry()

	require.Error(t, r.Register(nil))
	require.Error(t, r.Register(New("", "")))

	p := New("text", "")
	require.NoError(t, r.Register(p))
	require.Error(t, r.Register(New("text", "")), "plugin names are unique")

	_, err := r.Find("absent")
	assert.Error(t, err)

	names := make([]string, 0, 2)
	for _, pl := range r.Plugins() {
		names = append(names, pl.Name())
	}
	assert.Equal(t, []string{"text", UtilsPluginName}, names)
}
