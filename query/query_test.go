package query

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antmicro/libbtrace/errors"
	"github.com/antmicro/libbtrace/graph"
)

func supportInfoClass(name string, answer func(input string) any) *graph.Class {
	return &graph.Class{
		Name: name,
		Kind: graph.KindSource,
		Query: func(ctx graph.QueryContext, object string) (any, error) {
			if object != ObjectSupportInfo {
				return nil, errors.ErrUnknownObject
			}
			input, _ := ctx.Params["input"].(string)
			return answer(input), nil
		},
	}
}

func TestExecutorUnknownObject(t *testing.T) {
	noHandler := &graph.Class{Name: "mute", Kind: graph.KindSource}
	ex, err := NewExecutor(noHandler, "anything", nil)
	require.NoError(t, err)
	_, err = ex.Query()
	assert.ErrorIs(t, err, errors.ErrUnknownObject)

	handled := supportInfoClass("src", func(string) any { return 1.0 })
	ex, err = NewExecutor(handled, "no.such.object", nil)
	require.NoError(t, err)
	_, err = ex.Query()
	assert.ErrorIs(t, err, errors.ErrUnknownObject)
}

func TestParseSupportInfoShapes(t *testing.T) {
	si, err := ParseSupportInfo(0.75)
	require.NoError(t, err)
	assert.Equal(t, 0.75, si.Weight)
	assert.Nil(t, si.Group)

	si, err = ParseSupportInfo(map[string]any{"weight": 0.5, "group": "session-a"})
	require.NoError(t, err)
	assert.Equal(t, 0.5, si.Weight)
	require.NotNil(t, si.Group)
	assert.Equal(t, "session-a", *si.Group)

	si, err = ParseSupportInfo(nil)
	require.NoError(t, err)
	assert.Zero(t, si.Weight)

	_, err = ParseSupportInfo("nope")
	assert.Error(t, err)
}

func TestDiscoverComponentsGroupingAndUnused(t *testing.T) {
	// ctf claims inputs starting with "ctf:", grouping them by the
	// session name after the prefix.
	ctf := supportInfoClass("ctf-like", func(input string) any {
		if !strings.HasPrefix(input, "ctf:") {
			return 0.0
		}
		session, _, _ := strings.Cut(strings.TrimPrefix(input, "ctf:"), "/")
		return map[string]any{"weight": 0.8, "group": session}
	})
	// txt weakly claims everything with no group.
	txt := supportInfoClass("txt-like", func(input string) any {
		if strings.HasPrefix(input, "txt:") {
			return 0.9
		}
		return 0.1
	})

	classes := []SourceClassRef{
		{PluginName: "ctf", Class: ctf},
		{PluginName: "text", Class: txt},
	}
	inputs := []string{"ctf:a/one", "txt:log", "ctf:a/two", "ctf:b/one"}

	comps, unused, err := DiscoverComponents(classes, inputs)
	require.NoError(t, err)
	assert.Empty(t, unused)
	require.Len(t, comps, 3)

	assert.Equal(t, "ctf", comps[0].PluginName)
	assert.Equal(t, []string{"ctf:a/one", "ctf:a/two"}, comps[0].Inputs)
	assert.Equal(t, []int{0, 2}, comps[0].OriginalIndices)

	assert.Equal(t, "text", comps[1].PluginName)
	assert.Equal(t, []string{"txt:log"}, comps[1].Inputs)

	assert.Equal(t, []string{"ctf:b/one"}, comps[2].Inputs)
}

func TestDiscoverComponentsReportsUnused(t *testing.T) {
	picky := supportInfoClass("picky", func(input string) any {
		if input == "good" {
			return 1.0
		}
		return 0.0
	})

	comps, unused, err := DiscoverComponents(
		[]SourceClassRef{{PluginName: "p", Class: picky}},
		[]string{"bad1", "good", "bad2"})
	require.NoError(t, err)
	require.Len(t, comps, 1)
	assert.Equal(t, []int{0, 2}, unused)
}

func TestParseTraceInfos(t *testing.T) {
	res := []any{
		map[string]any{
			"stream-infos": []any{
				map[string]any{
					"range-ns":  map[string]any{"begin": int64(0), "end": int64(100)},
					"port-name": "p0",
				},
				map[string]any{
					"range-ns":  map[string]any{"begin": int64(20), "end": int64(120)},
					"port-name": "p1",
				},
			},
		},
	}

	infos, err := ParseTraceInfos(res)
	require.NoError(t, err)
	want := []TraceInfo{{
		StreamInfos: []StreamInfo{
			{RangeNS: Range{BeginNS: 0, EndNS: 100}, PortName: "p0"},
			{RangeNS: Range{BeginNS: 20, EndNS: 120}, PortName: "p1"},
		},
	}}
	if diff := cmp.Diff(want, infos); diff != "" {
		t.Errorf("trace infos mismatch (-want +got):\n%s", diff)
	}

	_, err = ParseTraceInfos("bad")
	assert.Error(t, err)
}
