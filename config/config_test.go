package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antmicro/libbtrace/errors"
)

func TestParseFullDocument(t *testing.T) {
	cfg, err := Parse([]byte(`{
		"sources": [
			"net://relay-a",
			{"input": "net://relay-b", "params": {"session": "demo"}},
			{"plugin": "text", "class": "dmesg", "params": {"path": "/var/log/dmesg"}}
		],
		"filters": [
			{"plugin": "utils", "class": "trimmer", "params": {"begin": "1.000000000"}}
		],
		"stream-intersection": true,
		"begin-ns": 5,
		"end-ns": 100
	}`))
	require.NoError(t, err)

	require.Len(t, cfg.Sources, 3)
	assert.Equal(t, "net://relay-a", cfg.Sources[0].Input)
	assert.Equal(t, "net://relay-b", cfg.Sources[1].Input)
	assert.Equal(t, map[string]any{"session": "demo"}, cfg.Sources[1].Params)
	require.NotNil(t, cfg.Sources[2].Component)
	assert.Equal(t, "text", cfg.Sources[2].Component.Plugin)
	assert.Equal(t, "dmesg", cfg.Sources[2].Component.Class)

	require.Len(t, cfg.Filters, 1)
	assert.Equal(t, "trimmer", cfg.Filters[0].Class)
	assert.True(t, cfg.StreamIntersection)
	require.NotNil(t, cfg.BeginNS)
	assert.EqualValues(t, 5, *cfg.BeginNS)
	require.NotNil(t, cfg.EndNS)
	assert.EqualValues(t, 100, *cfg.EndNS)
}

func TestParseRejectsBadDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{"sources": [`},
		{"no sources key", `{"filters": []}`},
		{"empty sources", `{"sources": []}`},
		{"unknown top-level key", `{"sources": ["x"], "bogus": 1}`},
		{"filter without class", `{"sources": ["x"], "filters": [{"plugin": "utils"}]}`},
		{"non-integer bound", `{"sources": ["x"], "begin-ns": "soon"}`},
		{"empty input string", `{"sources": [""]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err) || errors.Is(err, errors.ErrInvalidConfig))
		})
	}
}

func TestParseRejectsInvertedWindow(t *testing.T) {
	_, err := Parse([]byte(`{"sources": ["x"], "begin-ns": 10, "end-ns": 5}`))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestParseRejectsComponentWithoutPlugin(t *testing.T) {
	_, err := Parse([]byte(`{"sources": [{"class": "dmesg"}]}`))
	require.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	cfg, err := Parse([]byte(`{
		"sources": [{"plugin": "text", "class": "dmesg", "log-level": "DEBUG"}]
	}`))
	require.NoError(t, err)
	spec, err := cfg.Sources[0].Component.toSpec()
	require.NoError(t, err)
	require.NotNil(t, spec.LogLevel)
	assert.Equal(t, "DEBUG", spec.LogLevel.String())

	cfg, err = Parse([]byte(`{
		"sources": [{"plugin": "text", "class": "dmesg", "log-level": "chatty"}]
	}`))
	require.NoError(t, err)
	_, err = cfg.Sources[0].Component.toSpec()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sources": ["trace-dir"]}`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Sources, 1)
	assert.Equal(t, "trace-dir", cfg.Sources[0].Input)
}
