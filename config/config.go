// Package config loads and validates pipeline configuration documents
// and turns them into running collection iterators.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/xeipuuv/gojsonschema"

	"github.com/antmicro/libbtrace/collection"
	"github.com/antmicro/libbtrace/errors"
	"github.com/antmicro/libbtrace/metric"
	"github.com/antmicro/libbtrace/native"
	"github.com/antmicro/libbtrace/plugin"
)

// ComponentSpec is the JSON form of one component to instantiate.
type ComponentSpec struct {
	Plugin   string         `json:"plugin"`
	Class    string         `json:"class"`
	Params   map[string]any `json:"params,omitempty"`
	LogLevel string         `json:"log-level,omitempty"`
}

// SourceSpec is either a concrete component spec or a bare input
// string handed to auto-discovery. Exactly one branch is set; the
// custom unmarshaler accepts both JSON shapes.
type SourceSpec struct {
	Input     string
	Component *ComponentSpec
	Params    map[string]any
}

// UnmarshalJSON accepts a plain string (an input for discovery) or an
// object (a concrete component spec, or {"input": ..., "params": ...}).
func (s *SourceSpec) UnmarshalJSON(data []byte) error {
	var input string
	if err := json.Unmarshal(data, &input); err == nil {
		s.Input = input
		return nil
	}

	var obj struct {
		Input  string         `json:"input"`
		Plugin string         `json:"plugin"`
		Class  string         `json:"class"`
		Params map[string]any `json:"params,omitempty"`

		LogLevel string `json:"log-level,omitempty"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj.Input != "" {
		s.Input = obj.Input
		s.Params = obj.Params
		return nil
	}
	s.Component = &ComponentSpec{
		Plugin:   obj.Plugin,
		Class:    obj.Class,
		Params:   obj.Params,
		LogLevel: obj.LogLevel,
	}
	return nil
}

// PipelineConfig is the top-level configuration document.
type PipelineConfig struct {
	Sources            []SourceSpec    `json:"sources"`
	Filters            []ComponentSpec `json:"filters,omitempty"`
	StreamIntersection bool            `json:"stream-intersection,omitempty"`
	BeginNS            *int64          `json:"begin-ns,omitempty"`
	EndNS              *int64          `json:"end-ns,omitempty"`
}

// Load reads and validates a pipeline configuration file.
func Load(path string) (*PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: %v", errors.ErrMissingConfig, err),
			"PipelineConfig", "Load", "read configuration file")
	}
	return Parse(data)
}

// Parse validates raw JSON against the pipeline schema and decodes it.
func Parse(data []byte) (*PipelineConfig, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(pipelineSchema),
		gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"PipelineConfig", "Parse", "run schema validation")
	}
	if !result.Valid() {
		msg := ""
		for _, e := range result.Errors() {
			if msg != "" {
				msg += "; "
			}
			msg += e.String()
		}
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, msg),
			"PipelineConfig", "Parse", "check schema constraints")
	}

	var cfg PipelineConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"PipelineConfig", "Parse", "decode configuration")
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// check covers the constraints the schema cannot express.
func (c *PipelineConfig) check() error {
	if len(c.Sources) == 0 {
		return errors.Invalidf("pipeline has no sources")
	}
	if c.BeginNS != nil && c.EndNS != nil && *c.BeginNS > *c.EndNS {
		return errors.Invalidf("pipeline begin %d is after end %d", *c.BeginNS, *c.EndNS)
	}
	for i, s := range c.Sources {
		if s.Input == "" && s.Component == nil {
			return errors.Invalidf("source %d is neither an input nor a component spec", i)
		}
		if s.Component != nil && (s.Component.Plugin == "" || s.Component.Class == "") {
			return errors.Invalidf("source %d names no plugin or class", i)
		}
	}
	for i, f := range c.Filters {
		if f.Plugin == "" || f.Class == "" {
			return errors.Invalidf("filter %d names no plugin or class", i)
		}
	}
	return nil
}

// BuildOptions carries the runtime pieces a configuration document
// does not describe.
type BuildOptions struct {
	Registry *plugin.Registry
	Logger   *slog.Logger
	Metrics  *metric.Metrics
}

// Build assembles the collection iterator the document describes.
func (c *PipelineConfig) Build(eng *native.Engine, opts BuildOptions) (*collection.Iterator, error) {
	var sources []collection.SourceSpec
	for _, s := range c.Sources {
		if s.Input != "" {
			sources = append(sources, collection.AutoSource(collection.AutoSourceSpec{
				Input:  s.Input,
				Params: s.Params,
			}))
			continue
		}
		spec, err := s.Component.toSpec()
		if err != nil {
			return nil, err
		}
		sources = append(sources, collection.Source(spec))
	}

	var filters []collection.ComponentSpec
	for _, f := range c.Filters {
		spec, err := f.toSpec()
		if err != nil {
			return nil, err
		}
		filters = append(filters, spec)
	}

	return collection.New(eng, sources, filters, collection.Options{
		StreamIntersection: c.StreamIntersection,
		BeginNS:            c.BeginNS,
		EndNS:              c.EndNS,
		Registry:           opts.Registry,
		Logger:             opts.Logger,
		Metrics:            opts.Metrics,
	})
}

func (s *ComponentSpec) toSpec() (collection.ComponentSpec, error) {
	out := collection.ComponentSpec{
		Plugin: s.Plugin,
		Class:  s.Class,
		Params: s.Params,
	}
	if s.LogLevel != "" {
		level, err := parseLogLevel(s.LogLevel)
		if err != nil {
			return collection.ComponentSpec{}, err
		}
		out.LogLevel = &level
	}
	return out, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, errors.WrapInvalid(
			fmt.Errorf("%w: unknown log level %q", errors.ErrInvalidConfig, s),
			"PipelineConfig", "parseLogLevel", "parse component log level")
	}
	return level, nil
}
