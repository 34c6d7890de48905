// Package query runs queries against component classes: the generic
// executor plus the conventional objects powering trace discovery.
package query

import (
	"log/slog"

	"github.com/antmicro/libbtrace/errors"
	"github.com/antmicro/libbtrace/graph"
)

// Conventional query object names.
const (
	ObjectSupportInfo = "babeltrace.support-info"
	ObjectTraceInfos  = "babeltrace.trace-infos"
)

// Executor queries one component class about one object. It is built
// once per query, in line with the one-shot executors of the reference
// toolkit.
type Executor struct {
	class       *graph.Class
	object      string
	params      map[string]any
	logLevel    slog.Level
	interrupter *graph.Interrupter
}

// ExecutorOption tunes an executor.
type ExecutorOption func(*Executor)

// WithLogLevel sets the log level handed to the query handler.
func WithLogLevel(level slog.Level) ExecutorOption {
	return func(e *Executor) { e.logLevel = level }
}

// WithInterrupter shares an interrupter with the query handler.
func WithInterrupter(i *graph.Interrupter) ExecutorOption {
	return func(e *Executor) { e.interrupter = i }
}

// NewExecutor prepares a query of object on class with params.
func NewExecutor(class *graph.Class, object string, params map[string]any, opts ...ExecutorOption) (*Executor, error) {
	if class == nil {
		return nil, errors.Invalidf("query needs a component class")
	}
	if object == "" {
		return nil, errors.Invalidf("query needs an object name")
	}

	e := &Executor{
		class:       class,
		object:      object,
		params:      params,
		logLevel:    slog.LevelInfo,
		interrupter: graph.NewInterrupter(),
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Interrupt sets the executor's interrupter.
func (e *Executor) Interrupt() { e.interrupter.Set() }

// Query runs the query. Classes without a handler, and handlers that
// do not recognize the object, answer errors.ErrUnknownObject.
func (e *Executor) Query() (any, error) {
	if e.class.Query == nil {
		return nil, errors.WrapInvalid(errors.ErrUnknownObject, e.class.Name, "Query",
			"class has no query handler")
	}

	res, err := e.class.Query(graph.QueryContext{
		Params:      e.params,
		LogLevel:    e.logLevel,
		Interrupter: e.interrupter,
	}, e.object)
	if err != nil {
		if errors.Is(err, errors.ErrUnknownObject) || errors.IsTransient(err) {
			return nil, err
		}
		return nil, errors.Wrap(err, e.class.Name, "Query", "run query handler")
	}
	return res, nil
}
