package trace

import (
	"sort"

	"github.com/antmicro/libbtrace/errors"
	"github.com/antmicro/libbtrace/native"
	"github.com/antmicro/libbtrace/object"
)

// TraceClass is the static schema of a trace. It owns stream classes
// keyed by numeric id; ids are either assigned automatically or
// explicitly, mutually exclusive per trace class.
type TraceClass struct {
	eng *native.Engine
	ref *object.SharedRef

	assignsAutomaticStreamClassID bool
	streamClasses                 map[uint64]*StreamClass
	nextStreamClassID             uint64
	userAttr                      map[string]any
	listeners                     destructionListeners
}

// TraceClassOptions configures NewTraceClass.
type TraceClassOptions struct {
	// AssignsAutomaticStreamClassID defaults to true.
	AssignsAutomaticStreamClassID *bool
	UserAttributes                map[string]any
}

// NewTraceClass creates a trace class on the engine.
func NewTraceClass(eng *native.Engine, opts TraceClassOptions) *TraceClass {
	auto := true
	if opts.AssignsAutomaticStreamClassID != nil {
		auto = *opts.AssignsAutomaticStreamClassID
	}

	tc := &TraceClass{
		eng:                           eng,
		assignsAutomaticStreamClassID: auto,
		streamClasses:                 make(map[uint64]*StreamClass),
		userAttr:                      opts.UserAttributes,
	}
	h := eng.Allocate("trace-class", tc.listeners.fire)
	tc.ref = object.Move(eng, h)
	return tc
}

// AssignsAutomaticStreamClassID reports the id assignment mode.
func (tc *TraceClass) AssignsAutomaticStreamClassID() bool {
	return tc.assignsAutomaticStreamClassID
}

// UserAttributes returns the trace class's user attributes.
func (tc *TraceClass) UserAttributes() map[string]any { return tc.userAttr }

// SetUserAttributes sets the trace class's user attributes.
func (tc *TraceClass) SetUserAttributes(attrs map[string]any) { tc.userAttr = attrs }

// StreamClassCount returns the number of stream classes.
func (tc *TraceClass) StreamClassCount() int { return len(tc.streamClasses) }

// StreamClassByID returns the stream class with the given id.
func (tc *TraceClass) StreamClassByID(id uint64) (*StreamClass, error) {
	sc, ok := tc.streamClasses[id]
	if !ok {
		return nil, errors.Invalidf("no stream class with id %d", id)
	}
	return sc, nil
}

// StreamClassIDs returns the stream class ids in increasing order.
func (tc *TraceClass) StreamClassIDs() []uint64 {
	ids := make([]uint64, 0, len(tc.streamClasses))
	for id := range tc.streamClasses {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CreateStreamClass creates a stream class owned by this trace class.
// The options are validated before any state changes.
func (tc *TraceClass) CreateStreamClass(opts StreamClassOptions) (*StreamClass, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	var id uint64
	if tc.assignsAutomaticStreamClassID {
		if opts.ID != nil {
			return nil, errors.Invalidf("id provided, but trace class assigns automatic stream class ids")
		}
		id = tc.nextStreamClassID
		tc.nextStreamClassID++
	} else {
		if opts.ID == nil {
			return nil, errors.Invalidf("id not provided, but trace class does not assign automatic stream class ids")
		}
		id = *opts.ID
		if _, exists := tc.streamClasses[id]; exists {
			return nil, errors.Invalidf("duplicate stream class id %d", id)
		}
	}

	sc := newStreamClass(tc, id, opts)
	tc.streamClasses[id] = sc
	return sc, nil
}

// AddDestructionListener registers a one-shot callback invoked when
// the trace class is destroyed.
func (tc *TraceClass) AddDestructionListener(fn func()) (ListenerHandle, error) {
	return tc.listeners.add(fn)
}

// RemoveDestructionListener removes a previously registered listener.
func (tc *TraceClass) RemoveDestructionListener(h ListenerHandle) error {
	return tc.listeners.remove(h)
}

// Handle exposes the native handle for ownership wiring.
func (tc *TraceClass) Handle() native.Handle { return tc.ref.Handle() }

// Release drops the trace class's own reference. The class stays alive
// while stream classes or trace instances still reference it.
func (tc *TraceClass) Release() { tc.ref.Release() }
