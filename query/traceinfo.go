package query

import "github.com/antmicro/libbtrace/errors"

// Range is a closed time interval in nanoseconds from origin.
type Range struct {
	BeginNS int64
	EndNS   int64
}

// StreamInfo describes one stream of a trace-infos answer: its time
// range and the output port that will carry it.
type StreamInfo struct {
	RangeNS  Range
	PortName string
}

// TraceInfo groups the stream infos of one trace.
type TraceInfo struct {
	StreamInfos []StreamInfo
}

// ParseTraceInfos decodes the conventional babeltrace.trace-infos
// result shape: a list of traces, each with a "stream-infos" list of
// maps holding "range-ns" {"begin","end"} and "port-name".
func ParseTraceInfos(res any) ([]TraceInfo, error) {
	raw, ok := res.([]any)
	if !ok {
		return nil, errors.Invalidf("trace-infos result has type %T, want a list", res)
	}

	out := make([]TraceInfo, 0, len(raw))
	for _, t := range raw {
		tm, ok := t.(map[string]any)
		if !ok {
			return nil, errors.Invalidf("trace info has type %T, want a map", t)
		}
		streams, ok := tm["stream-infos"].([]any)
		if !ok {
			return nil, errors.Invalidf("trace info has no stream-infos list")
		}

		var ti TraceInfo
		for _, s := range streams {
			sm, ok := s.(map[string]any)
			if !ok {
				return nil, errors.Invalidf("stream info has type %T, want a map", s)
			}
			rng, ok := sm["range-ns"].(map[string]any)
			if !ok {
				return nil, errors.Invalidf("stream info has no range-ns map")
			}
			begin, err := asInt64(rng["begin"])
			if err != nil {
				return nil, errors.Invalidf("stream info range begin: %v", err)
			}
			end, err := asInt64(rng["end"])
			if err != nil {
				return nil, errors.Invalidf("stream info range end: %v", err)
			}
			port, _ := sm["port-name"].(string)
			ti.StreamInfos = append(ti.StreamInfos, StreamInfo{
				RangeNS:  Range{BeginNS: begin, EndNS: end},
				PortName: port,
			})
		}
		out = append(out, ti)
	}
	return out, nil
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, errors.Invalidf("value has type %T, want an integer", v)
	}
}
