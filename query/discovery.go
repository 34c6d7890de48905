package query

import (
	"fmt"

	"github.com/antmicro/libbtrace/errors"
	"github.com/antmicro/libbtrace/graph"
)

// Input types a support-info query distinguishes.
const (
	InputTypeString    = "string"
	InputTypeFile      = "file"
	InputTypeDirectory = "directory"
)

// SupportInfo is the parsed answer of a babeltrace.support-info query.
// A weight of zero means the class does not handle the input; inputs
// answered with the same non-nil group belong to one component.
type SupportInfo struct {
	Weight float64
	Group  *string
}

// ParseSupportInfo accepts the two conventional result shapes: a bare
// weight, or a map with "weight" and an optional "group".
func ParseSupportInfo(res any) (SupportInfo, error) {
	switch v := res.(type) {
	case nil:
		return SupportInfo{}, nil
	case float64:
		return SupportInfo{Weight: v}, nil
	case int:
		return SupportInfo{Weight: float64(v)}, nil
	case map[string]any:
		var si SupportInfo
		switch w := v["weight"].(type) {
		case nil:
		case float64:
			si.Weight = w
		case int:
			si.Weight = float64(w)
		default:
			return SupportInfo{}, errors.Invalidf("support-info weight has type %T", v["weight"])
		}
		if g, ok := v["group"]; ok && g != nil {
			s, ok := g.(string)
			if !ok {
				return SupportInfo{}, errors.Invalidf("support-info group has type %T", g)
			}
			si.Group = &s
		}
		return si, nil
	default:
		return SupportInfo{}, errors.Invalidf("support-info result has type %T", res)
	}
}

// SourceClassRef names a source class together with the plugin it came
// from.
type SourceClassRef struct {
	PluginName string
	Class      *graph.Class
}

// DiscoveredComponent is one source component the discovery decided to
// instantiate.
type DiscoveredComponent struct {
	PluginName string
	ClassName  string
	Class      *graph.Class

	// Inputs are the consumed input strings, in submission order;
	// OriginalIndices are their positions in the submitted list.
	Inputs          []string
	OriginalIndices []int
}

// DiscoverComponents submits every input to the support-info handler
// of every given source class. Each input goes to the class answering
// with the greatest positive weight; inputs sharing a class and a
// support-info group merge into one component. The second result lists
// the indices of inputs no class claimed.
func DiscoverComponents(classes []SourceClassRef, inputs []string, opts ...ExecutorOption) ([]DiscoveredComponent, []int, error) {
	type winner struct {
		ref   SourceClassRef
		group *string
	}

	var components []DiscoveredComponent
	slot := make(map[string]int)
	var unused []int

	for idx, input := range inputs {
		var best *winner
		bestWeight := 0.0

		for _, ref := range classes {
			if ref.Class.Query == nil {
				continue
			}
			ex, err := NewExecutor(ref.Class, ObjectSupportInfo, map[string]any{
				"input": input,
				"type":  InputTypeString,
			}, opts...)
			if err != nil {
				return nil, nil, err
			}
			res, err := ex.Query()
			if err != nil {
				if errors.Is(err, errors.ErrUnknownObject) {
					continue
				}
				return nil, nil, errors.Wrap(err, ref.Class.Name, "DiscoverComponents",
					fmt.Sprintf("support-info query for input %q", input))
			}
			si, err := ParseSupportInfo(res)
			if err != nil {
				return nil, nil, err
			}
			if si.Weight > bestWeight {
				bestWeight = si.Weight
				best = &winner{ref: ref, group: si.Group}
			}
		}

		if best == nil {
			unused = append(unused, idx)
			continue
		}

		key := best.ref.PluginName + "\x00" + best.ref.Class.Name
		if best.group != nil {
			key += "\x00" + *best.group
		} else {
			// Ungrouped inputs each get their own component.
			key += fmt.Sprintf("\x00#%d", idx)
		}

		pos, ok := slot[key]
		if !ok {
			pos = len(components)
			slot[key] = pos
			components = append(components, DiscoveredComponent{
				PluginName: best.ref.PluginName,
				ClassName:  best.ref.Class.Name,
				Class:      best.ref.Class,
			})
		}
		components[pos].Inputs = append(components[pos].Inputs, input)
		components[pos].OriginalIndices = append(components[pos].OriginalIndices, idx)
	}

	return components, unused, nil
}
