// Package trimmer implements the utils.trimmer filter: it drops
// event and inactivity messages whose default clock snapshot falls
// outside a [begin, end] window. Boundary messages pass through.
package trimmer

import (
	"strconv"
	"strings"

	"github.com/antmicro/libbtrace/errors"
	"github.com/antmicro/libbtrace/graph"
	"github.com/antmicro/libbtrace/message"
)

// ClassName is the trimmer's class name inside the utils plugin.
const ClassName = "trimmer"

// Class returns the trimmer component class.
func Class() *graph.Class {
	return &graph.Class{
		Name:        ClassName,
		Description: "Discard messages outside a time window",
		Kind:        graph.KindFilter,
		MIPVersions: []uint64{0, 1},
		Builtin:     true,
		Factory:     newTrimmer,
	}
}

type trimmer struct {
	self *graph.SelfComponent
	in   *graph.Port

	beginNS, endNS int64
	hasBegin       bool
	hasEnd         bool
}

func newTrimmer(self *graph.SelfComponent, cfg graph.ComponentConfig) (graph.UserComponent, error) {
	t := &trimmer{self: self}

	var err error
	if raw, ok := cfg.Params["begin"]; ok {
		if t.beginNS, err = parseTimestamp(raw); err != nil {
			return nil, errors.WrapInvalid(err, ClassName, "newTrimmer", "parse begin parameter")
		}
		t.hasBegin = true
	}
	if raw, ok := cfg.Params["end"]; ok {
		if t.endNS, err = parseTimestamp(raw); err != nil {
			return nil, errors.WrapInvalid(err, ClassName, "newTrimmer", "parse end parameter")
		}
		t.hasEnd = true
	}
	if t.hasBegin && t.hasEnd && t.beginNS > t.endNS {
		return nil, errors.Invalidf("trimmer begin %d is after end %d", t.beginNS, t.endNS)
	}

	if t.in, err = self.AddInputPort("in", nil); err != nil {
		return nil, err
	}
	if _, err = self.AddOutputPort("out", nil); err != nil {
		return nil, err
	}
	return t, nil
}

// parseTimestamp accepts "seconds" or "seconds.nanoseconds" strings,
// with the fraction padded to nine digits, plus plain integers in
// nanoseconds.
func parseTimestamp(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		return parseSecNS(v)
	default:
		return 0, errors.Invalidf("timestamp is neither a string nor an integer: %T", raw)
	}
}

func parseSecNS(s string) (int64, error) {
	neg := strings.HasPrefix(s, "-")
	body := strings.TrimPrefix(s, "-")
	secPart, nsPart, hasFrac := strings.Cut(body, ".")

	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return 0, errors.Invalidf("bad seconds in timestamp %q", s)
	}

	var ns int64
	if hasFrac {
		if len(nsPart) > 9 {
			return 0, errors.Invalidf("timestamp %q has more than nanosecond precision", s)
		}
		// "1.5" means 1.5 s: pad the fraction to nine digits.
		padded := nsPart + strings.Repeat("0", 9-len(nsPart))
		if ns, err = strconv.ParseInt(padded, 10, 64); err != nil {
			return 0, errors.Invalidf("bad fraction in timestamp %q", s)
		}
	}

	total := sec*1_000_000_000 + ns
	if neg {
		total = -total
	}
	return total, nil
}

func (t *trimmer) NewMessageIterator(self *graph.SelfMessageIterator) (graph.UserMessageIterator, error) {
	upstream, err := self.NewInputPortMessageIterator(t.in)
	if err != nil {
		return nil, err
	}
	return &trimIterator{t: t, upstream: upstream}, nil
}

type trimIterator struct {
	t        *trimmer
	upstream *graph.MessageIterator
}

func (it *trimIterator) Next(msgs *graph.MessageArray) error {
	for !msgs.Full() {
		m, err := it.upstream.Next()
		if err != nil {
			if errors.IsEnd(err) && msgs.Len() > 0 {
				return nil
			}
			if errors.IsTransient(err) && msgs.Len() > 0 {
				return nil
			}
			return err
		}
		if !it.t.keeps(m) {
			m.Release()
			continue
		}
		if err := msgs.Append(m); err != nil {
			m.Release()
			return errors.Wrap(err, ClassName, "Next", "append kept message")
		}
	}
	return nil
}

// Finalize closes the upstream iterator so its buffered messages are
// released along with this one.
func (it *trimIterator) Finalize() {
	it.upstream.Close()
}

// keeps reports whether the window retains m. Only event and
// inactivity messages are subject to trimming.
func (t *trimmer) keeps(m *message.Message) bool {
	switch m.Kind() {
	case message.KindEvent, message.KindMessageIteratorInactivity:
	default:
		return true
	}
	ns, ok := m.NSFromOrigin()
	if !ok {
		return true
	}
	if t.hasBegin && ns < t.beginNS {
		return false
	}
	if t.hasEnd && ns > t.endNS {
		return false
	}
	return true
}
