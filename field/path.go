package field

import (
	"strconv"
	"strings"

	"github.com/antmicro/libbtrace/errors"
)

// Scope is the root scope a field path is resolved against.
type Scope int

// Field path root scopes.
const (
	ScopePacketContext Scope = iota
	ScopeEventCommonContext
	ScopeEventSpecificContext
	ScopeEventPayload
)

// String returns the scope name.
func (s Scope) String() string {
	switch s {
	case ScopePacketContext:
		return "packet-context"
	case ScopeEventCommonContext:
		return "event-common-context"
	case ScopeEventSpecificContext:
		return "event-specific-context"
	case ScopeEventPayload:
		return "event-payload"
	default:
		return "unknown"
	}
}

// ItemKind discriminates field path items.
type ItemKind int

// Field path item kinds.
const (
	// ItemIndex addresses a structure member or variant option by
	// index.
	ItemIndex ItemKind = iota
	// ItemCurrentArrayElement descends into the element of the array
	// being visited.
	ItemCurrentArrayElement
	// ItemCurrentOptionContent descends into the content of the
	// option being visited.
	ItemCurrentOptionContent
)

// Item is one step of a field path.
type Item struct {
	Kind  ItemKind
	Index uint64
}

// Index returns an index path item.
func Index(i uint64) Item { return Item{Kind: ItemIndex, Index: i} }

// CurrentArrayElement returns a current-array-element path item.
func CurrentArrayElement() Item { return Item{Kind: ItemCurrentArrayElement} }

// CurrentOptionContent returns a current-option-content path item.
func CurrentOptionContent() Item { return Item{Kind: ItemCurrentOptionContent} }

// Path is a structural address locating one schema node relative to a
// root scope. Resolution never executes user code: every step is a
// structural index into the field class graph.
type Path struct {
	Scope Scope
	Items []Item
}

// NewPath creates a field path.
func NewPath(scope Scope, items ...Item) *Path {
	return &Path{Scope: scope, Items: items}
}

// String renders the path for diagnostics, e.g.
// "event-payload: [2, <current array element>, 0]".
func (p *Path) String() string {
	var b strings.Builder
	b.WriteString(p.Scope.String())
	b.WriteString(": [")
	for i, item := range p.Items {
		if i > 0 {
			b.WriteString(", ")
		}
		switch item.Kind {
		case ItemIndex:
			b.WriteString(strconv.FormatUint(item.Index, 10))
		case ItemCurrentArrayElement:
			b.WriteString("<current array element>")
		case ItemCurrentOptionContent:
			b.WriteString("<current option content>")
		}
	}
	b.WriteString("]")
	return b.String()
}

// Resolve walks the path from the given root field class and returns
// the addressed class. The root must be the class of the path's scope.
func (p *Path) Resolve(root *Class) (*Class, error) {
	if root == nil {
		return nil, errors.Invalidf("field path resolution from nil root")
	}

	cur := root
	for i, item := range p.Items {
		switch item.Kind {
		case ItemIndex:
			switch cur.Kind() {
			case KindStructure:
				m, err := cur.MemberAt(int(item.Index))
				if err != nil {
					return nil, errors.Wrap(err, "Path", "Resolve", "structure member step")
				}
				cur = m.Class
			case KindVariant:
				o, err := cur.OptionAt(int(item.Index))
				if err != nil {
					return nil, errors.Wrap(err, "Path", "Resolve", "variant option step")
				}
				cur = o.Class
			default:
				return nil, errors.Invalidf(
					"path item %d: cannot index a %s field class", i, cur.Kind())
			}
		case ItemCurrentArrayElement:
			elem, err := cur.ElementClass()
			if err != nil {
				return nil, errors.Invalidf(
					"path item %d: not an array field class (%s)", i, cur.Kind())
			}
			cur = elem
		case ItemCurrentOptionContent:
			content, err := cur.ContentClass()
			if err != nil {
				return nil, errors.Invalidf(
					"path item %d: not an option field class (%s)", i, cur.Kind())
			}
			cur = content
		default:
			return nil, errors.Invalidf("path item %d: unknown item kind", i)
		}
	}
	return cur, nil
}
