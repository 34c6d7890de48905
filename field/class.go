package field

import (
	"sort"

	"github.com/antmicro/libbtrace/errors"
)

// Kind discriminates the closed set of field class variants.
type Kind int

// Field class kinds.
const (
	KindBool Kind = iota
	KindBitArray
	KindUnsignedInteger
	KindSignedInteger
	KindUnsignedEnumeration
	KindSignedEnumeration
	KindSinglePrecisionReal
	KindDoublePrecisionReal
	KindString
	KindStructure
	KindStaticArray
	KindDynamicArray
	KindOption
	KindVariant
	KindBlob
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindBitArray:
		return "bit-array"
	case KindUnsignedInteger:
		return "unsigned-integer"
	case KindSignedInteger:
		return "signed-integer"
	case KindUnsignedEnumeration:
		return "unsigned-enumeration"
	case KindSignedEnumeration:
		return "signed-enumeration"
	case KindSinglePrecisionReal:
		return "single-precision-real"
	case KindDoublePrecisionReal:
		return "double-precision-real"
	case KindString:
		return "string"
	case KindStructure:
		return "structure"
	case KindStaticArray:
		return "static-array"
	case KindDynamicArray:
		return "dynamic-array"
	case KindOption:
		return "option"
	case KindVariant:
		return "variant"
	case KindBlob:
		return "blob"
	default:
		return "unknown"
	}
}

// Member is one named member of a structure field class.
type Member struct {
	Name  string
	Class *Class
}

// Option is one named option of a variant field class, selected when
// the linked selector's value falls in Ranges.
type Option struct {
	Name   string
	Class  *Class
	Ranges *UnsignedRangeSet
}

// Class is a field class: one schema node of the recursive field type
// system. A single tagged type covers every variant; the kind-specific
// accessors validate the kind before touching variant payload.
type Class struct {
	kind     Kind
	userAttr map[string]any

	// bit-array and integer kinds
	width       uint64
	displayBase int

	// enumeration mappings, one of the two depending on signedness
	unsignedMappings map[string]*UnsignedRangeSet
	signedMappings   map[string]*SignedRangeSet

	// structure
	members []Member

	// array kinds
	elem       *Class
	length     uint64
	lengthPath *Path

	// option and variant
	content      *Class
	selectorPath *Path
	options      []Option

	// blob
	mediaType string
}

// Kind returns the class's kind.
func (c *Class) Kind() Kind { return c.kind }

// SetUserAttributes sets the class's user attributes map.
func (c *Class) SetUserAttributes(attrs map[string]any) { c.userAttr = attrs }

// UserAttributes returns the class's user attributes map, possibly nil.
func (c *Class) UserAttributes() map[string]any { return c.userAttr }

// NewBool creates a boolean field class.
func NewBool() *Class { return &Class{kind: KindBool} }

// NewBitArray creates a bit array field class of the given width.
func NewBitArray(width uint64) (*Class, error) {
	if err := checkWidth(width); err != nil {
		return nil, err
	}
	return &Class{kind: KindBitArray, width: width}, nil
}

// NewUnsignedInteger creates an unsigned integer field class holding
// values of the given width in bits.
func NewUnsignedInteger(width uint64) (*Class, error) {
	if err := checkWidth(width); err != nil {
		return nil, err
	}
	return &Class{kind: KindUnsignedInteger, width: width, displayBase: 10}, nil
}

// NewSignedInteger creates a signed integer field class holding values
// of the given width in bits.
func NewSignedInteger(width uint64) (*Class, error) {
	if err := checkWidth(width); err != nil {
		return nil, err
	}
	return &Class{kind: KindSignedInteger, width: width, displayBase: 10}, nil
}

// NewUnsignedEnumeration creates an unsigned enumeration field class.
// Each mapping associates a label with a non-empty range set.
func NewUnsignedEnumeration(width uint64, mappings map[string]*UnsignedRangeSet) (*Class, error) {
	if err := checkWidth(width); err != nil {
		return nil, err
	}
	for label, rs := range mappings {
		if rs == nil || rs.Len() == 0 {
			return nil, errors.Invalidf("enumeration mapping %q has an empty range set", label)
		}
	}
	return &Class{
		kind:             KindUnsignedEnumeration,
		width:            width,
		displayBase:      10,
		unsignedMappings: mappings,
	}, nil
}

// NewSignedEnumeration creates a signed enumeration field class.
func NewSignedEnumeration(width uint64, mappings map[string]*SignedRangeSet) (*Class, error) {
	if err := checkWidth(width); err != nil {
		return nil, err
	}
	for label, rs := range mappings {
		if rs == nil || rs.Len() == 0 {
			return nil, errors.Invalidf("enumeration mapping %q has an empty range set", label)
		}
	}
	return &Class{
		kind:           KindSignedEnumeration,
		width:          width,
		displayBase:    10,
		signedMappings: mappings,
	}, nil
}

// NewReal creates a real field class, single or double precision.
func NewReal(singlePrecision bool) *Class {
	if singlePrecision {
		return &Class{kind: KindSinglePrecisionReal}
	}
	return &Class{kind: KindDoublePrecisionReal}
}

// NewString creates a string field class.
func NewString() *Class { return &Class{kind: KindString} }

// NewStructure creates an empty structure field class. Members are
// appended with AppendMember.
func NewStructure() *Class { return &Class{kind: KindStructure} }

// AppendMember appends a named member to a structure field class.
// Member names must be unique within the structure.
func (c *Class) AppendMember(name string, member *Class) error {
	if c.kind != KindStructure {
		return errors.Invalidf("cannot append a member to a %s field class", c.kind)
	}
	if name == "" {
		return errors.Invalidf("structure member name is empty")
	}
	if member == nil {
		return errors.Invalidf("structure member %q has no field class", name)
	}
	for _, m := range c.members {
		if m.Name == name {
			return errors.Invalidf("duplicate structure member name %q", name)
		}
	}
	c.members = append(c.members, Member{Name: name, Class: member})
	return nil
}

// MemberCount returns the number of structure members.
func (c *Class) MemberCount() int { return len(c.members) }

// MemberAt returns the structure member at the given index.
func (c *Class) MemberAt(i int) (Member, error) {
	if c.kind != KindStructure {
		return Member{}, errors.Invalidf("%s field class has no members", c.kind)
	}
	if i < 0 || i >= len(c.members) {
		return Member{}, errors.Invalidf("member index %d out of range (%d members)", i, len(c.members))
	}
	return c.members[i], nil
}

// MemberByName returns the structure member with the given name and
// its index.
func (c *Class) MemberByName(name string) (Member, int, error) {
	if c.kind != KindStructure {
		return Member{}, 0, errors.Invalidf("%s field class has no members", c.kind)
	}
	for i, m := range c.members {
		if m.Name == name {
			return m, i, nil
		}
	}
	return Member{}, 0, errors.Invalidf("no structure member named %q", name)
}

// NewStaticArray creates a static array field class with a fixed
// element count.
func NewStaticArray(elem *Class, length uint64) (*Class, error) {
	if elem == nil {
		return nil, errors.Invalidf("static array has no element field class")
	}
	return &Class{kind: KindStaticArray, elem: elem, length: length}, nil
}

// NewDynamicArray creates a dynamic array field class. lengthPath, when
// non-nil, links the array's length to a sibling unsigned integer
// field.
func NewDynamicArray(elem *Class, lengthPath *Path) (*Class, error) {
	if elem == nil {
		return nil, errors.Invalidf("dynamic array has no element field class")
	}
	return &Class{kind: KindDynamicArray, elem: elem, lengthPath: lengthPath}, nil
}

// ElementClass returns the element class of an array field class.
func (c *Class) ElementClass() (*Class, error) {
	if c.kind != KindStaticArray && c.kind != KindDynamicArray {
		return nil, errors.Invalidf("%s field class has no element class", c.kind)
	}
	return c.elem, nil
}

// Length returns the element count of a static array field class.
func (c *Class) Length() (uint64, error) {
	if c.kind != KindStaticArray {
		return 0, errors.Invalidf("%s field class has no static length", c.kind)
	}
	return c.length, nil
}

// LengthFieldPath returns the length field path of a dynamic array
// field class, possibly nil.
func (c *Class) LengthFieldPath() (*Path, error) {
	if c.kind != KindDynamicArray {
		return nil, errors.Invalidf("%s field class has no length field path", c.kind)
	}
	return c.lengthPath, nil
}

// NewOption creates an option field class. selectorPath, when non-nil,
// links the option's presence to a selector field.
func NewOption(content *Class, selectorPath *Path) (*Class, error) {
	if content == nil {
		return nil, errors.Invalidf("option has no content field class")
	}
	return &Class{kind: KindOption, content: content, selectorPath: selectorPath}, nil
}

// ContentClass returns the content class of an option field class.
func (c *Class) ContentClass() (*Class, error) {
	if c.kind != KindOption {
		return nil, errors.Invalidf("%s field class has no content class", c.kind)
	}
	return c.content, nil
}

// NewVariant creates a variant field class dispatched by the selector
// field addressed by selectorPath. Options are appended with
// AppendOption.
func NewVariant(selectorPath *Path) *Class {
	return &Class{kind: KindVariant, selectorPath: selectorPath}
}

// AppendOption appends a named option to a variant field class. Option
// names must be unique and selector ranges must not overlap existing
// options.
func (c *Class) AppendOption(name string, class *Class, ranges *UnsignedRangeSet) error {
	if c.kind != KindVariant {
		return errors.Invalidf("cannot append an option to a %s field class", c.kind)
	}
	if class == nil {
		return errors.Invalidf("variant option %q has no field class", name)
	}
	if ranges == nil || ranges.Len() == 0 {
		return errors.Invalidf("variant option %q has an empty range set", name)
	}
	for _, o := range c.options {
		if o.Name == name {
			return errors.Invalidf("duplicate variant option name %q", name)
		}
		if unsignedRangesOverlap(o.Ranges, ranges) {
			return errors.Invalidf("variant option %q selector ranges overlap option %q", name, o.Name)
		}
	}
	c.options = append(c.options, Option{Name: name, Class: class, Ranges: ranges})
	return nil
}

// OptionCount returns the number of variant options.
func (c *Class) OptionCount() int { return len(c.options) }

// OptionAt returns the variant option at the given index.
func (c *Class) OptionAt(i int) (Option, error) {
	if c.kind != KindVariant {
		return Option{}, errors.Invalidf("%s field class has no options", c.kind)
	}
	if i < 0 || i >= len(c.options) {
		return Option{}, errors.Invalidf("option index %d out of range (%d options)", i, len(c.options))
	}
	return c.options[i], nil
}

// OptionForSelector returns the variant option whose ranges contain the
// selector value, with its index.
func (c *Class) OptionForSelector(selector uint64) (Option, int, error) {
	if c.kind != KindVariant {
		return Option{}, 0, errors.Invalidf("%s field class has no options", c.kind)
	}
	for i, o := range c.options {
		if o.Ranges.Contains(selector) {
			return o, i, nil
		}
	}
	return Option{}, 0, errors.Invalidf("no variant option for selector value %d", selector)
}

// SelectorFieldPath returns the selector field path of an option or
// variant field class, possibly nil.
func (c *Class) SelectorFieldPath() (*Path, error) {
	if c.kind != KindOption && c.kind != KindVariant {
		return nil, errors.Invalidf("%s field class has no selector field path", c.kind)
	}
	return c.selectorPath, nil
}

// NewBlob creates a blob field class with an IANA media type.
func NewBlob(mediaType string) *Class {
	return &Class{kind: KindBlob, mediaType: mediaType}
}

// MediaType returns the media type of a blob field class.
func (c *Class) MediaType() (string, error) {
	if c.kind != KindBlob {
		return "", errors.Invalidf("%s field class has no media type", c.kind)
	}
	return c.mediaType, nil
}

// Width returns the value width in bits of a bit array, integer or
// enumeration field class.
func (c *Class) Width() (uint64, error) {
	switch c.kind {
	case KindBitArray, KindUnsignedInteger, KindSignedInteger,
		KindUnsignedEnumeration, KindSignedEnumeration:
		return c.width, nil
	default:
		return 0, errors.Invalidf("%s field class has no width", c.kind)
	}
}

// SetPreferredDisplayBase sets the preferred display base of an integer
// or enumeration field class. Valid bases are 2, 8, 10 and 16.
func (c *Class) SetPreferredDisplayBase(base int) error {
	switch c.kind {
	case KindUnsignedInteger, KindSignedInteger,
		KindUnsignedEnumeration, KindSignedEnumeration:
	default:
		return errors.Invalidf("%s field class has no display base", c.kind)
	}
	switch base {
	case 2, 8, 10, 16:
		c.displayBase = base
		return nil
	default:
		return errors.Invalidf("invalid display base %d", base)
	}
}

// PreferredDisplayBase returns the preferred display base.
func (c *Class) PreferredDisplayBase() int { return c.displayBase }

// MappingLabelsForUnsigned returns the labels of every unsigned
// enumeration mapping whose range set contains v.
func (c *Class) MappingLabelsForUnsigned(v uint64) ([]string, error) {
	if c.kind != KindUnsignedEnumeration {
		return nil, errors.Invalidf("%s field class has no unsigned mappings", c.kind)
	}
	var labels []string
	for label, rs := range c.unsignedMappings {
		if rs.Contains(v) {
			labels = append(labels, label)
		}
	}
	sort.Strings(labels)
	return labels, nil
}

// MappingLabelsForSigned returns the labels of every signed
// enumeration mapping whose range set contains v.
func (c *Class) MappingLabelsForSigned(v int64) ([]string, error) {
	if c.kind != KindSignedEnumeration {
		return nil, errors.Invalidf("%s field class has no signed mappings", c.kind)
	}
	var labels []string
	for label, rs := range c.signedMappings {
		if rs.Contains(v) {
			labels = append(labels, label)
		}
	}
	sort.Strings(labels)
	return labels, nil
}

func checkWidth(width uint64) error {
	if width < 1 || width > 64 {
		return errors.Invalidf("field value width %d outside [1, 64]", width)
	}
	return nil
}
