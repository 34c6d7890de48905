package field

import (
	"math"

	"github.com/antmicro/libbtrace/errors"
)

// Field is a concrete value of a field class. Values are validated
// against the class on every mutation: integer values must fit the
// declared width, variant selection must match an option, and so on.
type Field struct {
	class *Class

	boolVal     bool
	unsignedVal uint64
	signedVal   int64
	realVal     float64
	stringVal   string
	blobVal     []byte

	// structure members, array elements
	children []*Field

	// option: whether content is present; variant: selected option
	hasContent bool
	selected   int
}

// NewField creates a zeroed field of the given class. Structure and
// static array fields allocate their children recursively.
func NewField(class *Class) (*Field, error) {
	if class == nil {
		return nil, errors.Invalidf("cannot create a field without a class")
	}

	f := &Field{class: class, selected: -1}

	switch class.Kind() {
	case KindStructure:
		f.children = make([]*Field, class.MemberCount())
		for i := range f.children {
			m, err := class.MemberAt(i)
			if err != nil {
				return nil, err
			}
			child, err := NewField(m.Class)
			if err != nil {
				return nil, err
			}
			f.children[i] = child
		}
	case KindStaticArray:
		length, err := class.Length()
		if err != nil {
			return nil, err
		}
		elem, err := class.ElementClass()
		if err != nil {
			return nil, err
		}
		f.children = make([]*Field, length)
		for i := range f.children {
			child, err := NewField(elem)
			if err != nil {
				return nil, err
			}
			f.children[i] = child
		}
	}

	return f, nil
}

// Class returns the field's class.
func (f *Field) Class() *Class { return f.class }

// Bool returns the value of a boolean field.
func (f *Field) Bool() (bool, error) {
	if f.class.Kind() != KindBool {
		return false, errors.Invalidf("%s field is not a bool", f.class.Kind())
	}
	return f.boolVal, nil
}

// SetBool sets the value of a boolean field.
func (f *Field) SetBool(v bool) error {
	if f.class.Kind() != KindBool {
		return errors.Invalidf("%s field is not a bool", f.class.Kind())
	}
	f.boolVal = v
	return nil
}

// Unsigned returns the value of an unsigned integer, enumeration or
// bit array field.
func (f *Field) Unsigned() (uint64, error) {
	switch f.class.Kind() {
	case KindUnsignedInteger, KindUnsignedEnumeration, KindBitArray:
		return f.unsignedVal, nil
	default:
		return 0, errors.Invalidf("%s field holds no unsigned value", f.class.Kind())
	}
}

// SetUnsigned sets the value of an unsigned integer, enumeration or
// bit array field. A value outside the class's declared width is an
// overflow error.
func (f *Field) SetUnsigned(v uint64) error {
	switch f.class.Kind() {
	case KindUnsignedInteger, KindUnsignedEnumeration, KindBitArray:
	default:
		return errors.Invalidf("%s field holds no unsigned value", f.class.Kind())
	}

	width, _ := f.class.Width()
	if v > maxForWidth(width) {
		return errors.WrapInvalid(errors.ErrOverflow, "Field", "SetUnsigned",
			"width check")
	}
	f.unsignedVal = v
	return nil
}

// Signed returns the value of a signed integer or enumeration field.
func (f *Field) Signed() (int64, error) {
	switch f.class.Kind() {
	case KindSignedInteger, KindSignedEnumeration:
		return f.signedVal, nil
	default:
		return 0, errors.Invalidf("%s field holds no signed value", f.class.Kind())
	}
}

// SetSigned sets the value of a signed integer or enumeration field.
// A value outside the class's declared width is an overflow error.
func (f *Field) SetSigned(v int64) error {
	switch f.class.Kind() {
	case KindSignedInteger, KindSignedEnumeration:
	default:
		return errors.Invalidf("%s field holds no signed value", f.class.Kind())
	}

	width, _ := f.class.Width()
	if width < 64 {
		limit := int64(1) << (width - 1)
		if v < -limit || v > limit-1 {
			return errors.WrapInvalid(errors.ErrOverflow, "Field", "SetSigned",
				"width check")
		}
	}
	f.signedVal = v
	return nil
}

// Real returns the value of a real field.
func (f *Field) Real() (float64, error) {
	switch f.class.Kind() {
	case KindSinglePrecisionReal, KindDoublePrecisionReal:
		return f.realVal, nil
	default:
		return 0, errors.Invalidf("%s field holds no real value", f.class.Kind())
	}
}

// SetReal sets the value of a real field. Single-precision fields
// round through float32.
func (f *Field) SetReal(v float64) error {
	switch f.class.Kind() {
	case KindSinglePrecisionReal:
		f.realVal = float64(float32(v))
		return nil
	case KindDoublePrecisionReal:
		f.realVal = v
		return nil
	default:
		return errors.Invalidf("%s field holds no real value", f.class.Kind())
	}
}

// String returns the value of a string field.
func (f *Field) String() (string, error) {
	if f.class.Kind() != KindString {
		return "", errors.Invalidf("%s field is not a string", f.class.Kind())
	}
	return f.stringVal, nil
}

// SetString sets the value of a string field.
func (f *Field) SetString(v string) error {
	if f.class.Kind() != KindString {
		return errors.Invalidf("%s field is not a string", f.class.Kind())
	}
	f.stringVal = v
	return nil
}

// Blob returns the bytes of a blob field.
func (f *Field) Blob() ([]byte, error) {
	if f.class.Kind() != KindBlob {
		return nil, errors.Invalidf("%s field is not a blob", f.class.Kind())
	}
	return f.blobVal, nil
}

// SetBlob sets the bytes of a blob field.
func (f *Field) SetBlob(v []byte) error {
	if f.class.Kind() != KindBlob {
		return errors.Invalidf("%s field is not a blob", f.class.Kind())
	}
	f.blobVal = v
	return nil
}

// Member returns a structure field's member by name.
func (f *Field) Member(name string) (*Field, error) {
	if f.class.Kind() != KindStructure {
		return nil, errors.Invalidf("%s field has no members", f.class.Kind())
	}
	_, idx, err := f.class.MemberByName(name)
	if err != nil {
		return nil, err
	}
	return f.children[idx], nil
}

// MemberAt returns a structure field's member by index.
func (f *Field) MemberAt(i int) (*Field, error) {
	if f.class.Kind() != KindStructure {
		return nil, errors.Invalidf("%s field has no members", f.class.Kind())
	}
	if i < 0 || i >= len(f.children) {
		return nil, errors.Invalidf("member index %d out of range", i)
	}
	return f.children[i], nil
}

// Length returns the element count of an array field.
func (f *Field) Length() (int, error) {
	switch f.class.Kind() {
	case KindStaticArray, KindDynamicArray:
		return len(f.children), nil
	default:
		return 0, errors.Invalidf("%s field has no length", f.class.Kind())
	}
}

// ElementAt returns an array field's element by index.
func (f *Field) ElementAt(i int) (*Field, error) {
	switch f.class.Kind() {
	case KindStaticArray, KindDynamicArray:
	default:
		return nil, errors.Invalidf("%s field has no elements", f.class.Kind())
	}
	if i < 0 || i >= len(f.children) {
		return nil, errors.Invalidf("element index %d out of range", i)
	}
	return f.children[i], nil
}

// SetLength resizes a dynamic array field, allocating zeroed elements.
func (f *Field) SetLength(n int) error {
	if f.class.Kind() != KindDynamicArray {
		return errors.Invalidf("%s field has no settable length", f.class.Kind())
	}
	if n < 0 {
		return errors.Invalidf("negative array length %d", n)
	}
	elem, err := f.class.ElementClass()
	if err != nil {
		return err
	}
	for len(f.children) < n {
		child, err := NewField(elem)
		if err != nil {
			return err
		}
		f.children = append(f.children, child)
	}
	f.children = f.children[:n]
	return nil
}

// SelectOption selects the variant option at the given index,
// allocating its value field.
func (f *Field) SelectOption(i int) error {
	opt, err := f.class.OptionAt(i)
	if err != nil {
		return err
	}
	child, err := NewField(opt.Class)
	if err != nil {
		return err
	}
	f.selected = i
	f.children = []*Field{child}
	return nil
}

// SelectedOption returns the selected variant option's index and
// value field.
func (f *Field) SelectedOption() (int, *Field, error) {
	if f.class.Kind() != KindVariant {
		return 0, nil, errors.Invalidf("%s field is not a variant", f.class.Kind())
	}
	if f.selected < 0 {
		return 0, nil, errors.Invalidf("variant field has no selected option")
	}
	return f.selected, f.children[0], nil
}

// SetHasContent enables or disables an option field's content,
// allocating the content field when enabled.
func (f *Field) SetHasContent(has bool) error {
	if f.class.Kind() != KindOption {
		return errors.Invalidf("%s field is not an option", f.class.Kind())
	}
	if !has {
		f.hasContent = false
		f.children = nil
		return nil
	}
	content, err := f.class.ContentClass()
	if err != nil {
		return err
	}
	child, err := NewField(content)
	if err != nil {
		return err
	}
	f.hasContent = true
	f.children = []*Field{child}
	return nil
}

// Content returns an option field's content field. The option must
// have content.
func (f *Field) Content() (*Field, error) {
	if f.class.Kind() != KindOption {
		return nil, errors.Invalidf("%s field is not an option", f.class.Kind())
	}
	if !f.hasContent {
		return nil, errors.Invalidf("option field has no content")
	}
	return f.children[0], nil
}

// HasContent reports whether an option field's content is present.
func (f *Field) HasContent() bool { return f.hasContent }

// Labels returns the enumeration mapping labels matching the field's
// current value.
func (f *Field) Labels() ([]string, error) {
	switch f.class.Kind() {
	case KindUnsignedEnumeration:
		return f.class.MappingLabelsForUnsigned(f.unsignedVal)
	case KindSignedEnumeration:
		return f.class.MappingLabelsForSigned(f.signedVal)
	default:
		return nil, errors.Invalidf("%s field is not an enumeration", f.class.Kind())
	}
}

// maxForWidth returns the largest unsigned value expressible in width
// bits.
func maxForWidth(width uint64) uint64 {
	if width >= 64 {
		return math.MaxUint64
	}
	return (uint64(1) << width) - 1
}
