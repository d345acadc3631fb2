package classfile

import (
	"fmt"
	"strings"
)

// FieldType is a parsed field descriptor. Base is one of "BCDFIJSZ", 'L'
// for class types, or 'V' for a void method return. Arrays carry Dims > 0
// and the element type in Base/Class.
type FieldType struct {
	Base  byte
	Dims  int
	Class string
}

// IsReference reports whether values of this type are object references.
func (t FieldType) IsReference() bool { return t.Dims > 0 || t.Base == 'L' }

// IsVoid reports whether this is the void return type.
func (t FieldType) IsVoid() bool { return t.Base == 'V' }

// Slots returns the number of local variable slots a value occupies.
func (t FieldType) Slots() int {
	if t.IsVoid() {
		return 0
	}
	if !t.IsReference() && (t.Base == 'J' || t.Base == 'D') {
		return 2
	}
	return 1
}

func (t FieldType) String() string {
	var sb strings.Builder
	for i := 0; i < t.Dims; i++ {
		sb.WriteByte('[')
	}
	sb.WriteByte(t.Base)
	if t.Base == 'L' {
		sb.WriteString(t.Class)
		sb.WriteByte(';')
	}
	return sb.String()
}

// MethodDescriptor is a parsed method descriptor.
type MethodDescriptor struct {
	Params []FieldType
	Return FieldType
}

// ArgSlots returns the number of local slots the parameters occupy in a
// static method.
func (d *MethodDescriptor) ArgSlots() int {
	n := 0
	for _, p := range d.Params {
		n += p.Slots()
	}
	return n
}

// ParseFieldDescriptor parses a descriptor such as "I" or "[Ljava/lang/String;".
func ParseFieldDescriptor(s string) (FieldType, error) {
	t, n, err := parseFieldType(s, 0)
	if err != nil {
		return FieldType{}, err
	}
	if n != len(s) {
		return FieldType{}, fmt.Errorf("invalid field descriptor %q: trailing characters", s)
	}
	return t, nil
}

// ParseMethodDescriptor parses a descriptor such as "(IJ)D".
func ParseMethodDescriptor(s string) (*MethodDescriptor, error) {
	if len(s) == 0 || s[0] != '(' {
		return nil, fmt.Errorf("invalid method descriptor %q", s)
	}
	d := &MethodDescriptor{}
	i := 1
	for i < len(s) && s[i] != ')' {
		t, n, err := parseFieldType(s, i)
		if err != nil {
			return nil, fmt.Errorf("invalid method descriptor %q: %w", s, err)
		}
		d.Params = append(d.Params, t)
		i = n
	}
	if i >= len(s) {
		return nil, fmt.Errorf("invalid method descriptor %q: missing ')'", s)
	}
	i++
	if i < len(s) && s[i] == 'V' {
		d.Return = FieldType{Base: 'V'}
		i++
	} else {
		t, n, err := parseFieldType(s, i)
		if err != nil {
			return nil, fmt.Errorf("invalid method descriptor %q: %w", s, err)
		}
		d.Return = t
		i = n
	}
	if i != len(s) {
		return nil, fmt.Errorf("invalid method descriptor %q: trailing characters", s)
	}
	if d.ArgSlots() > 255 {
		return nil, fmt.Errorf("invalid method descriptor %q: more than 255 parameter slots", s)
	}
	return d, nil
}

func parseFieldType(s string, i int) (FieldType, int, error) {
	var t FieldType
	for i < len(s) && s[i] == '[' {
		t.Dims++
		i++
	}
	if t.Dims > 255 {
		return t, i, fmt.Errorf("array of more than 255 dimensions")
	}
	if i >= len(s) {
		return t, i, fmt.Errorf("unexpected end of descriptor %q", s)
	}
	switch c := s[i]; c {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		t.Base = c
		return t, i + 1, nil
	case 'L':
		end := strings.IndexByte(s[i:], ';')
		if end <= 1 {
			return t, i, fmt.Errorf("unterminated class type in %q", s)
		}
		t.Base = 'L'
		t.Class = s[i+1 : i+end]
		return t, i + end + 1, nil
	default:
		return t, i, fmt.Errorf("unexpected %q in descriptor %q", c, s)
	}
}
