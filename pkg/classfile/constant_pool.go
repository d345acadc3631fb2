package classfile

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Constant pool tags
const (
	TagUtf8               = 1
	TagInteger            = 3
	TagFloat              = 4
	TagLong               = 5
	TagDouble             = 6
	TagClass              = 7
	TagString             = 8
	TagFieldref           = 9
	TagMethodref          = 10
	TagInterfaceMethodref = 11
	TagNameAndType        = 12
	TagMethodHandle       = 15
	TagMethodType         = 16
	TagDynamic            = 17
	TagInvokeDynamic      = 18
)

var tagNames = map[uint8]string{
	TagUtf8:               "Utf8",
	TagInteger:            "Integer",
	TagFloat:              "Float",
	TagLong:               "Long",
	TagDouble:             "Double",
	TagClass:              "Class",
	TagString:             "String",
	TagFieldref:           "Fieldref",
	TagMethodref:          "Methodref",
	TagInterfaceMethodref: "InterfaceMethodref",
	TagNameAndType:        "NameAndType",
	TagMethodHandle:       "MethodHandle",
	TagMethodType:         "MethodType",
	TagDynamic:            "Dynamic",
	TagInvokeDynamic:      "InvokeDynamic",
}

// TagName returns the JVMS name of a constant pool tag.
func TagName(tag uint8) string {
	if n, ok := tagNames[tag]; ok {
		return n
	}
	return fmt.Sprintf("tag(%d)", tag)
}

// ConstantPoolEntry is an interface implemented by all constant pool types.
// Entries are immutable and refer to each other by pool index only.
type ConstantPoolEntry interface {
	Tag() uint8
}

type ConstantUtf8 struct {
	Value string
}

func (c *ConstantUtf8) Tag() uint8 { return TagUtf8 }

type ConstantInteger struct {
	Value int32
}

func (c *ConstantInteger) Tag() uint8 { return TagInteger }

type ConstantFloat struct {
	Value float32
}

func (c *ConstantFloat) Tag() uint8 { return TagFloat }

type ConstantLong struct {
	Value int64
}

func (c *ConstantLong) Tag() uint8 { return TagLong }

type ConstantDouble struct {
	Value float64
}

func (c *ConstantDouble) Tag() uint8 { return TagDouble }

type ConstantClass struct {
	NameIndex uint16
}

func (c *ConstantClass) Tag() uint8 { return TagClass }

type ConstantString struct {
	StringIndex uint16
}

func (c *ConstantString) Tag() uint8 { return TagString }

type ConstantFieldref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (c *ConstantFieldref) Tag() uint8 { return TagFieldref }

type ConstantMethodref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (c *ConstantMethodref) Tag() uint8 { return TagMethodref }

type ConstantInterfaceMethodref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (c *ConstantInterfaceMethodref) Tag() uint8 { return TagInterfaceMethodref }

type ConstantNameAndType struct {
	NameIndex       uint16
	DescriptorIndex uint16
}

func (c *ConstantNameAndType) Tag() uint8 { return TagNameAndType }

// Method handle reference kinds (JVMS 5.4.3.5).
const (
	RefGetField         = 1
	RefGetStatic        = 2
	RefPutField         = 3
	RefPutStatic        = 4
	RefInvokeVirtual    = 5
	RefInvokeStatic     = 6
	RefInvokeSpecial    = 7
	RefNewInvokeSpecial = 8
	RefInvokeInterface  = 9
)

type ConstantMethodHandle struct {
	ReferenceKind  uint8
	ReferenceIndex uint16
}

func (c *ConstantMethodHandle) Tag() uint8 { return TagMethodHandle }

type ConstantMethodType struct {
	DescriptorIndex uint16
}

func (c *ConstantMethodType) Tag() uint8 { return TagMethodType }

type ConstantDynamic struct {
	BootstrapMethodAttrIndex uint16
	NameAndTypeIndex         uint16
}

func (c *ConstantDynamic) Tag() uint8 { return TagDynamic }

type ConstantInvokeDynamic struct {
	BootstrapMethodAttrIndex uint16
	NameAndTypeIndex         uint16
}

func (c *ConstantInvokeDynamic) Tag() uint8 { return TagInvokeDynamic }

// isWide reports whether e occupies two pool slots.
func isWide(e ConstantPoolEntry) bool {
	t := e.Tag()
	return t == TagLong || t == TagDouble
}

// Pool is the constant pool of one class. It is an append-only arena of
// entries addressed by 1-based index. Slot 0 is unused, and Long/Double
// entries own two slots, the second of which stays empty.
//
// A Pool being parsed keeps its source reader so that Await can decode
// entries beyond the current end on demand.
type Pool struct {
	entries []ConstantPoolEntry
	count   int
	src     *Reader
}

// NewPool returns an empty pool for building classes programmatically.
func NewPool() *Pool {
	return &Pool{entries: make([]ConstantPoolEntry, 1)}
}

// Len returns the number of slots including slot 0. For a parsed pool this
// equals constant_pool_count.
func (p *Pool) Len() int { return len(p.entries) }

// Intern appends e and returns its index.
func (p *Pool) Intern(e ConstantPoolEntry) uint16 {
	index := uint16(len(p.entries))
	p.entries = append(p.entries, e)
	if isWide(e) {
		p.entries = append(p.entries, nil)
	}
	return index
}

// Get returns the entry at index.
func (p *Pool) Get(index uint16) (ConstantPoolEntry, error) {
	if index == 0 || int(index) >= len(p.entries) || p.entries[index] == nil {
		return nil, fmt.Errorf("%w: #%d (pool has %d slots)", ErrInvalidIndex, index, len(p.entries))
	}
	return p.entries[index], nil
}

// Await returns the entry at index, decoding further entries from the
// source first if the index lies beyond what has been read so far.
func (p *Pool) Await(index uint16) (ConstantPoolEntry, error) {
	for int(index) >= len(p.entries) && p.pending() {
		if err := p.readEntry(); err != nil {
			return nil, err
		}
	}
	return p.Get(index)
}

// Entries returns a copy of the slot table. Slot 0 and the second slots of
// Long/Double entries are nil.
func (p *Pool) Entries() []ConstantPoolEntry {
	out := make([]ConstantPoolEntry, len(p.entries))
	copy(out, p.entries)
	return out
}

func (p *Pool) pending() bool {
	return p.src != nil && len(p.entries) < p.count
}

// ReadPool decodes constant_pool_count followed by the pool entries.
func ReadPool(r *Reader) (*Pool, error) {
	count, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("reading constant pool count: %w", err)
	}
	return readPool(r, count)
}

// readPool decodes a constant pool of count slots from r.
func readPool(r *Reader, count uint16) (*Pool, error) {
	if count == 0 {
		return nil, fmt.Errorf("constant_pool_count must be at least 1")
	}
	p := &Pool{
		entries: make([]ConstantPoolEntry, 1, count),
		count:   int(count),
		src:     r,
	}
	for p.pending() {
		if err := p.readEntry(); err != nil {
			return nil, err
		}
	}
	p.src = nil
	return p, nil
}

// readEntry decodes the next entry, appends it, and only then validates its
// references, which may decode later entries through Await.
func (p *Pool) readEntry() error {
	index := len(p.entries)
	tag, err := p.src.U8()
	if err != nil {
		return fmt.Errorf("reading constant pool tag at index %d: %w", index, err)
	}
	e, err := readConstant(p.src, tag)
	if err != nil {
		return fmt.Errorf("reading %s at index %d: %w", TagName(tag), index, err)
	}
	p.Intern(e)
	if len(p.entries) > p.count {
		return fmt.Errorf("%s at index %d overruns constant_pool_count %d", TagName(tag), index, p.count)
	}
	if err := p.validate(e); err != nil {
		return fmt.Errorf("constant pool entry #%d (%s): %w", index, TagName(tag), err)
	}
	return nil
}

func readConstant(r *Reader, tag uint8) (ConstantPoolEntry, error) {
	switch tag {
	case TagUtf8:
		length, err := r.U16()
		if err != nil {
			return nil, err
		}
		b, err := r.Bytes(int(length))
		if err != nil {
			return nil, err
		}
		s, err := decodeModifiedUTF8(b)
		if err != nil {
			return nil, err
		}
		return &ConstantUtf8{Value: s}, nil

	case TagInteger:
		v, err := r.I32()
		return &ConstantInteger{Value: v}, err

	case TagFloat:
		v, err := r.F32()
		return &ConstantFloat{Value: v}, err

	case TagLong:
		v, err := r.I64()
		return &ConstantLong{Value: v}, err

	case TagDouble:
		v, err := r.F64()
		return &ConstantDouble{Value: v}, err

	case TagClass:
		v, err := r.U16()
		return &ConstantClass{NameIndex: v}, err

	case TagString:
		v, err := r.U16()
		return &ConstantString{StringIndex: v}, err

	case TagMethodType:
		v, err := r.U16()
		return &ConstantMethodType{DescriptorIndex: v}, err

	case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType, TagDynamic, TagInvokeDynamic:
		a, err := r.U16()
		if err != nil {
			return nil, err
		}
		b, err := r.U16()
		if err != nil {
			return nil, err
		}
		switch tag {
		case TagFieldref:
			return &ConstantFieldref{ClassIndex: a, NameAndTypeIndex: b}, nil
		case TagMethodref:
			return &ConstantMethodref{ClassIndex: a, NameAndTypeIndex: b}, nil
		case TagInterfaceMethodref:
			return &ConstantInterfaceMethodref{ClassIndex: a, NameAndTypeIndex: b}, nil
		case TagNameAndType:
			return &ConstantNameAndType{NameIndex: a, DescriptorIndex: b}, nil
		case TagDynamic:
			return &ConstantDynamic{BootstrapMethodAttrIndex: a, NameAndTypeIndex: b}, nil
		default:
			return &ConstantInvokeDynamic{BootstrapMethodAttrIndex: a, NameAndTypeIndex: b}, nil
		}

	case TagMethodHandle:
		kind, err := r.U8()
		if err != nil {
			return nil, err
		}
		ref, err := r.U16()
		return &ConstantMethodHandle{ReferenceKind: kind, ReferenceIndex: ref}, err
	}
	return nil, fmt.Errorf("unknown constant pool tag %d", tag)
}

// validate checks that every index e carries resolves to the kind JVMS
// requires.
func (p *Pool) validate(e ConstantPoolEntry) error {
	var err error
	switch c := e.(type) {
	case *ConstantUtf8, *ConstantInteger, *ConstantFloat, *ConstantLong, *ConstantDouble:
	case *ConstantClass:
		_, err = p.expect(c.NameIndex, TagUtf8)
	case *ConstantString:
		_, err = p.expect(c.StringIndex, TagUtf8)
	case *ConstantMethodType:
		_, err = p.expect(c.DescriptorIndex, TagUtf8)
	case *ConstantFieldref:
		err = p.expectMember(c.ClassIndex, c.NameAndTypeIndex)
	case *ConstantMethodref:
		err = p.expectMember(c.ClassIndex, c.NameAndTypeIndex)
	case *ConstantInterfaceMethodref:
		err = p.expectMember(c.ClassIndex, c.NameAndTypeIndex)
	case *ConstantNameAndType:
		if _, err = p.expect(c.NameIndex, TagUtf8); err == nil {
			_, err = p.expect(c.DescriptorIndex, TagUtf8)
		}
	case *ConstantDynamic:
		_, err = p.expect(c.NameAndTypeIndex, TagNameAndType)
	case *ConstantInvokeDynamic:
		_, err = p.expect(c.NameAndTypeIndex, TagNameAndType)
	case *ConstantMethodHandle:
		switch c.ReferenceKind {
		case RefGetField, RefGetStatic, RefPutField, RefPutStatic:
			_, err = p.expect(c.ReferenceIndex, TagFieldref)
		case RefInvokeVirtual, RefNewInvokeSpecial:
			_, err = p.expect(c.ReferenceIndex, TagMethodref)
		case RefInvokeStatic, RefInvokeSpecial:
			_, err = p.expect(c.ReferenceIndex, TagMethodref, TagInterfaceMethodref)
		case RefInvokeInterface:
			_, err = p.expect(c.ReferenceIndex, TagInterfaceMethodref)
		default:
			err = fmt.Errorf("%w: method handle kind %d", ErrInvalidSymbolReference, c.ReferenceKind)
		}
	default:
		err = fmt.Errorf("unhandled constant %T", e)
	}
	return err
}

func (p *Pool) expectMember(classIndex, natIndex uint16) error {
	if _, err := p.expect(classIndex, TagClass); err != nil {
		return err
	}
	_, err := p.expect(natIndex, TagNameAndType)
	return err
}

// expect resolves index, awaiting it if necessary, and checks its tag.
func (p *Pool) expect(index uint16, tags ...uint8) (ConstantPoolEntry, error) {
	want := make([]string, len(tags))
	for i, t := range tags {
		want[i] = TagName(t)
	}
	e, err := p.Await(index)
	if err != nil {
		return nil, &SymbolError{Index: index, Want: strings.Join(want, "|"), Err: err}
	}
	for _, t := range tags {
		if e.Tag() == t {
			return e, nil
		}
	}
	return nil, &SymbolError{Index: index, Want: strings.Join(want, "|"), Got: TagName(e.Tag())}
}

// Utf8 returns the string stored at a Utf8 entry.
func (p *Pool) Utf8(index uint16) (string, error) {
	e, err := p.expect(index, TagUtf8)
	if err != nil {
		return "", err
	}
	return e.(*ConstantUtf8).Value, nil
}

// ClassName returns the class name referenced by a CONSTANT_Class entry.
func (p *Pool) ClassName(index uint16) (string, error) {
	e, err := p.expect(index, TagClass)
	if err != nil {
		return "", err
	}
	return p.Utf8(e.(*ConstantClass).NameIndex)
}

// NameAndType returns the name and descriptor of a NameAndType entry.
func (p *Pool) NameAndType(index uint16) (name, descriptor string, err error) {
	e, err := p.expect(index, TagNameAndType)
	if err != nil {
		return "", "", err
	}
	nat := e.(*ConstantNameAndType)
	if name, err = p.Utf8(nat.NameIndex); err != nil {
		return "", "", err
	}
	if descriptor, err = p.Utf8(nat.DescriptorIndex); err != nil {
		return "", "", err
	}
	return name, descriptor, nil
}

// MemberRef is a resolved field or method reference.
type MemberRef struct {
	Class      string
	Name       string
	Descriptor string
}

func (m MemberRef) String() string {
	return m.Class + "." + m.Name + ":" + m.Descriptor
}

func (p *Pool) member(classIndex, natIndex uint16) (*MemberRef, error) {
	class, err := p.ClassName(classIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving owner class: %w", err)
	}
	name, desc, err := p.NameAndType(natIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving name and type: %w", err)
	}
	return &MemberRef{Class: class, Name: name, Descriptor: desc}, nil
}

// ResolveFieldref resolves a CONSTANT_Fieldref entry.
func (p *Pool) ResolveFieldref(index uint16) (*MemberRef, error) {
	e, err := p.expect(index, TagFieldref)
	if err != nil {
		return nil, err
	}
	f := e.(*ConstantFieldref)
	return p.member(f.ClassIndex, f.NameAndTypeIndex)
}

// ResolveMethodref resolves a CONSTANT_Methodref or
// CONSTANT_InterfaceMethodref entry. Static interface methods are called
// through the latter.
func (p *Pool) ResolveMethodref(index uint16) (*MemberRef, error) {
	e, err := p.expect(index, TagMethodref, TagInterfaceMethodref)
	if err != nil {
		return nil, err
	}
	switch m := e.(type) {
	case *ConstantMethodref:
		return p.member(m.ClassIndex, m.NameAndTypeIndex)
	default:
		im := m.(*ConstantInterfaceMethodref)
		return p.member(im.ClassIndex, im.NameAndTypeIndex)
	}
}

// Loadable resolves an entry an ldc instruction may push and checks it
// against the allowed tags.
func (p *Pool) Loadable(index uint16, tags ...uint8) (ConstantPoolEntry, error) {
	return p.expect(index, tags...)
}

// AppendTo appends constant_pool_count and the entries in class file
// encoding.
func (p *Pool) AppendTo(buf []byte) ([]byte, error) {
	if len(p.entries) > math.MaxUint16 {
		return nil, fmt.Errorf("constant pool has %d slots, limit is %d", len(p.entries), math.MaxUint16)
	}
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(p.entries)))
	for i, e := range p.entries {
		if e == nil {
			continue
		}
		buf = append(buf, e.Tag())
		switch c := e.(type) {
		case *ConstantUtf8:
			b := encodeModifiedUTF8(c.Value)
			if len(b) > math.MaxUint16 {
				return nil, fmt.Errorf("Utf8 at index %d is %d bytes, limit is %d", i, len(b), math.MaxUint16)
			}
			buf = binary.BigEndian.AppendUint16(buf, uint16(len(b)))
			buf = append(buf, b...)
		case *ConstantInteger:
			buf = binary.BigEndian.AppendUint32(buf, uint32(c.Value))
		case *ConstantFloat:
			buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(c.Value))
		case *ConstantLong:
			buf = binary.BigEndian.AppendUint64(buf, uint64(c.Value))
		case *ConstantDouble:
			buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(c.Value))
		case *ConstantClass:
			buf = binary.BigEndian.AppendUint16(buf, c.NameIndex)
		case *ConstantString:
			buf = binary.BigEndian.AppendUint16(buf, c.StringIndex)
		case *ConstantMethodType:
			buf = binary.BigEndian.AppendUint16(buf, c.DescriptorIndex)
		case *ConstantFieldref:
			buf = appendPair(buf, c.ClassIndex, c.NameAndTypeIndex)
		case *ConstantMethodref:
			buf = appendPair(buf, c.ClassIndex, c.NameAndTypeIndex)
		case *ConstantInterfaceMethodref:
			buf = appendPair(buf, c.ClassIndex, c.NameAndTypeIndex)
		case *ConstantNameAndType:
			buf = appendPair(buf, c.NameIndex, c.DescriptorIndex)
		case *ConstantDynamic:
			buf = appendPair(buf, c.BootstrapMethodAttrIndex, c.NameAndTypeIndex)
		case *ConstantInvokeDynamic:
			buf = appendPair(buf, c.BootstrapMethodAttrIndex, c.NameAndTypeIndex)
		case *ConstantMethodHandle:
			buf = append(buf, c.ReferenceKind)
			buf = binary.BigEndian.AppendUint16(buf, c.ReferenceIndex)
		default:
			return nil, fmt.Errorf("unhandled constant %T at index %d", e, i)
		}
	}
	return buf, nil
}

func appendPair(buf []byte, a, b uint16) []byte {
	buf = binary.BigEndian.AppendUint16(buf, a)
	return binary.BigEndian.AppendUint16(buf, b)
}
