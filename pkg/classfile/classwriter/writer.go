// Package classwriter assembles class files from Go values. It interns
// constant pool entries, so the pool it writes is the one classfile.Parse
// reads back.
package classwriter

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/daimatz/jvm2wasm/pkg/classfile"
)

// Code is the payload of a Code attribute.
type Code struct {
	MaxStack  uint16
	MaxLocals uint16
	Bytes     []byte
	Handlers  []classfile.ExceptionHandler
}

type attribute struct {
	name uint16
	data []byte
}

type member struct {
	access uint16
	name   uint16
	desc   uint16
	attrs  []attribute
}

type key struct {
	tag  uint8
	s    string
	a, b uint64
}

// Writer builds one class file.
type Writer struct {
	Major, Minor uint16
	Access       uint16
	// ThisClass and SuperClass are pool indices. New sets them; tests may
	// overwrite them to produce malformed input.
	ThisClass  uint16
	SuperClass uint16

	pool       *classfile.Pool
	seen       map[key]uint16
	interfaces []uint16
	fields     []member
	methods    []member
	attrs      []attribute
}

// New starts a public class named name extending super. An empty super
// produces super_class 0.
func New(name, super string) *Writer {
	w := &Writer{
		Major:  52,
		Access: classfile.AccPublic | classfile.AccSuper,
		pool:   classfile.NewPool(),
		seen:   make(map[key]uint16),
	}
	w.ThisClass = w.Class(name)
	if super != "" {
		w.SuperClass = w.Class(super)
	}
	return w
}

// Pool returns the pool under construction.
func (w *Writer) Pool() *classfile.Pool { return w.pool }

func (w *Writer) intern(k key, e classfile.ConstantPoolEntry) uint16 {
	if idx, ok := w.seen[k]; ok {
		return idx
	}
	idx := w.pool.Intern(e)
	w.seen[k] = idx
	return idx
}

// Raw appends e without deduplication.
func (w *Writer) Raw(e classfile.ConstantPoolEntry) uint16 {
	return w.pool.Intern(e)
}

func (w *Writer) Utf8(s string) uint16 {
	return w.intern(key{tag: classfile.TagUtf8, s: s}, &classfile.ConstantUtf8{Value: s})
}

func (w *Writer) Class(name string) uint16 {
	n := w.Utf8(name)
	return w.intern(key{tag: classfile.TagClass, a: uint64(n)}, &classfile.ConstantClass{NameIndex: n})
}

func (w *Writer) String(s string) uint16 {
	n := w.Utf8(s)
	return w.intern(key{tag: classfile.TagString, a: uint64(n)}, &classfile.ConstantString{StringIndex: n})
}

func (w *Writer) Int(v int32) uint16 {
	return w.intern(key{tag: classfile.TagInteger, a: uint64(uint32(v))}, &classfile.ConstantInteger{Value: v})
}

func (w *Writer) Float(v float32) uint16 {
	return w.intern(key{tag: classfile.TagFloat, a: uint64(math.Float32bits(v))}, &classfile.ConstantFloat{Value: v})
}

func (w *Writer) Long(v int64) uint16 {
	return w.intern(key{tag: classfile.TagLong, a: uint64(v)}, &classfile.ConstantLong{Value: v})
}

func (w *Writer) Double(v float64) uint16 {
	return w.intern(key{tag: classfile.TagDouble, a: math.Float64bits(v)}, &classfile.ConstantDouble{Value: v})
}

func (w *Writer) NameAndType(name, desc string) uint16 {
	n, d := w.Utf8(name), w.Utf8(desc)
	return w.intern(key{tag: classfile.TagNameAndType, a: uint64(n), b: uint64(d)},
		&classfile.ConstantNameAndType{NameIndex: n, DescriptorIndex: d})
}

func (w *Writer) Fieldref(class, name, desc string) uint16 {
	c, nt := w.Class(class), w.NameAndType(name, desc)
	return w.intern(key{tag: classfile.TagFieldref, a: uint64(c), b: uint64(nt)},
		&classfile.ConstantFieldref{ClassIndex: c, NameAndTypeIndex: nt})
}

func (w *Writer) Methodref(class, name, desc string) uint16 {
	c, nt := w.Class(class), w.NameAndType(name, desc)
	return w.intern(key{tag: classfile.TagMethodref, a: uint64(c), b: uint64(nt)},
		&classfile.ConstantMethodref{ClassIndex: c, NameAndTypeIndex: nt})
}

func (w *Writer) InterfaceMethodref(class, name, desc string) uint16 {
	c, nt := w.Class(class), w.NameAndType(name, desc)
	return w.intern(key{tag: classfile.TagInterfaceMethodref, a: uint64(c), b: uint64(nt)},
		&classfile.ConstantInterfaceMethodref{ClassIndex: c, NameAndTypeIndex: nt})
}

// AddInterface records an implemented interface.
func (w *Writer) AddInterface(name string) {
	w.interfaces = append(w.interfaces, w.Class(name))
}

// AddField adds a field. A non-zero constant is written as its
// ConstantValue attribute.
func (w *Writer) AddField(access uint16, name, desc string, constant uint16) {
	f := member{access: access, name: w.Utf8(name), desc: w.Utf8(desc)}
	if constant != 0 {
		f.attrs = append(f.attrs, attribute{
			name: w.Utf8("ConstantValue"),
			data: binary.BigEndian.AppendUint16(nil, constant),
		})
	}
	w.fields = append(w.fields, f)
}

// AddMethod adds a method. A nil code writes no Code attribute.
func (w *Writer) AddMethod(access uint16, name, desc string, code *Code) {
	m := member{access: access, name: w.Utf8(name), desc: w.Utf8(desc)}
	if code != nil {
		m.attrs = append(m.attrs, attribute{name: w.Utf8("Code"), data: encodeCode(code)})
	}
	w.methods = append(w.methods, m)
}

// AddAttribute adds a class-level attribute with an opaque payload.
func (w *Writer) AddAttribute(name string, data []byte) {
	w.attrs = append(w.attrs, attribute{name: w.Utf8(name), data: data})
}

func encodeCode(c *Code) []byte {
	var b []byte
	b = binary.BigEndian.AppendUint16(b, c.MaxStack)
	b = binary.BigEndian.AppendUint16(b, c.MaxLocals)
	b = binary.BigEndian.AppendUint32(b, uint32(len(c.Bytes)))
	b = append(b, c.Bytes...)
	b = binary.BigEndian.AppendUint16(b, uint16(len(c.Handlers)))
	for _, h := range c.Handlers {
		b = binary.BigEndian.AppendUint16(b, h.StartPC)
		b = binary.BigEndian.AppendUint16(b, h.EndPC)
		b = binary.BigEndian.AppendUint16(b, h.HandlerPC)
		b = binary.BigEndian.AppendUint16(b, h.CatchType)
	}
	return binary.BigEndian.AppendUint16(b, 0)
}

func appendAttributes(b []byte, attrs []attribute) []byte {
	b = binary.BigEndian.AppendUint16(b, uint16(len(attrs)))
	for _, a := range attrs {
		b = binary.BigEndian.AppendUint16(b, a.name)
		b = binary.BigEndian.AppendUint32(b, uint32(len(a.data)))
		b = append(b, a.data...)
	}
	return b
}

func appendMembers(b []byte, ms []member) []byte {
	b = binary.BigEndian.AppendUint16(b, uint16(len(ms)))
	for _, m := range ms {
		b = binary.BigEndian.AppendUint16(b, m.access)
		b = binary.BigEndian.AppendUint16(b, m.name)
		b = binary.BigEndian.AppendUint16(b, m.desc)
		b = appendAttributes(b, m.attrs)
	}
	return b
}

// Bytes serializes the class file.
func (w *Writer) Bytes() ([]byte, error) {
	var body []byte
	body = binary.BigEndian.AppendUint16(body, w.Access)
	body = binary.BigEndian.AppendUint16(body, w.ThisClass)
	body = binary.BigEndian.AppendUint16(body, w.SuperClass)
	body = binary.BigEndian.AppendUint16(body, uint16(len(w.interfaces)))
	for _, i := range w.interfaces {
		body = binary.BigEndian.AppendUint16(body, i)
	}
	body = appendMembers(body, w.fields)
	body = appendMembers(body, w.methods)
	body = appendAttributes(body, w.attrs)

	out := binary.BigEndian.AppendUint32(nil, 0xCAFEBABE)
	out = binary.BigEndian.AppendUint16(out, w.Minor)
	out = binary.BigEndian.AppendUint16(out, w.Major)
	out, err := w.pool.AppendTo(out)
	if err != nil {
		return nil, fmt.Errorf("writing constant pool: %w", err)
	}
	return append(out, body...), nil
}

// MustBytes is Bytes for fixtures known to be valid.
func (w *Writer) MustBytes() []byte {
	b, err := w.Bytes()
	if err != nil {
		panic(err)
	}
	return b
}
