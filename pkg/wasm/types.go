package wasm

import (
	"fmt"
	"slices"
)

// ValType is a value type byte.
type ValType byte

const (
	I32       ValType = 0x7F
	I64       ValType = 0x7E
	F32       ValType = 0x7D
	F64       ValType = 0x7C
	FuncRef   ValType = 0x70
	ExternRef ValType = 0x6F
)

func (v ValType) String() string {
	switch v {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case FuncRef:
		return "funcref"
	case ExternRef:
		return "externref"
	}
	return fmt.Sprintf("valtype(0x%02x)", byte(v))
}

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

func (f FuncType) Equal(o FuncType) bool {
	return slices.Equal(f.Params, o.Params) && slices.Equal(f.Results, o.Results)
}

func (f FuncType) appendTo(b []byte) []byte {
	b = append(b, 0x60)
	b = appendU32(b, uint32(len(f.Params)))
	for _, p := range f.Params {
		b = append(b, byte(p))
	}
	b = appendU32(b, uint32(len(f.Results)))
	for _, r := range f.Results {
		b = append(b, byte(r))
	}
	return b
}

// Limits bounds a table or memory. Max is optional.
type Limits struct {
	Min uint32
	Max *uint32
}

func (l Limits) appendTo(b []byte) []byte {
	if l.Max == nil {
		return appendU32(append(b, 0x00), l.Min)
	}
	b = appendU32(append(b, 0x01), l.Min)
	return appendU32(b, *l.Max)
}

// TableType is a table of references.
type TableType struct {
	Elem   ValType
	Limits Limits
}

// GlobalType is the type of a global.
type GlobalType struct {
	ValType ValType
	Mutable bool
}

func (g GlobalType) appendTo(b []byte) []byte {
	b = append(b, byte(g.ValType))
	if g.Mutable {
		return append(b, 0x01)
	}
	return append(b, 0x00)
}

// ConstExpr is a constant initializer expression without its end opcode.
type ConstExpr []byte

func I32Init(v int32) ConstExpr   { return AppendSLEB128([]byte{OpI32Const}, int64(v)) }
func I64Init(v int64) ConstExpr   { return AppendSLEB128([]byte{OpI64Const}, v) }
func F32Init(v float32) ConstExpr { return AppendF32([]byte{OpF32Const}, v) }
func F64Init(v float64) ConstExpr { return AppendF64([]byte{OpF64Const}, v) }

// NullInit is ref.null of the given reference type.
func NullInit(t ValType) ConstExpr { return ConstExpr{OpRefNull, byte(t)} }

// ZeroInit is the zero value of t.
func ZeroInit(t ValType) ConstExpr {
	switch t {
	case I64:
		return I64Init(0)
	case F32:
		return F32Init(0)
	case F64:
		return F64Init(0)
	case FuncRef, ExternRef:
		return NullInit(t)
	}
	return I32Init(0)
}

// ExternalKind tags imports and exports.
type ExternalKind byte

const (
	ExternFunc   ExternalKind = 0x00
	ExternTable  ExternalKind = 0x01
	ExternMemory ExternalKind = 0x02
	ExternGlobal ExternalKind = 0x03
)

func (k ExternalKind) String() string {
	switch k {
	case ExternFunc:
		return "func"
	case ExternTable:
		return "table"
	case ExternMemory:
		return "memory"
	case ExternGlobal:
		return "global"
	}
	return fmt.Sprintf("extern(0x%02x)", byte(k))
}

// Import describes one import. Only the field matching Kind is used.
type Import struct {
	Module, Name string
	Kind         ExternalKind
	TypeIndex    uint32
	Table        TableType
	Memory       Limits
	Global       GlobalType
}

// Export names a function, table, memory or global.
type Export struct {
	Name  string
	Kind  ExternalKind
	Index uint32
}

// Global is a module-defined global.
type Global struct {
	Type GlobalType
	Init ConstExpr
}

// Element is an active segment of function indices for table 0.
type Element struct {
	Offset ConstExpr
	Funcs  []uint32
}

// DataSegment is an active segment for memory 0.
type DataSegment struct {
	Offset ConstExpr
	Data   []byte
}

// LocalDecl declares Count locals of one type.
type LocalDecl struct {
	Count uint32
	Type  ValType
}

// Code is a function body. Body includes the final end opcode.
type Code struct {
	Locals []LocalDecl
	Body   []byte
}

// NumLocals returns the number of declared locals.
func (c Code) NumLocals() int {
	n := 0
	for _, d := range c.Locals {
		n += int(d.Count)
	}
	return n
}

func (c Code) appendTo(b []byte) []byte {
	var fn []byte
	fn = appendU32(fn, uint32(len(c.Locals)))
	for _, d := range c.Locals {
		fn = appendU32(fn, d.Count)
		fn = append(fn, byte(d.Type))
	}
	fn = append(fn, c.Body...)
	b = appendU32(b, uint32(len(fn)))
	return append(b, fn...)
}

// BlockType is the signature of a block, loop or if. It is stored as the
// signed value its encoding denotes.
type BlockType int64

// BlockEmpty takes and returns nothing.
const BlockEmpty BlockType = -0x40

// ValueBlock returns a single value of type t.
func ValueBlock(t ValType) BlockType { return BlockType(int64(t) - 0x80) }

// TypeBlock uses a function type from the type section.
func TypeBlock(index uint32) BlockType { return BlockType(index) }
