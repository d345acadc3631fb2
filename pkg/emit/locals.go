package emit

import (
	"github.com/daimatz/jvm2wasm/pkg/bytecode"
	"github.com/daimatz/jvm2wasm/pkg/wasm"
)

type slotKey struct {
	slot uint16
	kind bytecode.Kind
}

// locals assigns wasm locals to JVM local slots and hands out scratch
// locals. Index order is allocation order.
type locals struct {
	types   []wasm.ValType
	params  int
	slots   map[slotKey]uint32
	scratch map[wasm.ValType][]uint32
}

func newLocals(params []bytecode.Kind) *locals {
	l := &locals{
		slots:   make(map[slotKey]uint32),
		scratch: make(map[wasm.ValType][]uint32),
		params:  len(params),
	}
	slot := uint16(0)
	for _, k := range params {
		l.slots[slotKey{slot, k}] = l.fresh(ValType(k))
		slot++
		if k.Wide() {
			slot++
		}
	}
	return l
}

// fresh allocates a local that is never shared.
func (l *locals) fresh(t wasm.ValType) uint32 {
	l.types = append(l.types, t)
	return uint32(len(l.types) - 1)
}

// slot returns the local holding values of kind k in JVM slot s.
func (l *locals) slot(s uint16, k bytecode.Kind) uint32 {
	key := slotKey{s, k}
	if i, ok := l.slots[key]; ok {
		return i
	}
	i := l.fresh(ValType(k))
	l.slots[key] = i
	return i
}

// temp returns the n-th scratch local of type t. Scratch locals are only
// live within the lowering of one instruction.
func (l *locals) temp(t wasm.ValType, n int) uint32 {
	for len(l.scratch[t]) <= n {
		l.scratch[t] = append(l.scratch[t], l.fresh(t))
	}
	return l.scratch[t][n]
}

// decls groups the non-parameter locals into runs of one type.
func (l *locals) decls() []wasm.LocalDecl {
	var out []wasm.LocalDecl
	for _, t := range l.types[l.params:] {
		if n := len(out); n > 0 && out[n-1].Type == t {
			out[n-1].Count++
			continue
		}
		out = append(out, wasm.LocalDecl{Count: 1, Type: t})
	}
	return out
}

// ValType maps an operand stack kind to its wasm value type.
func ValType(k bytecode.Kind) wasm.ValType {
	switch k {
	case bytecode.Long:
		return wasm.I64
	case bytecode.Float:
		return wasm.F32
	case bytecode.Double:
		return wasm.F64
	case bytecode.Ref:
		return wasm.ExternRef
	}
	return wasm.I32
}
