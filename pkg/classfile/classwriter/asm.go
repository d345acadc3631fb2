package classwriter

import (
	"encoding/binary"
	"fmt"
)

type fixup struct {
	at     int // byte position of the offset field
	origin int // offset of the owning instruction
	label  string
	wide   bool
}

// Asm assembles a code array with symbolic branch labels.
type Asm struct {
	buf    []byte
	labels map[string]int
	fixups []fixup
}

func NewAsm() *Asm {
	return &Asm{labels: make(map[string]int)}
}

// Offset returns the offset the next instruction will start at.
func (a *Asm) Offset() int { return len(a.buf) }

// Op appends raw instruction bytes.
func (a *Asm) Op(b ...byte) *Asm {
	a.buf = append(a.buf, b...)
	return a
}

// U16 appends a big-endian operand, e.g. a pool index.
func (a *Asm) U16(v uint16) *Asm {
	a.buf = binary.BigEndian.AppendUint16(a.buf, v)
	return a
}

// Label binds name to the current offset.
func (a *Asm) Label(name string) *Asm {
	a.labels[name] = len(a.buf)
	return a
}

// Branch appends a branch opcode with a 16-bit offset to label.
func (a *Asm) Branch(op byte, label string) *Asm {
	origin := len(a.buf)
	a.buf = append(a.buf, op, 0, 0)
	a.fixups = append(a.fixups, fixup{at: origin + 1, origin: origin, label: label})
	return a
}

// GotoW appends goto_w with a 32-bit offset to label.
func (a *Asm) GotoW(label string) *Asm {
	origin := len(a.buf)
	a.buf = append(a.buf, 0xC8, 0, 0, 0, 0)
	a.fixups = append(a.fixups, fixup{at: origin + 1, origin: origin, label: label, wide: true})
	return a
}

func (a *Asm) pad() {
	for len(a.buf)%4 != 0 {
		a.buf = append(a.buf, 0)
	}
}

func (a *Asm) target(origin int, label string) {
	a.fixups = append(a.fixups, fixup{at: len(a.buf), origin: origin, label: label, wide: true})
	a.buf = append(a.buf, 0, 0, 0, 0)
}

func (a *Asm) i32(v int32) {
	a.buf = binary.BigEndian.AppendUint32(a.buf, uint32(v))
}

// TableSwitch appends a tableswitch over low..low+len(cases)-1.
func (a *Asm) TableSwitch(def string, low int32, cases ...string) *Asm {
	origin := len(a.buf)
	a.buf = append(a.buf, 0xAA)
	a.pad()
	a.target(origin, def)
	a.i32(low)
	a.i32(low + int32(len(cases)) - 1)
	for _, c := range cases {
		a.target(origin, c)
	}
	return a
}

// LookupSwitch appends a lookupswitch; keys and cases are parallel.
func (a *Asm) LookupSwitch(def string, keys []int32, cases []string) *Asm {
	origin := len(a.buf)
	a.buf = append(a.buf, 0xAB)
	a.pad()
	a.target(origin, def)
	a.i32(int32(len(keys)))
	for i, k := range keys {
		a.i32(k)
		a.target(origin, cases[i])
	}
	return a
}

// Bytes resolves every label and returns the code array.
func (a *Asm) Bytes() ([]byte, error) {
	out := append([]byte(nil), a.buf...)
	for _, f := range a.fixups {
		pos, ok := a.labels[f.label]
		if !ok {
			return nil, fmt.Errorf("undefined label %q", f.label)
		}
		delta := pos - f.origin
		if f.wide {
			binary.BigEndian.PutUint32(out[f.at:], uint32(int32(delta)))
			continue
		}
		if delta < -32768 || delta > 32767 {
			return nil, fmt.Errorf("branch to %q out of 16-bit range", f.label)
		}
		binary.BigEndian.PutUint16(out[f.at:], uint16(int16(delta)))
	}
	return out, nil
}

// MustBytes is Bytes for fixtures known to be valid.
func (a *Asm) MustBytes() []byte {
	b, err := a.Bytes()
	if err != nil {
		panic(err)
	}
	return b
}
