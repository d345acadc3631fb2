// Package wasm encodes WebAssembly modules in the binary format.
package wasm

import "io"

// Section ids.
const (
	SectionCustom    = 0
	SectionType      = 1
	SectionImport    = 2
	SectionFunction  = 3
	SectionTable     = 4
	SectionMemory    = 5
	SectionGlobal    = 6
	SectionExport    = 7
	SectionStart     = 8
	SectionElement   = 9
	SectionCode      = 10
	SectionData      = 11
	SectionDataCount = 12
)

var header = []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

// Module holds the contents of every section. Functions holds the type
// index of each defined function, parallel to Codes.
type Module struct {
	Types     []FuncType
	Imports   []Import
	Functions []uint32
	Tables    []TableType
	Memories  []Limits
	Globals   []Global
	Exports   []Export
	Start     *uint32
	Elements  []Element
	Codes     []Code
	Data      []DataSegment
}

// TypeIndex returns the index of ft, adding it if no equal type exists.
func (m *Module) TypeIndex(ft FuncType) uint32 {
	for i, t := range m.Types {
		if t.Equal(ft) {
			return uint32(i)
		}
	}
	m.Types = append(m.Types, ft)
	return uint32(len(m.Types) - 1)
}

// ImportCount returns the number of imports of the given kind, which is the
// first index available to definitions of that kind.
func (m *Module) ImportCount(kind ExternalKind) uint32 {
	var n uint32
	for _, imp := range m.Imports {
		if imp.Kind == kind {
			n++
		}
	}
	return n
}

// Encode returns the binary module. Sections are written in their required
// order and empty ones are omitted.
func (m *Module) Encode() []byte {
	out := append([]byte(nil), header...)

	if len(m.Types) > 0 {
		out = section(out, SectionType, vec(len(m.Types), func(b []byte, i int) []byte {
			return m.Types[i].appendTo(b)
		}))
	}
	if len(m.Imports) > 0 {
		out = section(out, SectionImport, vec(len(m.Imports), func(b []byte, i int) []byte {
			imp := m.Imports[i]
			b = AppendName(b, imp.Module)
			b = AppendName(b, imp.Name)
			b = append(b, byte(imp.Kind))
			switch imp.Kind {
			case ExternFunc:
				b = appendU32(b, imp.TypeIndex)
			case ExternTable:
				b = imp.Table.Limits.appendTo(append(b, byte(imp.Table.Elem)))
			case ExternMemory:
				b = imp.Memory.appendTo(b)
			case ExternGlobal:
				b = imp.Global.appendTo(b)
			}
			return b
		}))
	}
	if len(m.Functions) > 0 {
		out = section(out, SectionFunction, vec(len(m.Functions), func(b []byte, i int) []byte {
			return appendU32(b, m.Functions[i])
		}))
	}
	if len(m.Tables) > 0 {
		out = section(out, SectionTable, vec(len(m.Tables), func(b []byte, i int) []byte {
			return m.Tables[i].Limits.appendTo(append(b, byte(m.Tables[i].Elem)))
		}))
	}
	if len(m.Memories) > 0 {
		out = section(out, SectionMemory, vec(len(m.Memories), func(b []byte, i int) []byte {
			return m.Memories[i].appendTo(b)
		}))
	}
	if len(m.Globals) > 0 {
		out = section(out, SectionGlobal, vec(len(m.Globals), func(b []byte, i int) []byte {
			g := m.Globals[i]
			b = g.Type.appendTo(b)
			b = append(b, g.Init...)
			return append(b, OpEnd)
		}))
	}
	if len(m.Exports) > 0 {
		out = section(out, SectionExport, vec(len(m.Exports), func(b []byte, i int) []byte {
			e := m.Exports[i]
			b = AppendName(b, e.Name)
			b = append(b, byte(e.Kind))
			return appendU32(b, e.Index)
		}))
	}
	if m.Start != nil {
		out = section(out, SectionStart, appendU32(nil, *m.Start))
	}
	if len(m.Elements) > 0 {
		out = section(out, SectionElement, vec(len(m.Elements), func(b []byte, i int) []byte {
			e := m.Elements[i]
			b = append(b, 0x00)
			b = append(b, e.Offset...)
			b = append(b, OpEnd)
			b = appendU32(b, uint32(len(e.Funcs)))
			for _, f := range e.Funcs {
				b = appendU32(b, f)
			}
			return b
		}))
	}
	if len(m.Data) > 0 {
		out = section(out, SectionDataCount, appendU32(nil, uint32(len(m.Data))))
	}
	if len(m.Codes) > 0 {
		out = section(out, SectionCode, vec(len(m.Codes), func(b []byte, i int) []byte {
			return m.Codes[i].appendTo(b)
		}))
	}
	if len(m.Data) > 0 {
		out = section(out, SectionData, vec(len(m.Data), func(b []byte, i int) []byte {
			d := m.Data[i]
			b = append(b, 0x00)
			b = append(b, d.Offset...)
			b = append(b, OpEnd)
			b = appendU32(b, uint32(len(d.Data)))
			return append(b, d.Data...)
		}))
	}
	return out
}

// WriteTo writes the encoded module to w.
func (m *Module) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(m.Encode())
	return int64(n), err
}

func section(out []byte, id byte, payload []byte) []byte {
	out = append(out, id)
	out = appendU32(out, uint32(len(payload)))
	return append(out, payload...)
}

func vec(n int, item func([]byte, int) []byte) []byte {
	b := appendU32(nil, uint32(n))
	for i := 0; i < n; i++ {
		b = item(b, i)
	}
	return b
}
