package link

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/daimatz/jvm2wasm/pkg/classfile"
	"github.com/daimatz/jvm2wasm/pkg/wasm"
)

// cborEncMode is canonical so that equal link maps encode to equal bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("link: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// LinkMap records where every linked member ended up in the module.
type LinkMap struct {
	Globals   []Symbol `cbor:"1,keyasint,omitempty"`
	Functions []Symbol `cbor:"2,keyasint,omitempty"`
	Imports   []Symbol `cbor:"3,keyasint,omitempty"`
	Start     *uint32  `cbor:"4,keyasint,omitempty"`
}

// Symbol maps one member to its index.
type Symbol struct {
	Index      uint32 `cbor:"1,keyasint"`
	Kind       string `cbor:"2,keyasint"`
	Class      string `cbor:"3,keyasint"`
	Name       string `cbor:"4,keyasint"`
	Descriptor string `cbor:"5,keyasint"`
	Export     string `cbor:"6,keyasint,omitempty"`
	Mutable    bool   `cbor:"7,keyasint,omitempty"`
}

// Function looks up the symbol of a linked method.
func (m *LinkMap) Function(class, name, descriptor string) (Symbol, bool) {
	return find(m.Functions, class, name, descriptor)
}

// Global looks up the symbol of a linked static field.
func (m *LinkMap) Global(class, name, descriptor string) (Symbol, bool) {
	return find(m.Globals, class, name, descriptor)
}

func find(syms []Symbol, class, name, descriptor string) (Symbol, bool) {
	for _, s := range syms {
		if s.Class == class && s.Name == name && s.Descriptor == descriptor {
			return s, true
		}
	}
	return Symbol{}, false
}

// Marshal serializes the link map to canonical CBOR.
func (m *LinkMap) Marshal() ([]byte, error) {
	return cborEncMode.Marshal(m)
}

// UnmarshalLinkMap deserializes a link map from CBOR bytes.
func UnmarshalLinkMap(data []byte) (*LinkMap, error) {
	var m LinkMap
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("link: unmarshal link map: %w", err)
	}
	return &m, nil
}

func (l *Linker) buildLinkMap() *LinkMap {
	m := &LinkMap{Start: l.start}
	for i, im := range l.mod.Imports {
		key := l.memberKeys[i]
		ref := key.ref
		m.Imports = append(m.Imports, Symbol{
			Index:      l.imports[key],
			Kind:       im.Kind.String(),
			Class:      ref.Class,
			Name:       ref.Name,
			Descriptor: ref.Descriptor,
			Mutable:    im.Kind == wasm.ExternGlobal && im.Global.Mutable,
		})
	}
	for _, c := range l.classes {
		for _, f := range c.cf.Fields {
			if !f.IsStatic() {
				continue
			}
			ref := classfile.MemberRef{Class: c.name, Name: f.Name, Descriptor: f.Descriptor}
			idx := c.globals[NameAndType{f.Name, f.Descriptor}]
			m.Globals = append(m.Globals, Symbol{
				Index:      idx,
				Kind:       wasm.ExternGlobal.String(),
				Class:      c.name,
				Name:       f.Name,
				Descriptor: f.Descriptor,
				Export:     l.exports[memberKey{wasm.ExternGlobal, ref}],
				Mutable:    l.mod.Globals[idx-l.mod.ImportCount(wasm.ExternGlobal)].Type.Mutable,
			})
		}
	}
	for _, fn := range l.methods {
		ref := classfile.MemberRef{Class: fn.class.name, Name: fn.info.Name, Descriptor: fn.info.Descriptor}
		m.Functions = append(m.Functions, Symbol{
			Index:      fn.index,
			Kind:       wasm.ExternFunc.String(),
			Class:      ref.Class,
			Name:       ref.Name,
			Descriptor: ref.Descriptor,
			Export:     l.exports[memberKey{wasm.ExternFunc, ref}],
		})
	}
	return m
}
