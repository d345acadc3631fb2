package link

import (
	"fmt"
	"strings"

	"github.com/daimatz/jvm2wasm/pkg/bytecode"
	"github.com/daimatz/jvm2wasm/pkg/classfile"
	"github.com/daimatz/jvm2wasm/pkg/emit"
	"github.com/daimatz/jvm2wasm/pkg/wasm"
)

// findField looks a static field up in the named class and its loaded
// superclasses.
func (l *Linker) findField(ref classfile.MemberRef) (*class, *classfile.FieldInfo) {
	for c := l.byName[ref.Class]; c != nil; c = l.byName[c.super] {
		if f := c.cf.FindField(ref.Name, ref.Descriptor); f != nil && f.IsStatic() {
			return c, f
		}
	}
	return nil, nil
}

func (l *Linker) findMethod(ref classfile.MemberRef) (*class, *classfile.MethodInfo) {
	for c := l.byName[ref.Class]; c != nil; c = l.byName[c.super] {
		if m := c.cf.FindMethod(ref.Name, ref.Descriptor); m != nil && m.IsStatic() && m.Code != nil {
			return c, m
		}
	}
	return nil, nil
}

// Global implements emit.Resolver.
func (l *Linker) Global(ref classfile.MemberRef) (uint32, bool) {
	if c, f := l.findField(ref); f != nil {
		idx, ok := c.globals[NameAndType{f.Name, f.Descriptor}]
		return idx, ok
	}
	idx, ok := l.imports[memberKey{wasm.ExternGlobal, ref}]
	return idx, ok
}

// Function implements emit.Resolver.
func (l *Linker) Function(ref classfile.MemberRef) (uint32, bool) {
	if c, m := l.findMethod(ref); m != nil {
		idx, ok := c.funcs[NameAndType{m.Name, m.Descriptor}]
		return idx, ok
	}
	idx, ok := l.imports[memberKey{wasm.ExternFunc, ref}]
	return idx, ok
}

// TypeIndex implements emit.Resolver.
func (l *Linker) TypeIndex(ft wasm.FuncType) uint32 { return l.mod.TypeIndex(ft) }

// scanImports turns every reference that no loaded class defines into an
// import, in the order the references first occur. A global import is
// mutable when any method stores to it.
func (l *Linker) scanImports() error {
	for _, c := range l.classes {
		for i := range c.cf.Methods {
			m := &c.cf.Methods[i]
			if !m.IsStatic() || m.Code == nil {
				continue
			}
			instrs, err := bytecode.Decode(m.Code.Code, c.cf.ConstantPool)
			if err != nil {
				return &MethodError{Class: c.name, Name: m.Name, Descriptor: m.Descriptor, Err: err}
			}
			for _, ins := range instrs {
				switch o := ins.Op.(type) {
				case bytecode.GetStatic:
					err = l.importGlobal(o.Field, false)
				case bytecode.PutStatic:
					err = l.importGlobal(o.Field, true)
				case bytecode.InvokeStatic:
					err = l.importFunc(o.Method)
				}
				if err != nil {
					return &MethodError{Class: c.name, Name: m.Name, Descriptor: m.Descriptor, Err: err}
				}
			}
		}
	}
	return nil
}

// ImportModule is the import module name for members of class: the class
// name with dots.
func ImportModule(class string) string { return strings.ReplaceAll(class, "/", ".") }

func (l *Linker) importGlobal(ref classfile.MemberRef, store bool) error {
	if _, f := l.findField(ref); f != nil {
		return nil
	}
	key := memberKey{wasm.ExternGlobal, ref}
	if _, ok := l.imports[key]; ok {
		if store {
			l.mod.Imports[l.importAt[key]].Global.Mutable = true
		}
		return nil
	}
	t, err := classfile.ParseFieldDescriptor(ref.Descriptor)
	if err != nil {
		return fmt.Errorf("%s: %w", ref, err)
	}
	l.imports[key] = l.mod.ImportCount(wasm.ExternGlobal)
	l.importAt[key] = len(l.mod.Imports)
	l.memberKeys = append(l.memberKeys, key)
	l.mod.Imports = append(l.mod.Imports, wasm.Import{
		Module: ImportModule(ref.Class),
		Name:   ref.Name,
		Kind:   wasm.ExternGlobal,
		Global: wasm.GlobalType{ValType: emit.ValType(bytecode.KindOf(t)), Mutable: store},
	})
	log.Infof("importing global %s", ref)
	return nil
}

func (l *Linker) importFunc(ref classfile.MemberRef) error {
	if _, m := l.findMethod(ref); m != nil {
		return nil
	}
	key := memberKey{wasm.ExternFunc, ref}
	if _, ok := l.imports[key]; ok {
		return nil
	}
	sig, err := emit.Signature(ref.Descriptor)
	if err != nil {
		return fmt.Errorf("%s: %w", ref, err)
	}
	l.imports[key] = l.mod.ImportCount(wasm.ExternFunc)
	l.memberKeys = append(l.memberKeys, key)
	l.mod.Imports = append(l.mod.Imports, wasm.Import{
		Module:    ImportModule(ref.Class),
		Name:      ref.Name + ref.Descriptor,
		Kind:      wasm.ExternFunc,
		TypeIndex: l.mod.TypeIndex(sig),
	})
	log.Infof("importing function %s", ref)
	return nil
}
