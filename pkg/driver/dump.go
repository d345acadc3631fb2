package driver

import (
	"fmt"
	"io"

	"github.com/daimatz/jvm2wasm/pkg/bytecode"
	"github.com/daimatz/jvm2wasm/pkg/classfile"
	"github.com/daimatz/jvm2wasm/pkg/structure"
)

// Dump writes a listing of every method body, with the regions the
// structurer finds for it. Methods that cannot be decoded or structured
// are listed with the error instead.
func Dump(w io.Writer, classes []*classfile.ClassFile) error {
	for _, cf := range classes {
		name, err := cf.ClassName()
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "class %s extends %s\n", name, cf.SuperClassName()); err != nil {
			return err
		}
		for i := range cf.Methods {
			if err := dumpMethod(w, cf, &cf.Methods[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func dumpMethod(w io.Writer, cf *classfile.ClassFile, m *classfile.MethodInfo) error {
	code := m.Code
	if code == nil {
		_, err := fmt.Fprintf(w, "  %s%s (no code)\n", m.Name, m.Descriptor)
		return err
	}
	if _, err := fmt.Fprintf(w, "  %s%s stack=%d locals=%d\n", m.Name, m.Descriptor, code.MaxStack, code.MaxLocals); err != nil {
		return err
	}
	instrs, err := bytecode.Decode(code.Code, cf.ConstantPool)
	if err != nil {
		_, err = fmt.Fprintf(w, "    error: %v\n", err)
		return err
	}
	if err := bytecode.Disassemble(w, instrs); err != nil {
		return err
	}
	tree, err := structure.Structure(instrs)
	if err != nil {
		_, err = fmt.Fprintf(w, "    structure: %v\n", err)
		return err
	}
	c := tree.Count()
	_, err = fmt.Fprintf(w, "    regions: %d loops, %d blocks, %d conditionals, %d switch wrappers\n",
		c.Loops, c.Blocks, c.Conditionals, c.Wrappers)
	return err
}
