package classwriter_test

import (
	"bytes"
	"testing"

	parser "github.com/wreulicke/classfile-parser"

	"github.com/daimatz/jvm2wasm/pkg/classfile"
	"github.com/daimatz/jvm2wasm/pkg/classfile/classwriter"
)

// TestIndependentParser checks the writer's output against a third-party
// class file parser, so that fixtures are valid class files and not merely
// readable by our own parser.
func TestIndependentParser(t *testing.T) {
	w := classwriter.New("com/example/Fixture", "java/lang/Object")
	w.AddInterface("java/lang/Runnable")
	w.AddField(classfile.AccStatic|classfile.AccFinal, "LIMIT", "J", w.Long(1<<40))
	w.AddField(classfile.AccStatic, "ratio", "D", 0)
	w.AddMethod(classfile.AccPublic|classfile.AccStatic, "twice", "(I)I", &classwriter.Code{
		MaxStack:  2,
		MaxLocals: 1,
		Bytes:     []byte{0x1A, 0x05, 0x68, 0xAC}, // iload_0; iconst_2; imul; ireturn
	})
	b := w.MustBytes()

	cf, err := parser.New(bytes.NewReader(b)).Parse()
	if err != nil {
		t.Fatalf("independent parser rejected fixture: %v", err)
	}
	name, err := cf.ThisClassName()
	if err != nil {
		t.Fatalf("ThisClassName: %v", err)
	}
	if name != "com/example/Fixture" {
		t.Errorf("this class: got %q, want %q", name, "com/example/Fixture")
	}
	super, err := cf.SuperClassName()
	if err != nil || super != "java/lang/Object" {
		t.Errorf("super class: got %q, %v", super, err)
	}
	if len(cf.Interfaces) != 1 {
		t.Errorf("interfaces: got %d, want 1", len(cf.Interfaces))
	}

	cp := cf.ConstantPool
	var fields []string
	for _, f := range cf.Fields {
		n, _ := f.Name(cp)
		d, _ := f.Descriptor(cp)
		fields = append(fields, n+":"+d)
	}
	if len(fields) != 2 || fields[0] != "LIMIT:J" || fields[1] != "ratio:D" {
		t.Errorf("fields: got %v", fields)
	}
	if len(cf.Methods) != 1 {
		t.Fatalf("methods: got %d, want 1", len(cf.Methods))
	}
	m := cf.Methods[0]
	if n, _ := m.Name(cp); n != "twice" {
		t.Errorf("method name: got %q, want twice", n)
	}
	code := m.Code()
	if code == nil {
		t.Fatal("method has no Code")
	}
	if code.MaxStack != 2 || code.MaxLocals != 1 {
		t.Errorf("max stack/locals: got %d/%d, want 2/1", code.MaxStack, code.MaxLocals)
	}

	ours, err := classfile.ParseBytes(b)
	if err != nil {
		t.Fatalf("classfile.ParseBytes: %v", err)
	}
	if ours.ConstantPool.Len() != len(cp.Constants)+1 {
		t.Errorf("pool slots: ours %d, independent %d+1", ours.ConstantPool.Len(), len(cp.Constants))
	}
}

func TestInterning(t *testing.T) {
	w := classwriter.New("A", "")
	if w.SuperClass != 0 {
		t.Errorf("super: got %d, want 0", w.SuperClass)
	}
	a := w.Methodref("B", "f", "()V")
	b := w.Methodref("B", "f", "()V")
	if a != b {
		t.Errorf("Methodref not interned: %d != %d", a, b)
	}
	if w.Utf8("A") != 1 || w.Class("A") != w.ThisClass {
		t.Errorf("class A: utf8 %d, class %d, this %d", w.Utf8("A"), w.Class("A"), w.ThisClass)
	}
	l := w.Long(1)
	next := w.Int(1)
	if next != l+2 {
		t.Errorf("after Long at %d: got %d, want %d", l, next, l+2)
	}
}

func TestAsmLabels(t *testing.T) {
	a := classwriter.NewAsm()
	a.Op(0x00) // nop
	a.Label("top")
	a.Branch(0x99, "end") // ifeq
	a.Branch(0xA7, "top") // goto
	a.Label("end")
	a.Op(0xB1)
	got := a.MustBytes()
	want := []byte{0x00, 0x99, 0x00, 0x06, 0xA7, 0xFF, 0xFD, 0xB1}
	if !bytes.Equal(got, want) {
		t.Errorf("got % X, want % X", got, want)
	}

	if _, err := classwriter.NewAsm().Branch(0xA7, "nowhere").Bytes(); err == nil {
		t.Error("expected undefined label error, got nil")
	}
}

func TestAsmSwitchPadding(t *testing.T) {
	for lead := 0; lead < 4; lead++ {
		a := classwriter.NewAsm()
		for i := 0; i < lead; i++ {
			a.Op(0x00)
		}
		a.TableSwitch("d", 0, "d")
		a.Label("d")
		a.Op(0xB1)
		b := a.MustBytes()
		pad := (4 - (lead+1)%4) % 4
		if len(b) != lead+1+pad+16+1 {
			t.Errorf("lead %d: length %d, want %d", lead, len(b), lead+1+pad+16+1)
		}
	}
}
