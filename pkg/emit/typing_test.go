package emit_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/daimatz/jvm2wasm/pkg/bytecode"
	"github.com/daimatz/jvm2wasm/pkg/classfile"
	"github.com/daimatz/jvm2wasm/pkg/classfile/classwriter"
	"github.com/daimatz/jvm2wasm/pkg/emit"
)

func TestShuffle(t *testing.T) {
	I, J := bytecode.Int, bytecode.Long
	tests := []struct {
		op    bytecode.StackOp
		stack []bytecode.Kind
		n     int
		perm  []int
	}{
		{bytecode.Pop, []bytecode.Kind{I}, 1, nil},
		{bytecode.Pop2, []bytecode.Kind{J}, 1, nil},
		{bytecode.Pop2, []bytecode.Kind{I, I}, 2, nil},
		{bytecode.Dup, []bytecode.Kind{I}, 1, []int{0, 0}},
		{bytecode.DupX1, []bytecode.Kind{I, I}, 2, []int{1, 0, 1}},
		{bytecode.DupX2, []bytecode.Kind{I, I, I}, 3, []int{2, 0, 1, 2}},
		{bytecode.DupX2, []bytecode.Kind{J, I}, 2, []int{1, 0, 1}},
		{bytecode.Dup2, []bytecode.Kind{J}, 1, []int{0, 0}},
		{bytecode.Dup2, []bytecode.Kind{I, I}, 2, []int{0, 1, 0, 1}},
		{bytecode.Dup2X1, []bytecode.Kind{I, I, I}, 3, []int{1, 2, 0, 1, 2}},
		{bytecode.Dup2X1, []bytecode.Kind{I, J}, 2, []int{1, 0, 1}},
		{bytecode.Dup2X2, []bytecode.Kind{I, I, I, I}, 4, []int{2, 3, 0, 1, 2, 3}},
		{bytecode.Dup2X2, []bytecode.Kind{I, I, J}, 3, []int{2, 0, 1, 2}},
		{bytecode.Dup2X2, []bytecode.Kind{J, I, I}, 3, []int{1, 2, 0, 1, 2}},
		{bytecode.Dup2X2, []bytecode.Kind{J, J}, 2, []int{1, 0, 1}},
		{bytecode.Swap, []bytecode.Kind{I, I}, 2, []int{1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			n, perm, err := emit.Shuffle(tt.op, tt.stack)
			if err != nil {
				t.Fatal(err)
			}
			if n != tt.n || !reflect.DeepEqual(perm, tt.perm) {
				t.Errorf("got %d %v, want %d %v", n, perm, tt.n, tt.perm)
			}
		})
	}

	bad := []struct {
		op    bytecode.StackOp
		stack []bytecode.Kind
	}{
		{bytecode.Pop, []bytecode.Kind{J}},
		{bytecode.Dup, nil},
		{bytecode.Swap, []bytecode.Kind{J, I}},
		{bytecode.DupX1, []bytecode.Kind{I}},
	}
	for _, tt := range bad {
		if _, _, err := emit.Shuffle(tt.op, tt.stack); !errors.Is(err, emit.ErrInconsistentStack) {
			t.Errorf("%s on %v: got %v, want ErrInconsistentStack", tt.op, tt.stack, err)
		}
	}
}

func TestTypeStack(t *testing.T) {
	// iload_0; ifeq e; iconst_1; goto j; e: lconst_0; l2i; j: ireturn
	a := classwriter.NewAsm().Op(0x1A).Branch(0x99, "e")
	a.Op(0x04).Branch(0xA7, "j")
	a.Label("e").Op(0x09, 0x88)
	a.Label("j").Op(0xAC)
	instrs, err := bytecode.Decode(a.MustBytes(), classfile.NewPool())
	if err != nil {
		t.Fatal(err)
	}
	s, err := emit.TypeStack(instrs, bytecode.Int)
	if err != nil {
		t.Fatal(err)
	}
	want := [][]bytecode.Kind{
		{},
		{bytecode.Int},
		{},
		{bytecode.Int},
		{},
		{bytecode.Long},
		{bytecode.Int},
	}
	if !reflect.DeepEqual(s.In, want) {
		t.Errorf("stacks: got %v, want %v", s.In, want)
	}
	if _, ok := s.At(len(instrs)); ok {
		t.Errorf("position past the end must not be reached")
	}
}
