package emit

import (
	"fmt"
	"slices"

	"github.com/daimatz/jvm2wasm/pkg/bytecode"
	"github.com/daimatz/jvm2wasm/pkg/classfile"
)

// Stacks holds the operand stack kinds before each instruction, bottom
// first. An instruction that no path reaches has a nil entry and Reached
// false.
type Stacks struct {
	In      [][]bytecode.Kind
	Reached []bool
}

// At returns the stack before instruction i, which may be len(instrs).
func (s *Stacks) At(i int) ([]bytecode.Kind, bool) {
	if i >= len(s.In) {
		return nil, false
	}
	return s.In[i], s.Reached[i]
}

// TypeStack computes the operand stack before every instruction with a
// worklist over the control flow graph.
func TypeStack(instrs []bytecode.Instruction, ret bytecode.Kind) (*Stacks, error) {
	s := &Stacks{
		In:      make([][]bytecode.Kind, len(instrs)),
		Reached: make([]bool, len(instrs)),
	}
	if len(instrs) == 0 {
		return s, nil
	}
	index := make(map[int]int, len(instrs))
	for i, ins := range instrs {
		index[ins.Offset] = i
	}

	work := []int{0}
	s.Reached[0] = true
	s.In[0] = []bytecode.Kind{}

	join := func(from, to int, st []bytecode.Kind) error {
		if to >= len(instrs) {
			return fmt.Errorf("%w: control falls off the end of the code at %d",
				ErrInconsistentStack, instrs[from].Offset)
		}
		if !s.Reached[to] {
			s.Reached[to] = true
			s.In[to] = st
			work = append(work, to)
			return nil
		}
		if !slices.Equal(s.In[to], st) {
			return fmt.Errorf("%w: stack %v from %d does not match %v at %d",
				ErrInconsistentStack, st, instrs[from].Offset, s.In[to], instrs[to].Offset)
		}
		return nil
	}

	for len(work) > 0 {
		i := work[len(work)-1]
		work = work[:len(work)-1]
		ins := instrs[i]

		out, err := step(ins.Op, s.In[i], ret)
		if err != nil {
			return nil, fmt.Errorf("%s at %d: %w", bytecode.Mnemonic(ins.Opcode), ins.Offset, err)
		}
		for _, d := range bytecode.Branches(ins.Op) {
			t, ok := index[ins.Offset+int(d)]
			if !ok {
				return nil, fmt.Errorf("%w: branch at %d to %d", ErrInconsistentStack, ins.Offset, ins.Offset+int(d))
			}
			if err := join(i, t, out); err != nil {
				return nil, err
			}
		}
		if bytecode.FallsThrough(ins.Op) {
			if err := join(i, i+1, out); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

type stack []bytecode.Kind

func (s *stack) pop(want ...bytecode.Kind) error {
	for i := len(want) - 1; i >= 0; i-- {
		n := len(*s)
		if n == 0 {
			return fmt.Errorf("%w: underflow", ErrInconsistentStack)
		}
		if got := (*s)[n-1]; got != want[i] {
			return fmt.Errorf("%w: got %s, want %s", ErrInconsistentStack, got, want[i])
		}
		*s = (*s)[:n-1]
	}
	return nil
}

func (s *stack) push(k ...bytecode.Kind) {
	for _, k := range k {
		if k != bytecode.Void {
			*s = append(*s, k)
		}
	}
}

// step returns the stack after op. The input is not modified.
func step(op bytecode.Operation, in []bytecode.Kind, ret bytecode.Kind) ([]bytecode.Kind, error) {
	s := stack(slices.Clone(in))
	var err error
	switch o := op.(type) {
	case bytecode.Nop, bytecode.Goto, bytecode.Increment:
	case bytecode.Const:
		s.push(o.Kind)
	case bytecode.Load:
		s.push(o.Kind)
	case bytecode.Store:
		err = s.pop(o.Kind)
	case bytecode.Arith:
		switch {
		case o.Op.Unary():
			err = s.pop(o.Kind)
		case o.Op.Shift():
			err = s.pop(o.Kind, bytecode.Int)
		default:
			err = s.pop(o.Kind, o.Kind)
		}
		s.push(o.Kind)
	case bytecode.Convert:
		err = s.pop(o.From)
		s.push(o.To)
	case bytecode.Truncate:
		err = s.pop(bytecode.Int)
		s.push(bytecode.Int)
	case bytecode.Compare:
		err = s.pop(o.Kind, o.Kind)
		s.push(bytecode.Int)
	case bytecode.Stack:
		var n int
		var perm []int
		n, perm, err = Shuffle(o.Op, s)
		if err == nil {
			top := slices.Clone(s[len(s)-n:])
			s = s[:len(s)-n]
			for _, p := range perm {
				s.push(top[p])
			}
		}
	case bytecode.GetStatic:
		var t classfile.FieldType
		if t, err = classfile.ParseFieldDescriptor(o.Field.Descriptor); err == nil {
			s.push(bytecode.KindOf(t))
		}
	case bytecode.PutStatic:
		var t classfile.FieldType
		if t, err = classfile.ParseFieldDescriptor(o.Field.Descriptor); err == nil {
			err = s.pop(bytecode.KindOf(t))
		}
	case bytecode.InvokeStatic:
		var d *classfile.MethodDescriptor
		if d, err = classfile.ParseMethodDescriptor(o.Method.Descriptor); err == nil {
			params, r := descriptorKinds(d)
			if err = s.pop(params...); err == nil {
				s.push(r)
			}
		}
	case bytecode.Return:
		if o.Kind != ret {
			return nil, fmt.Errorf("%w: returns %s from a method returning %s", ErrInconsistentStack, o.Kind, ret)
		}
		if o.Kind != bytecode.Void {
			err = s.pop(o.Kind)
		}
	case bytecode.If:
		err = s.pop(bytecode.Int)
	case bytecode.IfCmp:
		err = s.pop(bytecode.Int, bytecode.Int)
	case bytecode.IfNull:
		err = s.pop(bytecode.Ref)
	case bytecode.TableSwitch, bytecode.LookupSwitch:
		err = s.pop(bytecode.Int)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupported, op)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func descriptorKinds(d *classfile.MethodDescriptor) ([]bytecode.Kind, bytecode.Kind) {
	params := make([]bytecode.Kind, len(d.Params))
	for i, p := range d.Params {
		params[i] = bytecode.KindOf(p)
	}
	return params, bytecode.KindOf(d.Return)
}

// Shuffle resolves a stack manipulation against the kinds on the stack. It
// returns how many values are taken from the top and the order they are
// pushed back in, as indices into the taken values (bottom first).
func Shuffle(op bytecode.StackOp, s []bytecode.Kind) (int, []int, error) {
	// top(i) is the kind i values below the top, or Void past the bottom.
	top := func(i int) bytecode.Kind {
		if i >= len(s) {
			return bytecode.Void
		}
		return s[len(s)-1-i]
	}
	cat1 := func(ks ...bytecode.Kind) bool {
		for _, k := range ks {
			if k == bytecode.Void || k.Wide() {
				return false
			}
		}
		return true
	}
	wide := func(k bytecode.Kind) bool { return k.Wide() }

	v1, v2, v3, v4 := top(0), top(1), top(2), top(3)
	switch op {
	case bytecode.Pop:
		if cat1(v1) {
			return 1, nil, nil
		}
	case bytecode.Pop2:
		if wide(v1) {
			return 1, nil, nil
		}
		if cat1(v1, v2) {
			return 2, nil, nil
		}
	case bytecode.Dup:
		if cat1(v1) {
			return 1, []int{0, 0}, nil
		}
	case bytecode.DupX1:
		if cat1(v1, v2) {
			return 2, []int{1, 0, 1}, nil
		}
	case bytecode.DupX2:
		if cat1(v1, v2, v3) {
			return 3, []int{2, 0, 1, 2}, nil
		}
		if cat1(v1) && wide(v2) {
			return 2, []int{1, 0, 1}, nil
		}
	case bytecode.Dup2:
		if wide(v1) {
			return 1, []int{0, 0}, nil
		}
		if cat1(v1, v2) {
			return 2, []int{0, 1, 0, 1}, nil
		}
	case bytecode.Dup2X1:
		if cat1(v1, v2, v3) {
			return 3, []int{1, 2, 0, 1, 2}, nil
		}
		if wide(v1) && cat1(v2) {
			return 2, []int{1, 0, 1}, nil
		}
	case bytecode.Dup2X2:
		switch {
		case cat1(v1, v2, v3, v4):
			return 4, []int{2, 3, 0, 1, 2, 3}, nil
		case wide(v1) && cat1(v2, v3):
			return 3, []int{2, 0, 1, 2}, nil
		case cat1(v1, v2) && wide(v3):
			return 3, []int{1, 2, 0, 1, 2}, nil
		case wide(v1) && wide(v2):
			return 2, []int{1, 0, 1}, nil
		}
	case bytecode.Swap:
		if cat1(v1, v2) {
			return 2, []int{1, 0}, nil
		}
	}
	return 0, nil, fmt.Errorf("%w: %s on %v", ErrInconsistentStack, op, s)
}
