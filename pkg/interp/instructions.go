package interp

import (
	"errors"
	"fmt"
	"math"

	"github.com/daimatz/jvm2wasm/pkg/bytecode"
	"github.com/daimatz/jvm2wasm/pkg/classfile"
	"github.com/daimatz/jvm2wasm/pkg/emit"
	"github.com/daimatz/jvm2wasm/pkg/native"
)

// executeInstruction executes a single decoded instruction and advances PC.
// It returns the method's return value and true when the instruction
// returns.
func (vm *VM) executeInstruction(frame *Frame, m *method, ins bytecode.Instruction) (Value, bool, error) {
	next := frame.PC + 1
	jump := func(delta int32) error {
		t, ok := m.index[ins.Offset+int(delta)]
		if !ok {
			return fmt.Errorf("%w: branch to %d is not an instruction boundary", ErrMalformed, ins.Offset+int(delta))
		}
		next = t
		return nil
	}

	var err error
	switch o := ins.Op.(type) {
	case bytecode.Nop:

	case bytecode.Const:
		switch o.Kind {
		case bytecode.Int:
			frame.Push(IntValue(int32(o.Int)))
		case bytecode.Long:
			frame.Push(LongValue(o.Int))
		case bytecode.Float:
			frame.Push(FloatValue(float32(o.Float)))
		case bytecode.Double:
			frame.Push(DoubleValue(o.Float))
		default:
			frame.Push(NullValue())
		}

	case bytecode.Load:
		v := frame.GetLocal(int(o.Index))
		if v.Kind != o.Kind {
			return Value{}, false, fmt.Errorf("%w: local %d holds %s, loaded as %s", ErrMalformed, o.Index, v.Kind, o.Kind)
		}
		frame.Push(v)

	case bytecode.Store:
		frame.SetLocal(int(o.Index), frame.PopKind(o.Kind))

	case bytecode.Increment:
		v := frame.GetLocal(int(o.Index))
		frame.SetLocal(int(o.Index), IntValue(v.Int32()+int32(o.Delta)))

	case bytecode.Arith:
		err = arith(frame, o)

	case bytecode.Convert:
		frame.Push(convert(frame.PopKind(o.From), o.To))

	case bytecode.Truncate:
		v := frame.PopKind(bytecode.Int).Int32()
		switch {
		case o.Width == 8:
			v = int32(int8(v))
		case o.Signed:
			v = int32(int16(v))
		default:
			v = int32(uint16(v))
		}
		frame.Push(IntValue(v))

	case bytecode.Compare:
		b := frame.PopKind(o.Kind)
		a := frame.PopKind(o.Kind)
		frame.Push(IntValue(compare(a, b, o.NaN)))

	case bytecode.Stack:
		err = shuffle(frame, o.Op)

	case bytecode.GetStatic:
		var c *class
		if c, err = vm.resolveField(o.Field); err == nil {
			if err = vm.initClass(c); err == nil {
				frame.Push(c.statics[member{o.Field.Name, o.Field.Descriptor}])
			}
		}

	case bytecode.PutStatic:
		var c *class
		if c, err = vm.resolveField(o.Field); err == nil {
			if err = vm.initClass(c); err == nil {
				key := member{o.Field.Name, o.Field.Descriptor}
				c.statics[key] = frame.PopKind(c.statics[key].Kind)
			}
		}

	case bytecode.InvokeStatic:
		err = vm.executeInvokestatic(frame, o)

	case bytecode.Return:
		if o.Kind == bytecode.Void {
			return VoidValue(), true, nil
		}
		return frame.PopKind(o.Kind), true, nil

	case bytecode.Goto:
		err = jump(o.Target)

	case bytecode.IfNull:
		// every reference is null
		frame.PopKind(bytecode.Ref)
		if o.Null {
			err = jump(o.Target)
		}

	case bytecode.If:
		if o.Cond.Eval(frame.PopKind(bytecode.Int).Int32(), 0) {
			err = jump(o.Target)
		}

	case bytecode.IfCmp:
		b := frame.PopKind(bytecode.Int).Int32()
		a := frame.PopKind(bytecode.Int).Int32()
		if o.Cond.Eval(a, b) {
			err = jump(o.Target)
		}

	case bytecode.TableSwitch:
		key := int64(frame.PopKind(bytecode.Int).Int32())
		target := o.Default
		if i := key - int64(o.Low); i >= 0 && i < int64(len(o.Targets)) {
			target = o.Targets[i]
		}
		err = jump(target)

	case bytecode.LookupSwitch:
		key := frame.PopKind(bytecode.Int).Int32()
		target := o.Default
		for i, k := range o.Keys {
			if k == key {
				target = o.Targets[i]
				break
			}
		}
		err = jump(target)

	default:
		return Value{}, false, fmt.Errorf("%w: %s", ErrMalformed, bytecode.Mnemonic(ins.Opcode))
	}
	if err != nil {
		return Value{}, false, err
	}
	frame.PC = next
	return Value{}, false, nil
}

// executeInvokestatic handles the invokestatic instruction.
func (vm *VM) executeInvokestatic(frame *Frame, o bytecode.InvokeStatic) error {
	callee, err := vm.resolveMethod(o.Method)
	if err != nil {
		if nm, ok := native.Lookup(o.Method); ok {
			return invokeNative(frame, nm)
		}
		return err
	}
	// Pop arguments from stack (in reverse order)
	args := make([]Value, len(callee.params))
	for i := len(args) - 1; i >= 0; i-- {
		args[i] = frame.PopKind(callee.params[i])
	}
	if err := vm.initClass(callee.class); err != nil {
		return err
	}
	retVal, err := vm.executeMethod(callee, args)
	if err != nil {
		return err
	}
	if callee.ret != bytecode.Void {
		frame.Push(retVal)
	}
	return nil
}

// invokeNative calls a Go implementation of a library method that no
// loaded class defines.
func invokeNative(frame *Frame, m native.Method) error {
	d, err := classfile.ParseMethodDescriptor(m.Descriptor)
	if err != nil {
		return err
	}
	args := make([]uint64, len(d.Params))
	for i := len(args) - 1; i >= 0; i-- {
		args[i] = frame.PopKind(bytecode.KindOf(d.Params[i])).Raw()
	}
	r, err := m.Fn(args)
	if err != nil {
		var ex *native.Exception
		if errors.As(err, &ex) {
			return NewJavaException(ex.Class, ex.Message)
		}
		return fmt.Errorf("%s: %w", m, err)
	}
	if k := bytecode.KindOf(d.Return); k != bytecode.Void {
		frame.Push(RawValue(k, r))
	}
	return nil
}

func divideByZero() error { return NewJavaException(arithmeticException, "/ by zero") }

func arith(frame *Frame, o bytecode.Arith) error {
	if o.Op.Unary() {
		v := frame.PopKind(o.Kind)
		switch o.Kind {
		case bytecode.Int:
			frame.Push(IntValue(-v.Int32()))
		case bytecode.Long:
			frame.Push(LongValue(-v.I))
		case bytecode.Float:
			frame.Push(FloatValue(-v.Float32()))
		default:
			frame.Push(DoubleValue(-v.F))
		}
		return nil
	}
	if o.Op.Shift() {
		n := frame.PopKind(bytecode.Int).Int32()
		v := frame.PopKind(o.Kind)
		if o.Kind == bytecode.Int {
			frame.Push(IntValue(shift32(o.Op, v.Int32(), uint(n&31))))
		} else {
			frame.Push(LongValue(shift64(o.Op, v.I, uint(n&63))))
		}
		return nil
	}

	b := frame.PopKind(o.Kind)
	a := frame.PopKind(o.Kind)
	switch o.Kind {
	case bytecode.Int:
		x, y := a.Int32(), b.Int32()
		if (o.Op == bytecode.Div || o.Op == bytecode.Rem) && y == 0 {
			return divideByZero()
		}
		// Go defines MIN / -1 as MIN, which is also Java's answer.
		var r int32
		switch o.Op {
		case bytecode.Add:
			r = x + y
		case bytecode.Sub:
			r = x - y
		case bytecode.Mul:
			r = x * y
		case bytecode.Div:
			r = x / y
		case bytecode.Rem:
			r = x % y
		case bytecode.And:
			r = x & y
		case bytecode.Or:
			r = x | y
		case bytecode.Xor:
			r = x ^ y
		}
		frame.Push(IntValue(r))
	case bytecode.Long:
		x, y := a.I, b.I
		if (o.Op == bytecode.Div || o.Op == bytecode.Rem) && y == 0 {
			return divideByZero()
		}
		var r int64
		switch o.Op {
		case bytecode.Add:
			r = x + y
		case bytecode.Sub:
			r = x - y
		case bytecode.Mul:
			r = x * y
		case bytecode.Div:
			r = x / y
		case bytecode.Rem:
			r = x % y
		case bytecode.And:
			r = x & y
		case bytecode.Or:
			r = x | y
		case bytecode.Xor:
			r = x ^ y
		}
		frame.Push(LongValue(r))
	case bytecode.Float:
		x, y := a.Float32(), b.Float32()
		var r float32
		switch o.Op {
		case bytecode.Add:
			r = x + y
		case bytecode.Sub:
			r = x - y
		case bytecode.Mul:
			r = x * y
		case bytecode.Div:
			r = x / y
		case bytecode.Rem:
			r = float32(math.Mod(float64(x), float64(y)))
		default:
			return fmt.Errorf("%w: %s %s", ErrMalformed, o.Kind, o.Op)
		}
		frame.Push(FloatValue(r))
	case bytecode.Double:
		x, y := a.F, b.F
		var r float64
		switch o.Op {
		case bytecode.Add:
			r = x + y
		case bytecode.Sub:
			r = x - y
		case bytecode.Mul:
			r = x * y
		case bytecode.Div:
			r = x / y
		case bytecode.Rem:
			r = math.Mod(x, y)
		default:
			return fmt.Errorf("%w: %s %s", ErrMalformed, o.Kind, o.Op)
		}
		frame.Push(DoubleValue(r))
	}
	return nil
}

func shift32(op bytecode.ArithOp, v int32, n uint) int32 {
	switch op {
	case bytecode.Shl:
		return v << n
	case bytecode.Shr:
		return v >> n
	}
	return int32(uint32(v) >> n)
}

func shift64(op bytecode.ArithOp, v int64, n uint) int64 {
	switch op {
	case bytecode.Shl:
		return v << n
	case bytecode.Shr:
		return v >> n
	}
	return int64(uint64(v) >> n)
}

// saturate converts like Java's f2i family: NaN is 0, values out of range
// clamp to the nearest bound.
func saturate(f float64, lo, hi int64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f <= float64(lo):
		return lo
	case f >= float64(hi):
		return hi
	}
	return int64(f)
}

func convert(v Value, to bytecode.Kind) Value {
	var i int64
	var f float64
	switch v.Kind {
	case bytecode.Int, bytecode.Long:
		i, f = v.I, float64(v.I)
	default:
		f = v.F
	}
	integral := v.Kind == bytecode.Int || v.Kind == bytecode.Long
	switch to {
	case bytecode.Int:
		if integral {
			return IntValue(int32(i))
		}
		return IntValue(int32(saturate(f, math.MinInt32, math.MaxInt32)))
	case bytecode.Long:
		if integral {
			return LongValue(i)
		}
		return LongValue(saturate(f, math.MinInt64, math.MaxInt64))
	case bytecode.Float:
		if v.Kind == bytecode.Long {
			return FloatValue(float32(i))
		}
		return FloatValue(float32(f))
	}
	return DoubleValue(f)
}

// compare implements lcmp, fcmpl, fcmpg, dcmpl and dcmpg. nan is the
// result for unordered operands.
func compare(a, b Value, nan int8) int32 {
	if a.Kind == bytecode.Long {
		switch {
		case a.I > b.I:
			return 1
		case a.I < b.I:
			return -1
		}
		return 0
	}
	switch {
	case math.IsNaN(a.F) || math.IsNaN(b.F):
		return int32(nan)
	case a.F > b.F:
		return 1
	case a.F < b.F:
		return -1
	}
	return 0
}

// shuffle applies a stack manipulation by category, the same way for every
// form of dup, pop and swap.
func shuffle(frame *Frame, op bytecode.StackOp) error {
	n, perm, err := emit.Shuffle(op, frame.Kinds())
	if err != nil {
		return err
	}
	top := make([]Value, n)
	for i := n - 1; i >= 0; i-- {
		top[i] = frame.Pop()
	}
	for _, p := range perm {
		frame.Push(top[p])
	}
	return nil
}
