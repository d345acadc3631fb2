// Package bytecode decodes JVM code arrays into typed operations.
package bytecode

import (
	"fmt"

	"github.com/daimatz/jvm2wasm/pkg/classfile"
)

var (
	slotKinds  = [...]Kind{Int, Long, Float, Double, Ref}
	arithKinds = [...]Kind{Int, Long, Float, Double}
	arithOps   = [...]ArithOp{Add, Sub, Mul, Div, Rem, Neg}
	returns    = [...]Kind{Int, Long, Float, Double, Ref, Void}
)

// conversions is indexed by opcode - i2l.
var conversions = [...]Convert{
	{Int, Long}, {Int, Float}, {Int, Double},
	{Long, Int}, {Long, Float}, {Long, Double},
	{Float, Int}, {Float, Long}, {Float, Double},
	{Double, Int}, {Double, Long}, {Double, Float},
}

// Decode decodes a method's code array. Symbolic operands are resolved
// against pool, which must be the pool of the class owning the method.
// The returned instructions cover code exactly, in offset order.
func Decode(code []byte, pool *classfile.Pool) ([]Instruction, error) {
	d := &decoder{r: classfile.NewReader(code), pool: pool}
	var instrs []Instruction
	for d.r.Remaining() > 0 {
		ins, err := d.next()
		if err != nil {
			return nil, err
		}
		instrs = append(instrs, ins)
	}
	return instrs, nil
}

type decoder struct {
	r    *classfile.Reader
	pool *classfile.Pool
}

func (d *decoder) next() (Instruction, error) {
	off := d.r.Offset()
	opcode, err := d.r.U8()
	if err != nil {
		return Instruction{}, err
	}
	ins := Instruction{Offset: off, Opcode: opcode}
	if opcode == OpWide {
		ins.Wide = true
		if ins.Opcode, err = d.r.U8(); err != nil {
			return Instruction{}, fmt.Errorf("wide at %d: %w", off, err)
		}
		ins.Op, err = d.wide(off, ins.Opcode)
	} else {
		ins.Op, err = d.operation(off, opcode)
	}
	if err != nil {
		return Instruction{}, err
	}
	ins.Size = d.r.Offset() - off
	return ins, nil
}

func (d *decoder) operation(off int, opcode byte) (Operation, error) {
	name := Mnemonic(opcode)
	switch {
	case opcode == OpNop:
		return Nop{}, nil
	case opcode == OpAconstNull:
		return Const{Kind: Ref}, nil
	case opcode >= OpIconstM1 && opcode <= OpIconst5:
		return Const{Kind: Int, Int: int64(opcode) - OpIconst0}, nil
	case opcode == OpLconst0 || opcode == OpLconst1:
		return Const{Kind: Long, Int: int64(opcode - OpLconst0)}, nil
	case opcode >= OpFconst0 && opcode <= OpFconst2:
		return Const{Kind: Float, Float: float64(opcode - OpFconst0)}, nil
	case opcode == OpDconst0 || opcode == OpDconst1:
		return Const{Kind: Double, Float: float64(opcode - OpDconst0)}, nil

	case opcode == OpBipush:
		v, err := d.r.I8()
		if err != nil {
			return nil, fmt.Errorf("%s at %d: %w", name, off, err)
		}
		return Const{Kind: Int, Int: int64(v)}, nil
	case opcode == OpSipush:
		v, err := d.r.I16()
		if err != nil {
			return nil, fmt.Errorf("%s at %d: %w", name, off, err)
		}
		return Const{Kind: Int, Int: int64(v)}, nil

	case opcode == OpLdc:
		index, err := d.r.U8()
		if err != nil {
			return nil, fmt.Errorf("%s at %d: %w", name, off, err)
		}
		return d.ldc(off, opcode, uint16(index))
	case opcode == OpLdcW:
		index, err := d.r.U16()
		if err != nil {
			return nil, fmt.Errorf("%s at %d: %w", name, off, err)
		}
		return d.ldc(off, opcode, index)
	case opcode == OpLdc2W:
		index, err := d.r.U16()
		if err != nil {
			return nil, fmt.Errorf("%s at %d: %w", name, off, err)
		}
		e, err := d.pool.Loadable(index, classfile.TagLong, classfile.TagDouble)
		if err != nil {
			return nil, fmt.Errorf("%s at %d: %w", name, off, err)
		}
		if l, ok := e.(*classfile.ConstantLong); ok {
			return Const{Kind: Long, Int: l.Value}, nil
		}
		return Const{Kind: Double, Float: e.(*classfile.ConstantDouble).Value}, nil

	// --- Locals ---
	case opcode >= OpIload && opcode <= OpAload:
		index, err := d.r.U8()
		if err != nil {
			return nil, fmt.Errorf("%s at %d: %w", name, off, err)
		}
		return Load{Kind: slotKinds[opcode-OpIload], Index: uint16(index)}, nil
	case opcode >= OpIload0 && opcode < OpIaload:
		n := opcode - OpIload0
		return Load{Kind: slotKinds[n/4], Index: uint16(n % 4)}, nil
	case opcode >= OpIstore && opcode <= OpAstore:
		index, err := d.r.U8()
		if err != nil {
			return nil, fmt.Errorf("%s at %d: %w", name, off, err)
		}
		return Store{Kind: slotKinds[opcode-OpIstore], Index: uint16(index)}, nil
	case opcode >= OpIstore0 && opcode < OpIastore:
		n := opcode - OpIstore0
		return Store{Kind: slotKinds[n/4], Index: uint16(n % 4)}, nil
	case opcode == OpIinc:
		index, err := d.r.U8()
		if err != nil {
			return nil, fmt.Errorf("%s at %d: %w", name, off, err)
		}
		delta, err := d.r.I8()
		if err != nil {
			return nil, fmt.Errorf("%s at %d: %w", name, off, err)
		}
		return Increment{Index: uint16(index), Delta: int16(delta)}, nil

	// --- Stack ---
	case opcode >= OpPop && opcode <= OpSwap:
		return Stack{Op: StackOp(opcode - OpPop)}, nil

	// --- Arithmetic ---
	case opcode == OpFrem || opcode == OpDrem:
		return nil, unsupported(opcode, off, false, "floating point remainder has no exact wasm lowering")
	case opcode >= OpIadd && opcode <= OpDneg:
		n := opcode - OpIadd
		return Arith{Kind: arithKinds[n%4], Op: arithOps[n/4]}, nil
	case opcode >= OpIshl && opcode <= OpLushr:
		n := opcode - OpIshl
		return Arith{Kind: arithKinds[n%2], Op: [...]ArithOp{Shl, Shr, Ushr}[n/2]}, nil
	case opcode >= OpIand && opcode <= OpLxor:
		n := opcode - OpIand
		return Arith{Kind: arithKinds[n%2], Op: [...]ArithOp{And, Or, Xor}[n/2]}, nil

	// --- Conversions and comparisons ---
	case opcode >= OpI2l && opcode <= OpD2f:
		return conversions[opcode-OpI2l], nil
	case opcode == OpI2b:
		return Truncate{Width: 8, Signed: true}, nil
	case opcode == OpI2c:
		return Truncate{Width: 16}, nil
	case opcode == OpI2s:
		return Truncate{Width: 16, Signed: true}, nil
	case opcode == OpLcmp:
		return Compare{Kind: Long}, nil
	case opcode == OpFcmpl:
		return Compare{Kind: Float, NaN: -1}, nil
	case opcode == OpFcmpg:
		return Compare{Kind: Float, NaN: 1}, nil
	case opcode == OpDcmpl:
		return Compare{Kind: Double, NaN: -1}, nil
	case opcode == OpDcmpg:
		return Compare{Kind: Double, NaN: 1}, nil

	// --- Branches ---
	case opcode >= OpIfeq && opcode <= OpIfle:
		t, err := d.r.I16()
		if err != nil {
			return nil, fmt.Errorf("%s at %d: %w", name, off, err)
		}
		return If{Cond: Cond(opcode - OpIfeq), Target: int32(t)}, nil
	case opcode >= OpIfIcmpeq && opcode <= OpIfIcmple:
		t, err := d.r.I16()
		if err != nil {
			return nil, fmt.Errorf("%s at %d: %w", name, off, err)
		}
		return IfCmp{Cond: Cond(opcode - OpIfIcmpeq), Target: int32(t)}, nil
	case opcode == OpIfnull || opcode == OpIfnonnull:
		t, err := d.r.I16()
		if err != nil {
			return nil, fmt.Errorf("%s at %d: %w", name, off, err)
		}
		return IfNull{Null: opcode == OpIfnull, Target: int32(t)}, nil
	case opcode == OpGoto:
		t, err := d.r.I16()
		if err != nil {
			return nil, fmt.Errorf("%s at %d: %w", name, off, err)
		}
		return Goto{Target: int32(t)}, nil
	case opcode == OpGotoW:
		t, err := d.r.I32()
		if err != nil {
			return nil, fmt.Errorf("%s at %d: %w", name, off, err)
		}
		return Goto{Target: t}, nil
	case opcode == OpTableswitch:
		return d.tableSwitch(off)
	case opcode == OpLookupswitch:
		return d.lookupSwitch(off)

	case opcode >= OpIreturn && opcode <= OpReturn:
		return Return{Kind: returns[opcode-OpIreturn]}, nil

	// --- Statics ---
	case opcode == OpGetstatic || opcode == OpPutstatic:
		index, err := d.r.U16()
		if err != nil {
			return nil, fmt.Errorf("%s at %d: %w", name, off, err)
		}
		ref, err := d.pool.ResolveFieldref(index)
		if err != nil {
			return nil, fmt.Errorf("%s at %d: %w", name, off, err)
		}
		if opcode == OpGetstatic {
			return GetStatic{Field: *ref}, nil
		}
		return PutStatic{Field: *ref}, nil
	case opcode == OpInvokestatic:
		index, err := d.r.U16()
		if err != nil {
			return nil, fmt.Errorf("%s at %d: %w", name, off, err)
		}
		ref, err := d.pool.ResolveMethodref(index)
		if err != nil {
			return nil, fmt.Errorf("%s at %d: %w", name, off, err)
		}
		return InvokeStatic{Method: *ref}, nil
	}

	return nil, unsupported(opcode, off, false, "")
}

// ldc pushes an int or float constant. Other loadable constants need the
// object model and are refused.
func (d *decoder) ldc(off int, opcode byte, index uint16) (Operation, error) {
	e, err := d.pool.Loadable(index,
		classfile.TagInteger, classfile.TagFloat, classfile.TagString, classfile.TagClass,
		classfile.TagMethodType, classfile.TagMethodHandle, classfile.TagDynamic)
	if err != nil {
		return nil, fmt.Errorf("%s at %d: %w", Mnemonic(opcode), off, err)
	}
	switch c := e.(type) {
	case *classfile.ConstantInteger:
		return Const{Kind: Int, Int: int64(c.Value)}, nil
	case *classfile.ConstantFloat:
		return Const{Kind: Float, Float: float64(c.Value)}, nil
	}
	return nil, unsupported(opcode, off, false, classfile.TagName(e.Tag())+" constant")
}

func (d *decoder) wide(off int, opcode byte) (Operation, error) {
	name := "wide " + Mnemonic(opcode)
	switch {
	case opcode >= OpIload && opcode <= OpAload:
		index, err := d.r.U16()
		if err != nil {
			return nil, fmt.Errorf("%s at %d: %w", name, off, err)
		}
		return Load{Kind: slotKinds[opcode-OpIload], Index: index}, nil
	case opcode >= OpIstore && opcode <= OpAstore:
		index, err := d.r.U16()
		if err != nil {
			return nil, fmt.Errorf("%s at %d: %w", name, off, err)
		}
		return Store{Kind: slotKinds[opcode-OpIstore], Index: index}, nil
	case opcode == OpIinc:
		index, err := d.r.U16()
		if err != nil {
			return nil, fmt.Errorf("%s at %d: %w", name, off, err)
		}
		delta, err := d.r.I16()
		if err != nil {
			return nil, fmt.Errorf("%s at %d: %w", name, off, err)
		}
		return Increment{Index: index, Delta: delta}, nil
	}
	return nil, unsupported(opcode, off, true, "")
}

// align skips the 0-3 padding bytes that put switch operands on a 4-byte
// boundary relative to the start of the code array.
func (d *decoder) align(off int) error {
	pad := (4 - (off+1)%4) % 4
	return d.r.Skip(pad)
}

func (d *decoder) tableSwitch(off int) (Operation, error) {
	if err := d.align(off); err != nil {
		return nil, fmt.Errorf("tableswitch at %d: %w", off, err)
	}
	var head [3]int32
	for i := range head {
		v, err := d.r.I32()
		if err != nil {
			return nil, fmt.Errorf("tableswitch at %d: %w", off, err)
		}
		head[i] = v
	}
	def, low, high := head[0], head[1], head[2]
	if low > high {
		return nil, fmt.Errorf("%w: tableswitch at %d: low %d > high %d", ErrMalformedCode, off, low, high)
	}
	n := int64(high) - int64(low) + 1
	if n*4 > int64(d.r.Remaining()) {
		return nil, fmt.Errorf("tableswitch at %d: %d targets: %w", off, n, classfile.ErrTruncatedInput)
	}
	targets := make([]int32, n)
	for i := range targets {
		t, err := d.r.I32()
		if err != nil {
			return nil, fmt.Errorf("tableswitch at %d: %w", off, err)
		}
		targets[i] = t
	}
	return TableSwitch{Default: def, Low: low, Targets: targets}, nil
}

func (d *decoder) lookupSwitch(off int) (Operation, error) {
	if err := d.align(off); err != nil {
		return nil, fmt.Errorf("lookupswitch at %d: %w", off, err)
	}
	def, err := d.r.I32()
	if err != nil {
		return nil, fmt.Errorf("lookupswitch at %d: %w", off, err)
	}
	npairs, err := d.r.I32()
	if err != nil {
		return nil, fmt.Errorf("lookupswitch at %d: %w", off, err)
	}
	if npairs < 0 {
		return nil, fmt.Errorf("%w: lookupswitch at %d: npairs %d", ErrMalformedCode, off, npairs)
	}
	if int64(npairs)*8 > int64(d.r.Remaining()) {
		return nil, fmt.Errorf("lookupswitch at %d: %d pairs: %w", off, npairs, classfile.ErrTruncatedInput)
	}
	op := LookupSwitch{Default: def, Keys: make([]int32, npairs), Targets: make([]int32, npairs)}
	for i := range op.Keys {
		if op.Keys[i], err = d.r.I32(); err != nil {
			return nil, fmt.Errorf("lookupswitch at %d: %w", off, err)
		}
		if op.Targets[i], err = d.r.I32(); err != nil {
			return nil, fmt.Errorf("lookupswitch at %d: %w", off, err)
		}
	}
	return op, nil
}
