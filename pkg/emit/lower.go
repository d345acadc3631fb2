package emit

import (
	"fmt"

	"github.com/daimatz/jvm2wasm/pkg/bytecode"
	"github.com/daimatz/jvm2wasm/pkg/wasm"
)

func (e *emitter) op(i int) error {
	st, ok := e.stacks.At(i)
	if !ok {
		e.unreachable()
		return nil
	}
	ins := e.instrs[i]
	if err := e.lower(i, ins.Op, st); err != nil {
		return fmt.Errorf("%s at %d: %w", bytecode.Mnemonic(ins.Opcode), ins.Offset, err)
	}
	return nil
}

func (e *emitter) lower(i int, op bytecode.Operation, st []bytecode.Kind) error {
	switch o := op.(type) {
	case bytecode.Nop:
	case bytecode.Const:
		e.constant(o.Kind, o.Int, o.Float)
	case bytecode.Load:
		e.w.LocalGet(e.locals.slot(o.Index, o.Kind))
	case bytecode.Store:
		e.w.LocalSet(e.locals.slot(o.Index, o.Kind))
	case bytecode.Increment:
		l := e.locals.slot(o.Index, bytecode.Int)
		e.w.LocalGet(l)
		e.w.I32Const(int32(o.Delta))
		e.w.Op(wasm.OpI32Add)
		e.w.LocalSet(l)
	case bytecode.Arith:
		return e.arith(o)
	case bytecode.Convert:
		return e.convert(o)
	case bytecode.Truncate:
		switch {
		case o.Signed && o.Width == 8:
			e.w.Op(wasm.OpI32Extend8S)
		case o.Signed && o.Width == 16:
			e.w.Op(wasm.OpI32Extend16S)
		default:
			e.w.I32Const(int32(uint32(1)<<o.Width - 1))
			e.w.Op(wasm.OpI32And)
		}
	case bytecode.Compare:
		e.compare(o)
	case bytecode.Stack:
		return e.shuffle(o.Op, st)
	case bytecode.GetStatic:
		g, ok := e.res.Global(o.Field)
		if !ok {
			return fmt.Errorf("%w: field %s", ErrUnresolvedSymbol, o.Field)
		}
		e.w.GlobalGet(g)
	case bytecode.PutStatic:
		g, ok := e.res.Global(o.Field)
		if !ok {
			return fmt.Errorf("%w: field %s", ErrUnresolvedSymbol, o.Field)
		}
		e.w.GlobalSet(g)
	case bytecode.InvokeStatic:
		f, ok := e.res.Function(o.Method)
		if !ok {
			return fmt.Errorf("%w: method %s", ErrUnresolvedSymbol, o.Method)
		}
		e.w.Call(f)
	case bytecode.Return:
		e.w.Op(wasm.OpReturn)
		e.dead = true
	case bytecode.Goto:
		return e.jump(i, o.Target)
	case bytecode.If, bytecode.IfCmp, bytecode.IfNull:
		return e.branchIf(i, op)
	case bytecode.TableSwitch:
		return e.tableSwitch(i, o)
	case bytecode.LookupSwitch:
		return e.lookupSwitch(i, o)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupported, op)
	}
	return nil
}

func (e *emitter) constant(k bytecode.Kind, i int64, f float64) {
	switch k {
	case bytecode.Int:
		e.w.I32Const(int32(i))
	case bytecode.Long:
		e.w.I64Const(i)
	case bytecode.Float:
		e.w.F32Const(float32(f))
	case bytecode.Double:
		e.w.F64Const(f)
	case bytecode.Ref:
		e.w.RefNull(wasm.ExternRef)
	}
}

type arithKey struct {
	kind bytecode.Kind
	op   bytecode.ArithOp
}

var arithOpcodes = map[arithKey]byte{
	{bytecode.Int, bytecode.Add}:  wasm.OpI32Add,
	{bytecode.Int, bytecode.Sub}:  wasm.OpI32Sub,
	{bytecode.Int, bytecode.Mul}:  wasm.OpI32Mul,
	{bytecode.Int, bytecode.Rem}:  wasm.OpI32RemS,
	{bytecode.Int, bytecode.Shl}:  wasm.OpI32Shl,
	{bytecode.Int, bytecode.Shr}:  wasm.OpI32ShrS,
	{bytecode.Int, bytecode.Ushr}: wasm.OpI32ShrU,
	{bytecode.Int, bytecode.And}:  wasm.OpI32And,
	{bytecode.Int, bytecode.Or}:   wasm.OpI32Or,
	{bytecode.Int, bytecode.Xor}:  wasm.OpI32Xor,

	{bytecode.Long, bytecode.Add}:  wasm.OpI64Add,
	{bytecode.Long, bytecode.Sub}:  wasm.OpI64Sub,
	{bytecode.Long, bytecode.Mul}:  wasm.OpI64Mul,
	{bytecode.Long, bytecode.Rem}:  wasm.OpI64RemS,
	{bytecode.Long, bytecode.Shl}:  wasm.OpI64Shl,
	{bytecode.Long, bytecode.Shr}:  wasm.OpI64ShrS,
	{bytecode.Long, bytecode.Ushr}: wasm.OpI64ShrU,
	{bytecode.Long, bytecode.And}:  wasm.OpI64And,
	{bytecode.Long, bytecode.Or}:   wasm.OpI64Or,
	{bytecode.Long, bytecode.Xor}:  wasm.OpI64Xor,

	{bytecode.Float, bytecode.Add}: wasm.OpF32Add,
	{bytecode.Float, bytecode.Sub}: wasm.OpF32Sub,
	{bytecode.Float, bytecode.Mul}: wasm.OpF32Mul,
	{bytecode.Float, bytecode.Div}: wasm.OpF32Div,
	{bytecode.Float, bytecode.Neg}: wasm.OpF32Neg,

	{bytecode.Double, bytecode.Add}: wasm.OpF64Add,
	{bytecode.Double, bytecode.Sub}: wasm.OpF64Sub,
	{bytecode.Double, bytecode.Mul}: wasm.OpF64Mul,
	{bytecode.Double, bytecode.Div}: wasm.OpF64Div,
	{bytecode.Double, bytecode.Neg}: wasm.OpF64Neg,
}

func (e *emitter) arith(o bytecode.Arith) error {
	integral := o.Kind == bytecode.Int || o.Kind == bytecode.Long
	switch {
	case integral && o.Op == bytecode.Div:
		e.divide(o.Kind)
		return nil
	case integral && o.Op == bytecode.Neg:
		e.constant(o.Kind, -1, 0)
		if o.Kind == bytecode.Long {
			e.w.Op(wasm.OpI64Mul)
		} else {
			e.w.Op(wasm.OpI32Mul)
		}
		return nil
	case o.Kind == bytecode.Long && o.Op.Shift():
		e.w.Op(wasm.OpI64ExtendI32U)
	}
	code, ok := arithOpcodes[arithKey{o.Kind, o.Op}]
	if !ok {
		return fmt.Errorf("%w: %s %s", ErrUnsupported, o.Kind, o.Op)
	}
	e.w.Op(code)
	return nil
}

// divide lowers a signed division that yields MIN for MIN / -1 instead of
// trapping. The divisor -1 is replaced by 1 and the quotient by 0 - a.
func (e *emitter) divide(k bytecode.Kind) {
	t := ValType(k)
	sub, div, ne, eq := byte(wasm.OpI32Sub), byte(wasm.OpI32DivS), byte(wasm.OpI32Ne), byte(wasm.OpI32Eq)
	if k == bytecode.Long {
		sub, div, ne, eq = wasm.OpI64Sub, wasm.OpI64DivS, wasm.OpI64Ne, wasm.OpI64Eq
	}
	a, b := e.locals.temp(t, 0), e.locals.temp(t, 1)
	e.w.LocalSet(b)
	e.w.LocalSet(a)

	e.constant(k, 0, 0)
	e.w.LocalGet(a)
	e.w.Op(sub)

	e.w.LocalGet(a)
	e.w.LocalGet(b)
	e.constant(k, 1, 0)
	e.w.LocalGet(b)
	e.constant(k, -1, 0)
	e.w.Op(ne)
	e.w.Op(wasm.OpSelect)
	e.w.Op(div)

	e.w.LocalGet(b)
	e.constant(k, -1, 0)
	e.w.Op(eq)
	e.w.Op(wasm.OpSelect)
}

type convKey struct{ from, to bytecode.Kind }

var conversions = map[convKey][]byte{
	{bytecode.Int, bytecode.Long}:     {wasm.OpI64ExtendI32S},
	{bytecode.Int, bytecode.Float}:    {wasm.OpF32ConvertI32S},
	{bytecode.Int, bytecode.Double}:   {wasm.OpF64ConvertI32S},
	{bytecode.Long, bytecode.Int}:     {wasm.OpI32WrapI64},
	{bytecode.Long, bytecode.Float}:   {wasm.OpF32ConvertI64S},
	{bytecode.Long, bytecode.Double}:  {wasm.OpF64ConvertI64S},
	{bytecode.Float, bytecode.Double}: {wasm.OpF64PromoteF32},
	{bytecode.Double, bytecode.Float}: {wasm.OpF32DemoteF64},
	// Java narrows NaN to 0 and clamps out of range values, which is what
	// the saturating truncations do.
	{bytecode.Float, bytecode.Int}:   {wasm.OpPrefixFC, wasm.TruncSatF32ToI32},
	{bytecode.Float, bytecode.Long}:  {wasm.OpPrefixFC, wasm.TruncSatF32ToI64},
	{bytecode.Double, bytecode.Int}:  {wasm.OpPrefixFC, wasm.TruncSatF64ToI32},
	{bytecode.Double, bytecode.Long}: {wasm.OpPrefixFC, wasm.TruncSatF64ToI64},
}

func (e *emitter) convert(o bytecode.Convert) error {
	code, ok := conversions[convKey{o.From, o.To}]
	if !ok {
		return fmt.Errorf("%w: %s to %s", ErrUnsupported, o.From, o.To)
	}
	e.w.Op(code...)
	return nil
}

// compare pushes -1, 0 or 1. For floating kinds the relation that fails on
// NaN decides whether NaN yields -1 or 1.
func (e *emitter) compare(o bytecode.Compare) {
	t := ValType(o.Kind)
	var gt, lt, ge, le byte
	switch o.Kind {
	case bytecode.Long:
		gt, lt, ge, le = wasm.OpI64GtS, wasm.OpI64LtS, wasm.OpI64GeS, wasm.OpI64LeS
	case bytecode.Float:
		gt, lt, ge, le = wasm.OpF32Gt, wasm.OpF32Lt, wasm.OpF32Ge, wasm.OpF32Le
	default:
		gt, lt, ge, le = wasm.OpF64Gt, wasm.OpF64Lt, wasm.OpF64Ge, wasm.OpF64Le
	}
	a, b := e.locals.temp(t, 0), e.locals.temp(t, 1)
	e.w.LocalSet(b)
	e.w.LocalSet(a)
	rel := func(op byte) {
		e.w.LocalGet(a)
		e.w.LocalGet(b)
		e.w.Op(op)
	}
	switch {
	case o.Kind == bytecode.Long:
		rel(gt)
		rel(lt)
	case o.NaN < 0:
		rel(gt)
		rel(ge)
		e.w.Op(wasm.OpI32Eqz)
	default:
		rel(le)
		e.w.Op(wasm.OpI32Eqz)
		rel(lt)
	}
	e.w.Op(wasm.OpI32Sub)
}

// shuffle lowers a stack manipulation through scratch locals.
func (e *emitter) shuffle(op bytecode.StackOp, st []bytecode.Kind) error {
	n, perm, err := Shuffle(op, st)
	if err != nil {
		return err
	}
	if perm == nil {
		for i := 0; i < n; i++ {
			e.w.Op(wasm.OpDrop)
		}
		return nil
	}
	top := st[len(st)-n:]
	used := make(map[wasm.ValType]int)
	tmps := make([]uint32, n)
	for j, k := range top {
		t := ValType(k)
		tmps[j] = e.locals.temp(t, used[t])
		used[t]++
	}
	e.spill(tmps)
	e.reload(permute(tmps, perm))
	return nil
}

func permute(ls []uint32, perm []int) []uint32 {
	out := make([]uint32, len(perm))
	for i, p := range perm {
		out[i] = ls[p]
	}
	return out
}
