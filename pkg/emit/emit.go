// Package emit lowers the structured form of a method to a WebAssembly
// function body.
//
// Every operand stack value lives in the innermost open construct. When a
// block, loop or if opens with values on the stack they are moved into
// locals private to that construct and pushed again inside it. The result
// type of a construct is the stack at the instruction it ends at, and
// branches back to a loop header store the header's values into the loop's
// locals before jumping.
package emit

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/daimatz/jvm2wasm/pkg/bytecode"
	"github.com/daimatz/jvm2wasm/pkg/classfile"
	"github.com/daimatz/jvm2wasm/pkg/structure"
	"github.com/daimatz/jvm2wasm/pkg/wasm"
)

var log = commonlog.GetLogger("jvm2wasm.emit")

// DefaultMaxSparseSpan is the widest key range a lookupswitch is lowered to
// a br_table for when Options leaves it unset.
const DefaultMaxSparseSpan = 4096

type Options struct {
	// MaxSparseSpan bounds the dense table built for a lookupswitch. Wider
	// switches become a chain of comparisons.
	MaxSparseSpan int
}

// Resolver maps symbolic references to module indices.
type Resolver interface {
	Global(field classfile.MemberRef) (uint32, bool)
	Function(method classfile.MemberRef) (uint32, bool)
	// TypeIndex returns the index of a function type, adding it if needed.
	// It is used for constructs that yield more than one value.
	TypeIndex(ft wasm.FuncType) uint32
}

// Signature returns the wasm function type of a static method descriptor.
func Signature(descriptor string) (wasm.FuncType, error) {
	d, err := classfile.ParseMethodDescriptor(descriptor)
	if err != nil {
		return wasm.FuncType{}, err
	}
	params, ret := descriptorKinds(d)
	return signature(params, ret), nil
}

func signature(params []bytecode.Kind, ret bytecode.Kind) wasm.FuncType {
	ft := wasm.FuncType{Params: make([]wasm.ValType, len(params))}
	for i, k := range params {
		ft.Params[i] = ValType(k)
	}
	if ret != bytecode.Void {
		ft.Results = []wasm.ValType{ValType(ret)}
	}
	return ft
}

type label struct {
	loop  bool
	start int      // loop header
	end   int      // instruction a block continues at
	spill []uint32 // locals holding a loop header's stack
}

type emitter struct {
	instrs []bytecode.Instruction
	index  map[int]int
	stacks *Stacks
	res    Resolver
	opts   Options
	locals *locals
	w      wasm.Writer
	labels []label
	// dead is set while the current position cannot be reached, after a
	// branch, return or unreachable.
	dead bool
}

// Function lowers one static method. instrs and tree must come from the
// method's code.
func Function(m *classfile.MethodInfo, instrs []bytecode.Instruction, tree *structure.Tree, res Resolver, opts Options) (wasm.Code, error) {
	switch {
	case m.Code == nil:
		return wasm.Code{}, fmt.Errorf("%w: %s%s has no code", ErrUnsupported, m.Name, m.Descriptor)
	case !m.IsStatic():
		return wasm.Code{}, fmt.Errorf("%w: %s%s is an instance method", ErrUnsupported, m.Name, m.Descriptor)
	case len(m.Code.ExceptionHandlers) > 0:
		return wasm.Code{}, fmt.Errorf("%w: %s%s has exception handlers", ErrUnsupported, m.Name, m.Descriptor)
	}
	d, err := classfile.ParseMethodDescriptor(m.Descriptor)
	if err != nil {
		return wasm.Code{}, err
	}
	params, ret := descriptorKinds(d)
	stacks, err := TypeStack(instrs, ret)
	if err != nil {
		return wasm.Code{}, err
	}
	if opts.MaxSparseSpan <= 0 {
		opts.MaxSparseSpan = DefaultMaxSparseSpan
	}

	e := &emitter{
		instrs: instrs,
		index:  make(map[int]int, len(instrs)),
		stacks: stacks,
		res:    res,
		opts:   opts,
		locals: newLocals(params),
	}
	for i, ins := range instrs {
		e.index[ins.Offset] = i
	}
	if err := e.body(tree.Body); err != nil {
		return wasm.Code{}, err
	}
	e.unreachable()
	e.w.End()

	code := wasm.Code{Locals: e.locals.decls(), Body: e.w.Bytes()}
	log.Debugf("%s%s: %d bytes, %d locals", m.Name, m.Descriptor, len(code.Body), code.NumLocals())
	return code, nil
}

func (e *emitter) body(nodes []structure.Node) error {
	for _, n := range nodes {
		var err error
		switch n := n.(type) {
		case structure.Op:
			err = e.op(n.Index)
		case *structure.Loop:
			err = e.loop(n)
		case *structure.Block:
			err = e.block(n)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// unreachable makes the rest of the current construct polymorphic.
func (e *emitter) unreachable() {
	if !e.dead {
		e.w.Op(wasm.OpUnreachable)
		e.dead = true
	}
}

func (e *emitter) blockType(ks []bytecode.Kind) wasm.BlockType {
	switch len(ks) {
	case 0:
		return wasm.BlockEmpty
	case 1:
		return wasm.ValueBlock(ValType(ks[0]))
	}
	ft := wasm.FuncType{Results: make([]wasm.ValType, len(ks))}
	for i, k := range ks {
		ft.Results[i] = ValType(k)
	}
	return wasm.TypeBlock(e.res.TypeIndex(ft))
}

// spill pops values into ls, top of stack last in ls.
func (e *emitter) spill(ls []uint32) {
	for i := len(ls) - 1; i >= 0; i-- {
		e.w.LocalSet(ls[i])
	}
}

func (e *emitter) reload(ls []uint32) {
	for _, l := range ls {
		e.w.LocalGet(l)
	}
}

// spillFresh moves the stack into new locals and returns them.
func (e *emitter) spillFresh(ks []bytecode.Kind) []uint32 {
	ls := make([]uint32, len(ks))
	for i, k := range ks {
		ls[i] = e.locals.fresh(ValType(k))
	}
	e.spill(ls)
	return ls
}

func (e *emitter) enter(l label) {
	e.labels = append(e.labels, l)
	e.dead = false
}

func (e *emitter) leave(end int) {
	e.labels = e.labels[:len(e.labels)-1]
	e.w.End()
	e.dead = false
	if _, ok := e.stacks.At(end); !ok {
		e.unreachable()
	}
}

func (e *emitter) loop(l *structure.Loop) error {
	in, ok := e.stacks.At(l.Start)
	if !ok {
		e.unreachable()
		return nil
	}
	out, _ := e.stacks.At(l.End)
	spill := e.spillFresh(in)
	e.w.Loop(e.blockType(out))
	e.enter(label{loop: true, start: l.Start, spill: spill})
	e.reload(spill)
	if err := e.body(l.Body); err != nil {
		return err
	}
	e.leave(l.End)
	return nil
}

func (e *emitter) block(b *structure.Block) error {
	in, ok := e.stacks.At(b.Start)
	if !ok {
		e.unreachable()
		return nil
	}
	out, _ := e.stacks.At(b.End)
	if b.Guard != nil {
		return e.conditional(b, in, out)
	}
	spill := e.spillFresh(in)
	e.w.Block(e.blockType(out))
	e.enter(label{end: b.End})
	e.reload(spill)
	if err := e.body(b.Body); err != nil {
		return err
	}
	e.leave(b.End)
	return nil
}

// conditional lowers a block skipped by its guard to an if on the negated
// guard condition. Values below the condition are spilled around the if and
// restored on both arms.
func (e *emitter) conditional(b *structure.Block, in, out []bytecode.Kind) error {
	guard := e.instrs[*b.Guard]
	below := in[:len(in)-operands(guard.Op)]

	e.condition(guard.Op, true)
	var spill []uint32
	if len(below) > 0 {
		c := e.locals.temp(wasm.I32, 0)
		e.w.LocalSet(c)
		spill = e.spillFresh(below)
		e.w.LocalGet(c)
	}
	e.w.If(e.blockType(out))
	e.enter(label{end: b.End})
	e.reload(spill)
	if err := e.body(b.Body); err != nil {
		return err
	}
	if len(out) > 0 {
		e.w.Else()
		e.dead = false
		e.reload(spill)
	}
	e.leave(b.End)
	return nil
}

func operands(op bytecode.Operation) int {
	if _, ok := op.(bytecode.IfCmp); ok {
		return 2
	}
	return 1
}

var intCompares = [...]byte{
	bytecode.Eq: wasm.OpI32Eq,
	bytecode.Ne: wasm.OpI32Ne,
	bytecode.Lt: wasm.OpI32LtS,
	bytecode.Ge: wasm.OpI32GeS,
	bytecode.Gt: wasm.OpI32GtS,
	bytecode.Le: wasm.OpI32LeS,
}

// condition replaces the operands of a conditional branch with an i32 that
// is non-zero when the branch is taken, or not taken if negate is set.
func (e *emitter) condition(op bytecode.Operation, negate bool) {
	switch o := op.(type) {
	case bytecode.If:
		c := o.Cond
		if negate {
			c = c.Negate()
		}
		switch c {
		case bytecode.Eq:
			e.w.Op(wasm.OpI32Eqz)
		case bytecode.Ne:
		default:
			e.w.I32Const(0)
			e.w.Op(intCompares[c])
		}
	case bytecode.IfCmp:
		c := o.Cond
		if negate {
			c = c.Negate()
		}
		e.w.Op(intCompares[c])
	case bytecode.IfNull:
		e.w.Op(wasm.OpRefIsNull)
		if o.Null == negate {
			e.w.Op(wasm.OpI32Eqz)
		}
	}
}

// depth finds the construct a branch from instruction from to instruction t
// exits to. Backward branches continue a loop, forward ones leave a block.
func (e *emitter) depth(from, t int) (uint32, *label, error) {
	for d := len(e.labels) - 1; d >= 0; d-- {
		l := &e.labels[d]
		if t <= from && l.loop && l.start == t || t > from && !l.loop && l.end == t {
			return uint32(len(e.labels) - 1 - d), l, nil
		}
	}
	return 0, nil, fmt.Errorf("%w: no enclosing construct ends at %d", ErrUnsupported, e.instrs[t].Offset)
}

func (e *emitter) target(i int, delta int32) int {
	return e.index[e.instrs[i].Offset+int(delta)]
}

func (e *emitter) jump(i int, delta int32) error {
	d, l, err := e.depth(i, e.target(i, delta))
	if err != nil {
		return err
	}
	if l.loop {
		e.spill(l.spill)
	}
	e.w.Br(d)
	e.dead = true
	return nil
}

func (e *emitter) branchIf(i int, op bytecode.Operation) error {
	d, l, err := e.depth(i, e.target(i, bytecode.Branches(op)[0]))
	if err != nil {
		return err
	}
	e.condition(op, false)
	if l.loop && len(l.spill) > 0 {
		c := e.locals.temp(wasm.I32, 0)
		e.w.LocalSet(c)
		e.spill(l.spill)
		e.w.LocalGet(c)
		e.w.BrIf(d)
		e.reload(l.spill)
		return nil
	}
	e.w.BrIf(d)
	return nil
}

func (e *emitter) tableSwitch(i int, o bytecode.TableSwitch) error {
	labels := make([]uint32, len(o.Targets))
	for k, t := range o.Targets {
		d, _, err := e.depth(i, e.target(i, t))
		if err != nil {
			return err
		}
		labels[k] = d
	}
	def, _, err := e.depth(i, e.target(i, o.Default))
	if err != nil {
		return err
	}
	if o.Low != 0 {
		e.w.I32Const(o.Low)
		e.w.Op(wasm.OpI32Sub)
	}
	e.w.BrTable(labels, def)
	e.dead = true
	return nil
}

func (e *emitter) lookupSwitch(i int, o bytecode.LookupSwitch) error {
	def, _, err := e.depth(i, e.target(i, o.Default))
	if err != nil {
		return err
	}
	labels := make([]uint32, len(o.Keys))
	for k, t := range o.Targets {
		if labels[k], _, err = e.depth(i, e.target(i, t)); err != nil {
			return err
		}
	}
	defer func() { e.dead = true }()
	if len(o.Keys) == 0 {
		e.w.Op(wasm.OpDrop)
		e.w.Br(def)
		return nil
	}

	lo, hi := o.Keys[0], o.Keys[0]
	for _, k := range o.Keys {
		lo, hi = min(lo, k), max(hi, k)
	}
	if span := int64(hi) - int64(lo) + 1; span <= int64(e.opts.MaxSparseSpan) {
		table := make([]uint32, span)
		for k := range table {
			table[k] = def
		}
		for k, key := range o.Keys {
			table[key-lo] = labels[k]
		}
		if lo != 0 {
			e.w.I32Const(lo)
			e.w.Op(wasm.OpI32Sub)
		}
		e.w.BrTable(table, def)
		return nil
	}

	log.Debugf("lookupswitch at %d spans %d keys, using comparisons", e.instrs[i].Offset, int64(hi)-int64(lo)+1)
	key := e.locals.temp(wasm.I32, 0)
	e.w.LocalSet(key)
	for k, v := range o.Keys {
		e.w.LocalGet(key)
		e.w.I32Const(v)
		e.w.Op(wasm.OpI32Eq)
		e.w.BrIf(labels[k])
	}
	e.w.Br(def)
	return nil
}
