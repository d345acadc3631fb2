package bytecode

import (
	"fmt"

	"github.com/daimatz/jvm2wasm/pkg/classfile"
)

// Kind is the computational type of an operand stack value.
type Kind uint8

const (
	Int Kind = iota
	Long
	Float
	Double
	Ref
	Void
)

var kindNames = [...]string{"int", "long", "float", "double", "ref", "void"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Wide reports whether values of this kind are category 2 (long, double).
func (k Kind) Wide() bool { return k == Long || k == Double }

// KindOf maps a descriptor type to the kind it has on the operand stack.
// boolean, byte, char and short are widened to int.
func KindOf(t classfile.FieldType) Kind {
	if t.IsReference() {
		return Ref
	}
	switch t.Base {
	case 'J':
		return Long
	case 'F':
		return Float
	case 'D':
		return Double
	case 'V':
		return Void
	}
	return Int
}

// ArithOp is a binary or unary arithmetic operator.
type ArithOp uint8

const (
	Add ArithOp = iota
	Sub
	Mul
	Div
	Rem
	Neg
	Shl
	Shr
	Ushr
	And
	Or
	Xor
)

var arithNames = [...]string{"add", "sub", "mul", "div", "rem", "neg", "shl", "shr", "ushr", "and", "or", "xor"}

func (o ArithOp) String() string { return arithNames[o] }

// Unary reports whether the operator takes a single operand.
func (o ArithOp) Unary() bool { return o == Neg }

// Shift reports whether the operator is a shift, whose count is always int.
func (o ArithOp) Shift() bool { return o == Shl || o == Shr || o == Ushr }

// Cond is the relation tested by a conditional branch.
type Cond uint8

const (
	Eq Cond = iota
	Ne
	Lt
	Ge
	Gt
	Le
)

var condNames = [...]string{"eq", "ne", "lt", "ge", "gt", "le"}

func (c Cond) String() string { return condNames[c] }

// Negate returns the complementary relation.
func (c Cond) Negate() Cond {
	switch c {
	case Eq:
		return Ne
	case Ne:
		return Eq
	case Lt:
		return Ge
	case Ge:
		return Lt
	case Gt:
		return Le
	}
	return Gt
}

// Eval applies the relation to a pair of ints.
func (c Cond) Eval(a, b int32) bool {
	switch c {
	case Eq:
		return a == b
	case Ne:
		return a != b
	case Lt:
		return a < b
	case Ge:
		return a >= b
	case Gt:
		return a > b
	}
	return a <= b
}

// StackOp is one of the untyped stack manipulation instructions.
type StackOp uint8

const (
	Pop StackOp = iota
	Pop2
	Dup
	DupX1
	DupX2
	Dup2
	Dup2X1
	Dup2X2
	Swap
)

var stackNames = [...]string{"pop", "pop2", "dup", "dup_x1", "dup_x2", "dup2", "dup2_x1", "dup2_x2", "swap"}

func (o StackOp) String() string { return stackNames[o] }

// Operation is a decoded instruction. The set of implementations is closed;
// consumers switch over the concrete types below.
type Operation interface {
	operation()
}

type (
	// Nop does nothing.
	Nop struct{}

	// Const pushes a constant. Int holds int and long values, Float holds
	// float and double values. A Ref constant is null.
	Const struct {
		Kind  Kind
		Int   int64
		Float float64
	}

	// Load pushes a local variable.
	Load struct {
		Kind  Kind
		Index uint16
	}

	// Store pops into a local variable.
	Store struct {
		Kind  Kind
		Index uint16
	}

	// Increment adds a constant to an int local.
	Increment struct {
		Index uint16
		Delta int16
	}

	Arith struct {
		Kind Kind
		Op   ArithOp
	}

	Convert struct {
		From, To Kind
	}

	// Truncate narrows an int to Width bits, sign or zero extending it back.
	Truncate struct {
		Width  uint8
		Signed bool
	}

	// Compare pushes -1, 0 or 1. NaN is the result when either operand of a
	// floating comparison is NaN; it is 0 for lcmp.
	Compare struct {
		Kind Kind
		NaN  int8
	}

	Stack struct {
		Op StackOp
	}

	GetStatic struct {
		Field classfile.MemberRef
	}

	PutStatic struct {
		Field classfile.MemberRef
	}

	InvokeStatic struct {
		Method classfile.MemberRef
	}

	// Return leaves the method. Kind is Void for return.
	Return struct {
		Kind Kind
	}

	// Goto jumps unconditionally. Target is relative to the instruction.
	Goto struct {
		Target int32
	}

	// IfNull branches when the reference on top of the stack is null
	// (Null) or is not null (!Null).
	IfNull struct {
		Null   bool
		Target int32
	}

	// If compares the int on top of the stack with zero.
	If struct {
		Cond   Cond
		Target int32
	}

	// IfCmp compares the two ints on top of the stack.
	IfCmp struct {
		Cond   Cond
		Target int32
	}

	TableSwitch struct {
		Default int32
		Low     int32
		Targets []int32
	}

	LookupSwitch struct {
		Default int32
		Keys    []int32
		Targets []int32
	}
)

func (Nop) operation()          {}
func (Const) operation()        {}
func (Load) operation()         {}
func (Store) operation()        {}
func (Increment) operation()    {}
func (Arith) operation()        {}
func (Convert) operation()      {}
func (Truncate) operation()     {}
func (Compare) operation()      {}
func (Stack) operation()        {}
func (GetStatic) operation()    {}
func (PutStatic) operation()    {}
func (InvokeStatic) operation() {}
func (Return) operation()       {}
func (Goto) operation()         {}
func (IfNull) operation()       {}
func (If) operation()           {}
func (IfCmp) operation()        {}
func (TableSwitch) operation()  {}
func (LookupSwitch) operation() {}

// Instruction is an operation together with its position in the code array.
type Instruction struct {
	Offset int
	Size   int
	Opcode byte
	Wide   bool
	Op     Operation
}

// Branches returns the relative targets of a branching operation, default
// first for switches. It returns nil for other operations.
func Branches(op Operation) []int32 {
	switch o := op.(type) {
	case Goto:
		return []int32{o.Target}
	case IfNull:
		return []int32{o.Target}
	case If:
		return []int32{o.Target}
	case IfCmp:
		return []int32{o.Target}
	case TableSwitch:
		return append([]int32{o.Default}, o.Targets...)
	case LookupSwitch:
		return append([]int32{o.Default}, o.Targets...)
	}
	return nil
}

// Conditional reports whether op is a two-way conditional branch.
func Conditional(op Operation) bool {
	switch op.(type) {
	case IfNull, If, IfCmp:
		return true
	}
	return false
}

// FallsThrough reports whether control can reach the next instruction.
func FallsThrough(op Operation) bool {
	switch op.(type) {
	case Goto, Return, TableSwitch, LookupSwitch:
		return false
	}
	return true
}
