package interp

import (
	"fmt"

	"github.com/daimatz/jvm2wasm/pkg/bytecode"
)

// stackError is raised by frame accessors on malformed code and turned
// into an error by Invoke.
type stackError string

func (e stackError) Error() string { return string(e) }

// Frame represents a stack frame for method execution. PC is an index into
// the decoded instructions of the method.
type Frame struct {
	LocalVars    []Value
	OperandStack []Value
	SP           int
	PC           int
}

// NewFrame creates a new Frame with the given parameters.
func NewFrame(maxLocals, maxStack uint16) *Frame {
	return &Frame{
		LocalVars:    make([]Value, maxLocals),
		OperandStack: make([]Value, maxStack),
	}
}

// Push pushes a value onto the operand stack.
func (f *Frame) Push(v Value) {
	if f.SP >= len(f.OperandStack) {
		panic(stackError(fmt.Sprintf("operand stack overflow: SP=%d, max=%d", f.SP, len(f.OperandStack))))
	}
	f.OperandStack[f.SP] = v
	f.SP++
}

// Pop pops a value from the operand stack.
func (f *Frame) Pop() Value {
	if f.SP <= 0 {
		panic(stackError("operand stack underflow: SP=0"))
	}
	f.SP--
	return f.OperandStack[f.SP]
}

// PopKind pops a value and checks its kind.
func (f *Frame) PopKind(k bytecode.Kind) Value {
	v := f.Pop()
	if v.Kind != k {
		panic(stackError(fmt.Sprintf("expected %s on the operand stack, found %s", k, v.Kind)))
	}
	return v
}

// Kinds returns the kinds on the operand stack, bottom first.
func (f *Frame) Kinds() []bytecode.Kind {
	ks := make([]bytecode.Kind, f.SP)
	for i := range ks {
		ks[i] = f.OperandStack[i].Kind
	}
	return ks
}

// GetLocal returns the value at the given local variable index.
func (f *Frame) GetLocal(index int) Value {
	if index < 0 || index >= len(f.LocalVars) {
		panic(stackError(fmt.Sprintf("local variable index out of range: index=%d, max=%d", index, len(f.LocalVars))))
	}
	return f.LocalVars[index]
}

// SetLocal sets the value at the given local variable index.
func (f *Frame) SetLocal(index int, v Value) {
	if index < 0 || index >= len(f.LocalVars) {
		panic(stackError(fmt.Sprintf("local variable index out of range: index=%d, max=%d", index, len(f.LocalVars))))
	}
	f.LocalVars[index] = v
}
