package interp

import (
	"fmt"
	"math"
	"strconv"

	"github.com/daimatz/jvm2wasm/pkg/bytecode"
	"github.com/daimatz/jvm2wasm/pkg/classfile"
)

// Value is an operand stack or local variable value. Ints and longs are
// held in I, floats and doubles in F. The only reference is null.
type Value struct {
	Kind bytecode.Kind
	I    int64
	F    float64
}

func IntValue(v int32) Value     { return Value{Kind: bytecode.Int, I: int64(v)} }
func LongValue(v int64) Value    { return Value{Kind: bytecode.Long, I: v} }
func FloatValue(v float32) Value { return Value{Kind: bytecode.Float, F: float64(v)} }
func DoubleValue(v float64) Value {
	return Value{Kind: bytecode.Double, F: v}
}
func NullValue() Value { return Value{Kind: bytecode.Ref} }

// VoidValue is what a void method returns.
func VoidValue() Value { return Value{Kind: bytecode.Void} }

// ZeroValue is the default value of a field of kind k.
func ZeroValue(k bytecode.Kind) Value { return Value{Kind: k} }

// RawValue decodes a value of kind k from its wasm encoding.
func RawValue(k bytecode.Kind, r uint64) Value {
	switch k {
	case bytecode.Int:
		return IntValue(int32(r))
	case bytecode.Long:
		return LongValue(int64(r))
	case bytecode.Float:
		return FloatValue(math.Float32frombits(uint32(r)))
	case bytecode.Double:
		return DoubleValue(math.Float64frombits(r))
	}
	return ZeroValue(k)
}

// Raw returns the wasm encoding of v: ints zero-extended, floats as their
// bits, null as 0.
func (v Value) Raw() uint64 {
	switch v.Kind {
	case bytecode.Int:
		return uint64(uint32(v.Int32()))
	case bytecode.Long:
		return uint64(v.I)
	case bytecode.Float:
		return uint64(math.Float32bits(v.Float32()))
	case bytecode.Double:
		return math.Float64bits(v.F)
	}
	return 0
}

func (v Value) Int32() int32     { return int32(v.I) }
func (v Value) Float32() float32 { return float32(v.F) }

func (v Value) String() string {
	switch v.Kind {
	case bytecode.Int, bytecode.Long:
		return strconv.FormatInt(v.I, 10)
	case bytecode.Float:
		return strconv.FormatFloat(v.F, 'g', -1, 32)
	case bytecode.Double:
		return strconv.FormatFloat(v.F, 'g', -1, 64)
	case bytecode.Ref:
		return "null"
	}
	return "void"
}

// ParseArgs converts textual arguments to values of the parameter types of
// a method descriptor. References can only be given as "null".
func ParseArgs(descriptor string, args []string) ([]Value, error) {
	d, err := classfile.ParseMethodDescriptor(descriptor)
	if err != nil {
		return nil, err
	}
	if len(args) != len(d.Params) {
		return nil, fmt.Errorf("%w: %s takes %d arguments, got %d", ErrBadArguments, descriptor, len(d.Params), len(args))
	}
	vals := make([]Value, len(args))
	for i, p := range d.Params {
		v, err := parseValue(bytecode.KindOf(p), args[i])
		if err != nil {
			return nil, fmt.Errorf("%w: argument %d (%s): %v", ErrBadArguments, i, p, err)
		}
		vals[i] = v
	}
	return vals, nil
}

func parseValue(k bytecode.Kind, s string) (Value, error) {
	switch k {
	case bytecode.Int:
		n, err := strconv.ParseInt(s, 0, 32)
		return IntValue(int32(n)), err
	case bytecode.Long:
		n, err := strconv.ParseInt(s, 0, 64)
		return LongValue(n), err
	case bytecode.Float:
		f, err := strconv.ParseFloat(s, 32)
		return FloatValue(float32(f)), err
	case bytecode.Double:
		f, err := strconv.ParseFloat(s, 64)
		return DoubleValue(f), err
	}
	if s != "null" {
		return Value{}, fmt.Errorf("only null references are supported, got %q", s)
	}
	return NullValue(), nil
}
