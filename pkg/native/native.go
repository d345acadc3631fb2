// Package native implements static JDK library methods in Go. Translated
// classes reach them through function imports, and the interpreter calls
// them for classes it has not loaded.
//
// Arguments and results use the wasm value encoding of
// github.com/tetratelabs/wazero/api, so the same implementation serves
// both.
package native

import (
	"errors"
	"fmt"
	"sort"

	"github.com/tetratelabs/wazero/api"

	"github.com/daimatz/jvm2wasm/pkg/classfile"
)

var (
	// ErrArithmetic matches an Exception of java/lang/ArithmeticException.
	ErrArithmetic = errors.New("arithmetic exception")

	// ErrMissing is returned for an import no native method provides.
	ErrMissing = errors.New("no native implementation")
)

// Func computes a result from encoded arguments. The result of a void
// method is ignored.
type Func func(args []uint64) (uint64, error)

// Method is one native static method.
type Method struct {
	Class      string
	Name       string
	Descriptor string
	Fn         Func
}

func (m Method) String() string { return m.Class + "." + m.Name + ":" + m.Descriptor }

var registry = make(map[classfile.MemberRef]Method)

func register(class string, methods map[string]Func) {
	for sig, fn := range methods {
		name, desc := splitSignature(sig)
		ref := classfile.MemberRef{Class: class, Name: name, Descriptor: desc}
		if _, ok := registry[ref]; ok {
			panic(fmt.Sprintf("native: %s registered twice", ref))
		}
		registry[ref] = Method{Class: class, Name: name, Descriptor: desc, Fn: fn}
	}
}

func splitSignature(sig string) (name, desc string) {
	for i := 0; i < len(sig); i++ {
		if sig[i] == '(' {
			return sig[:i], sig[i:]
		}
	}
	panic("native: signature without descriptor: " + sig)
}

// Lookup finds the native method for a static method reference.
func Lookup(ref classfile.MemberRef) (Method, bool) {
	m, ok := registry[ref]
	return m, ok
}

// Methods lists every native method, sorted by class, name and descriptor.
func Methods() []Method {
	out := make([]Method, 0, len(registry))
	for _, m := range registry {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Class != b.Class {
			return a.Class < b.Class
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Descriptor < b.Descriptor
	})
	return out
}

// Exception is a Java exception thrown by a native method.
type Exception struct {
	Class   string
	Message string
}

func (e *Exception) Error() string { return e.Class + ": " + e.Message }

func (e *Exception) Is(target error) bool {
	return target == ErrArithmetic && e.Class == "java/lang/ArithmeticException"
}

func arithmetic(msg string) error {
	return &Exception{Class: "java/lang/ArithmeticException", Message: msg}
}

type codec[T any] struct {
	dec func(uint64) T
	enc func(T) uint64
}

var (
	i32 = codec[int32]{api.DecodeI32, api.EncodeI32}
	i64 = codec[int64]{func(r uint64) int64 { return int64(r) }, api.EncodeI64}
	f32 = codec[float32]{api.DecodeF32, api.EncodeF32}
	f64 = codec[float64]{api.DecodeF64, api.EncodeF64}
	z   = codec[bool]{func(r uint64) bool { return uint32(r) != 0 }, func(b bool) uint64 {
		if b {
			return 1
		}
		return 0
	}}
)

func nullary[R any](r codec[R], f func() R) Func {
	return func([]uint64) (uint64, error) { return r.enc(f()), nil }
}

func unary[A, R any](a codec[A], r codec[R], f func(A) R) Func {
	return func(args []uint64) (uint64, error) { return r.enc(f(a.dec(args[0]))), nil }
}

func binary[A, B, R any](a codec[A], b codec[B], r codec[R], f func(A, B) R) Func {
	return func(args []uint64) (uint64, error) {
		return r.enc(f(a.dec(args[0]), b.dec(args[1]))), nil
	}
}

func checked[A, B, R any](a codec[A], b codec[B], r codec[R], f func(A, B) (R, error)) Func {
	return func(args []uint64) (uint64, error) {
		v, err := f(a.dec(args[0]), b.dec(args[1]))
		if err != nil {
			return 0, err
		}
		return r.enc(v), nil
	}
}
