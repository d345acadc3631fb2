package native_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/daimatz/jvm2wasm/pkg/classfile"
	"github.com/daimatz/jvm2wasm/pkg/classfile/classwriter"
	"github.com/daimatz/jvm2wasm/pkg/interp"
	"github.com/daimatz/jvm2wasm/pkg/link"
	"github.com/daimatz/jvm2wasm/pkg/native"
)

func call(t *testing.T, class, sig string, args ...uint64) (uint64, error) {
	t.Helper()
	for i := range sig {
		if sig[i] == '(' {
			m, ok := native.Lookup(classfile.MemberRef{Class: class, Name: sig[:i], Descriptor: sig[i:]})
			if !ok {
				t.Fatalf("Lookup(%s.%s): not found", class, sig)
			}
			return m.Fn(args)
		}
	}
	t.Fatalf("bad signature %s", sig)
	return 0, nil
}

func TestMethods(t *testing.T) {
	i32 := func(v int32) uint64 { return api.EncodeI32(v) }
	i64 := func(v int64) uint64 { return api.EncodeI64(v) }
	f32 := api.EncodeF32
	f64 := api.EncodeF64

	tests := []struct {
		class, sig string
		args       []uint64
		want       uint64
	}{
		{"java/lang/Math", "abs(I)I", []uint64{i32(-7)}, i32(7)},
		{"java/lang/Math", "abs(I)I", []uint64{i32(math.MinInt32)}, i32(math.MinInt32)},
		{"java/lang/Math", "abs(J)J", []uint64{i64(-1 << 40)}, i64(1 << 40)},
		{"java/lang/Math", "abs(F)F", []uint64{f32(float32(math.Copysign(0, -1)))}, f32(0)},
		{"java/lang/Math", "abs(D)D", []uint64{f64(-2.5)}, f64(2.5)},
		{"java/lang/Math", "max(II)I", []uint64{i32(-3), i32(2)}, i32(2)},
		{"java/lang/Math", "min(JJ)J", []uint64{i64(-3), i64(2)}, i64(-3)},
		{"java/lang/Math", "max(DD)D", []uint64{f64(math.Copysign(0, -1)), f64(0)}, f64(0)},
		{"java/lang/Math", "min(DD)D", []uint64{f64(math.Copysign(0, -1)), f64(0)}, f64(math.Copysign(0, -1))},
		{"java/lang/Math", "floorDiv(II)I", []uint64{i32(-7), i32(2)}, i32(-4)},
		{"java/lang/Math", "floorDiv(II)I", []uint64{i32(7), i32(2)}, i32(3)},
		{"java/lang/Math", "floorDiv(II)I", []uint64{i32(math.MinInt32), i32(-1)}, i32(math.MinInt32)},
		{"java/lang/Math", "floorMod(II)I", []uint64{i32(-7), i32(2)}, i32(1)},
		{"java/lang/Math", "floorMod(JJ)J", []uint64{i64(7), i64(-2)}, i64(-1)},
		{"java/lang/Math", "addExact(II)I", []uint64{i32(40), i32(2)}, i32(42)},
		{"java/lang/Math", "sqrt(D)D", []uint64{f64(16)}, f64(4)},
		{"java/lang/Math", "rint(D)D", []uint64{f64(2.5)}, f64(2)},
		{"java/lang/Math", "round(D)J", []uint64{f64(-2.5)}, i64(-2)},
		{"java/lang/Math", "round(D)J", []uint64{f64(2.5)}, i64(3)},
		{"java/lang/Math", "round(D)J", []uint64{f64(math.NaN())}, i64(0)},
		{"java/lang/Math", "round(D)J", []uint64{f64(1e300)}, i64(math.MaxInt64)},
		{"java/lang/Math", "round(F)I", []uint64{f32(-1e20)}, i32(math.MinInt32)},
		{"java/lang/Math", "signum(D)D", []uint64{f64(-9)}, f64(-1)},
		{"java/lang/Integer", "compare(II)I", []uint64{i32(1), i32(2)}, i32(-1)},
		{"java/lang/Integer", "signum(I)I", []uint64{i32(-9)}, i32(-1)},
		{"java/lang/Integer", "bitCount(I)I", []uint64{i32(-1)}, i32(32)},
		{"java/lang/Integer", "reverse(I)I", []uint64{i32(1)}, i32(math.MinInt32)},
		{"java/lang/Integer", "numberOfLeadingZeros(I)I", []uint64{i32(0)}, i32(32)},
		{"java/lang/Integer", "numberOfTrailingZeros(I)I", []uint64{i32(8)}, i32(3)},
		{"java/lang/Integer", "rotateLeft(II)I", []uint64{i32(math.MinInt32), i32(33)}, i32(1)},
		{"java/lang/Integer", "rotateRight(II)I", []uint64{i32(1), i32(1)}, i32(math.MinInt32)},
		{"java/lang/Integer", "highestOneBit(I)I", []uint64{i32(100)}, i32(64)},
		{"java/lang/Integer", "lowestOneBit(I)I", []uint64{i32(100)}, i32(4)},
		{"java/lang/Integer", "divideUnsigned(II)I", []uint64{i32(-2), i32(2)}, i32(math.MaxInt32)},
		{"java/lang/Integer", "compareUnsigned(II)I", []uint64{i32(-1), i32(1)}, i32(1)},
		{"java/lang/Long", "compare(JJ)I", []uint64{i64(5), i64(5)}, i32(0)},
		{"java/lang/Long", "bitCount(J)I", []uint64{i64(-1)}, i32(64)},
		{"java/lang/Long", "rotateLeft(JI)J", []uint64{i64(1), i32(65)}, i64(2)},
		{"java/lang/Float", "floatToIntBits(F)I", []uint64{f32(float32(math.NaN()))}, i32(0x7fc00000)},
		{"java/lang/Float", "floatToRawIntBits(F)I", []uint64{f32(1)}, i32(0x3f800000)},
		{"java/lang/Float", "intBitsToFloat(I)F", []uint64{i32(0x40000000)}, f32(2)},
		{"java/lang/Float", "isNaN(F)Z", []uint64{f32(float32(math.NaN()))}, 1},
		{"java/lang/Float", "compare(FF)I", []uint64{f32(float32(math.NaN())), f32(float32(math.Inf(1)))}, i32(1)},
		{"java/lang/Double", "compare(DD)I", []uint64{f64(0), f64(math.Copysign(0, -1))}, i32(1)},
		{"java/lang/Double", "compare(DD)I", []uint64{f64(math.NaN()), f64(math.NaN())}, i32(0)},
		{"java/lang/Double", "doubleToLongBits(D)J", []uint64{f64(1)}, i64(0x3ff0000000000000)},
		{"java/lang/Double", "longBitsToDouble(J)D", []uint64{i64(0x4000000000000000)}, f64(2)},
		{"java/lang/Double", "isNaN(D)Z", []uint64{f64(1)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.class+"."+tt.sig, func(t *testing.T) {
			got, err := call(t, tt.class, tt.sig, tt.args...)
			if err != nil {
				t.Fatalf("call: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %#x, want %#x", got, tt.want)
			}
		})
	}
}

func TestExceptions(t *testing.T) {
	tests := []struct {
		class, sig string
		args       []uint64
	}{
		{"java/lang/Math", "floorDiv(II)I", []uint64{api.EncodeI32(1), 0}},
		{"java/lang/Math", "floorMod(JJ)J", []uint64{1, 0}},
		{"java/lang/Math", "addExact(II)I", []uint64{api.EncodeI32(math.MaxInt32), api.EncodeI32(1)}},
		{"java/lang/Math", "subtractExact(II)I", []uint64{api.EncodeI32(math.MinInt32), api.EncodeI32(1)}},
		{"java/lang/Math", "multiplyExact(II)I", []uint64{api.EncodeI32(1 << 16), api.EncodeI32(1 << 16)}},
		{"java/lang/Math", "addExact(JJ)J", []uint64{api.EncodeI64(math.MaxInt64), 1}},
		{"java/lang/Integer", "divideUnsigned(II)I", []uint64{1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.class+"."+tt.sig, func(t *testing.T) {
			_, err := call(t, tt.class, tt.sig, tt.args...)
			if !errors.Is(err, native.ErrArithmetic) {
				t.Errorf("got %v, want %v", err, native.ErrArithmetic)
			}
		})
	}
}

func TestSystem(t *testing.T) {
	ms, err := call(t, "java/lang/System", "currentTimeMillis()J")
	if err != nil || int64(ms) <= 0 {
		t.Errorf("currentTimeMillis: got %d, %v", int64(ms), err)
	}
	a, _ := call(t, "java/lang/System", "nanoTime()J")
	b, _ := call(t, "java/lang/System", "nanoTime()J")
	if int64(b) < int64(a) {
		t.Errorf("nanoTime went backwards: %d then %d", int64(a), int64(b))
	}
}

func TestMethodsSorted(t *testing.T) {
	ms := native.Methods()
	if len(ms) == 0 {
		t.Fatal("no native methods")
	}
	for i := 1; i < len(ms); i++ {
		a, b := ms[i-1], ms[i]
		if a.Class > b.Class || (a.Class == b.Class && a.Name > b.Name) {
			t.Errorf("Methods: %s listed before %s", a, b)
		}
	}
}

// calls builds a class whose f(I)I returns Math.abs(n) + Integer.bitCount(n)
// and whose g(II)I returns Math.floorDiv(a, b).
func calls(t *testing.T) *classfile.ClassFile {
	t.Helper()
	w := classwriter.New("App", "java/lang/Object")
	abs := w.Methodref("java/lang/Math", "abs", "(I)I")
	bitCount := w.Methodref("java/lang/Integer", "bitCount", "(I)I")
	floorDiv := w.Methodref("java/lang/Math", "floorDiv", "(II)I")
	pub := uint16(classfile.AccPublic | classfile.AccStatic)
	w.AddMethod(pub, "f", "(I)I", &classwriter.Code{MaxStack: 2, MaxLocals: 1, Bytes: classwriter.NewAsm().
		Op(0x1A, 0xB8).U16(abs).Op(0x1A, 0xB8).U16(bitCount).Op(0x60, 0xAC).MustBytes()})
	w.AddMethod(pub, "g", "(II)I", &classwriter.Code{MaxStack: 2, MaxLocals: 2, Bytes: classwriter.NewAsm().
		Op(0x1A, 0x1B, 0xB8).U16(floorDiv).Op(0xAC).MustBytes()})
	cf, err := classfile.ParseBytes(w.MustBytes())
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	return cf
}

func TestInstantiate(t *testing.T) {
	cf := calls(t)
	opts := link.DefaultOptions()
	opts.Unresolved = link.UnresolvedImport
	mod, lm, err := link.Link([]*classfile.ClassFile{cf}, opts)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if len(lm.Imports) != 3 {
		t.Fatalf("imports: got %d, want 3", len(lm.Imports))
	}

	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)
	if err := native.Instantiate(ctx, rt, lm.Imports); err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	inst, err := rt.Instantiate(ctx, mod.Encode())
	if err != nil {
		t.Fatalf("instantiating module: %v", err)
	}
	vm, err := interp.New([]*classfile.ClassFile{cf})
	if err != nil {
		t.Fatal(err)
	}

	for _, n := range []int32{0, 7, -7, math.MinInt32} {
		res, err := inst.ExportedFunction("App.f").Call(ctx, api.EncodeI32(n))
		if err != nil {
			t.Fatalf("f(%d): %v", n, err)
		}
		want, err := vm.Invoke("App", "f", "(I)I", interp.IntValue(n))
		if err != nil {
			t.Fatalf("interpreting f(%d): %v", n, err)
		}
		if got := api.DecodeI32(res[0]); got != want.Int32() {
			t.Errorf("f(%d): got %d, interpreter %d", n, got, want.Int32())
		}
	}

	res, err := inst.ExportedFunction("App.g").Call(ctx, api.EncodeI32(-7), api.EncodeI32(2))
	if err != nil || api.DecodeI32(res[0]) != -4 {
		t.Errorf("g(-7, 2): got %v, %v, want -4", res, err)
	}
	if _, err := inst.ExportedFunction("App.g").Call(ctx, 1, 0); err == nil {
		t.Error("g(1, 0): got nil error from the module")
	}
	if _, err := vm.Invoke("App", "g", "(II)I", interp.IntValue(1), interp.IntValue(0)); !errors.Is(err, interp.ErrArithmetic) {
		t.Errorf("interpreting g(1, 0): got %v, want %v", err, interp.ErrArithmetic)
	}
}

func TestInstantiateMissing(t *testing.T) {
	tests := []struct {
		name string
		sym  link.Symbol
	}{
		{"unknown method", link.Symbol{Kind: "func", Class: "java/lang/Math", Name: "frobnicate", Descriptor: "(I)I"}},
		{"unknown class", link.Symbol{Kind: "func", Class: "com/example/Lib", Name: "f", Descriptor: "()V"}},
		{"global", link.Symbol{Kind: "global", Class: "java/lang/Integer", Name: "MAX_VALUE", Descriptor: "I"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			rt := wazero.NewRuntime(ctx)
			defer rt.Close(ctx)
			if err := native.Instantiate(ctx, rt, []link.Symbol{tt.sym}); !errors.Is(err, native.ErrMissing) {
				t.Errorf("got %v, want %v", err, native.ErrMissing)
			}
		})
	}
}
