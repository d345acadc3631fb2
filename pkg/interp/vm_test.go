package interp_test

import (
	"errors"
	"math"
	"testing"

	"github.com/daimatz/jvm2wasm/pkg/classfile"
	"github.com/daimatz/jvm2wasm/pkg/classfile/classwriter"
	"github.com/daimatz/jvm2wasm/pkg/interp"
)

const pubStatic = classfile.AccPublic | classfile.AccStatic

func code(b []byte) *classwriter.Code {
	return &classwriter.Code{MaxStack: 8, MaxLocals: 8, Bytes: b}
}

func parse(t *testing.T, w *classwriter.Writer) *classfile.ClassFile {
	t.Helper()
	cf, err := classfile.ParseBytes(w.MustBytes())
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	return cf
}

func newVM(t *testing.T, classes ...*classfile.ClassFile) *interp.VM {
	t.Helper()
	vm, err := interp.New(classes)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return vm
}

// executeMethod runs code as T.f with the given descriptor.
func executeMethod(t *testing.T, desc string, body []byte, args ...interp.Value) (interp.Value, error) {
	t.Helper()
	w := classwriter.New("T", "java/lang/Object")
	w.AddMethod(pubStatic, "f", desc, code(body))
	return newVM(t, parse(t, w)).Invoke("T", "f", desc, args...)
}

func TestInstructions(t *testing.T) {
	nan := float32(math.NaN())
	tests := []struct {
		name string
		desc string
		code []byte
		args []interp.Value
		want interp.Value
	}{
		{"iconst_m1", "()I", []byte{0x02, 0xAC}, nil, interp.IntValue(-1)},
		{"bipush negative", "()I", []byte{0x10, 0xFB, 0xAC}, nil, interp.IntValue(-5)},
		{"iadd overflow", "(II)I", []byte{0x1A, 0x1B, 0x60, 0xAC}, []interp.Value{interp.IntValue(math.MaxInt32), interp.IntValue(1)}, interp.IntValue(math.MinInt32)},
		{"idiv MIN by -1", "(II)I", []byte{0x1A, 0x1B, 0x6C, 0xAC}, []interp.Value{interp.IntValue(math.MinInt32), interp.IntValue(-1)}, interp.IntValue(math.MinInt32)},
		{"irem negative", "(II)I", []byte{0x1A, 0x1B, 0x70, 0xAC}, []interp.Value{interp.IntValue(-7), interp.IntValue(2)}, interp.IntValue(-1)},
		{"ishl masks count", "(II)I", []byte{0x1A, 0x1B, 0x78, 0xAC}, []interp.Value{interp.IntValue(1), interp.IntValue(33)}, interp.IntValue(2)},
		{"iushr", "(II)I", []byte{0x1A, 0x1B, 0x7C, 0xAC}, []interp.Value{interp.IntValue(-1), interp.IntValue(28)}, interp.IntValue(15)},
		{"lshl by 65", "(JI)J", []byte{0x1E, 0x1C, 0x79, 0xAD}, []interp.Value{interp.LongValue(1), interp.IntValue(65)}, interp.LongValue(2)},
		{"lneg", "(J)J", []byte{0x1E, 0x75, 0xAD}, []interp.Value{interp.LongValue(5)}, interp.LongValue(-5)},
		{"i2b", "(I)I", []byte{0x1A, 0x91, 0xAC}, []interp.Value{interp.IntValue(200)}, interp.IntValue(-56)},
		{"i2c", "(I)I", []byte{0x1A, 0x92, 0xAC}, []interp.Value{interp.IntValue(-1)}, interp.IntValue(65535)},
		{"i2s", "(I)I", []byte{0x1A, 0x93, 0xAC}, []interp.Value{interp.IntValue(40000)}, interp.IntValue(-25536)},
		{"iinc", "(I)I", []byte{0x84, 0x00, 0xFF, 0x1A, 0xAC}, []interp.Value{interp.IntValue(3)}, interp.IntValue(2)},
		{"fcmpl NaN", "(FF)I", []byte{0x22, 0x23, 0x95, 0xAC}, []interp.Value{interp.FloatValue(nan), interp.FloatValue(1)}, interp.IntValue(-1)},
		{"fcmpg NaN", "(FF)I", []byte{0x22, 0x23, 0x96, 0xAC}, []interp.Value{interp.FloatValue(nan), interp.FloatValue(1)}, interp.IntValue(1)},
		{"f2i NaN", "(F)I", []byte{0x22, 0x8B, 0xAC}, []interp.Value{interp.FloatValue(nan)}, interp.IntValue(0)},
		{"fdiv by zero", "(FF)F", []byte{0x22, 0x23, 0x6E, 0xAE}, []interp.Value{interp.FloatValue(-7.5), interp.FloatValue(0)}, interp.FloatValue(float32(math.Inf(-1)))},
		{"dmul", "(DD)D", []byte{0x26, 0x28, 0x6B, 0xAF}, []interp.Value{interp.DoubleValue(1.5), interp.DoubleValue(-4)}, interp.DoubleValue(-6)},
		{"dup_x1", "(II)I", []byte{0x1A, 0x1B, 0x5A, 0x64, 0x60, 0xAC}, []interp.Value{interp.IntValue(10), interp.IntValue(3)}, interp.IntValue(10)},
		{"dup2 long", "(J)J", []byte{0x1E, 0x5C, 0x61, 0xAD}, []interp.Value{interp.LongValue(21)}, interp.LongValue(42)},
		{"swap", "(II)I", []byte{0x1A, 0x1B, 0x5F, 0x64, 0xAC}, []interp.Value{interp.IntValue(10), interp.IntValue(3)}, interp.IntValue(-7)},
		{"aconst_null ifnull", "()I", classwriter.NewAsm().Op(0x01).Branch(0xC6, "n").Op(0x03, 0xAC).Label("n").Op(0x04, 0xAC).MustBytes(), nil, interp.IntValue(1)},
		{"return void", "()V", []byte{0xB1}, nil, interp.VoidValue()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := executeMethod(t, tt.desc, tt.code, tt.args...)
			if err != nil {
				t.Fatalf("Invoke: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestControlFlow(t *testing.T) {
	// int sum = 0; for (int i = 0; i < n; i++) sum += i; return sum;
	loop := classwriter.NewAsm().Op(0x03, 0x3C, 0x03, 0x3D)
	loop.Label("L").Op(0x1C, 0x1A).Branch(0xA2, "E")
	loop.Op(0x1B, 0x1C, 0x60, 0x3C, 0x84, 0x02, 0x01).Branch(0xA7, "L")
	loop.Label("E").Op(0x1B, 0xAC)

	table := classwriter.NewAsm().Op(0x1A).TableSwitch("d", 5, "a", "b")
	table.Label("a").Op(0x04, 0xAC)
	table.Label("b").Op(0x05, 0xAC)
	table.Label("d").Op(0x02, 0xAC)

	lookup := classwriter.NewAsm().Op(0x1A).LookupSwitch("d", []int32{-100, 100000}, []string{"a", "b"})
	lookup.Label("a").Op(0x04, 0xAC)
	lookup.Label("b").Op(0x05, 0xAC)
	lookup.Label("d").Op(0x03, 0xAC)

	tests := []struct {
		name string
		code []byte
		in   int32
		want int32
	}{
		{"loop 0", loop.MustBytes(), 0, 0},
		{"loop 10", loop.MustBytes(), 10, 45},
		{"tableswitch low", table.MustBytes(), 5, 1},
		{"tableswitch high", table.MustBytes(), 6, 2},
		{"tableswitch default", table.MustBytes(), 4, -1},
		{"lookupswitch hit", lookup.MustBytes(), 100000, 2},
		{"lookupswitch negative", lookup.MustBytes(), -100, 1},
		{"lookupswitch miss", lookup.MustBytes(), 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := executeMethod(t, "(I)I", tt.code, interp.IntValue(tt.in))
			if err != nil {
				t.Fatalf("Invoke: %v", err)
			}
			if got.Int32() != tt.want {
				t.Errorf("got %d, want %d", got.Int32(), tt.want)
			}
		})
	}
}

func TestDivideByZero(t *testing.T) {
	for _, tt := range []struct {
		name, desc string
		code       []byte
		args       []interp.Value
	}{
		{"idiv", "(II)I", []byte{0x1A, 0x1B, 0x6C, 0xAC}, []interp.Value{interp.IntValue(1), interp.IntValue(0)}},
		{"lrem", "(JJ)J", []byte{0x1E, 0x20, 0x71, 0xAD}, []interp.Value{interp.LongValue(1), interp.LongValue(0)}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeMethod(t, tt.desc, tt.code, tt.args...)
			if !errors.Is(err, interp.ErrArithmetic) {
				t.Fatalf("got %v, want ErrArithmetic", err)
			}
			var je *interp.JavaException
			if !errors.As(err, &je) || je.ClassName != "java/lang/ArithmeticException" {
				t.Errorf("got %v, want a JavaException", err)
			}
		})
	}
}

func TestStaticInitialization(t *testing.T) {
	base := classwriter.New("Base", "java/lang/Object")
	x := base.Fieldref("Base", "x", "I")
	base.AddField(classfile.AccStatic, "x", "I", 0)
	// x += 5
	base.AddMethod(classfile.AccStatic, "<clinit>", "()V",
		code(classwriter.NewAsm().Op(0xB2).U16(x).Op(0x08, 0x60, 0xB3).U16(x).Op(0xB1).MustBytes()))

	derived := classwriter.New("Derived", "Base")
	bx := derived.Fieldref("Base", "x", "I")
	y := derived.Fieldref("Derived", "y", "I")
	derived.AddField(classfile.AccStatic|classfile.AccFinal, "y", "I", 0)
	derived.AddField(classfile.AccStatic|classfile.AccFinal, "K", "J", derived.Long(9))
	// y = Base.x * 2
	derived.AddMethod(classfile.AccStatic, "<clinit>", "()V",
		code(classwriter.NewAsm().Op(0xB2).U16(bx).Op(0x05, 0x68, 0xB3).U16(y).Op(0xB1).MustBytes()))
	derived.AddMethod(pubStatic, "get", "()I", code(classwriter.NewAsm().Op(0xB2).U16(y).Op(0xAC).MustBytes()))

	vm := newVM(t, parse(t, base), parse(t, derived))
	for i := 0; i < 2; i++ {
		got, err := vm.Invoke("Derived", "get", "()I")
		if err != nil {
			t.Fatalf("Invoke: %v", err)
		}
		if got.Int32() != 10 {
			t.Errorf("call %d: got %v, want 10", i, got)
		}
	}
	if got, err := vm.Static("Base", "x", "I"); err != nil || got.Int32() != 5 {
		t.Errorf("Base.x: got %v, %v, want 5", got, err)
	}
	if got, err := vm.Static("Derived", "K", "J"); err != nil || got != interp.LongValue(9) {
		t.Errorf("Derived.K: got %v, %v, want 9", got, err)
	}
}

func TestInvokeErrors(t *testing.T) {
	w := classwriter.New("T", "java/lang/Object")
	self := w.Methodref("T", "spin", "()V")
	w.AddMethod(pubStatic, "spin", "()V", code(classwriter.NewAsm().Op(0xB8).U16(self).Op(0xB1).MustBytes()))
	w.AddMethod(pubStatic, "id", "(I)I", code([]byte{0x1A, 0xAC}))
	w.AddMethod(classfile.AccPublic, "inst", "()V", code([]byte{0xB1}))
	w.AddMethod(pubStatic, "under", "()I", code([]byte{0x60, 0xAC}))
	w.AddMethod(pubStatic, "off", "()V", code([]byte{0x00}))
	missing := w.Methodref("U", "gone", "()V")
	w.AddMethod(pubStatic, "dangling", "()V", code(classwriter.NewAsm().Op(0xB8).U16(missing).Op(0xB1).MustBytes()))
	vm := newVM(t, parse(t, w))

	tests := []struct {
		name, method, desc string
		args               []interp.Value
		want               error
	}{
		{"recursion", "spin", "()V", nil, interp.ErrStackOverflow},
		{"missing method", "nope", "()V", nil, interp.ErrNoSuchMethod},
		{"instance method", "inst", "()V", nil, interp.ErrNoSuchMethod},
		{"argument count", "id", "(I)I", nil, interp.ErrBadArguments},
		{"argument kind", "id", "(I)I", []interp.Value{interp.LongValue(1)}, interp.ErrBadArguments},
		{"stack underflow", "under", "()I", nil, interp.ErrMalformed},
		{"falls off the end", "off", "()V", nil, interp.ErrMalformed},
		{"unresolved call", "dangling", "()V", nil, interp.ErrUnresolved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := vm.Invoke("T", tt.method, tt.desc, tt.args...)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := vm.Invoke("Nope", "f", "()V"); !errors.Is(err, interp.ErrUnresolved) {
		t.Errorf("unknown class: got %v, want ErrUnresolved", err)
	}
}

func TestParseArgs(t *testing.T) {
	got, err := interp.ParseArgs("(IJFDLjava/lang/String;)V", []string{"0x10", "-3", "1.5", "2.25", "null"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	want := []interp.Value{
		interp.IntValue(16), interp.LongValue(-3), interp.FloatValue(1.5), interp.DoubleValue(2.25), interp.NullValue(),
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("arg %d: got %v, want %v", i, got[i], want[i])
		}
	}

	for _, bad := range [][]string{{"1"}, {"x", "1", "1", "1", "null"}, {"1", "1", "1", "1", "obj"}} {
		if _, err := interp.ParseArgs("(IJFDLjava/lang/String;)V", bad); !errors.Is(err, interp.ErrBadArguments) {
			t.Errorf("ParseArgs(%q): got %v, want ErrBadArguments", bad, err)
		}
	}
}
