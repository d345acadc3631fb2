package interp_test

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/daimatz/jvm2wasm/pkg/bytecode"
	"github.com/daimatz/jvm2wasm/pkg/classfile"
	"github.com/daimatz/jvm2wasm/pkg/classfile/classwriter"
	"github.com/daimatz/jvm2wasm/pkg/interp"
	"github.com/daimatz/jvm2wasm/pkg/link"
)

type program struct {
	name, desc string
	inputs     [][]interp.Value
}

// programs assembles the class Prog. Every method is public and static, so
// each is exported as Prog.<name>.
func programs(t *testing.T) (*classfile.ClassFile, []program) {
	w := classwriter.New("Prog", "java/lang/Object")
	var progs []program
	add := func(name, desc string, a *classwriter.Asm, inputs ...[]interp.Value) {
		w.AddMethod(pubStatic, name, desc, code(a.MustBytes()))
		progs = append(progs, program{name, desc, inputs})
	}
	ints := func(vs ...int32) [][]interp.Value {
		var out [][]interp.Value
		for _, v := range vs {
			out = append(out, []interp.Value{interp.IntValue(v)})
		}
		return out
	}

	// sum of 0..n-1
	a := classwriter.NewAsm().Op(0x03, 0x3C, 0x03, 0x3D)
	a.Label("L").Op(0x1C, 0x1A).Branch(0xA2, "E")
	a.Op(0x1B, 0x1C, 0x60, 0x3C, 0x84, 0x02, 0x01).Branch(0xA7, "L")
	a.Label("E").Op(0x1B, 0xAC)
	add("sum", "(I)I", a, ints(0, 1, 10, 1000, -3)...)

	a = classwriter.NewAsm().Op(0x1A).TableSwitch("d", -1, "a", "b", "c")
	a.Label("a").Op(0x10, 10, 0xAC)
	a.Label("b").Op(0x10, 20, 0xAC)
	a.Label("c").Op(0x10, 30, 0xAC)
	a.Label("d").Op(0x10, 40, 0xAC)
	add("classify", "(I)I", a, ints(-2, -1, 0, 1, 2, math.MinInt32)...)

	a = classwriter.NewAsm().Op(0x1A).LookupSwitch("d", []int32{-1000, 3, 70000}, []string{"a", "b", "c"})
	a.Label("a").Op(0x04, 0xAC)
	a.Label("b").Op(0x05, 0xAC)
	a.Label("c").Op(0x06, 0xAC)
	a.Label("d").Op(0x03, 0xAC)
	add("sparse", "(I)I", a, ints(-1000, 3, 4, 70000, 69999)...)

	// steps for n to reach 1 under the Collatz map
	a = classwriter.NewAsm().Op(0x03, 0x3D)
	a.Label("L").Op(0x1E, 0x0A, 0x94).Branch(0x9E, "E")
	a.Op(0x1E, 0x0A, 0x7F, 0x09, 0x94).Branch(0x99, "even")
	a.Op(0x1E, 0x04, 0x79, 0x1E, 0x61, 0x0A, 0x61, 0x3F).Branch(0xA7, "inc")
	a.Label("even").Op(0x1E, 0x04, 0x7B, 0x3F)
	a.Label("inc").Op(0x84, 0x02, 0x01).Branch(0xA7, "L")
	a.Label("E").Op(0x1C, 0xAC)
	var longs [][]interp.Value
	for _, n := range []int64{1, 2, 7, 27, 1 << 40} {
		longs = append(longs, []interp.Value{interp.LongValue(n)})
	}
	add("collatz", "(J)I", a, longs...)

	// fcmpl(f, 1) + (int) d
	a = classwriter.NewAsm().Op(0x22, 0x0C, 0x95, 0x87, 0x27, 0x8E, 0x87, 0x63, 0xAF)
	nan := math.NaN()
	add("mix", "(FD)D", a,
		[]interp.Value{interp.FloatValue(float32(nan)), interp.DoubleValue(1e20)},
		[]interp.Value{interp.FloatValue(2), interp.DoubleValue(-3.5)},
		[]interp.Value{interp.FloatValue(1), interp.DoubleValue(nan)},
		[]interp.Value{interp.FloatValue(0.5), interp.DoubleValue(math.Inf(-1))},
	)

	// 5 * (n >= 0 ? 1 : -1)
	a = classwriter.NewAsm().Op(0x08, 0x1A).Branch(0x9C, "A").Op(0x02).Branch(0xA7, "B")
	a.Label("A").Op(0x04)
	a.Label("B").Op(0x68, 0xAC)
	add("sign", "(I)I", a, ints(-9, 0, 9)...)

	// a / b + a % b
	a = classwriter.NewAsm().Op(0x1A, 0x1B, 0x6C, 0x1A, 0x1B, 0x70, 0x60, 0xAC)
	add("divide", "(II)I", a,
		[]interp.Value{interp.IntValue(7), interp.IntValue(2)},
		[]interp.Value{interp.IntValue(-7), interp.IntValue(2)},
		[]interp.Value{interp.IntValue(math.MinInt32), interp.IntValue(-1)},
		[]interp.Value{interp.IntValue(1), interp.IntValue(0)},
	)

	// pairs i > j with (i + j) % 3 == 0, stopping once more than 50 are found
	a = classwriter.NewAsm().Op(0x03, 0x3C, 0x03, 0x3D)
	a.Label("OL").Op(0x1C, 0x1A).Branch(0xA2, "END")
	a.Op(0x03, 0x3E)
	a.Label("IL").Op(0x1D, 0x1C).Branch(0xA2, "NEXT")
	a.Op(0x1C, 0x1D, 0x60, 0x06, 0x70).Branch(0x9A, "SKIP")
	a.Op(0x84, 0x01, 0x01, 0x1B, 0x10, 50).Branch(0xA3, "END")
	a.Label("SKIP").Op(0x84, 0x03, 0x01).Branch(0xA7, "IL")
	a.Label("NEXT").Op(0x84, 0x02, 0x01).Branch(0xA7, "OL")
	a.Label("END").Op(0x1B, 0xAC)
	add("pairs", "(I)I", a, ints(0, 1, 5, 20, 100)...)

	// (x + x) << 3 ^ x >>> 2
	a = classwriter.NewAsm().Op(0x1E, 0x5C, 0x61, 0x06, 0x79, 0x1E, 0x05, 0x7D, 0x83, 0xAD)
	longs = nil
	for _, n := range []int64{1, -1, 1 << 62, 12345} {
		longs = append(longs, []interp.Value{interp.LongValue(n)})
	}
	add("mixLong", "(J)J", a, longs...)

	// statics: total starts at 100 and run(n) adds n and 2n
	total := w.Fieldref("Prog", "total", "I")
	addTo := w.Methodref("Prog", "addTo", "(I)V")
	w.AddField(classfile.AccStatic, "total", "I", 0)
	w.AddMethod(classfile.AccStatic, "<clinit>", "()V",
		code(classwriter.NewAsm().Op(0x10, 100, 0xB3).U16(total).Op(0xB1).MustBytes()))
	add("addTo", "(I)V", classwriter.NewAsm().Op(0xB2).U16(total).Op(0x1A, 0x60, 0xB3).U16(total).Op(0xB1))
	a = classwriter.NewAsm().Op(0x1A, 0xB8).U16(addTo).Op(0x1A, 0x05, 0x68, 0xB8).U16(addTo)
	a.Op(0xB2).U16(total).Op(0xAC)
	add("run", "(I)I", a, ints(0, 5, -100)...)

	cf, err := classfile.ParseBytes(w.MustBytes())
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	return cf, progs
}

func encode(v interp.Value) uint64 {
	switch v.Kind {
	case bytecode.Long:
		return api.EncodeI64(v.I)
	case bytecode.Float:
		return api.EncodeF32(v.Float32())
	case bytecode.Double:
		return api.EncodeF64(v.F)
	}
	return api.EncodeI32(v.Int32())
}

func decode(k bytecode.Kind, r []uint64) interp.Value {
	if k == bytecode.Void {
		return interp.VoidValue()
	}
	switch k {
	case bytecode.Long:
		return interp.LongValue(int64(r[0]))
	case bytecode.Float:
		return interp.FloatValue(api.DecodeF32(r[0]))
	case bytecode.Double:
		return interp.DoubleValue(api.DecodeF64(r[0]))
	}
	return interp.IntValue(api.DecodeI32(r[0]))
}

func returnKind(t *testing.T, desc string) bytecode.Kind {
	d, err := classfile.ParseMethodDescriptor(desc)
	if err != nil {
		t.Fatal(err)
	}
	return bytecode.KindOf(d.Return)
}

// TestDifferential runs every program in the interpreter and as a linked
// module, each from a fresh state, and expects the same outcome.
func TestDifferential(t *testing.T) {
	cf, progs := programs(t)
	mod, _, err := link.Link([]*classfile.ClassFile{cf}, link.DefaultOptions())
	if err != nil {
		t.Fatalf("Link: %v", err)
	}

	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)
	compiled, err := rt.CompileModule(ctx, mod.Encode())
	if err != nil {
		t.Fatalf("CompileModule: %v", err)
	}

	n := 0
	for _, p := range progs {
		for _, in := range p.inputs {
			t.Run(fmt.Sprintf("%s%v", p.name, in), func(t *testing.T) {
				vm, err := interp.New([]*classfile.ClassFile{cf})
				if err != nil {
					t.Fatal(err)
				}
				want, interpErr := vm.Invoke("Prog", p.name, p.desc, in...)

				n++
				inst, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(fmt.Sprintf("prog%d", n)))
				if err != nil {
					t.Fatalf("InstantiateModule: %v", err)
				}
				defer inst.Close(ctx)
				args := make([]uint64, len(in))
				for i, v := range in {
					args[i] = encode(v)
				}
				res, wasmErr := inst.ExportedFunction("Prog."+p.name).Call(ctx, args...)

				switch {
				case interpErr != nil && wasmErr != nil:
					return
				case interpErr != nil:
					t.Fatalf("interpreter failed with %v, module returned %v", interpErr, res)
				case wasmErr != nil:
					t.Fatalf("module trapped with %v, interpreter returned %v", wasmErr, want)
				}
				if got := decode(returnKind(t, p.desc), res); got != want {
					t.Errorf("module: got %v, interpreter: %v", got, want)
				}
			})
		}
	}
}
