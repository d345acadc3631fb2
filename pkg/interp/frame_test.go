package interp

import (
	"math"
	"testing"

	"github.com/daimatz/jvm2wasm/pkg/bytecode"
)

func TestFramePushPop(t *testing.T) {
	t.Run("LIFO order", func(t *testing.T) {
		frame := NewFrame(0, 10)

		frame.Push(IntValue(10))
		frame.Push(LongValue(20))
		frame.Push(IntValue(30))

		for _, want := range []Value{IntValue(30), LongValue(20), IntValue(10)} {
			if v := frame.Pop(); v != want {
				t.Errorf("Pop: got %v, want %v", v, want)
			}
		}
	})

	t.Run("kinds bottom first", func(t *testing.T) {
		frame := NewFrame(0, 10)
		frame.Push(DoubleValue(1))
		frame.Push(NullValue())
		got := frame.Kinds()
		if len(got) != 2 || got[0] != bytecode.Double || got[1] != bytecode.Ref {
			t.Errorf("got %v, want [double ref]", got)
		}
	})
}

func TestFramePanics(t *testing.T) {
	tests := []struct {
		name string
		fn   func(f *Frame)
	}{
		{"underflow", func(f *Frame) { f.Pop() }},
		{"overflow", func(f *Frame) { f.Push(IntValue(1)); f.Push(IntValue(2)) }},
		{"wrong kind", func(f *Frame) { f.Push(IntValue(1)); f.PopKind(bytecode.Long) }},
		{"local out of range", func(f *Frame) { f.GetLocal(3) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if _, ok := recover().(stackError); !ok {
					t.Errorf("expected a stackError panic")
				}
			}()
			tt.fn(NewFrame(2, 1))
		})
	}
}

func TestConvert(t *testing.T) {
	nan := math32NaN()
	tests := []struct {
		name string
		in   Value
		to   bytecode.Kind
		want Value
	}{
		{"i2l", IntValue(-1), bytecode.Long, LongValue(-1)},
		{"l2i", LongValue(1<<32 + 5), bytecode.Int, IntValue(5)},
		{"f2i NaN", FloatValue(nan), bytecode.Int, IntValue(0)},
		{"f2i large", FloatValue(3e9), bytecode.Int, IntValue(2147483647)},
		{"d2i small", DoubleValue(-1e300), bytecode.Int, IntValue(-2147483648)},
		{"d2l inf", DoubleValue(math.Inf(1)), bytecode.Long, LongValue(9223372036854775807)},
		{"d2i truncates", DoubleValue(-2.9), bytecode.Int, IntValue(-2)},
		{"l2f", LongValue(1<<53 + 1), bytecode.Float, FloatValue(float32(int64(1<<53 + 1)))},
		{"i2d", IntValue(7), bytecode.Double, DoubleValue(7)},
		{"d2f", DoubleValue(0.1), bytecode.Float, FloatValue(0.1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := convert(tt.in, tt.to); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	nan := DoubleValue(float64(math32NaN()))
	tests := []struct {
		name string
		a, b Value
		nan  int8
		want int32
	}{
		{"lcmp lt", LongValue(-5), LongValue(3), 0, -1},
		{"lcmp eq", LongValue(3), LongValue(3), 0, 0},
		{"dcmpl NaN", nan, DoubleValue(1), -1, -1},
		{"dcmpg NaN", DoubleValue(1), nan, 1, 1},
		{"dcmpg gt", DoubleValue(2), DoubleValue(1), 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := compare(tt.a, tt.b, tt.nan); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func math32NaN() float32 { return float32(math.NaN()) }
