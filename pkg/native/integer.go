package native

import (
	"math"
	"math/bits"
)

func init() {
	register("java/lang/Integer", map[string]Func{
		"compare(II)I": binary(i32, i32, i32, compare[int32]),
		"signum(I)I":   unary(i32, i32, func(a int32) int32 { return compare(a, 0) }),
		"bitCount(I)I": unary(i32, i32, func(a int32) int32 { return int32(bits.OnesCount32(uint32(a))) }),
		"reverse(I)I":  unary(i32, i32, func(a int32) int32 { return int32(bits.Reverse32(uint32(a))) }),
		"reverseBytes(I)I": unary(i32, i32, func(a int32) int32 {
			return int32(bits.ReverseBytes32(uint32(a)))
		}),
		"numberOfLeadingZeros(I)I": unary(i32, i32, func(a int32) int32 {
			return int32(bits.LeadingZeros32(uint32(a)))
		}),
		"numberOfTrailingZeros(I)I": unary(i32, i32, func(a int32) int32 {
			return int32(bits.TrailingZeros32(uint32(a)))
		}),
		"rotateLeft(II)I": binary(i32, i32, i32, func(a, n int32) int32 {
			return int32(bits.RotateLeft32(uint32(a), int(n&31)))
		}),
		"rotateRight(II)I": binary(i32, i32, i32, func(a, n int32) int32 {
			return int32(bits.RotateLeft32(uint32(a), -int(n&31)))
		}),
		"highestOneBit(I)I": unary(i32, i32, func(a int32) int32 {
			if a == 0 {
				return 0
			}
			return int32(uint32(1) << (31 - bits.LeadingZeros32(uint32(a))))
		}),
		"lowestOneBit(I)I": unary(i32, i32, func(a int32) int32 { return a & -a }),
		"max(II)I":         binary(i32, i32, i32, maxInt[int32]),
		"min(II)I":         binary(i32, i32, i32, minInt[int32]),
		"sum(II)I":         binary(i32, i32, i32, func(a, b int32) int32 { return a + b }),
		"divideUnsigned(II)I": checked(i32, i32, i32, func(a, b int32) (int32, error) {
			if b == 0 {
				return 0, arithmetic("/ by zero")
			}
			return int32(uint32(a) / uint32(b)), nil
		}),
		"compareUnsigned(II)I": binary(i32, i32, i32, func(a, b int32) int32 {
			return compare(uint32(a), uint32(b))
		}),
	})

	register("java/lang/Long", map[string]Func{
		"compare(JJ)I": binary(i64, i64, i32, compare[int64]),
		"signum(J)I":   unary(i64, i32, func(a int64) int32 { return compare(a, 0) }),
		"bitCount(J)I": unary(i64, i32, func(a int64) int32 { return int32(bits.OnesCount64(uint64(a))) }),
		"reverse(J)J":  unary(i64, i64, func(a int64) int64 { return int64(bits.Reverse64(uint64(a))) }),
		"numberOfLeadingZeros(J)I": unary(i64, i32, func(a int64) int32 {
			return int32(bits.LeadingZeros64(uint64(a)))
		}),
		"numberOfTrailingZeros(J)I": unary(i64, i32, func(a int64) int32 {
			return int32(bits.TrailingZeros64(uint64(a)))
		}),
		"rotateLeft(JI)J": binary(i64, i32, i64, func(a int64, n int32) int64 {
			return int64(bits.RotateLeft64(uint64(a), int(n&63)))
		}),
		"max(JJ)J": binary(i64, i64, i64, maxInt[int64]),
		"min(JJ)J": binary(i64, i64, i64, minInt[int64]),
		"sum(JJ)J": binary(i64, i64, i64, func(a, b int64) int64 { return a + b }),
	})

	register("java/lang/Float", map[string]Func{
		"floatToRawIntBits(F)I": unary(f32, i32, func(a float32) int32 { return int32(math.Float32bits(a)) }),
		"floatToIntBits(F)I": unary(f32, i32, func(a float32) int32 {
			if math.IsNaN(float64(a)) {
				return 0x7fc00000
			}
			return int32(math.Float32bits(a))
		}),
		"intBitsToFloat(I)F": unary(i32, f32, func(a int32) float32 { return math.Float32frombits(uint32(a)) }),
		"isNaN(F)Z":          unary(f32, z, func(a float32) bool { return math.IsNaN(float64(a)) }),
		"compare(FF)I":       binary(f32, f32, i32, func(a, b float32) int32 { return compareFloat(float64(a), float64(b)) }),
	})

	register("java/lang/Double", map[string]Func{
		"doubleToRawLongBits(D)J": unary(f64, i64, func(a float64) int64 { return int64(math.Float64bits(a)) }),
		"doubleToLongBits(D)J": unary(f64, i64, func(a float64) int64 {
			if math.IsNaN(a) {
				return 0x7ff8000000000000
			}
			return int64(math.Float64bits(a))
		}),
		"longBitsToDouble(J)D": unary(i64, f64, func(a int64) float64 { return math.Float64frombits(uint64(a)) }),
		"isNaN(D)Z":            unary(f64, z, math.IsNaN),
		"compare(DD)I":         binary(f64, f64, i32, compareFloat),
	})
}

func compare[T int32 | int64 | uint32](a, b T) int32 {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// compareFloat orders -0.0 below 0.0 and NaN above everything, equal to
// itself.
func compareFloat(a, b float64) int32 {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	ab, bb := math.Float64bits(a), math.Float64bits(b)
	if math.IsNaN(a) {
		ab = 0x7ff8000000000000
	}
	if math.IsNaN(b) {
		bb = 0x7ff8000000000000
	}
	return compare(int64(ab), int64(bb))
}
