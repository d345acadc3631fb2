package native

import "math"

func init() {
	register("java/lang/Math", map[string]Func{
		"abs(I)I": unary(i32, i32, func(a int32) int32 {
			if a < 0 {
				return -a
			}
			return a
		}),
		"abs(J)J": unary(i64, i64, func(a int64) int64 {
			if a < 0 {
				return -a
			}
			return a
		}),
		"abs(F)F": unary(f32, f32, func(a float32) float32 {
			return math.Float32frombits(math.Float32bits(a) &^ (1 << 31))
		}),
		"abs(D)D": unary(f64, f64, math.Abs),

		"max(II)I": binary(i32, i32, i32, maxInt[int32]),
		"min(II)I": binary(i32, i32, i32, minInt[int32]),
		"max(JJ)J": binary(i64, i64, i64, maxInt[int64]),
		"min(JJ)J": binary(i64, i64, i64, minInt[int64]),
		"max(FF)F": binary(f32, f32, f32, func(a, b float32) float32 { return float32(math.Max(float64(a), float64(b))) }),
		"min(FF)F": binary(f32, f32, f32, func(a, b float32) float32 { return float32(math.Min(float64(a), float64(b))) }),
		"max(DD)D": binary(f64, f64, f64, math.Max),
		"min(DD)D": binary(f64, f64, f64, math.Min),

		"floorDiv(II)I": checked(i32, i32, i32, floorDiv[int32]),
		"floorMod(II)I": checked(i32, i32, i32, floorMod[int32]),
		"floorDiv(JJ)J": checked(i64, i64, i64, floorDiv[int64]),
		"floorMod(JJ)J": checked(i64, i64, i64, floorMod[int64]),

		"addExact(II)I": checked(i32, i32, i32, func(a, b int32) (int32, error) {
			s := a + b
			if (a^s)&(b^s) < 0 {
				return 0, arithmetic("integer overflow")
			}
			return s, nil
		}),
		"subtractExact(II)I": checked(i32, i32, i32, func(a, b int32) (int32, error) {
			d := a - b
			if (a^b)&(a^d) < 0 {
				return 0, arithmetic("integer overflow")
			}
			return d, nil
		}),
		"multiplyExact(II)I": checked(i32, i32, i32, func(a, b int32) (int32, error) {
			p := int64(a) * int64(b)
			if p != int64(int32(p)) {
				return 0, arithmetic("integer overflow")
			}
			return int32(p), nil
		}),
		"addExact(JJ)J": checked(i64, i64, i64, func(a, b int64) (int64, error) {
			s := a + b
			if (a^s)&(b^s) < 0 {
				return 0, arithmetic("long overflow")
			}
			return s, nil
		}),

		"sqrt(D)D":   unary(f64, f64, math.Sqrt),
		"cbrt(D)D":   unary(f64, f64, math.Cbrt),
		"pow(DD)D":   binary(f64, f64, f64, math.Pow),
		"hypot(DD)D": binary(f64, f64, f64, math.Hypot),
		"floor(D)D":  unary(f64, f64, math.Floor),
		"ceil(D)D":   unary(f64, f64, math.Ceil),
		"rint(D)D":   unary(f64, f64, math.RoundToEven),
		"exp(D)D":    unary(f64, f64, math.Exp),
		"log(D)D":    unary(f64, f64, math.Log),
		"log10(D)D":  unary(f64, f64, math.Log10),
		"sin(D)D":    unary(f64, f64, math.Sin),
		"cos(D)D":    unary(f64, f64, math.Cos),
		"tan(D)D":    unary(f64, f64, math.Tan),
		"atan2(DD)D": binary(f64, f64, f64, math.Atan2),
		"signum(D)D": unary(f64, f64, signum),
		"round(D)J":  unary(f64, i64, roundLong),
		"round(F)I":  unary(f32, i32, roundInt),

		"toRadians(D)D": unary(f64, f64, func(a float64) float64 { return a / 180 * math.Pi }),
	})
}

type integer interface{ ~int32 | ~int64 }

func maxInt[T integer](a, b T) T { return max(a, b) }

func minInt[T integer](a, b T) T { return min(a, b) }

func floorDiv[T integer](a, b T) (T, error) {
	if b == 0 {
		return 0, arithmetic("/ by zero")
	}
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q, nil
}

func floorMod[T integer](a, b T) (T, error) {
	if b == 0 {
		return 0, arithmetic("/ by zero")
	}
	m := a % b
	if m != 0 && ((m < 0) != (b < 0)) {
		m += b
	}
	return m, nil
}

func signum(a float64) float64 {
	switch {
	case a > 0:
		return 1
	case a < 0:
		return -1
	}
	return a
}

// roundLong rounds half up, with NaN at 0 and saturation at the long range.
func roundLong(a float64) int64 {
	if math.IsNaN(a) {
		return 0
	}
	r := math.Floor(a)
	if a-r >= 0.5 {
		r++
	}
	switch {
	case r >= math.MaxInt64:
		return math.MaxInt64
	case r <= math.MinInt64:
		return math.MinInt64
	}
	return int64(r)
}

func roundInt(a float32) int32 {
	if math.IsNaN(float64(a)) {
		return 0
	}
	r := math.Floor(float64(a))
	if float64(a)-r >= 0.5 {
		r++
	}
	switch {
	case r >= math.MaxInt32:
		return math.MaxInt32
	case r <= math.MinInt32:
		return math.MinInt32
	}
	return int32(r)
}
