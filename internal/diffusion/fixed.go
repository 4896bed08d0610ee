package diffusion

import "math/bits"

// Fixed is a Q32.32 fixed-point value.
type Fixed int64

const (
	FixedScale = int64(1) << 32
	PiFixed    = int64(13493037705) // π × 2³²
	PhiFixed   = int64(6949403065)  // φ × 2³²
	One        = FixedScale

	twoPi = 2 * PiFixed

	// Taylor coefficients 1/3!, 1/5!, 1/7! in Q32.32
	inv6    = int64(715827883)
	inv120  = int64(35791394)
	inv5040 = int64(852176)

	indexSalt = int64(123456789)
)

// ToFloat converts a Q32.32 value to float64.
func ToFloat(v Fixed) float64 {
	return float64(v) / float64(FixedScale)
}

// FromFloat converts a float64 to Q32.32, truncating toward zero.
func FromFloat(f float64) Fixed {
	return Fixed(f * float64(FixedScale))
}

// mulQ multiplies two Q32.32 values through a 128-bit intermediate.
func mulQ(a, b int64) int64 {
	neg := (a < 0) != (b < 0)
	ua, ub := abs64(a), abs64(b)
	hi, lo := bits.Mul64(ua, ub)
	r := int64(hi<<32 | lo>>32)
	if neg {
		return -r
	}
	return r
}

func abs64(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}

// sinFixed evaluates x − x³/6 + x⁵/120 − x⁷/5040 after reducing x into [−π, π].
func sinFixed(x int64) int64 {
	x %= twoPi
	if x > PiFixed {
		x -= twoPi
	}
	if x < -PiFixed {
		x += twoPi
	}

	x2 := mulQ(x, x)
	x3 := mulQ(x2, x)
	x5 := mulQ(x3, x2)
	x7 := mulQ(x5, x2)

	return x - mulQ(x3, inv6) + mulQ(x5, inv120) - mulQ(x7, inv5040)
}

// remEuclid returns v mod m in [0, m).
func remEuclid(v, m int64) int64 {
	r := v % m
	if r < 0 {
		r += m
	}
	return r
}
