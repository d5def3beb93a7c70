package metric

import "math"

// Ratio returns n/d rounded to 4 decimal places. It never fails: the result is
// Unavailable when either side is Unavailable, d is zero or the quotient is
// not finite.
func Ratio(n, d Value) Value {
	return divide(n, d, 1)
}

// Percentage is Ratio scaled by 100 before rounding.
func Percentage(n, d Value) Value {
	return divide(n, d, 100)
}

func divide(n, d Value, scale float64) Value {
	num, ok := n.Float()
	if !ok {
		return Unavailable
	}

	den, ok := d.Float()
	if !ok || den == 0 {
		return Unavailable
	}

	return Of(round4(num / den * scale))
}

func round4(x float64) float64 {
	return math.Round(x*1e4) / 1e4
}
