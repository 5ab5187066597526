package jp2view

import "golang.org/x/exp/constraints"

func clamp[T constraints.Integer](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ceilDiv returns ceil(a / b) for a >= 0, b > 0.
func ceilDiv[T constraints.Integer](a, b T) T {
	return (a + b - 1) / b
}
