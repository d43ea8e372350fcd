package engine

import "math"

// addAmount returns a+b, or false when the sum does not fit in an int64.
func addAmount(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}

// negateAmount returns -a, or false for math.MinInt64.
func negateAmount(a int64) (int64, bool) {
	if a == math.MinInt64 {
		return 0, false
	}
	return -a, true
}
