// Package safemath guards every numeric value that crosses from exchange data
// into engine state. Degenerate operands (NaN, ±Inf, absurd magnitudes) come
// out as a conservative zero plus a degraded flag instead of poisoning
// downstream arithmetic or panicking.
package safemath

import (
	"math"

	"trend-grid-bot-go/internal/logger"
)

// MaxMagnitude is the sane band for any price/quantity-like value. Anything
// beyond it is treated as corrupt exchange data.
const MaxMagnitude = 1e10

// Sane reports whether v is finite and within the sane magnitude band.
func Sane(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && math.Abs(v) <= MaxMagnitude
}

// Percent returns part/whole*100. Degraded inputs or a zero whole yield
// (0, true) and a single warning.
func Percent(part, whole float64) (float64, bool) {
	if !Sane(part) || !Sane(whole) || whole == 0 {
		warn("percent", part, whole)
		return 0, true
	}
	v := part / whole * 100
	if !Sane(v) {
		warn("percent", part, whole)
		return 0, true
	}
	return v, false
}

// Ratio returns num/den with the same degradation contract as Percent.
func Ratio(num, den float64) (float64, bool) {
	if !Sane(num) || !Sane(den) || den == 0 {
		warn("ratio", num, den)
		return 0, true
	}
	v := num / den
	if !Sane(v) {
		warn("ratio", num, den)
		return 0, true
	}
	return v, false
}

// Product returns a*b, degrading to 0 when either operand or the result
// leaves the sane band.
func Product(a, b float64) (float64, bool) {
	if !Sane(a) || !Sane(b) {
		warn("product", a, b)
		return 0, true
	}
	v := a * b
	if !Sane(v) {
		warn("product", a, b)
		return 0, true
	}
	return v, false
}

// Clamp pins v into [lo, hi]. A degraded v clamps to lo.
func Clamp(v, lo, hi float64) (float64, bool) {
	if !Sane(v) {
		warn("clamp", v, 0)
		return lo, true
	}
	if v < lo {
		return lo, false
	}
	if v > hi {
		return hi, false
	}
	return v, false
}

func warn(op string, a, b float64) {
	logger.S().Warnw("degraded numeric input, substituting default",
		"op", op, "a", a, "b", b)
}
