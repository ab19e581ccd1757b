package tabular

import (
	"math"
	"sort"
)

// defined returns the non-NaN entries of values, preserving order.
func defined(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// Normalize min-max scales values into [0, 1]. NaN entries stay NaN. When
// no values are defined, or min equals max, every output entry is NaN.
func Normalize(values []float64) []float64 {
	out := make([]float64, len(values))
	lo, hi := math.NaN(), math.NaN()
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(lo) || v < lo {
			lo = v
		}
		if math.IsNaN(hi) || v > hi {
			hi = v
		}
	}
	if math.IsNaN(lo) || lo == hi {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	span := hi - lo
	for i, v := range values {
		out[i] = (v - lo) / span
	}
	return out
}

// Quantile returns the p-quantile of the defined values using linear
// interpolation between order statistics. p is clamped to [0, 1]. No
// defined values yields NaN.
func Quantile(values []float64, p float64) float64 {
	vals := defined(values)
	if len(vals) == 0 {
		return math.NaN()
	}
	sort.Float64s(vals)
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	pos := p * float64(len(vals)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return vals[lo]
	}
	return vals[lo] + (pos-float64(lo))*(vals[hi]-vals[lo])
}

// Median returns the 0.5 quantile of the defined values.
func Median(values []float64) float64 { return Quantile(values, 0.5) }

// Mean averages the defined values. No defined values yields NaN.
func Mean(values []float64) float64 {
	sum, n := 0.0, 0
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// Max returns the largest defined value, or NaN when none are defined.
func Max(values []float64) float64 {
	best := math.NaN()
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(best) || v > best {
			best = v
		}
	}
	return best
}

// SampleStd returns the sample standard deviation (n-1 denominator) of the
// defined values. Fewer than two defined values yields NaN.
func SampleStd(values []float64) float64 {
	vals := defined(values)
	if len(vals) < 2 {
		return math.NaN()
	}
	mean := 0.0
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	var ss float64
	for _, v := range vals {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(vals)-1))
}
