package robustness

import "math"

// TrendSlopes computes, for every row, the linear rate of change of value
// over the trailing window of years ending at that row's year. Rows must be
// sorted by (iso3, year); each country is treated independently. Within the
// window only the country's defined values count. Fewer than 3 distinct
// defined years yields a slope of exactly 0.0, otherwise the slope is
// (last.value - first.value) / (last.year - first.year) over the
// chronologically first and last defined rows, with 0.0 when the two years
// coincide.
func TrendSlopes(iso3 []string, years []int, values []float64, window int) []float64 {
	out := make([]float64, len(iso3))
	start := 0
	for start < len(iso3) {
		end := start
		for end < len(iso3) && iso3[end] == iso3[start] {
			end++
		}
		for i := start; i < end; i++ {
			out[i] = windowSlope(years[start:end], values[start:end], years[i], window)
		}
		start = end
	}
	return out
}

func windowSlope(years []int, values []float64, endYear, window int) float64 {
	lo := endYear - window + 1
	first, last := -1, -1
	distinct := map[int]struct{}{}
	for i, y := range years {
		if y < lo || y > endYear || math.IsNaN(values[i]) {
			continue
		}
		if first == -1 || y < years[first] {
			first = i
		}
		if last == -1 || y >= years[last] {
			last = i
		}
		distinct[y] = struct{}{}
	}
	if len(distinct) < 3 {
		return 0.0
	}
	dy := years[last] - years[first]
	if dy == 0 {
		return 0.0
	}
	return (values[last] - values[first]) / float64(dy)
}
