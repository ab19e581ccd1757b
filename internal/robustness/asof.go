package robustness

import (
	"math"
	"sort"

	"github.com/civimetric/robustness-cli/internal/tabular"
)

// AsofJoin attaches, for each (iso3, year) pair, the named signal columns
// from the most recent signal row of the same country with signal year <=
// the row year. Rows with no match get NaN in every column. The result has
// one slice per requested column, each len(iso3) long, so the join never
// drops or duplicates rows. Matching is per country; other countries'
// signals are never consulted.
func AsofJoin(iso3 []string, years []int, signals *tabular.Table, columns []string) [][]float64 {
	out := make([][]float64, len(columns))
	for c := range out {
		out[c] = make([]float64, len(iso3))
		for i := range out[c] {
			out[c][i] = math.NaN()
		}
	}
	if signals == nil || signals.Len() == 0 {
		return out
	}

	type entry struct {
		year int
		row  int
	}
	byCountry := map[string][]entry{}
	for i := 0; i < signals.Len(); i++ {
		byCountry[signals.ISO3[i]] = append(byCountry[signals.ISO3[i]], entry{signals.Year[i], i})
	}
	for _, entries := range byCountry {
		sort.Slice(entries, func(a, b int) bool { return entries[a].year < entries[b].year })
	}

	cols := make([][]float64, len(columns))
	for c, name := range columns {
		cols[c] = signals.Column(name)
	}

	for i, code := range iso3 {
		entries := byCountry[code]
		// Largest signal year <= the row year.
		pos := sort.Search(len(entries), func(j int) bool { return entries[j].year > years[i] })
		if pos == 0 {
			continue
		}
		match := entries[pos-1].row
		for c := range columns {
			if cols[c] == nil {
				continue
			}
			out[c][i] = cols[c][match]
		}
	}
	return out
}
