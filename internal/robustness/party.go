package robustness

import (
	"math"
	"sort"

	"github.com/civimetric/robustness-cli/internal/tabular"
)

// Signal columns produced by BuildPartySignals.
const (
	ColMassRaw         = "m_raw"
	ColPolarizationRaw = "p_raw"
	ColViolenceRaw     = "v_raw"
)

// BuildPartySignals reduces a party-year table to one row per (iso3, year)
// holding three derived signals:
//
//	m_raw = 0.7*max + 0.3*mean of the anti-pluralism column
//	p_raw = sample standard deviation of the populism column
//	v_raw = mean of the violence column
//
// When only one of max and mean is defined, m_raw is that one. When the
// populism column is not configured or not in the table, p_raw falls back
// to the spread of the anti-pluralism column. Any signal whose source
// column is absent is NaN. A nil or empty input yields an empty table,
// sorted output otherwise.
func BuildPartySignals(party *tabular.Table, cfg VPartyConfig) *tabular.Table {
	signals := tabular.New(nil, nil)
	signals.AddColumn(ColMassRaw, nil)
	signals.AddColumn(ColPolarizationRaw, nil)
	signals.AddColumn(ColViolenceRaw, nil)
	if party == nil || party.Len() == 0 {
		return signals
	}

	anti := namedColumn(party, cfg.AntipluralCol)
	popul := namedColumn(party, cfg.PopulCol)
	if popul == nil {
		popul = anti
	}
	viol := namedColumn(party, cfg.ViolenceCol)

	type key struct {
		iso3 string
		year int
	}
	groups := map[key][]int{}
	order := make([]key, 0, party.Len())
	for i := 0; i < party.Len(); i++ {
		k := key{party.ISO3[i], party.Year[i]}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], i)
	}
	sort.Slice(order, func(a, b int) bool {
		if order[a].iso3 != order[b].iso3 {
			return order[a].iso3 < order[b].iso3
		}
		return order[a].year < order[b].year
	})

	iso3 := make([]string, len(order))
	years := make([]int, len(order))
	mass := make([]float64, len(order))
	polar := make([]float64, len(order))
	violence := make([]float64, len(order))
	for i, k := range order {
		rows := groups[k]
		iso3[i] = k.iso3
		years[i] = k.year
		antiVals := gather(anti, rows)
		mass[i] = combineMass(tabular.Max(antiVals), tabular.Mean(antiVals))
		polar[i] = tabular.SampleStd(gather(popul, rows))
		violence[i] = tabular.Mean(gather(viol, rows))
	}

	signals.ISO3 = iso3
	signals.Year = years
	signals.AddColumn(ColMassRaw, mass)
	signals.AddColumn(ColPolarizationRaw, polar)
	signals.AddColumn(ColViolenceRaw, violence)
	return signals
}

// combineMass blends the group max and mean of the anti-pluralism score,
// falling back to whichever is defined.
func combineMass(mx, mn float64) float64 {
	switch {
	case !math.IsNaN(mx) && !math.IsNaN(mn):
		return 0.7*mx + 0.3*mn
	case !math.IsNaN(mx):
		return mx
	default:
		return mn
	}
}

// namedColumn resolves an optional configured column, nil when the name is
// empty or the table lacks it.
func namedColumn(t *tabular.Table, name string) []float64 {
	if name == "" {
		return nil
	}
	return t.Column(name)
}

// gather collects the values of col at the given row indexes. A nil column
// yields all NaN.
func gather(col []float64, rows []int) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		if col == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = col[r]
	}
	return out
}
