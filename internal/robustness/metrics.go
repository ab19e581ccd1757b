// Package robustness implements the country-year risk scoring pipeline:
// composite alignment, guardrail and stress indices over configured metric
// columns, party-signal aggregation with a backward as-of join, trend
// estimation on the alignment index, quantile threshold calibration, and
// the final sigmoid risk score with its flags and band.
package robustness

import (
	"math"

	"github.com/civimetric/robustness-cli/internal/tabular"
)

// MetricTable holds every derived series the calibrator and scorer consume,
// one entry per country-year row, sorted by (iso3, year).
type MetricTable struct {
	ISO3 []string
	Year []int

	A []float64
	G []float64
	S []float64

	MRaw []float64
	PRaw []float64
	VRaw []float64

	M           []float64
	P           []float64
	SNorm       []float64
	MP          []float64
	TrendSlope  []float64
	Decline     []float64
	DeclineNorm []float64

	AlignmentCols []string
	GuardrailCols []string
	StressCols    []string
}

// Len returns the number of country-year rows.
func (m *MetricTable) Len() int { return len(m.ISO3) }

// BuildMetricTable runs the full derivation chain over a country-year table
// and an optional party-year table. The country table is sorted by
// (iso3, year) in place; party may be nil.
func BuildMetricTable(country *tabular.Table, party *tabular.Table, cfg Config) (*MetricTable, error) {
	country.SortByCountryYear()

	a, aCols, err := BuildIndex(country, cfg.AlignmentMetrics, OrientationGood)
	if err != nil {
		return nil, err
	}
	g, gCols, err := BuildIndex(country, cfg.GuardrailMetrics, OrientationGood)
	if err != nil {
		return nil, err
	}
	s, sCols, err := BuildIndex(country, cfg.StressMetrics, OrientationBad)
	if err != nil {
		return nil, err
	}

	signals := BuildPartySignals(party, cfg.VParty)
	joined := AsofJoin(country.ISO3, country.Year, signals, []string{
		ColMassRaw, ColPolarizationRaw, ColViolenceRaw,
	})
	mRaw, pRaw, vRaw := joined[0], joined[1], joined[2]

	slopes := TrendSlopes(country.ISO3, country.Year, a, cfg.HorizonYears)
	decline := make([]float64, len(slopes))
	for i, v := range slopes {
		decline[i] = math.Max(0, -v)
	}

	m := &MetricTable{
		ISO3:          country.ISO3,
		Year:          country.Year,
		A:             a,
		G:             g,
		S:             s,
		MRaw:          mRaw,
		PRaw:          pRaw,
		VRaw:          vRaw,
		M:             tabular.Normalize(mRaw),
		P:             tabular.Normalize(pRaw),
		SNorm:         tabular.Normalize(s),
		TrendSlope:    slopes,
		Decline:       decline,
		DeclineNorm:   tabular.Normalize(decline),
		AlignmentCols: aCols,
		GuardrailCols: gCols,
		StressCols:    sCols,
	}
	m.MP = make([]float64, m.Len())
	for i := range m.MP {
		m.MP[i] = m.M[i] * m.P[i]
	}
	return m, nil
}
