package robustness

import (
	"math"

	"github.com/civimetric/robustness-cli/internal/tabular"
)

// Risk band labels, ordered from least to most severe.
const (
	BandLow    = "low"
	BandMedium = "medium"
	BandHigh   = "high"
)

// Assessment is one scored country-year row. JSON tags match the scored
// output table's column names.
type Assessment struct {
	ISO3 string `json:"iso3"`
	Year int    `json:"year"`

	A           NullFloat `json:"A"`
	G           NullFloat `json:"G"`
	M           NullFloat `json:"M"`
	P           NullFloat `json:"P"`
	SNorm       NullFloat `json:"S_norm"`
	DeclineNorm NullFloat `json:"decline_norm"`

	RiskScore NullFloat `json:"risk_score"`
	RiskBand  string    `json:"risk_band"`

	GuardrailBreach bool `json:"guardrail_breach"`
	AlignmentLow    bool `json:"alignment_low"`
	TippingZone     bool `json:"tipping_zone"`
	PercolationRisk bool `json:"percolation_risk"`
	ShockHigh       bool `json:"shock_high"`
	DeclineHigh     bool `json:"decline_high"`
}

// Score applies median fill, the weighted sigmoid risk score and the
// calibrated flags to a computed metric table. Thresholds come from the
// artifact as stored; a flag whose threshold or input is undefined is
// false. MP keeps its raw unfilled value for the percolation flag.
func Score(m *MetricTable, art *Artifact, w Weights) []Assessment {
	a := fillMedian(m.A)
	g := fillMedian(m.G)
	mass := fillMedian(m.M)
	polar := fillMedian(m.P)
	sNorm := fillMedian(m.SNorm)
	decline := fillMedian(m.DeclineNorm)

	guardrailCritical := art.ThresholdValue(ThresholdGuardrailCritical)
	alignmentLow := art.ThresholdValue(ThresholdAlignmentLow)
	mpPercolation := art.ThresholdValue(ThresholdMPPercolation)
	shockHigh := art.ThresholdValue(ThresholdShockHigh)
	declineHigh := art.ThresholdValue(ThresholdDeclineHigh)

	out := make([]Assessment, m.Len())
	for i := range out {
		linear := w.W1Alignment*(1-a[i]) +
			w.W2Guardrails*(1-g[i]) +
			w.W3Mass*mass[i] +
			w.W4Polarization*polar[i] +
			w.W5Stress*sNorm[i] +
			w.W6Trend*decline[i]
		score := sigmoid(linear)

		breach := g[i] < guardrailCritical
		low := a[i] < alignmentLow

		out[i] = Assessment{
			ISO3:            m.ISO3[i],
			Year:            m.Year[i],
			A:               NullFloat(a[i]),
			G:               NullFloat(g[i]),
			M:               NullFloat(mass[i]),
			P:               NullFloat(polar[i]),
			SNorm:           NullFloat(sNorm[i]),
			DeclineNorm:     NullFloat(decline[i]),
			RiskScore:       NullFloat(score),
			RiskBand:        Band(score),
			GuardrailBreach: breach,
			AlignmentLow:    low,
			TippingZone:     breach && low,
			PercolationRisk: m.MP[i] > mpPercolation,
			ShockHigh:       sNorm[i] > shockHigh,
			DeclineHigh:     decline[i] > declineHigh,
		}
	}
	return out
}

// fillMedian replaces NaN entries with the column's median over the defined
// entries. A column with no defined entries comes back unchanged.
func fillMedian(values []float64) []float64 {
	med := tabular.Median(values)
	out := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			out[i] = med
			continue
		}
		out[i] = v
	}
	return out
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Band maps a risk score to its band. Lower bounds are inclusive; an
// undefined score lands in "high".
func Band(score float64) string {
	switch {
	case score < 0.33:
		return BandLow
	case score < 0.66:
		return BandMedium
	default:
		return BandHigh
	}
}
