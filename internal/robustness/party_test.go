package robustness

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civimetric/robustness-cli/internal/tabular"
)

func TestBuildPartySignals(t *testing.T) {
	party := tabular.New([]string{"POL", "POL", "POL", "HUN"}, []int{2020, 2020, 2020, 2019})
	party.AddColumn("v2xpa_antiplural", []float64{0.9, 0.5, 0.1, 0.8})
	party.AddColumn("v2xpa_popul", []float64{0.2, 0.6, 1.0, 0.4})
	party.AddColumn("v2paviol", []float64{0, 0.5, 1, 0.3})

	signals := BuildPartySignals(party, DefaultConfig().VParty)

	require.Equal(t, 2, signals.Len())
	assert.Equal(t, []string{"HUN", "POL"}, signals.ISO3)
	assert.Equal(t, []int{2019, 2020}, signals.Year)

	mass := signals.Column(ColMassRaw)
	polar := signals.Column(ColPolarizationRaw)
	violence := signals.Column(ColViolenceRaw)

	assert.InDelta(t, 0.8, mass[0], 1e-12, "single party: max equals mean")
	assert.InDelta(t, 0.7*0.9+0.3*0.5, mass[1], 1e-12)
	assert.True(t, math.IsNaN(polar[0]), "one party has no spread")
	assert.InDelta(t, 0.4, polar[1], 1e-12)
	assert.InDelta(t, 0.3, violence[0], 1e-12)
	assert.InDelta(t, 0.5, violence[1], 1e-12)
}

func TestBuildPartySignalsPolarizationFallback(t *testing.T) {
	party := tabular.New([]string{"POL", "POL", "POL"}, []int{2020, 2020, 2020})
	party.AddColumn("v2xpa_antiplural", []float64{0.9, 0.5, 0.1})

	signals := BuildPartySignals(party, DefaultConfig().VParty)

	require.Equal(t, 1, signals.Len())
	assert.InDelta(t, 0.4, signals.Column(ColPolarizationRaw)[0], 1e-12,
		"populism column absent, spread of the anti-pluralism column")
	assert.True(t, math.IsNaN(signals.Column(ColViolenceRaw)[0]))
}

func TestBuildPartySignalsUnconfiguredPopulism(t *testing.T) {
	party := tabular.New([]string{"POL", "POL"}, []int{2020, 2020})
	party.AddColumn("v2xpa_antiplural", []float64{0.2, 0.8})
	party.AddColumn("v2xpa_popul", []float64{0, 1})

	cfg := DefaultConfig().VParty
	cfg.PopulCol = ""
	signals := BuildPartySignals(party, cfg)

	require.Equal(t, 1, signals.Len())
	assert.InDelta(t, tabular.SampleStd([]float64{0.2, 0.8}),
		signals.Column(ColPolarizationRaw)[0], 1e-12)
}

func TestBuildPartySignalsMissingColumns(t *testing.T) {
	party := tabular.New([]string{"POL"}, []int{2020})
	party.AddColumn("unrelated", []float64{1})

	signals := BuildPartySignals(party, DefaultConfig().VParty)

	require.Equal(t, 1, signals.Len(), "one row per (iso3, year) with party records")
	assert.True(t, math.IsNaN(signals.Column(ColMassRaw)[0]))
	assert.True(t, math.IsNaN(signals.Column(ColPolarizationRaw)[0]))
	assert.True(t, math.IsNaN(signals.Column(ColViolenceRaw)[0]))
}

func TestBuildPartySignalsEmpty(t *testing.T) {
	signals := BuildPartySignals(nil, DefaultConfig().VParty)
	assert.Equal(t, 0, signals.Len())
	assert.True(t, signals.HasColumn(ColMassRaw))

	signals = BuildPartySignals(tabular.New(nil, nil), DefaultConfig().VParty)
	assert.Equal(t, 0, signals.Len())
}
