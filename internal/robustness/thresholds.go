package robustness

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/civimetric/robustness-cli/internal/tabular"
)

// Names of the calibrated thresholds.
const (
	ThresholdGuardrailCritical = "guardrail_critical"
	ThresholdAlignmentLow      = "alignment_low"
	ThresholdMPPercolation     = "mp_percolation"
	ThresholdShockHigh         = "shock_high"
	ThresholdDeclineHigh       = "decline_high"
)

const orientationNote = "A/G are higher=better, M/P/S are higher=worse"

// NullFloat is a float64 whose JSON form uses null for NaN, the artifact's
// representation of an undefined value.
type NullFloat float64

// MarshalJSON encodes NaN as null.
func (f NullFloat) MarshalJSON() ([]byte, error) {
	if math.IsNaN(float64(f)) {
		return []byte("null"), nil
	}
	return json.Marshal(float64(f))
}

// UnmarshalJSON decodes null as NaN.
func (f *NullFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = NullFloat(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = NullFloat(v)
	return nil
}

// Threshold is one calibrated cut point and the quantile that produced it.
type Threshold struct {
	Value  NullFloat `json:"value"`
	Method string    `json:"method"`
}

// QuantileSummary records the quartiles of one metric series.
type QuantileSummary struct {
	P25 NullFloat `json:"p25"`
	P50 NullFloat `json:"p50"`
	P75 NullFloat `json:"p75"`
}

// VPartyNotes echoes the party-signal column configuration active during
// calibration.
type VPartyNotes struct {
	AntipluralCol string `json:"antiplural_col"`
	PopulCol      string `json:"popul_col"`
	ViolenceCol   string `json:"violence_col"`
}

// ArtifactNotes records which raw columns fed each index.
type ArtifactNotes struct {
	AlignmentColumnsUsed []string    `json:"alignment_columns_used"`
	GuardrailColumnsUsed []string    `json:"guardrail_columns_used"`
	StressColumnsUsed    []string    `json:"stress_columns_used"`
	VPartyMetrics        VPartyNotes `json:"vparty_metrics"`
	Orientation          string      `json:"orientation"`
}

// Artifact is the persisted calibration output. The scorer consumes it
// read-only and never recomputes thresholds inline.
type Artifact struct {
	Thresholds map[string]Threshold       `json:"thresholds"`
	Notes      ArtifactNotes              `json:"notes"`
	Quantiles  map[string]QuantileSummary `json:"quantiles"`
}

// Calibrate derives the five named thresholds and the quartile summary from
// a fully computed metric table. Empty series yield undefined values.
func Calibrate(m *MetricTable, cfg Config) *Artifact {
	series := map[string][]float64{
		"A":            m.A,
		"G":            m.G,
		"M":            m.M,
		"P":            m.P,
		"S_norm":       m.SNorm,
		"MP":           m.MP,
		"decline_norm": m.DeclineNorm,
	}
	quantiles := make(map[string]QuantileSummary, len(series))
	for name, vals := range series {
		quantiles[name] = QuantileSummary{
			P25: NullFloat(tabular.Quantile(vals, 0.25)),
			P50: NullFloat(tabular.Quantile(vals, 0.50)),
			P75: NullFloat(tabular.Quantile(vals, 0.75)),
		}
	}

	return &Artifact{
		Thresholds: map[string]Threshold{
			ThresholdGuardrailCritical: {Value: NullFloat(tabular.Quantile(m.G, 0.25)), Method: "q25"},
			ThresholdAlignmentLow:      {Value: NullFloat(tabular.Quantile(m.A, 0.25)), Method: "q25"},
			ThresholdMPPercolation:     {Value: NullFloat(tabular.Quantile(m.MP, 0.75)), Method: "q75"},
			ThresholdShockHigh:         {Value: NullFloat(tabular.Quantile(m.SNorm, 0.75)), Method: "q75"},
			ThresholdDeclineHigh:       {Value: NullFloat(tabular.Quantile(m.DeclineNorm, 0.75)), Method: "q75"},
		},
		Notes: ArtifactNotes{
			AlignmentColumnsUsed: m.AlignmentCols,
			GuardrailColumnsUsed: m.GuardrailCols,
			StressColumnsUsed:    m.StressCols,
			VPartyMetrics: VPartyNotes{
				AntipluralCol: cfg.VParty.AntipluralCol,
				PopulCol:      cfg.VParty.PopulCol,
				ViolenceCol:   cfg.VParty.ViolenceCol,
			},
			Orientation: orientationNote,
		},
		Quantiles: quantiles,
	}
}

// Save writes the artifact as indented JSON, creating parent directories
// as needed.
func (a *Artifact) Save(path string) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return eris.Wrap(err, "robustness: encode thresholds")
	}
	data = append(data, '\n')
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "robustness: create %s", dir)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "robustness: write %s", path)
	}
	return nil
}

// LoadArtifact reads a persisted threshold artifact. A missing file is a
// hard error carrying the corrective instruction.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, eris.Errorf("robustness: thresholds file not found: %s (run calibrate first)", path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "robustness: read %s", path)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, eris.Wrapf(err, "robustness: parse %s", path)
	}
	return &a, nil
}

// ThresholdValue returns the stored value for name, NaN when the artifact
// does not carry it.
func (a *Artifact) ThresholdValue(name string) float64 {
	t, ok := a.Thresholds[name]
	if !ok {
		return math.NaN()
	}
	return float64(t.Value)
}
