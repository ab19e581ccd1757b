package robustness

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// MetricSpec declares how one raw column contributes to a composite index.
// Weight defaults to 1.0 and HigherIsBetter to true when omitted.
type MetricSpec struct {
	Column         string   `yaml:"column" json:"column"`
	Weight         *float64 `yaml:"weight,omitempty" json:"weight,omitempty"`
	HigherIsBetter *bool    `yaml:"higher_is_better,omitempty" json:"higher_is_better,omitempty"`
}

func (m MetricSpec) weight() float64 {
	if m.Weight == nil {
		return 1.0
	}
	return *m.Weight
}

func (m MetricSpec) higherIsBetter() bool {
	if m.HigherIsBetter == nil {
		return true
	}
	return *m.HigherIsBetter
}

// VPartyConfig names the party-year columns feeding the derived signals.
// Each is optional; the signal built from an absent column is undefined.
type VPartyConfig struct {
	AntipluralCol string `yaml:"antiplural_col" json:"antiplural_col"`
	PopulCol      string `yaml:"popul_col" json:"popul_col"`
	ViolenceCol   string `yaml:"violence_col" json:"violence_col"`
}

// Weights holds the six coefficients of the linear risk combination.
type Weights struct {
	W1Alignment    float64 `yaml:"w1_alignment" json:"w1_alignment"`
	W2Guardrails   float64 `yaml:"w2_guardrails" json:"w2_guardrails"`
	W3Mass         float64 `yaml:"w3_mass" json:"w3_mass"`
	W4Polarization float64 `yaml:"w4_polarization" json:"w4_polarization"`
	W5Stress       float64 `yaml:"w5_stress" json:"w5_stress"`
	W6Trend        float64 `yaml:"w6_trend" json:"w6_trend"`
}

// DefaultWeights returns the default risk coefficients.
func DefaultWeights() Weights {
	return Weights{
		W1Alignment:    1.0,
		W2Guardrails:   1.0,
		W3Mass:         0.8,
		W4Polarization: 0.6,
		W5Stress:       0.6,
		W6Trend:        0.8,
	}
}

// Config drives one calibrate or assess run.
type Config struct {
	AlignmentMetrics []MetricSpec `yaml:"alignment_metrics" json:"alignment_metrics"`
	GuardrailMetrics []MetricSpec `yaml:"guardrail_metrics" json:"guardrail_metrics"`
	StressMetrics    []MetricSpec `yaml:"stress_metrics" json:"stress_metrics"`
	VParty           VPartyConfig `yaml:"vparty" json:"vparty"`
	HorizonYears     int          `yaml:"horizon_years" json:"horizon_years"`
	RiskWeights      Weights      `yaml:"risk_weights" json:"risk_weights"`
	ThresholdsFile   string       `yaml:"thresholds_file" json:"thresholds_file"`
}

// DefaultConfig returns the values used for keys absent from the config
// file. The metric lists cover the common V-Dem, Freedom House, WGI, CPI,
// RSF and GSI columns of the harmonized dataset; columns absent from an
// input table drop out of the index per the compositor's exclusion rule.
func DefaultConfig() Config {
	lowerIsBetter := false
	return Config{
		AlignmentMetrics: []MetricSpec{
			{Column: "vdem__v2x_libdem"},
			{Column: "vdem__v2x_polyarchy"},
			{Column: "fh__total"},
		},
		GuardrailMetrics: []MetricSpec{
			{Column: "vdem__v2x_jucon"},
			{Column: "vdem__v2xlg_legcon"},
			{Column: "wgi__rule_of_law"},
			{Column: "cpi__score"},
		},
		StressMetrics: []MetricSpec{
			{Column: "gsi__prevalence", HigherIsBetter: &lowerIsBetter},
			{Column: "rsf__score"},
		},
		VParty: VPartyConfig{
			AntipluralCol: "v2xpa_antiplural",
			PopulCol:      "v2xpa_popul",
			ViolenceCol:   "v2paviol",
		},
		HorizonYears:   5,
		RiskWeights:    DefaultWeights(),
		ThresholdsFile: "data/output/robustness_thresholds.json",
	}
}

// LoadConfig reads a config file. YAML and JSON are both accepted. Keys
// absent from the file keep their defaults; a missing file is an error.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, eris.Wrapf(err, "robustness: read config %s", path)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, eris.Wrapf(err, "robustness: parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports configuration values the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []string
	if c.HorizonYears < 1 {
		errs = append(errs, fmt.Sprintf("horizon_years must be >= 1, got %d", c.HorizonYears))
	}
	groups := []struct {
		name    string
		metrics []MetricSpec
	}{
		{"alignment_metrics", c.AlignmentMetrics},
		{"guardrail_metrics", c.GuardrailMetrics},
		{"stress_metrics", c.StressMetrics},
	}
	for _, g := range groups {
		for i, m := range g.metrics {
			if strings.TrimSpace(m.Column) == "" {
				errs = append(errs, fmt.Sprintf("%s[%d]: column is required", g.name, i))
			}
			if m.Weight != nil && *m.Weight < 0 {
				errs = append(errs, fmt.Sprintf("%s[%d] (%s): weight must be >= 0", g.name, i, m.Column))
			}
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return eris.Errorf("robustness: invalid config: %s", strings.Join(errs, "; "))
}
