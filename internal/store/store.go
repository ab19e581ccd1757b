// Package store persists scored assessment runs so they can be listed,
// inspected and published after the fact.
package store

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/rotisserie/eris"

	"github.com/civimetric/robustness-cli/internal/robustness"
)

// ErrRunNotFound marks lookups for a run ID with no stored run.
// Callers branch on it with errors.Is.
var ErrRunNotFound = eris.New("run not found")

// Run records a single scoring invocation: the inputs it read, the
// weights in effect and summary counts over the rows it produced.
type Run struct {
	ID             string             `json:"id"`
	CountryFile    string             `json:"country_file"`
	PartyFile      string             `json:"party_file,omitempty"`
	ThresholdsFile string             `json:"thresholds_file"`
	Weights        robustness.Weights `json:"weights"`
	RowCount       int                `json:"row_count"`
	BandCounts     map[string]int     `json:"band_counts"`
	CreatedAt      time.Time          `json:"created_at"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// AssessmentFilter narrows the rows returned for a run. A zero filter
// returns every row.
type AssessmentFilter struct {
	ISO3        string `json:"iso3,omitempty"`
	Year        int    `json:"year,omitempty"`
	Band        string `json:"band,omitempty"`
	TippingOnly bool   `json:"tipping_only,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

// Store defines the persistence interface for assessment runs.
type Store interface {
	// Runs
	SaveRun(ctx context.Context, run Run, rows []robustness.Assessment) (*Run, error)
	GetRun(ctx context.Context, runID string) (*Run, error)
	LatestRun(ctx context.Context) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	// Rows
	Assessments(ctx context.Context, runID string, filter AssessmentFilter) ([]robustness.Assessment, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// assessmentColumns is the insert column order shared by both backends.
var assessmentColumns = []string{
	"run_id", "iso3", "year",
	"alignment", "guardrails", "mass", "polarization", "stress_norm", "decline_norm",
	"risk_score", "risk_band",
	"guardrail_breach", "alignment_low", "tipping_zone", "percolation_risk", "shock_high", "decline_high",
}

// assessmentArgs flattens one row into insert arguments matching
// assessmentColumns. Undefined metrics become SQL NULL.
func assessmentArgs(runID string, a robustness.Assessment) []any {
	return []any{
		runID, a.ISO3, a.Year,
		nullFloat(float64(a.A)), nullFloat(float64(a.G)), nullFloat(float64(a.M)),
		nullFloat(float64(a.P)), nullFloat(float64(a.SNorm)), nullFloat(float64(a.DeclineNorm)),
		nullFloat(float64(a.RiskScore)), a.RiskBand,
		a.GuardrailBreach, a.AlignmentLow, a.TippingZone, a.PercolationRisk, a.ShockHigh, a.DeclineHigh,
	}
}

func countBands(rows []robustness.Assessment) map[string]int {
	counts := make(map[string]int, 3)
	for _, r := range rows {
		counts[r.RiskBand]++
	}
	return counts
}

func nullFloat(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func floatOrNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

type scannable interface {
	Scan(dest ...any) error
}

// scanRun reads one assessment_runs row. Scan errors pass through
// unwrapped so callers can branch on their backend's no-rows sentinel.
func scanRun(row scannable) (*Run, error) {
	var r Run
	var partyFile *string
	var weightsJSON, bandsJSON []byte

	err := row.Scan(&r.ID, &r.CountryFile, &partyFile, &r.ThresholdsFile,
		&weightsJSON, &r.RowCount, &bandsJSON, &r.CreatedAt)
	if err != nil {
		return nil, err
	}

	if partyFile != nil {
		r.PartyFile = *partyFile
	}
	if err := json.Unmarshal(weightsJSON, &r.Weights); err != nil {
		return nil, eris.Wrap(err, "unmarshal weights")
	}
	if err := json.Unmarshal(bandsJSON, &r.BandCounts); err != nil {
		return nil, eris.Wrap(err, "unmarshal band counts")
	}
	return &r, nil
}

// scanAssessment reads one assessments row in assessmentColumns order,
// minus run_id.
func scanAssessment(row scannable) (*robustness.Assessment, error) {
	var a robustness.Assessment
	var alignment, guardrails, mass, polarization, stressNorm, declineNorm, riskScore *float64

	err := row.Scan(&a.ISO3, &a.Year,
		&alignment, &guardrails, &mass, &polarization, &stressNorm, &declineNorm,
		&riskScore, &a.RiskBand,
		&a.GuardrailBreach, &a.AlignmentLow, &a.TippingZone,
		&a.PercolationRisk, &a.ShockHigh, &a.DeclineHigh)
	if err != nil {
		return nil, err
	}

	a.A = robustness.NullFloat(floatOrNaN(alignment))
	a.G = robustness.NullFloat(floatOrNaN(guardrails))
	a.M = robustness.NullFloat(floatOrNaN(mass))
	a.P = robustness.NullFloat(floatOrNaN(polarization))
	a.SNorm = robustness.NullFloat(floatOrNaN(stressNorm))
	a.DeclineNorm = robustness.NullFloat(floatOrNaN(declineNorm))
	a.RiskScore = robustness.NullFloat(floatOrNaN(riskScore))
	return &a, nil
}
