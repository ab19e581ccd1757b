package robustness

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/civimetric/robustness-cli/internal/tabular"
)

// Orientation states which direction a composite index points: good
// indexes rise with institutional health, bad indexes rise with stress.
type Orientation string

const (
	OrientationGood Orientation = "good"
	OrientationBad  Orientation = "bad"
)

// BuildIndex computes a weighted composite in [0, 1] from the configured
// metric columns. Each column present in the table is min-max normalized
// across all rows, flipped when its direction disagrees with the index
// orientation, and averaged per row over the defined entries using the
// metric weights. Columns absent from the table or with no defined
// normalized values are skipped; the returned list names the columns that
// contributed. A row where every contributing column is undefined stays
// NaN, and when no column contributes at all the whole index is NaN.
func BuildIndex(t *tabular.Table, specs []MetricSpec, orient Orientation) ([]float64, []string, error) {
	if orient != OrientationGood && orient != OrientationBad {
		return nil, nil, eris.Errorf("robustness: invalid index orientation %q", orient)
	}

	type part struct {
		values []float64
		weight float64
	}
	parts := make([]part, 0, len(specs))
	used := make([]string, 0, len(specs))

	for _, spec := range specs {
		col := t.Column(spec.Column)
		if col == nil {
			continue
		}
		norm := tabular.Normalize(col)
		if !anyDefined(norm) {
			continue
		}
		if (orient == OrientationGood) != spec.higherIsBetter() {
			for i, v := range norm {
				norm[i] = 1 - v
			}
		}
		parts = append(parts, part{values: norm, weight: spec.weight()})
		used = append(used, spec.Column)
	}

	out := make([]float64, t.Len())
	if len(parts) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out, used, nil
	}

	for i := range out {
		var wsum, wtot float64
		for _, p := range parts {
			v := p.values[i]
			if math.IsNaN(v) {
				continue
			}
			wsum += p.weight * v
			wtot += p.weight
		}
		if wtot == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = wsum / wtot
	}
	return out, used, nil
}

func anyDefined(values []float64) bool {
	for _, v := range values {
		if !math.IsNaN(v) {
			return true
		}
	}
	return false
}
