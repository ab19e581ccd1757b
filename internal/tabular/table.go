// Package tabular loads country-year and party-year datasets from CSV and
// XLSX files into columnar tables. The iso3 and year key columns are typed
// and required; every other column is float64 with NaN marking missing or
// non-numeric cells.
package tabular

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Key column names shared by every input dataset.
const (
	ColISO3 = "iso3"
	ColYear = "year"
)

// Table holds one dataset in columnar form. ISO3 and Year always have the
// same length, as does every value column.
type Table struct {
	ISO3 []string
	Year []int

	order []string
	cols  map[string][]float64
}

// New returns a table over the given key columns. The slices are retained,
// not copied, and must have equal length.
func New(iso3 []string, years []int) *Table {
	return &Table{ISO3: iso3, Year: years, cols: map[string][]float64{}}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.ISO3) }

// Columns lists the value column names in insertion order.
func (t *Table) Columns() []string { return t.order }

// HasColumn reports whether a value column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.cols[name]
	return ok
}

// Column returns the named value column, or nil when absent.
func (t *Table) Column(name string) []float64 { return t.cols[name] }

// AddColumn attaches a value column. values must have Len() entries. An
// existing column of the same name is replaced.
func (t *Table) AddColumn(name string, values []float64) {
	if !t.HasColumn(name) {
		t.order = append(t.order, name)
	}
	if t.cols == nil {
		t.cols = map[string][]float64{}
	}
	t.cols[name] = values
}

// SortByCountryYear stable-sorts the rows by (iso3, year) ascending,
// reordering every column.
func (t *Table) SortByCountryYear() {
	idx := make([]int, t.Len())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ia, ib := idx[a], idx[b]
		if t.ISO3[ia] != t.ISO3[ib] {
			return t.ISO3[ia] < t.ISO3[ib]
		}
		return t.Year[ia] < t.Year[ib]
	})
	iso3 := make([]string, len(idx))
	years := make([]int, len(idx))
	for i, j := range idx {
		iso3[i] = t.ISO3[j]
		years[i] = t.Year[j]
	}
	t.ISO3, t.Year = iso3, years
	for name, col := range t.cols {
		next := make([]float64, len(idx))
		for i, j := range idx {
			next[i] = col[j]
		}
		t.cols[name] = next
	}
}

// buildTable assembles a table from a header row and string records. The
// header must name iso3 and year columns and every year cell must parse as
// an integer. Records shorter than the header leave the missing cells NaN;
// fully blank records are dropped.
func buildTable(header []string, records [][]string) (*Table, error) {
	isoIdx, yearIdx := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case ColISO3:
			isoIdx = i
		case ColYear:
			yearIdx = i
		}
	}
	if isoIdx < 0 || yearIdx < 0 {
		return nil, eris.Errorf("tabular: header must contain %s and %s columns", ColISO3, ColYear)
	}

	kept := make([][]string, 0, len(records))
	for _, rec := range records {
		if !blankRecord(rec) {
			kept = append(kept, rec)
		}
	}
	records = kept

	t := New(make([]string, len(records)), make([]int, len(records)))
	names := make([]string, len(header))
	for i, h := range header {
		if i == isoIdx || i == yearIdx {
			continue
		}
		name := strings.TrimSpace(h)
		if name == "" || t.HasColumn(name) {
			continue
		}
		names[i] = name
		t.AddColumn(name, nanColumn(len(records)))
	}

	for rowNum, rec := range records {
		if isoIdx >= len(rec) || yearIdx >= len(rec) {
			return nil, eris.Errorf("tabular: row %d: missing %s or %s cell", rowNum+2, ColISO3, ColYear)
		}
		t.ISO3[rowNum] = strings.TrimSpace(rec[isoIdx])
		year, err := strconv.Atoi(strings.TrimSpace(rec[yearIdx]))
		if err != nil {
			return nil, eris.Errorf("tabular: row %d: year %q is not an integer", rowNum+2, rec[yearIdx])
		}
		t.Year[rowNum] = year
		for i := range rec {
			if i >= len(names) || names[i] == "" {
				continue
			}
			t.cols[names[i]][rowNum] = parseCell(rec[i])
		}
	}
	return t, nil
}

// parseCell converts one cell to float64. Empty and non-numeric cells map
// to NaN.
func parseCell(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func nanColumn(n int) []float64 {
	col := make([]float64, n)
	for i := range col {
		col[i] = math.NaN()
	}
	return col
}

func blankRecord(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
