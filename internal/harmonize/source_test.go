package harmonize

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSourceCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (st *sourceTable) lookup(t *testing.T, iso3 string, year int, col string) float64 {
	t.Helper()
	values, ok := st.cols[col]
	require.True(t, ok, "column %s", col)
	for i := range st.iso3 {
		if st.iso3[i] == iso3 && st.year[i] == year {
			return values[i]
		}
	}
	t.Fatalf("no row %s/%d", iso3, year)
	return 0
}

func TestLoadSource_WideWithISO3(t *testing.T) {
	path := writeSourceCSV(t, "vdem.csv",
		"country_text_id,year,v2x_polyarchy,v2x_libdem\nhun,2020,0.5,0.35\nHUN,2021,0.48,0.33\nHUN,2019,0.55,0.40\n")

	src := Source{Name: "vdem", Prefix: "vdem__"}
	st, mappings, err := LoadSource(src, path, 2020, 2026, nil)
	require.NoError(t, err)

	// 2019 filtered out, codes uppercased.
	require.Len(t, st.iso3, 2)
	assert.Equal(t, "HUN", st.iso3[0])
	assert.InDelta(t, 0.5, st.lookup(t, "HUN", 2020, "vdem__v2x_polyarchy"), 1e-12)
	assert.InDelta(t, 0.33, st.lookup(t, "HUN", 2021, "vdem__v2x_libdem"), 1e-12)

	require.Len(t, mappings, 2)
	assert.Equal(t, "vdem", mappings[0].Dataset)
	assert.Equal(t, "v2x_polyarchy", mappings[0].SourceColumn)
	assert.Equal(t, "vdem__v2x_polyarchy", mappings[0].OutputColumn)
}

func TestLoadSource_NameMatchingFallback(t *testing.T) {
	path := writeSourceCSV(t, "rsf.csv",
		"Country,year,Score\nHungary,2021,69.1\nAtlantis,2021,50\n")

	m := NewMatcher(testRecords())
	st, _, err := LoadSource(Source{Name: "rsf", Prefix: "rsf__"}, path, 2020, 2026, m)
	require.NoError(t, err)

	// Unmatched names drop.
	require.Len(t, st.iso3, 1)
	assert.Equal(t, "HUN", st.iso3[0])
	assert.InDelta(t, 69.1, st.lookup(t, "HUN", 2021, "rsf__score"), 1e-12)
}

func TestLoadSource_DefaultYear(t *testing.T) {
	path := writeSourceCSV(t, "gsi.csv",
		"iso3,prevalence\nHUN,2.1\n")

	src := Source{Name: "gsi", Prefix: "gsi__", DefaultYear: 2023}
	st, _, err := LoadSource(src, path, 2020, 2026, nil)
	require.NoError(t, err)

	require.Len(t, st.year, 1)
	assert.Equal(t, 2023, st.year[0])
}

func TestLoadSource_MissingYearColumnFails(t *testing.T) {
	path := writeSourceCSV(t, "bad.csv", "iso3,score\nHUN,1\n")

	_, _, err := LoadSource(Source{Name: "afi", Prefix: "afi__"}, path, 2020, 2026, nil)
	assert.Error(t, err)
}

func TestLoadSource_MissingKeyColumnsFails(t *testing.T) {
	path := writeSourceCSV(t, "bad.csv", "region,year,score\nEurope,2020,1\n")

	_, _, err := LoadSource(Source{Name: "afi", Prefix: "afi__"}, path, 2020, 2026, NewMatcher(nil))
	assert.Error(t, err)
}

func TestLoadSource_EditionAsYearAndFloatYears(t *testing.T) {
	path := writeSourceCSV(t, "fh.csv",
		"Country/Territory,Edition,Total\nHungary,2021.0,69\n")

	m := NewMatcher(testRecords())
	st, _, err := LoadSource(Source{Name: "fh", Prefix: "fh__"}, path, 2020, 2026, m)
	require.NoError(t, err)

	require.Len(t, st.year, 1)
	assert.Equal(t, 2021, st.year[0])
}

func TestLoadSource_DuplicateKeyFirstWins(t *testing.T) {
	path := writeSourceCSV(t, "cpi.csv",
		"iso3,year,score\nHUN,2020,44\nHUN,2020,99\n")

	st, _, err := LoadSource(Source{Name: "cpi", Prefix: "cpi__"}, path, 2020, 2026, nil)
	require.NoError(t, err)

	require.Len(t, st.iso3, 1)
	assert.InDelta(t, 44, st.lookup(t, "HUN", 2020, "cpi__score"), 1e-12)
}

func TestLoadSource_NonNumericValueIsNaN(t *testing.T) {
	path := writeSourceCSV(t, "afi.csv",
		"iso3,year,score\nHUN,2020,n/a\n")

	st, _, err := LoadSource(Source{Name: "afi", Prefix: "afi__"}, path, 2020, 2026, nil)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(st.lookup(t, "HUN", 2020, "afi__score")))
}

func TestLoadSource_PivotsLongFormat(t *testing.T) {
	path := writeSourceCSV(t, "hrmi.csv",
		"iso3,year,indicator,score,se\n"+
			"HUN,2020,Freedom of Expression,6.1,0.2\n"+
			"HUN,2020,Assembly,5.4,0.3\n"+
			"USA,2020,Assembly,7.2,0.1\n")

	st, mappings, err := LoadSource(Source{Name: "hrmi", Prefix: "hrmi__"}, path, 2020, 2026, nil)
	require.NoError(t, err)

	// One row per (iso3, year), one column per (value column, indicator).
	require.Len(t, st.iso3, 2)
	assert.InDelta(t, 6.1, st.lookup(t, "HUN", 2020, "hrmi__score__freedom_of_expression"), 1e-12)
	assert.InDelta(t, 5.4, st.lookup(t, "HUN", 2020, "hrmi__score__assembly"), 1e-12)
	assert.InDelta(t, 0.1, st.lookup(t, "USA", 2020, "hrmi__se__assembly"), 1e-12)
	assert.True(t, math.IsNaN(st.lookup(t, "USA", 2020, "hrmi__score__freedom_of_expression")))

	assert.Len(t, mappings, 4)
}

func TestSafeCol(t *testing.T) {
	assert.Equal(t, "total_score", safeCol(" Total Score "))
	assert.Equal(t, "v2x_polyarchy", safeCol("v2x_polyarchy"))
	assert.Equal(t, "a_b_c", safeCol("A//B--C!"))
}

func TestUniqueName(t *testing.T) {
	used := map[string]bool{}
	assert.Equal(t, "fh__total", uniqueName("fh__total", used))
	assert.Equal(t, "fh__total_2", uniqueName("fh__total", used))
	assert.Equal(t, "fh__total_3", uniqueName("fh__total", used))
}
