package harmonize

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRawDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	write("un_members.json", membersJSON)
	write("vdem.csv",
		"country_text_id,year,v2x_polyarchy\nHUN,2020,0.50\nHUN,2021,0.48\nUSA,2020,0.81\nUSA,2021,0.80\n")
	write("rsf.csv",
		"Country,year,Score\nHungary,2020,69.1\nUnited States,2020,76.2\n")
	return dir
}

func testSources(rawDir string) []Source {
	p := func(name string) string { return filepath.Join(rawDir, name) }
	return []Source{
		{Name: "vdem", Prefix: "vdem__", Paths: []string{p("vdem.csv")}},
		{Name: "rsf", Prefix: "rsf__", Paths: []string{p("rsf.csv")}},
	}
}

func TestRun_BuildsOutputs(t *testing.T) {
	rawDir := setupRawDir(t)
	outDir := filepath.Join(t.TempDir(), "output")

	res, err := Run(context.Background(), Options{
		RawDir:    rawDir,
		OutputDir: outDir,
		StartYear: 2020,
		EndYear:   2021,
		Sources:   testSources(rawDir),
	})
	require.NoError(t, err)

	// 2 members x 2 years.
	assert.Equal(t, 4, res.Rows)
	assert.Equal(t, 2, res.Columns)
	assert.Empty(t, res.Missing)
	assert.FileExists(t, res.CSVPath)
	assert.FileExists(t, res.ColumnMapPath)
	assert.FileExists(t, res.SQLitePath)

	file, err := os.Open(res.CSVPath)
	require.NoError(t, err)
	defer file.Close()
	all, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, []string{"iso3", "year", "country_name", "vdem__v2x_polyarchy", "rsf__score"}, all[0])
	assert.Equal(t, []string{"HUN", "2020", "Hungary", "0.5", "69.1"}, all[1])
	assert.Equal(t, []string{"HUN", "2021", "Hungary", "0.48", ""}, all[2])
}

func TestRun_MissingSourceFailsWithoutFlag(t *testing.T) {
	rawDir := setupRawDir(t)
	sources := append(testSources(rawDir), Source{
		Name: "cpi", Prefix: "cpi__", Paths: []string{filepath.Join(rawDir, "absent.csv")},
	})

	_, err := Run(context.Background(), Options{
		RawDir:    rawDir,
		OutputDir: t.TempDir(),
		StartYear: 2020,
		EndYear:   2021,
		Sources:   sources,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cpi")
	assert.Contains(t, err.Error(), "--allow-missing")
}

func TestRun_MissingSourceAllowed(t *testing.T) {
	rawDir := setupRawDir(t)
	sources := append(testSources(rawDir), Source{
		Name: "cpi", Prefix: "cpi__", Paths: []string{filepath.Join(rawDir, "absent.csv")},
	})

	res, err := Run(context.Background(), Options{
		RawDir:       rawDir,
		OutputDir:    t.TempDir(),
		StartYear:    2020,
		EndYear:      2021,
		AllowMissing: true,
		Sources:      sources,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"cpi"}, res.Missing)
	assert.Equal(t, 2, res.Columns)
}

func TestRun_AlternatePathUsed(t *testing.T) {
	rawDir := setupRawDir(t)
	sources := []Source{{
		Name:   "vdem",
		Prefix: "vdem__",
		Paths:  []string{filepath.Join(rawDir, "absent.csv"), filepath.Join(rawDir, "vdem.csv")},
	}}

	res, err := Run(context.Background(), Options{
		RawDir:    rawDir,
		OutputDir: t.TempDir(),
		StartYear: 2020,
		EndYear:   2021,
		Sources:   sources,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Missing)
	assert.Equal(t, 1, res.Columns)
}

func TestRun_InvalidYearRange(t *testing.T) {
	_, err := Run(context.Background(), Options{
		RawDir:    t.TempDir(),
		OutputDir: t.TempDir(),
		StartYear: 2026,
		EndYear:   2020,
	})
	assert.Error(t, err)
}
