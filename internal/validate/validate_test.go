package validate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civimetric/robustness-cli/internal/harmonize"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

// goodOutputDir lays down a minimal valid set of core outputs.
func goodOutputDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "country_2020_2026.csv",
		"iso3,year,country_name,vdem__v2x_polyarchy\nHUN,2020,Hungary,0.5\n")
	writeFile(t, dir, "column_map.csv",
		"dataset,source_column,output_column\nvdem,v2x_polyarchy,vdem__v2x_polyarchy\n")
	return dir
}

func runOpts(dir string) Options {
	return Options{OutputDir: dir, StartYear: 2020, EndYear: 2026}
}

func TestRun_CoreOutputsPass(t *testing.T) {
	ctx := Run(runOpts(goodOutputDir(t)))

	assert.True(t, ctx.OK())
	assert.Empty(t, ctx.Errors)
	// Optional outputs absent: warnings only.
	assert.Len(t, ctx.Warnings, 3)
}

func TestRun_MissingCoreFilesError(t *testing.T) {
	ctx := Run(runOpts(t.TempDir()))

	assert.False(t, ctx.OK())
	assert.Len(t, ctx.Errors, 2)
}

func TestRun_RequireOptionalPromotesWarnings(t *testing.T) {
	ctx := Run(Options{
		OutputDir:       goodOutputDir(t),
		StartYear:       2020,
		EndYear:         2026,
		RequireOptional: true,
	})

	assert.False(t, ctx.OK())
	assert.Len(t, ctx.Errors, 3)
	assert.Empty(t, ctx.Warnings)
}

func TestCheckCountryCSV(t *testing.T) {
	t.Run("missing key columns", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "country.csv", "code,vdem__x\nHUN,1\n")
		ctx := &Context{}
		checkCountryCSV(filepath.Join(dir, "country.csv"), ctx)
		require.Len(t, ctx.Errors, 1)
		assert.Contains(t, ctx.Errors[0], "missing required columns")
	})

	t.Run("no prefixed columns", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "country.csv", "iso3,year,country_name\nHUN,2020,Hungary\n")
		ctx := &Context{}
		checkCountryCSV(filepath.Join(dir, "country.csv"), ctx)
		require.Len(t, ctx.Errors, 1)
		assert.Contains(t, ctx.Errors[0], "dataset-prefixed")
	})

	t.Run("bad iso3 sample", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "country.csv",
			"iso3,year,country_name,fh__total\nHU,2020,Hungary,1\n")
		ctx := &Context{}
		checkCountryCSV(filepath.Join(dir, "country.csv"), ctx)
		require.Len(t, ctx.Errors, 1)
		assert.Contains(t, ctx.Errors[0], "3 characters")
	})

	t.Run("non-numeric year sample", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "country.csv",
			"iso3,year,country_name,fh__total\nHUN,latest,Hungary,1\n")
		ctx := &Context{}
		checkCountryCSV(filepath.Join(dir, "country.csv"), ctx)
		require.Len(t, ctx.Errors, 1)
		assert.Contains(t, ctx.Errors[0], "not numeric")
	})

	t.Run("no data rows", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "country.csv", "iso3,year,country_name,fh__total\n")
		ctx := &Context{}
		checkCountryCSV(filepath.Join(dir, "country.csv"), ctx)
		require.Len(t, ctx.Errors, 1)
		assert.Contains(t, ctx.Errors[0], "no data rows")
	})
}

func TestCheckColumnMap_UnknownDatasetWarns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "column_map.csv",
		"dataset,source_column,output_column\nmystery,x,mystery__x\n")

	ctx := &Context{}
	checkColumnMap(filepath.Join(dir, "column_map.csv"), ctx)

	assert.Empty(t, ctx.Errors)
	require.Len(t, ctx.Warnings, 1)
	assert.Contains(t, ctx.Warnings[0], "mystery")
}

func TestCheckCountrySQLite(t *testing.T) {
	t.Run("valid snapshot", func(t *testing.T) {
		dir := t.TempDir()
		frame := harmonize.NewFrame([]harmonize.Member{{ISO3: "HUN", Name: "Hungary"}}, 2020, 2020)
		path := filepath.Join(dir, "country_2020_2020.sqlite")
		require.NoError(t, frame.WriteSQLite(path))

		ctx := &Context{}
		checkCountrySQLite(path, ctx)
		assert.Empty(t, ctx.Errors)
		assert.Empty(t, ctx.Warnings)
	})

	t.Run("zero byte file warns", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "country.sqlite", "")

		ctx := &Context{}
		checkCountrySQLite(filepath.Join(dir, "country.sqlite"), ctx)
		assert.Empty(t, ctx.Errors)
		require.Len(t, ctx.Warnings, 1)
		assert.Contains(t, ctx.Warnings[0], "empty")
	})
}

func TestCheckAssessmentCSV(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "assessment.csv",
		"iso3,year,A,G,M,P,S_norm,decline_norm,risk_score,risk_band\n"+
			"HUN,2021,0.4,0.3,0.7,0.6,0.8,0.2,0.81,high\n")

	ctx := &Context{}
	checkAssessmentCSV(filepath.Join(dir, "assessment.csv"), ctx)
	assert.Empty(t, ctx.Errors)

	writeFile(t, dir, "short.csv", "iso3,year,risk_score\nHUN,2021,0.81\n")
	ctx = &Context{}
	checkAssessmentCSV(filepath.Join(dir, "short.csv"), ctx)
	require.Len(t, ctx.Errors, 1)
	assert.Contains(t, ctx.Errors[0], "missing required columns")
}

func TestCheckThresholdsJSON(t *testing.T) {
	dir := t.TempDir()

	writeFile(t, dir, "ok.json", `{"thresholds":{},"quantiles":{},"notes":{}}`)
	ctx := &Context{}
	checkThresholdsJSON(filepath.Join(dir, "ok.json"), ctx)
	assert.Empty(t, ctx.Errors)

	writeFile(t, dir, "partial.json", `{"thresholds":{}}`)
	ctx = &Context{}
	checkThresholdsJSON(filepath.Join(dir, "partial.json"), ctx)
	require.Len(t, ctx.Errors, 1)
	assert.Contains(t, ctx.Errors[0], "quantiles")

	writeFile(t, dir, "broken.json", `not json`)
	ctx = &Context{}
	checkThresholdsJSON(filepath.Join(dir, "broken.json"), ctx)
	require.Len(t, ctx.Errors, 1)
}

func TestRun_EndToEndWithHarmonizedOutputs(t *testing.T) {
	rawDir := t.TempDir()
	writeFile(t, rawDir, "un_members.csv", "iso3,name\nHUN,Hungary\n")
	writeFile(t, rawDir, "vdem.csv",
		"country_text_id,year,v2x_polyarchy\nHUN,2020,0.5\n")

	outDir := filepath.Join(t.TempDir(), "output")
	_, err := harmonize.Run(context.Background(), harmonize.Options{
		RawDir:    rawDir,
		OutputDir: outDir,
		StartYear: 2020,
		EndYear:   2020,
		Sources: []harmonize.Source{{
			Name: "vdem", Prefix: "vdem__",
			Paths: []string{filepath.Join(rawDir, "vdem.csv")},
		}},
	})
	require.NoError(t, err)

	ctx := Run(Options{OutputDir: outDir, StartYear: 2020, EndYear: 2020})
	assert.True(t, ctx.OK(), "errors: %s", strings.Join(ctx.Errors, "; "))
}
