package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceFlag(t *testing.T) {
	assert.Equal(t, "vdem", sourceFlag("vdem"))
	assert.Equal(t, "freedom-house", sourceFlag("fh"))
	assert.Equal(t, "gsi", sourceFlag("gsi"))
}

func TestRunBuild_AllowMissing(t *testing.T) {
	rawDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(rawDir, "un_members.csv"),
		[]byte("iso3,name\nHUN,Hungary\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(rawDir, "vdem_cy_full.csv"),
		[]byte("country_text_id,year,v2x_polyarchy\nHUN,2020,0.5\n"), 0o644))
	outDir := filepath.Join(t.TempDir(), "output")

	flags := buildCmd.Flags()
	require.NoError(t, flags.Set("raw-dir", rawDir))
	require.NoError(t, flags.Set("output-dir", outDir))
	require.NoError(t, flags.Set("start-year", "2020"))
	require.NoError(t, flags.Set("end-year", "2020"))
	require.NoError(t, flags.Set("allow-missing", "true"))

	require.NoError(t, runBuild(buildCmd, nil))
	assert.FileExists(t, filepath.Join(outDir, "country_2020_2020.csv"))
	assert.FileExists(t, filepath.Join(outDir, "column_map.csv"))
}

func TestRunBuild_MissingSourcesFail(t *testing.T) {
	rawDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(rawDir, "un_members.csv"),
		[]byte("iso3,name\nHUN,Hungary\n"), 0o644))

	flags := buildCmd.Flags()
	require.NoError(t, flags.Set("raw-dir", rawDir))
	require.NoError(t, flags.Set("output-dir", t.TempDir()))
	require.NoError(t, flags.Set("allow-missing", "false"))

	assert.Error(t, runBuild(buildCmd, nil))
}
