package tabular

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCSV(t *testing.T) {
	input := "iso3,year,v2x_polyarchy,notes\nUSA,2020,0.5,ok\nUSA,2021,,revised\nMEX,2020,n/a,\n"
	tbl, err := ParseCSV(strings.NewReader(input), ReadOptions{})
	require.NoError(t, err)

	require.Equal(t, 3, tbl.Len())
	assert.Equal(t, []string{"USA", "USA", "MEX"}, tbl.ISO3)
	assert.Equal(t, []int{2020, 2021, 2020}, tbl.Year)
	assert.Equal(t, []string{"v2x_polyarchy", "notes"}, tbl.Columns())

	col := tbl.Column("v2x_polyarchy")
	assert.Equal(t, 0.5, col[0])
	assert.True(t, math.IsNaN(col[1]), "empty cell")
	assert.True(t, math.IsNaN(col[2]), "non-numeric cell")

	assert.Nil(t, tbl.Column("absent"))
	assert.False(t, tbl.HasColumn("absent"))
}

func TestParseCSVMissingKeyColumns(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("country,year\nUSA,2020\n"), ReadOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "iso3")

	_, err = ParseCSV(strings.NewReader("iso3,yr\nUSA,2020\n"), ReadOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "year")
}

func TestParseCSVBadYear(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("iso3,year\nUSA,20x0\n"), ReadOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an integer")
}

func TestParseCSVDelimiter(t *testing.T) {
	tbl, err := ParseCSV(strings.NewReader("iso3;year;v\nUSA;2020;1.5\n"), ReadOptions{Delimiter: ';'})
	require.NoError(t, err)
	require.Equal(t, 1, tbl.Len())
	assert.Equal(t, 1.5, tbl.Column("v")[0])
}

func TestParseCSVCharset(t *testing.T) {
	raw := []byte("iso3,year,libert\xe9\nFRA,2020,1\n")

	tbl, err := ParseCSV(bytes.NewReader(raw), ReadOptions{Charset: "windows-1252"})
	require.NoError(t, err)
	assert.True(t, tbl.HasColumn("liberté"))

	_, err = ParseCSV(bytes.NewReader(raw), ReadOptions{Charset: "no-such-charset"})
	require.Error(t, err)
}

func TestReadCSVMissingFile(t *testing.T) {
	_, err := ReadCSV(filepath.Join(t.TempDir(), "nope.csv"), ReadOptions{})
	require.Error(t, err)
}

func TestLoadTableByExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "panel.csv")
	require.NoError(t, os.WriteFile(path, []byte("iso3,year,v\nUSA,2020,1\n"), 0o644))

	tbl, err := LoadTable(path, ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.Len())
}
