package tabular

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortByCountryYear(t *testing.T) {
	tbl := New([]string{"USA", "MEX", "USA"}, []int{2021, 2020, 2019})
	tbl.AddColumn("v", []float64{1, 2, 3})

	tbl.SortByCountryYear()

	assert.Equal(t, []string{"MEX", "USA", "USA"}, tbl.ISO3)
	assert.Equal(t, []int{2020, 2019, 2021}, tbl.Year)
	assert.Equal(t, []float64{2, 3, 1}, tbl.Column("v"))
}

func TestAddColumnReplaces(t *testing.T) {
	tbl := New([]string{"USA"}, []int{2020})
	tbl.AddColumn("v", []float64{1})
	tbl.AddColumn("w", []float64{2})
	tbl.AddColumn("v", []float64{3})

	assert.Equal(t, []string{"v", "w"}, tbl.Columns())
	assert.Equal(t, []float64{3}, tbl.Column("v"))
}
