package excel

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"floodattr/domain/core"
	"floodattr/domain/panel"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPanelLoader_LoadRows(t *testing.T) {
	path := writeCSV(t, "panel.csv", `ADM3,Year,Epi_Week,Malaria_Cases,Flood_Index,Population,Temperature
PE0101,2017,1,12,0.5,15000,26.1
PE0101,2017,2,9,,15000,25.8
PE0102,2017,1,3,0,8000,NA
`)

	rows, err := NewPanelLoader(path).LoadRows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)

	r0 := rows[0]
	assert.Equal(t, core.CityID("PE0101"), r0.City)
	assert.Equal(t, 2017, r0.Year)
	assert.Equal(t, 1, r0.Week)
	assert.Equal(t, 12.0, r0.Values[panel.RawCases])
	assert.Equal(t, 0.5, r0.Values[panel.RawFlood])
	assert.Equal(t, 15000.0, r0.Values[panel.RawPopulation])
	assert.Equal(t, 26.1, r0.Values[panel.RawTemp])

	// Empty and NA cells leave the column absent, not zero.
	_, ok := rows[1].Values[panel.RawFlood]
	assert.False(t, ok)
	_, ok = rows[2].Values[panel.RawTemp]
	assert.False(t, ok)
}

func TestPanelLoader_MissingKeyColumns(t *testing.T) {
	path := writeCSV(t, "panel.csv", `ADM3,Cases,Flood
PE0101,12,0.5
`)
	_, err := NewPanelLoader(path).LoadRows(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key columns")
}

func TestPanelLoader_BadNumericCell(t *testing.T) {
	path := writeCSV(t, "panel.csv", `city,year,week,cases,flood
PE0101,2017,1,twelve,0.5
`)
	_, err := NewPanelLoader(path).LoadRows(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")
}

func TestPanelLoader_MissingFile(t *testing.T) {
	_, err := NewPanelLoader(filepath.Join(t.TempDir(), "nope.csv")).LoadRows(context.Background())
	assert.Error(t, err)
}

func TestProjectionLoader_LoadProjections(t *testing.T) {
	path := writeCSV(t, "ssp.csv", `City,SSP,Year,Population
PE0101,ssp2,2050,30000

PE0102,SSP3,2030,9500
`)

	out, err := NewProjectionLoader(path).LoadProjections(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, core.CityID("PE0101"), out[0].City)
	assert.Equal(t, "SSP2", out[0].Scenario) // normalized to upper case
	assert.Equal(t, 2050, out[0].Year)
	assert.Equal(t, 30000.0, out[0].Population)
	assert.Equal(t, "SSP3", out[1].Scenario)
}

func TestProjectionLoader_MissingColumns(t *testing.T) {
	path := writeCSV(t, "ssp.csv", `City,Year
PE0101,2050
`)
	_, err := NewProjectionLoader(path).LoadProjections(context.Background())
	assert.Error(t, err)
}
