package geojoin

import (
	"bytes"
	"encoding/csv"
	"testing"

	"floodattr/domain/attrib"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *attrib.RunReport {
	return &attrib.RunReport{
		Cities: []attrib.CityAttribution{
			{
				City: "PE0101", Observations: 156, FloodWeeks: 12, TotalCases: 840,
				PAF:               attrib.Estimate{Point: 0.18, Lower: 0.09, Upper: 0.26},
				AttributableCases: attrib.Estimate{Point: 151.2, Lower: 75.6, Upper: 218.4},
			},
			{
				City: "PE0102", Observations: 156, FloodWeeks: 3, TotalCases: 95,
				PAF:               attrib.Estimate{Point: 0.04, Lower: 0.01, Upper: 0.08},
				AttributableCases: attrib.Estimate{Point: 3.8, Lower: 0.95, Upper: 7.6},
			},
		},
		Scenarios: []attrib.ScenarioProjection{
			{
				City: "PE0101", Key: "SSP2-2050", Scenario: "SSP2", Year: 2050,
				BaselineCases: 200, PopulationAdjusted: true,
				PercentChange: attrib.Estimate{Point: 12.5, Lower: 6.0, Upper: 19.4},
				ScenarioCases: 225, AdditionalCases: 25,
				AdditionalLower: 12, AdditionalUpper: 38.8,
			},
		},
	}
}

func TestWriteCityTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCityTable(&buf, sampleReport()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "ADM3", records[0][0])
	assert.Equal(t, "PE0101", records[1][0])
	assert.Equal(t, "12", records[1][2])
	assert.Equal(t, "0.18", records[1][4])
	assert.Equal(t, "151.2", records[1][7])
	assert.Equal(t, "PE0102", records[2][0])
}

func TestWriteScenarioTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteScenarioTable(&buf, sampleReport()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	row := records[1]
	assert.Equal(t, "PE0101", row[0])
	assert.Equal(t, "SSP2", row[1])
	assert.Equal(t, "2050", row[2])
	assert.Equal(t, "true", row[4])
	assert.Equal(t, "12.5", row[5])
	assert.Equal(t, "225", row[8])
}

func TestWriteCityTable_EmptyReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCityTable(&buf, &attrib.RunReport{}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1) // header only
}
