// Package geojoin emits flat tables keyed by the ADM3 city code so an
// external mapping layer can left-join them onto polygon geometries. The core
// knows nothing about geometry; this CSV is the entire contract.
package geojoin

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"floodattr/domain/attrib"
)

// WriteCityTable writes one row per city with its attribution estimates.
func WriteCityTable(w io.Writer, report *attrib.RunReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"ADM3", "observations", "flood_weeks", "total_cases",
		"paf", "paf_lower", "paf_upper",
		"attributable_cases", "attributable_lower", "attributable_upper",
	}); err != nil {
		return err
	}
	for i := range report.Cities {
		c := &report.Cities[i]
		rec := []string{
			c.City.String(),
			strconv.Itoa(c.Observations),
			strconv.Itoa(c.FloodWeeks),
			formatFloat(c.TotalCases),
			formatFloat(c.PAF.Point),
			formatFloat(c.PAF.Lower),
			formatFloat(c.PAF.Upper),
			formatFloat(c.AttributableCases.Point),
			formatFloat(c.AttributableCases.Lower),
			formatFloat(c.AttributableCases.Upper),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteScenarioTable writes one row per city and scenario.
func WriteScenarioTable(w io.Writer, report *attrib.RunReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"ADM3", "scenario", "year", "baseline_cases", "population_adjusted",
		"percent_change", "percent_lower", "percent_upper",
		"scenario_cases", "additional_cases", "additional_lower", "additional_upper",
	}); err != nil {
		return err
	}
	for i := range report.Scenarios {
		s := &report.Scenarios[i]
		rec := []string{
			s.City.String(),
			s.Scenario,
			strconv.Itoa(s.Year),
			formatFloat(s.BaselineCases),
			fmt.Sprintf("%t", s.PopulationAdjusted),
			formatFloat(s.PercentChange.Point),
			formatFloat(s.PercentChange.Lower),
			formatFloat(s.PercentChange.Upper),
			formatFloat(s.ScenarioCases),
			formatFloat(s.AdditionalCases),
			formatFloat(s.AdditionalLower),
			formatFloat(s.AdditionalUpper),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 10, 64)
}
