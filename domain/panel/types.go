package panel

import (
	"floodattr/domain/core"
)

// Canonical regressor/column names. Raw input columns are mapped onto these once
// during preparation; every downstream component refers to them as data.
const (
	ColCases = "cases"

	ColFlood     = "flood"
	ColFloodLag1 = "flood_lag1"
	ColFloodLag2 = "flood_lag2"
	ColFloodLag3 = "flood_lag3"
	ColFloodLag4 = "flood_lag4"

	ColLogPop = "log_pop"

	ColTemp            = "temp"
	ColTempSq          = "temp_sq"
	ColTempRange       = "temp_range"
	ColPressure        = "pressure"
	ColWind            = "wind"
	ColHumidity        = "humidity"
	ColPrecip          = "precip"
	ColLogPopDensity   = "log_pop_density"
	ColLogLightDensity = "log_light_density"
	ColUrban           = "urban"
)

// Raw input column names expected from the ingestion layer.
const (
	RawCases        = "cases"
	RawFlood        = "flood"
	RawPopulation   = "population"
	RawPopDensity   = "pop_density"
	RawLightDensity = "light_density"
	RawUrban        = "urban"
	RawTemp         = "temp"
	RawTempMax      = "temp_max"
	RawTempMin      = "temp_min"
	RawPressure     = "pressure"
	RawWind         = "wind"
	RawHumidity     = "humidity"
	RawPrecip       = "precip"
)

// LagCount is the number of weekly lag terms carried for the flood exposure.
const LagCount = 4

// RawRow is one city-week record as delivered by the ingestion layer. Values
// holds raw columns by name; a column absent from the map is absent from the
// source, which is a supported state resolved once during preparation.
type RawRow struct {
	City   core.CityID
	Year   int
	Week   int
	Values map[string]float64
}

// Observation is one prepared city-week record. It is constructed once per run
// and immutable afterward; prediction and estimation never mutate it.
type Observation struct {
	City     core.CityID
	Year     int
	Week     int
	YearWeek core.YearWeek

	// Cases is the response, coerced to a non-negative integer value.
	Cases float64

	// Flood is the current-week exposure; FloodLags[k-1] is the exposure k weeks
	// prior, zero-filled for the first k weeks of a city's series.
	Flood     float64
	FloodLags [LagCount]float64

	// LogPop is the model offset, log of population floored at 1. Only
	// meaningful when the ModelSpec reports the offset as available.
	LogPop float64

	Temp            float64
	TempSq          float64
	TempRange       float64
	Pressure        float64
	Wind            float64
	Humidity        float64
	Precip          float64
	LogPopDensity   float64
	LogLightDensity float64
	Urban           float64
}

// Value returns the observation's value for a canonical regressor name.
func (o *Observation) Value(name string) (float64, bool) {
	switch name {
	case ColFlood:
		return o.Flood, true
	case ColFloodLag1:
		return o.FloodLags[0], true
	case ColFloodLag2:
		return o.FloodLags[1], true
	case ColFloodLag3:
		return o.FloodLags[2], true
	case ColFloodLag4:
		return o.FloodLags[3], true
	case ColLogPop:
		return o.LogPop, true
	case ColTemp:
		return o.Temp, true
	case ColTempSq:
		return o.TempSq, true
	case ColTempRange:
		return o.TempRange, true
	case ColPressure:
		return o.Pressure, true
	case ColWind:
		return o.Wind, true
	case ColHumidity:
		return o.Humidity, true
	case ColPrecip:
		return o.Precip, true
	case ColLogPopDensity:
		return o.LogPopDensity, true
	case ColLogLightDensity:
		return o.LogLightDensity, true
	case ColUrban:
		return o.Urban, true
	}
	return 0, false
}

// ExposureVector returns the observation's values over the exposure terms
// (current week first, then lags 1..LagCount).
func (o *Observation) ExposureVector() []float64 {
	x := make([]float64, 0, LagCount+1)
	x = append(x, o.Flood)
	x = append(x, o.FloodLags[:]...)
	return x
}

// ModelSpec enumerates which optional terms are active for a run. It is built
// once during preparation and consumed everywhere else as data; downstream
// components never probe the table for column existence.
type ModelSpec struct {
	Response string
	Exposure string

	// Controls lists the active control regressors in fit order.
	Controls []string

	// OffsetAvailable reports whether a population offset column exists.
	// When false no offset term is used anywhere in the pipeline.
	OffsetAvailable bool
	OffsetCol       string
}

// ExposureTerms returns the exposure coefficient subset K: the current-week
// term followed by the lag terms.
func (s ModelSpec) ExposureTerms() []string {
	return []string{ColFlood, ColFloodLag1, ColFloodLag2, ColFloodLag3, ColFloodLag4}
}

// Regressors returns all named regressors (exposure terms then controls),
// excluding fixed effects and the offset.
func (s ModelSpec) Regressors() []string {
	terms := s.ExposureTerms()
	out := make([]string, 0, len(terms)+len(s.Controls))
	out = append(out, terms...)
	out = append(out, s.Controls...)
	return out
}

// Panel is the prepared analysis table plus the exposure dispersion statistics
// needed by the scenario step.
type Panel struct {
	Observations []Observation
	Spec         ModelSpec

	// ExposureSD is the global standard deviation of the exposure column.
	ExposureSD float64

	// CityExposureSD maps each city to the standard deviation of its own
	// exposure series. Zero entries mark cities with degenerate exposure.
	CityExposureSD map[core.CityID]float64
}

// Cities returns the distinct city IDs in panel order.
func (p *Panel) Cities() []core.CityID {
	seen := make(map[core.CityID]bool)
	var out []core.CityID
	for i := range p.Observations {
		c := p.Observations[i].City
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// ByCity groups observation indices by city, preserving panel order.
func (p *Panel) ByCity() map[core.CityID][]int {
	out := make(map[core.CityID][]int)
	for i := range p.Observations {
		out[p.Observations[i].City] = append(out[p.Observations[i].City], i)
	}
	return out
}
