package panel

import (
	"math"
	"sort"

	"floodattr/domain/core"

	"gonum.org/v1/gonum/stat"
)

// Prepare builds the analysis panel from raw city-week rows: sorted order,
// lagged exposure columns, derived covariates, response coercion, and the
// ModelSpec recording which optional terms are active.
//
// Column availability is resolved here, once: an optional column is active only
// when present in every row. The response and exposure columns are mandatory.
func Prepare(rows []RawRow) (*Panel, error) {
	if len(rows) == 0 {
		return nil, core.ErrEmptyPanel
	}

	avail := columnAvailability(rows)
	if !avail[RawCases] {
		return nil, core.NewMissingColumnError(RawCases)
	}
	if !avail[RawFlood] {
		return nil, core.NewMissingColumnError(RawFlood)
	}

	sorted := make([]RawRow, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.City != b.City {
			return a.City < b.City
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Week < b.Week
	})

	spec := buildSpec(avail)

	obs := make([]Observation, len(sorted))
	for i, r := range sorted {
		o := Observation{
			City:     r.City,
			Year:     r.Year,
			Week:     r.Week,
			YearWeek: core.NewYearWeek(r.Year, r.Week),
			Cases:    coerceResponse(r.Values[RawCases]),
			Flood:    r.Values[RawFlood],
		}
		if spec.OffsetAvailable {
			pop := r.Values[RawPopulation]
			if pop < 1 || math.IsNaN(pop) {
				// Non-positive or missing population is floored to 1 so the
				// offset log is always defined.
				pop = 1
			}
			o.LogPop = math.Log(pop)
		}
		if avail[RawTemp] {
			o.Temp = r.Values[RawTemp]
			o.TempSq = o.Temp * o.Temp
		}
		if avail[RawTempMax] && avail[RawTempMin] {
			o.TempRange = r.Values[RawTempMax] - r.Values[RawTempMin]
		}
		if avail[RawPressure] {
			o.Pressure = r.Values[RawPressure]
		}
		if avail[RawWind] {
			o.Wind = r.Values[RawWind]
		}
		if avail[RawHumidity] {
			o.Humidity = r.Values[RawHumidity]
		}
		if avail[RawPrecip] {
			o.Precip = r.Values[RawPrecip]
		}
		if avail[RawPopDensity] {
			o.LogPopDensity = math.Log1p(math.Max(r.Values[RawPopDensity], 0))
		}
		if avail[RawLightDensity] {
			o.LogLightDensity = math.Log1p(math.Max(r.Values[RawLightDensity], 0))
		}
		if avail[RawUrban] {
			o.Urban = r.Values[RawUrban]
		}
		obs[i] = o
	}

	fillLags(obs)

	p := &Panel{
		Observations:   obs,
		Spec:           spec,
		CityExposureSD: make(map[core.CityID]float64),
	}

	exposure := make([]float64, len(obs))
	for i := range obs {
		exposure[i] = obs[i].Flood
	}
	p.ExposureSD = stat.StdDev(exposure, nil)
	if p.ExposureSD == 0 || math.IsNaN(p.ExposureSD) {
		return nil, core.NewDegenerateExposureError(RawFlood, p.ExposureSD)
	}

	for city, idx := range p.ByCity() {
		series := make([]float64, len(idx))
		for k, i := range idx {
			series[k] = obs[i].Flood
		}
		sd := stat.StdDev(series, nil)
		if math.IsNaN(sd) {
			sd = 0
		}
		p.CityExposureSD[city] = sd
	}

	return p, nil
}

// columnAvailability reports, for each raw column, whether it is present in
// every row. Partial presence counts as absent so a run never silently mixes
// populated and zero-filled values for the same term.
func columnAvailability(rows []RawRow) map[string]bool {
	counts := make(map[string]int)
	for _, r := range rows {
		for name := range r.Values {
			counts[name]++
		}
	}
	avail := make(map[string]bool, len(counts))
	for name, n := range counts {
		avail[name] = n == len(rows)
	}
	return avail
}

func buildSpec(avail map[string]bool) ModelSpec {
	spec := ModelSpec{
		Response: ColCases,
		Exposure: ColFlood,
	}
	if avail[RawTemp] {
		spec.Controls = append(spec.Controls, ColTemp, ColTempSq)
	}
	if avail[RawTempMax] && avail[RawTempMin] {
		spec.Controls = append(spec.Controls, ColTempRange)
	}
	if avail[RawPressure] {
		spec.Controls = append(spec.Controls, ColPressure)
	}
	if avail[RawWind] {
		spec.Controls = append(spec.Controls, ColWind)
	}
	if avail[RawHumidity] {
		spec.Controls = append(spec.Controls, ColHumidity)
	}
	if avail[RawPrecip] {
		spec.Controls = append(spec.Controls, ColPrecip)
	}
	if avail[RawPopDensity] {
		spec.Controls = append(spec.Controls, ColLogPopDensity)
	}
	if avail[RawLightDensity] {
		spec.Controls = append(spec.Controls, ColLogLightDensity)
	}
	if avail[RawUrban] {
		spec.Controls = append(spec.Controls, ColUrban)
	}
	if avail[RawPopulation] {
		spec.OffsetAvailable = true
		spec.OffsetCol = ColLogPop
	}
	return spec
}

// fillLags populates FloodLags from each city's own series. The input must be
// sorted by (city, year, week). Pre-series lags are zero, not missing.
func fillLags(obs []Observation) {
	start := 0
	for i := 1; i <= len(obs); i++ {
		if i == len(obs) || obs[i].City != obs[start].City {
			for j := start; j < i; j++ {
				for k := 1; k <= LagCount; k++ {
					if j-k >= start {
						obs[j].FloodLags[k-1] = obs[j-k].Flood
					}
				}
			}
			start = i
		}
	}
}

// coerceResponse rounds the case count and floors it at zero.
func coerceResponse(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	return v
}
