package attrib

import (
	"fmt"
	"math"
	"sort"

	"floodattr/domain/core"
	"floodattr/domain/panel"
)

// PopulationProjection is one row of the external future-population table,
// keyed by (city, scenario, year).
type PopulationProjection struct {
	City       core.CityID
	Scenario   string
	Year       int
	Population float64
}

// ScenarioProjection extends a city's estimated flood effect into a future
// population scenario.
type ScenarioProjection struct {
	City     core.CityID      `json:"city"`
	Key      core.ScenarioKey `json:"key"`
	Scenario string           `json:"scenario"`
	Year     int              `json:"year"`

	// BaselineCases is the projected annual baseline: the historical annual
	// mean, population-scaled when PopulationAdjusted is true.
	BaselineCases float64 `json:"baseline_cases"`

	// PopulationAdjusted reports whether the baseline was scaled by
	// projected/historical population. Selected per row by data availability,
	// never silently mixed within a row.
	PopulationAdjusted   bool    `json:"population_adjusted"`
	HistoricalPopulation float64 `json:"historical_population,omitempty"`
	ProjectedPopulation  float64 `json:"projected_population,omitempty"`

	// PercentChange is the city-specific effect of a one-SD flood week
	// (current exposure at the city's own historical flood SD, all lags zero)
	// against the no-flood counterfactual.
	PercentChange Estimate `json:"percent_change"`

	ScenarioCases   float64 `json:"scenario_cases"`
	AdditionalCases float64 `json:"additional_cases"`
	AdditionalLower float64 `json:"additional_lower"`
	AdditionalUpper float64 `json:"additional_upper"`
}

// ProjectScenarios computes one projection per (city, scenario, year) present
// in the projection table. A city with degenerate exposure variance skips its
// scenarios only; the rest of the batch proceeds.
func ProjectScenarios(eng *Engine, p *panel.Panel, projections []PopulationProjection) ([]ScenarioProjection, []SkippedEstimate) {
	terms := p.Spec.ExposureTerms()
	byCity := p.ByCity()

	// Per-city historical baselines.
	type cityBase struct {
		annualMean float64
		avgPop     float64
		pctChange  Estimate
		err        error
	}
	bases := make(map[core.CityID]*cityBase, len(byCity))
	for city, idx := range byCity {
		b := &cityBase{}
		years := make(map[int]bool)
		var cases, popSum float64
		for _, i := range idx {
			o := &p.Observations[i]
			years[o.Year] = true
			cases += o.Cases
			if p.Spec.OffsetAvailable {
				popSum += math.Exp(o.LogPop)
			}
		}
		if len(years) > 0 {
			b.annualMean = cases / float64(len(years))
		}
		if p.Spec.OffsetAvailable && len(idx) > 0 {
			b.avgPop = popSum / float64(len(idx))
		}

		sd := p.CityExposureSD[city]
		if sd == 0 {
			b.err = core.NewDegenerateExposureError(fmt.Sprintf("%s[%s]", panel.RawFlood, city), sd)
		} else {
			// One-SD flood week: current exposure at the city's own SD, lags
			// zero, against all exposure terms zero.
			x := make([]float64, len(terms))
			x[0] = sd
			eff, err := eng.WeightedEffect(terms, x)
			if err == nil {
				b.pctChange, err = eng.PercentChange(eff)
			}
			b.err = err
		}
		bases[city] = b
	}

	var out []ScenarioProjection
	var skipped []SkippedEstimate
	skippedCities := make(map[core.CityID]bool)
	projected := make(map[core.CityID]bool, len(bases))

	for _, pr := range projections {
		projected[pr.City] = true
		key := core.NewScenarioKey(pr.Scenario, pr.Year)
		b, ok := bases[pr.City]
		if !ok {
			// Projection for a city absent from the panel; nothing to project.
			continue
		}
		if b.err != nil {
			if !skippedCities[pr.City] {
				skippedCities[pr.City] = true
				skipped = append(skipped, NewSkipped("scenario:"+pr.City.String(), b.err))
			}
			continue
		}

		sp := ScenarioProjection{
			City:          pr.City,
			Key:           key,
			Scenario:      pr.Scenario,
			Year:          pr.Year,
			BaselineCases: b.annualMean,
			PercentChange: b.pctChange,
		}
		if b.avgPop > 0 && pr.Population > 0 {
			sp.PopulationAdjusted = true
			sp.HistoricalPopulation = b.avgPop
			sp.ProjectedPopulation = pr.Population
			sp.BaselineCases = b.annualMean * (pr.Population / b.avgPop)
		}

		sp.ScenarioCases = sp.BaselineCases * (1 + sp.PercentChange.Point/100)
		sp.AdditionalCases = sp.ScenarioCases - sp.BaselineCases
		sp.AdditionalLower = sp.BaselineCases * sp.PercentChange.Lower / 100
		sp.AdditionalUpper = sp.BaselineCases * sp.PercentChange.Upper / 100

		out = append(out, sp)
	}

	// Panel cities the projection table never mentions produce no scenarios at
	// all; record each once so the gap is visible on the report.
	if len(projections) > 0 {
		var missing []core.CityID
		for city := range bases {
			if !projected[city] && !skippedCities[city] {
				missing = append(missing, city)
			}
		}
		sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
		for _, city := range missing {
			skipped = append(skipped, NewSkipped("scenario:"+city.String(),
				fmt.Errorf("%w: %s", core.ErrMissingProjection, city)))
		}
	}
	return out, skipped
}
