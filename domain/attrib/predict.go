// Package attrib implements the attribution core: counterfactual prediction
// from a fitted fixed-effects Poisson model, delta-method effect intervals,
// and city/scenario aggregation of attributable malaria burden.
package attrib

import (
	"math"

	"floodattr/domain/panel"
	"floodattr/domain/regress"
)

// Overrides substitutes values for named regressors during prediction, e.g.
// all lag terms forced to zero for a no-flood counterfactual.
type Overrides map[string]float64

// NoFlood returns the override that zeroes the current-week exposure and every
// lag term.
func NoFlood(spec panel.ModelSpec) Overrides {
	ov := make(Overrides, panel.LagCount+1)
	for _, name := range spec.ExposureTerms() {
		ov[name] = 0
	}
	return ov
}

// PredictWarnings counts fixed-effect group keys that had no fitted
// contribution and were treated as zero. Non-fatal; surfaced in the run report.
type PredictWarnings struct {
	UnmatchedCityKeys int
	UnmatchedTimeKeys int
}

// Total returns the combined unmatched-key count.
func (w PredictWarnings) Total() int {
	return w.UnmatchedCityKeys + w.UnmatchedTimeKeys
}

// Predict evaluates the fitted model on each observation, producing expected
// case counts under the given overrides. Fixed-effect and offset contributions
// are applied identically regardless of overrides, so the difference of two
// calls on the same row isolates exactly the exposure-driven change.
func Predict(m *regress.FittedModel, spec panel.ModelSpec, obs []panel.Observation, ov Overrides) ([]float64, PredictWarnings) {
	var warn PredictWarnings
	seenCity := make(map[string]bool)
	seenTime := make(map[string]bool)

	counts := make([]float64, len(obs))
	for i := range obs {
		o := &obs[i]
		eta := m.Intercept()
		for _, name := range spec.Regressors() {
			coef, ok := m.Coef(name)
			if !ok {
				continue
			}
			v, ok := o.Value(name)
			if !ok {
				continue
			}
			if forced, ok := ov[name]; ok {
				v = forced
			}
			eta += coef * v
		}
		if fe, ok := m.CityEffect(o.City); ok {
			eta += fe
		} else if !seenCity[o.City.String()] {
			seenCity[o.City.String()] = true
			warn.UnmatchedCityKeys++
		}
		if fe, ok := m.TimeEffect(o.YearWeek); ok {
			eta += fe
		} else if !seenTime[o.YearWeek.String()] {
			seenTime[o.YearWeek.String()] = true
			warn.UnmatchedTimeKeys++
		}
		if m.HasOffset() {
			eta += o.LogPop
		}
		counts[i] = math.Exp(eta)
	}
	return counts, warn
}
