package attrib_test

import (
	"math"
	"testing"

	"floodattr/domain/attrib"
	"floodattr/domain/core"
	"floodattr/domain/panel"
	"floodattr/domain/regress"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func predictModel(t *testing.T, offsetCol string) *regress.FittedModel {
	t.Helper()
	spec := panel.ModelSpec{Response: panel.ColCases, Exposure: panel.ColFlood}
	names := spec.Regressors()
	coefficients := make(map[string]float64, len(names))
	for _, name := range names {
		coefficients[name] = 0
	}
	coefficients[panel.ColFlood] = 0.2
	cov := make([]float64, len(names)*len(names))

	m, err := regress.New(1.0, coefficients, names, cov,
		map[core.CityID]float64{"A": 0.5, "B": 0},
		map[core.YearWeek]float64{core.NewYearWeek(2017, 1): -0.1},
		offsetCol)
	require.NoError(t, err)
	return m
}

func TestPredict_LinearPredictor(t *testing.T) {
	m := predictModel(t, "")
	spec := panel.ModelSpec{Response: panel.ColCases, Exposure: panel.ColFlood}
	obs := []panel.Observation{{
		City: "A", Year: 2017, Week: 1, YearWeek: core.NewYearWeek(2017, 1),
		Flood: 2,
	}}

	counts, warn := attrib.Predict(m, spec, obs, nil)
	require.Len(t, counts, 1)
	assert.Equal(t, 0, warn.Total())
	// eta = intercept + 0.2*flood + cityFE + timeFE.
	assert.InDelta(t, math.Exp(1.0+0.4+0.5-0.1), counts[0], 1e-10)
}

func TestPredict_OffsetApplied(t *testing.T) {
	m := predictModel(t, panel.ColLogPop)
	spec := panel.ModelSpec{
		Response: panel.ColCases, Exposure: panel.ColFlood,
		OffsetAvailable: true, OffsetCol: panel.ColLogPop,
	}
	obs := []panel.Observation{{
		City: "B", Year: 2017, Week: 1, YearWeek: core.NewYearWeek(2017, 1),
		Flood: 0, LogPop: math.Log(1000),
	}}

	counts, warn := attrib.Predict(m, spec, obs, nil)
	assert.Equal(t, 0, warn.Total())
	assert.InDelta(t, math.Exp(1.0-0.1)*1000, counts[0], 1e-6)
}

func TestPredict_CounterfactualIsolatesExposure(t *testing.T) {
	m := predictModel(t, "")
	spec := panel.ModelSpec{Response: panel.ColCases, Exposure: panel.ColFlood}
	obs := []panel.Observation{
		{City: "A", YearWeek: core.NewYearWeek(2017, 1), Flood: 2, FloodLags: [panel.LagCount]float64{1, 0, 0, 0}},
		{City: "B", YearWeek: core.NewYearWeek(2017, 1), Flood: 0},
	}

	factual, _ := attrib.Predict(m, spec, obs, nil)
	counterfactual, _ := attrib.Predict(m, spec, obs, attrib.NoFlood(spec))

	// The flooded row differs by exactly the exposure contribution; the
	// unflooded row is identical under both worlds.
	assert.InDelta(t, math.Exp(0.2*2), factual[0]/counterfactual[0], 1e-10)
	assert.InDelta(t, factual[1], counterfactual[1], 1e-10)
}

func TestPredict_Deterministic(t *testing.T) {
	m := predictModel(t, "")
	spec := panel.ModelSpec{Response: panel.ColCases, Exposure: panel.ColFlood}
	obs := []panel.Observation{
		{City: "A", YearWeek: core.NewYearWeek(2017, 1), Flood: 1.7, FloodLags: [panel.LagCount]float64{0.3, 0, 1.1, 0}},
	}
	ov := attrib.NoFlood(spec)

	first, _ := attrib.Predict(m, spec, obs, ov)
	second, _ := attrib.Predict(m, spec, obs, ov)
	assert.Equal(t, first, second)
}

func TestPredict_UnmatchedGroupKeysWarnOnce(t *testing.T) {
	m := predictModel(t, "")
	spec := panel.ModelSpec{Response: panel.ColCases, Exposure: panel.ColFlood}
	unseen := core.NewYearWeek(2018, 5)
	obs := []panel.Observation{
		{City: "Z", YearWeek: unseen, Flood: 1},
		{City: "Z", YearWeek: unseen, Flood: 0},
		{City: "A", YearWeek: core.NewYearWeek(2017, 1), Flood: 0},
	}

	counts, warn := attrib.Predict(m, spec, obs, nil)
	// Unseen keys contribute zero and are counted once per key, not per row.
	assert.Equal(t, 1, warn.UnmatchedCityKeys)
	assert.Equal(t, 1, warn.UnmatchedTimeKeys)
	assert.InDelta(t, math.Exp(1.0+0.2), counts[0], 1e-10)
}

func TestNoFlood_CoversAllExposureTerms(t *testing.T) {
	spec := panel.ModelSpec{Response: panel.ColCases, Exposure: panel.ColFlood}
	ov := attrib.NoFlood(spec)
	require.Len(t, ov, panel.LagCount+1)
	for _, name := range spec.ExposureTerms() {
		v, ok := ov[name]
		assert.True(t, ok, name)
		assert.Equal(t, 0.0, v)
	}
}
