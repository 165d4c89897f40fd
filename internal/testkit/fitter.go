package testkit

import (
	"context"

	"floodattr/domain/core"
	"floodattr/domain/panel"
	"floodattr/domain/regress"
	"floodattr/ports"
)

// StubFitter implements ports.FitterPort with fixed, known coefficients
// instead of running an optimizer. Tests that exercise the pipeline above the
// fit use it to get deterministic, hand-checkable estimates.
type StubFitter struct {
	// Intercept and Coefficients seed the returned model. Regressors absent
	// from Coefficients get a zero coefficient.
	Intercept    float64
	Coefficients map[string]float64

	// SE is the common standard error applied to every named regressor; the
	// covariance is diagonal with SE^2 on the diagonal.
	SE float64

	// Err, when set, is returned instead of a model.
	Err error
}

// NewStubFitter returns a fitter with a known positive current-week flood
// effect and zero lag effects.
func NewStubFitter() *StubFitter {
	return &StubFitter{
		Intercept:    1.0,
		Coefficients: map[string]float64{panel.ColFlood: 0.2},
		SE:           0.05,
	}
}

// FitPoissonFE assembles a model over the panel's regressors with the stub's
// coefficients and a diagonal covariance. Fixed effects are zero for every
// city and year-week present in the panel.
func (f *StubFitter) FitPoissonFE(ctx context.Context, p *panel.Panel) (*regress.FittedModel, error) {
	if f.Err != nil {
		return nil, f.Err
	}

	names := p.Spec.Regressors()
	coefficients := make(map[string]float64, len(names))
	for _, name := range names {
		coefficients[name] = f.Coefficients[name]
	}

	k := len(names)
	cov := make([]float64, k*k)
	for i := 0; i < k; i++ {
		cov[i*k+i] = f.SE * f.SE
	}

	cityEffects := make(map[core.CityID]float64)
	timeEffects := make(map[core.YearWeek]float64)
	for i := range p.Observations {
		cityEffects[p.Observations[i].City] = 0
		timeEffects[p.Observations[i].YearWeek] = 0
	}

	offsetCol := ""
	if p.Spec.OffsetAvailable {
		offsetCol = p.Spec.OffsetCol
	}

	return regress.New(f.Intercept, coefficients, names, cov, cityEffects, timeEffects, offsetCol)
}

var _ ports.FitterPort = (*StubFitter)(nil)

// KnownModel builds a fitted model directly from explicit coefficients and a
// diagonal covariance over the given names, with no fixed effects. It panics
// on invalid input so tests stay terse.
func KnownModel(intercept float64, coefficients map[string]float64, names []string, se float64, offsetCol string) *regress.FittedModel {
	k := len(names)
	cov := make([]float64, k*k)
	for i := 0; i < k; i++ {
		cov[i*k+i] = se * se
	}
	full := make(map[string]float64, k)
	for _, name := range names {
		full[name] = coefficients[name]
	}
	m, err := regress.New(intercept, full, names, cov,
		map[core.CityID]float64{}, map[core.YearWeek]float64{}, offsetCol)
	if err != nil {
		panic(err)
	}
	return m
}
