// Package regress holds the read-only fitted-model artifact consumed by the
// attribution engine. The model is produced once per specification by the
// fitter adapter and threaded explicitly through every downstream function.
package regress

import (
	"fmt"
	"math"

	"floodattr/domain/core"

	"gonum.org/v1/gonum/mat"
)

// FittedModel is the output of the fixed-effects Poisson fit: named
// coefficients with their covariance, fixed-effect contributions per grouping
// dimension, and the offset column (if any). Immutable after construction.
type FittedModel struct {
	intercept    float64
	coefficients map[string]float64
	names        []string
	index        map[string]int
	cov          []float64 // flattened p x p over names

	cityEffects map[core.CityID]float64
	timeEffects map[core.YearWeek]float64

	offsetCol string
}

// New validates and assembles a fitted model. cov is the flattened p x p
// covariance over names (row-major); every downstream coefficient lookup must
// resolve into both coefficients and cov, which New enforces up front.
func New(
	intercept float64,
	coefficients map[string]float64,
	names []string,
	cov []float64,
	cityEffects map[core.CityID]float64,
	timeEffects map[core.YearWeek]float64,
	offsetCol string,
) (*FittedModel, error) {
	p := len(names)
	if len(cov) != p*p {
		return nil, fmt.Errorf("covariance has %d entries, want %d for %d regressors", len(cov), p*p, p)
	}
	index := make(map[string]int, p)
	for i, name := range names {
		if _, ok := coefficients[name]; !ok {
			return nil, fmt.Errorf("%w: %s has covariance but no coefficient", core.ErrUnknownCoefficient, name)
		}
		index[name] = i
	}
	for i := 0; i < p; i++ {
		if v := cov[i*p+i]; v < 0 || math.IsNaN(v) {
			return nil, core.NewSingularCovarianceError(
				fmt.Sprintf("variance of %s is %g", names[i], v))
		}
	}
	m := &FittedModel{
		intercept:    intercept,
		coefficients: make(map[string]float64, len(coefficients)),
		names:        append([]string(nil), names...),
		index:        index,
		cov:          append([]float64(nil), cov...),
		cityEffects:  make(map[core.CityID]float64, len(cityEffects)),
		timeEffects:  make(map[core.YearWeek]float64, len(timeEffects)),
		offsetCol:    offsetCol,
	}
	for k, v := range coefficients {
		m.coefficients[k] = v
	}
	for k, v := range cityEffects {
		m.cityEffects[k] = v
	}
	for k, v := range timeEffects {
		m.timeEffects[k] = v
	}
	return m, nil
}

// Intercept returns the fitted intercept term.
func (m *FittedModel) Intercept() float64 { return m.intercept }

// Coef returns the coefficient for a named regressor.
func (m *FittedModel) Coef(name string) (float64, bool) {
	v, ok := m.coefficients[name]
	return v, ok
}

// Names returns the named regressors in covariance order.
func (m *FittedModel) Names() []string {
	return append([]string(nil), m.names...)
}

// CovSubmatrix returns the symmetric covariance submatrix restricted to the
// given coefficient subset, in the given order. Symmetry is enforced by
// averaging the off-diagonal mirror entries.
func (m *FittedModel) CovSubmatrix(subset []string) (*mat.SymDense, error) {
	k := len(subset)
	idx := make([]int, k)
	for i, name := range subset {
		j, ok := m.index[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", core.ErrUnknownCoefficient, name)
		}
		idx[i] = j
	}
	p := len(m.names)
	sub := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			v := 0.5 * (m.cov[idx[i]*p+idx[j]] + m.cov[idx[j]*p+idx[i]])
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, core.NewSingularCovarianceError(
					fmt.Sprintf("cov(%s, %s) = %g", subset[i], subset[j], v))
			}
			sub.SetSym(i, j, v)
		}
	}
	return sub, nil
}

// CityEffect returns the fitted fixed-effect contribution for a city. A key
// with no fitted contribution reports ok=false; callers treat it as zero.
func (m *FittedModel) CityEffect(id core.CityID) (float64, bool) {
	v, ok := m.cityEffects[id]
	return v, ok
}

// TimeEffect returns the fitted fixed-effect contribution for a year-week key.
func (m *FittedModel) TimeEffect(yw core.YearWeek) (float64, bool) {
	v, ok := m.timeEffects[yw]
	return v, ok
}

// OffsetCol returns the name of the column used as the fixed log-offset, or ""
// when the model was fitted without one.
func (m *FittedModel) OffsetCol() string { return m.offsetCol }

// HasOffset reports whether the model used a log-offset term.
func (m *FittedModel) HasOffset() bool { return m.offsetCol != "" }
