package attrib

import (
	"fmt"
	"math"

	"floodattr/domain/core"
	"floodattr/domain/regress"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Effect is a scalar effect on the log scale with its delta-method variance.
type Effect struct {
	Theta float64
	Var   float64
}

// SE returns the standard error of the effect.
func (e Effect) SE() float64 { return math.Sqrt(e.Var) }

// Estimate is a derived quantity with its confidence interval. The invariant
// Lower <= Point <= Upper holds for every published estimate; transforms that
// would invert it surface a defect error instead.
type Estimate struct {
	Point float64 `json:"point"`
	SE    float64 `json:"se"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`

	// ZeroBaseline marks a ratio against a zero baseline that was coerced to 0
	// instead of propagating NaN/Inf.
	ZeroBaseline bool `json:"zero_baseline,omitempty"`
}

// Percent returns the estimate scaled to percentage points.
func (e Estimate) Percent() Estimate {
	return Estimate{
		Point:        e.Point * 100,
		SE:           e.SE * 100,
		Lower:        e.Lower * 100,
		Upper:        e.Upper * 100,
		ZeroBaseline: e.ZeroBaseline,
	}
}

// checkOrdering asserts the bound-ordering invariant after a transform.
func (e Estimate) checkOrdering(name string) error {
	if e.Lower > e.Point || e.Point > e.Upper {
		return core.NewBoundOrderingError(name, e.Lower, e.Point, e.Upper)
	}
	return nil
}

// Engine computes delta-method effects and intervals from one fitted model.
// It is a pure function of the model and confidence level; safe for
// concurrent use.
type Engine struct {
	model *regress.FittedModel
	level float64
	z     float64
}

// NewEngine creates an effect engine for the given two-sided confidence level
// (e.g. 0.95).
func NewEngine(m *regress.FittedModel, level float64) (*Engine, error) {
	if level <= 0 || level >= 1 {
		return nil, fmt.Errorf("confidence level must be in (0, 1), got %g", level)
	}
	return &Engine{
		model: m,
		level: level,
		z:     distuv.UnitNormal.Quantile(0.5 + level/2),
	}, nil
}

// Model returns the engine's fitted model.
func (e *Engine) Model() *regress.FittedModel { return e.model }

// Level returns the configured confidence level.
func (e *Engine) Level() float64 { return e.level }

// TotalEffect computes theta = sum of the coefficients in subset K with
// Var(theta) = 1' * Sigma_K * 1, the full quadratic form including cross
// terms. Lag coefficients are correlated through shared flood events, so the
// cross terms are not optional.
func (e *Engine) TotalEffect(subset []string) (Effect, error) {
	ones := make([]float64, len(subset))
	for i := range ones {
		ones[i] = 1
	}
	return e.WeightedEffect(subset, ones)
}

// WeightedEffect computes theta = x'beta_K with Var = x' * Sigma_K * x for an
// observation-specific weight vector x over the coefficient subset K.
func (e *Engine) WeightedEffect(subset []string, x []float64) (Effect, error) {
	if len(x) != len(subset) {
		return Effect{}, fmt.Errorf("weight vector has %d entries, want %d", len(x), len(subset))
	}
	theta := 0.0
	for i, name := range subset {
		coef, ok := e.model.Coef(name)
		if !ok {
			return Effect{}, fmt.Errorf("%w: %s", core.ErrUnknownCoefficient, name)
		}
		theta += x[i] * coef
	}
	sigma, err := e.model.CovSubmatrix(subset)
	if err != nil {
		return Effect{}, err
	}
	v := mat.Inner(mat.NewVecDense(len(x), x), sigma, mat.NewVecDense(len(x), x))
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return Effect{}, core.NewSingularCovarianceError(
			fmt.Sprintf("quadratic form over %v evaluated to %g", subset, v))
	}
	return Effect{Theta: theta, Var: v}, nil
}

// Interval builds the normal-theory confidence interval for a log-scale effect.
func (e *Engine) Interval(eff Effect) Estimate {
	se := eff.SE()
	return Estimate{
		Point: eff.Theta,
		SE:    se,
		Lower: eff.Theta - e.z*se,
		Upper: eff.Theta + e.z*se,
	}
}

// PAF maps a log-scale effect to the population attributable fraction
// 1 - exp(-theta). The map is strictly increasing in theta, so the lower bound
// of theta maps to the lower bound of the PAF; the bounds are never swapped.
// The final interval is clipped to [0, 1] after construction.
func (e *Engine) PAF(eff Effect) (Estimate, error) {
	ci := e.Interval(eff)
	est := Estimate{
		Point: 1 - math.Exp(-ci.Point),
		// Delta method: Var(PAF) ~= exp(-theta)^2 * Var(theta).
		SE:    math.Exp(-eff.Theta) * eff.SE(),
		Lower: 1 - math.Exp(-ci.Lower),
		Upper: 1 - math.Exp(-ci.Upper),
	}
	if err := est.checkOrdering("paf"); err != nil {
		return Estimate{}, err
	}
	est.Point = clip01(est.Point)
	est.Lower = clip01(est.Lower)
	est.Upper = clip01(est.Upper)
	return est, nil
}

// RateRatio maps a log-scale effect to exp(theta) with endpoints exponentiated
// in order-preserving fashion.
func (e *Engine) RateRatio(eff Effect) (Estimate, error) {
	ci := e.Interval(eff)
	est := Estimate{
		Point: math.Exp(ci.Point),
		SE:    math.Exp(eff.Theta) * eff.SE(),
		Lower: math.Exp(ci.Lower),
		Upper: math.Exp(ci.Upper),
	}
	if err := est.checkOrdering("rate_ratio"); err != nil {
		return Estimate{}, err
	}
	return est, nil
}

// PercentChange maps a log-scale effect to (exp(theta) - 1) * 100.
func (e *Engine) PercentChange(eff Effect) (Estimate, error) {
	rr, err := e.RateRatio(eff)
	if err != nil {
		return Estimate{}, err
	}
	return Estimate{
		Point: (rr.Point - 1) * 100,
		SE:    rr.SE * 100,
		Lower: (rr.Lower - 1) * 100,
		Upper: (rr.Upper - 1) * 100,
	}, nil
}

// PercentDifference computes the percent change of observed against a baseline
// count. A zero baseline yields 0 with the ZeroBaseline flag set rather than
// NaN or Inf.
func PercentDifference(observed, baseline float64) Estimate {
	if baseline == 0 || math.IsNaN(baseline) {
		return Estimate{ZeroBaseline: true}
	}
	p := (observed - baseline) / baseline * 100
	return Estimate{Point: p, Lower: p, Upper: p}
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
