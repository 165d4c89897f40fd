package attrib

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"floodattr/domain/core"
	"floodattr/domain/panel"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// CityAttribution aggregates per-observation estimates for one city.
type CityAttribution struct {
	City         core.CityID `json:"city"`
	Observations int         `json:"observations"`
	FloodWeeks   int         `json:"flood_weeks"`
	TotalCases   float64     `json:"total_cases"`

	// MeanPAF and MedianPAF summarize per-observation PAF points.
	MeanPAF   float64 `json:"mean_paf"`
	MedianPAF float64 `json:"median_paf"`

	// PAF is the city-level attributable fraction: attributable cases over
	// total cases.
	PAF Estimate `json:"paf"`

	// AttributableCases is the summed per-observation attributable count with
	// its aggregated interval.
	AttributableCases Estimate `json:"attributable_cases"`

	// AvgPopulation is the historical average population, 0 when the panel
	// carries no population column.
	AvgPopulation float64 `json:"avg_population,omitempty"`

	// ExcessPercent is the percent elevation of the factual prediction over the
	// no-flood counterfactual, populated only under the difference estimator.
	ExcessPercent Estimate `json:"excess_percent"`

	Estimator Estimator     `json:"estimator"`
	CIMode    CIAggregation `json:"ci_mode"`
}

// SkippedEstimate records an estimate that was aborted without aborting the
// batch: its key, a stable error code, and the reason.
type SkippedEstimate struct {
	Key    string `json:"key"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// NewSkipped classifies an estimate failure into a SkippedEstimate.
func NewSkipped(key string, err error) SkippedEstimate {
	code := "ESTIMATE_FAILED"
	switch {
	case errors.Is(err, core.ErrSingularCovariance):
		code = "SINGULAR_COVARIANCE"
	case errors.Is(err, core.ErrDegenerateExposure):
		code = "DEGENERATE_EXPOSURE"
	case errors.Is(err, core.ErrInvalidBoundOrdering):
		code = "BOUND_ORDERING"
	case errors.Is(err, core.ErrUnknownCoefficient):
		code = "UNKNOWN_COEFFICIENT"
	case errors.Is(err, core.ErrMissingProjection):
		code = "MISSING_PROJECTION"
	}
	return SkippedEstimate{Key: key, Code: code, Reason: err.Error()}
}

// AggregateCities rolls per-observation attributable-case estimates up to the
// city level. Cities are independent and evaluated in parallel; a failure in
// one city skips that city only.
func AggregateCities(ctx context.Context, eng *Engine, p *panel.Panel, cfg Config) ([]CityAttribution, []SkippedEstimate, PredictWarnings, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, PredictWarnings{}, err
	}

	// Counterfactual-difference estimates need the factual and no-flood
	// prediction columns; computed once over the whole panel so both share
	// identical fixed-effect and offset treatment.
	var factual, counterfactual []float64
	var warn PredictWarnings
	if cfg.Estimator == EstimatorDifference {
		factual, warn = Predict(eng.Model(), p.Spec, p.Observations, nil)
		counterfactual, _ = Predict(eng.Model(), p.Spec, p.Observations, NoFlood(p.Spec))
	}

	cities := p.Cities()
	byCity := p.ByCity()

	results := make([]*CityAttribution, len(cities))
	skips := make([]*SkippedEstimate, len(cities))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for ci, city := range cities {
		ci, city := ci, city
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ca, err := cityAttribution(eng, p, city, byCity[city], factual, counterfactual, cfg)
			if err != nil {
				if core.IsEstimateError(err) {
					s := NewSkipped("city:"+city.String(), err)
					skips[ci] = &s
					return nil
				}
				return fmt.Errorf("city %s: %w", city, err)
			}
			results[ci] = ca
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, warn, err
	}

	out := make([]CityAttribution, 0, len(cities))
	var skipped []SkippedEstimate
	for i := range cities {
		if results[i] != nil {
			out = append(out, *results[i])
		}
		if skips[i] != nil {
			skipped = append(skipped, *skips[i])
		}
	}
	return out, skipped, warn, nil
}

func cityAttribution(eng *Engine, p *panel.Panel, city core.CityID, idx []int, factual, counterfactual []float64, cfg Config) (*CityAttribution, error) {
	terms := p.Spec.ExposureTerms()
	sigma, err := eng.Model().CovSubmatrix(terms)
	if err != nil {
		return nil, err
	}

	ca := &CityAttribution{
		City:         city,
		Observations: len(idx),
		Estimator:    cfg.Estimator,
		CIMode:       cfg.CIMode,
	}

	var pafPoints []float64
	var sumPoint, sumLower, sumUpper float64
	grad := make([]float64, len(terms))
	var popSum float64
	var factualSum, counterfactualSum float64

	for _, i := range idx {
		o := &p.Observations[i]
		ca.TotalCases += o.Cases
		if o.Flood > 0 {
			ca.FloodWeeks++
		}
		if p.Spec.OffsetAvailable {
			popSum += math.Exp(o.LogPop)
		}

		x := o.ExposureVector()
		eff, err := eng.WeightedEffect(terms, x)
		if err != nil {
			return nil, err
		}
		paf, err := eng.PAF(eff)
		if err != nil {
			return nil, err
		}
		pafPoints = append(pafPoints, paf.Point)

		var att Estimate
		switch cfg.Estimator {
		case EstimatorPAF:
			// Attributable cases use the observation's actual count, not a
			// model prediction. Cases are non-negative, so scaling preserves
			// bound ordering.
			att = Estimate{
				Point: paf.Point * o.Cases,
				SE:    paf.SE * o.Cases,
				Lower: paf.Lower * o.Cases,
				Upper: paf.Upper * o.Cases,
			}
			// d/dbeta of cases * (1 - exp(-x'beta)) = cases * exp(-x'beta) * x.
			w := o.Cases * math.Exp(-eff.Theta)
			for k := range grad {
				grad[k] += w * x[k]
			}
		case EstimatorDifference:
			factualSum += factual[i]
			counterfactualSum += counterfactual[i]
			d := factual[i] - counterfactual[i]
			se := factual[i] * eff.SE()
			att = eng.estimateFrom(d, se)
			// d/dbeta of (factual - counterfactual) = factual * x.
			for k := range grad {
				grad[k] += factual[i] * x[k]
			}
		}

		sumPoint += att.Point
		sumLower += att.Lower
		sumUpper += att.Upper
	}

	switch cfg.CIMode {
	case CIAggregationDelta:
		gv := mat.NewVecDense(len(grad), grad)
		v := mat.Inner(gv, sigma, gv)
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return nil, core.NewSingularCovarianceError(
				fmt.Sprintf("city %s gradient quadratic form evaluated to %g", city, v))
		}
		ca.AttributableCases = eng.estimateFrom(sumPoint, math.Sqrt(v))
	case CIAggregationSumBounds:
		ca.AttributableCases = Estimate{
			Point: sumPoint,
			Lower: sumLower,
			Upper: sumUpper,
		}
	}
	if err := ca.AttributableCases.checkOrdering("attributable_cases"); err != nil {
		return nil, err
	}

	ca.MeanPAF, _ = stats.Mean(pafPoints)
	ca.MedianPAF, _ = stats.Median(pafPoints)

	if ca.TotalCases > 0 {
		ca.PAF = Estimate{
			Point: clip01(ca.AttributableCases.Point / ca.TotalCases),
			SE:    ca.AttributableCases.SE / ca.TotalCases,
			Lower: clip01(ca.AttributableCases.Lower / ca.TotalCases),
			Upper: clip01(ca.AttributableCases.Upper / ca.TotalCases),
		}
	} else {
		ca.PAF = Estimate{ZeroBaseline: true}
	}

	if p.Spec.OffsetAvailable && len(idx) > 0 {
		ca.AvgPopulation = popSum / float64(len(idx))
	}

	if cfg.Estimator == EstimatorDifference {
		ca.ExcessPercent = PercentDifference(factualSum, counterfactualSum)
	}

	return ca, nil
}

// Weighting selects the weight applied to each city's PAF in the global mean.
type Weighting string

const (
	WeightFloodWeeks Weighting = "flood_weeks"
	WeightCases      Weighting = "cases"
	WeightUnweighted Weighting = "unweighted"
)

// GlobalAttribution is the population-level PAF under one weighting. No single
// weighting is canonical; all three variants are reported.
type GlobalAttribution struct {
	Weighting Weighting `json:"weighting"`
	PAF       Estimate  `json:"paf"`
	Cities    int       `json:"cities"`
}

// GlobalPAF computes the weighted mean of city PAFs under each weighting.
// Interval bounds are weighted means of the city bounds (an approximation,
// consistent with the city-level aggregation convention).
func GlobalPAF(cities []CityAttribution) []GlobalAttribution {
	weightings := []Weighting{WeightFloodWeeks, WeightCases, WeightUnweighted}
	out := make([]GlobalAttribution, 0, len(weightings))
	for _, w := range weightings {
		var sumW, point, lower, upper float64
		n := 0
		for i := range cities {
			c := &cities[i]
			if c.PAF.ZeroBaseline {
				continue
			}
			wt := 1.0
			switch w {
			case WeightFloodWeeks:
				wt = float64(c.FloodWeeks)
			case WeightCases:
				wt = c.TotalCases
			}
			if wt <= 0 {
				continue
			}
			sumW += wt
			point += wt * c.PAF.Point
			lower += wt * c.PAF.Lower
			upper += wt * c.PAF.Upper
			n++
		}
		ga := GlobalAttribution{Weighting: w, Cities: n}
		if sumW > 0 {
			ga.PAF = Estimate{
				Point: point / sumW,
				Lower: lower / sumW,
				Upper: upper / sumW,
			}
		} else {
			ga.PAF = Estimate{ZeroBaseline: true}
		}
		out = append(out, ga)
	}
	return out
}

// estimateFrom builds a symmetric normal-theory interval around a point.
func (e *Engine) estimateFrom(point, se float64) Estimate {
	return Estimate{
		Point: point,
		SE:    se,
		Lower: point - e.z*se,
		Upper: point + e.z*se,
	}
}
