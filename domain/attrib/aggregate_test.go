package attrib_test

import (
	"context"
	"math"
	"testing"

	"floodattr/domain/attrib"
	"floodattr/domain/core"
	"floodattr/domain/panel"
	"floodattr/domain/regress"
	"floodattr/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoCityPanel(t *testing.T) *panel.Panel {
	t.Helper()
	rows := []panel.RawRow{
		{City: "A", Year: 2017, Week: 1, Values: map[string]float64{panel.RawCases: 10, panel.RawFlood: 2}},
		{City: "A", Year: 2017, Week: 2, Values: map[string]float64{panel.RawCases: 8, panel.RawFlood: 0}},
		{City: "A", Year: 2017, Week: 3, Values: map[string]float64{panel.RawCases: 12, panel.RawFlood: 1}},
		{City: "B", Year: 2017, Week: 1, Values: map[string]float64{panel.RawCases: 5, panel.RawFlood: 0}},
		{City: "B", Year: 2017, Week: 2, Values: map[string]float64{panel.RawCases: 7, panel.RawFlood: 3}},
	}
	p, err := panel.Prepare(rows)
	require.NoError(t, err)
	return p
}

func aggEngine(t *testing.T, p *panel.Panel) *attrib.Engine {
	t.Helper()
	m := testkit.KnownModel(0, map[string]float64{panel.ColFlood: 0.2}, p.Spec.Regressors(), 0.05, "")
	eng, err := attrib.NewEngine(m, 0.95)
	require.NoError(t, err)
	return eng
}

func TestAggregateCities_PAFEstimatorAdditivity(t *testing.T) {
	p := twoCityPanel(t)
	eng := aggEngine(t, p)

	cities, skipped, warn, err := attrib.AggregateCities(context.Background(), eng, p, attrib.DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, skipped)
	assert.Equal(t, 0, warn.Total())
	require.Len(t, cities, 2)

	// City attributable counts are the sum of per-observation PAF * cases.
	// Only the current-week coefficient is nonzero here, so theta = 0.2*flood
	// regardless of the lag structure.
	byCity := p.ByCity()
	for _, ca := range cities {
		var want, cases float64
		floodWeeks := 0
		for _, i := range byCity[ca.City] {
			o := &p.Observations[i]
			want += o.Cases * (1 - math.Exp(-0.2*o.Flood))
			cases += o.Cases
			if o.Flood > 0 {
				floodWeeks++
			}
		}
		assert.InDelta(t, want, ca.AttributableCases.Point, 1e-10, "city %s", ca.City)
		assert.Equal(t, cases, ca.TotalCases)
		assert.Equal(t, floodWeeks, ca.FloodWeeks)
		assert.InDelta(t, want/cases, ca.PAF.Point, 1e-10)

		assert.LessOrEqual(t, ca.AttributableCases.Lower, ca.AttributableCases.Point)
		assert.LessOrEqual(t, ca.AttributableCases.Point, ca.AttributableCases.Upper)
		assert.GreaterOrEqual(t, ca.MeanPAF, 0.0)
		assert.GreaterOrEqual(t, ca.MedianPAF, 0.0)

		// Excess percent belongs to the difference estimator only.
		assert.Equal(t, attrib.Estimate{}, ca.ExcessPercent)
	}
}

func TestAggregateCities_CIModesAgreeOnPoint(t *testing.T) {
	p := twoCityPanel(t)
	eng := aggEngine(t, p)

	delta := attrib.DefaultConfig()
	sumBounds := attrib.DefaultConfig()
	sumBounds.CIMode = attrib.CIAggregationSumBounds

	dCities, _, _, err := attrib.AggregateCities(context.Background(), eng, p, delta)
	require.NoError(t, err)
	sCities, _, _, err := attrib.AggregateCities(context.Background(), eng, p, sumBounds)
	require.NoError(t, err)
	require.Len(t, sCities, len(dCities))

	for i := range dCities {
		assert.InDelta(t, dCities[i].AttributableCases.Point, sCities[i].AttributableCases.Point, 1e-10)
		// Sum-of-bounds is the wider, more conservative interval here: each
		// per-observation interval is summed without covariance cancellation.
		assert.LessOrEqual(t, sCities[i].AttributableCases.Lower, sCities[i].AttributableCases.Point)
		assert.GreaterOrEqual(t, sCities[i].AttributableCases.Upper, sCities[i].AttributableCases.Point)
	}
}

func TestAggregateCities_DifferenceEstimator(t *testing.T) {
	p := twoCityPanel(t)
	eng := aggEngine(t, p)

	cfg := attrib.DefaultConfig()
	cfg.Estimator = attrib.EstimatorDifference

	cities, skipped, _, err := attrib.AggregateCities(context.Background(), eng, p, cfg)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	require.Len(t, cities, 2)

	// The model predicts from fitted counts rather than observed cases, but
	// attribution is still nonnegative under a positive flood effect. With only
	// the current-week coefficient nonzero and no fixed effects, each row
	// predicts exp(0.2*flood) factual against 1 counterfactual.
	byCity := p.ByCity()
	for _, ca := range cities {
		assert.Equal(t, attrib.EstimatorDifference, ca.Estimator)
		assert.GreaterOrEqual(t, ca.AttributableCases.Point, 0.0)
		assert.LessOrEqual(t, ca.AttributableCases.Lower, ca.AttributableCases.Upper)

		var factual float64
		for _, i := range byCity[ca.City] {
			factual += math.Exp(0.2 * p.Observations[i].Flood)
		}
		n := float64(len(byCity[ca.City]))
		assert.False(t, ca.ExcessPercent.ZeroBaseline)
		assert.InDelta(t, (factual-n)/n*100, ca.ExcessPercent.Point, 1e-10, "city %s", ca.City)
	}
}

func TestAggregateCities_SingularCovarianceSkipsCity(t *testing.T) {
	p := twoCityPanel(t)

	names := p.Spec.Regressors()
	coefficients := make(map[string]float64, len(names))
	for _, name := range names {
		coefficients[name] = 0
	}
	k := len(names)
	cov := make([]float64, k*k)
	cov[1] = math.NaN() // poisoned off-diagonal entry
	cov[k] = math.NaN()
	m, err := regress.New(0, coefficients, names, cov, nil, nil, "")
	require.NoError(t, err)
	eng, err := attrib.NewEngine(m, 0.95)
	require.NoError(t, err)

	cities, skipped, _, err := attrib.AggregateCities(context.Background(), eng, p, attrib.DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, cities)
	require.Len(t, skipped, 2)
	for _, s := range skipped {
		assert.Equal(t, "SINGULAR_COVARIANCE", s.Code)
		assert.Contains(t, s.Key, "city:")
	}
}

func TestGlobalPAF_Weightings(t *testing.T) {
	cities := []attrib.CityAttribution{
		{
			City: "A", FloodWeeks: 3, TotalCases: 100,
			PAF: attrib.Estimate{Point: 0.2, Lower: 0.1, Upper: 0.3},
		},
		{
			City: "B", FloodWeeks: 1, TotalCases: 300,
			PAF: attrib.Estimate{Point: 0.1, Lower: 0.05, Upper: 0.15},
		},
	}

	global := attrib.GlobalPAF(cities)
	require.Len(t, global, 3)
	byWeighting := make(map[attrib.Weighting]attrib.GlobalAttribution)
	for _, g := range global {
		byWeighting[g.Weighting] = g
	}

	fw := byWeighting[attrib.WeightFloodWeeks]
	assert.Equal(t, 2, fw.Cities)
	assert.InDelta(t, (3*0.2+1*0.1)/4, fw.PAF.Point, 1e-12)

	cw := byWeighting[attrib.WeightCases]
	assert.InDelta(t, (100*0.2+300*0.1)/400, cw.PAF.Point, 1e-12)

	uw := byWeighting[attrib.WeightUnweighted]
	assert.InDelta(t, (0.2+0.1)/2, uw.PAF.Point, 1e-12)
	assert.InDelta(t, (0.1+0.05)/2, uw.PAF.Lower, 1e-12)
}

func TestGlobalPAF_SkipsZeroBaselineCities(t *testing.T) {
	cities := []attrib.CityAttribution{
		{City: "A", FloodWeeks: 2, TotalCases: 50, PAF: attrib.Estimate{Point: 0.2, Lower: 0.1, Upper: 0.3}},
		{City: "B", FloodWeeks: 4, PAF: attrib.Estimate{ZeroBaseline: true}},
	}

	global := attrib.GlobalPAF(cities)
	for _, g := range global {
		assert.Equal(t, 1, g.Cities, string(g.Weighting))
		assert.InDelta(t, 0.2, g.PAF.Point, 1e-12)
	}
}

func TestNewSkipped_ErrorCodes(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{core.NewSingularCovarianceError("x"), "SINGULAR_COVARIANCE"},
		{core.NewDegenerateExposureError("flood", 0), "DEGENERATE_EXPOSURE"},
		{core.NewBoundOrderingError("paf", 2, 1, 3), "BOUND_ORDERING"},
		{core.ErrUnknownCoefficient, "UNKNOWN_COEFFICIENT"},
		{context.DeadlineExceeded, "ESTIMATE_FAILED"},
	}
	for _, tt := range tests {
		s := attrib.NewSkipped("k", tt.err)
		assert.Equal(t, tt.code, s.Code)
		assert.Equal(t, "k", s.Key)
		assert.NotEmpty(t, s.Reason)
	}
}
