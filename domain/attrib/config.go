package attrib

import "fmt"

// Estimator selects how attributable cases are computed per observation.
type Estimator string

const (
	// EstimatorPAF scales each observation's actual case count by its PAF.
	EstimatorPAF Estimator = "paf"
	// EstimatorDifference subtracts the no-flood counterfactual prediction
	// from the factual prediction.
	EstimatorDifference Estimator = "difference"
)

// CIAggregation selects how city-level intervals for summed attributable
// cases are formed.
type CIAggregation string

const (
	// CIAggregationDelta propagates the shared coefficient covariance through
	// the gradient of the city sum. Observations within a city share beta
	// uncertainty, so this is the default.
	CIAggregationDelta CIAggregation = "delta"
	// CIAggregationSumBounds sums per-observation bounds directly, matching
	// the historical approximation.
	CIAggregationSumBounds CIAggregation = "sum-bounds"
)

// Config carries the estimator conventions for one run. Every published
// estimate records which conventions produced it.
type Config struct {
	ConfidenceLevel float64
	Estimator       Estimator
	CIMode          CIAggregation
}

// DefaultConfig returns the documented default conventions: 95% intervals,
// PAF-based attributable cases, delta-propagated city sums.
func DefaultConfig() Config {
	return Config{
		ConfidenceLevel: 0.95,
		Estimator:       EstimatorPAF,
		CIMode:          CIAggregationDelta,
	}
}

// Validate rejects unknown estimator or aggregation modes.
func (c Config) Validate() error {
	if c.ConfidenceLevel <= 0 || c.ConfidenceLevel >= 1 {
		return fmt.Errorf("confidence level must be in (0, 1), got %g", c.ConfidenceLevel)
	}
	switch c.Estimator {
	case EstimatorPAF, EstimatorDifference:
	default:
		return fmt.Errorf("unknown estimator %q", c.Estimator)
	}
	switch c.CIMode {
	case CIAggregationDelta, CIAggregationSumBounds:
	default:
		return fmt.Errorf("unknown ci aggregation %q", c.CIMode)
	}
	return nil
}
