package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Input/configuration errors, resolved once at panel preparation
	ErrMissingRequiredColumn = errors.New("required column missing")
	ErrDegenerateExposure    = errors.New("exposure variance is zero or undefined")
	ErrEmptyPanel            = errors.New("panel has no observations")

	// Estimation errors, fatal to a single estimate only
	ErrSingularCovariance   = errors.New("covariance submatrix unstable for quadratic form")
	ErrUnknownCoefficient   = errors.New("coefficient not present in fitted model")
	ErrInvalidBoundOrdering = errors.New("confidence bound ordering invariant violated")

	// Scenario errors
	ErrMissingProjection = errors.New("no population projection for scenario")
)

// NewMissingColumnError reports a mandatory input column that is absent.
func NewMissingColumnError(column string) error {
	return fmt.Errorf("%w: %s", ErrMissingRequiredColumn, column)
}

// NewDegenerateExposureError reports a zero/undefined exposure standard deviation.
func NewDegenerateExposureError(column string, sd float64) error {
	return fmt.Errorf("%w: sd(%s) = %g", ErrDegenerateExposure, column, sd)
}

// NewSingularCovarianceError reports an unreliable delta-method quadratic form.
func NewSingularCovarianceError(detail string) error {
	return fmt.Errorf("%w: %s", ErrSingularCovariance, detail)
}

// NewBoundOrderingError reports an inverted interval after a transform. This is a
// defect report, never an acceptable published estimate.
func NewBoundOrderingError(name string, lower, point, upper float64) error {
	return fmt.Errorf("%w: %s lower=%g point=%g upper=%g", ErrInvalidBoundOrdering, name, lower, point, upper)
}

// Error checking helpers
func IsInputError(err error) bool {
	return errors.Is(err, ErrMissingRequiredColumn) ||
		errors.Is(err, ErrEmptyPanel)
}

func IsEstimateError(err error) bool {
	return errors.Is(err, ErrSingularCovariance) ||
		errors.Is(err, ErrUnknownCoefficient) ||
		errors.Is(err, ErrInvalidBoundOrdering) ||
		errors.Is(err, ErrDegenerateExposure)
}
