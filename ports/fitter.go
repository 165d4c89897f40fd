package ports

import (
	"context"

	"floodattr/domain/panel"
	"floodattr/domain/regress"
)

// FitterPort supplies the fixed-effects Poisson regression capability. The
// attribution core never implements the optimizer; it consumes the returned
// coefficients, covariance, fixed-effect lookups and offset flag as a
// read-only artifact.
type FitterPort interface {
	// FitPoissonFE fits case counts on the panel's exposure and control
	// regressors with city and year-week fixed effects, using log-population
	// as offset when the panel's ModelSpec reports it available.
	FitPoissonFE(ctx context.Context, p *panel.Panel) (*regress.FittedModel, error)
}
