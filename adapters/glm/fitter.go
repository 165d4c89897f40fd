// Package glm adapts the statmodel GLM library into the FitterPort: a Poisson
// regression with city and year-week fixed effects expanded as drop-first
// dummy columns and log-population as offset. The optimizer belongs to the
// library; this adapter only translates in and out.
package glm

import (
	"context"
	"fmt"
	"strings"

	"floodattr/domain/core"
	"floodattr/domain/panel"
	"floodattr/domain/regress"
	"floodattr/ports"

	smglm "github.com/kshedden/statmodel/glm"
	"github.com/kshedden/statmodel/statmodel"
	"gonum.org/v1/gonum/optimize"
)

// Fitter implements ports.FitterPort over kshedden/statmodel.
type Fitter struct {
	// GradientThreshold is passed to the optimizer; the default matches the
	// library's gradient fit on panels of this size.
	GradientThreshold float64
}

// NewFitter creates a fitter with default optimizer settings.
func NewFitter() *Fitter {
	return &Fitter{GradientThreshold: 1e-4}
}

// FitPoissonFE fits the fixed-effects Poisson model and maps the result back
// into the domain FittedModel: named coefficients with their covariance
// submatrix, fixed-effect lookups (reference levels present with contribution
// zero), and the offset column.
func (f *Fitter) FitPoissonFE(ctx context.Context, p *panel.Panel) (*regress.FittedModel, error) {
	if len(p.Observations) == 0 {
		return nil, core.ErrEmptyPanel
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d := buildDesign(p)

	df := statmodel.NewDataset(d.data, d.varnames)

	config := smglm.DefaultConfig()
	config.Family = smglm.NewFamily(smglm.PoissonFamily)
	config.FitMethod = "gradient"
	if p.Spec.OffsetAvailable {
		config.OffsetVar = p.Spec.OffsetCol
	}

	model, err := smglm.NewGLM(df, "y", d.xnames, config)
	if err != nil {
		return nil, fmt.Errorf("building GLM: %w", err)
	}
	model = model.OptSettings(&optimize.Settings{GradientThreshold: f.GradientThreshold})

	result := model.Fit()
	params := result.Params()
	vcov := result.VCov()
	np := len(d.xnames)
	if len(params) != np || len(vcov) != np*np {
		return nil, fmt.Errorf("fit returned %d parameters and %d covariance entries for %d regressors",
			len(params), len(vcov), np)
	}

	index := make(map[string]int, np)
	for i, name := range d.xnames {
		index[name] = i
	}

	coefficients := make(map[string]float64, len(d.named))
	for _, name := range d.named {
		coefficients[name] = params[index[name]]
	}

	// Covariance restricted to the named regressors, flattened row-major in
	// the same order.
	k := len(d.named)
	cov := make([]float64, k*k)
	for i, ni := range d.named {
		for j, nj := range d.named {
			cov[i*k+j] = vcov[index[ni]*np+index[nj]]
		}
	}

	cityEffects := make(map[core.CityID]float64, len(d.cityLevels))
	for _, city := range d.cityLevels {
		cityEffects[city] = 0
	}
	timeEffects := make(map[core.YearWeek]float64, len(d.timeLevels))
	for _, yw := range d.timeLevels {
		timeEffects[yw] = 0
	}
	for name, i := range index {
		switch {
		case strings.HasPrefix(name, cityFEPrefix):
			cityEffects[core.CityID(strings.TrimPrefix(name, cityFEPrefix))] = params[i]
		case strings.HasPrefix(name, timeFEPrefix):
			timeEffects[core.YearWeek(strings.TrimPrefix(name, timeFEPrefix))] = params[i]
		}
	}

	offsetCol := ""
	if p.Spec.OffsetAvailable {
		offsetCol = p.Spec.OffsetCol
	}

	return regress.New(
		params[index["icept"]],
		coefficients,
		d.named,
		cov,
		cityEffects,
		timeEffects,
		offsetCol,
	)
}

var _ ports.FitterPort = (*Fitter)(nil)
