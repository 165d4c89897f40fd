package app

import (
	"context"
	"fmt"
	"time"

	"floodattr/domain/attrib"
	"floodattr/domain/core"
	"floodattr/domain/panel"
	"floodattr/internal"
	"floodattr/ports"
)

// AttributionService runs the full pipeline: panel preparation, model fit,
// effect estimation, city/global aggregation, and scenario projection.
type AttributionService struct {
	fitter ports.FitterPort
	ledger ports.LedgerWriterPort // optional
	log    *internal.Logger
}

// AttributionRequest defines the inputs for one attribution run.
type AttributionRequest struct {
	Rows        []panel.RawRow
	Projections []attrib.PopulationProjection // optional; empty skips scenarios
	Config      attrib.Config
	RunID       core.RunID // optional; generated when empty
}

// NewAttributionService creates the pipeline service. The ledger may be nil,
// in which case reports are not persisted.
func NewAttributionService(fitter ports.FitterPort, ledger ports.LedgerWriterPort, log *internal.Logger) *AttributionService {
	if log == nil {
		log = internal.DefaultLogger
	}
	return &AttributionService{fitter: fitter, ledger: ledger, log: log}
}

// Run executes one attribution run and returns its structured report. Input
// and fit failures abort the run; estimate-level failures skip only the
// affected city or scenario and are listed in the report.
func (s *AttributionService) Run(ctx context.Context, req AttributionRequest) (*attrib.RunReport, error) {
	start := time.Now()

	runID := req.RunID
	if runID == "" {
		runID = core.RunID(core.NewID())
	}
	cfg := req.Config
	if cfg == (attrib.Config{}) {
		cfg = attrib.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p, err := panel.Prepare(req.Rows)
	if err != nil {
		return nil, fmt.Errorf("preparing panel: %w", err)
	}
	s.log.Info("panel prepared: %d observations, %d cities, offset=%v",
		len(p.Observations), len(p.CityExposureSD), p.Spec.OffsetAvailable)

	model, err := s.fitter.FitPoissonFE(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("fitting model: %w", err)
	}

	eng, err := attrib.NewEngine(model, cfg.ConfidenceLevel)
	if err != nil {
		return nil, err
	}

	report := &attrib.RunReport{
		RunID:           runID,
		CreatedAt:       core.Now(),
		ConfidenceLevel: cfg.ConfidenceLevel,
		Estimator:       cfg.Estimator,
		CIMode:          cfg.CIMode,
		Observations:    len(p.Observations),
		CityCount:       len(p.CityExposureSD),
		OffsetAvailable: p.Spec.OffsetAvailable,
	}

	if err := s.totalEffect(eng, p, report); err != nil {
		// The panel-wide effect failing means the covariance is unusable for
		// every downstream estimate.
		return nil, err
	}

	cities, skipped, warn, err := attrib.AggregateCities(ctx, eng, p, cfg)
	if err != nil {
		return nil, fmt.Errorf("aggregating cities: %w", err)
	}
	report.Cities = cities
	report.Skipped = append(report.Skipped, skipped...)
	report.UnmatchedGroupKeys = warn.Total()
	if warn.Total() > 0 {
		s.log.Warn("%d fixed-effect group keys had no fitted contribution (treated as 0)", warn.Total())
	}

	report.Global = attrib.GlobalPAF(cities)

	if len(req.Projections) > 0 {
		scenarios, sk := attrib.ProjectScenarios(eng, p, req.Projections)
		report.Scenarios = scenarios
		report.Skipped = append(report.Skipped, sk...)
	}

	if s.ledger != nil {
		if err := s.ledger.SaveReport(ctx, report); err != nil {
			return nil, fmt.Errorf("persisting report: %w", err)
		}
	}

	s.log.Info("run %s finished in %s: %d cities estimated, %d skipped",
		runID, time.Since(start).Round(time.Millisecond), report.Succeeded(), report.SkipCount())
	return report, nil
}

// totalEffect fills the panel-wide flood effect block: theta summed over the
// current and lag coefficients, with its PAF, rate-ratio and percent-change
// transforms.
func (s *AttributionService) totalEffect(eng *attrib.Engine, p *panel.Panel, report *attrib.RunReport) error {
	eff, err := eng.TotalEffect(p.Spec.ExposureTerms())
	if err != nil {
		return fmt.Errorf("total effect: %w", err)
	}
	report.TotalEffect.Theta = eng.Interval(eff)
	if report.TotalEffect.PAF, err = eng.PAF(eff); err != nil {
		return err
	}
	if report.TotalEffect.RateRatio, err = eng.RateRatio(eff); err != nil {
		return err
	}
	if report.TotalEffect.PercentChange, err = eng.PercentChange(eff); err != nil {
		return err
	}
	return nil
}
