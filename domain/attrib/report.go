package attrib

import (
	"floodattr/domain/core"
)

// TotalEffectSummary is the panel-wide flood effect: the summed lag
// coefficients and their nonlinear transforms.
type TotalEffectSummary struct {
	Theta         Estimate `json:"theta"`
	PAF           Estimate `json:"paf"`
	RateRatio     Estimate `json:"rate_ratio"`
	PercentChange Estimate `json:"percent_change"`
}

// RunReport is the structured outcome of one attribution run: which estimates
// succeeded, which were skipped and why, and under which conventions. Exported
// tables derive from this report and are NaN-free by construction.
type RunReport struct {
	RunID           core.RunID     `json:"run_id"`
	CreatedAt       core.Timestamp `json:"created_at"`
	ConfidenceLevel float64        `json:"confidence_level"`
	Estimator       Estimator      `json:"estimator"`
	CIMode          CIAggregation  `json:"ci_mode"`

	Observations int `json:"observations"`
	CityCount    int `json:"city_count"`

	TotalEffect TotalEffectSummary   `json:"total_effect"`
	Cities      []CityAttribution    `json:"cities"`
	Global      []GlobalAttribution  `json:"global"`
	Scenarios   []ScenarioProjection `json:"scenarios,omitempty"`

	Skipped            []SkippedEstimate `json:"skipped,omitempty"`
	UnmatchedGroupKeys int               `json:"unmatched_group_keys"`
	OffsetAvailable    bool              `json:"offset_available"`
}

// Succeeded returns the number of city estimates that completed.
func (r *RunReport) Succeeded() int { return len(r.Cities) }

// SkipCount returns the number of skipped estimates.
func (r *RunReport) SkipCount() int { return len(r.Skipped) }
