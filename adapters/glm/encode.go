package glm

import (
	"sort"

	"floodattr/domain/core"
	"floodattr/domain/panel"

	"github.com/kshedden/statmodel/statmodel"
)

// Dummy-column name prefixes for the two fixed-effect groupings.
const (
	cityFEPrefix = "fe_city:"
	timeFEPrefix = "fe_week:"
)

// design holds the expanded regression design: the statmodel dataset columns
// plus the bookkeeping needed to map fitted parameters back to named
// coefficients and fixed-effect lookups.
type design struct {
	data     [][]statmodel.Dtype
	varnames []string
	xnames   []string

	named []string // exposure + control regressors, in fit order

	cityLevels []core.CityID  // sorted; first level is the dropped reference
	timeLevels []core.YearWeek
}

// buildDesign expands the panel into a dense design: response, intercept,
// named regressors, drop-first dummy columns for both fixed-effect groupings,
// and the offset column when available.
func buildDesign(p *panel.Panel) *design {
	obs := p.Observations
	n := len(obs)

	d := &design{named: p.Spec.Regressors()}

	y := make([]float64, n)
	for i := range obs {
		y[i] = obs[i].Cases
	}
	d.addColumn("y", y, false)

	icept := make([]float64, n)
	for i := range icept {
		icept[i] = 1
	}
	d.addColumn("icept", icept, true)

	for _, name := range d.named {
		col := make([]float64, n)
		for i := range obs {
			v, _ := obs[i].Value(name)
			col[i] = v
		}
		d.addColumn(name, col, true)
	}

	d.cityLevels = sortedCities(obs)
	for _, city := range d.cityLevels[1:] {
		col := make([]float64, n)
		for i := range obs {
			if obs[i].City == city {
				col[i] = 1
			}
		}
		d.addColumn(cityFEPrefix+city.String(), col, true)
	}

	d.timeLevels = sortedWeeks(obs)
	for _, yw := range d.timeLevels[1:] {
		col := make([]float64, n)
		for i := range obs {
			if obs[i].YearWeek == yw {
				col[i] = 1
			}
		}
		d.addColumn(timeFEPrefix+yw.String(), col, true)
	}

	if p.Spec.OffsetAvailable {
		col := make([]float64, n)
		for i := range obs {
			col[i] = obs[i].LogPop
		}
		// Offset enters with coefficient fixed at 1; a named column but not a
		// regressor.
		d.addColumn(p.Spec.OffsetCol, col, false)
	}

	return d
}

func (d *design) addColumn(name string, col []float64, regressor bool) {
	d.data = append(d.data, col)
	d.varnames = append(d.varnames, name)
	if regressor {
		d.xnames = append(d.xnames, name)
	}
}

func sortedCities(obs []panel.Observation) []core.CityID {
	seen := make(map[core.CityID]bool)
	var out []core.CityID
	for i := range obs {
		if !seen[obs[i].City] {
			seen[obs[i].City] = true
			out = append(out, obs[i].City)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedWeeks(obs []panel.Observation) []core.YearWeek {
	seen := make(map[core.YearWeek]bool)
	var out []core.YearWeek
	for i := range obs {
		if !seen[obs[i].YearWeek] {
			seen[obs[i].YearWeek] = true
			out = append(out, obs[i].YearWeek)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
