package testkit

import (
	"context"
	"testing"

	"floodattr/domain/panel"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPanelGenerator_GenerateRows(t *testing.T) {
	cfg := DefaultPanelConfig()
	rows := NewPanelGenerator(cfg).GenerateRows()

	require.Len(t, rows, cfg.Cities*cfg.Years*cfg.Weeks)

	for _, r := range rows[:10] {
		_, ok := r.Values[panel.RawCases]
		assert.True(t, ok)
		_, ok = r.Values[panel.RawFlood]
		assert.True(t, ok)
		_, ok = r.Values[panel.RawPopulation]
		assert.True(t, ok)
		assert.GreaterOrEqual(t, r.Values[panel.RawCases], 0.0)
	}

	// The generated panel must survive preparation, including a usable
	// exposure spread.
	p, err := panel.Prepare(rows)
	require.NoError(t, err)
	assert.True(t, p.Spec.OffsetAvailable)
	assert.Greater(t, p.ExposureSD, 0.0)
}

func TestPanelGenerator_Deterministic(t *testing.T) {
	cfg := DefaultPanelConfig()
	first := NewPanelGenerator(cfg).GenerateRows()
	second := NewPanelGenerator(cfg).GenerateRows()
	assert.Equal(t, first, second)
}

func TestPanelGenerator_OptionalColumnsOff(t *testing.T) {
	cfg := DefaultPanelConfig()
	cfg.WithPopulation = false
	cfg.WithWeather = false
	rows := NewPanelGenerator(cfg).GenerateRows()

	_, ok := rows[0].Values[panel.RawPopulation]
	assert.False(t, ok)
	_, ok = rows[0].Values[panel.RawTemp]
	assert.False(t, ok)
}

func TestPanelGenerator_GenerateProjections(t *testing.T) {
	cfg := DefaultPanelConfig()
	gen := NewPanelGenerator(cfg)
	out := gen.GenerateProjections()

	// Three scenarios at two horizons per city.
	require.Len(t, out, cfg.Cities*6)
	cities := make(map[string]bool)
	for _, pr := range out {
		cities[pr.City.String()] = true
		assert.Greater(t, pr.Population, 0.0)
	}
	assert.Len(t, cities, cfg.Cities)
}

func TestStubFitter_FitPoissonFE(t *testing.T) {
	cfg := DefaultPanelConfig()
	rows := NewPanelGenerator(cfg).GenerateRows()
	p, err := panel.Prepare(rows)
	require.NoError(t, err)

	m, err := NewStubFitter().FitPoissonFE(context.Background(), p)
	require.NoError(t, err)

	coef, ok := m.Coef(panel.ColFlood)
	require.True(t, ok)
	assert.Equal(t, 0.2, coef)
	assert.True(t, m.HasOffset())

	// Every panel city resolves to a fixed-effect entry.
	for _, city := range p.Cities() {
		_, ok := m.CityEffect(city)
		assert.True(t, ok, city.String())
	}
}
