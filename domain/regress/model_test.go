package regress

import (
	"math"
	"testing"

	"floodattr/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validArgs() (map[string]float64, []string, []float64) {
	coefficients := map[string]float64{"a": 0.1, "b": -0.2}
	names := []string{"a", "b"}
	cov := []float64{
		0.04, 0.01,
		0.01, 0.09,
	}
	return coefficients, names, cov
}

func TestNew_Validation(t *testing.T) {
	coefficients, names, cov := validArgs()

	t.Run("valid", func(t *testing.T) {
		m, err := New(0.5, coefficients, names, cov, nil, nil, "log_pop")
		require.NoError(t, err)
		assert.Equal(t, 0.5, m.Intercept())
		assert.True(t, m.HasOffset())
		assert.Equal(t, "log_pop", m.OffsetCol())
		v, ok := m.Coef("b")
		assert.True(t, ok)
		assert.Equal(t, -0.2, v)
	})

	t.Run("covariance size mismatch", func(t *testing.T) {
		_, err := New(0, coefficients, names, cov[:3], nil, nil, "")
		assert.Error(t, err)
	})

	t.Run("name without coefficient", func(t *testing.T) {
		_, err := New(0, map[string]float64{"a": 0.1}, names, cov, nil, nil, "")
		assert.ErrorIs(t, err, core.ErrUnknownCoefficient)
	})

	t.Run("negative variance", func(t *testing.T) {
		bad := append([]float64(nil), cov...)
		bad[0] = -0.01
		_, err := New(0, coefficients, names, bad, nil, nil, "")
		assert.ErrorIs(t, err, core.ErrSingularCovariance)
	})

	t.Run("NaN variance", func(t *testing.T) {
		bad := append([]float64(nil), cov...)
		bad[3] = math.NaN()
		_, err := New(0, coefficients, names, bad, nil, nil, "")
		assert.ErrorIs(t, err, core.ErrSingularCovariance)
	})
}

func TestCovSubmatrix(t *testing.T) {
	coefficients, names, _ := validArgs()
	// Deliberately asymmetric: the submatrix averages the mirror entries.
	cov := []float64{
		0.04, 0.012,
		0.008, 0.09,
	}
	m, err := New(0, coefficients, names, cov, nil, nil, "")
	require.NoError(t, err)

	sub, err := m.CovSubmatrix([]string{"b", "a"})
	require.NoError(t, err)
	assert.InDelta(t, 0.09, sub.At(0, 0), 1e-12)
	assert.InDelta(t, 0.04, sub.At(1, 1), 1e-12)
	assert.InDelta(t, 0.01, sub.At(0, 1), 1e-12)
	assert.InDelta(t, 0.01, sub.At(1, 0), 1e-12)

	_, err = m.CovSubmatrix([]string{"a", "zzz"})
	assert.ErrorIs(t, err, core.ErrUnknownCoefficient)
}

func TestCovSubmatrix_RejectsNaNOffDiagonal(t *testing.T) {
	coefficients, names, cov := validArgs()
	bad := append([]float64(nil), cov...)
	bad[1] = math.NaN()
	bad[2] = math.NaN()
	m, err := New(0, coefficients, names, bad, nil, nil, "")
	require.NoError(t, err)

	_, err = m.CovSubmatrix(names)
	assert.ErrorIs(t, err, core.ErrSingularCovariance)
}

func TestFixedEffectLookups(t *testing.T) {
	coefficients, names, cov := validArgs()
	m, err := New(0, coefficients, names, cov,
		map[core.CityID]float64{"A": 0.3, "REF": 0},
		map[core.YearWeek]float64{core.NewYearWeek(2017, 8): -0.2},
		"")
	require.NoError(t, err)

	v, ok := m.CityEffect("A")
	assert.True(t, ok)
	assert.Equal(t, 0.3, v)

	// Reference levels are present with an explicit zero, distinct from
	// genuinely unseen keys.
	v, ok = m.CityEffect("REF")
	assert.True(t, ok)
	assert.Equal(t, 0.0, v)

	_, ok = m.CityEffect("UNSEEN")
	assert.False(t, ok)

	v, ok = m.TimeEffect(core.NewYearWeek(2017, 8))
	assert.True(t, ok)
	assert.Equal(t, -0.2, v)
	_, ok = m.TimeEffect(core.NewYearWeek(2018, 1))
	assert.False(t, ok)
}

func TestNames_ReturnsCopy(t *testing.T) {
	coefficients, names, cov := validArgs()
	m, err := New(0, coefficients, names, cov, nil, nil, "")
	require.NoError(t, err)

	got := m.Names()
	got[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, m.Names())
}
