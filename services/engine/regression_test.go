package engine

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitOLS(t *testing.T) {
	tests := []struct {
		name      string
		ys        []float64
		slope     float64
		intercept float64
		r2        float64
	}{
		{"rising line", []float64{1, 2, 3}, 1, 1, 1},
		{"two points falling", []float64{3, 1}, -2, 3, 1},
		{"flat", []float64{5, 5, 5}, 0, 5, 0},
		{"noisy", []float64{1, 3, 2, 5}, 1.1, 1.1, 30.25 / 43.75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fit, err := FitOLS(tt.ys)
			require.NoError(t, err)
			assert.InDelta(t, tt.slope, fit.Slope, 1e-12)
			assert.InDelta(t, tt.intercept, fit.Intercept, 1e-12)
			assert.InDelta(t, tt.r2, fit.R2, 1e-12)
			assert.Equal(t, len(tt.ys), fit.N)
		})
	}
}

func TestFitOLSInsufficientData(t *testing.T) {
	_, err := FitOLS([]float64{1})
	assert.ErrorIs(t, err, ErrInsufficientData)
	_, err = FitOLS(nil)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestOLSAccumulatorMatchesReference(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		n := 2 + rng.Intn(200)
		ys := make([]float64, n)
		level := 50 + rng.Float64()*400
		for i := range ys {
			level += rng.NormFloat64()
			ys[i] = level
		}

		acc := NewOLSAccumulator(0)
		for i, y := range ys {
			acc.Add(y)
			got, gerr := acc.Fit()
			want, werr := FitOLS(ys[:i+1])
			if i == 0 {
				require.ErrorIs(t, gerr, ErrInsufficientData)
				require.ErrorIs(t, werr, ErrInsufficientData)
				continue
			}
			require.NoError(t, gerr)
			assert.InDelta(t, want.Slope, got.Slope, 1e-9, "trial %d i %d", trial, i)
			assert.InDelta(t, want.Intercept, got.Intercept, 1e-7, "trial %d i %d", trial, i)
			assert.InDelta(t, want.R2, got.R2, 1e-9, "trial %d i %d", trial, i)
		}
	}
}

func TestOLSAccumulatorReset(t *testing.T) {
	acc := NewOLSAccumulator(0)
	acc.Add(10)
	acc.Add(20)
	acc.Reset(5)
	assert.Equal(t, 5, acc.Start())
	assert.Equal(t, 0, acc.Len())
	acc.Add(3)
	acc.Add(1)
	fit, err := acc.Fit()
	require.NoError(t, err)
	assert.InDelta(t, -2, fit.Slope, 1e-12)
	assert.InDelta(t, 3, fit.Intercept, 1e-12)
}
