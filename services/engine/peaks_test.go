package engine

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func markedIndices(marks []*float64) []int {
	idx := []int{}
	for i, m := range marks {
		if m != nil {
			idx = append(idx, i)
		}
	}
	return idx
}

func TestDetectConfirmsOneBarLater(t *testing.T) {
	d := NewPeakDetector(0, false)
	_, _, ok := d.Push(1)
	assert.False(t, ok)
	_, _, ok = d.Push(3)
	assert.False(t, ok)
	idx, val, ok := d.Push(2)
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Equal(t, 3.0, val)

	res := Detect([]float64{1, 3, 2}, 0, false)
	assert.Equal(t, []int{1}, markedIndices(res.Marks))
	assert.Equal(t, []bool{false, false, true}, res.Detected)
}

func TestDetectLeftProminence(t *testing.T) {
	series := []float64{5, 1, 4, 2, 3, 1}
	// bar 2 rises 3 above its left base; bar 4 only 1 above bar 3 before the higher bar 2
	assert.Equal(t, []int{2, 4}, markedIndices(Detect(series, 0, false).Marks))
	assert.Equal(t, []int{2}, markedIndices(Detect(series, 1.5, false).Marks))
	assert.Equal(t, []int{2}, markedIndices(Detect(series, 3, false).Marks))
	assert.Empty(t, markedIndices(Detect(series, 3.5, false).Marks))
}

func TestDetectPlateauIsNotConfirmed(t *testing.T) {
	assert.Empty(t, markedIndices(Detect([]float64{1, 3, 3, 1}, 0, false).Marks))
}

func TestDetectValleysKeepOriginalValue(t *testing.T) {
	res := Detect([]float64{3, 1, 2}, 0.5, true)
	require.NotNil(t, res.Marks[1])
	assert.Equal(t, 1.0, *res.Marks[1])
	assert.Equal(t, []int{1}, markedIndices(res.Marks))
}

func TestDetectWindowLimitsLeftBase(t *testing.T) {
	series := []float64{0, 3, 2, 4, 1}
	assert.Equal(t, []int{1, 3}, markedIndices(DetectWindow(series, 3, false, 0).Marks))
	// with three bars of lookback bar 3 only rises 2 above bar 2
	assert.Equal(t, []int{1}, markedIndices(DetectWindow(series, 3, false, 3).Marks))
}

func TestDetectNeverMarksLastBar(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	series := []float64{}
	for i := 0; i < 200; i++ {
		series = append(series, rng.Float64()*10)
		for _, valley := range []bool{false, true} {
			res := Detect(series, 0.5, valley)
			require.Nil(t, res.Marks[len(series)-1])
		}
	}
}

func TestDetectMarksAreStrictLocalExtrema(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	series := make([]float64, 300)
	for i := range series {
		series[i] = float64(rng.Intn(20))
	}
	res := Detect(series, 2, false)
	for _, i := range markedIndices(res.Marks) {
		assert.Greater(t, series[i], series[i-1])
		assert.Greater(t, series[i], series[i+1])
		assert.GreaterOrEqual(t, leftProminence(series, i), 2.0)
		assert.True(t, res.Detected[i+1])
	}
}
