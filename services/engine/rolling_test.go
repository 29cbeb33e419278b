package engine

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateSingleBar(t *testing.T) {
	stats := Update(sessionOf(42), ColumnClose)
	require.Len(t, stats, 1)
	assert.Nil(t, stats[0].SlopeFromSessionStart)
	assert.Nil(t, stats[0].R2FromSessionStart)
	assert.Nil(t, stats[0].SlopeFromLastMax)
	assert.Equal(t, 42.0, stats[0].RunningMax)
	assert.Equal(t, 42.0, stats[0].RunningMin)
}

func TestUpdateExtremaKeepEarliest(t *testing.T) {
	s := sessionOf(5, 7, 7, 3, 3)
	stats := Update(s, ColumnClose)

	last := stats[4]
	assert.Equal(t, 7.0, last.RunningMax)
	assert.Equal(t, 1, last.RunningMaxIndex)
	assert.Equal(t, s.Bars[1].Timestamp, last.RunningMaxTime)
	assert.Equal(t, 3.0, last.RunningMin)
	assert.Equal(t, 3, last.RunningMinIndex)
	assert.Equal(t, s.Bars[3].Timestamp, last.RunningMinTime)
}

func TestUpdateRegressionFromExtrema(t *testing.T) {
	stats := Update(sessionOf(1, 3, 2, 1), ColumnClose)

	// the max is set on bar 1, so there is only one point from it
	assert.Nil(t, stats[1].SlopeFromLastMax)
	require.NotNil(t, stats[1].SlopeFromSessionStart)
	assert.InDelta(t, 2, *stats[1].SlopeFromSessionStart, 1e-12)

	require.NotNil(t, stats[3].SlopeFromLastMax)
	assert.InDelta(t, -1, *stats[3].SlopeFromLastMax, 1e-12)
	assert.InDelta(t, 1, *stats[3].R2FromLastMax, 1e-12)

	// the min stays on bar 0 (ties keep the earliest)
	assert.Equal(t, 0, stats[3].RunningMinIndex)
	require.NotNil(t, stats[3].SlopeFromLastMin)
	assert.InDelta(t, *stats[3].SlopeFromSessionStart, *stats[3].SlopeFromLastMin, 1e-12)
}

func randomSession(rng *rand.Rand, n int) Session {
	closes := make([]float64, n)
	level := 100.0
	for i := range closes {
		level += rng.NormFloat64()
		closes[i] = level
	}
	return Session{ID: "rand", Bars: barsFrom(day(2024, 3, 1, 13, 30), time.Minute, closes...)}
}

func TestRunningMaxIsCausal(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	s := randomSession(rng, 300)
	stats := Update(s, ColumnClose)
	for i, st := range stats {
		for j := 0; j <= i; j++ {
			require.GreaterOrEqual(t, st.RunningMax, s.Bars[j].Close)
			require.LessOrEqual(t, st.RunningMin, s.Bars[j].Close)
		}
		if i > 0 {
			require.GreaterOrEqual(t, st.RunningMax, stats[i-1].RunningMax)
			require.LessOrEqual(t, st.RunningMin, stats[i-1].RunningMin)
		}
	}
}

func TestUpdatePrefixStable(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	s := randomSession(rng, 120)
	full := Update(s, ColumnClose)
	prefix := Update(Session{ID: s.ID, Bars: s.Bars[:60]}, ColumnClose)
	assert.Equal(t, prefix, full[:60])
}

func TestUpdateIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	s := randomSession(rng, 80)
	assert.Equal(t, Update(s, ColumnClose), Update(s, ColumnClose))
}

func assertOptionalClose(t *testing.T, want, got *float64, tol float64, msg string) {
	t.Helper()
	if want == nil {
		assert.Nil(t, got, msg)
		return
	}
	require.NotNil(t, got, msg)
	assert.InDelta(t, *want, *got, tol, msg)
}

func TestUpdateIncrementalMatchesReference(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for trial := 0; trial < 10; trial++ {
		s := randomSession(rng, 1+rng.Intn(150))
		ref := Update(s, ColumnClose)
		inc := UpdateIncremental(s, ColumnClose)
		require.Len(t, inc, len(ref))
		for i := range ref {
			assert.Equal(t, ref[i].RunningMaxIndex, inc[i].RunningMaxIndex)
			assert.Equal(t, ref[i].RunningMinIndex, inc[i].RunningMinIndex)
			assertOptionalClose(t, ref[i].SlopeFromSessionStart, inc[i].SlopeFromSessionStart, 1e-9, "slope start")
			assertOptionalClose(t, ref[i].R2FromSessionStart, inc[i].R2FromSessionStart, 1e-9, "r2 start")
			assertOptionalClose(t, ref[i].SlopeFromLastMax, inc[i].SlopeFromLastMax, 1e-9, "slope max")
			assertOptionalClose(t, ref[i].R2FromLastMax, inc[i].R2FromLastMax, 1e-9, "r2 max")
			assertOptionalClose(t, ref[i].SlopeFromLastMin, inc[i].SlopeFromLastMin, 1e-9, "slope min")
			assertOptionalClose(t, ref[i].R2FromLastMin, inc[i].R2FromLastMin, 1e-9, "r2 min")
		}
	}
}

func TestEventPercentage(t *testing.T) {
	stats := Update(sessionOf(1, 2, 1, 0), ColumnClose)
	pred, err := PredicateSpec{Field: "slope_from_session_start", Op: "gt", Value: 0}.Compile()
	require.NoError(t, err)

	// slopes: undefined, 1, 0, -0.4
	got := EventPercentage(stats, pred)
	assert.InDeltaSlice(t, []float64{0, 0.5, 1.0 / 3, 0.25}, got, 1e-12)

	AnnotateEventPercentage(stats, pred)
	require.NotNil(t, stats[3].EventPercentage)
	assert.InDelta(t, 0.25, *stats[3].EventPercentage, 1e-12)
}

func TestRollingPercentageGeneric(t *testing.T) {
	got := RollingPercentage([]int{2, 3, 4, 6}, func(v int) bool { return v%2 == 0 })
	assert.Equal(t, []float64{1, 0.5, 2.0 / 3, 0.75}, got)
}

func TestPredicateSpecCompile(t *testing.T) {
	_, err := PredicateSpec{Field: "value", Op: "between"}.Compile()
	assert.ErrorIs(t, err, ErrUnknownOperator)
	_, err = PredicateSpec{Field: "volume_ratio", Op: "gt"}.Compile()
	assert.ErrorIs(t, err, ErrUnknownField)

	ops := map[string][]bool{
		"eq": {false, true, false},
		"ne": {true, false, true},
		"gt": {false, false, true},
		"ge": {false, true, true},
		"lt": {true, false, false},
		"le": {true, true, false},
	}
	for op, want := range ops {
		pred, err := PredicateSpec{Field: "value", Op: op, Value: 2}.Compile()
		require.NoError(t, err)
		for i, v := range []float64{1, 2, 3} {
			assert.Equal(t, want[i], pred(RollingStat{Value: v}), "%s %g", op, v)
		}
	}
	assert.Equal(t, "value_gt_2", PredicateSpec{Field: "value", Op: "gt", Value: 2}.Label())
}
