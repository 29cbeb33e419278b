package engine

import "time"

// RollingStat is the causal state of one column at one bar of a session.
// Nil pointers mark undefined values.
type RollingStat struct {
	Index int
	Time  time.Time
	Value float64

	RunningMax      float64
	RunningMaxIndex int
	RunningMaxTime  time.Time
	RunningMin      float64
	RunningMinIndex int
	RunningMinTime  time.Time

	SlopeFromSessionStart *float64
	R2FromSessionStart    *float64
	SlopeFromLastMax      *float64
	R2FromLastMax         *float64
	SlopeFromLastMin      *float64
	R2FromLastMin         *float64

	EventPercentage *float64
}

// Update computes one RollingStat per bar of the session. Every regression is
// re-fitted from scratch, so this is quadratic in the session length.
func Update(session Session, column Column) []RollingStat {
	values := Values(session.Bars, column)
	out := make([]RollingStat, len(values))
	maxIdx, minIdx := 0, 0
	for i, v := range values {
		// strict comparisons keep the earliest bar on ties
		if v > values[maxIdx] {
			maxIdx = i
		}
		if v < values[minIdx] {
			minIdx = i
		}
		st := newStat(session, values, i, maxIdx, minIdx)
		st.SlopeFromSessionStart, st.R2FromSessionStart = fitSlot(FitOLS(values[:i+1]))
		st.SlopeFromLastMax, st.R2FromLastMax = fitSlot(FitOLS(values[maxIdx : i+1]))
		st.SlopeFromLastMin, st.R2FromLastMin = fitSlot(FitOLS(values[minIdx : i+1]))
		out[i] = st
	}
	return out
}

// UpdateIncremental produces the same records as Update using running OLS sums
func UpdateIncremental(session Session, column Column) []RollingStat {
	values := Values(session.Bars, column)
	out := make([]RollingStat, len(values))
	fromStart := NewOLSAccumulator(0)
	fromMax := NewOLSAccumulator(0)
	fromMin := NewOLSAccumulator(0)
	maxIdx, minIdx := 0, 0
	for i, v := range values {
		if v > values[maxIdx] {
			maxIdx = i
		}
		if v < values[minIdx] {
			minIdx = i
		}
		if fromMax.Start() != maxIdx {
			fromMax.Reset(maxIdx)
		}
		if fromMin.Start() != minIdx {
			fromMin.Reset(minIdx)
		}
		fromStart.Add(v)
		fromMax.Add(v)
		fromMin.Add(v)

		st := newStat(session, values, i, maxIdx, minIdx)
		st.SlopeFromSessionStart, st.R2FromSessionStart = fitSlot(fromStart.Fit())
		st.SlopeFromLastMax, st.R2FromLastMax = fitSlot(fromMax.Fit())
		st.SlopeFromLastMin, st.R2FromLastMin = fitSlot(fromMin.Fit())
		out[i] = st
	}
	return out
}

func newStat(session Session, values []float64, i, maxIdx, minIdx int) RollingStat {
	bars := session.Bars
	return RollingStat{
		Index:           i,
		Time:            bars[i].Timestamp,
		Value:           values[i],
		RunningMax:      values[maxIdx],
		RunningMaxIndex: maxIdx,
		RunningMaxTime:  bars[maxIdx].Timestamp,
		RunningMin:      values[minIdx],
		RunningMinIndex: minIdx,
		RunningMinTime:  bars[minIdx].Timestamp,
	}
}

func fitSlot(fit LinearFit, err error) (slope, r2 *float64) {
	if err != nil {
		return nil, nil
	}
	return float64Ptr(fit.Slope), float64Ptr(fit.R2)
}

// RollingPercentage returns, for each i, the share of items[0..i] satisfying pred
func RollingPercentage[T any](items []T, pred func(T) bool) []float64 {
	out := make([]float64, len(items))
	count := 0
	for i, it := range items {
		if pred(it) {
			count++
		}
		out[i] = float64(count) / float64(i+1)
	}
	return out
}

// EventPercentage is RollingPercentage over a session's rolling stats
func EventPercentage(stats []RollingStat, pred Predicate) []float64 {
	return RollingPercentage(stats, func(st RollingStat) bool { return pred(st) })
}

// AnnotateEventPercentage stores EventPercentage in each record
func AnnotateEventPercentage(stats []RollingStat, pred Predicate) {
	for i, p := range EventPercentage(stats, pred) {
		stats[i].EventPercentage = float64Ptr(p)
	}
}
