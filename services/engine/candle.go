package engine

import "math"

// Candle is the session-to-date OHLC of one column
type Candle struct {
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Marubozu  bool
	Direction int
}

// CandleOptions tunes the marubozu and direction classifiers
type CandleOptions struct {
	// wicks no longer than body * MarubozuRatio count as a marubozu
	MarubozuRatio float64
	// close must move more than open * DirectionThreshold to set a direction
	DirectionThreshold float64
}

// DefaultCandleOptions returns the classifier settings used for session candles
func DefaultCandleOptions() CandleOptions {
	return CandleOptions{MarubozuRatio: 0.5, DirectionThreshold: 0.01}
}

// RollingCandle returns the session candle as of each bar
func RollingCandle(session Session, column Column, opts CandleOptions) []Candle {
	out := make([]Candle, len(session.Bars))
	var c Candle
	for i, b := range session.Bars {
		v := column.Value(b)
		if i == 0 {
			c = Candle{Open: v, High: v, Low: v}
		}
		c.High = math.Max(c.High, v)
		c.Low = math.Min(c.Low, v)
		c.Close = v
		c.Marubozu = IsMarubozu(c.Open, c.High, c.Low, c.Close, opts.MarubozuRatio)
		c.Direction = CandleDirection(c.Open, c.Close, opts.DirectionThreshold)
		out[i] = c
	}
	return out
}

// IsMarubozu reports whether both wicks are within body * ratio
func IsMarubozu(open, high, low, close, ratio float64) bool {
	body := math.Abs(close - open)
	upper := high - math.Max(open, close)
	lower := math.Min(open, close) - low
	tol := body * ratio
	return upper <= tol && lower <= tol
}

// CandleDirection is +1 above open*(1+threshold), -1 below open*(1-threshold), else 0
func CandleDirection(open, close, threshold float64) int {
	switch {
	case close > open*(1+threshold):
		return 1
	case close < open*(1-threshold):
		return -1
	default:
		return 0
	}
}

// Pivots are floor-trader levels derived from a prior period's high, low and close
type Pivots struct {
	Pivot float64
	S1    float64
	S2    float64
	R1    float64
	R2    float64
}

// PivotFrom computes pivot levels from one period's HLC
func PivotFrom(high, low, close float64) Pivots {
	p := (high + low + close) / 3
	return Pivots{
		Pivot: p,
		S1:    2*p - high,
		R1:    2*p - low,
		S2:    p - (high - low),
		R2:    p + (high - low),
	}
}

// SessionPivots returns pivots for each session from the session before it.
// The first session has none.
func SessionPivots(sessions []Session) []*Pivots {
	out := make([]*Pivots, len(sessions))
	for k := 1; k < len(sessions); k++ {
		prev := sessions[k-1].Bars
		if len(prev) == 0 {
			continue
		}
		high, low := prev[0].High, prev[0].Low
		for _, b := range prev[1:] {
			high = math.Max(high, b.High)
			low = math.Min(low, b.Low)
		}
		p := PivotFrom(high, low, prev[len(prev)-1].Close)
		out[k] = &p
	}
	return out
}
