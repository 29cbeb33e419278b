package engine

import (
	"fmt"
	"time"
)

// Resample aggregates bars into step buckets aligned to the Unix epoch. Open is the
// first bar's, close the last one's, high/low the extremes and volume the sum.
// Input must be in time order.
func Resample(bars []Bar, step time.Duration) ([]Bar, error) {
	if step <= 0 {
		return nil, fmt.Errorf("resample step must be positive, got %s", step)
	}
	if err := CheckOrder("bars", timestamps(bars)); err != nil {
		return nil, err
	}
	var out []Bar
	var bucket time.Time
	for _, b := range bars {
		start := b.Timestamp.Truncate(step)
		if len(out) == 0 || !start.Equal(bucket) {
			bucket = start
			nb := b
			nb.Timestamp = start
			out = append(out, nb)
			continue
		}
		agg := &out[len(out)-1]
		if b.High > agg.High {
			agg.High = b.High
		}
		if b.Low < agg.Low {
			agg.Low = b.Low
		}
		agg.Close = b.Close
		agg.Volume += b.Volume
	}
	return out, nil
}

func timestamps(bars []Bar) []time.Time {
	ts := make([]time.Time, len(bars))
	for i, b := range bars {
		ts[i] = b.Timestamp
	}
	return ts
}
