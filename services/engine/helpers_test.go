package engine

import "time"

func day(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

// barsFrom builds close-only bars spaced by step
func barsFrom(start time.Time, step time.Duration, closes ...float64) []Bar {
	out := make([]Bar, len(closes))
	for i, c := range closes {
		out[i] = Bar{
			Timestamp: start.Add(time.Duration(i) * step),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1,
			Symbol:    "SPY",
		}
	}
	return out
}

func sessionOf(closes ...float64) Session {
	return Session{ID: "test", Bars: barsFrom(day(2024, 1, 2, 13, 30), 5*time.Minute, closes...)}
}
