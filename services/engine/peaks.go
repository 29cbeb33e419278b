package engine

// PeakDetector confirms peaks (or valleys) causally, one bar after they occur.
// Only the left base counts toward prominence since later bars are not yet known.
type PeakDetector struct {
	Threshold float64
	Valley    bool
	// Window limits the lookback to the last Window values; 0 means the whole series
	Window int

	series []float64
}

// NewPeakDetector returns a detector for peaks, or valleys when valley is true
func NewPeakDetector(threshold float64, valley bool) *PeakDetector {
	return &PeakDetector{Threshold: threshold, Valley: valley}
}

// Len returns the number of values seen
func (d *PeakDetector) Len() int { return len(d.series) }

// Push appends the next value. When the previous bar is confirmed it returns its
// index and its original (un-negated) value.
func (d *PeakDetector) Push(v float64) (index int, value float64, ok bool) {
	if d.Valley {
		v = -v
	}
	d.series = append(d.series, v)
	n := len(d.series)
	lo := 0
	if d.Window > 0 && n > d.Window {
		lo = n - d.Window
	}
	cand := n - 2
	if cand-1 < lo {
		return 0, 0, false
	}
	x := d.series
	if !(x[cand-1] < x[cand] && x[cand] > x[cand+1]) {
		return 0, 0, false
	}
	if leftProminence(x[lo:], cand-lo) < d.Threshold {
		return 0, 0, false
	}
	value = x[cand]
	if d.Valley {
		value = -value
	}
	return cand, value, true
}

// leftProminence walks left from peak while values stay at or below it and
// returns the drop from the peak to the lowest point passed.
func leftProminence(x []float64, peak int) float64 {
	height := x[peak]
	leftMin := height
	for i := peak; i >= 0 && x[i] <= height; i-- {
		if x[i] < leftMin {
			leftMin = x[i]
		}
	}
	return height - leftMin
}

// PeakResult holds per-bar detector output. Marks[i] is the value at a confirmed
// extremum; Detected[i] is true on the bar that confirmed Marks[i-1].
type PeakResult struct {
	Marks    []*float64
	Detected []bool
}

// Detect replays the series through a PeakDetector. The last slot is never marked.
func Detect(series []float64, threshold float64, valley bool) PeakResult {
	return DetectWindow(series, threshold, valley, 0)
}

// DetectWindow is Detect with a bounded lookback
func DetectWindow(series []float64, threshold float64, valley bool, window int) PeakResult {
	d := &PeakDetector{Threshold: threshold, Valley: valley, Window: window}
	res := PeakResult{
		Marks:    make([]*float64, len(series)),
		Detected: make([]bool, len(series)),
	}
	for i, v := range series {
		if idx, val, ok := d.Push(v); ok {
			res.Marks[idx] = float64Ptr(val)
			res.Detected[i] = true
		}
	}
	return res
}
