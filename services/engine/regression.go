package engine

import "math"

// LinearFit is an ordinary least squares fit of y against x = 0..N-1
type LinearFit struct {
	Slope     float64
	Intercept float64
	R         float64
	R2        float64
	N         int
}

// FitOLS fits ys against their index. Matches scipy.stats.linregress on x = arange(n).
func FitOLS(ys []float64) (LinearFit, error) {
	n := len(ys)
	if n < 2 {
		return LinearFit{N: n}, ErrInsufficientData
	}
	fn := float64(n)
	xm := (fn - 1) / 2
	var ym float64
	for _, y := range ys {
		ym += y
	}
	ym /= fn

	var ssxm, ssym, ssxym float64
	for i, y := range ys {
		dx := float64(i) - xm
		dy := y - ym
		ssxm += dx * dx
		ssym += dy * dy
		ssxym += dx * dy
	}
	ssxm /= fn
	ssym /= fn
	ssxym /= fn

	return finishFit(ssxm, ssym, ssxym, xm, ym, n), nil
}

func finishFit(ssxm, ssym, ssxym, xm, ym float64, n int) LinearFit {
	var r float64
	if ssxm > 0 && ssym > 0 {
		r = ssxym / math.Sqrt(ssxm*ssym)
		if r > 1 {
			r = 1
		} else if r < -1 {
			r = -1
		}
	}
	slope := ssxym / ssxm
	return LinearFit{
		Slope:     slope,
		Intercept: ym - slope*xm,
		R:         r,
		R2:        r * r,
		N:         n,
	}
}

// OLSAccumulator keeps running sums for an incremental fit over a growing window.
// Values are shifted by the first y to limit cancellation in the sums.
type OLSAccumulator struct {
	start int
	n     int
	y0    float64
	sumY  float64
	sumXY float64
	sumYY float64
}

// NewOLSAccumulator returns an empty accumulator anchored at start
func NewOLSAccumulator(start int) *OLSAccumulator {
	return &OLSAccumulator{start: start}
}

// Start returns the index of the first point in the window
func (a *OLSAccumulator) Start() int { return a.start }

// Len returns the number of points added since the last reset
func (a *OLSAccumulator) Len() int { return a.n }

// Reset clears the window and re-anchors it at start
func (a *OLSAccumulator) Reset(start int) {
	*a = OLSAccumulator{start: start}
}

// Add appends the next point of the window
func (a *OLSAccumulator) Add(y float64) {
	if a.n == 0 {
		a.y0 = y
	}
	d := y - a.y0
	x := float64(a.n)
	a.sumY += d
	a.sumXY += x * d
	a.sumYY += d * d
	a.n++
}

// Fit returns the current fit, or ErrInsufficientData below 2 points
func (a *OLSAccumulator) Fit() (LinearFit, error) {
	if a.n < 2 {
		return LinearFit{N: a.n}, ErrInsufficientData
	}
	fn := float64(a.n)
	xm := (fn - 1) / 2
	// sum of i^2 for i in [0, n)
	sumXX := (fn - 1) * fn * (2*fn - 1) / 6
	ym := a.sumY / fn
	ssxm := sumXX/fn - xm*xm
	ssxym := a.sumXY/fn - xm*ym
	ssym := a.sumYY/fn - ym*ym
	if ssym < 0 {
		ssym = 0
	}
	return finishFit(ssxm, ssym, ssxym, xm, ym+a.y0, a.n), nil
}
