package engine

// Sign is the direction of a value. SignUndefined marks bars with no value yet.
type Sign int8

const (
	SignNegative  Sign = -1
	SignUndefined Sign = 0
	SignPositive  Sign = 1
)

func (s Sign) String() string {
	switch s {
	case SignPositive:
		return "+1"
	case SignNegative:
		return "-1"
	default:
		return "undefined"
	}
}

// SignRun labels a bar with its sign and the first index of its run
type SignRun struct {
	Sign     Sign
	RunStart int
}

// Diff returns v[i]-v[i-periods]; the first periods slots are undefined
func Diff(values []float64, periods int) []*float64 {
	out := make([]*float64, len(values))
	if periods <= 0 {
		return out
	}
	for i := periods; i < len(values); i++ {
		out[i] = float64Ptr(values[i] - values[i-periods])
	}
	return out
}

// ToSign maps v>0 to +1 and v<=0 to -1, leaving undefined slots undefined
func ToSign(series []*float64) []Sign {
	out := make([]Sign, len(series))
	for i, v := range series {
		switch {
		case v == nil:
			out[i] = SignUndefined
		case *v > 0:
			out[i] = SignPositive
		default:
			out[i] = SignNegative
		}
	}
	return out
}

// FindRuns returns, for each bar, the index where its current run of equal signs began.
// Consecutive undefined slots form a single run.
func FindRuns(signs []Sign) []int {
	out := make([]int, len(signs))
	start := 0
	for i := range signs {
		if i > 0 && signs[i] != signs[i-1] {
			start = i
		}
		out[i] = start
	}
	return out
}

// TrackRuns combines ToSign and FindRuns
func TrackRuns(series []*float64) []SignRun {
	signs := ToSign(series)
	runs := FindRuns(signs)
	out := make([]SignRun, len(signs))
	for i := range signs {
		out[i] = SignRun{Sign: signs[i], RunStart: runs[i]}
	}
	return out
}
