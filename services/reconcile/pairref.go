package reconcile

import (
	"math"
	"strconv"
	"strings"

	"backtest-analytics/services/engine"
)

// PairRef names the entry order(s) an exit completes: a single ref, or a list
// of refs for a flush that closes several entries at once.
type PairRef struct {
	refs []int64
	many bool
}

// SingleRef returns a PairRef for one order
func SingleRef(ref int64) PairRef { return PairRef{refs: []int64{ref}} }

// ManyRefs returns a list PairRef
func ManyRefs(refs ...int64) PairRef {
	return PairRef{refs: append([]int64(nil), refs...), many: true}
}

// IsZero reports whether no ref was given
func (p PairRef) IsZero() bool { return !p.many && len(p.refs) == 0 }

// IsMany reports whether the ref was given as a list
func (p PairRef) IsMany() bool { return p.many }

// Refs returns the referenced order ids
func (p PairRef) Refs() []int64 { return append([]int64(nil), p.refs...) }

func (p PairRef) String() string {
	if p.IsZero() {
		return ""
	}
	if !p.many {
		return strconv.FormatInt(p.refs[0], 10)
	}
	parts := make([]string, len(p.refs))
	for i, r := range p.refs {
		parts[i] = strconv.FormatInt(r, 10)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// ParsePairRef parses "", "7", "7.0" or "[1, 2]"
func ParsePairRef(s string) (PairRef, error) {
	v := strings.TrimSpace(s)
	if v == "" || strings.EqualFold(v, "nan") {
		return PairRef{}, nil
	}
	if strings.HasPrefix(v, "[") || strings.HasSuffix(v, "]") {
		if !strings.HasPrefix(v, "[") || !strings.HasSuffix(v, "]") {
			return PairRef{}, &engine.ParseError{Field: "pair_order_ref", Value: s}
		}
		body := strings.TrimSpace(v[1 : len(v)-1])
		if body == "" {
			return ManyRefs(), nil
		}
		var refs []int64
		for _, part := range strings.Split(body, ",") {
			ref, err := parseRef(part)
			if err != nil {
				return PairRef{}, &engine.ParseError{Field: "pair_order_ref", Value: s, Err: err}
			}
			refs = append(refs, ref)
		}
		return ManyRefs(refs...), nil
	}
	ref, err := parseRef(v)
	if err != nil {
		return PairRef{}, &engine.ParseError{Field: "pair_order_ref", Value: s, Err: err}
	}
	return SingleRef(ref), nil
}

// parseRef accepts integers and integral floats, which is how pandas writes them
func parseRef(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if ref, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ref, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, strconv.ErrSyntax
	}
	return int64(f), nil
}
