package engine

import (
	"fmt"
	"strings"
)

// Predicate decides whether a bar's computed state counts as an event
type Predicate func(RollingStat) bool

// PredicateSpec is a predicate described as data, e.g. {slope_from_session_start gt 0}
type PredicateSpec struct {
	Name  string  `yaml:"name"`
	Field string  `yaml:"field"`
	Op    string  `yaml:"op"`
	Value float64 `yaml:"value"`
}

var statFields = map[string]func(RollingStat) *float64{
	"value":                    func(s RollingStat) *float64 { return &s.Value },
	"running_max":              func(s RollingStat) *float64 { return &s.RunningMax },
	"running_min":              func(s RollingStat) *float64 { return &s.RunningMin },
	"slope_from_session_start": func(s RollingStat) *float64 { return s.SlopeFromSessionStart },
	"r2_from_session_start":    func(s RollingStat) *float64 { return s.R2FromSessionStart },
	"slope_from_last_max":      func(s RollingStat) *float64 { return s.SlopeFromLastMax },
	"r2_from_last_max":         func(s RollingStat) *float64 { return s.R2FromLastMax },
	"slope_from_last_min":      func(s RollingStat) *float64 { return s.SlopeFromLastMin },
	"r2_from_last_min":         func(s RollingStat) *float64 { return s.R2FromLastMin },
}

var comparators = map[string]func(a, b float64) bool{
	"eq": func(a, b float64) bool { return a == b },
	"ne": func(a, b float64) bool { return a != b },
	"gt": func(a, b float64) bool { return a > b },
	"ge": func(a, b float64) bool { return a >= b },
	"lt": func(a, b float64) bool { return a < b },
	"le": func(a, b float64) bool { return a <= b },
}

// Label returns Name, or a name derived from the expression
func (p PredicateSpec) Label() string {
	if p.Name != "" {
		return p.Name
	}
	return fmt.Sprintf("%s_%s_%g", p.Field, p.Op, p.Value)
}

// Compile turns p into a Predicate. Undefined fields never match.
func (p PredicateSpec) Compile() (Predicate, error) {
	field, ok := statFields[strings.ToLower(p.Field)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, p.Field)
	}
	cmp, ok := comparators[strings.ToLower(p.Op)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperator, p.Op)
	}
	want := p.Value
	return func(st RollingStat) bool {
		v := field(st)
		return v != nil && cmp(*v, want)
	}, nil
}
