package engine

// Error taxonomy shared by the analytics and reconciliation layers

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInsufficientData = errors.New("insufficient data: need at least 2 points")
	ErrMixedSymbols     = errors.New("bar series contains more than one symbol")
	ErrInvalidSession   = errors.New("session duration must be in (0, 24h]")
	ErrUnknownOperator  = errors.New("unknown comparison operator")
	ErrUnknownField     = errors.New("unknown rolling stat field")
)

// OrderingError reports input that is not sorted ascending by timestamp
type OrderingError struct {
	What  string // "bars" or "events"
	Index int
	Prev  time.Time
	Curr  time.Time
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("%s out of order at index %d: %s after %s",
		e.What, e.Index, e.Curr.Format(time.RFC3339), e.Prev.Format(time.RFC3339))
}

// ParseError reports a field value that could not be interpreted
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("parse %s %q", e.Field, e.Value)
}

func (e *ParseError) Unwrap() error { return e.Err }

// CheckOrder verifies timestamps are non-decreasing
func CheckOrder(what string, ts []time.Time) error {
	for i := 1; i < len(ts); i++ {
		if ts[i].Before(ts[i-1]) {
			return &OrderingError{What: what, Index: i, Prev: ts[i-1], Curr: ts[i]}
		}
	}
	return nil
}
