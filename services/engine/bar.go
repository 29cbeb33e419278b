package engine

import (
	"fmt"
	"strings"
	"time"
)

// Bar represents one OHLCV candle of a single symbol
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Symbol    string
}

// Column selects which bar field a statistic tracks
type Column int

const (
	ColumnClose Column = iota
	ColumnOpen
	ColumnHigh
	ColumnLow
	ColumnVolume
)

var columnNames = map[Column]string{
	ColumnClose:  "close",
	ColumnOpen:   "open",
	ColumnHigh:   "high",
	ColumnLow:    "low",
	ColumnVolume: "volume",
}

func (c Column) String() string {
	if n, ok := columnNames[c]; ok {
		return n
	}
	return fmt.Sprintf("column(%d)", int(c))
}

// Value returns the column's value for a bar
func (c Column) Value(b Bar) float64 {
	switch c {
	case ColumnOpen:
		return b.Open
	case ColumnHigh:
		return b.High
	case ColumnLow:
		return b.Low
	case ColumnVolume:
		return b.Volume
	default:
		return b.Close
	}
}

// ParseColumn maps a column name to a Column
func ParseColumn(name string) (Column, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for c, cn := range columnNames {
		if cn == n {
			return c, nil
		}
	}
	return 0, &ParseError{Field: "column", Value: name}
}

// Values extracts a column from a bar slice
func Values(bars []Bar, c Column) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = c.Value(b)
	}
	return out
}

// DetectGaps returns the indices i where bars[i].Timestamp - bars[i-1].Timestamp exceeds step
func DetectGaps(bars []Bar, step time.Duration) (gaps []int) {
	if step <= 0 {
		return nil
	}
	for i := 1; i < len(bars); i++ {
		if bars[i].Timestamp.Sub(bars[i-1].Timestamp) > step {
			gaps = append(gaps, i)
		}
	}
	return gaps
}

func float64Ptr(v float64) *float64 { return &v }
