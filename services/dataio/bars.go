package dataio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"backtest-analytics/services/engine"
)

// BarOptions controls bar CSV parsing
type BarOptions struct {
	// Symbol fills bars whose rows carry no symbol column
	Symbol   string
	Location *time.Location
}

// ReadBars reads OHLCV rows. A header row selects columns by name; without one the
// columns are timestamp,open,high,low,close,volume. Rows are returned in file order.
func ReadBars(r io.Reader, opts BarOptions) ([]engine.Bar, error) {
	cr := newCSVReader(r)
	var (
		h    header
		bars []engine.Bar
		line int
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}
		if h == nil {
			if looksLikeHeader(rec) {
				h = newHeader(rec)
				continue
			}
			h = header{"timestamp": 0, "open": 1, "high": 2, "low": 3, "close": 4, "volume": 5}
		}
		bar, err := parseBar(h, rec, opts)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func looksLikeHeader(rec []string) bool {
	first := strings.TrimSpace(strings.TrimPrefix(rec[0], "\ufeff"))
	if _, err := strconv.ParseFloat(first, 64); err == nil {
		return false
	}
	_, err := ParseTime(first, time.UTC)
	return err != nil
}

func parseBar(h header, rec []string, opts BarOptions) (engine.Bar, error) {
	ts, err := ParseTime(h.get(rec, "timestamp", "datetime", "date", "time", "open_time_ms", "timestamp_ms"), opts.Location)
	if err != nil {
		return engine.Bar{}, &engine.ParseError{Field: "timestamp", Value: h.get(rec, "timestamp", "datetime"), Err: err}
	}
	if ts.IsZero() {
		return engine.Bar{}, &engine.ParseError{Field: "timestamp", Value: ""}
	}
	var vals [5]float64
	for i, name := range []string{"open", "high", "low", "close", "volume"} {
		raw := h.get(rec, name)
		if raw == "" && name == "volume" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return engine.Bar{}, &engine.ParseError{Field: name, Value: raw, Err: err}
		}
		vals[i] = v
	}
	symbol := h.get(rec, "symbol", "ticker")
	if symbol == "" {
		symbol = opts.Symbol
	}
	return engine.Bar{
		Timestamp: ts,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
		Symbol:    symbol,
	}, nil
}

// BarColumns is the layout WriteBars produces
var BarColumns = []string{"timestamp", "open", "high", "low", "close", "volume", "symbol"}

// WriteBars writes bars with epoch millisecond timestamps, which ReadBars reads back
func WriteBars(w io.Writer, bars []engine.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(BarColumns); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, b := range bars {
		record := []string{
			strconv.FormatInt(b.Timestamp.UnixMilli(), 10),
			f(b.Open), f(b.High), f(b.Low), f(b.Close), f(b.Volume),
			b.Symbol,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
