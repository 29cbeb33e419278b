package engine

// Engine parameters, passed explicitly into every run

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"
)

type Config struct {
	Session SessionSpec
	// Columns tracked by RollingStatistics; the first one also feeds runs, peaks and the candle
	Columns     []Column
	Prominence  float64
	PeakWindow  int
	Predicates  []PredicateSpec
	Candle      CandleOptions
	Incremental bool
	MaxWorkers  int
	// GapStep flags intra-session gaps larger than one bar interval; 0 disables
	GapStep time.Duration
}

// DefaultConfig mirrors the US cash session in UTC with a 5 minute lead-in
func DefaultConfig() Config {
	return Config{
		Session: SessionSpec{
			Start:    13*time.Hour + 25*time.Minute,
			Duration: 6*time.Hour + 30*time.Minute,
			Location: time.UTC,
		},
		Columns: []Column{ColumnClose},
		Predicates: []PredicateSpec{
			{Name: "slope_up", Field: "slope_from_session_start", Op: "gt", Value: 0},
		},
		Candle:     DefaultCandleOptions(),
		MaxWorkers: 4,
	}
}

// Primary returns the first configured column
func (c Config) Primary() Column {
	if len(c.Columns) == 0 {
		return ColumnClose
	}
	return c.Columns[0]
}

// Validate rejects configurations no run could use
func (c Config) Validate() error {
	if err := c.Session.Validate(); err != nil {
		return err
	}
	if c.Prominence < 0 {
		return fmt.Errorf("prominence must be >= 0, got %g", c.Prominence)
	}
	if c.MaxWorkers < 0 {
		return fmt.Errorf("max workers must be >= 0, got %d", c.MaxWorkers)
	}
	for _, p := range c.Predicates {
		if _, err := p.Compile(); err != nil {
			return fmt.Errorf("predicate %s: %w", p.Label(), err)
		}
	}
	return nil
}

// Hash fingerprints the parameters that affect results
func (c Config) Hash() string {
	cols := make([]string, len(c.Columns))
	for i, col := range c.Columns {
		cols[i] = col.String()
	}
	manifest := map[string]any{
		"session_start":    c.Session.Start.String(),
		"session_duration": c.Session.Duration.String(),
		"location":         c.Session.location().String(),
		"columns":          cols,
		"prominence":       c.Prominence,
		"peak_window":      c.PeakWindow,
		"predicates":       c.Predicates,
		"candle":           c.Candle,
		"incremental":      c.Incremental,
	}
	b, _ := json.Marshal(manifest)
	return fmt.Sprintf("%x", sha256.Sum256(b))
}
