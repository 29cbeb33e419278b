// Package config loads runner settings from defaults, an optional YAML file and the environment
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"backtest-analytics/services/arrowpipeline"
	"backtest-analytics/services/clickhouse"
	"backtest-analytics/services/engine"
)

// Config is the full runner configuration
type Config struct {
	Engine     EngineSection        `yaml:"engine"`
	Reconcile  ReconcileSection     `yaml:"reconcile"`
	ClickHouse clickhouse.Config    `yaml:"clickhouse"`
	Arrow      arrowpipeline.Config `yaml:"arrow"`
	Monitoring MonitoringSection    `yaml:"monitoring"`
	Log        LogSection           `yaml:"log"`
}

// EngineSection is the file form of engine.Config
type EngineSection struct {
	SessionStart       string                 `yaml:"session_start"` // HH:MM
	SessionDuration    time.Duration          `yaml:"session_duration"`
	Timezone           string                 `yaml:"timezone"`
	Columns            []string               `yaml:"columns"`
	Prominence         float64                `yaml:"prominence"`
	PeakWindow         int                    `yaml:"peak_window"`
	Predicates         []engine.PredicateSpec `yaml:"predicates"`
	MarubozuRatio      float64                `yaml:"marubozu_ratio"`
	DirectionThreshold float64                `yaml:"direction_threshold"`
	Incremental        bool                   `yaml:"incremental"`
	MaxWorkers         int                    `yaml:"max_workers"`
	GapStep            time.Duration          `yaml:"gap_step"`
}

type ReconcileSection struct {
	// Symbol is used when the order log carries no symbol column
	Symbol   string `yaml:"symbol"`
	Timezone string `yaml:"timezone"`
}

type MonitoringSection struct {
	Namespace string `yaml:"namespace"`
	Textfile  string `yaml:"textfile"`
}

type LogSection struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the built-in settings
func Default() *Config {
	ec := engine.DefaultConfig()
	return &Config{
		Engine: EngineSection{
			SessionStart:       "13:25",
			SessionDuration:    ec.Session.Duration,
			Timezone:           "UTC",
			Columns:            []string{"close"},
			Predicates:         ec.Predicates,
			MarubozuRatio:      ec.Candle.MarubozuRatio,
			DirectionThreshold: ec.Candle.DirectionThreshold,
			MaxWorkers:         ec.MaxWorkers,
		},
		Reconcile: ReconcileSection{Timezone: "UTC"},
		ClickHouse: clickhouse.Config{
			Addr:        []string{"localhost:9000"},
			Database:    "backtest",
			Username:    "default",
			HTTPURL:     "http://localhost:8123",
			DialTimeout: 5 * time.Second,
			BatchSize:   1000,
		},
		Monitoring: MonitoringSection{Namespace: "backtest"},
		Log:        LogSection{Level: "info"},
	}
}

// Load applies path (if not empty) and then environment overrides on top of Default.
// A .env file in the working directory is read first when present.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// Ignore error so runs work without a .env
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("SESSION_START"); v != "" {
		c.Engine.SessionStart = v
	}
	if v := os.Getenv("SESSION_DURATION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SESSION_DURATION: %w", err)
		}
		c.Engine.SessionDuration = d
	}
	if v := os.Getenv("SESSION_TZ"); v != "" {
		c.Engine.Timezone = v
	}
	if v := os.Getenv("PROMINENCE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("PROMINENCE: %w", err)
		}
		c.Engine.Prominence = f
	}
	if v := os.Getenv("REGRESSION_COLUMNS"); v != "" {
		c.Engine.Columns = splitAndTrim(v)
	}
	if v := os.Getenv("MAX_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_WORKERS: %w", err)
		}
		c.Engine.MaxWorkers = n
	}
	if v := os.Getenv("CLICKHOUSE_ADDR"); v != "" {
		c.ClickHouse.Addr = splitAndTrim(v)
	}
	c.ClickHouse.Database = getEnv("CH_DATABASE", c.ClickHouse.Database)
	c.ClickHouse.Username = getEnv("CH_USER", c.ClickHouse.Username)
	c.ClickHouse.Password = getEnv("CH_PASSWORD", c.ClickHouse.Password)
	c.ClickHouse.HTTPURL = getEnv("CH_HTTP_URL", c.ClickHouse.HTTPURL)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	return nil
}

// Validate checks every section without connecting to anything
func (c *Config) Validate() error {
	if _, err := c.EngineConfig(); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Reconcile.Timezone); err != nil {
		return fmt.Errorf("reconcile timezone: %w", err)
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}

// EngineConfig converts the engine section into the analyzer's parameters
func (c *Config) EngineConfig() (engine.Config, error) {
	e := c.Engine
	start, err := parseClock(e.SessionStart)
	if err != nil {
		return engine.Config{}, err
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return engine.Config{}, fmt.Errorf("session timezone: %w", err)
	}
	cols := make([]engine.Column, 0, len(e.Columns))
	for _, name := range e.Columns {
		col, err := engine.ParseColumn(name)
		if err != nil {
			return engine.Config{}, err
		}
		cols = append(cols, col)
	}
	out := engine.Config{
		Session:     engine.SessionSpec{Start: start, Duration: e.SessionDuration, Location: loc},
		Columns:     cols,
		Prominence:  e.Prominence,
		PeakWindow:  e.PeakWindow,
		Predicates:  e.Predicates,
		Candle:      engine.CandleOptions{MarubozuRatio: e.MarubozuRatio, DirectionThreshold: e.DirectionThreshold},
		Incremental: e.Incremental,
		MaxWorkers:  e.MaxWorkers,
		GapStep:     e.GapStep,
	}
	if err := out.Validate(); err != nil {
		return engine.Config{}, err
	}
	return out, nil
}

// ReconcileLocation is the zone for order log timestamps without an offset
func (c *Config) ReconcileLocation() *time.Location {
	loc, err := time.LoadLocation(c.Reconcile.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// parseClock turns HH:MM into an offset from midnight
func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, &engine.ParseError{Field: "session_start", Value: s, Err: err}
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
