package engine

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Recorder observes analyzer progress, e.g. for metrics
type Recorder interface {
	SessionAnalyzed(symbol string, bars int)
}

type nopRecorder struct{}

func (nopRecorder) SessionAnalyzed(string, int) {}

// ColumnStats holds the rolling statistics of one column
type ColumnStats struct {
	Column Column
	Stats  []RollingStat
}

// SessionReport is everything computed for one session
type SessionReport struct {
	Session     Session
	Columns     []ColumnStats
	Percentages map[string][]float64
	Runs        []SignRun
	Peaks       PeakResult
	Valleys     PeakResult
	Candles     []Candle
	Pivots      *Pivots
	Gaps        []int
}

// Primary returns the stats of the first configured column
func (r SessionReport) Primary() []RollingStat {
	if len(r.Columns) == 0 {
		return nil
	}
	return r.Columns[0].Stats
}

// Report is the result of one analyzer run over a bar series
type Report struct {
	RunID      string
	Symbol     string
	ConfigHash string
	Started    time.Time
	Finished   time.Time
	Sessions   []SessionReport
}

type compiledPredicate struct {
	label string
	pred  Predicate
}

// Analyzer composes the per-session computations into one pipeline
type Analyzer struct {
	cfg        Config
	predicates []compiledPredicate
	logger     *zap.Logger
	recorder   Recorder
}

// Option configures an Analyzer
type Option func(*Analyzer)

func WithLogger(l *zap.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(a *Analyzer) {
		if r != nil {
			a.recorder = r
		}
	}
}

// NewAnalyzer validates cfg and compiles its predicates
func NewAnalyzer(cfg Config, opts ...Option) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if len(cfg.Columns) == 0 {
		cfg.Columns = []Column{ColumnClose}
	}
	a := &Analyzer{
		cfg:      cfg,
		logger:   zap.NewNop(),
		recorder: nopRecorder{},
	}
	for _, spec := range cfg.Predicates {
		pred, err := spec.Compile()
		if err != nil {
			return nil, err
		}
		a.predicates = append(a.predicates, compiledPredicate{label: spec.Label(), pred: pred})
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Config returns the analyzer's parameters
func (a *Analyzer) Config() Config { return a.cfg }

// Run splits bars into sessions and analyzes them in parallel. Sessions share no
// state, so the report is identical regardless of worker count.
func (a *Analyzer) Run(ctx context.Context, bars []Bar) (*Report, error) {
	report := &Report{
		RunID:      uuid.New().String(),
		ConfigHash: a.cfg.Hash(),
		Started:    time.Now(),
	}
	if len(bars) > 0 {
		report.Symbol = bars[0].Symbol
	}
	log := a.logger.With(zap.String("run_id", report.RunID), zap.String("symbol", report.Symbol))
	log.Info("Starting session analysis", zap.Int("bars", len(bars)))

	sessions, err := Split(bars, a.cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("split sessions: %w", err)
	}

	workers := a.cfg.MaxWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	results := make([]SessionReport, len(sessions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range sessions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = a.AnalyzeSession(sessions[i])
			a.recorder.SessionAnalyzed(report.Symbol, len(sessions[i].Bars))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for k, p := range SessionPivots(sessions) {
		results[k].Pivots = p
	}
	report.Sessions = results
	report.Finished = time.Now()
	log.Info("Session analysis completed",
		zap.Int("sessions", len(sessions)),
		zap.Duration("elapsed", report.Finished.Sub(report.Started)),
	)
	return report, nil
}

// AnalyzeSession computes every per-session output except pivots, which need the prior session
func (a *Analyzer) AnalyzeSession(s Session) SessionReport {
	update := Update
	if a.cfg.Incremental {
		update = UpdateIncremental
	}
	rep := SessionReport{
		Session:     s,
		Percentages: make(map[string][]float64, len(a.predicates)),
	}
	for _, col := range a.cfg.Columns {
		rep.Columns = append(rep.Columns, ColumnStats{Column: col, Stats: update(s, col)})
	}

	primary := rep.Primary()
	for i, p := range a.predicates {
		rep.Percentages[p.label] = EventPercentage(primary, p.pred)
		if i == 0 {
			AnnotateEventPercentage(primary, p.pred)
		}
	}

	values := Values(s.Bars, a.cfg.Primary())
	rep.Runs = TrackRuns(Diff(values, 1))
	rep.Peaks = DetectWindow(values, a.cfg.Prominence, false, a.cfg.PeakWindow)
	rep.Valleys = DetectWindow(values, a.cfg.Prominence, true, a.cfg.PeakWindow)
	rep.Candles = RollingCandle(s, a.cfg.Primary(), a.cfg.Candle)
	rep.Gaps = DetectGaps(s.Bars, a.cfg.GapStep)
	return rep
}
