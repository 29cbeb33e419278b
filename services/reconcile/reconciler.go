package reconcile

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"backtest-analytics/services/engine"
)

type leg struct {
	open  OrderEvent
	close *OrderEvent
}

// Result is the reconciled trades plus every anomaly met on the way
type Result struct {
	Trades    []Trade
	Anomalies []Anomaly
}

// Reconciler pairs completed entries with the exits that close them in a single
// chronological pass. It is not safe for concurrent use.
type Reconciler struct {
	symbol    string
	open      map[int64]*leg
	anomalies []Anomaly
	last      time.Time
	applied   int
	logger    *zap.Logger
	recorder  Recorder
}

// Option configures a Reconciler
type Option func(*Reconciler)

func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithRecorder(rec Recorder) Option {
	return func(r *Reconciler) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithSymbol sets the symbol for trades whose events carry none
func WithSymbol(symbol string) Option {
	return func(r *Reconciler) { r.symbol = symbol }
}

func NewReconciler(opts ...Option) *Reconciler {
	r := &Reconciler{
		open:     make(map[int64]*leg),
		logger:   zap.NewNop(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply feeds the next event. Events must arrive in non-decreasing time order;
// anything else is an *engine.OrderingError and the event is not applied.
func (r *Reconciler) Apply(e OrderEvent) error {
	ts := e.Time()
	if !ts.IsZero() {
		if !r.last.IsZero() && ts.Before(r.last) {
			return &engine.OrderingError{What: "events", Index: r.applied, Prev: r.last, Curr: ts}
		}
		r.last = ts
	}
	r.applied++

	if e.Status != StatusCompleted {
		return nil
	}
	switch {
	case e.Role == RoleEntry:
		if _, dup := r.open[e.Ref]; dup {
			r.report(Anomaly{Kind: AnomalyDuplicateEntry, Ref: e.Ref, Context: "entry completed twice, keeping the first"})
			return nil
		}
		r.open[e.Ref] = &leg{open: e}
	case e.Role.IsExit():
		r.resolve(e)
	}
	return nil
}

func (r *Reconciler) resolve(e OrderEvent) {
	if e.Time().IsZero() {
		r.report(Anomaly{Kind: AnomalyUntimedExit, Ref: e.Ref, Context: fmt.Sprintf("%s exit has no executed or notify time, not used as a close", e.Role)})
		return
	}
	refs := e.PairRef.Refs()
	if len(refs) == 0 {
		r.report(Anomaly{Kind: AnomalyUnknownEntry, Ref: e.Ref, Context: fmt.Sprintf("%s exit without pair ref", e.Role)})
		return
	}
	for _, ref := range refs {
		l, ok := r.open[ref]
		if !ok {
			r.report(Anomaly{Kind: AnomalyUnknownEntry, Ref: e.Ref, Context: fmt.Sprintf("%s exit references unknown entry %d", e.Role, ref)})
			continue
		}
		if l.close != nil {
			r.report(Anomaly{
				Kind:    AnomalyCloseOverwritten,
				Ref:     ref,
				Context: fmt.Sprintf("close %d replaced by %s %d", l.close.Ref, e.Role, e.Ref),
			})
		}
		ev := e
		l.close = &ev
	}
}

func (r *Reconciler) report(a Anomaly) {
	r.anomalies = append(r.anomalies, a)
	r.recorder.AnomalyReported(string(a.Kind))
	r.logger.Warn("Reconciliation anomaly",
		zap.String("kind", string(a.Kind)),
		zap.Int64("ref", a.Ref),
		zap.String("context", a.Context),
	)
}

// Finish emits trades for every resolved entry in ascending open time and
// reports entries that never closed.
func (r *Reconciler) Finish() Result {
	legs := make([]*leg, 0, len(r.open))
	for _, l := range r.open {
		legs = append(legs, l)
	}
	sort.Slice(legs, func(i, j int) bool {
		ti, tj := legs[i].open.Time(), legs[j].open.Time()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return legs[i].open.Ref < legs[j].open.Ref
	})

	var trades []Trade
	for _, l := range legs {
		if l.close == nil {
			r.report(Anomaly{Kind: AnomalyMissingClose, Ref: l.open.Ref, Context: "no closing order found"})
			continue
		}
		symbol := l.open.Symbol
		if symbol == "" {
			symbol = r.symbol
		}
		t := newTrade(l.open, *l.close, symbol)
		r.recorder.TradeClosed(string(t.Direction))
		trades = append(trades, t)
	}
	r.logger.Info("Reconciliation finished",
		zap.Int("events", r.applied),
		zap.Int("trades", len(trades)),
		zap.Int("anomalies", len(r.anomalies)),
	)
	return Result{Trades: trades, Anomalies: append([]Anomaly(nil), r.anomalies...)}
}

// Reconcile runs a fresh Reconciler over the whole log. Ingestion rejects in the
// log are reported first.
func Reconcile(log *EventLog, opts ...Option) (Result, error) {
	if log.Symbol != "" {
		opts = append([]Option{WithSymbol(log.Symbol)}, opts...)
	}
	r := NewReconciler(opts...)
	for _, a := range log.Rejected {
		r.report(a)
	}
	for _, e := range log.Events {
		if err := r.Apply(e); err != nil {
			return Result{}, err
		}
	}
	return r.Finish(), nil
}
