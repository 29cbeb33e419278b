// Package monitoring counts analyzer and reconciler activity with Prometheus collectors
package monitoring

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics implements engine.Recorder and reconcile.Recorder
type Metrics struct {
	SessionsTotal  *prometheus.CounterVec
	BarsTotal      *prometheus.CounterVec
	TradesTotal    *prometheus.CounterVec
	AnomaliesTotal *prometheus.CounterVec
	RejectedEvents prometheus.Counter
}

// New registers the collectors on reg. A nil reg uses a fresh registry.
func New(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		SessionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "sessions_total", Help: "Sessions analyzed"},
			[]string{"symbol"},
		),
		BarsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "bars_total", Help: "Bars analyzed inside sessions"},
			[]string{"symbol"},
		),
		TradesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "trades_total", Help: "Trades reconciled"},
			[]string{"direction"},
		),
		AnomaliesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "anomalies_total", Help: "Reconciliation anomalies"},
			[]string{"kind"},
		),
		RejectedEvents: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: namespace, Name: "rejected_events_total", Help: "Order log rows dropped at ingest"},
		),
	}
	for _, c := range []prometheus.Collector{m.SessionsTotal, m.BarsTotal, m.TradesTotal, m.AnomaliesTotal, m.RejectedEvents} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) SessionAnalyzed(symbol string, bars int) {
	m.SessionsTotal.WithLabelValues(symbol).Inc()
	m.BarsTotal.WithLabelValues(symbol).Add(float64(bars))
}

func (m *Metrics) TradeClosed(direction string) {
	m.TradesTotal.WithLabelValues(direction).Inc()
}

func (m *Metrics) AnomalyReported(kind string) {
	m.AnomaliesTotal.WithLabelValues(kind).Inc()
}

// EventsRejected counts rows the order log reader could not turn into events
func (m *Metrics) EventsRejected(n int) {
	m.RejectedEvents.Add(float64(n))
}

// WriteTextfile dumps everything gathered by g in the text exposition format
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
