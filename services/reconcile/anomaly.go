package reconcile

import "fmt"

// AnomalyKind classifies a recoverable reconciliation problem
type AnomalyKind string

const (
	AnomalyCloseOverwritten AnomalyKind = "close_overwritten"
	AnomalyMissingClose     AnomalyKind = "missing_close"
	AnomalyUnknownEntry     AnomalyKind = "unknown_entry"
	AnomalyDuplicateEntry   AnomalyKind = "duplicate_entry"
	AnomalyParseError       AnomalyKind = "parse_error"
	AnomalyUntimedExit      AnomalyKind = "untimed_exit"
)

// Anomaly is a structured warning returned alongside the trades
type Anomaly struct {
	Kind    AnomalyKind `json:"kind"`
	Ref     int64       `json:"ref"`
	Context string      `json:"context,omitempty"`
}

func (a Anomaly) String() string {
	if a.Context == "" {
		return fmt.Sprintf("%s ref=%d", a.Kind, a.Ref)
	}
	return fmt.Sprintf("%s ref=%d: %s", a.Kind, a.Ref, a.Context)
}

// Recorder observes reconciliation outcomes, e.g. for metrics
type Recorder interface {
	TradeClosed(direction string)
	AnomalyReported(kind string)
}

type nopRecorder struct{}

func (nopRecorder) TradeClosed(string)     {}
func (nopRecorder) AnomalyReported(string) {}
