package reconcile

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Role is what an order does for the position it belongs to
type Role int

const (
	RoleEntry Role = iota
	RoleExitLimit
	RoleExitStop
	RoleExitMarketClose
	RoleCancel
)

var roleNames = map[Role]string{
	RoleEntry:           "entry",
	RoleExitLimit:       "exit-limit",
	RoleExitStop:        "exit-stop",
	RoleExitMarketClose: "exit-market-close",
	RoleCancel:          "cancel",
}

func (r Role) String() string {
	if n, ok := roleNames[r]; ok {
		return n
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// PairType is the order log's pair_type label for the role
func (r Role) PairType() string {
	switch r {
	case RoleEntry:
		return "enter"
	case RoleExitLimit, RoleExitStop:
		return "exit"
	case RoleExitMarketClose:
		return "exit (market_close)"
	case RoleCancel:
		return "cancel"
	}
	return ""
}

// RoleFromPairType maps an order log pair_type and exec_type to a Role.
// Plain exits are stops when executed as a stop order, otherwise limits.
// Bracket logs label the legs main, limit and stop.
func RoleFromPairType(pairType, execType string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(pairType)) {
	case "enter", "entry", "main":
		return RoleEntry, true
	case "limit":
		return RoleExitLimit, true
	case "stop":
		return RoleExitStop, true
	case "exit":
		if strings.EqualFold(strings.TrimSpace(execType), "stop") {
			return RoleExitStop, true
		}
		return RoleExitLimit, true
	case "exit (market_close)", "market_close", "flush":
		return RoleExitMarketClose, true
	case "cancel":
		return RoleCancel, true
	}
	return 0, false
}

// IsExit reports whether the role closes entries
func (r Role) IsExit() bool {
	return r == RoleExitLimit || r == RoleExitStop || r == RoleExitMarketClose
}

// Status is the order lifecycle state: submitted, accepted, then one terminal state
type Status int

const (
	StatusSubmitted Status = iota
	StatusAccepted
	StatusCompleted
	StatusCanceled
	StatusRejected
)

var statusNames = map[Status]string{
	StatusSubmitted: "Submitted",
	StatusAccepted:  "Accepted",
	StatusCompleted: "Completed",
	StatusCanceled:  "Canceled",
	StatusRejected:  "Rejected",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Terminal reports whether no further transition can follow
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled || s == StatusRejected
}

// ParseStatus accepts the broker status names, case-insensitively
func ParseStatus(s string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "submitted", "created":
		return StatusSubmitted, true
	case "accepted", "partial":
		return StatusAccepted, true
	case "completed":
		return StatusCompleted, true
	case "canceled", "cancelled":
		return StatusCanceled, true
	case "rejected", "margin", "expired":
		return StatusRejected, true
	}
	return 0, false
}

// OrderEvent is one lifecycle notification for an order
type OrderEvent struct {
	Method        string
	Ref           int64
	Role          Role
	PairRef       PairRef
	Status        Status
	OrderType     string // Buy or Sell
	ExecType      string // Market, Limit, Stop, Close
	Symbol        string
	NotifyTime    time.Time
	ExecutedTime  time.Time
	Size          decimal.Decimal
	ExecutedSize  decimal.Decimal
	Price         decimal.Decimal
	ExecutedPrice decimal.Decimal
	ExecutedValue decimal.Decimal
}

// Time is the event's position in the log: execution time, else notification time
func (e OrderEvent) Time() time.Time {
	if !e.ExecutedTime.IsZero() {
		return e.ExecutedTime
	}
	return e.NotifyTime
}

// OpenSize is the signed entry size; negative sizes are shorts
func (e OrderEvent) OpenSize() decimal.Decimal {
	if !e.Size.IsZero() {
		return e.Size
	}
	return e.ExecutedSize
}

// FillPrice is the executed price, falling back to the order price
func (e OrderEvent) FillPrice() decimal.Decimal {
	if !e.ExecutedPrice.IsZero() {
		return e.ExecutedPrice
	}
	return e.Price
}

// EventLog is an ordered sequence of order events. Rejected holds rows that
// could not be ingested.
type EventLog struct {
	Symbol   string
	Events   []OrderEvent
	Rejected []Anomaly
}

func (l *EventLog) Append(e OrderEvent) { l.Events = append(l.Events, e) }

// Reject records an ingestion failure for one row
func (l *EventLog) Reject(a Anomaly) { l.Rejected = append(l.Rejected, a) }
