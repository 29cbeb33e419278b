package dataio

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"backtest-analytics/services/engine"
	"backtest-analytics/services/reconcile"
)

// EventOptions controls order log parsing
type EventOptions struct {
	Symbol   string
	Location *time.Location
}

// OrderColumns is the order log layout written by the execution engine
var OrderColumns = []string{
	"method", "ref", "notify_dt", "pair_type", "pair_order_ref", "executed_datetime", "order_type",
	"status", "size", "executed_size", "price", "executed_price", "executed_value", "exec_type",
}

// ReadOrderEvents reads an order log. Rows whose pair type or pair ref cannot be
// interpreted are recorded in EventLog.Rejected and skipped; any other malformed
// cell fails the whole read.
func ReadOrderEvents(r io.Reader, opts EventOptions) (*reconcile.EventLog, error) {
	cr := newCSVReader(r)
	log := &reconcile.EventLog{Symbol: opts.Symbol}
	var h header
	line := 0
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
			h = newHeader(rec)
			if _, ok := h.index("ref"); !ok {
				return nil, fmt.Errorf("line %d: order log header has no ref column", line)
			}
			continue
		}
		ev, rejected, err := parseOrderEvent(h, rec, opts)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if rejected != nil {
			log.Reject(*rejected)
			continue
		}
		log.Append(ev)
	}
	return log, nil
}

func parseOrderEvent(h header, rec []string, opts EventOptions) (reconcile.OrderEvent, *reconcile.Anomaly, error) {
	var ev reconcile.OrderEvent
	rawRef := h.get(rec, "ref")
	ref, err := strconv.ParseInt(rawRef, 10, 64)
	if err != nil {
		return ev, nil, &engine.ParseError{Field: "ref", Value: rawRef, Err: err}
	}
	ev.Ref = ref
	ev.Method = h.get(rec, "method")
	ev.OrderType = h.get(rec, "order_type")
	ev.ExecType = h.get(rec, "exec_type")
	ev.Symbol = h.get(rec, "symbol")
	if ev.Symbol == "" {
		ev.Symbol = opts.Symbol
	}

	rawStatus := h.get(rec, "status")
	status, ok := reconcile.ParseStatus(rawStatus)
	if !ok {
		return ev, nil, &engine.ParseError{Field: "status", Value: rawStatus}
	}
	ev.Status = status

	if ev.NotifyTime, err = ParseTime(h.get(rec, "notify_dt", "notify_datetime"), opts.Location); err != nil {
		return ev, nil, &engine.ParseError{Field: "notify_dt", Value: h.get(rec, "notify_dt"), Err: err}
	}
	if ev.ExecutedTime, err = ParseTime(h.get(rec, "executed_datetime", "executed_dt"), opts.Location); err != nil {
		return ev, nil, &engine.ParseError{Field: "executed_datetime", Value: h.get(rec, "executed_datetime"), Err: err}
	}

	decimals := []struct {
		field string
		dst   *decimal.Decimal
	}{
		{"size", &ev.Size},
		{"executed_size", &ev.ExecutedSize},
		{"price", &ev.Price},
		{"executed_price", &ev.ExecutedPrice},
		{"executed_value", &ev.ExecutedValue},
	}
	for _, d := range decimals {
		if *d.dst, err = parseDecimal(h.get(rec, d.field)); err != nil {
			return ev, nil, &engine.ParseError{Field: d.field, Value: h.get(rec, d.field), Err: err}
		}
	}

	pairType := h.get(rec, "pair_type")
	role, ok := reconcile.RoleFromPairType(pairType, ev.ExecType)
	if !ok {
		return ev, &reconcile.Anomaly{
			Kind:    reconcile.AnomalyParseError,
			Ref:     ref,
			Context: fmt.Sprintf("unknown pair_type %q", pairType),
		}, nil
	}
	ev.Role = role

	rawPair := h.get(rec, "pair_order_ref")
	pair, err := reconcile.ParsePairRef(rawPair)
	if err != nil {
		return ev, &reconcile.Anomaly{Kind: reconcile.AnomalyParseError, Ref: ref, Context: err.Error()}, nil
	}
	ev.PairRef = pair
	return ev, nil, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
