package dataio

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"backtest-analytics/services/reconcile"
)

// TradeColumns is the flat trade row layout
var TradeColumns = []string{
	"id", "symbol", "open_datetime", "open_executed_price", "close_datetime", "close_executed_price",
	"type", "size", "price_diff", "percentage_diff", "pnl",
}

const tradeTimeLayout = "2006-01-02 15:04:05"

// WriteTrades writes one row per trade with a header
func WriteTrades(w io.Writer, trades []reconcile.Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(TradeColumns); err != nil {
		return err
	}
	for _, t := range trades {
		record := []string{
			strconv.FormatInt(t.ID, 10),
			t.Symbol,
			t.OpenTime.UTC().Format(tradeTimeLayout),
			t.OpenPrice.String(),
			t.CloseTime.UTC().Format(tradeTimeLayout),
			t.ClosePrice.String(),
			string(t.Direction),
			t.Size.String(),
			t.PriceDiff.String(),
			t.PercentageDiff.String(),
			t.PnL.String(),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// AnomalyColumns is the diagnostics row layout
var AnomalyColumns = []string{"kind", "ref", "context"}

// WriteAnomalies writes reconciliation diagnostics as CSV
func WriteAnomalies(w io.Writer, anomalies []reconcile.Anomaly) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(AnomalyColumns); err != nil {
		return err
	}
	for _, a := range anomalies {
		if err := cw.Write([]string{string(a.Kind), strconv.FormatInt(a.Ref, 10), a.Context}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatTime renders timestamps the way trade rows do
func FormatTime(t time.Time) string { return t.UTC().Format(tradeTimeLayout) }
