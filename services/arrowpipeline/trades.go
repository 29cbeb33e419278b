package arrowpipeline

import (
	"fmt"
	"io"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/decimal128"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"backtest-analytics/services/reconcile"
)

// decimalScale is the number of fractional digits kept in trade decimals
const decimalScale = 10

var decimalType = &arrow.Decimal128Type{Precision: 38, Scale: decimalScale}

// TradesSchema is the schema of TradesRecord
var TradesSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64},
	{Name: "symbol", Type: arrow.BinaryTypes.String},
	{Name: "open_datetime", Type: tsType},
	{Name: "open_executed_price", Type: decimalType},
	{Name: "close_datetime", Type: tsType},
	{Name: "close_executed_price", Type: decimalType},
	{Name: "type", Type: arrow.BinaryTypes.String},
	{Name: "size", Type: decimalType},
	{Name: "price_diff", Type: decimalType},
	{Name: "percentage_diff", Type: decimalType},
	{Name: "pnl", Type: decimalType},
	{Name: "close_ref", Type: arrow.PrimitiveTypes.Int64},
	{Name: "close_role", Type: arrow.BinaryTypes.String},
}, nil)

// TradesRecord converts reconciled trades to one record. The caller releases it.
func (p *Pipeline) TradesRecord(trades []reconcile.Trade) arrow.Record {
	b := array.NewRecordBuilder(p.memoryPool, TradesSchema)
	defer b.Release()

	ids := b.Field(0).(*array.Int64Builder)
	symbols := b.Field(1).(*array.StringBuilder)
	openTS := b.Field(2).(*array.TimestampBuilder)
	openPx := b.Field(3).(*array.Decimal128Builder)
	closeTS := b.Field(4).(*array.TimestampBuilder)
	closePx := b.Field(5).(*array.Decimal128Builder)
	kinds := b.Field(6).(*array.StringBuilder)
	sizes := b.Field(7).(*array.Decimal128Builder)
	diffs := b.Field(8).(*array.Decimal128Builder)
	pcts := b.Field(9).(*array.Decimal128Builder)
	pnls := b.Field(10).(*array.Decimal128Builder)
	refs := b.Field(11).(*array.Int64Builder)
	roles := b.Field(12).(*array.StringBuilder)

	for _, t := range trades {
		ids.Append(t.ID)
		symbols.Append(t.Symbol)
		openTS.Append(arrow.Timestamp(t.OpenTime.UnixMilli()))
		openPx.Append(toDecimal128(t.OpenPrice))
		closeTS.Append(arrow.Timestamp(t.CloseTime.UnixMilli()))
		closePx.Append(toDecimal128(t.ClosePrice))
		kinds.Append(string(t.Direction))
		sizes.Append(toDecimal128(t.Size))
		diffs.Append(toDecimal128(t.PriceDiff))
		pcts.Append(toDecimal128(t.PercentageDiff))
		pnls.Append(toDecimal128(t.PnL))
		refs.Append(t.CloseRef)
		roles.Append(t.CloseRole.String())
	}
	return b.NewRecord()
}

// toDecimal128 rounds d to decimalScale digits
func toDecimal128(d decimal.Decimal) decimal128.Num {
	return decimal128.FromBigInt(d.Round(decimalScale).Shift(decimalScale).BigInt())
}

// WriteTrades writes trades as a single-record IPC stream
func (p *Pipeline) WriteTrades(w io.Writer, trades []reconcile.Trade) error {
	record := p.TradesRecord(trades)
	defer record.Release()

	writer := ipc.NewWriter(w, p.writerOptions(TradesSchema)...)
	if err := writer.Write(record); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write Arrow record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close Arrow stream: %w", err)
	}
	p.logger.Debug("Wrote Arrow trades", zap.Int("trades", len(trades)))
	return nil
}
