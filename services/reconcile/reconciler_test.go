package reconcile

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-analytics/services/engine"
)

var t0 = time.Date(2025, 3, 7, 14, 30, 0, 0, time.UTC)

func at(min int) time.Time { return t0.Add(time.Duration(min) * time.Minute) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func entry(ref int64, min int, size, price string) OrderEvent {
	return OrderEvent{
		Ref: ref, Role: RoleEntry, Status: StatusCompleted, ExecutedTime: at(min),
		Size: dec(size), ExecutedSize: dec(size), ExecutedPrice: dec(price), Symbol: "AAPL",
	}
}

func exit(ref int64, role Role, pair PairRef, min int, price string) OrderEvent {
	return OrderEvent{Ref: ref, Role: role, PairRef: pair, Status: StatusCompleted, ExecutedTime: at(min), ExecutedPrice: dec(price)}
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s got %s", want, got)
}

func kinds(as []Anomaly) []AnomalyKind {
	out := []AnomalyKind{}
	for _, a := range as {
		out = append(out, a.Kind)
	}
	return out
}

type fakeRecorder struct {
	trades    map[string]int
	anomalies map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{trades: map[string]int{}, anomalies: map[string]int{}}
}

func (f *fakeRecorder) TradeClosed(d string)     { f.trades[d]++ }
func (f *fakeRecorder) AnomalyReported(k string) { f.anomalies[k]++ }

func TestLongRoundTrip(t *testing.T) {
	log := &EventLog{Events: []OrderEvent{
		entry(1, 0, "10", "100"),
		exit(2, RoleExitLimit, SingleRef(1), 5, "105"),
	}}
	res, err := Reconcile(log)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Empty(t, res.Anomalies)

	tr := res.Trades[0]
	assert.Equal(t, int64(1), tr.ID)
	assert.Equal(t, Long, tr.Direction)
	assertDec(t, "5", tr.PriceDiff)
	assertDec(t, "50", tr.PnL)
	assertDec(t, "0.05", tr.PercentageDiff)
	assertDec(t, "100", tr.OpenPrice)
	assertDec(t, "105", tr.ClosePrice)
	assert.Equal(t, at(0), tr.OpenTime)
	assert.Equal(t, at(5), tr.CloseTime)
	assert.Equal(t, int64(2), tr.CloseRef)
	assert.Equal(t, "AAPL", tr.Symbol)
	assert.Equal(t, 5*time.Minute, tr.Duration())
}

func TestShortStopLoss(t *testing.T) {
	log := &EventLog{Events: []OrderEvent{
		entry(1, 0, "-10", "100"),
		exit(2, RoleExitStop, SingleRef(1), 3, "102"),
	}}
	res, err := Reconcile(log)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, Short, res.Trades[0].Direction)
	assertDec(t, "2", res.Trades[0].PriceDiff)
	assertDec(t, "-20", res.Trades[0].PnL)
	assert.Equal(t, RoleExitStop, res.Trades[0].CloseRole)
}

func TestMarketCloseFlushClosesSeveralEntries(t *testing.T) {
	log := &EventLog{Events: []OrderEvent{
		entry(1, 0, "10", "100"),
		entry(2, 1, "5", "101"),
		exit(3, RoleExitMarketClose, ManyRefs(1, 2), 30, "99"),
	}}
	res, err := Reconcile(log)
	require.NoError(t, err)
	require.Len(t, res.Trades, 2)
	for _, tr := range res.Trades {
		assertDec(t, "99", tr.ClosePrice)
		assert.Equal(t, int64(3), tr.CloseRef)
	}
	assertDec(t, "-10", res.Trades[0].PnL)
	assertDec(t, "-10", res.Trades[1].PnL)
}

func TestCanceledExitFallsBackToFlush(t *testing.T) {
	tp := exit(2, RoleExitLimit, SingleRef(1), 0, "110")
	tp.Status = StatusAccepted
	canceled := tp
	canceled.Status = StatusCanceled
	canceled.ExecutedTime = at(29)

	log := &EventLog{Events: []OrderEvent{
		entry(1, 0, "10", "100"),
		tp,
		canceled,
		exit(3, RoleExitMarketClose, ManyRefs(1), 30, "104"),
	}}
	res, err := Reconcile(log)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Empty(t, res.Anomalies)
	assertDec(t, "40", res.Trades[0].PnL)
	assert.Equal(t, RoleExitMarketClose, res.Trades[0].CloseRole)
}

func TestOverwrittenCloseIsReported(t *testing.T) {
	rec := newFakeRecorder()
	log := &EventLog{Events: []OrderEvent{
		entry(1, 0, "10", "100"),
		exit(2, RoleExitLimit, SingleRef(1), 5, "105"),
		exit(3, RoleExitMarketClose, ManyRefs(1), 30, "103"),
	}}
	res, err := Reconcile(log, WithRecorder(rec))
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assertDec(t, "103", res.Trades[0].ClosePrice)
	require.Equal(t, []AnomalyKind{AnomalyCloseOverwritten}, kinds(res.Anomalies))
	assert.Equal(t, int64(1), res.Anomalies[0].Ref)
	assert.Contains(t, res.Anomalies[0].Context, "close 2 replaced")
	assert.Equal(t, 1, rec.anomalies["close_overwritten"])
	assert.Equal(t, 1, rec.trades["long"])
}

func TestMissingAndUnknownAreReported(t *testing.T) {
	log := &EventLog{Events: []OrderEvent{
		entry(1, 0, "10", "100"),
		exit(2, RoleExitLimit, SingleRef(9), 5, "105"),
		exit(3, RoleExitStop, PairRef{}, 6, "95"),
	}}
	res, err := Reconcile(log)
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	assert.Equal(t, []AnomalyKind{AnomalyUnknownEntry, AnomalyUnknownEntry, AnomalyMissingClose}, kinds(res.Anomalies))
	assert.Equal(t, int64(1), res.Anomalies[2].Ref)
}

func TestUntimedExitDoesNotClose(t *testing.T) {
	untimed := exit(2, RoleExitLimit, SingleRef(1), 0, "105")
	untimed.ExecutedTime = time.Time{}
	log := &EventLog{Events: []OrderEvent{
		entry(1, 5, "10", "100"),
		untimed,
	}}
	res, err := Reconcile(log)
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	assert.Equal(t, []AnomalyKind{AnomalyUntimedExit, AnomalyMissingClose}, kinds(res.Anomalies))

	// a later timed exit still closes the entry
	log.Events = append(log.Events, exit(3, RoleExitStop, SingleRef(1), 9, "98"))
	res, err = Reconcile(log)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, int64(3), res.Trades[0].CloseRef)
	assert.False(t, res.Trades[0].CloseTime.Before(res.Trades[0].OpenTime))
	assert.Equal(t, []AnomalyKind{AnomalyUntimedExit}, kinds(res.Anomalies))
}

func TestRejectedEntryNeverTrades(t *testing.T) {
	e := entry(1, 0, "10", "100")
	e.Status = StatusRejected
	log := &EventLog{Events: []OrderEvent{e, exit(2, RoleExitLimit, SingleRef(1), 5, "105")}}
	res, err := Reconcile(log)
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	assert.Equal(t, []AnomalyKind{AnomalyUnknownEntry}, kinds(res.Anomalies))
}

func TestDuplicateEntryKeepsFirst(t *testing.T) {
	log := &EventLog{Events: []OrderEvent{
		entry(1, 0, "10", "100"),
		entry(1, 1, "10", "101"),
		exit(2, RoleExitLimit, SingleRef(1), 5, "105"),
	}}
	res, err := Reconcile(log)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assertDec(t, "100", res.Trades[0].OpenPrice)
	assert.Equal(t, []AnomalyKind{AnomalyDuplicateEntry}, kinds(res.Anomalies))
}

func TestTradesOrderedByOpenTime(t *testing.T) {
	log := &EventLog{Events: []OrderEvent{
		entry(5, 0, "1", "10"),
		entry(3, 1, "1", "11"),
		entry(4, 1, "1", "12"),
		exit(6, RoleExitLimit, SingleRef(4), 2, "13"),
		exit(7, RoleExitLimit, SingleRef(3), 3, "13"),
		exit(8, RoleExitLimit, SingleRef(5), 4, "13"),
	}}
	res, err := Reconcile(log)
	require.NoError(t, err)
	require.Len(t, res.Trades, 3)
	ids := []int64{res.Trades[0].ID, res.Trades[1].ID, res.Trades[2].ID}
	assert.Equal(t, []int64{5, 3, 4}, ids)
	for _, tr := range res.Trades {
		assert.False(t, tr.CloseTime.Before(tr.OpenTime))
	}
}

func TestOutOfOrderEventsFailFast(t *testing.T) {
	log := &EventLog{Events: []OrderEvent{
		entry(1, 10, "10", "100"),
		exit(2, RoleExitLimit, SingleRef(1), 5, "105"),
	}}
	_, err := Reconcile(log)
	var oerr *engine.OrderingError
	require.True(t, errors.As(err, &oerr))
	assert.Equal(t, "events", oerr.What)
	assert.Equal(t, 1, oerr.Index)
}

func TestIngestRejectsAreReportedFirst(t *testing.T) {
	log := &EventLog{
		Events:   []OrderEvent{entry(1, 0, "10", "100")},
		Rejected: []Anomaly{{Kind: AnomalyParseError, Ref: 2, Context: `pair_order_ref "[1,"`}},
	}
	res, err := Reconcile(log)
	require.NoError(t, err)
	assert.Equal(t, []AnomalyKind{AnomalyParseError, AnomalyMissingClose}, kinds(res.Anomalies))
}

func TestIncrementalApply(t *testing.T) {
	r := NewReconciler(WithSymbol("MSFT"))
	e := entry(1, 0, "2", "50")
	e.Symbol = ""
	require.NoError(t, r.Apply(e))
	require.NoError(t, r.Apply(exit(2, RoleExitLimit, SingleRef(1), 1, "55")))
	res := r.Finish()
	require.Len(t, res.Trades, 1)
	assert.Equal(t, "MSFT", res.Trades[0].Symbol)
	assertDec(t, "10", res.Trades[0].PnL)
}

func TestSummarize(t *testing.T) {
	log := &EventLog{Events: []OrderEvent{
		entry(1, 0, "10", "100"),
		entry(2, 1, "-10", "100"),
		entry(3, 2, "1", "100"),
		exit(4, RoleExitLimit, SingleRef(1), 3, "105"),
		exit(5, RoleExitStop, SingleRef(2), 4, "102"),
		exit(6, RoleExitLimit, SingleRef(3), 5, "100"),
	}}
	res, err := Reconcile(log)
	require.NoError(t, err)
	s := Summarize(res.Trades)
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, 1, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.Equal(t, 2, s.Long)
	assert.Equal(t, 1, s.Short)
	assertDec(t, "30", s.NetPnL)
	assertDec(t, "50", s.GrossProfit)
	assertDec(t, "-20", s.GrossLoss)
	assertDec(t, "10", s.AveragePnL)
	assertDec(t, "2.5", s.ProfitFactor)
	assert.Equal(t, "33.3333333333333333", s.WinRate.String())

	empty := Summarize(nil)
	assert.Equal(t, 0, empty.Count)
	assert.True(t, empty.NetPnL.IsZero())
	assert.True(t, empty.ProfitFactor.IsZero())
}
