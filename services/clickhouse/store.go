package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"backtest-analytics/services/engine"
	"backtest-analytics/services/reconcile"
)

// Store reads and writes bars and order events
type Store struct {
	conn     Conn
	database string
	logger   *zap.Logger
}

func NewStore(conn Conn, database string, logger *zap.Logger) *Store {
	if database == "" {
		database = "backtest"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{conn: conn, database: database, logger: logger}
}

func (s *Store) Close() error { return s.conn.Close() }

// EnsureSchema creates the database and tables if missing
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, s.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.bars (
	symbol LowCardinality(String),
	ts DateTime64(3, 'UTC'),
	open Float64,
	high Float64,
	low Float64,
	close Float64,
	volume Float64
) ENGINE = ReplacingMergeTree
ORDER BY (symbol, ts)`, s.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.order_events (
	run_id String,
	seq UInt32,
	symbol LowCardinality(String),
	method String,
	ref Int64,
	notify_dt DateTime64(3, 'UTC'),
	pair_type LowCardinality(String),
	pair_order_ref String,
	executed_datetime DateTime64(3, 'UTC'),
	order_type LowCardinality(String),
	status LowCardinality(String),
	size Decimal(38, 10),
	executed_size Decimal(38, 10),
	price Decimal(38, 10),
	executed_price Decimal(38, 10),
	executed_value Decimal(38, 10),
	exec_type LowCardinality(String)
) ENGINE = MergeTree
ORDER BY (run_id, seq)`, s.database),
		TradesDDL(s.database + ".trades"),
	}
	for _, q := range ddl {
		if err := s.conn.Exec(ctx, q); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// LoadBars returns bars for symbol in [from, to) ordered by time
func (s *Store) LoadBars(ctx context.Context, symbol string, from, to time.Time) ([]engine.Bar, error) {
	q := fmt.Sprintf(`SELECT symbol, ts, open, high, low, close, volume
FROM %s.bars FINAL
WHERE symbol = ? AND ts >= ? AND ts < ?
ORDER BY ts`, s.database)
	rows, err := s.conn.Query(ctx, q, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var bars []engine.Bar
	for rows.Next() {
		var b engine.Bar
		if err := rows.Scan(&b.Symbol, &b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read bars: %w", err)
	}
	s.logger.Debug("Loaded bars", zap.String("symbol", symbol), zap.Int("count", len(bars)))
	return bars, nil
}

// InsertBars appends bars in one batch
func (s *Store) InsertBars(ctx context.Context, bars []engine.Bar) error {
	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf(`INSERT INTO %s.bars`, s.database))
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, b := range bars {
		if err := batch.Append(b.Symbol, b.Timestamp.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			batch.Abort()
			return fmt.Errorf("append bar: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send bars: %w", err)
	}
	return nil
}

// InsertOrderEvents stores an event log under runID, keeping its order
func (s *Store) InsertOrderEvents(ctx context.Context, runID string, log *reconcile.EventLog) error {
	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf(`INSERT INTO %s.order_events`, s.database))
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for i, e := range log.Events {
		symbol := e.Symbol
		if symbol == "" {
			symbol = log.Symbol
		}
		err := batch.Append(
			runID, uint32(i), symbol, e.Method, e.Ref,
			orEpoch(e.NotifyTime), e.Role.PairType(), e.PairRef.String(), orEpoch(e.ExecutedTime),
			e.OrderType, e.Status.String(),
			e.Size, e.ExecutedSize, e.Price, e.ExecutedPrice, e.ExecutedValue,
			execTypeFor(e),
		)
		if err != nil {
			batch.Abort()
			return fmt.Errorf("append event %d: %w", e.Ref, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send events: %w", err)
	}
	return nil
}

// LoadOrderEvents reads the log stored under runID. Rows that fail to parse are
// returned as rejects, the same as the CSV reader does.
func (s *Store) LoadOrderEvents(ctx context.Context, runID string) (*reconcile.EventLog, error) {
	q := fmt.Sprintf(`SELECT symbol, method, ref, notify_dt, pair_type, pair_order_ref, executed_datetime,
	order_type, status, size, executed_size, price, executed_price, executed_value, exec_type
FROM %s.order_events
WHERE run_id = ?
ORDER BY seq`, s.database)
	rows, err := s.conn.Query(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("query order events: %w", err)
	}
	defer rows.Close()

	log := &reconcile.EventLog{}
	for rows.Next() {
		var (
			e                         reconcile.OrderEvent
			pairType, pairRef, status string
			notify, executed          time.Time
			size, execSize, price     decimal.Decimal
			execPrice, execValue      decimal.Decimal
		)
		if err := rows.Scan(&e.Symbol, &e.Method, &e.Ref, &notify, &pairType, &pairRef, &executed,
			&e.OrderType, &status, &size, &execSize, &price, &execPrice, &execValue, &e.ExecType); err != nil {
			return nil, fmt.Errorf("scan order event: %w", err)
		}
		e.NotifyTime, e.ExecutedTime = fromEpoch(notify), fromEpoch(executed)
		e.Size, e.ExecutedSize, e.Price, e.ExecutedPrice, e.ExecutedValue = size, execSize, price, execPrice, execValue
		if log.Symbol == "" {
			log.Symbol = e.Symbol
		}

		st, ok := reconcile.ParseStatus(status)
		if !ok {
			return nil, &engine.ParseError{Field: "status", Value: status}
		}
		e.Status = st
		role, ok := reconcile.RoleFromPairType(pairType, e.ExecType)
		if !ok {
			log.Reject(reconcile.Anomaly{Kind: reconcile.AnomalyParseError, Ref: e.Ref, Context: fmt.Sprintf("unknown pair_type %q", pairType)})
			continue
		}
		e.Role = role
		pr, err := reconcile.ParsePairRef(pairRef)
		if err != nil {
			log.Reject(reconcile.Anomaly{Kind: reconcile.AnomalyParseError, Ref: e.Ref, Context: err.Error()})
			continue
		}
		e.PairRef = pr
		log.Append(e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read order events: %w", err)
	}
	s.logger.Debug("Loaded order events", zap.String("run_id", runID), zap.Int("count", len(log.Events)))
	return log, nil
}

// execTypeFor keeps stop exits recognizable after a round trip through pair_type
func execTypeFor(e reconcile.OrderEvent) string {
	if e.Role == reconcile.RoleExitStop && e.ExecType == "" {
		return "Stop"
	}
	return e.ExecType
}

func orEpoch(t time.Time) time.Time {
	if t.IsZero() {
		return time.Unix(0, 0).UTC()
	}
	return t.UTC()
}

func fromEpoch(t time.Time) time.Time {
	if t.IsZero() || t.Unix() == 0 {
		return time.Time{}
	}
	return t
}
