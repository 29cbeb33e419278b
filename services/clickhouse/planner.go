package clickhouse

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"backtest-analytics/services/engine"
)

// Chunk is one [From, To) slice of a bar query
type Chunk struct {
	From time.Time
	To   time.Time
}

// PlanMonths splits [from, to) on calendar month boundaries in UTC
func PlanMonths(from, to time.Time) []Chunk {
	from, to = from.UTC(), to.UTC()
	var chunks []Chunk
	cur := from
	for cur.Before(to) {
		next := time.Date(cur.Year(), cur.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
		if next.After(to) {
			next = to
		}
		chunks = append(chunks, Chunk{From: cur, To: next})
		cur = next
	}
	return chunks
}

// LoadBarsChunked loads a long range one month at a time so no single query
// materializes the whole series on the server
func (s *Store) LoadBarsChunked(ctx context.Context, symbol string, from, to time.Time) ([]engine.Bar, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("empty range %s..%s", from, to)
	}
	var bars []engine.Bar
	for _, c := range PlanMonths(from, to) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunk, err := s.LoadBars(ctx, symbol, c.From, c.To)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", c.From.Format("2006-01"), err)
		}
		bars = append(bars, chunk...)
	}
	s.logger.Info("Loaded bar range",
		zap.String("symbol", symbol),
		zap.Time("from", from),
		zap.Time("to", to),
		zap.Int("bars", len(bars)),
	)
	return bars, nil
}
