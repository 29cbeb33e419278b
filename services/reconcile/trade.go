package reconcile

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of a closed trade
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Trade is one entry paired with the exit that closed it
type Trade struct {
	ID             int64
	Symbol         string
	OpenTime       time.Time
	OpenPrice      decimal.Decimal
	CloseTime      time.Time
	ClosePrice     decimal.Decimal
	Direction      Direction
	Size           decimal.Decimal
	PriceDiff      decimal.Decimal
	PercentageDiff decimal.Decimal
	PnL            decimal.Decimal
	CloseRef       int64
	CloseRole      Role
}

// newTrade prices the pair. Short entries carry a negative size, so pnl needs no branch.
func newTrade(open, close OrderEvent, symbol string) Trade {
	size := open.OpenSize()
	openPrice := open.FillPrice()
	closePrice := close.FillPrice()
	diff := closePrice.Sub(openPrice)

	dir := Short
	if size.IsPositive() {
		dir = Long
	}
	pct := decimal.Zero
	if !openPrice.IsZero() {
		pct = diff.Div(openPrice)
	}
	return Trade{
		ID:             open.Ref,
		Symbol:         symbol,
		OpenTime:       open.Time(),
		OpenPrice:      openPrice,
		CloseTime:      close.Time(),
		ClosePrice:     closePrice,
		Direction:      dir,
		Size:           size,
		PriceDiff:      diff,
		PercentageDiff: pct,
		PnL:            diff.Mul(size),
		CloseRef:       close.Ref,
		CloseRole:      close.Role,
	}
}

// Duration is the time the position was held
func (t Trade) Duration() time.Duration { return t.CloseTime.Sub(t.OpenTime) }

// Summary aggregates closed trades
type Summary struct {
	Count       int
	Wins        int
	Losses      int
	Long        int
	Short       int
	NetPnL      decimal.Decimal
	GrossProfit decimal.Decimal
	GrossLoss   decimal.Decimal
	WinRate     decimal.Decimal // percent
	AveragePnL  decimal.Decimal

	// ProfitFactor is GrossProfit / |GrossLoss|, zero when there are no losses
	ProfitFactor decimal.Decimal
}

// Summarize computes totals over trades
func Summarize(trades []Trade) Summary {
	s := Summary{
		NetPnL:       decimal.Zero,
		GrossProfit:  decimal.Zero,
		GrossLoss:    decimal.Zero,
		WinRate:      decimal.Zero,
		AveragePnL:   decimal.Zero,
		ProfitFactor: decimal.Zero,
	}
	for _, t := range trades {
		s.Count++
		s.NetPnL = s.NetPnL.Add(t.PnL)
		switch {
		case t.PnL.IsPositive():
			s.Wins++
			s.GrossProfit = s.GrossProfit.Add(t.PnL)
		case t.PnL.IsNegative():
			s.Losses++
			s.GrossLoss = s.GrossLoss.Add(t.PnL)
		}
		if t.Direction == Long {
			s.Long++
		} else {
			s.Short++
		}
	}
	if s.Count > 0 {
		n := decimal.NewFromInt(int64(s.Count))
		s.WinRate = decimal.NewFromInt(int64(s.Wins)).Mul(decimal.NewFromInt(100)).Div(n)
		s.AveragePnL = s.NetPnL.Div(n)
	}
	if !s.GrossLoss.IsZero() {
		s.ProfitFactor = s.GrossProfit.Div(s.GrossLoss.Abs())
	}
	return s
}
