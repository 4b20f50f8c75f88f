package tfagg

import (
	"github.com/Linkora-Dex/linkora-dex-backend/internal/model"
)

// Aggregator folds a stream of closed 1-minute candles into one higher
// timeframe for a single symbol. It keeps a watermark of the highest
// input timestamp seen, so re-delivered or out-of-order inputs are
// ignored and feeding the same stream twice produces the same state.
// Not goroutine-safe; the Manager serializes access.
type Aggregator struct {
	minutes     int
	watermark   int64
	periodStart int64
	current     *model.StreamCandle
}

// NewAggregator creates an empty aggregator for a timeframe width in
// minutes.
func NewAggregator(minutes int) *Aggregator {
	return &Aggregator{minutes: minutes}
}

// Watermark returns the highest input timestamp folded so far, or 0
// before the first input.
func (a *Aggregator) Watermark() int64 {
	return a.watermark
}

// Add folds one 1-minute candle. When the input starts a new period the
// previous partial is returned as the closed candle for its period and
// the new period is seeded from the input. Inputs at or below the
// watermark return nil and change nothing.
func (a *Aggregator) Add(in model.StreamCandle) *model.StreamCandle {
	if in.Timestamp <= a.watermark {
		return nil
	}
	a.watermark = in.Timestamp

	start := PeriodStart(a.minutes, in.Timestamp)
	if a.current == nil {
		a.seed(start, in)
		return nil
	}
	if start < a.periodStart {
		return nil
	}
	if start > a.periodStart {
		closed := *a.current
		a.seed(start, in)
		return &closed
	}

	cur := a.current
	if in.High.GreaterThan(cur.High) {
		cur.High = in.High
	}
	if in.Low.LessThan(cur.Low) {
		cur.Low = in.Low
	}
	cur.Close = in.Close
	cur.Volume = cur.Volume.Add(in.Volume)
	cur.QuoteVolume = cur.QuoteVolume.Add(in.QuoteVolume)
	cur.Trades += in.Trades
	return nil
}

// Current returns a copy of the forming candle, or nil before the first
// input.
func (a *Aggregator) Current() *model.StreamCandle {
	if a.current == nil {
		return nil
	}
	c := *a.current
	return &c
}

func (a *Aggregator) seed(start int64, in model.StreamCandle) {
	a.periodStart = start
	a.current = &model.StreamCandle{
		Symbol:      in.Symbol,
		Timestamp:   start,
		Open:        in.Open,
		High:        in.High,
		Low:         in.Low,
		Close:       in.Close,
		Volume:      in.Volume,
		QuoteVolume: in.QuoteVolume,
		Trades:      in.Trades,
	}
}
