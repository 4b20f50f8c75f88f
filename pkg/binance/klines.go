package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Linkora-Dex/linkora-dex-backend/internal/model"
)

// Kline reply item layout (12 fields):
//
//	[
//	  1499040000000,      // open time (ms)
//	  "0.01634790",       // open
//	  "0.80000000",       // high
//	  "0.01575800",       // low
//	  "0.01577100",       // close
//	  "148976.11427815",  // volume
//	  1499644799999,      // close time (ms)
//	  "2434.19055334",    // quote asset volume
//	  308,                // number of trades
//	  "1756.87402397",    // taker buy base volume
//	  "28.46694368",      // taker buy quote volume
//	  "17928899.62484339" // ignored
//	]

// Klines fetches 1-minute candles for [startMs, endMs]. Malformed rows
// are skipped with a warning; unparseable decimal fields become zero.
func (c *Client) Klines(ctx context.Context, symbol string, startMs, endMs int64, limit int) ([]model.Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", c.cfg.Interval)
	q.Set("startTime", strconv.FormatInt(startMs, 10))
	q.Set("endTime", strconv.FormatInt(endMs, 10))
	q.Set("limit", strconv.Itoa(limit))

	body, err := c.getJSON(ctx, c.klines, c.cfg.BaseURL+"/api/v3/klines?"+q.Encode(), c.cfg.MaxRetries)
	if err != nil {
		return nil, err
	}

	var raw [][]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding klines reply: %w", err)
	}

	candles := make([]model.Candle, 0, len(raw))
	for i, item := range raw {
		cd, err := c.parseKline(symbol, item)
		if err != nil {
			c.log.Warn().Err(err).Str("symbol", symbol).Int("index", i).Msg("skipping malformed kline")
			continue
		}
		candles = append(candles, cd)
	}
	return candles, nil
}

func (c *Client) parseKline(symbol string, item []any) (model.Candle, error) {
	if len(item) != 12 {
		return model.Candle{}, fmt.Errorf("kline has %d fields, want 12", len(item))
	}
	openTime, ok := asInt64(item[0])
	if !ok {
		return model.Candle{}, fmt.Errorf("open time is %T, want number", item[0])
	}
	closeTime, ok := asInt64(item[6])
	if !ok {
		return model.Candle{}, fmt.Errorf("close time is %T, want number", item[6])
	}
	trades, ok := asInt64(item[8])
	if !ok {
		return model.Candle{}, fmt.Errorf("trades is %T, want number", item[8])
	}

	cd := model.Candle{
		Symbol:    symbol,
		Timestamp: openTime,
		OpenTime:  time.UnixMilli(openTime).UTC(),
		CloseTime: time.UnixMilli(closeTime).UTC(),
		Trades:    trades,
	}
	fields := []struct {
		name string
		idx  int
		dst  *decimal.Decimal
	}{
		{"open", 1, &cd.OpenPrice},
		{"high", 2, &cd.HighPrice},
		{"low", 3, &cd.LowPrice},
		{"close", 4, &cd.ClosePrice},
		{"volume", 5, &cd.Volume},
		{"quote_volume", 7, &cd.QuoteVolume},
		{"taker_buy_volume", 9, &cd.TakerBuyVolume},
		{"taker_buy_quote_volume", 10, &cd.TakerBuyQuoteVolume},
	}
	for _, f := range fields {
		d, err := c.decimalField(symbol, f.name, item[f.idx])
		if err != nil {
			return model.Candle{}, err
		}
		*f.dst = d
	}
	return cd, nil
}

// decimalField normalizes a string field. A value that fails to parse
// is substituted with zero and logged; a non-string value is a
// structural error and fails the whole row.
func (c *Client) decimalField(symbol, name string, v any) (decimal.Decimal, error) {
	s, ok := v.(string)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%s is %T, want string", name, v)
	}
	d, err := model.NormalizeDecimal(s)
	if err != nil {
		c.log.Warn().Str("symbol", symbol).Str("field", name).Str("value", s).Msg("invalid decimal value, using 0")
		return decimal.Zero, nil
	}
	return d, nil
}

func asInt64(v any) (int64, bool) {
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int64(f), true
}
