package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/Linkora-Dex/linkora-dex-backend/internal/model"
)

// DepthResult is the raw depth reply: the upstream book revision plus
// both sides, best levels first.
type DepthResult struct {
	LastUpdateID int64
	Bids         []model.PriceLevel
	Asks         []model.PriceLevel
}

// Depth fetches an order book snapshot truncated upstream to limit
// levels per side.
func (c *Client) Depth(ctx context.Context, symbol string, limit int) (*DepthResult, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("limit", strconv.Itoa(limit))

	body, err := c.getJSON(ctx, c.depth, c.cfg.BaseURL+"/api/v3/depth?"+q.Encode(), c.cfg.DepthMaxRetries)
	if err != nil {
		return nil, err
	}

	var raw struct {
		LastUpdateID int64      `json:"lastUpdateId"`
		Bids         [][]string `json:"bids"`
		Asks         [][]string `json:"asks"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding depth reply: %w", err)
	}

	bids, err := c.parseLevels(symbol, "bids", raw.Bids)
	if err != nil {
		return nil, err
	}
	asks, err := c.parseLevels(symbol, "asks", raw.Asks)
	if err != nil {
		return nil, err
	}
	return &DepthResult{LastUpdateID: raw.LastUpdateID, Bids: bids, Asks: asks}, nil
}

func (c *Client) parseLevels(symbol, side string, raw [][]string) ([]model.PriceLevel, error) {
	out := make([]model.PriceLevel, 0, len(raw))
	for i, pair := range raw {
		if len(pair) < 2 {
			return nil, fmt.Errorf("%s level %d has %d fields, want 2", side, i, len(pair))
		}
		price, err := model.NormalizeDecimal(pair[0])
		if err != nil {
			c.log.Warn().Str("symbol", symbol).Str("side", side).Str("value", pair[0]).Msg("invalid depth price, using 0")
		}
		qty, err := model.NormalizeDecimal(pair[1])
		if err != nil {
			c.log.Warn().Str("symbol", symbol).Str("side", side).Str("value", pair[1]).Msg("invalid depth quantity, using 0")
		}
		out = append(out, model.PriceLevel{Price: price, Quantity: qty})
	}
	return out, nil
}
