package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Linkora-Dex/linkora-dex-backend/internal/model"
)

const insertCandleSQL = `
	INSERT INTO candles (symbol, timestamp, open_time, close_time,
	                     open_price, high_price, low_price, close_price,
	                     volume, quote_volume, trades,
	                     taker_buy_volume, taker_buy_quote_volume)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (symbol, timestamp) DO NOTHING`

// InsertCandles writes a batch in one transaction. Rows whose
// (symbol, timestamp) already exist are skipped, so the first observed
// row for a minute is never mutated. Returns the inserted count.
func (s *Store) InsertCandles(ctx context.Context, candles []model.Candle) (int64, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, c := range candles {
		batch.Queue(insertCandleSQL,
			c.Symbol, c.Timestamp, c.OpenTime, c.CloseTime,
			c.OpenPrice, c.HighPrice, c.LowPrice, c.ClosePrice,
			c.Volume, c.QuoteVolume, c.Trades,
			c.TakerBuyVolume, c.TakerBuyQuoteVolume)
	}

	br := tx.SendBatch(ctx, batch)
	var inserted int64
	for i := range candles {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return 0, fmt.Errorf("inserting candle %d: %w", i, err)
		}
		inserted += tag.RowsAffected()
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("closing batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// Candles returns up to limit buckets for the symbol, ordered ascending
// by bucket start. Timeframe "1" reads raw rows; larger timeframes
// aggregate server-side with time_bucket. A nil start selects the
// newest buckets (fetched descending, reversed here); with start the
// query walks forward from that instant.
func (s *Store) Candles(ctx context.Context, symbol, timeframe string, start *time.Time, limit int) ([]model.Candle, error) {
	minutes, ok := model.TimeframeMinutes(timeframe)
	if !ok {
		return nil, fmt.Errorf("unknown timeframe %q", timeframe)
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query, args := buildCandlesQuery(strings.ToUpper(symbol), minutes, start, limit)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying candles: %w", err)
	}
	defer rows.Close()

	candles := make([]model.Candle, 0, limit)
	for rows.Next() {
		c := model.Candle{Symbol: strings.ToUpper(symbol)}
		if err := rows.Scan(
			&c.Timestamp, &c.OpenTime, &c.CloseTime,
			&c.OpenPrice, &c.HighPrice, &c.LowPrice, &c.ClosePrice,
			&c.Volume, &c.QuoteVolume, &c.Trades,
			&c.TakerBuyVolume, &c.TakerBuyQuoteVolume,
		); err != nil {
			return nil, fmt.Errorf("scanning candle: %w", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading candles: %w", err)
	}

	if start == nil {
		reverse(candles)
	}
	return candles, nil
}

// buildCandlesQuery renders the select for one timeframe. The interval
// literal comes from the trusted timeframe table, never from request
// input; everything request-derived binds as a parameter.
func buildCandlesQuery(symbol string, minutes int, start *time.Time, limit int) (string, []any) {
	order := "DESC"
	if start != nil {
		order = "ASC"
	}

	if minutes == 1 {
		query := `
			SELECT timestamp, open_time, close_time,
			       open_price, high_price, low_price, close_price,
			       volume, quote_volume, trades,
			       taker_buy_volume, taker_buy_quote_volume
			FROM candles
			WHERE symbol = $1`
		args := []any{symbol}
		if start != nil {
			query += ` AND open_time >= $2`
			args = append(args, *start)
		}
		query += fmt.Sprintf(` ORDER BY timestamp %s LIMIT $%d`, order, len(args)+1)
		return query, append(args, limit)
	}

	bucket := fmt.Sprintf("time_bucket('%d minutes', open_time)", minutes)
	query := fmt.Sprintf(`
		SELECT (EXTRACT(epoch FROM %[1]s) * 1000)::bigint AS timestamp,
		       %[1]s AS open_time,
		       %[1]s + interval '%[2]d minutes' - interval '1 second' AS close_time,
		       first(open_price, open_time) AS open_price,
		       max(high_price) AS high_price,
		       min(low_price) AS low_price,
		       last(close_price, open_time) AS close_price,
		       sum(volume) AS volume,
		       sum(quote_volume) AS quote_volume,
		       sum(trades)::bigint AS trades,
		       sum(taker_buy_volume) AS taker_buy_volume,
		       sum(taker_buy_quote_volume) AS taker_buy_quote_volume
		FROM candles
		WHERE symbol = $1`, bucket, minutes)
	args := []any{symbol}
	if start != nil {
		query += ` AND open_time >= $2`
		args = append(args, *start)
	}
	query += fmt.Sprintf(` GROUP BY %s ORDER BY open_time %s LIMIT $%d`, bucket, order, len(args)+1)
	return query, append(args, limit)
}

// Symbols lists every distinct symbol with stored candles, sorted.
func (s *Store) Symbols(ctx context.Context) ([]string, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT DISTINCT symbol FROM candles ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("querying symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("scanning symbol: %w", err)
		}
		symbols = append(symbols, sym)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading symbols: %w", err)
	}
	return symbols, nil
}

func reverse(candles []model.Candle) {
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
}
