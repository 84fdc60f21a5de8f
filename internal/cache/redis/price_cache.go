package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantfold/tradecore/internal/domain"
)

// PriceCache stores the latest reference price per symbol in Redis hashes.
// Each symbol's price lives at key "price:{symbolCode}" with fields "price"
// and "ts" (Unix nanosecond timestamp). Live mode feeds it from the vendor
// stream; the matching engine reads it through domain.PriceProvider.
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(symbolCode string) string {
	return "price:" + symbolCode
}

// SetPrice stores the latest price and timestamp for a symbol.
func (pc *PriceCache) SetPrice(ctx context.Context, symbolCode string, price float64, ts time.Time) error {
	key := priceKey(symbolCode)
	fields := map[string]interface{}{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", symbolCode, err)
	}
	return nil
}

// ReferencePrice retrieves the latest price for a symbol. The side is ignored
// here: the cache carries one reference price per symbol. It returns
// domain.ErrNoPrice when no price has been seen yet.
func (pc *PriceCache) ReferencePrice(ctx context.Context, symbolCode string, _ domain.Side) (float64, error) {
	price, _, err := pc.Price(ctx, symbolCode)
	return price, err
}

// Price retrieves the latest price and its timestamp for a symbol.
func (pc *PriceCache) Price(ctx context.Context, symbolCode string) (float64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(symbolCode)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", symbolCode, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, fmt.Errorf("redis: price %s: %w", symbolCode, domain.ErrNoPrice)
	}

	priceStr, ok := vals["price"]
	if !ok {
		return 0, time.Time{}, fmt.Errorf("redis: price %s: %w", symbolCode, domain.ErrNoPrice)
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse price %s: %w", symbolCode, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return price, time.Time{}, nil
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", symbolCode, err)
	}

	return price, time.Unix(0, tsNano), nil
}

// Prices retrieves the latest prices for multiple symbols using a pipeline.
// Symbols without a stored price are omitted from the result map.
func (pc *PriceCache) Prices(ctx context.Context, symbolCodes []string) (map[string]float64, error) {
	if len(symbolCodes) == 0 {
		return map[string]float64{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(symbolCodes))
	for _, code := range symbolCodes {
		cmds[code] = pipe.HGetAll(ctx, priceKey(code))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	result := make(map[string]float64, len(symbolCodes))
	for code, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		priceStr, ok := vals["price"]
		if !ok {
			continue
		}
		price, err := strconv.ParseFloat(priceStr, 64)
		if err != nil {
			continue
		}
		result[code] = price
	}

	return result, nil
}

// Compile-time interface check.
var _ domain.PriceProvider = (*PriceCache)(nil)
