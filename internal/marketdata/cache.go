// Package marketdata maintains a Redis write-through of each symbol's last
// trade price. The ledger database stays the source of truth; the cache is
// best effort and a cache failure never fails a committed settlement.
package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/apexclear/settlement/pkg/models"
)

const lastPriceKeyPrefix = "marketdata:last_price:"

// PriceCache caches last trade prices in Redis.
type PriceCache struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewPriceCache creates a cache on the given Redis client. A zero ttl
// keeps prices until overwritten.
func NewPriceCache(client *redis.Client, logger *zap.Logger, ttl time.Duration) *PriceCache {
	return &PriceCache{client: client, logger: logger, ttl: ttl}
}

// SettlementCommitted writes the clearing price through to Redis. Runs
// after commit; errors are logged and dropped.
func (c *PriceCache) SettlementCommitted(ctx context.Context, trade *models.Trade) {
	key := lastPriceKeyPrefix + trade.Symbol
	if err := c.client.Set(ctx, key, trade.Price.String(), c.ttl).Err(); err != nil {
		c.logger.Warn("failed to cache last trade price",
			zap.String("symbol", trade.Symbol),
			zap.Error(err))
	}
}

// GetLastPrice returns the cached last trade price for a symbol.
// redis.Nil is returned unchanged on a cache miss.
func (c *PriceCache) GetLastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	val, err := c.client.Get(ctx, lastPriceKeyPrefix+symbol).Result()
	if err != nil {
		return decimal.Zero, err
	}
	price, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt cached price for %s: %w", symbol, err)
	}
	return price, nil
}
