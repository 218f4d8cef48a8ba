package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/dutchbot/internal/domain"
)

const (
	// discoveredKey holds the most recent discovery result as a JSON array.
	discoveredKey = "markets:discovered"

	// marketTTL expires stale discovery results; a bot that stopped scanning
	// should not keep serving yesterday's market set to the dashboard.
	marketTTL = 5 * time.Minute
)

// MarketCache implements domain.MarketCache: one key carrying the latest
// discovered market set, refreshed every scan cycle.
type MarketCache struct {
	rdb *redis.Client
}

var _ domain.MarketCache = (*MarketCache)(nil)

// NewMarketCache creates a MarketCache backed by the given client.
func NewMarketCache(rdb *redis.Client) *MarketCache {
	return &MarketCache{rdb: rdb}
}

// SetAll replaces the cached discovery result.
func (mc *MarketCache) SetAll(ctx context.Context, markets []domain.Market) error {
	data, err := json.Marshal(markets)
	if err != nil {
		return fmt.Errorf("redis: marshal discovered markets: %w", err)
	}
	if err := mc.rdb.Set(ctx, discoveredKey, data, marketTTL).Err(); err != nil {
		return fmt.Errorf("redis: set discovered markets: %w", err)
	}
	return nil
}

// List returns the last cached discovery result. It returns
// domain.ErrNotFound when no fresh result is cached.
func (mc *MarketCache) List(ctx context.Context) ([]domain.Market, error) {
	data, err := mc.rdb.Get(ctx, discoveredKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get discovered markets: %w", err)
	}

	var markets []domain.Market
	if err := json.Unmarshal(data, &markets); err != nil {
		return nil, fmt.Errorf("redis: unmarshal discovered markets: %w", err)
	}
	return markets, nil
}
