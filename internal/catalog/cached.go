package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	cacheKeyPrefix = "catalog"
	loadTimeout    = 10 * time.Second
)

// Cached fronts another Source with a Redis JSON cache. Concurrent misses for the
// same key share a single upstream load. Not-found results are never cached.
// Redis failures are logged and the lookup goes to the source.
type Cached struct {
	source Source
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewCached wraps source. A nil client disables caching.
func NewCached(source Source, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{source: source, client: client, ttl: ttl, logger: logger}
}

// GetWarehouse implements Source.
func (c *Cached) GetWarehouse(ctx context.Context, id string) (Warehouse, error) {
	var wh Warehouse
	err := c.fetch(ctx, key("warehouse", id), &wh, func(ctx context.Context) (any, error) {
		return c.source.GetWarehouse(ctx, id)
	})
	return wh, err
}

// GetBOMItems implements Source.
func (c *Cached) GetBOMItems(ctx context.Context, bomID string) ([]BOMItem, error) {
	var items []BOMItem
	err := c.fetch(ctx, key("bom", bomID), &items, func(ctx context.Context) (any, error) {
		return c.source.GetBOMItems(ctx, bomID)
	})
	return items, err
}

// GetVendors implements Source.
func (c *Cached) GetVendors(ctx context.Context, filter VendorFilter) ([]Vendor, error) {
	ids := append([]string(nil), filter.IDs...)
	sort.Strings(ids)
	var vendors []Vendor
	err := c.fetch(ctx, key("vendors", strings.Join(ids, ","), filter.Search), &vendors, func(ctx context.Context) (any, error) {
		return c.source.GetVendors(ctx, filter)
	})
	return vendors, err
}

// Invalidate drops every cached catalog key.
func (c *Cached) Invalidate(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	iter := c.client.Scan(ctx, 0, cacheKeyPrefix+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *Cached) fetch(ctx context.Context, cacheKey string, dest any, loader func(context.Context) (any, error)) error {
	if c.client != nil {
		payload, err := c.client.Get(ctx, cacheKey).Bytes()
		if err == nil {
			return json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("catalog: cache get", slog.String("key", cacheKey), slog.Any("error", err))
		}
	}
	resultChan := c.group.DoChan(cacheKey, func() (any, error) {
		// shared by every waiter, so one caller giving up must not cancel it
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		value, err := loader(loadCtx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("catalog: encode %s: %w", cacheKey, err)
		}
		if c.client != nil {
			if err := c.client.Set(loadCtx, cacheKey, raw, c.ttl).Err(); err != nil {
				c.logger.Warn("catalog: cache set", slog.String("key", cacheKey), slog.Any("error", err))
			}
		}
		return raw, nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return res.Err
		}
		return json.Unmarshal(res.Val.([]byte), dest)
	}
}

func key(parts ...string) string {
	return cacheKeyPrefix + ":" + strings.Join(parts, ":")
}
