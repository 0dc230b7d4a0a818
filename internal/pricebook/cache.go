package pricebook

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// CachedLookup serves prices from Redis and falls back to Next on a miss.
// Cache failures never fail a lookup.
type CachedLookup struct {
	Next   Lookup
	Client redis.Cmdable
	TTL    time.Duration
	Prefix string
}

// Lookup implements Lookup.
func (c *CachedLookup) Lookup(ctx context.Context, externalID string) (Price, error) {
	if c.Client == nil || c.TTL <= 0 {
		return c.Next.Lookup(ctx, externalID)
	}
	key := c.key(externalID)
	if p, ok := c.get(ctx, key); ok {
		return p, nil
	}
	p, err := c.Next.Lookup(ctx, externalID)
	if err != nil {
		return Price{}, err
	}
	c.set(ctx, key, p)
	return p, nil
}

func (c *CachedLookup) get(ctx context.Context, key string) (Price, bool) {
	data, err := c.Client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("pricebook cache read failed")
		}
		return Price{}, false
	}
	var p Price
	if err := json.Unmarshal(data, &p); err != nil {
		return Price{}, false
	}
	return p, true
}

func (c *CachedLookup) set(ctx context.Context, key string, p Price) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.Client.Set(ctx, key, data, c.TTL).Err(); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("pricebook cache write failed")
	}
}

func (c *CachedLookup) key(externalID string) string {
	prefix := c.Prefix
	if prefix == "" {
		prefix = "pricebook:"
	}
	return prefix + externalID
}
