package fetch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the optional content-addressed fetch response cache
// described in §4.1/§5. A cache entry is always still subject to
// ETag/Last-Modified revalidation; Get's fresh=true return only applies
// within the entry's own freshness window, where no request is made at
// all.
type Cache interface {
	// Get returns a cached Result for url, if any, and whether it is
	// still within its freshness window (in which case the caller may
	// skip the network round trip entirely).
	Get(url string) (result *Result, fresh bool)
	Set(url string, result *Result)
}

// RedisCache backs the fetch cache with Redis, keyed by the request URL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache builds a RedisCache. freshness bounds how long a cached
// response is served without even a conditional request.
func NewRedisCache(addr, password string, db int, freshness time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisCache{client: client, ttl: freshness, prefix: "microsub:fetch:"}, nil
}

type cacheEntry struct {
	Result  *Result `json:"result"`
	StoredAt int64  `json:"stored_at"`
}

func (c *RedisCache) key(url string) string { return c.prefix + url }

// Get implements Cache.
func (c *RedisCache) Get(url string) (*Result, bool) {
	ctx := context.Background()
	data, err := c.client.Get(ctx, c.key(url)).Bytes()
	if err != nil {
		return nil, false
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false
	}
	fresh := time.Since(time.Unix(entry.StoredAt, 0)) < c.ttl
	return entry.Result, fresh
}

// Set implements Cache.
func (c *RedisCache) Set(url string, result *Result) {
	entry := cacheEntry{Result: result, StoredAt: time.Now().Unix()}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	ctx := context.Background()
	// Keep entries around well past their freshness window so they can
	// still contribute ETag/Last-Modified validators to a conditional
	// request after they go stale.
	c.client.Set(ctx, c.key(url), data, c.ttl*4)
}

// Close releases the underlying Redis connection.
func (c *RedisCache) Close() error { return c.client.Close() }

var _ Cache = (*RedisCache)(nil)
