package query

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/runledger/runledger/metrics"
)

// ResultCache is an optional Redis-backed cache for fetch_metrics series.
// A query engine with no cache configured always falls through to the
// stores; the cache is a latency optimization only, never a correctness
// dependency, so every lookup failure is treated as a miss.
type ResultCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewResultCache connects to Redis and verifies the connection with a ping.
func NewResultCache(ctx context.Context, url string, ttl time.Duration) (*ResultCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("query: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("query: redis ping: %w", err)
	}
	return &ResultCache{client: client, prefix: "runledger:query:series:", ttl: ttl}, nil
}

// Close releases the Redis connection.
func (c *ResultCache) Close() error {
	return c.client.Close()
}

// seriesKey embeds the run id as the second path segment so Invalidate can
// target every cached entry for a run with one SCAN pattern.
func (c *ResultCache) seriesKey(runID, name string, sr metrics.StepRange, tr metrics.TimeRange, maxPoints int, method DownsampleMethod) string {
	return fmt.Sprintf("%s%s:%s:%s:%s:%s:%s:%d:%s", c.prefix, runID, name,
		formatInt64Ptr(sr.From), formatInt64Ptr(sr.To), formatTimePtr(tr.From), formatTimePtr(tr.To), maxPoints, method)
}

func formatInt64Ptr(p *int64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *p)
}

func formatTimePtr(p *time.Time) string {
	if p == nil {
		return "-"
	}
	return p.UTC().Format(time.RFC3339Nano)
}

func (c *ResultCache) get(ctx context.Context, key string) (SeriesResult, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return SeriesResult{}, false
	}
	var result SeriesResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return SeriesResult{}, false
	}
	return result, true
}

func (c *ResultCache) put(ctx context.Context, key string, result SeriesResult) {
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	c.client.Set(ctx, key, raw, c.ttl)
}

// Invalidate drops every cached series for a run, called by the coordinator
// whenever new points land for it so a cached series never outlives the
// ingest that made it stale.
func (c *ResultCache) Invalidate(ctx context.Context, runID string) {
	pattern := c.prefix + runID + ":*"
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		c.client.Del(ctx, keys...)
	}
}
