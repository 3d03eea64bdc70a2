package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/andresuchdata/merchops/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	reportKeyPrefix     = "merchops:report"
	reportScanBatchSize = 100
)

// ReportQuery identifies one cached API response
type ReportQuery struct {
	RunID   string
	Kind    string
	StoreID string
	ItemID  string
	Limit   int
}

// ReportCache stores encoded report responses. A miss is (nil, false, nil).
type ReportCache interface {
	Get(ctx context.Context, q ReportQuery) ([]byte, bool, error)
	Set(ctx context.Context, q ReportQuery, payload []byte) error
	InvalidateAll(ctx context.Context) error
	Close() error
}

type redisReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopReportCache struct{}

// NewReportCache connects to Redis when caching is enabled, and returns a no-op cache otherwise.
func NewReportCache(ctx context.Context, cfg config.CacheConfig) (ReportCache, error) {
	if !cfg.Enabled {
		return NewNoopReportCache(), nil
	}

	client, ttl, err := newRedisClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newRedisReportCache(client, ttl), nil
}

func newRedisReportCache(client *redis.Client, ttl time.Duration) *redisReportCache {
	return &redisReportCache{client: client, ttl: ttl}
}

func NewNoopReportCache() ReportCache {
	return noopReportCache{}
}

func (c *redisReportCache) Get(ctx context.Context, q ReportQuery) ([]byte, bool, error) {
	payload, err := c.client.Get(ctx, buildReportKey(q)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}
	return payload, true, nil
}

func (c *redisReportCache) Set(ctx context.Context, q ReportQuery, payload []byte) error {
	if err := c.client.Set(ctx, buildReportKey(q), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisReportCache) InvalidateAll(ctx context.Context) error {
	n, err := unlinkMatching(ctx, c.client, reportKeyPrefix, reportScanBatchSize)
	if err != nil {
		return err
	}
	log.Debug().Int64("keys", n).Msg("report cache invalidated")
	return nil
}

func (c *redisReportCache) Close() error {
	return c.client.Close()
}

func (noopReportCache) Get(context.Context, ReportQuery) ([]byte, bool, error) { return nil, false, nil }
func (noopReportCache) Set(context.Context, ReportQuery, []byte) error         { return nil }
func (noopReportCache) InvalidateAll(context.Context) error                    { return nil }
func (noopReportCache) Close() error                                           { return nil }

func buildReportKey(q ReportQuery) string {
	return fmt.Sprintf("%s:%s:%s", reportKeyPrefix, strings.ToLower(q.Kind), reportQueryHash(q))
}

func reportQueryHash(q ReportQuery) string {
	parts := []string{}
	if q.RunID != "" {
		parts = append(parts, "run="+q.RunID)
	}
	if v := strings.TrimSpace(q.StoreID); v != "" {
		parts = append(parts, "store_id="+strings.ToUpper(v))
	}
	if v := strings.TrimSpace(q.ItemID); v != "" {
		parts = append(parts, "item_id="+strings.ToUpper(v))
	}
	if q.Limit > 0 {
		parts = append(parts, "limit="+strconv.Itoa(q.Limit))
	}

	if len(parts) == 0 {
		return "default"
	}

	sort.Strings(parts)
	sum := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
