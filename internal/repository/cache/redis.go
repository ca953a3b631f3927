package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mamadbah2/asigest/internal/config"
	"github.com/mamadbah2/asigest/internal/domain/models"
)

const (
	// DashboardKey holds the latest applied dashboard result.
	DashboardKey = "asigest:dashboard:latest"
	// DashboardTTL bounds how old a cached result served at startup can be.
	DashboardTTL = 10 * time.Minute
)

// ErrMiss is returned by Load when nothing usable is cached.
var ErrMiss = errors.New("dashboard snapshot not cached")

// Entry is the cached form of a dashboard result.
type Entry struct {
	Result  models.DashboardResult `json:"result"`
	SavedAt time.Time              `json:"saved_at"`
}

// SnapshotCache stores the latest dashboard result in Redis.
type SnapshotCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

// NewSnapshotCache wraps a Redis client.
func NewSnapshotCache(rdb redis.Cmdable) *SnapshotCache {
	return &SnapshotCache{rdb: rdb, ttl: DashboardTTL}
}

// Save stores result under DashboardKey.
func (c *SnapshotCache) Save(ctx context.Context, result models.DashboardResult, at time.Time) error {
	payload, err := Encode(Entry{Result: result, SavedAt: at})
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, DashboardKey, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache dashboard snapshot: %w", err)
	}
	return nil
}

// Load returns the cached entry or ErrMiss.
func (c *SnapshotCache) Load(ctx context.Context) (*Entry, error) {
	payload, err := c.rdb.Get(ctx, DashboardKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("read dashboard snapshot: %w", err)
	}
	return Decode(payload)
}

// Encode serialises a cache entry.
func Encode(entry Entry) ([]byte, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encode dashboard snapshot: %w", err)
	}
	return payload, nil
}

// Decode parses a cache entry; corrupt payloads count as a miss.
func Decode(payload []byte) (*Entry, error) {
	entry := new(Entry)
	if err := json.Unmarshal(payload, entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMiss, err)
	}
	return entry, nil
}
