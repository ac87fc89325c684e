package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tessera/internal/logger"
	"tessera/internal/models"
)

type Config struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// AvailabilityCache keeps short-lived zone availability snapshots in Redis so
// hot availability reads skip the database. A nil cache is valid and misses
// everything.
type AvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAvailabilityCache(cfg Config) (*AvailabilityCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Second
	}

	return &AvailabilityCache{client: rdb, ttl: ttl}, nil
}

func zoneKey(zoneID int64) string {
	return fmt.Sprintf("zone:availability:%d", zoneID)
}

func (c *AvailabilityCache) GetZone(ctx context.Context, zoneID int64) (*models.ZoneAvailability, bool) {
	if c == nil {
		return nil, false
	}

	raw, err := c.client.Get(ctx, zoneKey(zoneID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Get().Warn("Availability cache read failed", "zone_id", zoneID, "error", err)
		}
		return nil, false
	}

	var availability models.ZoneAvailability
	if err := json.Unmarshal(raw, &availability); err != nil {
		return nil, false
	}
	return &availability, true
}

func (c *AvailabilityCache) SetZone(ctx context.Context, availability *models.ZoneAvailability) {
	if c == nil {
		return
	}

	raw, err := json.Marshal(availability)
	if err != nil {
		return
	}

	if err := c.client.Set(ctx, zoneKey(availability.ZoneID), raw, c.ttl).Err(); err != nil {
		logger.Get().Warn("Availability cache write failed", "zone_id", availability.ZoneID, "error", err)
	}
}

// InvalidateZone drops the snapshot after any inventory movement. Stale reads
// within the TTL are acceptable; stale reads after a known change are not.
func (c *AvailabilityCache) InvalidateZone(ctx context.Context, zoneID int64) {
	if c == nil {
		return
	}

	if err := c.client.Del(ctx, zoneKey(zoneID)).Err(); err != nil {
		logger.Get().Warn("Availability cache invalidation failed", "zone_id", zoneID, "error", err)
	}
}

func (c *AvailabilityCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
