package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DeviceCachePrefix is the prefix for known-device cache keys
	DeviceCachePrefix = "device:known:"
	// DeviceCacheTTL is the time-to-live for cached device lookups
	DeviceCacheTTL = 1 * time.Hour
)

// DeviceCache caches IsKnownDevice answers in Redis
type DeviceCache struct {
	client *redis.Client
}

// NewDeviceCache creates a DeviceCache on the given client
func NewDeviceCache(client *redis.Client) *DeviceCache {
	return &DeviceCache{client: client}
}

func deviceKey(userID, deviceID string) string {
	return DeviceCachePrefix + userID + ":" + deviceID
}

// Get returns the cached answer and whether one was present.
// Redis errors are reported as a miss.
func (c *DeviceCache) Get(ctx context.Context, userID, deviceID string) (bool, bool) {
	if c == nil || c.client == nil {
		return false, false
	}

	key := deviceKey(userID, deviceID)
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("Device cache read failed", "key", key, "error", err)
		}
		return false, false
	}

	slog.Debug("Device cache hit", "key", key)
	return val == "1", true
}

// Set stores the answer for (userID, deviceID)
func (c *DeviceCache) Set(ctx context.Context, userID, deviceID string, known bool) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("redis client not initialized")
	}

	val := "0"
	if known {
		val = "1"
	}
	return c.client.Set(ctx, deviceKey(userID, deviceID), val, DeviceCacheTTL).Err()
}

// Invalidate drops the cached answer for (userID, deviceID)
func (c *DeviceCache) Invalidate(ctx context.Context, userID, deviceID string) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("redis client not initialized")
	}

	key := deviceKey(userID, deviceID)
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return err
	}
	slog.Debug("Device cache invalidated", "key", key)
	return nil
}
