package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevokedSessionPrefix is the prefix for signed-out session lineage keys
const RevokedSessionPrefix = "session:revoked:"

// SessionRevocationCache remembers session lineages that were signed out
// so their still-signed tokens are refused until they would expire anyway.
type SessionRevocationCache struct {
	client *redis.Client
}

// NewSessionRevocationCache creates a SessionRevocationCache on the given client
func NewSessionRevocationCache(client *redis.Client) *SessionRevocationCache {
	return &SessionRevocationCache{client: client}
}

// RevokeSession marks sid as signed out for ttl
func (c *SessionRevocationCache) RevokeSession(ctx context.Context, sid string, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("redis client not initialized")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return c.client.Set(ctx, RevokedSessionPrefix+sid, "1", ttl).Err()
}

// IsRevoked reports whether sid was signed out
func (c *SessionRevocationCache) IsRevoked(ctx context.Context, sid string) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	n, err := c.client.Exists(ctx, RevokedSessionPrefix+sid).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
