package services

import (
	"context"
	"time"

	"github.com/emilyats/authmed/internal/database"
)

const (
	// CacheKeyPrefix is the Redis key prefix for cached binary assets
	CacheKeyPrefix = "cache:"
	// AssetCacheTTL keeps preloaded assets around for a full day; the
	// preloader refreshes them on every process start anyway.
	AssetCacheTTL = 24 * time.Hour
)

// CacheService stores small binary blobs (preloaded assets) in Redis.
type CacheService struct{}

// GetBytes retrieves a cached blob. A miss is (nil, false, nil), not an error.
func (c *CacheService) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := database.RedisClient.Get(ctx, CacheKeyPrefix+key).Bytes()
	if err != nil {
		return nil, false, nil
	}
	return val, true, nil
}

// SetBytes stores a blob with the asset TTL.
func (c *CacheService) SetBytes(ctx context.Context, key string, value []byte) error {
	return database.RedisClient.Set(ctx, CacheKeyPrefix+key, value, AssetCacheTTL).Err()
}

// Delete removes a cached blob.
func (c *CacheService) Delete(ctx context.Context, key string) error {
	return database.RedisClient.Del(ctx, CacheKeyPrefix+key).Err()
}

// Cache is the process-wide cache service.
var Cache = &CacheService{}
