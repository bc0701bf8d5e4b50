package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opencase-legal/kestrel/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisCache implements Cache using Redis.
// Used as the Pro tier cache and as L2 in two-phase caching.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get retrieves a value from Redis.
func (c *RedisCache) Get(ctx context.Context, firmID string, key string) ([]byte, error) {
	if firmID == "" {
		return nil, fmt.Errorf("firmID is required")
	}

	fullKey := c.makeKey(firmID, key)
	val, err := c.client.Get(ctx, fullKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores a value in Redis with TTL.
func (c *RedisCache) Set(ctx context.Context, firmID string, key string, value []byte, ttl time.Duration) error {
	if firmID == "" {
		return fmt.Errorf("firmID is required")
	}

	fullKey := c.makeKey(firmID, key)
	return c.client.Set(ctx, fullKey, value, ttl).Err()
}

// Delete removes a value from Redis.
func (c *RedisCache) Delete(ctx context.Context, firmID string, key string) error {
	if firmID == "" {
		return fmt.Errorf("firmID is required")
	}

	fullKey := c.makeKey(firmID, key)
	return c.client.Del(ctx, fullKey).Err()
}

// GetAssessment retrieves the cached assessment for a case.
func (c *RedisCache) GetAssessment(ctx context.Context, firmID string, caseID string) (*domain.AssessmentResult, error) {
	data, err := c.Get(ctx, firmID, "assessment:"+caseID)
	if err != nil || data == nil {
		return nil, err
	}

	var result domain.AssessmentResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SetAssessment caches the latest assessment for a case.
func (c *RedisCache) SetAssessment(ctx context.Context, firmID string, caseID string, result *domain.AssessmentResult, ttl time.Duration) error {
	bytes, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.Set(ctx, firmID, "assessment:"+caseID, bytes, ttl)
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) makeKey(firmID, key string) string {
	return "kestrel:" + firmID + ":" + key
}
