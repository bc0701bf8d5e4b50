package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require firmID for strict per-firm isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, firmID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, firmID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, firmID string, key string) error

	// GetAssessment retrieves the cached assessment for a case.
	// Returns nil, nil on a miss.
	GetAssessment(ctx context.Context, firmID string, caseID string) (*AssessmentResult, error)

	// SetAssessment caches the latest assessment for a case.
	SetAssessment(ctx context.Context, firmID string, caseID string, result *AssessmentResult, ttl time.Duration) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
