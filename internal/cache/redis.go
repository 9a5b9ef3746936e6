package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"example.com/enersight/services/telemetry/config"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// RedisClient provides caching and the company-scoped publish fan-out.
// Connected dashboards subscribe to their company channel; delivery is
// best effort with no acknowledgement.
type RedisClient struct {
	client  *redis.Client
	enabled bool
}

// NewRedisClient creates a new Redis client
func NewRedisClient(cfg config.RedisConfig) (*RedisClient, error) {
	if !cfg.Enabled {
		return &RedisClient{enabled: false}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	return &RedisClient{
		client:  client,
		enabled: true,
	}, nil
}

// CompanyChannel is the pub/sub channel carrying a company's live readings
func CompanyChannel(companyID uuid.UUID) string {
	return fmt.Sprintf("company:%s", companyID.String())
}

// Publish fans a payload out to the company's subscribers. Disabled
// clients drop the payload silently; the pipeline treats publishing as
// fire-and-forget either way.
func (c *RedisClient) Publish(ctx context.Context, companyID uuid.UUID, payload []byte) error {
	if !c.enabled {
		return nil
	}
	err := c.client.Publish(ctx, CompanyChannel(companyID), payload).Err()
	if err != nil {
		return errors.Wrap(err, "failed to publish to company channel")
	}
	return nil
}

// Get retrieves a value from cache
func (c *RedisClient) Get(ctx context.Context, key string, value interface{}) error {
	if !c.enabled {
		return errors.New("cache is disabled")
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return errors.Wrap(err, "key not found in cache")
		}
		return errors.Wrap(err, "failed to get value from Redis")
	}

	err = json.Unmarshal(data, value)
	if err != nil {
		return errors.Wrap(err, "failed to unmarshal cached value")
	}

	return nil
}

// Set stores a value in cache with optional expiration
func (c *RedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if !c.enabled {
		return errors.New("cache is disabled")
	}

	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "failed to marshal value for caching")
	}

	err = c.client.Set(ctx, key, data, expiration).Err()
	if err != nil {
		return errors.Wrap(err, "failed to set value in Redis")
	}

	return nil
}

// WeatherCacheKey generates a cache key for a weather lookup
func WeatherCacheKey(lat, lon float64) string {
	return fmt.Sprintf("weather:%.4f:%.4f", lat, lon)
}

// Close closes the Redis connection
func (c *RedisClient) Close() error {
	if !c.enabled || c.client == nil {
		return nil
	}

	return c.client.Close()
}
