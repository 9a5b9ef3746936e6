// Package weather proxies current-conditions lookups for meter sites. No
// aggregation happens here; responses pass through as the upstream API
// shapes them.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/enersight/services/telemetry/config"
	"example.com/enersight/services/telemetry/internal/cache"
)

const baseURL = "https://api.openweathermap.org/data/2.5/weather"

// Client looks up current conditions with a short redis-backed cache
type Client struct {
	apiKey string
	ttl    time.Duration
	http   *http.Client
	cache  *cache.RedisClient
}

// NewClient creates a weather client; redisClient may be nil to disable
// caching
func NewClient(cfg config.WeatherConfig, redisClient *cache.RedisClient) *Client {
	return &Client{
		apiKey: cfg.APIKey,
		ttl:    cfg.CacheTTL,
		http:   &http.Client{Timeout: 10 * time.Second},
		cache:  redisClient,
	}
}

// Current returns the current conditions at a coordinate
func (c *Client) Current(ctx context.Context, lat, lon float64) (map[string]interface{}, error) {
	key := cache.WeatherCacheKey(lat, lon)

	var conditions map[string]interface{}
	if c.cache != nil {
		if err := c.cache.Get(ctx, key, &conditions); err == nil {
			return conditions, nil
		}
	}

	url := fmt.Sprintf("%s?lat=%f&lon=%f&units=metric&lang=es&APPID=%s", baseURL, lat, lon, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build weather request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't retrieve data from weather api")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't read weather api response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("weather api returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, &conditions); err != nil {
		return nil, errors.Wrap(err, "couldn't decode weather api response")
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, conditions, c.ttl); err != nil {
			log.Debug().Err(err).Msg("weather cache write failed")
		}
	}

	return conditions, nil
}
