// internal/repository/redisstore/route_cache.go
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"towbook-service/internal/domain/booking"

	"github.com/redis/go-redis/v9"
)

// RouteCache keeps resolved routes per coordinate pair. Coordinates are keyed
// at five decimal places (about a metre).
type RouteCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRouteCache(client redis.Cmdable, ttl time.Duration) *RouteCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RouteCache{client: client, ttl: ttl}
}

func routeKey(pickup, dropOff booking.Coordinate) string {
	return fmt.Sprintf("route:%.5f,%.5f:%.5f,%.5f", pickup.Lat, pickup.Lng, dropOff.Lat, dropOff.Lng)
}

// Get returns the cached route, or nil on a miss.
func (c *RouteCache) Get(ctx context.Context, pickup, dropOff booking.Coordinate) (*booking.Route, error) {
	data, err := c.client.Get(ctx, routeKey(pickup, dropOff)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached route: %w", err)
	}

	var route booking.Route
	if err := json.Unmarshal(data, &route); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached route: %w", err)
	}
	return &route, nil
}

func (c *RouteCache) Set(ctx context.Context, pickup, dropOff booking.Coordinate, route booking.Route) error {
	data, err := json.Marshal(route)
	if err != nil {
		return fmt.Errorf("failed to marshal route: %w", err)
	}
	if err := c.client.Set(ctx, routeKey(pickup, dropOff), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache route: %w", err)
	}
	return nil
}
