// internal/service/routing/cached.go
package routing

import (
	"context"

	"towbook-service/internal/domain/booking"

	"go.uber.org/zap"
)

// RouteCache stores routes per coordinate pair.
type RouteCache interface {
	Get(ctx context.Context, pickup, dropOff booking.Coordinate) (*booking.Route, error)
	Set(ctx context.Context, pickup, dropOff booking.Coordinate, route booking.Route) error
}

// CachedProvider serves routes from the cache and falls through to the
// provider on a miss. Cache failures are logged and never fail a lookup.
type CachedProvider struct {
	provider booking.DistanceProvider
	cache    RouteCache
	logger   *zap.Logger
}

func NewCachedProvider(provider booking.DistanceProvider, cache RouteCache, logger *zap.Logger) *CachedProvider {
	return &CachedProvider{provider: provider, cache: cache, logger: logger}
}

func (p *CachedProvider) ResolveRoute(ctx context.Context, pickup, dropOff booking.Coordinate) (booking.Route, error) {
	cached, err := p.cache.Get(ctx, pickup, dropOff)
	if err != nil {
		p.logger.Warn("route cache read failed", zap.Error(err))
	}
	if cached != nil {
		return *cached, nil
	}

	route, err := p.provider.ResolveRoute(ctx, pickup, dropOff)
	if err != nil {
		return booking.Route{}, err
	}

	if err := p.cache.Set(ctx, pickup, dropOff, route); err != nil {
		p.logger.Warn("route cache write failed", zap.Error(err))
	}
	return route, nil
}
