package routing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"towbook-service/internal/domain/booking"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	pickup  = booking.Coordinate{Lat: 40.7128, Lng: -74.006}
	dropOff = booking.Coordinate{Lat: 40.7306, Lng: -73.9352}
)

func TestOSRMClient_ResolveRoute(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"code": "Ok",
			"routes": [{
				"distance": 12500,
				"geometry": {"coordinates": [[-74.006, 40.7128], [-73.97, 40.72], [-73.9352, 40.7306]]}
			}]
		}`))
	}))
	defer srv.Close()

	client := NewOSRMClient(srv.URL+"/", srv.Client())
	route, err := client.ResolveRoute(context.Background(), pickup, dropOff)
	require.NoError(t, err)

	assert.Equal(t, "/route/v1/driving/-74.006000,40.712800;-73.935200,40.730600", gotPath)
	assert.Equal(t, "overview=full&geometries=geojson", gotQuery)
	assert.Equal(t, 12.5, route.DistanceKm)
	require.Len(t, route.Path, 3)
	assert.Equal(t, pickup, route.Path[0])
	assert.Equal(t, dropOff, route.Path[2])
}

func TestOSRMClient_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"no route", http.StatusOK, `{"code": "NoRoute", "message": "Impossible route between points"}`},
		{"empty routes", http.StatusOK, `{"code": "Ok", "routes": []}`},
		{"server error", http.StatusBadGateway, `{"code": "Error"}`},
		{"not json", http.StatusOK, `<html>down</html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewOSRMClient(srv.URL, srv.Client()).ResolveRoute(context.Background(), pickup, dropOff)
			assert.Error(t, err)
		})
	}
}

func TestOSRMClient_HonoursContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewOSRMClient(srv.URL, srv.Client()).ResolveRoute(ctx, pickup, dropOff)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) ResolveRoute(ctx context.Context, a, b booking.Coordinate) (booking.Route, error) {
	args := m.Called(ctx, a, b)
	return args.Get(0).(booking.Route), args.Error(1)
}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) Get(ctx context.Context, a, b booking.Coordinate) (*booking.Route, error) {
	args := m.Called(ctx, a, b)
	route, _ := args.Get(0).(*booking.Route)
	return route, args.Error(1)
}

func (m *mockCache) Set(ctx context.Context, a, b booking.Coordinate, route booking.Route) error {
	return m.Called(ctx, a, b, route).Error(0)
}

func TestCachedProvider(t *testing.T) {
	route := booking.Route{DistanceKm: 12.5}
	ctx := context.Background()

	t.Run("hit skips provider", func(t *testing.T) {
		provider, cache := new(mockProvider), new(mockCache)
		cache.On("Get", ctx, pickup, dropOff).Return(&route, nil)

		got, err := NewCachedProvider(provider, cache, zap.NewNop()).ResolveRoute(ctx, pickup, dropOff)
		require.NoError(t, err)
		assert.Equal(t, route, got)
		provider.AssertNotCalled(t, "ResolveRoute", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("miss stores result", func(t *testing.T) {
		provider, cache := new(mockProvider), new(mockCache)
		cache.On("Get", ctx, pickup, dropOff).Return(nil, nil)
		provider.On("ResolveRoute", ctx, pickup, dropOff).Return(route, nil)
		cache.On("Set", ctx, pickup, dropOff, route).Return(nil)

		got, err := NewCachedProvider(provider, cache, zap.NewNop()).ResolveRoute(ctx, pickup, dropOff)
		require.NoError(t, err)
		assert.Equal(t, route, got)
		cache.AssertExpectations(t)
	})

	t.Run("cache outage falls through", func(t *testing.T) {
		provider, cache := new(mockProvider), new(mockCache)
		cache.On("Get", ctx, pickup, dropOff).Return(nil, errors.New("connection refused"))
		provider.On("ResolveRoute", ctx, pickup, dropOff).Return(route, nil)
		cache.On("Set", ctx, pickup, dropOff, route).Return(errors.New("connection refused"))

		got, err := NewCachedProvider(provider, cache, zap.NewNop()).ResolveRoute(ctx, pickup, dropOff)
		require.NoError(t, err)
		assert.Equal(t, route, got)
	})

	t.Run("provider failure is not cached", func(t *testing.T) {
		provider, cache := new(mockProvider), new(mockCache)
		cache.On("Get", ctx, pickup, dropOff).Return(nil, nil)
		provider.On("ResolveRoute", ctx, pickup, dropOff).Return(booking.Route{}, errors.New("timeout"))

		_, err := NewCachedProvider(provider, cache, zap.NewNop()).ResolveRoute(ctx, pickup, dropOff)
		assert.Error(t, err)
		cache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
