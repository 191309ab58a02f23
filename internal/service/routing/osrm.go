// internal/service/routing/osrm.go
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"towbook-service/internal/domain/booking"
)

const DefaultOSRMURL = "https://router.project-osrm.org"

// OSRMClient resolves driving routes with the OSRM route service.
type OSRMClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewOSRMClient(baseURL string, httpClient *http.Client) *OSRMClient {
	if baseURL == "" {
		baseURL = DefaultOSRMURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &OSRMClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"` // metres
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"` // [lng, lat]
		} `json:"geometry"`
	} `json:"routes"`
}

// ResolveRoute returns the first route OSRM suggests between the points.
func (c *OSRMClient) ResolveRoute(ctx context.Context, pickup, dropOff booking.Coordinate) (booking.Route, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=full&geometries=geojson",
		c.baseURL, pickup.Lng, pickup.Lat, dropOff.Lng, dropOff.Lat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return booking.Route{}, fmt.Errorf("failed to build route request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return booking.Route{}, fmt.Errorf("route request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return booking.Route{}, fmt.Errorf("failed to read route response: %w", err)
	}

	var parsed osrmResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return booking.Route{}, fmt.Errorf("failed to decode route response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK || parsed.Code != "Ok" {
		return booking.Route{}, fmt.Errorf("route service returned %d %s: %s", resp.StatusCode, parsed.Code, parsed.Message)
	}
	if len(parsed.Routes) == 0 {
		return booking.Route{}, fmt.Errorf("route service found no route")
	}

	best := parsed.Routes[0]
	if best.Distance < 0 {
		return booking.Route{}, fmt.Errorf("route service returned negative distance %f", best.Distance)
	}

	path := make([]booking.Coordinate, 0, len(best.Geometry.Coordinates))
	for _, p := range best.Geometry.Coordinates {
		if len(p) < 2 {
			continue
		}
		path = append(path, booking.Coordinate{Lat: p[1], Lng: p[0]})
	}

	return booking.Route{DistanceKm: best.Distance / 1000, Path: path}, nil
}
