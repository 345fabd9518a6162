package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/ride-pooling/internal/models"
	"github.com/example/ride-pooling/internal/observability"
)

// OSRMClient performs route lookups against an OSRM HTTP server.
type OSRMClient struct {
	Endpoint string
	Client   *http.Client
}

func NewOSRMClient(endpoint string, timeout time.Duration) *OSRMClient {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &OSRMClient{Endpoint: endpoint, Client: &http.Client{Timeout: timeout}}
}

// Estimate queries /route between the points. OSRM answers with a code
// and zero or more routes; an Ok answer with no routes and a NoRoute
// code both mean the points are unroutable, which is a defined outcome,
// not a failure.
func (o *OSRMClient) Estimate(ctx context.Context, origin, destination models.Coord) (models.TripEstimate, error) {
	// OSRM wants lng,lat order.
	url := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=false&steps=false",
		o.Endpoint, origin.Lng, origin.Lat, destination.Lng, destination.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.TripEstimate{}, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		observability.RoutingEstimatesTotal.WithLabelValues("unavailable").Inc()
		return models.TripEstimate{}, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		observability.RoutingEstimatesTotal.WithLabelValues("unavailable").Inc()
		return models.TripEstimate{}, fmt.Errorf("%w: status %d", ErrServiceUnavailable, resp.StatusCode)
	}
	var out struct {
		Code   string `json:"code"`
		Routes []struct {
			Duration float64 `json:"duration"` // seconds
			Distance float64 `json:"distance"` // meters
		} `json:"routes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		observability.RoutingEstimatesTotal.WithLabelValues("unavailable").Inc()
		return models.TripEstimate{}, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		observability.RoutingEstimatesTotal.WithLabelValues("no_route").Inc()
		return models.TripEstimate{}, fmt.Errorf("%w: code %s", ErrRouteNotFound, out.Code)
	}
	observability.RoutingEstimatesTotal.WithLabelValues("ok").Inc()
	return models.TripEstimate{
		DurationMinutes: out.Routes[0].Duration / 60,
		DistanceMeters:  out.Routes[0].Distance,
	}, nil
}
