package directions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/ride-navigation/internal/models"
	"github.com/example/ride-navigation/internal/observability"
)

// OSRMClient performs route lookups against an OSRM HTTP server. It serves
// directions only; geocoding needs the Google backend.
type OSRMClient struct {
	Endpoint string
	Client   *http.Client
}

func NewOSRMClient(endpoint string) *OSRMClient {
	return &OSRMClient{Endpoint: endpoint, Client: &http.Client{Timeout: 5 * time.Second}}
}

// Route queries OSRM /route with full geojson geometry so the polyline can
// feed the route matcher.
func (o *OSRMClient) Route(ctx context.Context, origin, dest models.LatLng) (Route, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=full&geometries=geojson",
		o.Endpoint, origin.Lng, origin.Lat, dest.Lng, dest.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Route{}, err
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		observability.DirectionsRequests.WithLabelValues("osrm", "error").Inc()
		return Route{}, err
	}
	defer resp.Body.Close()

	var out struct {
		Code   string `json:"code"`
		Routes []struct {
			Distance float64 `json:"distance"`
			Duration float64 `json:"duration"`
			Geometry struct {
				Coordinates [][]float64 `json:"coordinates"` // lng,lat pairs
			} `json:"geometry"`
		} `json:"routes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		observability.DirectionsRequests.WithLabelValues("osrm", "error").Inc()
		return Route{}, err
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		observability.DirectionsRequests.WithLabelValues("osrm", "empty").Inc()
		return Route{}, fmt.Errorf("%w: osrm code %q", ErrNoRoute, out.Code)
	}

	r := out.Routes[0]
	points := make([]models.LatLng, 0, len(r.Geometry.Coordinates))
	for _, c := range r.Geometry.Coordinates {
		if len(c) != 2 {
			continue
		}
		points = append(points, models.LatLng{Lat: c[1], Lng: c[0]})
	}

	observability.DirectionsRequests.WithLabelValues("osrm", "ok").Inc()
	return Route{
		Geometry:        models.RouteGeometry{Points: points, Start: origin, End: dest},
		DistanceMeters:  r.Distance,
		DurationSeconds: r.Duration,
	}, nil
}
