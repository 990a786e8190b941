package directions

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"github.com/example/ride-navigation/internal/models"
	"github.com/example/ride-navigation/internal/observability"
)

// GoogleClient wraps the Google Maps SDK for directions and geocoding.
type GoogleClient struct {
	client *maps.Client
}

func NewGoogleClient(apiKey string) (*GoogleClient, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleClient{client: c}, nil
}

func (g *GoogleClient) Route(ctx context.Context, origin, dest models.LatLng) (Route, error) {
	req := &maps.DirectionsRequest{
		Origin:      fmt.Sprintf("%f,%f", origin.Lat, origin.Lng),
		Destination: fmt.Sprintf("%f,%f", dest.Lat, dest.Lng),
		Mode:        maps.TravelModeDriving,
	}
	routes, _, err := g.client.Directions(ctx, req)
	if err != nil {
		observability.DirectionsRequests.WithLabelValues("google", "error").Inc()
		return Route{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		observability.DirectionsRequests.WithLabelValues("google", "empty").Inc()
		return Route{}, ErrNoRoute
	}

	r := routes[0]
	decoded, err := r.OverviewPolyline.Decode()
	if err != nil {
		observability.DirectionsRequests.WithLabelValues("google", "error").Inc()
		return Route{}, fmt.Errorf("decode polyline: %w", err)
	}
	points := make([]models.LatLng, len(decoded))
	for i, p := range decoded {
		points[i] = models.LatLng{Lat: p.Lat, Lng: p.Lng}
	}

	var distance, duration float64
	for _, leg := range r.Legs {
		distance += float64(leg.Distance.Meters)
		duration += leg.Duration.Seconds()
	}

	observability.DirectionsRequests.WithLabelValues("google", "ok").Inc()
	return Route{
		Geometry:        models.RouteGeometry{Points: points, Start: origin, End: dest},
		DistanceMeters:  distance,
		DurationSeconds: duration,
	}, nil
}

func (g *GoogleClient) Geocode(ctx context.Context, address string) (models.LatLng, error) {
	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{Address: address})
	if err != nil {
		return models.LatLng{}, fmt.Errorf("geocode: %w", err)
	}
	if len(results) == 0 {
		return models.LatLng{}, fmt.Errorf("geocode %q: %w", address, ErrNoRoute)
	}
	loc := results[0].Geometry.Location
	return models.LatLng{Lat: loc.Lat, Lng: loc.Lng}, nil
}

func (g *GoogleClient) ReverseGeocode(ctx context.Context, p models.LatLng) (string, error) {
	results, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: p.Lat, Lng: p.Lng},
	})
	if err != nil {
		return "", fmt.Errorf("reverse geocode: %w", err)
	}
	if len(results) == 0 {
		return "", fmt.Errorf("reverse geocode (%f,%f): %w", p.Lat, p.Lng, ErrNoRoute)
	}
	return results[0].FormattedAddress, nil
}
