package directions

import (
	"context"
	"errors"

	"github.com/example/ride-navigation/internal/models"
)

// ErrNoRoute means the provider answered without a usable route; it is
// surfaced to the user and never auto-retried.
var ErrNoRoute = errors.New("no route from directions provider")

// Route is one computed route between two points.
type Route struct {
	Geometry        models.RouteGeometry
	DistanceMeters  float64
	DurationSeconds float64
}

// Client computes routes between two points. Implementations are opaque
// services; the caller discards results that arrive after the flow moved on.
type Client interface {
	Route(ctx context.Context, origin, dest models.LatLng) (Route, error)
}

// Geocoder resolves between addresses and coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (models.LatLng, error)
	ReverseGeocode(ctx context.Context, p models.LatLng) (string, error)
}
