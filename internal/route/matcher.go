package route

import (
	"errors"
	"fmt"

	"github.com/example/ride-navigation/internal/geo"
	"github.com/example/ride-navigation/internal/models"
)

var (
	// ErrOffRoute means a proposed point is not within the threshold of any
	// sample of the matched route's polyline.
	ErrOffRoute = errors.New("point is off route")
	// ErrOrderViolation means a proposed drop-off would be visited before its
	// pickup when travelling the route from start anchor to end anchor.
	ErrOrderViolation = errors.New("drop precedes pickup along route")
)

// DefaultThresholdMeters is the accept radius for the on-route test. It is a
// policy constant, not a correctness bound.
const DefaultThresholdMeters = 1000.0

// Matcher validates proposed shared stops against an existing route. It is a
// pure predicate: rejections are synchronous and never retried here.
type Matcher struct {
	ThresholdMeters float64
}

func NewMatcher(thresholdMeters float64) *Matcher {
	if thresholdMeters <= 0 {
		thresholdMeters = DefaultThresholdMeters
	}
	return &Matcher{ThresholdMeters: thresholdMeters}
}

// IsOnRoute accepts p when its minimum distance to the route polyline is
// within the threshold.
func (m *Matcher) IsOnRoute(p models.LatLng, route models.RouteGeometry) error {
	if len(route.Points) == 0 {
		return fmt.Errorf("%w: route has no samples", ErrOffRoute)
	}
	if d := geo.MinDistanceToPath(p, route.Points); d > m.ThresholdMeters {
		return fmt.Errorf("%w: nearest sample %.0fm away (threshold %.0fm)", ErrOffRoute, d, m.ThresholdMeters)
	}
	return nil
}

// IsOrderedAfter verifies drop comes after pickup in the route's direction of
// travel, by comparing straight-line distances from the start anchor. The
// drop must be strictly farther from the start than the pickup.
func (m *Matcher) IsOrderedAfter(pickup, drop models.LatLng, route models.RouteGeometry) error {
	pickupFromStart := geo.Distance(route.Start, pickup)
	dropFromStart := geo.Distance(route.Start, drop)
	if dropFromStart <= pickupFromStart {
		return fmt.Errorf("%w: drop %.0fm from start, pickup %.0fm", ErrOrderViolation, dropFromStart, pickupFromStart)
	}
	return nil
}

// ValidateLeg runs the full check for a proposed shared leg: both endpoints
// on the route, drop after pickup.
func (m *Matcher) ValidateLeg(pickup, drop models.LatLng, route models.RouteGeometry) error {
	if err := m.IsOnRoute(pickup, route); err != nil {
		return fmt.Errorf("pickup: %w", err)
	}
	if err := m.IsOnRoute(drop, route); err != nil {
		return fmt.Errorf("drop: %w", err)
	}
	return m.IsOrderedAfter(pickup, drop, route)
}
