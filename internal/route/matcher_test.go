package route

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-navigation/internal/geo"
	"github.com/example/ride-navigation/internal/models"
)

// straight west-to-east route along the equator, samples every ~1.1km
func eastboundRoute(samples int) models.RouteGeometry {
	pts := make([]models.LatLng, samples)
	for i := range pts {
		pts[i] = models.LatLng{Lat: 0, Lng: 0.01 * float64(i)}
	}
	return models.RouteGeometry{Points: pts, Start: pts[0], End: pts[len(pts)-1]}
}

func TestIsOnRouteWithinThreshold(t *testing.T) {
	m := NewMatcher(1000)
	r := eastboundRoute(50)

	// on a sample exactly
	assert.NoError(t, m.IsOnRoute(models.LatLng{Lat: 0, Lng: 0.2}, r))

	// ~550m north of the path
	assert.NoError(t, m.IsOnRoute(models.LatLng{Lat: 0.005, Lng: 0.2}, r))
}

func TestIsOnRouteFarPointRejected(t *testing.T) {
	m := NewMatcher(1000)
	r := eastboundRoute(50)

	// ~11km north, more than 10x threshold
	err := m.IsOnRoute(models.LatLng{Lat: 0.1, Lng: 0.2}, r)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOffRoute))
}

func TestIsOnRouteEmptyRoute(t *testing.T) {
	m := NewMatcher(0)
	err := m.IsOnRoute(models.LatLng{}, models.RouteGeometry{})
	assert.True(t, errors.Is(err, ErrOffRoute))
}

func TestIsOrderedAfter(t *testing.T) {
	m := NewMatcher(1000)
	r := eastboundRoute(50)

	pickup := models.LatLng{Lat: 0, Lng: 0.1}
	drop := models.LatLng{Lat: 0, Lng: 0.3}

	require.NoError(t, m.IsOrderedAfter(pickup, drop, r))

	// accepted pairs satisfy the anchor-distance invariant
	assert.Greater(t, geo.Distance(r.Start, drop), geo.Distance(r.Start, pickup))

	// reversed pair is rejected
	err := m.IsOrderedAfter(drop, pickup, r)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOrderViolation))

	// same point is rejected: drop must be strictly after
	assert.Error(t, m.IsOrderedAfter(pickup, pickup, r))
}

// Proposed shared pickup 5km off the route is rejected; moved to within
// 500m it is accepted.
func TestValidateLegRejectThenAccept(t *testing.T) {
	m := NewMatcher(1000)
	r := eastboundRoute(50)
	drop := models.LatLng{Lat: 0, Lng: 0.4}

	offPickup := models.LatLng{Lat: 0.045, Lng: 0.2} // ~5km north
	err := m.ValidateLeg(offPickup, drop, r)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOffRoute))

	nearPickup := models.LatLng{Lat: 0.004, Lng: 0.2} // ~440m north
	assert.NoError(t, m.ValidateLeg(nearPickup, drop, r))
}

func TestNewMatcherDefaultThreshold(t *testing.T) {
	m := NewMatcher(-1)
	assert.Equal(t, DefaultThresholdMeters, m.ThresholdMeters)
}
