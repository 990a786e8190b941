package geo

import (
	"math"
	"testing"

	"github.com/example/ride-navigation/internal/models"
)

func TestHaversineZero(t *testing.T) {
	d := Haversine(0, 0, 0, 0)
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// Colombo Fort to Colombo Town Hall, roughly 3.3 km.
	d := Haversine(6.9344, 79.8428, 6.9157, 79.8636)
	if d < 2500 || d > 4000 {
		t.Fatalf("implausible distance: %f", d)
	}
}

func TestMinDistanceToPath(t *testing.T) {
	path := []models.LatLng{
		{Lat: 0, Lng: 0},
		{Lat: 0, Lng: 0.1},
		{Lat: 0, Lng: 0.2},
	}
	d := MinDistanceToPath(models.LatLng{Lat: 0, Lng: 0.1}, path)
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
	d = MinDistanceToPath(models.LatLng{Lat: 0.01, Lng: 0.1}, path)
	if d < 1000 || d > 1300 {
		t.Fatalf("expected ~1.1km, got %f", d)
	}
}

func TestMinDistanceToPathEmpty(t *testing.T) {
	d := MinDistanceToPath(models.LatLng{}, nil)
	if !math.IsInf(d, 1) {
		t.Fatalf("expected +Inf for empty path, got %f", d)
	}
}
