package geo

import (
	"math"

	"github.com/example/ride-navigation/internal/models"
)

// Haversine distance in meters
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}

// Distance is Haversine over LatLng values.
func Distance(a, b models.LatLng) float64 {
	return Haversine(a.Lat, a.Lng, b.Lat, b.Lng)
}

// MinDistanceToPath returns the minimum great-circle distance in meters from
// p to any sample of the polyline. Precision scales with the sampling; a
// denser polyline gives a finer result at linear cost.
func MinDistanceToPath(p models.LatLng, path []models.LatLng) float64 {
	min := math.Inf(1)
	for _, q := range path {
		if d := Distance(p, q); d < min {
			min = d
		}
	}
	return min
}
