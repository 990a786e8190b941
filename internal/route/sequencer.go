package route

import (
	"github.com/example/ride-navigation/internal/geo"
	"github.com/example/ride-navigation/internal/models"
)

// Sequence computes the visiting order of the four stops of a combined ride.
// The trip whose end point lies farther from the anchor is picked up first
// and dropped off last, so the nearer trip's leg nests entirely inside the
// farther trip's leg and the vehicle never doubles back. Ties keep the
// original trip outermost.
func Sequence(original, shared models.TripEndpoints, anchor models.LatLng, originalStockID, sharedStockID string) []models.Stop {
	farTrip, farStock := original, originalStockID
	nearTrip, nearStock := shared, sharedStockID
	if geo.Distance(anchor, shared.End) > geo.Distance(anchor, original.End) {
		farTrip, farStock = shared, sharedStockID
		nearTrip, nearStock = original, originalStockID
	}

	return []models.Stop{
		{StockID: farStock, Kind: models.StopPickup, Lat: farTrip.Start.Lat, Lng: farTrip.Start.Lng, Order: 0},
		{StockID: nearStock, Kind: models.StopPickup, Lat: nearTrip.Start.Lat, Lng: nearTrip.Start.Lng, Order: 1},
		{StockID: nearStock, Kind: models.StopDrop, Lat: nearTrip.End.Lat, Lng: nearTrip.End.Lng, Order: 2},
		{StockID: farStock, Kind: models.StopDrop, Lat: farTrip.End.Lat, Lng: farTrip.End.Lng, Order: 3},
	}
}

// SingleTripStops produces the trivial two-stop list for an unshared booking.
func SingleTripStops(trip models.TripEndpoints, stockID string) []models.Stop {
	return []models.Stop{
		{StockID: stockID, Kind: models.StopPickup, Lat: trip.Start.Lat, Lng: trip.Start.Lng, Order: 0},
		{StockID: stockID, Kind: models.StopDrop, Lat: trip.End.Lat, Lng: trip.End.Lng, Order: 1},
	}
}
