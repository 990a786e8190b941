package models

import (
	"errors"
	"fmt"
	"time"
)

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// StopKind distinguishes pickup stops from drop-off stops.
type StopKind string

const (
	StopPickup StopKind = "pickup"
	StopDrop   StopKind = "drop"
)

// Stop is a single pickup or drop-off point tied to one stock item.
type Stop struct {
	StockID string   `json:"stock_id"`
	Kind    StopKind `json:"kind"`
	Lat     float64  `json:"lat"`
	Lng     float64  `json:"lng"`
	Address string   `json:"address,omitempty"`
	Order   int      `json:"order"`
}

func (s Stop) Point() LatLng { return LatLng{Lat: s.Lat, Lng: s.Lng} }

// RouteGeometry is an ordered polyline sampling of a computed route plus its
// two direction anchors. Immutable once computed for a trip.
type RouteGeometry struct {
	Points []LatLng `json:"points"`
	Start  LatLng   `json:"start"`
	End    LatLng   `json:"end"`
}

// TripEndpoints are the start/end of one trip, as proposed or as booked.
type TripEndpoints struct {
	Start LatLng `json:"start"`
	End   LatLng `json:"end"`
}

// LocationPing is produced only by the driver client for a booking.
type LocationPing struct {
	BookingID string    `json:"booking_id"`
	Lat       float64   `json:"latitude"`
	Lng       float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// TimerKind tags a timer update as loading or unloading time.
type TimerKind string

const (
	TimerLoading   TimerKind = "loading"
	TimerUnloading TimerKind = "unloading"
)

// TimerUpdate carries the elapsed loading/unloading seconds for one stock.
type TimerUpdate struct {
	BookingID      string    `json:"booking_id"`
	StockID        string    `json:"stock_id"`
	Kind           TimerKind `json:"type"`
	ElapsedSeconds int64     `json:"time"`
}

type BookingType string

const (
	BookingOriginal BookingType = "original"
	BookingShared   BookingType = "shared"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingOngoing   BookingStatus = "ongoing"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

// Booking is the persisted booking record the navigation flow is keyed by.
// For a combined ride SharedBookingID links the matched second trip.
type Booking struct {
	ID              string
	Type            BookingType
	DriverID        string
	CustomerID      string
	OwnerID         string
	Status          BookingStatus
	SharedBookingID string
	Origin          LatLng
	Destination     LatLng
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Role identifies which party a notification targets.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleDriver   Role = "driver"
	RoleCustomer Role = "customer"
)

type EventType string

const (
	EventBookingCreated   EventType = "booking_created"
	EventBookingCancelled EventType = "booking_cancelled"
	EventFeedback         EventType = "feedback"
	EventRideStarted      EventType = "ride_started"
	EventRideCompleted    EventType = "ride_completed"
	EventLocationPing     EventType = "location_ping"
	EventTimerUpdate      EventType = "timer_update"
)

// Event is the lifecycle envelope published to kafka and fanned out by the
// notification router. Targets maps each recipient role to a user id.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	BookingID string          `json:"booking_id"`
	Targets   map[Role]string `json:"targets,omitempty"`
	Payload   any             `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

var ErrInvalidStops = errors.New("invalid stop list")

// ValidateStops checks the stop-list invariant: per stockId exactly one
// pickup and one drop, with the pickup ordered before the drop.
func ValidateStops(stops []Stop) error {
	type leg struct {
		pickups, drops         int
		pickupOrder, dropOrder int
	}
	legs := make(map[string]*leg)
	for _, s := range stops {
		l, ok := legs[s.StockID]
		if !ok {
			l = &leg{}
			legs[s.StockID] = l
		}
		switch s.Kind {
		case StopPickup:
			l.pickups++
			l.pickupOrder = s.Order
		case StopDrop:
			l.drops++
			l.dropOrder = s.Order
		default:
			return fmt.Errorf("%w: unknown stop kind %q", ErrInvalidStops, s.Kind)
		}
	}
	for stockID, l := range legs {
		if l.pickups != 1 || l.drops != 1 {
			return fmt.Errorf("%w: stock %s has %d pickups and %d drops", ErrInvalidStops, stockID, l.pickups, l.drops)
		}
		if l.pickupOrder >= l.dropOrder {
			return fmt.Errorf("%w: stock %s drop ordered before pickup", ErrInvalidStops, stockID)
		}
	}
	return nil
}
