package directions

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/ride-navigation/internal/models"
)

func TestOSRMRouteParsesGeometry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"Ok","routes":[{"distance":1500.5,"duration":120,
			"geometry":{"coordinates":[[79.8612,6.9271],[79.8550,6.9300],[79.8500,6.9344]]}}]}`))
	}))
	defer srv.Close()

	c := NewOSRMClient(srv.URL)
	route, err := c.Route(context.Background(),
		models.LatLng{Lat: 6.9271, Lng: 79.8612},
		models.LatLng{Lat: 6.9344, Lng: 79.8500})
	if err != nil {
		t.Fatal(err)
	}
	if len(route.Geometry.Points) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(route.Geometry.Points))
	}
	// geojson is lng,lat; make sure we swapped
	if route.Geometry.Points[0].Lat != 6.9271 || route.Geometry.Points[0].Lng != 79.8612 {
		t.Fatalf("coordinate order wrong: %+v", route.Geometry.Points[0])
	}
	if route.DistanceMeters != 1500.5 || route.DurationSeconds != 120 {
		t.Fatalf("unexpected distance/duration: %+v", route)
	}
	if route.Geometry.Start.Lat != 6.9271 || route.Geometry.End.Lat != 6.9344 {
		t.Fatalf("anchors not set from trip endpoints: %+v", route.Geometry)
	}
}

func TestOSRMRouteNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"NoRoute","routes":[]}`))
	}))
	defer srv.Close()

	c := NewOSRMClient(srv.URL)
	_, err := c.Route(context.Background(), models.LatLng{}, models.LatLng{Lat: 1})
	if !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
}
