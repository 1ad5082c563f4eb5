package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"carpool/internal/domain"
	"carpool/internal/service"
)

// ──────────────────────────────────────────────
// 6. RIDE POSTING AND LOOKUP
// ──────────────────────────────────────────────

func TestPostRide_CreatesOpenRide(t *testing.T) {
	t.Parallel()

	e := newEngine()

	ride, err := e.rideSvc.PostRide(context.Background(), service.PostRideRequest{
		DriverID:        "driver-1",
		OriginCity:      "Tunis",
		OriginArea:      "Lac 2",
		DestinationCity: "Sousse",
		DestinationArea: "Centre",
		DepartureTime:   time.Now().Add(24 * time.Hour),
		Price:           30.0,
		SeatsTotal:      3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ride.Status != domain.RideStatusOpen {
		t.Errorf("expected status %s, got %s", domain.RideStatusOpen, ride.Status)
	}
	if ride.Kind != domain.RideKindDriverPosting {
		t.Errorf("expected kind %s, got %s", domain.RideKindDriverPosting, ride.Kind)
	}
	if ride.SeatsLeft != 3 {
		t.Errorf("expected 3 seats left, got %d", ride.SeatsLeft)
	}
	if ride.GenderPreference != domain.GenderPreferenceNone {
		t.Errorf("expected gender preference %s, got %s", domain.GenderPreferenceNone, ride.GenderPreference)
	}
}

func TestPostRide_PassengerPostingIsSingleSeat(t *testing.T) {
	t.Parallel()

	e := newEngine()

	ride, err := e.rideSvc.PostRide(context.Background(), service.PostRideRequest{
		DriverID:        "passenger-1",
		Kind:            domain.RideKindPassengerRequest,
		OriginCity:      "Tunis",
		DestinationCity: "Sfax",
		DepartureTime:   time.Now().Add(24 * time.Hour),
		Price:           15.0,
		SeatsTotal:      4,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ride.SeatsTotal != 1 || ride.SeatsLeft != 1 {
		t.Errorf("a passenger posting is always single-seat, got %d/%d", ride.SeatsLeft, ride.SeatsTotal)
	}
}

func TestPostRide_Validation(t *testing.T) {
	t.Parallel()

	e := newEngine()
	ctx := context.Background()
	base := service.PostRideRequest{
		DriverID:      "driver-1",
		DepartureTime: time.Now().Add(24 * time.Hour),
		Price:         30.0,
		SeatsTotal:    3,
	}

	noDriver := base
	noDriver.DriverID = ""
	if _, err := e.rideSvc.PostRide(ctx, noDriver); !errors.Is(err, service.ErrInvalidUserID) {
		t.Errorf("expected ErrInvalidUserID, got %v", err)
	}

	freeRide := base
	freeRide.Price = 0
	if _, err := e.rideSvc.PostRide(ctx, freeRide); !errors.Is(err, service.ErrInvalidPrice) {
		t.Errorf("expected ErrInvalidPrice, got %v", err)
	}

	noSeats := base
	noSeats.SeatsTotal = 0
	if _, err := e.rideSvc.PostRide(ctx, noSeats); !errors.Is(err, service.ErrInvalidSeatCount) {
		t.Errorf("expected ErrInvalidSeatCount, got %v", err)
	}
}

func TestGetRideSnapshot_ServedFromCache(t *testing.T) {
	t.Parallel()

	e := newEngine()
	e.addOpenRide("ride-1", "driver-1", 30.0, 3)

	// First read fills the cache.
	if _, err := e.rideSvc.GetRide(context.Background(), "ride-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.cache.SetCallCount != 1 {
		t.Fatalf("expected 1 cache fill, got %d", e.cache.SetCallCount)
	}

	snapshot, err := e.rideSvc.GetRideSnapshot(context.Background(), "ride-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if snapshot.SeatsLeft != 3 {
		t.Errorf("expected 3 seats left, got %d", snapshot.SeatsLeft)
	}
	// Served from cache, not refilled.
	if e.cache.SetCallCount != 1 {
		t.Errorf("expected the snapshot to come from cache, got %d fills", e.cache.SetCallCount)
	}
}

func TestApprove_InvalidatesRideCache(t *testing.T) {
	t.Parallel()

	e := newEngine()
	e.addOpenRide("ride-1", "driver-1", 30.0, 2)
	e.addPendingRequest("req-1", "ride-1", "passenger-1")

	if _, err := e.rideSvc.GetRide(context.Background(), "ride-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := e.requestSvc.Approve(context.Background(), "req-1", "driver-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if e.cache.InvalidateCallCount == 0 {
		t.Error("a seat mutation must invalidate the cached snapshot")
	}
}
