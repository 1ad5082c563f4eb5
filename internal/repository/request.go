package repository

import (
	"context"
	"time"

	"carpool/internal/domain"
)

// RequestRepository defines the persistence operations for ride requests.
type RequestRepository interface {
	// Create persists a new request.
	Create(ctx context.Context, req *domain.RideRequest) error

	// GetByID retrieves a request by ID.
	GetByID(ctx context.Context, id string) (*domain.RideRequest, error)

	// GetActiveByRideAndPassenger retrieves the passenger's non-terminal
	// (PENDING or APPROVED) request on a ride. Returns nil if none exists.
	GetActiveByRideAndPassenger(ctx context.Context, rideID, passengerID string) (*domain.RideRequest, error)

	// ListByRide retrieves all requests for a ride.
	ListByRide(ctx context.Context, rideID string) ([]*domain.RideRequest, error)

	// ListByRideAndStatus retrieves a ride's requests in the given status.
	ListByRideAndStatus(ctx context.Context, rideID string, status domain.RequestStatus) ([]*domain.RideRequest, error)

	// Update updates an existing request.
	Update(ctx context.Context, req *domain.RideRequest) error

	// TransitionStatus moves a request from one status to another in a
	// single statement. Returns false if the request was no longer in
	// the expected status; the caller lost the race.
	TransitionStatus(ctx context.Context, id string, from, to domain.RequestStatus) (bool, error)

	// MarkSeatReleased flips the seat_released flag. Returns false if it
	// was already set, making seat release idempotent per request.
	MarkSeatReleased(ctx context.Context, id string) (bool, error)

	// ListRefundPending retrieves requests awaiting a refund retry whose
	// next-retry time has passed.
	ListRefundPending(ctx context.Context, now time.Time) ([]*domain.RideRequest, error)
}
