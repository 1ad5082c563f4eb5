package repository

import (
	"context"
	"time"

	"carpool/internal/domain"
)

// RideRepository defines the persistence operations for rides.
type RideRepository interface {
	// Create persists a new ride.
	Create(ctx context.Context, ride *domain.Ride) error

	// GetByID retrieves a ride by ID.
	GetByID(ctx context.Context, id string) (*domain.Ride, error)

	// GetAll retrieves recent rides.
	GetAll(ctx context.Context) ([]*domain.Ride, error)

	// Update updates an existing ride, checking the version the caller
	// read against the stored row. Returns ErrStaleVersion if the ride
	// mutated since.
	Update(ctx context.Context, ride *domain.Ride) error

	// ReserveSeat atomically decrements seats_left if any remain.
	// Returns false if the ride has no seats available.
	ReserveSeat(ctx context.Context, rideID string) (bool, error)

	// ReleaseSeat increments seats_left, capped at seats_total.
	ReleaseSeat(ctx context.Context, rideID string) error

	// ConsumeStartCode atomically clears the start code and moves the
	// ride to STARTED if the code matches and the ride is OPEN. Returns
	// false if the code did not match.
	ConsumeStartCode(ctx context.Context, rideID, code string, startedAt time.Time) (bool, error)

	// ListStartedBefore retrieves rides in STARTED state whose trip
	// began before the cutoff. Used by the auto-capture sweep.
	ListStartedBefore(ctx context.Context, cutoff time.Time) ([]*domain.Ride, error)
}
