package service

import (
	"context"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// SeatLedger tracks per-ride seat inventory. Reservation and release run
// against the repositories handed in by the caller, so they participate in
// whatever transaction the caller has open.
type SeatLedger struct{}

// NewSeatLedger creates a new SeatLedger.
func NewSeatLedger() *SeatLedger {
	return &SeatLedger{}
}

// Reserve decrements the ride's seat count. Returns ErrNoSeatsAvailable
// when the ride is at capacity; the decrement is a single conditional
// update, so two concurrent approvals cannot both succeed past capacity.
func (l *SeatLedger) Reserve(ctx context.Context, rides repository.RideRepository, rideID string) error {
	ok, err := rides.ReserveSeat(ctx, rideID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSeatsAvailable
	}
	return nil
}

// Release returns the seat held by a request, capped at seats_total.
// Idempotent per request: a second release for the same request is a no-op.
func (l *SeatLedger) Release(ctx context.Context, repos repository.Repositories, req *domain.RideRequest) error {
	released, err := repos.Requests.MarkSeatReleased(ctx, req.ID)
	if err != nil {
		return err
	}
	if !released {
		// Seat already returned for this request.
		return nil
	}
	return repos.Rides.ReleaseSeat(ctx, req.RideID)
}
