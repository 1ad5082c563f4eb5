package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"carpool/internal/domain"
	"carpool/internal/redis"
	"carpool/internal/repository"
)

// RideService is the orchestrator for the ride lifecycle. It owns the
// top-level state machine (OPEN -> STARTED -> COMPLETED, with CANCELLED as
// the escape hatch) and coordinates seats, escrow and penalties across
// transitions.
type RideService struct {
	atomic   repository.Atomic
	rides    repository.RideRepository
	requests repository.RequestRepository
	locks    redis.LockStoreInterface
	cache    redis.RideCacheInterface
	seats    *SeatLedger
	escrow   *EscrowService
	penalty  *PenaltyService
	notifier *NotificationService
}

// NewRideService creates a new RideService.
func NewRideService(
	atomic repository.Atomic,
	rides repository.RideRepository,
	requests repository.RequestRepository,
	locks redis.LockStoreInterface,
	cache redis.RideCacheInterface,
	seats *SeatLedger,
	escrow *EscrowService,
	penalty *PenaltyService,
	notifier *NotificationService,
) *RideService {
	return &RideService{
		atomic:   atomic,
		rides:    rides,
		requests: requests,
		locks:    locks,
		cache:    cache,
		seats:    seats,
		escrow:   escrow,
		penalty:  penalty,
		notifier: notifier,
	}
}

// PostRideRequest contains the parameters for posting a ride.
type PostRideRequest struct {
	DriverID         string
	Kind             domain.RideKind
	OriginCity       string
	OriginArea       string
	DestinationCity  string
	DestinationArea  string
	DepartureTime    time.Time
	ArrivalTime      time.Time
	Price            float64
	SeatsTotal       int
	GenderPreference domain.GenderPreference
}

// PostRide creates a new ride in OPEN state. A passenger posting is a
// single-seat ride with the same lifecycle.
func (s *RideService) PostRide(ctx context.Context, req PostRideRequest) (*domain.Ride, error) {
	if req.DriverID == "" {
		return nil, ErrInvalidUserID
	}
	if req.Price <= 0 {
		return nil, ErrInvalidPrice
	}
	if req.SeatsTotal <= 0 {
		return nil, ErrInvalidSeatCount
	}

	kind := req.Kind
	if kind == "" {
		kind = domain.RideKindDriverPosting
	}
	if kind == domain.RideKindPassengerRequest {
		req.SeatsTotal = 1
	}

	pref := req.GenderPreference
	if pref == "" {
		pref = domain.GenderPreferenceNone
	}

	ride := &domain.Ride{
		ID:               uuid.New().String(),
		Kind:             kind,
		DriverID:         req.DriverID,
		OriginCity:       req.OriginCity,
		OriginArea:       req.OriginArea,
		DestinationCity:  req.DestinationCity,
		DestinationArea:  req.DestinationArea,
		DepartureTime:    req.DepartureTime,
		ArrivalTime:      req.ArrivalTime,
		Price:            req.Price,
		SeatsTotal:       req.SeatsTotal,
		SeatsLeft:        req.SeatsTotal,
		GenderPreference: pref,
		Status:           domain.RideStatusOpen,
		CreatedAt:        time.Now(),
	}

	if err := s.rides.Create(ctx, ride); err != nil {
		return nil, err
	}

	return ride, nil
}

// GetRide retrieves a ride, serving polling clients from cache when fresh.
func (s *RideService) GetRide(ctx context.Context, rideID string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}

	ride, err := s.rides.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.SetRide(ctx, &redis.CachedRide{
			ID:        ride.ID,
			DriverID:  ride.DriverID,
			Status:    string(ride.Status),
			Price:     ride.Price,
			SeatsLeft: ride.SeatsLeft,
		})
	}

	return ride, nil
}

// GetRideSnapshot serves the lightweight polled view, from cache if fresh.
func (s *RideService) GetRideSnapshot(ctx context.Context, rideID string) (*redis.CachedRide, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetRide(ctx, rideID); err == nil && cached != nil {
			return cached, nil
		}
	}

	ride, err := s.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}

	return &redis.CachedRide{
		ID:        ride.ID,
		DriverID:  ride.DriverID,
		Status:    string(ride.Status),
		Price:     ride.Price,
		SeatsLeft: ride.SeatsLeft,
	}, nil
}

// GetAllRides retrieves recent rides.
func (s *RideService) GetAllRides(ctx context.Context) ([]*domain.Ride, error) {
	return s.rides.GetAll(ctx)
}

// ListRequests retrieves all requests for a ride.
func (s *RideService) ListRequests(ctx context.Context, rideID string) ([]*domain.RideRequest, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	return s.requests.ListByRide(ctx, rideID)
}

// CancelRideResult reports a whole-ride cancellation and its penalty.
type CancelRideResult struct {
	Ride       *domain.Ride
	Assessment *CancellationAssessment
}

// CancelRide cancels a whole ride. Driver only, valid from OPEN or
// STARTED. Every approved passenger is refunded in full and their seat
// released; the driver's cancellation is assessed against the penalty
// ledger.
func (s *RideService) CancelRide(ctx context.Context, rideID, actorID string) (*CancelRideResult, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}

	var ride *domain.Ride
	var dropped []*domain.RideRequest
	var passengerIDs []string

	err := withRideLock(ctx, s.locks, rideID, func() error {
		var err error
		ride, err = s.rides.GetByID(ctx, rideID)
		if err != nil {
			return err
		}

		if actorID != ride.DriverID {
			return ErrNotAuthorized
		}
		if ride.Status != domain.RideStatusOpen && ride.Status != domain.RideStatusStarted {
			return ErrInvalidTransition
		}

		return s.atomic.WithinTx(ctx, func(r repository.Repositories) error {
			approved, err := r.Requests.ListByRideAndStatus(ctx, rideID, domain.RequestStatusApproved)
			if err != nil {
				return err
			}
			for _, req := range approved {
				if err := s.closeRequestTx(ctx, r, req, domain.RequestStatusCancelledByDriver, true); err != nil {
					return err
				}
				dropped = append(dropped, req)
				passengerIDs = append(passengerIDs, req.PassengerID)
			}

			pending, err := r.Requests.ListByRideAndStatus(ctx, rideID, domain.RequestStatusPending)
			if err != nil {
				return err
			}
			for _, req := range pending {
				if err := s.closeRequestTx(ctx, r, req, domain.RequestStatusRejected, false); err != nil {
					return err
				}
				dropped = append(dropped, req)
			}

			fresh, err := r.Rides.GetByID(ctx, rideID)
			if err != nil {
				return err
			}
			fresh.Status = domain.RideStatusCancelled
			fresh.CancelledAt = time.Now()
			fresh.StartCode = ""
			fresh.StartCodeIssuedAt = time.Time{}
			fresh.CompletionCode = ""
			fresh.CompletionCodeIssuedAt = time.Time{}
			if err := r.Rides.Update(ctx, fresh); err != nil {
				return err
			}
			*ride = *fresh
			return nil
		})
	})
	if err != nil {
		return nil, mapStale(err)
	}

	s.invalidate(ctx, rideID)

	for _, req := range dropped {
		_ = s.escrow.AttemptRefund(ctx, req)
	}

	assessment, penaltyErr := s.penalty.EvaluateCancellation(ctx, ride.DriverID, ride.ID, ride.DepartureTime, ride.Price)
	if penaltyErr != nil && assessment == nil {
		return nil, penaltyErr
	}

	if s.notifier != nil {
		_ = s.notifier.NotifyRideCancelled(ctx, ride, passengerIDs)
	}

	return &CancelRideResult{Ride: ride, Assessment: assessment}, nil
}

// CancelSinglePassenger lets the driver remove one approved passenger
// without cancelling the ride. The passenger is refunded and the seat
// reopens; a partial removal never consumes the penalty ledger.
func (s *RideService) CancelSinglePassenger(ctx context.Context, requestID, actorID string) (*domain.RideRequest, error) {
	req, ride, err := s.loadRequestAndRide(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if actorID != ride.DriverID {
		return nil, ErrNotAuthorized
	}

	if err := s.cancelApproved(ctx, ride, req, domain.RequestStatusCancelledByDriver); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		_ = s.notifier.NotifyRequestCancelled(ctx, ride, req)
	}

	return req, nil
}

// CancelByPassengerResult reports a passenger self-cancellation and its
// penalty.
type CancelByPassengerResult struct {
	Request    *domain.RideRequest
	Assessment *CancellationAssessment
}

// CancelByPassenger lets an approved passenger leave the ride. Their hold
// is refunded in full, the seat reopens, and the cancellation is assessed
// against the penalty ledger.
func (s *RideService) CancelByPassenger(ctx context.Context, requestID, actorID string) (*CancelByPassengerResult, error) {
	req, ride, err := s.loadRequestAndRide(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if actorID != req.PassengerID {
		return nil, ErrNotAuthorized
	}

	if err := s.cancelApproved(ctx, ride, req, domain.RequestStatusCancelledByPassenger); err != nil {
		return nil, err
	}

	assessment, penaltyErr := s.penalty.EvaluateCancellation(ctx, req.PassengerID, ride.ID, ride.DepartureTime, ride.Price)
	if penaltyErr != nil && assessment == nil {
		return nil, penaltyErr
	}

	if s.notifier != nil {
		_ = s.notifier.NotifyRequestCancelled(ctx, ride, req)
	}

	return &CancelByPassengerResult{Request: req, Assessment: assessment}, nil
}

// cancelApproved closes one APPROVED request into a terminal status,
// releasing the seat and queuing the refund. The whole transition commits
// atomically; the external refund runs after commit.
func (s *RideService) cancelApproved(ctx context.Context, ride *domain.Ride, req *domain.RideRequest, terminal domain.RequestStatus) error {
	err := withRideLock(ctx, s.locks, ride.ID, func() error {
		if ride.Status == domain.RideStatusCompleted || ride.Status == domain.RideStatusCancelled {
			return ErrInvalidTransition
		}
		if req.Status != domain.RequestStatusApproved {
			return ErrInvalidTransition
		}
		return s.atomic.WithinTx(ctx, func(r repository.Repositories) error {
			return s.closeRequestTx(ctx, r, req, terminal, true)
		})
	})
	if err != nil {
		return mapStale(err)
	}

	s.invalidate(ctx, ride.ID)

	_ = s.escrow.AttemptRefund(ctx, req)
	return nil
}

// closeRequestTx transitions one request to a terminal status inside a
// transaction, marking its payment for refund and optionally releasing its
// seat.
func (s *RideService) closeRequestTx(ctx context.Context, r repository.Repositories, req *domain.RideRequest, terminal domain.RequestStatus, releaseSeat bool) error {
	ok, err := r.Requests.TransitionStatus(ctx, req.ID, req.Status, terminal)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidTransition
	}
	req.Status = terminal

	if err := s.escrow.MarkRefundPending(req); err != nil {
		return err
	}
	if err := r.Requests.Update(ctx, req); err != nil {
		return err
	}

	if releaseSeat {
		return s.seats.Release(ctx, r, req)
	}
	return nil
}

func (s *RideService) loadRequestAndRide(ctx context.Context, requestID string) (*domain.RideRequest, *domain.Ride, error) {
	if requestID == "" {
		return nil, nil, ErrInvalidRequestID
	}

	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}

	ride, err := s.rides.GetByID(ctx, req.RideID)
	if err != nil {
		return nil, nil, err
	}

	return req, ride, nil
}

func (s *RideService) invalidate(ctx context.Context, rideID string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.InvalidateRide(ctx, rideID)
}
