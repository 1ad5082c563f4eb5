package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"carpool/internal/domain"
	"carpool/internal/redis"
	"carpool/internal/repository"
)

// RequestService handles the passenger-to-driver request workflow:
// submit, approve, reject, withdraw.
type RequestService struct {
	atomic   repository.Atomic
	rides    repository.RideRepository
	requests repository.RequestRepository
	users    repository.UserRepository
	locks    redis.LockStoreInterface
	cache    redis.RideCacheInterface
	seats    *SeatLedger
	escrow   *EscrowService
	notifier *NotificationService
}

// NewRequestService creates a new RequestService.
func NewRequestService(
	atomic repository.Atomic,
	rides repository.RideRepository,
	requests repository.RequestRepository,
	users repository.UserRepository,
	locks redis.LockStoreInterface,
	cache redis.RideCacheInterface,
	seats *SeatLedger,
	escrow *EscrowService,
	notifier *NotificationService,
) *RequestService {
	return &RequestService{
		atomic:   atomic,
		rides:    rides,
		requests: requests,
		users:    users,
		locks:    locks,
		cache:    cache,
		seats:    seats,
		escrow:   escrow,
		notifier: notifier,
	}
}

// SubmitRequest creates a PENDING request backed by an authorized payment
// hold. The hold is placed before the request row exists; if the processor
// is down, no request is created. The slow authorize call runs outside the
// ride lock, so the duplicate check is done twice: once to fail fast, and
// again under the lock before the create commits. A submit that loses the
// second check releases its own hold.
func (s *RequestService) SubmitRequest(ctx context.Context, rideID, passengerID string) (*domain.RideRequest, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	if passengerID == "" {
		return nil, ErrInvalidUserID
	}

	ride, err := s.rides.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}

	if ride.Status != domain.RideStatusOpen {
		return nil, ErrRideNotOpen
	}

	if passengerID == ride.DriverID {
		return nil, ErrNotAuthorized
	}

	passenger, err := s.users.GetByID(ctx, passengerID)
	if err != nil {
		return nil, err
	}

	if err := checkGenderPreference(ride.GenderPreference, passenger.Gender); err != nil {
		return nil, err
	}

	err = withRideLock(ctx, s.locks, rideID, func() error {
		return s.ensureNoActiveRequest(ctx, rideID, passengerID)
	})
	if err != nil {
		return nil, err
	}

	// Place the hold before creating the request. The request ID is
	// pre-generated so the authorize call is idempotent across retries.
	requestID := uuid.New().String()
	authID, err := s.escrow.AuthorizeHold(ctx, requestID, ride.Price, passenger.PayerToken)
	if err != nil {
		return nil, err
	}

	var req *domain.RideRequest
	err = withRideLock(ctx, s.locks, rideID, func() error {
		fresh, err := s.rides.GetByID(ctx, rideID)
		if err != nil {
			return err
		}
		if fresh.Status != domain.RideStatusOpen {
			return ErrRideNotOpen
		}
		if err := s.ensureNoActiveRequest(ctx, rideID, passengerID); err != nil {
			return err
		}

		req = &domain.RideRequest{
			ID:            requestID,
			RideID:        rideID,
			PassengerID:   passengerID,
			Status:        domain.RequestStatusPending,
			PaymentAuthID: authID,
			PaymentStatus: domain.PaymentStatusAuthorized,
			CreatedAt:     time.Now(),
		}
		return s.requests.Create(ctx, req)
	})
	if err != nil {
		// No request row exists to carry the hold, so it must be voided
		// here or the money dangles.
		_ = s.escrow.ReleaseHold(ctx, requestID, authID)
		return nil, err
	}

	return req, nil
}

func (s *RequestService) ensureNoActiveRequest(ctx context.Context, rideID, passengerID string) error {
	existing, err := s.requests.GetActiveByRideAndPassenger(ctx, rideID, passengerID)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrDuplicateRequest
	}
	return nil
}

// Approve moves a PENDING request to APPROVED, reserving one seat. Driver
// only. On a full ride the approval fails and the request stays PENDING.
func (s *RequestService) Approve(ctx context.Context, requestID, actorID string) (*domain.RideRequest, error) {
	req, ride, err := s.loadRequestAndRide(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if actorID != ride.DriverID {
		return nil, ErrNotAuthorized
	}

	err = withRideLock(ctx, s.locks, ride.ID, func() error {
		if ride.Status != domain.RideStatusOpen {
			return ErrRideNotOpen
		}
		return s.atomic.WithinTx(ctx, func(r repository.Repositories) error {
			if err := s.seats.Reserve(ctx, r.Rides, ride.ID); err != nil {
				return err
			}
			ok, err := r.Requests.TransitionStatus(ctx, req.ID, domain.RequestStatusPending, domain.RequestStatusApproved)
			if err != nil {
				return err
			}
			if !ok {
				return ErrInvalidTransition
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	req.Status = domain.RequestStatusApproved
	s.invalidate(ctx, ride.ID)

	if s.notifier != nil {
		_ = s.notifier.NotifyRequestApproved(ctx, req)
	}

	return req, nil
}

// Reject moves a PENDING request to REJECTED and releases the payment
// hold. Driver only.
func (s *RequestService) Reject(ctx context.Context, requestID, actorID string) (*domain.RideRequest, error) {
	req, ride, err := s.loadRequestAndRide(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if actorID != ride.DriverID {
		return nil, ErrNotAuthorized
	}

	if err := s.closePending(ctx, ride, req, domain.RequestStatusRejected); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		_ = s.notifier.NotifyRequestRejected(ctx, req)
	}

	return req, nil
}

// Withdraw lets the passenger retract a request that is still PENDING,
// releasing the hold. After approval the passenger must cancel instead.
func (s *RequestService) Withdraw(ctx context.Context, requestID, actorID string) (*domain.RideRequest, error) {
	req, ride, err := s.loadRequestAndRide(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if actorID != req.PassengerID {
		return nil, ErrNotAuthorized
	}

	if err := s.closePending(ctx, ride, req, domain.RequestStatusCancelledByPassenger); err != nil {
		return nil, err
	}

	return req, nil
}

// closePending finishes a PENDING request into a terminal status and queues
// the hold for release. The status flip and the REFUND_PENDING mark commit
// together; the external refund runs after commit and is retried by the
// sweep if the processor is down.
func (s *RequestService) closePending(ctx context.Context, ride *domain.Ride, req *domain.RideRequest, terminal domain.RequestStatus) error {
	err := withRideLock(ctx, s.locks, ride.ID, func() error {
		return s.atomic.WithinTx(ctx, func(r repository.Repositories) error {
			ok, err := r.Requests.TransitionStatus(ctx, req.ID, domain.RequestStatusPending, terminal)
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
			return r.Requests.Update(ctx, req)
		})
	})
	if err != nil {
		return err
	}

	// Best effort; the refund sweep picks it up on transient failure.
	if refundErr := s.escrow.AttemptRefund(ctx, req); refundErr != nil && !errors.Is(refundErr, ErrPaymentProcessorUnavailable) {
		return refundErr
	}

	return nil
}

func (s *RequestService) loadRequestAndRide(ctx context.Context, requestID string) (*domain.RideRequest, *domain.Ride, error) {
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

func (s *RequestService) invalidate(ctx context.Context, rideID string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.InvalidateRide(ctx, rideID)
}

// GetRequest retrieves a request by ID.
func (s *RequestService) GetRequest(ctx context.Context, requestID string) (*domain.RideRequest, error) {
	if requestID == "" {
		return nil, ErrInvalidRequestID
	}
	return s.requests.GetByID(ctx, requestID)
}

func checkGenderPreference(pref domain.GenderPreference, gender domain.Gender) error {
	switch pref {
	case domain.GenderPreferenceMaleOnly:
		if gender != domain.GenderMale {
			return ErrGenderRestricted
		}
	case domain.GenderPreferenceFemaleOnly:
		if gender != domain.GenderFemale {
			return ErrGenderRestricted
		}
	}
	return nil
}
