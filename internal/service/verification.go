package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"carpool/internal/domain"
	"carpool/internal/redis"
	"carpool/internal/repository"
)

// Code validity windows. The start code is exchanged at the curb and goes
// stale fast; the completion code stays valid for the whole grace period.
const (
	StartCodeTTL         = 15 * time.Minute
	CompletionCodeWindow = 24 * time.Hour

	startCodeDigits      = 4
	completionCodeDigits = 6
)

// VerificationService generates and validates the one-time codes exchanged
// out-of-band between driver and passengers at pickup and drop-off.
type VerificationService struct {
	atomic   repository.Atomic
	rides    repository.RideRepository
	requests repository.RequestRepository
	locks    redis.LockStoreInterface
	cache    redis.RideCacheInterface
	escrow   *EscrowService
	notifier *NotificationService
}

// NewVerificationService creates a new VerificationService.
func NewVerificationService(
	atomic repository.Atomic,
	rides repository.RideRepository,
	requests repository.RequestRepository,
	locks redis.LockStoreInterface,
	cache redis.RideCacheInterface,
	escrow *EscrowService,
	notifier *NotificationService,
) *VerificationService {
	return &VerificationService{
		atomic:   atomic,
		rides:    rides,
		requests: requests,
		locks:    locks,
		cache:    cache,
		escrow:   escrow,
		notifier: notifier,
	}
}

// GenerateStartCode issues a fresh 4-digit pickup code for an OPEN ride
// with at least one approved passenger. Driver only. A prior unconsumed
// code is overwritten.
func (s *VerificationService) GenerateStartCode(ctx context.Context, rideID, actorID string) (string, error) {
	if rideID == "" {
		return "", ErrInvalidRideID
	}

	var code string
	err := withRideLock(ctx, s.locks, rideID, func() error {
		ride, err := s.rides.GetByID(ctx, rideID)
		if err != nil {
			return err
		}

		if actorID != ride.DriverID {
			return ErrNotAuthorized
		}
		if ride.Status != domain.RideStatusOpen {
			return ErrInvalidTransition
		}

		approved, err := s.requests.ListByRideAndStatus(ctx, rideID, domain.RequestStatusApproved)
		if err != nil {
			return err
		}
		if len(approved) == 0 {
			return ErrNoApprovedPassengers
		}

		code, err = randomDigits(startCodeDigits)
		if err != nil {
			return err
		}

		ride.StartCode = code
		ride.StartCodeIssuedAt = time.Now()
		return s.rides.Update(ctx, ride)
	})
	if err != nil {
		return "", mapStale(err)
	}

	return code, nil
}

// VerifyStart confirms physical pickup. Any passenger holding an approved
// request may enter the code; a match is consumed once for the whole ride
// (all approved passengers board together) and moves the ride to STARTED.
// Requests still pending at departure are rejected and their holds queued
// for release.
func (s *VerificationService) VerifyStart(ctx context.Context, rideID, actorID, code string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}

	var ride *domain.Ride
	var boarded []string
	var leftBehind []*domain.RideRequest

	err := withRideLock(ctx, s.locks, rideID, func() error {
		var err error
		ride, err = s.rides.GetByID(ctx, rideID)
		if err != nil {
			return err
		}

		if ride.Status != domain.RideStatusOpen {
			return ErrInvalidTransition
		}

		caller, err := s.requests.GetActiveByRideAndPassenger(ctx, rideID, actorID)
		if err != nil {
			return err
		}
		if caller == nil || caller.Status != domain.RequestStatusApproved {
			return ErrNotAuthorized
		}

		if ride.StartCode != "" && time.Since(ride.StartCodeIssuedAt) > StartCodeTTL {
			return ErrCodeExpired
		}

		startedAt := time.Now()

		// The OPEN→STARTED flip and the leftover rejections commit or
		// roll back together: a started ride must never leave pending
		// holds behind that nothing will ever release.
		err = s.atomic.WithinTx(ctx, func(r repository.Repositories) error {
			consumed, err := r.Rides.ConsumeStartCode(ctx, rideID, code, startedAt)
			if err != nil {
				return err
			}
			if !consumed {
				return ErrInvalidCode
			}

			approved, err := r.Requests.ListByRideAndStatus(ctx, rideID, domain.RequestStatusApproved)
			if err != nil {
				return err
			}
			for _, a := range approved {
				boarded = append(boarded, a.PassengerID)
			}

			// Whoever did not get approved before departure is out;
			// release their holds so the money is not stranded.
			pending, err := r.Requests.ListByRideAndStatus(ctx, rideID, domain.RequestStatusPending)
			if err != nil {
				return err
			}
			for _, p := range pending {
				ok, err := r.Requests.TransitionStatus(ctx, p.ID, domain.RequestStatusPending, domain.RequestStatusRejected)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				p.Status = domain.RequestStatusRejected
				if err := s.escrow.MarkRefundPending(p); err != nil {
					return err
				}
				if err := r.Requests.Update(ctx, p); err != nil {
					return err
				}
				leftBehind = append(leftBehind, p)
			}
			return nil
		})
		if err != nil {
			return err
		}

		ride.Status = domain.RideStatusStarted
		ride.StartedAt = startedAt
		ride.StartCode = ""
		ride.StartCodeIssuedAt = time.Time{}
		return nil
	})
	if err != nil {
		return nil, mapStale(err)
	}

	s.invalidate(ctx, rideID)

	for _, p := range leftBehind {
		_ = s.escrow.AttemptRefund(ctx, p)
	}

	if s.notifier != nil {
		_ = s.notifier.NotifyRideStarted(ctx, ride, boarded)
	}

	return ride, nil
}

// GenerateCompletionCode issues a fresh 6-digit drop-off code for a ride
// in progress. Driver only. The code is shared: every passenger enters the
// same digits to confirm their own leg.
func (s *VerificationService) GenerateCompletionCode(ctx context.Context, rideID, actorID string) (string, error) {
	if rideID == "" {
		return "", ErrInvalidRideID
	}

	var code string
	err := withRideLock(ctx, s.locks, rideID, func() error {
		ride, err := s.rides.GetByID(ctx, rideID)
		if err != nil {
			return err
		}

		if actorID != ride.DriverID {
			return ErrNotAuthorized
		}
		if ride.Status != domain.RideStatusStarted {
			return ErrInvalidTransition
		}

		code, err = randomDigits(completionCodeDigits)
		if err != nil {
			return err
		}

		ride.CompletionCode = code
		ride.CompletionCodeIssuedAt = time.Now()
		return s.rides.Update(ctx, ride)
	})
	if err != nil {
		return "", mapStale(err)
	}

	return code, nil
}

// VerifyCompletionResult reports what a successful completion settled.
type VerifyCompletionResult struct {
	Request       *domain.RideRequest
	RideCompleted bool
}

// VerifyCompletion confirms drop-off for one passenger's leg. A passenger
// settles their own request; the driver names the request being confirmed.
// On a match, the leg's hold is captured and the request completes; the
// ride completes once every approved request has settled.
func (s *VerificationService) VerifyCompletion(ctx context.Context, rideID, actorID, code, requestID string) (*VerifyCompletionResult, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}

	var ride *domain.Ride
	var req *domain.RideRequest

	// Validate under the lock, but keep the external capture call out of
	// the critical section.
	err := withRideLock(ctx, s.locks, rideID, func() error {
		var err error
		ride, err = s.rides.GetByID(ctx, rideID)
		if err != nil {
			return err
		}

		if ride.Status != domain.RideStatusStarted {
			return ErrInvalidTransition
		}

		if actorID == ride.DriverID {
			if requestID == "" {
				return ErrInvalidRequestID
			}
			req, err = s.requests.GetByID(ctx, requestID)
			if err != nil {
				return err
			}
			if req.RideID != rideID {
				return ErrInvalidRequestID
			}
		} else {
			req, err = s.requests.GetActiveByRideAndPassenger(ctx, rideID, actorID)
			if err != nil {
				return err
			}
			if req == nil {
				return ErrNotAuthorized
			}
		}

		if req.Status != domain.RequestStatusApproved {
			return ErrInvalidTransition
		}

		if ride.CompletionCode == "" || ride.CompletionCode != code {
			return ErrInvalidCode
		}
		if time.Since(ride.CompletionCodeIssuedAt) > CompletionCodeWindow {
			return ErrCodeExpired
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	rideCompleted, err := s.SettleLeg(ctx, ride, req)
	if err != nil {
		return nil, err
	}

	return &VerifyCompletionResult{Request: req, RideCompleted: rideCompleted}, nil
}

// SettleLeg captures the hold for an approved request and commits its
// completion, completing the ride when it was the last approved leg.
// Shared by explicit verification and the timeout sweep; if both race,
// whichever commits first wins and the loser gets ErrInvalidTransition.
// The capture is idempotent per request, so the race never charges twice.
func (s *VerificationService) SettleLeg(ctx context.Context, ride *domain.Ride, req *domain.RideRequest) (bool, error) {
	if err := s.escrow.Capture(ctx, req, ride.Price); err != nil {
		return false, err
	}

	rideCompleted := false
	err := withRideLock(ctx, s.locks, ride.ID, func() error {
		return s.atomic.WithinTx(ctx, func(r repository.Repositories) error {
			ok, err := r.Requests.TransitionStatus(ctx, req.ID, domain.RequestStatusApproved, domain.RequestStatusCompleted)
			if err != nil {
				return err
			}
			if !ok {
				// A concurrent settlement committed first.
				return ErrInvalidTransition
			}

			req.Status = domain.RequestStatusCompleted
			req.CompletedAt = time.Now()
			if err := r.Requests.Update(ctx, req); err != nil {
				return err
			}

			remaining, err := r.Requests.ListByRideAndStatus(ctx, ride.ID, domain.RequestStatusApproved)
			if err != nil {
				return err
			}
			if len(remaining) > 0 {
				return nil
			}

			fresh, err := r.Rides.GetByID(ctx, ride.ID)
			if err != nil {
				return err
			}
			fresh.Status = domain.RideStatusCompleted
			fresh.CompletedAt = req.CompletedAt
			fresh.CompletionCode = ""
			fresh.CompletionCodeIssuedAt = time.Time{}
			if err := r.Rides.Update(ctx, fresh); err != nil {
				return err
			}
			*ride = *fresh
			rideCompleted = true
			return nil
		})
	})
	if err != nil {
		return false, mapStale(err)
	}

	s.invalidate(ctx, ride.ID)

	if s.notifier != nil {
		_ = s.notifier.NotifyLegCompleted(ctx, ride, req)
		if rideCompleted {
			_ = s.notifier.NotifyRideCompleted(ctx, ride)
		}
	}

	return rideCompleted, nil
}

func (s *VerificationService) invalidate(ctx context.Context, rideID string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.InvalidateRide(ctx, rideID)
}

// mapStale converts an optimistic-concurrency conflict into the error the
// caller contract names: the losing transition is rejected, not retried.
func mapStale(err error) error {
	if errors.Is(err, repository.ErrStaleVersion) {
		return ErrInvalidTransition
	}
	return err
}

// randomDigits returns a zero-padded numeric code of length n.
func randomDigits(n int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < n; i++ {
		max.Mul(max, big.NewInt(10))
	}
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", n, v), nil
}
