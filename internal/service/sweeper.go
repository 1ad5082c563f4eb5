package service

import (
	"context"
	"errors"
	"log"
	"time"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// Default sweep settings. The grace period protects drivers from
// passengers who never confirm drop-off: past it, the escrow captures on
// its own.
const (
	DefaultSweepInterval   = time.Minute
	DefaultCompletionGrace = 24 * time.Hour
)

// SettlementSweeper is the background worker behind two durable jobs: the
// auto-capture of rides left in STARTED past the grace period, and the
// retry of pending refunds. Both are safe to run concurrently with manual
// verification; the loser of any race is rejected, not retried.
type SettlementSweeper struct {
	rides        repository.RideRepository
	requests     repository.RequestRepository
	verification *VerificationService
	escrow       *EscrowService
	interval     time.Duration
	grace        time.Duration
}

// NewSettlementSweeper creates a new SettlementSweeper.
func NewSettlementSweeper(
	rides repository.RideRepository,
	requests repository.RequestRepository,
	verification *VerificationService,
	escrow *EscrowService,
	interval time.Duration,
	grace time.Duration,
) *SettlementSweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if grace <= 0 {
		grace = DefaultCompletionGrace
	}
	return &SettlementSweeper{
		rides:        rides,
		requests:     requests,
		verification: verification,
		escrow:       escrow,
		interval:     interval,
		grace:        grace,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *SettlementSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Sweep performs one pass of auto-capture and refund retries.
func (s *SettlementSweeper) Sweep(ctx context.Context) {
	s.captureOverdue(ctx)
	s.retryRefunds(ctx)
}

// captureOverdue settles every approved leg of rides that started longer
// ago than the grace period. A capture that fails because the processor is
// down is simply retried on the next cycle; the request is not completed
// until the capture succeeds.
func (s *SettlementSweeper) captureOverdue(ctx context.Context) {
	cutoff := time.Now().Add(-s.grace)

	overdue, err := s.rides.ListStartedBefore(ctx, cutoff)
	if err != nil {
		log.Printf("[SWEEP] listing overdue rides failed: %v", err)
		return
	}

	for _, ride := range overdue {
		approved, err := s.requests.ListByRideAndStatus(ctx, ride.ID, domain.RequestStatusApproved)
		if err != nil {
			log.Printf("[SWEEP] listing requests for ride %s failed: %v", ride.ID, err)
			continue
		}

		for _, req := range approved {
			if _, err := s.verification.SettleLeg(ctx, ride, req); err != nil {
				if errors.Is(err, ErrInvalidTransition) {
					// A manual verification committed first.
					continue
				}
				log.Printf("[SWEEP] auto-capture for request %s failed: %v", req.ID, err)
			}
		}
	}
}

// retryRefunds replays the external refund for every request whose retry
// is due. AttemptRefund reschedules with backoff on failure.
func (s *SettlementSweeper) retryRefunds(ctx context.Context) {
	due, err := s.requests.ListRefundPending(ctx, time.Now())
	if err != nil {
		log.Printf("[SWEEP] listing pending refunds failed: %v", err)
		return
	}

	for _, req := range due {
		if err := s.escrow.AttemptRefund(ctx, req); err != nil && !errors.Is(err, ErrPaymentProcessorUnavailable) {
			log.Printf("[SWEEP] refund retry for request %s failed: %v", req.ID, err)
		}
	}
}
