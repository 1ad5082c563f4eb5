package service

import (
	"context"
	"log"
	"time"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// Penalty policy. Cancellations further out than the window cost nothing;
// inside the window the first offence of the month is a free strike, every
// later one charges a share of the ride price.
const (
	penaltyWindow = 48 * time.Hour
	penaltyRate   = 0.20
)

// CancellationAssessment is disclosed to the cancelling party.
type CancellationAssessment struct {
	StrikeCount    int
	PenaltyApplied bool
	PenaltyAmount  float64
}

// PenaltyService tracks monthly cancellation strikes and applies
// cancellation fees.
type PenaltyService struct {
	strikes  repository.StrikeRepository
	users    repository.UserRepository
	escrow   *EscrowService
	notifier *NotificationService
}

// NewPenaltyService creates a new PenaltyService.
func NewPenaltyService(strikes repository.StrikeRepository, users repository.UserRepository, escrow *EscrowService, notifier *NotificationService) *PenaltyService {
	return &PenaltyService{
		strikes:  strikes,
		users:    users,
		escrow:   escrow,
		notifier: notifier,
	}
}

// EvaluateCancellation applies the strike and penalty policy for a
// cancellation of the given ride. Strikes are keyed by calendar month and
// reset implicitly when the month rolls over. The penalty is a separate
// charge against the canceller's payment method, never a capture of the
// escrow hold.
func (s *PenaltyService) EvaluateCancellation(ctx context.Context, userID, rideID string, departureTime time.Time, price float64) (*CancellationAssessment, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}

	yearMonth := time.Now().UTC().Format("2006-01")
	rec, err := s.strikes.Get(ctx, userID, yearMonth)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = &domain.StrikeRecord{UserID: userID, YearMonth: yearMonth}
	}

	hoursUntilDeparture := time.Until(departureTime).Hours()
	if hoursUntilDeparture >= penaltyWindow.Hours() {
		// Far enough out; no strike, no fee.
		return &CancellationAssessment{StrikeCount: rec.Count}, nil
	}

	if rec.Count == 0 {
		// First offence this month rides for free.
		rec.Count = 1
		if err := s.strikes.Upsert(ctx, rec); err != nil {
			return nil, err
		}
		return &CancellationAssessment{StrikeCount: rec.Count}, nil
	}

	penalty := price * penaltyRate
	rec.Count++
	rec.LastPenaltyAmount = penalty
	if err := s.strikes.Upsert(ctx, rec); err != nil {
		return nil, err
	}

	assessment := &CancellationAssessment{
		StrikeCount:    rec.Count,
		PenaltyApplied: true,
		PenaltyAmount:  penalty,
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	// The charge is idempotent per (ride, user); a retried cancellation
	// never double-bills.
	key := IdempotencyKey(rideID+":"+userID, "penalty")
	if err := s.escrow.ChargePenalty(ctx, penalty, user.PayerToken, key); err != nil {
		// The strike stands; the charge can be replayed with the same
		// key. Surface the failure without reversing the cancellation.
		log.Printf("[PENALTY] charge failed for user %s ride %s: %v", userID, rideID, err)
		return assessment, err
	}

	if s.notifier != nil {
		_ = s.notifier.NotifyPenaltyCharged(ctx, userID, penalty, rec.Count)
	}

	return assessment, nil
}

// GetStrikeCount reports the user's strike count for the current month.
// A month with no record counts as zero.
func (s *PenaltyService) GetStrikeCount(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrInvalidUserID
	}

	yearMonth := time.Now().UTC().Format("2006-01")
	rec, err := s.strikes.Get(ctx, userID, yearMonth)
	if err != nil {
		return 0, err
	}
	if rec == nil {
		return 0, nil
	}
	return rec.Count, nil
}
