package tests

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"carpool/internal/domain"
	"carpool/internal/service"
)

// ──────────────────────────────────────────────
// 5. PENALTY LEDGER
// ──────────────────────────────────────────────

func TestPenalty_EarlyCancellationCostsNothing(t *testing.T) {
	t.Parallel()

	e := newEngine()
	e.addUser("user-1", domain.GenderMale)

	departure := time.Now().Add(72 * time.Hour)
	assessment, err := e.penalty.EvaluateCancellation(context.Background(), "user-1", "ride-1", departure, 30.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if assessment.StrikeCount != 0 {
		t.Errorf("expected 0 strikes, got %d", assessment.StrikeCount)
	}
	if assessment.PenaltyApplied {
		t.Error("no penalty outside the window")
	}
	if e.strikes.UpsertCallCount != 0 {
		t.Errorf("expected no strike writes, got %d", e.strikes.UpsertCallCount)
	}
}

func TestPenalty_FirstStrikeOfMonthIsFree(t *testing.T) {
	t.Parallel()

	e := newEngine()
	e.addUser("user-1", domain.GenderMale)

	departure := time.Now().Add(12 * time.Hour)
	assessment, err := e.penalty.EvaluateCancellation(context.Background(), "user-1", "ride-1", departure, 30.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if assessment.StrikeCount != 1 {
		t.Errorf("expected 1 strike, got %d", assessment.StrikeCount)
	}
	if assessment.PenaltyApplied {
		t.Error("first strike of the month must be free")
	}
	if e.processor.ChargeCallCount != 0 {
		t.Errorf("expected no charges, got %d", e.processor.ChargeCallCount)
	}

	month := time.Now().UTC().Format("2006-01")
	if rec := e.strikes.GetStrike("user-1", month); rec == nil || rec.Count != 1 {
		t.Errorf("expected a recorded strike, got %+v", rec)
	}
}

func TestPenalty_SecondStrikeChargesShareOfPrice(t *testing.T) {
	t.Parallel()

	e := newEngine()
	e.addUser("user-1", domain.GenderMale)

	departure := time.Now().Add(12 * time.Hour)
	ctx := context.Background()

	if _, err := e.penalty.EvaluateCancellation(ctx, "user-1", "ride-1", departure, 30.0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assessment, err := e.penalty.EvaluateCancellation(ctx, "user-1", "ride-2", departure, 30.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if assessment.StrikeCount != 2 {
		t.Errorf("expected 2 strikes, got %d", assessment.StrikeCount)
	}
	if !assessment.PenaltyApplied {
		t.Fatal("expected a penalty on the second strike")
	}
	// 20% of a 30.00 ride.
	if math.Abs(assessment.PenaltyAmount-6.0) > 1e-9 {
		t.Errorf("expected penalty 6.00, got %f", assessment.PenaltyAmount)
	}
	if e.processor.ChargeCallCount != 1 {
		t.Errorf("expected 1 charge, got %d", e.processor.ChargeCallCount)
	}
}

func TestPenalty_ChargeFailure_StrikeStands(t *testing.T) {
	t.Parallel()

	e := newEngine()
	e.addUser("user-1", domain.GenderMale)

	departure := time.Now().Add(12 * time.Hour)
	ctx := context.Background()

	if _, err := e.penalty.EvaluateCancellation(ctx, "user-1", "ride-1", departure, 30.0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e.processor.ChargeError = ErrMockProcessor
	assessment, err := e.penalty.EvaluateCancellation(ctx, "user-1", "ride-2", departure, 30.0)
	if !errors.Is(err, service.ErrPaymentProcessorUnavailable) {
		t.Fatalf("expected ErrPaymentProcessorUnavailable, got %v", err)
	}

	// The cancellation is not reversed: the strike is recorded and the
	// charge can be replayed with the same idempotency key.
	if assessment == nil || assessment.StrikeCount != 2 {
		t.Errorf("expected the second strike to stand, got %+v", assessment)
	}
	month := time.Now().UTC().Format("2006-01")
	if rec := e.strikes.GetStrike("user-1", month); rec == nil || rec.Count != 2 {
		t.Errorf("expected 2 recorded strikes, got %+v", rec)
	}
}

func TestPenalty_StrikesKeyedByMonth(t *testing.T) {
	t.Parallel()

	e := newEngine()
	e.addUser("user-1", domain.GenderMale)

	// A full ledger from an earlier month does not carry over.
	e.strikes.Upsert(context.Background(), &domain.StrikeRecord{
		UserID:    "user-1",
		YearMonth: "2020-01",
		Count:     5,
	})

	departure := time.Now().Add(12 * time.Hour)
	assessment, err := e.penalty.EvaluateCancellation(context.Background(), "user-1", "ride-1", departure, 30.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if assessment.StrikeCount != 1 {
		t.Errorf("expected the month to start fresh, got %d strikes", assessment.StrikeCount)
	}
	if assessment.PenaltyApplied {
		t.Error("first strike of a fresh month must be free")
	}
}

func TestGetStrikeCount_NoRecordIsZero(t *testing.T) {
	t.Parallel()

	e := newEngine()

	count, err := e.penalty.GetStrikeCount(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 strikes, got %d", count)
	}
}
