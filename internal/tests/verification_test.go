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
// 2. PICKUP AND DROP-OFF VERIFICATION
// ──────────────────────────────────────────────

func TestGenerateStartCode_RequiresApprovedPassenger(t *testing.T) {
	t.Parallel()

	e := newEngine()
	e.addOpenRide("ride-1", "driver-1", 30.0, 3)

	_, err := e.verification.GenerateStartCode(context.Background(), "ride-1", "driver-1")
	if !errors.Is(err, service.ErrNoApprovedPassengers) {
		t.Fatalf("expected ErrNoApprovedPassengers, got %v", err)
	}
}

func TestGenerateStartCode_DriverOnly(t *testing.T) {
	t.Parallel()

	e := newEngine()
	e.addOpenRide("ride-1", "driver-1", 30.0, 3)
	e.addApprovedRequest("req-1", "ride-1", "passenger-1")

	_, err := e.verification.GenerateStartCode(context.Background(), "ride-1", "passenger-1")
	if !errors.Is(err, service.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}

	code, err := e.verification.GenerateStartCode(context.Background(), "ride-1", "driver-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(code) != 4 {
		t.Errorf("expected a 4-digit code, got %q", code)
	}
}

func TestVerifyStart_WrongCode_Rejected(t *testing.T) {
	t.Parallel()

	e := newEngine()
	e.addOpenRide("ride-1", "driver-1", 30.0, 3)
	e.addApprovedRequest("req-1", "ride-1", "passenger-1")

	code, err := e.verification.GenerateStartCode(context.Background(), "ride-1", "driver-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wrong := "0000"
	if wrong == code {
		wrong = "0001"
	}

	if _, err := e.verification.VerifyStart(context.Background(), "ride-1", "passenger-1", wrong); !errors.Is(err, service.ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}

	if got := e.rides.GetRide("ride-1").Status; got != domain.RideStatusOpen {
		t.Errorf("ride should stay OPEN on a failed verification, got %s", got)
	}
}

func TestVerifyStart_MovesRideToStarted(t *testing.T) {
	t.Parallel()

	e := newEngine()
	e.addOpenRide("ride-1", "driver-1", 30.0, 3)
	e.addApprovedRequest("req-1", "ride-1", "passenger-1")

	code, err := e.verification.GenerateStartCode(context.Background(), "ride-1", "driver-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ride, err := e.verification.VerifyStart(context.Background(), "ride-1", "passenger-1", code)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ride.Status != domain.RideStatusStarted {
		t.Errorf("expected status %s, got %s", domain.RideStatusStarted, ride.Status)
	}
	if ride.StartedAt.IsZero() {
		t.Error("expected StartedAt to be set")
	}

	stored := e.rides.GetRide("ride-1")
	if stored.StartCode != "" {
		t.Error("start code must be cleared on consumption")
	}
}

func TestVerifyStart_CodeIsSingleUse(t *testing.T) {
	t.Parallel()

	e := newEngine()
	e.addOpenRide("ride-1", "driver-1", 30.0, 3)
	e.addApprovedRequest("req-1", "ride-1", "passenger-1")
	e.addApprovedRequest("req-2", "ride-1", "passenger-2")

	code, err := e.verification.GenerateStartCode(context.Background(), "ride-1", "driver-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := e.verification.VerifyStart(context.Background(), "ride-1", "passenger-1", code); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The whole ride boards on one consumption; a second entry is invalid.
	_, err = e.verification.VerifyStart(context.Background(), "ride-1", "passenger-2", code)
	if !errors.Is(err, service.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	if e.rides.ConsumeStartCodeCallCount != 1 {
		t.Errorf("expected 1 consume attempt, got %d", e.rides.ConsumeStartCodeCallCount)
	}
}

func TestVerifyStart_ExpiredCode(t *testing.T) {
	t.Parallel()

	e := newEngine()
	ride := e.addOpenRide("ride-1", "driver-1", 30.0, 3)
	e.addApprovedRequest("req-1", "ride-1", "passenger-1")

	ride.StartCode = "1234"
	ride.StartCodeIssuedAt = time.Now().Add(-20 * time.Minute)

	_, err := e.verification.VerifyStart(context.Background(), "ride-1", "passenger-1", "1234")
	if !errors.Is(err, service.ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}
}

func TestVerifyStart_OnlyApprovedPassengers(t *testing.T) {
	t.Parallel()

	e := newEngine()
	ride := e.addOpenRide("ride-1", "driver-1", 30.0, 3)
	e.addApprovedRequest("req-1", "ride-1", "passenger-1")
	e.addPendingRequest("req-2", "ride-1", "passenger-2")
	ride.StartCode = "1234"
	ride.StartCodeIssuedAt = time.Now()

	_, err := e.verification.VerifyStart(context.Background(), "ride-1", "passenger-2", "1234")
	if !errors.Is(err, service.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestVerifyStart_RejectsLeftoverPendingRequests(t *testing.T) {
	t.Parallel()

	e := newEngine()
	e.addOpenRide("ride-1", "driver-1", 30.0, 3)
	e.addApprovedRequest("req-1", "ride-1", "passenger-1")
	e.addPendingRequest("req-2", "ride-1", "passenger-2")

	code, err := e.verification.GenerateStartCode(context.Background(), "ride-1", "driver-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := e.verification.VerifyStart(context.Background(), "ride-1", "passenger-1", code); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The pending passenger missed the bus: rejected, hold released.
	left := e.requests.GetRequest("req-2")
	if left.Status != domain.RequestStatusRejected {
		t.Errorf("expected status %s, got %s", domain.RequestStatusRejected, left.Status)
	}
	if left.PaymentStatus != domain.PaymentStatusRefunded {
		t.Errorf("expected payment status %s, got %s", domain.PaymentStatusRefunded, left.PaymentStatus)
	}
}

func TestVerifyStart_TransactionFails_RideStaysOpen(t *testing.T) {
	t.Parallel()

	e := newEngine()
	e.addOpenRide("ride-1", "driver-1", 30.0, 3)
	e.addApprovedRequest("req-1", "ride-1", "passenger-1")
	e.addPendingRequest("req-2", "ride-1", "passenger-2")

	code, err := e.verification.GenerateStartCode(context.Background(), "ride-1", "driver-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The start flip and the leftover rejections share one transaction:
	// if it cannot begin, nothing moves.
	e.atomic.BeginError = ErrMockTimeout
	if _, err := e.verification.VerifyStart(context.Background(), "ride-1", "passenger-1", code); !errors.Is(err, ErrMockTimeout) {
		t.Fatalf("expected the transaction error, got %v", err)
	}

	ride := e.rides.GetRide("ride-1")
	if ride.Status != domain.RideStatusOpen {
		t.Errorf("expected status %s, got %s", domain.RideStatusOpen, ride.Status)
	}
	if ride.StartCode == "" {
		t.Error("start code must survive the failed attempt")
	}
	if left := e.requests.GetRequest("req-2"); left.Status != domain.RequestStatusPending {
		t.Errorf("expected status %s, got %s", domain.RequestStatusPending, left.Status)
	}
	if e.processor.RefundCallCount != 0 {
		t.Errorf("expected no refund calls, got %d", e.processor.RefundCallCount)
	}

	// Same code works once the store is back.
	e.atomic.BeginError = nil
	if _, err := e.verification.VerifyStart(context.Background(), "ride-1", "passenger-1", code); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ride := e.rides.GetRide("ride-1"); ride.Status != domain.RideStatusStarted {
		t.Errorf("expected status %s, got %s", domain.RideStatusStarted, ride.Status)
	}
	if left := e.requests.GetRequest("req-2"); left.Status != domain.RequestStatusRejected {
		t.Errorf("expected status %s, got %s", domain.RequestStatusRejected, left.Status)
	}
}

func TestGenerateCompletionCode_OnlyWhileStarted(t *testing.T) {
	t.Parallel()

	e := newEngine()
	ride := e.addOpenRide("ride-1", "driver-1", 30.0, 3)
	e.addApprovedRequest("req-1", "ride-1", "passenger-1")

	if _, err := e.verification.GenerateCompletionCode(context.Background(), "ride-1", "driver-1"); !errors.Is(err, service.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for an OPEN ride, got %v", err)
	}

	ride.Status = domain.RideStatusStarted
	ride.StartedAt = time.Now()

	code, err := e.verification.GenerateCompletionCode(context.Background(), "ride-1", "driver-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(code) != 6 {
		t.Errorf("expected a 6-digit code, got %q", code)
	}
}

func TestVerifyCompletion_SettlesLegAndSplitsFare(t *testing.T) {
	t.Parallel()

	e := newEngine()
	ride := e.addOpenRide("ride-1", "driver-1", 30.0, 3)
	e.addApprovedRequest("req-1", "ride-1", "passenger-1")
	ride.Status = domain.RideStatusStarted
	ride.StartedAt = time.Now()

	code, err := e.verification.GenerateCompletionCode(context.Background(), "ride-1", "driver-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := e.verification.VerifyCompletion(context.Background(), "ride-1", "passenger-1", code, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Request.Status != domain.RequestStatusCompleted {
		t.Errorf("expected status %s, got %s", domain.RequestStatusCompleted, result.Request.Status)
	}
	if result.Request.PaymentStatus != domain.PaymentStatusCaptured {
		t.Errorf("expected payment status %s, got %s", domain.PaymentStatusCaptured, result.Request.PaymentStatus)
	}

	// 30.00 at a 10% platform fee: 3.00 to the platform, 27.00 to the driver.
	if math.Abs(result.Request.FeeAmount-3.0) > 1e-9 {
		t.Errorf("expected fee 3.00, got %f", result.Request.FeeAmount)
	}
	if math.Abs(result.Request.PayoutAmount-27.0) > 1e-9 {
		t.Errorf("expected payout 27.00, got %f", result.Request.PayoutAmount)
	}

	// Sole passenger settled: the ride is complete and the code retired.
	if !result.RideCompleted {
		t.Error("expected the ride to complete with its last leg")
	}
	stored := e.rides.GetRide("ride-1")
	if stored.Status != domain.RideStatusCompleted {
		t.Errorf("expected status %s, got %s", domain.RideStatusCompleted, stored.Status)
	}
	if stored.CompletionCode != "" {
		t.Error("completion code must be cleared when the ride completes")
	}
}

func TestVerifyCompletion_RideStaysStartedUntilLastLeg(t *testing.T) {
	t.Parallel()

	e := newEngine()
	ride := e.addOpenRide("ride-1", "driver-1", 30.0, 3)
	e.addApprovedRequest("req-1", "ride-1", "passenger-1")
	e.addApprovedRequest("req-2", "ride-1", "passenger-2")
	ride.Status = domain.RideStatusStarted
	ride.StartedAt = time.Now()

	code, err := e.verification.GenerateCompletionCode(context.Background(), "ride-1", "driver-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, err := e.verification.VerifyCompletion(context.Background(), "ride-1", "passenger-1", code, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.RideCompleted {
		t.Error("ride must stay STARTED while a leg remains")
	}
	if got := e.rides.GetRide("ride-1").Status; got != domain.RideStatusStarted {
		t.Errorf("expected status %s, got %s", domain.RideStatusStarted, got)
	}

	second, err := e.verification.VerifyCompletion(context.Background(), "ride-1", "passenger-2", code, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.RideCompleted {
		t.Error("expected the ride to complete with its last leg")
	}
}

func TestVerifyCompletion_DriverNamesTheRequest(t *testing.T) {
	t.Parallel()

	e := newEngine()
	ride := e.addOpenRide("ride-1", "driver-1", 30.0, 3)
	e.addApprovedRequest("req-1", "ride-1", "passenger-1")
	ride.Status = domain.RideStatusStarted
	ride.StartedAt = time.Now()

	code, err := e.verification.GenerateCompletionCode(context.Background(), "ride-1", "driver-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Driver confirming without naming a request is ambiguous.
	if _, err := e.verification.VerifyCompletion(context.Background(), "ride-1", "driver-1", code, ""); !errors.Is(err, service.ErrInvalidRequestID) {
		t.Fatalf("expected ErrInvalidRequestID, got %v", err)
	}

	result, err := e.verification.VerifyCompletion(context.Background(), "ride-1", "driver-1", code, "req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Request.ID != "req-1" {
		t.Errorf("expected request req-1, got %s", result.Request.ID)
	}
}

func TestVerifyCompletion_WrongCode(t *testing.T) {
	t.Parallel()

	e := newEngine()
	ride := e.addOpenRide("ride-1", "driver-1", 30.0, 3)
	e.addApprovedRequest("req-1", "ride-1", "passenger-1")
	ride.Status = domain.RideStatusStarted
	ride.StartedAt = time.Now()
	ride.CompletionCode = "123456"
	ride.CompletionCodeIssuedAt = time.Now()

	_, err := e.verification.VerifyCompletion(context.Background(), "ride-1", "passenger-1", "654321", "")
	if !errors.Is(err, service.ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}

	if e.processor.CaptureCallCount != 0 {
		t.Error("a failed verification must not touch the processor")
	}
}

func TestVerifyCompletion_ExpiredCode(t *testing.T) {
	t.Parallel()

	e := newEngine()
	ride := e.addOpenRide("ride-1", "driver-1", 30.0, 3)
	e.addApprovedRequest("req-1", "ride-1", "passenger-1")
	ride.Status = domain.RideStatusStarted
	ride.StartedAt = time.Now().Add(-26 * time.Hour)
	ride.CompletionCode = "123456"
	ride.CompletionCodeIssuedAt = time.Now().Add(-25 * time.Hour)

	_, err := e.verification.VerifyCompletion(context.Background(), "ride-1", "passenger-1", "123456", "")
	if !errors.Is(err, service.ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}
}
