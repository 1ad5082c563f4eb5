package tests

import (
	"context"
	"errors"
	"testing"

	"carpool/internal/domain"
	"carpool/internal/service"
)

// ──────────────────────────────────────────────
// 1. REQUEST MATCHING
// ──────────────────────────────────────────────

func TestSubmitRequest_CreatesPendingWithHold(t *testing.T) {
	t.Parallel()

	e := newEngine()
	e.addUser("driver-1", domain.GenderMale)
	e.addUser("passenger-1", domain.GenderFemale)
	e.addOpenRide("ride-1", "driver-1", 30.0, 3)

	req, err := e.requestSvc.SubmitRequest(context.Background(), "ride-1", "passenger-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if req.Status != domain.RequestStatusPending {
		t.Errorf("expected status %s, got %s", domain.RequestStatusPending, req.Status)
	}
	if req.PaymentStatus != domain.PaymentStatusAuthorized {
		t.Errorf("expected payment status %s, got %s", domain.PaymentStatusAuthorized, req.PaymentStatus)
	}
	if req.PaymentAuthID == "" {
		t.Error("expected an authorization reference")
	}
	if e.processor.AuthorizeCallCount != 1 {
		t.Errorf("expected 1 authorize call, got %d", e.processor.AuthorizeCallCount)
	}

	// The seat is not held yet; only approval reserves it.
	if ride := e.rides.GetRide("ride-1"); ride.SeatsLeft != 3 {
		t.Errorf("expected 3 seats left, got %d", ride.SeatsLeft)
	}
}

func TestSubmitRequest_ProcessorDown_NoRequestCreated(t *testing.T) {
	t.Parallel()

	e := newEngine()
	e.addUser("driver-1", domain.GenderMale)
	e.addUser("passenger-1", domain.GenderFemale)
	e.addOpenRide("ride-1", "driver-1", 30.0, 3)
	e.processor.AuthorizeError = ErrMockProcessor

	_, err := e.requestSvc.SubmitRequest(context.Background(), "ride-1", "passenger-1")
	if !errors.Is(err, service.ErrPaymentProcessorUnavailable) {
		t.Fatalf("expected ErrPaymentProcessorUnavailable, got %v", err)
	}

	if e.requests.CreateCallCount != 0 {
		t.Error("no request row should exist without a successful hold")
	}
}

func TestSubmitRequest_DuplicateActiveRequest_Rejected(t *testing.T) {
	t.Parallel()

	e := newEngine()
	e.addUser("driver-1", domain.GenderMale)
	e.addUser("passenger-1", domain.GenderFemale)
	e.addOpenRide("ride-1", "driver-1", 30.0, 3)
	e.addPendingRequest("req-1", "ride-1", "passenger-1")

	_, err := e.requestSvc.SubmitRequest(context.Background(), "ride-1", "passenger-1")
	if !errors.Is(err, service.ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}
}

func TestSubmitRequest_AfterTerminalRequest_Allowed(t *testing.T) {
	t.Parallel()

	e := newEngine()
	e.addUser("driver-1", domain.GenderMale)
	e.addUser("passenger-1", domain.GenderFemale)
	e.addOpenRide("ride-1", "driver-1", 30.0, 3)

	// A rejected earlier request does not block a fresh one.
	rejected := e.addPendingRequest("req-1", "ride-1", "passenger-1")
	rejected.Status = domain.RequestStatusRejected

	if _, err := e.requestSvc.SubmitRequest(context.Background(), "ride-1", "passenger-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSubmitRequest_DriverCannotRequestOwnRide(t *testing.T) {
	t.Parallel()

	e := newEngine()
	e.addUser("driver-1", domain.GenderMale)
	e.addOpenRide("ride-1", "driver-1", 30.0, 3)

	_, err := e.requestSvc.SubmitRequest(context.Background(), "ride-1", "driver-1")
	if !errors.Is(err, service.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestSubmitRequest_GenderPreferenceEnforced(t *testing.T) {
	t.Parallel()

	e := newEngine()
	e.addUser("driver-1", domain.GenderFemale)
	e.addUser("passenger-1", domain.GenderMale)
	ride := e.addOpenRide("ride-1", "driver-1", 30.0, 3)
	ride.GenderPreference = domain.GenderPreferenceFemaleOnly

	_, err := e.requestSvc.SubmitRequest(context.Background(), "ride-1", "passenger-1")
	if !errors.Is(err, service.ErrGenderRestricted) {
		t.Fatalf("expected ErrGenderRestricted, got %v", err)
	}
}

func TestSubmitRequest_RideNotOpen_Rejected(t *testing.T) {
	t.Parallel()

	e := newEngine()
	e.addUser("driver-1", domain.GenderMale)
	e.addUser("passenger-1", domain.GenderFemale)
	ride := e.addOpenRide("ride-1", "driver-1", 30.0, 3)
	ride.Status = domain.RideStatusStarted

	_, err := e.requestSvc.SubmitRequest(context.Background(), "ride-1", "passenger-1")
	if !errors.Is(err, service.ErrRideNotOpen) {
		t.Fatalf("expected ErrRideNotOpen, got %v", err)
	}
}

func TestSubmitRequest_RivalSubmitDuringAuthorize_Rejected(t *testing.T) {
	t.Parallel()

	e := newEngine()
	e.addUser("driver-1", domain.GenderMale)
	e.addUser("passenger-1", domain.GenderFemale)
	e.addOpenRide("ride-1", "driver-1", 30.0, 3)

	// A second submit by the same passenger commits while this one is
	// waiting on the processor. The re-check under the ride lock must
	// catch it before the create.
	e.processor.AuthorizeHook = func() {
		e.addPendingRequest("req-rival", "ride-1", "passenger-1")
	}

	_, err := e.requestSvc.SubmitRequest(context.Background(), "ride-1", "passenger-1")
	if !errors.Is(err, service.ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}

	if e.requests.CreateCallCount != 0 {
		t.Errorf("losing submit must not create a second row, got %d creates", e.requests.CreateCallCount)
	}
	if e.processor.RefundCallCount != 1 {
		t.Errorf("losing submit must release its hold, got %d refund calls", e.processor.RefundCallCount)
	}
}

func TestSubmitRequest_CreateFails_HoldReleased(t *testing.T) {
	t.Parallel()

	e := newEngine()
	e.addUser("driver-1", domain.GenderMale)
	e.addUser("passenger-1", domain.GenderFemale)
	e.addOpenRide("ride-1", "driver-1", 30.0, 3)
	e.requests.CreateError = ErrMockDBConstraint

	_, err := e.requestSvc.SubmitRequest(context.Background(), "ride-1", "passenger-1")
	if !errors.Is(err, ErrMockDBConstraint) {
		t.Fatalf("expected the create error, got %v", err)
	}

	// Nothing references the hold anymore, so it must be voided here.
	if e.processor.RefundCallCount != 1 {
		t.Errorf("expected 1 refund call for the dangling hold, got %d", e.processor.RefundCallCount)
	}
}

func TestSubmitRequest_RideLocked_NoHoldPlaced(t *testing.T) {
	t.Parallel()

	e := newEngine()
	e.addUser("driver-1", domain.GenderMale)
	e.addUser("passenger-1", domain.GenderFemale)
	e.addOpenRide("ride-1", "driver-1", 30.0, 3)
	e.locks.ForceAcquireFailure = true

	_, err := e.requestSvc.SubmitRequest(context.Background(), "ride-1", "passenger-1")
	if !errors.Is(err, service.ErrRideLocked) {
		t.Fatalf("expected ErrRideLocked, got %v", err)
	}

	if e.processor.AuthorizeCallCount != 0 {
		t.Errorf("no hold should be placed while the ride is locked, got %d authorize calls", e.processor.AuthorizeCallCount)
	}
}

func TestApprove_ReservesSeat(t *testing.T) {
	t.Parallel()

	e := newEngine()
	e.addUser("driver-1", domain.GenderMale)
	e.addUser("passenger-1", domain.GenderFemale)
	e.addOpenRide("ride-1", "driver-1", 30.0, 2)
	e.addPendingRequest("req-1", "ride-1", "passenger-1")

	req, err := e.requestSvc.Approve(context.Background(), "req-1", "driver-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if req.Status != domain.RequestStatusApproved {
		t.Errorf("expected status %s, got %s", domain.RequestStatusApproved, req.Status)
	}
	if ride := e.rides.GetRide("ride-1"); ride.SeatsLeft != 1 {
		t.Errorf("expected 1 seat left, got %d", ride.SeatsLeft)
	}
}

func TestApprove_OnlyDriver(t *testing.T) {
	t.Parallel()

	e := newEngine()
	e.addOpenRide("ride-1", "driver-1", 30.0, 2)
	e.addPendingRequest("req-1", "ride-1", "passenger-1")

	_, err := e.requestSvc.Approve(context.Background(), "req-1", "passenger-1")
	if !errors.Is(err, service.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestApprove_FullRide_RequestStaysPending(t *testing.T) {
	t.Parallel()

	e := newEngine()
	ride := e.addOpenRide("ride-1", "driver-1", 30.0, 1)
	e.addApprovedRequest("req-1", "ride-1", "passenger-1")
	ride.SeatsLeft = 0

	e.addPendingRequest("req-2", "ride-1", "passenger-2")

	_, err := e.requestSvc.Approve(context.Background(), "req-2", "driver-1")
	if !errors.Is(err, service.ErrNoSeatsAvailable) {
		t.Fatalf("expected ErrNoSeatsAvailable, got %v", err)
	}

	if got := e.requests.GetRequest("req-2").Status; got != domain.RequestStatusPending {
		t.Errorf("request should stay PENDING on a full ride, got %s", got)
	}
}

func TestReject_ReleasesHold(t *testing.T) {
	t.Parallel()

	e := newEngine()
	e.addOpenRide("ride-1", "driver-1", 30.0, 2)
	e.addPendingRequest("req-1", "ride-1", "passenger-1")

	req, err := e.requestSvc.Reject(context.Background(), "req-1", "driver-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if req.Status != domain.RequestStatusRejected {
		t.Errorf("expected status %s, got %s", domain.RequestStatusRejected, req.Status)
	}

	stored := e.requests.GetRequest("req-1")
	if stored.PaymentStatus != domain.PaymentStatusRefunded {
		t.Errorf("expected payment status %s, got %s", domain.PaymentStatusRefunded, stored.PaymentStatus)
	}
	if e.processor.RefundCallCount != 1 {
		t.Errorf("expected 1 refund call, got %d", e.processor.RefundCallCount)
	}
}

func TestWithdraw_OnlyOwningPassenger(t *testing.T) {
	t.Parallel()

	e := newEngine()
	e.addOpenRide("ride-1", "driver-1", 30.0, 2)
	e.addPendingRequest("req-1", "ride-1", "passenger-1")

	if _, err := e.requestSvc.Withdraw(context.Background(), "req-1", "passenger-2"); !errors.Is(err, service.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}

	req, err := e.requestSvc.Withdraw(context.Background(), "req-1", "passenger-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Status != domain.RequestStatusCancelledByPassenger {
		t.Errorf("expected status %s, got %s", domain.RequestStatusCancelledByPassenger, req.Status)
	}
}

func TestWithdraw_ApprovedRequest_Fails(t *testing.T) {
	t.Parallel()

	e := newEngine()
	e.addOpenRide("ride-1", "driver-1", 30.0, 2)
	e.addApprovedRequest("req-1", "ride-1", "passenger-1")

	// After approval the passenger must cancel, not withdraw.
	_, err := e.requestSvc.Withdraw(context.Background(), "req-1", "passenger-1")
	if !errors.Is(err, service.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}
