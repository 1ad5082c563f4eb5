package service

import (
	"context"
	"log"
	"time"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// Refund retry backoff. A failed refund is never dropped; it stays in
// REFUND_PENDING and the sweep retries it until the processor accepts.
const (
	refundRetryBase = time.Minute
	refundRetryMax  = time.Hour
)

// EscrowService drives payment holds, captures and refunds against the
// external payment processor. It never double-moves money: every external
// call carries an idempotency key derived from (requestID, operation), and
// state transitions are guarded by status checks.
type EscrowService struct {
	requests  repository.RequestRepository
	processor PaymentProcessor
	notifier  *NotificationService
	feeRate   float64
}

// NewEscrowService creates a new EscrowService. feeRate is the platform's
// share of a captured fare, e.g. 0.10.
func NewEscrowService(requests repository.RequestRepository, processor PaymentProcessor, notifier *NotificationService, feeRate float64) *EscrowService {
	return &EscrowService{
		requests:  requests,
		processor: processor,
		notifier:  notifier,
		feeRate:   feeRate,
	}
}

// AuthorizeHold places a hold for a request about to be created. Returns
// the opaque authorization reference. The hold precedes the request row:
// no request exists without a successful hold.
func (s *EscrowService) AuthorizeHold(ctx context.Context, requestID string, amount float64, payerToken string) (string, error) {
	authID, err := s.processor.Authorize(ctx, amount, payerToken, IdempotencyKey(requestID, "authorize"))
	if err != nil {
		return "", ErrPaymentProcessorUnavailable
	}
	return authID, nil
}

// ReleaseHold voids an authorization that never got a request row, so a
// submit that fails after placing its hold does not strand the money.
// There is no request to park in REFUND_PENDING, so a processor failure
// here surfaces to the caller.
func (s *EscrowService) ReleaseHold(ctx context.Context, requestID, authID string) error {
	if err := s.processor.Refund(ctx, authID, IdempotencyKey(requestID, "refund")); err != nil {
		return ErrPaymentProcessorUnavailable
	}
	return nil
}

// Capture charges the hold for a request and computes the fee split from
// the ride's price. It mutates req in memory; the caller commits the
// resulting state under the ride lock. Valid only from AUTHORIZED.
func (s *EscrowService) Capture(ctx context.Context, req *domain.RideRequest, price float64) error {
	if req.PaymentStatus != domain.PaymentStatusAuthorized {
		return ErrInvalidTransition
	}

	receiptID, err := s.processor.Capture(ctx, req.PaymentAuthID, IdempotencyKey(req.ID, "capture"))
	if err != nil {
		return ErrPaymentProcessorUnavailable
	}

	// The split is computed from the ride's posted price, not from any
	// per-passenger variance: the driver is paid price minus platform fee.
	fee := price * s.feeRate
	req.PaymentReceiptID = receiptID
	req.PaymentStatus = domain.PaymentStatusCaptured
	req.FeeAmount = fee
	req.PayoutAmount = price - fee

	return nil
}

// MarkRefundPending moves a request's payment into the durable
// REFUND_PENDING sub-state. Callers commit it inside their transaction;
// the actual processor call happens afterwards via AttemptRefund.
func (s *EscrowService) MarkRefundPending(req *domain.RideRequest) error {
	switch req.PaymentStatus {
	case domain.PaymentStatusAuthorized, domain.PaymentStatusCaptured, domain.PaymentStatusRefundPending:
	default:
		return ErrInvalidTransition
	}
	req.PaymentStatus = domain.PaymentStatusRefundPending
	req.RefundNextRetry = time.Time{}
	return nil
}

// AttemptRefund performs the external refund for a REFUND_PENDING request.
// On processor failure the request stays pending with an increased backoff;
// money owed back to a user is never silently dropped.
func (s *EscrowService) AttemptRefund(ctx context.Context, req *domain.RideRequest) error {
	if req.PaymentStatus != domain.PaymentStatusRefundPending {
		return ErrInvalidTransition
	}

	ref := req.PaymentAuthID
	if req.PaymentReceiptID != "" {
		ref = req.PaymentReceiptID
	}

	if err := s.processor.Refund(ctx, ref, IdempotencyKey(req.ID, "refund")); err != nil {
		req.RefundAttempts++
		req.RefundNextRetry = time.Now().Add(refundBackoff(req.RefundAttempts))
		if updateErr := s.requests.Update(ctx, req); updateErr != nil {
			return updateErr
		}
		log.Printf("[ESCROW] refund attempt %d failed for request %s, retrying after %s",
			req.RefundAttempts, req.ID, refundBackoff(req.RefundAttempts))
		return ErrPaymentProcessorUnavailable
	}

	req.PaymentStatus = domain.PaymentStatusRefunded
	req.RefundNextRetry = time.Time{}
	if err := s.requests.Update(ctx, req); err != nil {
		return err
	}

	if s.notifier != nil {
		_ = s.notifier.NotifyRefundIssued(ctx, req)
	}
	return nil
}

// ChargePenalty places a standalone penalty charge against a payer.
// Separate from the escrow hold: the hold is refunded in full, the penalty
// is its own charge.
func (s *EscrowService) ChargePenalty(ctx context.Context, amount float64, payerToken, idempotencyKey string) error {
	if _, err := s.processor.ChargeSeparate(ctx, amount, payerToken, idempotencyKey); err != nil {
		return ErrPaymentProcessorUnavailable
	}
	return nil
}

func refundBackoff(attempts int) time.Duration {
	d := refundRetryBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= refundRetryMax {
			return refundRetryMax
		}
	}
	return d
}
