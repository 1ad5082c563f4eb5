package domain

import "time"

// RequestStatus represents the current status of a ride request.
type RequestStatus string

const (
	RequestStatusPending              RequestStatus = "PENDING"
	RequestStatusApproved             RequestStatus = "APPROVED"
	RequestStatusRejected             RequestStatus = "REJECTED"
	RequestStatusCancelledByPassenger RequestStatus = "CANCELLED_BY_PASSENGER"
	RequestStatusCancelledByDriver    RequestStatus = "CANCELLED_BY_DRIVER"
	RequestStatusCompleted            RequestStatus = "COMPLETED"
)

// IsTerminal reports whether the status accepts no further transitions.
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case RequestStatusRejected, RequestStatusCancelledByPassenger,
		RequestStatusCancelledByDriver, RequestStatusCompleted:
		return true
	}
	return false
}

// PaymentStatus represents the escrow state of a request's payment.
type PaymentStatus string

const (
	PaymentStatusNone          PaymentStatus = "NONE"
	PaymentStatusAuthorized    PaymentStatus = "AUTHORIZED"
	PaymentStatusCaptured      PaymentStatus = "CAPTURED"
	PaymentStatusRefundPending PaymentStatus = "REFUND_PENDING"
	PaymentStatusRefunded      PaymentStatus = "REFUNDED"
)

// RideRequest represents a passenger's request for a seat on a ride.
// Terminal requests are never deleted; they back the audit and penalty
// history.
type RideRequest struct {
	ID          string
	RideID      string
	PassengerID string
	Status      RequestStatus

	// Escrow state. PaymentAuthID is the opaque hold reference from the
	// payment processor; PaymentReceiptID is set once captured.
	PaymentAuthID    string
	PaymentReceiptID string
	PaymentStatus    PaymentStatus
	FeeAmount        float64
	PayoutAmount     float64

	// SeatReleased makes seat release idempotent per request.
	SeatReleased bool

	// Refund retry bookkeeping for the REFUND_PENDING sub-state.
	RefundAttempts  int
	RefundNextRetry time.Time

	CreatedAt   time.Time
	CompletedAt time.Time
}
