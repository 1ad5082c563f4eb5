package service

import "errors"

var (
	// ErrInvalidTransition is returned when an operation is not valid in
	// the entity's current state, including stale commits that lost a
	// race with a concurrent transition.
	ErrInvalidTransition = errors.New("invalid transition for current state")

	// ErrNotAuthorized is returned when the acting party may not perform
	// the operation, e.g. a passenger calling a driver-only action.
	ErrNotAuthorized = errors.New("actor not authorized for this action")

	// ErrRideNotOpen is returned when requesting a seat on a ride that is
	// no longer open.
	ErrRideNotOpen = errors.New("ride not open for requests")

	// ErrNoSeatsAvailable is returned when a ride has no seats left.
	ErrNoSeatsAvailable = errors.New("no seats available")

	// ErrDuplicateRequest is returned when a passenger already holds a
	// pending or approved request on the ride.
	ErrDuplicateRequest = errors.New("duplicate request for this ride")

	// ErrInvalidCode is returned when a verification code does not match
	// or has already been consumed.
	ErrInvalidCode = errors.New("invalid verification code")

	// ErrCodeExpired is returned when a verification code is past its
	// validity window.
	ErrCodeExpired = errors.New("verification code expired")

	// ErrNoApprovedPassengers is returned when generating a start code
	// for a ride with no approved requests.
	ErrNoApprovedPassengers = errors.New("no approved passengers")

	// ErrGenderRestricted is returned when a passenger does not match the
	// ride's gender preference.
	ErrGenderRestricted = errors.New("ride restricted by gender preference")

	// ErrPaymentProcessorUnavailable is returned when an external payment
	// call failed or timed out.
	ErrPaymentProcessorUnavailable = errors.New("payment processor unavailable")

	// ErrInvalidRideID is returned when ride ID is empty.
	ErrInvalidRideID = errors.New("invalid ride id")

	// ErrInvalidRequestID is returned when request ID is empty.
	ErrInvalidRequestID = errors.New("invalid request id")

	// ErrInvalidUserID is returned when a user ID is empty.
	ErrInvalidUserID = errors.New("invalid user id")

	// ErrInvalidPrice is returned when a posted price is not positive.
	ErrInvalidPrice = errors.New("invalid price")

	// ErrInvalidSeatCount is returned when a posted seat count is not positive.
	ErrInvalidSeatCount = errors.New("invalid seat count")

	// ErrRideLocked is returned when the per-ride mutation lock could not
	// be acquired; the caller should retry.
	ErrRideLocked = errors.New("ride busy, retry")
)
