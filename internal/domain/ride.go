package domain

import "time"

// RideStatus represents the current status of a ride.
type RideStatus string

const (
	RideStatusOpen      RideStatus = "OPEN"
	RideStatusStarted   RideStatus = "STARTED"
	RideStatusCompleted RideStatus = "COMPLETED"
	RideStatusCancelled RideStatus = "CANCELLED"
)

// RideKind distinguishes a driver posting seats from a passenger posting a
// single-seat request. Both share the same lifecycle; a passenger posting
// always has SeatsTotal == 1.
type RideKind string

const (
	RideKindDriverPosting    RideKind = "DRIVER_POSTING"
	RideKindPassengerRequest RideKind = "PASSENGER_REQUEST"
)

// GenderPreference restricts who may request a seat on a ride.
type GenderPreference string

const (
	GenderPreferenceNone       GenderPreference = "NONE"
	GenderPreferenceMaleOnly   GenderPreference = "MALE_ONLY"
	GenderPreferenceFemaleOnly GenderPreference = "FEMALE_ONLY"
)

// Ride represents a posted ride in the system.
//
// SeatsLeft is the live available count and always equals SeatsTotal minus
// the number of approved, non-cancelled requests. Version increments on
// every update and is checked on commit to reject stale writes.
type Ride struct {
	ID               string
	Kind             RideKind
	DriverID         string
	OriginCity       string
	OriginArea       string
	DestinationCity  string
	DestinationArea  string
	DepartureTime    time.Time
	ArrivalTime      time.Time
	Price            float64
	SeatsTotal       int
	SeatsLeft        int
	GenderPreference GenderPreference
	Status           RideStatus
	Version          int64

	// One-time verification codes, empty until generated and cleared on
	// consumption. The start code gates the OPEN -> STARTED transition;
	// the completion code is shared across passengers, each confirming
	// their own leg.
	StartCode              string
	StartCodeIssuedAt      time.Time
	CompletionCode         string
	CompletionCodeIssuedAt time.Time

	StartedAt   time.Time
	CompletedAt time.Time
	CancelledAt time.Time
	CreatedAt   time.Time
}
