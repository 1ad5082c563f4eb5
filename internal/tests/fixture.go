package tests

import (
	"time"

	"carpool/internal/domain"
	"carpool/internal/service"
)

// engine wires the full service stack over mocks. Each test gets its own
// so parallel tests never share state.
type engine struct {
	rides     *MockRideRepository
	requests  *MockRequestRepository
	strikes   *MockStrikeRepository
	users     *MockUserRepository
	atomic    *MockAtomic
	locks     *MockLockStore
	cache     *MockRideCache
	processor *MockPaymentProcessor

	escrow       *service.EscrowService
	seats        *service.SeatLedger
	penalty      *service.PenaltyService
	requestSvc   *service.RequestService
	verification *service.VerificationService
	rideSvc      *service.RideService
}

func newEngine() *engine {
	e := &engine{
		rides:     NewMockRideRepository(),
		requests:  NewMockRequestRepository(),
		strikes:   NewMockStrikeRepository(),
		users:     NewMockUserRepository(),
		locks:     NewMockLockStore(),
		cache:     NewMockRideCache(),
		processor: NewMockPaymentProcessor(),
	}
	e.atomic = NewMockAtomic(e.rides, e.requests, e.strikes)

	e.escrow = service.NewEscrowService(e.requests, e.processor, nil, 0.10)
	e.seats = service.NewSeatLedger()
	e.penalty = service.NewPenaltyService(e.strikes, e.users, e.escrow, nil)
	e.requestSvc = service.NewRequestService(e.atomic, e.rides, e.requests, e.users, e.locks, e.cache, e.seats, e.escrow, nil)
	e.verification = service.NewVerificationService(e.atomic, e.rides, e.requests, e.locks, e.cache, e.escrow, nil)
	e.rideSvc = service.NewRideService(e.atomic, e.rides, e.requests, e.locks, e.cache, e.seats, e.escrow, e.penalty, nil)

	return e
}

// addUser registers a user with a payer token.
func (e *engine) addUser(id string, gender domain.Gender) *domain.User {
	user := &domain.User{
		ID:         id,
		Name:       id,
		Phone:      "+000" + id,
		Gender:     gender,
		PayerToken: "tok_" + id,
		CreatedAt:  time.Now(),
	}
	e.users.AddUser(user)
	return user
}

// addOpenRide stores an OPEN ride with the given seat count.
func (e *engine) addOpenRide(id, driverID string, price float64, seats int) *domain.Ride {
	ride := &domain.Ride{
		ID:               id,
		Kind:             domain.RideKindDriverPosting,
		DriverID:         driverID,
		OriginCity:       "Tunis",
		OriginArea:       "Lac 2",
		DestinationCity:  "Sousse",
		DestinationArea:  "Centre",
		DepartureTime:    time.Now().Add(24 * time.Hour),
		Price:            price,
		SeatsTotal:       seats,
		SeatsLeft:        seats,
		GenderPreference: domain.GenderPreferenceNone,
		Status:           domain.RideStatusOpen,
		CreatedAt:        time.Now(),
	}
	e.rides.AddRide(ride)
	return ride
}

// addApprovedRequest stores an APPROVED request holding one seat.
func (e *engine) addApprovedRequest(id, rideID, passengerID string) *domain.RideRequest {
	req := &domain.RideRequest{
		ID:            id,
		RideID:        rideID,
		PassengerID:   passengerID,
		Status:        domain.RequestStatusApproved,
		PaymentAuthID: "auth_" + id,
		PaymentStatus: domain.PaymentStatusAuthorized,
		CreatedAt:     time.Now(),
	}
	e.requests.AddRequest(req)
	return req
}

// addPendingRequest stores a PENDING request with an authorized hold.
func (e *engine) addPendingRequest(id, rideID, passengerID string) *domain.RideRequest {
	req := &domain.RideRequest{
		ID:            id,
		RideID:        rideID,
		PassengerID:   passengerID,
		Status:        domain.RequestStatusPending,
		PaymentAuthID: "auth_" + id,
		PaymentStatus: domain.PaymentStatusAuthorized,
		CreatedAt:     time.Now(),
	}
	e.requests.AddRequest(req)
	return req
}
