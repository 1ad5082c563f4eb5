package tests

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"carpool/internal/domain"
	"carpool/internal/redis"
	"carpool/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK RIDE REPOSITORY
// ──────────────────────────────────────────────

// MockRideRepository is a mock implementation of RideRepository.
type MockRideRepository struct {
	mu    sync.RWMutex
	rides map[string]*domain.Ride

	// Counters for verification
	CreateCallCount           int32
	UpdateCallCount           int32
	ReserveSeatCallCount      int32
	ReleaseSeatCallCount      int32
	ConsumeStartCodeCallCount int32

	// Error injection
	CreateError error
	UpdateError error
}

// NewMockRideRepository creates a new mock ride repository.
func NewMockRideRepository() *MockRideRepository {
	return &MockRideRepository{
		rides: make(map[string]*domain.Ride),
	}
}

// AddRide adds a ride to the mock repository.
func (m *MockRideRepository) AddRide(ride *domain.Ride) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[ride.ID] = ride
}

func (m *MockRideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[ride.ID] = ride
	return nil
}

func (m *MockRideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ride, ok := m.rides[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	// Return a copy to avoid mutation issues.
	copy := *ride
	return &copy, nil
}

func (m *MockRideRepository) GetAll(ctx context.Context) ([]*domain.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.Ride, 0, len(m.rides))
	for _, r := range m.rides {
		copy := *r
		result = append(result, &copy)
	}
	return result, nil
}

func (m *MockRideRepository) Update(ctx context.Context, ride *domain.Ride) error {
	atomic.AddInt32(&m.UpdateCallCount, 1)
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.rides[ride.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Version != ride.Version {
		return repository.ErrStaleVersion
	}
	copy := *ride
	copy.Version++
	m.rides[ride.ID] = &copy
	ride.Version = copy.Version
	return nil
}

func (m *MockRideRepository) ReserveSeat(ctx context.Context, rideID string) (bool, error) {
	atomic.AddInt32(&m.ReserveSeatCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	ride, ok := m.rides[rideID]
	if !ok {
		return false, repository.ErrNotFound
	}
	if ride.SeatsLeft <= 0 {
		return false, nil
	}
	ride.SeatsLeft--
	ride.Version++
	return true, nil
}

func (m *MockRideRepository) ReleaseSeat(ctx context.Context, rideID string) error {
	atomic.AddInt32(&m.ReleaseSeatCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	ride, ok := m.rides[rideID]
	if !ok {
		return repository.ErrNotFound
	}
	if ride.SeatsLeft < ride.SeatsTotal {
		ride.SeatsLeft++
	}
	ride.Version++
	return nil
}

func (m *MockRideRepository) ConsumeStartCode(ctx context.Context, rideID, code string, startedAt time.Time) (bool, error) {
	atomic.AddInt32(&m.ConsumeStartCodeCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	ride, ok := m.rides[rideID]
	if !ok {
		return false, repository.ErrNotFound
	}
	if ride.Status != domain.RideStatusOpen || ride.StartCode == "" || ride.StartCode != code {
		return false, nil
	}
	ride.StartCode = ""
	ride.Status = domain.RideStatusStarted
	ride.StartedAt = startedAt
	ride.Version++
	return true, nil
}

func (m *MockRideRepository) ListStartedBefore(ctx context.Context, cutoff time.Time) ([]*domain.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Ride
	for _, r := range m.rides {
		if r.Status == domain.RideStatusStarted && r.StartedAt.Before(cutoff) {
			copy := *r
			result = append(result, &copy)
		}
	}
	return result, nil
}

// GetRide returns the ride by ID (for test assertions).
func (m *MockRideRepository) GetRide(id string) *domain.Ride {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rides[id]
}

// ──────────────────────────────────────────────
// MOCK REQUEST REPOSITORY
// ──────────────────────────────────────────────

// MockRequestRepository is a mock implementation of RequestRepository.
type MockRequestRepository struct {
	mu       sync.RWMutex
	requests map[string]*domain.RideRequest

	// Counters for verification
	CreateCallCount           int32
	UpdateCallCount           int32
	TransitionStatusCallCount int32

	// Error injection
	CreateError error
	UpdateError error
}

// NewMockRequestRepository creates a new mock request repository.
func NewMockRequestRepository() *MockRequestRepository {
	return &MockRequestRepository{
		requests: make(map[string]*domain.RideRequest),
	}
}

// AddRequest adds a request to the mock repository.
func (m *MockRequestRepository) AddRequest(req *domain.RideRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[req.ID] = req
}

func (m *MockRequestRepository) Create(ctx context.Context, req *domain.RideRequest) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[req.ID] = req
	return nil
}

func (m *MockRequestRepository) GetByID(ctx context.Context, id string) (*domain.RideRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *req
	return &copy, nil
}

func (m *MockRequestRepository) GetActiveByRideAndPassenger(ctx context.Context, rideID, passengerID string) (*domain.RideRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.requests {
		if r.RideID == rideID && r.PassengerID == passengerID && !r.Status.IsTerminal() {
			copy := *r
			return &copy, nil
		}
	}
	return nil, nil
}

func (m *MockRequestRepository) ListByRide(ctx context.Context, rideID string) ([]*domain.RideRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.RideRequest
	for _, r := range m.requests {
		if r.RideID == rideID {
			copy := *r
			result = append(result, &copy)
		}
	}
	return result, nil
}

func (m *MockRequestRepository) ListByRideAndStatus(ctx context.Context, rideID string, status domain.RequestStatus) ([]*domain.RideRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.RideRequest
	for _, r := range m.requests {
		if r.RideID == rideID && r.Status == status {
			copy := *r
			result = append(result, &copy)
		}
	}
	return result, nil
}

func (m *MockRequestRepository) Update(ctx context.Context, req *domain.RideRequest) error {
	atomic.AddInt32(&m.UpdateCallCount, 1)
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[req.ID]; !ok {
		return repository.ErrNotFound
	}
	copy := *req
	m.requests[req.ID] = &copy
	return nil
}

func (m *MockRequestRepository) TransitionStatus(ctx context.Context, id string, from, to domain.RequestStatus) (bool, error) {
	atomic.AddInt32(&m.TransitionStatusCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if req.Status != from {
		return false, nil
	}
	req.Status = to
	return true, nil
}

func (m *MockRequestRepository) MarkSeatReleased(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if req.SeatReleased {
		return false, nil
	}
	req.SeatReleased = true
	return true, nil
}

func (m *MockRequestRepository) ListRefundPending(ctx context.Context, now time.Time) ([]*domain.RideRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.RideRequest
	for _, r := range m.requests {
		if r.PaymentStatus == domain.PaymentStatusRefundPending && !r.RefundNextRetry.After(now) {
			copy := *r
			result = append(result, &copy)
		}
	}
	return result, nil
}

// GetRequest returns the request by ID (for test assertions).
func (m *MockRequestRepository) GetRequest(id string) *domain.RideRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requests[id]
}

// ──────────────────────────────────────────────
// MOCK STRIKE REPOSITORY
// ──────────────────────────────────────────────

// MockStrikeRepository is a mock implementation of StrikeRepository.
type MockStrikeRepository struct {
	mu      sync.RWMutex
	strikes map[string]*domain.StrikeRecord

	// Counters
	UpsertCallCount int32

	// Error injection
	UpsertError error
}

// NewMockStrikeRepository creates a new mock strike repository.
func NewMockStrikeRepository() *MockStrikeRepository {
	return &MockStrikeRepository{
		strikes: make(map[string]*domain.StrikeRecord),
	}
}

func strikeKey(userID, yearMonth string) string {
	return userID + "/" + yearMonth
}

func (m *MockStrikeRepository) Get(ctx context.Context, userID, yearMonth string) (*domain.StrikeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.strikes[strikeKey(userID, yearMonth)]
	if !ok {
		return nil, nil
	}
	copy := *rec
	return &copy, nil
}

func (m *MockStrikeRepository) Upsert(ctx context.Context, rec *domain.StrikeRecord) error {
	atomic.AddInt32(&m.UpsertCallCount, 1)
	if m.UpsertError != nil {
		return m.UpsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *rec
	m.strikes[strikeKey(rec.UserID, rec.YearMonth)] = &copy
	return nil
}

// GetStrike returns the strike record for assertions.
func (m *MockStrikeRepository) GetStrike(userID, yearMonth string) *domain.StrikeRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.strikes[strikeKey(userID, yearMonth)]
}

// ──────────────────────────────────────────────
// MOCK USER REPOSITORY
// ──────────────────────────────────────────────

// MockUserRepository is a mock implementation of UserRepository.
type MockUserRepository struct {
	mu    sync.RWMutex
	users map[string]*domain.User

	// Counters
	CreateCallCount int32

	// Error injection
	CreateError error
}

// NewMockUserRepository creates a new mock user repository.
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		users: make(map[string]*domain.User),
	}
}

// AddUser adds a user to the mock repository.
func (m *MockUserRepository) AddUser(user *domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *user
	return &copy, nil
}

func (m *MockUserRepository) GetAll(ctx context.Context) ([]*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.User, 0, len(m.users))
	for _, u := range m.users {
		copy := *u
		result = append(result, &copy)
	}
	return result, nil
}

// ──────────────────────────────────────────────
// MOCK ATOMIC
// ──────────────────────────────────────────────

// MockAtomic runs the transaction function directly against the mock
// repositories. It cannot roll back; tests assert on the end state.
type MockAtomic struct {
	Rides    *MockRideRepository
	Requests *MockRequestRepository
	Strikes  *MockStrikeRepository

	// Counters
	TxCallCount int32

	// Error injection: fail before fn runs.
	BeginError error
}

// NewMockAtomic creates a MockAtomic over the given mock repositories.
func NewMockAtomic(rides *MockRideRepository, requests *MockRequestRepository, strikes *MockStrikeRepository) *MockAtomic {
	return &MockAtomic{
		Rides:    rides,
		Requests: requests,
		Strikes:  strikes,
	}
}

func (m *MockAtomic) WithinTx(ctx context.Context, fn func(r repository.Repositories) error) error {
	atomic.AddInt32(&m.TxCallCount, 1)
	if m.BeginError != nil {
		return m.BeginError
	}
	return fn(repository.Repositories{
		Rides:    m.Rides,
		Requests: m.Requests,
		Strikes:  m.Strikes,
	})
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is a mock implementation of the ride lock store.
type MockLockStore struct {
	mu    sync.Mutex
	locks map[string]time.Time

	// Counters
	AcquireCallCount int32
	ReleaseCallCount int32

	// Error injection
	AcquireError error

	// Force lock failure
	ForceAcquireFailure bool
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{
		locks: make(map[string]time.Time),
	}
}

func (m *MockLockStore) AcquireRideLock(ctx context.Context, rideID string, ttl time.Duration) (bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	if m.AcquireError != nil {
		return false, m.AcquireError
	}
	if m.ForceAcquireFailure {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := "lock:ride:" + rideID
	if expiry, exists := m.locks[key]; exists {
		if time.Now().Before(expiry) {
			return false, nil // Lock still held.
		}
	}

	m.locks[key] = time.Now().Add(ttl)
	return true, nil
}

func (m *MockLockStore) ReleaseRideLock(ctx context.Context, rideID string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, "lock:ride:"+rideID)
	return nil
}

// IsLocked checks if a ride is locked (for test assertions).
func (m *MockLockStore) IsLocked(rideID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	expiry, exists := m.locks["lock:ride:"+rideID]
	return exists && time.Now().Before(expiry)
}

// ──────────────────────────────────────────────
// MOCK RIDE CACHE
// ──────────────────────────────────────────────

// MockRideCache is a mock implementation of the ride snapshot cache.
type MockRideCache struct {
	mu    sync.RWMutex
	rides map[string]*redis.CachedRide

	// Counters
	SetCallCount        int32
	InvalidateCallCount int32
}

// NewMockRideCache creates a new mock ride cache.
func NewMockRideCache() *MockRideCache {
	return &MockRideCache{
		rides: make(map[string]*redis.CachedRide),
	}
}

func (m *MockRideCache) GetRide(ctx context.Context, rideID string) (*redis.CachedRide, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ride, ok := m.rides[rideID]
	if !ok {
		return nil, nil
	}
	copy := *ride
	return &copy, nil
}

func (m *MockRideCache) SetRide(ctx context.Context, ride *redis.CachedRide) error {
	atomic.AddInt32(&m.SetCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *ride
	m.rides[ride.ID] = &copy
	return nil
}

func (m *MockRideCache) InvalidateRide(ctx context.Context, rideID string) error {
	atomic.AddInt32(&m.InvalidateCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rides, rideID)
	return nil
}

// ──────────────────────────────────────────────
// MOCK PAYMENT PROCESSOR
// ──────────────────────────────────────────────

// MockPaymentProcessor is a mock payment processor with per-operation
// failure injection. Like the real one, results replay by idempotency
// key so a retried call never produces a second charge.
type MockPaymentProcessor struct {
	mu   sync.Mutex
	seen map[string]string

	// Counters
	AuthorizeCallCount int32
	CaptureCallCount   int32
	RefundCallCount    int32
	ChargeCallCount    int32

	// Error injection
	AuthorizeError error
	CaptureError   error
	RefundError    error
	ChargeError    error

	// AuthorizeHook runs during Authorize, letting a test interleave
	// rival work inside the authorize window.
	AuthorizeHook func()
}

// NewMockPaymentProcessor creates a new mock payment processor.
func NewMockPaymentProcessor() *MockPaymentProcessor {
	return &MockPaymentProcessor{
		seen: make(map[string]string),
	}
}

func (p *MockPaymentProcessor) Authorize(ctx context.Context, amount float64, payerToken, idempotencyKey string) (string, error) {
	atomic.AddInt32(&p.AuthorizeCallCount, 1)
	if p.AuthorizeError != nil {
		return "", p.AuthorizeError
	}
	if p.AuthorizeHook != nil {
		p.AuthorizeHook()
	}
	return p.replay(idempotencyKey, "auth"), nil
}

func (p *MockPaymentProcessor) Capture(ctx context.Context, authID, idempotencyKey string) (string, error) {
	atomic.AddInt32(&p.CaptureCallCount, 1)
	if p.CaptureError != nil {
		return "", p.CaptureError
	}
	return p.replay(idempotencyKey, "rcpt"), nil
}

func (p *MockPaymentProcessor) Refund(ctx context.Context, ref, idempotencyKey string) error {
	atomic.AddInt32(&p.RefundCallCount, 1)
	if p.RefundError != nil {
		return p.RefundError
	}
	p.replay(idempotencyKey, "rfnd")
	return nil
}

func (p *MockPaymentProcessor) ChargeSeparate(ctx context.Context, amount float64, payerToken, idempotencyKey string) (string, error) {
	atomic.AddInt32(&p.ChargeCallCount, 1)
	if p.ChargeError != nil {
		return "", p.ChargeError
	}
	return p.replay(idempotencyKey, "chrg"), nil
}

func (p *MockPaymentProcessor) replay(key, prefix string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ref, ok := p.seen[key]; ok {
		return ref
	}
	ref := fmt.Sprintf("%s_%d", prefix, len(p.seen)+1)
	p.seen[key] = ref
	return ref
}

// DistinctCharges returns the number of distinct processor operations
// (replays excluded), for at-most-once assertions.
func (p *MockPaymentProcessor) DistinctCharges() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

// ──────────────────────────────────────────────
// HELPER ERRORS
// ──────────────────────────────────────────────

var (
	ErrMockDBConstraint = errors.New("mock: unique constraint violation")
	ErrMockTimeout      = errors.New("mock: operation timeout")
	ErrMockProcessor    = errors.New("mock: processor unavailable")
)
