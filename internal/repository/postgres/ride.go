package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// RideRepository is a PostgreSQL implementation of repository.RideRepository.
type RideRepository struct {
	q Querier
}

// NewRideRepository creates a new PostgreSQL ride repository.
func NewRideRepository(db *sql.DB) *RideRepository {
	return &RideRepository{q: db}
}

// NewRideRepositoryWithTx creates a ride repository using a transaction.
func NewRideRepositoryWithTx(tx *sql.Tx) *RideRepository {
	return &RideRepository{q: tx}
}

const rideColumns = `id, kind, driver_id, origin_city, origin_area, destination_city, destination_area,
	departure_time, arrival_time, price, seats_total, seats_left, gender_preference, status, version,
	start_code, start_code_issued_at, completion_code, completion_code_issued_at,
	started_at, completed_at, cancelled_at, created_at`

// Create persists a new ride.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	query := `
		INSERT INTO rides (` + rideColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
	`

	_, err := r.q.ExecContext(ctx, query,
		ride.ID,
		ride.Kind,
		ride.DriverID,
		ride.OriginCity,
		ride.OriginArea,
		ride.DestinationCity,
		ride.DestinationArea,
		ride.DepartureTime,
		ride.ArrivalTime,
		ride.Price,
		ride.SeatsTotal,
		ride.SeatsLeft,
		ride.GenderPreference,
		ride.Status,
		ride.Version,
		nullString(ride.StartCode),
		nullTime(ride.StartCodeIssuedAt),
		nullString(ride.CompletionCode),
		nullTime(ride.CompletionCodeIssuedAt),
		nullTime(ride.StartedAt),
		nullTime(ride.CompletedAt),
		nullTime(ride.CancelledAt),
		ride.CreatedAt,
	)

	return err
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1`

	ride, err := scanRide(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return ride, nil
}

// GetAll retrieves recent rides.
func (r *RideRepository) GetAll(ctx context.Context) ([]*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides ORDER BY created_at DESC LIMIT 100`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rides []*domain.Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}

// Update updates an existing ride with an optimistic version check. The
// version the caller read must still match the stored row.
func (r *RideRepository) Update(ctx context.Context, ride *domain.Ride) error {
	query := `
		UPDATE rides
		SET status = $1, seats_left = $2, version = version + 1,
			start_code = $3, start_code_issued_at = $4,
			completion_code = $5, completion_code_issued_at = $6,
			started_at = $7, completed_at = $8, cancelled_at = $9
		WHERE id = $10 AND version = $11
	`

	result, err := r.q.ExecContext(ctx, query,
		ride.Status,
		ride.SeatsLeft,
		nullString(ride.StartCode),
		nullTime(ride.StartCodeIssuedAt),
		nullString(ride.CompletionCode),
		nullTime(ride.CompletionCodeIssuedAt),
		nullTime(ride.StartedAt),
		nullTime(ride.CompletedAt),
		nullTime(ride.CancelledAt),
		ride.ID,
		ride.Version,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		// Either the ride does not exist or a concurrent write bumped
		// the version. Distinguish for the caller.
		var exists bool
		if scanErr := r.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM rides WHERE id = $1)`, ride.ID).Scan(&exists); scanErr != nil {
			return scanErr
		}
		if !exists {
			return repository.ErrNotFound
		}
		return repository.ErrStaleVersion
	}

	ride.Version++
	return nil
}

// ReserveSeat atomically decrements seats_left if any remain.
func (r *RideRepository) ReserveSeat(ctx context.Context, rideID string) (bool, error) {
	query := `
		UPDATE rides
		SET seats_left = seats_left - 1, version = version + 1
		WHERE id = $1 AND seats_left > 0
	`

	result, err := r.q.ExecContext(ctx, query, rideID)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

// ReleaseSeat increments seats_left, capped at seats_total.
func (r *RideRepository) ReleaseSeat(ctx context.Context, rideID string) error {
	query := `
		UPDATE rides
		SET seats_left = LEAST(seats_left + 1, seats_total), version = version + 1
		WHERE id = $1
	`

	result, err := r.q.ExecContext(ctx, query, rideID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ConsumeStartCode clears the start code and moves the ride to STARTED in a
// single compare-and-clear statement, so two near-simultaneous submissions
// cannot both succeed on one code.
func (r *RideRepository) ConsumeStartCode(ctx context.Context, rideID, code string, startedAt time.Time) (bool, error) {
	query := `
		UPDATE rides
		SET start_code = NULL, start_code_issued_at = NULL,
			status = $1, started_at = $2, version = version + 1
		WHERE id = $3 AND start_code = $4 AND status = $5
	`

	result, err := r.q.ExecContext(ctx, query,
		domain.RideStatusStarted, startedAt, rideID, code, domain.RideStatusOpen)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

// ListStartedBefore retrieves STARTED rides whose trip began before cutoff.
func (r *RideRepository) ListStartedBefore(ctx context.Context, cutoff time.Time) ([]*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE status = $1 AND started_at < $2`

	rows, err := r.q.QueryContext(ctx, query, domain.RideStatusStarted, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rides []*domain.Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRide(s scanner) (*domain.Ride, error) {
	var ride domain.Ride
	var startCode, completionCode sql.NullString
	var startIssued, completionIssued, startedAt, completedAt, cancelledAt sql.NullTime

	err := s.Scan(
		&ride.ID,
		&ride.Kind,
		&ride.DriverID,
		&ride.OriginCity,
		&ride.OriginArea,
		&ride.DestinationCity,
		&ride.DestinationArea,
		&ride.DepartureTime,
		&ride.ArrivalTime,
		&ride.Price,
		&ride.SeatsTotal,
		&ride.SeatsLeft,
		&ride.GenderPreference,
		&ride.Status,
		&ride.Version,
		&startCode,
		&startIssued,
		&completionCode,
		&completionIssued,
		&startedAt,
		&completedAt,
		&cancelledAt,
		&ride.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if startCode.Valid {
		ride.StartCode = startCode.String
	}
	if startIssued.Valid {
		ride.StartCodeIssuedAt = startIssued.Time
	}
	if completionCode.Valid {
		ride.CompletionCode = completionCode.String
	}
	if completionIssued.Valid {
		ride.CompletionCodeIssuedAt = completionIssued.Time
	}
	if startedAt.Valid {
		ride.StartedAt = startedAt.Time
	}
	if completedAt.Valid {
		ride.CompletedAt = completedAt.Time
	}
	if cancelledAt.Valid {
		ride.CancelledAt = cancelledAt.Time
	}

	return &ride, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// Ensure RideRepository implements repository.RideRepository.
var _ repository.RideRepository = (*RideRepository)(nil)
