package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// RequestRepository is a PostgreSQL implementation of
// repository.RequestRepository.
type RequestRepository struct {
	q Querier
}

// NewRequestRepository creates a new PostgreSQL request repository.
func NewRequestRepository(db *sql.DB) *RequestRepository {
	return &RequestRepository{q: db}
}

// NewRequestRepositoryWithTx creates a request repository using a transaction.
func NewRequestRepositoryWithTx(tx *sql.Tx) *RequestRepository {
	return &RequestRepository{q: tx}
}

const requestColumns = `id, ride_id, passenger_id, status, payment_auth_id, payment_receipt_id,
	payment_status, fee_amount, payout_amount, seat_released, refund_attempts, refund_next_retry,
	created_at, completed_at`

// Create persists a new request.
func (r *RequestRepository) Create(ctx context.Context, req *domain.RideRequest) error {
	query := `
		INSERT INTO ride_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.q.ExecContext(ctx, query,
		req.ID,
		req.RideID,
		req.PassengerID,
		req.Status,
		nullString(req.PaymentAuthID),
		nullString(req.PaymentReceiptID),
		req.PaymentStatus,
		req.FeeAmount,
		req.PayoutAmount,
		req.SeatReleased,
		req.RefundAttempts,
		nullTime(req.RefundNextRetry),
		req.CreatedAt,
		nullTime(req.CompletedAt),
	)

	return err
}

// GetByID retrieves a request by ID.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*domain.RideRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM ride_requests WHERE id = $1`

	req, err := scanRequest(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return req, nil
}

// GetActiveByRideAndPassenger retrieves the passenger's non-terminal request
// on a ride. Returns nil if none exists.
func (r *RequestRepository) GetActiveByRideAndPassenger(ctx context.Context, rideID, passengerID string) (*domain.RideRequest, error) {
	query := `
		SELECT ` + requestColumns + ` FROM ride_requests
		WHERE ride_id = $1 AND passenger_id = $2 AND status IN ($3, $4)
		LIMIT 1
	`

	req, err := scanRequest(r.q.QueryRowContext(ctx, query,
		rideID, passengerID, domain.RequestStatusPending, domain.RequestStatusApproved))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return req, nil
}

// ListByRide retrieves all requests for a ride.
func (r *RequestRepository) ListByRide(ctx context.Context, rideID string) ([]*domain.RideRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM ride_requests WHERE ride_id = $1 ORDER BY created_at`

	return r.list(ctx, query, rideID)
}

// ListByRideAndStatus retrieves a ride's requests in the given status.
func (r *RequestRepository) ListByRideAndStatus(ctx context.Context, rideID string, status domain.RequestStatus) ([]*domain.RideRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM ride_requests WHERE ride_id = $1 AND status = $2 ORDER BY created_at`

	return r.list(ctx, query, rideID, status)
}

// Update updates an existing request.
func (r *RequestRepository) Update(ctx context.Context, req *domain.RideRequest) error {
	query := `
		UPDATE ride_requests
		SET status = $1, payment_auth_id = $2, payment_receipt_id = $3, payment_status = $4,
			fee_amount = $5, payout_amount = $6, seat_released = $7,
			refund_attempts = $8, refund_next_retry = $9, completed_at = $10
		WHERE id = $11
	`

	result, err := r.q.ExecContext(ctx, query,
		req.Status,
		nullString(req.PaymentAuthID),
		nullString(req.PaymentReceiptID),
		req.PaymentStatus,
		req.FeeAmount,
		req.PayoutAmount,
		req.SeatReleased,
		req.RefundAttempts,
		nullTime(req.RefundNextRetry),
		nullTime(req.CompletedAt),
		req.ID,
	)
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

// TransitionStatus moves a request between statuses in one statement.
// Returns false if the request was no longer in the expected status.
func (r *RequestRepository) TransitionStatus(ctx context.Context, id string, from, to domain.RequestStatus) (bool, error) {
	query := `UPDATE ride_requests SET status = $1 WHERE id = $2 AND status = $3`

	result, err := r.q.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

// MarkSeatReleased flips the seat_released flag. Returns false if the seat
// was already released for this request.
func (r *RequestRepository) MarkSeatReleased(ctx context.Context, id string) (bool, error) {
	query := `UPDATE ride_requests SET seat_released = TRUE WHERE id = $1 AND seat_released = FALSE`

	result, err := r.q.ExecContext(ctx, query, id)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

// ListRefundPending retrieves requests whose refund retry is due.
func (r *RequestRepository) ListRefundPending(ctx context.Context, now time.Time) ([]*domain.RideRequest, error) {
	query := `
		SELECT ` + requestColumns + ` FROM ride_requests
		WHERE payment_status = $1 AND (refund_next_retry IS NULL OR refund_next_retry <= $2)
	`

	return r.list(ctx, query, domain.PaymentStatusRefundPending, now)
}

func (r *RequestRepository) list(ctx context.Context, query string, args ...any) ([]*domain.RideRequest, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []*domain.RideRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

func scanRequest(s scanner) (*domain.RideRequest, error) {
	var req domain.RideRequest
	var authID, receiptID sql.NullString
	var refundNextRetry, completedAt sql.NullTime

	err := s.Scan(
		&req.ID,
		&req.RideID,
		&req.PassengerID,
		&req.Status,
		&authID,
		&receiptID,
		&req.PaymentStatus,
		&req.FeeAmount,
		&req.PayoutAmount,
		&req.SeatReleased,
		&req.RefundAttempts,
		&refundNextRetry,
		&req.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if authID.Valid {
		req.PaymentAuthID = authID.String
	}
	if receiptID.Valid {
		req.PaymentReceiptID = receiptID.String
	}
	if refundNextRetry.Valid {
		req.RefundNextRetry = refundNextRetry.Time
	}
	if completedAt.Valid {
		req.CompletedAt = completedAt.Time
	}

	return &req, nil
}

// Ensure RequestRepository implements repository.RequestRepository.
var _ repository.RequestRepository = (*RequestRepository)(nil)
