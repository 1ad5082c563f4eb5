package postgres

import (
	"context"
	"database/sql"
	"errors"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// StrikeRepository is a PostgreSQL implementation of
// repository.StrikeRepository.
type StrikeRepository struct {
	q Querier
}

// NewStrikeRepository creates a new PostgreSQL strike repository.
func NewStrikeRepository(db *sql.DB) *StrikeRepository {
	return &StrikeRepository{q: db}
}

// NewStrikeRepositoryWithTx creates a strike repository using a transaction.
func NewStrikeRepositoryWithTx(tx *sql.Tx) *StrikeRepository {
	return &StrikeRepository{q: tx}
}

// Get retrieves the strike record for a user and calendar month.
// Returns nil if the user has no strikes that month.
func (r *StrikeRepository) Get(ctx context.Context, userID, yearMonth string) (*domain.StrikeRecord, error) {
	query := `
		SELECT user_id, year_month, count, last_penalty_amount
		FROM strike_records WHERE user_id = $1 AND year_month = $2
	`

	var rec domain.StrikeRecord
	err := r.q.QueryRowContext(ctx, query, userID, yearMonth).Scan(
		&rec.UserID,
		&rec.YearMonth,
		&rec.Count,
		&rec.LastPenaltyAmount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &rec, nil
}

// Upsert inserts or replaces the strike record for its (user, yearMonth) key.
func (r *StrikeRepository) Upsert(ctx context.Context, rec *domain.StrikeRecord) error {
	query := `
		INSERT INTO strike_records (user_id, year_month, count, last_penalty_amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, year_month)
		DO UPDATE SET count = EXCLUDED.count, last_penalty_amount = EXCLUDED.last_penalty_amount
	`

	_, err := r.q.ExecContext(ctx, query, rec.UserID, rec.YearMonth, rec.Count, rec.LastPenaltyAmount)
	return err
}

// Ensure StrikeRepository implements repository.StrikeRepository.
var _ repository.StrikeRepository = (*StrikeRepository)(nil)
