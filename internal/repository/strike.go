package repository

import (
	"context"

	"carpool/internal/domain"
)

// StrikeRepository defines the persistence operations for strike records.
type StrikeRepository interface {
	// Get retrieves the strike record for a user and calendar month.
	// Returns nil if the user has no strikes that month.
	Get(ctx context.Context, userID, yearMonth string) (*domain.StrikeRecord, error)

	// Upsert inserts or replaces the strike record for its
	// (user, yearMonth) key.
	Upsert(ctx context.Context, rec *domain.StrikeRecord) error
}
