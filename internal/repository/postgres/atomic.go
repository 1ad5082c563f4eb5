package postgres

import (
	"context"
	"database/sql"

	"carpool/internal/repository"
)

// Atomic runs callbacks inside a database transaction with
// transaction-scoped repositories.
type Atomic struct {
	db *sql.DB
}

// NewAtomic creates a new Atomic transaction runner.
func NewAtomic(db *sql.DB) *Atomic {
	return &Atomic{db: db}
}

// WithinTx begins a transaction, hands transaction-scoped repositories to
// fn, and commits if fn returns nil. Any error rolls the transaction back.
func (a *Atomic) WithinTx(ctx context.Context, fn func(r repository.Repositories) error) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	repos := repository.Repositories{
		Rides:    NewRideRepositoryWithTx(tx),
		Requests: NewRequestRepositoryWithTx(tx),
		Strikes:  NewStrikeRepositoryWithTx(tx),
	}

	if err := fn(repos); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

// Ensure Atomic implements repository.Atomic.
var _ repository.Atomic = (*Atomic)(nil)
