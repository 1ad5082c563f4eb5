package repository

import "context"

// Repositories bundles the stores participating in a transaction.
type Repositories struct {
	Rides    RideRepository
	Requests RequestRepository
	Strikes  StrikeRepository
}

// Atomic runs multi-entity transitions in a single transaction. The
// function receives transaction-scoped repositories; if it returns an
// error the transaction rolls back, otherwise it commits.
type Atomic interface {
	WithinTx(ctx context.Context, fn func(r Repositories) error) error
}
