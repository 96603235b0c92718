package borrow

import (
	"context"

	"lendingapi/internal/availability"
)

// Store persists borrow requests together with the stock of the books they
// reference.
type Store interface {
	// InTx runs fn as one atomic unit. If fn returns an error nothing it did
	// is kept.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	GetByID(ctx context.Context, id string) (Request, error)
	List(ctx context.Context, q Query) ([]Request, error)
}

// Tx is the view of the store inside InTx. Lock methods hold the row until
// the transaction ends.
type Tx interface {
	LockRequest(ctx context.Context, id string) (Request, error)
	// LockActive returns the member's non-terminal request for a book, or
	// ErrNotFound.
	LockActive(ctx context.Context, bookID, userID string) (Request, error)
	LockStock(ctx context.Context, bookID string) (availability.Stock, error)
	SaveStock(ctx context.Context, bookID string, s availability.Stock) error
	InsertRequest(ctx context.Context, r *Request) error
	UpdateRequest(ctx context.Context, r *Request) error
}
