package book

import (
	"context"

	"lendingapi/internal/platform/openlibrary"
)

//go:generate mockgen -source=ports.go -destination=mock_repository.go -package=book

// Repository defines the contract for book data storage.
type Repository interface {
	List(ctx context.Context, q Query) ([]Book, int, error)
	GetByID(ctx context.Context, id string) (Book, error)
	GetByISBN(ctx context.Context, isbn string) (Book, error)
	Create(ctx context.Context, b *Book) error
	// Mutate loads the book under a row lock, hands it to fn together with
	// the number of copies currently on loan, and saves what fn leaves in
	// it. Nothing is written when fn fails.
	Mutate(ctx context.Context, id string, fn func(b *Book, onLoan int) error) (Book, error)
	// Delete removes the book, or fails with ErrInUse while active borrow
	// requests reference it.
	Delete(ctx context.Context, id string) error
}

// MetadataLookup finds bibliographic data for an ISBN.
type MetadataLookup interface {
	LookupISBN(ctx context.Context, isbn string) (openlibrary.Edition, error)
}
