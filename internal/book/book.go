package book

import (
	"errors"
	"time"

	"lendingapi/internal/availability"
)

var (
	ErrNotFound      = errors.New("book not found")
	ErrDuplicateISBN = errors.New("a book with this isbn already exists")
	// ErrInUse blocks deleting a book that active borrow requests still
	// reference.
	ErrInUse        = errors.New("book has active borrow requests")
	ErrUnavailable  = errors.New("catalog store unavailable")
	ErrInvalidStock = availability.ErrInvalidStock
)

// Book represents a book entity.
type Book struct {
	ID              string    `json:"id"`
	ISBN            string    `json:"isbn"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	Description     string    `json:"description,omitempty"`
	Genre           string    `json:"genre,omitempty"`
	Publisher       string    `json:"publisher,omitempty"`
	PublicationYear *int      `json:"publication_year,omitempty"`
	CoverURL        *string   `json:"cover_url,omitempty"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Stock rebuilds the availability counter from the persisted columns.
func (b Book) Stock() (availability.Stock, error) {
	return availability.Restore(b.TotalCopies, b.AvailableCopies)
}

func (b *Book) setStock(s availability.Stock) {
	b.TotalCopies = s.Total()
	b.AvailableCopies = s.Available()
}

// Query defines filters and pagination for listing books.
type Query struct {
	Search        string
	Genre         string
	Author        string
	AvailableOnly bool
	Sort          string
	Desc          bool
	Limit         int
	Offset        int
}

// CreateInput is what an administrator supplies for a new title.
type CreateInput struct {
	ISBN            string  `json:"isbn" validate:"required,isbn"`
	Title           string  `json:"title" validate:"required,max=300"`
	Author          string  `json:"author" validate:"required,max=200"`
	Description     string  `json:"description" validate:"max=5000"`
	Genre           string  `json:"genre" validate:"max=100"`
	Publisher       string  `json:"publisher" validate:"max=200"`
	PublicationYear *int    `json:"publication_year" validate:"omitempty,gte=0,lte=3000"`
	CoverURL        *string `json:"cover_url" validate:"omitempty,url"`
	TotalCopies     int     `json:"total_copies" validate:"gte=0,lte=100000"`
}

// UpdateInput changes only the fields that are set. AvailableCopies is a
// target value, reached through an explicit stock adjustment.
type UpdateInput struct {
	Title           *string `json:"title" validate:"omitempty,min=1,max=300"`
	Author          *string `json:"author" validate:"omitempty,min=1,max=200"`
	Description     *string `json:"description" validate:"omitempty,max=5000"`
	Genre           *string `json:"genre" validate:"omitempty,max=100"`
	Publisher       *string `json:"publisher" validate:"omitempty,max=200"`
	PublicationYear *int    `json:"publication_year" validate:"omitempty,gte=0,lte=3000"`
	CoverURL        *string `json:"cover_url" validate:"omitempty,url"`
	TotalCopies     *int    `json:"total_copies" validate:"omitempty,gte=0,lte=100000"`
	AvailableCopies *int    `json:"available_copies" validate:"omitempty,gte=0,lte=100000"`
}
