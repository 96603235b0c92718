package book

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"lendingapi/internal/availability"
	"lendingapi/internal/httpx"
	"lendingapi/internal/platform/openlibrary"
)

var ErrMetadataNotFound = errors.New("no metadata found for isbn")

// Service provides book-related business logic.
type Service struct {
	repo   Repository
	lookup MetadataLookup
	logger *slog.Logger
}

// NewService creates a new book service. lookup may be nil, which disables
// ImportByISBN.
func NewService(repo Repository, lookup MetadataLookup, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, lookup: lookup, logger: logger}
}

func (s *Service) List(ctx context.Context, q Query) ([]Book, int, error) {
	return s.repo.List(ctx, q)
}

func (s *Service) Get(ctx context.Context, id string) (Book, error) {
	return s.repo.GetByID(ctx, id)
}

// Create adds a title with every copy on the shelf.
func (s *Service) Create(ctx context.Context, in CreateInput) (Book, error) {
	stock, err := availability.New(in.TotalCopies)
	if err != nil {
		return Book{}, err
	}

	b := Book{
		ISBN:            httpx.NormalizeISBN(in.ISBN),
		Title:           strings.TrimSpace(in.Title),
		Author:          strings.TrimSpace(in.Author),
		Description:     in.Description,
		Genre:           strings.TrimSpace(in.Genre),
		Publisher:       strings.TrimSpace(in.Publisher),
		PublicationYear: in.PublicationYear,
		CoverURL:        in.CoverURL,
	}
	b.setStock(stock)

	if err := s.repo.Create(ctx, &b); err != nil {
		return Book{}, err
	}
	s.logger.Info("book created", "book_id", b.ID, "isbn", b.ISBN, "total_copies", b.TotalCopies)
	return b, nil
}

// Update edits metadata and, when asked, the copy counts. Raising
// total_copies never puts copies on the shelf by itself; available_copies
// has to be set explicitly.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (Book, error) {
	return s.repo.Mutate(ctx, id, func(b *Book, onLoan int) error {
		applyMetadata(b, in)
		if in.TotalCopies == nil && in.AvailableCopies == nil {
			return nil
		}

		// Both counts are applied together so an edit that lowers them in
		// one go is judged on its end state only.
		total, available := b.TotalCopies, b.AvailableCopies
		if in.TotalCopies != nil {
			total = *in.TotalCopies
		}
		if in.AvailableCopies != nil {
			available = *in.AvailableCopies
		}
		stock, err := availability.Restore(total, available)
		if err != nil {
			return err
		}
		if err := stock.CheckOnLoan(onLoan); err != nil {
			return fmt.Errorf("%w: %d copies are on loan", err, onLoan)
		}
		b.setStock(stock)
		return nil
	})
}

// AdjustStock restocks (delta > 0) or withdraws (delta < 0) shelf copies.
func (s *Service) AdjustStock(ctx context.Context, id string, delta int) (Book, error) {
	b, err := s.repo.Mutate(ctx, id, func(b *Book, onLoan int) error {
		stock, err := b.Stock()
		if err != nil {
			return err
		}
		if stock, err = stock.Adjust(delta); err != nil {
			return err
		}
		if err := stock.CheckOnLoan(onLoan); err != nil {
			return fmt.Errorf("%w: %d copies are on loan", err, onLoan)
		}
		b.setStock(stock)
		return nil
	})
	if err != nil {
		return Book{}, err
	}
	s.logger.Info("book stock adjusted", "book_id", id, "delta", delta, "available_copies", b.AvailableCopies)
	return b, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("book deleted", "book_id", id)
	return nil
}

// ImportByISBN creates a book from Open Library metadata.
func (s *Service) ImportByISBN(ctx context.Context, isbn string, totalCopies int) (Book, error) {
	if s.lookup == nil {
		return Book{}, ErrMetadataNotFound
	}
	isbn = httpx.NormalizeISBN(isbn)

	if _, err := s.repo.GetByISBN(ctx, isbn); err == nil {
		return Book{}, ErrDuplicateISBN
	} else if !errors.Is(err, ErrNotFound) {
		return Book{}, err
	}

	e, err := s.lookup.LookupISBN(ctx, isbn)
	if errors.Is(err, openlibrary.ErrNotFound) {
		return Book{}, ErrMetadataNotFound
	}
	if err != nil {
		return Book{}, fmt.Errorf("lookup isbn %s: %w", isbn, err)
	}

	author := e.Author
	if author == "" {
		author = "Unknown"
	}
	return s.Create(ctx, CreateInput{
		ISBN:            isbn,
		Title:           e.Title,
		Author:          author,
		Description:     e.Description,
		Genre:           e.Genre,
		Publisher:       e.Publisher,
		PublicationYear: e.PublicationYear,
		CoverURL:        e.CoverURL,
		TotalCopies:     totalCopies,
	})
}

func applyMetadata(b *Book, in UpdateInput) {
	if in.Title != nil {
		b.Title = strings.TrimSpace(*in.Title)
	}
	if in.Author != nil {
		b.Author = strings.TrimSpace(*in.Author)
	}
	if in.Description != nil {
		b.Description = *in.Description
	}
	if in.Genre != nil {
		b.Genre = strings.TrimSpace(*in.Genre)
	}
	if in.Publisher != nil {
		b.Publisher = strings.TrimSpace(*in.Publisher)
	}
	if in.PublicationYear != nil {
		b.PublicationYear = in.PublicationYear
	}
	if in.CoverURL != nil {
		b.CoverURL = in.CoverURL
	}
}
