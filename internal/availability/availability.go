// Package availability tracks how many copies of a book can be lent out.
//
// A Stock is a value: every operation returns a new Stock and leaves the
// receiver untouched when it fails, so callers can hold the old value until
// the surrounding transaction commits.
package availability

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfStock is returned when a copy is requested and none is available.
	ErrOutOfStock = errors.New("no copies available")
	// ErrInvalidStock is returned when an operation would break 0 <= available <= total.
	ErrInvalidStock = errors.New("invalid stock")
)

// Stock holds the owned and lendable copy counts of one book.
type Stock struct {
	total     int
	available int
}

// New creates the stock of a freshly catalogued book, all copies on the shelf.
func New(total int) (Stock, error) {
	if total < 0 {
		return Stock{}, fmt.Errorf("%w: total copies must not be negative", ErrInvalidStock)
	}
	return Stock{total: total, available: total}, nil
}

// Restore rebuilds a Stock from persisted counters.
func Restore(total, available int) (Stock, error) {
	s := Stock{total: total, available: available}
	if err := s.validate(); err != nil {
		return Stock{}, err
	}
	return s, nil
}

func (s Stock) Total() int     { return s.total }
func (s Stock) Available() int { return s.available }

// OnLoan is the number of copies currently out of the library.
func (s Stock) OnLoan() int { return s.total - s.available }

func (s Stock) validate() error {
	if s.total < 0 || s.available < 0 || s.available > s.total {
		return fmt.Errorf("%w: available=%d total=%d", ErrInvalidStock, s.available, s.total)
	}
	return nil
}

// Decrement takes one copy off the shelf.
func (s Stock) Decrement() (Stock, error) {
	if s.available <= 0 {
		return s, ErrOutOfStock
	}
	return Stock{total: s.total, available: s.available - 1}, nil
}

// Increment puts one copy back. Availability never rises above the owned total,
// so a redundant return is absorbed by the ceiling.
func (s Stock) Increment() Stock {
	if s.available >= s.total {
		return s
	}
	return Stock{total: s.total, available: s.available + 1}
}

// SetTotal changes the number of owned copies. Available copies are left as
// they are; new physical copies must be put on the shelf with Adjust.
func (s Stock) SetTotal(total int) (Stock, error) {
	next := Stock{total: total, available: s.available}
	if err := next.validate(); err != nil {
		return s, err
	}
	return next, nil
}

// Adjust moves delta copies onto (positive) or off (negative) the shelf.
func (s Stock) Adjust(delta int) (Stock, error) {
	next := Stock{total: s.total, available: s.available + delta}
	if err := next.validate(); err != nil {
		return s, err
	}
	return next, nil
}

// CheckOnLoan verifies the counters agree with the number of copies that
// borrow records say are out.
func (s Stock) CheckOnLoan(onLoan int) error {
	if onLoan < 0 || s.available+onLoan > s.total {
		return fmt.Errorf("%w: %d available and %d on loan exceed %d owned", ErrInvalidStock, s.available, onLoan, s.total)
	}
	return nil
}

func (s Stock) String() string {
	return fmt.Sprintf("%d/%d", s.available, s.total)
}
