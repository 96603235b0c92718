package borrow

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"lendingapi/internal/availability"
	"lendingapi/internal/platform/pagination"
)

var (
	ErrNotFound            = errors.New("borrow request not found")
	ErrBookNotFound        = errors.New("book not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrForbidden           = errors.New("action not allowed for this actor")
	ErrActiveRequestExists = errors.New("an active borrow request already exists for this book")
	ErrInvalidDueDate      = errors.New("due date must be after borrow date")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrNotesTooLong        = errors.New("notes must be at most 500 characters")
	ErrUserNotFound        = errors.New("user not found")
	// ErrUnavailable means the datastore round trip failed before commit.
	// Nothing was written and the call can be retried.
	ErrUnavailable = errors.New("lending store unavailable")
	ErrOutOfStock  = availability.ErrOutOfStock
)

// Status is the lifecycle state of a borrow request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusBorrowed  Status = "borrowed"
	StatusReturned  Status = "returned"
	StatusCancelled Status = "cancelled"
)

// ActiveStatuses are the states that hold a claim on a book for a member.
var ActiveStatuses = []Status{StatusPending, StatusApproved, StatusBorrowed}

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusApproved, StatusRejected, StatusBorrowed, StatusReturned, StatusCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// IsTerminal reports whether no further transition can leave this state.
func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusReturned || s == StatusCancelled
}

func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusApproved || s == StatusBorrowed
}

// Role identifies who is driving a transition.
type Role string

const (
	RoleMember Role = "MEMBER"
	RoleAdmin  Role = "ADMIN"
)

// Actor is the authenticated caller of an engine operation.
type Actor struct {
	UserID string
	Role   Role
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// Request tracks one member's borrowing of one book.
type Request struct {
	ID           string     `json:"id"`
	BookID       string     `json:"book_id"`
	UserID       string     `json:"user_id"`
	Status       Status     `json:"status"`
	RequestDate  *time.Time `json:"request_date,omitempty"`
	ApprovalDate *time.Time `json:"approval_date,omitempty"`
	BorrowDate   *time.Time `json:"borrow_date,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	ReturnDate   *time.Time `json:"return_date,omitempty"`
	AdminNotes   string     `json:"admin_notes,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	BookTitle  string `json:"book_title,omitempty"`
	BookAuthor string `json:"book_author,omitempty"`
	UserEmail  string `json:"user_email,omitempty"`
	Username   string `json:"username,omitempty"`
}

// IsOverdue reports whether a borrowed copy is past its due date at t.
func (r Request) IsOverdue(t time.Time) bool {
	return r.Status == StatusBorrowed && r.DueDate != nil && t.After(*r.DueDate)
}

// Query filters borrow request listings.
type Query struct {
	Status     Status
	ActiveOnly bool
	UserID     string
	BookID     string
	Search     string
	After      pagination.Cursor
	Limit      int
}

// Page is one slice of a listing plus the cursor for the next one.
type Page struct {
	Items      []Request `json:"items"`
	NextCursor string    `json:"next_cursor,omitempty"`
}
