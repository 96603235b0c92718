package borrow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"lendingapi/internal/platform/pagination"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxNotesLength  = 500
)

// Service is the borrow lifecycle engine. It owns the status of every borrow
// request and keeps book availability in step with it.
type Service struct {
	store      Store
	loanPeriod time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(store Store, loanPeriod time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      store,
		loanPeriod: loanPeriod,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Request files a pending borrow request for the actor.
func (s *Service) Request(ctx context.Context, actor Actor, bookID string) (Request, error) {
	return s.create(ctx, actor, bookID, ActionRequest, nil, nil)
}

// BorrowDirect lends a copy immediately, skipping approval. A zero
// borrowDate means now; a zero dueDate means one loan period later.
func (s *Service) BorrowDirect(ctx context.Context, actor Actor, bookID string, borrowDate, dueDate time.Time) (Request, error) {
	if borrowDate.IsZero() {
		borrowDate = s.now()
	}
	if dueDate.IsZero() {
		dueDate = borrowDate.Add(s.loanPeriod)
	}
	if !dueDate.After(borrowDate) {
		return Request{}, ErrInvalidDueDate
	}
	return s.create(ctx, actor, bookID, ActionBorrowDirect, &borrowDate, &dueDate)
}

func (s *Service) create(ctx context.Context, actor Actor, bookID string, action Action, borrowDate, dueDate *time.Time) (Request, error) {
	t, err := Decide(statusNone, action, actor.Role)
	if err != nil {
		return Request{}, s.rejected(action, "", actor, err)
	}

	var out Request
	err = s.store.InTx(ctx, func(tx Tx) error {
		// The book row lock serialises competing creations for the same book.
		stock, err := tx.LockStock(ctx, bookID)
		if err != nil {
			return err
		}

		if _, err := tx.LockActive(ctx, bookID, actor.UserID); err == nil {
			return ErrActiveRequestExists
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		if t.Effect == StockTake {
			if stock, err = stock.Decrement(); err != nil {
				return err
			}
			if err := tx.SaveStock(ctx, bookID, stock); err != nil {
				return err
			}
		}

		now := s.now()
		req := Request{
			BookID:      bookID,
			UserID:      actor.UserID,
			Status:      t.To,
			RequestDate: &now,
			BorrowDate:  borrowDate,
			DueDate:     dueDate,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.InsertRequest(ctx, &req); err != nil {
			return err
		}
		out = req
		return nil
	})
	if err != nil {
		return Request{}, s.rejected(action, bookID, actor, err)
	}

	s.logger.Info("borrow request created",
		"request_id", out.ID, "book_id", bookID, "user_id", actor.UserID,
		"action", string(action), "status", string(out.Status))
	return out, nil
}

func (s *Service) Approve(ctx context.Context, actor Actor, id, notes string) (Request, error) {
	return s.transition(ctx, actor, ActionApprove, notes, id, byID(id))
}

func (s *Service) Reject(ctx context.Context, actor Actor, id, notes string) (Request, error) {
	return s.transition(ctx, actor, ActionReject, notes, id, byID(id))
}

func (s *Service) Cancel(ctx context.Context, actor Actor, id string) (Request, error) {
	return s.transition(ctx, actor, ActionCancel, "", id, byID(id))
}

func (s *Service) ConfirmBorrow(ctx context.Context, actor Actor, id, notes string) (Request, error) {
	return s.transition(ctx, actor, ActionConfirmBorrow, notes, id, byID(id))
}

func (s *Service) ConfirmReturn(ctx context.Context, actor Actor, id, notes string) (Request, error) {
	return s.transition(ctx, actor, ActionConfirmReturn, notes, id, byID(id))
}

// ReturnBook is the member returning their own borrowed copy.
func (s *Service) ReturnBook(ctx context.Context, actor Actor, id string) (Request, error) {
	return s.transition(ctx, actor, ActionReturn, "", id, byID(id))
}

// ReturnByBook returns the copy of bookID the actor currently holds.
func (s *Service) ReturnByBook(ctx context.Context, actor Actor, bookID string) (Request, error) {
	return s.transition(ctx, actor, ActionReturn, "", bookID, func(ctx context.Context, tx Tx) (Request, error) {
		return tx.LockActive(ctx, bookID, actor.UserID)
	})
}

type locator func(ctx context.Context, tx Tx) (Request, error)

func byID(id string) locator {
	return func(ctx context.Context, tx Tx) (Request, error) {
		return tx.LockRequest(ctx, id)
	}
}

// transition locates a request and applies action to it. ref is what the
// caller identified the request by and is only used for logging.
func (s *Service) transition(ctx context.Context, actor Actor, action Action, notes, ref string, locate locator) (Request, error) {
	notes = strings.TrimSpace(notes)
	if utf8.RuneCountInString(notes) > maxNotesLength {
		return Request{}, s.rejected(action, ref, actor, ErrNotesTooLong)
	}

	var out Request
	err := s.store.InTx(ctx, func(tx Tx) error {
		req, err := locate(ctx, tx)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && req.UserID != actor.UserID {
			return ErrNotFound
		}

		t, err := Decide(req.Status, action, actor.Role)
		if err != nil {
			return err
		}

		if t.Effect != StockNone {
			stock, err := tx.LockStock(ctx, req.BookID)
			if err != nil {
				return err
			}
			switch t.Effect {
			case StockTake:
				if stock, err = stock.Decrement(); err != nil {
					return err
				}
			case StockGive:
				stock = stock.Increment()
			}
			if err := tx.SaveStock(ctx, req.BookID, stock); err != nil {
				return err
			}
		}

		now := s.now()
		req.advance(t, action, now, now.Add(s.loanPeriod), notes)
		if err := tx.UpdateRequest(ctx, &req); err != nil {
			return err
		}
		out = req
		return nil
	})
	if err != nil {
		return Request{}, s.rejected(action, ref, actor, err)
	}

	s.logger.Info("borrow request transitioned",
		"request_id", out.ID, "book_id", out.BookID, "user_id", out.UserID,
		"actor_id", actor.UserID, "action", string(action), "status", string(out.Status))
	return out, nil
}

func (s *Service) rejected(action Action, ref string, actor Actor, err error) error {
	s.logger.Debug("borrow action rejected",
		"action", string(action), "ref", ref, "actor_id", actor.UserID, "error", err)
	return err
}

// Get returns a request visible to the actor.
func (s *Service) Get(ctx context.Context, actor Actor, id string) (Request, error) {
	req, err := s.store.GetByID(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if !actor.IsAdmin() && req.UserID != actor.UserID {
		// Members do not learn about other members' requests.
		return Request{}, ErrNotFound
	}
	return req, nil
}

// StatusFor returns the actor's active request for bookID, or ErrNotFound.
func (s *Service) StatusFor(ctx context.Context, actor Actor, bookID string) (Request, error) {
	items, err := s.store.List(ctx, Query{
		ActiveOnly: true,
		UserID:     actor.UserID,
		BookID:     bookID,
		Limit:      1,
	})
	if err != nil {
		return Request{}, err
	}
	if len(items) == 0 {
		return Request{}, ErrNotFound
	}
	return items[0], nil
}

// ListMine lists the actor's own requests, newest first.
func (s *Service) ListMine(ctx context.Context, actor Actor, q Query) (Page, error) {
	q.UserID = actor.UserID
	return s.list(ctx, q)
}

// List lists every request. Administrators only.
func (s *Service) List(ctx context.Context, actor Actor, q Query) (Page, error) {
	if !actor.IsAdmin() {
		return Page{}, ErrForbidden
	}
	return s.list(ctx, q)
}

func (s *Service) list(ctx context.Context, q Query) (Page, error) {
	if q.Limit <= 0 || q.Limit > maxPageSize {
		q.Limit = defaultPageSize
	}
	limit := q.Limit
	q.Limit = limit + 1

	items, err := s.store.List(ctx, q)
	if err != nil {
		return Page{}, err
	}

	page := Page{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		last := page.Items[limit-1]
		page.NextCursor = pagination.Encode(pagination.After(last.ID, last.CreatedAt))
	}
	if page.Items == nil {
		page.Items = []Request{}
	}
	return page, nil
}
