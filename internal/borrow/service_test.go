package borrow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendingapi/internal/platform/pagination"
)

var (
	admin  = Actor{UserID: "admin-1", Role: RoleAdmin}
	alice  = Actor{UserID: "user-alice", Role: RoleMember}
	bob    = Actor{UserID: "user-bob", Role: RoleMember}
	loanOf = 7 * 24 * time.Hour
)

func newTestService(t *testing.T) (*Service, *memStore, *stepClock) {
	t.Helper()
	store := newMemStore()
	clock := newStepClock()
	svc := NewService(store, loanOf, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = clock.Now
	return svc, store, clock
}

func TestService_RequestApproveConfirmBorrow(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.putBook("book-1", 3, 3)
	ctx := context.Background()

	req, err := svc.Request(ctx, alice, "book-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, req.Status)
	assert.NotNil(t, req.RequestDate)

	req, err = svc.Approve(ctx, admin, req.ID, "looks fine")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, req.Status)
	assert.Equal(t, 3, store.bookStock("book-1").Available())

	req, err = svc.ConfirmBorrow(ctx, admin, req.ID, "")
	require.NoError(t, err)
	assert.Equal(t, StatusBorrowed, req.Status)
	assert.Equal(t, 2, store.bookStock("book-1").Available())
	require.NotNil(t, req.BorrowDate)
	require.NotNil(t, req.DueDate)
	assert.Equal(t, loanOf, req.DueDate.Sub(*req.BorrowDate))
	assert.Equal(t, "looks fine", req.AdminNotes)
}

func TestService_ConfirmBorrowOutOfStockLeavesStatus(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.putBook("book-1", 2, 0)
	store.putRequest(Request{ID: "r1", BookID: "book-1", UserID: alice.UserID, Status: StatusApproved})

	_, err := svc.ConfirmBorrow(context.Background(), admin, "r1", "")
	assert.ErrorIs(t, err, ErrOutOfStock)
	assert.Equal(t, StatusApproved, store.request("r1").Status)
	assert.Equal(t, 0, store.bookStock("book-1").Available())
}

func TestService_ConcurrentApproveAndReject(t *testing.T) {
	for i := 0; i < 20; i++ {
		svc, store, _ := newTestService(t)
		store.putBook("book-1", 1, 1)
		store.putRequest(Request{ID: "r1", BookID: "book-1", UserID: alice.UserID, Status: StatusPending})

		var wg sync.WaitGroup
		errs := make([]error, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, errs[0] = svc.Approve(context.Background(), admin, "r1", "")
		}()
		go func() {
			defer wg.Done()
			_, errs[1] = svc.Reject(context.Background(), Actor{UserID: "admin-2", Role: RoleAdmin}, "r1", "")
		}()
		wg.Wait()

		var ok, lost int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrInvalidTransition):
				lost++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, 1, lost)

		final := store.request("r1").Status
		if errs[0] == nil {
			assert.Equal(t, StatusApproved, final)
		} else {
			assert.Equal(t, StatusRejected, final)
		}
	}
}

func TestService_ConfirmReturnIncrements(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.putBook("book-1", 5, 2)
	store.putRequest(Request{ID: "r1", BookID: "book-1", UserID: alice.UserID, Status: StatusBorrowed})

	req, err := svc.ConfirmReturn(context.Background(), admin, "r1", "")
	require.NoError(t, err)
	assert.Equal(t, StatusReturned, req.Status)
	assert.NotNil(t, req.ReturnDate)
	assert.Equal(t, 3, store.bookStock("book-1").Available())

	_, err = svc.ConfirmReturn(context.Background(), admin, "r1", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 3, store.bookStock("book-1").Available(), "no double increment")
}

func TestService_CancelOnlyFromPending(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.putBook("book-1", 1, 1)
	store.putRequest(Request{ID: "r1", BookID: "book-1", UserID: alice.UserID, Status: StatusApproved})
	store.putRequest(Request{ID: "r2", BookID: "book-1", UserID: bob.UserID, Status: StatusPending})

	_, err := svc.Cancel(context.Background(), alice, "r1")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusApproved, store.request("r1").Status)

	req, err := svc.Cancel(context.Background(), bob, "r2")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, req.Status)
}

func TestService_OwnershipAndRoles(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.putBook("book-1", 1, 1)
	store.putRequest(Request{ID: "r1", BookID: "book-1", UserID: alice.UserID, Status: StatusPending})
	ctx := context.Background()

	// Another member's request looks the same as a missing one.
	_, err := svc.Cancel(ctx, bob, "r1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.ReturnBook(ctx, bob, "r1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, StatusPending, store.request("r1").Status)

	_, err = svc.Approve(ctx, alice, "r1", "")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Request(ctx, admin, "book-1")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Get(ctx, bob, "r1")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := svc.Get(ctx, admin, "r1")
	require.NoError(t, err)
	assert.Equal(t, alice.UserID, got.UserID)

	_, err = svc.List(ctx, alice, Query{})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestService_RequestRules(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.putBook("book-1", 1, 0)
	ctx := context.Background()

	_, err := svc.Request(ctx, alice, "missing")
	assert.ErrorIs(t, err, ErrBookNotFound)

	// A pending request does not need a copy on the shelf.
	first, err := svc.Request(ctx, alice, "book-1")
	require.NoError(t, err)

	_, err = svc.Request(ctx, alice, "book-1")
	assert.ErrorIs(t, err, ErrActiveRequestExists)

	_, err = svc.Cancel(ctx, alice, first.ID)
	require.NoError(t, err)

	_, err = svc.Request(ctx, alice, "book-1")
	assert.NoError(t, err, "a terminal request frees the slot")
}

func TestService_BorrowDirect(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.putBook("book-1", 2, 1)
	ctx := context.Background()

	t.Run("defaults dates", func(t *testing.T) {
		req, err := svc.BorrowDirect(ctx, alice, "book-1", time.Time{}, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, StatusBorrowed, req.Status)
		require.NotNil(t, req.DueDate)
		assert.Equal(t, loanOf, req.DueDate.Sub(*req.BorrowDate))
		assert.Equal(t, 0, store.bookStock("book-1").Available())
	})

	t.Run("out of stock", func(t *testing.T) {
		_, err := svc.BorrowDirect(ctx, bob, "book-1", time.Time{}, time.Time{})
		assert.ErrorIs(t, err, ErrOutOfStock)
		page, err := svc.ListMine(ctx, bob, Query{})
		require.NoError(t, err)
		assert.Empty(t, page.Items, "nothing written")
	})

	t.Run("due before borrow", func(t *testing.T) {
		now := time.Now()
		_, err := svc.BorrowDirect(ctx, bob, "book-1", now, now.Add(-time.Hour))
		assert.ErrorIs(t, err, ErrInvalidDueDate)
	})
}

func TestService_ReturnByBook(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.putBook("book-1", 1, 1)
	ctx := context.Background()

	_, err := svc.ReturnByBook(ctx, alice, "book-1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.BorrowDirect(ctx, alice, "book-1", time.Time{}, time.Time{})
	require.NoError(t, err)

	req, err := svc.ReturnByBook(ctx, alice, "book-1")
	require.NoError(t, err)
	assert.Equal(t, StatusReturned, req.Status)
	assert.Equal(t, 1, store.bookStock("book-1").Available())

	_, err = svc.StatusFor(ctx, alice, "book-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_NoOversellUnderContention(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.putBook("book-1", 3, 3)

	const members = 12
	var wg sync.WaitGroup
	var mu sync.Mutex
	var borrowed, outOfStock int
	for i := 0; i < members; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := Actor{UserID: fmt.Sprintf("member-%d", i), Role: RoleMember}
			_, err := svc.BorrowDirect(context.Background(), actor, "book-1", time.Time{}, time.Time{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				borrowed++
			case errors.Is(err, ErrOutOfStock):
				outOfStock++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 3, borrowed)
	assert.Equal(t, members-3, outOfStock)
	assert.Equal(t, 0, store.bookStock("book-1").Available())
}

func TestService_RetryAfterFailedCommitAppliesOnce(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.putBook("book-1", 2, 2)
	store.putRequest(Request{ID: "r1", BookID: "book-1", UserID: alice.UserID, Status: StatusApproved})
	ctx := context.Background()

	store.failCommit = fmt.Errorf("%w: connection reset", ErrUnavailable)
	for i := 0; i < 3; i++ {
		_, err := svc.ConfirmBorrow(ctx, admin, "r1", "")
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.Equal(t, StatusApproved, store.request("r1").Status)
		assert.Equal(t, 2, store.bookStock("book-1").Available())
	}

	store.failCommit = nil
	_, err := svc.ConfirmBorrow(ctx, admin, "r1", "")
	require.NoError(t, err)
	_, err = svc.ConfirmBorrow(ctx, admin, "r1", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 1, store.bookStock("book-1").Available())
}

func TestService_ListPagination(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("book-%d", i)
		store.putBook(id, 1, 1)
		_, err := svc.Request(ctx, alice, id)
		require.NoError(t, err)
	}
	store.putBook("other", 1, 1)
	_, err := svc.Request(ctx, bob, "other")
	require.NoError(t, err)

	page, err := svc.ListMine(ctx, alice, Query{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "book-4", page.Items[0].BookID, "newest first")
	require.NotEmpty(t, page.NextCursor)

	var seen []string
	for _, r := range page.Items {
		seen = append(seen, r.BookID)
	}
	for page.NextCursor != "" {
		after, err := pagination.Decode(page.NextCursor)
		require.NoError(t, err)
		page, err = svc.ListMine(ctx, alice, Query{Limit: 2, After: after})
		require.NoError(t, err)
		for _, r := range page.Items {
			seen = append(seen, r.BookID)
		}
	}
	assert.Equal(t, []string{"book-4", "book-3", "book-2", "book-1", "book-0"}, seen)

	all, err := svc.List(ctx, admin, Query{})
	require.NoError(t, err)
	assert.Len(t, all.Items, 6)
	assert.Empty(t, all.NextCursor)
}

func TestService_StatusFor(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.putBook("book-1", 1, 1)
	ctx := context.Background()

	req, err := svc.Request(ctx, alice, "book-1")
	require.NoError(t, err)

	got, err := svc.StatusFor(ctx, alice, "book-1")
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)

	_, err = svc.StatusFor(ctx, bob, "book-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_NotesLength(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.putBook("book-1", 2, 2)
	store.putRequest(Request{ID: "r1", BookID: "book-1", UserID: alice.UserID, Status: StatusPending})
	store.putRequest(Request{ID: "r2", BookID: "book-1", UserID: bob.UserID, Status: StatusPending})
	ctx := context.Background()

	// 500 characters but 999 bytes.
	note := "a" + strings.Repeat("é", 499)

	req, err := svc.Approve(ctx, admin, "r1", "  "+note+"  ")
	require.NoError(t, err)
	assert.Equal(t, note, req.AdminNotes)
	assert.True(t, utf8.ValidString(store.request("r1").AdminNotes))

	_, err = svc.Reject(ctx, admin, "r2", note+"é")
	assert.ErrorIs(t, err, ErrNotesTooLong)
	assert.Equal(t, StatusPending, store.request("r2").Status)
	assert.Empty(t, store.request("r2").AdminNotes)
}

func TestService_RejectedActionLogsReference(t *testing.T) {
	var buf bytes.Buffer
	store := newMemStore()
	store.putBook("book-1", 1, 1)
	store.putRequest(Request{ID: "r1", BookID: "book-1", UserID: alice.UserID, Status: StatusPending})
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	svc := NewService(store, loanOf, logger)
	ctx := context.Background()

	_, err := svc.ConfirmReturn(ctx, admin, "r1", "")
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Contains(t, buf.String(), "ref=r1")

	buf.Reset()
	_, err = svc.ReturnByBook(ctx, bob, "book-1")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, buf.String(), "ref=book-1")
}
