package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"lendingapi/internal/book"
	"lendingapi/internal/borrow"
	"lendingapi/internal/tokenstore"
	"lendingapi/internal/user"
)

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// Session is one of the caller's logged-in sessions.
type Session struct {
	ID         string `json:"id"`
	UserAgent  string `json:"user_agent"`
	IPAddress  string `json:"ip_address"`
	CreatedAt  string `json:"created_at"`
	LastUsedAt string `json:"last_used_at"`
	ExpiresAt  string `json:"expires_at"`
	IsCurrent  bool   `json:"is_current"`
}

// Register creates a member account. It does not log in.
func (c *Client) Register(ctx context.Context, email, username, password string) (user.User, error) {
	var u user.User
	err := c.do(ctx, call{
		method:    http.MethodPost,
		path:      "/v1/auth/register",
		body:      map[string]string{"email": email, "username": username, "password": password},
		anonymous: true,
	}, &u, nil)
	return u, err
}

// Login authenticates and keeps the issued tokens in the store.
func (c *Client) Login(ctx context.Context, email, password string, rememberMe bool) error {
	var tokens tokenPair
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/v1/auth/login",
		body: map[string]interface{}{
			"email":       email,
			"password":    password,
			"remember_me": rememberMe,
		},
		anonymous: true,
	}, &tokens, nil)
	if err != nil {
		return err
	}
	return c.tokens.Set(ctx, tokenstore.Tokens{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken})
}

// Logout ends the server session and forgets the stored tokens. The tokens
// are dropped even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, call{method: http.MethodPost, path: "/v1/auth/logout"}, nil, nil)
	if clearErr := c.tokens.Clear(ctx); clearErr != nil {
		return errors.Join(err, clearErr)
	}
	if errors.Is(err, ErrUnauthorized) {
		return nil
	}
	return err
}

func (c *Client) Me(ctx context.Context) (user.User, error) {
	var u user.User
	err := c.do(ctx, call{method: http.MethodGet, path: "/v1/me"}, &u, nil)
	return u, err
}

// UpdateProfile changes the caller's username and/or email. Empty arguments
// are left unchanged.
func (c *Client) UpdateProfile(ctx context.Context, username, email string) (user.User, error) {
	body := map[string]string{}
	if username != "" {
		body["username"] = username
	}
	if email != "" {
		body["email"] = email
	}
	var u user.User
	err := c.do(ctx, call{method: http.MethodPatch, path: "/v1/me", body: body}, &u, nil)
	return u, err
}

// ChangePassword sets a new password. The server signs out every other
// session; the number it ended is returned.
func (c *Client) ChangePassword(ctx context.Context, current, next string) (int, error) {
	var out struct {
		RevokedSessions int `json:"revoked_sessions"`
	}
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/v1/auth/password",
		body:   map[string]string{"current_password": current, "new_password": next},
	}, &out, nil)
	return out.RevokedSessions, err
}

func (c *Client) Sessions(ctx context.Context) ([]Session, error) {
	var out []Session
	err := c.do(ctx, call{method: http.MethodGet, path: "/v1/me/sessions"}, &out, nil)
	return out, err
}

func (c *Client) RevokeSession(ctx context.Context, id string) error {
	return c.do(ctx, call{method: http.MethodDelete, path: "/v1/me/sessions/" + url.PathEscape(id)}, nil, nil)
}

// BookFilter narrows a catalogue listing. Zero values are left out.
type BookFilter struct {
	Search        string
	Genre         string
	Author        string
	AvailableOnly bool
	Sort          string
	Desc          bool
	Page          int
	PageSize      int
}

func (f BookFilter) values() url.Values {
	v := url.Values{}
	set := func(k, s string) {
		if s != "" {
			v.Set(k, s)
		}
	}
	set("search", f.Search)
	set("genre", f.Genre)
	set("author", f.Author)
	set("sort", f.Sort)
	if f.AvailableOnly {
		v.Set("available_only", "true")
	}
	if f.Desc {
		v.Set("desc", "true")
	}
	if f.Page > 0 {
		v.Set("page", strconv.Itoa(f.Page))
	}
	if f.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(f.PageSize))
	}
	return v
}

type BookPage struct {
	Items      []book.Book
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// ListBooks browses the catalogue. It needs no login.
func (c *Client) ListBooks(ctx context.Context, f BookFilter) (BookPage, error) {
	var page BookPage
	err := c.do(ctx, call{method: http.MethodGet, path: "/v1/books", query: f.values(), anonymous: true}, &page.Items, &page)
	if page.Items == nil {
		page.Items = []book.Book{}
	}
	return page, err
}

func (c *Client) FindBookByID(ctx context.Context, id string) (book.Book, error) {
	var b book.Book
	err := c.do(ctx, call{method: http.MethodGet, path: "/v1/books/" + url.PathEscape(id), anonymous: true}, &b, nil)
	return b, err
}

func (c *Client) CreateBook(ctx context.Context, in book.CreateInput) (book.Book, error) {
	var b book.Book
	err := c.do(ctx, call{method: http.MethodPost, path: "/v1/books", body: in}, &b, nil)
	return b, err
}

func (c *Client) UpdateBook(ctx context.Context, id string, in book.UpdateInput) (book.Book, error) {
	var b book.Book
	err := c.do(ctx, call{method: http.MethodPut, path: "/v1/books/" + url.PathEscape(id), body: in}, &b, nil)
	return b, err
}

func (c *Client) DeleteBook(ctx context.Context, id string) error {
	return c.do(ctx, call{method: http.MethodDelete, path: "/v1/books/" + url.PathEscape(id)}, nil, nil)
}

// AdjustStock adds delta copies to a book, or removes them when negative.
func (c *Client) AdjustStock(ctx context.Context, id string, delta int) (book.Book, error) {
	var b book.Book
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/v1/books/" + url.PathEscape(id) + "/stock",
		body:   map[string]int{"delta": delta},
	}, &b, nil)
	return b, err
}

// ImportBook creates a book from the Open Library record for isbn.
func (c *Client) ImportBook(ctx context.Context, isbn string, totalCopies int) (book.Book, error) {
	var b book.Book
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/v1/books/import",
		body:   map[string]interface{}{"isbn": isbn, "total_copies": totalCopies},
	}, &b, nil)
	return b, err
}

// BorrowFilter narrows a borrowing listing. UserID is honoured for
// administrators only.
type BorrowFilter struct {
	Status string
	Active bool
	BookID string
	UserID string
	Search string
	Cursor string
	Limit  int
}

func (f BorrowFilter) values() url.Values {
	v := url.Values{}
	set := func(k, s string) {
		if s != "" {
			v.Set(k, s)
		}
	}
	set("status", f.Status)
	set("book_id", f.BookID)
	set("user_id", f.UserID)
	set("q", f.Search)
	set("cursor", f.Cursor)
	if f.Active {
		v.Set("active", "true")
	}
	if f.Limit > 0 {
		v.Set("limit", strconv.Itoa(f.Limit))
	}
	return v
}

type BorrowPage struct {
	Items      []borrow.View
	NextCursor string `json:"next_cursor"`
	Count      int    `json:"count"`
}

// RequestBorrow files a pending request for an administrator to approve.
func (c *Client) RequestBorrow(ctx context.Context, bookID string) (borrow.View, error) {
	var v borrow.View
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/v1/borrowings/requests",
		body:   map[string]string{"book_id": bookID},
	}, &v, nil)
	return v, err
}

// BorrowBook takes a copy right away. Zero dates leave the choice to the
// server: now, and one loan period later.
func (c *Client) BorrowBook(ctx context.Context, bookID string, borrowDate, dueDate time.Time) (borrow.View, error) {
	body := map[string]interface{}{"book_id": bookID}
	if !borrowDate.IsZero() {
		body["borrow_date"] = borrowDate
	}
	if !dueDate.IsZero() {
		body["due_date"] = dueDate
	}

	var v borrow.View
	err := c.do(ctx, call{method: http.MethodPost, path: "/v1/borrowings", body: body}, &v, nil)
	return v, err
}

func (c *Client) GetBorrowing(ctx context.Context, id string) (borrow.View, error) {
	var v borrow.View
	err := c.do(ctx, call{method: http.MethodGet, path: "/v1/borrowings/" + url.PathEscape(id)}, &v, nil)
	return v, err
}

// BorrowStatus returns the caller's active borrowing of bookID, or nil when
// there is none.
func (c *Client) BorrowStatus(ctx context.Context, bookID string) (*borrow.View, error) {
	var (
		v    borrow.View
		meta struct {
			Active bool `json:"active"`
		}
	)
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/v1/borrowings/status",
		query:  url.Values{"book_id": {bookID}},
	}, &v, &meta)
	if err != nil || !meta.Active {
		return nil, err
	}
	return &v, nil
}

func (c *Client) ListMyBorrowings(ctx context.Context, f BorrowFilter) (BorrowPage, error) {
	f.UserID = ""
	return c.listBorrowings(ctx, "/v1/borrowings/me", f)
}

// ListBorrowings lists every member's borrowings. Administrators only.
func (c *Client) ListBorrowings(ctx context.Context, f BorrowFilter) (BorrowPage, error) {
	return c.listBorrowings(ctx, "/v1/borrowings", f)
}

func (c *Client) listBorrowings(ctx context.Context, path string, f BorrowFilter) (BorrowPage, error) {
	var page BorrowPage
	err := c.do(ctx, call{method: http.MethodGet, path: path, query: f.values()}, &page.Items, &page)
	if page.Items == nil {
		page.Items = []borrow.View{}
	}
	return page, err
}

func (c *Client) CancelBorrowing(ctx context.Context, id string) (borrow.View, error) {
	return c.borrowAction(ctx, id, "cancel", nil)
}

// ReturnBook returns the borrowed copy held under borrowing id.
func (c *Client) ReturnBook(ctx context.Context, id string) (borrow.View, error) {
	return c.borrowAction(ctx, id, "return", nil)
}

// ReturnByBook returns the copy of bookID the caller holds.
func (c *Client) ReturnByBook(ctx context.Context, bookID string) (borrow.View, error) {
	var v borrow.View
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/v1/borrowings/return",
		body:   map[string]string{"book_id": bookID},
	}, &v, nil)
	return v, err
}

func (c *Client) Approve(ctx context.Context, id, notes string) (borrow.View, error) {
	return c.borrowAction(ctx, id, "approve", notesBody(notes))
}

func (c *Client) Reject(ctx context.Context, id, notes string) (borrow.View, error) {
	return c.borrowAction(ctx, id, "reject", notesBody(notes))
}

func (c *Client) ConfirmBorrow(ctx context.Context, id, notes string) (borrow.View, error) {
	return c.borrowAction(ctx, id, "confirm-borrow", notesBody(notes))
}

func (c *Client) ConfirmReturn(ctx context.Context, id, notes string) (borrow.View, error) {
	return c.borrowAction(ctx, id, "confirm-return", notesBody(notes))
}

func notesBody(notes string) map[string]string {
	return map[string]string{"notes": notes}
}

func (c *Client) borrowAction(ctx context.Context, id, action string, body interface{}) (borrow.View, error) {
	var v borrow.View
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/v1/borrowings/" + url.PathEscape(id) + "/" + action,
		body:   body,
	}, &v, nil)
	return v, err
}
