package borrow

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lendingapi/internal/httpx"
	"lendingapi/internal/platform/pagination"
)

type HTTPHandler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

// Register mounts the borrowing routes on mux.
func (h *HTTPHandler) Register(mux *http.ServeMux, g httpx.Guards) {
	mux.Handle("POST /v1/borrowings/requests", g.Member(h.Request))
	mux.Handle("POST /v1/borrowings", g.Member(h.BorrowDirect))
	mux.Handle("GET /v1/borrowings/me", g.Member(h.ListMine))
	mux.Handle("GET /v1/borrowings/status", g.Member(h.Status))
	mux.Handle("POST /v1/borrowings/return", g.Member(h.ReturnByBook))
	mux.Handle("GET /v1/borrowings/{id}", g.Member(h.Get))
	mux.Handle("POST /v1/borrowings/{id}/cancel", g.Member(h.Cancel))
	mux.Handle("POST /v1/borrowings/{id}/return", g.Member(h.Return))

	mux.Handle("GET /v1/borrowings", g.AdminOnly(h.List))
	mux.Handle("POST /v1/borrowings/{id}/approve", g.AdminOnly(h.Approve))
	mux.Handle("POST /v1/borrowings/{id}/reject", g.AdminOnly(h.Reject))
	mux.Handle("POST /v1/borrowings/{id}/confirm-borrow", g.AdminOnly(h.ConfirmBorrow))
	mux.Handle("POST /v1/borrowings/{id}/confirm-return", g.AdminOnly(h.ConfirmReturn))
}

// View is a borrow request as the API returns it: the record plus what the
// caller may do with it next.
type View struct {
	Request
	Overdue bool     `json:"overdue"`
	Actions []Action `json:"actions"`
}

func newView(req Request, role Role, now time.Time) View {
	return View{
		Request: req,
		Overdue: req.IsOverdue(now),
		Actions: AvailableActions(req.Status, role),
	}
}

type bookRequest struct {
	BookID string `json:"book_id" validate:"required,uuid"`
}

type borrowDirectRequest struct {
	BookID     string     `json:"book_id" validate:"required,uuid"`
	BorrowDate *time.Time `json:"borrow_date"`
	DueDate    *time.Time `json:"due_date"`
}

type notesRequest struct {
	Notes string `json:"notes" validate:"max=500"`
}

func actorFrom(r *http.Request) Actor {
	return Actor{UserID: httpx.UserIDFrom(r), Role: Role(httpx.RoleFrom(r))}
}

// Request handles POST /v1/borrowings/requests
func (h *HTTPHandler) Request(w http.ResponseWriter, r *http.Request) {
	var in bookRequest
	if !httpx.DecodeAndValidate(w, r, &in, false) {
		return
	}
	actor := actorFrom(r)
	req, err := h.service.Request(r.Context(), actor, in.BookID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSONCreated(w, r, newView(req, actor.Role, h.service.now()))
}

// BorrowDirect handles POST /v1/borrowings
func (h *HTTPHandler) BorrowDirect(w http.ResponseWriter, r *http.Request) {
	var in borrowDirectRequest
	if !httpx.DecodeAndValidate(w, r, &in, false) {
		return
	}
	var borrowDate, dueDate time.Time
	if in.BorrowDate != nil {
		borrowDate = in.BorrowDate.UTC()
	}
	if in.DueDate != nil {
		dueDate = in.DueDate.UTC()
	}

	actor := actorFrom(r)
	req, err := h.service.BorrowDirect(r.Context(), actor, in.BookID, borrowDate, dueDate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSONCreated(w, r, newView(req, actor.Role, h.service.now()))
}

// ReturnByBook handles POST /v1/borrowings/return
func (h *HTTPHandler) ReturnByBook(w http.ResponseWriter, r *http.Request) {
	var in bookRequest
	if !httpx.DecodeAndValidate(w, r, &in, false) {
		return
	}
	actor := actorFrom(r)
	req, err := h.service.ReturnByBook(r.Context(), actor, in.BookID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, newView(req, actor.Role, h.service.now()), nil)
}

// Status handles GET /v1/borrowings/status?book_id=
func (h *HTTPHandler) Status(w http.ResponseWriter, r *http.Request) {
	bookID := r.URL.Query().Get("book_id")
	if bookID == "" {
		httpx.ValidationFailed(w, r, []httpx.ErrorDetail{{Field: "book_id", Message: "book_id is required"}})
		return
	}

	actor := actorFrom(r)
	req, err := h.service.StatusFor(r.Context(), actor, bookID)
	if errors.Is(err, ErrNotFound) {
		// No active request is a normal answer here.
		httpx.JSONSuccess(w, r, nil, map[string]interface{}{"book_id": bookID, "active": false})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, newView(req, actor.Role, h.service.now()), map[string]interface{}{"book_id": bookID, "active": true})
}

// Get handles GET /v1/borrowings/{id}
func (h *HTTPHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	req, err := h.service.Get(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, newView(req, actor.Role, h.service.now()), nil)
}

func (h *HTTPHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	h.respond(w, r, actor)(h.service.Cancel(r.Context(), actor, r.PathValue("id")))
}

func (h *HTTPHandler) Return(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	h.respond(w, r, actor)(h.service.ReturnBook(r.Context(), actor, r.PathValue("id")))
}

func (h *HTTPHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.adminAction(w, r, h.service.Approve)
}

func (h *HTTPHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.adminAction(w, r, h.service.Reject)
}

func (h *HTTPHandler) ConfirmBorrow(w http.ResponseWriter, r *http.Request) {
	h.adminAction(w, r, h.service.ConfirmBorrow)
}

func (h *HTTPHandler) ConfirmReturn(w http.ResponseWriter, r *http.Request) {
	h.adminAction(w, r, h.service.ConfirmReturn)
}

type adminOp func(ctx context.Context, actor Actor, id, notes string) (Request, error)

func (h *HTTPHandler) adminAction(w http.ResponseWriter, r *http.Request, op adminOp) {
	var in notesRequest
	if !httpx.DecodeAndValidate(w, r, &in, true) {
		return
	}
	actor := actorFrom(r)
	h.respond(w, r, actor)(op(r.Context(), actor, r.PathValue("id"), in.Notes))
}

func (h *HTTPHandler) respond(w http.ResponseWriter, r *http.Request, actor Actor) func(Request, error) {
	return func(req Request, err error) {
		if err != nil {
			writeError(w, r, err)
			return
		}
		httpx.JSONSuccess(w, r, newView(req, actor.Role, h.service.now()), nil)
	}
}

// ListMine handles GET /v1/borrowings/me
func (h *HTTPHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	q, ok := parseQuery(w, r)
	if !ok {
		return
	}
	actor := actorFrom(r)
	page, err := h.service.ListMine(r.Context(), actor, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writePage(w, r, actor, page)
}

// List handles GET /v1/borrowings
func (h *HTTPHandler) List(w http.ResponseWriter, r *http.Request) {
	q, ok := parseQuery(w, r)
	if !ok {
		return
	}
	q.UserID = r.URL.Query().Get("user_id")
	actor := actorFrom(r)
	page, err := h.service.List(r.Context(), actor, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writePage(w, r, actor, page)
}

func (h *HTTPHandler) writePage(w http.ResponseWriter, r *http.Request, actor Actor, page Page) {
	now := h.service.now()
	views := make([]View, len(page.Items))
	for i, req := range page.Items {
		views[i] = newView(req, actor.Role, now)
	}
	meta := map[string]interface{}{"count": len(views)}
	if page.NextCursor != "" {
		meta["next_cursor"] = page.NextCursor
	}
	httpx.JSONSuccess(w, r, views, meta)
}

func parseQuery(w http.ResponseWriter, r *http.Request) (Query, bool) {
	query := r.URL.Query()
	q := Query{
		BookID:     query.Get("book_id"),
		Search:     strings.TrimSpace(firstNonEmpty(query.Get("q"), query.Get("search"))),
		ActiveOnly: query.Get("active") == "true",
	}

	if s := query.Get("status"); s != "" {
		st, err := ParseStatus(s)
		if err != nil {
			httpx.ValidationFailed(w, r, []httpx.ErrorDetail{{Field: "status", Message: "status must be one of: pending approved rejected borrowed returned cancelled"}})
			return Query{}, false
		}
		q.Status = st
	}

	after, err := pagination.Decode(query.Get("cursor"))
	if err != nil {
		httpx.ValidationFailed(w, r, []httpx.ErrorDetail{{Field: "cursor", Message: "cursor is invalid"}})
		return Query{}, false
	}
	q.After = after

	if l := query.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 || n > maxPageSize {
			httpx.ValidationFailed(w, r, []httpx.ErrorDetail{{Field: "limit", Message: "limit must be between 1 and " + strconv.Itoa(maxPageSize)}})
			return Query{}, false
		}
		q.Limit = n
	}
	return q, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.NotFound(w, r, "Borrow request not found")
	case errors.Is(err, ErrBookNotFound):
		httpx.NotFound(w, r, "Book not found")
	case errors.Is(err, ErrUserNotFound):
		httpx.NotFound(w, r, "User not found")
	case errors.Is(err, ErrInvalidTransition):
		httpx.JSONError(w, r, http.StatusConflict, "INVALID_TRANSITION", "The request is no longer in a state that allows this action; refresh and try again", nil)
	case errors.Is(err, ErrOutOfStock):
		httpx.JSONError(w, r, http.StatusConflict, "OUT_OF_STOCK", "No copies of this book are available", nil)
	case errors.Is(err, ErrActiveRequestExists):
		httpx.JSONError(w, r, http.StatusConflict, "ACTIVE_REQUEST_EXISTS", "You already have an active request for this book", nil)
	case errors.Is(err, ErrForbidden):
		httpx.Forbidden(w, r)
	case errors.Is(err, ErrNotesTooLong):
		httpx.ValidationFailed(w, r, []httpx.ErrorDetail{{Field: "notes", Message: err.Error()}})
	case errors.Is(err, ErrInvalidDueDate):
		httpx.ValidationFailed(w, r, []httpx.ErrorDetail{{Field: "due_date", Message: err.Error()}})
	case errors.Is(err, pagination.ErrInvalidCursor):
		httpx.ValidationFailed(w, r, []httpx.ErrorDetail{{Field: "cursor", Message: "cursor is invalid"}})
	case errors.Is(err, ErrUnavailable):
		httpx.Unavailable(w, r)
	default:
		httpx.InternalError(w, r)
	}
}
