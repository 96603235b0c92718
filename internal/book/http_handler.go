package book

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"lendingapi/internal/httpx"
)

type HTTPHandler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

// Register mounts the catalog routes on mux. Browsing is public.
func (h *HTTPHandler) Register(mux *http.ServeMux, g httpx.Guards) {
	mux.HandleFunc("GET /v1/books", h.List)
	mux.HandleFunc("GET /v1/books/{id}", h.Get)

	mux.Handle("POST /v1/books", g.AdminOnly(h.Create))
	mux.Handle("POST /v1/books/import", g.AdminOnly(h.Import))
	mux.Handle("PUT /v1/books/{id}", g.AdminOnly(h.Update))
	mux.Handle("DELETE /v1/books/{id}", g.AdminOnly(h.Delete))
	mux.Handle("POST /v1/books/{id}/stock", g.AdminOnly(h.AdjustStock))
}

type stockRequest struct {
	Delta int `json:"delta" validate:"required,gte=-100000,lte=100000"`
}

type importRequest struct {
	ISBN        string `json:"isbn" validate:"required,isbn"`
	TotalCopies int    `json:"total_copies" validate:"gte=0,lte=100000"`
}

// List handles GET /v1/books
func (h *HTTPHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	params := Query{
		Search:        query.Get("search"),
		Genre:         query.Get("genre"),
		Author:        query.Get("author"),
		AvailableOnly: query.Get("available_only") == "true",
		Sort:          query.Get("sort"),
		Desc:          query.Get("desc") == "true",
	}
	if params.Search == "" {
		params.Search = query.Get("q")
	}

	page, _ := strconv.Atoi(query.Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(query.Get("page_size"))
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	params.Limit = pageSize
	params.Offset = (page - 1) * pageSize

	books, total, err := h.service.List(r.Context(), params)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.JSONSuccess(w, r, books, map[string]any{
		"page":        page,
		"page_size":   pageSize,
		"total":       total,
		"total_pages": (total + pageSize - 1) / pageSize,
	})
}

// Get handles GET /v1/books/{id}
func (h *HTTPHandler) Get(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, b, nil)
}

// Create handles POST /v1/books
func (h *HTTPHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if !httpx.DecodeAndValidate(w, r, &in, false) {
		return
	}
	b, err := h.service.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSONCreated(w, r, b)
}

// Update handles PUT /v1/books/{id}
func (h *HTTPHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in UpdateInput
	if !httpx.DecodeAndValidate(w, r, &in, false) {
		return
	}
	b, err := h.service.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, b, nil)
}

// AdjustStock handles POST /v1/books/{id}/stock
func (h *HTTPHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var in stockRequest
	if !httpx.DecodeAndValidate(w, r, &in, false) {
		return
	}
	b, err := h.service.AdjustStock(r.Context(), r.PathValue("id"), in.Delta)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, b, nil)
}

// Delete handles DELETE /v1/books/{id}
func (h *HTTPHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSONSuccessNoContent(w)
}

// Import handles POST /v1/books/import
func (h *HTTPHandler) Import(w http.ResponseWriter, r *http.Request) {
	var in importRequest
	if !httpx.DecodeAndValidate(w, r, &in, false) {
		return
	}
	b, err := h.service.ImportByISBN(r.Context(), in.ISBN, in.TotalCopies)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSONCreated(w, r, b)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.NotFound(w, r, "Book not found")
	case errors.Is(err, ErrMetadataNotFound):
		httpx.NotFound(w, r, "No metadata found for this ISBN")
	case errors.Is(err, ErrDuplicateISBN):
		httpx.JSONError(w, r, http.StatusConflict, "DUPLICATE_ISBN", "A book with this ISBN already exists", nil)
	case errors.Is(err, ErrInUse):
		httpx.JSONError(w, r, http.StatusConflict, "BOOK_IN_USE", "The book has active borrow requests", nil)
	case errors.Is(err, ErrInvalidStock):
		httpx.JSONError(w, r, http.StatusUnprocessableEntity, "INVALID_STOCK", stockMessage(err), nil)
	case errors.Is(err, ErrUnavailable):
		httpx.Unavailable(w, r)
	default:
		httpx.InternalError(w, r)
	}
}

func stockMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, ": "); i >= 0 {
		msg = msg[i+2:]
	}
	return "Stock change rejected: " + msg
}
