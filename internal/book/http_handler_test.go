package book

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendingapi/internal/httpx"
	"lendingapi/internal/testutil"
)

func newTestRouter(t *testing.T) (http.Handler, *MockRepository) {
	t.Helper()
	svc, repo, _ := newMockedService(t)
	mux := http.NewServeMux()
	NewHTTPHandler(svc).Register(mux, httpx.NewGuards(testutil.TestSecret, nil))
	return mux, repo
}

func serve(h http.Handler, r *http.Request) testutil.RecordResponse {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return testutil.RecordHTTPResponse(w)
}

func TestHTTPHandler_List(t *testing.T) {
	testBook := Book{ID: "1", ISBN: "123", Title: "Test", TotalCopies: 1, AvailableCopies: 1}

	t.Run("success", func(t *testing.T) {
		h, repo := newTestRouter(t)
		repo.EXPECT().List(gomock.Any(), Query{
			Search:        "dune",
			Genre:         "scifi",
			AvailableOnly: true,
			Sort:          "year",
			Desc:          true,
			Limit:         10,
			Offset:        10,
		}).Return([]Book{testBook}, 11, nil)

		res := serve(h, testutil.NewRequest(http.MethodGet, "/v1/books?q=dune&genre=scifi&available_only=true&sort=year&desc=true&page=2&page_size=10", nil))

		require.Equal(t, http.StatusOK, res.Code)
		meta := res.Body["meta"].(map[string]interface{})
		assert.Equal(t, float64(11), meta["total"])
		assert.Equal(t, float64(2), meta["total_pages"])
	})

	t.Run("store unavailable", func(t *testing.T) {
		h, repo := newTestRouter(t)
		repo.EXPECT().List(gomock.Any(), gomock.Any()).Return(nil, 0, ErrUnavailable)

		res := serve(h, testutil.NewRequest(http.MethodGet, "/v1/books", nil))

		assert.Equal(t, http.StatusServiceUnavailable, res.Code)
		assert.Equal(t, "TRANSIENT_FAILURE", res.ErrorCode())
	})

	t.Run("error", func(t *testing.T) {
		h, repo := newTestRouter(t)
		repo.EXPECT().List(gomock.Any(), gomock.Any()).Return(nil, 0, context.Canceled)

		res := serve(h, testutil.NewRequest(http.MethodGet, "/v1/books", nil))

		assert.Equal(t, http.StatusInternalServerError, res.Code)
	})
}

func TestHTTPHandler_Get(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		h, repo := newTestRouter(t)
		repo.EXPECT().GetByID(gomock.Any(), "b-1").Return(Book{ID: "b-1", Title: "Test"}, nil)

		res := serve(h, testutil.NewRequest(http.MethodGet, "/v1/books/b-1", nil))

		require.Equal(t, http.StatusOK, res.Code)
		assert.Equal(t, "Test", res.Data()["title"])
	})

	t.Run("not found", func(t *testing.T) {
		h, repo := newTestRouter(t)
		repo.EXPECT().GetByID(gomock.Any(), "b-1").Return(Book{}, ErrNotFound)

		res := serve(h, testutil.NewRequest(http.MethodGet, "/v1/books/b-1", nil))

		assert.Equal(t, http.StatusNotFound, res.Code)
		assert.Equal(t, "NOT_FOUND", res.ErrorCode())
	})
}

func TestHTTPHandler_CreateRequiresAdmin(t *testing.T) {
	h, repo := newTestRouter(t)
	body := map[string]interface{}{"isbn": "9780441172719", "title": "Dune", "author": "Frank Herbert", "total_copies": 2}

	res := serve(h, testutil.NewRequest(http.MethodPost, "/v1/books", body))
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = serve(h, testutil.NewRequestWithAuth(http.MethodPost, "/v1/books", body, testutil.MemberToken(testutil.MemberID)))
	assert.Equal(t, http.StatusForbidden, res.Code)

	repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, b *Book) error {
		b.ID = "b-1"
		return nil
	})
	res = serve(h, testutil.NewRequestWithAuth(http.MethodPost, "/v1/books", body, testutil.AdminToken(testutil.AdminID)))
	require.Equal(t, http.StatusCreated, res.Code)
	assert.Equal(t, float64(2), res.Data()["available_copies"])
}

func TestHTTPHandler_CreateValidation(t *testing.T) {
	h, _ := newTestRouter(t)
	admin := testutil.AdminToken(testutil.AdminID)

	res := serve(h, testutil.NewRequestWithAuth(http.MethodPost, "/v1/books",
		map[string]interface{}{"isbn": "12", "title": "", "author": "x"}, admin))

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "VALIDATION_ERROR", res.ErrorCode())
}

func TestHTTPHandler_ErrorMapping(t *testing.T) {
	admin := testutil.AdminToken(testutil.AdminID)

	tests := []struct {
		name     string
		setup    func(repo *MockRepository)
		req      *http.Request
		wantCode int
		wantErr  string
	}{
		{
			name: "delete in use",
			setup: func(repo *MockRepository) {
				repo.EXPECT().Delete(gomock.Any(), "b-1").Return(ErrInUse)
			},
			req:      testutil.NewRequestWithAuth(http.MethodDelete, "/v1/books/b-1", nil, admin),
			wantCode: http.StatusConflict,
			wantErr:  "BOOK_IN_USE",
		},
		{
			name: "duplicate isbn",
			setup: func(repo *MockRepository) {
				repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(ErrDuplicateISBN)
			},
			req: testutil.NewRequestWithAuth(http.MethodPost, "/v1/books",
				map[string]interface{}{"isbn": "0441172717", "title": "Dune", "author": "FH", "total_copies": 1}, admin),
			wantCode: http.StatusConflict,
			wantErr:  "DUPLICATE_ISBN",
		},
		{
			name: "stock below loans",
			setup: func(repo *MockRepository) {
				repo.EXPECT().Mutate(gomock.Any(), "b-1", gomock.Any()).
					DoAndReturn(mutateOn(Book{ID: "b-1", TotalCopies: 2, AvailableCopies: 1}, 1))
			},
			req:      testutil.NewRequestWithAuth(http.MethodPost, "/v1/books/b-1/stock", map[string]int{"delta": 1}, admin),
			wantCode: http.StatusUnprocessableEntity,
			wantErr:  "INVALID_STOCK",
		},
		{
			name: "update missing book",
			setup: func(repo *MockRepository) {
				repo.EXPECT().Mutate(gomock.Any(), "b-9", gomock.Any()).Return(Book{}, ErrNotFound)
			},
			req:      testutil.NewRequestWithAuth(http.MethodPut, "/v1/books/b-9", map[string]string{"title": "x"}, admin),
			wantCode: http.StatusNotFound,
			wantErr:  "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, repo := newTestRouter(t)
			tt.setup(repo)

			res := serve(h, tt.req)

			assert.Equal(t, tt.wantCode, res.Code)
			assert.Equal(t, tt.wantErr, res.ErrorCode())
		})
	}
}

func TestHTTPHandler_DeleteAndStock(t *testing.T) {
	h, repo := newTestRouter(t)
	admin := testutil.AdminToken(testutil.AdminID)

	repo.EXPECT().Delete(gomock.Any(), "b-1").Return(nil)
	res := serve(h, testutil.NewRequestWithAuth(http.MethodDelete, "/v1/books/b-1", nil, admin))
	assert.Equal(t, http.StatusNoContent, res.Code)

	repo.EXPECT().Mutate(gomock.Any(), "b-2", gomock.Any()).
		DoAndReturn(mutateOn(Book{ID: "b-2", TotalCopies: 3, AvailableCopies: 1}, 0))
	res = serve(h, testutil.NewRequestWithAuth(http.MethodPost, "/v1/books/b-2/stock", map[string]int{"delta": 2}, admin))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, float64(3), res.Data()["available_copies"])
}
