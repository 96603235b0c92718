package borrow

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendingapi/internal/httpx"
	"lendingapi/internal/testutil"
)

const (
	bookA = "3f2504e0-4f89-41d3-9a0c-0305e82c3301"
	bookB = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
)

func newTestRouter(t *testing.T) (http.Handler, *memStore) {
	t.Helper()
	svc, store, _ := newTestService(t)
	store.putBook(bookA, 2, 2)
	store.putBook(bookB, 1, 0)

	mux := http.NewServeMux()
	NewHTTPHandler(svc).Register(mux, httpx.NewGuards(testutil.TestSecret, nil))
	return mux, store
}

func serve(h http.Handler, r *http.Request) testutil.RecordResponse {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return testutil.RecordHTTPResponse(w)
}

func TestHTTPHandler_RequestApproveFlow(t *testing.T) {
	h, store := newTestRouter(t)
	member := testutil.MemberToken(testutil.MemberID)
	admin := testutil.AdminToken(testutil.AdminID)

	res := serve(h, testutil.NewRequestWithAuth(http.MethodPost, "/v1/borrowings/requests", map[string]string{"book_id": bookA}, member))
	require.Equal(t, http.StatusCreated, res.Code)
	data := res.Data()
	assert.Equal(t, "pending", data["status"])
	assert.Equal(t, []interface{}{"cancel"}, data["actions"])
	id := data["id"].(string)

	res = serve(h, testutil.NewRequestWithAuth(http.MethodPost, "/v1/borrowings/"+id+"/approve", map[string]string{"notes": "ok"}, member))
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = serve(h, testutil.NewRequestWithAuth(http.MethodPost, "/v1/borrowings/"+id+"/approve", map[string]string{"notes": "ok"}, admin))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "approved", res.Data()["status"])
	assert.Equal(t, []interface{}{"confirm-borrow"}, res.Data()["actions"])

	// Admin actions accept an empty body.
	res = serve(h, testutil.NewRequestWithAuth(http.MethodPost, "/v1/borrowings/"+id+"/confirm-borrow", nil, admin))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "borrowed", res.Data()["status"])
	assert.Equal(t, 1, store.bookStock(bookA).Available())

	res = serve(h, testutil.NewRequestWithAuth(http.MethodPost, "/v1/borrowings/"+id+"/cancel", nil, member))
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, "INVALID_TRANSITION", res.ErrorCode())

	res = serve(h, testutil.NewRequestWithAuth(http.MethodPost, "/v1/borrowings/"+id+"/return", nil, member))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "returned", res.Data()["status"])
	assert.Equal(t, 2, store.bookStock(bookA).Available())
}

func TestHTTPHandler_ErrorMapping(t *testing.T) {
	h, store := newTestRouter(t)
	member := testutil.MemberToken(testutil.MemberID)
	admin := testutil.AdminToken(testutil.AdminID)
	store.putRequest(Request{ID: "r-approved", BookID: bookB, UserID: testutil.MemberID, Status: StatusApproved})

	tests := []struct {
		name     string
		req      *http.Request
		wantCode int
		wantErr  string
	}{
		{
			name:     "direct borrow while a request is active",
			req:      testutil.NewRequestWithAuth(http.MethodPost, "/v1/borrowings", map[string]string{"book_id": bookB}, member),
			wantCode: http.StatusConflict,
			wantErr:  "ACTIVE_REQUEST_EXISTS",
		},
		{
			name:     "out of stock on confirm borrow",
			req:      testutil.NewRequestWithAuth(http.MethodPost, "/v1/borrowings/r-approved/confirm-borrow", nil, admin),
			wantCode: http.StatusConflict,
			wantErr:  "OUT_OF_STOCK",
		},
		{
			name:     "unknown request",
			req:      testutil.NewRequestWithAuth(http.MethodGet, "/v1/borrowings/nope", nil, member),
			wantCode: http.StatusNotFound,
			wantErr:  "NOT_FOUND",
		},
		{
			name:     "unknown book",
			req:      testutil.NewRequestWithAuth(http.MethodPost, "/v1/borrowings/requests", map[string]string{"book_id": "11111111-2222-4333-8444-555555555555"}, member),
			wantCode: http.StatusNotFound,
			wantErr:  "NOT_FOUND",
		},
		{
			name:     "missing book id",
			req:      testutil.NewRequestWithAuth(http.MethodPost, "/v1/borrowings/requests", map[string]string{}, member),
			wantCode: http.StatusBadRequest,
			wantErr:  "VALIDATION_ERROR",
		},
		{
			name:     "due date before borrow date",
			req:      testutil.NewRequestWithAuth(http.MethodPost, "/v1/borrowings", map[string]string{"book_id": bookA, "borrow_date": "2026-03-10T00:00:00Z", "due_date": "2026-03-01T00:00:00Z"}, member),
			wantCode: http.StatusBadRequest,
			wantErr:  "VALIDATION_ERROR",
		},
		{
			name:     "no token",
			req:      testutil.NewRequest(http.MethodGet, "/v1/borrowings/me", nil),
			wantCode: http.StatusUnauthorized,
			wantErr:  "UNAUTHORIZED",
		},
		{
			name:     "member listing everything",
			req:      testutil.NewRequestWithAuth(http.MethodGet, "/v1/borrowings", nil, member),
			wantCode: http.StatusForbidden,
			wantErr:  "FORBIDDEN",
		},
		{
			name:     "bad status filter",
			req:      testutil.NewRequestWithAuth(http.MethodGet, "/v1/borrowings?status=lost", nil, admin),
			wantCode: http.StatusBadRequest,
			wantErr:  "VALIDATION_ERROR",
		},
		{
			name:     "bad cursor",
			req:      testutil.NewRequestWithAuth(http.MethodGet, "/v1/borrowings/me?cursor=@@@", nil, member),
			wantCode: http.StatusBadRequest,
			wantErr:  "VALIDATION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := serve(h, tt.req)
			assert.Equal(t, tt.wantCode, res.Code)
			assert.Equal(t, tt.wantErr, res.ErrorCode())
		})
	}
}

func TestHTTPHandler_DirectBorrowAndReturnByBook(t *testing.T) {
	h, store := newTestRouter(t)
	member := testutil.MemberToken(testutil.MemberID)

	res := serve(h, testutil.NewRequestWithAuth(http.MethodPost, "/v1/borrowings", map[string]string{"book_id": bookA}, member))
	require.Equal(t, http.StatusCreated, res.Code)
	assert.Equal(t, "borrowed", res.Data()["status"])
	assert.NotEmpty(t, res.Data()["due_date"])
	assert.Equal(t, 1, store.bookStock(bookA).Available())

	res = serve(h, testutil.NewRequestWithAuth(http.MethodGet, "/v1/borrowings/status?book_id="+bookA, nil, member))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "borrowed", res.Data()["status"])

	res = serve(h, testutil.NewRequestWithAuth(http.MethodPost, "/v1/borrowings/return", map[string]string{"book_id": bookA}, member))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "returned", res.Data()["status"])

	res = serve(h, testutil.NewRequestWithAuth(http.MethodGet, "/v1/borrowings/status?book_id="+bookA, nil, member))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Nil(t, res.Body["data"])
	assert.Equal(t, false, res.Body["meta"].(map[string]interface{})["active"])
}

func TestHTTPHandler_ListPaginates(t *testing.T) {
	h, store := newTestRouter(t)
	member := testutil.MemberToken(testutil.MemberID)
	admin := testutil.AdminToken(testutil.AdminID)
	store.putBook("c0a80101-0000-4000-8000-000000000001", 1, 1)
	store.putBook("c0a80101-0000-4000-8000-000000000002", 1, 1)

	for _, id := range []string{bookA, "c0a80101-0000-4000-8000-000000000001", "c0a80101-0000-4000-8000-000000000002"} {
		res := serve(h, testutil.NewRequestWithAuth(http.MethodPost, "/v1/borrowings/requests", map[string]string{"book_id": id}, member))
		require.Equal(t, http.StatusCreated, res.Code)
	}

	res := serve(h, testutil.NewRequestWithAuth(http.MethodGet, "/v1/borrowings/me?limit=2", nil, member))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Len(t, res.Body["data"], 2)
	meta := res.Body["meta"].(map[string]interface{})
	cursor, _ := meta["next_cursor"].(string)
	require.NotEmpty(t, cursor)

	res = serve(h, testutil.NewRequestWithAuth(http.MethodGet, "/v1/borrowings/me?limit=2&cursor="+cursor, nil, member))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Len(t, res.Body["data"], 1)

	res = serve(h, testutil.NewRequestWithAuth(http.MethodGet, "/v1/borrowings?status=pending&user_id="+testutil.MemberID, nil, admin))
	require.Equal(t, http.StatusOK, res.Code)
	items := res.Body["data"].([]interface{})
	require.Len(t, items, 3)
	assert.Equal(t, []interface{}{"approve", "reject"}, items[0].(map[string]interface{})["actions"])
}

func TestHTTPHandler_OtherMembersRequestIsHidden(t *testing.T) {
	h, store := newTestRouter(t)
	owner := testutil.MemberToken(testutil.MemberID)
	other := testutil.MemberToken("5d1f0b7a-2c3e-4f60-8a9b-0c1d2e3f4a5b")

	res := serve(h, testutil.NewRequestWithAuth(http.MethodPost, "/v1/borrowings/requests", map[string]string{"book_id": bookA}, owner))
	require.Equal(t, http.StatusCreated, res.Code)
	id := res.Data()["id"].(string)

	for _, path := range []string{"/v1/borrowings/" + id + "/cancel", "/v1/borrowings/" + id + "/return"} {
		res = serve(h, testutil.NewRequestWithAuth(http.MethodPost, path, nil, other))
		assert.Equal(t, http.StatusNotFound, res.Code, path)
	}
	res = serve(h, testutil.NewRequestWithAuth(http.MethodGet, "/v1/borrowings/"+id, nil, other))
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, StatusPending, store.request(id).Status)
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		err      error
		wantCode int
		wantErr  string
	}{
		{ErrNotesTooLong, http.StatusBadRequest, "VALIDATION_ERROR"},
		{ErrUserNotFound, http.StatusNotFound, "NOT_FOUND"},
		{ErrBookNotFound, http.StatusNotFound, "NOT_FOUND"},
		{ErrUnavailable, http.StatusServiceUnavailable, "TRANSIENT_FAILURE"},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, httptest.NewRequest(http.MethodPost, "/v1/borrowings", nil), tt.err)
			res := testutil.RecordHTTPResponse(w)
			assert.Equal(t, tt.wantCode, res.Code)
			assert.Equal(t, tt.wantErr, res.ErrorCode())
		})
	}
}
