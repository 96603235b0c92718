package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendingapi/internal/httpx"
	"lendingapi/internal/session"
	"lendingapi/internal/testutil"
	"lendingapi/internal/user"
)

type userRepo struct {
	mu    sync.Mutex
	users []user.User
}

func (m *userRepo) Create(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.users {
		if strings.EqualFold(e.Email, u.Email) || e.Username == u.Username {
			return user.ErrAlreadyExists
		}
	}
	u.ID = fmt.Sprintf("u-%d", len(m.users)+1)
	m.users = append(m.users, *u)
	return nil
}

func (m *userRepo) GetByEmail(_ context.Context, email string) (user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (m *userRepo) GetByID(_ context.Context, id string) (user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (m *userRepo) UpdateProfile(_ context.Context, id string, p user.ProfileUpdate) (user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, u := range m.users {
		if u.ID != id {
			continue
		}
		if p.Username != nil {
			m.users[i].Username = *p.Username
		}
		if p.Email != nil {
			m.users[i].Email = *p.Email
		}
		return m.users[i], nil
	}
	return user.User{}, user.ErrNotFound
}

func (m *userRepo) UpdatePassword(_ context.Context, id, hashedPassword string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, u := range m.users {
		if u.ID == id {
			m.users[i].Password = hashedPassword
			return nil
		}
	}
	return user.ErrNotFound
}

type testEnv struct {
	mux      *http.ServeMux
	sessions *session.Service
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	store := session.NewMemoryRepo()
	sessions := session.NewService(store, store)
	users := user.NewService(&userRepo{}, []string{"admin@example.com"})
	svc := NewService(testutil.TestSecret, 15*time.Minute, time.Hour, users, sessions, nil)

	mux := http.NewServeMux()
	NewHTTPHandler(svc).Register(mux, httpx.NewGuards(testutil.TestSecret, sessions))
	// A protected route to observe the blacklist from.
	mux.Handle("GET /whoami", httpx.NewGuards(testutil.TestSecret, sessions).Member(func(w http.ResponseWriter, r *http.Request) {
		httpx.JSONSuccess(w, r, map[string]string{"role": httpx.RoleFrom(r)}, nil)
	}))
	return testEnv{mux: mux, sessions: sessions}
}

func (e testEnv) serve(r *http.Request) testutil.RecordResponse {
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, r)
	return testutil.RecordHTTPResponse(w)
}

const strongPassword = "Sup3r$ecret!"

func (e testEnv) registerAndLogin(t *testing.T, email string) map[string]interface{} {
	t.Helper()
	res := e.serve(testutil.NewRequest(http.MethodPost, "/v1/auth/register", map[string]string{
		"email": email, "username": strings.Split(email, "@")[0], "password": strongPassword,
	}))
	require.Equal(t, http.StatusCreated, res.Code, res.Body)

	res = e.serve(testutil.NewRequest(http.MethodPost, "/v1/auth/login", map[string]string{
		"email": email, "password": strongPassword,
	}))
	require.Equal(t, http.StatusOK, res.Code)
	return res.Data()
}

func TestAuth_RegisterLoginRefreshLogout(t *testing.T) {
	env := newTestEnv(t)
	tokens := env.registerAndLogin(t, "alice@example.com")
	access := tokens["access_token"].(string)
	refresh := tokens["refresh_token"].(string)
	assert.Equal(t, float64(900), tokens["expires_in"])

	res := env.serve(testutil.NewRequestWithAuth(http.MethodGet, "/whoami", nil, access))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "MEMBER", res.Data()["role"])

	res = env.serve(testutil.NewRequest(http.MethodPost, "/v1/auth/refresh", map[string]string{"refresh_token": refresh}))
	require.Equal(t, http.StatusOK, res.Code)
	rotated := res.Data()
	assert.NotEqual(t, refresh, rotated["refresh_token"])

	// The old refresh token was consumed by the rotation.
	res = env.serve(testutil.NewRequest(http.MethodPost, "/v1/auth/refresh", map[string]string{"refresh_token": refresh}))
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	newAccess := rotated["access_token"].(string)
	res = env.serve(testutil.NewRequestWithAuth(http.MethodPost, "/v1/auth/logout", nil, newAccess))
	require.Equal(t, http.StatusNoContent, res.Code)

	res = env.serve(testutil.NewRequestWithAuth(http.MethodGet, "/whoami", nil, newAccess))
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	// Logging out ended the session, so its refresh token is dead too.
	res = env.serve(testutil.NewRequest(http.MethodPost, "/v1/auth/refresh", map[string]string{"refresh_token": rotated["refresh_token"].(string)}))
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestAuth_BootstrapAdmin(t *testing.T) {
	env := newTestEnv(t)
	tokens := env.registerAndLogin(t, "admin@example.com")

	res := env.serve(testutil.NewRequestWithAuth(http.MethodGet, "/whoami", nil, tokens["access_token"].(string)))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "ADMIN", res.Data()["role"])
}

func TestAuth_Failures(t *testing.T) {
	env := newTestEnv(t)
	env.registerAndLogin(t, "alice@example.com")

	tests := []struct {
		name     string
		path     string
		body     interface{}
		wantCode int
		wantErr  string
	}{
		{"wrong password", "/v1/auth/login", map[string]string{"email": "alice@example.com", "password": "nope"}, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"unknown email", "/v1/auth/login", map[string]string{"email": "bob@example.com", "password": strongPassword}, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"weak password", "/v1/auth/register", map[string]string{"email": "bob@example.com", "username": "bob", "password": "password"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"duplicate email", "/v1/auth/register", map[string]string{"email": "ALICE@example.com", "username": "alice2", "password": strongPassword}, http.StatusConflict, "ALREADY_EXISTS"},
		{"bogus refresh", "/v1/auth/refresh", map[string]string{"refresh_token": "deadbeef"}, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"missing refresh", "/v1/auth/refresh", map[string]string{}, http.StatusBadRequest, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := env.serve(testutil.NewRequest(http.MethodPost, tt.path, tt.body))
			assert.Equal(t, tt.wantCode, res.Code)
			assert.Equal(t, tt.wantErr, res.ErrorCode())
		})
	}

	res := env.serve(testutil.NewRequest(http.MethodPost, "/v1/auth/logout", nil))
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestAuth_ChangePassword(t *testing.T) {
	env := newTestEnv(t)
	current := env.registerAndLogin(t, "alice@example.com")
	access := current["access_token"].(string)

	res := env.serve(testutil.NewRequest(http.MethodPost, "/v1/auth/login", map[string]string{
		"email": "alice@example.com", "password": strongPassword,
	}))
	require.Equal(t, http.StatusOK, res.Code)
	otherDevice := res.Data()

	const newPassword = "N3w&Improved!"
	failures := []struct {
		name    string
		body    map[string]string
		wantErr string
	}{
		{"wrong current password", map[string]string{"current_password": "Wr0ng!pass", "new_password": newPassword}, "VALIDATION_ERROR"},
		{"same password", map[string]string{"current_password": strongPassword, "new_password": strongPassword}, "VALIDATION_ERROR"},
		{"weak new password", map[string]string{"current_password": strongPassword, "new_password": "password"}, "VALIDATION_ERROR"},
		{"missing current password", map[string]string{"new_password": newPassword}, "VALIDATION_ERROR"},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			res := env.serve(testutil.NewRequestWithAuth(http.MethodPost, "/v1/auth/password", tt.body, access))
			assert.Equal(t, http.StatusBadRequest, res.Code)
			assert.Equal(t, tt.wantErr, res.ErrorCode())
		})
	}

	res = env.serve(testutil.NewRequestWithAuth(http.MethodPost, "/v1/auth/password", map[string]string{
		"current_password": strongPassword, "new_password": newPassword,
	}, access))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, float64(1), res.Data()["revoked_sessions"])

	// The caller stays signed in; the other device is signed out.
	res = env.serve(testutil.NewRequestWithAuth(http.MethodGet, "/whoami", nil, access))
	assert.Equal(t, http.StatusOK, res.Code)
	res = env.serve(testutil.NewRequestWithAuth(http.MethodGet, "/whoami", nil, otherDevice["access_token"].(string)))
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	res = env.serve(testutil.NewRequest(http.MethodPost, "/v1/auth/refresh", map[string]string{"refresh_token": otherDevice["refresh_token"].(string)}))
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	res = env.serve(testutil.NewRequest(http.MethodPost, "/v1/auth/refresh", map[string]string{"refresh_token": current["refresh_token"].(string)}))
	assert.Equal(t, http.StatusOK, res.Code)

	res = env.serve(testutil.NewRequest(http.MethodPost, "/v1/auth/login", map[string]string{"email": "alice@example.com", "password": strongPassword}))
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	res = env.serve(testutil.NewRequest(http.MethodPost, "/v1/auth/login", map[string]string{"email": "alice@example.com", "password": newPassword}))
	assert.Equal(t, http.StatusOK, res.Code)

	res = env.serve(testutil.NewRequest(http.MethodPost, "/v1/auth/password", map[string]string{
		"current_password": newPassword, "new_password": strongPassword,
	}))
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}
