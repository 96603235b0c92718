package auth

import (
	"errors"
	"net/http"
	"strings"

	"lendingapi/internal/httpx"
	"lendingapi/internal/session"
	"lendingapi/internal/user"
)

type HTTPHandler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

func (h *HTTPHandler) Register(mux *http.ServeMux, g httpx.Guards) {
	mux.HandleFunc("POST /v1/auth/register", h.RegisterUser)
	mux.HandleFunc("POST /v1/auth/login", h.Login)
	mux.HandleFunc("POST /v1/auth/refresh", h.RefreshToken)
	mux.Handle("POST /v1/auth/logout", g.Member(h.Logout))
	mux.Handle("POST /v1/auth/password", g.Member(h.ChangePassword))
}

type registerReq struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,password_strength"`
}

// RegisterUser handles POST /v1/auth/register
func (h *HTTPHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerReq
	if !httpx.DecodeAndValidate(w, r, &req, false) {
		return
	}

	newUser, err := h.service.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, user.ErrAlreadyExists) {
			httpx.JSONError(w, r, http.StatusConflict, "ALREADY_EXISTS", "Email or username already taken", nil)
			return
		}
		httpx.InternalError(w, r)
		return
	}

	httpx.JSONCreated(w, r, newUser)
}

type LoginReq struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"remember_me"`
}

// Login handles POST /v1/auth/login
func (h *HTTPHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginReq
	if !httpx.DecodeAndValidate(w, r, &req, false) {
		return
	}

	tokens, err := h.service.Login(r.Context(), strings.TrimSpace(req.Email), req.Password, req.RememberMe, clientFrom(r))
	if err != nil {
		writeError(w, r, err, "Invalid email or password")
		return
	}
	httpx.JSONSuccess(w, r, tokens, nil)
}

type RefreshReq struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// RefreshToken handles POST /v1/auth/refresh
func (h *HTTPHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshReq
	if !httpx.DecodeAndValidate(w, r, &req, false) {
		return
	}

	tokens, err := h.service.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, err, "Invalid or expired refresh token")
		return
	}
	httpx.JSONSuccess(w, r, tokens, nil)
}

// Logout handles POST /v1/auth/logout
func (h *HTTPHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	if err := h.service.Logout(r.Context(), token, httpx.UserIDFrom(r)); err != nil {
		writeError(w, r, err, "Unauthorized")
		return
	}
	httpx.JSONSuccessNoContent(w)
}

type changePasswordReq struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,password_strength"`
}

// ChangePassword handles POST /v1/auth/password
func (h *HTTPHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordReq
	if !httpx.DecodeAndValidate(w, r, &req, false) {
		return
	}

	revoked, err := h.service.ChangePassword(r.Context(), httpx.UserIDFrom(r), httpx.TokenIDFrom(r), req.CurrentPassword, req.NewPassword)
	switch {
	case err == nil:
		httpx.JSONSuccess(w, r, map[string]int{"revoked_sessions": revoked}, nil)
	case errors.Is(err, ErrWrongPassword):
		httpx.ValidationFailed(w, r, []httpx.ErrorDetail{{Field: "current_password", Message: err.Error()}})
	case errors.Is(err, ErrSamePassword), errors.Is(err, ErrWeakPassword):
		httpx.ValidationFailed(w, r, []httpx.ErrorDetail{{Field: "new_password", Message: err.Error()}})
	default:
		writeError(w, r, err, "Unauthorized")
	}
}

func clientFrom(r *http.Request) Client {
	ip := r.RemoteAddr
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		ip = strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	return Client{UserAgent: r.Header.Get("User-Agent"), IPAddress: ip}
}

func writeError(w http.ResponseWriter, r *http.Request, err error, unauthorized string) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		httpx.JSONError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", unauthorized, nil)
	case errors.Is(err, session.ErrUnavailable):
		httpx.Unavailable(w, r)
	default:
		httpx.InternalError(w, r)
	}
}
