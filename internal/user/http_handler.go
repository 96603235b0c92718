package user

import (
	"errors"
	"net/http"

	"lendingapi/internal/httpx"
)

type HTTPHandler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

func (h *HTTPHandler) Register(mux *http.ServeMux, g httpx.Guards) {
	mux.Handle("GET /v1/me", g.Member(h.GetCurrentUser))
	mux.Handle("PATCH /v1/me", g.Member(h.UpdateCurrentUser))
}

// GetCurrentUser handles GET /v1/me
func (h *HTTPHandler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFrom(r)
	if userID == "" {
		httpx.Unauthorized(w, r)
		return
	}

	user, err := h.service.GetByID(r.Context(), userID)
	if errors.Is(err, ErrNotFound) {
		// The account went away after the token was issued.
		httpx.Unauthorized(w, r)
		return
	}
	if err != nil {
		httpx.InternalError(w, r)
		return
	}

	httpx.JSONSuccess(w, r, user, nil)
}

type updateProfileReq struct {
	Username *string `json:"username" validate:"omitnil,min=3,max=50"`
	Email    *string `json:"email" validate:"omitnil,email,max=254"`
}

// UpdateCurrentUser handles PATCH /v1/me
func (h *HTTPHandler) UpdateCurrentUser(w http.ResponseWriter, r *http.Request) {
	var req updateProfileReq
	if !httpx.DecodeAndValidate(w, r, &req, false) {
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), httpx.UserIDFrom(r), ProfileUpdate{
		Username: req.Username,
		Email:    req.Email,
	})
	switch {
	case err == nil:
		httpx.JSONSuccess(w, r, user, nil)
	case errors.Is(err, ErrNotFound):
		httpx.Unauthorized(w, r)
	case errors.Is(err, ErrAlreadyExists):
		httpx.JSONError(w, r, http.StatusConflict, "ALREADY_EXISTS", "Email or username already taken", nil)
	case errors.Is(err, ErrInvalidName):
		httpx.ValidationFailed(w, r, []httpx.ErrorDetail{{Field: "username", Message: err.Error()}})
	default:
		httpx.InternalError(w, r)
	}
}
