package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lendingapi/internal/platform/crypto"
	"lendingapi/internal/session"
	"lendingapi/internal/user"
)

var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrWrongPassword = errors.New("current password is incorrect")
	ErrSamePassword  = errors.New("new password must differ from the current one")
	ErrWeakPassword  = errors.New("new password is too weak")
)

// Tokens is what a successful login or refresh hands back.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// Client describes the device a session is opened from.
type Client struct {
	UserAgent string
	IPAddress string
}

type Service struct {
	secret         string
	accessTTL      time.Duration
	refreshTTL     time.Duration
	userService    *user.Service
	sessionService *session.Service
	logger         *slog.Logger
}

func NewService(secret string, accessTTL, refreshTTL time.Duration, userService *user.Service, sessionService *session.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		secret:         secret,
		accessTTL:      accessTTL,
		refreshTTL:     refreshTTL,
		userService:    userService,
		sessionService: sessionService,
		logger:         logger,
	}
}

func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

func newRefreshToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Register creates a member account, or an administrator one for the
// configured bootstrap emails.
func (s *Service) Register(ctx context.Context, email, username, password string) (user.User, error) {
	hashed, err := crypto.HashPassword(password)
	if err != nil {
		return user.User{}, err
	}
	u, err := s.userService.Register(ctx, email, username, hashed)
	if err != nil {
		return user.User{}, err
	}
	s.logger.Info("user registered", "user_id", u.ID, "role", u.Role)
	return u, nil
}

func (s *Service) Login(ctx context.Context, email, password string, rememberMe bool, client Client) (Tokens, error) {
	u, err := s.userService.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, user.ErrNotFound) {
		return Tokens{}, err
	}
	if err != nil || !crypto.VerifyPassword(u.Password, password) {
		return Tokens{}, ErrUnauthorized
	}

	sess := session.Session{
		UserID:     u.ID,
		UserAgent:  client.UserAgent,
		IPAddress:  client.IPAddress,
		RememberMe: rememberMe,
		CreatedAt:  time.Now(),
	}
	tokens, err := s.issue(ctx, u, sess)
	if err != nil {
		return Tokens{}, err
	}
	s.logger.Info("user logged in", "user_id", u.ID)
	return tokens, nil
}

// RefreshToken rotates a refresh token: the old one stops working and a new
// pair is issued for the same session.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (Tokens, error) {
	sess, err := s.sessionService.Consume(ctx, hashToken(refreshToken))
	if errors.Is(err, session.ErrNotFound) {
		return Tokens{}, ErrUnauthorized
	}
	if err != nil {
		return Tokens{}, err
	}

	u, err := s.userService.GetByID(ctx, sess.UserID)
	if errors.Is(err, user.ErrNotFound) {
		return Tokens{}, ErrUnauthorized
	}
	if err != nil {
		return Tokens{}, err
	}

	sess.ID = ""
	return s.issue(ctx, u, sess)
}

func (s *Service) issue(ctx context.Context, u user.User, sess session.Session) (Tokens, error) {
	accessToken, jti, err := crypto.GenerateToken(s.secret, u.ID, u.Role, s.accessTTL)
	if err != nil {
		return Tokens{}, err
	}
	refreshToken, err := newRefreshToken()
	if err != nil {
		return Tokens{}, err
	}

	refreshTTL := s.refreshTTL
	if sess.RememberMe {
		refreshTTL *= 3
	}
	sess.RefreshTokenHash = hashToken(refreshToken)
	sess.AccessJTI = jti
	sess.ExpiresAt = time.Now().Add(refreshTTL)

	if err := s.sessionService.Create(ctx, &sess); err != nil {
		return Tokens{}, err
	}

	return Tokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.accessTTL.Seconds()),
		TokenType:    "Bearer",
	}, nil
}

// Logout revokes the access token until it would have expired and ends the
// session it came from.
func (s *Service) Logout(ctx context.Context, token string, userID string) error {
	claims, err := crypto.ParseToken(s.secret, token)
	if err != nil || claims.Sub != userID {
		return ErrUnauthorized
	}

	if err := s.sessionService.AddToBlacklist(ctx, claims.ID, claims.ExpiresIn(time.Now())); err != nil {
		return err
	}
	if err := s.sessionService.RevokeByAccessToken(ctx, userID, claims.ID); err != nil {
		return err
	}
	s.logger.Info("user logged out", "user_id", userID)
	return nil
}

// ChangePassword replaces the user's password after checking the current one.
// Every other session of the user is ended and its access token revoked; the
// session behind currentJTI stays signed in.
func (s *Service) ChangePassword(ctx context.Context, userID, currentJTI, current, next string) (int, error) {
	u, err := s.userService.GetByID(ctx, userID)
	if errors.Is(err, user.ErrNotFound) {
		return 0, ErrUnauthorized
	}
	if err != nil {
		return 0, err
	}
	if !crypto.VerifyPassword(u.Password, current) {
		return 0, ErrWrongPassword
	}
	if current == next {
		return 0, ErrSamePassword
	}
	if err := crypto.ValidatePasswordStrength(next); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}

	hashed, err := crypto.HashPassword(next)
	if err != nil {
		return 0, err
	}
	if err := s.userService.UpdatePassword(ctx, userID, hashed); err != nil {
		return 0, err
	}

	revoked, err := s.sessionService.RevokeOthers(ctx, userID, currentJTI)
	if err != nil {
		return 0, err
	}
	for _, sess := range revoked {
		if sess.AccessJTI == "" {
			continue
		}
		if err := s.sessionService.AddToBlacklist(ctx, sess.AccessJTI, s.accessTTL); err != nil {
			return 0, err
		}
	}
	s.logger.Info("password changed", "user_id", userID, "sessions_revoked", len(revoked))
	return len(revoked), nil
}
