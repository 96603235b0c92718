package session

import (
	"context"
	"errors"
	"time"
)

type Service struct {
	repo          Repository
	blacklistRepo BlacklistRepository
}

func NewService(repo Repository, blacklistRepo BlacklistRepository) *Service {
	return &Service{
		repo:          repo,
		blacklistRepo: blacklistRepo,
	}
}

func (s *Service) ListByUserID(ctx context.Context, userID string) ([]Session, error) {
	return s.repo.ListByUserID(ctx, userID)
}

func (s *Service) Create(ctx context.Context, session *Session) error {
	return s.repo.Create(ctx, session)
}

// Consume takes the session for a refresh token out of the store so it can
// be rotated.
func (s *Service) Consume(ctx context.Context, hash string) (Session, error) {
	return s.repo.Consume(ctx, hash)
}

// Revoke ends one of userID's sessions. Sessions of other users look like
// they do not exist.
func (s *Service) Revoke(ctx context.Context, userID, sessionID string) error {
	sess, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.UserID != userID {
		return ErrNotFound
	}
	return s.repo.Delete(ctx, sessionID)
}

// RevokeByAccessToken ends the session that issued the access token jti, if
// it is still around.
func (s *Service) RevokeByAccessToken(ctx context.Context, userID, jti string) error {
	sessions, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return err
	}
	for _, sess := range sessions {
		if sess.AccessJTI != jti {
			continue
		}
		if err := s.repo.Delete(ctx, sess.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}

// RevokeOthers ends every session of userID except the one that issued the
// access token keepJTI, and returns the sessions it ended.
func (s *Service) RevokeOthers(ctx context.Context, userID, keepJTI string) ([]Session, error) {
	sessions, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	var revoked []Session
	for _, sess := range sessions {
		if sess.AccessJTI == keepJTI {
			continue
		}
		if err := s.repo.Delete(ctx, sess.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return revoked, err
		}
		revoked = append(revoked, sess)
	}
	return revoked, nil
}

func (s *Service) AddToBlacklist(ctx context.Context, jti string, ttl time.Duration) error {
	return s.blacklistRepo.AddToken(ctx, jti, ttl)
}

func (s *Service) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	return s.blacklistRepo.IsBlacklisted(ctx, jti)
}
