package user

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"
)

type Service struct {
	repo        Repository
	adminEmails map[string]bool
}

// NewService creates a user service. Accounts registered with one of
// adminEmails become administrators.
func NewService(repo Repository, adminEmails []string) *Service {
	admins := make(map[string]bool, len(adminEmails))
	for _, e := range adminEmails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			admins[e] = true
		}
	}
	return &Service{repo: repo, adminEmails: admins}
}

func (s *Service) Register(ctx context.Context, email, username, hashedPassword string) (User, error) {
	email = strings.TrimSpace(email)
	_, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		return User{}, ErrAlreadyExists
	}
	if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}

	role := RoleMember
	if s.adminEmails[strings.ToLower(email)] {
		role = RoleAdmin
	}

	newUser := &User{
		Email:    email,
		Username: strings.TrimSpace(username),
		Password: hashedPassword,
		Role:     role,
	}

	if err := s.repo.Create(ctx, newUser); err != nil {
		return User{}, err
	}

	return *newUser, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return s.repo.GetByEmail(ctx, strings.TrimSpace(email))
}

// UpdateProfile changes the username and/or email of an account. The role is
// kept even when the new email is on the administrator list.
func (s *Service) UpdateProfile(ctx context.Context, id string, p ProfileUpdate) (User, error) {
	if p.Username != nil {
		username := strings.TrimSpace(*p.Username)
		if n := utf8.RuneCountInString(username); n < 3 || n > 50 {
			return User{}, ErrInvalidName
		}
		p.Username = &username
	}
	if p.Email != nil {
		email := strings.TrimSpace(*p.Email)
		p.Email = &email

		// The unique index is case sensitive, lookups are not.
		other, err := s.repo.GetByEmail(ctx, email)
		if err == nil && other.ID != id {
			return User{}, ErrAlreadyExists
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return User{}, err
		}
	}
	if p.empty() {
		return s.repo.GetByID(ctx, id)
	}
	return s.repo.UpdateProfile(ctx, id, p)
}

func (s *Service) UpdatePassword(ctx context.Context, id, hashedPassword string) error {
	return s.repo.UpdatePassword(ctx, id, hashedPassword)
}
