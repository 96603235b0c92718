package user

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrAlreadyExists = errors.New("email or username already taken")
	ErrInvalidName   = errors.New("username must be 3 to 50 characters")
)

const (
	RoleMember = "MEMBER"
	RoleAdmin  = "ADMIN"
)

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProfileUpdate carries the account fields a user may change. Nil fields are
// left alone.
type ProfileUpdate struct {
	Username *string
	Email    *string
}

func (p ProfileUpdate) empty() bool {
	return p.Username == nil && p.Email == nil
}
