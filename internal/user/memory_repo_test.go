package user

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type memRepo struct {
	mu    sync.Mutex
	users map[string]User
}

func newMemRepo() *memRepo {
	return &memRepo{users: map[string]User{}}
}

func (m *memRepo) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) || existing.Username == u.Username {
			return ErrAlreadyExists
		}
	}
	u.ID = fmt.Sprintf("user-%d", len(m.users)+1)
	m.users[u.ID] = *u
	return nil
}

func (m *memRepo) GetByEmail(_ context.Context, email string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (m *memRepo) GetByID(_ context.Context, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *memRepo) UpdateProfile(_ context.Context, id string, p ProfileUpdate) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	for _, existing := range m.users {
		if existing.ID == id {
			continue
		}
		if (p.Email != nil && existing.Email == *p.Email) || (p.Username != nil && existing.Username == *p.Username) {
			return User{}, ErrAlreadyExists
		}
	}
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	m.users[id] = u
	return u, nil
}

func (m *memRepo) UpdatePassword(_ context.Context, id, hashedPassword string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Password = hashedPassword
	m.users[id] = u
	return nil
}
