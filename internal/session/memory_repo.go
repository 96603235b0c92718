package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo keeps sessions and revoked tokens in process. It backs local
// runs without Redis and the tests; sessions do not survive a restart.
type MemoryRepo struct {
	mu       sync.Mutex
	sessions map[string]Session
	revoked  map[string]time.Time
	now      func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		sessions: map[string]Session{},
		revoked:  map[string]time.Time{},
		now:      time.Now,
	}
}

func (m *MemoryRepo) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.LastUsedAt = now
	m.sessions[s.ID] = *s
	return nil
}

func (m *MemoryRepo) Get(_ context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live(id)
}

func (m *MemoryRepo) live(id string) (Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	if !m.now().Before(s.ExpiresAt) {
		delete(m.sessions, id)
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryRepo) Consume(_ context.Context, tokenHash string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.sessions {
		if s.RefreshTokenHash != tokenHash {
			continue
		}
		delete(m.sessions, id)
		if !m.now().Before(s.ExpiresAt) {
			return Session{}, ErrNotFound
		}
		return s, nil
	}
	return Session{}, ErrNotFound
}

func (m *MemoryRepo) ListByUserID(_ context.Context, userID string) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []Session{}
	for id, s := range m.sessions {
		if s.UserID != userID {
			continue
		}
		if s, err := m.live(id); err == nil {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.live(id); err != nil {
		return err
	}
	delete(m.sessions, id)
	return nil
}

func (m *MemoryRepo) AddToken(_ context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[jti] = m.now().Add(ttl)
	return nil
}

func (m *MemoryRepo) IsBlacklisted(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	until, ok := m.revoked[jti]
	if !ok {
		return false, nil
	}
	if !m.now().Before(until) {
		delete(m.revoked, jti)
		return false, nil
	}
	return true, nil
}
